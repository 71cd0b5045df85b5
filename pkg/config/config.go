// Package config loads and validates the service-level configuration
// knobs a host supplies around the PDS core: default filter capacities,
// storage backend selection, logging, metrics, and circuit-breaker
// thresholds.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/columbia/pdslib-firefox/internal/budget"
	"github.com/columbia/pdslib-firefox/internal/filterid"
	"github.com/columbia/pdslib-firefox/internal/pdserrors"
)

// StaticCapacitiesConfig is the YAML-loadable form of
// filterid.StaticCapacities; zero and negative capacities fail validation.
// Fields absent from the YAML keep Default's values, and an infinite
// capacity is written as ".inf".
type StaticCapacitiesConfig struct {
	NC       float64 `yaml:"nc" validate:"gt=0"`
	C        float64 `yaml:"c" validate:"gt=0"`
	QTrigger float64 `yaml:"qtrigger" validate:"gt=0"`
	QSource  float64 `yaml:"qsource" validate:"gt=0"`
}

// ToStaticCapacities converts the loaded config into the runtime type.
func (c StaticCapacitiesConfig) ToStaticCapacities() filterid.StaticCapacities {
	return filterid.StaticCapacities{
		NC:       budget.Budget(c.NC),
		C:        budget.Budget(c.C),
		QTrigger: budget.Budget(c.QTrigger),
		QSource:  budget.Budget(c.QSource),
	}
}

// StorageConfig selects and parameterizes which Filter/Event Storage
// reference backend the host wants to use.
type StorageConfig struct {
	Backend  string        `yaml:"backend" validate:"oneof=memory postgres redis"`
	DSN      string        `yaml:"dsn" validate:"required_unless=Backend memory"`
	Timeout  time.Duration `yaml:"timeout"`
}

// LoggingConfig parameterizes the zap logger construction.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json console"`
}

// MetricsConfig parameterizes the Prometheus metrics HTTP listener.
type MetricsConfig struct {
	ListenAddress string `yaml:"listen_address"`
}

// CircuitBreakerConfig parameterizes the sony/gobreaker wrapper placed
// around durable storage backends.
type CircuitBreakerConfig struct {
	ConsecutiveFailureThreshold uint32        `yaml:"consecutive_failure_threshold" validate:"gt=0"`
	OpenStateTimeout            time.Duration `yaml:"open_state_timeout"`
}

// ServiceConfig is the configuration root a host loads once at startup.
type ServiceConfig struct {
	Capacities     StaticCapacitiesConfig `yaml:"capacities" validate:"required"`
	Storage        StorageConfig          `yaml:"storage" validate:"required"`
	Logging        LoggingConfig          `yaml:"logging"`
	Metrics        MetricsConfig          `yaml:"metrics"`
	CircuitBreaker CircuitBreakerConfig   `yaml:"circuit_breaker"`
}

var validate = validator.New()

// Load reads and validates a ServiceConfig from the YAML file at path.
// A missing file, malformed YAML, or a failed struct validation all
// surface as a pdserrors.Misconfiguration error, never a panic.
func Load(path string) (*ServiceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pdserrors.Misconfiguration("config.load", fmt.Errorf("reading %s: %w", path, err))
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, pdserrors.Misconfiguration("config.load", fmt.Errorf("parsing %s: %w", path, err))
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, pdserrors.Misconfiguration("config.load", err)
	}
	return cfg, nil
}

// Default returns the zero-config fallback: in-memory storage, the
// reference default capacities, and a sane logging/metrics setup, for
// hosts (and tests) that don't need to supply their own file.
func Default() *ServiceConfig {
	return &ServiceConfig{
		Capacities: StaticCapacitiesConfig{NC: 1.0, C: 20.0, QTrigger: 1.5, QSource: 4.0},
		Storage:    StorageConfig{Backend: "memory"},
		Logging:    LoggingConfig{Level: "info", Format: "json"},
		Metrics:    MetricsConfig{ListenAddress: ":9090"},
		CircuitBreaker: CircuitBreakerConfig{
			ConsecutiveFailureThreshold: 5,
			OpenStateTimeout:            30 * time.Second,
		},
	}
}

// DefaultStaticCapacities is the runtime-typed form of Default's
// capacities, for callers that want one without going through YAML.
func DefaultStaticCapacities() filterid.StaticCapacities {
	return Default().Capacities.ToStaticCapacities()
}
