// Command pdsdemo wires a ServiceConfig into a running private data
// service core: it selects the configured storage backend, starts the
// metrics listener, records one demo event, and computes one
// attribution report against them before serving metrics until
// interrupted.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/columbia/pdslib-firefox/db/migrations"
	"github.com/columbia/pdslib-firefox/internal/eventstore"
	eventsmem "github.com/columbia/pdslib-firefox/internal/eventstore/memstore"
	"github.com/columbia/pdslib-firefox/internal/eventstore/pgevents"
	"github.com/columbia/pdslib-firefox/internal/filterstore"
	filtersmem "github.com/columbia/pdslib-firefox/internal/filterstore/memstore"
	"github.com/columbia/pdslib-firefox/internal/filterstore/pgfilter"
	"github.com/columbia/pdslib-firefox/internal/filterstore/rediscache"
	"github.com/columbia/pdslib-firefox/internal/histogram"
	"github.com/columbia/pdslib-firefox/internal/histogram/simple"
	"github.com/columbia/pdslib-firefox/internal/pds"
	"github.com/columbia/pdslib-firefox/internal/resilience"
	"github.com/columbia/pdslib-firefox/pkg/config"
)

func main() {
	configPath := flag.String("config", "", "path to a ServiceConfig YAML file; empty uses built-in defaults")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "pdsdemo: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pdsdemo: building logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	breaker := resilience.NewManager(resilience.Config{
		ConsecutiveFailureThreshold: cfg.CircuitBreaker.ConsecutiveFailureThreshold,
		OpenStateTimeout:            cfg.CircuitBreaker.OpenStateTimeout,
	}, logger)

	filters, events, err := buildStorage(cfg, breaker)
	if err != nil {
		logger.Fatal("building storage backends", zap.Error(err))
	}

	core := pds.NewCore(filters, events, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runDemoFlow(ctx, logger, core)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: cfg.Metrics.ListenAddress, Handler: mux}

	go func() {
		logger.Info("metrics listener starting", zap.String("address", cfg.Metrics.ListenAddress))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics listener stopped", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}

func buildStorage(cfg *config.ServiceConfig, breaker *resilience.Manager) (filterstore.Store, eventstore.Store, error) {
	capacities := cfg.Capacities.ToStaticCapacities()

	switch cfg.Storage.Backend {
	case "postgres":
		db, err := sql.Open("pgx", cfg.Storage.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("opening postgres: %w", err)
		}
		if err := migrations.Up(db); err != nil {
			return nil, nil, fmt.Errorf("applying migrations: %w", err)
		}
		sqlxDB := sqlx.NewDb(db, "pgx")
		return pgfilter.New(sqlxDB, capacities, breaker), pgevents.New(sqlxDB, breaker), nil

	case "redis":
		opts, err := redis.ParseURL(cfg.Storage.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("parsing redis dsn: %w", err)
		}
		client := redis.NewClient(opts)
		// Events have no Redis reference backend: a per-epoch append-only
		// log maps poorly onto single-key values, so the in-memory backend
		// is paired with rediscache here.
		return rediscache.New(client, capacities, breaker, "pds:filters:"), eventsmem.New(), nil

	default:
		return filtersmem.New(capacities), eventsmem.New(), nil
	}
}

// runDemoFlow registers one illustrative event and computes one
// report, logging the outcome — a stand-in for whatever request/response
// transport a real host would place in front of the core.
func runDemoFlow(ctx context.Context, logger *zap.Logger, core *pds.Core) {
	const (
		sourceURI  = "https://advertiser.example"
		triggerURI = "https://publisher.example/checkout"
		querierURI = "https://adtech.example/reports"
	)

	_ = core.RegisterEvent(ctx, eventstore.Event{
		ID:             1,
		EpochID:        1,
		HistogramIndex: 0,
		URIs: eventstore.EventUris{
			SourceURI:   sourceURI,
			TriggerURIs: []string{triggerURI},
			QuerierURIs: []string{querierURI},
		},
	})

	req, err := simple.New(simple.Config{
		StartEpoch:              1,
		EndEpoch:                1,
		ReportGlobalSensitivity: 1.0,
		QueryGlobalSensitivity:  1.0,
		RequestedEpsilon:        1.0,
	}, simple.RelevantEventSelector{
		ReportRequestURIs: histogram.ReportRequestUris{
			TriggerURI:  triggerURI,
			SourceURIs:  []string{sourceURI},
			QuerierURIs: []string{querierURI},
		},
	})
	if err != nil {
		logger.Error("building demo request", zap.Error(err))
		return
	}

	reports, err := core.ComputeReport(ctx, req)
	if err != nil {
		logger.Error("computing demo report", zap.Error(err))
		return
	}
	logger.Info("demo report computed", zap.Int("destination_count", len(reports)))
}
