package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/columbia/pdslib-firefox/internal/pdserrors"
	"github.com/columbia/pdslib-firefox/pkg/config"
)

func TestConfig(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Config Suite")
}

var _ = Describe("Load", func() {
	var (
		tempDir    string
		configFile string
	)

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "pds-config-test")
		Expect(err).NotTo(HaveOccurred())
		configFile = filepath.Join(tempDir, "config.yaml")
	})

	AfterEach(func() {
		os.RemoveAll(tempDir)
	})

	Context("when the file exists with valid content", func() {
		BeforeEach(func() {
			valid := `
capacities:
  nc: 1.0
  c: 20.0
  qtrigger: 1.5
  qsource: 4.0

storage:
  backend: postgres
  dsn: "postgres://localhost/pds"
  timeout: 5s

logging:
  level: debug
  format: console

metrics:
  listen_address: ":9091"

circuit_breaker:
  consecutive_failure_threshold: 3
  open_state_timeout: 10s
`
			Expect(os.WriteFile(configFile, []byte(valid), 0644)).To(Succeed())
		})

		It("loads and validates the config", func() {
			cfg, err := config.Load(configFile)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Storage.Backend).To(Equal("postgres"))
			Expect(cfg.Storage.Timeout).To(Equal(5 * time.Second))
			Expect(cfg.CircuitBreaker.ConsecutiveFailureThreshold).To(Equal(uint32(3)))
			Expect(cfg.Capacities.ToStaticCapacities().C).To(BeNumerically("==", 20.0))
		})
	})

	Context("when the file is missing", func() {
		It("returns a misconfiguration error", func() {
			_, err := config.Load(filepath.Join(tempDir, "nonexistent.yaml"))
			Expect(err).To(HaveOccurred())
			Expect(pdserrors.Is(err, pdserrors.KindMisconfiguration)).To(BeTrue())
		})
	})

	Context("when the YAML is malformed", func() {
		BeforeEach(func() {
			Expect(os.WriteFile(configFile, []byte("not: [valid"), 0644)).To(Succeed())
		})

		It("returns a misconfiguration error", func() {
			_, err := config.Load(configFile)
			Expect(err).To(HaveOccurred())
			Expect(pdserrors.Is(err, pdserrors.KindMisconfiguration)).To(BeTrue())
		})
	})

	Context("when a required field fails validation", func() {
		BeforeEach(func() {
			invalid := `
capacities:
  nc: 1.0
  c: 20.0
  qtrigger: 1.5
  qsource: 4.0

storage:
  backend: not-a-real-backend
`
			Expect(os.WriteFile(configFile, []byte(invalid), 0644)).To(Succeed())
		})

		It("returns a misconfiguration error", func() {
			_, err := config.Load(configFile)
			Expect(err).To(HaveOccurred())
			Expect(pdserrors.Is(err, pdserrors.KindMisconfiguration)).To(BeTrue())
		})
	})
})

var _ = Describe("Default", func() {
	It("uses in-memory storage and positive default capacities", func() {
		cfg := config.Default()
		Expect(cfg.Storage.Backend).To(Equal("memory"))
		Expect(cfg.Capacities.NC).To(BeNumerically(">", 0))
	})

	It("DefaultStaticCapacities mirrors Default's capacities", func() {
		capacities := config.DefaultStaticCapacities()
		Expect(capacities.NC).To(BeNumerically("==", config.Default().Capacities.NC))
	})
})
