package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/annexsearch/vecann/pkg/codec"
	"github.com/annexsearch/vecann/pkg/kernel"
	"github.com/annexsearch/vecann/pkg/registry"
)

// Config holds the extension's standalone configuration: the admin REST
// surface and the index registry's defaults (spec.md §6.1 registry
// configuration options). A host embedding vecann directly constructs a
// registry.Config itself; this package exists for the admin server binary
// and CLI, which have nothing else to read settings from.
type Config struct {
	Server   ServerConfig
	Registry RegistryConfig
}

// ServerConfig holds the admin REST API's listener configuration.
type ServerConfig struct {
	Host            string        // Listen host (default: "0.0.0.0")
	Port            int           // Listen port (default: 8089)
	RequestTimeout  time.Duration // Per-request timeout
	ShutdownTimeout time.Duration // Graceful shutdown timeout
	EnableTLS       bool          // Enable TLS
	CertFile        string        // TLS certificate file
	KeyFile         string        // TLS key file
}

// RegistryConfig mirrors registry.Config, expressed in env/flag-friendly
// primitive types; ToRegistryConfig converts it into the form the
// registry package actually consumes.
type RegistryConfig struct {
	MaxMemoryMB           int    // Registry-wide memory budget
	LazyIndexLoading      bool   // Load index bodies on first access, not at startup
	EvictOnMemoryPressure bool   // Allow the LRU to evict Ready indexes under pressure
	MaxDimensions         int    // Reject CREATE VECTOR INDEX above this dimension
	DefaultIndexKind      string // "hnsw" or "flat"
	DefaultMetric         string // "cosine", "l2", "dot", "hamming"
	DefaultQuantization   string // "none", "scalar8", "binary"
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8089,
			RequestTimeout:  30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			EnableTLS:       false,
		},
		Registry: RegistryConfig{
			MaxMemoryMB:           256,
			LazyIndexLoading:      true,
			EvictOnMemoryPressure: false,
			MaxDimensions:         4096,
			DefaultIndexKind:      "hnsw",
			DefaultMetric:         "cosine",
			DefaultQuantization:   "none",
		},
	}
}

// LoadFromEnv loads configuration from VECANN_* environment variables,
// falling back to Default() for anything unset or unparsable.
func LoadFromEnv() *Config {
	cfg := Default()

	if host := os.Getenv("VECANN_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if port := os.Getenv("VECANN_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if timeout := os.Getenv("VECANN_REQUEST_TIMEOUT"); timeout != "" {
		if t, err := time.ParseDuration(timeout); err == nil {
			cfg.Server.RequestTimeout = t
		}
	}
	if enableTLS := os.Getenv("VECANN_ENABLE_TLS"); enableTLS == "true" {
		cfg.Server.EnableTLS = true
		cfg.Server.CertFile = os.Getenv("VECANN_TLS_CERT")
		cfg.Server.KeyFile = os.Getenv("VECANN_TLS_KEY")
	}

	if maxMem := os.Getenv("VECANN_MAX_MEMORY_MB"); maxMem != "" {
		if v, err := strconv.Atoi(maxMem); err == nil {
			cfg.Registry.MaxMemoryMB = v
		}
	}
	if lazy := os.Getenv("VECANN_LAZY_INDEX_LOADING"); lazy != "" {
		cfg.Registry.LazyIndexLoading = lazy == "true"
	}
	if evict := os.Getenv("VECANN_EVICT_ON_MEMORY_PRESSURE"); evict != "" {
		cfg.Registry.EvictOnMemoryPressure = evict == "true"
	}
	if maxDims := os.Getenv("VECANN_MAX_DIMENSIONS"); maxDims != "" {
		if v, err := strconv.Atoi(maxDims); err == nil {
			cfg.Registry.MaxDimensions = v
		}
	}
	if kind := os.Getenv("VECANN_DEFAULT_INDEX_KIND"); kind != "" {
		cfg.Registry.DefaultIndexKind = kind
	}
	if metric := os.Getenv("VECANN_DEFAULT_METRIC"); metric != "" {
		cfg.Registry.DefaultMetric = metric
	}
	if quant := os.Getenv("VECANN_DEFAULT_QUANTIZATION"); quant != "" {
		cfg.Registry.DefaultQuantization = quant
	}

	return cfg
}

// Validate checks the configuration for internally inconsistent values.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.EnableTLS {
		if c.Server.CertFile == "" || c.Server.KeyFile == "" {
			return fmt.Errorf("TLS enabled but cert or key file not specified")
		}
	}

	if c.Registry.MaxMemoryMB < 1 {
		return fmt.Errorf("invalid max memory: %d MB (must be > 0)", c.Registry.MaxMemoryMB)
	}
	if c.Registry.MaxDimensions < 1 {
		return fmt.Errorf("invalid max dimensions: %d (must be > 0)", c.Registry.MaxDimensions)
	}
	if _, err := parseIndexKind(c.Registry.DefaultIndexKind); err != nil {
		return err
	}
	if _, err := parseMetric(c.Registry.DefaultMetric); err != nil {
		return err
	}
	if _, err := parseQuantization(c.Registry.DefaultQuantization); err != nil {
		return err
	}

	return nil
}

// Address returns the server address (host:port).
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func parseIndexKind(s string) (registry.Kind, error) {
	switch s {
	case "hnsw":
		return registry.HNSW, nil
	case "flat":
		return registry.Flat, nil
	default:
		return 0, fmt.Errorf("invalid default index kind: %q", s)
	}
}

func parseMetric(s string) (kernel.Metric, error) {
	switch s {
	case "cosine":
		return kernel.Cosine, nil
	case "l2":
		return kernel.L2, nil
	case "dot":
		return kernel.Dot, nil
	case "hamming":
		return kernel.Hamming, nil
	default:
		return 0, fmt.Errorf("invalid default metric: %q", s)
	}
}

func parseQuantization(s string) (codec.Quantization, error) {
	switch s {
	case "none":
		return codec.None, nil
	case "scalar8":
		return codec.Scalar8, nil
	case "binary":
		return codec.Binary, nil
	default:
		return 0, fmt.Errorf("invalid default quantization: %q", s)
	}
}

// ToRegistryConfig converts the env/flag-friendly RegistryConfig into
// registry.Config. Panics on an invalid enum value; callers should run
// Validate first.
func (c *Config) ToRegistryConfig() registry.Config {
	kind, err := parseIndexKind(c.Registry.DefaultIndexKind)
	if err != nil {
		panic(err)
	}
	metric, err := parseMetric(c.Registry.DefaultMetric)
	if err != nil {
		panic(err)
	}
	quant, err := parseQuantization(c.Registry.DefaultQuantization)
	if err != nil {
		panic(err)
	}
	return registry.Config{
		MaxMemoryMB:           uint32(c.Registry.MaxMemoryMB),
		LazyIndexLoading:      c.Registry.LazyIndexLoading,
		EvictOnMemoryPressure: c.Registry.EvictOnMemoryPressure,
		MaxDimensions:         uint32(c.Registry.MaxDimensions),
		DefaultIndexKind:      kind,
		DefaultMetric:         metric,
		DefaultQuantization:   quant,
	}
}
