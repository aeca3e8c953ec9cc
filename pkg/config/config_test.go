package config

import (
	"os"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg == nil {
		t.Fatal("Default() returned nil")
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Expected host 0.0.0.0, got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 8089 {
		t.Errorf("Expected port 8089, got %d", cfg.Server.Port)
	}
	if cfg.Server.RequestTimeout != 30*time.Second {
		t.Errorf("Expected request timeout 30s, got %v", cfg.Server.RequestTimeout)
	}
	if cfg.Server.ShutdownTimeout != 10*time.Second {
		t.Errorf("Expected shutdown timeout 10s, got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Server.EnableTLS {
		t.Error("Expected TLS disabled by default")
	}

	if cfg.Registry.MaxMemoryMB != 256 {
		t.Errorf("Expected max memory 256, got %d", cfg.Registry.MaxMemoryMB)
	}
	if !cfg.Registry.LazyIndexLoading {
		t.Error("Expected lazy index loading enabled by default")
	}
	if cfg.Registry.EvictOnMemoryPressure {
		t.Error("Expected eviction-on-pressure disabled by default")
	}
	if cfg.Registry.MaxDimensions != 4096 {
		t.Errorf("Expected max dimensions 4096, got %d", cfg.Registry.MaxDimensions)
	}
	if cfg.Registry.DefaultIndexKind != "hnsw" {
		t.Errorf("Expected default index kind hnsw, got %s", cfg.Registry.DefaultIndexKind)
	}
	if cfg.Registry.DefaultMetric != "cosine" {
		t.Errorf("Expected default metric cosine, got %s", cfg.Registry.DefaultMetric)
	}
	if cfg.Registry.DefaultQuantization != "none" {
		t.Errorf("Expected default quantization none, got %s", cfg.Registry.DefaultQuantization)
	}
}

var envVars = []string{
	"VECANN_HOST", "VECANN_PORT", "VECANN_REQUEST_TIMEOUT", "VECANN_ENABLE_TLS",
	"VECANN_MAX_MEMORY_MB", "VECANN_LAZY_INDEX_LOADING", "VECANN_EVICT_ON_MEMORY_PRESSURE",
	"VECANN_MAX_DIMENSIONS", "VECANN_DEFAULT_INDEX_KIND", "VECANN_DEFAULT_METRIC",
	"VECANN_DEFAULT_QUANTIZATION",
}

func withSavedEnv(t *testing.T, fn func()) {
	t.Helper()
	original := make(map[string]string)
	for _, key := range envVars {
		original[key] = os.Getenv(key)
	}
	defer func() {
		for key, value := range original {
			if value == "" {
				os.Unsetenv(key)
			} else {
				os.Setenv(key, value)
			}
		}
	}()
	fn()
}

func TestLoadFromEnv(t *testing.T) {
	withSavedEnv(t, func() {
		os.Setenv("VECANN_HOST", "127.0.0.1")
		os.Setenv("VECANN_PORT", "9000")
		os.Setenv("VECANN_REQUEST_TIMEOUT", "60s")
		os.Setenv("VECANN_ENABLE_TLS", "true")
		os.Setenv("VECANN_TLS_CERT", "cert.pem")
		os.Setenv("VECANN_TLS_KEY", "key.pem")
		os.Setenv("VECANN_MAX_MEMORY_MB", "512")
		os.Setenv("VECANN_LAZY_INDEX_LOADING", "false")
		os.Setenv("VECANN_EVICT_ON_MEMORY_PRESSURE", "true")
		os.Setenv("VECANN_MAX_DIMENSIONS", "1536")
		os.Setenv("VECANN_DEFAULT_INDEX_KIND", "flat")
		os.Setenv("VECANN_DEFAULT_METRIC", "l2")
		os.Setenv("VECANN_DEFAULT_QUANTIZATION", "scalar8")

		cfg := LoadFromEnv()

		if cfg.Server.Host != "127.0.0.1" {
			t.Errorf("Expected host 127.0.0.1, got %s", cfg.Server.Host)
		}
		if cfg.Server.Port != 9000 {
			t.Errorf("Expected port 9000, got %d", cfg.Server.Port)
		}
		if cfg.Server.RequestTimeout != 60*time.Second {
			t.Errorf("Expected request timeout 60s, got %v", cfg.Server.RequestTimeout)
		}
		if !cfg.Server.EnableTLS {
			t.Error("Expected TLS enabled")
		}
		if cfg.Server.CertFile != "cert.pem" || cfg.Server.KeyFile != "key.pem" {
			t.Errorf("Expected TLS cert/key to be set, got %q/%q", cfg.Server.CertFile, cfg.Server.KeyFile)
		}

		if cfg.Registry.MaxMemoryMB != 512 {
			t.Errorf("Expected max memory 512, got %d", cfg.Registry.MaxMemoryMB)
		}
		if cfg.Registry.LazyIndexLoading {
			t.Error("Expected lazy index loading disabled")
		}
		if !cfg.Registry.EvictOnMemoryPressure {
			t.Error("Expected eviction-on-pressure enabled")
		}
		if cfg.Registry.MaxDimensions != 1536 {
			t.Errorf("Expected max dimensions 1536, got %d", cfg.Registry.MaxDimensions)
		}
		if cfg.Registry.DefaultIndexKind != "flat" {
			t.Errorf("Expected default index kind flat, got %s", cfg.Registry.DefaultIndexKind)
		}
		if cfg.Registry.DefaultMetric != "l2" {
			t.Errorf("Expected default metric l2, got %s", cfg.Registry.DefaultMetric)
		}
		if cfg.Registry.DefaultQuantization != "scalar8" {
			t.Errorf("Expected default quantization scalar8, got %s", cfg.Registry.DefaultQuantization)
		}
	})
}

func TestLoadFromEnv_InvalidValues(t *testing.T) {
	withSavedEnv(t, func() {
		os.Setenv("VECANN_PORT", "not-a-number")
		cfg := LoadFromEnv()
		if cfg.Server.Port != 8089 {
			t.Errorf("Expected default port 8089 for invalid value, got %d", cfg.Server.Port)
		}
	})
}

func TestLoadFromEnv_DefaultsWhenNotSet(t *testing.T) {
	withSavedEnv(t, func() {
		for _, key := range envVars {
			os.Unsetenv(key)
		}

		cfg := LoadFromEnv()
		defaults := Default()

		if cfg.Server.Host != defaults.Server.Host {
			t.Errorf("Expected default host, got %s", cfg.Server.Host)
		}
		if cfg.Server.Port != defaults.Server.Port {
			t.Errorf("Expected default port, got %d", cfg.Server.Port)
		}
		if cfg.Registry.MaxMemoryMB != defaults.Registry.MaxMemoryMB {
			t.Errorf("Expected default max memory, got %d", cfg.Registry.MaxMemoryMB)
		}
		if cfg.Registry.DefaultIndexKind != defaults.Registry.DefaultIndexKind {
			t.Errorf("Expected default index kind, got %s", cfg.Registry.DefaultIndexKind)
		}
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{
			name:    "Valid default config",
			config:  Default(),
			wantErr: false,
		},
		{
			name: "Invalid port (too low)",
			config: &Config{
				Server:   ServerConfig{Port: 0},
				Registry: Default().Registry,
			},
			wantErr: true,
		},
		{
			name: "Invalid port (too high)",
			config: &Config{
				Server:   ServerConfig{Port: 70000},
				Registry: Default().Registry,
			},
			wantErr: true,
		},
		{
			name: "Invalid max memory",
			config: &Config{
				Server: ServerConfig{Port: 8089},
				Registry: RegistryConfig{
					MaxMemoryMB: 0, MaxDimensions: 128,
					DefaultIndexKind: "hnsw", DefaultMetric: "cosine", DefaultQuantization: "none",
				},
			},
			wantErr: true,
		},
		{
			name: "Invalid dimensions",
			config: &Config{
				Server: ServerConfig{Port: 8089},
				Registry: RegistryConfig{
					MaxMemoryMB: 256, MaxDimensions: 0,
					DefaultIndexKind: "hnsw", DefaultMetric: "cosine", DefaultQuantization: "none",
				},
			},
			wantErr: true,
		},
		{
			name: "Invalid default index kind",
			config: &Config{
				Server: ServerConfig{Port: 8089},
				Registry: RegistryConfig{
					MaxMemoryMB: 256, MaxDimensions: 128,
					DefaultIndexKind: "bogus", DefaultMetric: "cosine", DefaultQuantization: "none",
				},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestServerConfig_Address(t *testing.T) {
	cfg := ServerConfig{
		Host: "localhost",
		Port: 8080,
	}

	addr := cfg.Address()
	expected := "localhost:8080"

	if addr != expected {
		t.Errorf("Expected address %s, got %s", expected, addr)
	}

	defaultCfg := Default()
	addr = defaultCfg.Server.Address()
	expected = "0.0.0.0:8089"

	if addr != expected {
		t.Errorf("Expected default address %s, got %s", expected, addr)
	}
}

func TestToRegistryConfig(t *testing.T) {
	cfg := Default()
	rc := cfg.ToRegistryConfig()
	if rc.MaxMemoryMB != uint32(cfg.Registry.MaxMemoryMB) {
		t.Errorf("expected MaxMemoryMB %d, got %d", cfg.Registry.MaxMemoryMB, rc.MaxMemoryMB)
	}
	if rc.LazyIndexLoading != cfg.Registry.LazyIndexLoading {
		t.Error("expected LazyIndexLoading to carry over")
	}
}
