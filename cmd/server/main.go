package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/annexsearch/vecann/pkg/adminapi/rest"
	"github.com/annexsearch/vecann/pkg/adminapi/rest/middleware"
	"github.com/annexsearch/vecann/pkg/config"
	"github.com/annexsearch/vecann/pkg/observability"
	"github.com/annexsearch/vecann/pkg/registry"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	var (
		showVersion = flag.Bool("version", false, "show version and exit")
		showHelp    = flag.Bool("help", false, "show help and exit")
		host        = flag.String("host", "", "admin API host (overrides config/env)")
		port        = flag.Int("port", 0, "admin API port (overrides config/env)")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("vecann admin server v%s (commit: %s)\n", version, commit)
		os.Exit(0)
	}
	if *showHelp {
		showUsage()
		os.Exit(0)
	}

	printBanner()

	cfg := config.LoadFromEnv()
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger := observability.NewDefaultLogger()
	metrics := observability.NewMetrics()

	reg := registry.New(cfg.ToRegistryConfig(), nil)
	defer reg.Close()

	printStartupInfo(cfg)

	restConfig := rest.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
		Auth: middleware.AuthConfig{
			Enabled: false,
		},
		RateLimit: middleware.RateLimitConfig{
			Enabled:        true,
			RequestsPerSec: 50,
			Burst:          100,
			PerIP:          true,
		},
	}

	server := rest.NewServer(restConfig, reg, metrics, logger)

	errChan := make(chan error, 1)
	go func() {
		log.Println("starting admin API server...")
		if err := server.Start(); err != nil {
			errChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	log.Println("server is ready. Press Ctrl+C to stop.")
	select {
	case sig := <-sigChan:
		log.Printf("received signal: %v", sig)
	case err := <-errChan:
		log.Printf("server error: %v", err)
	}

	log.Println("shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		log.Printf("error stopping admin API server: %v", err)
	}

	log.Println("server stopped. goodbye!")
}

func printBanner() {
	banner := `
 __   __ ___ ___   _   _  _ _  _
 \ \ / /| __/ __| /_\ | \| | \| |
  \ V / | _| (__ / _ \| .  | .  |
   \_/  |___\___/_/ \_\_|\_|_|\_|

 vector search extension for embedded SQL engines
`
	fmt.Println(banner)
	fmt.Printf("version: %s (commit: %s)\n\n", version, commit)
}

func printStartupInfo(cfg *config.Config) {
	fmt.Println("\n== admin API ==")
	fmt.Printf("address:            %s\n", cfg.Server.Address())
	fmt.Printf("tls enabled:        %v\n", cfg.Server.EnableTLS)
	fmt.Println("\n== registry ==")
	fmt.Printf("max memory (mb):    %d\n", cfg.Registry.MaxMemoryMB)
	fmt.Printf("lazy loading:       %v\n", cfg.Registry.LazyIndexLoading)
	fmt.Printf("evict on pressure:  %v\n", cfg.Registry.EvictOnMemoryPressure)
	fmt.Printf("max dimensions:     %d\n", cfg.Registry.MaxDimensions)
	fmt.Printf("default index kind: %s\n", cfg.Registry.DefaultIndexKind)
	fmt.Printf("default metric:     %s\n", cfg.Registry.DefaultMetric)
	fmt.Println()
}

func showUsage() {
	fmt.Println("vecann admin server - REST admin surface over a vector index registry")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  vecann-server [options]")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -help             show this help message")
	fmt.Println("  -version          show version information")
	fmt.Println("  -host HOST        admin API host (default: 0.0.0.0)")
	fmt.Println("  -port PORT        admin API port (default: 8089)")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  VECANN_HOST                      admin API host")
	fmt.Println("  VECANN_PORT                      admin API port")
	fmt.Println("  VECANN_REQUEST_TIMEOUT           request timeout (e.g. 30s)")
	fmt.Println("  VECANN_ENABLE_TLS                enable TLS (true/false)")
	fmt.Println("  VECANN_TLS_CERT                   TLS certificate file")
	fmt.Println("  VECANN_TLS_KEY                    TLS key file")
	fmt.Println("  VECANN_MAX_MEMORY_MB             registry memory budget, in MB")
	fmt.Println("  VECANN_LAZY_INDEX_LOADING         defer index materialization until first use")
	fmt.Println("  VECANN_EVICT_ON_MEMORY_PRESSURE   evict LRU indexes under memory pressure")
	fmt.Println("  VECANN_MAX_DIMENSIONS             maximum vector dimension admitted")
	fmt.Println("  VECANN_DEFAULT_INDEX_KIND         hnsw or flat")
	fmt.Println("  VECANN_DEFAULT_METRIC             cosine, l2, dot, or hamming")
	fmt.Println("  VECANN_DEFAULT_QUANTIZATION       none, scalar8, or binary")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  # start with default configuration")
	fmt.Println("  vecann-server")
	fmt.Println()
	fmt.Println("  # start on a custom port")
	fmt.Println("  vecann-server -port 9090")
	fmt.Println()
	fmt.Println("  # start with environment variables")
	fmt.Println("  VECANN_PORT=9090 VECANN_DEFAULT_INDEX_KIND=flat vecann-server")
	fmt.Println()
}
