// Package main is the entry point for authgated, the per-request
// authentication core's standalone process: it loads configuration,
// wires C1-C7 and their supporting infrastructure, and serves metrics
// until asked to stop. Request framing and proxying are the surrounding
// gateway's responsibility; this process exposes the pipeline as a
// library surface (see internal/authpipeline) plus the background
// services (issuer watch, metrics) a long-running instance needs.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/haloedge/authcore/internal/gwconfig"
	"github.com/haloedge/authcore/internal/observability"
)

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

type cliFlags struct {
	configPath  string
	showVersion bool
}

func main() {
	flags := parseFlags()

	if flags.showVersion {
		printVersion()
		return
	}

	cfg := loadAndValidateConfig(flags.configPath)

	logger := initLogger(cfg)
	defer func() { _ = logger.Sync() }()

	app := initApplication(cfg, logger)

	runService(app, logger)
}

func parseFlags() cliFlags {
	configPath := flag.String("config", getEnvOrDefault("AUTHGATED_CONFIG_PATH", "configs/authgated.yaml"),
		"Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	return cliFlags{configPath: *configPath, showVersion: *showVersion}
}

func printVersion() {
	fmt.Printf("authgated version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

func initLogger(cfg *gwconfig.ServiceConfig) observability.Logger {
	logger, err := observability.NewLogger(observability.Config{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
		Output: cfg.Observability.Logging.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	observability.SetGlobalLogger(logger)
	return logger
}

func loadAndValidateConfig(configPath string) *gwconfig.ServiceConfig {
	cfg, err := gwconfig.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// runService starts the background services and blocks until shutdown.
func runService(app *application, logger observability.Logger) {
	logger.Info("starting authgated",
		observability.String("version", version),
		observability.String("service_name", app.cfg.ServiceName),
		observability.Int("issuers", len(app.cfg.Issuers)),
		observability.Int("methods", len(app.cfg.Methods)),
	)

	startMetricsServerIfEnabled(app, logger)
	waitForShutdown(app, logger)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
