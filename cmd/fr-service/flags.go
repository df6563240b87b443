package main

import (
	"flag"
	"fmt"
	"os"
	"slices"
	"strconv"
	"time"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath      string
	Overlays        []string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	ShowVersion     bool
	Validate        bool
}

type stringList []string

func (l *stringList) String() string { return fmt.Sprint(*l) }

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func parseFlags(args []string) (*CLIConfig, error) {
	cfg := &CLIConfig{}
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)

	fs.StringVar(&cfg.ConfigPath, "config",
		getEnv("FR_SERVICE_CONFIG", "conf/fr-service.json"),
		"Path to configuration file (env: FR_SERVICE_CONFIG)")
	fs.StringVar(&cfg.ConfigPath, "c",
		getEnv("FR_SERVICE_CONFIG", "conf/fr-service.json"),
		"Path to configuration file (env: FR_SERVICE_CONFIG)")

	var overlays stringList
	fs.Var(&overlays, "overlay", "Additional configuration layer, may be repeated")

	fs.StringVar(&cfg.LogLevel, "log-level",
		getEnv("FR_SERVICE_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: FR_SERVICE_LOG_LEVEL)")

	fs.StringVar(&cfg.LogFormat, "log-format",
		getEnv("FR_SERVICE_LOG_FORMAT", "json"),
		"Log format: json, text (env: FR_SERVICE_LOG_FORMAT)")

	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("FR_SERVICE_SHUTDOWN_TIMEOUT", 30*time.Second),
		"Graceful shutdown timeout (env: FR_SERVICE_SHUTDOWN_TIMEOUT)")

	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	fs.BoolVar(&cfg.Validate, "validate", getEnvBool("FR_SERVICE_VALIDATE", false),
		"Load the configuration, build every task and exit")

	fs.Usage = func() { printHelp(fs) }

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	cfg.Overlays = overlays
	return cfg, nil
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion {
		return nil
	}
	if _, err := os.Stat(cfg.ConfigPath); err != nil {
		return fmt.Errorf("config file not found: %s", cfg.ConfigPath)
	}
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}
	if !slices.Contains([]string{"json", "text"}, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}
	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid shutdown timeout: %v", cfg.ShutdownTimeout)
	}
	return nil
}

func printHelp(fs *flag.FlagSet) {
	_, _ = fmt.Fprintf(os.Stderr, `%s - point evaluation tasks over NATS

Usage: %s [options]

Options:
`, appName, appName)
	fs.PrintDefaults()
	_, _ = fmt.Fprintf(os.Stderr, `
Examples:
  # Run with a base file and a site overlay
  %s --config=conf/fr-service.json --overlay=conf/site.json

  # Check configuration and task documents without connecting
  %s --validate --log-format=text

Environment overrides use the FR_SERVICE_ prefix, for example
FR_SERVICE_NATS_URLS, FR_SERVICE_METRICS_PORT and FR_SERVICE_POINTS.

Version: %s
Build: %s
`, appName, appName, Version, BuildTime)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
