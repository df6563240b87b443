// Package main is the fr-service entry point: it loads the configuration,
// connects to NATS and runs one evaluation task per enabled task entry.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"golang.org/x/sync/errgroup"

	"github.com/c360/fr-service/component"
	"github.com/c360/fr-service/config"
	"github.com/c360/fr-service/fn"
	"github.com/c360/fr-service/fnconfig"
	"github.com/c360/fr-service/health"
	"github.com/c360/fr-service/metric"
	"github.com/c360/fr-service/natsclient"
	"github.com/c360/fr-service/pkg/retry"
	"github.com/c360/fr-service/point"
	"github.com/c360/fr-service/processor/task"
)

// Build information, set by ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const appName = "fr-service"

// Service status values recorded on the core service_status gauge.
const (
	statusStarting = 1
	statusRunning  = 2
	statusStopping = 3
	statusFailed   = 4
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "PANIC: %v\n%s\n", r, debug.Stack())
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cliCfg, logger, shouldExit, err := initializeCLI()
	if err != nil || shouldExit {
		return err
	}

	cfg, err := loadConfig(cliCfg, logger)
	if err != nil {
		return err
	}

	catalog, err := loadCatalog(cfg, logger)
	if err != nil {
		return err
	}

	if cliCfg.Validate {
		return validateTasks(cfg, catalog, logger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := metric.NewMetricsRegistry()
	registry.CoreMetrics().RecordServiceStatus(appName, statusStarting)

	client, err := connectToNATS(ctx, cfg, registry, logger)
	if err != nil {
		registry.CoreMetrics().RecordServiceStatus(appName, statusFailed)
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cliCfg.ShutdownTimeout)
		defer cancel()
		if err := client.Close(closeCtx); err != nil {
			logger.Warn("NATS close failed", "error", err)
		}
	}()

	retain, err := setupRetainStore(ctx, cfg, client, logger)
	if err != nil {
		registry.CoreMetrics().RecordServiceStatus(appName, statusFailed)
		return err
	}

	deps := component.Dependencies{
		NATSClient:      client,
		MetricsRegistry: registry,
		Logger:          logger,
		Platform: component.PlatformMeta{
			Org:         cfg.Platform.Org,
			Platform:    cfg.Platform.ID,
			Environment: cfg.Platform.Environment,
		},
	}

	tasks, err := startTasks(ctx, cfg, deps, catalog, retain)
	if err != nil {
		registry.CoreMetrics().RecordServiceStatus(appName, statusFailed)
		return err
	}

	monitor := health.NewMonitor()
	monitor.Register("nats", func() health.Status {
		return natsHealth(client.GetStatus())
	})
	for _, t := range tasks {
		name := "task/" + t.Name()
		monitor.Register(name, func() health.Status {
			return health.FromComponentHealth(name, t.Health())
		})
	}

	registry.CoreMetrics().RecordServiceStatus(appName, statusRunning)
	logger.Info("fr-service running", "tasks", len(tasks), "config", cfg.String())

	g, gctx := errgroup.WithContext(ctx)

	if kv, ok := retain.(*task.KVRetainStore); ok {
		g.Go(func() error { return kv.Run(gctx) })
	}

	if cfg.Metrics.Enabled {
		server := metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, registry).
			WithHealth(func() bool { return !monitor.Check(appName).IsUnhealthy() })
		g.Go(func() error {
			logger.Info("metrics server listening", "address", server.Address())
			return server.Start()
		})
		g.Go(func() error {
			<-gctx.Done()
			stopCtx, cancel := context.WithTimeout(context.Background(), cliCfg.ShutdownTimeout)
			defer cancel()
			return server.Stop(stopCtx)
		})
	}

	for _, t := range tasks {
		g.Go(func() error {
			watchTask(gctx, t, logger)
			return t.Stop(cliCfg.ShutdownTimeout)
		})
	}

	err = g.Wait()
	registry.CoreMetrics().RecordServiceStatus(appName, statusStopping)
	if err != nil {
		logger.Error("fr-service stopped with error", "error", err)
		return err
	}
	logger.Info("fr-service stopped")
	return nil
}

func initializeCLI() (*CLIConfig, *slog.Logger, bool, error) {
	cliCfg, err := parseFlags(os.Args[1:])
	if err != nil {
		return nil, nil, false, err
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s %s (built %s)\n", appName, Version, BuildTime)
		return cliCfg, nil, true, nil
	}

	if err := validateFlags(cliCfg); err != nil {
		return nil, nil, false, fmt.Errorf("invalid flags: %w", err)
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)
	return cliCfg, logger, false, nil
}

func loadConfig(cliCfg *CLIConfig, logger *slog.Logger) (*config.Config, error) {
	loader := config.NewLoader()
	loader.AddLayer(cliCfg.ConfigPath)
	for _, overlay := range cliCfg.Overlays {
		loader.AddLayer(overlay)
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger.Info("configuration loaded",
		"path", cliCfg.ConfigPath,
		"overlays", len(cliCfg.Overlays),
		"tasks", len(cfg.EnabledTasks()))
	return cfg, nil
}

func loadCatalog(cfg *config.Config, logger *slog.Logger) (*point.Catalog, error) {
	if cfg.Points == "" {
		return nil, nil
	}
	catalog, err := point.LoadCatalog(cfg.Points)
	if err != nil {
		return nil, fmt.Errorf("load points catalog: %w", err)
	}
	logger.Info("points catalog loaded", "path", cfg.Points, "points", catalog.Len())
	return catalog, nil
}

// validateTasks parses and builds every enabled task without connecting.
func validateTasks(cfg *config.Config, catalog *point.Catalog, logger *slog.Logger) error {
	var failed []string
	for _, tc := range cfg.EnabledTasks() {
		def, err := fnconfig.LoadTask(tc.File)
		if err == nil {
			_, _, err = fn.BuildTask(def,
				fn.WithLogger(logger),
				fn.WithCatalog(catalog),
				fn.WithTask(def.Name, 0))
		}
		if err != nil {
			logger.Error("task invalid", "task", tc.Name, "file", tc.File, "error", err)
			failed = append(failed, tc.Name)
			continue
		}
		logger.Info("task valid", "task", tc.Name, "nodes", len(def.Nodes))
	}
	if len(failed) > 0 {
		return fmt.Errorf("invalid tasks: %s", strings.Join(failed, ", "))
	}
	logger.Info("configuration valid")
	return nil
}

func connectToNATS(ctx context.Context, cfg *config.Config, registry *metric.MetricsRegistry, logger *slog.Logger) (*natsclient.Client, error) {
	opts := []natsclient.ClientOption{
		natsclient.WithLogger(logger),
		natsclient.WithMetrics(registry.CoreMetrics()),
		natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects),
		natsclient.WithReconnectWait(cfg.NATS.ReconnectWait.Std()),
		natsclient.WithName(fmt.Sprintf("%s-%s-%s", appName, cfg.Platform.Org, cfg.Platform.ID)),
	}
	if cfg.NATS.Username != "" {
		opts = append(opts, natsclient.WithCredentials(cfg.NATS.Username, cfg.NATS.Password))
	}
	if cfg.NATS.Token != "" {
		opts = append(opts, natsclient.WithToken(cfg.NATS.Token))
	}

	urls := strings.Join(cfg.NATS.URLs, ",")
	client, err := natsclient.NewClient(urls, opts...)
	if err != nil {
		return nil, fmt.Errorf("create NATS client: %w", err)
	}

	client.OnHealthChange(logHealthChange(logger))

	logger.Info("connecting to NATS", "urls", len(cfg.NATS.URLs))
	if err := client.ConnectWithRetry(ctx, retry.Persistent()); err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return client, nil
}

// natsHealth maps a client status snapshot to a health status. A client
// that is still connecting or reconnecting is degraded.
func natsHealth(st *natsclient.Status) health.Status {
	msg := st.Status.String()
	if st.FailureCount > 0 {
		msg = fmt.Sprintf("%s, %d failures, last at %s", msg, st.FailureCount, st.LastFailureTime.Format(time.RFC3339))
	}
	switch st.Status {
	case natsclient.StatusConnected:
		return health.NewHealthy("nats", fmt.Sprintf("connected, rtt %s", st.RTT))
	case natsclient.StatusConnecting, natsclient.StatusReconnecting:
		return health.NewDegraded("nats", msg)
	default:
		return health.NewUnhealthy("nats", msg)
	}
}

// logHealthChange returns the callback that logs NATS connectivity changes.
func logHealthChange(logger *slog.Logger) func(bool) {
	return func(healthy bool) {
		if healthy {
			logger.Info("NATS connectivity restored")
			return
		}
		logger.Warn("NATS connectivity lost")
	}
}

// setupRetainStore returns a KV-backed store preloaded from the configured
// bucket, or an in-memory store when no bucket is set.
func setupRetainStore(ctx context.Context, cfg *config.Config, client *natsclient.Client, logger *slog.Logger) (fn.RetainStore, error) {
	if cfg.Retain.Bucket == "" {
		logger.Info("retained values kept in memory")
		return fn.NewMemoryRetainStore(), nil
	}

	bucket, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      cfg.Retain.Bucket,
		Description: "fr-service retained values",
		History:     1,
	})
	if err != nil {
		return nil, fmt.Errorf("open retain bucket %s: %w", cfg.Retain.Bucket, err)
	}

	store := task.NewKVRetainStore(client.NewKVStore(bucket), logger)
	loadCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := store.Preload(loadCtx); err != nil {
		return nil, fmt.Errorf("preload retain bucket %s: %w", cfg.Retain.Bucket, err)
	}
	logger.Info("retained values loaded", "bucket", cfg.Retain.Bucket)
	return store, nil
}

// startTasks creates, initializes and starts every enabled task. Tasks
// already started are stopped again when a later one fails.
func startTasks(ctx context.Context, cfg *config.Config, deps component.Dependencies,
	catalog *point.Catalog, retain fn.RetainStore) ([]*task.Task, error) {

	var started []*task.Task
	fail := func(err error) ([]*task.Task, error) {
		for _, t := range started {
			if stopErr := t.Stop(5 * time.Second); stopErr != nil {
				deps.GetLogger().Warn("task stop failed", "task", t.Name(), "error", stopErr)
			}
		}
		return nil, err
	}

	for _, tc := range cfg.EnabledTasks() {
		t, err := task.NewTask(tc, deps,
			task.WithCatalog(catalog),
			task.WithRetainStore(retain))
		if err != nil {
			return fail(fmt.Errorf("create task %s: %w", tc.Name, err))
		}
		if err := t.Initialize(); err != nil {
			return fail(fmt.Errorf("initialize task %s: %w", tc.Name, err))
		}
		if err := t.Start(ctx); err != nil {
			return fail(fmt.Errorf("start task %s: %w", tc.Name, err))
		}
		started = append(started, t)
	}
	return started, nil
}

// watchTask logs evaluation errors until ctx is done.
func watchTask(ctx context.Context, t *task.Task, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-t.Errors():
			logger.Debug("evaluation error", "task", t.Name(), "error", err)
		}
	}
}
