package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/c360/fr-service/errors"
)

// Task defaults.
const (
	DefaultSubjectPrefix = "points"
	DefaultExportPrefix  = "derived"
	DefaultQueueSize     = 1024
	DefaultQueueCapacity = 256
)

// Loader reads configuration layers, applies defaults and environment
// overrides, and validates the result.
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
	getenv     func(string) string
}

// NewLoader creates a loader with validation enabled and the FR_SERVICE
// environment prefix.
func NewLoader() *Loader {
	return &Loader{
		validation: true,
		envPrefix:  "FR_SERVICE",
		getenv:     os.Getenv,
	}
}

// AddLayer adds a file; later layers override earlier ones.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation turns schema and semantic validation on or off.
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads configuration from a single file.
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load merges the defaults, every layer and the environment.
// Relative points and task file paths are resolved against the directory
// of the layer that set them.
func (l *Loader) Load() (*Config, error) {
	merged, err := toMap(defaults())
	if err != nil {
		return nil, errors.WrapFatal(err, "Loader", "Load", "encode defaults")
	}

	for _, path := range l.layers {
		raw, err := loadRawJSON(path)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "Load", "load "+path)
		}
		resolvePaths(raw, filepath.Dir(path))
		merged = deepMergeMaps(merged, raw)
	}

	cfg, err := fromMap(merged)
	if err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %w", errors.ErrInvalidConfig, err), "Loader", "Load", "decode config")
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	applyTaskDefaults(cfg)

	if l.validation {
		if err := ValidateSchema(cfg); err != nil {
			return nil, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Platform: PlatformConfig{Environment: "dev"},
		NATS: NATSConfig{
			URLs:          []string{"nats://localhost:4222"},
			MaxReconnects: -1,
			ReconnectWait: Duration(2 * time.Second),
		},
		Metrics: MetricsConfig{Enabled: true, Port: 9090, Path: "/metrics"},
	}
}

func applyTaskDefaults(cfg *Config) {
	for i := range cfg.Tasks {
		task := &cfg.Tasks[i]
		if task.SubjectPrefix == "" {
			task.SubjectPrefix = DefaultSubjectPrefix
		}
		if task.ExportPrefix == "" {
			task.ExportPrefix = DefaultExportPrefix
		}
		if task.QueueSize <= 0 {
			task.QueueSize = DefaultQueueSize
		}
		for j := range task.Queues {
			if task.Queues[j].Capacity <= 0 {
				task.Queues[j].Capacity = DefaultQueueCapacity
			}
		}
	}
}

func loadRawJSON(path string) (map[string]any, error) {
	data, err := safeReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := validateJSONDepth(data); err != nil {
		return nil, fmt.Errorf("invalid JSON structure: %w", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrInvalidConfig, err)
	}
	return raw, nil
}

// resolvePaths makes relative file references in one layer absolute.
func resolvePaths(raw map[string]any, dir string) {
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	if points, ok := raw["points"].(string); ok {
		raw["points"] = resolve(points)
	}
	tasks, _ := raw["tasks"].([]any)
	for _, t := range tasks {
		if task, ok := t.(map[string]any); ok {
			if file, ok := task["file"].(string); ok {
				task["file"] = resolve(file)
			}
		}
	}
}

// deepMergeMaps merges override into base; nested objects merge, anything
// else (arrays included) is replaced.
func deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		result[k] = v
	}
	for k, v := range override {
		if v == nil {
			continue
		}
		if baseMap, ok := base[k].(map[string]any); ok {
			if overrideMap, ok := v.(map[string]any); ok {
				result[k] = deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}
	return result
}

func toMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	return m, json.Unmarshal(data, &m)
}

func fromMap(m map[string]any) (*Config, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (l *Loader) env(key string) (string, bool, error) {
	name := l.envPrefix + "_" + key
	val := l.getenv(name)
	if val == "" {
		return "", false, nil
	}
	if err := validateEnvVar(name, val); err != nil {
		return "", false, errors.WrapInvalid(err, "Loader", "applyEnvOverrides", "read "+name)
	}
	return val, true, nil
}

func (l *Loader) applyEnvOverrides(cfg *Config) error {
	strs := []struct {
		key    string
		target *string
	}{
		{"PLATFORM_ID", &cfg.Platform.ID},
		{"NATS_USERNAME", &cfg.NATS.Username},
		{"NATS_PASSWORD", &cfg.NATS.Password},
		{"NATS_TOKEN", &cfg.NATS.Token},
		{"POINTS", &cfg.Points},
		{"RETAIN_BUCKET", &cfg.Retain.Bucket},
	}
	for _, s := range strs {
		val, ok, err := l.env(s.key)
		if err != nil {
			return err
		}
		if ok {
			*s.target = val
		}
	}

	if val, ok, err := l.env("NATS_URLS"); err != nil {
		return err
	} else if ok {
		urls := strings.Split(val, ",")
		for i := range urls {
			urls[i] = strings.TrimSpace(urls[i])
		}
		cfg.NATS.URLs = urls
	}

	if val, ok, err := l.env("METRICS_PORT"); err != nil {
		return err
	} else if ok {
		port, err := strconv.Atoi(val)
		if err != nil {
			return errors.WrapInvalid(fmt.Errorf("%w: %s_METRICS_PORT=%q", errors.ErrInvalidConfig, l.envPrefix, val),
				"Loader", "applyEnvOverrides", "parse metrics port")
		}
		cfg.Metrics.Port = port
	}
	return nil
}
