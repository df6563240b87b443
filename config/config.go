package config

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/c360/fr-service/errors"
)

// Config is the fr-service application configuration.
type Config struct {
	Platform PlatformConfig `json:"platform"`
	NATS     NATSConfig     `json:"nats"`
	Metrics  MetricsConfig  `json:"metrics"`
	// Points is the YAML points catalog; empty disables catalog lookups.
	Points string       `json:"points,omitempty"`
	Retain RetainConfig `json:"retain"`
	Tasks  []TaskConfig `json:"tasks"`
}

// PlatformConfig identifies the installation.
type PlatformConfig struct {
	Org         string `json:"org"`
	ID          string `json:"id"`
	Environment string `json:"environment,omitempty"`
}

// NATSConfig defines NATS connection settings
type NATSConfig struct {
	URLs          []string `json:"urls,omitempty"`
	MaxReconnects int      `json:"max_reconnects"`
	ReconnectWait Duration `json:"reconnect_wait"`
	Username      string   `json:"username,omitempty"`
	Password      string   `json:"password,omitempty"`
	Token         string   `json:"token,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Port    int    `json:"port"`
	Path    string `json:"path"`
}

// RetainConfig selects where Retain operators persist values. An empty
// bucket keeps them in memory.
type RetainConfig struct {
	Bucket string `json:"bucket,omitempty"`
}

// TaskConfig describes one evaluation task.
type TaskConfig struct {
	Name string `json:"name"`
	// File is the YAML task document.
	File    string `json:"file"`
	Enabled *bool  `json:"enabled,omitempty"`
	// SubjectPrefix is where input points arrive: <prefix>.> is subscribed.
	SubjectPrefix string `json:"subject_prefix,omitempty"`
	// ExportPrefix is where Export operators publish: <prefix>.<destination>.
	ExportPrefix string `json:"export_prefix,omitempty"`
	// QueueSize bounds the hand-off between subscription callbacks and the
	// evaluation goroutine.
	QueueSize int `json:"queue_size,omitempty"`
	// Queues are destinations buffered in process before publishing.
	Queues []QueueConfig `json:"queues,omitempty"`
}

// QueueConfig is one buffered Export destination.
type QueueConfig struct {
	Name     string `json:"name"`
	Capacity int    `json:"capacity,omitempty"`
}

// IsEnabled reports whether the task should run; tasks run unless disabled.
func (t TaskConfig) IsEnabled() bool {
	return t.Enabled == nil || *t.Enabled
}

// Duration is a time.Duration that reads "2s" style strings or nanoseconds.
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case string:
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", val, err)
		}
		*d = Duration(parsed)
	case float64:
		*d = Duration(val)
	case nil:
		*d = 0
	default:
		return fmt.Errorf("invalid duration %v", v)
	}
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

var (
	subjectPartRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	subjectRegex     = regexp.MustCompile(`^[a-zA-Z0-9_-]+(\.[a-zA-Z0-9_-]+)*$`)
)

// Validate checks the semantic rules the schema cannot express and
// normalizes the platform org to lower case.
func (c *Config) Validate() error {
	if c.Platform.Org == "" {
		return invalid("platform.org is required")
	}
	c.Platform.Org = strings.ToLower(c.Platform.Org)
	if !subjectPartRegex.MatchString(c.Platform.Org) {
		return invalid("platform.org %q is not valid in NATS subjects", c.Platform.Org)
	}
	if c.Platform.ID == "" {
		return invalid("platform.id is required")
	}
	if len(c.NATS.URLs) == 0 {
		return invalid("nats.urls is required")
	}
	if c.Metrics.Enabled && (c.Metrics.Port < 1 || c.Metrics.Port > 65535) {
		return invalid("metrics.port %d out of range", c.Metrics.Port)
	}

	names := make(map[string]bool, len(c.Tasks))
	for i, task := range c.Tasks {
		if task.Name == "" {
			return invalid("tasks[%d].name is required", i)
		}
		if names[task.Name] {
			return invalid("duplicate task %q", task.Name)
		}
		names[task.Name] = true
		if task.File == "" {
			return invalid("task %s: file is required", task.Name)
		}
		if !subjectRegex.MatchString(task.SubjectPrefix) {
			return invalid("task %s: subject_prefix %q is not a NATS subject", task.Name, task.SubjectPrefix)
		}
		if !subjectRegex.MatchString(task.ExportPrefix) {
			return invalid("task %s: export_prefix %q is not a NATS subject", task.Name, task.ExportPrefix)
		}
		if strings.HasPrefix(task.ExportPrefix+".", task.SubjectPrefix+".") {
			return invalid("task %s: export_prefix must not be inside subject_prefix", task.Name)
		}
		queues := make(map[string]bool, len(task.Queues))
		for _, q := range task.Queues {
			if q.Name == "" || queues[q.Name] {
				return invalid("task %s: queue names must be unique and non-empty", task.Name)
			}
			queues[q.Name] = true
		}
	}
	return nil
}

// EnabledTasks returns the tasks that should run.
func (c *Config) EnabledTasks() []TaskConfig {
	var tasks []TaskConfig
	for _, task := range c.Tasks {
		if task.IsEnabled() {
			tasks = append(tasks, task)
		}
	}
	return tasks
}

// String renders the configuration with secrets masked.
func (c *Config) String() string {
	masked := *c
	masked.NATS.Password = mask(c.NATS.Password)
	masked.NATS.Token = mask(c.NATS.Token)
	data, err := json.Marshal(masked)
	if err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return string(data)
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "***"
}

func invalid(format string, args ...any) error {
	return errors.WrapInvalid(fmt.Errorf("%w: "+format, append([]any{errors.ErrInvalidConfig}, args...)...),
		"Config", "Validate", "validate")
}
