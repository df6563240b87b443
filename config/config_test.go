package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/fr-service/errors"
)

const baseConfig = `{
  "platform": {"org": "C360", "id": "plant-1"},
  "nats": {"urls": ["nats://nats:4222"], "reconnect_wait": "5s"},
  "points": "points.yaml",
  "tasks": [
    {"name": "Recorder", "file": "recorder.yaml", "queues": [{"name": "api"}]},
    {"name": "Alarms", "file": "/etc/fr/alarms.yaml", "enabled": false, "queue_size": 16}
  ]
}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func newTestLoader(env map[string]string) *Loader {
	l := NewLoader()
	l.getenv = func(key string) string { return env[key] }
	return l
}

func TestLoader_LoadFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "fr.json", baseConfig)

	cfg, err := newTestLoader(nil).LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "c360", cfg.Platform.Org, "org is normalized")
	assert.Equal(t, "dev", cfg.Platform.Environment)
	assert.Equal(t, []string{"nats://nats:4222"}, cfg.NATS.URLs)
	assert.Equal(t, -1, cfg.NATS.MaxReconnects)
	assert.Equal(t, 5*time.Second, cfg.NATS.ReconnectWait.Std())
	assert.Equal(t, MetricsConfig{Enabled: true, Port: 9090, Path: "/metrics"}, cfg.Metrics)
	assert.Equal(t, filepath.Join(dir, "points.yaml"), cfg.Points)

	require.Len(t, cfg.Tasks, 2)
	rec := cfg.Tasks[0]
	assert.Equal(t, filepath.Join(dir, "recorder.yaml"), rec.File)
	assert.Equal(t, DefaultSubjectPrefix, rec.SubjectPrefix)
	assert.Equal(t, DefaultExportPrefix, rec.ExportPrefix)
	assert.Equal(t, DefaultQueueSize, rec.QueueSize)
	assert.Equal(t, []QueueConfig{{Name: "api", Capacity: DefaultQueueCapacity}}, rec.Queues)
	assert.Equal(t, "/etc/fr/alarms.yaml", cfg.Tasks[1].File)
	assert.Equal(t, 16, cfg.Tasks[1].QueueSize)

	enabled := cfg.EnabledTasks()
	require.Len(t, enabled, 1)
	assert.Equal(t, "Recorder", enabled[0].Name)
}

func TestLoader_Layers(t *testing.T) {
	dir := t.TempDir()
	l := newTestLoader(nil)
	l.AddLayer(writeFile(t, dir, "base.json", baseConfig))
	l.AddLayer(writeFile(t, dir, "prod.json", `{
  "platform": {"environment": "prod"},
  "metrics": {"port": 9191},
  "tasks": [{"name": "Only", "file": "only.yaml"}]
}`))

	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, "plant-1", cfg.Platform.ID, "objects merge")
	assert.Equal(t, "prod", cfg.Platform.Environment)
	assert.Equal(t, 9191, cfg.Metrics.Port)
	assert.True(t, cfg.Metrics.Enabled)
	require.Len(t, cfg.Tasks, 1, "arrays are replaced")
	assert.Equal(t, "Only", cfg.Tasks[0].Name)
}

func TestLoader_EnvOverrides(t *testing.T) {
	path := writeFile(t, t.TempDir(), "fr.json", baseConfig)
	cfg, err := newTestLoader(map[string]string{
		"FR_SERVICE_NATS_URLS":     "nats://a:4222, nats://b:4222",
		"FR_SERVICE_METRICS_PORT":  "9300",
		"FR_SERVICE_POINTS":        "/srv/points.yaml",
		"FR_SERVICE_RETAIN_BUCKET": "fr_retain",
		"FR_SERVICE_NATS_TOKEN":    "s3cr3t",
	}).LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"nats://a:4222", "nats://b:4222"}, cfg.NATS.URLs)
	assert.Equal(t, 9300, cfg.Metrics.Port)
	assert.Equal(t, "/srv/points.yaml", cfg.Points)
	assert.Equal(t, "fr_retain", cfg.Retain.Bucket)
	assert.Equal(t, "s3cr3t", cfg.NATS.Token)
	assert.NotContains(t, cfg.String(), "s3cr3t")
}

func TestLoader_BadMetricsPortEnv(t *testing.T) {
	path := writeFile(t, t.TempDir(), "fr.json", baseConfig)
	_, err := newTestLoader(map[string]string{"FR_SERVICE_METRICS_PORT": "nine"}).LoadFile(path)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
	assert.True(t, errors.IsInvalid(err))
}

func TestLoader_Errors(t *testing.T) {
	dir := t.TempDir()
	tests := map[string]struct {
		name    string
		content string
		want    string
	}{
		"not json":          {"a.json", `{"platform": `, "malformed JSON"},
		"wrong extension":   {"a.yaml", `{}`, "only JSON config files"},
		"schema violation":  {"b.json", `{"platform": {"org": "c360", "id": "x"}, "tasks": [{"name": "bad name", "file": "f"}]}`, "tasks.0.name"},
		"missing org":       {"c.json", `{"platform": {"id": "x"}, "tasks": []}`, "org"},
		"nested export":     {"d.json", `{"platform": {"org": "c", "id": "x"}, "tasks": [{"name": "T", "file": "f", "subject_prefix": "p", "export_prefix": "p.out"}]}`, "export_prefix"},
		"duplicate task":    {"e.json", `{"platform": {"org": "c", "id": "x"}, "tasks": [{"name": "T", "file": "f"}, {"name": "T", "file": "g"}]}`, "duplicate task"},
		"bad reconnect":     {"f.json", `{"platform": {"org": "c", "id": "x"}, "nats": {"reconnect_wait": "soon"}, "tasks": []}`, "invalid duration"},
		"bad nats url form": {"g.json", `{"platform": {"org": "c", "id": "x"}, "nats": {"urls": ["localhost"]}, "tasks": []}`, "nats.urls.0"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, dir, tt.name, tt.content)
			_, err := newTestLoader(nil).LoadFile(path)
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err), "got %v", err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoader_ValidationDisabled(t *testing.T) {
	path := writeFile(t, t.TempDir(), "fr.json", `{"tasks": []}`)
	l := newTestLoader(nil)
	l.EnableValidation(false)
	cfg, err := l.LoadFile(path)
	require.NoError(t, err)
	assert.Empty(t, cfg.Platform.Org)
}

func TestDuration_JSON(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalJSON([]byte(`"150ms"`)))
	assert.Equal(t, 150*time.Millisecond, d.Std())

	require.NoError(t, d.UnmarshalJSON([]byte(`2000000000`)))
	assert.Equal(t, 2*time.Second, d.Std())

	out, err := Duration(time.Minute).MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"1m0s"`, string(out))

	assert.Error(t, d.UnmarshalJSON([]byte(`true`)))
}

func TestValidateJSONDepth(t *testing.T) {
	assert.NoError(t, validateJSONDepth([]byte(`{"a": "[[[{{{", "b": [1, {"c": "\"]"}]}`)))
	assert.Error(t, validateJSONDepth([]byte(strings.Repeat("[", maxJSONDepth+1)+strings.Repeat("]", maxJSONDepth+1))))
	assert.Error(t, validateJSONDepth([]byte(`{"a": 1}}`)))
}

func TestSchema_IsEmbedded(t *testing.T) {
	assert.Contains(t, string(Schema()), `"tasks"`)
}
