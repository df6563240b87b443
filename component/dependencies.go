package component

import (
	"log/slog"

	"github.com/c360/fr-service/metric"
	"github.com/c360/fr-service/natsclient"
)

// PlatformMeta identifies the installation a service runs in.
type PlatformMeta struct {
	Org         string // e.g. "c360"
	Platform    string // e.g. "plant-1"
	Environment string
}

// Dependencies bundles the external collaborators handed to components.
type Dependencies struct {
	NATSClient      natsclient.Messenger    // NATS pub/sub; tests pass an in-memory double
	MetricsRegistry *metric.MetricsRegistry // can be nil
	Logger          *slog.Logger            // can be nil, defaults to slog.Default()
	Platform        PlatformMeta
}

// GetLogger returns the configured logger or a default logger if none is provided
func (d *Dependencies) GetLogger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// GetLoggerWithComponent returns a logger configured with component context
func (d *Dependencies) GetLoggerWithComponent(componentName string) *slog.Logger {
	return d.GetLogger().With("component", componentName)
}
