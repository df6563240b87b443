package component

import (
	"time"
)

// Discoverable is implemented by components the service can inspect at runtime.
type Discoverable interface {
	// Meta returns basic component information
	Meta() Metadata

	// Health returns current health status
	Health() HealthStatus

	// DataFlow returns current data flow metrics
	DataFlow() FlowMetrics
}

// Metadata describes what a component is
type Metadata struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // "task", "transport"
	Description string `json:"description"`
	Version     string `json:"version"`
	InstanceID  string `json:"instance_id"`
}

// HealthStatus represents the current health of a component
type HealthStatus struct {
	Healthy    bool          `json:"healthy"`
	Degraded   bool          `json:"degraded,omitempty"`
	LastCheck  time.Time     `json:"last_check"`
	ErrorCount int           `json:"error_count"`
	LastError  string        `json:"last_error,omitempty"`
	Uptime     time.Duration `json:"uptime"`
}

// FlowMetrics describes the current data flow through a component
type FlowMetrics struct {
	MessagesPerSecond float64   `json:"messages_per_second"`
	ErrorRate         float64   `json:"error_rate"`
	LastActivity      time.Time `json:"last_activity"`
}
