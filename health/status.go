package health

import (
	"regexp"
	"time"

	"github.com/c360/fr-service/component"
)

// State is the coarse health level.
type State string

// Health levels, from best to worst.
const (
	StateHealthy   State = "healthy"
	StateDegraded  State = "degraded"
	StateUnhealthy State = "unhealthy"
)

var (
	urlRegex        = regexp.MustCompile(`(?:https?|nats|wss?)://[^\s]+`)
	unixPathRegex   = regexp.MustCompile(`(?:^|\s)/[a-zA-Z0-9/_.-]+`)
	ipAddrRegex     = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}(?::\d{2,5})?\b`)
	credentialRegex = regexp.MustCompile(`(?i)(password|token|secret|credential)\s*[:=]\s*[^,\s}]+`)
)

// Status represents the health state of a component or system
type Status struct {
	Component   string    `json:"component"`
	Status      State     `json:"status"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
	Metrics     *Metrics  `json:"metrics,omitempty"`
}

// Metrics contains health-related metrics
type Metrics struct {
	Uptime       time.Duration `json:"uptime"`
	ErrorCount   int           `json:"error_count"`
	LastActivity time.Time     `json:"last_activity,omitempty"`
}

// IsHealthy returns true if the status is healthy
func (s Status) IsHealthy() bool {
	return s.Status == StateHealthy
}

// IsDegraded returns true if the status is degraded
func (s Status) IsDegraded() bool {
	return s.Status == StateDegraded
}

// IsUnhealthy returns true if the status is unhealthy
func (s Status) IsUnhealthy() bool {
	return s.Status == StateUnhealthy
}

// sanitizeErrorMessage strips URLs, absolute paths, addresses and
// credentials from an error message. Point names look like paths and are
// removed too; the full error is in the logs.
func sanitizeErrorMessage(msg string) string {
	if msg == "" {
		return ""
	}
	msg = credentialRegex.ReplaceAllString(msg, "$1=[REDACTED]")
	msg = urlRegex.ReplaceAllString(msg, "[URL]")
	msg = ipAddrRegex.ReplaceAllString(msg, "[IP]")
	msg = unixPathRegex.ReplaceAllStringFunc(msg, func(m string) string {
		if m[0] == '/' {
			return "[PATH]"
		}
		return m[:1] + "[PATH]"
	})
	return msg
}

// FromComponentHealth converts a component.HealthStatus to a Status.
func FromComponentHealth(name string, ch component.HealthStatus) Status {
	state := StateUnhealthy
	switch {
	case ch.Healthy && ch.Degraded:
		state = StateDegraded
	case ch.Healthy:
		state = StateHealthy
	}

	message := "Component " + string(state)
	if ch.LastError != "" {
		message = sanitizeErrorMessage(ch.LastError)
	}

	return Status{
		Component: name,
		Status:    state,
		Message:   message,
		Timestamp: time.Now(),
		Metrics: &Metrics{
			Uptime:       ch.Uptime,
			ErrorCount:   ch.ErrorCount,
			LastActivity: ch.LastCheck,
		},
	}
}
