package health

import (
	"sort"
	"sync"
	"time"
)

// Probe reports the current status of one component.
type Probe func() Status

// Monitor keeps the latest status per component. It is safe for concurrent use.
type Monitor struct {
	mu       sync.RWMutex
	statuses map[string]Status
	probes   map[string]Probe
}

// NewMonitor creates an empty monitor.
func NewMonitor() *Monitor {
	return &Monitor{
		statuses: make(map[string]Status),
		probes:   make(map[string]Probe),
	}
}

// Update records status for name.
func (m *Monitor) Update(name string, status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.update(name, status)
}

func (m *Monitor) update(name string, status Status) {
	status.Component = name
	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now()
	}
	m.statuses[name] = status
}

// Register adds a probe that Refresh polls for name.
func (m *Monitor) Register(name string, probe Probe) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probes[name] = probe
}

// Remove forgets name and its probe.
func (m *Monitor) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.statuses, name)
	delete(m.probes, name)
}

// Refresh polls every registered probe.
func (m *Monitor) Refresh() {
	m.mu.RLock()
	probes := make(map[string]Probe, len(m.probes))
	for name, probe := range m.probes {
		probes[name] = probe
	}
	m.mu.RUnlock()

	results := make(map[string]Status, len(probes))
	for name, probe := range probes {
		results[name] = probe()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for name, status := range results {
		if _, ok := m.probes[name]; ok {
			m.update(name, status)
		}
	}
}

// Get returns the last status recorded for name.
func (m *Monitor) Get(name string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status, ok := m.statuses[name]
	return status, ok
}

// ListComponents returns the monitored names in order.
func (m *Monitor) ListComponents() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.statuses))
	for name := range m.statuses {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AggregateHealth folds the recorded statuses, ordered by name.
func (m *Monitor) AggregateHealth(systemName string) Status {
	names := m.ListComponents()

	m.mu.RLock()
	defer m.mu.RUnlock()
	subs := make([]Status, 0, len(names))
	for _, name := range names {
		if status, ok := m.statuses[name]; ok {
			subs = append(subs, status)
		}
	}
	return Aggregate(systemName, subs)
}

// Check refreshes the probes and returns the aggregate.
func (m *Monitor) Check(systemName string) Status {
	m.Refresh()
	return m.AggregateHealth(systemName)
}
