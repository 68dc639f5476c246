package health

import (
	"context"
	"sort"
	"sync"
	"time"
)

// ComponentHealth represents the health status of a single component.
type ComponentHealth struct {
	Name      string `json:"name"`
	Status    string `json:"status"` // "ok", "degraded", "error"
	Message   string `json:"message,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// HealthReport aggregates health from all components.
type HealthReport struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Components map[string]ComponentHealth `json:"components"`
}

// HealthChecker interface for components to implement.
type HealthChecker interface {
	HealthCheck(ctx context.Context) ComponentHealth
}

// CheckerFunc adapts a function to HealthChecker.
type CheckerFunc func(ctx context.Context) ComponentHealth

func (f CheckerFunc) HealthCheck(ctx context.Context) ComponentHealth { return f(ctx) }

// Pinger is satisfied by *sql.DB and *store.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Ping reports "error" when p cannot be reached.
func Ping(name string, p Pinger) HealthChecker {
	return CheckerFunc(func(ctx context.Context) ComponentHealth {
		start := time.Now()
		h := ComponentHealth{Name: name, Status: "ok"}
		if err := p.PingContext(ctx); err != nil {
			h.Status = "error"
			h.Message = err.Error()
		}
		h.LatencyMS = time.Since(start).Milliseconds()
		return h
	})
}

// Registry holds health checkers for all components.
type Registry struct {
	mu       sync.RWMutex
	checkers map[string]HealthChecker
}

// NewRegistry creates a new health registry.
func NewRegistry() *Registry {
	return &Registry{
		checkers: make(map[string]HealthChecker),
	}
}

// Register adds a component health checker.
func (r *Registry) Register(name string, checker HealthChecker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkers[name] = checker
}

// Names lists registered components.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.checkers))
	for n := range r.checkers {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Check runs all health checks and returns a report with the overall status.
func (r *Registry) Check(ctx context.Context) HealthReport {
	r.mu.RLock()
	defer r.mu.RUnlock()

	report := HealthReport{
		Timestamp:  time.Now().UTC(),
		Components: make(map[string]ComponentHealth),
	}
	for name, checker := range r.checkers {
		report.Components[name] = checker.HealthCheck(ctx)
	}
	report.Status = overall(report.Components)
	return report
}

func overall(components map[string]ComponentHealth) string {
	status := "ok"
	for _, c := range components {
		switch c.Status {
		case "error":
			return "error"
		case "degraded":
			status = "degraded"
		}
	}
	return status
}
