// Package healthcheck runs readiness probes and publishes them over HTTP
// and the gRPC health protocol.
package healthcheck

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Status values reported by Check.
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
)

// DefaultTimeout bounds a full round of probes.
const DefaultTimeout = 5 * time.Second

// Pinger is anything that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Report is the result of one round of probes.
type Report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Healthy reports whether every probe passed.
func (r Report) Healthy() bool {
	return r.Status == StatusHealthy
}

type probe struct {
	name   string
	pinger Pinger
}

// Checker holds the named probes.
type Checker struct {
	mu      sync.RWMutex
	probes  []probe
	timeout time.Duration
	logger  *slog.Logger
}

// NewChecker creates an empty Checker. Non-positive timeouts use DefaultTimeout.
func NewChecker(timeout time.Duration, logger *slog.Logger) *Checker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{timeout: timeout, logger: logger}
}

// Add registers a probe under name.
func (c *Checker) Add(name string, p Pinger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probes = append(c.probes, probe{name: name, pinger: p})
}

// Check runs every probe once.
func (c *Checker) Check(ctx context.Context) Report {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.mu.RLock()
	probes := append([]probe(nil), c.probes...)
	c.mu.RUnlock()

	report := Report{Status: StatusHealthy, Checks: map[string]string{"api": "ok"}}
	for _, p := range probes {
		if err := p.pinger.Ping(ctx); err != nil {
			c.logger.Error("Health check failed", "check", p.name, "error", err)
			report.Status = StatusDegraded
			report.Checks[p.name] = "unreachable"
			continue
		}
		report.Checks[p.name] = "ok"
	}
	return report
}
