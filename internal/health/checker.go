// Package health provides periodic daemon health checks.
package health

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/verimesh/verimesh/internal/infra/sqlite"
)

// Check defines a single health check.
type Check struct {
	Name    string
	CheckFn func(ctx context.Context) error
}

// Status represents the result of a health check.
type Status struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Checker runs periodic health checks.
type Checker struct {
	mu       sync.RWMutex
	checks   []Check
	statuses []Status
	interval time.Duration
}

// NewChecker creates a health checker over the daemon's storage surfaces:
// the SQLite registry, the trace directory, and the gossip data directory.
func NewChecker(db *sqlite.DB, traceDir, dataDir string) *Checker {
	return &Checker{
		interval: 60 * time.Second,
		checks: []Check{
			{
				Name: "sqlite",
				CheckFn: func(ctx context.Context) error {
					return db.Ping()
				},
			},
			{
				Name: "trace_dir",
				CheckFn: func(ctx context.Context) error {
					return checkDir("trace", traceDir)
				},
			},
			{
				Name: "gossip_data",
				CheckFn: func(ctx context.Context) error {
					return checkDir("gossip data", dataDir)
				},
			},
		},
	}
}

// Run starts the health check loop. Call in a goroutine.
func (c *Checker) Run(ctx context.Context) {
	// Run immediately on start
	c.runAll(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.runAll(ctx)
		}
	}
}

func (c *Checker) runAll(ctx context.Context) {
	statuses := make([]Status, len(c.checks))
	for i, check := range c.checks {
		s := Status{
			Name:      check.Name,
			CheckedAt: time.Now(),
		}
		if err := check.CheckFn(ctx); err != nil {
			s.Healthy = false
			s.Error = err.Error()
		} else {
			s.Healthy = true
		}
		statuses[i] = s
	}

	c.mu.Lock()
	c.statuses = statuses
	c.mu.Unlock()
}

// Statuses returns the latest health check results.
func (c *Checker) Statuses() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]Status, len(c.statuses))
	copy(result, c.statuses)
	return result
}

// IsHealthy returns true if all checks pass.
func (c *Checker) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.statuses {
		if !s.Healthy {
			return false
		}
	}
	return true
}

// checkDir verifies a directory exists (or does not exist yet) and is not
// shadowed by a regular file.
func checkDir(what, dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // not created yet, that's fine
		}
		return fmt.Errorf("check %s dir: %w", what, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s path %s is not a directory", what, dir)
	}
	return nil
}
