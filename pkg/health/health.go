// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package health implements liveness, readiness and startup probes for
// the passkey server, modeled on Kubernetes probe semantics.
package health

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Status is the reported health of a component.
type Status string

const (
	// StatusHealthy means the component is operating normally.
	StatusHealthy Status = "healthy"
	// StatusUnhealthy means the component is not functioning.
	StatusUnhealthy Status = "unhealthy"
	// StatusDegraded means the component works with reduced capacity.
	StatusDegraded Status = "degraded"
)

// CheckResult is the outcome of a single probe.
type CheckResult struct {
	Name    string        `json:"name"`
	Status  Status        `json:"status"`
	Message string        `json:"message,omitempty"`
	Latency time.Duration `json:"latency"`
	Error   string        `json:"error,omitempty"`
}

// CheckFunc probes one dependency. Implementations should return
// within a second; the readiness handler runs them inline.
type CheckFunc func(ctx context.Context) CheckResult

// Checker runs registered readiness checks and tracks the startup
// state of the server.
//
// Liveness answers "is the process up", readiness answers "can it take
// traffic", and startup gates both until initialization completes.
type Checker struct {
	mu        sync.RWMutex
	started   bool
	startTime time.Time
	checks    map[string]CheckFunc
}

// NewChecker creates an empty checker. The uptime clock starts now.
func NewChecker() *Checker {
	return &Checker{
		checks:    make(map[string]CheckFunc),
		startTime: time.Now(),
	}
}

// RegisterCheck adds a readiness check under the given name, replacing
// any existing check with that name. Nil checks are ignored.
func (c *Checker) RegisterCheck(name string, check CheckFunc) {
	if check == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// UnregisterCheck removes a readiness check.
func (c *Checker) UnregisterCheck(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.checks, name)
}

// MarkStarted records that initialization is complete. Startup probes
// fail until this is called.
func (c *Checker) MarkStarted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = true
}

// MarkNotStarted reverts the started flag, used during graceful
// shutdown so orchestrators stop probing a draining instance.
func (c *Checker) MarkNotStarted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = false
}

// Live reports whether the process is alive. It never fails: a stuck
// dependency is a readiness problem, not a reason to restart.
func (c *Checker) Live(ctx context.Context) CheckResult {
	start := time.Now()
	return CheckResult{
		Name:    "liveness",
		Status:  StatusHealthy,
		Message: "Service is alive",
		Latency: time.Since(start),
	}
}

// Ready runs every registered check and returns the results in name
// order. With no checks registered the server is trivially ready.
func (c *Checker) Ready(ctx context.Context) []CheckResult {
	c.mu.RLock()
	names := make([]string, 0, len(c.checks))
	checks := make(map[string]CheckFunc, len(c.checks))
	for name, check := range c.checks {
		names = append(names, name)
		checks[name] = check
	}
	c.mu.RUnlock()

	if len(names) == 0 {
		return []CheckResult{{
			Name:    "default",
			Status:  StatusHealthy,
			Message: "No readiness checks configured",
		}}
	}

	sort.Strings(names)
	results := make([]CheckResult, 0, len(names))
	for _, name := range names {
		start := time.Now()
		result := checks[name](ctx)
		result.Latency = time.Since(start)
		if result.Name == "" {
			result.Name = name
		}
		results = append(results, result)
	}
	return results
}

// Startup reports whether initialization has completed. Unhealthy
// until MarkStarted is called.
func (c *Checker) Startup(ctx context.Context) CheckResult {
	start := time.Now()

	c.mu.RLock()
	started := c.started
	startTime := c.startTime
	c.mu.RUnlock()

	if !started {
		return CheckResult{
			Name:    "startup",
			Status:  StatusUnhealthy,
			Message: "Service initialization not complete",
			Latency: time.Since(start),
		}
	}

	return CheckResult{
		Name:    "startup",
		Status:  StatusHealthy,
		Message: fmt.Sprintf("Service fully initialized (uptime: %s)", time.Since(startTime).Round(time.Second)),
		Latency: time.Since(start),
	}
}

// GetAllChecks returns the registered check names in sorted order.
func (c *Checker) GetAllChecks() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsHealthy reports whether every readiness check passes.
func (c *Checker) IsHealthy(ctx context.Context) bool {
	for _, result := range c.Ready(ctx) {
		if result.Status != StatusHealthy {
			return false
		}
	}
	return true
}

// IsStarted reports whether MarkStarted has been called.
func (c *Checker) IsStarted() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.started
}

// Uptime returns how long the checker has existed, which tracks server
// uptime when the checker is created at startup.
func (c *Checker) Uptime() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Since(c.startTime)
}

// AggregateStatus folds check results into one overall status: any
// unhealthy result wins, then degraded, then healthy.
func AggregateStatus(results []CheckResult) Status {
	status := StatusHealthy
	for _, result := range results {
		switch result.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			status = StatusDegraded
		}
	}
	return status
}
