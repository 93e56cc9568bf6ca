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

package metrics

import (
	"context"
	"runtime"
	"time"
)

// ResourceCollector periodically samples runtime statistics into the
// resource gauges: goroutine count, heap usage, GC pause time and
// server uptime.
type ResourceCollector struct {
	ctx      context.Context
	cancel   context.CancelFunc
	interval time.Duration
	started  time.Time
}

// NewResourceCollector creates a collector that refreshes the resource
// gauges every interval. The collector stops when Stop is called or the
// parent context is cancelled.
func NewResourceCollector(ctx context.Context, interval time.Duration) *ResourceCollector {
	collectorCtx, cancel := context.WithCancel(ctx)
	return &ResourceCollector{
		ctx:      collectorCtx,
		cancel:   cancel,
		interval: interval,
		started:  time.Now(),
	}
}

// Start samples immediately, then on every tick until the collector is
// stopped. Blocks; run it in a goroutine.
func (rc *ResourceCollector) Start() {
	ticker := time.NewTicker(rc.interval)
	defer ticker.Stop()

	rc.collect()
	for {
		select {
		case <-rc.ctx.Done():
			return
		case <-ticker.C:
			rc.collect()
		}
	}
}

// Stop halts the collector.
func (rc *ResourceCollector) Stop() {
	rc.cancel()
}

func (rc *ResourceCollector) collect() {
	if !IsEnabled() {
		return
	}
	sampleRuntime()
	ServerUptime.Set(time.Since(rc.started).Seconds())
}

// CollectOnce samples the resource gauges a single time, outside any
// running collector. Uptime is left alone: only a collector knows when
// the server started.
func CollectOnce() {
	if !IsEnabled() {
		return
	}
	sampleRuntime()
}

// sampleRuntime reads the runtime counters into the resource gauges.
func sampleRuntime() {
	Goroutines.Set(float64(runtime.NumGoroutine()))

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	MemoryAllocBytes.Set(float64(memStats.Alloc))
	MemorySysBytes.Set(float64(memStats.Sys))
	GCPauseTotalSeconds.Set(float64(memStats.PauseTotalNs) / 1e9)
}

// StartResourceCollector creates a collector and starts it in the
// background. The returned collector's Stop method shuts it down.
func StartResourceCollector(ctx context.Context, interval time.Duration) *ResourceCollector {
	collector := NewResourceCollector(ctx, interval)
	go collector.Start()
	return collector
}
