// Package profiler - Periodic runtime and pipeline status reports.
package profiler

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultReportInterval is used when no interval is configured.
const DefaultReportInterval = 10 * time.Second

// MetricsCollector contributes named values to every report.
type MetricsCollector interface {
	CollectMetrics() map[string]float64
}

// CollectorFunc adapts a function to MetricsCollector.
type CollectorFunc func() map[string]float64

// CollectMetrics implements MetricsCollector.
func (f CollectorFunc) CollectMetrics() map[string]float64 { return f() }

// RuntimeProfiler logs process and pipeline health at a fixed interval.
type RuntimeProfiler struct {
	interval   time.Duration
	logger     *zap.Logger
	mu         sync.Mutex
	collectors []MetricsCollector
	startTime  time.Time
	lastGC     uint32
}

// NewRuntimeProfiler creates a profiler. An interval of zero or less uses DefaultReportInterval.
func NewRuntimeProfiler(interval time.Duration, logger *zap.Logger) *RuntimeProfiler {
	if interval <= 0 {
		interval = DefaultReportInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RuntimeProfiler{interval: interval, logger: logger, startTime: time.Now()}
}

// AddMetricsCollector registers a collector.
func (rp *RuntimeProfiler) AddMetricsCollector(collector MetricsCollector) {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	rp.collectors = append(rp.collectors, collector)
}

// Run emits a report every interval until ctx is done.
func (rp *RuntimeProfiler) Run(ctx context.Context) error {
	ticker := time.NewTicker(rp.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			rp.Report()
		}
	}
}

// Report logs one status line.
func (rp *RuntimeProfiler) Report() {
	fields := rp.Snapshot()
	rp.logger.Info("status report", fields...)
}

// Snapshot returns the current report as log fields: process stats first, then collector
// metrics sorted by name.
func (rp *RuntimeProfiler) Snapshot() []zap.Field {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	rp.mu.Lock()
	newGC := mem.NumGC - rp.lastGC
	rp.lastGC = mem.NumGC
	collectors := append([]MetricsCollector(nil), rp.collectors...)
	rp.mu.Unlock()

	fields := []zap.Field{
		zap.Duration("uptime", time.Since(rp.startTime).Truncate(time.Millisecond)),
		zap.Int("goroutines", runtime.NumGoroutine()),
		zap.Int64("cgo_calls", runtime.NumCgoCall()),
		zap.Uint64("heap_alloc", mem.HeapAlloc),
		zap.Uint64("heap_sys", mem.HeapSys),
		zap.Uint32("gc_cycles", newGC),
	}

	metrics := make(map[string]float64)
	for _, c := range collectors {
		for k, v := range c.CollectMetrics() {
			metrics[k] = v
		}
	}
	names := make([]string, 0, len(metrics))
	for k := range metrics {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		fields = append(fields, zap.Float64(k, metrics[k]))
	}
	return fields
}
