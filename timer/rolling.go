// Package timer - Rolling latency statistics for per-frame work.
package timer

import (
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// DefaultWindow is the number of samples kept when no window is given.
const DefaultWindow = 10

// Rolling keeps the last Window durations of a repeated operation.
//
// It is safe for concurrent use. Values are diagnostic only.
type Rolling struct {
	mu      sync.Mutex
	window  int
	samples []float64 // seconds, ring buffer
	next    int
	count   int64
	last    time.Duration
	started time.Time
	now     func() time.Time
}

// New creates a rolling timer holding window samples.
//
// Arguments:
//   - window: The number of samples to average over. Values below 1 use DefaultWindow.
//
// Returns:
//   - *Rolling: The timer.
func New(window int) *Rolling {
	if window < 1 {
		window = DefaultWindow
	}
	return &Rolling{
		window:  window,
		samples: make([]float64, 0, window),
		now:     time.Now,
	}
}

// Start marks the beginning of a measured operation.
func (r *Rolling) Start() {
	r.mu.Lock()
	r.started = r.now()
	r.mu.Unlock()
}

// Stop records the time since the last Start and returns it. Without a prior Start it is a no-op.
func (r *Rolling) Stop() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started.IsZero() {
		return 0
	}
	d := r.now().Sub(r.started)
	r.started = time.Time{}
	r.observe(d)
	return d
}

// Observe records a duration measured elsewhere.
func (r *Rolling) Observe(d time.Duration) {
	r.mu.Lock()
	r.observe(d)
	r.mu.Unlock()
}

func (r *Rolling) observe(d time.Duration) {
	if len(r.samples) < r.window {
		r.samples = append(r.samples, d.Seconds())
	} else {
		r.samples[r.next] = d.Seconds()
	}
	r.next = (r.next + 1) % r.window
	r.count++
	r.last = d
}

// Mean returns the average of the samples currently in the window.
func (r *Rolling) Mean() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.samples) == 0 {
		return 0
	}
	return time.Duration(stat.Mean(r.samples, nil) * float64(time.Second))
}

// FPS returns the throughput implied by the mean, or 0 with no samples.
func (r *Rolling) FPS() float64 {
	mean := r.Mean()
	if mean <= 0 {
		return 0
	}
	return float64(time.Second) / float64(mean)
}

// Last returns the most recent sample.
func (r *Rolling) Last() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Count returns the number of samples ever recorded.
func (r *Rolling) Count() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Window returns the window size.
func (r *Rolling) Window() int {
	return r.window
}
