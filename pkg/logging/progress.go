package logging

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/openpdc/pdc-mirror/pkg/humanfmt"
	"github.com/rs/zerolog"
)

// ProgressTracker tracks progress across a run's resource sync units with
// ETA calculation. It is safe for concurrent use.
type ProgressTracker struct {
	total     int64
	completed atomic.Int64
	skipped   atomic.Int64
	startTime time.Time
	log       zerolog.Logger
	phase     string

	// For moving average of unit durations
	mu              sync.Mutex
	recentDurations []time.Duration
	maxRecent       int
}

// NewProgressTracker creates a new progress tracker.
func NewProgressTracker(phase string, total int64, log zerolog.Logger) *ProgressTracker {
	return &ProgressTracker{
		total:           total,
		startTime:       time.Now(),
		log:             log,
		phase:           phase,
		recentDurations: make([]time.Duration, 0, 10),
		maxRecent:       10,
	}
}

// RecordCompletion records that a unit completed with the given duration.
func (pt *ProgressTracker) RecordCompletion(d time.Duration) {
	pt.completed.Add(1)

	pt.mu.Lock()
	if len(pt.recentDurations) >= pt.maxRecent {
		pt.recentDurations = pt.recentDurations[1:]
	}
	pt.recentDurations = append(pt.recentDurations, d)
	pt.mu.Unlock()
}

// RecordSkip records that a unit was skipped or failed.
func (pt *ProgressTracker) RecordSkip() {
	pt.skipped.Add(1)
}

// Progress returns current progress stats.
func (pt *ProgressTracker) Progress() (completed, skipped, total int64) {
	return pt.completed.Load(), pt.skipped.Load(), pt.total
}

// ProgressPct returns the progress percentage (0-100).
func (pt *ProgressTracker) ProgressPct() float64 {
	done := pt.completed.Load() + pt.skipped.Load()
	if pt.total == 0 {
		return 100.0
	}
	return float64(done) * 100.0 / float64(pt.total)
}

// ETA returns the estimated time remaining based on the moving average of
// recent unit durations, falling back to the overall completion rate.
func (pt *ProgressTracker) ETA() time.Duration {
	completed := pt.completed.Load()
	if completed == 0 {
		return 0
	}

	remaining := pt.total - completed - pt.skipped.Load()
	if remaining <= 0 {
		return 0
	}

	pt.mu.Lock()
	var avgDuration time.Duration
	if len(pt.recentDurations) > 0 {
		var sum time.Duration
		for _, d := range pt.recentDurations {
			sum += d
		}
		avgDuration = sum / time.Duration(len(pt.recentDurations))
	} else {
		elapsed := time.Since(pt.startTime)
		avgDuration = elapsed / time.Duration(completed)
	}
	pt.mu.Unlock()

	return avgDuration * time.Duration(remaining)
}

// Elapsed returns time since tracking started.
func (pt *ProgressTracker) Elapsed() time.Duration {
	return time.Since(pt.startTime)
}

// Log emits a progress event at info level.
func (pt *ProgressTracker) Log() {
	completed, skipped, total := pt.Progress()
	e := pt.log.Info().
		Str("phase", pt.phase).
		Int64("completed", completed).
		Int64("skipped", skipped).
		Int64("total", total).
		Float64("progress_pct", pt.ProgressPct())

	if eta := pt.ETA(); eta > 0 {
		e = e.Str("eta", humanfmt.Duration(eta))
	}
	e.Msg("progress")
}
