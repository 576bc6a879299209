// Package metrics reports sync counters and timings to a statsd agent.
// When disabled, every call is a no-op, so callers never guard metric
// emission with configuration checks.
package metrics

import (
	"fmt"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
)

// Config configures the statsd recorder.
type Config struct {
	// Enabled turns metric emission on. When false, a no-op client is used.
	Enabled bool

	// Address is the statsd agent address, e.g. "127.0.0.1:8125".
	Address string

	// Namespace prefixes every metric name. Default: "pdc_mirror".
	Namespace string
}

// Recorder emits sync metrics. The zero value and a nil *Recorder are
// both safe no-ops.
type Recorder struct {
	client statsd.ClientInterface
}

// New creates a Recorder. With Enabled false it records nothing.
func New(cfg Config) (*Recorder, error) {
	if !cfg.Enabled {
		return &Recorder{client: &statsd.NoOpClient{}}, nil
	}

	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "pdc_mirror"
	}
	client, err := statsd.New(cfg.Address, statsd.WithNamespace(namespace))
	if err != nil {
		return nil, fmt.Errorf("connect statsd agent %s: %w", cfg.Address, err)
	}
	return &Recorder{client: client}, nil
}

// ResourceSynced records a completed resource sync and its duration.
func (r *Recorder) ResourceSynced(id string, d time.Duration) {
	if r == nil || r.client == nil {
		return
	}
	tags := []string{"resource:" + id}
	_ = r.client.Incr("sync.resources.completed", tags, 1)
	_ = r.client.Timing("sync.resource.duration", d, tags, 1)
}

// ResourceFailed records a failed resource sync.
func (r *Recorder) ResourceFailed(id string) {
	if r == nil || r.client == nil {
		return
	}
	_ = r.client.Incr("sync.resources.failed", []string{"resource:" + id}, 1)
}

// RowsWritten records the number of data rows written for a resource.
func (r *Recorder) RowsWritten(id string, n int64) {
	if r == nil || r.client == nil {
		return
	}
	_ = r.client.Count("sync.rows.written", n, []string{"resource:" + id}, 1)
}

// Close flushes and closes the underlying client.
func (r *Recorder) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}
