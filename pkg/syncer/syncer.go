// Package syncer runs incremental dataset syncs: cursor resolution, fetch,
// streaming row filtering, and finalize, fanned out over a bounded worker
// pool.
package syncer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/openpdc/pdc-mirror/internal/logctx"
	"github.com/openpdc/pdc-mirror/pkg/archive"
	"github.com/openpdc/pdc-mirror/pkg/catalog"
	"github.com/openpdc/pdc-mirror/pkg/humanfmt"
	"github.com/openpdc/pdc-mirror/pkg/logging"
	"github.com/openpdc/pdc-mirror/pkg/metrics"
	"github.com/openpdc/pdc-mirror/pkg/rowstream"
	"github.com/openpdc/pdc-mirror/pkg/store"
)

// Fetcher opens a download endpoint and returns the response body stream.
// *catalog.Client satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, downloadURL string) (io.ReadCloser, error)
}

// Config configures a sync run.
type Config struct {
	// Concurrency is the worker pool size. Default: runtime.NumCPU().
	Concurrency int

	// FailFast aborts the run on the first failed unit: in-flight units
	// finish or fail, pending units never start. When false (the default)
	// failures are isolated per unit and the run continues.
	FailFast bool

	// ArchiveDir, when set, receives a Parquet snapshot of every file that
	// is kept or promoted.
	ArchiveDir string
}

// DefaultConfig returns sensible defaults for the current machine.
func DefaultConfig() Config {
	return Config{Concurrency: runtime.NumCPU()}
}

// Syncer coordinates sync units against a store.
type Syncer struct {
	fetcher Fetcher
	store   store.Store
	rec     *metrics.Recorder
	cfg     Config
}

// New creates a Syncer. rec may be nil to disable metrics.
func New(fetcher Fetcher, st store.Store, rec *metrics.Recorder, cfg Config) *Syncer {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConfig().Concurrency
	}
	return &Syncer{fetcher: fetcher, store: st, rec: rec, cfg: cfg}
}

// Result is the outcome of one resource's sync unit.
type Result struct {
	Identifier string
	Name       string

	// Action is the finalize decision; only meaningful when Err is nil
	// and Skipped is false.
	Action Action

	// File is the installed file name; empty when the temp file was
	// discarded.
	File string

	// RowsWritten counts data rows (the header is not counted).
	RowsWritten int64

	// BytesWritten is the size of the written temp file.
	BytesWritten int64

	Duration time.Duration

	// Skipped is set for units that never ran because the run was
	// cancelled first.
	Skipped bool

	Err error
}

// Failed reports whether the unit ended in error.
func (r Result) Failed() bool {
	return r.Err != nil
}

// Report collects every unit's result for one run. There is no silent
// partial success: every discovered resource appears exactly once.
type Report struct {
	Results []Result
}

// Failed returns the results that ended in error.
func (rep Report) Failed() []Result {
	var failed []Result
	for _, r := range rep.Results {
		if r.Failed() {
			failed = append(failed, r)
		}
	}
	return failed
}

// Err returns an aggregate error over all failed units, or nil.
func (rep Report) Err() error {
	var errs []error
	for _, r := range rep.Results {
		if r.Failed() {
			errs = append(errs, fmt.Errorf("%s: %w", r.Identifier, r.Err))
		}
	}
	return errors.Join(errs...)
}

// Run syncs every resource using a worker pool of cfg.Concurrency units.
// Units are independent; the store partitions state per identifier, so no
// cross-unit locking exists. Run returns after every unit has finished,
// failed, or been skipped due to cancellation.
//
// The returned error is non-nil only for a FailFast abort or caller
// cancellation; per-unit failures live in the report either way.
func (s *Syncer) Run(ctx context.Context, resources []catalog.Resource) (Report, error) {
	report := Report{Results: make([]Result, len(resources))}
	if len(resources) == 0 {
		return report, nil
	}

	log := logctx.FromContext(ctx)
	log.Info().
		Int("resources", len(resources)).
		Int("concurrency", s.cfg.Concurrency).
		Bool("fail_fast", s.cfg.FailFast).
		Msg("starting sync run")

	progress := logging.NewProgressTracker("sync", int64(len(resources)), log)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)

	for i, res := range resources {
		g.Go(func() error {
			unitCtx := gctx
			if !s.cfg.FailFast {
				// Isolated units must not be cancelled by sibling failures,
				// only by the caller.
				unitCtx = ctx
			}

			if unitCtx.Err() != nil {
				report.Results[i] = Result{Identifier: res.Identifier, Name: res.Name, Skipped: true}
				progress.RecordSkip()
				return nil
			}

			r := s.syncResource(unitCtx, res)
			report.Results[i] = r

			if r.Err != nil {
				s.rec.ResourceFailed(res.Identifier)
				progress.RecordSkip()
				if s.cfg.FailFast {
					return fmt.Errorf("sync %s: %w", res.Identifier, r.Err)
				}
				return nil
			}

			s.rec.ResourceSynced(res.Identifier, r.Duration)
			s.rec.RowsWritten(res.Identifier, r.RowsWritten)
			progress.RecordCompletion(r.Duration)
			progress.Log()
			return nil
		})
	}

	err := g.Wait()
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	return report, err
}

// syncResource runs one unit: resolve cursor, fetch, filter-while-writing,
// finalize. Any error discards the temp file; an interrupted unit is never
// promoted.
func (s *Syncer) syncResource(ctx context.Context, res catalog.Resource) Result {
	start := time.Now()
	result := Result{Identifier: res.Identifier, Name: res.Name}

	log := logctx.FromContext(ctx).With().
		Str("resource", res.Identifier).
		Str("file", res.Name).
		Logger()

	cursor, err := s.store.Resolve(ctx, res.Identifier)
	if err != nil {
		result.Err = fmt.Errorf("resolve cursor: %w", err)
		return result
	}
	if !cursor.IsZero() {
		log.Debug().Str("cursor", cursor.Format(store.PrefixDateLayout)).Msg("resolved sync cursor")
	}

	tmpPath, err := s.store.Prepare(ctx, res.Identifier, res.Name)
	if err != nil {
		result.Err = fmt.Errorf("prepare storage: %w", err)
		return result
	}

	dates := rowstream.NewDateSet()
	rows, bytes, err := s.download(ctx, res, tmpPath, dates, cursor)
	result.RowsWritten = rows
	result.BytesWritten = bytes
	if err != nil {
		if derr := s.store.Discard(ctx, res.Identifier, tmpPath); derr != nil {
			log.Warn().Err(derr).Msg("discard after failed download")
		}
		result.Err = err
		return result
	}

	action, latest := Decide(dates, cursor)
	result.Action = action

	if action != ActionDiscard && s.cfg.ArchiveDir != "" {
		if err := s.writeArchive(res, tmpPath, action, latest); err != nil {
			// The mirror itself is unaffected; archiving is best-effort.
			log.Warn().Err(err).Msg("archive snapshot failed")
		}
	}

	switch action {
	case ActionKeep:
		if err := s.store.Keep(ctx, res.Identifier, res.Name, tmpPath); err != nil {
			result.Err = err
			return result
		}
		result.File = res.Name
	case ActionPromote:
		if err := s.store.Promote(ctx, res.Identifier, res.Name, tmpPath, latest); err != nil {
			result.Err = err
			return result
		}
		result.File = store.DatedName(res.Name, latest)
	case ActionDiscard:
		if err := s.store.Discard(ctx, res.Identifier, tmpPath); err != nil {
			result.Err = err
			return result
		}
	}

	result.Duration = time.Since(start)
	log.Info().
		Str("action", action.String()).
		Str("installed", result.File).
		Int64("rows", result.RowsWritten).
		Str("bytes", humanfmt.Bytes(result.BytesWritten)).
		Str("duration", humanfmt.Duration(result.Duration)).
		Msg("resource sync complete")
	return result
}

// download streams the resource body through the row filter into the temp
// file. Returns the number of data rows and bytes written.
func (s *Syncer) download(ctx context.Context, res catalog.Resource, tmpPath string, dates *rowstream.DateSet, cursor time.Time) (int64, int64, error) {
	body, err := s.fetcher.Fetch(ctx, res.DownloadURL)
	if err != nil {
		return 0, 0, fmt.Errorf("fetch: %w", err)
	}
	defer body.Close()

	out, err := os.Create(tmpPath)
	if err != nil {
		return 0, 0, fmt.Errorf("create temp file: %w", err)
	}
	defer out.Close()

	cw := &countingWriter{w: out}
	w := csv.NewWriter(cw)
	filter := rowstream.NewFilter(body, dates, cursor)

	var rows int64
	first := true
	for {
		row, err := filter.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return rows, cw.n, err
		}
		if err := w.Write(row); err != nil {
			return rows, cw.n, fmt.Errorf("write row: %w", err)
		}
		if first {
			first = false
		} else {
			rows++
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return rows, cw.n, fmt.Errorf("flush temp file: %w", err)
	}
	if err := out.Close(); err != nil {
		return rows, cw.n, fmt.Errorf("close temp file: %w", err)
	}
	return rows, cw.n, nil
}

func (s *Syncer) writeArchive(res catalog.Resource, tmpPath string, action Action, latest time.Time) error {
	name := res.Name
	if action == ActionPromote {
		name = store.DatedName(res.Name, latest)
	}
	return archive.WriteSnapshot(tmpPath, s.cfg.ArchiveDir, res.Identifier, name)
}

// countingWriter counts bytes on their way to the temp file.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
