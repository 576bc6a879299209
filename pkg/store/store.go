// Package store persists mirrored dataset files and derives sync cursors
// from the names of the files it holds. The store is the only durable state
// in the system: a resource's cursor is read back from its stored file name,
// not from a ledger.
//
// Two backends are provided: Local (one directory per resource) and S3 (one
// key prefix per resource). Both maintain the same invariant: after a
// successful pass a resource holds at most one current file, named either
// <name> (no temporal partition) or <YYYY-MM-DD>.<name> (complete through
// that date).
package store

import (
	"context"
	"strings"
	"time"
)

// PrefixDateLayout is the date format used as a file-name prefix on dated
// mirror files.
const PrefixDateLayout = "2006-01-02"

// TempSuffix marks in-progress download files. Temp files are never the
// current file of a resource and are swept on startup.
const TempSuffix = ".tmp"

// Store is the durable side of a sync pass. Resolve derives the cursor
// before a download; exactly one of Keep, Promote, or Discard consumes the
// temp file afterwards.
//
// Implementations must tolerate a resource that has never been synced.
// Callers must not run two concurrent passes for the same identifier.
type Store interface {
	// Prepare ensures storage exists for the resource and returns the
	// local path the caller should write the download into.
	Prepare(ctx context.Context, id, name string) (tmpPath string, err error)

	// Resolve derives the sync cursor for a resource from its stored file
	// names. A zero time means no prior sync produced a dated file; that
	// is not an error, and neither is a resource with no storage at all.
	Resolve(ctx context.Context, id string) (time.Time, error)

	// Keep installs the temp file as the permanent undated file <name>,
	// replacing any previous current file.
	Keep(ctx context.Context, id, name, tmpPath string) error

	// Promote installs the temp file as <latest>.<name>, replacing any
	// previous current file for the same base name.
	Promote(ctx context.Context, id, name, tmpPath string, latest time.Time) error

	// Discard removes the temp file, leaving the resource unchanged.
	Discard(ctx context.Context, id, tmpPath string) error
}

// DatedName returns the file name for a resource mirrored through the given
// end-date: "<YYYY-MM-DD>.<name>".
func DatedName(name string, latest time.Time) string {
	return latest.Format(PrefixDateLayout) + "." + name
}

// parseDatePrefix extracts the leading date stamp from a stored file name
// of the form "<YYYY-MM-DD>.<rest>". The second return value is false when
// the name has no parseable date prefix; such names are skipped, not fatal.
func parseDatePrefix(fileName string) (time.Time, bool) {
	prefix, rest, ok := strings.Cut(fileName, ".")
	if !ok || rest == "" {
		return time.Time{}, false
	}
	d, err := time.Parse(PrefixDateLayout, prefix)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

// isSibling reports whether a stored file name belongs to the resource base
// name: either the undated file itself or a dated version of it.
func isSibling(fileName, name string) bool {
	return fileName == name || strings.HasSuffix(fileName, "."+name)
}
