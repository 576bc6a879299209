package syncer

import (
	"time"

	"github.com/openpdc/pdc-mirror/pkg/rowstream"
)

// Action is the finalize decision for a freshly written temp file.
type Action int

const (
	// ActionDiscard deletes the temp file: the pass produced nothing newer
	// than the cursor (or no dated rows at all).
	ActionDiscard Action = iota

	// ActionKeep installs the temp file as the permanent undated file:
	// the dataset has no end-date column.
	ActionKeep

	// ActionPromote installs the temp file under its dated name, advancing
	// the cursor to the latest observed end-date.
	ActionPromote
)

// String returns the action name for logs and reports.
func (a Action) String() string {
	switch a {
	case ActionKeep:
		return "keep"
	case ActionPromote:
		return "promote"
	default:
		return "discard"
	}
}

// Decide applies the finalize decision table to a fully drained end-date
// accumulator and the cursor used for the pass. The returned time is the
// promotion date and is only meaningful for ActionPromote.
//
// The cursor only advances when new, later data actually arrived: a pass
// that observes no end-date past the cursor is discarded so no empty or
// duplicate file is left behind.
func Decide(dates *rowstream.DateSet, cursor time.Time) (Action, time.Time) {
	if dates.NoEndDateColumn() {
		return ActionKeep, time.Time{}
	}

	latest, ok := dates.Max()
	if !ok {
		// The end-date column exists but no row carried a value.
		return ActionDiscard, time.Time{}
	}
	if cursor.IsZero() || latest.After(cursor) {
		return ActionPromote, latest
	}
	return ActionDiscard, time.Time{}
}
