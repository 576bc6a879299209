// Package rowstream streams delimited tabular data, normalizing headers and
// filtering rows against a sync cursor while collecting observed end-dates.
package rowstream

import "time"

// DateSet accumulates the distinct end-dates observed while streaming one
// resource. A resource with no end-date column at all is marked with the
// no-column sentinel instead, which signals that the dataset has no temporal
// partitioning and is always mirrored in full.
//
// DateSet is not safe for concurrent use; each sync unit owns its own set.
type DateSet struct {
	dates    map[time.Time]struct{}
	noColumn bool
}

// NewDateSet returns an empty accumulator.
func NewDateSet() *DateSet {
	return &DateSet{dates: make(map[time.Time]struct{})}
}

// Add records an observed end-date.
func (s *DateSet) Add(d time.Time) {
	s.dates[d] = struct{}{}
}

// MarkNoEndDateColumn records that the dataset has no end-date column.
func (s *DateSet) MarkNoEndDateColumn() {
	s.noColumn = true
}

// NoEndDateColumn reports whether the no-column sentinel is set.
func (s *DateSet) NoEndDateColumn() bool {
	return s.noColumn
}

// Len returns the number of distinct end-dates recorded.
func (s *DateSet) Len() int {
	return len(s.dates)
}

// Max returns the latest recorded end-date. The second return value is false
// when no dates were recorded.
func (s *DateSet) Max() (time.Time, bool) {
	var max time.Time
	for d := range s.dates {
		if d.After(max) {
			max = d
		}
	}
	return max, len(s.dates) > 0
}

// Contains reports whether the given date was recorded.
func (s *DateSet) Contains(d time.Time) bool {
	_, ok := s.dates[d]
	return ok
}
