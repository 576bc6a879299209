package rowstream

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/openpdc/pdc-mirror/pkg/colname"
)

// CellDateLayout is the date format used in end-date cells (month/day/year,
// with or without zero padding).
const CellDateLayout = "1/2/2006"

// ErrMissingHeader is returned when the stream ends before a header row.
var ErrMissingHeader = errors.New("missing header row")

// Filter reads delimited rows from a byte stream, normalizes the header,
// and filters data rows against a sync cursor.
//
// The first call to Next returns the normalized header row; it is always
// emitted, regardless of filtering. Subsequent calls return data rows that
// pass the cursor filter, and io.EOF once the stream is drained.
//
// Every non-empty end-date cell is parsed and added to the accumulator,
// including cells on rows that are filtered out; the accumulator is only
// complete once Next has returned io.EOF. A non-empty cell that does not
// parse fails the stream rather than passing through, since a silently
// corrupted cursor is worse than a failed sync.
type Filter struct {
	csvReader *csv.Reader
	dates     *DateSet
	cursor    time.Time // zero means no cursor

	header     []string
	endDateCol int // -1 when the dataset has no end-date column
	headerRead bool
	line       int
}

// NewFilter creates a Filter over r. The accumulator collects every end-date
// observed in the stream. A zero cursor means no prior sync: every data row
// is emitted.
func NewFilter(r io.Reader, dates *DateSet, cursor time.Time) *Filter {
	csvr := csv.NewReader(r)
	csvr.ReuseRecord = true
	csvr.FieldsPerRecord = -1 // variable field count
	csvr.LazyQuotes = true    // tolerate malformed quotes

	return &Filter{
		csvReader:  csvr,
		dates:      dates,
		cursor:     cursor,
		endDateCol: -1,
	}
}

// Header returns the normalized header row. It is nil until the first call
// to Next.
func (f *Filter) Header() []string {
	return f.header
}

// Next returns the next row: first the normalized header, then data rows
// that pass the cursor filter, then io.EOF. The returned slice is owned by
// the caller.
func (f *Filter) Next() ([]string, error) {
	if !f.headerRead {
		return f.readHeader()
	}

	for {
		fields, err := f.csvReader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("read row: %w", err)
		}
		f.line++

		row := make([]string, len(fields))
		copy(row, fields)

		if f.endDateCol < 0 {
			// No temporal partitioning: pass everything through.
			return row, nil
		}

		var end time.Time
		if f.endDateCol < len(row) && row[f.endDateCol] != "" {
			end, err = time.Parse(CellDateLayout, row[f.endDateCol])
			if err != nil {
				return nil, fmt.Errorf("row %d: parse end date %q: %w", f.line, row[f.endDateCol], err)
			}
			f.dates.Add(end)
		}

		// Emit unless the row is dated at or before the cursor.
		if f.cursor.IsZero() || end.IsZero() || end.After(f.cursor) {
			return row, nil
		}
	}
}

func (f *Filter) readHeader() ([]string, error) {
	fields, err := f.csvReader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrMissingHeader
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	f.headerRead = true

	header := make([]string, len(fields))
	for i, raw := range fields {
		header[i] = colname.Normalize(raw)
	}
	f.header = header
	f.endDateCol = findEndDateColumn(header)
	if f.endDateCol < 0 {
		f.dates.MarkNoEndDateColumn()
	}

	row := make([]string, len(header))
	copy(row, header)
	return row, nil
}

// findEndDateColumn locates the end-date column in a normalized header.
// The first column named exactly "end_date" wins; otherwise the first
// column whose name ends with "end_date" is used. Returns -1 if none match.
func findEndDateColumn(header []string) int {
	found := -1
	for i, col := range header {
		if col == "end_date" {
			return i
		}
		if found < 0 && strings.HasSuffix(col, "end_date") {
			found = i
		}
	}
	return found
}
