package rowstream

import (
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func drain(t *testing.T, f *Filter) [][]string {
	t.Helper()
	var rows [][]string
	for {
		row, err := f.Next()
		if errors.Is(err, io.EOF) {
			return rows
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		rows = append(rows, row)
	}
}

func TestFilterCursor(t *testing.T) {
	data := "Facility ID,End Date\n1,01/15/2023\n2,02/20/2023\n"
	dates := NewDateSet()
	f := NewFilter(strings.NewReader(data), dates, date(2023, time.January, 31))

	rows := drain(t, f)

	want := [][]string{
		{"facility_id", "end_date"},
		{"2", "02/20/2023"},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("rows = %v, want %v", rows, want)
	}

	// Both dates must be accumulated, including the filtered-out one.
	if dates.Len() != 2 {
		t.Errorf("dates.Len() = %d, want 2", dates.Len())
	}
	if !dates.Contains(date(2023, time.January, 15)) || !dates.Contains(date(2023, time.February, 20)) {
		t.Error("accumulator missing observed end dates")
	}
	if max, ok := dates.Max(); !ok || !max.Equal(date(2023, time.February, 20)) {
		t.Errorf("dates.Max() = %v, %v; want 2023-02-20, true", max, ok)
	}
}

func TestFilterNoCursor(t *testing.T) {
	data := "Facility ID,End Date\n1,01/15/2023\n2,02/20/2023\n"
	dates := NewDateSet()
	f := NewFilter(strings.NewReader(data), dates, time.Time{})

	rows := drain(t, f)
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want header + 2 data rows", len(rows))
	}
}

func TestFilterNoEndDateColumn(t *testing.T) {
	data := "Facility ID,Score\n1,95\n2,87\n"
	dates := NewDateSet()
	f := NewFilter(strings.NewReader(data), dates, date(2023, time.January, 31))

	rows := drain(t, f)

	// Everything passes through when there is no temporal partitioning,
	// even with a cursor.
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	if !dates.NoEndDateColumn() {
		t.Error("expected no-end-date-column sentinel to be set")
	}
	if dates.Len() != 0 {
		t.Errorf("dates.Len() = %d, want 0", dates.Len())
	}
}

func TestFilterEmptyEndDateCellPasses(t *testing.T) {
	data := "Facility ID,End Date\n1,\n2,01/15/2023\n"
	dates := NewDateSet()
	f := NewFilter(strings.NewReader(data), dates, date(2023, time.June, 1))

	rows := drain(t, f)

	// The undated row passes; the dated row is at or before the cursor.
	want := [][]string{
		{"facility_id", "end_date"},
		{"1", ""},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("rows = %v, want %v", rows, want)
	}
	if dates.Len() != 1 {
		t.Errorf("dates.Len() = %d, want 1", dates.Len())
	}
}

func TestFilterMalformedEndDateFails(t *testing.T) {
	data := "Facility ID,End Date\n1,not-a-date\n"
	dates := NewDateSet()
	f := NewFilter(strings.NewReader(data), dates, time.Time{})

	if _, err := f.Next(); err != nil {
		t.Fatalf("header read failed: %v", err)
	}
	if _, err := f.Next(); err == nil {
		t.Fatal("expected parse error for malformed end date, got nil")
	}
}

func TestFilterHeaderAlwaysEmitted(t *testing.T) {
	// Every data row is older than the cursor; the header must still come out.
	data := "Facility ID,End Date\n1,01/15/2020\n"
	dates := NewDateSet()
	f := NewFilter(strings.NewReader(data), dates, date(2023, time.January, 1))

	rows := drain(t, f)
	want := [][]string{{"facility_id", "end_date"}}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("rows = %v, want header only", rows)
	}
}

func TestFilterEndDateColumnSelection(t *testing.T) {
	cases := []struct {
		name   string
		header []string
		want   int
	}{
		{"exact", []string{"a", "end_date", "b"}, 1},
		{"suffix", []string{"a", "measure_end_date", "b"}, 1},
		{"exact beats earlier suffix", []string{"measure_end_date", "end_date"}, 1},
		{"first suffix wins", []string{"measure_end_date", "other_end_date"}, 0},
		{"none", []string{"a", "b"}, -1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := findEndDateColumn(tc.header); got != tc.want {
				t.Errorf("findEndDateColumn(%v) = %d, want %d", tc.header, got, tc.want)
			}
		})
	}
}

func TestFilterMissingHeader(t *testing.T) {
	f := NewFilter(strings.NewReader(""), NewDateSet(), time.Time{})
	if _, err := f.Next(); !errors.Is(err, ErrMissingHeader) {
		t.Errorf("err = %v, want ErrMissingHeader", err)
	}
}

func TestFilterUnpaddedCellDates(t *testing.T) {
	data := "Facility ID,End Date\n1,1/5/2023\n"
	dates := NewDateSet()
	f := NewFilter(strings.NewReader(data), dates, time.Time{})

	drain(t, f)
	if !dates.Contains(date(2023, time.January, 5)) {
		t.Error("expected 1/5/2023 to parse as 2023-01-05")
	}
}
