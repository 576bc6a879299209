// Package archive materializes mirrored CSV files as Parquet snapshots for
// downstream analytical use. Snapshots are written next to, not instead of,
// the CSV mirror; the mirror's file naming remains the cursor store.
package archive

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/parquet-go/parquet-go"
)

// writeBatchSize is the number of rows buffered per writer flush.
const writeBatchSize = 512

// WriteSnapshot converts the CSV file at csvPath into a Parquet file at
// <archiveDir>/<id>/<fileName>.parquet. The CSV header (already normalized)
// becomes the schema: every column is an optional string. The snapshot is
// written to a temp file and renamed into place.
func WriteSnapshot(csvPath, archiveDir, id, fileName string) error {
	in, err := os.Open(csvPath)
	if err != nil {
		return fmt.Errorf("open csv for snapshot: %w", err)
	}
	defer in.Close()

	outDir := filepath.Join(archiveDir, id)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}
	outPath := filepath.Join(outDir, fileName+".parquet")

	tmpPath := outPath + ".tmp"
	if err := writeParquet(in, tmpPath); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("install snapshot: %w", err)
	}
	return nil
}

func writeParquet(in io.Reader, tmpPath string) error {
	csvr := csv.NewReader(in)
	csvr.FieldsPerRecord = -1

	header, err := csvr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty csv file")
		}
		return fmt.Errorf("read csv header: %w", err)
	}
	columns := dedupeColumns(header)

	group := parquet.Group{}
	for _, col := range columns {
		group[col] = parquet.Optional(parquet.String())
	}
	schema := parquet.NewSchema("snapshot", group)

	out, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create snapshot temp file: %w", err)
	}
	defer out.Close()

	w := parquet.NewGenericWriter[map[string]any](out, schema)
	batch := make([]map[string]any, 0, writeBatchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if _, err := w.Write(batch); err != nil {
			return fmt.Errorf("write snapshot rows: %w", err)
		}
		batch = batch[:0]
		return nil
	}

	for {
		record, err := csvr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read csv row: %w", err)
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if i < len(record) && record[i] != "" {
				row[col] = record[i]
			}
		}
		batch = append(batch, row)

		if len(batch) == writeBatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}

	if err := flush(); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close snapshot writer: %w", err)
	}
	return out.Close()
}

// dedupeColumns disambiguates repeated column names so they can serve as
// schema field names; a duplicate gets its position appended.
func dedupeColumns(header []string) []string {
	seen := make(map[string]bool, len(header))
	columns := make([]string, len(header))
	for i, col := range header {
		if col == "" {
			col = "column_" + strconv.Itoa(i)
		}
		if seen[col] {
			col = col + "_" + strconv.Itoa(i)
		}
		seen[col] = true
		columns[i] = col
	}
	return columns
}
