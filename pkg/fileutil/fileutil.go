// Package fileutil provides small filesystem helpers shared by the mirror's
// store and CLI layers.
package fileutil

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/openpdc/pdc-mirror/pkg/logging"
)

// Exists returns true if the file exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// IsNonEmpty returns true if the file exists and has non-zero size.
func IsNonEmpty(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Size() > 0
}

// CleanupTmpFiles removes all .tmp files in the given directory recursively.
// Abandoned temp files from an interrupted run never affect cursor
// resolution, so removing them is purely housekeeping.
func CleanupTmpFiles(dir string) error {
	log := logging.L()

	var removed int
	err := filepath.Walk(dir, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			// Continue walking even if individual paths fail
			return nil //nolint:nilerr
		}
		if !info.IsDir() && strings.HasSuffix(path, ".tmp") {
			if rmErr := os.Remove(path); rmErr == nil {
				removed++
			}
		}
		return nil
	})

	if removed > 0 {
		log.Debug().Int("files_removed", removed).Str("dir", dir).Msg("cleaned up tmp files")
	}

	return err
}
