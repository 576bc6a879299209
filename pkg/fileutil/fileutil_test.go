package fileutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestExists(t *testing.T) {
	tmpDir := t.TempDir()

	// Test non-existent file
	if Exists(filepath.Join(tmpDir, "nonexistent")) {
		t.Error("Exists returned true for non-existent file")
	}

	// Test existing file
	path := filepath.Join(tmpDir, "exists.txt")
	if err := os.WriteFile(path, []byte("content"), 0644); err != nil {
		t.Fatal(err)
	}
	if !Exists(path) {
		t.Error("Exists returned false for existing file")
	}
}

func TestIsNonEmpty(t *testing.T) {
	tmpDir := t.TempDir()

	// Test non-existent file
	if IsNonEmpty(filepath.Join(tmpDir, "nonexistent")) {
		t.Error("IsNonEmpty returned true for non-existent file")
	}

	// Test empty file
	emptyPath := filepath.Join(tmpDir, "empty.txt")
	if err := os.WriteFile(emptyPath, []byte{}, 0644); err != nil {
		t.Fatal(err)
	}
	if IsNonEmpty(emptyPath) {
		t.Error("IsNonEmpty returned true for empty file")
	}

	// Test non-empty file
	nonEmptyPath := filepath.Join(tmpDir, "nonempty.txt")
	if err := os.WriteFile(nonEmptyPath, []byte("content"), 0644); err != nil {
		t.Fatal(err)
	}
	if !IsNonEmpty(nonEmptyPath) {
		t.Error("IsNonEmpty returned false for non-empty file")
	}
}

func TestCleanupTmpFiles(t *testing.T) {
	tmpDir := t.TempDir()

	// Create some .tmp files and regular files
	tmpFile1 := filepath.Join(tmpDir, "file1.tmp")
	tmpFile2 := filepath.Join(tmpDir, "subdir", "file2.tmp")
	regularFile := filepath.Join(tmpDir, "regular.txt")

	if err := os.MkdirAll(filepath.Join(tmpDir, "subdir"), 0755); err != nil {
		t.Fatal(err)
	}
	for _, path := range []string{tmpFile1, tmpFile2, regularFile} {
		if err := os.WriteFile(path, []byte("content"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	if err := CleanupTmpFiles(tmpDir); err != nil {
		t.Fatalf("CleanupTmpFiles failed: %v", err)
	}

	// Verify .tmp files are removed
	if Exists(tmpFile1) {
		t.Error("tmpFile1 still exists")
	}
	if Exists(tmpFile2) {
		t.Error("tmpFile2 still exists")
	}

	// Verify regular file still exists
	if !Exists(regularFile) {
		t.Error("regularFile was removed")
	}
}

func TestCleanupTmpFilesMissingDir(t *testing.T) {
	// A missing data dir is not an error worth failing a run over; the walk
	// just visits nothing.
	if err := CleanupTmpFiles(filepath.Join(t.TempDir(), "nope")); err != nil {
		t.Fatalf("CleanupTmpFiles on missing dir: %v", err)
	}
}
