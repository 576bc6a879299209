package cli

import (
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRunNoArgs(t *testing.T) {
	err := Run(nil)
	if err == nil {
		t.Fatal("expected error with no args")
	}
	if !strings.Contains(err.Error(), "usage") {
		t.Errorf("expected usage message, got: %v", err)
	}
}

func TestRunUnknownCommand(t *testing.T) {
	err := Run([]string{"unknown"})
	if err == nil {
		t.Fatal("expected error with unknown command")
	}
	if !strings.Contains(err.Error(), "unknown command") {
		t.Errorf("expected 'unknown command' error, got: %v", err)
	}
}

func TestParseOptionsDefaults(t *testing.T) {
	fs := flag.NewFlagSet("sync", flag.ContinueOnError)
	opts, err := parseOptions(fs, nil)
	if err != nil {
		t.Fatalf("parseOptions: %v", err)
	}
	if opts.theme != "Hospitals" {
		t.Errorf("theme = %q, want Hospitals", opts.theme)
	}
	if opts.mediaType != "text/csv" {
		t.Errorf("mediaType = %q, want text/csv", opts.mediaType)
	}
	if opts.failFast {
		t.Error("failFast should default to false")
	}
}

func TestParseOptionsConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"theme": "Dialysis facilities",
		"data_dir": "/srv/mirror",
		"concurrency": 8,
		"fail_fast": true,
		"timeout_seconds": 120
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	fs := flag.NewFlagSet("sync", flag.ContinueOnError)
	opts, err := parseOptions(fs, []string{"-config", path})
	if err != nil {
		t.Fatalf("parseOptions: %v", err)
	}

	if opts.theme != "Dialysis facilities" {
		t.Errorf("theme = %q, want config value", opts.theme)
	}
	if opts.dataDir != "/srv/mirror" {
		t.Errorf("dataDir = %q, want config value", opts.dataDir)
	}
	if opts.concurrency != 8 {
		t.Errorf("concurrency = %d, want 8", opts.concurrency)
	}
	if !opts.failFast {
		t.Error("failFast should come from config")
	}
	if opts.timeout != 2*time.Minute {
		t.Errorf("timeout = %v, want 2m", opts.timeout)
	}
}

func TestParseOptionsFlagsWinOverConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"theme": "Dialysis facilities", "concurrency": 8}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	fs := flag.NewFlagSet("sync", flag.ContinueOnError)
	opts, err := parseOptions(fs, []string{"-config", path, "-theme", "Hospitals", "-concurrency", "2"})
	if err != nil {
		t.Fatalf("parseOptions: %v", err)
	}

	if opts.theme != "Hospitals" {
		t.Errorf("theme = %q, explicit flag should win", opts.theme)
	}
	if opts.concurrency != 2 {
		t.Errorf("concurrency = %d, explicit flag should win", opts.concurrency)
	}
}

func TestParseOptionsMissingConfigFile(t *testing.T) {
	fs := flag.NewFlagSet("sync", flag.ContinueOnError)
	_, err := parseOptions(fs, []string{"-config", "/no/such/file.json"})
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadConfigInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestSyncRequiresStore(t *testing.T) {
	err := Run([]string{"sync"})
	if err == nil {
		t.Fatal("expected error without -data-dir or -s3-bucket")
	}
	if !strings.Contains(err.Error(), "-data-dir") {
		t.Errorf("expected store requirement in error, got: %v", err)
	}
}
