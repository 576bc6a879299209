package cli

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config is the optional JSON configuration file. Every field has a flag
// counterpart; flags given on the command line win over file values.
type Config struct {
	BaseURL        string `json:"base_url"`
	Theme          string `json:"theme"`
	MediaType      string `json:"media_type"`
	DataDir        string `json:"data_dir"`
	Concurrency    int    `json:"concurrency"`
	FailFast       bool   `json:"fail_fast"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	S3Bucket       string `json:"s3_bucket"`
	ArchiveDir     string `json:"archive_dir"`
	StatsdAddr     string `json:"statsd_addr"`
}

// LoadConfig reads and parses a JSON config file.
func LoadConfig(path string) (Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return cfg, nil
}
