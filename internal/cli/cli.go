// Package cli implements the command-line interface for pdc-mirror.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openpdc/pdc-mirror/internal/logctx"
	"github.com/openpdc/pdc-mirror/pkg/catalog"
	"github.com/openpdc/pdc-mirror/pkg/fileutil"
	"github.com/openpdc/pdc-mirror/pkg/humanfmt"
	"github.com/openpdc/pdc-mirror/pkg/logging"
	"github.com/openpdc/pdc-mirror/pkg/metrics"
	"github.com/openpdc/pdc-mirror/pkg/store"
	"github.com/openpdc/pdc-mirror/pkg/syncer"
)

// Run executes the CLI with the given arguments.
func Run(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: pdc-mirror <command> [options]\ncommands: sync, discover")
	}

	switch args[0] {
	case "sync":
		return runSync(args[1:])
	case "discover":
		return runDiscover(args[1:])
	default:
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

// options holds the merged flag and config-file settings for a command.
type options struct {
	baseURL     string
	theme       string
	mediaType   string
	dataDir     string
	concurrency int
	failFast    bool
	timeout     time.Duration
	s3Bucket    string
	archiveDir  string
	statsdAddr  string
	debug       bool
	human       bool
}

// parseOptions registers the shared flags on fs, parses args, and merges in
// values from an optional JSON config file. Explicit flags win over the file.
func parseOptions(fs *flag.FlagSet, args []string) (options, error) {
	var opts options
	var configPath string

	fs.StringVar(&opts.baseURL, "base-url", "", "catalog API root (default: CMS provider-data catalog)")
	fs.StringVar(&opts.theme, "theme", "Hospitals", "dataset theme to mirror")
	fs.StringVar(&opts.mediaType, "media-type", "text/csv", "distribution media type to mirror")
	fs.StringVar(&opts.dataDir, "data-dir", "", "local mirror directory")
	fs.IntVar(&opts.concurrency, "concurrency", 0, "worker pool size (default: number of CPUs)")
	fs.BoolVar(&opts.failFast, "fail-fast", false, "abort the run on the first failed resource")
	fs.DurationVar(&opts.timeout, "timeout", 0, "per-request timeout including download body (default 10m)")
	fs.StringVar(&opts.s3Bucket, "s3-bucket", "", "mirror into this S3 bucket instead of the local directory")
	fs.StringVar(&opts.archiveDir, "archive-dir", "", "write Parquet snapshots of installed files here")
	fs.StringVar(&opts.statsdAddr, "statsd-addr", "", "statsd agent address for metrics, e.g. 127.0.0.1:8125")
	fs.BoolVar(&opts.debug, "debug", false, "enable debug logging")
	fs.BoolVar(&opts.human, "human", false, "human-friendly console log output")
	fs.StringVar(&configPath, "config", "", "path to JSON config file")

	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	if configPath != "" {
		cfg, err := LoadConfig(configPath)
		if err != nil {
			return opts, err
		}
		opts.applyConfig(fs, cfg)
	}
	return opts, nil
}

// applyConfig fills options from the config file for every flag the user
// did not set explicitly.
func (o *options) applyConfig(fs *flag.FlagSet, cfg Config) {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if !set["base-url"] && cfg.BaseURL != "" {
		o.baseURL = cfg.BaseURL
	}
	if !set["theme"] && cfg.Theme != "" {
		o.theme = cfg.Theme
	}
	if !set["media-type"] && cfg.MediaType != "" {
		o.mediaType = cfg.MediaType
	}
	if !set["data-dir"] && cfg.DataDir != "" {
		o.dataDir = cfg.DataDir
	}
	if !set["concurrency"] && cfg.Concurrency > 0 {
		o.concurrency = cfg.Concurrency
	}
	if !set["fail-fast"] && cfg.FailFast {
		o.failFast = true
	}
	if !set["timeout"] && cfg.TimeoutSeconds > 0 {
		o.timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	if !set["s3-bucket"] && cfg.S3Bucket != "" {
		o.s3Bucket = cfg.S3Bucket
	}
	if !set["archive-dir"] && cfg.ArchiveDir != "" {
		o.archiveDir = cfg.ArchiveDir
	}
	if !set["statsd-addr"] && cfg.StatsdAddr != "" {
		o.statsdAddr = cfg.StatsdAddr
	}
}

// newStore builds the configured store backend.
func newStore(ctx context.Context, opts options) (store.Store, error) {
	if opts.s3Bucket != "" {
		return store.NewS3(ctx, opts.s3Bucket, "")
	}
	if opts.dataDir == "" {
		return nil, errors.New("either -data-dir or -s3-bucket is required")
	}
	return store.NewLocal(opts.dataDir), nil
}

// discover lists the catalog and selects the resources to mirror.
func discover(ctx context.Context, client *catalog.Client, opts options) ([]catalog.Resource, error) {
	datasets, err := client.ListDatasets(ctx)
	if err != nil {
		return nil, err
	}
	return catalog.Discover(datasets, opts.theme, opts.mediaType), nil
}

func runSync(args []string) error {
	fs := flag.NewFlagSet("sync", flag.ContinueOnError)
	opts, err := parseOptions(fs, args)
	if err != nil {
		return err
	}

	logging.Init(opts.debug, opts.human)
	log := logging.WithPhase("sync")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logctx.WithLogger(ctx, log)

	st, err := newStore(ctx, opts)
	if err != nil {
		return err
	}

	// Abandoned temp files from an interrupted run are swept before a new
	// pass begins.
	if opts.dataDir != "" && opts.s3Bucket == "" {
		if err := fileutil.CleanupTmpFiles(opts.dataDir); err != nil {
			log.Warn().Err(err).Msg("tmp file sweep failed")
		}
	}

	rec, err := metrics.New(metrics.Config{
		Enabled: opts.statsdAddr != "",
		Address: opts.statsdAddr,
	})
	if err != nil {
		return err
	}
	defer rec.Close()

	client := catalog.NewClient(catalog.ClientConfig{
		BaseURL: opts.baseURL,
		Timeout: opts.timeout,
	})

	resources, err := discover(ctx, client, opts)
	if err != nil {
		return err
	}
	if len(resources) == 0 {
		log.Warn().
			Str("theme", opts.theme).
			Str("media_type", opts.mediaType).
			Msg("no matching resources in catalog")
		return nil
	}

	s := syncer.New(client, st, rec, syncer.Config{
		Concurrency: opts.concurrency,
		FailFast:    opts.failFast,
		ArchiveDir:  opts.archiveDir,
	})

	start := time.Now()
	report, runErr := s.Run(ctx, resources)

	var installed, discarded, skipped int
	for _, r := range report.Results {
		switch {
		case r.Failed() || r.Skipped:
			skipped++
		case r.File != "":
			installed++
		default:
			discarded++
		}
	}
	log.Info().
		Int("resources", len(report.Results)).
		Int("installed", installed).
		Int("unchanged", discarded).
		Int("failed_or_skipped", skipped).
		Str("duration", humanfmt.Duration(time.Since(start))).
		Msg("sync run finished")

	for _, r := range report.Failed() {
		log.Error().
			Str("resource", r.Identifier).
			Str("file", r.Name).
			Err(r.Err).
			Msg("resource sync failed")
	}

	if runErr != nil {
		return runErr
	}
	return report.Err()
}

func runDiscover(args []string) error {
	fs := flag.NewFlagSet("discover", flag.ContinueOnError)
	opts, err := parseOptions(fs, args)
	if err != nil {
		return err
	}

	logging.Init(opts.debug, opts.human)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := catalog.NewClient(catalog.ClientConfig{
		BaseURL: opts.baseURL,
		Timeout: opts.timeout,
	})
	resources, err := discover(ctx, client, opts)
	if err != nil {
		return err
	}

	for _, res := range resources {
		fmt.Printf("%s\t%s\t%s\n", res.Identifier, res.Name, res.DownloadURL)
	}
	fmt.Printf("%d resources\n", len(resources))
	return nil
}
