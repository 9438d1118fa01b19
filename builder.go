// Package gtfsfeed builds validated static GTFS feeds from raw
// tabular source data.
package gtfsfeed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
	"time"

	"tidbyt.dev/gtfsfeed/assemble"
	"tidbyt.dev/gtfsfeed/config"
	"tidbyt.dev/gtfsfeed/downloader"
	"tidbyt.dev/gtfsfeed/model"
	"tidbyt.dev/gtfsfeed/parse"
	"tidbyt.dev/gtfsfeed/report"
	"tidbyt.dev/gtfsfeed/resolve"
	"tidbyt.dev/gtfsfeed/storage"
	"tidbyt.dev/gtfsfeed/validate"
)

const (
	DefaultFetchTimeout = 60 * time.Second
	DefaultFetchMaxSize = 800 << 20 // 800 MB
)

// Builder runs the load, resolve, validate and assemble pipeline.
type Builder struct {
	Config *config.Config
	Logger *log.Logger

	// Used for http(s) sources.
	Downloader   downloader.Downloader
	FetchHeaders map[string]string
	FetchTimeout time.Duration
	FetchMaxSize int

	// Cache lifetime of downloaded sources. Zero disables caching.
	CacheTTL time.Duration
}

// Outcome of a single build.
type Result struct {
	// Always present.
	Report *report.Report

	// Nil when assembly was blocked by a fatal finding.
	Feed *assemble.Feed

	// Per table load statistics, in load order.
	Tables []*parse.LoadResult
}

// Creates a Builder with the given config. A nil config means
// defaults.
func NewBuilder(cfg *config.Config) *Builder {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Builder{
		Config:       cfg,
		Logger:       log.New(io.Discard, "", 0),
		Downloader:   downloader.NewMemoryDownloader(),
		FetchTimeout: DefaultFetchTimeout,
		FetchMaxSize: DefaultFetchMaxSize,
	}
}

func isRemote(src string) bool {
	return strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://")
}

// Reads the files of a feed from a directory, a zip file or an http(s)
// URL pointing at a zip file.
func (b *Builder) Open(ctx context.Context, src string) (map[string][]byte, error) {
	if !isRemote(src) {
		return parse.ReadSource(src)
	}

	b.Logger.Printf("fetching %s", src)
	buf, err := b.Downloader.Get(ctx, src, b.FetchHeaders, downloader.GetOptions{
		MaxSize:  b.FetchMaxSize,
		Timeout:  b.FetchTimeout,
		Cache:    b.CacheTTL > 0,
		CacheTTL: b.CacheTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", src, err)
	}

	files, err := parse.ReadZip(buf)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", src, err)
	}
	return files, nil
}

// Opens and builds src.
func (b *Builder) BuildSource(ctx context.Context, src string) (*Result, error) {
	files, err := b.Open(ctx, src)
	if err != nil {
		return nil, err
	}
	return b.Build(src, files)
}

// Runs the full pipeline over files. Source is recorded in the report
// only.
//
// Problems with the data end up as findings in the report. The
// returned error is reserved for failures of the pipeline itself.
func (b *Builder) Build(source string, files map[string][]byte) (*Result, error) {
	cfg := b.Config
	findings := &model.Findings{}

	store := storage.NewMemoryStore()
	tables, err := parse.LoadFeed(store, files)
	if err != nil {
		return nil, fmt.Errorf("loading: %w", err)
	}
	for _, t := range tables {
		findings.Extend(t.Findings())
		b.Logger.Printf("loaded %s: %d rows, %d rejected", t.Table, t.Loaded, t.Rejected)
	}
	ignored := parse.Ignored(files)
	if len(ignored) > 0 {
		b.Logger.Printf("ignoring %s", strings.Join(ignored, ", "))
	}

	resolved := resolve.Resolve(store)
	findings.Extend(resolved.Findings)
	b.Logger.Printf("resolved references: %d findings", len(resolved.Findings))

	validated := validate.Run(store, resolved.Index, validate.Options{
		Window:              validationWindow(cfg.Window(), resolved.Index.FeedInfo),
		Region:              cfg.BBox(),
		Policy:              cfg.Policy(),
		MaxSpeedKmh:         cfg.MaxSpeedKmh,
		MaxParentDistanceKm: cfg.MaxParentDistanceKm,
		Workers:             cfg.Workers,
	})
	findings.Extend(validated)
	b.Logger.Printf("validated: %d findings", len(validated))

	if cfg.Strict {
		n := findings.Promote()
		if n > 0 {
			b.Logger.Printf("strict mode: promoted %d warnings to fatal", n)
		}
	}

	feed, err := assemble.Assemble(store, findings.List(), assemble.Options{
		Window:  cfg.Window(),
		Version: cfg.FeedVersion,
	})
	var blocked *assemble.BlockedError
	switch {
	case errors.As(err, &blocked):
		b.Logger.Printf("not assembling: %d fatal findings", blocked.Fatal)
		feed = nil
	case err != nil:
		return nil, fmt.Errorf("assembling: %w", err)
	}

	meta := report.Meta{
		Source:      source,
		InputSHA256: InputDigest(files),
		Strict:      cfg.Strict,
		Ignored:     ignored,
	}
	if feed != nil {
		meta.FeedVersion = feed.FeedInfo.Version
		b.Logger.Printf("assembled feed version %s", meta.FeedVersion)
	}

	return &Result{
		Report: report.Generate(findings.List(), meta),
		Feed:   feed,
		Tables: tables,
	}, nil
}

// The configured window, with unset bounds taken from feed_info.
func validationWindow(configured validate.Window, info *model.FeedInfo) validate.Window {
	w := configured
	if info == nil {
		return w
	}
	if info.StartDate != "" && info.EndDate != "" && info.StartDate > info.EndDate {
		// Reported as CalendarDateInversion.
		return w
	}
	if w.Start == "" {
		w.Start = info.StartDate
	}
	if w.End == "" {
		w.End = info.EndDate
	}
	return w
}

// Hex SHA-256 over file names and contents, independent of map order.
func InputDigest(files map[string][]byte) string {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	h := sha256.New()
	for _, name := range names {
		fmt.Fprintf(h, "%s\n%d\n", name, len(files[name]))
		h.Write(files[name])
	}
	return hex.EncodeToString(h.Sum(nil))
}
