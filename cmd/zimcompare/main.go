// Package main provides the zimcompare CLI that compares two content
// archives (ZIM files, ZIP dumps, directories or s3:// objects) entry by
// entry and reports which entries were removed, updated, added or left
// unchanged.
//
// Usage:
//
//	zimcompare [flags] <archive_a> <archive_b>
//
// Exit codes: 0 success (whatever the differences), 1 runtime error,
// 2 usage or configuration error, 3 archives differ (only with -fail-on-diff).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"zimcompare/internal/archive"
	"zimcompare/internal/archive/dirarchive"
	"zimcompare/internal/archive/remote"
	"zimcompare/internal/archive/zim"
	"zimcompare/internal/bundle"
	"zimcompare/internal/cache"
	"zimcompare/internal/compare"
	"zimcompare/internal/config"
	"zimcompare/internal/delta"
	"zimcompare/internal/diff"
	"zimcompare/internal/fingerprint"
	"zimcompare/internal/index"
	"zimcompare/internal/meta"
	"zimcompare/internal/report"
	"zimcompare/internal/validate"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
	exitDiffers = 3
)

// cliConfig is the parsed command line. opts holds the flag values; set
// names the flags given explicitly, which alone override file and env
// settings.
type cliConfig struct {
	configPath string
	envFile    string
	verbose    bool
	quiet      bool
	failOnDiff bool
	showDiff   bool
	clearCache bool
	version    bool
	excludeCSV string

	base, target string

	opts config.Config
	set  map[string]bool
}

func newFlagSet(c *cliConfig) *flag.FlagSet {
	def := config.Default()
	fs := flag.NewFlagSet("zimcompare", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&c.configPath, "config", "", "YAML config file")
	fs.StringVar(&c.envFile, "env-file", ".env", "dotenv file with ZIMCOMPARE_* settings (missing file is fine)")
	fs.BoolVar(&c.verbose, "v", false, "verbose logging (debug level)")
	fs.BoolVar(&c.quiet, "q", false, "quiet logging (errors only)")
	fs.BoolVar(&c.failOnDiff, "fail-on-diff", false, "exit with status 3 when the archives differ")
	fs.BoolVar(&c.showDiff, "show-diff", false, "print unified diffs of updated text entries after the report")
	fs.BoolVar(&c.clearCache, "clear-cache", false, "drop cached fingerprints of both archives before comparing")
	fs.BoolVar(&c.version, "version", false, "print version and exit")

	// Comparison
	fs.StringVar(&c.opts.Hash, "hash", def.Hash, "fingerprint algorithm: adler32, highway64, xxh3")
	fs.StringVar(&c.opts.Key, "key", def.Key, "entry attribute used as name: path or title")
	fs.StringVar(&c.opts.Duplicates, "duplicates", def.Duplicates, "duplicate key policy: first or reject")
	fs.BoolVar(&c.opts.Strict, "strict", def.Strict, "abort on the first unreadable entry")
	fs.BoolVar(&c.opts.Parallel, "parallel", def.Parallel, "extract both archives concurrently")
	fs.DurationVar(&c.opts.Timeout, "timeout", def.Timeout, "whole-run timeout (0 = none)")

	// Output
	fs.StringVar(&c.opts.Format, "format", def.Format, "report format: text, json, markdown")
	fs.BoolVar(&c.opts.List, "list", def.List, "list keys of removed, updated and added entries")
	fs.BoolVar(&c.opts.ListUnchanged, "list-unchanged", def.ListUnchanged, "also list unchanged keys")
	fs.StringVar(&c.opts.Bundle, "bundle", def.Bundle, "write a delta ZIP bundle to this path")
	fs.IntVar(&c.opts.DiffContext, "diff-context", def.DiffContext, "unified diff context lines")
	fs.IntVar(&c.opts.MaxDiffBytes, "max-diff-bytes", def.MaxDiffBytes, "max bytes per entry diff (0 = no limit)")

	// Readers & cache
	fs.StringVar(&c.opts.CacheDir, "cache-dir", def.CacheDir, "fingerprint snapshot cache directory (empty = off)")
	fs.BoolVar(&c.opts.VerifyChecksum, "verify-checksum", def.VerifyChecksum, "verify the ZIM MD5 checksum at open")
	fs.IntVar(&c.opts.ClusterCache, "cluster-cache", def.ClusterCache, "decompressed ZIM clusters kept in memory")
	fs.StringVar(&c.excludeCSV, "exclude", strings.Join(def.Dir.Exclude, ","), "comma-separated name prefixes skipped in directory archives")
	fs.BoolVar(&c.opts.Dir.Gitignore, "use-gitignore", def.Dir.Gitignore, "honor .gitignore in directory archives")
	fs.BoolVar(&c.opts.Dir.FollowSymlinks, "follow-symlinks", def.Dir.FollowSymlinks, "follow symlinks in directory archives")
	return fs
}

// parseFlags parses args (without the program name).
func parseFlags(args []string) (cliConfig, error) {
	var c cliConfig
	fs := newFlagSet(&c)
	if err := fs.Parse(args); err != nil {
		return c, err
	}
	c.set = make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { c.set[f.Name] = true })
	if c.version {
		return c, nil
	}
	if c.verbose && c.quiet {
		return c, errors.New("-v and -q are mutually exclusive")
	}
	if fs.NArg() != 2 {
		return c, fmt.Errorf("expected <archive_a> <archive_b>, got %d argument(s)", fs.NArg())
	}
	c.base, c.target = fs.Arg(0), fs.Arg(1)
	return c, nil
}

// flagSetters copy one explicitly given flag into the resolved config.
var flagSetters = map[string]func(dst *config.Config, c cliConfig){
	"hash":            func(d *config.Config, c cliConfig) { d.Hash = c.opts.Hash },
	"key":             func(d *config.Config, c cliConfig) { d.Key = c.opts.Key },
	"duplicates":      func(d *config.Config, c cliConfig) { d.Duplicates = c.opts.Duplicates },
	"strict":          func(d *config.Config, c cliConfig) { d.Strict = c.opts.Strict },
	"parallel":        func(d *config.Config, c cliConfig) { d.Parallel = c.opts.Parallel },
	"timeout":         func(d *config.Config, c cliConfig) { d.Timeout = c.opts.Timeout },
	"format":          func(d *config.Config, c cliConfig) { d.Format = c.opts.Format },
	"list":            func(d *config.Config, c cliConfig) { d.List = c.opts.List },
	"list-unchanged":  func(d *config.Config, c cliConfig) { d.ListUnchanged = c.opts.ListUnchanged },
	"bundle":          func(d *config.Config, c cliConfig) { d.Bundle = c.opts.Bundle },
	"diff-context":    func(d *config.Config, c cliConfig) { d.DiffContext = c.opts.DiffContext },
	"max-diff-bytes":  func(d *config.Config, c cliConfig) { d.MaxDiffBytes = c.opts.MaxDiffBytes },
	"cache-dir":       func(d *config.Config, c cliConfig) { d.CacheDir = c.opts.CacheDir },
	"verify-checksum": func(d *config.Config, c cliConfig) { d.VerifyChecksum = c.opts.VerifyChecksum },
	"cluster-cache":   func(d *config.Config, c cliConfig) { d.ClusterCache = c.opts.ClusterCache },
	"exclude":         func(d *config.Config, c cliConfig) { d.Dir.Exclude = config.SplitCSV(c.excludeCSV) },
	"use-gitignore":   func(d *config.Config, c cliConfig) { d.Dir.Gitignore = c.opts.Dir.Gitignore },
	"follow-symlinks": func(d *config.Config, c cliConfig) { d.Dir.FollowSymlinks = c.opts.Dir.FollowSymlinks },
}

// resolveConfig layers defaults, the config file, the env file, the
// environment and the explicit flags, then validates the result.
func resolveConfig(c cliConfig, lookup config.Lookup) (config.Config, error) {
	cfg := config.Default()
	if c.configPath != "" {
		if err := config.LoadFile(c.configPath, &cfg); err != nil {
			return cfg, err
		}
	}
	if err := config.LoadDotEnv(c.envFile); err != nil {
		return cfg, err
	}
	if err := config.ApplyEnv(&cfg, lookup); err != nil {
		return cfg, err
	}
	for name := range c.set {
		if apply, ok := flagSetters[name]; ok {
			apply(&cfg, c)
		}
	}
	return cfg, validate.Config(cfg)
}

// runOptions is a validated config turned into the options of each stage.
type runOptions struct {
	compare compare.Options
	opener  compare.OpenerOptions
	report  report.Options
	diff    diff.Options
	bundle  string
	timeout time.Duration
}

func buildOptions(cfg config.Config, log *slog.Logger) (runOptions, error) {
	alg, err := fingerprint.Parse(cfg.Hash)
	if err != nil {
		return runOptions{}, err
	}
	mode, ok := archive.ParseNameMode(cfg.Key)
	if !ok {
		return runOptions{}, fmt.Errorf("unknown key mode %q", cfg.Key)
	}
	policy, err := index.ParsePolicy(cfg.Duplicates)
	if err != nil {
		return runOptions{}, err
	}
	format, err := report.ParseFormat(cfg.Format)
	if err != nil {
		return runOptions{}, err
	}
	return runOptions{
		compare: compare.Options{
			Algorithm:      alg,
			NameMode:       mode,
			Duplicates:     policy,
			Strict:         cfg.Strict,
			Parallel:       cfg.Parallel,
			CacheDir:       cfg.CacheDir,
			VerifyChecksum: cfg.VerifyChecksum,
			Logger:         log,
		},
		opener: compare.OpenerOptions{
			Zim: zim.Options{
				ClusterCache:   cfg.ClusterCache,
				VerifyChecksum: cfg.VerifyChecksum,
			},
			Dir: dirarchive.Options{
				Exclude:        cfg.Dir.Exclude,
				UseGitignore:   cfg.Dir.Gitignore,
				FollowSymlinks: cfg.Dir.FollowSymlinks,
			},
			S3: remote.S3Config{
				Endpoint:  cfg.S3.Endpoint,
				Region:    cfg.S3.Region,
				AccessKey: cfg.S3.AccessKey,
				SecretKey: cfg.S3.SecretKey,
				UseSSL:    cfg.S3.UseSSL,
			},
			Logger: log,
		},
		report: report.Options{
			Format:        format,
			List:          cfg.List,
			ListUnchanged: cfg.ListUnchanged,
			Elapsed:       format != report.JSON,
		},
		diff: diff.Options{
			MaxBytes: cfg.MaxDiffBytes,
			Context:  cfg.DiffContext,
		},
		bundle:  cfg.Bundle,
		timeout: cfg.Timeout,
	}, nil
}

func newLogger(w io.Writer, verbose, quiet bool) *slog.Logger {
	level := slog.LevelWarn
	switch {
	case verbose:
		level = slog.LevelDebug
	case quiet:
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func usage(w io.Writer) {
	fmt.Fprintf(w, "Usage:\n  %s [flags] <archive_a> <archive_b>\n", filepath.Base(os.Args[0]))
	fmt.Fprintln(w, "  Archives are ZIM or ZIP files, directories or s3://bucket/key URLs.")
	fmt.Fprintln(w, "\nFlags:")
	var c cliConfig
	fs := newFlagSet(&c)
	fs.SetOutput(w)
	fs.PrintDefaults()
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr, os.LookupEnv))
}

func run(args []string, stdout, stderr io.Writer, lookup config.Lookup) int {
	c, err := parseFlags(args)
	if errors.Is(err, flag.ErrHelp) {
		usage(stderr)
		return exitOK
	}
	if err != nil {
		fmt.Fprintln(stderr, "ERROR:", err)
		usage(stderr)
		return exitUsage
	}
	if c.version {
		fmt.Fprintln(stdout, meta.Detect())
		return exitOK
	}

	cfg, err := resolveConfig(c, lookup)
	if err != nil {
		fmt.Fprintln(stderr, "ERROR:", err)
		return exitUsage
	}
	log := newLogger(stderr, c.verbose, c.quiet)
	opt, err := buildOptions(cfg, log)
	if err != nil {
		fmt.Fprintln(stderr, "ERROR:", err)
		return exitUsage
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if opt.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opt.timeout)
		defer cancel()
	}

	opener, err := compare.NewOpener(opt.opener)
	if err != nil {
		fmt.Fprintln(stderr, "ERROR:", err)
		return exitFailure
	}
	opt.compare.Opener = opener

	if c.clearCache && cfg.CacheDir != "" {
		clearCached(cfg.CacheDir, log, c.base, c.target)
	}

	out, err := compare.Compare(ctx, c.base, c.target, opt.compare)
	if err != nil {
		fmt.Fprintln(stderr, "ERROR:", err)
		return exitFailure
	}
	if err := report.Write(stdout, out, opt.report); err != nil {
		fmt.Fprintln(stderr, "ERROR: writing report:", err)
		return exitFailure
	}

	if c.showDiff || opt.bundle != "" {
		if err := emitDiffs(ctx, stdout, opener, out, opt, c.showDiff); err != nil {
			fmt.Fprintln(stderr, "ERROR:", err)
			return exitFailure
		}
	}

	if c.failOnDiff && out.Changed() {
		return exitDiffers
	}
	return exitOK
}

// clearCached drops the snapshots of local archives.
func clearCached(root string, log *slog.Logger, paths ...string) {
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			continue
		}
		if err := cache.Clear(cache.Dir(root, abs)); err != nil {
			log.Warn("cannot clear cached fingerprints", "archive", p, "err", err)
		}
	}
}

// emitDiffs reads the contents of changed entries back from both archives,
// prints the patches of updated entries when show is set and writes the
// delta bundle when one was requested. The bundle also carries patches for
// added and removed entries.
func emitDiffs(ctx context.Context, w io.Writer, opener *archive.Opener, out *compare.Outcome, opt runOptions, show bool) error {
	baseKeys := out.Delta.Keys(delta.Updated)
	targetKeys := out.Delta.Keys(delta.Updated)
	if opt.bundle != "" {
		baseKeys = append(baseKeys, out.Delta.Keys(delta.Removed)...)
		targetKeys = append(targetKeys, out.Delta.Keys(delta.Added)...)
	}
	copt := compare.ContentOptions{NameMode: opt.compare.NameMode, MaxBytes: opt.diff.MaxBytes}

	var contents bundle.Contents
	var err error
	if contents.Base, err = compare.Contents(ctx, opener, out.Base.Path, baseKeys, copt); err != nil {
		return fmt.Errorf("read %s: %w", out.Base.Path, err)
	}
	if contents.Target, err = compare.Contents(ctx, opener, out.Target.Path, targetKeys, copt); err != nil {
		return fmt.Errorf("read %s: %w", out.Target.Path, err)
	}
	diffs, patches := bundle.MakeDiffs(out.Delta, contents, opt.diff)

	if show {
		for _, p := range patches {
			if p.Kind != delta.Updated.String() {
				continue
			}
			if _, err := fmt.Fprint(w, "\n"+diffs[strings.TrimPrefix(p.Path, "diffs/")]); err != nil {
				return err
			}
		}
	}

	if opt.bundle == "" {
		return nil
	}
	idx := bundle.NewDeltaIndex(out.Base.Path, out.Target.Path, out.Delta)
	idx.Algorithm = string(opt.compare.Algorithm)
	idx.KeyMode = opt.compare.NameMode.String()
	idx.Patches = patches
	idx.Failures = append(append(idx.Failures, out.Base.Failures...), out.Target.Failures...)
	if err := bundle.WriteDelta(opt.bundle, idx, diffs, bundle.ReadmeOptions{
		ContextLines: opt.diff.Context,
		MaxDiffBytes: opt.diff.MaxBytes,
	}); err != nil {
		return fmt.Errorf("write bundle %s: %w", opt.bundle, err)
	}
	opt.compare.Logger.Info("wrote delta bundle", "path", opt.bundle, "patches", len(patches))
	return nil
}
