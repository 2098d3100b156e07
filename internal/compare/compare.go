// Package compare runs a full comparison of two archives: open, extract
// fingerprints (optionally from the snapshot cache), index and diff.
package compare

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"zimcompare/internal/archive"
	"zimcompare/internal/archive/dirarchive"
	"zimcompare/internal/archive/zim"
	"zimcompare/internal/cache"
	"zimcompare/internal/delta"
	"zimcompare/internal/extract"
	"zimcompare/internal/fingerprint"
	"zimcompare/internal/index"
)

// Options controls a comparison.
type Options struct {
	Algorithm  fingerprint.Algorithm
	NameMode   archive.NameMode
	Duplicates index.DuplicatePolicy
	// Strict aborts on the first unreadable entry.
	Strict bool
	// Parallel extracts both archives concurrently.
	Parallel bool
	// CacheDir enables the fingerprint snapshot cache for local files.
	CacheDir string
	// VerifyChecksum must match the opener's checksum setting. Snapshots are
	// not reused while it is set, so every run reopens and verifies the file.
	VerifyChecksum bool
	// Opener resolves paths; nil means NewOpener with zero options.
	Opener *archive.Opener
	Logger *slog.Logger
}

// Side is what a comparison learned about one archive.
type Side struct {
	Path       string                    `json:"path"`
	Entries    int                       `json:"entries"`
	Records    int                       `json:"records"`
	Failures   []*archive.EntryReadError `json:"failures"`
	Duplicates []index.Record            `json:"duplicates"`
	Cached     bool                      `json:"cached,omitempty"`
}

// Outcome is the result of Compare.
type Outcome struct {
	Base    Side          `json:"base"`
	Target  Side          `json:"target"`
	Delta   *delta.Result `json:"delta"`
	Elapsed time.Duration `json:"elapsed"`
}

// Changed reports whether the archives differ.
func (o *Outcome) Changed() bool { return o.Delta != nil && !o.Delta.Empty() }

// Compare diffs the archive at targetPath against the one at basePath.
// An open failure, a fatal iteration error or (with Strict) an unreadable
// entry aborts with no Outcome.
func Compare(ctx context.Context, basePath, targetPath string, opt Options) (*Outcome, error) {
	start := time.Now()
	log := logger(opt.Logger)
	if opt.Opener == nil {
		o, err := NewOpener(OpenerOptions{Logger: opt.Logger})
		if err != nil {
			return nil, err
		}
		opt.Opener = o
	}

	var base, target *sideResult
	run := func(ctx context.Context, path string, dst **sideResult) func() error {
		return func() error {
			r, err := load(ctx, path, opt, log)
			if err != nil {
				return err
			}
			*dst = r
			return nil
		}
	}
	if opt.Parallel {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(run(gctx, basePath, &base))
		g.Go(run(gctx, targetPath, &target))
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		if err := run(ctx, basePath, &base)(); err != nil {
			return nil, err
		}
		if err := run(ctx, targetPath, &target)(); err != nil {
			return nil, err
		}
	}

	baseSet, err := index.Build(base.res.Records, opt.Duplicates)
	if err != nil {
		return nil, fmt.Errorf("index %s: %w", basePath, err)
	}
	targetSet, err := index.Build(target.res.Records, opt.Duplicates)
	if err != nil {
		return nil, fmt.Errorf("index %s: %w", targetPath, err)
	}

	out := &Outcome{
		Base:   base.side(baseSet),
		Target: target.side(targetSet),
		Delta:  delta.Compute(baseSet, targetSet),
	}
	out.Elapsed = time.Since(start)
	c := out.Delta.Counts()
	log.InfoContext(ctx, "comparison finished",
		"base", basePath, "target", targetPath,
		"removed", c.Removed, "updated", c.Updated, "added", c.Added, "unchanged", c.Unchanged,
		"keys", c.Total(), "elapsed", out.Elapsed)
	return out, nil
}

type sideResult struct {
	res    *extract.Result
	cached bool
}

func (s *sideResult) side(set *index.Set) Side {
	return Side{
		Path:       s.res.Path,
		Entries:    s.res.Entries,
		Records:    set.Len(),
		Failures:   s.res.Failures,
		Duplicates: set.Duplicates(),
		Cached:     s.cached,
	}
}

// load extracts path, going through the snapshot cache when enabled.
func load(ctx context.Context, path string, opt Options, log *slog.Logger) (*sideResult, error) {
	stamp, abs, cacheable := cacheStamp(path, opt)
	if cacheable && !opt.VerifyChecksum {
		if snap := cache.Lookup(opt.CacheDir, abs, stamp); snap != nil {
			log.DebugContext(ctx, "using cached fingerprints", "archive", path, "records", len(snap.Records))
			return &sideResult{
				res:    &extract.Result{Path: path, Records: snap.Records, Entries: snap.Entries},
				cached: true,
			}, nil
		}
	}

	a, err := opt.Opener.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer a.Close()
	log.DebugContext(ctx, "extracting", append([]any{"archive", path}, describe(a)...)...)
	res, err := extract.Extract(ctx, a, extract.Options{
		Algorithm: opt.Algorithm,
		NameMode:  opt.NameMode,
		Strict:    opt.Strict,
		Logger:    opt.Logger,
	})
	if err != nil {
		return nil, err
	}
	res.Path = path

	if cacheable && len(res.Failures) == 0 {
		snap := &cache.Snapshot{
			Archive:   abs,
			Size:      stamp.Size,
			ModTime:   stamp.ModTime,
			Algorithm: stamp.Algorithm,
			KeyMode:   stamp.KeyMode,
			Entries:   res.Entries,
			Records:   res.Records,
		}
		if err := cache.Save(cache.Dir(opt.CacheDir, abs), snap); err != nil {
			log.WarnContext(ctx, "cannot store fingerprint snapshot", "archive", path, "err", err)
		}
	}
	return &sideResult{res: res}, nil
}

// describe returns log attributes for what is known about a before
// iteration starts.
func describe(a archive.Archive) []any {
	switch a := a.(type) {
	case *zim.Archive:
		zr := a.Reader()
		return []any{
			"format", "zim",
			"version", zr.Header().Version(),
			"entries", zr.EntryCount(),
			"mimeTypes", zr.MimeTypes(),
		}
	case *dirarchive.Archive:
		return []any{"format", "dir", "entries", a.Len()}
	}
	return nil
}

// cacheStamp reports whether path is a local regular file eligible for the
// snapshot cache and returns its stamp and absolute path.
func cacheStamp(path string, opt Options) (cache.Stamp, string, bool) {
	if opt.CacheDir == "" {
		return cache.Stamp{}, "", false
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return cache.Stamp{}, "", false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return cache.Stamp{}, "", false
	}
	alg := opt.Algorithm
	if alg == "" {
		alg = fingerprint.Default
	}
	stamp, err := cache.StampOf(abs, string(alg), opt.NameMode.String())
	if err != nil {
		return cache.Stamp{}, "", false
	}
	return stamp, abs, true
}

func logger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return l
}
