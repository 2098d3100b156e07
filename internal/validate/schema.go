// Package validate checks a resolved configuration before a comparison
// starts. It is not a schema engine; it checks the structural and semantic
// constraints that commonly catch bad settings and reports all of them at
// once.
package validate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"zimcompare/internal/archive"
	"zimcompare/internal/config"
	"zimcompare/internal/fingerprint"
	"zimcompare/internal/index"
	"zimcompare/internal/report"
)

// Config validates cfg:
//
//   - hash, key, duplicates and format name known values.
//   - diff_context, max_diff_bytes, cluster_cache and timeout are >= 0.
//   - bundle, when set, ends in .zip and is not an existing directory.
//   - dir.exclude entries are non-empty base-name prefixes (no slashes).
//   - s3.endpoint is a host[:port] without scheme, and access/secret keys are
//     given together.
//
// The function returns nil if everything looks fine, or a single aggregated
// error describing all the issues found.
func Config(cfg config.Config) error {
	var errs errlist

	if _, err := fingerprint.Parse(cfg.Hash); err != nil {
		errs.add("hash: %v", err)
	}
	if _, ok := archive.ParseNameMode(cfg.Key); !ok {
		errs.add("key: must be path or title (got %q)", cfg.Key)
	}
	if _, err := index.ParsePolicy(cfg.Duplicates); err != nil {
		errs.add("duplicates: %v", err)
	}
	if _, err := report.ParseFormat(cfg.Format); err != nil {
		errs.add("format: %v", err)
	}

	if cfg.DiffContext < 0 {
		errs.add("diff_context must be >= 0 (got %d)", cfg.DiffContext)
	}
	if cfg.MaxDiffBytes < 0 {
		errs.add("max_diff_bytes must be >= 0 (got %d)", cfg.MaxDiffBytes)
	}
	if cfg.ClusterCache < 0 {
		errs.add("cluster_cache must be >= 0 (got %d)", cfg.ClusterCache)
	}
	if cfg.Timeout < 0 {
		errs.add("timeout must be >= 0 (got %s)", cfg.Timeout)
	}

	if cfg.Bundle != "" {
		if !strings.EqualFold(filepath.Ext(cfg.Bundle), ".zip") {
			errs.add("bundle: path should end in .zip (got %q)", cfg.Bundle)
		}
		if fi, err := os.Stat(cfg.Bundle); err == nil && fi.IsDir() {
			errs.add("bundle: %q is a directory", cfg.Bundle)
		}
	}

	for i, p := range cfg.Dir.Exclude {
		if strings.TrimSpace(p) == "" {
			errs.add("dir.exclude[%d]: must be non-empty", i)
		} else if strings.ContainsAny(p, `/\`) {
			errs.add("dir.exclude[%d]: %q is matched against base names and must not contain slashes", i, p)
		}
	}

	if ep := cfg.S3.Endpoint; ep != "" {
		if strings.Contains(ep, "://") {
			errs.add("s3.endpoint must be host[:port] without scheme (got %q); use s3.use_ssl", ep)
		} else if strings.ContainsAny(ep, "/ ") {
			errs.add("s3.endpoint must be host[:port] (got %q)", ep)
		}
	}
	if (cfg.S3.AccessKey == "") != (cfg.S3.SecretKey == "") {
		errs.add("s3: access_key and secret_key must be set together")
	}

	return errs.err()
}

// errlist aggregates multiple validation issues into a single error.
type errlist struct {
	msgs []string
}

func (e *errlist) add(format string, args ...any) {
	if e == nil {
		return
	}
	e.msgs = append(e.msgs, fmt.Sprintf(format, args...))
}

func (e *errlist) err() error {
	if e == nil || len(e.msgs) == 0 {
		return nil
	}
	// Join with newline for readability.
	return errors.New(strings.Join(e.msgs, "\n"))
}
