// Package report renders a comparison outcome for people (text, markdown)
// and for programs (json).
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"zimcompare/internal/archive"
	"zimcompare/internal/compare"
	"zimcompare/internal/delta"
	"zimcompare/internal/index"
)

// Format selects a rendering.
type Format string

const (
	Text     Format = "text"
	JSON     Format = "json"
	Markdown Format = "markdown"
)

// ParseFormat accepts text, json, markdown (or md); empty means text.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text":
		return Text, nil
	case "json":
		return JSON, nil
	case "markdown", "md":
		return Markdown, nil
	default:
		return "", fmt.Errorf("unknown report format %q (want text, json or markdown)", s)
	}
}

// Options controls rendering.
type Options struct {
	Format Format
	// List adds the keys of the removed, updated and added partitions.
	List bool
	// ListUnchanged also lists unchanged keys.
	ListUnchanged bool
	// Elapsed is printed when true.
	Elapsed bool
}

// Write renders out to w.
func Write(w io.Writer, out *compare.Outcome, opt Options) error {
	switch opt.Format {
	case "", Text:
		return writeText(w, out, opt)
	case JSON:
		return writeJSON(w, out, opt)
	case Markdown:
		return writeMarkdown(w, out, opt)
	default:
		return fmt.Errorf("unknown report format %q", opt.Format)
	}
}

// verbs are the text report wordings per partition.
var verbs = map[delta.Kind]string{
	delta.Removed: "removed in",
	delta.Updated: "updated in",
	delta.Added:   "added in",
}

func listed(k delta.Kind, opt Options) bool {
	if k == delta.Unchanged {
		return opt.ListUnchanged
	}
	return opt.List || opt.ListUnchanged
}

func writeText(w io.Writer, out *compare.Outcome, opt Options) error {
	ew := &errWriter{w: w}
	d := out.Delta
	for _, k := range delta.Kinds() {
		n := len(d.Partition(k))
		if k == delta.Unchanged {
			ew.printf("[INFO] %d %s remained unchanged\n", n, entries(n))
		} else {
			ew.printf("[INFO] %d %s %s %s\n", n, entries(n), verbs[k], out.Target.Path)
		}
		if listed(k, opt) {
			for _, key := range d.Keys(k) {
				ew.printf("  - %s\n", key)
			}
		}
	}
	for _, s := range []compare.Side{out.Base, out.Target} {
		if n := len(s.Failures); n > 0 {
			ew.printf("[WARN] %d unreadable %s skipped in %s\n", n, entries(n), s.Path)
			for _, f := range s.Failures {
				ew.printf("  - #%d %s: %s\n", f.Index, keyOf(f), f.Reason())
			}
		}
		if n := len(s.Duplicates); n > 0 {
			ew.printf("[WARN] %d duplicate %s ignored in %s\n", n, plural(n, "key", "keys"), s.Path)
		}
	}
	if opt.Elapsed {
		ew.printf("[INFO] Total time taken: %.3f seconds\n", out.Elapsed.Seconds())
	}
	return ew.err
}

func entries(n int) string { return plural(n, "entry", "entries") }

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func keyOf(f *archive.EntryReadError) index.Key {
	return index.Key{Namespace: f.Namespace, Name: f.Name}
}

type jsonSide struct {
	Path       string                    `json:"path"`
	Entries    int                       `json:"entries"`
	Records    int                       `json:"records"`
	Cached     bool                      `json:"cached,omitempty"`
	Failures   []*archive.EntryReadError `json:"failures,omitempty"`
	Duplicates []index.Record            `json:"duplicates,omitempty"`
}

type jsonReport struct {
	Base           jsonSide     `json:"base"`
	Target         jsonSide     `json:"target"`
	Counts         delta.Counts `json:"counts"`
	Identical      bool         `json:"identical"`
	Removed        []index.Key  `json:"removed"`
	Updated        []index.Key  `json:"updated"`
	Added          []index.Key  `json:"added"`
	Unchanged      []index.Key  `json:"unchanged,omitempty"`
	Moves          []delta.Move `json:"moves,omitempty"`
	ElapsedSeconds float64      `json:"elapsedSeconds,omitempty"`
}

func sideJSON(s compare.Side) jsonSide {
	return jsonSide{
		Path:       s.Path,
		Entries:    s.Entries,
		Records:    s.Records,
		Cached:     s.Cached,
		Failures:   s.Failures,
		Duplicates: s.Duplicates,
	}
}

// writeJSON always carries the changed partitions; unchanged keys only with
// ListUnchanged.
func writeJSON(w io.Writer, out *compare.Outcome, opt Options) error {
	d := out.Delta
	r := jsonReport{
		Base:      sideJSON(out.Base),
		Target:    sideJSON(out.Target),
		Counts:    d.Counts(),
		Identical: d.Empty(),
		Removed:   d.Keys(delta.Removed),
		Updated:   d.Keys(delta.Updated),
		Added:     d.Keys(delta.Added),
		Moves:     delta.Moves(d),
	}
	if opt.ListUnchanged {
		r.Unchanged = d.Keys(delta.Unchanged)
	}
	if opt.Elapsed {
		r.ElapsedSeconds = out.Elapsed.Round(time.Millisecond).Seconds()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func writeMarkdown(w io.Writer, out *compare.Outcome, opt Options) error {
	ew := &errWriter{w: w}
	d := out.Delta
	ew.printf("# Comparison of `%s` and `%s`\n\n", out.Base.Path, out.Target.Path)
	ew.printf("| partition | entries |\n|---|---|\n")
	for _, k := range delta.Kinds() {
		ew.printf("| %s | %d |\n", k, len(d.Partition(k)))
	}
	for _, k := range delta.Kinds() {
		keys := d.Keys(k)
		if !listed(k, opt) || len(keys) == 0 {
			continue
		}
		ew.printf("\n## %s\n\n", strings.ToUpper(k.String()[:1])+k.String()[1:])
		for _, key := range keys {
			ew.printf("- `%s`\n", key)
		}
	}
	for _, s := range []compare.Side{out.Base, out.Target} {
		if len(s.Failures) == 0 {
			continue
		}
		ew.printf("\n## Unreadable entries in `%s`\n\n", s.Path)
		for _, f := range s.Failures {
			ew.printf("- #%d `%s`: %s\n", f.Index, keyOf(f), f.Reason())
		}
	}
	if opt.Elapsed {
		ew.printf("\n_Compared in %.3f seconds._\n", out.Elapsed.Seconds())
	}
	return ew.err
}

// errWriter remembers the first write error so rendering code stays linear.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
