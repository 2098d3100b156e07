package bundle

// This file writes the delta ZIP. Layout:
//
//	delta.index.json            machine-readable delta
//	SUMMARY.md                  counts and key lists
//	README.md                   layout and conventions
//	delta.patch                 all patches concatenated (sorted by name)
//	diffs/<ns>_<name>.patch     one patch per entry (sorted by name)
//
// Output is deterministic: fixed timestamps, sorted entries, stable names.

import (
	"archive/zip"
	"os"
	"path/filepath"

	"zimcompare/internal/archive"
	"zimcompare/internal/delta"
	"zimcompare/internal/index"
	"zimcompare/internal/sortutil"
	"zimcompare/internal/textutil"
	"zimcompare/internal/ziputil"
)

// DeltaIndex is the content of delta.index.json.
type DeltaIndex struct {
	Base      string                    `json:"base"`
	Target    string                    `json:"target"`
	Algorithm string                    `json:"algorithm"`
	KeyMode   string                    `json:"keyMode"`
	Counts    delta.Counts              `json:"counts"`
	Removed   []index.Key               `json:"removed"`
	Updated   []index.Key               `json:"updated"`
	Added     []index.Key               `json:"added"`
	Moves     []delta.Move              `json:"moves,omitempty"`
	Patches   []Patch                   `json:"patches,omitempty"`
	Failures  []*archive.EntryReadError `json:"failures,omitempty"`
}

// NewDeltaIndex fills the key lists and counts from res.
func NewDeltaIndex(base, target string, res *delta.Result) DeltaIndex {
	return DeltaIndex{
		Base:    base,
		Target:  target,
		Counts:  res.Counts(),
		Removed: res.Keys(delta.Removed),
		Updated: res.Keys(delta.Updated),
		Added:   res.Keys(delta.Added),
		Moves:   delta.Moves(res),
	}
}

// WriteDelta writes the bundle to zipPath, creating parent directories.
func WriteDelta(zipPath string, idx DeltaIndex, diffs map[string]string, readme ReadmeOptions) (err error) {
	if err := os.MkdirAll(filepath.Dir(zipPath), 0o755); err != nil {
		return err
	}
	f, err := os.Create(zipPath)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	zw := zip.NewWriter(f)
	if err := writeEntries(zw, idx, diffs, readme); err != nil {
		_ = zw.Close()
		return err
	}
	return zw.Close()
}

func writeEntries(zw *zip.Writer, idx DeltaIndex, diffs map[string]string, readme ReadmeOptions) error {
	if err := ziputil.WriteJSON(zw, "delta.index.json", idx); err != nil {
		return err
	}
	summary, err := GenerateSummary(idx)
	if err != nil {
		return err
	}
	if err := ziputil.WriteText(zw, "SUMMARY.md", summary); err != nil {
		return err
	}
	rd, err := GenerateDeltaReadme(readme)
	if err != nil {
		return err
	}
	if err := ziputil.WriteText(zw, "README.md", rd); err != nil {
		return err
	}

	names := sortutil.Keys(diffs)
	if len(names) == 0 {
		return nil
	}
	bodies := make([][]byte, len(names))
	for i, n := range names {
		bodies[i] = textutil.EnsureTrailingLF([]byte(diffs[n]))
	}
	var all []byte
	for _, b := range bodies {
		all = append(all, b...)
	}
	if err := ziputil.WriteText(zw, "delta.patch", all); err != nil {
		return err
	}
	used := make(map[string]struct{}, len(names))
	for i, n := range names {
		zname := ziputil.EnsureUniqueName(ziputil.SanitizePath("diffs/"+n), used)
		if err := ziputil.WriteText(zw, zname, bodies[i]); err != nil {
			return err
		}
	}
	return nil
}
