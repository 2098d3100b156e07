// Package cache persists per-archive fingerprint snapshots so repeated
// comparisons against the same file skip re-extraction.
//
// Layout:
//   - one directory per archive: <root>/<pathKey>/
//   - the snapshot:              <root>/<pathKey>/index.json
//
// Only extraction results without entry read failures are stored.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const indexFileName = "index.json"

// PathKey returns a short, stable identifier for an absolute archive path
// (the first 12 hex chars of its sha256).
func PathKey(abs string) string {
	sum := sha256.Sum256([]byte(abs))
	return hex.EncodeToString(sum[:])[:12]
}

// Dir resolves the cache directory of the archive at abs below root.
func Dir(root, abs string) string {
	return filepath.Join(root, PathKey(abs))
}

// StampOf stats path and combines the result with the extraction settings.
func StampOf(path, algorithm, keyMode string) (Stamp, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Stamp{}, err
	}
	return Stamp{Size: info.Size(), ModTime: info.ModTime().UTC(), Algorithm: algorithm, KeyMode: keyMode}, nil
}

// Load reads the snapshot from <dir>/index.json. A missing file yields
// (nil, nil).
func Load(dir string) (*Snapshot, error) {
	b, err := os.ReadFile(filepath.Join(dir, indexFileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var s Snapshot
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", dir, err)
	}
	return &s, nil
}

// Save writes s atomically to <dir>/index.json: readers never observe a
// partial file.
func Save(dir string, s *Snapshot) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if s.FormatVersion == "" {
		s.FormatVersion = FormatVersion
	}
	if s.Created == "" {
		s.Created = time.Now().UTC().Format(time.RFC3339)
	}
	f, err := os.CreateTemp(dir, ".tmp-"+indexFileName+"-")
	if err != nil {
		return err
	}
	tmp := f.Name()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, filepath.Join(dir, indexFileName))
}

// Lookup returns the cached snapshot of the archive at abs when it is fresh
// for want, nil otherwise. Unreadable cache entries count as misses.
func Lookup(root, abs string, want Stamp) *Snapshot {
	s, err := Load(Dir(root, abs))
	if err != nil || !s.Fresh(want) {
		return nil
	}
	return s
}

// Clear removes the cache directory dir. Missing directories are fine.
func Clear(dir string) error {
	if dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return os.RemoveAll(dir)
}
