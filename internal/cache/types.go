package cache

import (
	"time"

	"zimcompare/internal/index"
)

// FormatVersion versions the snapshot schema. Snapshots with another
// version are ignored.
const FormatVersion = "1"

// Snapshot is the extraction result of one archive file, valid as long as
// the file's size and modification time are unchanged and it was produced
// with the same fingerprint algorithm and naming mode.
//
// Records are stored in extraction order so duplicate resolution on reload
// is identical to a fresh extraction.
type Snapshot struct {
	Archive       string         `json:"archive"`
	Size          int64          `json:"size"`
	ModTime       time.Time      `json:"modTime"`
	Algorithm     string         `json:"algorithm"`
	KeyMode       string         `json:"keyMode"`
	FormatVersion string         `json:"formatVersion"`
	Created       string         `json:"created"`
	Entries       int            `json:"entries"`
	Records       []index.Record `json:"records"`
}

// Fresh reports whether s describes the archive state in want.
func (s *Snapshot) Fresh(want Stamp) bool {
	return s != nil &&
		s.FormatVersion == FormatVersion &&
		s.Size == want.Size &&
		s.ModTime.Equal(want.ModTime) &&
		s.Algorithm == want.Algorithm &&
		s.KeyMode == want.KeyMode
}

// Stamp identifies an archive file state and the extraction settings.
type Stamp struct {
	Size      int64
	ModTime   time.Time
	Algorithm string
	KeyMode   string
}
