// Package archive abstracts the containers being compared: a content archive
// is opened once and iterated in a single forward pass, yielding named
// entries whose raw content can be streamed.
//
// Concrete containers live in subpackages (zim, ziparchive, dirarchive);
// an Opener picks one by looking at the path.
package archive

import (
	"io"
	"strings"
)

// Entry is one named unit of content. Open streams the raw bytes; it may be
// called at most once per iteration step and only until the archive
// advances.
type Entry struct {
	Namespace string
	Path      string
	Title     string
	Index     int
	Redirect  bool
	// MimeType is set by containers that record one.
	MimeType string
	// Size is the content length when the container knows it upfront, -1
	// otherwise.
	Size int64

	open func() (io.ReadCloser, error)
}

// NewEntry builds an entry whose content is produced by open.
func NewEntry(namespace, path, title string, index int, open func() (io.ReadCloser, error)) Entry {
	if title == "" {
		title = path
	}
	return Entry{Namespace: namespace, Path: path, Title: title, Index: index, Size: -1, open: open}
}

// Open returns the entry's raw content.
func (e Entry) Open() (io.ReadCloser, error) {
	if e.open == nil {
		return io.NopCloser(strings.NewReader("")), nil
	}
	return e.open()
}

// Name returns the attribute selected by mode.
func (e Entry) Name(mode NameMode) string {
	if mode == NameTitle && e.Title != "" {
		return e.Title
	}
	return e.Path
}

// NameMode selects which entry attribute identifies it across archives.
type NameMode int

const (
	// NamePath identifies entries by their path (unique per namespace in a
	// well-formed ZIM file).
	NamePath NameMode = iota
	// NameTitle identifies entries by their display title.
	NameTitle
)

// ParseNameMode maps "path" / "title" to a NameMode.
func ParseNameMode(s string) (NameMode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "path", "url":
		return NamePath, true
	case "title":
		return NameTitle, true
	default:
		return NamePath, false
	}
}

func (m NameMode) String() string {
	if m == NameTitle {
		return "title"
	}
	return "path"
}

// Archive is an open container iterated once, front to back. Typical use:
//
//	for a.Next() {
//		e := a.Entry()
//		...
//	}
//	if err := a.Err(); err != nil { ... }
type Archive interface {
	// Path is the location the archive was opened from.
	Path() string
	// Next advances to the next entry. It returns false at the end or when
	// the container fails; Err tells the two apart.
	Next() bool
	// Entry returns the current entry.
	Entry() Entry
	// Err returns the error that stopped iteration, nil at a clean end.
	Err() error
	Close() error
}

// SplitNamespace splits "A/Some/Page" into ("A", "Some/Page") when the first
// segment is a single character, the layout ZIM dump tools produce.
// Anything else keeps an empty namespace.
func SplitNamespace(p string) (string, string) {
	if len(p) > 2 && p[1] == '/' {
		return p[:1], p[2:]
	}
	return "", p
}
