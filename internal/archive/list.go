package archive

import (
	"bytes"
	"io"
)

// List is an Archive over entries already known in memory (container
// directories that are read upfront, or test fixtures).
type List struct {
	path    string
	entries []Entry
	pos     int
	err     error
	closer  func() error
	closed  bool

	fatalAt  int
	fatalErr error
}

// NewList returns an archive iterating entries in order. closer, if not nil,
// runs once on Close.
func NewList(path string, entries []Entry, closer func() error) *List {
	return &List{path: path, entries: entries, pos: -1, closer: closer, fatalAt: -1}
}

// FailAt makes iteration stop with err when it reaches position i.
func (l *List) FailAt(i int, err error) *List {
	l.fatalAt, l.fatalErr = i, err
	return l
}

func (l *List) Path() string { return l.path }

func (l *List) Next() bool {
	if l.err != nil || l.closed {
		return false
	}
	l.pos++
	if l.fatalAt >= 0 && l.pos == l.fatalAt {
		l.err = l.fatalErr
		return false
	}
	return l.pos < len(l.entries)
}

func (l *List) Entry() Entry {
	if l.pos < 0 || l.pos >= len(l.entries) {
		return Entry{}
	}
	return l.entries[l.pos]
}

func (l *List) Err() error { return l.err }

func (l *List) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	if l.closer != nil {
		return l.closer()
	}
	return nil
}

// MemoryEntry describes an in-memory entry. A non-nil Err makes reading the
// entry fail.
type MemoryEntry struct {
	Namespace string
	Path      string
	Title     string
	Content   []byte
	Err       error
}

// NewMemory builds an archive from literal entries, indexed in the order
// given.
func NewMemory(path string, entries ...MemoryEntry) *List {
	out := make([]Entry, 0, len(entries))
	for i, me := range entries {
		e := NewEntry(me.Namespace, me.Path, me.Title, i, func() (io.ReadCloser, error) {
			if me.Err != nil {
				return nil, me.Err
			}
			return io.NopCloser(bytes.NewReader(me.Content)), nil
		})
		e.Size = int64(len(me.Content))
		out = append(out, e)
	}
	return NewList(path, out, nil)
}
