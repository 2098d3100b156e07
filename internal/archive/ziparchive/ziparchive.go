// Package ziparchive exposes a ZIP file as an archive.Archive. Entries come
// in central-directory order; directory records are skipped.
package ziparchive

import (
	"archive/zip"
	"context"
	"io"
	"strings"

	"zimcompare/internal/archive"
	"zimcompare/internal/ziputil"
)

// Magic prefixes of a local file header and of an empty archive's
// end-of-central-directory record.
var (
	LocalHeader = []byte("PK\x03\x04")
	EmptyEOCD   = []byte("PK\x05\x06")
)

// Archive iterates the members of a ZIP file.
type Archive struct {
	path   string
	rc     *zip.ReadCloser
	files  []*zip.File
	next   int
	cur    archive.Entry
	closed bool
}

// Open opens the ZIP file at path.
func Open(path string) (*Archive, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, archive.WrapOpen(path, err)
	}
	return &Archive{path: path, rc: rc, files: rc.File}, nil
}

// Format registers ZIP files with an archive.Opener.
func Format() archive.Format {
	return archive.Format{
		Name:   "zip",
		Detect: archive.HasPrefix(LocalHeader, EmptyEOCD),
		Open: func(_ context.Context, path string) (archive.Archive, error) {
			a, err := Open(path)
			if err != nil {
				return nil, err
			}
			return a, nil
		},
	}
}

func (a *Archive) Path() string { return a.path }

func (a *Archive) Next() bool {
	for a.next < len(a.files) {
		i := a.next
		f := a.files[i]
		a.next++
		if f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/") {
			continue
		}
		ns, name := archive.SplitNamespace(ziputil.SanitizePath(f.Name))
		e := archive.NewEntry(ns, name, "", i, func() (io.ReadCloser, error) {
			return f.Open()
		})
		e.Size = int64(f.UncompressedSize64)
		a.cur = e
		return true
	}
	return false
}

func (a *Archive) Entry() archive.Entry { return a.cur }

// Err is always nil: the central directory is read in full at open time.
func (a *Archive) Err() error { return nil }

func (a *Archive) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	return a.rc.Close()
}
