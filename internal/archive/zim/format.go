// Package zim reads ZIM content archives: a header, a MIME type list, a
// path-ordered directory of entries and compressed clusters of blobs.
//
// Only reading is supported. Entries are produced in path-pointer order, the
// namespace/path order the container is written in.
package zim

import (
	"encoding/binary"
	"fmt"

	"zimcompare/internal/archive"
)

// Magic is the little-endian magic number at offset 0.
const Magic uint32 = 72173914

// HeaderSize is the fixed size of the file header.
const HeaderSize = 80

// MagicBytes is Magic as it appears on disk, used for format detection.
var MagicBytes = []byte{0x5a, 0x49, 0x4d, 0x04}

// Special MIME indices marking entries without a content blob.
const (
	mimeRedirect   uint16 = 0xffff
	mimeLinkTarget uint16 = 0xfffe
	mimeDeleted    uint16 = 0xfffd
)

// Cluster compression types (low nibble of the cluster info byte).
const (
	compDefault = 0
	compNone    = 1
	compZlib    = 2
	compBzip2   = 3
	compXZ      = 4
	compZstd    = 5

	clusterExtended = 0x10
)

// Header is the fixed file header.
type Header struct {
	Major         uint16
	Minor         uint16
	UUID          [16]byte
	EntryCount    uint32
	ClusterCount  uint32
	PathPtrPos    uint64
	TitlePtrPos   uint64
	ClusterPtrPos uint64
	MimeListPos   uint64
	MainPage      uint32
	LayoutPage    uint32
	ChecksumPos   uint64
}

func parseHeader(b []byte, size int64) (Header, error) {
	var h Header
	if len(b) < HeaderSize {
		return h, archive.Corruptf("header truncated (%d bytes)", len(b))
	}
	le := binary.LittleEndian
	if m := le.Uint32(b[0:]); m != Magic {
		return h, archive.Corruptf("bad magic %#x", m)
	}
	h.Major = le.Uint16(b[4:])
	h.Minor = le.Uint16(b[6:])
	copy(h.UUID[:], b[8:24])
	h.EntryCount = le.Uint32(b[24:])
	h.ClusterCount = le.Uint32(b[28:])
	h.PathPtrPos = le.Uint64(b[32:])
	h.TitlePtrPos = le.Uint64(b[40:])
	h.ClusterPtrPos = le.Uint64(b[48:])
	h.MimeListPos = le.Uint64(b[56:])
	h.MainPage = le.Uint32(b[64:])
	h.LayoutPage = le.Uint32(b[68:])
	h.ChecksumPos = le.Uint64(b[72:])

	usize := uint64(size)
	if h.MimeListPos < HeaderSize || h.MimeListPos >= usize {
		return h, archive.Corruptf("mime list position %d out of range", h.MimeListPos)
	}
	if !fits(h.PathPtrPos, uint64(h.EntryCount), 8, usize) {
		return h, archive.Corruptf("path pointer list (%d entries at %d) exceeds file size %d", h.EntryCount, h.PathPtrPos, size)
	}
	if !fits(h.ClusterPtrPos, uint64(h.ClusterCount), 8, usize) {
		return h, archive.Corruptf("cluster pointer list (%d clusters at %d) exceeds file size %d", h.ClusterCount, h.ClusterPtrPos, size)
	}
	if h.ChecksumPos != 0 && !fits(h.ChecksumPos, 1, 16, usize) {
		return h, archive.Corruptf("checksum position %d out of range", h.ChecksumPos)
	}
	return h, nil
}

// fits reports whether n items of width bytes starting at pos end within
// size, without overflowing on hostile offsets.
func fits(pos, n, width, size uint64) bool {
	return pos <= size && n <= (size-pos)/width
}

// Version renders major.minor.
func (h Header) Version() string {
	return fmt.Sprintf("%d.%d", h.Major, h.Minor)
}

// dirent is a parsed directory entry.
type dirent struct {
	mime      uint16
	namespace byte
	revision  uint32
	cluster   uint32
	blob      uint32
	redirect  uint32
	path      string
	title     string
}

func (d dirent) isRedirect() bool { return d.mime == mimeRedirect }

func (d dirent) hasContent() bool {
	return d.mime != mimeRedirect && d.mime != mimeLinkTarget && d.mime != mimeDeleted
}

// parseDirent decodes a directory entry from b. ok is false when b ends
// before the entry's strings are terminated, so the caller can retry with
// more bytes.
func parseDirent(b []byte) (d dirent, ok bool, err error) {
	le := binary.LittleEndian
	if len(b) < 8 {
		return d, false, nil
	}
	d.mime = le.Uint16(b[0:])
	paramLen := int(b[2])
	d.namespace = b[3]
	d.revision = le.Uint32(b[4:])

	var pos int
	switch d.mime {
	case mimeRedirect:
		if len(b) < 12 {
			return d, false, nil
		}
		d.redirect = le.Uint32(b[8:])
		pos = 12
	case mimeLinkTarget, mimeDeleted:
		pos = 8
	default:
		if len(b) < 16 {
			return d, false, nil
		}
		d.cluster = le.Uint32(b[8:])
		d.blob = le.Uint32(b[12:])
		pos = 16
	}

	path, n := cString(b[pos:])
	if n < 0 {
		return d, false, nil
	}
	pos += n
	title, n := cString(b[pos:])
	if n < 0 {
		return d, false, nil
	}
	pos += n
	if pos+paramLen > len(b) {
		return d, false, nil
	}
	if path == "" {
		return d, true, archive.Corruptf("directory entry with empty path")
	}
	d.path = path
	d.title = title
	return d, true, nil
}

// cString returns the zero-terminated string at the start of b and the
// number of bytes consumed including the terminator, or -1 when b holds no
// terminator.
func cString(b []byte) (string, int) {
	for i, c := range b {
		if c == 0 {
			return string(b[:i]), i + 1
		}
	}
	return "", -1
}

// parseMimeList decodes the zero-terminated MIME strings ending with an empty
// string.
func parseMimeList(b []byte) ([]string, error) {
	var out []string
	for {
		s, n := cString(b)
		if n < 0 {
			return nil, archive.Corruptf("unterminated mime type list")
		}
		if s == "" {
			return out, nil
		}
		out = append(out, s)
		b = b[n:]
	}
}
