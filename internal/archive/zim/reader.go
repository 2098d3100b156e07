package zim

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	lru "github.com/hashicorp/golang-lru/v2"

	"zimcompare/internal/archive"
)

// DefaultClusterCache is the number of decompressed clusters kept in memory.
const DefaultClusterCache = 64

// direntProbe is the first read size for a directory entry; longer entries
// are re-read with a doubled buffer.
const direntProbe = 512

// Options tunes a Reader.
type Options struct {
	// ClusterCache bounds the decompressed cluster cache (entries, not
	// bytes). Values below 1 use DefaultClusterCache.
	ClusterCache int
	// VerifyChecksum checks the trailing MD5 before any entry is read.
	VerifyChecksum bool
}

// Reader gives random access to a ZIM file's directory and blobs.
type Reader struct {
	r      io.ReaderAt
	size   int64
	header Header
	mimes  []string
	cache  *lru.Cache[uint32, *cluster]
}

// NewReader parses the header and MIME list of the ZIM data in r.
func NewReader(r io.ReaderAt, size int64, opt Options) (*Reader, error) {
	buf := make([]byte, HeaderSize)
	if _, err := r.ReadAt(buf, 0); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, archive.Corruptf("file too short for a ZIM header (%d bytes)", size)
		}
		return nil, err
	}
	h, err := parseHeader(buf, size)
	if err != nil {
		return nil, err
	}

	cacheSize := opt.ClusterCache
	if cacheSize < 1 {
		cacheSize = DefaultClusterCache
	}
	cache, err := lru.New[uint32, *cluster](cacheSize)
	if err != nil {
		return nil, err
	}
	zr := &Reader{r: r, size: size, header: h, cache: cache}

	if err := zr.readMimeList(); err != nil {
		return nil, err
	}
	if opt.VerifyChecksum {
		if err := zr.Verify(); err != nil {
			return nil, err
		}
	}
	return zr, nil
}

// Header returns the parsed file header.
func (zr *Reader) Header() Header { return zr.header }

// MimeTypes returns the MIME type list.
func (zr *Reader) MimeTypes() []string { return append([]string(nil), zr.mimes...) }

// EntryCount is the number of directory entries.
func (zr *Reader) EntryCount() int { return int(zr.header.EntryCount) }

func (zr *Reader) readMimeList() error {
	end := uint64(zr.size)
	for _, p := range []uint64{zr.header.PathPtrPos, zr.header.TitlePtrPos, zr.header.ClusterPtrPos} {
		if p > zr.header.MimeListPos && p < end {
			end = p
		}
	}
	buf := make([]byte, end-zr.header.MimeListPos)
	if _, err := zr.r.ReadAt(buf, int64(zr.header.MimeListPos)); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	mimes, err := parseMimeList(buf)
	if err != nil {
		return err
	}
	zr.mimes = mimes
	return nil
}

// Verify compares the MD5 of everything before the checksum position with
// the stored checksum.
func (zr *Reader) Verify() error {
	pos := zr.header.ChecksumPos
	if pos == 0 {
		return archive.Corruptf("file carries no checksum")
	}
	want := make([]byte, md5.Size)
	if _, err := zr.r.ReadAt(want, int64(pos)); err != nil {
		return fmt.Errorf("read checksum: %w", err)
	}
	h := md5.New()
	if _, err := io.Copy(h, io.NewSectionReader(zr.r, 0, int64(pos))); err != nil {
		return fmt.Errorf("hash file: %w", err)
	}
	if got := h.Sum(nil); !bytes.Equal(got, want) {
		return archive.Corruptf("checksum mismatch: stored %x, computed %x", want, got)
	}
	return nil
}

func (zr *Reader) u64At(off uint64) (uint64, error) {
	var b [8]byte
	if _, err := zr.r.ReadAt(b[:], int64(off)); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

// direntAt reads directory entry i (path pointer order).
func (zr *Reader) direntAt(i uint32) (dirent, error) {
	if i >= zr.header.EntryCount {
		return dirent{}, archive.Corruptf("entry index %d out of range", i)
	}
	off, err := zr.u64At(zr.header.PathPtrPos + 8*uint64(i))
	if err != nil {
		return dirent{}, fmt.Errorf("read path pointer %d: %w", i, err)
	}
	if off >= uint64(zr.size) {
		return dirent{}, archive.Corruptf("directory entry %d at %d beyond end of file", i, off)
	}
	for n := direntProbe; ; n *= 2 {
		avail := zr.size - int64(off)
		short := int64(n) >= avail
		if short {
			n = int(avail)
		}
		buf := make([]byte, n)
		if _, err := zr.r.ReadAt(buf, int64(off)); err != nil && !errors.Is(err, io.EOF) {
			return dirent{}, err
		}
		d, ok, err := parseDirent(buf)
		if err != nil {
			return dirent{}, err
		}
		if ok {
			return d, nil
		}
		if short {
			return dirent{}, archive.Corruptf("directory entry %d truncated", i)
		}
	}
}

// clusterAt returns cluster n, decompressing it on a cache miss.
func (zr *Reader) clusterAt(n uint32) (*cluster, error) {
	if c, ok := zr.cache.Get(n); ok {
		return c, nil
	}
	if n >= zr.header.ClusterCount {
		return nil, archive.Corruptf("cluster %d out of range (%d clusters)", n, zr.header.ClusterCount)
	}
	start, err := zr.u64At(zr.header.ClusterPtrPos + 8*uint64(n))
	if err != nil {
		return nil, fmt.Errorf("read cluster pointer %d: %w", n, err)
	}
	end := uint64(zr.size)
	if n+1 < zr.header.ClusterCount {
		if end, err = zr.u64At(zr.header.ClusterPtrPos + 8*uint64(n+1)); err != nil {
			return nil, fmt.Errorf("read cluster pointer %d: %w", n+1, err)
		}
	} else if zr.header.ChecksumPos != 0 {
		end = zr.header.ChecksumPos
	}
	if start >= end || end > uint64(zr.size) {
		return nil, archive.Corruptf("cluster %d spans [%d, %d)", n, start, end)
	}
	raw := make([]byte, end-start)
	if _, err := zr.r.ReadAt(raw, int64(start)); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	c, err := decodeCluster(raw)
	if err != nil {
		return nil, fmt.Errorf("cluster %d: %w", n, err)
	}
	zr.cache.Add(n, c)
	return c, nil
}

// content returns the raw bytes of d. Redirects resolve to their target's
// "namespace/path" so a retargeted redirect reads as changed content.
func (zr *Reader) content(d dirent) ([]byte, error) {
	switch {
	case d.isRedirect():
		t, err := zr.direntAt(d.redirect)
		if err != nil {
			return nil, fmt.Errorf("redirect target: %w", err)
		}
		return []byte(string(t.namespace) + "/" + t.path), nil
	case !d.hasContent():
		return nil, nil
	}
	if int(d.mime) >= len(zr.mimes) {
		return nil, archive.Corruptf("mime index %d out of range", d.mime)
	}
	c, err := zr.clusterAt(d.cluster)
	if err != nil {
		return nil, err
	}
	return c.blob(d.blob)
}

func (zr *Reader) mimeOf(d dirent) string {
	if d.hasContent() && int(d.mime) < len(zr.mimes) {
		return zr.mimes[d.mime]
	}
	return ""
}

// Archive iterates a Reader's entries in path order.
type Archive struct {
	zr     *Reader
	path   string
	closer io.Closer
	next   uint32
	cur    archive.Entry
	err    error
}

// Open opens the ZIM file at path.
func Open(path string, opt Options) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, archive.WrapOpen(path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, archive.WrapOpen(path, err)
	}
	zr, err := NewReader(f, info.Size(), opt)
	if err != nil {
		_ = f.Close()
		return nil, archive.WrapOpen(path, err)
	}
	return NewArchive(path, zr, f), nil
}

// NewArchive iterates zr; closer may be nil.
func NewArchive(path string, zr *Reader, closer io.Closer) *Archive {
	return &Archive{zr: zr, path: path, closer: closer}
}

// Format registers the ZIM reader with an archive.Opener.
func Format(opt Options) archive.Format {
	return archive.Format{
		Name:   "zim",
		Detect: archive.HasPrefix(MagicBytes),
		Open: func(_ context.Context, path string) (archive.Archive, error) {
			a, err := Open(path, opt)
			if err != nil {
				return nil, err
			}
			return a, nil
		},
	}
}

// Reader exposes the underlying random-access reader.
func (a *Archive) Reader() *Reader { return a.zr }

func (a *Archive) Path() string { return a.path }

func (a *Archive) Next() bool {
	if a.err != nil || a.next >= a.zr.header.EntryCount {
		return false
	}
	i := a.next
	d, err := a.zr.direntAt(i)
	if err != nil {
		a.err = fmt.Errorf("entry %d: %w", i, err)
		return false
	}
	a.next++
	zr := a.zr
	e := archive.NewEntry(string(d.namespace), d.path, d.title, int(i), func() (io.ReadCloser, error) {
		b, err := zr.content(d)
		if err != nil {
			return nil, err
		}
		return io.NopCloser(bytes.NewReader(b)), nil
	})
	e.Redirect = d.isRedirect()
	e.MimeType = zr.mimeOf(d)
	a.cur = e
	return true
}

func (a *Archive) Entry() archive.Entry { return a.cur }

func (a *Archive) Err() error { return a.err }

func (a *Archive) Close() error {
	if a.closer == nil {
		return nil
	}
	err := a.closer.Close()
	a.closer = nil
	return err
}
