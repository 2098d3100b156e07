// Package zimtest writes small, valid ZIM files for tests.
package zimtest

import (
	"bytes"
	"compress/zlib"
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"os"
	"sort"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// Cluster compression codes understood by the reader.
const (
	None byte = 1
	Zlib byte = 2
	XZ   byte = 4
	Zstd byte = 5
)

// Entry is one directory entry to write. RedirectTo, when set, names the
// target as "ns/path" and makes the entry a redirect.
type Entry struct {
	Namespace  byte
	Path       string
	Title      string
	MimeType   string
	Content    []byte
	RedirectTo string
}

// Options controls the physical layout.
type Options struct {
	// Compression is the cluster compression code; 0 means None. Unknown
	// codes are written verbatim, producing clusters the reader rejects.
	Compression byte
	// Extended writes 64-bit blob offsets.
	Extended bool
	// PerCluster is the number of blobs per cluster; 0 puts all in one.
	PerCluster int
}

// Build encodes entries as a ZIM file. Entries are sorted by namespace and
// path as the format requires.
func Build(entries []Entry, opt Options) ([]byte, error) {
	es := append([]Entry(nil), entries...)
	sort.SliceStable(es, func(i, j int) bool {
		if es[i].Namespace != es[j].Namespace {
			return es[i].Namespace < es[j].Namespace
		}
		return es[i].Path < es[j].Path
	})
	idx := make(map[string]uint32, len(es))
	for i, e := range es {
		idx[string(e.Namespace)+"/"+e.Path] = uint32(i)
	}

	// MIME list.
	var mimes []string
	mimeIdx := map[string]uint16{}
	for _, e := range es {
		if e.RedirectTo != "" {
			continue
		}
		m := e.MimeType
		if m == "" {
			m = "text/html"
		}
		if _, ok := mimeIdx[m]; !ok {
			mimeIdx[m] = uint16(len(mimes))
			mimes = append(mimes, m)
		}
	}
	var mimeBuf bytes.Buffer
	for _, m := range mimes {
		mimeBuf.WriteString(m)
		mimeBuf.WriteByte(0)
	}
	mimeBuf.WriteByte(0)

	// Blob placement.
	per := opt.PerCluster
	type place struct{ cluster, blob uint32 }
	places := make([]place, len(es))
	var blobs [][][]byte
	k := 0
	for i, e := range es {
		if e.RedirectTo != "" {
			continue
		}
		c := 0
		if per > 0 {
			c = k / per
		}
		for len(blobs) <= c {
			blobs = append(blobs, nil)
		}
		places[i] = place{cluster: uint32(c), blob: uint32(len(blobs[c]))}
		blobs[c] = append(blobs[c], e.Content)
		k++
	}

	// Dirents.
	le := binary.LittleEndian
	var dirents bytes.Buffer
	direntOff := make([]uint64, len(es))
	n := uint64(len(es))
	mimeListPos := uint64(80)
	pathPtrPos := mimeListPos + uint64(mimeBuf.Len())
	titlePtrPos := pathPtrPos + 8*n
	direntStart := titlePtrPos + 4*n
	for i, e := range es {
		direntOff[i] = direntStart + uint64(dirents.Len())
		var hdr []byte
		if e.RedirectTo != "" {
			target, ok := idx[e.RedirectTo]
			if !ok {
				return nil, fmt.Errorf("redirect target %q not found", e.RedirectTo)
			}
			hdr = make([]byte, 12)
			le.PutUint16(hdr[0:], 0xffff)
			le.PutUint32(hdr[8:], target)
		} else {
			m := e.MimeType
			if m == "" {
				m = "text/html"
			}
			hdr = make([]byte, 16)
			le.PutUint16(hdr[0:], mimeIdx[m])
			le.PutUint32(hdr[8:], places[i].cluster)
			le.PutUint32(hdr[12:], places[i].blob)
		}
		hdr[3] = e.Namespace
		dirents.Write(hdr)
		dirents.WriteString(e.Path)
		dirents.WriteByte(0)
		dirents.WriteString(e.Title)
		dirents.WriteByte(0)
	}

	// Clusters.
	clusterPtrPos := direntStart + uint64(dirents.Len())
	clusterStart := clusterPtrPos + 8*uint64(len(blobs))
	var clusters bytes.Buffer
	clusterOff := make([]uint64, len(blobs))
	for c, bs := range blobs {
		clusterOff[c] = clusterStart + uint64(clusters.Len())
		raw, err := encodeCluster(bs, opt)
		if err != nil {
			return nil, err
		}
		clusters.Write(raw)
	}
	checksumPos := clusterStart + uint64(clusters.Len())

	// Header.
	out := bytes.NewBuffer(make([]byte, 0, checksumPos+16))
	h := make([]byte, 80)
	le.PutUint32(h[0:], 72173914)
	le.PutUint16(h[4:], 6)
	le.PutUint16(h[6:], 1)
	le.PutUint32(h[24:], uint32(n))
	le.PutUint32(h[28:], uint32(len(blobs)))
	le.PutUint64(h[32:], pathPtrPos)
	le.PutUint64(h[40:], titlePtrPos)
	le.PutUint64(h[48:], clusterPtrPos)
	le.PutUint64(h[56:], mimeListPos)
	le.PutUint32(h[64:], 0xffffffff)
	le.PutUint32(h[68:], 0xffffffff)
	le.PutUint64(h[72:], checksumPos)
	out.Write(h)
	out.Write(mimeBuf.Bytes())
	for _, off := range direntOff {
		_ = binary.Write(out, le, off)
	}
	titleOrder := make([]uint32, n)
	for i := range titleOrder {
		titleOrder[i] = uint32(i)
	}
	sort.SliceStable(titleOrder, func(i, j int) bool {
		a, b := es[titleOrder[i]], es[titleOrder[j]]
		return titleOf(a) < titleOf(b)
	})
	for _, t := range titleOrder {
		_ = binary.Write(out, le, t)
	}
	out.Write(dirents.Bytes())
	for _, off := range clusterOff {
		_ = binary.Write(out, le, off)
	}
	out.Write(clusters.Bytes())
	sum := md5.Sum(out.Bytes())
	out.Write(sum[:])
	return out.Bytes(), nil
}

// Write builds the file and stores it at path.
func Write(path string, entries []Entry, opt Options) error {
	b, err := Build(entries, opt)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func titleOf(e Entry) string {
	if e.Title != "" {
		return e.Title
	}
	return e.Path
}

func encodeCluster(blobs [][]byte, opt Options) ([]byte, error) {
	size := 4
	if opt.Extended {
		size = 8
	}
	var body bytes.Buffer
	off := uint64(size * (len(blobs) + 1))
	put := func(v uint64) {
		if opt.Extended {
			_ = binary.Write(&body, binary.LittleEndian, v)
		} else {
			_ = binary.Write(&body, binary.LittleEndian, uint32(v))
		}
	}
	for _, b := range blobs {
		put(off)
		off += uint64(len(b))
	}
	put(off)
	for _, b := range blobs {
		body.Write(b)
	}

	comp := opt.Compression
	if comp == 0 {
		comp = None
	}
	info := comp
	if opt.Extended {
		info |= 0x10
	}
	var payload []byte
	switch comp {
	case Zlib:
		var buf bytes.Buffer
		w := zlib.NewWriter(&buf)
		if _, err := w.Write(body.Bytes()); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		payload = buf.Bytes()
	case XZ:
		var buf bytes.Buffer
		w, err := xz.NewWriter(&buf)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(body.Bytes()); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		payload = buf.Bytes()
	case Zstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, err
		}
		payload = enc.EncodeAll(body.Bytes(), nil)
		_ = enc.Close()
	default:
		payload = body.Bytes()
	}
	return append([]byte{info}, payload...), nil
}
