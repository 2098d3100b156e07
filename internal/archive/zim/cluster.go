package zim

import (
	"bytes"
	"compress/bzip2"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	"zimcompare/internal/archive"
)

// cluster is a decompressed cluster: blob i spans data[offsets[i]:offsets[i+1]].
type cluster struct {
	data    []byte
	offsets []uint64
}

func (c *cluster) blobCount() int { return len(c.offsets) - 1 }

func (c *cluster) blob(i uint32) ([]byte, error) {
	if int(i) >= c.blobCount() {
		return nil, archive.Corruptf("blob %d out of range (cluster has %d)", i, c.blobCount())
	}
	return c.data[c.offsets[i]:c.offsets[i+1]], nil
}

var (
	zstdOnce sync.Once
	zstdDec  *zstd.Decoder
	zstdErr  error
)

// zstdDecoder is shared; DecodeAll is safe for concurrent use.
func zstdDecoder() (*zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdDec, zstdErr = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	})
	return zstdDec, zstdErr
}

// decodeCluster decompresses raw cluster bytes (info byte included) and
// parses the blob offset table.
func decodeCluster(raw []byte) (*cluster, error) {
	if len(raw) == 0 {
		return nil, archive.Corruptf("empty cluster")
	}
	info := raw[0]
	extended := info&clusterExtended != 0
	body := raw[1:]

	var data []byte
	var err error
	switch comp := info & 0x0f; comp {
	case compDefault, compNone:
		data = body
	case compZlib:
		data, err = readAllFrom(zlib.NewReader(bytes.NewReader(body)))
	case compBzip2:
		data, err = io.ReadAll(bzip2.NewReader(bytes.NewReader(body)))
	case compXZ:
		var r *xz.Reader
		r, err = xz.NewReader(bytes.NewReader(body))
		if err == nil {
			data, err = io.ReadAll(r)
		}
	case compZstd:
		var dec *zstd.Decoder
		dec, err = zstdDecoder()
		if err == nil {
			data, err = dec.DecodeAll(body, nil)
		}
	default:
		return nil, fmt.Errorf("unsupported cluster compression %d", comp)
	}
	if err != nil {
		return nil, fmt.Errorf("decompress cluster: %w", err)
	}
	offsets, err := parseOffsets(data, extended)
	if err != nil {
		return nil, err
	}
	return &cluster{data: data, offsets: offsets}, nil
}

func readAllFrom(rc io.ReadCloser, err error) ([]byte, error) {
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func parseOffsets(data []byte, extended bool) ([]uint64, error) {
	size := 4
	if extended {
		size = 8
	}
	read := func(i int) uint64 {
		if extended {
			return binary.LittleEndian.Uint64(data[i*size:])
		}
		return uint64(binary.LittleEndian.Uint32(data[i*size:]))
	}
	if len(data) < size {
		return nil, archive.Corruptf("cluster too short for offset table")
	}
	first := read(0)
	if first%uint64(size) != 0 || first < uint64(size) || first > uint64(len(data)) {
		return nil, archive.Corruptf("bad first blob offset %d", first)
	}
	n := int(first) / size
	offsets := make([]uint64, n)
	for i := 0; i < n; i++ {
		off := read(i)
		if off > uint64(len(data)) || (i > 0 && off < offsets[i-1]) {
			return nil, archive.Corruptf("blob offset %d out of order or range", off)
		}
		offsets[i] = off
	}
	return offsets, nil
}
