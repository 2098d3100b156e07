package compare

import (
	"context"
	"fmt"
	"io"

	"zimcompare/internal/archive"
	"zimcompare/internal/index"
)

// ContentOptions controls Contents.
type ContentOptions struct {
	NameMode archive.NameMode
	// MaxBytes caps how much of each entry is kept. A capped entry keeps
	// MaxBytes+1 bytes so size guards downstream still see it as too large.
	// 0 means no cap.
	MaxBytes int
}

// Contents makes a second forward pass over the archive at path and returns
// the raw content of the entries named by keys. The first entry per key
// wins, matching index.KeepFirst. Unreadable entries are left out.
func Contents(ctx context.Context, o *archive.Opener, path string, keys []index.Key, opt ContentOptions) (map[index.Key][]byte, error) {
	out := make(map[index.Key][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	want := make(map[index.Key]struct{}, len(keys))
	for _, k := range keys {
		want[k] = struct{}{}
	}

	a, err := o.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	for len(want) > 0 && a.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e := a.Entry()
		k := index.Key{Namespace: e.Namespace, Name: e.Name(opt.NameMode)}
		if _, ok := want[k]; !ok {
			continue
		}
		b, err := readEntry(e, opt.MaxBytes)
		if err != nil {
			continue
		}
		out[k] = b
		delete(want, k)
	}
	if err := a.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", path, err)
	}
	return out, nil
}

func readEntry(e archive.Entry, limit int) ([]byte, error) {
	rc, err := e.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	var r io.Reader = rc
	if limit > 0 {
		r = io.LimitReader(rc, int64(limit)+1)
	}
	return io.ReadAll(r)
}
