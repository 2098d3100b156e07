package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// headLen is how many leading bytes format detection looks at.
const headLen = 8

// Format is one container type the Opener can read.
type Format struct {
	Name string
	// Detect reports whether the leading bytes of a file belong to this
	// format.
	Detect func(head []byte) bool
	Open   func(ctx context.Context, path string) (Archive, error)
}

// Fetcher materialises non-local archive locations (s3://...) as local
// files.
type Fetcher interface {
	Handles(location string) bool
	// Fetch returns a local path and a cleanup that removes it.
	Fetch(ctx context.Context, location string) (string, func(), error)
}

// Opener resolves a location to an open Archive: remote locations are
// fetched first, directories go to Directory, files are matched against
// Formats by their leading bytes.
type Opener struct {
	Formats   []Format
	Directory func(ctx context.Context, path string) (Archive, error)
	Fetchers  []Fetcher
	Logger    *slog.Logger
}

// Open opens location. Every failure is an *OpenError naming location.
func (o *Opener) Open(ctx context.Context, location string) (Archive, error) {
	if err := ctx.Err(); err != nil {
		return nil, WrapOpen(location, err)
	}
	for _, f := range o.Fetchers {
		if !f.Handles(location) {
			continue
		}
		local, cleanup, err := f.Fetch(ctx, location)
		if err != nil {
			return nil, WrapOpen(location, err)
		}
		o.logger().DebugContext(ctx, "fetched remote archive", "location", location, "local", local)
		a, err := o.openLocal(ctx, local)
		if err != nil {
			cleanup()
			return nil, WrapOpen(location, unwrapOpen(err))
		}
		return &fetched{Archive: a, location: location, cleanup: cleanup}, nil
	}
	a, err := o.openLocal(ctx, location)
	if err != nil {
		return nil, WrapOpen(location, err)
	}
	return a, nil
}

func (o *Opener) openLocal(ctx context.Context, path string) (Archive, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		if o.Directory == nil {
			return nil, fmt.Errorf("%w: directories are not enabled", ErrUnsupportedFormat)
		}
		return o.Directory(ctx, path)
	}
	head, err := readHead(path)
	if err != nil {
		return nil, err
	}
	for _, f := range o.Formats {
		if f.Detect(head) {
			o.logger().DebugContext(ctx, "detected archive format", "path", path, "format", f.Name)
			return f.Open(ctx, path)
		}
	}
	return nil, fmt.Errorf("%w (leading bytes % x)", ErrUnsupportedFormat, head)
}

func (o *Opener) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o.Logger
}

func readHead(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf := make([]byte, headLen)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:n], nil
}

// HasPrefix is a Detect helper matching a magic prefix.
func HasPrefix(magic ...[]byte) func([]byte) bool {
	return func(head []byte) bool {
		for _, m := range magic {
			if bytes.HasPrefix(head, m) {
				return true
			}
		}
		return false
	}
}

func unwrapOpen(err error) error {
	var oe *OpenError
	if errors.As(err, &oe) {
		return oe.Err
	}
	return err
}

// fetched reports the remote location as its path and removes the local
// copy on Close.
type fetched struct {
	Archive
	location string
	cleanup  func()
}

func (f *fetched) Path() string { return f.location }

func (f *fetched) Close() error {
	err := f.Archive.Close()
	f.cleanup()
	return err
}
