package archive

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, e Entry) string {
	t.Helper()
	rc, err := e.Open()
	require.NoError(t, err)
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(b)
}

func TestMemoryArchiveIteration(t *testing.T) {
	boom := errors.New("boom")
	a := NewMemory("mem",
		MemoryEntry{Namespace: "A", Path: "Home", Title: "Welcome", Content: []byte("hello")},
		MemoryEntry{Namespace: "A", Path: "Broken", Err: boom},
		MemoryEntry{Namespace: "M", Path: "Empty"},
	)
	defer a.Close()

	require.True(t, a.Next())
	e := a.Entry()
	assert.Equal(t, "Home", e.Name(NamePath))
	assert.Equal(t, "Welcome", e.Name(NameTitle))
	assert.Equal(t, 0, e.Index)
	assert.Equal(t, "hello", readAll(t, e))

	require.True(t, a.Next())
	_, err := a.Entry().Open()
	assert.ErrorIs(t, err, boom)

	require.True(t, a.Next())
	e = a.Entry()
	assert.Equal(t, "Empty", e.Name(NameTitle), "title defaults to path")
	assert.Equal(t, "", readAll(t, e))

	assert.False(t, a.Next())
	assert.NoError(t, a.Err())
	assert.False(t, a.Next(), "iteration is not restartable")
}

func TestListFailAt(t *testing.T) {
	boom := errors.New("truncated")
	a := NewMemory("mem", MemoryEntry{Path: "a"}, MemoryEntry{Path: "b"}).FailAt(1, boom)
	require.True(t, a.Next())
	assert.False(t, a.Next())
	assert.ErrorIs(t, a.Err(), boom)
}

func TestListCloseRunsOnce(t *testing.T) {
	calls := 0
	a := NewList("x", nil, func() error { calls++; return nil })
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
	assert.Equal(t, 1, calls)
	assert.False(t, a.Next())
}

func TestErrorsMatchSentinels(t *testing.T) {
	cause := os.ErrNotExist
	oe := WrapOpen("a.zim", cause)
	assert.True(t, errors.Is(oe, ErrOpen))
	assert.True(t, errors.Is(oe, os.ErrNotExist))
	assert.Contains(t, oe.Error(), "a.zim")
	assert.Same(t, oe, WrapOpen("other", oe), "already wrapped errors are kept")
	assert.NoError(t, WrapOpen("x", nil))

	re := &EntryReadError{Path: "a.zim", Index: 3, Namespace: "A", Name: "Page", Err: io.ErrUnexpectedEOF}
	assert.True(t, errors.Is(re, ErrEntryRead))
	assert.True(t, errors.Is(re, io.ErrUnexpectedEOF))
	assert.Contains(t, re.Error(), `"A/Page"`)
	assert.Equal(t, io.ErrUnexpectedEOF.Error(), re.Reason())

	assert.True(t, errors.Is(Corruptf("bad %d", 1), ErrCorrupt))
}

func TestSplitNamespace(t *testing.T) {
	cases := map[string][2]string{
		"A/Main_Page":   {"A", "Main_Page"},
		"C/dir/file":    {"C", "dir/file"},
		"docs/file.txt": {"", "docs/file.txt"},
		"A/":            {"", "A/"},
		"file":          {"", "file"},
	}
	for in, want := range cases {
		ns, name := SplitNamespace(in)
		assert.Equal(t, want[0], ns, in)
		assert.Equal(t, want[1], name, in)
	}
}

func TestParseNameMode(t *testing.T) {
	m, ok := ParseNameMode("TITLE")
	assert.True(t, ok)
	assert.Equal(t, NameTitle, m)
	m, ok = ParseNameMode("")
	assert.True(t, ok)
	assert.Equal(t, NamePath, m)
	_, ok = ParseNameMode("slug")
	assert.False(t, ok)
}

type stubFetcher struct {
	local   string
	cleaned bool
}

func (s *stubFetcher) Handles(loc string) bool { return len(loc) > 5 && loc[:5] == "s3://" }

func (s *stubFetcher) Fetch(context.Context, string) (string, func(), error) {
	return s.local, func() { s.cleaned = true }, nil
}

func testOpener() *Opener {
	return &Opener{
		Formats: []Format{{
			Name:   "test",
			Detect: HasPrefix([]byte("TEST")),
			Open: func(_ context.Context, path string) (Archive, error) {
				return NewMemory(path, MemoryEntry{Path: "only"}), nil
			},
		}},
	}
}

func TestOpenerDetectsByMagic(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.bin")
	require.NoError(t, os.WriteFile(good, []byte("TEST...."), 0o644))
	bad := filepath.Join(dir, "bad.bin")
	require.NoError(t, os.WriteFile(bad, []byte("nope"), 0o644))

	o := testOpener()
	a, err := o.Open(context.Background(), good)
	require.NoError(t, err)
	assert.Equal(t, good, a.Path())
	require.NoError(t, a.Close())

	_, err = o.Open(context.Background(), bad)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOpen)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = o.Open(context.Background(), filepath.Join(dir, "missing.zim"))
	assert.ErrorIs(t, err, os.ErrNotExist)
	var oe *OpenError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, filepath.Join(dir, "missing.zim"), oe.Path)

	_, err = o.Open(context.Background(), dir)
	assert.ErrorIs(t, err, ErrUnsupportedFormat, "directories need an explicit handler")
}

func TestOpenerFetchesRemote(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, "download")
	require.NoError(t, os.WriteFile(local, []byte("TEST"), 0o644))

	f := &stubFetcher{local: local}
	o := testOpener()
	o.Fetchers = []Fetcher{f}

	a, err := o.Open(context.Background(), "s3://bucket/key.zim")
	require.NoError(t, err)
	assert.Equal(t, "s3://bucket/key.zim", a.Path())
	require.NoError(t, a.Close())
	assert.True(t, f.cleaned)
}

func TestOpenerHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := testOpener().Open(ctx, "whatever")
	assert.ErrorIs(t, err, context.Canceled)
}
