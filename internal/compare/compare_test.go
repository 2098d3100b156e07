package compare

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zimcompare/internal/archive"
	"zimcompare/internal/archive/zim"
	"zimcompare/internal/archive/zim/zimtest"
	"zimcompare/internal/delta"
	"zimcompare/internal/index"
)

func writeZIM(t *testing.T, dir, name string, opt zimtest.Options, entries ...zimtest.Entry) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, zimtest.Write(p, entries, opt))
	return p
}

func c(path, body string) zimtest.Entry {
	return zimtest.Entry{Namespace: 'C', Path: path, Content: []byte(body)}
}

func key(name string) index.Key { return index.Key{Namespace: "C", Name: name} }

func TestCompareUpdated(t *testing.T) {
	dir := t.TempDir()
	a := writeZIM(t, dir, "a.zim", zimtest.Options{}, c("Home", "hello"))
	b := writeZIM(t, dir, "b.zim", zimtest.Options{Compression: zimtest.Zstd}, c("Home", "hello2"))

	out, err := Compare(context.Background(), a, b, Options{})
	require.NoError(t, err)
	assert.Equal(t, []index.Key{key("Home")}, out.Delta.Keys(delta.Updated))
	assert.Equal(t, delta.Counts{Updated: 1}, out.Delta.Counts())
	assert.True(t, out.Changed())
	assert.Equal(t, a, out.Base.Path)
	assert.Equal(t, b, out.Target.Path)
	assert.Equal(t, 1, out.Base.Entries)
	assert.Positive(t, out.Elapsed)
}

func TestCompareEmptyTarget(t *testing.T) {
	dir := t.TempDir()
	a := writeZIM(t, dir, "a.zim", zimtest.Options{}, c("X", "a"))
	b := writeZIM(t, dir, "b.zim", zimtest.Options{})

	out, err := Compare(context.Background(), a, b, Options{Parallel: true})
	require.NoError(t, err)
	assert.Equal(t, []index.Key{key("X")}, out.Delta.Keys(delta.Removed))
	assert.Empty(t, out.Delta.Added)
	assert.Empty(t, out.Delta.Updated)
	assert.Empty(t, out.Delta.Unchanged)
}

func TestCompareIdenticalAcrossFormats(t *testing.T) {
	dir := t.TempDir()
	a := writeZIM(t, dir, "a.zim", zimtest.Options{Compression: zimtest.XZ},
		c("Home", "hello"), zimtest.Entry{Namespace: 'M', Path: "Title", Content: []byte("Wiki")})

	// The same content unpacked into a directory.
	tree := filepath.Join(dir, "dump")
	require.NoError(t, os.MkdirAll(filepath.Join(tree, "C"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(tree, "M"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(tree, "C", "Home"), []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(tree, "M", "Title"), []byte("Wiki"), 0o644))

	out, err := Compare(context.Background(), a, tree, Options{Parallel: true})
	require.NoError(t, err)
	assert.False(t, out.Changed())
	assert.Equal(t, 2, out.Delta.Counts().Unchanged)
}

func TestCompareNamespacesDistinct(t *testing.T) {
	dir := t.TempDir()
	a := writeZIM(t, dir, "a.zim", zimtest.Options{}, zimtest.Entry{Namespace: 'A', Path: "x", Content: []byte("1")})
	b := writeZIM(t, dir, "b.zim", zimtest.Options{}, zimtest.Entry{Namespace: 'C', Path: "x", Content: []byte("1")})

	out, err := Compare(context.Background(), a, b, Options{})
	require.NoError(t, err)
	assert.Equal(t, delta.Counts{Removed: 1, Added: 1}, out.Delta.Counts())
}

func TestCompareParallelMatchesSequential(t *testing.T) {
	dir := t.TempDir()
	a := writeZIM(t, dir, "a.zim", zimtest.Options{PerCluster: 2},
		c("a", "1"), c("b", "2"), c("c", "3"), c("d", "4"))
	b := writeZIM(t, dir, "b.zim", zimtest.Options{PerCluster: 3},
		c("b", "2"), c("c", "33"), c("e", "5"))

	seq, err := Compare(context.Background(), a, b, Options{})
	require.NoError(t, err)
	par, err := Compare(context.Background(), a, b, Options{Parallel: true})
	require.NoError(t, err)
	assert.Equal(t, seq.Delta, par.Delta)
	assert.Equal(t, delta.Counts{Removed: 2, Updated: 1, Added: 1, Unchanged: 1}, par.Delta.Counts())
}

func TestCompareOpenError(t *testing.T) {
	dir := t.TempDir()
	a := writeZIM(t, dir, "a.zim", zimtest.Options{}, c("Home", "x"))
	for _, parallel := range []bool{false, true} {
		out, err := Compare(context.Background(), a, filepath.Join(dir, "missing.zim"), Options{Parallel: parallel})
		assert.Nil(t, out)
		require.Error(t, err)
		assert.ErrorIs(t, err, archive.ErrOpen)
		var oe *archive.OpenError
		require.ErrorAs(t, err, &oe)
		assert.Equal(t, filepath.Join(dir, "missing.zim"), oe.Path)
	}

	junk := filepath.Join(dir, "junk.bin")
	require.NoError(t, os.WriteFile(junk, []byte("not an archive"), 0o644))
	_, err := Compare(context.Background(), a, junk, Options{})
	assert.ErrorIs(t, err, archive.ErrUnsupportedFormat)
}

func TestCompareUnreadableEntries(t *testing.T) {
	dir := t.TempDir()
	a := writeZIM(t, dir, "a.zim", zimtest.Options{}, c("Home", "hello"))
	b := writeZIM(t, dir, "b.zim", zimtest.Options{Compression: 9}, c("Home", "hello"))

	out, err := Compare(context.Background(), a, b, Options{})
	require.NoError(t, err)
	require.Len(t, out.Target.Failures, 1)
	assert.Equal(t, "Home", out.Target.Failures[0].Name)
	assert.Equal(t, 1, out.Target.Entries)
	assert.Equal(t, 0, out.Target.Records)
	// The unreadable entry is absent from the target set.
	assert.Equal(t, []index.Key{key("Home")}, out.Delta.Keys(delta.Removed))

	_, err = Compare(context.Background(), a, b, Options{Strict: true})
	assert.ErrorIs(t, err, archive.ErrEntryRead)
}

func TestCompareDuplicateTitles(t *testing.T) {
	dir := t.TempDir()
	dup := []zimtest.Entry{
		{Namespace: 'C', Path: "p1", Title: "Same", Content: []byte("first")},
		{Namespace: 'C', Path: "p2", Title: "Same", Content: []byte("second")},
	}
	a := writeZIM(t, dir, "a.zim", zimtest.Options{}, dup...)
	b := writeZIM(t, dir, "b.zim", zimtest.Options{}, zimtest.Entry{Namespace: 'C', Path: "q", Title: "Same", Content: []byte("first")})

	out, err := Compare(context.Background(), a, b, Options{NameMode: archive.NameTitle})
	require.NoError(t, err)
	require.Len(t, out.Base.Duplicates, 1)
	assert.Equal(t, 1, out.Base.Duplicates[0].Seq)
	assert.Equal(t, delta.Counts{Unchanged: 1}, out.Delta.Counts())

	_, err = Compare(context.Background(), a, b, Options{NameMode: archive.NameTitle, Duplicates: index.Reject})
	assert.ErrorIs(t, err, index.ErrDuplicateKey)
}

func TestCompareCache(t *testing.T) {
	dir := t.TempDir()
	cacheDir := filepath.Join(dir, "cache")
	a := writeZIM(t, dir, "a.zim", zimtest.Options{}, c("Home", "hello"))
	b := writeZIM(t, dir, "b.zim", zimtest.Options{}, c("Home", "hello2"))

	opt := Options{CacheDir: cacheDir, Parallel: true}
	first, err := Compare(context.Background(), a, b, opt)
	require.NoError(t, err)
	assert.False(t, first.Base.Cached)

	second, err := Compare(context.Background(), a, b, opt)
	require.NoError(t, err)
	assert.True(t, second.Base.Cached)
	assert.True(t, second.Target.Cached)
	assert.Equal(t, first.Delta, second.Delta)
	assert.Equal(t, 1, second.Base.Entries)

	// A rewritten file is extracted again.
	b = writeZIM(t, dir, "b.zim", zimtest.Options{}, c("Home", "hello"), c("New", "x"))
	require.NoError(t, os.Chtimes(b, time.Now(), time.Now().Add(time.Minute)))
	third, err := Compare(context.Background(), a, b, opt)
	require.NoError(t, err)
	assert.True(t, third.Base.Cached)
	assert.False(t, third.Target.Cached)
	assert.Equal(t, delta.Counts{Added: 1, Unchanged: 1}, third.Delta.Counts())

	// Another algorithm does not reuse the snapshots.
	opt.Algorithm = "xxh3"
	fourth, err := Compare(context.Background(), a, b, opt)
	require.NoError(t, err)
	assert.False(t, fourth.Base.Cached)
}

func TestCompareCacheHonoursChecksum(t *testing.T) {
	dir := t.TempDir()
	cacheDir := filepath.Join(dir, "cache")
	a := writeZIM(t, dir, "a.zim", zimtest.Options{}, c("Home", "greetings"))
	b := writeZIM(t, dir, "b.zim", zimtest.Options{}, c("Home", "hello"))

	opt := Options{CacheDir: cacheDir}
	_, err := Compare(context.Background(), a, b, opt)
	require.NoError(t, err)

	// Damage a content byte without changing size or mtime.
	info, err := os.Stat(a)
	require.NoError(t, err)
	raw, err := os.ReadFile(a)
	require.NoError(t, err)
	i := bytes.Index(raw, []byte("greetings"))
	require.Positive(t, i)
	raw[i] = 'G'
	require.NoError(t, os.WriteFile(a, raw, 0o644))
	require.NoError(t, os.Chtimes(a, info.ModTime(), info.ModTime()))

	cached, err := Compare(context.Background(), a, b, opt)
	require.NoError(t, err)
	assert.True(t, cached.Base.Cached)

	o, err := NewOpener(OpenerOptions{Zim: zim.Options{VerifyChecksum: true}})
	require.NoError(t, err)
	opt.Opener = o
	opt.VerifyChecksum = true
	out, err := Compare(context.Background(), a, b, opt)
	assert.Nil(t, out)
	assert.ErrorIs(t, err, archive.ErrCorrupt)
	assert.ErrorIs(t, err, archive.ErrOpen)
}

func TestCompareLogsArchiveShape(t *testing.T) {
	dir := t.TempDir()
	a := writeZIM(t, dir, "a.zim", zimtest.Options{}, c("Home", "hello"), c("Other", "x"))
	tree := filepath.Join(dir, "dump")
	require.NoError(t, os.MkdirAll(filepath.Join(tree, "C"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(tree, "C", "Home"), []byte("hello"), 0o644))

	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	_, err := Compare(context.Background(), a, tree, Options{Logger: log})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "format=zim version=6.1 entries=2")
	assert.Contains(t, out, "format=dir entries=1")
	assert.Contains(t, out, "removed=1 updated=0 added=0 unchanged=1 keys=2")
}

func TestCompareCancelled(t *testing.T) {
	dir := t.TempDir()
	a := writeZIM(t, dir, "a.zim", zimtest.Options{}, c("Home", "hello"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Compare(ctx, a, a, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestContents(t *testing.T) {
	dir := t.TempDir()
	a := writeZIM(t, dir, "a.zim", zimtest.Options{Compression: zimtest.Zlib},
		c("Home", "hello"), c("Big", "0123456789"), c("Other", "zzz"))
	o, err := NewOpener(OpenerOptions{})
	require.NoError(t, err)

	got, err := Contents(context.Background(), o, a, []index.Key{key("Home"), key("Big"), key("Missing")}, ContentOptions{MaxBytes: 6})
	require.NoError(t, err)
	assert.Equal(t, map[index.Key][]byte{
		key("Home"): []byte("hello"),
		key("Big"):  []byte("0123456"),
	}, got)

	none, err := Contents(context.Background(), o, a, nil, ContentOptions{})
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = Contents(context.Background(), o, filepath.Join(dir, "nope.zim"), []index.Key{key("Home")}, ContentOptions{})
	assert.ErrorIs(t, err, archive.ErrOpen)
}
