package remote

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zimcompare/internal/archive"
)

func TestParse(t *testing.T) {
	loc, err := Parse("s3://wiki/dumps/2024/en.zim")
	require.NoError(t, err)
	assert.Equal(t, Location{Bucket: "wiki", Key: "dumps/2024/en.zim"}, loc)
	assert.Equal(t, "s3://wiki/dumps/2024/en.zim", loc.String())

	for _, bad := range []string{"wiki/en.zim", "s3://", "s3://wiki", "s3://wiki/", "s3:///en.zim"} {
		_, err := Parse(bad)
		assert.Error(t, err, bad)
	}
}

type fakeGetter struct {
	objects map[string]string
	calls   int
}

func (f *fakeGetter) FGetObject(_ context.Context, bucket, object, filePath string, _ minio.GetObjectOptions) error {
	f.calls++
	body, ok := f.objects[bucket+"/"+object]
	if !ok {
		return errors.New("NoSuchKey")
	}
	return os.WriteFile(filePath, []byte(body), 0o644)
}

func TestFetch(t *testing.T) {
	g := &fakeGetter{objects: map[string]string{"b/dir/a.zim": "payload"}}
	s := &S3{client: g, TempDir: t.TempDir()}

	assert.True(t, s.Handles("s3://b/dir/a.zim"))
	assert.False(t, s.Handles("/tmp/a.zim"))

	local, cleanup, err := s.Fetch(context.Background(), "s3://b/dir/a.zim")
	require.NoError(t, err)
	assert.Equal(t, "a.zim", filepath.Base(local))
	b, err := os.ReadFile(local)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(b))

	cleanup()
	_, err = os.Stat(local)
	assert.True(t, os.IsNotExist(err))
}

func TestFetchMissingObjectCleansUp(t *testing.T) {
	tmp := t.TempDir()
	s := &S3{client: &fakeGetter{}, TempDir: tmp}
	_, _, err := s.Fetch(context.Background(), "s3://b/missing.zim")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "download s3://b/missing.zim")

	left, err := os.ReadDir(tmp)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestUnconfigured(t *testing.T) {
	s, err := NewS3(S3Config{})
	require.NoError(t, err)

	o := &archive.Opener{Fetchers: []archive.Fetcher{s}}
	_, err = o.Open(context.Background(), "s3://b/a.zim")
	require.Error(t, err)
	assert.ErrorIs(t, err, archive.ErrOpen)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestNewS3Configured(t *testing.T) {
	s, err := NewS3(S3Config{Endpoint: "localhost:9000", AccessKey: "k", SecretKey: "s"})
	require.NoError(t, err)
	assert.NotNil(t, s.client)
	assert.NoError(t, s.cfgErr)
}
