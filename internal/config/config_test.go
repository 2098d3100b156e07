package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(m map[string]string) Lookup {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "adler32", cfg.Hash)
	assert.Equal(t, "path", cfg.Key)
	assert.True(t, cfg.Parallel)
	assert.Equal(t, 4, cfg.DiffContext)
	assert.Equal(t, 2_000_000, cfg.MaxDiffBytes)
	assert.Equal(t, 64, cfg.ClusterCache)
	assert.True(t, cfg.Dir.Gitignore)
	assert.Equal(t, "us-east-1", cfg.S3.Region)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "zimcompare.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
hash: xxh3
key: title
list: true
timeout: 90s
dir:
  exclude: [node_modules]
s3:
  endpoint: minio:9000
  use_ssl: false
`), 0o644))

	cfg := Default()
	require.NoError(t, LoadFile(p, &cfg))
	assert.Equal(t, "xxh3", cfg.Hash)
	assert.Equal(t, "title", cfg.Key)
	assert.True(t, cfg.List)
	assert.Equal(t, 90*time.Second, cfg.Timeout)
	assert.Equal(t, []string{"node_modules"}, cfg.Dir.Exclude)
	assert.Equal(t, "minio:9000", cfg.S3.Endpoint)
	assert.False(t, cfg.S3.UseSSL)
	// Untouched keys keep their defaults.
	assert.Equal(t, "first", cfg.Duplicates)
	assert.True(t, cfg.Dir.Gitignore)
	assert.Equal(t, "us-east-1", cfg.S3.Region)
}

func TestLoadFileErrors(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()

	err := LoadFile(filepath.Join(dir, "missing.yaml"), &cfg)
	assert.ErrorIs(t, err, os.ErrNotExist)

	unknown := filepath.Join(dir, "unknown.yaml")
	require.NoError(t, os.WriteFile(unknown, []byte("hashes: xxh3\n"), 0o644))
	err = LoadFile(unknown, &cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hashes")

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("# nothing yet\n"), 0o644))
	assert.NoError(t, LoadFile(empty, &cfg))
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := ApplyEnv(&cfg, env(map[string]string{
		"ZIMCOMPARE_HASH":          "highway64",
		"ZIMCOMPARE_STRICT":        "true",
		"ZIMCOMPARE_PARALLEL":      "0",
		"ZIMCOMPARE_DIFF_CONTEXT":  " 8 ",
		"ZIMCOMPARE_TIMEOUT":       "2m",
		"ZIMCOMPARE_EXCLUDE":       ".git, dist ,",
		"ZIMCOMPARE_S3_ENDPOINT":   "s3.example.org",
		"ZIMCOMPARE_S3_ACCESS_KEY": "AK",
		"MINIO_ROOT_PASSWORD":      "root-secret",
		"ZIMCOMPARE_UNRELATED":     "ignored",
	}))
	require.NoError(t, err)
	assert.Equal(t, "highway64", cfg.Hash)
	assert.True(t, cfg.Strict)
	assert.False(t, cfg.Parallel)
	assert.Equal(t, 8, cfg.DiffContext)
	assert.Equal(t, 2*time.Minute, cfg.Timeout)
	assert.Equal(t, []string{".git", "dist"}, cfg.Dir.Exclude)
	assert.Equal(t, "s3.example.org", cfg.S3.Endpoint)
	assert.Equal(t, "AK", cfg.S3.AccessKey)
	assert.Equal(t, "root-secret", cfg.S3.SecretKey)
}

func TestApplyEnvMinioFallbackNeedsEndpoint(t *testing.T) {
	minio := map[string]string{"MINIO_ROOT_USER": "root"}

	cfg := Default()
	require.NoError(t, ApplyEnv(&cfg, env(minio)))
	assert.Empty(t, cfg.S3.AccessKey)
	assert.Empty(t, cfg.S3.SecretKey)

	cfg = Default()
	cfg.S3.Endpoint = "minio:9000"
	require.NoError(t, ApplyEnv(&cfg, env(minio)))
	assert.Equal(t, "root", cfg.S3.AccessKey)
	assert.Empty(t, cfg.S3.SecretKey)
}

func TestApplyEnvErrorsAggregated(t *testing.T) {
	cfg := Default()
	err := ApplyEnv(&cfg, env(map[string]string{
		"ZIMCOMPARE_STRICT":        "maybe",
		"ZIMCOMPARE_CLUSTER_CACHE": "lots",
		"ZIMCOMPARE_TIMEOUT":       "soon",
	}))
	require.Error(t, err)
	for _, name := range []string{"ZIMCOMPARE_STRICT", "ZIMCOMPARE_CLUSTER_CACHE", "ZIMCOMPARE_TIMEOUT"} {
		assert.Contains(t, err.Error(), name)
	}
	assert.Equal(t, 64, cfg.ClusterCache)
}

func TestLoadLayers(t *testing.T) {
	dir := t.TempDir()
	yml := filepath.Join(dir, "c.yaml")
	require.NoError(t, os.WriteFile(yml, []byte("format: json\nmax_diff_bytes: 10\n"), 0o644))
	dotenv := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(dotenv, []byte("ZIMCOMPARE_FORMAT=markdown\nZIMCOMPARE_CACHE_DIR=/tmp/zc\n"), 0o644))
	t.Setenv("ZIMCOMPARE_CACHE_DIR", "/var/cache/zc")
	t.Cleanup(func() { os.Unsetenv("ZIMCOMPARE_FORMAT") })

	cfg, err := Load(yml, dotenv, filepath.Join(dir, "absent.env"))
	require.NoError(t, err)
	assert.Equal(t, "markdown", cfg.Format)
	assert.Equal(t, 10, cfg.MaxDiffBytes)
	// Variables already in the environment win over the .env file.
	assert.Equal(t, "/var/cache/zc", cfg.CacheDir)
}

func TestSplitCSV(t *testing.T) {
	assert.Nil(t, SplitCSV(""))
	assert.Nil(t, SplitCSV(" , "))
	assert.Equal(t, []string{"a", "b c"}, SplitCSV(" a,, b c ,"))
}
