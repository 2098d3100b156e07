// Package config holds the zimcompare settings and loads them from, lowest
// precedence first: built-in defaults, an optional YAML file, a .env file and
// ZIMCOMPARE_* environment variables. Command line flags are applied on top
// by the caller.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by ApplyEnv.
const EnvPrefix = "ZIMCOMPARE_"

// Config is the full set of options.
type Config struct {
	Hash           string        `yaml:"hash"`
	Key            string        `yaml:"key"`
	Duplicates     string        `yaml:"duplicates"`
	Strict         bool          `yaml:"strict"`
	Parallel       bool          `yaml:"parallel"`
	Format         string        `yaml:"format"`
	List           bool          `yaml:"list"`
	ListUnchanged  bool          `yaml:"list_unchanged"`
	Bundle         string        `yaml:"bundle"`
	DiffContext    int           `yaml:"diff_context"`
	MaxDiffBytes   int           `yaml:"max_diff_bytes"`
	CacheDir       string        `yaml:"cache_dir"`
	VerifyChecksum bool          `yaml:"verify_checksum"`
	ClusterCache   int           `yaml:"cluster_cache"`
	Timeout        time.Duration `yaml:"timeout"`
	Dir            DirConfig     `yaml:"dir"`
	S3             S3Config      `yaml:"s3"`
}

// DirConfig configures directory archives.
type DirConfig struct {
	Exclude        []string `yaml:"exclude"`
	Gitignore      bool     `yaml:"gitignore"`
	FollowSymlinks bool     `yaml:"follow_symlinks"`
}

// S3Config configures s3:// archive locations.
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Hash:         "adler32",
		Key:          "path",
		Duplicates:   "first",
		Parallel:     true,
		Format:       "text",
		DiffContext:  4,
		MaxDiffBytes: 2_000_000,
		ClusterCache: 64,
		Dir: DirConfig{
			Exclude:   []string{".git", ".svn", ".DS_Store"},
			Gitignore: true,
		},
		S3: S3Config{
			Region: "us-east-1",
			UseSSL: true,
		},
	}
}

// LoadFile decodes the YAML file at path over cfg. Unknown keys are errors;
// keys absent from the file keep their current value. An empty file is fine.
func LoadFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("config file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file %s: %w", path, err)
	}
	return nil
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("env file %s: %w", p, err)
		}
	}
	return nil
}

// Lookup reads one environment variable, like os.LookupEnv.
type Lookup func(key string) (string, bool)

// ApplyEnv overrides cfg with every ZIMCOMPARE_* variable that lookup finds.
// Malformed values are collected and reported together.
func ApplyEnv(cfg *Config, lookup Lookup) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	e := envReader{lookup: lookup}

	e.str("HASH", &cfg.Hash)
	e.str("KEY", &cfg.Key)
	e.str("DUPLICATES", &cfg.Duplicates)
	e.boolean("STRICT", &cfg.Strict)
	e.boolean("PARALLEL", &cfg.Parallel)
	e.str("FORMAT", &cfg.Format)
	e.boolean("LIST", &cfg.List)
	e.boolean("LIST_UNCHANGED", &cfg.ListUnchanged)
	e.str("BUNDLE", &cfg.Bundle)
	e.integer("DIFF_CONTEXT", &cfg.DiffContext)
	e.integer("MAX_DIFF_BYTES", &cfg.MaxDiffBytes)
	e.str("CACHE_DIR", &cfg.CacheDir)
	e.boolean("VERIFY_CHECKSUM", &cfg.VerifyChecksum)
	e.integer("CLUSTER_CACHE", &cfg.ClusterCache)
	e.duration("TIMEOUT", &cfg.Timeout)
	e.list("EXCLUDE", &cfg.Dir.Exclude)
	e.boolean("USE_GITIGNORE", &cfg.Dir.Gitignore)
	e.boolean("FOLLOW_SYMLINKS", &cfg.Dir.FollowSymlinks)

	e.str("S3_ENDPOINT", &cfg.S3.Endpoint)
	e.str("S3_REGION", &cfg.S3.Region)
	e.str("S3_ACCESS_KEY", &cfg.S3.AccessKey)
	e.str("S3_SECRET_KEY", &cfg.S3.SecretKey)
	e.boolean("S3_USE_SSL", &cfg.S3.UseSSL)
	// A local MinIO started from the same .env exposes its root credentials.
	// They only matter once an endpoint is configured.
	if cfg.S3.Endpoint != "" {
		if cfg.S3.AccessKey == "" {
			cfg.S3.AccessKey = e.plain("MINIO_ROOT_USER")
		}
		if cfg.S3.SecretKey == "" {
			cfg.S3.SecretKey = e.plain("MINIO_ROOT_PASSWORD")
		}
	}

	if len(e.errs) > 0 {
		return errors.Join(e.errs...)
	}
	return nil
}

// Load returns Default overlaid with the YAML file at path (when non-empty),
// the env files and the process environment.
func Load(path string, envFiles ...string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := LoadFile(path, &cfg); err != nil {
			return cfg, err
		}
	}
	if err := LoadDotEnv(envFiles...); err != nil {
		return cfg, err
	}
	if err := ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// SplitCSV splits a comma-separated list, trimming blanks and dropping empty
// items.
func SplitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

type envReader struct {
	lookup Lookup
	errs   []error
}

func (e *envReader) get(name string) (string, bool) {
	v, ok := e.lookup(EnvPrefix + name)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (e *envReader) plain(name string) string {
	v, _ := e.lookup(name)
	return strings.TrimSpace(v)
}

func (e *envReader) fail(name, v string, err error) {
	e.errs = append(e.errs, fmt.Errorf("%s%s=%q: %w", EnvPrefix, name, v, err))
}

func (e *envReader) str(name string, dst *string) {
	if v, ok := e.get(name); ok {
		*dst = v
	}
}

func (e *envReader) boolean(name string, dst *bool) {
	v, ok := e.get(name)
	if !ok || v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(name, v, err)
		return
	}
	*dst = b
}

func (e *envReader) integer(name string, dst *int) {
	v, ok := e.get(name)
	if !ok || v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(name, v, err)
		return
	}
	*dst = n
}

func (e *envReader) duration(name string, dst *time.Duration) {
	v, ok := e.get(name)
	if !ok || v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(name, v, err)
		return
	}
	*dst = d
}

func (e *envReader) list(name string, dst *[]string) {
	if v, ok := e.get(name); ok {
		*dst = SplitCSV(v)
	}
}
