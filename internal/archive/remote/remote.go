// Package remote fetches s3:// archive locations into local temporary files
// so they can be opened like any other archive.
package remote

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Scheme is the URL prefix handled by the S3 fetcher.
const Scheme = "s3://"

// ErrNotConfigured is returned when an s3:// location is used without an
// endpoint.
var ErrNotConfigured = errors.New("s3 endpoint is not configured")

// S3Config holds the connection settings of an S3-compatible store.
type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// Location is a parsed s3://bucket/key URL.
type Location struct {
	Bucket string
	Key    string
}

// Parse splits an s3:// URL into bucket and key.
func Parse(s string) (Location, error) {
	if !strings.HasPrefix(s, Scheme) {
		return Location{}, fmt.Errorf("%q is not an %s URL", s, Scheme)
	}
	rest := strings.TrimPrefix(s, Scheme)
	bucket, key, ok := strings.Cut(rest, "/")
	key = strings.TrimLeft(key, "/")
	if !ok || bucket == "" || key == "" {
		return Location{}, fmt.Errorf("%q must be of the form %sbucket/key", s, Scheme)
	}
	return Location{Bucket: bucket, Key: key}, nil
}

func (l Location) String() string { return Scheme + l.Bucket + "/" + l.Key }

type objectGetter interface {
	FGetObject(ctx context.Context, bucket, object, filePath string, opts minio.GetObjectOptions) error
}

// S3 downloads objects with minio-go. It implements archive.Fetcher.
type S3 struct {
	client objectGetter
	cfgErr error
	// TempDir is where downloads are staged; empty means os.TempDir.
	TempDir string
}

// NewS3 builds a fetcher for cfg. A missing endpoint is not an error here:
// the fetcher is still registered so s3:// locations fail with
// ErrNotConfigured instead of being treated as local paths.
func NewS3(cfg S3Config) (*S3, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return &S3{cfgErr: ErrNotConfigured}, nil
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}
	var creds *credentials.Credentials
	access, secret := strings.TrimSpace(cfg.AccessKey), strings.TrimSpace(cfg.SecretKey)
	if access != "" || secret != "" {
		creds = credentials.NewStaticV4(access, secret, "")
	} else {
		creds = credentials.NewEnvAWS()
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  creds,
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return &S3{client: client}, nil
}

// Handles reports whether location is an s3:// URL.
func (s *S3) Handles(location string) bool {
	return strings.HasPrefix(location, Scheme)
}

// Fetch downloads location into a fresh temporary directory. cleanup
// removes the directory.
func (s *S3) Fetch(ctx context.Context, location string) (string, func(), error) {
	if s.cfgErr != nil {
		return "", nil, s.cfgErr
	}
	loc, err := Parse(location)
	if err != nil {
		return "", nil, err
	}
	dir, err := os.MkdirTemp(s.TempDir, "zimcompare-")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() { _ = os.RemoveAll(dir) }
	local := filepath.Join(dir, path.Base(loc.Key))
	if err := s.client.FGetObject(ctx, loc.Bucket, loc.Key, local, minio.GetObjectOptions{}); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("download %s: %w", loc, err)
	}
	return local, cleanup, nil
}
