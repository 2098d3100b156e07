package compare

import (
	"log/slog"

	"zimcompare/internal/archive"
	"zimcompare/internal/archive/dirarchive"
	"zimcompare/internal/archive/remote"
	"zimcompare/internal/archive/zim"
	"zimcompare/internal/archive/ziparchive"
)

// OpenerOptions configures the archive formats a comparison can read.
type OpenerOptions struct {
	Zim zim.Options
	Dir dirarchive.Options
	S3  remote.S3Config
	// TempDir stages remote downloads; empty means os.TempDir.
	TempDir string
	Logger  *slog.Logger
}

// NewOpener registers ZIM and ZIP files, directories and s3:// locations.
func NewOpener(o OpenerOptions) (*archive.Opener, error) {
	s3, err := remote.NewS3(o.S3)
	if err != nil {
		return nil, err
	}
	s3.TempDir = o.TempDir
	return &archive.Opener{
		Formats: []archive.Format{
			zim.Format(o.Zim),
			ziparchive.Format(),
		},
		Directory: dirarchive.Opener(o.Dir),
		Fetchers:  []archive.Fetcher{s3},
		Logger:    o.Logger,
	}, nil
}
