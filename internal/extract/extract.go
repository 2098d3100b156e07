// Package extract turns an open archive into fingerprint records: one forward
// pass, every entry's content streamed through the configured hasher.
package extract

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"zimcompare/internal/archive"
	"zimcompare/internal/fingerprint"
	"zimcompare/internal/index"
)

// Options controls extraction.
type Options struct {
	Algorithm fingerprint.Algorithm
	NameMode  archive.NameMode
	// Strict aborts on the first unreadable entry instead of skipping it.
	Strict bool
	Logger *slog.Logger
}

// Result is the output of one extraction. Records are in archive iteration
// order; Seq is the position in that order.
type Result struct {
	Path     string
	Records  []index.Record
	Failures []*archive.EntryReadError
	// Entries counts every entry visited, readable or not.
	Entries int
}

// Extract reads every entry of a. An error from a.Err, a cancelled ctx or,
// in strict mode, an unreadable entry aborts with no partial result.
func Extract(ctx context.Context, a archive.Archive, opt Options) (*Result, error) {
	log := opt.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if _, err := opt.Algorithm.New(); err != nil {
		return nil, err
	}

	res := &Result{Path: a.Path(), Records: []index.Record{}}
	seq := 0
	for a.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e := a.Entry()
		name := e.Name(opt.NameMode)
		fp, err := fingerprintEntry(opt.Algorithm, e)
		if err != nil {
			rerr := &archive.EntryReadError{
				Path:      a.Path(),
				Index:     e.Index,
				Namespace: e.Namespace,
				Name:      name,
				Err:       err,
			}
			if opt.Strict {
				return nil, rerr
			}
			log.WarnContext(ctx, "skipping unreadable entry",
				"archive", a.Path(), "index", e.Index, "namespace", e.Namespace, "name", name, "err", err)
			res.Failures = append(res.Failures, rerr)
		} else {
			res.Records = append(res.Records, index.Record{
				Key:         index.Key{Namespace: e.Namespace, Name: name},
				Fingerprint: fp,
				Seq:         seq,
			})
		}
		seq++
	}
	if err := a.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", a.Path(), err)
	}
	res.Entries = seq
	log.DebugContext(ctx, "extracted archive",
		"archive", a.Path(), "entries", res.Entries, "records", len(res.Records), "failures", len(res.Failures))
	return res, nil
}

func fingerprintEntry(alg fingerprint.Algorithm, e archive.Entry) (fp fingerprint.Fingerprint, err error) {
	rc, err := e.Open()
	if err != nil {
		return 0, err
	}
	defer func() {
		if cerr := rc.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	fp, _, err = alg.Reader(rc)
	return fp, err
}

