package archive

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrOpen is matched by every *OpenError.
	ErrOpen = errors.New("archive open failed")
	// ErrEntryRead is matched by every *EntryReadError.
	ErrEntryRead = errors.New("entry read failed")
	// ErrCorrupt reports a malformed container structure.
	ErrCorrupt = errors.New("corrupt archive")
	// ErrUnsupportedFormat reports a path no registered format recognises.
	ErrUnsupportedFormat = errors.New("unsupported archive format")
)

// OpenError means an archive could not be opened at all. It is fatal for the
// comparison: a partially extracted archive is never diffed.
type OpenError struct {
	Path string
	Err  error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("open archive %s: %v", e.Path, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }

func (e *OpenError) Is(target error) bool { return target == ErrOpen }

// EntryReadError means one entry's content could not be read. The entry is
// identified by its position and name in the source archive.
type EntryReadError struct {
	Path      string `json:"archive"`
	Index     int    `json:"index"`
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
	Err       error  `json:"-"`
}

func (e *EntryReadError) Error() string {
	name := e.Name
	if e.Namespace != "" {
		name = e.Namespace + "/" + e.Name
	}
	return fmt.Sprintf("read entry #%d %q in %s: %v", e.Index, name, e.Path, e.Err)
}

func (e *EntryReadError) Unwrap() error { return e.Err }

func (e *EntryReadError) Is(target error) bool { return target == ErrEntryRead }

// Reason is the underlying cause as text, for reports.
func (e *EntryReadError) Reason() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

// MarshalJSON adds the reason, which Err alone cannot carry.
func (e *EntryReadError) MarshalJSON() ([]byte, error) {
	type plain EntryReadError
	return json.Marshal(struct {
		*plain
		Reason string `json:"reason"`
	}{(*plain)(e), e.Reason()})
}

// WrapOpen wraps err into an *OpenError for path unless it already is one.
func WrapOpen(path string, err error) error {
	if err == nil {
		return nil
	}
	var oe *OpenError
	if errors.As(err, &oe) {
		return err
	}
	return &OpenError{Path: path, Err: err}
}

// Corruptf builds an ErrCorrupt-wrapping error.
func Corruptf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorrupt, fmt.Sprintf(format, args...))
}
