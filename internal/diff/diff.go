// Package diff renders unified patches of entry contents with
// github.com/pmezard/go-difflib/difflib (---/+++ headers, @@ hunks, lines
// prefixed with ' ', '-', '+').
package diff

import (
	"fmt"
	"strings"

	difflib "github.com/pmezard/go-difflib/difflib"
)

// DefaultContext is the number of context lines used when Options.Context
// is not positive.
const DefaultContext = 4

// DevNull names the missing side of an added or removed entry.
const DevNull = "/dev/null"

// Options controls patch generation.
type Options struct {
	// MaxBytes bounds the combined input size. Larger inputs get a
	// placeholder patch and oversize=true. 0 means no limit.
	MaxBytes int
	// Context is the number of context lines around each hunk.
	Context int
}

func (o Options) context() int {
	if o.Context <= 0 {
		return DefaultContext
	}
	return o.Context
}

// Unified produces a unified patch for a -> b. oversize reports that the
// inputs exceeded MaxBytes and a placeholder was returned instead.
func Unified(aName, bName string, a, b []byte, opt Options) (body string, oversize bool) {
	if opt.MaxBytes > 0 && len(a)+len(b) > opt.MaxBytes {
		return omitted(aName, bName), true
	}
	return render(aName, bName, splitLinesKeepNL(string(a)), splitLinesKeepNL(string(b)), opt.context()), false
}

// Added produces a patch creating b from nothing.
func Added(bName string, b []byte, opt Options) (string, bool) {
	if opt.MaxBytes > 0 && len(b) > opt.MaxBytes {
		return omitted(DevNull, bName), true
	}
	return render(DevNull, bName, nil, splitLinesKeepNL(string(b)), opt.context()), false
}

// Removed produces a patch deleting a entirely.
func Removed(aName string, a []byte, opt Options) (string, bool) {
	if opt.MaxBytes > 0 && len(a) > opt.MaxBytes {
		return omitted(aName, DevNull), true
	}
	return render(aName, DevNull, splitLinesKeepNL(string(a)), nil, opt.context()), false
}

func render(aName, bName string, a, b []string, ctx int) string {
	u := difflib.UnifiedDiff{
		A:        a,
		B:        b,
		FromFile: aName,
		ToFile:   bName,
		Context:  ctx,
	}
	s, err := difflib.GetUnifiedDiffString(u)
	if err != nil || s == "" {
		// Identical inputs (or empty on both sides) produce no hunks.
		return fmt.Sprintf("--- %s\n+++ %s\n", aName, bName)
	}
	return s
}

// splitLinesKeepNL splits s into lines that keep their "\n"; a missing final
// newline leaves the last line bare.
func splitLinesKeepNL(s string) []string {
	if s == "" {
		return []string{}
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// omitted is the placeholder for inputs over the size limit.
func omitted(aName, bName string) string {
	return fmt.Sprintf("--- %s\n+++ %s\n@@\n# diff omitted (oversize)\n", aName, bName)
}
