// Package bundle writes the delta bundle of a comparison: a reproducible ZIP
// holding the machine-readable delta, human summaries and per-entry patches.
//
// This file builds the patches. Patch names are derived from entry keys,
// made filesystem-safe and unique; the writer sorts them.
package bundle

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"zimcompare/internal/delta"
	"zimcompare/internal/diff"
	"zimcompare/internal/index"
	"zimcompare/internal/textutil"
)

// invalidFileCharsRe contains characters that are invalid in Windows filenames.
var invalidFileCharsRe = regexp.MustCompile(`[\\:*?"<>|]`)

// Contents holds raw entry contents for both sides. Either map may lack a
// key; patches then fall back to the side that is present.
type Contents struct {
	Base   map[index.Key][]byte
	Target map[index.Key][]byte
}

// Patch describes one generated patch.
type Patch struct {
	index.Key
	Kind     string `json:"kind"`
	Path     string `json:"diff"`
	Oversize bool   `json:"oversize,omitempty"`
	Binary   bool   `json:"binary,omitempty"`
}

// safeDiffBase turns a key into a filesystem-safe patch base name.
func safeDiffBase(k index.Key) string {
	base := k.Name
	if k.Namespace != "" {
		base = k.Namespace + "_" + k.Name
	}
	base = strings.ReplaceAll(base, "/", "_")
	base = invalidFileCharsRe.ReplaceAllString(base, "_")
	base = strings.TrimLeft(base, "._")
	if base == "" {
		base = "patch"
	}
	return base
}

func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:8]
}

// uniquePatchName returns base+".patch", or a suffixed variant when that name
// is taken.
func uniquePatchName(base, hashHint string, used map[string]struct{}) string {
	name := base + ".patch"
	if _, ok := used[name]; !ok {
		used[name] = struct{}{}
		return name
	}
	suffix := hashHint
	if suffix == "" {
		suffix = shortHash(base)
	}
	name = base + "-" + suffix + ".patch"
	if _, ok := used[name]; !ok {
		used[name] = struct{}{}
		return name
	}
	name = base + "-" + suffix + "-" + shortHash(base+suffix) + ".patch"
	used[name] = struct{}{}
	return name
}

// MakeDiffs builds patches for the updated entries of res, and for added and
// removed entries whose content is present in c. Entries that do not look
// like text get a one-line placeholder.
//
// It returns map[patchName]body plus a Patch per body, in partition order.
func MakeDiffs(res *delta.Result, c Contents, opt diff.Options) (map[string]string, []Patch) {
	out := make(map[string]string)
	var patches []Patch
	used := make(map[string]struct{})

	emit := func(ch delta.Change, kind delta.Kind, body string, oversize, binary bool) {
		hint := ch.After.String()
		if kind == delta.Removed {
			hint = ch.Before.String()
		}
		name := uniquePatchName(safeDiffBase(ch.Key), hint[len(hint)-8:], used)
		out[name] = body
		patches = append(patches, Patch{
			Key:      ch.Key,
			Kind:     kind.String(),
			Path:     "diffs/" + name,
			Oversize: oversize,
			Binary:   binary,
		})
	}

	for _, ch := range res.Updated {
		a, okA := c.Base[ch.Key]
		b, okB := c.Target[ch.Key]
		aName, bName := "a/"+ch.Key.String(), "b/"+ch.Key.String()
		switch {
		case !okA && !okB:
			continue
		case (okA && !textutil.LooksText(a)) || (okB && !textutil.LooksText(b)):
			emit(ch, delta.Updated, binaryPlaceholder(aName, bName, ch), false, true)
		case !okA:
			body, over := diff.Added(bName, textutil.NormalizeUTF8LF(b), opt)
			emit(ch, delta.Updated, body, over, false)
		case !okB:
			body, over := diff.Removed(aName, textutil.NormalizeUTF8LF(a), opt)
			emit(ch, delta.Updated, body, over, false)
		default:
			body, over := diff.Unified(aName, bName, textutil.NormalizeUTF8LF(a), textutil.NormalizeUTF8LF(b), opt)
			emit(ch, delta.Updated, body, over, false)
		}
	}
	for _, ch := range res.Added {
		b, ok := c.Target[ch.Key]
		if !ok {
			continue
		}
		bName := "b/" + ch.Key.String()
		if !textutil.LooksText(b) {
			emit(ch, delta.Added, binaryPlaceholder(diff.DevNull, bName, ch), false, true)
			continue
		}
		body, over := diff.Added(bName, textutil.NormalizeUTF8LF(b), opt)
		emit(ch, delta.Added, body, over, false)
	}
	for _, ch := range res.Removed {
		a, ok := c.Base[ch.Key]
		if !ok {
			continue
		}
		aName := "a/" + ch.Key.String()
		if !textutil.LooksText(a) {
			emit(ch, delta.Removed, binaryPlaceholder(aName, diff.DevNull, ch), false, true)
			continue
		}
		body, over := diff.Removed(aName, textutil.NormalizeUTF8LF(a), opt)
		emit(ch, delta.Removed, body, over, false)
	}
	return out, patches
}

func binaryPlaceholder(aName, bName string, ch delta.Change) string {
	return fmt.Sprintf("--- %s\n+++ %s\n@@\n# binary content differs (%s -> %s)\n", aName, bName, ch.Before, ch.After)
}
