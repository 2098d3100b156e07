// Package dirarchive presents an unpacked archive (a directory tree, as left
// by a ZIM dump tool) as an archive.Archive. The tree is walked once at open
// time; file contents are read lazily during iteration.
package dirarchive

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"zimcompare/internal/archive"
)

// DefaultExclude lists base-name prefixes skipped by default.
var DefaultExclude = []string{".git", ".svn", ".DS_Store"}

// Options filters the walk.
type Options struct {
	// Exclude skips files and directories whose base name starts with any
	// of these prefixes.
	Exclude []string
	// UseGitignore honours the root .gitignore.
	UseGitignore   bool
	FollowSymlinks bool
}

type file struct {
	rel  string
	abs  string
	size int64
}

// Archive iterates the regular files of a directory in path order.
type Archive struct {
	root  string
	files []file
	next  int
	cur   archive.Entry
}

// Open walks root and returns an archive over the files that pass opt.
func Open(ctx context.Context, root string, opt Options) (*Archive, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, archive.WrapOpen(root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, archive.WrapOpen(root, err)
	}
	if !info.IsDir() {
		return nil, archive.WrapOpen(root, fmt.Errorf("%s is not a directory", root))
	}
	ws := &walkState{ctx: ctx, opt: opt, root: abs}
	if opt.UseGitignore {
		// A missing or unreadable .gitignore means no patterns.
		ws.patterns, _ = parseGitignore(filepath.Join(abs, ".gitignore"))
	}
	if err := filepath.WalkDir(abs, ws.visit); err != nil {
		return nil, archive.WrapOpen(root, err)
	}
	sort.Slice(ws.files, func(i, j int) bool { return ws.files[i].rel < ws.files[j].rel })
	return &Archive{root: root, files: ws.files}, nil
}

// Opener adapts Open to archive.Opener.Directory.
func Opener(opt Options) func(context.Context, string) (archive.Archive, error) {
	return func(ctx context.Context, path string) (archive.Archive, error) {
		a, err := Open(ctx, path, opt)
		if err != nil {
			return nil, err
		}
		return a, nil
	}
}

// Len is the number of files found.
func (a *Archive) Len() int { return len(a.files) }

func (a *Archive) Path() string { return a.root }

func (a *Archive) Next() bool {
	if a.next >= len(a.files) {
		return false
	}
	i := a.next
	f := a.files[i]
	a.next++
	ns, name := archive.SplitNamespace(f.rel)
	e := archive.NewEntry(ns, name, "", i, func() (io.ReadCloser, error) {
		return os.Open(f.abs)
	})
	e.Size = f.size
	a.cur = e
	return true
}

func (a *Archive) Entry() archive.Entry { return a.cur }

func (a *Archive) Err() error { return nil }

func (a *Archive) Close() error { return nil }

type walkState struct {
	ctx      context.Context
	opt      Options
	root     string
	patterns []gitPattern
	files    []file
}

func (ws *walkState) visit(path string, d fs.DirEntry, err error) error {
	if err != nil {
		if path == ws.root {
			return err
		}
		// Unreadable subtrees are left out, like files that vanish mid-walk.
		return nil
	}
	if err := ws.ctx.Err(); err != nil {
		return err
	}
	rel, ok := ws.relative(path)
	if !ok || rel == "." {
		return nil
	}
	if ws.shouldSkip(rel, d) {
		if d.IsDir() {
			return filepath.SkipDir
		}
		return nil
	}
	if d.IsDir() {
		return nil
	}
	return ws.handleFile(path, rel, d)
}

func (ws *walkState) relative(path string) (string, bool) {
	rel, err := filepath.Rel(ws.root, path)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if strings.HasPrefix(rel, "../") || rel == ".." {
		return "", false
	}
	return rel, true
}

func (ws *walkState) shouldSkip(rel string, d fs.DirEntry) bool {
	if hasExcludedPrefix(filepath.Base(rel), ws.opt.Exclude) {
		return true
	}
	return ws.opt.UseGitignore && matchGitignore(ws.patterns, rel, d.IsDir())
}

func (ws *walkState) handleFile(path, rel string, d fs.DirEntry) error {
	if isSymlink(d) {
		if !ws.opt.FollowSymlinks {
			return nil
		}
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			return nil
		}
		ws.files = append(ws.files, file{rel: rel, abs: path, size: info.Size()})
		return nil
	}
	info, err := d.Info()
	if err != nil || !info.Mode().IsRegular() {
		return nil
	}
	ws.files = append(ws.files, file{rel: rel, abs: path, size: info.Size()})
	return nil
}

func isSymlink(d fs.DirEntry) bool {
	return d.Type()&fs.ModeSymlink != 0
}

// hasExcludedPrefix reports whether base begins with any exclude entry, so
// "build" also skips "build-output".
func hasExcludedPrefix(base string, exclude []string) bool {
	for _, k := range exclude {
		if k != "" && strings.HasPrefix(base, k) {
			return true
		}
	}
	return false
}
