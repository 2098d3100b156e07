package dirarchive

import (
	"bufio"
	"os"
	"regexp"
	"strings"
)

type gitPattern struct {
	neg     bool // leading '!'
	dirOnly bool // trailing '/'
	rx      *regexp.Regexp
}

// parseGitignore compiles the patterns of a .gitignore file. Supported:
// comments and blank lines, '!' negation, leading '/' anchoring, trailing '/'
// for directories, '**' across directories, '*' and '?' within a segment.
func parseGitignore(path string) ([]gitPattern, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var res []gitPattern
	s := bufio.NewScanner(f)
	for s.Scan() {
		if p, ok := parsePattern(s.Text()); ok {
			res = append(res, p)
		}
	}
	return res, s.Err()
}

func parsePattern(line string) (gitPattern, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return gitPattern{}, false
	}
	var p gitPattern
	if strings.HasPrefix(line, "!") {
		p.neg = true
		line = strings.TrimSpace(line[1:])
		if line == "" {
			return gitPattern{}, false
		}
	}
	if strings.HasSuffix(line, "/") {
		p.dirOnly = true
		line = strings.TrimSuffix(line, "/")
	}
	anchored := strings.HasPrefix(line, "/")
	line = strings.TrimPrefix(line, "/")
	p.rx = compileGlob(line, anchored)
	return p, true
}

func compileGlob(glob string, anchored bool) *regexp.Regexp {
	esc := regexp.QuoteMeta(glob)
	esc = strings.ReplaceAll(esc, `\*\*`, "\x00")
	esc = strings.ReplaceAll(esc, `\*`, "[^/]*")
	esc = strings.ReplaceAll(esc, `\?`, "[^/]")
	esc = strings.ReplaceAll(esc, "\x00", ".*")
	if anchored {
		return regexp.MustCompile("^" + esc + "$")
	}
	return regexp.MustCompile("(^|.*/)" + esc + "$")
}

// matchGitignore applies patterns in order; the last match decides.
func matchGitignore(pats []gitPattern, rel string, isDir bool) bool {
	ignored := false
	for _, p := range pats {
		if p.dirOnly && !isDir {
			continue
		}
		if p.rx.MatchString(rel) {
			ignored = !p.neg
		}
	}
	return ignored
}
