package diff

import (
	"strings"
	"testing"
)

func TestUnifiedProducesHunks(t *testing.T) {
	body, oversize := Unified("a/C/Home", "b/C/Home", []byte("line1\nline2\n"), []byte("line1\nline3\n"), Options{Context: 3})
	if oversize {
		t.Fatalf("unexpected oversize")
	}
	for _, want := range []string{"--- a/C/Home", "+++ b/C/Home", "@@", "-line2", "+line3", " line1"} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in patch:\n%s", want, body)
		}
	}
}

func TestUnifiedOversize(t *testing.T) {
	body, oversize := Unified("a", "b", []byte("12345"), []byte("67890"), Options{MaxBytes: 8})
	if !oversize {
		t.Fatalf("expected oversize")
	}
	if body != omitted("a", "b") {
		t.Fatalf("expected placeholder, got %q", body)
	}
}

func TestUnifiedIdentical(t *testing.T) {
	body, _ := Unified("a", "b", []byte("same\n"), []byte("same\n"), Options{})
	if body != "--- a\n+++ b\n" {
		t.Fatalf("unexpected body for identical input: %q", body)
	}
}

func TestAddedAndRemoved(t *testing.T) {
	add, _ := Added("b/x", []byte("one\ntwo"), Options{})
	if !strings.Contains(add, "--- /dev/null") || !strings.Contains(add, "+one") || !strings.Contains(add, "+two") {
		t.Fatalf("bad added patch:\n%s", add)
	}
	rem, _ := Removed("a/x", []byte("gone\n"), Options{})
	if !strings.Contains(rem, "+++ /dev/null") || !strings.Contains(rem, "-gone") {
		t.Fatalf("bad removed patch:\n%s", rem)
	}
	if _, over := Removed("a/x", []byte("gone\n"), Options{MaxBytes: 2}); !over {
		t.Fatalf("expected oversize for removed")
	}
}

func TestSplitLinesKeepNL(t *testing.T) {
	got := splitLinesKeepNL("a\nb\nc")
	if len(got) != 3 || got[0] != "a\n" || got[2] != "c" {
		t.Fatalf("unexpected split: %q", got)
	}
	if n := len(splitLinesKeepNL("a\n")); n != 1 {
		t.Fatalf("trailing newline produced %d lines", n)
	}
	if n := len(splitLinesKeepNL("")); n != 0 {
		t.Fatalf("empty input produced %d lines", n)
	}
}
