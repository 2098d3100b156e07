package bundle

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"zimcompare/internal/diff"
	"zimcompare/internal/index"
)

func readZip(t *testing.T, path string) (names []string, files map[string]string) {
	t.Helper()
	zr, err := zip.OpenReader(path)
	if err != nil {
		t.Fatal(err)
	}
	defer zr.Close()
	files = map[string]string{}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatal(err)
		}
		b, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatal(err)
		}
		names = append(names, f.Name)
		files[f.Name] = string(b)
	}
	return names, files
}

func TestWriteDeltaLayout(t *testing.T) {
	res := sampleResult(t)
	idx := NewDeltaIndex("a.zim", "b.zim", res)
	idx.Algorithm, idx.KeyMode = "adler32", "path"
	diffs := map[string]string{
		"b.patch": "--- a/b\n+++ b/b\n@@ -1 +1 @@\n-x\n+y",
		"a.patch": "--- a/a\n+++ b/a\n@@ -1 +1 @@\n-1\n+2\n",
	}
	out := filepath.Join(t.TempDir(), "nested", "delta.zip")
	if err := WriteDelta(out, idx, diffs, ReadmeOptions{Title: "test"}); err != nil {
		t.Fatal(err)
	}

	names, files := readZip(t, out)
	want := []string{"delta.index.json", "SUMMARY.md", "README.md", "delta.patch", "diffs/a.patch", "diffs/b.patch"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Fatalf("entries = %v, want %v", names, want)
	}
	if !strings.HasPrefix(files["delta.patch"], "--- a/a") || !strings.HasSuffix(files["delta.patch"], "+y\n") {
		t.Fatalf("delta.patch not sorted/terminated:\n%s", files["delta.patch"])
	}

	var got DeltaIndex
	if err := json.Unmarshal([]byte(files["delta.index.json"]), &got); err != nil {
		t.Fatal(err)
	}
	if got.Counts.Updated != 2 || got.Counts.Removed != 1 || got.Counts.Added != 1 {
		t.Fatalf("unexpected counts %+v", got.Counts)
	}
	if len(got.Updated) != 2 || got.Updated[0].Name != "Home" {
		t.Fatalf("unexpected updated keys %v", got.Updated)
	}
}

func TestWriteDeltaDeterministic(t *testing.T) {
	res := sampleResult(t)
	idx := NewDeltaIndex("a.zim", "b.zim", res)
	diffs, patches := MakeDiffs(res, Contents{
		Base:   map[index.Key][]byte{k("A", "Home"): []byte("line1\nline2\n")},
		Target: map[index.Key][]byte{k("A", "Home"): []byte("line1\nline3\n"), k("A", "New"): []byte("hi\n")},
	}, diff.Options{})
	idx.Patches = patches

	dir := t.TempDir()
	p1, p2 := filepath.Join(dir, "1.zip"), filepath.Join(dir, "2.zip")
	if err := WriteDelta(p1, idx, diffs, ReadmeOptions{}); err != nil {
		t.Fatal(err)
	}
	if err := WriteDelta(p2, idx, diffs, ReadmeOptions{}); err != nil {
		t.Fatal(err)
	}
	b1, _ := os.ReadFile(p1)
	b2, _ := os.ReadFile(p2)
	if !bytes.Equal(b1, b2) {
		t.Fatalf("bundles differ between runs")
	}
}
