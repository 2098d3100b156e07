package bundle

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"zimcompare/internal/index"
)

// ReadmeOptions configures README generation. Everything is rendered
// deterministically; no timestamps or environment data.
type ReadmeOptions struct {
	Title        string
	ContextLines int
	MaxDiffBytes int
}

const deltaReadmeTemplate = `
# {{.Title}}: DELTA bundle

This archive is a **DELTA bundle** produced by *zimcompare*. It describes how a target archive differs from a base archive, entry by entry.

## Layout
- **delta.index.json**: machine-readable delta (counts, removed/updated/added keys, moves, patches, unreadable entries).
- **SUMMARY.md**: human summary of the same data.
- **delta.patch**: every patch concatenated, in patch name order.
- **diffs/**: one unified diff per entry, named ` + "`<namespace>_<name>.patch`" + `.

## Conventions
- Entries are identified by namespace and name; a key renders as ` + "`ns/name`" + `.
- Encoding: **UTF-8**; newlines: **\n** only.
- Unified diff context: **{{.ContextLines}}** lines.
- Old content is prefixed **a/**, new content **b/**; added and removed entries use ` + "`/dev/null`" + ` on the missing side.
- Entries whose content is not text get a placeholder hunk naming both fingerprints:
# binary content differs (<before> -> <after>)

## Oversize diffs
{{if .MaxDiffBytes}}Entries whose combined content exceeds **{{.MaxDiffBytes}}** bytes{{else}}Oversized entries{{end}} get a minimal placeholder hunk:
--- <old>
+++ <new>
@@
# diff omitted (oversize)

## Moves
A move pairs a removed key with an added key carrying the same fingerprint. Moves are informational; the keys stay listed as removed and added.

`

type rdCtx struct {
	Title        string
	ContextLines int
	MaxDiffBytes int
}

// GenerateDeltaReadme renders README.md.
func GenerateDeltaReadme(opts ReadmeOptions) ([]byte, error) {
	title := strings.TrimSpace(opts.Title)
	if title == "" {
		title = "zimcompare"
	}
	ctxLines := opts.ContextLines
	if ctxLines <= 0 {
		ctxLines = 4
	}
	return render(deltaReadmeTemplate, rdCtx{Title: title, ContextLines: ctxLines, MaxDiffBytes: opts.MaxDiffBytes})
}

const summaryTemplate = `
# Summary

- Base: ` + "`{{.Base}}`" + `
- Target: ` + "`{{.Target}}`" + `
{{- if .Algorithm}}
- Fingerprint: {{.Algorithm}}{{if .KeyMode}}, entries keyed by {{.KeyMode}}{{end}}
{{- end}}

| partition | entries |
|---|---|
| removed | {{.Counts.Removed}} |
| updated | {{.Counts.Updated}} |
| added | {{.Counts.Added}} |
| unchanged | {{.Counts.Unchanged}} |
{{template "keys" (section "Removed" .Removed)}}{{template "keys" (section "Updated" .Updated)}}{{template "keys" (section "Added" .Added)}}
{{- if .Moves}}
## Moves
{{range .Moves}}- ` + "`{{.From}}`" + ` -> ` + "`{{.To}}`" + `
{{end}}{{end}}
{{- if .Failures}}
## Unreadable entries
{{range .Failures}}- {{.Path}} #{{.Index}} ` + "`{{.Namespace}}/{{.Name}}`" + `: {{.Reason}}
{{end}}{{end}}
{{- define "keys"}}{{if .Keys}}
## {{.Title}}
{{range .Keys}}- ` + "`{{.}}`" + `
{{end}}{{end}}{{end}}
`

type keySection struct {
	Title string
	Keys  []index.Key
}

// GenerateSummary renders SUMMARY.md for idx.
func GenerateSummary(idx DeltaIndex) ([]byte, error) {
	return render(summaryTemplate, idx)
}

var funcs = template.FuncMap{
	"section": func(title string, keys []index.Key) keySection { return keySection{Title: title, Keys: keys} },
}

func render(tpl string, data any) ([]byte, error) {
	t := template.Must(template.New("doc").Funcs(funcs).Parse(tpl))
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}
	// Strip trailing spaces; templates use \n already.
	lines := strings.Split(strings.TrimLeft(buf.String(), "\n"), "\n")
	for i, ln := range lines {
		lines[i] = strings.TrimRight(ln, " \t")
	}
	out := strings.Join(lines, "\n")
	if !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	return []byte(out), nil
}
