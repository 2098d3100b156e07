// Package index defines the per-entry records extracted from an archive and
// builds the sorted, read-only sets the differ walks.
package index

import (
	"strings"

	"zimcompare/internal/fingerprint"
)

// Key identifies an entry across archives. Two entries with the same Name in
// different namespaces are distinct.
type Key struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
}

// Compare orders keys by namespace, then by name (bytewise).
func (k Key) Compare(o Key) int {
	if c := strings.Compare(k.Namespace, o.Namespace); c != 0 {
		return c
	}
	return strings.Compare(k.Name, o.Name)
}

// Less reports whether k orders before o.
func (k Key) Less(o Key) bool { return k.Compare(o) < 0 }

// String renders the key as "ns/name", or just the name when the namespace
// is empty.
func (k Key) String() string {
	if k.Namespace == "" {
		return k.Name
	}
	return k.Namespace + "/" + k.Name
}

// Record is one entry's diffable identity. Seq is the entry's position in
// the source archive's iteration order and only serves diagnostics and
// tie-breaking.
type Record struct {
	Key
	Fingerprint fingerprint.Fingerprint `json:"fingerprint"`
	Seq         int                     `json:"seq"`
}
