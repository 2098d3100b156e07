package index

import (
	"errors"
	"fmt"
	"iter"
	"slices"
	"sort"
	"strings"
)

// DuplicatePolicy decides what happens when one archive holds the same key
// more than once.
type DuplicatePolicy int

const (
	// KeepFirst keeps the record with the lowest Seq and reports the rest
	// through Set.Duplicates.
	KeepFirst DuplicatePolicy = iota
	// Reject fails Build with a *DuplicateError.
	Reject
)

// ParsePolicy maps "first" / "reject" to a DuplicatePolicy.
func ParsePolicy(s string) (DuplicatePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "first", "keep-first":
		return KeepFirst, nil
	case "reject":
		return Reject, nil
	default:
		return KeepFirst, fmt.Errorf("unknown duplicate policy %q (want first or reject)", s)
	}
}

func (p DuplicatePolicy) String() string {
	if p == Reject {
		return "reject"
	}
	return "first"
}

// ErrDuplicateKey is matched by every *DuplicateError.
var ErrDuplicateKey = errors.New("duplicate key")

// DuplicateError lists the keys that occur more than once.
type DuplicateError struct {
	Keys []Key
}

func (e *DuplicateError) Error() string {
	if len(e.Keys) == 1 {
		return fmt.Sprintf("duplicate key %s", e.Keys[0])
	}
	return fmt.Sprintf("%d duplicate keys (first: %s)", len(e.Keys), e.Keys[0])
}

func (e *DuplicateError) Is(target error) bool { return target == ErrDuplicateKey }

// Set is an immutable collection of records ordered by key. Keys are unique
// within a Set.
type Set struct {
	records    []Record
	duplicates []Record
}

// Build sorts records by (namespace, name, seq) and collapses duplicate keys
// according to policy. The input slice is not modified.
func Build(records []Record, policy DuplicatePolicy) (*Set, error) {
	sorted := make([]Record, len(records))
	copy(sorted, records)
	slices.SortFunc(sorted, func(a, b Record) int {
		if c := a.Key.Compare(b.Key); c != 0 {
			return c
		}
		return a.Seq - b.Seq
	})

	out := make([]Record, 0, len(sorted))
	var dups []Record
	for i, r := range sorted {
		if i > 0 && r.Key == sorted[i-1].Key {
			dups = append(dups, r)
			continue
		}
		out = append(out, r)
	}

	if len(dups) > 0 && policy == Reject {
		keys := make([]Key, 0, len(dups))
		for i, d := range dups {
			if i > 0 && d.Key == dups[i-1].Key {
				continue
			}
			keys = append(keys, d.Key)
		}
		return nil, &DuplicateError{Keys: keys}
	}
	return &Set{records: out, duplicates: dups}, nil
}

// Len returns the number of unique keys.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.records)
}

// At returns the i-th record in key order.
func (s *Set) At(i int) Record { return s.records[i] }

// Lookup finds the record for key by binary search.
func (s *Set) Lookup(key Key) (Record, bool) {
	if s == nil {
		return Record{}, false
	}
	i := sort.Search(len(s.records), func(i int) bool {
		return s.records[i].Key.Compare(key) >= 0
	})
	if i < len(s.records) && s.records[i].Key == key {
		return s.records[i], true
	}
	return Record{}, false
}

// All iterates the records in key order.
func (s *Set) All() iter.Seq[Record] {
	return func(yield func(Record) bool) {
		if s == nil {
			return
		}
		for _, r := range s.records {
			if !yield(r) {
				return
			}
		}
	}
}

// Keys returns the keys in order.
func (s *Set) Keys() []Key {
	if s == nil {
		return nil
	}
	out := make([]Key, len(s.records))
	for i, r := range s.records {
		out[i] = r.Key
	}
	return out
}

// Duplicates returns the records dropped by KeepFirst, in key order.
func (s *Set) Duplicates() []Record {
	if s == nil {
		return nil
	}
	return slices.Clone(s.duplicates)
}
