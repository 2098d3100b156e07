// Package delta classifies the entries of two fingerprint sets into
// unchanged, updated, removed and added partitions.
//
// The four partitions are disjoint and together cover the union of both
// sets' keys. Classification looks at fingerprints only; content is never
// compared.
package delta

import (
	"fmt"

	"zimcompare/internal/fingerprint"
	"zimcompare/internal/index"
)

// Kind names a partition.
type Kind int

const (
	Unchanged Kind = iota
	Updated
	Removed
	Added
)

// Kinds lists the partitions in report order.
func Kinds() []Kind { return []Kind{Removed, Updated, Added, Unchanged} }

func (k Kind) String() string {
	switch k {
	case Unchanged:
		return "unchanged"
	case Updated:
		return "updated"
	case Removed:
		return "removed"
	case Added:
		return "added"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Change is one classified key. Before is zero for Added, After is zero for
// Removed; BaseSeq/TargetSeq are -1 on the missing side.
type Change struct {
	index.Key
	Before    fingerprint.Fingerprint `json:"before,omitempty"`
	After     fingerprint.Fingerprint `json:"after,omitempty"`
	BaseSeq   int                     `json:"baseSeq"`
	TargetSeq int                     `json:"targetSeq"`
}

// Result is the classified difference between a base and a target set.
// Each partition is in key order.
type Result struct {
	Unchanged []Change `json:"unchanged"`
	Updated   []Change `json:"updated"`
	Removed   []Change `json:"removed"`
	Added     []Change `json:"added"`
}

// Counts is the size of every partition.
type Counts struct {
	Removed   int `json:"removed"`
	Updated   int `json:"updated"`
	Added     int `json:"added"`
	Unchanged int `json:"unchanged"`
}

// Total is the number of distinct keys across both sets.
func (c Counts) Total() int { return c.Removed + c.Updated + c.Added + c.Unchanged }

// Counts returns the partition sizes.
func (r *Result) Counts() Counts {
	return Counts{
		Removed:   len(r.Removed),
		Updated:   len(r.Updated),
		Added:     len(r.Added),
		Unchanged: len(r.Unchanged),
	}
}

// Partition returns the changes of one kind.
func (r *Result) Partition(k Kind) []Change {
	switch k {
	case Unchanged:
		return r.Unchanged
	case Updated:
		return r.Updated
	case Removed:
		return r.Removed
	case Added:
		return r.Added
	default:
		return nil
	}
}

// Keys returns the keys of one partition in order.
func (r *Result) Keys(k Kind) []index.Key {
	part := r.Partition(k)
	out := make([]index.Key, len(part))
	for i, c := range part {
		out[i] = c.Key
	}
	return out
}

// Empty reports whether the two sets hold the same keys with the same
// fingerprints.
func (r *Result) Empty() bool {
	return len(r.Updated) == 0 && len(r.Removed) == 0 && len(r.Added) == 0
}

// Compute merge-joins base and target. Both sets are already sorted by key,
// so the walk is linear in their combined size and neither set is modified.
func Compute(base, target *index.Set) *Result {
	n, m := base.Len(), target.Len()
	res := &Result{
		Unchanged: make([]Change, 0),
		Updated:   make([]Change, 0),
		Removed:   make([]Change, 0),
		Added:     make([]Change, 0),
	}

	i, j := 0, 0
	for i < n && j < m {
		b, t := base.At(i), target.At(j)
		switch c := b.Key.Compare(t.Key); {
		case c == 0:
			ch := Change{Key: b.Key, Before: b.Fingerprint, After: t.Fingerprint, BaseSeq: b.Seq, TargetSeq: t.Seq}
			if b.Fingerprint == t.Fingerprint {
				res.Unchanged = append(res.Unchanged, ch)
			} else {
				res.Updated = append(res.Updated, ch)
			}
			i++
			j++
		case c < 0:
			res.Removed = append(res.Removed, removed(b))
			i++
		default:
			res.Added = append(res.Added, added(t))
			j++
		}
	}
	for ; i < n; i++ {
		res.Removed = append(res.Removed, removed(base.At(i)))
	}
	for ; j < m; j++ {
		res.Added = append(res.Added, added(target.At(j)))
	}
	return res
}

func removed(r index.Record) Change {
	return Change{Key: r.Key, Before: r.Fingerprint, BaseSeq: r.Seq, TargetSeq: -1}
}

func added(r index.Record) Change {
	return Change{Key: r.Key, After: r.Fingerprint, BaseSeq: -1, TargetSeq: r.Seq}
}
