package delta

import (
	"sort"

	"zimcompare/internal/fingerprint"
	"zimcompare/internal/index"
)

// Move pairs a removed entry with an added one carrying the same content.
// Moves annotate a Result; the entries stay in Removed and Added.
type Move struct {
	From        index.Key               `json:"from"`
	To          index.Key               `json:"to"`
	Fingerprint fingerprint.Fingerprint `json:"fingerprint"`
}

// Moves pairs removed and added entries one-to-one by fingerprint. Added
// entries are considered in key order, each taking the lowest unused removed
// key with the same fingerprint.
func Moves(r *Result) []Move {
	if r == nil || len(r.Removed) == 0 || len(r.Added) == 0 {
		return nil
	}
	// Removed is already in key order, so each bucket is too.
	byFP := make(map[fingerprint.Fingerprint][]index.Key, len(r.Removed))
	for _, c := range r.Removed {
		byFP[c.Before] = append(byFP[c.Before], c.Key)
	}
	var out []Move
	for _, c := range r.Added {
		cands := byFP[c.After]
		if len(cands) == 0 {
			continue
		}
		byFP[c.After] = cands[1:]
		out = append(out, Move{From: cands[0], To: c.Key, Fingerprint: c.After})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if c := out[i].From.Compare(out[j].From); c != 0 {
			return c < 0
		}
		return out[i].To.Less(out[j].To)
	})
	return out
}
