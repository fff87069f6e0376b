// Package split breaks oversized MessageSets into sets that respect
// params.MaxMessagesPerSet (spec.md §4.4).
package split

import (
	"sort"

	"github.com/ampio/canresolve/internal/model"
	"github.com/ampio/canresolve/internal/resolve/fingerprint"
	"github.com/ampio/canresolve/internal/resolve/params"
)

// entry pairs a message with its own precomputed bus-load contribution so
// sorting and dealing never separate the two.
type entry struct {
	msg  *model.Message
	load float64
}

// UnsplittableFixedSuffixError reports an oversized set that carries a fixed
// suffix. The splitter does not divide such sets; it reports this error
// rather than silently reusing the original key for a suffix-free remainder
// (spec.md §9's Open Question).
type UnsplittableFixedSuffixError struct{ Name string }

func (e *UnsplittableFixedSuffixError) Error() string {
	return "cannot split oversized fixed-suffix set without changing its key: " + e.Name
}

// Run scans every current set and splits those exceeding MaxMessagesPerSet,
// repeating until all sets fit. Splits are priority-balanced and stable. An
// oversized set carrying a fixed suffix is not split: Run reports
// UnsplittableFixedSuffixError for it. This holds whatever the set contains;
// besides fixed-id messages it may hold "any"-id messages that a merge gave
// the fixed suffix, and those are not moved to a suffix-free set either.
func Run(coll *fingerprint.Collection) error {
	for {
		progressed := false
		for _, s := range coll.Sets() {
			if len(s.Messages) <= params.MaxMessagesPerSet {
				continue
			}
			if err := splitOne(coll, s); err != nil {
				return err
			}
			progressed = true
			break // collection mutated; restart the scan
		}
		if !progressed {
			return nil
		}
	}
}

func splitOne(coll *fingerprint.Collection, s *fingerprint.MessageSet) error {
	entries := zip(s)
	sortByPriorityStable(entries)

	if s.Key.Suffix.Fixed {
		name := ""
		if len(s.Messages) > 0 {
			name = s.Messages[0].Name
		}
		return &UnsplittableFixedSuffixError{Name: name}
	}
	splitFree(coll, s, entries)
	return nil
}

// splitFree round-robins a suffix-free set's entries into two halves of the
// same key, each within the per-set cap.
func splitFree(coll *fingerprint.Collection, s *fingerprint.MessageSet, entries []entry) {
	halfA, halfB := roundRobin(entries)
	coll.Remove(s.Key)
	coll.InsertUnique(rebuild(s.Key, halfA))
	coll.InsertUnique(rebuild(s.Key, halfB))
}

func zip(s *fingerprint.MessageSet) []entry {
	out := make([]entry, len(s.Messages))
	for i, m := range s.Messages {
		out[i] = entry{msg: m, load: s.Loads[i]}
	}
	return out
}

func rebuild(key fingerprint.SetKey, entries []entry) *fingerprint.MessageSet {
	set := &fingerprint.MessageSet{Key: key}
	for _, e := range entries {
		set.Messages = append(set.Messages, e.msg)
		set.Loads = append(set.Loads, e.load)
		set.BusLoad += e.load
	}
	return set
}

// roundRobin deals entries alternately into two slices, preserving the
// priority-sorted order within each half so that priority balance is
// maintained across the split (spec.md §4.4).
func roundRobin(entries []entry) (a, b []entry) {
	for i, e := range entries {
		if i%2 == 0 {
			a = append(a, e)
		} else {
			b = append(b, e)
		}
	}
	return a, b
}

// sortByPriorityStable orders entries by declared priority (fixed-id
// messages, which have no declared priority, sort after all "any" messages)
// so that round-robin dealing balances priority across the resulting halves.
func sortByPriorityStable(entries []entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		pi, oki := fingerprint.PriorityOf(entries[i].msg)
		pj, okj := fingerprint.PriorityOf(entries[j].msg)
		if oki != okj {
			return oki
		}
		if !oki {
			return false
		}
		return pi < pj
	})
}
