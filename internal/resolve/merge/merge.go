// Package merge implements the greedy merger (spec.md §4.3): repeatedly
// applying the highest-scoring legal merge of two MessageSets until no
// merge has positive score.
package merge

import (
	"sort"

	"github.com/ampio/canresolve/internal/model"
	"github.com/ampio/canresolve/internal/resolve/fingerprint"
	"github.com/ampio/canresolve/internal/resolve/params"
)

// Ledger tracks remaining capacity per bus id as sets commit to concrete
// buses, either from the start (messages declaring a bus_hint) or via an
// assign_bus merge event.
type Ledger struct {
	remaining map[uint32]float64
	order     []uint32
}

// NewLedger seeds remaining capacity from each bus's baudrate.
func NewLedger(buses []model.Bus) *Ledger {
	l := &Ledger{remaining: make(map[uint32]float64, len(buses))}
	for _, b := range buses {
		l.remaining[b.ID] = float64(b.Baudrate)
		l.order = append(l.order, b.ID)
	}
	return l
}

// Reserve deducts load from bus, used for sets that are fixed to a bus from
// the start. Returns false if this overflows the bus's capacity.
func (l *Ledger) Reserve(bus uint32, load float64) bool {
	l.remaining[bus] -= load
	return l.remaining[bus] >= 0
}

// Remaining returns the current remaining capacity of a bus.
func (l *Ledger) Remaining(bus uint32) float64 { return l.remaining[bus] }

// MaxRemaining returns the greatest remaining capacity across all buses.
func (l *Ledger) MaxRemaining() float64 {
	max := 0.0
	first := true
	for _, id := range l.order {
		r := l.remaining[id]
		if first || r > max {
			max = r
			first = false
		}
	}
	return max
}

// HigherRankCount returns the number of buses with strictly greater
// remaining capacity than bus (spec.md §4.3's "niceness" term).
func (l *Ledger) HigherRankCount(bus uint32) int {
	n := 0
	mine := l.remaining[bus]
	for _, id := range l.order {
		if id == bus {
			continue
		}
		if l.remaining[id] > mine {
			n++
		}
	}
	return n
}

// Niceness implements spec.md §4.3: 1.5·B − (buses with higher remaining capacity).
func Niceness(numBuses int, l *Ledger, bus uint32) float64 {
	return 1.5*float64(numBuses) - float64(l.HigherRankCount(bus))
}

// SeedFixedBusSets deducts the load of every already bus-bound set from the
// ledger and reports whether any bus is already overcommitted before
// merging even begins (the static sum of every message declaring that bus
// as a hint).
func SeedFixedBusSets(l *Ledger, sets []*fingerprint.MessageSet) error {
	for _, s := range sets {
		if s.Key.Bus.Any {
			continue
		}
		l.remaining[s.Key.Bus.Bus] -= s.BusLoad
	}
	for _, id := range l.order {
		if l.remaining[id] < 0 {
			return errBus(id)
		}
	}
	return nil
}

// CapacityError reports a bus whose capacity a merge would exceed. The parent
// resolve package maps it to its own InsufficientCapacity error by type
// assertion, since merge cannot import resolve without an import cycle.
type CapacityError struct {
	Bus uint32
}

func (e *CapacityError) Error() string { return "insufficient capacity" }

func errBus(bus uint32) error { return &CapacityError{Bus: bus} }

// Step describes one applied merge. Run does not return Steps; it reports only
// the number of merges applied.
type Step struct {
	Score int
}

// Run repeatedly applies the best-scoring legal merge until none remains
// positive, mutating coll in place. It returns the number of merges applied.
func Run(coll *fingerprint.Collection, buses []model.Bus, ledger *Ledger) (int, error) {
	steps := 0
	for {
		sets := coll.Sets()
		if len(sets) < 2 {
			return steps, nil
		}
		best, bestI, bestJ, fatal := pickBest(sets, len(buses), ledger)
		if fatal != nil {
			return steps, fatal
		}
		if best == nil {
			return steps, nil
		}
		if err := apply(coll, ledger, sets[bestI], sets[bestJ], best); err != nil {
			return steps, err
		}
		steps++
	}
}

type candidate struct {
	mergedKey  fingerprint.SetKey
	mergedLoad float64
	score      int
	assignBus  *uint32 // bus newly committed via this merge (nil if none)
	addedLoad  float64 // load added to assignBus by the newly-bound side
	anyAnyBus  bool     // both sides were bus-any (no commit, just a capacity sanity check)
}

func pickBest(sets []*fingerprint.MessageSet, numBuses int, ledger *Ledger) (*candidate, int, int, error) {
	var best *candidate
	bestI, bestJ := -1, -1
	for i := 0; i < len(sets); i++ {
		for j := i + 1; j < len(sets); j++ {
			c := score(sets[i], sets[j], numBuses, ledger)
			if c == nil {
				continue
			}
			if c.score <= 0 {
				continue
			}
			if best == nil || better(c, sets[i], sets[j], best, sets[bestI], sets[bestJ]) {
				best = c
				bestI, bestJ = i, j
			}
		}
	}
	return best, bestI, bestJ, nil
}

// better reports whether candidate c (from pair a,b) should be preferred
// over the current best (from pair bestA,bestB): higher score wins; ties
// between two bus-any candidates break by (bus_load desc, key desc)
// (spec.md §9's open-question resolution), all other ties keep the
// earlier-found (lower insertion-order) pair.
func better(c *candidate, a, b *fingerprint.MessageSet, best *candidate, bestA, bestB *fingerprint.MessageSet) bool {
	if c.score != best.score {
		return c.score > best.score
	}
	if c.anyAnyBus && best.anyAnyBus {
		if c.mergedLoad != best.mergedLoad {
			return c.mergedLoad > best.mergedLoad
		}
		return c.mergedKey.Receivers > best.mergedKey.Receivers
	}
	return false // keep first-found (lower insertion order) on any other tie
}

func score(a, b *fingerprint.MessageSet, numBuses int, ledger *Ledger) *candidate {
	if a.Key.Receivers != b.Key.Receivers {
		return nil
	}
	mergedType, assignStd, assignExt, ok := combineType(a.Key.Type, b.Key.Type)
	if !ok {
		return nil
	}
	mergedBus, assignBus, addedLoad, anyAnyBus, ok := combineBus(a, b)
	if !ok {
		return nil
	}
	mergedSuffix, assignSuffix, ok := combineSuffix(a.Key.Suffix, b.Key.Suffix)
	if !ok {
		return nil
	}

	c := &candidate{
		mergedKey: fingerprint.SetKey{
			Bus:       mergedBus,
			Type:      mergedType,
			Suffix:    mergedSuffix,
			Receivers: a.Key.Receivers,
		},
		mergedLoad: a.BusLoad + b.BusLoad,
		anyAnyBus:  anyAnyBus,
	}

	var busScore int
	if assignBus != nil {
		c.assignBus = assignBus
		c.addedLoad = addedLoad
		if ledger.Remaining(*assignBus) >= addedLoad {
			busScore = int(Niceness(numBuses, ledger, *assignBus))
		} else {
			busScore = -1000
		}
	}
	typeScore := 0
	if assignStd {
		typeScore += 2 * numBuses
	}
	if assignExt {
		typeScore += 0
	}
	suffixScore := 0
	if assignSuffix {
		suffixScore = numBuses/2 + 1
	}
	c.score = busScore + typeScore + suffixScore
	return c
}

func combineType(a, b fingerprint.TypeAssignment) (merged fingerprint.TypeAssignment, assignStd, assignExt, ok bool) {
	switch {
	case a == fingerprint.TypeStd && b == fingerprint.TypeStd:
		return fingerprint.TypeStd, false, false, true
	case a == fingerprint.TypeExt && b == fingerprint.TypeExt:
		return fingerprint.TypeExt, false, false, true
	case a == fingerprint.TypeStd && b == fingerprint.TypeExt, a == fingerprint.TypeExt && b == fingerprint.TypeStd:
		return 0, false, false, false
	case a == fingerprint.TypeAny && b == fingerprint.TypeAny:
		if params.ExtendedFramesAllowed {
			return fingerprint.TypeAny, false, false, true
		}
		return fingerprint.TypeStd, true, false, true
	case a == fingerprint.TypeAny:
		return b, b == fingerprint.TypeStd, b == fingerprint.TypeExt, true
	case b == fingerprint.TypeAny:
		return a, a == fingerprint.TypeStd, a == fingerprint.TypeExt, true
	}
	return 0, false, false, false
}

func combineBus(a, b *fingerprint.MessageSet) (merged fingerprint.BusAssignment, assignBus *uint32, addedLoad float64, anyAnyBus, ok bool) {
	ba, bb := a.Key.Bus, b.Key.Bus
	switch {
	case !ba.Any && !bb.Any:
		if ba.Bus != bb.Bus {
			return fingerprint.BusAssignment{}, nil, 0, false, false
		}
		return ba, nil, 0, false, true
	case ba.Any && bb.Any:
		return fingerprint.BusAssignment{Any: true}, nil, 0, true, true
	case !ba.Any && bb.Any:
		id := ba.Bus
		return ba, &id, b.BusLoad, false, true
	default: // ba.Any && !bb.Any
		id := bb.Bus
		return bb, &id, a.BusLoad, false, true
	}
}

func combineSuffix(a, b fingerprint.SuffixAssignment) (merged fingerprint.SuffixAssignment, assignSuffix, ok bool) {
	switch {
	case a.Fixed && b.Fixed:
		if a.Value != b.Value {
			return fingerprint.SuffixAssignment{}, false, false
		}
		return a, false, true
	case !a.Fixed && !b.Fixed:
		return fingerprint.SuffixAssignment{}, false, true
	case a.Fixed && !b.Fixed:
		return a, true, true
	default: // !a.Fixed && b.Fixed
		return b, true, true
	}
}

func apply(coll *fingerprint.Collection, ledger *Ledger, a, b *fingerprint.MessageSet, c *candidate) error {
	if c.anyAnyBus {
		if ledger.MaxRemaining() < c.mergedLoad {
			return errBus(0)
		}
	}
	merged := &fingerprint.MessageSet{
		Key:      c.mergedKey,
		Messages: append(append([]*model.Message(nil), a.Messages...), b.Messages...),
		Loads:    append(append([]float64(nil), a.Loads...), b.Loads...),
		BusLoad:  c.mergedLoad,
	}
	if c.assignBus != nil {
		ledger.Reserve(*c.assignBus, c.addedLoad)
	}
	coll.Replace([]fingerprint.SetKey{a.Key, b.Key}, merged)
	return nil
}

// SortedBusIDs returns bus ids in ascending order, useful for deterministic
// reporting.
func SortedBusIDs(buses []model.Bus) []uint32 {
	ids := make([]uint32, len(buses))
	for i, b := range buses {
		ids[i] = b.ID
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
