// Package finalize assigns a concrete bus, frame type, setcode and
// identifier to every MessageSet that survives merging and splitting
// (spec.md §4.5).
package finalize

import (
	"sort"

	"github.com/ampio/canresolve/internal/model"
	"github.com/ampio/canresolve/internal/resolve/fingerprint"
	"github.com/ampio/canresolve/internal/resolve/params"
)

// Result is one finalized set, recording the frame type, bus and setcode
// the engine committed to so filters.Synthesize can derive acceptance
// filters without re-deriving the decision.
type Result struct {
	Set    *fingerprint.MessageSet
	Ext    bool
	Bus    uint32
	Setcode uint32
}

type setcodePool struct {
	used map[uint32]bool
	next uint32
	max  uint32 // 2^suffixLen
}

func newSetcodePool(suffixLen uint32) *setcodePool {
	return &setcodePool{used: make(map[uint32]bool), max: uint32(1) << suffixLen}
}

func (p *setcodePool) reserve(v uint32) bool {
	if p.used[v] {
		return false
	}
	p.used[v] = true
	return true
}

func (p *setcodePool) allocate() (uint32, bool) {
	for p.next < p.max {
		v := p.next
		p.next++
		if !p.used[v] {
			p.used[v] = true
			return v, true
		}
	}
	return 0, false
}

func (p *setcodePool) count() int { return len(p.used) }

// Run finalizes every set currently in coll, in descending bus_load order,
// and returns the committed results in that same order.
func Run(coll *fingerprint.Collection, buses []model.Bus) ([]Result, error) {
	sets := coll.Sets()
	sort.SliceStable(sets, func(i, j int) bool { return sets[i].BusLoad > sets[j].BusLoad })

	stdPool := newSetcodePool(params.StdSuffixLen)
	extPool := newSetcodePool(params.ExtSuffixLen)
	if err := reserveFixedSuffixes(sets, stdPool, extPool); err != nil {
		return nil, err
	}

	ledger, err := seedBusLedger(sets, buses)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(sets))
	for _, s := range sets {
		ext, setcode, err := chooseFrameAndSuffix(s, stdPool, extPool)
		if err != nil {
			return nil, err
		}
		bus, err := chooseBus(s, ledger, buses)
		if err != nil {
			return nil, err
		}
		if err := assignIdentifiers(s, ext, setcode, bus); err != nil {
			return nil, err
		}
		results = append(results, Result{Set: s, Ext: ext, Bus: bus, Setcode: setcode})
	}
	return results, nil
}

func reserveFixedSuffixes(sets []*fingerprint.MessageSet, stdPool, extPool *setcodePool) error {
	for _, s := range sets {
		if !s.Key.Suffix.Fixed {
			continue
		}
		pool := stdPool
		if s.Key.Type == fingerprint.TypeExt {
			pool = extPool
		}
		if !pool.reserve(s.Key.Suffix.Value) {
			return duplicatedFixedID(s)
		}
	}
	return nil
}

func duplicatedFixedID(s *fingerprint.MessageSet) error {
	name := ""
	if len(s.Messages) > 0 {
		name = s.Messages[0].Name
	}
	return &DuplicatedFixedIDError{Name: name}
}

// DuplicatedFixedIDError reports two messages claiming the same literal
// identifier bits within the same frame type.
type DuplicatedFixedIDError struct{ Name string }

func (e *DuplicatedFixedIDError) Error() string {
	return "duplicated fixed identifier at message " + e.Name
}

func chooseFrameAndSuffix(s *fingerprint.MessageSet, stdPool, extPool *setcodePool) (ext bool, setcode uint32, err error) {
	if s.Key.Suffix.Fixed {
		return s.Key.Type == fingerprint.TypeExt, s.Key.Suffix.Value, nil
	}

	switch s.Key.Type {
	case fingerprint.TypeStd:
		code, ok := stdPool.allocate()
		if !ok {
			return false, 0, &SuffixExhaustedError{}
		}
		return false, code, nil
	case fingerprint.TypeExt:
		code, ok := extPool.allocate()
		if !ok {
			return false, 0, &SuffixExhaustedError{}
		}
		return true, code, nil
	default: // TypeAny: prefer std while it still has room, fall back to ext
		if stdPool.count() < int(stdPool.max) {
			if code, ok := stdPool.allocate(); ok {
				return false, code, nil
			}
		}
		if code, ok := extPool.allocate(); ok {
			return true, code, nil
		}
		return false, 0, &SuffixExhaustedError{}
	}
}

// SuffixExhaustedError reports that no free setcode is left for a set: in its
// own frame type, or, for a set whose frame type is still open, in either.
type SuffixExhaustedError struct{}

func (e *SuffixExhaustedError) Error() string { return "suffix space exhausted" }

func seedBusLedger(sets []*fingerprint.MessageSet, buses []model.Bus) (map[uint32]float64, error) {
	ledger := make(map[uint32]float64, len(buses))
	for _, b := range buses {
		ledger[b.ID] = float64(b.Baudrate)
	}
	for _, s := range sets {
		if s.Key.Bus.Any {
			continue
		}
		ledger[s.Key.Bus.Bus] -= s.BusLoad
	}
	for _, b := range buses {
		if ledger[b.ID] < 0 {
			return nil, &InsufficientCapacityError{Bus: b.ID}
		}
	}
	return ledger, nil
}

// InsufficientCapacityError reports a bus whose committed load exceeds its
// baudrate.
type InsufficientCapacityError struct{ Bus uint32 }

func (e *InsufficientCapacityError) Error() string { return "insufficient bus capacity" }

func chooseBus(s *fingerprint.MessageSet, ledger map[uint32]float64, buses []model.Bus) (uint32, error) {
	if !s.Key.Bus.Any {
		return s.Key.Bus.Bus, nil
	}
	best := -1
	var bestRemaining float64
	for i, b := range buses {
		r := ledger[b.ID]
		if r < s.BusLoad {
			continue
		}
		if best == -1 || r > bestRemaining {
			best = i
			bestRemaining = r
		}
	}
	if best == -1 {
		return 0, &InsufficientCapacityError{}
	}
	ledger[buses[best].ID] -= s.BusLoad
	return buses[best].ID, nil
}

// bandBounds splits the id space left above suffixLen into five priority
// bands, the lowest-priority band absorbing any remainder (spec.md §4.5).
func bandBounds(idWidth, suffixLen uint32) [model.PriorityCount][2]uint32 {
	total := uint32(1) << (idWidth - suffixLen)
	size := total / uint32(model.PriorityCount)
	var bands [model.PriorityCount][2]uint32
	var start uint32
	for i := 0; i < model.PriorityCount; i++ {
		end := start + size
		if i == model.PriorityCount-1 {
			end = total
		}
		bands[i] = [2]uint32{start, end}
		start = end
	}
	return bands
}

func assignIdentifiers(s *fingerprint.MessageSet, ext bool, setcode, bus uint32) error {
	suffixLen := params.SuffixLen(ext)
	idWidth := params.IDWidth(ext)
	bands := bandBounds(idWidth, suffixLen)

	reserved := make(map[uint32]bool)
	var fixed, free []*model.Message
	for _, m := range s.Messages {
		if v, e, ok := fingerprint.HasFixedID(m); ok && e == ext {
			offset := v >> suffixLen
			if reserved[offset] {
				return duplicatedFixedIDMsg(m)
			}
			reserved[offset] = true
			fixed = append(fixed, m)
			continue
		}
		free = append(free, m)
	}
	sort.SliceStable(free, func(i, j int) bool {
		pi, _ := fingerprint.PriorityOf(free[i])
		pj, _ := fingerprint.PriorityOf(free[j])
		return pi < pj
	})

	for _, m := range fixed {
		v, _, _ := fingerprint.HasFixedID(m)
		m.MarkResolved(idFor(ext, v), bus)
	}

	for _, m := range free {
		p, _ := fingerprint.PriorityOf(m)
		band := bands[int(p)]
		offset, ok := firstFree(reserved, band)
		if !ok {
			return &IDExhaustedError{Priority: p}
		}
		reserved[offset] = true
		value := (offset << suffixLen) | setcode
		m.MarkResolved(idFor(ext, value), bus)
	}
	return nil
}

// firstFree starts at the top of the band and searches downward for a free
// offset (spec.md §4.5 step 4).
func firstFree(reserved map[uint32]bool, band [2]uint32) (uint32, bool) {
	for o := band[1]; o > band[0]; o-- {
		if !reserved[o-1] {
			return o - 1, true
		}
	}
	return 0, false
}

func idFor(ext bool, value uint32) model.MessageID {
	if ext {
		return model.ExtendedID{ID: value}
	}
	return model.StandardID{ID: value}
}

func duplicatedFixedIDMsg(m *model.Message) error {
	return &DuplicatedFixedIDError{Name: m.Name}
}

// IDExhaustedError reports that a priority band ran out of free offsets.
type IDExhaustedError struct{ Priority model.Priority }

func (e *IDExhaustedError) Error() string { return "identifier band exhausted: " + e.Priority.String() }
