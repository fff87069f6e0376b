// Package fingerprint reduces messages to a SetKey and groups identically
// keyed messages into MessageSets (spec.md §4.1).
package fingerprint

import (
	"sort"
	"strings"

	"github.com/ampio/canresolve/internal/model"
	"github.com/ampio/canresolve/internal/resolve/params"
)

// TypeAssignment is the frame-type component of a SetKey: fixed std, fixed
// ext, or still "any".
type TypeAssignment int

const (
	TypeAny TypeAssignment = iota
	TypeStd
	TypeExt
)

// BusAssignment is the bus component of a SetKey: a fixed bus id, or "any".
type BusAssignment struct {
	Any bool
	Bus uint32
}

// SuffixAssignment is the identifier-suffix component of a SetKey: a fixed
// value (already masked to the active suffix width), or "none".
type SuffixAssignment struct {
	Fixed bool
	Value uint32
}

// SetKey is the hashable tuple capturing bus assignment, frame type,
// suffix constraint and sorted receiver set (spec.md §3). It is a plain
// comparable struct so it can be used directly as a Go map key; the
// receiver set is pre-sorted and joined so that equality does not depend
// on original declaration order (spec.md §9, "Hashing sorted collections").
type SetKey struct {
	Bus       BusAssignment
	Type      TypeAssignment
	Suffix    SuffixAssignment
	Receivers string
	// Shard disambiguates multiple sets that share an identical fingerprint
	// after the splitter divides an oversized set into several groups that
	// would otherwise collide on the same key (spec.md §4.4). It is always
	// zero before splitting runs.
	Shard int
}

// NewReceiverKey canonicalizes a receiver list into the sorted, joined form
// used inside a SetKey.
func NewReceiverKey(receivers []string) string {
	sorted := append([]string(nil), receivers...)
	sort.Strings(sorted)
	return strings.Join(sorted, "\x00")
}

// KeyOf derives the SetKey for a message from its id template and bus hint
// (spec.md §4.1). A message with a fixed identifier carries a fixed suffix
// extracted from the low SuffixLen bits of its literal id (spec.md §6's
// wire layout: setcode occupies the low-order bits); an "any" template
// carries no suffix constraint until the merger or finaliser assigns one.
func KeyOf(m *model.Message) SetKey {
	k := SetKey{Receivers: NewReceiverKey(m.Receivers)}
	switch t := m.IDTemplate.(type) {
	case model.StdID:
		k.Type = TypeStd
		k.Suffix = SuffixAssignment{Fixed: true, Value: t.Value & params.SuffixMask(false)}
	case model.ExtID:
		k.Type = TypeExt
		k.Suffix = SuffixAssignment{Fixed: true, Value: t.Value & params.SuffixMask(true)}
	case model.AnyStd:
		k.Type = TypeStd
	case model.AnyExt:
		k.Type = TypeExt
	case model.AnyAny:
		k.Type = TypeAny
	}
	if m.BusHint != nil {
		k.Bus = BusAssignment{Bus: *m.BusHint}
	} else {
		k.Bus = BusAssignment{Any: true}
	}
	return k
}

// HasFixedID reports whether m declares an exact identifier.
func HasFixedID(m *model.Message) (value uint32, ext bool, ok bool) {
	switch t := m.IDTemplate.(type) {
	case model.StdID:
		return t.Value, false, true
	case model.ExtID:
		return t.Value, true, true
	default:
		return 0, false, false
	}
}

// PriorityOf returns the declared priority of an "any" template; fixed-id
// messages have no declared priority band (they reserve a literal slot).
func PriorityOf(m *model.Message) (model.Priority, bool) {
	switch t := m.IDTemplate.(type) {
	case model.AnyStd:
		return t.Priority, true
	case model.AnyExt:
		return t.Priority, true
	case model.AnyAny:
		return t.Priority, true
	default:
		return 0, false
	}
}
