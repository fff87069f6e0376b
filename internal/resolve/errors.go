package resolve

import "fmt"

// Error is the engine's single error type (spec.md §7/§8): every failure
// carries the offending entity and a Kind a caller can switch on.
type Error struct {
	Kind   Kind
	Bus    string
	Node   string
	Name   string // message/type/set name, depending on Kind
	detail string
}

// Kind enumerates the taxonomy of spec.md §7.
type Kind int

const (
	KindInsufficientCapacity Kind = iota
	KindTooManyFilters
	KindSuffixExhausted
	KindIDExhausted
	KindUnresolvedType
	KindDuplicatedMessageName
	KindDuplicatedSignal
	KindDuplicatedFixedID
	KindBusConflict
	KindFrameTypeConflict
	KindInvariantBroken
)

func (k Kind) String() string {
	switch k {
	case KindInsufficientCapacity:
		return "InsufficientCapacity"
	case KindTooManyFilters:
		return "TooManyFilters"
	case KindSuffixExhausted:
		return "SuffixExhausted"
	case KindIDExhausted:
		return "IdExhausted"
	case KindUnresolvedType:
		return "UnresolvedType"
	case KindDuplicatedMessageName:
		return "DuplicatedMessageName"
	case KindDuplicatedSignal:
		return "DuplicatedSignal"
	case KindDuplicatedFixedID:
		return "DuplicatedFixedId"
	case KindBusConflict:
		return "BusConflict"
	case KindFrameTypeConflict:
		return "FrameTypeConflict"
	case KindInvariantBroken:
		return "InvariantBroken"
	default:
		return "Unknown"
	}
}

func (e *Error) Error() string {
	s := e.Kind.String()
	if e.Bus != "" {
		s += fmt.Sprintf(" bus=%s", e.Bus)
	}
	if e.Node != "" {
		s += fmt.Sprintf(" node=%s", e.Node)
	}
	if e.Name != "" {
		s += fmt.Sprintf(" name=%s", e.Name)
	}
	if e.detail != "" {
		s += ": " + e.detail
	}
	return s
}

func errInsufficientCapacity(bus, detail string) error {
	return &Error{Kind: KindInsufficientCapacity, Bus: bus, detail: detail}
}

func errTooManyFilters(node, bus string, n int) error {
	return &Error{Kind: KindTooManyFilters, Node: node, Bus: bus, detail: fmt.Sprintf("%d filters required", n)}
}

func errSuffixExhausted(frameType string) error {
	return &Error{Kind: KindSuffixExhausted, detail: "frame_type=" + frameType}
}

func errIDExhausted(setName string, prio string) error {
	return &Error{Kind: KindIDExhausted, Name: setName, detail: "priority=" + prio}
}

func errUnresolvedType(name string) error {
	return &Error{Kind: KindUnresolvedType, Name: name}
}

func errDuplicatedMessageName(name string) error {
	return &Error{Kind: KindDuplicatedMessageName, Name: name}
}

func errDuplicatedFixedID(name, detail string) error {
	return &Error{Kind: KindDuplicatedFixedID, Name: name, detail: detail}
}

func errBusConflict(name string) error {
	return &Error{Kind: KindBusConflict, Name: name}
}

func errFrameTypeConflict(name string) error {
	return &Error{Kind: KindFrameTypeConflict, Name: name}
}

func errInvariantBroken(detail string) error {
	return &Error{Kind: KindInvariantBroken, detail: detail}
}
