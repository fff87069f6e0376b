package model

// Message is one input message (spec.md §3/§6). Receivers/Transmitters are
// node names, not resolved references, so the engine never needs a
// back-pointer into the builder graph (spec.md §9).
type Message struct {
	Name         string
	IDTemplate   IdTemplate
	Receivers    []string
	Transmitters []string
	Payload      Payload
	Usage        Usage
	BusHint      *uint32 // optional fixed bus id

	// Filled in by the finaliser (spec.md §5: "the single field-write step").
	ResolvedID  MessageID
	ResolvedBus uint32
	resolved    bool
}

// MarkResolved records the finaliser's id/bus decision. Exactly once per message.
func (m *Message) MarkResolved(id MessageID, bus uint32) {
	m.ResolvedID = id
	m.ResolvedBus = bus
	m.resolved = true
}

// Resolved reports whether MarkResolved has been called.
func (m *Message) Resolved() bool { return m.resolved }

// MessageID is the concrete output identifier: either standard or extended.
type MessageID interface {
	isMessageID()
	Value() uint32
}

type StandardID struct{ ID uint32 }
type ExtendedID struct{ ID uint32 }

func (StandardID) isMessageID() {}
func (ExtendedID) isMessageID() {}
func (i StandardID) Value() uint32 { return i.ID }
func (i ExtendedID) Value() uint32 { return i.ID }

// ResolvedMessage is the per-message engine output (spec.md §6).
type ResolvedMessage struct {
	Name     string
	ID       MessageID
	Bus      Bus
	DLC      uint32
	Signals  []Signal
	Encoding Payload
}

// FilterEntry is a single (mask, value) acceptance filter (spec.md §3).
type FilterEntry struct {
	Mask  uint32
	Value uint32
}

// Matches reports whether an identifier is admitted by this filter.
func (f FilterEntry) Matches(id uint32) bool {
	return id&f.Mask == f.Value&f.Mask
}

// ResolvedNode is the per-node engine output (spec.md §6), with one filter
// bank per bus it receives on.
type ResolvedNode struct {
	Name          string
	TxMessages    []string
	RxMessages    []string
	FiltersPerBus map[uint32][]FilterEntry
}

// Network is the final resolved configuration (spec.md §6).
type Network struct {
	BuildTimestamp int64
	Buses          []Bus
	Types          TypeDict
	Messages       []ResolvedMessage
	Nodes          []ResolvedNode
}
