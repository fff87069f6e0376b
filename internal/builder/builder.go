// Package builder accumulates a network description incrementally and
// freezes it into the immutable model.Input the resolution engine consumes.
//
// This mirrors the separation spec.md §9 calls for: the source's builder
// graph is a mesh of reference-counted, interior-mutable records with
// back-references: nodes ↔ messages. Here the builder instead keeps
// append-only slices indexed by handle (an integer position), with every
// relation expressed as a forward table of names, so Freeze never needs to
// walk back-references.
package builder

import (
	"fmt"

	"github.com/ampio/canresolve/internal/model"
)

// BusHandle and NodeHandle are opaque indices into the builder's arenas,
// returned by AddBus and AddNode and accepted back by AddMessage.
type BusHandle int
type NodeHandle int

// NetworkBuilder accumulates buses, nodes, types and messages before they
// are frozen into a model.Input.
type NetworkBuilder struct {
	buses       []busEntry
	nodes       []string
	nodeIndex   map[string]NodeHandle
	types       model.TypeDict
	messages    []*model.Message
	messageName map[string]struct{}
}

type busEntry struct {
	name     string
	baudrate uint64
}

// New creates an empty NetworkBuilder.
func New() *NetworkBuilder {
	return &NetworkBuilder{
		nodeIndex:   make(map[string]NodeHandle),
		types:       make(model.TypeDict),
		messageName: make(map[string]struct{}),
	}
}

// AddBus registers a bus and returns its dense handle (== its eventual
// model.Bus.ID, since handles are assigned in insertion order starting at 0).
func (b *NetworkBuilder) AddBus(name string, baudrate uint64) BusHandle {
	b.buses = append(b.buses, busEntry{name: name, baudrate: baudrate})
	return BusHandle(len(b.buses) - 1)
}

// AddNode registers a node by name, returning its handle. Re-registering the
// same name returns the existing handle.
func (b *NetworkBuilder) AddNode(name string) NodeHandle {
	if h, ok := b.nodeIndex[name]; ok {
		return h
	}
	h := NodeHandle(len(b.nodes))
	b.nodes = append(b.nodes, name)
	b.nodeIndex[name] = h
	return h
}

// AddType registers a named type definition for later DLC resolution.
func (b *NetworkBuilder) AddType(name string, t model.Type) {
	b.types[name] = t
}

// MessageSpec is the input to AddMessage: everything needed to construct a
// model.Message, with receivers/transmitters given as node handles so the
// builder can validate they were registered.
type MessageSpec struct {
	Name         string
	IDTemplate   model.IdTemplate
	Receivers    []NodeHandle
	Transmitters []NodeHandle
	Payload      model.Payload
	Usage        model.Usage
	BusHint      *BusHandle
}

// AddMessage registers a message, erroring if its name was already used
// (spec.md §7: DuplicatedMessageName) or if it references an unknown node
// or bus handle.
func (b *NetworkBuilder) AddMessage(spec MessageSpec) (*model.Message, error) {
	if _, dup := b.messageName[spec.Name]; dup {
		return nil, fmt.Errorf("duplicated message name: %s", spec.Name)
	}
	receivers, err := b.resolveNodes(spec.Receivers)
	if err != nil {
		return nil, fmt.Errorf("message %s: %w", spec.Name, err)
	}
	transmitters, err := b.resolveNodes(spec.Transmitters)
	if err != nil {
		return nil, fmt.Errorf("message %s: %w", spec.Name, err)
	}
	var busHint *uint32
	if spec.BusHint != nil {
		if int(*spec.BusHint) < 0 || int(*spec.BusHint) >= len(b.buses) {
			return nil, fmt.Errorf("message %s: unknown bus handle %d", spec.Name, *spec.BusHint)
		}
		v := uint32(*spec.BusHint)
		busHint = &v
	}
	if spec.Payload == nil {
		spec.Payload = model.EmptyPayload{}
	}
	msg := &model.Message{
		Name:         spec.Name,
		IDTemplate:   spec.IDTemplate,
		Receivers:    receivers,
		Transmitters: transmitters,
		Payload:      spec.Payload,
		Usage:        spec.Usage,
		BusHint:      busHint,
	}
	b.messages = append(b.messages, msg)
	b.messageName[spec.Name] = struct{}{}
	return msg, nil
}

func (b *NetworkBuilder) resolveNodes(handles []NodeHandle) ([]string, error) {
	names := make([]string, 0, len(handles))
	for _, h := range handles {
		if int(h) < 0 || int(h) >= len(b.nodes) {
			return nil, fmt.Errorf("unknown node handle %d", h)
		}
		names = append(names, b.nodes[h])
	}
	return names, nil
}

// Freeze produces the immutable model.Input for the resolution engine. It
// assigns dense bus ids in insertion order, matching the spec.md §3
// invariant that bus ids are a permutation of 0..B.
func (b *NetworkBuilder) Freeze() model.Input {
	buses := make([]model.Bus, len(b.buses))
	for i, be := range b.buses {
		buses[i] = model.Bus{ID: uint32(i), Name: be.name, Baudrate: be.baudrate}
	}
	return model.Input{
		Buses:    buses,
		Types:    b.types,
		Messages: b.messages,
		Nodes:    append([]string(nil), b.nodes...),
	}
}
