package model

// Input is the frozen description the engine consumes (spec.md §6): a list
// of buses with dense integer ids, a type dictionary used only for DLC
// computation, and a list of messages referring to node names.
type Input struct {
	Buses    []Bus
	Types    TypeDict
	Messages []*Message
	Nodes    []string
}
