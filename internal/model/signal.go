package model

// Signal is one packed field of a Signals-encoded message payload.
type Signal struct {
	Name       string
	WidthBits  uint32
	ByteOffset uint32
}

// Payload is the tagged union of how a message's bytes are described
// (spec.md §6): an explicit signal layout, a list of named type-encoded
// fields, or no payload at all.
type Payload interface {
	isPayload()
}

// SignalsPayload describes the payload as a flat list of bit-packed signals.
type SignalsPayload struct {
	Signals []Signal
}

// TypedField is one (type, label) pair of a Types-encoded payload.
type TypedField struct {
	Type  TypeRef
	Label string
}

// TypesPayload describes the payload as an ordered list of type-encoded fields.
type TypesPayload struct {
	Fields []TypedField
}

// EmptyPayload is a zero-length payload.
type EmptyPayload struct{}

func (SignalsPayload) isPayload() {}
func (TypesPayload) isPayload()   {}
func (EmptyPayload) isPayload()   {}
