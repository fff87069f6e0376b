package model

// Bus is one physical CAN segment. Ids must form a dense permutation of
// 0..len(buses) (spec.md §3); the builder is responsible for that invariant,
// the engine only ever indexes by it.
type Bus struct {
	ID        uint32
	Name      string
	Baudrate  uint64 // bits/s
}

// Node is a participant able to transmit and/or receive messages.
type Node struct {
	Name string
}
