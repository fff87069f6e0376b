package resolve

import (
	"fmt"
	"testing"

	"github.com/ampio/canresolve/internal/builder"
	"github.com/ampio/canresolve/internal/model"
	"github.com/ampio/canresolve/internal/resolve/load"
)

func simpleInput(t *testing.T) (model.Input, builder.NodeHandle, builder.NodeHandle) {
	t.Helper()
	b := builder.New()
	bus := b.AddBus("main", 500000)
	ecu := b.AddNode("ecu")
	dash := b.AddNode("dash")
	_, err := b.AddMessage(builder.MessageSpec{
		Name:         "speed",
		IDTemplate:   model.AnyStd{Priority: model.Realtime},
		Receivers:    []builder.NodeHandle{dash},
		Transmitters: []builder.NodeHandle{ecu},
		Payload:      model.SignalsPayload{Signals: []model.Signal{{Name: "kph", WidthBits: 16}}},
		Usage:        model.Stream{},
		BusHint:      &bus,
	})
	if err != nil {
		t.Fatalf("AddMessage: %v", err)
	}
	return b.Freeze(), ecu, dash
}

func TestResolve_SingleMessage_AssignsStandardID(t *testing.T) {
	input, _, _ := simpleInput(t)
	net, err := Resolve(input)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(net.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(net.Messages))
	}
	msg := net.Messages[0]
	if msg.Name != "speed" {
		t.Fatalf("expected speed, got %s", msg.Name)
	}
	if _, ok := msg.ID.(model.StandardID); !ok {
		t.Fatalf("expected StandardID, got %T", msg.ID)
	}
	if msg.DLC != 2 {
		t.Fatalf("expected DLC 2, got %d", msg.DLC)
	}
}

func TestResolve_FixedIdentifierIsPreserved(t *testing.T) {
	b := builder.New()
	bus := b.AddBus("main", 500000)
	ecu := b.AddNode("ecu")
	dash := b.AddNode("dash")
	_, err := b.AddMessage(builder.MessageSpec{
		Name:         "diag",
		IDTemplate:   model.StdID{Value: 0x123},
		Receivers:    []builder.NodeHandle{dash},
		Transmitters: []builder.NodeHandle{ecu},
		Usage:        model.Heartbeat{},
		BusHint:      &bus,
	})
	if err != nil {
		t.Fatalf("AddMessage: %v", err)
	}
	net, err := Resolve(b.Freeze())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	id, ok := net.Messages[0].ID.(model.StandardID)
	if !ok {
		t.Fatalf("expected StandardID, got %T", net.Messages[0].ID)
	}
	if id.ID != 0x123 {
		t.Fatalf("expected fixed id 0x123 to be preserved, got 0x%X", id.ID)
	}
}

func TestResolve_DuplicatedFixedID_Fails(t *testing.T) {
	b := builder.New()
	bus := b.AddBus("main", 500000)
	ecu := b.AddNode("ecu")
	dash := b.AddNode("dash")
	spec := builder.MessageSpec{
		IDTemplate:   model.StdID{Value: 0x100},
		Receivers:    []builder.NodeHandle{dash},
		Transmitters: []builder.NodeHandle{ecu},
		Usage:        model.Heartbeat{},
		BusHint:      &bus,
	}
	spec.Name = "a"
	if _, err := b.AddMessage(spec); err != nil {
		t.Fatalf("AddMessage a: %v", err)
	}
	spec.Name = "b"
	spec.IDTemplate = model.StdID{Value: 0x100}
	if _, err := b.AddMessage(spec); err != nil {
		t.Fatalf("AddMessage b: %v", err)
	}
	_, err := Resolve(b.Freeze())
	if err == nil {
		t.Fatal("expected an error for duplicated fixed ids")
	}
	re, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *Error, got %T", err)
	}
	if re.Kind != KindDuplicatedFixedID {
		t.Fatalf("expected KindDuplicatedFixedID, got %s", re.Kind)
	}
}

func TestResolve_TooLittleBusCapacity_Fails(t *testing.T) {
	b := builder.New()
	bus := b.AddBus("slow", 1) // 1 bit/s, nothing fits
	ecu := b.AddNode("ecu")
	dash := b.AddNode("dash")
	_, err := b.AddMessage(builder.MessageSpec{
		Name:         "big",
		IDTemplate:   model.AnyStd{Priority: model.Realtime},
		Receivers:    []builder.NodeHandle{dash},
		Transmitters: []builder.NodeHandle{ecu},
		Payload:      model.SignalsPayload{Signals: []model.Signal{{Name: "payload", WidthBits: 64}}},
		Usage:        model.Stream{Interval: 1000000}, // 1ms
		BusHint:      &bus,
	})
	if err != nil {
		t.Fatalf("AddMessage: %v", err)
	}
	_, err = Resolve(b.Freeze())
	if err == nil {
		t.Fatal("expected InsufficientCapacity error")
	}
	re, ok := err.(*Error)
	if !ok || re.Kind != KindInsufficientCapacity {
		t.Fatalf("expected KindInsufficientCapacity, got %v", err)
	}
}

func TestResolve_ManyAnyMessagesSamePriority_SpreadAcrossIdentifiers(t *testing.T) {
	b := builder.New()
	bus := b.AddBus("main", 1000000)
	ecu := b.AddNode("ecu")
	dash := b.AddNode("dash")
	const n = 25 // one standard set's Normal band holds 128/5 = 25 offsets
	for i := 0; i < n; i++ {
		name := string(rune('a'+i%26)) + string(rune('0'+i/26))
		_, err := b.AddMessage(builder.MessageSpec{
			Name:         name,
			IDTemplate:   model.AnyStd{Priority: model.Normal},
			Receivers:    []builder.NodeHandle{dash},
			Transmitters: []builder.NodeHandle{ecu},
			Usage:        model.Heartbeat{},
			BusHint:      &bus,
		})
		if err != nil {
			t.Fatalf("AddMessage %s: %v", name, err)
		}
	}
	net, err := Resolve(b.Freeze())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	seen := make(map[uint32]bool)
	for _, m := range net.Messages {
		id := m.ID.Value()
		if seen[id] {
			t.Fatalf("duplicate identifier 0x%X assigned", id)
		}
		seen[id] = true
	}
	if len(seen) != n {
		t.Fatalf("expected %d distinct identifiers, got %d", n, len(seen))
	}
}

func TestResolve_NodeFilters_RespectMaxFiltersPerNode(t *testing.T) {
	b := builder.New()
	bus := b.AddBus("main", 1000000)
	ecu := b.AddNode("ecu")
	dash := b.AddNode("dash")
	// Five distinct receiver-set fingerprints sharing the same receiver,
	// forced apart by distinct fixed bus hints isn't an option (one bus),
	// so vary frame type/fixed-id to produce more than MaxFiltersPerNode
	// distinct setcodes for the same node on the same bus.
	fixedIDs := []uint32{0x011, 0x022, 0x033, 0x044, 0x055}
	for i, id := range fixedIDs {
		name := string(rune('m' + i))
		_, err := b.AddMessage(builder.MessageSpec{
			Name:         name,
			IDTemplate:   model.StdID{Value: id},
			Receivers:    []builder.NodeHandle{dash},
			Transmitters: []builder.NodeHandle{ecu},
			Usage:        model.Heartbeat{},
			BusHint:      &bus,
		})
		if err != nil {
			t.Fatalf("AddMessage %s: %v", name, err)
		}
	}
	_, err := Resolve(b.Freeze())
	if err == nil {
		t.Fatal("expected TooManyFilters error")
	}
	re, ok := err.(*Error)
	if !ok || re.Kind != KindTooManyFilters {
		t.Fatalf("expected KindTooManyFilters, got %v", err)
	}
}

func TestResolve_UnresolvedType_Fails(t *testing.T) {
	b := builder.New()
	bus := b.AddBus("main", 500000)
	ecu := b.AddNode("ecu")
	dash := b.AddNode("dash")
	_, err := b.AddMessage(builder.MessageSpec{
		Name:         "typed",
		IDTemplate:   model.AnyStd{Priority: model.Low},
		Receivers:    []builder.NodeHandle{dash},
		Transmitters: []builder.NodeHandle{ecu},
		Payload:      model.TypesPayload{Fields: []model.TypedField{{Type: model.TypeRef{Name: "missing"}, Label: "x"}}},
		Usage:        model.Heartbeat{},
		BusHint:      &bus,
	})
	if err != nil {
		t.Fatalf("AddMessage: %v", err)
	}
	_, err = Resolve(b.Freeze())
	re, ok := err.(*Error)
	if !ok || re.Kind != KindUnresolvedType {
		t.Fatalf("expected KindUnresolvedType, got %v", err)
	}
}

// TestResolve_TwoBuses_LoadSpreadBoundedByLargestMessage is spec.md §8
// concrete scenario 3: two buses at 1 Mbps, many messages with no bus_hint;
// resolved per-bus loads must differ by at most the single largest
// message's own contribution. Each message gets its own receiver/
// transmitter pair so every message is its own MessageSet (no two share a
// SetKey to merge on) and the finaliser's bin-pack runs at message
// granularity, matching the scenario. The message count is kept within the
// engine's global setcode budget (16 std + 256 ext receiver-set codes,
// spec.md §4.5/§4.6): scenario 3's illustrative "400" assumes sharing among
// receiver sets in a real network, but this test wants every message
// individually addressable, so it uses as many as the budget allows instead.
func TestResolve_TwoBuses_LoadSpreadBoundedByLargestMessage(t *testing.T) {
	b := builder.New()
	b.AddBus("can1", 1000000)
	b.AddBus("can2", 1000000)

	const n = 200
	msgLoad := make(map[string]float64, n)
	var maxLoad float64
	for i := 0; i < n; i++ {
		rx := b.AddNode(fmt.Sprintf("rx%d", i))
		tx := b.AddNode(fmt.Sprintf("tx%d", i))
		widthBits := uint32(8 + (i%8)*8) // vary DLC 1..8 bytes across messages
		_, err := b.AddMessage(builder.MessageSpec{
			Name:         fmt.Sprintf("m%d", i),
			IDTemplate:   model.AnyAny{Priority: model.Normal},
			Receivers:    []builder.NodeHandle{rx},
			Transmitters: []builder.NodeHandle{tx},
			Payload:      model.SignalsPayload{Signals: []model.Signal{{Name: "x", WidthBits: widthBits}}},
			Usage:        model.Stream{Interval: 100000000}, // 100ms
		})
		if err != nil {
			t.Fatalf("AddMessage %d: %v", i, err)
		}
	}
	input := b.Freeze()
	for _, m := range input.Messages {
		l, err := load.Of(m, input.Types)
		if err != nil {
			t.Fatalf("load.Of: %v", err)
		}
		msgLoad[m.Name] = l
		if l > maxLoad {
			maxLoad = l
		}
	}

	net, err := Resolve(input)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(net.Messages) != n {
		t.Fatalf("expected %d resolved messages, got %d", n, len(net.Messages))
	}
	loadByBus := make(map[uint32]float64)
	for _, m := range input.Messages {
		loadByBus[m.ResolvedBus] += msgLoad[m.Name]
	}
	if len(loadByBus) < 2 {
		t.Fatalf("expected messages spread across both buses, got %d bus(es) used", len(loadByBus))
	}
	var minLoad, maxBusLoad float64
	first := true
	for _, l := range loadByBus {
		if first || l < minLoad {
			minLoad = l
		}
		if first || l > maxBusLoad {
			maxBusLoad = l
		}
		first = false
	}
	if spread := maxBusLoad - minLoad; spread > maxLoad+1e-6 {
		t.Fatalf("bus load spread %.2f bit/s exceeds largest single message's contribution %.2f bit/s", spread, maxLoad)
	}
}

func TestResolve_ProgressCallback_ReachesDone(t *testing.T) {
	input, _, _ := simpleInput(t)
	var stages []Stage
	_, err := Resolve(input, WithProgress(func(s Stage, _ string) { stages = append(stages, s) }))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(stages) == 0 || stages[len(stages)-1] != StageDone {
		t.Fatalf("expected final stage Done, got %v", stages)
	}
}
