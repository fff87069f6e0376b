package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/ampio/canresolve/internal/metrics"
	"github.com/ampio/canresolve/internal/model"
	"github.com/ampio/canresolve/internal/resolve/load"
)

// printReport writes a human-readable summary of a resolved network to w.
func printReport(w io.Writer, net *model.Network) {
	fmt.Fprintf(w, "resolved %d message(s) across %d bus(es), %d node(s)\n", len(net.Messages), len(net.Buses), len(net.Nodes))
	for _, b := range net.Buses {
		fmt.Fprintf(w, "  bus %-16s %d bit/s\n", b.Name, b.Baudrate)
	}
	for _, m := range net.Messages {
		ext, val := idParts(m.ID)
		kind := "std"
		if ext {
			kind = "ext"
		}
		fmt.Fprintf(w, "  %-24s %s 0x%X  bus=%s dlc=%d\n", m.Name, kind, val, m.Bus.Name, m.DLC)
	}
	for _, n := range net.Nodes {
		total := 0
		for _, f := range n.FiltersPerBus {
			total += len(f)
		}
		fmt.Fprintf(w, "  node %-16s tx=%d rx=%d filters=%d\n", n.Name, len(n.TxMessages), len(n.RxMessages), total)
	}
}

func idParts(id model.MessageID) (ext bool, value uint32) {
	switch v := id.(type) {
	case model.ExtendedID:
		return true, v.Value()
	default:
		return false, id.Value()
	}
}

// reportBusLoad estimates each bus's load ratio from input, whose messages
// carry the ResolvedBus a successful Resolve wrote in place, and records it
// to Prometheus.
func reportBusLoad(input model.Input, net *model.Network) {
	loadByBus := make(map[uint32]float64, len(net.Buses))
	for _, m := range input.Messages {
		l, err := load.Of(m, input.Types)
		if err != nil {
			continue
		}
		loadByBus[m.ResolvedBus] += l
	}
	busByID := make(map[uint32]model.Bus, len(net.Buses))
	for _, b := range net.Buses {
		busByID[b.ID] = b
	}
	ids := make([]uint32, 0, len(loadByBus))
	for id := range loadByBus {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		b := busByID[id]
		ratio := 0.0
		if b.Baudrate > 0 {
			ratio = loadByBus[id] / float64(b.Baudrate)
		}
		metrics.ResolveBusLoadRatio.WithLabelValues(b.Name).Set(ratio)
	}
}
