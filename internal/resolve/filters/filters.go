// Package filters synthesizes per-node acceptance filters from finalized
// message sets (spec.md §4.6). The source Rust implementation's equivalent
// pass was a stub that always returned an empty list (see original_source);
// this package provides the real computation.
package filters

import (
	"sort"

	"github.com/ampio/canresolve/internal/model"
	"github.com/ampio/canresolve/internal/resolve/finalize"
	"github.com/ampio/canresolve/internal/resolve/params"
)

// TooManyFiltersError reports a node whose receive sets on one bus would
// require more hardware filter slots than params.MaxFiltersPerNode allows.
type TooManyFiltersError struct {
	Node string
	Bus  uint32
}

func (e *TooManyFiltersError) Error() string {
	return "too many filters required for node " + e.Node
}

// key identifies one (bus, node) pair under construction.
type key struct {
	bus  uint32
	node string
}

// Synthesize derives one acceptance filter per receiver set a node
// participates in, grouped by bus, and rejects any node/bus pair that would
// need more than params.MaxFiltersPerNode filters.
func Synthesize(results []finalize.Result) (map[string]map[uint32][]model.FilterEntry, error) {
	perNodeBus := make(map[key][]model.FilterEntry)
	seen := make(map[key]map[model.FilterEntry]bool)

	for _, r := range results {
		mask := params.SuffixMask(r.Ext)
		entry := model.FilterEntry{Mask: mask, Value: r.Setcode & mask}
		receivers := receiversOf(r.Set.Messages)
		for _, node := range receivers {
			k := key{bus: r.Bus, node: node}
			if seen[k] == nil {
				seen[k] = make(map[model.FilterEntry]bool)
			}
			if seen[k][entry] {
				continue
			}
			seen[k][entry] = true
			perNodeBus[k] = append(perNodeBus[k], entry)
		}
	}

	out := make(map[string]map[uint32][]model.FilterEntry)
	for k, entries := range perNodeBus {
		if len(entries) > params.MaxFiltersPerNode {
			return nil, &TooManyFiltersError{Node: k.node, Bus: k.bus}
		}
		if out[k.node] == nil {
			out[k.node] = make(map[uint32][]model.FilterEntry)
		}
		out[k.node][k.bus] = entries
	}
	return out, nil
}

// receiversOf returns the distinct receiver node names across a set's
// messages, since a split set may mix several originally-identical receiver
// lists (they share a SetKey by construction, so this is normally just one
// message's Receivers, but we fold across all of them defensively).
func receiversOf(msgs []*model.Message) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range msgs {
		for _, r := range m.Receivers {
			if !seen[r] {
				seen[r] = true
				out = append(out, r)
			}
		}
	}
	sort.Strings(out)
	return out
}
