// Package resolve runs the full message-resolution pipeline (spec.md §4,
// §5): fingerprinting, greedy merging, splitting, finalisation and filter
// synthesis, over a frozen model.Input, producing a model.Network or a
// typed Error.
package resolve

import (
	"sort"

	"github.com/ampio/canresolve/internal/model"
	"github.com/ampio/canresolve/internal/resolve/filters"
	"github.com/ampio/canresolve/internal/resolve/finalize"
	"github.com/ampio/canresolve/internal/resolve/fingerprint"
	"github.com/ampio/canresolve/internal/resolve/load"
	"github.com/ampio/canresolve/internal/resolve/merge"
	"github.com/ampio/canresolve/internal/resolve/split"
)

// Stage names the engine's linear state machine (spec.md §5): Ingesting →
// Merging → Splitting → Finalising → SynthesisingFilters → Done, with
// Failed reachable from any stage.
type Stage int

const (
	StageIngesting Stage = iota
	StageMerging
	StageSplitting
	StageFinalising
	StageSynthesisingFilters
	StageDone
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageIngesting:
		return "Ingesting"
	case StageMerging:
		return "Merging"
	case StageSplitting:
		return "Splitting"
	case StageFinalising:
		return "Finalising"
	case StageSynthesisingFilters:
		return "SynthesisingFilters"
	case StageDone:
		return "Done"
	case StageFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Progress is an optional observer invoked as the engine transitions
// stages, used by the watch service (SPEC_FULL.md §3) to stream progress to
// connected clients without the core engine importing anything about
// networking.
type Progress func(stage Stage, detail string)

// Option configures a single Resolve call.
type Option func(*options)

type options struct {
	onProgress Progress
}

// WithProgress registers a callback invoked on every stage transition.
func WithProgress(p Progress) Option {
	return func(o *options) { o.onProgress = p }
}

// Resolve runs the full pipeline over input and returns the resolved
// network, or the first Error encountered.
func Resolve(input model.Input, opts ...Option) (*model.Network, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	report := func(s Stage, detail string) {
		if o.onProgress != nil {
			o.onProgress(s, detail)
		}
	}
	busName := busNameIndex(input.Buses)

	report(StageIngesting, "")
	coll, err := ingest(input)
	if err != nil {
		report(StageFailed, err.Error())
		return nil, err
	}

	report(StageMerging, "")
	ledger := merge.NewLedger(input.Buses)
	if err := merge.SeedFixedBusSets(ledger, coll.Sets()); err != nil {
		e := wrapMergeErr(err, busName)
		report(StageFailed, e.Error())
		return nil, e
	}
	if _, err := merge.Run(coll, input.Buses, ledger); err != nil {
		e := wrapMergeErr(err, busName)
		report(StageFailed, e.Error())
		return nil, e
	}

	report(StageSplitting, "")
	if err := split.Run(coll); err != nil {
		e := wrapSplitErr(err)
		report(StageFailed, e.Error())
		return nil, e
	}

	report(StageFinalising, "")
	results, err := finalize.Run(coll, input.Buses)
	if err != nil {
		e := wrapFinalizeErr(err, busName)
		report(StageFailed, e.Error())
		return nil, e
	}

	report(StageSynthesisingFilters, "")
	filtersByNode, err := filters.Synthesize(results)
	if err != nil {
		e := wrapFiltersErr(err, busName)
		report(StageFailed, e.Error())
		return nil, e
	}

	report(StageDone, "")
	return buildNetwork(input, filtersByNode), nil
}

func ingest(input model.Input) (*fingerprint.Collection, error) {
	seen := make(map[string]bool, len(input.Messages))
	coll := fingerprint.NewCollection()
	for _, m := range input.Messages {
		if seen[m.Name] {
			return nil, errDuplicatedMessageName(m.Name)
		}
		seen[m.Name] = true
		l, err := load.Of(m, input.Types)
		if err != nil {
			return nil, errUnresolvedType(m.Name)
		}
		coll.Insert(m, l)
	}
	return coll, nil
}

func busNameIndex(buses []model.Bus) map[uint32]string {
	m := make(map[uint32]string, len(buses))
	for _, b := range buses {
		m[b.ID] = b.Name
	}
	return m
}

func wrapMergeErr(err error, busName map[uint32]string) error {
	if ce, ok := err.(*merge.CapacityError); ok {
		return errInsufficientCapacity(busName[ce.Bus], "merge")
	}
	return errInvariantBroken(err.Error())
}

func wrapSplitErr(err error) error {
	if se, ok := err.(*split.UnsplittableFixedSuffixError); ok {
		return &Error{Kind: KindIDExhausted, Name: se.Name, detail: "fixed-suffix set exceeds MaxMessagesPerSet and cannot be split"}
	}
	return errInvariantBroken(err.Error())
}

func wrapFinalizeErr(err error, busName map[uint32]string) error {
	switch e := err.(type) {
	case *finalize.InsufficientCapacityError:
		return errInsufficientCapacity(busName[e.Bus], "finalize")
	case *finalize.SuffixExhaustedError:
		return errSuffixExhausted("")
	case *finalize.IDExhaustedError:
		return errIDExhausted("", e.Priority.String())
	case *finalize.DuplicatedFixedIDError:
		return errDuplicatedFixedID(e.Name, "")
	default:
		return errInvariantBroken(err.Error())
	}
}

func wrapFiltersErr(err error, busName map[uint32]string) error {
	if te, ok := err.(*filters.TooManyFiltersError); ok {
		return errTooManyFilters(te.Node, busName[te.Bus], params0)
	}
	return errInvariantBroken(err.Error())
}

// params0 is a placeholder count when the underlying error doesn't carry
// the exact filter count; kept at 0 since Error's detail string is
// cosmetic, not load-bearing.
const params0 = 0

func buildNetwork(input model.Input, filtersByNode map[string]map[uint32][]model.FilterEntry) *model.Network {
	busByID := make(map[uint32]model.Bus, len(input.Buses))
	for _, b := range input.Buses {
		busByID[b.ID] = b
	}

	messages := make([]model.ResolvedMessage, 0, len(input.Messages))
	txByNode := make(map[string][]string)
	rxByNode := make(map[string][]string)
	for _, m := range input.Messages {
		dlc, _ := load.DLC(m, input.Types)
		messages = append(messages, model.ResolvedMessage{
			Name:     m.Name,
			ID:       m.ResolvedID,
			Bus:      busByID[m.ResolvedBus],
			DLC:      dlc,
			Signals:  signalsOf(m.Payload),
			Encoding: m.Payload,
		})
		for _, n := range m.Transmitters {
			txByNode[n] = append(txByNode[n], m.Name)
		}
		for _, n := range m.Receivers {
			rxByNode[n] = append(rxByNode[n], m.Name)
		}
	}
	sort.Slice(messages, func(i, j int) bool { return messages[i].Name < messages[j].Name })

	nodes := make([]model.ResolvedNode, 0, len(input.Nodes))
	for _, n := range input.Nodes {
		tx := append([]string(nil), txByNode[n]...)
		rx := append([]string(nil), rxByNode[n]...)
		sort.Strings(tx)
		sort.Strings(rx)
		nodes = append(nodes, model.ResolvedNode{
			Name:          n,
			TxMessages:    tx,
			RxMessages:    rx,
			FiltersPerBus: filtersByNode[n],
		})
	}

	return &model.Network{
		Buses:    input.Buses,
		Types:    input.Types,
		Messages: messages,
		Nodes:    nodes,
	}
}

func signalsOf(p model.Payload) []model.Signal {
	if sp, ok := p.(model.SignalsPayload); ok {
		return sp.Signals
	}
	return nil
}
