// Package watch streams resolution progress and outcomes to connected
// clients, adapting the gateway's hub/server fan-out (internal/hub,
// internal/server) from CAN frames to resolve.Stage transitions.
package watch

import "github.com/ampio/canresolve/internal/resolve"

// Event is one message pushed to every watch client: a stage transition,
// or (on StageDone/StageFailed) the final outcome summary.
type Event struct {
	Stage     string `json:"stage"`
	Detail    string `json:"detail,omitempty"`
	Sequence  uint64 `json:"seq"`
	Messages  int    `json:"messages,omitempty"`
	Buses     int    `json:"buses,omitempty"`
	Error     string `json:"error,omitempty"`
}

// FromStage builds an Event from a resolve.Progress callback invocation.
func FromStage(seq uint64, stage resolve.Stage, detail string) Event {
	e := Event{Stage: stage.String(), Detail: detail, Sequence: seq}
	if stage == resolve.StageFailed {
		e.Error = detail
	}
	return e
}
