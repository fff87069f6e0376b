// Package drift compares the identifiers actually seen on a live CAN bus
// against a resolve.Resolve outcome, flagging traffic the resolved network
// neither predicted (unexpected) nor later confirming it actually appeared
// (missing). It adapts the gateway's socketcan/serial frame sources
// (internal/socketcan, internal/serial) from "relay frames to TCP clients"
// to "compare frames against a known-good set of identifiers".
package drift

import (
	"context"
	"time"

	"github.com/ampio/canresolve/internal/can"
	"github.com/ampio/canresolve/internal/logging"
	"github.com/ampio/canresolve/internal/metrics"
	"github.com/ampio/canresolve/internal/model"
)

// Source is anything that can hand back live CAN frames one at a time; both
// *socketcan.Device and a serial-backed reader satisfy it.
type Source interface {
	ReadFrame(fr *can.Frame) error
}

// idKey packs a frame type and 29-bit value into one comparable key, mirroring
// resolve's own (ext, value) composite used to dedupe identifiers.
type idKey uint32

func keyOf(id model.MessageID) idKey {
	switch v := id.(type) {
	case model.ExtendedID:
		return idKey(v.Value()<<1 | 1)
	default:
		return idKey(v.Value() << 1)
	}
}

func frameKey(fr can.Frame) idKey {
	ext := fr.CANID&can.CAN_EFF_FLAG != 0
	val := fr.CANID & can.CAN_EFF_MASK
	if !ext {
		val = fr.CANID & can.CAN_SFF_MASK
	}
	k := idKey(val << 1)
	if ext {
		k |= 1
	}
	return k
}

// Checker holds the expected identifier set for one bus, derived once from a
// resolved model.Network, and classifies live frames against it.
type Checker struct {
	busName string
	known   map[idKey]string // id -> message name
	seen    map[idKey]bool
}

// NewChecker builds a Checker for one bus of a resolved network.
func NewChecker(net *model.Network, busName string) *Checker {
	c := &Checker{busName: busName, known: make(map[idKey]string), seen: make(map[idKey]bool)}
	for _, m := range net.Messages {
		if m.Bus.Name != busName {
			continue
		}
		c.known[keyOf(m.ID)] = m.Name
	}
	return c
}

// Observe classifies one live frame, incrementing drift_unexpected_frames_total
// when its identifier is not in the resolved set.
func (c *Checker) Observe(fr can.Frame) {
	k := frameKey(fr)
	if name, ok := c.known[k]; ok {
		c.seen[k] = true
		_ = name
		return
	}
	metrics.IncDriftUnexpected(c.busName)
}

// Missing reports resolved messages never observed since the last call to
// ResetWindow, incrementing drift_missing_frames_total for each.
func (c *Checker) Missing() []string {
	var names []string
	for k, name := range c.known {
		if !c.seen[k] {
			names = append(names, name)
			metrics.IncDriftMissing(c.busName)
		}
	}
	return names
}

// ResetWindow clears the seen set, starting a fresh missing-frame window.
func (c *Checker) ResetWindow() {
	c.seen = make(map[idKey]bool, len(c.known))
}

// Run reads frames from src until ctx is cancelled, feeding them to the
// checker and logging a missing-frame summary every window.
func Run(ctx context.Context, src Source, c *Checker, window time.Duration) error {
	if window <= 0 {
		window = 10 * time.Second
	}
	t := time.NewTicker(window)
	defer t.Stop()
	errCh := make(chan error, 1)
	go func() {
		var fr can.Frame
		for {
			if err := src.ReadFrame(&fr); err != nil {
				errCh <- err
				return
			}
			c.Observe(fr)
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			return err
		case <-t.C:
			missing := c.Missing()
			if len(missing) > 0 {
				logging.L().Warn("drift_missing_frames", "bus", c.busName, "count", len(missing))
			}
			c.ResetWindow()
		}
	}
}
