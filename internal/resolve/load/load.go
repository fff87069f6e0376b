// Package load computes a message's DLC and its steady-state bus-load
// contribution (spec.md §4.2).
package load

import (
	"fmt"
	"time"

	"github.com/ampio/canresolve/internal/model"
)

// DLC computes a message's payload size in bytes from its payload
// descriptor: the sum of signal sizes, or the total byte size of its
// declared type list. An unresolved type name is a hard error.
func DLC(m *model.Message, types model.TypeDict) (uint32, error) {
	switch p := m.Payload.(type) {
	case model.SignalsPayload:
		var bits uint32
		for _, s := range p.Signals {
			bits += s.WidthBits
		}
		return (bits + 7) / 8, nil
	case model.TypesPayload:
		var bytes uint32
		for _, f := range p.Fields {
			t, err := types.Resolve(f.Type.Name)
			if err != nil {
				return 0, fmt.Errorf("message %s: %w", m.Name, err)
			}
			bytes += t.Size()
		}
		return bytes, nil
	case model.EmptyPayload:
		return 0, nil
	default:
		return 0, fmt.Errorf("message %s: unknown payload kind %T", m.Name, p)
	}
}

// FrameBits computes the worst-case frame length in bits including
// bit-stuffing margin (spec.md §4.2).
func FrameBits(dlc uint32, ext bool) uint64 {
	d := uint64(dlc)
	if ext {
		stuff := (54 + 8*d - 1 + 3) / 4
		return 8*d + 64 + stuff
	}
	stuff := (34 + 8*d - 1 + 3) / 4
	return 8*d + 44 + stuff
}

// IntervalFor resolves the transmission interval implied by a message's
// usage tag (spec.md §4.2, extended per SPEC_FULL.md §5 to the full
// nine-variant Usage enumeration).
func IntervalFor(m *model.Message) time.Duration {
	switch u := m.Usage.(type) {
	case model.Stream:
		return u.Interval
	case model.CommandReq:
		return u.ExpectedInterval
	case model.CommandResp:
		return u.ExpectedInterval
	case model.GetReq, model.GetResp, model.SetReq, model.SetResp:
		return model.ConfigurationInterval
	case model.Heartbeat:
		if u.Interval > 0 {
			return u.Interval
		}
		return model.DefaultHeartbeatInterval
	case model.External:
		if u.Interval > 0 {
			return u.Interval
		}
		return model.DefaultExternalInterval
	default:
		return model.DefaultExternalInterval
	}
}

// BitsPerSecond converts a frame-bits/interval pair to a steady-state load.
// Any-frame messages must be scored as extended (pessimistic reservation,
// spec.md §4.2) by the caller passing ext=true.
func BitsPerSecond(dlc uint32, ext bool, interval time.Duration) float64 {
	if interval <= 0 {
		return 0
	}
	bits := FrameBits(dlc, ext)
	return float64(bits) * 1e9 / float64(interval.Nanoseconds())
}

// AssumedExt reports whether a message's id template should be scored as
// extended for capacity-reservation purposes (spec.md §4.2: "Any-frame
// messages assume extended framing for capacity reservation").
func AssumedExt(m *model.Message) bool {
	switch m.IDTemplate.(type) {
	case model.ExtID, model.AnyExt, model.AnyAny:
		return true
	default:
		return false
	}
}

// Of computes the full steady-state load contribution of a message in
// bits/s, combining DLC, assumed frame type and interval.
func Of(m *model.Message, types model.TypeDict) (float64, error) {
	dlc, err := DLC(m, types)
	if err != nil {
		return 0, err
	}
	interval := IntervalFor(m)
	return BitsPerSecond(dlc, AssumedExt(m), interval), nil
}
