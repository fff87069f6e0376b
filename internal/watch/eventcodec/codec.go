// Package eventcodec frames watch.Event values for the wire, the same way
// internal/cnl frames CAN frames: a fixed-size length header followed by the
// payload, so a reader never has to guess where one message ends.
package eventcodec

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrOversizedEvent is returned when an encoded event exceeds MaxEventSize.
var ErrOversizedEvent = errors.New("eventcodec: event too large")

// MaxEventSize bounds a single encoded event, guarding readers against a
// corrupt length header turning into an unbounded allocation.
const MaxEventSize = 1 << 20

// Codec encodes/decodes length-prefixed JSON events. Stateless, concurrency-safe.
type Codec struct{}

// Encode serializes v as a 4-byte BE length header followed by its JSON body.
func (Codec) Encode(v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("eventcodec encode: %w", err)
	}
	if len(body) > MaxEventSize {
		return nil, ErrOversizedEvent
	}
	out := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(out[:4], uint32(len(body)))
	copy(out[4:], body)
	return out, nil
}

// Decode reads one length-prefixed event from r into v.
func Decode(r io.Reader, v any) error {
	var lb [4]byte
	if _, err := io.ReadFull(r, lb[:]); err != nil {
		return err
	}
	n := binary.BigEndian.Uint32(lb[:])
	if n > MaxEventSize {
		return ErrOversizedEvent
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("eventcodec decode: truncated event: %w", err)
		}
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("eventcodec decode: %w", err)
	}
	return nil
}
