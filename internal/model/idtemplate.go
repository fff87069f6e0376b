package model

import "fmt"

// IdTemplate is the tagged union of the five ways a message may declare its
// identifier (spec.md §3). Exactly one of the concrete types below
// implements it; switches over it must be exhaustive.
type IdTemplate interface {
	isIdTemplate()
	fmt.Stringer
}

// StdID pins the message to a fixed 11-bit standard identifier.
type StdID struct{ Value uint32 }

// ExtID pins the message to a fixed 29-bit extended identifier.
type ExtID struct{ Value uint32 }

// AnyStd lets the engine pick any standard identifier within the priority band.
type AnyStd struct{ Priority Priority }

// AnyExt lets the engine pick any extended identifier within the priority band.
type AnyExt struct{ Priority Priority }

// AnyAny lets the engine pick frame type and identifier within the priority band.
type AnyAny struct{ Priority Priority }

func (StdID) isIdTemplate()  {}
func (ExtID) isIdTemplate()  {}
func (AnyStd) isIdTemplate() {}
func (AnyExt) isIdTemplate() {}
func (AnyAny) isIdTemplate() {}

func (t StdID) String() string  { return fmt.Sprintf("StdId(0x%X)", t.Value) }
func (t ExtID) String() string  { return fmt.Sprintf("ExtId(0x%X)", t.Value) }
func (t AnyStd) String() string { return fmt.Sprintf("AnyStd(%s)", t.Priority) }
func (t AnyExt) String() string { return fmt.Sprintf("AnyExt(%s)", t.Priority) }
func (t AnyAny) String() string { return fmt.Sprintf("AnyAny(%s)", t.Priority) }

const (
	StdIDMax = 0x7FF        // 2^11 - 1
	ExtIDMax = 0x1FFFFFFF   // 2^29 - 1
)

// FrameType is std, ext, or "any" prior to finalisation.
type FrameType int

const (
	FrameAny FrameType = iota
	FrameStd
	FrameExt
)

func (f FrameType) String() string {
	switch f {
	case FrameStd:
		return "std"
	case FrameExt:
		return "ext"
	default:
		return "any"
	}
}
