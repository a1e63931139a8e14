package decoder

import "errors"

// ErrStopDecoder is the "fast unwind" signal a plugin-facing call
// raises when a STOP command is observed while blocked — the
// reimplementation of the original's StopDecoder exception (spec.md
// §9 Design Notes: "a dedicated error variant returned everywhere
// cancellation is possible"). Plugins and the helpers in io.go return
// this instead of panicking across frames.
var ErrStopDecoder = errors.New("decoder: stop requested")

// ErrorKind classifies the last error captured from a decode
// callback, per the typed-enum reimplementation spec.md §9 suggests
// in place of a generic "last exception" slot.
type ErrorKind int

const (
	ErrorKindNone ErrorKind = iota
	ErrorKindIO
	ErrorKindConvert
	ErrorKindPlugin
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindNone:
		return "none"
	case ErrorKindIO:
		return "io"
	case ErrorKindConvert:
		return "convert"
	case ErrorKindPlugin:
		return "plugin"
	default:
		return "unknown"
	}
}

// CapturedError is the single-producer/single-consumer slot the
// decoder thread publishes into when it exits and the player thread
// reads once the decoder has returned (spec.md §5, §7, §9).
type CapturedError struct {
	Kind ErrorKind
	Err  error
}

func (c CapturedError) IsSet() bool {
	return c.Kind != ErrorKindNone
}
