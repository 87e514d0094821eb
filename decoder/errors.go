package decoder

import "fmt"

// DecodeNoProgressError is raised when a Handler's Decode call produces
// output without consuming any input bytes: a decoder bug, since it would
// otherwise spin forever producing output from the same unread bytes.
type DecodeNoProgressError struct{}

func (e *DecodeNoProgressError) Error() string {
	return "decoder: decode produced output without consuming input"
}

// DecodeError wraps a failure from call_decode, whether returned directly
// by the Handler or raised internally (e.g. DecodeNoProgressError).
type DecodeError struct {
	Cause error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoder: decode failed: %v", e.Cause)
}

func (e *DecodeError) Unwrap() error { return e.Cause }
