// Package errs names the error taxonomy from SPEC_FULL.md §7 as sentinel
// values and small wrapping types, checked with errors.Is/errors.As the way
// the teacher's mavlink.Client wraps errors with fmt.Errorf("...: %w", err).
package errs

import "errors"

// Transient bus errors: publish/subscribe attempted while disconnected.
// Recovered by reconnect; the publish itself is dropped, never retried.
var ErrBusDisconnected = errors.New("bus: disconnected")

// A consumed message failed JSON decoding or didn't match the topic's
// expected schema; the subscription continues, the message is dropped.
var ErrMalformedPayload = errors.New("bus: malformed payload")

// A command or trigger arrived for a drone whose role or current phase
// forbids it. No state change occurs; the caller observes this only as the
// absence of a later fleet/state transition.
var ErrPrecondition = errors.New("precondition failed")

// A drone is not present in the fleet roster / drone registry.
var ErrUnknownDrone = errors.New("unknown drone")

// FatalConfigError aborts the process with exit 1 before any bus connection
// is attempted.
type FatalConfigError struct {
	Reason string
}

func (e *FatalConfigError) Error() string { return "fatal config: " + e.Reason }

// FatalBindError aborts the process with exit 1 after the broker or
// WebSocket port could not be reached within the retry window.
type FatalBindError struct {
	Reason string
}

func (e *FatalBindError) Error() string { return "fatal bind: " + e.Reason }
