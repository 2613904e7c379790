package signalk

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed command submission.
type ErrorKind string

const (
	ErrKindNetwork      ErrorKind = "network"        // transport unreachable or connection broke
	ErrKindUnauthorized ErrorKind = "unauthorized"   // missing/invalid credential for a write
	ErrKindRejected     ErrorKind = "serverRejected" // command understood but refused
	ErrKindTimeout      ErrorKind = "timeout"        // no response within the request deadline
)

// CommandError reports why a write command could not be submitted. It covers
// the transport leg only; whether the target device actually changed state is
// the verifier's concern.
type CommandError struct {
	Kind ErrorKind
	Path string
	Err  error
}

func (e *CommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("command %s on %q: %v", e.Kind, e.Path, e.Err)
	}
	return fmt.Sprintf("command %s on %q", e.Kind, e.Path)
}

func (e *CommandError) Unwrap() error { return e.Err }

// KindOf extracts the error kind from err, or ErrKindNetwork when err is not
// a CommandError.
func KindOf(err error) ErrorKind {
	var ce *CommandError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ErrKindNetwork
}
