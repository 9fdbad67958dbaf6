package apc

import "errors"

// CallError is returned by APC.Call.
type CallError struct {
	// Schedule is set when the chosen worker's mailbox was full; the
	// caller may retry the call on a later frame.
	Schedule bool
	cause    error
}

func (e *CallError) Error() string {
	if e.Schedule {
		return "apc: schedule: " + e.cause.Error()
	}
	return "apc: " + e.cause.Error()
}

func (e *CallError) Unwrap() error { return e.cause }

func scheduleError(cause error) error {
	return &CallError{Schedule: true, cause: cause}
}

// ErrSend is returned by Context.Send when the reply transport is
// full or closed.
var ErrSend = errors.New("apc: send: transport full or closed")

// ProcedureError wraps a pipeline failure. The message already delivered
// before the error occurred (e.g. per-layer Unavailable messages) remains
// valid; ProcedureError only reports that the procedure as a whole did
// not finish cleanly.
type ProcedureError struct {
	cause error
}

func (e *ProcedureError) Error() string { return "apc: procedure execution: " + e.cause.Error() }
func (e *ProcedureError) Unwrap() error { return e.cause }

// ExecutionError wraps cause as a ProcedureError.
func ExecutionError(cause error) error {
	return &ProcedureError{cause: cause}
}
