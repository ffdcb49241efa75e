package lcservice

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is returned when an envelope's signature does not match.
	ErrUnauthorized = errors.New("unauthorized: bad origin signature")

	// ErrMalformedEnvelope is returned when the envelope body cannot be decoded.
	ErrMalformedEnvelope = errors.New("malformed envelope")

	// ErrUnsupportedVersion is returned when the envelope protocol version is
	// newer than ProtocolVersion.
	ErrUnsupportedVersion = fmt.Errorf("unsupported version (> %d)", ProtocolVersion)

	// ErrNotImplemented is reported for event types without a handler.
	ErrNotImplemented = errors.New("not implemented")

	// ErrUnknownEventType is returned by Builder.Handle for event types outside
	// the protocol's closed set.
	ErrUnknownEventType = errors.New("unknown event type")

	// ErrUnknownCallback is returned when a correlation identifier or a tracked
	// tasking names a callback this service does not have.
	ErrUnknownCallback = errors.New("unknown callback")

	// ErrMalformedCorrelation is returned when an identifier carries this
	// service's root prefix but not the expected segments.
	ErrMalformedCorrelation = errors.New("malformed correlation id")

	// ErrForeignCorrelation is returned when an identifier was not issued by
	// this service.
	ErrForeignCorrelation = errors.New("correlation id not issued by this service")

	// ErrShutdownTimeout is returned when background tasks are still running
	// after the shutdown grace period.
	ErrShutdownTimeout = errors.New("shutdown grace period exceeded")
)

// PanicError carries a recovered panic and the stack at the point of recovery.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

// ParamError describes a declared request parameter that failed validation.
type ParamError struct {
	Param   string
	Reason  string
	Missing bool
}

func (e *ParamError) Error() string {
	if e.Missing {
		return "missing parameter " + e.Param
	}
	return fmt.Sprintf("invalid parameter %s: %s", e.Param, e.Reason)
}
