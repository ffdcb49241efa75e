package lcservice

import (
	"context"
	"time"
)

// OnDispatchFunc is called just before a handler executes.
type OnDispatchFunc func(ctx context.Context, etype EventType, mid string)

// OnCompleteFunc is called with the normalized response of every handled
// envelope, whether it succeeded or not.
type OnCompleteFunc func(ctx context.Context, etype EventType, resp Response, duration time.Duration)

// OnFaultFunc is called when a handler returns an error or panics.
type OnFaultFunc func(ctx context.Context, etype EventType, err error)

// OnLateFunc is called when a handler finishes past the envelope deadline.
// The response is not affected.
type OnLateFunc func(ctx context.Context, etype EventType, over time.Duration)

// OnRejectFunc is called when an envelope is refused before any handler runs:
// unsupported version, invalid request parameters, missing handler.
type OnRejectFunc func(ctx context.Context, etype EventType, err error)

// hooks holds all configured hook functions.
type hooks struct {
	onDispatch []OnDispatchFunc
	onComplete []OnCompleteFunc
	onFault    []OnFaultFunc
	onLate     []OnLateFunc
	onReject   []OnRejectFunc
}

// WithOnDispatch adds a hook called just before the handler executes.
// Multiple hooks are called in order.
//
// Example:
//
//	lcservice.WithOnDispatch(func(ctx context.Context, etype lcservice.EventType, mid string) {
//	    logger.InfoContext(ctx, "dispatching", "etype", etype, "mid", mid)
//	})
func WithOnDispatch(fn OnDispatchFunc) Option {
	return func(s *Service) {
		s.hooks.onDispatch = append(s.hooks.onDispatch, fn)
	}
}

// WithOnComplete adds a hook called after the response is normalized.
// Multiple hooks are called in order.
//
// Example:
//
//	lcservice.WithOnComplete(func(ctx context.Context, etype lcservice.EventType, r lcservice.Response, d time.Duration) {
//	    latency.WithLabelValues(string(etype)).Observe(d.Seconds())
//	})
func WithOnComplete(fn OnCompleteFunc) Option {
	return func(s *Service) {
		s.hooks.onComplete = append(s.hooks.onComplete, fn)
	}
}

// WithOnFault adds a hook called when a handler fails with an error or panic.
// The error is a *PanicError for panics.
func WithOnFault(fn OnFaultFunc) Option {
	return func(s *Service) {
		s.hooks.onFault = append(s.hooks.onFault, fn)
	}
}

// WithOnLate adds a hook called when a handler overruns the envelope deadline.
func WithOnLate(fn OnLateFunc) Option {
	return func(s *Service) {
		s.hooks.onLate = append(s.hooks.onLate, fn)
	}
}

// WithOnReject adds a hook called when an envelope is refused before
// dispatch. err wraps ErrUnsupportedVersion, ErrNotImplemented or is a
// *ParamError.
func WithOnReject(fn OnRejectFunc) Option {
	return func(s *Service) {
		s.hooks.onReject = append(s.hooks.onReject, fn)
	}
}

func (h *hooks) dispatch(ctx context.Context, etype EventType, mid string) {
	for _, fn := range h.onDispatch {
		fn(ctx, etype, mid)
	}
}

func (h *hooks) complete(ctx context.Context, etype EventType, resp Response, d time.Duration) {
	for _, fn := range h.onComplete {
		fn(ctx, etype, resp, d)
	}
}

func (h *hooks) fault(ctx context.Context, etype EventType, err error) {
	for _, fn := range h.onFault {
		fn(ctx, etype, err)
	}
}

func (h *hooks) late(ctx context.Context, etype EventType, over time.Duration) {
	for _, fn := range h.onLate {
		fn(ctx, etype, over)
	}
}

func (h *hooks) reject(ctx context.Context, etype EventType, err error) {
	for _, fn := range h.onReject {
		fn(ctx, etype, err)
	}
}
