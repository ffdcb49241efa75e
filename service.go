package lcservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bjaus/lcservice/platform"
)

// Service answers envelopes from the platform. It is built by a Builder and
// is safe for concurrent use; its handler table never changes after Build.
type Service struct {
	name        string
	verifier    *Verifier
	codec       *Codec
	logger      *slog.Logger
	hooks       hooks
	newPlatform PlatformFactory
	traceComms  bool
	now         func() time.Time
	startedAt   int64

	handlers      map[EventType]Handler
	implemented   []string
	params        map[string]ParamDef
	subscriptions []string
	resources     map[string]resource

	// Interactive tasking. callbacks is keyed by callback key, callbackNames
	// by name.
	callbacks     map[string]Callback
	callbackNames map[string]struct{}
	detection     Handler
	rule          *platform.Rule

	scheduler *Scheduler

	mu       sync.Mutex
	inFlight int
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithPlatformFactory sets how per-call platform handles are built. The
// default is RESTPlatform().
func WithPlatformFactory(f PlatformFactory) Option {
	return func(s *Service) { s.newPlatform = f }
}

// WithTraceComms logs every request and response. Credentials are never
// logged.
func WithTraceComms(on bool) Option {
	return func(s *Service) { s.traceComms = on }
}

// WithClock replaces time.Now for start time and deadline checks.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Name returns the service name.
func (s *Service) Name() string { return s.name }

// Verifier returns the origin verifier built from the shared secret.
func (s *Service) Verifier() *Verifier { return s.verifier }

// Codec returns the correlation codec of this service.
func (s *Service) Codec() *Codec { return s.codec }

// Scheduler returns the scheduler drained by Shutdown.
func (s *Service) Scheduler() *Scheduler { return s.scheduler }

// Implemented returns the event types with a handler, sorted.
func (s *Service) Implemented() []string {
	return append([]string(nil), s.implemented...)
}

// InFlight returns the number of handlers currently running, health checks
// excluded.
func (s *Service) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

// Shutdown stops the scheduler and waits up to grace for running tasks.
func (s *Service) Shutdown(grace time.Duration) error {
	s.logger.Info("shutting down", "grace", grace)
	return s.scheduler.Shutdown(grace)
}

// ProcessSigned authenticates body against signature, decodes it and
// processes it. Errors are ErrUnauthorized or ErrMalformedEnvelope; every
// other outcome is a Response.
func (s *Service) ProcessSigned(ctx context.Context, body []byte, signature string) (Response, error) {
	if !s.verifier.verifyContext(ctx, s.logger, body, signature) {
		return Response{}, ErrUnauthorized
	}
	env, err := DecodeEnvelope(body)
	if err != nil {
		return Response{}, err
	}
	return s.Process(ctx, env), nil
}

// Process handles one authenticated envelope. Exactly one Response is
// returned for every envelope; handler faults never escape.
func (s *Service) Process(ctx context.Context, env Envelope) Response {
	etype := env.EventType
	log := s.logger.With("etype", string(etype), "mid", env.MessageID)

	if env.Version > ProtocolVersion {
		log.WarnContext(ctx, "rejected envelope", "version", env.Version)
		s.hooks.reject(ctx, etype, ErrUnsupportedVersion)
		return Response{
			Error: ErrUnsupportedVersion.Error(),
			Data:  map[string]any{"error": ErrUnsupportedVersion.Error()},
		}
	}

	if s.traceComms {
		log.InfoContext(ctx, "request", "oid", env.OID, "data", traceJSON(withoutJWT(env.Data)))
	}

	req := Request{EventType: etype, MessageID: env.MessageID, Data: env.Data}
	if req.Data == nil {
		req.Data = map[string]any{}
	}

	if etype == EventRequest && len(s.params) > 0 {
		if err := validateParams(s.params, req.Data); err != nil {
			log.InfoContext(ctx, "invalid request parameters", "error", err)
			s.hooks.reject(ctx, etype, err)
			return s.trace(ctx, log, Failure(err))
		}
	}

	h, ok := s.handlers[etype]
	if !ok {
		s.hooks.reject(ctx, etype, fmt.Errorf("%w: %s", ErrNotImplemented, etype))
		return s.trace(ctx, log, NotImplemented())
	}

	var api platform.API
	if env.OID != "" && env.JWT != "" {
		var err error
		api, err = s.newPlatform(env.OID, env.JWT, uuid.NewString())
		if err != nil {
			log.ErrorContext(ctx, "failed to build platform handle", "oid", env.OID, "error", err)
			return s.trace(ctx, log, Response{Retry: true, Error: err.Error(), Data: map[string]any{}})
		}
	}

	start := s.now()
	s.hooks.dispatch(ctx, etype, env.MessageID)

	resp := s.invoke(ctx, etype, func(ctx context.Context) (any, error) {
		return h(ctx, api, env.OID, req)
	})

	end := s.now()
	if deadline, ok := env.DeadlineTime(); ok && end.After(deadline) {
		over := end.Sub(deadline)
		log.WarnContext(ctx, "event over deadline", "over", over)
		s.hooks.late(ctx, etype, over)
	}

	s.hooks.complete(ctx, etype, resp, end.Sub(start))
	return s.trace(ctx, log, resp)
}

// invoke runs fn with in-flight accounting and turns errors and panics into
// retryable faults.
func (s *Service) invoke(ctx context.Context, etype EventType, fn func(context.Context) (any, error)) (resp Response) {
	counted := etype != EventHealth
	if counted {
		s.mu.Lock()
		s.inFlight++
		s.mu.Unlock()
	}
	defer func() {
		if r := recover(); r != nil {
			resp = s.fault(ctx, etype, &PanicError{Value: r, Stack: debug.Stack()})
		}
		if counted {
			s.mu.Lock()
			s.inFlight--
			s.mu.Unlock()
		}
	}()

	v, err := fn(ctx)
	if err != nil {
		return s.fault(ctx, etype, err)
	}
	return s.normalize(ctx, etype, v)
}

// fault logs a handler failure and reports it as retryable.
func (s *Service) fault(ctx context.Context, etype EventType, err error) Response {
	exception := err.Error()
	var pe *PanicError
	if errors.As(err, &pe) {
		exception += "\n" + string(pe.Stack)
	}
	s.logger.ErrorContext(ctx, "handler fault", "etype", string(etype), "error", err, "exception", exception)
	s.hooks.fault(ctx, etype, err)
	return Response{Retry: true, Data: map[string]any{"exception": exception}}
}

func (s *Service) trace(ctx context.Context, log *slog.Logger, resp Response) Response {
	if s.traceComms {
		log.InfoContext(ctx, "response", "data", traceJSON(resp))
	}
	return resp
}

// withoutJWT returns a copy of data with the "jwt" key dropped.
func withoutJWT(data map[string]any) map[string]any {
	out := maps.Clone(data)
	delete(out, "jwt")
	return out
}

func traceJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("<unencodable: %v>", err)
	}
	return string(b)
}

func (s *Service) health(context.Context, platform.API, string, Request) (any, error) {
	return Success(map[string]any{
		"version":           ProtocolVersion,
		"start_time":        s.startedAt,
		"calls_in_progress": s.InFlight(),
		"mtd": map[string]any{
			"detect_subscriptions": s.subscriptions,
			"callbacks":            s.implemented,
			"request_params":       s.params,
		},
	}), nil
}
