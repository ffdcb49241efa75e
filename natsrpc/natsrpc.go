// Package natsrpc exposes a Service as a NATS request/reply responder.
//
// Envelopes arrive on a subject shared by every instance of the service,
// through a queue group so each envelope is answered once. The signature
// travels in the lc-svc-sig message header.
package natsrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/bjaus/lcservice"
	"github.com/bjaus/lcservice/internal/logging"
)

// RequestIDHeader optionally carries the caller's request id.
const RequestIDHeader = "X-Request-ID"

// Processor is the part of *lcservice.Service the transport needs.
type Processor interface {
	ProcessSigned(ctx context.Context, body []byte, signature string) (lcservice.Response, error)
}

// Config holds NATS connection settings.
type Config struct {
	// URL is the NATS server URL (e.g., "nats://localhost:4222").
	URL string

	// Name is the client name for connection identification.
	Name string

	// MaxReconnects is the maximum number of reconnection attempts.
	// Use -1 for infinite reconnects.
	MaxReconnects int

	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Name:          "lcservice",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// Connect dials NATS, logging disconnects and reconnects.
func Connect(cfg Config, logger *slog.Logger) (*nats.Conn, error) {
	conn, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return conn, nil
}

// Responder answers envelopes received on one queue subscription.
type Responder struct {
	p      Processor
	logger *slog.Logger
	sub    *nats.Subscription
	wg     sync.WaitGroup
}

// Subscribe starts answering envelopes published on subject. Every message is
// handled on its own goroutine.
func Subscribe(conn *nats.Conn, subject, queue string, p Processor, logger *slog.Logger) (*Responder, error) {
	r := &Responder{p: p, logger: logger.With("subject", subject, "queue", queue)}
	sub, err := conn.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.handle(msg)
		}()
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	r.sub = sub
	r.logger.Info("answering envelopes over NATS")
	return r, nil
}

// Close stops receiving and waits for envelopes being answered.
func (r *Responder) Close() error {
	err := r.sub.Drain()
	r.wg.Wait()
	return err
}

func (r *Responder) handle(msg *nats.Msg) {
	ctx := logging.WithRequestID(context.Background(), requestID(msg))
	out := process(ctx, r.p, r.logger, msg.Data, header(msg, lcservice.SignatureHeader))
	if msg.Reply == "" {
		r.logger.WarnContext(ctx, "envelope without reply subject")
		return
	}
	if err := msg.Respond(out); err != nil {
		r.logger.ErrorContext(ctx, "failed to reply", "error", err)
	}
}

// process answers one envelope. Transport-level refusals are encoded as
// non-retryable failures since there is no status code to carry them.
func process(ctx context.Context, p Processor, logger *slog.Logger, body []byte, sig string) []byte {
	resp, err := p.ProcessSigned(ctx, body, sig)
	switch {
	case errors.Is(err, lcservice.ErrUnauthorized):
		logger.WarnContext(ctx, "rejected unsigned envelope")
		resp = refusal("unauthorized")
	case errors.Is(err, lcservice.ErrMalformedEnvelope):
		logger.WarnContext(ctx, "malformed envelope", "error", err)
		resp = refusal("malformed envelope")
	case err != nil:
		logger.ErrorContext(ctx, "processing failed", "error", err)
		resp = refusal("internal error")
	}

	out, err := json.Marshal(resp)
	if err != nil {
		logger.ErrorContext(ctx, "failed to encode response", "error", err)
		out, _ = json.Marshal(refusal("internal error"))
	}
	return out
}

func refusal(reason string) lcservice.Response {
	return lcservice.Response{Error: reason, Data: map[string]any{}}
}

func header(msg *nats.Msg, key string) string {
	if msg.Header == nil {
		return ""
	}
	return msg.Header.Get(key)
}

func requestID(msg *nats.Msg) string {
	if id := header(msg, RequestIDHeader); id != "" {
		return id
	}
	return uuid.NewString()
}
