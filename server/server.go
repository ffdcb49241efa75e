// Package server exposes a Service over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bjaus/lcservice"
)

// MaxBodyBytes bounds the size of an inbound envelope.
const MaxBodyBytes = 16 << 20

// Processor is the part of *lcservice.Service the transport needs.
type Processor interface {
	ProcessSigned(ctx context.Context, body []byte, signature string) (lcservice.Response, error)
}

// Handler answers envelopes POSTed to any path.
func Handler(p Processor, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				http.Error(w, "envelope too large", http.StatusRequestEntityTooLarge)
				return
			}
			http.Error(w, "failed to read body", http.StatusBadRequest)
			return
		}

		resp, err := p.ProcessSigned(r.Context(), body, r.Header.Get(lcservice.SignatureHeader))
		switch {
		case errors.Is(err, lcservice.ErrUnauthorized):
			logger.WarnContext(r.Context(), "rejected unsigned request", "remote", r.RemoteAddr)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		case errors.Is(err, lcservice.ErrMalformedEnvelope):
			logger.WarnContext(r.Context(), "malformed envelope", "error", err)
			http.Error(w, "malformed envelope", http.StatusBadRequest)
			return
		case err != nil:
			logger.ErrorContext(r.Context(), "processing failed", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		out, err := json.Marshal(resp)
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to encode response", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(out)
	})
}

// Option configures NewRouter and New.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	gatherer prometheus.Gatherer
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics serves g on /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(o *options) { o.gatherer = g }
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewRouter constructs a ServeMux answering envelopes on every path except
// /metrics.
func NewRouter(p Processor, opts ...Option) http.Handler {
	o := buildOptions(opts)
	mux := http.NewServeMux()
	if o.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(o.gatherer, promhttp.HandlerOpts{}))
	}
	mux.Handle("/", Handler(p, o.logger))
	return RequestID(mux)
}

// Config holds HTTP server settings.
type Config struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Server runs a Service behind net/http and drains it on shutdown.
type Server struct {
	svc    *lcservice.Service
	http   *http.Server
	logger *slog.Logger
}

// New returns a Server for svc.
func New(svc *lcservice.Service, cfg Config, opts ...Option) *Server {
	o := buildOptions(opts)
	return &Server{
		svc:    svc,
		logger: o.logger,
		http: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      NewRouter(svc, opts...),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
	}
}

// Addr returns the listen address.
func (s *Server) Addr() string { return s.http.Addr }

// ListenAndServe blocks until the server stops. It returns nil after a
// graceful Shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.Info("listening", "addr", s.http.Addr, "service", s.svc.Name())
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting envelopes, waits for in-flight ones until ctx is
// done, then drains the service's background tasks for up to grace.
func (s *Server) Shutdown(ctx context.Context, grace time.Duration) error {
	httpErr := s.http.Shutdown(ctx)
	if httpErr != nil {
		httpErr = fmt.Errorf("http shutdown: %w", httpErr)
	}
	return errors.Join(httpErr, s.svc.Shutdown(grace))
}
