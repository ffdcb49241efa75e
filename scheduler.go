package lcservice

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// Task is work run by the Scheduler. ctx is cancelled when shutdown begins.
type Task func(ctx context.Context) error

// Scheduler runs delayed and recurring tasks inside the process and drains
// them on shutdown. A run that has not started when shutdown begins never
// starts; runs already started are awaited.
type Scheduler struct {
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	stopped bool
	timers  map[*time.Timer]struct{}
	running sync.WaitGroup
}

// NewScheduler returns a running Scheduler.
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		timers: map[*time.Timer]struct{}{},
	}
}

// Delay runs fn once after d, whatever its outcome.
func (s *Scheduler) Delay(d time.Duration, fn Task) {
	s.after(d, func() { s.run("delay", fn) })
}

// Schedule runs fn now, in the calling goroutine, then again interval after
// each run finishes until shutdown. Errors and panics are logged and do not
// stop the schedule.
func (s *Scheduler) Schedule(interval time.Duration, fn Task) {
	var tick func()
	tick = func() {
		if s.run("schedule", fn) {
			s.after(interval, tick)
		}
	}
	tick()
}

// Shutdown cancels the task context, drops pending runs and waits up to
// grace for started ones.
func (s *Scheduler) Shutdown(grace time.Duration) error {
	s.mu.Lock()
	s.stopped = true
	for t := range s.timers {
		t.Stop()
	}
	clear(s.timers)
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.running.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(grace):
		s.logger.Error("scheduled tasks still running after grace period", "grace", grace)
		return ErrShutdownTimeout
	}
}

func (s *Scheduler) after(d time.Duration, f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		s.mu.Lock()
		delete(s.timers, t)
		s.mu.Unlock()
		f()
	})
	s.timers[t] = struct{}{}
}

// run executes fn unless shutdown has begun, and reports whether it did.
func (s *Scheduler) run(kind string, fn Task) bool {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return false
	}
	s.running.Add(1)
	s.mu.Unlock()
	defer s.running.Done()

	s.exec(kind, fn)
	return true
}

func (s *Scheduler) exec(kind string, fn Task) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled task panicked", "kind", kind, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	if err := fn(s.ctx); err != nil {
		s.logger.Error("scheduled task failed", "kind", kind, "error", err)
	}
}
