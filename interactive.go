package lcservice

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bjaus/lcservice/platform"
)

// InteractiveNamespace is the rule namespace holding the routing rule of
// interactive services.
const InteractiveNamespace = "replicant"

// Codec builds and reads the investigation ids attached to tracked
// taskings:
//
//	svc-<name>-ex/<callback key>/<job id>/<context>
//
// The callback key is derived from the shared secret, so the id carries
// everything needed to resume the work on any instance of the service.
type Codec struct {
	root   string
	secret string
}

// Correlation is a decoded investigation id.
type Correlation struct {
	CallbackKey string
	JobID       string
	Context     string
}

// NewCodec returns the codec for service name.
func NewCodec(name, secret string) *Codec {
	return &Codec{root: "svc-" + name + "-ex", secret: secret}
}

// Root returns the prefix shared by every id this service issues.
func (c *Codec) Root() string { return c.root }

// Key returns the callback key of the callback called name.
func (c *Codec) Key(name string) string {
	sum := md5.Sum([]byte(c.secret + "/" + name))
	return hex.EncodeToString(sum[:])[:8]
}

// Encode returns the investigation id resuming callback name with jobID and
// the free-form text. jobID may be empty.
func (c *Codec) Encode(name, jobID, text string) string {
	return strings.Join([]string{c.root, c.Key(name), jobID, text}, "/")
}

// Decode splits id. Everything after the third "/" is context, so context may
// itself contain "/".
func (c *Codec) Decode(id string) (Correlation, error) {
	parts := strings.SplitN(id, "/", 4)
	if parts[0] != c.root {
		return Correlation{}, ErrForeignCorrelation
	}
	if len(parts) < 4 {
		return Correlation{}, fmt.Errorf("%w: %q", ErrMalformedCorrelation, id)
	}
	return Correlation{CallbackKey: parts[1], JobID: parts[2], Context: parts[3]}, nil
}

// Tracking names the callback resuming a tasking and what it gets back.
type Tracking struct {
	Callback string
	Job      *Job
	Context  string
}

// Task sends tasks to sensor sid so that the result comes back to the
// callback named in t, on whichever instance receives it.
func (s *Service) Task(ctx context.Context, api platform.API, sid string, tasks []string, t Tracking) error {
	if api == nil {
		return errors.New("tasking needs a platform handle")
	}
	if _, ok := s.callbackNames[t.Callback]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCallback, t.Callback)
	}
	jobID := ""
	if t.Job != nil {
		jobID = t.Job.ID()
	}
	return api.Task(ctx, sid, tasks, s.codec.Encode(t.Callback, jobID, t.Context))
}

// InteractiveRule returns the rule routing tasking results back to the
// service, if interactive tasking is on.
func (s *Service) InteractiveRule() (platform.Rule, bool) {
	if s.rule == nil {
		return platform.Rule{}, false
	}
	return *s.rule, true
}

// interactiveGuard matches detections carrying one of our investigation ids,
// leaving out the platform's own echo of the tasking.
func interactiveGuard(root string) Discriminator {
	return And(
		HasPrefix("routing/investigation_id", root),
		Not(FieldEquals("routing/event_type", "CLOUD_NOTIFICATION")),
	)
}

func (s *Service) enableInteractive(named map[string]Callback) error {
	s.callbacks = make(map[string]Callback, len(named))
	s.callbackNames = make(map[string]struct{}, len(named))
	owner := make(map[string]string, len(named))
	for name, cb := range named {
		key := s.codec.Key(name)
		if other, ok := owner[key]; ok {
			return fmt.Errorf("callbacks %s and %s share key %s", other, name, key)
		}
		owner[key] = name
		s.callbacks[key] = cb
		s.callbackNames[name] = struct{}{}
	}

	root := s.codec.Root()
	s.rule = &platform.Rule{
		Name:      root,
		Namespace: InteractiveNamespace,
		Detect:    interactiveGuard(root).Rule(),
		Respond:   []map[string]any{platform.ReportAction("__" + root)},
	}

	s.detection = s.handlers[EventDetection]
	s.handlers[EventDetection] = s.interactiveDetection
	s.handlers[EventOrgInstall] = s.withRule(s.handlers[EventOrgInstall], s.pushRule)
	s.handlers[OrgPer(Every1Hour)] = s.withRule(s.handlers[OrgPer(Every1Hour)], s.pushRule)
	s.handlers[EventOrgUninstall] = s.withRule(s.handlers[EventOrgUninstall], s.deleteRule)
	return nil
}

// interactiveDetection resumes tracked taskings and hands every other
// detection to the service's own detection handler.
func (s *Service) interactiveDetection(ctx context.Context, api platform.API, oid string, req Request) (any, error) {
	event, _ := req.Data["detect"].(map[string]any)
	view, err := ViewOf(event)
	if err != nil || !interactiveGuard(s.codec.Root()).Match(view) {
		return s.plainDetection(ctx, api, oid, req)
	}

	invID, _ := view.GetString("routing/investigation_id")
	corr, err := s.codec.Decode(invID)
	switch {
	case errors.Is(err, ErrForeignCorrelation):
		return s.plainDetection(ctx, api, oid, req)
	case err != nil:
		s.logger.WarnContext(ctx, "dropping tasking result", "investigation_id", invID, "error", err)
		return Failure(err), nil
	}

	cb, ok := s.callbacks[corr.CallbackKey]
	if !ok {
		s.logger.ErrorContext(ctx, "unknown callback", "key", corr.CallbackKey)
		return Failure(fmt.Errorf("%w: %s", ErrUnknownCallback, corr.CallbackKey)), nil
	}

	var job *Job
	if corr.JobID != "" {
		job = ResumeJob(corr.JobID)
	}
	sid, _ := view.GetString("routing/sid")
	return cb(ctx, api, oid, Resumed{Event: event, SID: sid, Job: job, Context: corr.Context})
}

func (s *Service) plainDetection(ctx context.Context, api platform.API, oid string, req Request) (any, error) {
	if s.detection == nil {
		return NotImplemented(), nil
	}
	return s.detection(ctx, api, oid, req)
}

// withRule runs the service's handler, if any, then syncs the routing rule.
func (s *Service) withRule(h Handler, sync func(context.Context, platform.API) error) Handler {
	return func(ctx context.Context, api platform.API, oid string, req Request) (any, error) {
		var ret any = true
		if h != nil {
			v, err := h(ctx, api, oid, req)
			if err != nil {
				return nil, err
			}
			ret = v
		}
		if api == nil {
			s.logger.WarnContext(ctx, "no platform handle, routing rule not synced", "oid", oid)
			return ret, nil
		}
		if err := sync(ctx, api); err != nil {
			return nil, err
		}
		return ret, nil
	}
}

func (s *Service) pushRule(ctx context.Context, api platform.API) error {
	if s.logger.Enabled(ctx, slog.LevelDebug) {
		if b, err := s.rule.YAML(); err == nil {
			s.logger.DebugContext(ctx, "pushing routing rule", "rule", string(b))
		}
	}
	if err := api.PushRule(ctx, *s.rule); err != nil {
		return fmt.Errorf("push rule %s: %w", s.rule.Name, err)
	}
	return nil
}

// deleteRule only logs failures; uninstall proceeds regardless.
func (s *Service) deleteRule(ctx context.Context, api platform.API) error {
	if err := api.DeleteRule(ctx, s.rule.Name, s.rule.Namespace); err != nil {
		s.logger.ErrorContext(ctx, "failed to delete routing rule", "rule", s.rule.Name, "error", err)
	}
	return nil
}
