package lcservice

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"
)

// Builder assembles a Service. Every event type has its own setter; types
// left unset answer "not implemented" and are not reported as handled.
//
// Setters record configuration errors instead of returning them, so calls can
// be chained. Build reports them all.
type Builder struct {
	name      string
	secret    string
	opts      []Option
	handlers  map[EventType]Handler
	params    map[string]ParamDef
	subs      map[string]struct{}
	resources map[string]resource
	callbacks map[string]Callback
	errs      []error
}

// NewBuilder starts a service called name, authenticated with secret. An empty
// secret disables origin verification.
func NewBuilder(name, secret string, opts ...Option) *Builder {
	return &Builder{
		name:      name,
		secret:    secret,
		opts:      opts,
		handlers:  map[EventType]Handler{},
		params:    map[string]ParamDef{},
		subs:      map[string]struct{}{},
		resources: map[string]resource{},
		callbacks: map[string]Callback{},
	}
}

// With appends options.
func (b *Builder) With(opts ...Option) *Builder {
	b.opts = append(b.opts, opts...)
	return b
}

// Handle sets the handler for etype. Only event types of the protocol are
// accepted, and the built-in health and get_resource cannot be replaced.
func (b *Builder) Handle(etype EventType, h Handler) *Builder {
	switch {
	case !etype.Known():
		b.errs = append(b.errs, fmt.Errorf("%w: %q", ErrUnknownEventType, etype))
	case etype.builtin():
		b.errs = append(b.errs, fmt.Errorf("%s is answered by the service itself", etype))
	case h == nil:
		b.errs = append(b.errs, fmt.Errorf("nil handler for %s", etype))
	default:
		b.handlers[etype] = h
	}
	return b
}

// OnOrgInstall handles the service being installed in an organization.
func (b *Builder) OnOrgInstall(h Handler) *Builder { return b.Handle(EventOrgInstall, h) }

// OnOrgUninstall handles the service being removed from an organization.
func (b *Builder) OnOrgUninstall(h Handler) *Builder { return b.Handle(EventOrgUninstall, h) }

// OnDetection handles detections the service subscribed to.
func (b *Builder) OnDetection(h Handler) *Builder { return b.Handle(EventDetection, h) }

// OnRequest handles ad-hoc requests, after their parameters are validated.
func (b *Builder) OnRequest(h Handler) *Builder { return b.Handle(EventRequest, h) }

// OnNewSensor handles a sensor enrolling in an organization.
func (b *Builder) OnNewSensor(h Handler) *Builder { return b.Handle(EventNewSensor, h) }

// OnDeploymentEvent handles sensor deployment events.
func (b *Builder) OnDeploymentEvent(h Handler) *Builder { return b.Handle(EventDeploymentEvent, h) }

// OnLogEvent handles log ingestion events.
func (b *Builder) OnLogEvent(h Handler) *Builder { return b.Handle(EventLogEvent, h) }

// OnServiceError handles errors the platform reports about the service.
func (b *Builder) OnServiceError(h Handler) *Builder { return b.Handle(EventServiceError, h) }

// OnOrgPer handles the event sent for every organization every p.
func (b *Builder) OnOrgPer(p Period, h Handler) *Builder { return b.Handle(OrgPer(p), h) }

// OnOncePer handles the event sent once for the whole service every p.
func (b *Builder) OnOncePer(p Period, h Handler) *Builder { return b.Handle(OncePer(p), h) }

// OnSensorPer handles the event sent for every sensor every p.
func (b *Builder) OnSensorPer(p Period, h Handler) *Builder { return b.Handle(SensorPer(p), h) }

// RequestParams declares parameters accepted by "request" events. Present
// declared fields are type checked and required ones enforced before the
// request handler runs.
func (b *Builder) RequestParams(defs map[string]ParamDef) *Builder {
	for name, def := range defs {
		if def.Type == ParamEnum && len(def.Values) == 0 {
			b.errs = append(b.errs, fmt.Errorf("enum parameter %s has no values", name))
			continue
		}
		b.params[name] = def
	}
	return b
}

// SubscribeDetection asks the platform to forward detections with these
// names.
func (b *Builder) SubscribeDetection(names ...string) *Builder {
	for _, n := range names {
		b.subs[n] = struct{}{}
	}
	return b
}

// PublishResource makes data available to the platform under name.
func (b *Builder) PublishResource(name, category string, data []byte) *Builder {
	if name == "" {
		b.errs = append(b.errs, errors.New("resource name is required"))
		return b
	}
	b.resources[name] = newResource(category, data)
	return b
}

// Callback registers a callback that tracked taskings can resume. Registering
// any callback turns on interactive tasking.
func (b *Builder) Callback(name string, cb Callback) *Builder {
	switch {
	case name == "":
		b.errs = append(b.errs, errors.New("callback name is required"))
	case cb == nil:
		b.errs = append(b.errs, fmt.Errorf("nil callback %s", name))
	default:
		if _, dup := b.callbacks[name]; dup {
			b.errs = append(b.errs, fmt.Errorf("callback %s registered twice", name))
			return b
		}
		b.callbacks[name] = cb
	}
	return b
}

// Build returns the Service. The Builder can keep being used afterwards
// without affecting it.
func (b *Builder) Build() (*Service, error) {
	if b.name == "" {
		b.errs = append(b.errs, errors.New("service name is required"))
	}
	if err := errors.Join(b.errs...); err != nil {
		return nil, err
	}

	s := &Service{
		name:        b.name,
		logger:      slog.Default(),
		newPlatform: RESTPlatform(),
		now:         time.Now,
		handlers:    maps.Clone(b.handlers),
		params:      maps.Clone(b.params),
		resources:   maps.Clone(b.resources),
	}
	for _, opt := range b.opts {
		opt(s)
	}
	s.logger = s.logger.With("service", b.name)
	s.verifier = NewVerifier(b.secret, s.logger)
	s.codec = NewCodec(b.name, b.secret)
	s.scheduler = NewScheduler(s.logger)
	s.startedAt = s.now().Unix()

	subs := maps.Clone(b.subs)
	if len(b.callbacks) > 0 {
		if err := s.enableInteractive(b.callbacks); err != nil {
			return nil, err
		}
		subs["__"+s.codec.Root()] = struct{}{}
	}
	s.subscriptions = slices.Sorted(maps.Keys(subs))

	s.handlers[EventHealth] = s.health
	s.handlers[EventGetResource] = s.getResource

	implemented := make([]string, 0, len(s.handlers))
	for etype := range s.handlers {
		implemented = append(implemented, string(etype))
	}
	slices.Sort(implemented)
	s.implemented = implemented

	s.logger.Info("service built",
		"implemented", len(s.implemented),
		"callbacks", len(s.callbackNames),
		"verification", s.verifier.Enabled())
	return s, nil
}
