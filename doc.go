// Package lcservice implements the service side of the platform's extension
// protocol.
//
// The platform calls a service with one signed JSON envelope per event:
// installation, detections, periodic ticks, ad-hoc requests and new sensor
// notifications. The package authenticates the envelope, routes it to the
// handler for its event type, keeps in-flight accounting, resumes
// asynchronous work started earlier and answers with a response telling the
// platform whether to retry.
//
// # Quick Start
//
// Build a service and give it one handler per event type it cares about:
//
//	svc, err := lcservice.NewBuilder("my-service", secret).
//	    OnOrgInstall(func(ctx context.Context, api platform.API, oid string, req lcservice.Request) (any, error) {
//	        return true, nil
//	    }).
//	    OnOrgPer(lcservice.Every24Hours, audit).
//	    Build()
//
// Then hand it envelopes, usually through the server or natsrpc packages:
//
//	resp, err := svc.ProcessSigned(ctx, body, r.Header.Get(lcservice.SignatureHeader))
//
// # Responses
//
// Handlers return (any, error). The value is normalized:
//
//	true               success
//	false              failure, the platform does not retry
//	nil                failure, the platform retries later
//	Response           used as given
//
// Returning nil is the way to say "not finished, call again": useful when
// the work depends on state that is still being fetched and the envelope
// deadline is close.
//
// Errors and panics are faults. They are logged with their stack and
// reported as retryable failures with the diagnostic in data.exception.
//
// # Interactive Tasking
//
// A service can send tasks to a sensor and have the result delivered to a
// named callback, on whichever instance of the service receives it. The
// callback, job and context travel inside the investigation id of the
// tasking; nothing is stored server-side.
//
//	b.Callback("packages", func(ctx context.Context, api platform.API, oid string, res lcservice.Resumed) (any, error) {
//	    res.Job.Narrate("packages listed", false)
//	    return lcservice.Success(nil).WithJobs(res.Job), nil
//	})
//
//	err := svc.Task(ctx, api, sid, []string{"os_packages"}, lcservice.Tracking{
//	    Callback: "packages",
//	    Job:      job,
//	    Context:  "anything",
//	})
//
// Registering a callback installs a detection & response rule in every
// organization on install and every hour, and removes it on uninstall. The
// rule reports tasking results back to the service as a detection, which is
// routed to the callback. Other detections reach the service's own detection
// handler unchanged.
//
// # Hooks
//
// Hooks observe the dispatch flow without touching handler code:
//
//	lcservice.NewBuilder(name, secret,
//	    lcservice.WithOnComplete(func(ctx context.Context, etype lcservice.EventType, r lcservice.Response, d time.Duration) {
//	        log.Printf("%s success=%v in %v", etype, r.Success, d)
//	    }),
//	)
//
// The metrics package provides Prometheus collectors wired through hooks.
//
// # Background Work
//
// Scheduler runs delayed and recurring tasks and is drained by
// Service.Shutdown. ParallelExec and ParallelExecKeyed fan work out with a
// concurrency bound and a per-item timeout, returning every outcome.
package lcservice
