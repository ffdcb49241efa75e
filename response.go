package lcservice

import (
	"context"
	"encoding/json"
	"fmt"
)

// Response is the result of one envelope. Handlers may return a Response (or
// *Response) to control every field; see Handler for the shortcut values.
type Response struct {
	Success bool
	// Retry asks the platform to deliver the envelope again. Only meaningful
	// when Success is false.
	Retry bool
	Error string
	Data  map[string]any
	Jobs  []*Job
}

type wireResponse struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data"`
	Retry   *bool          `json:"retry,omitempty"`
	Error   string         `json:"error,omitempty"`
	Jobs    []*Job         `json:"jobs,omitempty"`
}

// MarshalJSON emits the wire shape: data is always an object and retry is
// present exactly when success is false.
func (r Response) MarshalJSON() ([]byte, error) {
	w := wireResponse{
		Success: r.Success,
		Data:    r.Data,
		Error:   r.Error,
		Jobs:    r.Jobs,
	}
	if w.Data == nil {
		w.Data = map[string]any{}
	}
	if !r.Success {
		retry := r.Retry
		w.Retry = &retry
	}
	return json.Marshal(w)
}

// Success reports success with optional data.
func Success(data map[string]any) Response {
	if data == nil {
		data = map[string]any{}
	}
	return Response{Success: true, Data: data}
}

// Failure reports a failure that should not be retried.
func Failure(err error) Response {
	resp := Response{Data: map[string]any{}}
	if err != nil {
		resp.Error = err.Error()
	}
	return resp
}

// RetryLater reports that the work could not be finished in this call and the
// platform should deliver the envelope again.
func RetryLater() Response {
	return Response{Retry: true, Data: map[string]any{}}
}

// NotImplemented is the canonical answer for event types without a handler.
func NotImplemented() Response {
	return Response{Data: map[string]any{"error": ErrNotImplemented.Error()}}
}

// WithJobs returns a copy of r reporting jobs.
func (r Response) WithJobs(jobs ...*Job) Response {
	r.Jobs = append(append([]*Job(nil), r.Jobs...), jobs...)
	return r
}

// normalize maps a handler's return value to a Response:
//
//	true       success
//	false      failure, no retry
//	nil        failure, retry
//	Response   as given
//	other      success, with a warning
func (s *Service) normalize(ctx context.Context, etype EventType, v any) Response {
	switch r := v.(type) {
	case nil:
		return RetryLater()
	case bool:
		if r {
			return Success(nil)
		}
		return Failure(nil)
	case Response:
		return s.finalize(ctx, etype, r)
	case *Response:
		if r == nil {
			return RetryLater()
		}
		return s.finalize(ctx, etype, *r)
	default:
		s.logger.WarnContext(ctx, "no valid response from handler, assuming success",
			"etype", string(etype), "type", fmt.Sprintf("%T", v))
		return Success(nil)
	}
}

// finalize checks that every job can be reported; a job that cannot is a
// handler fault.
func (s *Service) finalize(ctx context.Context, etype EventType, r Response) Response {
	var jobs []*Job
	for _, j := range r.Jobs {
		if j == nil {
			continue
		}
		if _, err := j.Snapshot(); err != nil {
			return s.fault(ctx, etype, err)
		}
		jobs = append(jobs, j)
	}
	r.Jobs = jobs
	if r.Data == nil {
		r.Data = map[string]any{}
	}
	if r.Success {
		r.Retry = false
	}
	return r
}
