package lcservice

import (
	"context"

	"github.com/bjaus/lcservice/platform"
)

// Handler processes one event for one organization.
//
// api is nil when the envelope carried no credentials, as for global
// periodic events. The returned value is normalized:
//
//	true               success, empty data
//	false              failure, no retry
//	nil                failure, retry requested
//	Response/*Response used as given
//	anything else      success, with a warning logged
//
// A non-nil error, like a panic, is a fault: it is logged and reported as a
// retryable failure carrying the diagnostic in data.exception.
type Handler func(ctx context.Context, api platform.API, oid string, req Request) (any, error)

// Resumed is what a Callback receives when the result of a tracked tasking
// comes back.
type Resumed struct {
	// Event is the detection reporting the result.
	Event map[string]any

	// SID is the sensor that produced the result.
	SID string

	// Job is the job attached when tasking, or nil.
	Job *Job

	// Context is the free-form text attached when tasking, verbatim.
	Context string
}

// Callback resumes work started with Service.Task. Its return value is
// normalized like a Handler's.
type Callback func(ctx context.Context, api platform.API, oid string, res Resumed) (any, error)

// PlatformFactory builds the per-call platform handle.
type PlatformFactory func(oid, jwt, investigationID string) (platform.API, error)

// RESTPlatform returns a PlatformFactory backed by platform.Client.
func RESTPlatform(opts ...platform.ClientOption) PlatformFactory {
	return func(oid, jwt, investigationID string) (platform.API, error) {
		c, err := platform.New(oid, jwt, investigationID, opts...)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}
