package lcservice

import (
	"context"
	"sync"

	"github.com/bjaus/lcservice/platform"
)

type taskCall struct {
	sid   string
	tasks []string
	invID string
}

// fakeAPI records platform calls.
type fakeAPI struct {
	oid   string
	invID string

	mu        sync.Mutex
	tasks     []taskCall
	pushed    []platform.Rule
	deleted   []string
	pushErr   error
	deleteErr error
}

func (f *fakeAPI) OID() string             { return f.oid }
func (f *fakeAPI) InvestigationID() string { return f.invID }

func (f *fakeAPI) Task(_ context.Context, sid string, tasks []string, invID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, taskCall{sid: sid, tasks: tasks, invID: invID})
	return nil
}

func (f *fakeAPI) PushRule(_ context.Context, rule platform.Rule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pushErr != nil {
		return f.pushErr
	}
	f.pushed = append(f.pushed, rule)
	return nil
}

func (f *fakeAPI) DeleteRule(_ context.Context, name, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, name)
	return nil
}

// fixedPlatform returns a factory handing out api and recording the
// investigation ids it was asked for.
func fixedPlatform(api *fakeAPI, invIDs *[]string) PlatformFactory {
	var mu sync.Mutex
	return func(oid, _ string, invID string) (platform.API, error) {
		mu.Lock()
		defer mu.Unlock()
		if invIDs != nil {
			*invIDs = append(*invIDs, invID)
		}
		api.oid = oid
		api.invID = invID
		return api, nil
	}
}

func handlerReturning(v any, err error) Handler {
	return func(context.Context, platform.API, string, Request) (any, error) {
		return v, err
	}
}
