package lcservice

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bjaus/lcservice/platform"
)

func TestCodec(t *testing.T) {
	c := NewCodec("inventory", "s3cret")

	t.Run("root", func(t *testing.T) {
		assert.Equal(t, "svc-inventory-ex", c.Root())
	})

	t.Run("key is the md5 prefix of secret and name", func(t *testing.T) {
		// md5("s3cret/foo")
		assert.Equal(t, "1e2c07de", c.Key("foo"))
		assert.Len(t, c.Key("bar"), 8)
		assert.NotEqual(t, c.Key("foo"), NewCodec("inventory", "other").Key("foo"))
	})

	t.Run("round trip", func(t *testing.T) {
		tests := []struct {
			name  string
			jobID string
			ctx   string
		}{
			{name: "plain", jobID: "J1", ctx: "ctx"},
			{name: "context with slashes", jobID: "J1", ctx: "a/b//c/"},
			{name: "no job", jobID: "", ctx: "ctx"},
			{name: "empty context", jobID: "J1", ctx: ""},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				id := c.Encode("foo", tt.jobID, tt.ctx)
				got, err := c.Decode(id)
				require.NoError(t, err)
				assert.Equal(t, c.Key("foo"), got.CallbackKey)
				assert.Equal(t, tt.jobID, got.JobID)
				assert.Equal(t, tt.ctx, got.Context)
			})
		}
	})

	t.Run("foreign", func(t *testing.T) {
		for _, id := range []string{"", "inv-123", "svc-other-ex/abc/j/c", "svc-inventory-extra/abc/j/c"} {
			_, err := c.Decode(id)
			assert.ErrorIs(t, err, ErrForeignCorrelation, id)
		}
	})

	t.Run("malformed", func(t *testing.T) {
		for _, id := range []string{"svc-inventory-ex", "svc-inventory-ex/abc", "svc-inventory-ex/abc/j"} {
			_, err := c.Decode(id)
			assert.ErrorIs(t, err, ErrMalformedCorrelation, id)
		}
	})
}

func detection(invID, eventType string) Envelope {
	return Envelope{
		Version:   ProtocolVersion,
		OID:       "org-1",
		JWT:       "token",
		MessageID: "m-1",
		EventType: EventDetection,
		Data: map[string]any{
			"detect": map[string]any{
				"routing": map[string]any{
					"investigation_id": invID,
					"event_type":       eventType,
					"sid":              "sid-1",
				},
				"event": map[string]any{"packages": []any{"openssl"}},
			},
		},
	}
}

func TestInteractive(t *testing.T) {
	type resumed struct {
		oid string
		res Resumed
	}

	setup := func(t *testing.T, b *Builder) (*Service, *fakeAPI, *[]resumed, *int) {
		t.Helper()
		api := &fakeAPI{}
		var got []resumed
		plain := 0
		svc, err := b.
			With(WithLogger(quietLogger()), WithPlatformFactory(fixedPlatform(api, nil))).
			OnDetection(func(context.Context, platform.API, string, Request) (any, error) {
				plain++
				return true, nil
			}).
			Callback("packages", func(_ context.Context, _ platform.API, oid string, res Resumed) (any, error) {
				got = append(got, resumed{oid: oid, res: res})
				return Success(map[string]any{"resumed": true}), nil
			}).
			Build()
		require.NoError(t, err)
		return svc, api, &got, &plain
	}

	t.Run("subscribes to its own detection", func(t *testing.T) {
		svc, _, _, _ := setup(t, NewBuilder("inv", "s").SubscribeDetection("other"))
		resp := svc.Process(context.Background(), Envelope{EventType: EventHealth})
		mtd := resp.Data["mtd"].(map[string]any)
		assert.Equal(t, []string{"__svc-inv-ex", "other"}, mtd["detect_subscriptions"])
		assert.Contains(t, mtd["callbacks"], "org_install")
		assert.Contains(t, mtd["callbacks"], "org_uninstall")
		assert.Contains(t, mtd["callbacks"], "org_per_1h")
	})

	t.Run("task then resume", func(t *testing.T) {
		svc, api, got, plain := setup(t, NewBuilder("inv", "s"))
		job := NewJob()

		require.NoError(t, svc.Task(context.Background(), api, "sid-1", []string{"os_packages"}, Tracking{
			Callback: "packages",
			Job:      job,
			Context:  "ctx/with/slashes",
		}))
		require.Len(t, api.tasks, 1)
		invID := api.tasks[0].invID
		assert.True(t, strings.HasPrefix(invID, "svc-inv-ex/"))

		resp := svc.Process(context.Background(), detection(invID, "OS_PACKAGES_REP"))
		assert.True(t, resp.Success)
		assert.Equal(t, true, resp.Data["resumed"])
		assert.Zero(t, *plain)

		require.Len(t, *got, 1)
		r := (*got)[0]
		assert.Equal(t, "org-1", r.oid)
		assert.Equal(t, "sid-1", r.res.SID)
		assert.Equal(t, "ctx/with/slashes", r.res.Context)
		require.NotNil(t, r.res.Job)
		assert.Equal(t, job.ID(), r.res.Job.ID())
		assert.Contains(t, r.res.Event, "event")
	})

	t.Run("no job", func(t *testing.T) {
		svc, api, got, _ := setup(t, NewBuilder("inv", "s"))
		require.NoError(t, svc.Task(context.Background(), api, "sid-1", []string{"os_version"}, Tracking{Callback: "packages"}))

		svc.Process(context.Background(), detection(api.tasks[0].invID, "OS_VERSION_REP"))
		require.Len(t, *got, 1)
		assert.Nil(t, (*got)[0].res.Job)
	})

	t.Run("unknown callback name is rejected when tasking", func(t *testing.T) {
		svc, api, _, _ := setup(t, NewBuilder("inv", "s"))
		err := svc.Task(context.Background(), api, "sid-1", []string{"os_version"}, Tracking{Callback: "nope"})
		assert.ErrorIs(t, err, ErrUnknownCallback)
		assert.Empty(t, api.tasks)
	})

	t.Run("foreign investigation goes to the plain handler", func(t *testing.T) {
		svc, _, got, plain := setup(t, NewBuilder("inv", "s"))
		for _, id := range []string{"", "user-investigation", "svc-other-ex/k/j/c", "svc-inv-extra/k/j/c"} {
			resp := svc.Process(context.Background(), detection(id, "NEW_PROCESS"))
			assert.True(t, resp.Success, id)
		}
		assert.Equal(t, 4, *plain)
		assert.Empty(t, *got)
	})

	t.Run("tasking echo goes to the plain handler", func(t *testing.T) {
		svc, _, got, plain := setup(t, NewBuilder("inv", "s"))
		id := svc.Codec().Encode("packages", "", "x")
		svc.Process(context.Background(), detection(id, "CLOUD_NOTIFICATION"))
		assert.Equal(t, 1, *plain)
		assert.Empty(t, *got)
	})

	t.Run("unknown callback key is not retried", func(t *testing.T) {
		svc, _, got, _ := setup(t, NewBuilder("inv", "s"))
		resp := svc.Process(context.Background(), detection("svc-inv-ex/ffffffff/J1/ctx", "OS_PACKAGES_REP"))
		assert.False(t, resp.Success)
		assert.False(t, resp.Retry)
		assert.Contains(t, resp.Error, "unknown callback")
		assert.Empty(t, *got)
	})

	t.Run("malformed id is not retried", func(t *testing.T) {
		svc, _, _, _ := setup(t, NewBuilder("inv", "s"))
		resp := svc.Process(context.Background(), detection("svc-inv-ex/abc", "OS_PACKAGES_REP"))
		assert.False(t, resp.Success)
		assert.False(t, resp.Retry)
	})

	t.Run("no detection handler", func(t *testing.T) {
		svc, err := NewBuilder("inv", "s", WithLogger(quietLogger()), WithPlatformFactory(fixedPlatform(&fakeAPI{}, nil))).
			Callback("packages", noopCallback).
			Build()
		require.NoError(t, err)
		resp := svc.Process(context.Background(), detection("other", "NEW_PROCESS"))
		assert.Equal(t, "not implemented", resp.Data["error"])
	})
}

func TestInteractiveRule(t *testing.T) {
	t.Run("pushed on install after the service's handler", func(t *testing.T) {
		var order []string
		api := &fakeAPI{}
		svc, err := NewBuilder("inv", "s", WithLogger(quietLogger()), WithPlatformFactory(fixedPlatform(api, nil))).
			OnOrgInstall(func(context.Context, platform.API, string, Request) (any, error) {
				order = append(order, "handler")
				return true, nil
			}).
			Callback("packages", noopCallback).
			Build()
		require.NoError(t, err)

		env := Envelope{EventType: EventOrgInstall, OID: "org-1", JWT: "token"}
		resp := svc.Process(context.Background(), env)
		assert.True(t, resp.Success)
		assert.Equal(t, []string{"handler"}, order)

		require.Len(t, api.pushed, 1)
		rule := api.pushed[0]
		assert.Equal(t, "svc-inv-ex", rule.Name)
		assert.Equal(t, InteractiveNamespace, rule.Namespace)
		assert.Equal(t, []map[string]any{{"action": "report", "name": "__svc-inv-ex"}}, rule.Respond)
		assert.Equal(t, map[string]any{
			"op": "and",
			"rules": []map[string]any{
				{"op": "starts with", "path": "routing/investigation_id", "value": "svc-inv-ex"},
				{"op": "is", "not": true, "path": "routing/event_type", "value": "CLOUD_NOTIFICATION"},
			},
		}, rule.Detect)
	})

	t.Run("pushed hourly even without a handler", func(t *testing.T) {
		api := &fakeAPI{}
		svc, err := NewBuilder("inv", "s", WithLogger(quietLogger()), WithPlatformFactory(fixedPlatform(api, nil))).
			Callback("packages", noopCallback).
			Build()
		require.NoError(t, err)

		resp := svc.Process(context.Background(), Envelope{EventType: OrgPer(Every1Hour), OID: "org-1", JWT: "token"})
		assert.True(t, resp.Success)
		assert.Len(t, api.pushed, 1)
	})

	t.Run("push failure is retried", func(t *testing.T) {
		api := &fakeAPI{pushErr: errors.New("forbidden")}
		svc, err := NewBuilder("inv", "s", WithLogger(quietLogger()), WithPlatformFactory(fixedPlatform(api, nil))).
			Callback("packages", noopCallback).
			Build()
		require.NoError(t, err)

		resp := svc.Process(context.Background(), Envelope{EventType: EventOrgInstall, OID: "org-1", JWT: "token"})
		assert.False(t, resp.Success)
		assert.True(t, resp.Retry)
	})

	t.Run("deleted on uninstall, failures only logged", func(t *testing.T) {
		api := &fakeAPI{}
		svc, err := NewBuilder("inv", "s", WithLogger(quietLogger()), WithPlatformFactory(fixedPlatform(api, nil))).
			Callback("packages", noopCallback).
			Build()
		require.NoError(t, err)

		env := Envelope{EventType: EventOrgUninstall, OID: "org-1", JWT: "token"}
		assert.True(t, svc.Process(context.Background(), env).Success)
		assert.Equal(t, []string{"svc-inv-ex"}, api.deleted)

		api.deleteErr = errors.New("gone")
		assert.True(t, svc.Process(context.Background(), env).Success)
	})

	t.Run("rule matches its own results only", func(t *testing.T) {
		svc, err := NewBuilder("inv", "s", WithLogger(quietLogger())).Callback("packages", noopCallback).Build()
		require.NoError(t, err)
		rule, ok := svc.InteractiveRule()
		require.True(t, ok)

		guard := interactiveGuard(svc.Codec().Root())
		match := func(inv, etype string) bool {
			v, err := ViewOf(map[string]any{"routing": map[string]any{"investigation_id": inv, "event_type": etype}})
			require.NoError(t, err)
			return guard.Match(v)
		}
		assert.True(t, match("svc-inv-ex/k/j/c", "OS_PACKAGES_REP"))
		assert.False(t, match("svc-inv-ex/k/j/c", "CLOUD_NOTIFICATION"))
		assert.False(t, match("other", "OS_PACKAGES_REP"))
		assert.Equal(t, guard.Rule(), rule.Detect)
	})

	t.Run("absent without callbacks", func(t *testing.T) {
		svc, err := NewBuilder("inv", "s", WithLogger(quietLogger())).Build()
		require.NoError(t, err)
		_, ok := svc.InteractiveRule()
		assert.False(t, ok)
	})
}
