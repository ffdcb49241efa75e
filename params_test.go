package lcservice

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testParams = map[string]ParamDef{
	"sid":    {Type: ParamUUID, Description: "sensor to inspect", Required: true},
	"action": {Type: ParamEnum, Values: []string{"list", "kill"}, Required: true},
	"limit":  {Type: ParamInt},
	"force":  {Type: ParamBool},
	"note":   {Type: ParamString},
	"odd":    {Type: "float"},
}

func TestRequestParams(t *testing.T) {
	svc, err := NewBuilder("svc", "s", WithLogger(quietLogger())).
		RequestParams(testParams).
		OnRequest(handlerReturning(true, nil)).
		Build()
	require.NoError(t, err)

	valid := func() map[string]any {
		return map[string]any{
			"sid":    "8cbe27f4-bfa1-4afb-ba19-138cd51389cd",
			"action": "list",
		}
	}

	tests := []struct {
		name    string
		mutate  func(map[string]any)
		success bool
		err     string
	}{
		{name: "valid", mutate: func(map[string]any) {}, success: true},
		{name: "extra undeclared fields", mutate: func(d map[string]any) { d["whatever"] = []any{1, 2} }, success: true},
		{name: "all optional fields", mutate: func(d map[string]any) {
			d["limit"] = float64(10)
			d["force"] = true
			d["note"] = "hi"
		}, success: true},
		{name: "missing required", mutate: func(d map[string]any) { delete(d, "action") }, err: "missing parameter action"},
		{name: "wrong type", mutate: func(d map[string]any) { d["limit"] = "ten" }, err: "invalid parameter limit: wrong data type"},
		{name: "fractional int", mutate: func(d map[string]any) { d["limit"] = 1.5 }, err: "invalid parameter limit: wrong data type"},
		{name: "bool is not int", mutate: func(d map[string]any) { d["limit"] = true }, err: "invalid parameter limit: wrong data type"},
		{name: "bad enum", mutate: func(d map[string]any) { d["action"] = "reboot" }, err: "invalid parameter action: enum has invalid value"},
		{name: "bad uuid", mutate: func(d map[string]any) { d["sid"] = "sensor-1" }, err: "invalid parameter sid: invalid uuid"},
		{name: "unknown declared type", mutate: func(d map[string]any) { d["odd"] = 1.5 }, err: "invalid parameter odd: wrong data type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := valid()
			tt.mutate(data)
			resp := svc.Process(context.Background(), Envelope{Version: 1, EventType: EventRequest, Data: data})
			assert.Equal(t, tt.success, resp.Success)
			assert.False(t, resp.Retry)
			assert.Equal(t, tt.err, resp.Error)
		})
	}

	t.Run("only request events are checked", func(t *testing.T) {
		svc, err := NewBuilder("svc", "s", WithLogger(quietLogger())).
			RequestParams(testParams).
			OnNewSensor(handlerReturning(true, nil)).
			Build()
		require.NoError(t, err)
		resp := svc.Process(context.Background(), Envelope{Version: 1, EventType: EventNewSensor})
		assert.True(t, resp.Success)
	})
}

func TestAsInt(t *testing.T) {
	tests := []struct {
		in   any
		want int64
		ok   bool
	}{
		{in: 3, want: 3, ok: true},
		{in: int64(-4), want: -4, ok: true},
		{in: float64(7), want: 7, ok: true},
		{in: json.Number("12"), want: 12, ok: true},
		{in: json.Number("1.2")},
		{in: 2.5},
		{in: "3"},
		{in: nil},
	}
	for _, tt := range tests {
		got, ok := asInt(tt.in)
		assert.Equal(t, tt.ok, ok, "%#v", tt.in)
		assert.Equal(t, tt.want, got, "%#v", tt.in)
	}
}
