package lcservice

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// SignatureHeader carries the hex HMAC-SHA256 of the canonical envelope.
const SignatureHeader = "lc-svc-sig"

// Envelope is one inbound call from the platform.
type Envelope struct {
	Version   int            `json:"version"`
	JWT       string         `json:"jwt,omitempty"`
	OID       string         `json:"oid,omitempty"`
	MessageID string         `json:"mid"`
	Deadline  *float64       `json:"deadline,omitempty"`
	EventType EventType      `json:"etype"`
	Data      map[string]any `json:"data"`
}

// DecodeEnvelope parses a wire envelope. A missing or null data field decodes
// to an empty map.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
	}
	if env.Data == nil {
		env.Data = map[string]any{}
	}
	return env, nil
}

// DeadlineTime returns the absolute deadline, if the envelope carries one.
func (e Envelope) DeadlineTime() (time.Time, bool) {
	if e.Deadline == nil {
		return time.Time{}, false
	}
	sec, frac := math.Modf(*e.Deadline)
	return time.Unix(int64(sec), int64(frac*float64(time.Second))), true
}

// Request is the handler's view of an envelope. Handlers must treat it as
// read-only.
type Request struct {
	EventType EventType
	MessageID string
	Data      map[string]any
}

// String returns the string at key in the request data.
func (r Request) String(key string) (string, bool) {
	s, ok := r.Data[key].(string)
	return s, ok
}

// Bool returns the bool at key in the request data.
func (r Request) Bool(key string) (bool, bool) {
	b, ok := r.Data[key].(bool)
	return b, ok
}

// Int returns the integral number at key in the request data.
func (r Request) Int(key string) (int64, bool) {
	return asInt(r.Data[key])
}

// SID returns the sensor id carried by per-sensor and new_sensor events.
func (r Request) SID() string {
	sid, _ := r.String("sid")
	return sid
}
