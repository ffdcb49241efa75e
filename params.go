package lcservice

import (
	"encoding/json"
	"math"
	"slices"
	"sort"

	"github.com/google/uuid"
)

// ParamType is the declared type of a request parameter.
type ParamType string

// Supported parameter types.
const (
	ParamString ParamType = "str"
	ParamInt    ParamType = "int"
	ParamBool   ParamType = "bool"
	ParamEnum   ParamType = "enum"
	ParamUUID   ParamType = "uuid"
)

// ParamDef declares one parameter accepted by "request" events. The
// definitions are reported through health so the platform can render them.
type ParamDef struct {
	Type        ParamType `json:"type"`
	Description string    `json:"desc"`
	Required    bool      `json:"is_required"`

	// Values lists the accepted values of an enum parameter.
	Values []string `json:"values,omitempty"`
}

// validateParams checks data against the declared definitions. Fields that are
// not declared are accepted as-is so older services keep working when the
// platform sends new fields.
func validateParams(defs map[string]ParamDef, data map[string]any) error {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		def, ok := defs[k]
		if !ok {
			continue
		}
		if reason := checkParam(def, data[k]); reason != "" {
			return &ParamError{Param: k, Reason: reason}
		}
	}

	names := make([]string, 0, len(defs))
	for k := range defs {
		names = append(names, k)
	}
	sort.Strings(names)

	for _, k := range names {
		if !defs[k].Required {
			continue
		}
		if _, ok := data[k]; !ok {
			return &ParamError{Param: k, Missing: true}
		}
	}
	return nil
}

func checkParam(def ParamDef, v any) string {
	const wrongType = "wrong data type"

	switch def.Type {
	case ParamString:
		if _, ok := v.(string); !ok {
			return wrongType
		}
	case ParamInt:
		if _, ok := asInt(v); !ok {
			return wrongType
		}
	case ParamBool:
		if _, ok := v.(bool); !ok {
			return wrongType
		}
	case ParamEnum:
		s, ok := v.(string)
		if !ok || !slices.Contains(def.Values, s) {
			return "enum has invalid value"
		}
	case ParamUUID:
		s, ok := v.(string)
		if !ok {
			return wrongType
		}
		if _, err := uuid.Parse(s); err != nil {
			return "invalid uuid"
		}
	default:
		return wrongType
	}
	return ""
}

// asInt accepts the integral number forms a decoded payload can hold.
func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}
