package lcservice

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrInvalidJSON is returned when the input is not valid JSON.
var ErrInvalidJSON = errors.New("invalid JSON")

// Inspector examines raw bytes and returns a View for field queries.
type Inspector interface {
	Inspect(raw []byte) (View, error)
}

// View provides field access over an event. Paths use the platform's rule
// syntax: segments separated by "/", e.g. "routing/investigation_id".
type View interface {
	// HasField returns true if the path exists in the event.
	HasField(path string) bool

	// GetString returns the string value at path, or false if not found
	// or not a string.
	GetString(path string) (string, bool)

	// GetBytes returns the raw JSON at path, or false if not found.
	GetBytes(path string) ([]byte, bool)
}

// JSONInspector returns an Inspector that uses gjson for field access.
func JSONInspector() Inspector {
	return jsonInspector{}
}

// ViewOf builds a View over an already decoded event.
func ViewOf(event map[string]any) (View, error) {
	raw, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return JSONInspector().Inspect(raw)
}

type jsonInspector struct{}

func (jsonInspector) Inspect(raw []byte) (View, error) {
	if !gjson.ValidBytes(raw) {
		return nil, ErrInvalidJSON
	}
	return jsonView{raw: raw}, nil
}

type jsonView struct {
	raw []byte
}

func (v jsonView) get(path string) gjson.Result {
	return gjson.GetBytes(v.raw, gjsonPath(path))
}

func (v jsonView) HasField(path string) bool {
	return v.get(path).Exists()
}

func (v jsonView) GetString(path string) (string, bool) {
	r := v.get(path)
	if !r.Exists() {
		return "", false
	}
	if r.Type != gjson.String {
		return "", false
	}
	return r.String(), true
}

func (v jsonView) GetBytes(path string) ([]byte, bool) {
	r := v.get(path)
	if !r.Exists() {
		return nil, false
	}
	return []byte(r.Raw), true
}

var gjsonEscaper = strings.NewReplacer(
	`\`, `\\`,
	".", `\.`,
	"*", `\*`,
	"?", `\?`,
	"|", `\|`,
	"#", `\#`,
	"@", `\@`,
)

// gjsonPath converts a "/"-separated rule path to gjson syntax, escaping
// characters gjson would otherwise interpret.
func gjsonPath(path string) string {
	segs := strings.Split(strings.Trim(path, "/"), "/")
	for i, s := range segs {
		segs[i] = gjsonEscaper.Replace(s)
	}
	return strings.Join(segs, ".")
}
