package platform

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Rule is a detection & response rule.
type Rule struct {
	Name      string           `json:"name" yaml:"-"`
	Namespace string           `json:"namespace" yaml:"namespace"`
	Detect    map[string]any   `json:"detect" yaml:"detect"`
	Respond   []map[string]any `json:"respond" yaml:"respond"`
}

// ReportAction returns the response action reporting a detection named name.
func ReportAction(name string) map[string]any {
	return map[string]any{"action": "report", "name": name}
}

// YAML renders the rule the way rules are stored in the platform, keyed by
// name.
func (r Rule) YAML() ([]byte, error) {
	b, err := yaml.Marshal(map[string]Rule{r.Name: r})
	if err != nil {
		return nil, fmt.Errorf("render rule %s: %w", r.Name, err)
	}
	return b, nil
}
