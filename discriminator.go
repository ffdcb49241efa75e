package lcservice

// Discriminator is a predicate over an event. The same expression is
// evaluated locally with Match and handed to the platform, through Rule, as
// the detect section of a detection & response rule.
type Discriminator interface {
	Match(v View) bool
	Rule() map[string]any
}

// HasFields returns a Discriminator that matches when all paths exist.
func HasFields(paths ...string) Discriminator {
	return hasFields{paths: paths}
}

type hasFields struct {
	paths []string
}

func (d hasFields) Match(v View) bool {
	for _, p := range d.paths {
		if !v.HasField(p) {
			return false
		}
	}
	return true
}

func (d hasFields) Rule() map[string]any {
	if len(d.paths) == 1 {
		return map[string]any{"op": "exists", "path": d.paths[0]}
	}
	rules := make([]map[string]any, 0, len(d.paths))
	for _, p := range d.paths {
		rules = append(rules, map[string]any{"op": "exists", "path": p})
	}
	return map[string]any{"op": "and", "rules": rules}
}

// FieldEquals returns a Discriminator that matches when the path exists
// and equals the given string value.
func FieldEquals(path, value string) Discriminator {
	return fieldEquals{path: path, value: value}
}

type fieldEquals struct {
	path  string
	value string
}

func (d fieldEquals) Match(v View) bool {
	s, ok := v.GetString(d.path)
	return ok && s == d.value
}

func (d fieldEquals) Rule() map[string]any {
	return map[string]any{"op": "is", "path": d.path, "value": d.value}
}

// HasPrefix returns a Discriminator that matches when the string at path
// starts with prefix.
func HasPrefix(path, prefix string) Discriminator {
	return hasPrefix{path: path, prefix: prefix}
}

type hasPrefix struct {
	path   string
	prefix string
}

func (d hasPrefix) Match(v View) bool {
	s, ok := v.GetString(d.path)
	return ok && len(s) >= len(d.prefix) && s[:len(d.prefix)] == d.prefix
}

func (d hasPrefix) Rule() map[string]any {
	return map[string]any{"op": "starts with", "path": d.path, "value": d.prefix}
}

// Not returns a Discriminator that inverts d.
func Not(d Discriminator) Discriminator {
	return not{d: d}
}

type not struct {
	d Discriminator
}

func (d not) Match(v View) bool { return !d.d.Match(v) }

func (d not) Rule() map[string]any {
	r := d.d.Rule()
	out := make(map[string]any, len(r)+1)
	for k, v := range r {
		out[k] = v
	}
	negated, _ := r["not"].(bool)
	if negated {
		delete(out, "not")
	} else {
		out["not"] = true
	}
	return out
}

// And returns a Discriminator that matches when all discriminators match.
func And(ds ...Discriminator) Discriminator {
	return and{ds: ds}
}

type and struct {
	ds []Discriminator
}

func (d and) Match(v View) bool {
	for _, disc := range d.ds {
		if !disc.Match(v) {
			return false
		}
	}
	return true
}

func (d and) Rule() map[string]any {
	return map[string]any{"op": "and", "rules": rules(d.ds)}
}

// Or returns a Discriminator that matches when any discriminator matches.
func Or(ds ...Discriminator) Discriminator {
	return or{ds: ds}
}

type or struct {
	ds []Discriminator
}

func (d or) Match(v View) bool {
	for _, disc := range d.ds {
		if disc.Match(v) {
			return true
		}
	}
	return false
}

func (d or) Rule() map[string]any {
	return map[string]any{"op": "or", "rules": rules(d.ds)}
}

func rules(ds []Discriminator) []map[string]any {
	out := make([]map[string]any, 0, len(ds))
	for _, d := range ds {
		out = append(out, d.Rule())
	}
	return out
}
