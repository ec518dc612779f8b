package skillet

import (
	"fmt"
)

// Normalize repairs a loosely typed skillet document into a Definition. It
// never fails: missing or wrongly typed fields are replaced with defaults and
// each repair is described in the returned warnings. Normalize is
// idempotent: Normalize(d.Raw()) yields d again.
func Normalize(raw any) (*Definition, []string) {
	var warnings []string
	warn := func(format string, args ...any) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	}

	doc, ok := stringMap(raw)
	if !ok {
		if raw != nil {
			warn("skillet document is a %T, not a mapping; using an empty definition", raw)
		}
		doc = map[string]any{}
	}

	def := &Definition{
		Name:  stringField(doc, "name", UnknownSkillet, warn),
		Label: stringField(doc, "label", UnknownSkillet, warn),
	}
	if d, ok := doc["description"].(string); ok {
		def.Description = d
	}

	typ := Type(stringField(doc, "type", string(DefaultType), warn))
	if !typ.Valid() {
		warn("unknown skillet type %q; using %q", typ, DefaultType)
		typ = DefaultType
	}
	def.Type = typ

	def.Variables = normalizeVariables(doc["variables"], warn)
	def.Labels = normalizeLabels(doc["labels"], typ, warn)
	def.Snippets = normalizeSnippets(doc["snippets"], warn)

	return def, warnings
}

func stringField(doc map[string]any, key, fallback string, warn func(string, ...any)) string {
	v, present := doc[key]
	if !present || v == nil {
		warn("%s is missing; using %q", key, fallback)
		return fallback
	}
	s, ok := v.(string)
	if !ok || s == "" {
		warn("%s is not a non-empty string; using %q", key, fallback)
		return fallback
	}
	return s
}

func normalizeVariables(v any, warn func(string, ...any)) []Variable {
	vars := []Variable{}
	if v == nil {
		return vars
	}
	list, ok := v.([]any)
	if !ok {
		warn("variables is a %T, not a list; ignoring", v)
		return vars
	}

	for i, item := range list {
		m, ok := stringMap(item)
		if !ok {
			warn("removing invalid variable definition %d (%T)", i, item)
			continue
		}
		variable := Variable{
			Name:     UnknownVariable,
			TypeHint: DefaultTypeHint,
			Default:  "",
		}
		if name, ok := m["name"].(string); ok && name != "" {
			variable.Name = name
		} else {
			warn("variable %d has no name; using %q", i, UnknownVariable)
		}
		if hint, ok := m["type_hint"].(string); ok && hint != "" {
			variable.TypeHint = hint
		}
		if d, ok := m["default"]; ok && d != nil {
			variable.Default = d
		}
		if desc, ok := m["description"].(string); ok {
			variable.Description = desc
		}
		vars = append(vars, variable)
	}
	return vars
}

func normalizeLabels(v any, typ Type, warn func(string, ...any)) map[string]any {
	labels := map[string]any{}
	if v != nil {
		m, ok := stringMap(v)
		if !ok {
			warn("labels is a %T, not a mapping; ignoring", v)
		} else {
			for k, val := range m {
				labels[k] = val
			}
		}
	}

	switch c := labels["collection"].(type) {
	case nil:
		delete(labels, "collection")
		if typ != TypeApp {
			labels["collection"] = []string{UnknownCollection}
		}
	case string:
		labels["collection"] = []string{c}
	case []string:
		labels["collection"] = append([]string(nil), c...)
	case []any:
		coll := make([]string, 0, len(c))
		for _, item := range c {
			if item == nil {
				continue
			}
			coll = append(coll, fmt.Sprint(item))
		}
		labels["collection"] = coll
	default:
		warn("collection label is a %T; promoting to a list", c)
		labels["collection"] = []string{fmt.Sprint(c)}
	}
	return labels
}

func normalizeSnippets(v any, warn func(string, ...any)) []map[string]any {
	snippets := []map[string]any{}
	if v == nil {
		return snippets
	}
	list, ok := v.([]any)
	if !ok {
		warn("snippets is a %T, not a list; ignoring", v)
		return snippets
	}
	for i, item := range list {
		m, ok := stringMap(item)
		if !ok {
			warn("removing invalid snippet definition %d (%T)", i, item)
			continue
		}
		snippets = append(snippets, m)
	}
	return snippets
}

// stringMap converts a decoded mapping to map[string]any. Non-string keys
// are formatted with fmt.Sprint.
func stringMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[k] = val
		}
		return out, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	case Context:
		return stringMap(map[string]any(m))
	}
	return nil, false
}
