// Package skillet loads skillet definitions and executes their snippets, in
// declaration order, against a device, threading captured outputs from each
// snippet into the context of the next.
//
// A Skillet is immutable once built. Every run gets its own Context; one
// Executor (and the device handle behind it) must not be driven by two
// concurrent runs.
package skillet

import "maps"

// Type discriminates what a skillet is meant to do with its snippets.
type Type string

const (
	// TypeTemplate skillets only render text.
	TypeTemplate Type = "template"
	// TypePanos skillets push configuration and op commands to a device.
	TypePanos Type = "panos"
	// TypeApp skillets are render-only and carry no collection label.
	TypeApp Type = "app"
)

// Valid reports whether t is a known skillet type.
func (t Type) Valid() bool {
	switch t {
	case TypeTemplate, TypePanos, TypeApp:
		return true
	}
	return false
}

// Executable reports whether snippets of this type are dispatched to a device.
func (t Type) Executable() bool {
	return t == TypePanos
}

// Defaults applied by Normalize.
const (
	UnknownSkillet    = "Unknown Skillet"
	UnknownVariable   = "Unknown variable"
	UnknownCollection = "Unknown"
	DefaultTypeHint   = "text"
	DefaultType       = TypeTemplate
)

// Variable is one externally settable input of a skillet.
type Variable struct {
	Name        string
	Description string
	TypeHint    string
	Default     any
}

// Definition is the canonical form of a skillet document.
type Definition struct {
	Name        string
	Label       string
	Description string
	Type        Type
	Variables   []Variable
	Labels      map[string]any

	// Snippets holds the snippet definitions as parsed, in execution order.
	Snippets []map[string]any
}

// Collection returns the collection label, or nil when absent.
func (d *Definition) Collection() []string {
	c, _ := d.Labels["collection"].([]string)
	return c
}

// Raw returns d as a generic key/value tree, the shape Normalize accepts.
func (d *Definition) Raw() map[string]any {
	raw := map[string]any{
		"name":  d.Name,
		"label": d.Label,
		"type":  string(d.Type),
	}
	if d.Description != "" {
		raw["description"] = d.Description
	}

	vars := make([]any, 0, len(d.Variables))
	for _, v := range d.Variables {
		m := map[string]any{
			"name":      v.Name,
			"type_hint": v.TypeHint,
			"default":   v.Default,
		}
		if v.Description != "" {
			m["description"] = v.Description
		}
		vars = append(vars, m)
	}
	raw["variables"] = vars

	labels := make(map[string]any, len(d.Labels))
	for k, v := range d.Labels {
		if c, ok := v.([]string); ok && k == "collection" {
			list := make([]any, len(c))
			for i, s := range c {
				list[i] = s
			}
			labels[k] = list
			continue
		}
		labels[k] = v
	}
	raw["labels"] = labels

	snippets := make([]any, 0, len(d.Snippets))
	for _, s := range d.Snippets {
		snippets = append(snippets, maps.Clone(s))
	}
	raw["snippets"] = snippets
	return raw
}

// Context maps variable names to values available to templates during one
// run. Values are strings or structured values captured from results.
type Context map[string]any

// Clone returns a shallow copy of c.
func (c Context) Clone() Context {
	out := make(Context, len(c))
	maps.Copy(out, c)
	return out
}

// Merge returns a copy of c extended with values. A key present in both takes
// the value from values.
func (c Context) Merge(values map[string]any) Context {
	out := c.Clone()
	maps.Copy(out, values)
	return out
}
