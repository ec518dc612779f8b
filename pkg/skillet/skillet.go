package skillet

import (
	"fmt"

	"github.com/newtron-network/skilletloader/pkg/render"
	"github.com/newtron-network/skilletloader/pkg/util"
)

// Skillet is an ordered collection of validated snippets plus the variable
// contract that seeds each run's context.
type Skillet struct {
	Definition *Definition

	// Dir is the directory the definition was loaded from, if any.
	Dir string

	snippets []*Snippet
	renderer *render.Renderer
}

// New validates every snippet of def. Any invalid snippet fails the whole
// skillet before a device is touched.
func New(def *Definition, r *render.Renderer) (*Skillet, error) {
	if r == nil {
		r = render.New()
	}
	s := &Skillet{Definition: def, renderer: r}

	seen := make(map[string]bool, len(def.Snippets))
	for i, sd := range def.Snippets {
		snip, err := NewSnippet(sd, def.Type, r)
		if err != nil {
			if ce, ok := err.(*util.ConfigurationError); ok {
				ce.Skillet = def.Name
				if ce.Snippet == "" {
					ce.Snippet = fmt.Sprintf("#%d", i+1)
				}
			}
			return nil, err
		}
		if seen[snip.Name] {
			util.WithSkillet(def.Name).Warnf("Duplicate snippet name %q", snip.Name)
		}
		seen[snip.Name] = true
		s.snippets = append(s.snippets, snip)
	}
	return s, nil
}

// Name returns the skillet name.
func (s *Skillet) Name() string { return s.Definition.Name }

// Type returns the skillet type.
func (s *Skillet) Type() Type { return s.Definition.Type }

// Variables returns the declared variables.
func (s *Skillet) Variables() []Variable { return s.Definition.Variables }

// Snippets returns the snippets in execution order.
func (s *Skillet) Snippets() []*Snippet {
	return append([]*Snippet(nil), s.snippets...)
}

// Snippet returns the named snippet, or nil.
func (s *Skillet) Snippet(name string) *Snippet {
	for _, snip := range s.snippets {
		if snip.Name == name {
			return snip
		}
	}
	return nil
}

// NewContext seeds a run context from the declared variables. Each variable
// takes its value from input when present and its default otherwise. Keys
// of input that are not declared variables are ignored.
func (s *Skillet) NewContext(input map[string]string) Context {
	ctx := make(Context, len(s.Definition.Variables))
	for _, v := range s.Definition.Variables {
		if val, ok := input[v.Name]; ok {
			ctx[v.Name] = val
			continue
		}
		ctx[v.Name] = v.Default
	}
	return ctx
}

// RenderAll renders every snippet whose guard passes against ctx, in order.
// It never touches a device and is the only way to run render-only skillets.
func (s *Skillet) RenderAll(ctx Context) ([]*Instance, error) {
	var out []*Instance
	for _, snip := range s.snippets {
		ok, err := snip.ShouldExecute(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			util.WithSnippet(s.Name(), snip.Name).Debug("Skipping snippet")
			continue
		}
		inst, err := snip.Render(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, nil
}
