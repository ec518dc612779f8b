package skillet

import (
	"fmt"
	"maps"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/newtron-network/skilletloader/pkg/capture"
	"github.com/newtron-network/skilletloader/pkg/device"
	"github.com/newtron-network/skilletloader/pkg/render"
	"github.com/newtron-network/skilletloader/pkg/util"
)

// DefaultSplitThreshold is the rendered payload length, in characters, above
// which a payload is split into one request per top-level entry.
const DefaultSplitThreshold = 12000

// unrenderedFields are control fields passed through RenderMetadata as-is.
// The element is rendered separately by Template.
var unrenderedFields = map[string]bool{
	"cmd":     true,
	"file":    true,
	"when":    true,
	"element": true,
}

// Snippet is one validated snippet definition. It is immutable: rendering
// produces an Instance and never changes the Snippet.
type Snippet struct {
	Name       string
	Kind       device.Kind // empty for render-only skillets
	When       string
	OutputType string
	Outputs    []capture.Output

	payload  string
	metadata map[string]string
	renderer *render.Renderer
}

// NewSnippet validates def against the contract of its cmd kind and returns
// the snippet. Snippets of render-only skillets require name and file;
// device snippets require the fields of their kind. Missing fields yield a
// *util.ConfigurationError.
func NewSnippet(def map[string]any, typ Type, r *render.Renderer) (*Snippet, error) {
	if r == nil {
		r = render.New()
	}
	name, _ := def["name"].(string)
	if name == "" {
		return nil, util.NewConfigurationError("", "name", "snippet name is required")
	}

	s := &Snippet{
		Name:     name,
		metadata: make(map[string]string, len(def)),
		renderer: r,
	}
	for k, v := range def {
		if str, ok := scalarString(v); ok {
			s.metadata[k] = str
		}
	}

	if typ.Executable() {
		cmd, _ := def["cmd"].(string)
		kind, err := device.ParseKind(cmd)
		if err != nil {
			return nil, &util.ConfigurationError{Snippet: name, Field: "cmd", Err: err}
		}
		s.Kind = kind
		s.metadata["cmd"] = string(kind)
		if err := checkRequired(name, def, kind.RequiredFields(), "cmd "+string(kind)); err != nil {
			return nil, err
		}
		if kind.CarriesElement() {
			s.payload = s.metadata["element"]
		}
	} else {
		if err := checkRequired(name, def, [][]string{{"file"}}, string(typ)+" snippets"); err != nil {
			return nil, err
		}
		s.payload = s.metadata["element"]
	}

	if w, ok := def["when"]; ok && w != nil {
		when, ok := scalarString(w)
		if !ok {
			return nil, util.NewConfigurationError(name, "when",
				fmt.Sprintf("must be a scalar expression, got %T", w))
		}
		s.When = when
	}

	if ot, ok := def["output_type"]; ok && ot != nil {
		outputType, ok := ot.(string)
		if !ok {
			return nil, util.NewConfigurationError(name, "output_type",
				fmt.Sprintf("must be a string, got %T", ot))
		}
		s.OutputType = outputType
		if !capture.ValidType(s.OutputType) {
			return nil, util.NewConfigurationError(name, "output_type",
				fmt.Sprintf("unsupported output type %v (valid: xml, json, base64)", ot))
		}
	}
	outputs, err := parseOutputs(name, def["outputs"])
	if err != nil {
		return nil, err
	}
	s.Outputs = outputs

	return s, nil
}

func checkRequired(snippet string, def map[string]any, groups [][]string, what string) error {
	var missing []string
	for _, group := range groups {
		found := false
		for _, key := range group {
			if _, ok := def[key]; ok {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, strings.Join(group, "|"))
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return util.NewConfigurationError(snippet, strings.Join(missing, ", "), "required for "+what)
}

func parseOutputs(snippet string, v any) ([]capture.Output, error) {
	if v == nil {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, util.NewConfigurationError(snippet, "outputs", "must be a list")
	}
	outputs := make([]capture.Output, 0, len(list))
	for i, item := range list {
		m, ok := stringMap(item)
		if !ok {
			return nil, util.NewConfigurationError(snippet, "outputs", fmt.Sprintf("entry %d is not a mapping", i))
		}
		name, _ := m["name"].(string)
		if name == "" {
			return nil, util.NewConfigurationError(snippet, "outputs", fmt.Sprintf("entry %d has no name", i))
		}
		pattern, _ := scalarString(m["capture_pattern"])
		outputs = append(outputs, capture.Output{Name: name, CapturePattern: pattern})
	}
	return outputs, nil
}

// scalarString formats YAML scalars as strings. Lists and mappings are
// reported as not scalar.
func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case bool, int, int64, uint64, float64:
		return fmt.Sprint(t), true
	}
	return "", false
}

// Field returns the unrendered value of a metadata field.
func (s *Snippet) Field(key string) string {
	return s.metadata[key]
}

// Payload returns the unrendered payload template.
func (s *Snippet) Payload() string {
	return s.payload
}

// RenderMetadata renders every templated metadata field against ctx. The
// cmd, file, when and element fields are returned unrendered.
func (s *Snippet) RenderMetadata(ctx Context) (map[string]string, error) {
	out := make(map[string]string, len(s.metadata))
	for k, v := range s.metadata {
		if unrenderedFields[k] {
			out[k] = v
			continue
		}
		rendered, err := s.renderer.Render(v, ctx)
		if err != nil {
			return nil, &util.ConfigurationError{Snippet: s.Name, Field: k, Err: err}
		}
		out[k] = rendered
	}
	return out, nil
}

// ShouldExecute evaluates the when guard against ctx. A snippet with no guard
// always executes. A guard that fails to render is a configuration error.
func (s *Snippet) ShouldExecute(ctx Context) (bool, error) {
	if strings.TrimSpace(s.When) == "" {
		return true, nil
	}
	ok, err := s.renderer.Condition(s.When, ctx)
	if err != nil {
		return false, &util.ConfigurationError{Snippet: s.Name, Field: "when", Err: err}
	}
	return ok, nil
}

// Template renders the payload against ctx.
func (s *Snippet) Template(ctx Context) (string, error) {
	out, err := s.renderer.Render(s.payload, ctx)
	if err != nil {
		return "", &util.ConfigurationError{Snippet: s.Name, Field: "element", Err: err}
	}
	return out, nil
}

// Render renders metadata and payload against ctx into a new Instance.
func (s *Snippet) Render(ctx Context) (*Instance, error) {
	params, err := s.RenderMetadata(ctx)
	if err != nil {
		return nil, err
	}
	return s.instance(params, ctx)
}

// instance renders the payload and pairs it with already rendered metadata.
func (s *Snippet) instance(params map[string]string, ctx Context) (*Instance, error) {
	payload, err := s.Template(ctx)
	if err != nil {
		return nil, err
	}
	inst := &Instance{
		Snippet: s,
		XPath:   params["xpath"],
		Params:  params,
	}
	inst.setPayload(payload)
	return inst, nil
}

// Entries returns the name attribute of each top-level entry element of the
// unrendered payload.
func (s *Snippet) Entries() ([]string, error) {
	if strings.TrimSpace(s.payload) == "" {
		return nil, nil
	}
	names, err := entryNames(s.payload)
	if err != nil {
		return nil, fmt.Errorf("snippet %s: %w", s.Name, err)
	}
	return names, nil
}

// Instance is a snippet rendered against one context.
type Instance struct {
	Snippet *Snippet
	XPath   string
	Payload string

	// Params holds the rendered metadata handed to the device channel. Its
	// element entry always equals Payload for kinds that carry an element.
	Params map[string]string
}

func (i *Instance) setPayload(payload string) {
	i.Payload = payload
	if i.Snippet != nil && i.Snippet.Kind.CarriesElement() {
		i.Params["element"] = payload
	}
}

// Name returns the snippet name.
func (i *Instance) Name() string {
	return i.Snippet.Name
}

// Clone returns a copy of i that shares no mutable state with it.
func (i *Instance) Clone() *Instance {
	return &Instance{
		Snippet: i.Snippet,
		XPath:   i.XPath,
		Payload: i.Payload,
		Params:  maps.Clone(i.Params),
	}
}

// Split returns i unchanged when its payload is at most threshold characters
// long. Otherwise it returns one clone per top-level entry element, each
// carrying that entry alone as payload. The pieces are not checked again.
// A threshold <= 0 means DefaultSplitThreshold.
func (i *Instance) Split(threshold int) ([]*Instance, error) {
	if threshold <= 0 {
		threshold = DefaultSplitThreshold
	}
	size := utf8.RuneCountInString(i.Payload)
	if size <= threshold {
		return []*Instance{i}, nil
	}

	entries, err := parseEntries(i.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: snippet %s: parsing oversized payload: %v", util.ErrUnsplittable, i.Name(), err)
	}
	if len(entries) == 0 {
		return nil, &util.UnsplittableSnippetError{Snippet: i.Name(), Size: size}
	}

	util.WithField("snippet", i.Name()).Debugf("Splitting %d character payload into %d entries", size, len(entries))
	parts := make([]*Instance, 0, len(entries))
	for _, e := range entries {
		payload, err := elementString(e)
		if err != nil {
			return nil, err
		}
		part := i.Clone()
		part.setPayload(payload)
		parts = append(parts, part)
	}
	return parts, nil
}

// SelectEntry returns a clone of i whose payload is narrowed to the top-level
// entry with the given name attribute. An empty name returns i unchanged.
func (i *Instance) SelectEntry(name string) (*Instance, error) {
	if name == "" {
		return i, nil
	}
	entries, err := parseEntries(i.Payload)
	if err != nil {
		return nil, fmt.Errorf("snippet %s: parsing payload: %w", i.Name(), err)
	}
	for _, e := range entries {
		if e.SelectAttrValue("name", "") != name {
			continue
		}
		payload, err := elementString(e)
		if err != nil {
			return nil, err
		}
		out := i.Clone()
		out.setPayload(payload)
		return out, nil
	}
	return nil, &util.EntryNotFoundError{Snippet: i.Name(), Entry: name}
}

// sortedKeys returns the keys of m in sorted order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
