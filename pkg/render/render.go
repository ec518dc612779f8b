// Package render wraps a Jinja2 template engine for skillet payloads, xpaths
// and guard clauses.
//
// Templates use Jinja syntax ({{ var }}, {% if %}, filters, tests such as
// "is defined"). Undefined variables render as empty strings; the renderer
// logs a warning naming each missing key so incomplete inputs are still
// diagnosable.
package render

import (
	"fmt"
	"strings"

	"github.com/nikolalohinski/gonja/v2/builtins"
	"github.com/nikolalohinski/gonja/v2/config"
	"github.com/nikolalohinski/gonja/v2/exec"
	"github.com/nikolalohinski/gonja/v2/loaders"

	"github.com/newtron-network/skilletloader/pkg/util"
)

// Guard results produced by Condition's wrapper template.
const (
	guardTrue  = "True"
	guardFalse = "False"
)

// templateID is the in-memory path every template is parsed under.
const templateID = "/snippet"

// environment is the builtin Jinja environment plus md5_hash. The builtin
// filter set is copied, not extended in place.
var environment = &exec.Environment{
	Context: exec.EmptyContext().
		Update(builtins.GlobalFunctions).
		Update(builtins.GlobalVariables),
	Filters: exec.NewFilterSet(map[string]exec.FilterFunction{
		"md5_hash": filterMD5Hash,
	}).Update(builtins.Filters),
	Tests:             builtins.Tests,
	ControlStructures: builtins.ControlStructures,
	Methods:           builtins.Methods,
}

// jinjaConfig matches a default jinja2.Environment: no autoescaping (XML
// payloads depend on it) and lenient undefined.
var jinjaConfig = config.New()

func filterMD5Hash(_ *exec.Evaluator, in *exec.Value, _ *exec.VarArgs) *exec.Value {
	if in.IsError() {
		return in
	}
	hash, err := MD5Crypt(in.String())
	if err != nil {
		return exec.ValueError(fmt.Errorf("md5_hash: %w", err))
	}
	return exec.AsValue(hash)
}

// Renderer renders template strings against a variable context. It holds no
// state between calls and is safe for concurrent use.
type Renderer struct {
	// Quiet suppresses undefined-variable warnings.
	Quiet bool
}

// New returns a Renderer.
func New() *Renderer {
	return &Renderer{}
}

// Render renders tmpl against vars. Literal strings are returned unchanged.
func (r *Renderer) Render(tmpl string, vars map[string]any) (string, error) {
	if !strings.Contains(tmpl, "{{") && !strings.Contains(tmpl, "{%") {
		return tmpl, nil
	}

	loader, err := loaders.NewMemoryLoader(map[string]string{templateID: tmpl})
	if err != nil {
		return "", fmt.Errorf("template load: %w", err)
	}
	t, err := exec.NewTemplate(templateID, jinjaConfig, loader, environment)
	if err != nil {
		return "", fmt.Errorf("template parse: %w", err)
	}

	if !r.Quiet {
		warnUndefined(tmpl, vars)
	}

	out, err := t.ExecuteToString(exec.NewContext(vars))
	if err != nil {
		return "", fmt.Errorf("template render: %w", err)
	}
	return out, nil
}

// Condition evaluates a boolean Jinja expression (for example
// "'a' not in vars" or "x is defined") by rendering it inside an if/else
// wrapper. It returns true only when the wrapper renders "True".
func (r *Renderer) Condition(expr string, vars map[string]any) (bool, error) {
	if strings.TrimSpace(expr) == "" {
		return true, nil
	}
	wrapped := "{% if " + expr + " %}" + guardTrue + "{% else %}" + guardFalse + "{% endif %}"
	out, err := r.Render(wrapped, vars)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) == guardTrue, nil
}

func warnUndefined(tmpl string, vars map[string]any) {
	for _, name := range ReferencedVariables(tmpl) {
		if _, ok := vars[name]; ok {
			continue
		}
		util.WithField("variable", name).Warn("render: undefined variable renders as empty")
	}
}
