package render

import (
	"regexp"
	"sort"
	"strings"
)

var (
	rawBlockRe = regexp.MustCompile(`(?s)\{%-?\s*raw\s*-?%\}.*?\{%-?\s*endraw\s*-?%\}`)
	commentRe  = regexp.MustCompile(`(?s)\{#.*?#\}`)
	blockRe    = regexp.MustCompile(`(?s)\{\{-?(.*?)-?\}\}|\{%-?(.*?)-?%\}`)
	stringRe   = regexp.MustCompile(`'(?:[^'\\]|\\.)*'|"(?:[^"\\]|\\.)*"`)
	tokenRe    = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*|\d+(?:\.\d+)?|==|!=|<=|>=|\S`)
	identRe    = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// keywords are names the Jinja grammar reserves inside expressions.
var keywords = map[string]bool{
	"and": true, "or": true, "not": true, "in": true, "is": true,
	"if": true, "else": true, "recursive": true,
	"true": true, "false": true, "True": true, "False": true,
	"none": true, "None": true,
	"loop": true, "self": true, "caller": true, "varargs": true, "kwargs": true,
}

// guardTests are the tests that make a following use of an undefined name
// intentional.
var guardTests = map[string]bool{"defined": true, "undefined": true, "none": true}

type scan struct {
	refs    map[string]bool
	bound   map[string]bool
	guarded map[string]bool
}

// ReferencedVariables returns the sorted context names tmpl reads, from both
// {{ }} expressions and {% %} statements. Names bound inside the template
// (for targets, set, with, macro), names only tested with "is defined" or
// given a default filter, and engine globals such as range are excluded.
func ReferencedVariables(tmpl string) []string {
	tmpl = rawBlockRe.ReplaceAllString(tmpl, "")
	tmpl = commentRe.ReplaceAllString(tmpl, "")

	s := &scan{refs: map[string]bool{}, bound: map[string]bool{}, guarded: map[string]bool{}}
	for _, m := range blockRe.FindAllStringSubmatch(tmpl, -1) {
		if strings.HasPrefix(m[0], "{{") {
			s.expr(tokenize(m[1]))
			continue
		}
		s.statement(tokenize(m[2]))
	}

	var names []string
	for name := range s.refs {
		if s.bound[name] || s.guarded[name] || environment.Context.Has(name) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func tokenize(src string) []string {
	return tokenRe.FindAllString(stringRe.ReplaceAllString(src, " 0 "), -1)
}

func (s *scan) statement(toks []string) {
	if len(toks) == 0 {
		return
	}
	tag, rest := toks[0], toks[1:]
	switch {
	case tag == "else" || strings.HasPrefix(tag, "end"):
	case tag == "for":
		in := indexOf(rest, "in")
		if in < 0 {
			return
		}
		s.bind(rest[:in])
		s.expr(rest[in+1:])
	case tag == "set":
		eq := indexOf(rest, "=")
		if eq < 0 {
			if len(rest) > 0 {
				s.bound[rest[0]] = true
			}
			return
		}
		s.bind(rest[:eq])
		s.expr(rest[eq+1:])
	case tag == "with":
		for i := 0; i+1 < len(rest); i++ {
			if rest[i+1] == "=" {
				s.bound[rest[i]] = true
			}
		}
		s.expr(rest)
	case tag == "macro" || tag == "import" || tag == "from":
		s.bind(rest)
	case tag == "call" || tag == "include" || tag == "extends" || tag == "block" || tag == "filter":
	default:
		s.expr(rest)
	}
}

func (s *scan) bind(toks []string) {
	for _, t := range toks {
		if identRe.MatchString(t) && !keywords[t] {
			s.bound[t] = true
		}
	}
}

func (s *scan) expr(toks []string) {
	for i, tok := range toks {
		if !identRe.MatchString(tok) || keywords[tok] {
			continue
		}
		if i > 0 {
			prev := toks[i-1]
			// attribute, filter name or test name
			if prev == "." || prev == "|" || prev == "is" {
				continue
			}
			if prev == "not" && i > 1 && toks[i-2] == "is" {
				continue
			}
		}
		// keyword argument name
		if i+1 < len(toks) && toks[i+1] == "=" {
			continue
		}
		if guardedAt(toks, i) {
			s.guarded[tok] = true
			continue
		}
		s.refs[tok] = true
	}
}

// guardedAt reports whether the name at toks[i] is followed by a definedness
// test or a default filter.
func guardedAt(toks []string, i int) bool {
	if i+2 >= len(toks) {
		return false
	}
	switch toks[i+1] {
	case "is":
		j := i + 2
		if toks[j] == "not" && j+1 < len(toks) {
			j++
		}
		return guardTests[toks[j]]
	case "|":
		return toks[i+2] == "default" || toks[i+2] == "d"
	}
	return false
}

func indexOf(toks []string, want string) int {
	for i, t := range toks {
		if t == want {
			return i
		}
	}
	return -1
}
