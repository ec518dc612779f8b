package capture

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/itchyny/gojq"
)

func captureJSON(raw string, outputs []Output, captured map[string]any) error {
	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return fmt.Errorf("parsing result: %w", err)
	}

	for _, o := range outputs {
		if o.Name == "" {
			continue
		}
		values, err := queryJSON(doc, o.CapturePattern)
		if err != nil {
			return fmt.Errorf("output %s: %w", o.Name, err)
		}
		captured[o.Name] = cardinality(values)
	}
	return nil
}

// queryJSON returns the values the pattern matches. Path patterns are resolved
// through jq's path() so an explicit null is a match and a missing key is
// not. Expressions that are not paths (".a | length") fall back to their
// plain jq output.
func queryJSON(doc any, pattern string) ([]any, error) {
	expr := jqExpression(pattern)
	if paths, err := runJQ(doc, "path("+expr+")"); err == nil {
		values, resolved := resolvePaths(doc, paths)
		if resolved {
			return values, nil
		}
	}

	values, err := runJQ(doc, expr)
	if err != nil {
		return nil, fmt.Errorf("invalid capture pattern %q: %w", pattern, err)
	}
	return values, nil
}

func runJQ(doc any, expr string) ([]any, error) {
	query, err := gojq.Parse(expr)
	if err != nil {
		return nil, err
	}

	var values []any
	iter := query.Run(doc)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, ok := v.(error); ok {
			if err, ok := err.(*gojq.HaltError); ok && err.Value() == nil {
				break
			}
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

// resolvePaths looks up each jq path in doc, dropping paths that do not
// exist. It reports false when a path holds a component it cannot walk
// (slices), leaving the caller to evaluate the expression directly.
func resolvePaths(doc any, paths []any) ([]any, bool) {
	var values []any
	for _, p := range paths {
		path, ok := p.([]any)
		if !ok {
			return nil, false
		}
		v, found, ok := lookupPath(doc, path)
		if !ok {
			return nil, false
		}
		if found {
			values = append(values, v)
		}
	}
	return values, true
}

func lookupPath(doc any, path []any) (value any, found, ok bool) {
	cur := doc
	for _, key := range path {
		switch k := key.(type) {
		case string:
			m, isMap := cur.(map[string]any)
			if !isMap {
				return nil, false, true
			}
			if cur, found = m[k]; !found {
				return nil, false, true
			}
		case int, float64:
			list, isList := cur.([]any)
			if !isList {
				return nil, false, true
			}
			i := toIndex(k)
			if i < 0 {
				i += len(list)
			}
			if i < 0 || i >= len(list) {
				return nil, false, true
			}
			cur = list[i]
		default:
			return nil, false, false
		}
	}
	return cur, true, true
}

func toIndex(k any) int {
	if f, ok := k.(float64); ok {
		return int(f)
	}
	return k.(int)
}

var recursiveKeyRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*`)

// jqExpression translates a JSONPath-style pattern ($.a.b[*].c, $..key) to
// the equivalent jq expression. Patterns that already start with "." are
// passed through as jq.
func jqExpression(pattern string) string {
	p := strings.TrimSpace(pattern)
	if p == "" || p == "$" {
		return "."
	}
	if strings.HasPrefix(p, ".") && !strings.HasPrefix(p, "..") {
		return p
	}
	p = strings.TrimPrefix(p, "$")
	p = strings.ReplaceAll(p, "[*]", "[]")
	p = strings.ReplaceAll(p, "['", `["`)
	p = strings.ReplaceAll(p, "']", `"]`)

	parts := strings.Split(p, "..")
	head := parts[0]
	if !strings.HasPrefix(head, ".") {
		head = "." + head
	}

	expr := head
	for _, seg := range parts[1:] {
		key := recursiveKeyRe.FindString(seg)
		if key == "" {
			expr += " | .. | ." + seg
			continue
		}
		expr += fmt.Sprintf(` | .. | objects | select(has(%q)) | .%s`, key, seg)
	}
	return expr
}
