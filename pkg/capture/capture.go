// Package capture extracts named values from a command result so later
// snippets can reference them.
package capture

import (
	"encoding/base64"
	"fmt"

	"github.com/newtron-network/skilletloader/pkg/util"
)

// Output types a snippet may declare.
const (
	TypeXML    = "xml"
	TypeJSON   = "json"
	TypeBase64 = "base64"
)

// SystemKey is the context key that receives the error text when a JSON
// capture fails in lenient mode.
const SystemKey = "system"

// ValidType reports whether t is a supported output type. The empty string
// (no capture) is valid.
func ValidType(t string) bool {
	switch t {
	case "", TypeXML, TypeJSON, TypeBase64:
		return true
	}
	return false
}

// Output is one named capture declared by a snippet.
type Output struct {
	Name           string `yaml:"name" json:"name"`
	CapturePattern string `yaml:"capture_pattern" json:"capture_pattern"`
}

// Capturer evaluates output specs against raw results.
type Capturer struct {
	// SoftJSONErrors records JSON parse and query failures under SystemKey
	// instead of failing the run.
	SoftJSONErrors bool
}

// Capture returns the values named by outputs, extracted from raw according to
// outputType. A path matching exactly one node yields a scalar; zero or
// several matches yield a list. With no output type or no outputs it returns
// an empty map.
func (c *Capturer) Capture(snippet, outputType, raw string, outputs []Output) (map[string]any, error) {
	captured := make(map[string]any)
	if outputType == "" || len(outputs) == 0 {
		return captured, nil
	}
	log := util.WithField("snippet", snippet)

	switch outputType {
	case TypeXML:
		if err := captureXML(raw, outputs, captured); err != nil {
			return nil, &util.CaptureError{Snippet: snippet, OutputType: outputType, Err: err}
		}
	case TypeJSON:
		if err := captureJSON(raw, outputs, captured); err != nil {
			if !c.SoftJSONErrors {
				return nil, &util.CaptureError{Snippet: snippet, OutputType: outputType, Err: err}
			}
			log.Warnf("JSON capture failed, recording under %q: %v", SystemKey, err)
			return map[string]any{SystemKey: err.Error()}, nil
		}
	case TypeBase64:
		encoded := base64.StdEncoding.EncodeToString([]byte(raw))
		for _, o := range outputs {
			if o.Name == "" {
				continue
			}
			captured[o.Name] = encoded
		}
	default:
		return nil, &util.CaptureError{
			Snippet:    snippet,
			OutputType: outputType,
			Err:        fmt.Errorf("unsupported output type %q", outputType),
		}
	}

	log.Debugf("Captured %d output(s)", len(captured))
	return captured, nil
}

// cardinality folds a match list: one match is returned as a scalar,
// anything else as the list itself.
func cardinality[T any](matches []T) any {
	if len(matches) == 1 {
		return matches[0]
	}
	if matches == nil {
		return []T{}
	}
	return matches
}
