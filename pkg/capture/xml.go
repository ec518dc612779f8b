package capture

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"
)

func captureXML(raw string, outputs []Output, captured map[string]any) error {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(raw); err != nil {
		return fmt.Errorf("parsing result: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return fmt.Errorf("result has no root element")
	}

	for _, o := range outputs {
		if o.Name == "" {
			continue
		}
		values, err := queryXML(doc, root, o.CapturePattern)
		if err != nil {
			return fmt.Errorf("output %s: %w", o.Name, err)
		}
		captured[o.Name] = cardinality(values)
	}
	return nil
}

// queryXML evaluates an ElementTree-style path. Relative paths are resolved
// against the root element, absolute ones against the document. A trailing
// /text() is accepted and ignored; a trailing /@attr selects attribute values.
func queryXML(doc *etree.Document, root *etree.Element, pattern string) ([]string, error) {
	pattern = strings.TrimSpace(pattern)
	pattern = strings.TrimSuffix(pattern, "/text()")

	attr := ""
	if i := strings.LastIndex(pattern, "/@"); i >= 0 && !strings.ContainsAny(pattern[i:], "[]") {
		attr = pattern[i+2:]
		pattern = pattern[:i]
	}
	if pattern == "" {
		pattern = "."
	}

	path, err := etree.CompilePath(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid capture pattern %q: %w", pattern, err)
	}

	var elems []*etree.Element
	if strings.HasPrefix(pattern, "/") {
		elems = doc.FindElementsPath(path)
	} else {
		elems = root.FindElementsPath(path)
	}

	var values []string
	for _, el := range elems {
		if attr != "" {
			if a := el.SelectAttr(attr); a != nil {
				values = append(values, a.Value)
			}
			continue
		}
		values = append(values, el.Text())
	}
	return values, nil
}
