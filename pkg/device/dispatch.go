package device

import (
	"fmt"
	"regexp"
	"strings"
)

// Request is one verb-specific device invocation.
type Request struct {
	Kind      Kind
	XPath     string
	Element   string // set, edit, override
	Where     string // move
	Dst       string // move, optional
	NewName   string // rename, clone
	XPathFrom string // clone
	Cmd       string // op

	// Snippet names the originating snippet for logs and errors.
	Snippet string
}

// String returns a short description for logs.
func (r *Request) String() string {
	if r.Kind == KindOp {
		return fmt.Sprintf("op %s", r.Cmd)
	}
	return fmt.Sprintf("%s %s", r.Kind, r.XPath)
}

// BuildRequest maps rendered snippet parameters onto the request for kind.
// Both new_name and newname are accepted for rename/clone; new_name wins when
// both are present.
func BuildRequest(kind Kind, params map[string]string) (*Request, error) {
	if _, ok := requiredFields[kind]; !ok {
		return nil, fmt.Errorf("invalid cmd type %q", kind)
	}

	req := &Request{Kind: kind, Snippet: params["name"]}

	if kind == KindOp {
		cmd := strings.TrimSpace(params["cmd_str"])
		if cmd == "" {
			return nil, fmt.Errorf("op requires cmd_str")
		}
		req.Cmd = cmd
		return req, nil
	}

	xpath, ok := params["xpath"]
	if !ok {
		return nil, fmt.Errorf("%s requires xpath", kind)
	}
	req.XPath = strings.Join(strings.Split(strings.TrimSpace(xpath), "\n"), "")

	switch kind {
	case KindSet, KindEdit, KindOverride:
		element, ok := params["element"]
		if !ok {
			return nil, fmt.Errorf("%s requires element", kind)
		}
		req.Element = SanitizeElement(strings.TrimSpace(element))
	case KindMove:
		where, ok := params["where"]
		if !ok {
			return nil, fmt.Errorf("move requires where")
		}
		req.Where = where
		req.Dst = params["dst"]
	case KindRename, KindClone:
		if v, ok := params["new_name"]; ok {
			req.NewName = v
		} else if v, ok := params["newname"]; ok {
			req.NewName = v
		} else {
			return nil, fmt.Errorf("%s requires new_name or newname", kind)
		}
		if kind == KindClone {
			from, ok := params["xpath_from"]
			if !ok {
				return nil, fmt.Errorf("clone requires xpath_from")
			}
			req.XPathFrom = from
		}
	}

	return req, nil
}

var (
	newlineIndentRe = regexp.MustCompile(`\n\s+`)
	newlineRe       = regexp.MustCompile(`\n`)
)

// SanitizeElement removes newlines and the indentation that follows them
// from an XML element before it is sent to the device.
func SanitizeElement(element string) string {
	element = newlineIndentRe.ReplaceAllString(element, "")
	return newlineRe.ReplaceAllString(element, "")
}
