package skillet

import (
	"fmt"

	"github.com/beevik/etree"
)

// wrapRoot is the synthetic element wrapped around a payload so a sequence of
// sibling elements parses as one document.
const wrapRoot = "root"

// parseEntries parses payload as a sequence of sibling elements and returns
// its top-level entry children.
func parseEntries(payload string) ([]*etree.Element, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString("<" + wrapRoot + ">" + payload + "</" + wrapRoot + ">"); err != nil {
		return nil, err
	}
	return doc.Root().SelectElements("entry"), nil
}

// elementString serializes a detached copy of el.
func elementString(el *etree.Element) (string, error) {
	doc := etree.NewDocument()
	doc.SetRoot(el.Copy())
	s, err := doc.WriteToString()
	if err != nil {
		return "", fmt.Errorf("serializing entry: %w", err)
	}
	return s, nil
}

// entryNames returns the name attribute of each top-level entry in payload.
func entryNames(payload string) ([]string, error) {
	entries, err := parseEntries(payload)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.SelectAttrValue("name", ""))
	}
	return names, nil
}
