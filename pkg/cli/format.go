// Package cli provides shared formatting helpers for the skilletloader CLI:
// ANSI color wrappers, status coloring and the column-aligned Table.
package cli

import (
	"os"
	"strings"
)

// colorEnabled is false when NO_COLOR is set (no-color.org) or after
// SetColor(false).
var colorEnabled = os.Getenv("NO_COLOR") == ""

// SetColor turns ANSI output on or off for the whole process.
func SetColor(on bool) { colorEnabled = on }

const reset = "\033[0m"

func paint(code, s string) string {
	if !colorEnabled {
		return s
	}
	return code + s + reset
}

func Green(s string) string  { return paint("\033[32m", s) }
func Yellow(s string) string { return paint("\033[33m", s) }
func Red(s string) string    { return paint("\033[31m", s) }
func Bold(s string) string   { return paint("\033[1m", s) }
func Dim(s string) string    { return paint("\033[2m", s) }

// statusColors maps the status words printed by runs, steps and audit
// events to a color. Matching is case-insensitive.
var statusColors = map[string]func(string) string{
	"ok":       Green,
	"success":  Green,
	"captured": Green,
	"ready":    Green,
	"skipped":  Yellow,
	"dry-run":  Yellow,
	"pending":  Dim,
	"failed":   Red,
	"failure":  Red,
	"error":    Red,
}

// Status colors a status word. Unknown words are returned unchanged.
func Status(s string) string {
	if fn, ok := statusColors[strings.ToLower(s)]; ok {
		return fn(s)
	}
	return s
}

// DotPad pads name with a space and dots out to width, so that the status
// column after it lines up: DotPad("zones", 10) is "zones ....".
func DotPad(name string, width int) string {
	if width <= 0 || len(name) >= width-1 {
		return name
	}
	return name + " " + strings.Repeat(".", width-len(name)-1)
}
