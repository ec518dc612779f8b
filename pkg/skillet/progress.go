package skillet

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/newtron-network/skilletloader/pkg/cli"
)

// Progress receives lifecycle callbacks during a run.
type Progress interface {
	RunStart(res *Result, snippets []*Snippet)
	SnippetStart(name string, index, total int)
	SnippetEnd(step Step, index, total int)
	RunEnd(res *Result)
	CommitEnd(res *Result)
}

type nopProgress struct{}

func (nopProgress) RunStart(*Result, []*Snippet)  {}
func (nopProgress) SnippetStart(string, int, int) {}
func (nopProgress) SnippetEnd(Step, int, int)     {}
func (nopProgress) RunEnd(*Result)                {}
func (nopProgress) CommitEnd(*Result)             {}

// ConsoleProgress is an append-only terminal progress reporter. It never
// rewrites lines, so output is safe for pipes and CI logs.
type ConsoleProgress struct {
	W       io.Writer
	Verbose bool

	dotWidth int
}

// NewConsoleProgress creates a ConsoleProgress writing to stdout.
func NewConsoleProgress(verbose bool) *ConsoleProgress {
	return &ConsoleProgress{W: os.Stdout, Verbose: verbose}
}

func (p *ConsoleProgress) RunStart(res *Result, snippets []*Snippet) {
	maxName := 0
	for _, s := range snippets {
		if len(s.Name) > maxName {
			maxName = len(s.Name)
		}
	}
	p.dotWidth = maxName + 6

	mode := ""
	if res.DryRun {
		mode = cli.Yellow(" (dry run)")
	}
	fmt.Fprintf(p.W, "\nskillet %s: %d snippets, device: %s%s\n\n", cli.Bold(res.Skillet), len(snippets), res.Device, mode)
}

func (p *ConsoleProgress) SnippetStart(name string, index, total int) {
	if p.Verbose {
		fmt.Fprintf(p.W, "  [%d/%d]  %s\n", index+1, total, name)
	}
}

func (p *ConsoleProgress) SnippetEnd(step Step, index, total int) {
	tag := fmt.Sprintf("[%d/%d]", index+1, total)
	padded := cli.DotPad(step.Snippet, p.dotWidth)

	line := fmt.Sprintf("  %-7s %s %s", tag, padded, cli.Status(string(step.Status)))
	if step.Status != StepSkipped {
		line += fmt.Sprintf("  (%s)", formatDuration(step.Duration))
	}
	if step.Parts > 1 {
		line += cli.Dim(fmt.Sprintf("  %d parts", step.Parts))
	}
	fmt.Fprintln(p.W, line)

	if step.Status == StepFailed && step.Error != "" {
		fmt.Fprintf(p.W, "          %s\n", cli.Dim(step.Error))
	}
	if p.Verbose && len(step.Outputs) > 0 {
		fmt.Fprintf(p.W, "          captured: %s\n", strings.Join(step.Outputs, ", "))
	}
}

func (p *ConsoleProgress) RunEnd(res *Result) {
	counts := res.Counts()

	fmt.Fprintf(p.W, "\n---\n")
	fmt.Fprintf(p.W, "skillet %s: %d snippets", res.Skillet, len(res.Steps))

	parts := []string{}
	if n := counts[StepCaptured]; n > 0 {
		parts = append(parts, cli.Green(fmt.Sprintf("%d applied", n)))
	}
	if n := counts[StepSkipped]; n > 0 {
		parts = append(parts, cli.Yellow(fmt.Sprintf("%d skipped", n)))
	}
	if n := counts[StepFailed]; n > 0 {
		parts = append(parts, cli.Red(fmt.Sprintf("%d failed", n)))
	}
	if n := counts[StepPending]; n > 0 {
		parts = append(parts, cli.Dim(fmt.Sprintf("%d not run", n)))
	}
	if len(parts) > 0 {
		fmt.Fprintf(p.W, ": %s", strings.Join(parts, ", "))
	}
	fmt.Fprintf(p.W, "  (%s)\n", formatDuration(res.Finished.Sub(res.Started)))

	if res.Status == RunFailure && res.Err != nil {
		fmt.Fprintf(p.W, "\n  %s %s: %v\n", cli.Red("FAILED"), res.ErrorKind(), res.Err)
	}
	fmt.Fprintln(p.W)
}

func (p *ConsoleProgress) CommitEnd(res *Result) {
	if res.Committed {
		fmt.Fprintf(p.W, "commit: %s  %s\n", cli.Green("OK"), cli.Dim(res.CommitMessage))
		return
	}
	fmt.Fprintf(p.W, "commit: %s  %v\n", cli.Red("FAILED"), res.Err)
	fmt.Fprintln(p.W, cli.Dim("  configuration applied by this run remains staged on the device"))
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	m := int(d.Minutes())
	s := int(d.Seconds()) % 60
	if s == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}
