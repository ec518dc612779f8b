package skillet

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/newtron-network/skilletloader/pkg/audit"
	"github.com/newtron-network/skilletloader/pkg/capture"
	"github.com/newtron-network/skilletloader/pkg/device"
	"github.com/newtron-network/skilletloader/pkg/util"
)

// StepStatus is the state of one snippet within a run.
type StepStatus string

const (
	StepPending   StepStatus = "PENDING"
	StepSkipped   StepStatus = "SKIPPED"
	StepExecuting StepStatus = "EXECUTING"
	StepCaptured  StepStatus = "CAPTURED"
	StepFailed    StepStatus = "FAILED"
)

// Step records what happened to one snippet.
type Step struct {
	Snippet  string        `json:"snippet"`
	Status   StepStatus    `json:"status"`
	Command  string        `json:"command,omitempty"`
	XPath    string        `json:"xpath,omitempty"`
	Parts    int           `json:"parts,omitempty"`
	Outputs  []string      `json:"outputs,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// RunStatus is the terminal status of a run.
type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunFailure RunStatus = "failure"
)

// Result is the outcome of one skillet run.
type Result struct {
	RunID   string
	Skillet string
	Device  string
	DryRun  bool
	Status  RunStatus
	Err     error
	Steps   []Step

	// Context is the final context, including every captured output.
	Context Context

	Started  time.Time
	Finished time.Time

	Committed     bool
	CommitMessage string
}

// ErrorKind classifies Err (ConfigurationError, DeviceOperationError, ...).
func (r *Result) ErrorKind() string {
	return util.ErrorKind(r.Err)
}

// Counts returns the number of steps in each status.
func (r *Result) Counts() map[StepStatus]int {
	counts := make(map[StepStatus]int)
	for _, s := range r.Steps {
		counts[s.Status]++
	}
	return counts
}

func (r *Result) fail(err error) {
	r.Status = RunFailure
	r.Err = err
	r.Finished = time.Now()
}

// Executor runs skillets against one device. Snippets run strictly in
// declaration order. The first failure aborts the run; snippets already
// applied stay staged on the device.
//
// A payload larger than the split threshold is sent as several requests;
// outputs are captured from every part's response and combined.
//
// An Executor is not safe for concurrent runs: the device handle must not be
// driven by two runs at once.
type Executor struct {
	Device   device.Device
	Capturer *capture.Capturer
	Progress Progress

	// SplitThreshold overrides DefaultSplitThreshold when positive.
	SplitThreshold int

	// Entry, when set, narrows every element payload to the top-level entry
	// with this name before dispatch.
	Entry string

	// Only, when non-empty, restricts the run to the named snippets; the
	// others are skipped.
	Only []string

	// DryRun and User are recorded in audit events.
	DryRun bool
	User   string
}

func (e *Executor) progress() Progress {
	if e.Progress == nil {
		return nopProgress{}
	}
	return e.Progress
}

func (e *Executor) capturer() *capture.Capturer {
	if e.Capturer == nil {
		return &capture.Capturer{}
	}
	return e.Capturer
}

// Execute runs every snippet of s against the device, starting from input.
// The returned Result is never nil; on failure it carries the same error
// that is returned.
//
// Cancelling ctx stops the run before the next snippet. A request already
// sent to the device is allowed to finish.
func (e *Executor) Execute(ctx context.Context, s *Skillet, input Context) (*Result, error) {
	res := &Result{
		RunID:   uuid.NewString(),
		Skillet: s.Name(),
		DryRun:  e.DryRun,
		Status:  RunRunning,
		Started: time.Now(),
		Steps:   make([]Step, len(s.snippets)),
	}
	for i, snip := range s.snippets {
		res.Steps[i] = Step{Snippet: snip.Name, Status: StepPending, Command: string(snip.Kind)}
	}

	vars := Context{}
	if input != nil {
		vars = input.Clone()
	}
	res.Context = vars

	if e.Device == nil {
		err := errors.New("no device configured")
		res.fail(err)
		return res, err
	}
	res.Device = e.Device.Name()

	if !s.Type().Executable() {
		err := &util.ConfigurationError{
			Skillet: s.Name(),
			Field:   "type",
			Reason:  fmt.Sprintf("%s skillets are render-only", s.Type()),
		}
		res.fail(err)
		return res, err
	}

	log := util.WithRun(s.Name(), res.RunID)
	log.Infof("Executing %d snippets against %s", len(s.snippets), res.Device)
	p := e.progress()
	p.RunStart(res, s.Snippets())

	total := len(s.snippets)
	for i, snip := range s.snippets {
		step := &res.Steps[i]
		if err := ctx.Err(); err != nil {
			e.abort(res, err)
			return res, err
		}

		p.SnippetStart(snip.Name, i, total)
		start := time.Now()
		next, err := e.runSnippet(ctx, res, s, snip, step, vars)
		step.Duration = time.Since(start)
		if err != nil {
			step.Status = StepFailed
			step.Error = err.Error()
			p.SnippetEnd(*step, i, total)
			log.WithField("snippet", snip.Name).Errorf("Run aborted: %v", err)
			e.abort(res, err)
			return res, err
		}
		vars = next
		res.Context = vars
		p.SnippetEnd(*step, i, total)
	}

	res.Status = RunSuccess
	res.Finished = time.Now()
	audit.Log(e.event(res, audit.EventTypeRun).WithDuration(res.Finished.Sub(res.Started)).WithSuccess())
	p.RunEnd(res)
	return res, nil
}

// abort marks res failed and records the failed run.
func (e *Executor) abort(res *Result, err error) {
	res.fail(err)
	audit.Log(e.event(res, audit.EventTypeRun).WithDuration(res.Finished.Sub(res.Started)).WithError(err))
	e.progress().RunEnd(res)
}

// runSnippet takes one snippet through PENDING, then SKIPPED or EXECUTING
// and CAPTURED, and returns the context the next snippet sees.
func (e *Executor) runSnippet(ctx context.Context, res *Result, s *Skillet, snip *Snippet, step *Step, vars Context) (Context, error) {
	log := util.WithSnippet(s.Name(), snip.Name)

	if len(e.Only) > 0 && !slices.Contains(e.Only, snip.Name) {
		log.Debug("Not selected, skipping snippet")
		step.Status = StepSkipped
		return vars, nil
	}

	params, err := snip.RenderMetadata(vars)
	if err != nil {
		return nil, err
	}
	step.XPath = params["xpath"]

	ok, err := snip.ShouldExecute(vars)
	if err != nil {
		return nil, err
	}
	if !ok {
		log.Info("Skipping snippet")
		step.Status = StepSkipped
		audit.Log(e.event(res, audit.EventTypeSkip).WithSnippet(snip.Name).WithSuccess())
		return vars, nil
	}

	step.Status = StepExecuting
	inst, err := snip.instance(params, vars)
	if err != nil {
		return nil, err
	}
	parts := []*Instance{inst}
	if snip.Kind.CarriesElement() {
		if e.Entry != "" {
			if inst, err = inst.SelectEntry(e.Entry); err != nil {
				return nil, err
			}
		}
		if parts, err = inst.Split(e.SplitThreshold); err != nil {
			return nil, err
		}
	}
	step.Parts = len(parts)

	log.Infof("Loading snippet (%s)", snip.Kind)
	start := time.Now()
	outs := make([]string, 0, len(parts))
	for _, part := range parts {
		req, err := device.BuildRequest(snip.Kind, part.Params)
		if err != nil {
			return nil, &util.ConfigurationError{Skillet: s.Name(), Snippet: snip.Name, Field: "cmd", Err: err}
		}
		req.Snippet = snip.Name
		// in-flight device calls are not interrupted by cancellation
		out, err := e.Device.Execute(context.WithoutCancel(ctx), req)
		if err != nil {
			err = e.deviceError(snip, req, err)
			audit.Log(e.event(res, audit.EventTypeDispatch).
				WithSnippet(snip.Name).
				WithCommand(string(snip.Kind), req.XPath).
				WithParts(len(parts)).
				WithDuration(time.Since(start)).
				WithError(err))
			return nil, err
		}
		outs = append(outs, out)
	}
	audit.Log(e.event(res, audit.EventTypeDispatch).
		WithSnippet(snip.Name).
		WithCommand(string(snip.Kind), step.XPath).
		WithParts(len(parts)).
		WithDuration(time.Since(start)).
		WithSuccess())

	perPart := make([]map[string]any, 0, len(outs))
	for _, out := range outs {
		c, err := e.capturer().Capture(snip.Name, snip.OutputType, out, snip.Outputs)
		if err != nil {
			return nil, err
		}
		perPart = append(perPart, c)
	}
	captured := mergeCaptures(perPart)
	step.Outputs = sortedKeys(captured)
	step.Status = StepCaptured
	if len(captured) > 0 {
		log.Debugf("Captured %v", step.Outputs)
	}
	return vars.Merge(captured), nil
}

// mergeCaptures combines the outputs captured from each part of a split
// snippet. A name captured by one part keeps its value; a name captured by
// several parts collects every match in part order, and a single match
// overall is still a scalar.
func mergeCaptures(parts []map[string]any) map[string]any {
	if len(parts) == 1 {
		return parts[0]
	}
	merged := make(map[string]any)
	matches := make(map[string][]any)
	for _, c := range parts {
		for name, v := range c {
			prev, dup := merged[name]
			merged[name] = v
			if !dup {
				continue
			}
			if _, ok := matches[name]; !ok {
				matches[name] = appendMatches([]any{}, prev)
			}
			matches[name] = appendMatches(matches[name], v)
		}
	}
	for name, m := range matches {
		if len(m) == 1 {
			merged[name] = m[0]
		} else {
			merged[name] = m
		}
	}
	return merged
}

func appendMatches(dst []any, v any) []any {
	switch list := v.(type) {
	case []any:
		return append(dst, list...)
	case []string:
		for _, item := range list {
			dst = append(dst, item)
		}
		return dst
	}
	return append(dst, v)
}

// deviceError makes sure a dispatch failure surfaces as a
// *util.DeviceOperationError naming the snippet.
func (e *Executor) deviceError(snip *Snippet, req *device.Request, err error) error {
	var de *util.DeviceOperationError
	if errors.As(err, &de) {
		if de.Snippet == "" {
			de.Snippet = snip.Name
		}
		return err
	}
	return &util.DeviceOperationError{
		Device:  e.Device.Name(),
		Snippet: snip.Name,
		Command: string(req.Kind),
		XPath:   req.XPath,
		Err:     err,
	}
}

// Commit commits the configuration staged by a successful run. A rejected
// commit marks res failed with a *util.CommitError even though every snippet
// succeeded.
func (e *Executor) Commit(ctx context.Context, res *Result) error {
	if res == nil {
		return errors.New("commit: no run result")
	}
	if res.Status != RunSuccess {
		return fmt.Errorf("commit: run %s did not succeed", res.RunID)
	}
	if e.Device == nil {
		return errors.New("commit: no device configured")
	}

	log := util.WithRun(res.Skillet, res.RunID)
	log.Info("Performing commit")
	start := time.Now()
	msg, err := e.Device.Commit(ctx)
	event := e.event(res, audit.EventTypeCommit).WithDuration(time.Since(start))
	if err != nil {
		if !errors.Is(err, util.ErrCommit) && ctx.Err() == nil {
			err = &util.CommitError{Device: e.Device.Name(), Err: err}
		}
		audit.Log(event.WithError(err))
		res.fail(err)
		e.progress().CommitEnd(res)
		return err
	}

	res.Committed = true
	res.CommitMessage = msg
	res.Finished = time.Now()
	audit.Log(event.WithSuccess())
	log.Infof("Commit complete: %s", msg)
	e.progress().CommitEnd(res)
	return nil
}

func (e *Executor) event(res *Result, op audit.EventType) *audit.Event {
	return audit.NewEvent(res.RunID, res.Device, op).
		WithSkillet(res.Skillet).
		WithUser(e.User).
		WithDryRun(e.DryRun)
}
