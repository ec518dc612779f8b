package skillet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/newtron-network/skilletloader/pkg/audit"
	"github.com/newtron-network/skilletloader/pkg/device"
	"github.com/newtron-network/skilletloader/pkg/util"
)

// ImportAndLoad renders the first snippet of a template skillet as a complete
// configuration file, imports it to the device as name and loads it into the
// candidate configuration. An empty name uses the snippet name. Nothing is
// committed; call Commit with the returned Result.
//
// The Result is never nil; on failure it carries the returned error.
func (e *Executor) ImportAndLoad(ctx context.Context, s *Skillet, input Context, name string) (*Result, error) {
	res := &Result{
		RunID:   uuid.NewString(),
		Skillet: s.Name(),
		DryRun:  e.DryRun,
		Status:  RunRunning,
		Started: time.Now(),
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

	if s.Type() != TypeTemplate {
		err := &util.ConfigurationError{
			Skillet: s.Name(),
			Field:   "type",
			Reason:  fmt.Sprintf("only template skillets can be loaded as a configuration, got %s", s.Type()),
		}
		res.fail(err)
		return res, err
	}
	if len(s.snippets) == 0 {
		err := &util.ConfigurationError{Skillet: s.Name(), Field: "snippets", Reason: "template skillet has no snippets"}
		res.fail(err)
		return res, err
	}
	loader, ok := e.Device.(device.ConfigLoader)
	if !ok {
		err := fmt.Errorf("%s cannot import configuration files", res.Device)
		res.fail(err)
		return res, err
	}

	snip := s.snippets[0]
	if name == "" {
		name = snip.Name
	}
	res.Steps = []Step{{Snippet: snip.Name, Status: StepPending, Command: "load-config", XPath: name}}
	step := &res.Steps[0]

	log := util.WithSnippet(s.Name(), snip.Name)
	p := e.progress()
	p.RunStart(res, []*Snippet{snip})
	p.SnippetStart(snip.Name, 0, 1)

	start := time.Now()
	err := e.importAndLoad(ctx, res, loader, snip, vars, name)
	step.Duration = time.Since(start)
	if err != nil {
		step.Status = StepFailed
		step.Error = err.Error()
		p.SnippetEnd(*step, 0, 1)
		log.Errorf("Load aborted: %v", err)
		e.abort(res, err)
		return res, err
	}
	step.Status = StepCaptured
	p.SnippetEnd(*step, 0, 1)

	res.Status = RunSuccess
	res.Finished = time.Now()
	audit.Log(e.event(res, audit.EventTypeRun).WithDuration(res.Finished.Sub(res.Started)).WithSuccess())
	p.RunEnd(res)
	return res, nil
}

func (e *Executor) importAndLoad(ctx context.Context, res *Result, loader device.ConfigLoader, snip *Snippet, vars Context, name string) error {
	log := util.WithSnippet(res.Skillet, snip.Name)
	content, err := snip.Template(vars)
	if err != nil {
		return err
	}
	// in-flight device calls are not interrupted by cancellation
	devCtx := context.WithoutCancel(ctx)

	log.Infof("Importing configuration file %s (%d bytes)", name, len(content))
	start := time.Now()
	err = loader.ImportConfig(devCtx, name, content)
	event := e.event(res, audit.EventTypeConfigImport).
		WithSnippet(snip.Name).
		WithCommand("import", name).
		WithDuration(time.Since(start))
	if err != nil {
		err = e.loadError(snip, "import", name, err)
		audit.Log(event.WithError(err))
		return err
	}
	audit.Log(event.WithSuccess())

	if err := ctx.Err(); err != nil {
		return err
	}

	log.Infof("Loading configuration file %s", name)
	start = time.Now()
	err = loader.LoadConfig(devCtx, name)
	event = e.event(res, audit.EventTypeConfigLoad).
		WithSnippet(snip.Name).
		WithCommand("load", name).
		WithDuration(time.Since(start))
	if err != nil {
		err = e.loadError(snip, "load", name, err)
		audit.Log(event.WithError(err))
		return err
	}
	audit.Log(event.WithSuccess())
	return nil
}

// loadError names the snippet on a device failure during import or load.
func (e *Executor) loadError(snip *Snippet, command, name string, err error) error {
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
		Command: command + " " + name,
		Err:     err,
	}
}
