package skillet

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/newtron-network/skilletloader/pkg/capture"
	"github.com/newtron-network/skilletloader/pkg/device"
	"github.com/newtron-network/skilletloader/pkg/util"
)

const showSystemInfo = "<show><system><info/></system></show>"

func newTestSkillet(t *testing.T, typ Type, vars []Variable, snippets ...map[string]any) *Skillet {
	t.Helper()
	def := &Definition{
		Name:      "baseline",
		Label:     "Baseline",
		Type:      typ,
		Variables: vars,
		Labels:    map[string]any{"collection": []string{"Test"}},
		Snippets:  snippets,
	}
	s, err := New(def, quietRenderer())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func setDef(name, xpath, element string) map[string]any {
	return map[string]any{"name": name, "xpath": xpath, "file": name + ".xml", "element": element}
}

func TestExecuteFailFast(t *testing.T) {
	s := newTestSkillet(t, TypePanos, nil,
		setDef("one", "/config/one", "<a/>"),
		setDef("two", "/config/two", "<b/>"),
		setDef("three", "/config/three", "<c/>"),
	)
	dev := device.NewMemory("fw1")
	dev.FailOn = func(req *device.Request) error {
		if req.XPath == "/config/two" {
			return errors.New("Object doesn't exist")
		}
		return nil
	}

	e := &Executor{Device: dev}
	res, err := e.Execute(context.Background(), s, nil)

	var de *util.DeviceOperationError
	if !errors.As(err, &de) {
		t.Fatalf("error = %v, want *util.DeviceOperationError", err)
	}
	if de.Snippet != "two" {
		t.Errorf("DeviceOperationError.Snippet = %q, want %q", de.Snippet, "two")
	}
	if res.Status != RunFailure || res.ErrorKind() != "DeviceOperationError" {
		t.Errorf("result = %s/%s, want failure/DeviceOperationError", res.Status, res.ErrorKind())
	}

	reqs := dev.Requests()
	if len(reqs) != 2 {
		t.Fatalf("device saw %d requests, want 2", len(reqs))
	}
	for _, r := range reqs {
		if r.XPath == "/config/three" {
			t.Error("snippet three must not run after snippet two failed")
		}
	}

	want := []StepStatus{StepCaptured, StepFailed, StepPending}
	for i, w := range want {
		if res.Steps[i].Status != w {
			t.Errorf("step %d status = %s, want %s", i, res.Steps[i].Status, w)
		}
	}
}

func TestExecuteThreadsCapturedOutputs(t *testing.T) {
	s := newTestSkillet(t, TypePanos,
		[]Variable{{Name: "hostname", Default: "default-host"}},
		map[string]any{
			"name":        "get_info",
			"cmd":         "op",
			"cmd_str":     showSystemInfo,
			"output_type": "xml",
			"outputs":     []any{map[string]any{"name": "hostname", "capture_pattern": "result/system/hostname"}},
		},
		setDef("tag_host", "/config/shared/tag/entry[@name='{{ hostname }}']", "<comments>{{ hostname }}</comments>"),
	)

	dev := device.NewMemory("fw1")
	dev.Responses[showSystemInfo] = `<response status="success"><result><system><hostname>fw1</hostname></system></result></response>`

	e := &Executor{Device: dev}
	res, err := e.Execute(context.Background(), s, s.NewContext(nil))
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}

	reqs := dev.Requests()
	if len(reqs) != 2 {
		t.Fatalf("device saw %d requests, want 2", len(reqs))
	}
	if want := "/config/shared/tag/entry[@name='fw1']"; reqs[1].XPath != want {
		t.Errorf("second request xpath = %q, want %q", reqs[1].XPath, want)
	}
	if reqs[1].Element != "<comments>fw1</comments>" {
		t.Errorf("second request element = %q", reqs[1].Element)
	}
	if res.Context["hostname"] != "fw1" {
		t.Errorf("final hostname = %v, want the captured value to win over the default", res.Context["hostname"])
	}
	if got := res.Steps[0].Outputs; len(got) != 1 || got[0] != "hostname" {
		t.Errorf("step outputs = %v", got)
	}
}

func TestExecuteGuardSkips(t *testing.T) {
	s := newTestSkillet(t, TypePanos,
		[]Variable{{Name: "enable_dns", Default: "no"}},
		setDef("always", "/config/a", "<a/>"),
		func() map[string]any {
			d := setDef("dns", "/config/dns", "<dns/>")
			d["when"] = "enable_dns == 'yes'"
			return d
		}(),
	)

	tests := []struct {
		input    map[string]string
		wantReqs int
		want     StepStatus
	}{
		{nil, 1, StepSkipped},
		{map[string]string{"enable_dns": "yes"}, 2, StepCaptured},
	}
	for _, tt := range tests {
		dev := device.NewMemory("fw1")
		res, err := (&Executor{Device: dev}).Execute(context.Background(), s, s.NewContext(tt.input))
		if err != nil {
			t.Fatalf("Execute error: %v", err)
		}
		if n := len(dev.Requests()); n != tt.wantReqs {
			t.Errorf("input %v: %d requests, want %d", tt.input, n, tt.wantReqs)
		}
		if res.Steps[1].Status != tt.want {
			t.Errorf("input %v: dns step = %s, want %s", tt.input, res.Steps[1].Status, tt.want)
		}
	}
}

func TestExecuteSplitsOversizedPayload(t *testing.T) {
	s := newTestSkillet(t, TypePanos, nil, setDef("addresses", "/config/shared/address", oversizedEntries(3, 5000)))
	dev := device.NewMemory("fw1")

	res, err := (&Executor{Device: dev}).Execute(context.Background(), s, nil)
	if err != nil {
		t.Fatal(err)
	}
	reqs := dev.Requests()
	if len(reqs) != 3 {
		t.Fatalf("device saw %d requests, want 3", len(reqs))
	}
	for _, r := range reqs {
		if r.XPath != "/config/shared/address" {
			t.Errorf("xpath = %q", r.XPath)
		}
	}
	if res.Steps[0].Parts != 3 {
		t.Errorf("Parts = %d, want 3", res.Steps[0].Parts)
	}
}

func TestExecuteCapturesEverySplitPart(t *testing.T) {
	def := setDef("addresses", "/config/shared/address", oversizedEntries(3, 5000))
	def["output_type"] = "xml"
	def["outputs"] = []any{map[string]any{"name": "msgs", "capture_pattern": "msg"}}
	s := newTestSkillet(t, TypePanos, nil, def)

	res, err := (&Executor{Device: device.NewMemory("fw1")}).Execute(context.Background(), s, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := []any{"command succeeded", "command succeeded", "command succeeded"}
	if diff := cmp.Diff(want, res.Context["msgs"]); diff != "" {
		t.Errorf("captured msgs mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeCaptures(t *testing.T) {
	tests := []struct {
		name  string
		parts []map[string]any
		want  map[string]any
	}{
		{"single part unchanged",
			[]map[string]any{{"a": []string{"x", "y"}}},
			map[string]any{"a": []string{"x", "y"}}},
		{"name from one part keeps its value",
			[]map[string]any{{"a": "x"}, {"b": []string{}}},
			map[string]any{"a": "x", "b": []string{}}},
		{"scalars across parts become a list",
			[]map[string]any{{"a": "x"}, {"a": "y"}},
			map[string]any{"a": []any{"x", "y"}}},
		{"lists are flattened in part order",
			[]map[string]any{{"a": []string{"x", "y"}}, {"a": "z"}, {"a": []any{}}},
			map[string]any{"a": []any{"x", "y", "z"}}},
		{"one match overall stays scalar",
			[]map[string]any{{"a": []string{}}, {"a": "x"}},
			map[string]any{"a": "x"}},
		{"no match anywhere is an empty list",
			[]map[string]any{{"a": []string{}}, {"a": []any{}}},
			map[string]any{"a": []any{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, mergeCaptures(tt.parts)); diff != "" {
				t.Errorf("mergeCaptures mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExecuteEntrySelection(t *testing.T) {
	s := newTestSkillet(t, TypePanos, nil,
		setDef("zones", "/config/zone", `<entry name="trust"/><entry name="untrust"/>`),
	)
	dev := device.NewMemory("fw1")
	if _, err := (&Executor{Device: dev, Entry: "untrust"}).Execute(context.Background(), s, nil); err != nil {
		t.Fatal(err)
	}
	if reqs := dev.Requests(); len(reqs) != 1 || reqs[0].Element != `<entry name="untrust"/>` {
		t.Errorf("requests = %v", reqs)
	}

	_, err := (&Executor{Device: device.NewMemory("fw1"), Entry: "dmz"}).Execute(context.Background(), s, nil)
	if !errors.Is(err, util.ErrEntryNotFound) {
		t.Errorf("error = %v, want ErrEntryNotFound", err)
	}
}

func TestExecuteOnly(t *testing.T) {
	s := newTestSkillet(t, TypePanos, nil,
		setDef("one", "/config/one", "<a/>"),
		setDef("two", "/config/two", "<b/>"),
	)
	dev := device.NewMemory("fw1")
	res, err := (&Executor{Device: dev, Only: []string{"two"}}).Execute(context.Background(), s, nil)
	if err != nil {
		t.Fatal(err)
	}
	if reqs := dev.Requests(); len(reqs) != 1 || reqs[0].XPath != "/config/two" {
		t.Errorf("requests = %v", reqs)
	}
	if res.Steps[0].Status != StepSkipped {
		t.Errorf("step one = %s, want SKIPPED", res.Steps[0].Status)
	}
}

func TestExecuteCaptureErrorAborts(t *testing.T) {
	s := newTestSkillet(t, TypePanos, nil,
		map[string]any{
			"name": "get", "cmd": "op", "cmd_str": showSystemInfo,
			"output_type": "xml",
			"outputs":     []any{map[string]any{"name": "x", "capture_pattern": "result"}},
		},
		setDef("after", "/config/after", "<a/>"),
	)
	dev := device.NewMemory("fw1")
	dev.Responses[showSystemInfo] = "not xml <"

	res, err := (&Executor{Device: dev}).Execute(context.Background(), s, nil)
	if !errors.Is(err, util.ErrCapture) {
		t.Fatalf("error = %v, want ErrCapture", err)
	}
	if len(dev.Requests()) != 1 || res.Steps[1].Status != StepPending {
		t.Error("run should stop after the capture failure")
	}
}

func TestExecuteLenientJSON(t *testing.T) {
	s := newTestSkillet(t, TypePanos, nil,
		map[string]any{
			"name": "get", "cmd": "op", "cmd_str": "<json/>",
			"output_type": "json",
			"outputs":     []any{map[string]any{"name": "x", "capture_pattern": "$.a"}},
		},
	)
	dev := device.NewMemory("fw1")
	dev.Responses["<json/>"] = "{broken"

	e := &Executor{Device: dev, Capturer: &capture.Capturer{SoftJSONErrors: true}}
	res, err := e.Execute(context.Background(), s, nil)
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if _, ok := res.Context[capture.SystemKey]; !ok {
		t.Errorf("context = %v, want a %q entry", res.Context, capture.SystemKey)
	}
}

func TestExecuteRenderOnlySkillet(t *testing.T) {
	s := newTestSkillet(t, TypeTemplate, nil, map[string]any{"name": "t", "file": "t.txt", "element": "x"})
	_, err := (&Executor{Device: device.NewMemory("fw1")}).Execute(context.Background(), s, nil)
	if !errors.Is(err, util.ErrConfiguration) {
		t.Errorf("error = %v, want ErrConfiguration", err)
	}
}

func TestExecuteCancelled(t *testing.T) {
	s := newTestSkillet(t, TypePanos, nil, setDef("one", "/config/one", "<a/>"))
	dev := device.NewMemory("fw1")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := (&Executor{Device: dev}).Execute(ctx, s, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if len(dev.Requests()) != 0 || res.Status != RunFailure {
		t.Error("cancelled run should not reach the device")
	}
}

func TestCommit(t *testing.T) {
	s := newTestSkillet(t, TypePanos, nil, setDef("one", "/config/one", "<a/>"))

	t.Run("success", func(t *testing.T) {
		dev := device.NewMemory("fw1")
		dev.CommitMessage = "Configuration committed successfully"
		e := &Executor{Device: dev}
		res, err := e.Execute(context.Background(), s, nil)
		if err != nil {
			t.Fatal(err)
		}
		if err := e.Commit(context.Background(), res); err != nil {
			t.Fatalf("Commit error: %v", err)
		}
		if !res.Committed || res.CommitMessage != dev.CommitMessage {
			t.Errorf("result = %+v", res)
		}
	})

	t.Run("rejected", func(t *testing.T) {
		dev := device.NewMemory("fw1")
		dev.CommitErr = errors.New("validation error")
		e := &Executor{Device: dev}
		res, err := e.Execute(context.Background(), s, nil)
		if err != nil {
			t.Fatal(err)
		}
		err = e.Commit(context.Background(), res)
		var ce *util.CommitError
		if !errors.As(err, &ce) {
			t.Fatalf("error = %v, want *util.CommitError", err)
		}
		if res.Status != RunFailure || res.ErrorKind() != "CommitError" {
			t.Errorf("result = %s/%s, want failure/CommitError", res.Status, res.ErrorKind())
		}
		if res.Steps[0].Status != StepCaptured {
			t.Error("snippet status should stay CAPTURED after a failed commit")
		}
	})

	t.Run("refuses failed run", func(t *testing.T) {
		dev := device.NewMemory("fw1")
		e := &Executor{Device: dev}
		if err := e.Commit(context.Background(), &Result{Status: RunFailure}); err == nil {
			t.Error("expected error committing a failed run")
		}
		if dev.Commits() != 0 {
			t.Error("device commit should not be called")
		}
	})
}

func TestNewContext(t *testing.T) {
	s := newTestSkillet(t, TypePanos, []Variable{
		{Name: "hostname", Default: "fw-default"},
		{Name: "dns", Default: "8.8.8.8"},
	})
	ctx := s.NewContext(map[string]string{"hostname": "fw1", "PATH": "/usr/bin"})

	if ctx["hostname"] != "fw1" || ctx["dns"] != "8.8.8.8" {
		t.Errorf("context = %v", ctx)
	}
	if _, ok := ctx["PATH"]; ok {
		t.Error("undeclared input keys must be ignored")
	}
}

func TestRenderAll(t *testing.T) {
	s := newTestSkillet(t, TypeTemplate, []Variable{{Name: "name", Default: "world"}},
		map[string]any{"name": "greeting", "file": "g.txt", "element": "hello {{ name }}"},
		map[string]any{"name": "never", "file": "n.txt", "element": "x", "when": "false"},
	)
	out, err := s.RenderAll(s.NewContext(nil))
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0].Payload != "hello world" {
		t.Errorf("RenderAll = %v", out)
	}
}

func TestNewRejectsInvalidSnippet(t *testing.T) {
	def := &Definition{Name: "bad", Type: TypePanos, Snippets: []map[string]any{
		setDef("ok", "/x", "<a/>"),
		{"name": "broken", "cmd": "clone", "xpath": "/x", "newname": "y"},
	}}
	_, err := New(def, quietRenderer())
	var ce *util.ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("error = %v, want *util.ConfigurationError", err)
	}
	if ce.Skillet != "bad" || ce.Snippet != "broken" {
		t.Errorf("error names %q/%q, want bad/broken", ce.Skillet, ce.Snippet)
	}
}

func TestConsoleProgress(t *testing.T) {
	s := newTestSkillet(t, TypePanos, nil,
		setDef("one", "/config/one", "<a/>"),
		setDef("two", "/config/two", "<b/>"),
	)
	dev := device.NewMemory("fw1")
	dev.FailOn = func(req *device.Request) error {
		if req.XPath == "/config/two" {
			return errors.New("rejected")
		}
		return nil
	}

	var buf bytes.Buffer
	e := &Executor{Device: dev, Progress: &ConsoleProgress{W: &buf}}
	e.Execute(context.Background(), s, nil)

	out := buf.String()
	for _, want := range []string{"skillet", "one", "CAPTURED", "FAILED", "DeviceOperationError"} {
		if !strings.Contains(out, want) {
			t.Errorf("progress output missing %q:\n%s", want, out)
		}
	}
}
