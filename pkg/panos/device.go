package panos

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/beevik/etree"

	"github.com/newtron-network/skilletloader/pkg/device"
	"github.com/newtron-network/skilletloader/pkg/util"
)

// Device drives a firewall or Panorama through the XML API.
type Device struct {
	client *Client

	// CommitPoll bounds the wait for an asynchronous commit job.
	CommitPoll device.PollOptions
}

var (
	_ device.Device       = (*Device)(nil)
	_ device.ConfigLoader = (*Device)(nil)
)

// NewDevice wraps a client.
func NewDevice(c *Client) *Device {
	return &Device{client: c}
}

// Name returns the device host.
func (d *Device) Name() string {
	return d.client.Host()
}

// Client returns the underlying API client.
func (d *Device) Client() *Client {
	return d.client
}

// Params maps a request onto XML API form parameters, without the key.
func Params(req *device.Request) url.Values {
	v := url.Values{}
	if req.Kind == device.KindOp {
		v.Set("type", "op")
		v.Set("cmd", req.Cmd)
		return v
	}

	v.Set("type", "config")
	v.Set("action", string(req.Kind))
	v.Set("xpath", req.XPath)
	switch req.Kind {
	case device.KindSet, device.KindEdit, device.KindOverride:
		v.Set("element", req.Element)
	case device.KindMove:
		v.Set("where", req.Where)
		if req.Dst != "" {
			v.Set("dst", req.Dst)
		}
	case device.KindRename:
		v.Set("newname", req.NewName)
	case device.KindClone:
		v.Set("from", req.XPathFrom)
		v.Set("newname", req.NewName)
	}
	return v
}

// Execute dispatches req and returns the full response document, so capture
// patterns are evaluated against the response root.
func (d *Device) Execute(ctx context.Context, req *device.Request) (string, error) {
	resp, err := d.client.Do(ctx, Params(req))
	if err != nil {
		var opErr *util.DeviceOperationError
		if errors.As(err, &opErr) {
			opErr.Snippet = req.Snippet
			opErr.Command = string(req.Kind)
		}
		return "", err
	}
	return resp.Raw, nil
}

// op runs an operational command and returns the parsed response.
func (d *Device) op(ctx context.Context, cmd string) (*Response, error) {
	return d.client.Do(ctx, url.Values{"type": {"op"}, "cmd": {cmd}})
}

// Commit commits the candidate configuration. When the device queues a job,
// Commit waits for it and fails unless the job result is OK.
func (d *Device) Commit(ctx context.Context) (string, error) {
	name := d.Name()
	resp, err := d.client.Do(ctx, url.Values{"type": {"commit"}, "cmd": {"<commit></commit>"}})
	if err != nil {
		return "", &util.CommitError{Device: name, Err: err}
	}

	id := ""
	if job := resp.Find("result/job"); job != nil {
		id = strings.TrimSpace(job.Text())
	}
	if id == "" {
		// Nothing to commit, or a synchronous commit.
		util.WithDevice(name).Infof("Commit: %s", resp.Message)
		return resp.Message, nil
	}

	ok, err := device.WaitForJob(ctx, d, id, d.CommitPoll)
	if err != nil {
		return "", &util.CommitError{Device: name, Err: err}
	}
	if !ok {
		return "", &util.CommitError{Device: name, Detail: fmt.Sprintf("job %s did not finish", id)}
	}
	job, err := d.JobStatus(ctx, id)
	if err != nil {
		return "", &util.CommitError{Device: name, Err: err}
	}
	if job.Result != "OK" {
		detail := job.Details
		if detail == "" {
			detail = "job " + id + " result " + job.Result
		}
		return "", &util.CommitError{Device: name, Detail: detail}
	}
	msg := job.Details
	if msg == "" {
		msg = resp.Message
	}
	return msg, nil
}

// ImportConfig uploads content as a saved configuration file called name.
func (d *Device) ImportConfig(ctx context.Context, name, content string) error {
	_, err := d.client.Import(ctx, "configuration", name, []byte(content))
	return err
}

// LoadConfig loads the saved configuration file name into the candidate
// configuration. The file must already exist on the device.
func (d *Device) LoadConfig(ctx context.Context, name string) error {
	cmd := etree.NewDocument()
	cmd.CreateElement("load").CreateElement("config").CreateElement("from").SetText(name)
	xml, err := cmd.WriteToString()
	if err != nil {
		return err
	}
	_, err = d.op(ctx, xml)
	return err
}

// JobStatus queries one job.
func (d *Device) JobStatus(ctx context.Context, id string) (*device.Job, error) {
	resp, err := d.op(ctx, "<show><jobs><id>"+id+"</id></jobs></show>")
	if err != nil {
		return nil, err
	}
	el := resp.Find("result/job")
	if el == nil {
		return &device.Job{ID: id}, nil
	}
	job := &device.Job{
		ID:       id,
		State:    device.JobState(childText(el, "status")),
		Progress: childText(el, "progress"),
		Result:   childText(el, "result"),
	}
	if det := el.SelectElement("details"); det != nil {
		var lines []string
		for _, l := range det.SelectElements("line") {
			if t := strings.TrimSpace(l.Text()); t != "" {
				lines = append(lines, t)
			}
		}
		job.Details = strings.Join(lines, "; ")
	}
	return job, nil
}

// Ready reports whether the chassis accepts configuration.
func (d *Device) Ready(ctx context.Context) (bool, error) {
	resp, err := d.op(ctx, "<show><chassis-ready></chassis-ready></show>")
	if err != nil {
		return false, err
	}
	return resp.ResultText() == "yes", nil
}

// Facts returns the children of show system info as a flat map.
func (d *Device) Facts(ctx context.Context) (map[string]string, error) {
	resp, err := d.op(ctx, "<show><system><info></info></system></show>")
	if err != nil {
		return nil, err
	}
	sys := resp.Find("result/system")
	if sys == nil {
		return nil, fmt.Errorf("facts from %s: missing system element", d.Name())
	}
	facts := make(map[string]string)
	for _, c := range sys.ChildElements() {
		if len(c.ChildElements()) > 0 {
			continue
		}
		facts[c.Tag] = strings.TrimSpace(c.Text())
	}
	return facts, nil
}

func childText(el *etree.Element, tag string) string {
	if c := el.SelectElement(tag); c != nil {
		return strings.TrimSpace(c.Text())
	}
	return ""
}
