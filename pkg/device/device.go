// Package device defines the command channel the skillet engine drives: the
// closed set of command kinds, the mapping from rendered snippet parameters
// to a device request, and the bounded job/readiness poll loops.
//
// A Device is a single authenticated handle. It serializes nothing itself:
// one handle must not be driven by two concurrent skillet runs, and
// device-side serialization of edits and commits is the device's concern.
package device

import (
	"context"
	"fmt"
	"sort"
)

// Kind is the command verb of a snippet.
type Kind string

const (
	KindSet      Kind = "set"
	KindEdit     Kind = "edit"
	KindOverride Kind = "override"
	KindMove     Kind = "move"
	KindRename   Kind = "rename"
	KindClone    Kind = "clone"
	KindOp       Kind = "op"
)

// DefaultKind is used when a snippet declares no cmd.
const DefaultKind = KindSet

// requiredFields lists, per kind, the metadata keys a snippet definition must
// carry. Each inner slice is a set of synonyms: any one satisfies it.
var requiredFields = map[Kind][][]string{
	KindSet:      {{"xpath"}, {"file"}, {"element"}},
	KindEdit:     {{"xpath"}, {"file"}, {"element"}},
	KindOverride: {{"xpath"}, {"file"}, {"element"}},
	KindMove:     {{"where"}},
	KindRename:   {{"new_name", "newname"}},
	KindClone:    {{"new_name", "newname"}, {"xpath_from"}},
	KindOp:       {{"cmd_str"}},
}

// Kinds returns every supported kind in sorted order.
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(requiredFields))
	for k := range requiredFields {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// ParseKind resolves a cmd string. Empty resolves to DefaultKind.
func ParseKind(s string) (Kind, error) {
	if s == "" {
		return DefaultKind, nil
	}
	k := Kind(s)
	if _, ok := requiredFields[k]; !ok {
		return "", fmt.Errorf("unknown cmd %q (valid: %v)", s, Kinds())
	}
	return k, nil
}

// RequiredFields returns the field groups a definition of this kind must
// satisfy. Each group lists synonymous keys.
func (k Kind) RequiredFields() [][]string {
	return requiredFields[k]
}

// IsConfig reports whether the kind targets the configuration tree (every
// kind except op).
func (k Kind) IsConfig() bool {
	return k != KindOp
}

// CarriesElement reports whether the kind pushes an XML element payload.
func (k Kind) CarriesElement() bool {
	return k == KindSet || k == KindEdit || k == KindOverride
}

// JobState is the device-reported state of an asynchronous job.
type JobState string

const (
	JobActive   JobState = "ACT"
	JobFinished JobState = "FIN"
	JobPending  JobState = "PEND"
	JobUnknown  JobState = ""
)

// Job is the status of one asynchronous device job.
type Job struct {
	ID       string
	State    JobState
	Progress string
	Result   string // "OK" or "FAIL" once finished
	Details  string
}

// Device is an authenticated command channel to one device.
type Device interface {
	// Name identifies the device in logs, audit events and errors.
	Name() string

	// Execute dispatches one request and returns the raw result text.
	// Transport failures and device rejections are returned as errors.
	Execute(ctx context.Context, req *Request) (string, error)

	// Commit commits staged configuration and returns the device's message.
	Commit(ctx context.Context) (string, error)

	JobQuerier
	ReadyChecker

	// Facts returns system facts (hostname, sw-version, ...).
	Facts(ctx context.Context) (map[string]string, error)
}

// JobQuerier returns the current status of a job.
type JobQuerier interface {
	JobStatus(ctx context.Context, id string) (*Job, error)
}

// ReadyChecker reports whether the device is ready to accept requests.
type ReadyChecker interface {
	Ready(ctx context.Context) (bool, error)
}

// ConfigLoader replaces the running candidate with a complete configuration
// file: ImportConfig stores content on the device under name and LoadConfig
// loads that saved file into the candidate. Neither commits.
type ConfigLoader interface {
	ImportConfig(ctx context.Context, name, content string) error
	LoadConfig(ctx context.Context, name string) error
}

// ExecuteCommand builds the request for kind from rendered params and
// dispatches it on dev.
func ExecuteCommand(ctx context.Context, dev Device, kind Kind, params map[string]string) (string, error) {
	req, err := BuildRequest(kind, params)
	if err != nil {
		return "", err
	}
	return dev.Execute(ctx, req)
}
