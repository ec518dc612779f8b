package device

import (
	"context"
	"fmt"
	"sync"

	"github.com/newtron-network/skilletloader/pkg/util"
)

// DefaultMemoryResponse is returned by Memory for requests with no scripted
// response.
const DefaultMemoryResponse = `<response status="success" code="20"><msg>command succeeded</msg></response>`

// Memory is an in-process Device that records requests and answers from
// scripted responses. It backs dry runs and engine tests.
type Memory struct {
	DeviceName string

	// Responses maps an xpath (config kinds) or command string (op) to the
	// raw result returned for it.
	Responses map[string]string

	// FailOn, when set, is consulted before each request; a non-nil error is
	// returned as the device failure.
	FailOn func(req *Request) error

	// Jobs scripts job states per id. Each JobStatus call consumes one state;
	// the last state repeats.
	Jobs map[string][]Job

	// ReadyAfter is the number of Ready calls that report not-ready first.
	ReadyAfter int

	CommitMessage string
	CommitErr     error

	SystemFacts map[string]string

	// Configs holds files stored by ImportConfig, by name.
	Configs map[string]string

	// Loaded is the name of the last file passed to LoadConfig.
	Loaded string

	mu         sync.Mutex
	requests   []*Request
	commits    int
	readyCalls int
}

// NewMemory returns an empty Memory device.
func NewMemory(name string) *Memory {
	return &Memory{
		DeviceName: name,
		Responses:  make(map[string]string),
		Jobs:       make(map[string][]Job),
		Configs:    make(map[string]string),
	}
}

func (m *Memory) Name() string {
	if m.DeviceName == "" {
		return "memory"
	}
	return m.DeviceName
}

func (m *Memory) Execute(ctx context.Context, req *Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *req
	m.requests = append(m.requests, &cp)

	if m.FailOn != nil {
		if err := m.FailOn(req); err != nil {
			return "", err
		}
	}

	key := req.XPath
	if req.Kind == KindOp {
		key = req.Cmd
	}
	if out, ok := m.Responses[key]; ok {
		return out, nil
	}
	return DefaultMemoryResponse, nil
}

func (m *Memory) Commit(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commits++
	if m.CommitErr != nil {
		return "", m.CommitErr
	}
	if m.CommitMessage == "" {
		return "Configuration committed successfully", nil
	}
	return m.CommitMessage, nil
}

func (m *Memory) JobStatus(ctx context.Context, id string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	states, ok := m.Jobs[id]
	if !ok || len(states) == 0 {
		return nil, fmt.Errorf("job %s not found", id)
	}
	job := states[0]
	if len(states) > 1 {
		m.Jobs[id] = states[1:]
	}
	job.ID = id
	return &job, nil
}

func (m *Memory) Ready(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readyCalls++
	return m.readyCalls > m.ReadyAfter, nil
}

func (m *Memory) Facts(ctx context.Context) (map[string]string, error) {
	facts := make(map[string]string, len(m.SystemFacts)+1)
	for k, v := range m.SystemFacts {
		facts[k] = v
	}
	if _, ok := facts["hostname"]; !ok {
		facts["hostname"] = m.Name()
	}
	return facts, nil
}

func (m *Memory) ImportConfig(ctx context.Context, name, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Configs == nil {
		m.Configs = make(map[string]string)
	}
	m.Configs[name] = content
	return nil
}

func (m *Memory) LoadConfig(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Configs[name]; !ok {
		return fmt.Errorf("load config %s: %w", name, util.ErrNotFound)
	}
	m.Loaded = name
	return nil
}

// Requests returns a copy of the requests executed so far, in order.
func (m *Memory) Requests() []*Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Commits returns the number of Commit calls.
func (m *Memory) Commits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commits
}
