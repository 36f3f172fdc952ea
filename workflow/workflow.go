// Package workflow routes chat queries to a reasoning strategy selected by
// mode tag.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/dshills/branchchat/tot"
	"github.com/dshills/branchchat/tot/model"
)

// Mode selects a workflow.
type Mode string

// Supported modes.
const (
	ModeDefault        Mode = "default"
	ModeChainOfThought Mode = "cot"
	ModeTreeOfThoughts Mode = "tot"
	ModeThinkLonger    Mode = "think_longer"
	ModeDeepResearch   Mode = "deep_research"
	ModeSummary        Mode = "summary"
)

var (
	// ErrUnknownMode is returned for a mode with no registered workflow.
	ErrUnknownMode = errors.New("unknown workflow mode")

	// ErrEmptyQuery is returned when a request carries no query text.
	ErrEmptyQuery = errors.New("query is required")
)

// ParseMode normalizes s into a Mode. An empty string selects ModeDefault.
func ParseMode(s string) Mode {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ModeDefault
	}
	return Mode(s)
}

// Request is one chat turn.
type Request struct {
	Query   string          `json:"query"`
	History []model.Message `json:"history,omitempty"`
}

// Result is a workflow's answer to a Request.
type Result struct {
	Mode   Mode   `json:"mode"`
	Answer string `json:"answer"`

	// NeedsClarification is set when the deep research workflow answered
	// with clarifying questions instead of research.
	NeedsClarification bool `json:"needs_clarification,omitempty"`

	// RunID and Trace are set by the tree-of-thoughts workflow.
	RunID string           `json:"run_id,omitempty"`
	Trace *tot.SearchTrace `json:"trace,omitempty"`
}

// Workflow answers a chat turn.
type Workflow interface {
	Execute(ctx context.Context, req Request) (Result, error)
}

// Registry maps mode tags to workflows.
type Registry struct {
	mu        sync.RWMutex
	workflows map[Mode]Workflow
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{workflows: make(map[Mode]Workflow)}
}

// Register binds mode to wf, replacing any previous binding.
func (r *Registry) Register(mode Mode, wf Workflow) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workflows[mode] = wf
}

// Get returns the workflow bound to mode.
func (r *Registry) Get(mode Mode) (Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	wf, ok := r.workflows[mode]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	return wf, nil
}

// Modes returns the registered modes in lexical order.
func (r *Registry) Modes() []Mode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	modes := make([]Mode, 0, len(r.workflows))
	for m := range r.workflows {
		modes = append(modes, m)
	}
	slices.Sort(modes)
	return modes
}

// Run executes req with the workflow bound to mode and stamps the mode on
// the result.
func (r *Registry) Run(ctx context.Context, mode Mode, req Request) (Result, error) {
	if strings.TrimSpace(req.Query) == "" {
		return Result{}, ErrEmptyQuery
	}
	wf, err := r.Get(mode)
	if err != nil {
		return Result{}, err
	}
	res, err := wf.Execute(ctx, req)
	if err != nil {
		return Result{}, err
	}
	res.Mode = mode
	return res, nil
}

// conversation returns history followed by query as a user message.
func conversation(req Request) []model.Message {
	msgs := make([]model.Message, 0, len(req.History)+1)
	msgs = append(msgs, req.History...)
	return append(msgs, model.Message{Role: model.RoleUser, Content: req.Query})
}
