// Package tool defines the executor contract for named tool operations.
// Tool bodies are external collaborators; the core invokes them only after
// the policy gate approves.
package tool

import (
	"context"
	"errors"

	"github.com/seva/axon/internal/domain"
)

// ErrToolNotFound indicates the requested tool is not registered.
var ErrToolNotFound = errors.New("tool not found")

// Info describes a registered tool.
type Info struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Result holds the output of a tool execution.
type Result struct {
	Output   string         `json:"output,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Executor is the interface all tools implement.
type Executor interface {
	Info() Info
	Execute(ctx context.Context, params map[string]any) (*Result, error)
}

// Registry holds available tool executors.
type Registry struct {
	tools map[string]Executor
	order []string
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Executor)}
}

// Register adds a tool executor.
func (r *Registry) Register(t Executor) {
	name := t.Info().Name
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = t
}

// Get returns an executor by name.
func (r *Registry) Get(name string) (Executor, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// All returns info for every registered tool, in registration order.
func (r *Registry) All() []Info {
	out := make([]Info, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].Info())
	}
	return out
}

// Execute runs the named tool. Failures are wrapped as ToolError so the
// pipeline can capture them per step without unwinding the process.
func (r *Registry) Execute(ctx context.Context, name string, params map[string]any) (*Result, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, &domain.ToolError{Tool: name, Err: ErrToolNotFound}
	}
	res, err := t.Execute(ctx, params)
	if err != nil {
		return nil, &domain.ToolError{Tool: name, Err: err}
	}
	return res, nil
}

// Func adapts a plain function into an Executor.
type Func struct {
	Meta Info
	Run  func(ctx context.Context, params map[string]any) (*Result, error)
}

func (f Func) Info() Info { return f.Meta }

func (f Func) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	return f.Run(ctx, params)
}

// NewEcho returns a trivial tool that echoes its "text" parameter. Useful
// as a smoke-test tool and in examples.
func NewEcho() Executor {
	return Func{
		Meta: Info{Name: "echo", Description: "Echo the given text back"},
		Run: func(ctx context.Context, params map[string]any) (*Result, error) {
			text, _ := params["text"].(string)
			return &Result{Output: text}, nil
		},
	}
}
