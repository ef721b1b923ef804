// Package tools holds the table of functions the model may call during a chat turn.
// The table is assembled once at startup and is read-only afterwards.
package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pnj.com/jewelry-designer/internal/artifact"
)

var (
	ErrUnknownTool   = errors.New("tools: unknown tool")
	ErrDuplicateTool = errors.New("tools: duplicate tool name")
)

// Invocation carries the turn state a handler may need.
type Invocation struct {
	UserID         string
	ConversationID string
	Profile        string // demographic summary of the caller
	ImageIDs       []string
	Current        *artifact.Artifact
}

// GeneratedImage is image content produced by a tool, persisted with the turn.
type GeneratedImage struct {
	ID          string
	Filename    string
	ContentType string
	Data        []byte
}

// Result is a handler's structured output. A non-nil Artifact becomes the turn's candidate artifact.
type Result struct {
	Output   map[string]any
	Artifact *artifact.Artifact
	Images   []GeneratedImage
}

type Handler func(ctx context.Context, inv *Invocation, args map[string]any) (*Result, error)

type Tool struct {
	Name        string
	Description string
	Parameters  *Schema
	Handler     Handler
}

// Spec is the declaration of a tool as sent to the model.
type Spec struct {
	Name        string
	Description string
	Parameters  *Schema
}

type Registry struct {
	tools map[string]Tool
	order []string
}

func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			return nil, fmt.Errorf("tools: tool name is required")
		}
		if t.Handler == nil {
			return nil, fmt.Errorf("tools: %s has no handler", name)
		}
		if _, exists := r.tools[name]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTool, name)
		}
		if t.Parameters == nil {
			t.Parameters = &Schema{Type: TypeObject}
		}
		t.Name = name
		r.tools[name] = t
		r.order = append(r.order, name)
	}
	return r, nil
}

// Specs lists the declarations in registration order.
func (r *Registry) Specs() []Spec {
	if r == nil {
		return nil
	}
	specs := make([]Spec, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		specs = append(specs, Spec{Name: t.Name, Description: t.Description, Parameters: t.Parameters})
	}
	return specs
}

func (r *Registry) Has(name string) bool {
	if r == nil {
		return false
	}
	_, ok := r.tools[name]
	return ok
}

// Dispatch validates args against the tool's schema and invokes its handler.
// It returns ErrUnknownTool, a *ValidationError, or the handler's error.
func (r *Registry) Dispatch(ctx context.Context, inv *Invocation, name string, args map[string]any) (*Result, error) {
	if r == nil {
		return nil, ErrUnknownTool
	}
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	if args == nil {
		args = map[string]any{}
	}
	verr := &ValidationError{Tool: name}
	t.Parameters.Validate("", args, verr)
	if len(verr.Fields) > 0 {
		return nil, verr
	}
	if inv == nil {
		inv = &Invocation{}
	}
	res, err := t.Handler(ctx, inv, args)
	if err != nil {
		return nil, fmt.Errorf("tool %s: %w", name, err)
	}
	if res == nil {
		res = &Result{}
	}
	if res.Artifact != nil {
		if err := res.Artifact.Validate(); err != nil {
			return nil, fmt.Errorf("tool %s produced an invalid artifact: %w", name, err)
		}
	}
	return res, nil
}
