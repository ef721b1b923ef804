package core

import (
	"context"

	"pnj.com/jewelry-designer/internal/tools"
)

const (
	RoleUser  = "user"
	RoleModel = "model"
)

type InlineImage struct {
	MIMEType string
	Data     []byte
}

type ToolCall struct {
	Name string
	Args map[string]any
}

type ToolResult struct {
	Name     string
	Response map[string]any
}

// Part is one element of a turn; exactly one field is set.
type Part struct {
	Text   string
	Image  *InlineImage
	Call   *ToolCall
	Result *ToolResult
}

type Turn struct {
	Role  string
	Parts []Part
}

type Request struct {
	SystemPrompt string
	History      []Turn
	Tools        []tools.Spec
}

// Response is either final text (no Calls) or a batch of tool calls, possibly with text.
type Response struct {
	Text  string
	Calls []ToolCall
}

// Gateway sends a prompt, history and tool declarations to a hosted model.
type Gateway interface {
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// Titler produces a short conversation title from its opening message.
type Titler interface {
	GenerateTitleForChat(ctx context.Context, summary string) (string, error)
}
