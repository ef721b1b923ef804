package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"pnj.com/jewelry-designer/internal/artifact"
	"pnj.com/jewelry-designer/internal/metrics"
	"pnj.com/jewelry-designer/internal/store"
	"pnj.com/jewelry-designer/internal/tools"
)

const (
	MaxIterations       = 10
	DefaultModelTimeout = 60 * time.Second
	DefaultToolTimeout  = 120 * time.Second

	WarningMaxIterations = "max_iterations_reached"
)

// Orchestrator drives one chat turn: it alternates model calls and tool dispatch until the
// model answers without tool calls or the iteration cap is reached.
type Orchestrator struct {
	gateway  Gateway
	registry *tools.Registry

	MaxIterations int
	ModelTimeout  time.Duration
	ToolTimeout   time.Duration
}

func NewOrchestrator(gateway Gateway, registry *tools.Registry) *Orchestrator {
	return &Orchestrator{
		gateway:       gateway,
		registry:      registry,
		MaxIterations: MaxIterations,
		ModelTimeout:  DefaultModelTimeout,
		ToolTimeout:   DefaultToolTimeout,
	}
}

type TurnInput struct {
	SystemPrompt string
	History      []store.Message
	UserText     string
	UserImages   []InlineImage
	Invocation   *tools.Invocation
}

type TurnResult struct {
	Text       string
	Artifact   *artifact.Artifact     // last artifact produced by a tool, if any
	Images     []tools.GeneratedImage // renders of the last design, plus images from other tools
	ToolCalls  []store.ToolCallRecord
	Iterations int
	Warning    string
}

// Run executes the loop. Tool failures are fed back to the model; model failures and
// deadline overruns return an error wrapping ErrUpstream.
func (o *Orchestrator) Run(ctx context.Context, in TurnInput) (*TurnResult, error) {
	history := historyTurns(in.History)
	userParts := []Part{{Text: in.UserText}}
	for i := range in.UserImages {
		userParts = append(userParts, Part{Image: &in.UserImages[i]})
	}
	history = append(history, Turn{Role: RoleUser, Parts: userParts})

	// each call sees the artifact produced by the calls before it
	inv := &tools.Invocation{}
	if in.Invocation != nil {
		turnInv := *in.Invocation
		inv = &turnInv
	}

	specs := o.registry.Specs()
	res := &TurnResult{}
	var lastText, lastOutcome string

	for res.Iterations < o.maxIterations() {
		res.Iterations++

		resp, err := o.generate(ctx, &Request{SystemPrompt: in.SystemPrompt, History: history, Tools: specs})
		if err != nil {
			metrics.ObserveTurn(res.Iterations, false)
			return nil, upstream(fmt.Errorf("model call %d: %w", res.Iterations, err))
		}

		if len(resp.Calls) == 0 {
			res.Text = resp.Text
			metrics.ObserveTurn(res.Iterations, false)
			return res, nil
		}
		if resp.Text != "" {
			lastText = resp.Text
		}

		modelParts := make([]Part, 0, len(resp.Calls)+1)
		if resp.Text != "" {
			modelParts = append(modelParts, Part{Text: resp.Text})
		}
		resultParts := make([]Part, 0, len(resp.Calls))
		for i := range resp.Calls {
			call := resp.Calls[i]
			modelParts = append(modelParts, Part{Call: &call})

			response, err := o.invoke(ctx, inv, call, res)
			if err != nil {
				metrics.ObserveTurn(res.Iterations, false)
				return nil, err
			}
			lastOutcome = describeOutcome(call.Name, response)
			resultParts = append(resultParts, Part{Result: &ToolResult{Name: call.Name, Response: response}})
		}
		history = append(history,
			Turn{Role: RoleModel, Parts: modelParts},
			Turn{Role: RoleUser, Parts: resultParts},
		)
	}

	log.Printf("Chat turn hit the iteration cap (%d)", res.Iterations)
	metrics.ObserveTurn(res.Iterations, true)
	res.Warning = WarningMaxIterations
	res.Text = cappedReply(lastText, res.Artifact, lastOutcome)
	return res, nil
}

func (o *Orchestrator) maxIterations() int {
	if o.MaxIterations > 0 {
		return o.MaxIterations
	}
	return MaxIterations
}

func (o *Orchestrator) generate(ctx context.Context, req *Request) (*Response, error) {
	timeout := o.ModelTimeout
	if timeout <= 0 {
		timeout = DefaultModelTimeout
	}
	mctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	resp, err := o.gateway.Generate(mctx, req)
	metrics.ObserveModelCall(time.Since(start), err)
	if err == nil && resp == nil {
		err = errors.New("empty model response")
	}
	return resp, err
}

// invoke dispatches one tool call and returns the function response for the model. Only
// deadline overruns and caller cancellation are returned as errors.
func (o *Orchestrator) invoke(ctx context.Context, inv *tools.Invocation, call ToolCall, res *TurnResult) (map[string]any, error) {
	record := store.ToolCallRecord{Name: call.Name, Arguments: call.Args}
	if record.Arguments == nil {
		record.Arguments = map[string]any{}
	}

	out, err := o.dispatch(ctx, inv, call)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, context.DeadlineExceeded) {
			metrics.ObserveToolCall(call.Name, "timeout")
			return nil, upstream(fmt.Errorf("tool %s exceeded its deadline: %w", call.Name, err))
		}

		outcome := "failed"
		var verr *tools.ValidationError
		switch {
		case errors.Is(err, tools.ErrUnknownTool):
			outcome = "unknown"
			err = fmt.Errorf("unknown tool %q", call.Name)
		case errors.As(err, &verr):
			outcome = "invalid"
		}
		log.Printf("Tool call %s failed: %v", call.Name, err)
		metrics.ObserveToolCall(call.Name, outcome)

		record.Error = err.Error()
		res.ToolCalls = append(res.ToolCalls, record)
		return map[string]any{"success": false, "error": err.Error()}, nil
	}

	metrics.ObserveToolCall(call.Name, "ok")
	record.Success = true
	res.ToolCalls = append(res.ToolCalls, record)

	response := make(map[string]any, len(out.Output)+2)
	for k, v := range out.Output {
		response[k] = v
	}
	response["success"] = true
	if out.Artifact != nil {
		res.Artifact = out.Artifact
		inv.Current = out.Artifact
		response["artifact_id"] = out.Artifact.ID
		// a newer design supersedes the renders of an earlier one
		if out.Artifact.Type == artifact.TypeDesign {
			res.Images = nil
		}
	}
	res.Images = append(res.Images, out.Images...)
	return response, nil
}

type dispatchResult struct {
	res *tools.Result
	err error
}

// dispatch runs the handler under ToolTimeout and stops waiting once the deadline passes,
// even if the handler ignores its context.
func (o *Orchestrator) dispatch(ctx context.Context, inv *tools.Invocation, call ToolCall) (*tools.Result, error) {
	timeout := o.ToolTimeout
	if timeout <= 0 {
		timeout = DefaultToolTimeout
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan dispatchResult, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- dispatchResult{err: fmt.Errorf("tool %s panicked: %v", call.Name, p)}
			}
		}()
		r, err := o.registry.Dispatch(tctx, inv, call.Name, call.Args)
		done <- dispatchResult{res: r, err: err}
	}()

	select {
	case d := <-done:
		return d.res, d.err
	case <-tctx.Done():
		return nil, tctx.Err()
	}
}

// historyTurns replays stored messages as plain text turns in insertion order.
func historyTurns(messages []store.Message) []Turn {
	turns := make([]Turn, 0, len(messages)+1)
	for _, m := range messages {
		if m.Content == "" || m.Role == store.RoleSystem {
			continue
		}
		role := RoleUser
		if m.Role == store.RoleAssistant {
			role = RoleModel
		}
		turns = append(turns, Turn{Role: role, Parts: []Part{{Text: m.Content}}})
	}
	return turns
}

func describeOutcome(name string, response map[string]any) string {
	if ok, _ := response["success"].(bool); ok {
		return fmt.Sprintf("the %s step completed", name)
	}
	return fmt.Sprintf("the %s step failed (%v)", name, response["error"])
}

func cappedReply(lastText string, candidate *artifact.Artifact, lastOutcome string) string {
	if lastText != "" {
		return lastText
	}
	if candidate != nil {
		return fmt.Sprintf("I've prepared %s, but I couldn't finish everything in one go. Let me know how you'd like to continue.", candidate.Summary())
	}
	if lastOutcome != "" {
		return fmt.Sprintf("I wasn't able to complete your request: %s. Could you try rephrasing it?", lastOutcome)
	}
	return "I wasn't able to complete your request. Could you try rephrasing it?"
}
