package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/manthysbr/auleagent/internal/core/domain"
)

// PlanInput is everything the planner reads for one step.
type PlanInput struct {
	Goal        string
	Step        int
	Memory      *MemoryManager
	Attachments []domain.Attachment
	Catalog     *domain.CapabilityRegistry
}

// Plan is the planner's answer for one step.
type Plan struct {
	Thought      string
	ActionText   string // raw text of the Action: line, if any
	Raw          string // full text output of the planning call
	Action       domain.Action
	Structured   bool // the planning call itself returned a function call
	UsedFallback bool
	FallbackErr  error // the fallback call failed; Action came from local parsing
}

// Planner composes the planning prompt and turns the engine's answer into a
// structured action.
type Planner struct {
	logger           *slog.Logger
	engine           domain.ReasoningEngine
	tracer           *TraceCollector
	params           domain.GenerationParams
	fallbackParams   domain.GenerationParams
	memoryWindow     int
	suggestionWindow int
	completionToken  string
}

// NewPlanner creates a planner.
func NewPlanner(logger *slog.Logger, engine domain.ReasoningEngine, tracer *TraceCollector, cfg domain.AgentConfig) *Planner {
	return &Planner{
		logger:           logger,
		engine:           engine,
		tracer:           tracer,
		params:           cfg.Planner,
		fallbackParams:   cfg.Fallback,
		memoryWindow:     cfg.MemoryWindow,
		suggestionWindow: cfg.SuggestionWindow,
		completionToken:  cfg.CompletionToken,
	}
}

// Plan asks the engine for the next thought and action. An error means the
// planning call itself failed; a failed fallback call degrades to local
// parsing of the Action: line.
func (p *Planner) Plan(ctx context.Context, in PlanInput) (*Plan, error) {
	prompt := p.BuildPrompt(in)
	caps := catalogList(in.Catalog)

	resp, err := p.generate(ctx, fmt.Sprintf("llm.plan (step %d)", in.Step), domain.GenerationRequest{
		Prompt:       prompt,
		Images:       domain.ImageAttachments(in.Attachments),
		Capabilities: caps,
		Params:       p.params,
	})
	if err != nil {
		return nil, fmt.Errorf("planning call: %w", err)
	}

	raw := resp.Text()
	plan := &Plan{
		Raw:        raw,
		Thought:    parseThought(raw),
		ActionText: parseActionLine(raw),
	}

	if call := resp.FirstCall(); call != nil && call.Name != "" {
		plan.Action = domain.ActionFromCall(*call)
		plan.Structured = true
		return plan, nil
	}

	plan.UsedFallback = true
	action, err := p.fallback(ctx, in, plan, caps)
	if err != nil {
		plan.FallbackErr = err
		p.logger.Warn("text to action fallback failed, parsing locally", "step", in.Step, "error", err)
	}
	if action.IsZero() {
		if parsed, ok := parseTextAction(raw); ok {
			action = parsed
		}
	}
	plan.Action = action
	if plan.Action.IsZero() {
		p.logger.Warn("planner produced no action", "step", in.Step)
	}
	return plan, nil
}

// fallback makes a second, dedicated call whose only job is to translate the
// free-text action into a function call.
func (p *Planner) fallback(ctx context.Context, in PlanInput, plan *Plan, caps []*domain.Capability) (domain.Action, error) {
	text := plan.ActionText
	if text == "" {
		text = strings.TrimSpace(plan.Raw)
	}
	if text == "" {
		text = "(empty response)"
	}

	prompt := fmt.Sprintf(`Convert the following planned action into exactly one function call.
Use only the available functions and the argument names from their schemas.
Do not explain anything; respond with the function call only.

Goal: %s

Planned action:
%s`, in.Goal, text)

	resp, err := p.generate(ctx, fmt.Sprintf("llm.fallback (step %d)", in.Step), domain.GenerationRequest{
		Prompt:       prompt,
		Capabilities: caps,
		Params:       p.fallbackParams,
	})
	if err != nil {
		return domain.Action{}, err
	}
	if call := resp.FirstCall(); call != nil && call.Name != "" {
		return domain.ActionFromCall(*call), nil
	}
	if parsed, ok := parseTextAction(resp.Text()); ok {
		return parsed, nil
	}
	return domain.Action{}, nil
}

// generate calls the engine inside an llm span. A panicking engine is
// reported as an error like any other engine failure.
func (p *Planner) generate(ctx context.Context, spanName string, req domain.GenerationRequest) (resp *domain.GenerationResponse, err error) {
	if p.engine == nil {
		return nil, fmt.Errorf("no reasoning engine configured")
	}
	spanCtx, spanID := p.tracer.StartSpan(ctx, spanName, domain.SpanKindLLM, nil)
	p.tracer.SetSpanInput(spanID, clipTail(req.Prompt, maxInputOutput))
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("reasoning engine panicked", "span", spanName, "panic", r)
			resp, err = nil, fmt.Errorf("reasoning engine panicked: %v", r)
			p.tracer.EndSpan(spanID, domain.SpanStatusError, "", err.Error())
		}
	}()

	resp, err = p.engine.Generate(spanCtx, req)
	if err != nil {
		p.tracer.EndSpan(spanID, domain.SpanStatusError, "", err.Error())
		return nil, err
	}
	out := resp.Text()
	if call := resp.FirstCall(); call != nil {
		out = strings.TrimSpace(out + "\n" + domain.ActionFromCall(*call).JSON())
	}
	p.tracer.EndSpan(spanID, domain.SpanStatusOK, out, "")
	return resp, nil
}

// BuildPrompt renders the planning prompt.
func (p *Planner) BuildPrompt(in PlanInput) string {
	observation := fmt.Sprintf("No observation yet. Use %s to look at the scene before acting.", domain.CapObserveScene)
	var entries []domain.MemoryEntry
	var suggestions []domain.Suggestion
	structural := ""
	if in.Memory != nil {
		if obs, ok := in.Memory.CurrentObservation(); ok && strings.TrimSpace(obs.Text) != "" {
			observation = fmt.Sprintf("(step %d) %s", obs.Step, obs.Text)
		}
		entries = in.Memory.RecentEntries(p.memoryWindow)
		suggestions = in.Memory.RecentSuggestions(p.suggestionWindow)
		structural = in.Memory.StructuralState()
	}

	var suggestionBlock string
	if len(suggestions) > 0 {
		lines := make([]string, 0, len(suggestions))
		for _, s := range suggestions {
			lines = append(lines, fmt.Sprintf("- (step %d) %s", s.Step, s.Text))
		}
		suggestionBlock = "\n## Operator Suggestions\n" + strings.Join(lines, "\n") + "\n"
	}

	var structuralBlock string
	if strings.TrimSpace(structural) != "" {
		structuralBlock = "\n## Scene Structure\n" + structural + "\n"
	}

	var attachmentBlock string
	if len(in.Attachments) > 0 {
		lines := make([]string, 0, len(in.Attachments))
		for i, a := range in.Attachments {
			desc := a.Description
			if desc == "" {
				desc = "(no description)"
			}
			lines = append(lines, fmt.Sprintf("- attachment %d [%s]: %s", i+1, a.MIMEType, desc))
		}
		attachmentBlock = "\n## Attachments\n" + strings.Join(lines, "\n") + "\n"
	}

	catalogText := "No capabilities available."
	if in.Catalog != nil {
		catalogText = in.Catalog.FormatForPrompt()
	}

	token := p.completionToken
	if token == "" {
		token = "TASK_COMPLETE"
	}

	return fmt.Sprintf(`You are an autonomous agent working inside a 3D scene editor. You reach the goal one action at a time.

## Goal
%s

## Current Observation
%s

## Previous Steps
%s
%s%s%s
## Capabilities
%s
## Rules
1. Think about what the observation and previous steps tell you, then pick exactly ONE capability to call.
2. Call the capability as a function call. If you cannot, write it on an Action: line as name(arg=value, ...).
3. Verify important changes with %s or %s before assuming they worked.
4. Learn from the reflections of failed steps; do not repeat an action that already failed the same way.
5. If the goal is already satisfied, say %s.

This is step %d. Respond in this format:
Thought: <your reasoning>
Action: <capability call>`,
		in.Goal, observation, domain.RenderEntries(entries),
		suggestionBlock, structuralBlock, attachmentBlock,
		catalogText,
		domain.CapObserveScene, domain.CapGetSceneState, token,
		in.Step)
}

func catalogList(r *domain.CapabilityRegistry) []*domain.Capability {
	if r == nil {
		return nil
	}
	return r.List()
}
