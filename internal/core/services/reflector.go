package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/manthysbr/auleagent/internal/core/domain"
)

// Reflector critiques the latest action/result pair.
type Reflector struct {
	logger *slog.Logger
	engine domain.ReasoningEngine
	tracer *TraceCollector
	params domain.GenerationParams
	window int
}

// NewReflector creates a reflector.
func NewReflector(logger *slog.Logger, engine domain.ReasoningEngine, tracer *TraceCollector, cfg domain.AgentConfig) *Reflector {
	return &Reflector{
		logger: logger,
		engine: engine,
		tracer: tracer,
		params: cfg.Reflector,
		window: cfg.ReflectionWindow,
	}
}

// Reflect returns guidance for the next step. The text is always usable: on
// failure it carries the error and err reports the engine failure so the loop
// can decide whether the cycle counts as clean.
func (r *Reflector) Reflect(ctx context.Context, goal string, action domain.Action, result domain.ToolResult, mem *MemoryManager, attachments []domain.Attachment) (text string, err error) {
	var recent []domain.MemoryEntry
	if mem != nil {
		recent = mem.RecentEntries(r.window)
	}

	outcome := "FAILED"
	if result.Success {
		outcome = "SUCCEEDED"
	}

	prompt := fmt.Sprintf(`Reflect on the last action taken toward the goal.

Goal: %s

Action: %s
Outcome: %s
Result: %s

Recent steps:
%s

In a few sentences: did the action move toward the goal, what went wrong if anything, and what should be done next?`,
		goal, action.String(), outcome, truncate(result.Output, maxInputOutput), domain.RenderEntries(recent))

	if r.engine == nil {
		return "Reflection unavailable: no reasoning engine configured", fmt.Errorf("no reasoning engine configured")
	}

	spanCtx, spanID := r.tracer.StartSpan(ctx, "llm.reflect", domain.SpanKindLLM, nil)
	r.tracer.SetSpanInput(spanID, prompt)
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("reflection panicked", "panic", p)
			err = fmt.Errorf("reasoning engine panicked: %v", p)
			text = fmt.Sprintf("Reflection failed: %v", err)
			r.tracer.EndSpan(spanID, domain.SpanStatusError, "", err.Error())
		}
	}()

	resp, err := r.engine.Generate(spanCtx, domain.GenerationRequest{
		Prompt: prompt,
		Images: domain.ImageAttachments(attachments),
		Params: r.params,
	})
	if err != nil {
		r.tracer.EndSpan(spanID, domain.SpanStatusError, "", err.Error())
		r.logger.Warn("reflection failed", "error", err)
		return fmt.Sprintf("Reflection failed: %v", err), err
	}

	text = strings.TrimSpace(resp.Text())
	if text == "" {
		text = "No reflection produced."
	}
	r.tracer.EndSpan(spanID, domain.SpanStatusOK, text, "")
	return text, nil
}
