package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/manthysbr/auleagent/internal/core/domain"
)

// CompletionOracle judges whether the goal is satisfied, independently of
// whether the last tool call succeeded.
type CompletionOracle struct {
	logger *slog.Logger
	engine domain.ReasoningEngine
	tracer *TraceCollector
	params domain.GenerationParams
}

// NewCompletionOracle creates an oracle.
func NewCompletionOracle(logger *slog.Logger, engine domain.ReasoningEngine, tracer *TraceCollector, cfg domain.AgentConfig) *CompletionOracle {
	return &CompletionOracle{
		logger: logger,
		engine: engine,
		tracer: tracer,
		params: cfg.Oracle,
	}
}

// IsComplete returns true only when the verdict contains GOAL_ACHIEVED.
// Any failure counts as not complete.
func (o *CompletionOracle) IsComplete(ctx context.Context, goal, evidence string) (done bool) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("completion check panicked", "panic", r)
			done = false
		}
	}()

	if o.engine == nil {
		return false
	}

	prompt := fmt.Sprintf(`Decide whether the goal has been achieved.

Goal: %s

Latest evidence:
%s

Answer with exactly one of %s, %s or %s on the first line, followed by a short justification.`,
		goal, truncate(evidence, maxInputOutput),
		domain.VerdictAchieved, domain.VerdictNotAchieved, domain.VerdictPartial)

	spanCtx, spanID := o.tracer.StartSpan(ctx, "llm.oracle", domain.SpanKindLLM, nil)
	o.tracer.SetSpanInput(spanID, prompt)

	resp, err := o.engine.Generate(spanCtx, domain.GenerationRequest{
		Prompt: prompt,
		Params: o.params,
	})
	if err != nil {
		o.tracer.EndSpan(spanID, domain.SpanStatusError, "", err.Error())
		o.logger.Warn("completion check failed", "error", err)
		return false
	}

	verdict := resp.Text()
	o.tracer.EndSpan(spanID, domain.SpanStatusOK, verdict, "")
	return containsAchieved(verdict)
}

func containsAchieved(verdict string) bool {
	return strings.Contains(strings.ToUpper(verdict), domain.VerdictAchieved)
}
