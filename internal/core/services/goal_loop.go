package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/manthysbr/auleagent/internal/core/domain"
	"github.com/manthysbr/auleagent/internal/core/ports"
)

// RunRequest starts one goal-directed run.
type RunRequest struct {
	ID          domain.RunID // generated when empty
	Goal        string
	Attachments []domain.Attachment
	Suggestions []string // operator guidance known before the run starts
}

// GoalLoop drives Planning → Dispatching → Reflecting → CompletionCheck until
// the goal is reached or a budget runs out. Steps run strictly one after
// another; a GoalLoop serves one run at a time.
type GoalLoop struct {
	logger     *slog.Logger
	cfg        domain.AgentConfig
	planner    *Planner
	dispatcher *ActionDispatcher
	reflector  *Reflector
	oracle     *CompletionOracle
	observer   *ObservationSource
	catalog    *domain.CapabilityRegistry
	tracer     *TraceCollector
	events     *EventBus
	runs       ports.RunRepository
}

// GoalLoopDeps groups the collaborators of a GoalLoop. Observer, Tracer,
// Events and Runs are optional.
type GoalLoopDeps struct {
	Planner    *Planner
	Dispatcher *ActionDispatcher
	Reflector  *Reflector
	Oracle     *CompletionOracle
	Observer   *ObservationSource
	Catalog    *domain.CapabilityRegistry
	Tracer     *TraceCollector
	Events     *EventBus
	Runs       ports.RunRepository
}

// NewGoalLoop creates a run loop.
func NewGoalLoop(logger *slog.Logger, cfg domain.AgentConfig, deps GoalLoopDeps) *GoalLoop {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = domain.DefaultAgentConfig().MaxSteps
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = domain.DefaultAgentConfig().MaxFailures
	}
	return &GoalLoop{
		logger:     logger,
		cfg:        cfg,
		planner:    deps.Planner,
		dispatcher: deps.Dispatcher,
		reflector:  deps.Reflector,
		oracle:     deps.Oracle,
		observer:   deps.Observer,
		catalog:    deps.Catalog,
		tracer:     deps.Tracer,
		events:     deps.Events,
		runs:       deps.Runs,
	}
}

// Run executes the loop and always returns a report. A single failing
// dependency never ends the run; only the step budget, the consecutive
// failure budget, completion or context cancellation do.
func (l *GoalLoop) Run(ctx context.Context, req RunRequest) domain.RunReport {
	if req.ID == "" {
		req.ID = domain.NewRunID()
	}
	topic := string(req.ID)
	mem := NewMemoryManager(l.cfg.ObservationHistory)
	for _, sg := range req.Suggestions {
		mem.AddSuggestion(0, sg)
	}
	if l.observer != nil {
		l.observer.Reset()
	}

	report := domain.RunReport{
		ID:        req.ID,
		Goal:      req.Goal,
		StartedAt: time.Now(),
	}

	l.logger.Info("starting goal loop", "run_id", topic, "goal", req.Goal, "max_steps", l.cfg.MaxSteps)

	traceName := "run: " + req.Goal
	if len(traceName) > 80 {
		traceName = clip(traceName, 80) + "..."
	}
	ctx, traceID, _ := l.tracer.StartTrace(ctx, req.ID, traceName, map[string]string{"run_id": topic})
	ctx = ContextWithRun(ctx, req.ID, req.Goal, mem)

	l.events.publishRunEvent(topic, EventTypeRunStart, map[string]interface{}{
		"run_id": req.ID,
		"goal":   req.Goal,
	})

	failures := 0
	token := l.cfg.CompletionToken

	for step := 1; step <= l.cfg.MaxSteps; step++ {
		if err := ctx.Err(); err != nil {
			report.Status = domain.RunCancelled
			report.Summary = fmt.Sprintf("Task cancelled before step %d: %v", step, err)
			break
		}
		report.Steps = step
		stepCtx := ContextWithStep(ctx, step)

		l.logger.Info("goal loop step", "run_id", topic, "step", step)
		l.events.publishRunEvent(topic, EventTypeStep, map[string]interface{}{"step": step})

		// Planning
		plan, err := l.planner.Plan(stepCtx, PlanInput{
			Goal:        req.Goal,
			Step:        step,
			Memory:      mem,
			Attachments: req.Attachments,
			Catalog:     l.catalog,
		})
		if err != nil {
			failures++
			l.logger.Error("planning failed", "run_id", topic, "step", step, "consecutive_failures", failures, "error", err)
			if failures >= l.cfg.MaxFailures {
				report.Status = domain.RunMaxFailuresExhausted
				report.Summary = fmt.Sprintf("Task failed due to %d consecutive failures. Last error: %v", failures, err)
				break
			}
			continue
		}

		l.events.publishRunEvent(topic, EventTypeAction, map[string]interface{}{
			"step":     step,
			"thought":  plan.Thought,
			"action":   plan.Action.JSON(),
			"fallback": plan.UsedFallback,
		})

		// Dispatching
		result := l.dispatcher.Dispatch(stepCtx, step, plan.Action)
		l.logger.Info("action dispatched", "run_id", topic, "step", step, "action", plan.Action.Name,
			"success", result.Success, "output", truncate(result.Output, 200))
		l.events.publishRunEvent(topic, EventTypeResult, map[string]interface{}{
			"step":    step,
			"success": result.Success,
			"output":  result.Output,
		})

		if token != "" && strings.Contains(result.Output, token) {
			report.Status = domain.RunTaskComplete
			report.Summary = fmt.Sprintf("Task completed at step %d: completion token reported by %s.", step, plan.Action.Name)
			break
		}

		// Reflecting
		reflection, reflectErr := l.reflector.Reflect(stepCtx, req.Goal, plan.Action, result, mem, req.Attachments)
		mem.Append(domain.MemoryEntry{
			Step:       step,
			Thought:    plan.Thought,
			Action:     plan.Action.JSON(),
			Result:     result.Output,
			Success:    result.Success,
			Reflection: reflection,
		})
		l.events.publishRunEvent(topic, EventTypeReflection, map[string]interface{}{
			"step":       step,
			"reflection": reflection,
		})

		// Only a cycle in which every reasoning call succeeded is clean.
		// Fallback and reflection errors do not count as failures, but they
		// keep the counter where it is.
		if plan.FallbackErr == nil && reflectErr == nil {
			failures = 0
		} else if failures > 0 {
			l.logger.Warn("cycle had reasoning errors, failure counter kept", "run_id", topic, "step", step,
				"consecutive_failures", failures, "fallback_error", plan.FallbackErr, "reflection_error", reflectErr)
		}

		// CompletionCheck
		if l.oracle.IsComplete(stepCtx, req.Goal, completionEvidence(plan.Action, result, reflection, mem)) {
			report.Status = domain.RunTaskComplete
			report.Summary = fmt.Sprintf("Task completed at step %d: goal achieved.", step)
			break
		}
	}

	if report.Status == "" {
		report.Status = domain.RunMaxStepsExhausted
		report.Summary = fmt.Sprintf("Task not completed within %d steps.", l.cfg.MaxSteps)
	}

	report.Failures = failures
	report.Memory = mem.Entries()
	report.EndedAt = time.Now()

	l.logger.Info("goal loop finished", "run_id", topic, "status", report.Status, "steps", report.Steps, "memory", len(report.Memory))

	traceStatus := domain.SpanStatusOK
	traceErr := ""
	if report.Status != domain.RunTaskComplete {
		traceStatus = domain.SpanStatusError
		traceErr = string(report.Status)
	}
	l.tracer.EndTrace(traceID, traceStatus, traceErr)

	text := report.Text()
	l.events.publishRunEvent(topic, EventTypeRunEnd, map[string]interface{}{
		"status": report.Status,
		"steps":  report.Steps,
		"report": text,
	})

	l.saveRun(ctx, report, text)
	return report
}

func (l *GoalLoop) saveRun(ctx context.Context, report domain.RunReport, text string) {
	if l.runs == nil {
		return
	}
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	err := l.runs.SaveRun(saveCtx, domain.RunSummary{
		ID:        report.ID,
		Goal:      report.Goal,
		Status:    report.Status,
		Steps:     report.Steps,
		Report:    text,
		StartedAt: report.StartedAt,
		EndedAt:   report.EndedAt,
	})
	if err != nil {
		l.logger.Error("failed to persist run", "run_id", string(report.ID), "error", err)
	}
}

// completionEvidence is what the oracle judges: the last action and its
// result, plus the freshest observation when there is one.
func completionEvidence(action domain.Action, result domain.ToolResult, reflection string, mem *MemoryManager) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Action: %s\nResult: %s\n", action.String(), result.Output)
	if obs, ok := mem.CurrentObservation(); ok && !obs.Failed {
		fmt.Fprintf(&b, "Observation (step %d): %s\n", obs.Step, obs.Text)
	}
	if reflection != "" {
		fmt.Fprintf(&b, "Reflection: %s\n", reflection)
	}
	return b.String()
}
