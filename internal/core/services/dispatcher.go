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

// ActionDispatcher routes a planned action to a local handler or the remote
// session and normalizes the outcome. Dispatch never fails: every error
// becomes a failed ToolResult and every call is written to the execution log.
type ActionDispatcher struct {
	logger     *slog.Logger
	catalog    *domain.CapabilityRegistry
	session    ports.CapabilitySession
	settler    Settler
	classifier SuccessClassifier
	execLog    ports.ExecutionLog
	tracer     *TraceCollector
}

// NewActionDispatcher creates a dispatcher. execLog and tracer may be nil.
func NewActionDispatcher(
	logger *slog.Logger,
	catalog *domain.CapabilityRegistry,
	session ports.CapabilitySession,
	settler Settler,
	classifier SuccessClassifier,
	execLog ports.ExecutionLog,
	tracer *TraceCollector,
) *ActionDispatcher {
	if settler == nil {
		settler = DelaySettler{}
	}
	if classifier == nil {
		classifier = HeuristicClassifier{}
	}
	return &ActionDispatcher{
		logger:     logger,
		catalog:    catalog,
		session:    session,
		settler:    settler,
		classifier: classifier,
		execLog:    execLog,
		tracer:     tracer,
	}
}

// Dispatch executes one action for the given step.
func (d *ActionDispatcher) Dispatch(ctx context.Context, step int, action domain.Action) (result domain.ToolResult) {
	spanCtx, spanID := d.tracer.StartSpan(ctx, "tool."+action.Name, domain.SpanKindTool, map[string]string{
		"tool": action.Name,
		"step": fmt.Sprintf("%d", step),
	})
	d.tracer.SetSpanInput(spanID, action.JSON())

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("dispatch panicked", "action", action.Name, "panic", r)
			result = domain.Failure(fmt.Sprintf("Tool execution error: %v", r))
		}
		status := domain.SpanStatusOK
		errMsg := ""
		if !result.Success {
			status = domain.SpanStatusError
			errMsg = truncate(result.Output, 200)
		}
		d.tracer.EndSpan(spanID, status, result.Output, errMsg)
		d.record(ctx, step, action, result)
	}()

	action, result = d.execute(spanCtx, step, action)
	return result
}

// execute returns the action as actually run, with a corrected name when
// fuzzy resolution kicked in.
func (d *ActionDispatcher) execute(ctx context.Context, step int, action domain.Action) (domain.Action, domain.ToolResult) {
	if action.IsZero() {
		return action, domain.Failure("Tool execution error: no action selected")
	}
	if d.catalog == nil {
		return action, domain.Failure("Tool execution error: " + domain.ErrNotConnected.Error())
	}

	capability, corrected, err := d.catalog.Resolve(action.Name)
	if err != nil {
		return action, domain.Failure(fmt.Sprintf("Tool execution error: %v", err))
	}
	if corrected {
		d.logger.Warn("capability name auto-corrected", "requested", action.Name, "resolved", capability.Name)
		action = domain.NewAction(capability.Name, action.ArgsMap())
	}
	return action, d.invoke(ctx, step, capability, action)
}

func (d *ActionDispatcher) invoke(ctx context.Context, step int, capability *domain.Capability, action domain.Action) domain.ToolResult {
	d.logger.Info("dispatching action", "step", step, "capability", capability.Name, "origin", capability.Origin)

	if capability.Origin == domain.OriginLocal {
		res, err := capability.Handler(ctx, step, action.Args)
		if err != nil {
			return domain.Failure(fmt.Sprintf("Tool execution error: %v", err))
		}
		if strings.TrimSpace(res.Output) == "" {
			res.Output = "No response from tool"
		}
		return res
	}

	if d.session == nil {
		return domain.Failure("Tool execution error: " + domain.ErrNotConnected.Error())
	}

	res, err := d.session.CallTool(ctx, capability.Name, action.ArgsMap())
	if err != nil {
		return domain.Failure(fmt.Sprintf("Tool execution error: %v", err))
	}

	d.settler.Settle(ctx)

	if strings.TrimSpace(res.Text) == "" {
		return domain.Failure("No response from tool")
	}
	return domain.ToolResult{
		Success: d.classifier.Classify(res),
		Output:  res.Text,
	}
}

// record appends to the execution log. Log failures are reported but never
// change the dispatch outcome.
func (d *ActionDispatcher) record(ctx context.Context, step int, action domain.Action, result domain.ToolResult) {
	if d.execLog == nil {
		return
	}
	runID, _ := RunIDFromContext(ctx)
	rec := domain.ExecutionLogRecord{
		RunID:     string(runID),
		Step:      step,
		Action:    action.JSON(),
		Result:    result.Output,
		Success:   result.Success,
		Timestamp: time.Now(),
	}
	if err := d.execLog.Append(ctx, rec); err != nil {
		d.logger.Error("failed to append execution log", "error", err, "action", action.Name)
	}
}
