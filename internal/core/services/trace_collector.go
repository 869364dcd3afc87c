package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/manthysbr/auleagent/internal/core/domain"
)

const (
	maxTraces      = 200  // ring buffer size
	maxInputOutput = 2000 // truncate input/output at 2KB
)

// TraceRepository is the minimal persistence interface needed by TraceCollector.
type TraceRepository interface {
	SaveTrace(ctx context.Context, trace *domain.Trace) error
}

// TraceCollector gathers, stores, and exposes run traces and their spans.
// Thread-safe. Operates as a ring buffer of recent traces; the HTTP shell
// reads from it while runs write to it.
type TraceCollector struct {
	mu       sync.RWMutex
	logger   *slog.Logger
	eventBus *EventBus
	repo     TraceRepository // optional; if non-nil, completed traces are persisted

	traces     map[domain.TraceID]*domain.Trace
	spans      map[domain.SpanID]*domain.Span
	byRun      map[domain.RunID]domain.TraceID
	traceOrder []domain.TraceID // oldest first, for eviction
}

// NewTraceCollector creates a new collector with optional EventBus for real-time events.
// repo may be nil; when provided, traces are persisted to DB on completion.
func NewTraceCollector(logger *slog.Logger, eventBus *EventBus, repo TraceRepository) *TraceCollector {
	return &TraceCollector{
		logger:   logger,
		eventBus: eventBus,
		repo:     repo,
		traces:   make(map[domain.TraceID]*domain.Trace, maxTraces),
		spans:    make(map[domain.SpanID]*domain.Span, maxTraces*10),
		byRun:    make(map[domain.RunID]domain.TraceID, maxTraces),
	}
}

type traceCtxKey struct{}
type spanCtxKey struct{}

// ContextWithTrace stores trace and span IDs in context for propagation.
func ContextWithTrace(ctx context.Context, traceID domain.TraceID, spanID domain.SpanID) context.Context {
	ctx = context.WithValue(ctx, traceCtxKey{}, traceID)
	return context.WithValue(ctx, spanCtxKey{}, spanID)
}

// TraceFromContext extracts trace and current span ID from context.
func TraceFromContext(ctx context.Context) (domain.TraceID, domain.SpanID, bool) {
	traceID, ok1 := ctx.Value(traceCtxKey{}).(domain.TraceID)
	spanID, ok2 := ctx.Value(spanCtxKey{}).(domain.SpanID)
	return traceID, spanID, ok1 && ok2
}

// StartTrace opens the trace of one run. A run has at most one trace; starting
// a second one for the same run id replaces the index entry.
func (tc *TraceCollector) StartTrace(ctx context.Context, runID domain.RunID, name string, attrs map[string]string) (context.Context, domain.TraceID, domain.SpanID) {
	if tc == nil {
		return ctx, "", ""
	}
	name = clip(name, maxInputOutput)
	now := time.Now()
	trace := &domain.Trace{
		ID:         domain.TraceID(uuid.New().String()),
		RunID:      runID,
		RootSpanID: domain.SpanID(uuid.New().String()),
		Name:       name,
		Status:     domain.SpanStatusRunning,
		StartTime:  now,
		SpanCount:  1,
	}
	root := &domain.Span{
		ID:         trace.RootSpanID,
		TraceID:    trace.ID,
		Name:       name,
		Kind:       domain.SpanKindRun,
		Status:     domain.SpanStatusRunning,
		Attributes: attrs,
		StartTime:  now,
	}

	tc.mu.Lock()
	tc.evictIfNeeded()
	tc.traces[trace.ID] = trace
	tc.spans[root.ID] = root
	tc.traceOrder = append(tc.traceOrder, trace.ID)
	if runID != "" {
		tc.byRun[runID] = trace.ID
	}
	tc.mu.Unlock()

	tc.publishEvent(trace.ID, "trace_start", map[string]interface{}{
		"trace_id": trace.ID,
		"run_id":   runID,
		"name":     name,
	})
	tc.logger.Debug("trace started", "trace_id", string(trace.ID), "run_id", string(runID))

	return ContextWithTrace(ctx, trace.ID, root.ID), trace.ID, root.ID
}

// EndTrace closes the run's trace and its root span, then persists a snapshot
// in the background when a repository is configured.
func (tc *TraceCollector) EndTrace(traceID domain.TraceID, status domain.SpanStatus, errMsg string) {
	if tc == nil || traceID == "" {
		return
	}

	tc.mu.Lock()
	trace, ok := tc.traces[traceID]
	if !ok {
		tc.mu.Unlock()
		return
	}
	now := time.Now()
	trace.Status = status
	trace.EndTime = &now
	trace.DurationMs = now.Sub(trace.StartTime).Milliseconds()
	if root, ok := tc.spans[trace.RootSpanID]; ok {
		finishSpan(root, status, now)
		root.Error = clip(errMsg, maxInputOutput)
	}
	var snapshot *domain.Trace
	if tc.repo != nil {
		snapshot = tc.snapshotLocked(trace)
	}
	event := map[string]interface{}{
		"trace_id":    traceID,
		"run_id":      trace.RunID,
		"status":      status,
		"duration_ms": trace.DurationMs,
	}
	tc.mu.Unlock()

	tc.publishEvent(traceID, "trace_end", event)

	if snapshot == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := tc.repo.SaveTrace(ctx, snapshot); err != nil {
			tc.logger.Warn("failed to persist trace", "trace_id", string(traceID), "run_id", string(snapshot.RunID), "error", err)
		}
	}()
}

// StartSpan opens a child of the span in ctx. The loop step in ctx, if any,
// is recorded on the span. Without a trace in ctx the span is a no-op.
func (tc *TraceCollector) StartSpan(ctx context.Context, name string, kind domain.SpanKind, attrs map[string]string) (context.Context, domain.SpanID) {
	traceID, parentID, ok := TraceFromContext(ctx)
	if tc == nil || !ok {
		return ctx, ""
	}
	step, _ := StepFromContext(ctx)

	span := &domain.Span{
		ID:         domain.SpanID(uuid.New().String()),
		ParentID:   parentID,
		TraceID:    traceID,
		Step:       step,
		Name:       name,
		Kind:       kind,
		Status:     domain.SpanStatusRunning,
		Attributes: attrs,
		StartTime:  time.Now(),
	}

	tc.mu.Lock()
	tc.spans[span.ID] = span
	if parent, ok := tc.spans[parentID]; ok {
		parent.Children = append(parent.Children, span.ID)
	}
	if trace, ok := tc.traces[traceID]; ok {
		trace.SpanCount++
	}
	tc.mu.Unlock()

	tc.publishEvent(traceID, "span_start", map[string]interface{}{
		"span_id":   span.ID,
		"parent_id": parentID,
		"step":      step,
		"name":      name,
		"kind":      kind,
	})
	return ContextWithTrace(ctx, traceID, span.ID), span.ID
}

// EndSpan records the outcome of a span. Output and error are clipped.
func (tc *TraceCollector) EndSpan(spanID domain.SpanID, status domain.SpanStatus, output string, errMsg string) {
	if tc == nil || spanID == "" {
		return
	}

	tc.mu.Lock()
	span, ok := tc.spans[spanID]
	if !ok {
		tc.mu.Unlock()
		return
	}
	finishSpan(span, status, time.Now())
	span.Output = truncate(output, maxInputOutput)
	if errMsg != "" {
		span.Error = truncate(errMsg, maxInputOutput)
	}
	event := map[string]interface{}{
		"span_id":     spanID,
		"step":        span.Step,
		"name":        span.Name,
		"kind":        span.Kind,
		"status":      status,
		"duration_ms": span.DurationMs,
	}
	traceID := span.TraceID
	tc.mu.Unlock()

	tc.publishEvent(traceID, "span_end", event)
}

// SetSpanInput attaches the (clipped) input of a span.
func (tc *TraceCollector) SetSpanInput(spanID domain.SpanID, input string) {
	if tc == nil || spanID == "" {
		return
	}
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if span, ok := tc.spans[spanID]; ok {
		span.Input = truncate(input, maxInputOutput)
	}
}

// ListTraces returns summaries of recent traces, newest first.
func (tc *TraceCollector) ListTraces(limit int) []domain.TraceSummary {
	if tc == nil {
		return []domain.TraceSummary{}
	}
	tc.mu.RLock()
	defer tc.mu.RUnlock()

	if limit <= 0 || limit > len(tc.traceOrder) {
		limit = len(tc.traceOrder)
	}
	out := make([]domain.TraceSummary, 0, limit)
	for i := len(tc.traceOrder) - 1; i >= 0 && len(out) < limit; i-- {
		if trace, ok := tc.traces[tc.traceOrder[i]]; ok {
			out = append(out, trace.Summary())
		}
	}
	return out
}

// GetTrace returns a trace with its spans ordered by start time.
func (tc *TraceCollector) GetTrace(traceID domain.TraceID) (*domain.Trace, error) {
	if tc == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrTraceNotFound, traceID)
	}
	tc.mu.RLock()
	defer tc.mu.RUnlock()

	trace, ok := tc.traces[traceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrTraceNotFound, traceID)
	}
	return tc.snapshotLocked(trace), nil
}

// TraceForRun returns the trace of a run still held in memory.
func (tc *TraceCollector) TraceForRun(runID domain.RunID) (*domain.Trace, error) {
	if tc == nil {
		return nil, fmt.Errorf("%w: run %s", domain.ErrTraceNotFound, runID)
	}
	tc.mu.RLock()
	traceID, ok := tc.byRun[runID]
	tc.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: run %s", domain.ErrTraceNotFound, runID)
	}
	return tc.GetTrace(traceID)
}

// snapshotLocked copies a trace and its spans. Caller holds tc.mu.
func (tc *TraceCollector) snapshotLocked(trace *domain.Trace) *domain.Trace {
	cp := *trace
	cp.Spans = nil
	for _, span := range tc.spans {
		if span.TraceID == trace.ID {
			s := *span
			s.Children = append([]domain.SpanID(nil), span.Children...)
			cp.Spans = append(cp.Spans, s)
		}
	}
	sort.Slice(cp.Spans, func(i, j int) bool {
		return cp.Spans[i].StartTime.Before(cp.Spans[j].StartTime)
	})
	return &cp
}

func finishSpan(span *domain.Span, status domain.SpanStatus, at time.Time) {
	span.Status = status
	span.EndTime = &at
	span.DurationMs = at.Sub(span.StartTime).Milliseconds()
}

// evictIfNeeded drops the oldest traces, their spans and their run index
// entries once the ring is full. Caller holds tc.mu.
func (tc *TraceCollector) evictIfNeeded() {
	for len(tc.traceOrder) >= maxTraces {
		oldID := tc.traceOrder[0]
		tc.traceOrder = tc.traceOrder[1:]

		old, ok := tc.traces[oldID]
		if !ok {
			continue
		}
		for sid, span := range tc.spans {
			if span.TraceID == oldID {
				delete(tc.spans, sid)
			}
		}
		if tc.byRun[old.RunID] == oldID {
			delete(tc.byRun, old.RunID)
		}
		delete(tc.traces, oldID)
	}
}

func (tc *TraceCollector) publishEvent(traceID domain.TraceID, eventType string, data map[string]interface{}) {
	if tc.eventBus == nil {
		return
	}
	payload, _ := json.Marshal(data)
	tc.eventBus.Publish(Event{
		Topic:     "trace:" + string(traceID),
		Type:      EventType(eventType),
		Data:      string(payload),
		Timestamp: time.Now().UnixMilli(),
	})
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return clip(s, maxLen) + "...[truncated]"
}

// clip returns the longest prefix of s that fits in maxLen bytes without
// splitting a UTF-8 sequence.
func clip(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := max(maxLen, 0)
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// clipTail is clip from the end: the longest suffix within maxLen bytes.
func clipTail(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	start := len(s) - max(maxLen, 0)
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}
	return s[start:]
}
