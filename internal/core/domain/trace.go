package domain

import (
	"errors"
	"time"
)

var ErrTraceNotFound = errors.New("trace not found")

// TraceID uniquely identifies a trace (one per run).
type TraceID string

// SpanID uniquely identifies a span within a trace.
type SpanID string

// SpanKind classifies the type of operation a span represents.
type SpanKind string

const (
	SpanKindRun     SpanKind = "run"     // Whole goal run
	SpanKindLLM     SpanKind = "llm"     // Reasoning-engine call
	SpanKindTool    SpanKind = "tool"    // Capability dispatch
	SpanKindObserve SpanKind = "observe" // Render + analysis
)

// SpanStatus indicates completion state of a span.
type SpanStatus string

const (
	SpanStatusRunning SpanStatus = "running"
	SpanStatusOK      SpanStatus = "ok"
	SpanStatusError   SpanStatus = "error"
)

// Span is a single unit of work within a trace. Spans form a tree: the run
// span contains llm, tool and observe children.
type Span struct {
	ID         SpanID            `json:"id"`
	ParentID   SpanID            `json:"parent_id,omitempty"`
	TraceID    TraceID           `json:"trace_id"`
	Step       int               `json:"step,omitempty"` // loop step, 0 outside a step
	Name       string            `json:"name"`          // e.g. "llm.plan", "tool.create"
	Kind       SpanKind          `json:"kind"`
	Status     SpanStatus        `json:"status"`
	Input      string            `json:"input,omitempty"`  // truncated
	Output     string            `json:"output,omitempty"` // truncated
	Error      string            `json:"error,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	StartTime  time.Time         `json:"start_time"`
	EndTime    *time.Time        `json:"end_time,omitempty"`
	DurationMs int64             `json:"duration_ms,omitempty"`
	Children   []SpanID          `json:"children,omitempty"`
}

// Trace groups all spans of a single run.
type Trace struct {
	ID         TraceID    `json:"id"`
	RunID      RunID      `json:"run_id,omitempty"`
	RootSpanID SpanID     `json:"root_span_id"`
	Name       string     `json:"name"` // "run: <goal>"
	Status     SpanStatus `json:"status"`
	StartTime  time.Time  `json:"start_time"`
	EndTime    *time.Time `json:"end_time,omitempty"`
	DurationMs int64      `json:"duration_ms,omitempty"`
	SpanCount  int        `json:"span_count"`
	Spans      []Span     `json:"spans,omitempty"` // populated only on detail view
}

// TraceSummary is a lightweight view for listing traces.
type TraceSummary struct {
	ID         TraceID    `json:"id"`
	RunID      RunID      `json:"run_id,omitempty"`
	Name       string     `json:"name"`
	Status     SpanStatus `json:"status"`
	StartTime  time.Time  `json:"start_time"`
	DurationMs int64      `json:"duration_ms"`
	SpanCount  int        `json:"span_count"`
}

// Summary returns the list view of t.
func (t *Trace) Summary() TraceSummary {
	return TraceSummary{
		ID:         t.ID,
		RunID:      t.RunID,
		Name:       t.Name,
		Status:     t.Status,
		StartTime:  t.StartTime,
		DurationMs: t.DurationMs,
		SpanCount:  t.SpanCount,
	}
}
