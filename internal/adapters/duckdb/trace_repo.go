package duckdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/manthysbr/auleagent/internal/core/domain"
)

const traceColumns = `id, run_id, name, status, root_span_id, start_time, end_time, duration_ms, span_count`

// SaveTrace writes a run trace and its spans in one transaction. Saving the
// same trace again updates the rows in place.
func (r *Repository) SaveTrace(ctx context.Context, trace *domain.Trace) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO traces (`+traceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status      = excluded.status,
			end_time    = excluded.end_time,
			duration_ms = excluded.duration_ms,
			span_count  = excluded.span_count`,
		string(trace.ID), string(trace.RunID), validText(trace.Name), string(trace.Status),
		string(trace.RootSpanID), trace.StartTime, trace.EndTime, trace.DurationMs, trace.SpanCount,
	)
	if err != nil {
		return fmt.Errorf("save trace %s: %w", trace.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO spans (id, trace_id, parent_id, step, name, kind, status,
		                   input, output, error, attributes, start_time, end_time, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status      = excluded.status,
			output      = excluded.output,
			error       = excluded.error,
			end_time    = excluded.end_time,
			duration_ms = excluded.duration_ms`)
	if err != nil {
		return fmt.Errorf("prepare span insert: %w", err)
	}
	defer stmt.Close()

	for _, span := range trace.Spans {
		attrs := ""
		if len(span.Attributes) > 0 {
			b, err := json.Marshal(span.Attributes)
			if err != nil {
				return fmt.Errorf("encode attributes of span %s: %w", span.ID, err)
			}
			attrs = string(b)
		}
		_, err = stmt.ExecContext(ctx,
			string(span.ID), string(span.TraceID), string(span.ParentID), span.Step,
			validText(span.Name), string(span.Kind), string(span.Status),
			validText(span.Input), validText(span.Output), validText(span.Error), validText(attrs),
			span.StartTime, span.EndTime, span.DurationMs,
		)
		if err != nil {
			return fmt.Errorf("save span %s: %w", span.ID, err)
		}
	}

	return tx.Commit()
}

// ListTraces returns the most recent traces, newest first.
func (r *Repository) ListTraces(ctx context.Context, limit int) ([]domain.TraceSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+traceColumns+`
		FROM traces
		ORDER BY start_time DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list traces: %w", err)
	}
	defer rows.Close()

	out := []domain.TraceSummary{}
	for rows.Next() {
		t, err := scanTrace(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t.Summary())
	}
	return out, rows.Err()
}

// GetTrace returns a trace with its spans in start order.
func (r *Repository) GetTrace(ctx context.Context, id domain.TraceID) (*domain.Trace, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+traceColumns+` FROM traces WHERE id = ?`, string(id))
	return r.loadTrace(ctx, row, string(id))
}

// GetTraceByRun returns the latest trace recorded for a run.
func (r *Repository) GetTraceByRun(ctx context.Context, runID domain.RunID) (*domain.Trace, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+traceColumns+`
		FROM traces WHERE run_id = ?
		ORDER BY start_time DESC
		LIMIT 1`, string(runID))
	return r.loadTrace(ctx, row, "run "+string(runID))
}

func (r *Repository) loadTrace(ctx context.Context, row scanner, key string) (*domain.Trace, error) {
	t, err := scanTrace(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrTraceNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("get trace: %w", err)
	}
	if t.Spans, err = r.loadSpans(ctx, t.ID); err != nil {
		return nil, err
	}
	return t, nil
}

func scanTrace(row scanner) (*domain.Trace, error) {
	var t domain.Trace
	var id, runID, status, rootSpanID string
	err := row.Scan(&id, &runID, &t.Name, &status, &rootSpanID,
		&t.StartTime, &t.EndTime, &t.DurationMs, &t.SpanCount)
	if err != nil {
		return nil, err
	}
	t.ID = domain.TraceID(id)
	t.RunID = domain.RunID(runID)
	t.Status = domain.SpanStatus(status)
	t.RootSpanID = domain.SpanID(rootSpanID)
	return &t, nil
}

func (r *Repository) loadSpans(ctx context.Context, traceID domain.TraceID) ([]domain.Span, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, trace_id, parent_id, COALESCE(step, 0), name, kind, status,
		       input, output, error, attributes, start_time, end_time, duration_ms
		FROM spans WHERE trace_id = ?
		ORDER BY start_time ASC`, string(traceID))
	if err != nil {
		return nil, fmt.Errorf("load spans of %s: %w", traceID, err)
	}
	defer rows.Close()

	var out []domain.Span
	children := map[domain.SpanID][]domain.SpanID{}
	for rows.Next() {
		var s domain.Span
		var id, tid, parentID, kind, status, attrs string
		err := rows.Scan(&id, &tid, &parentID, &s.Step, &s.Name, &kind, &status,
			&s.Input, &s.Output, &s.Error, &attrs, &s.StartTime, &s.EndTime, &s.DurationMs)
		if err != nil {
			return nil, err
		}
		s.ID = domain.SpanID(id)
		s.TraceID = domain.TraceID(tid)
		s.ParentID = domain.SpanID(parentID)
		s.Kind = domain.SpanKind(kind)
		s.Status = domain.SpanStatus(status)
		if attrs != "" {
			if err := json.Unmarshal([]byte(attrs), &s.Attributes); err != nil {
				return nil, fmt.Errorf("decode attributes of span %s: %w", id, err)
			}
		}
		if s.ParentID != "" {
			children[s.ParentID] = append(children[s.ParentID], s.ID)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Children = children[out[i].ID]
	}
	return out, nil
}

// validText replaces invalid UTF-8, which DuckDB rejects in VARCHAR columns.
func validText(s string) string {
	return strings.ToValidUTF8(s, "\uFFFD")
}
