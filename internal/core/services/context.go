package services

import (
	"context"

	"github.com/manthysbr/auleagent/internal/core/domain"
)

// runState is the per-run data that local capabilities need. The catalog is
// built once per connection, so run-scoped state travels in the context.
type runState struct {
	id     domain.RunID
	goal   string
	memory *MemoryManager
}

// Use a private type for context keys to avoid collisions
type serviceContextKey string

const (
	ctxKeyRun  serviceContextKey = "run"
	ctxKeyStep serviceContextKey = "step"
)

// ContextWithRun injects the run id, goal and memory into the context
func ContextWithRun(ctx context.Context, id domain.RunID, goal string, mem *MemoryManager) context.Context {
	return context.WithValue(ctx, ctxKeyRun, &runState{id: id, goal: goal, memory: mem})
}

// runFromContext retrieves the run state from the context
func runFromContext(ctx context.Context) (*runState, bool) {
	rs, ok := ctx.Value(ctxKeyRun).(*runState)
	return rs, ok && rs != nil
}

// RunIDFromContext returns the current run id, if any
func RunIDFromContext(ctx context.Context) (domain.RunID, bool) {
	rs, ok := runFromContext(ctx)
	if !ok {
		return "", false
	}
	return rs.id, true
}

// ContextWithStep tags the context with the current loop step. Spans started
// under it record the step.
func ContextWithStep(ctx context.Context, step int) context.Context {
	return context.WithValue(ctx, ctxKeyStep, step)
}

// StepFromContext returns the loop step, if any
func StepFromContext(ctx context.Context) (int, bool) {
	step, ok := ctx.Value(ctxKeyStep).(int)
	return step, ok
}
