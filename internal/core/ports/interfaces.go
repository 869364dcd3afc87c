package ports

import (
	"context"

	"github.com/manthysbr/auleagent/internal/core/domain"
)

// RemoteTool is a tool description as listed by the remote provider.
type RemoteTool struct {
	Name        string
	Description string
	InputSchema map[string]interface{} // raw, uncleaned
}

// CapabilitySession abstracts the remote capability-execution session
// (MCP over stdio or SSE). The core depends only on this surface.
type CapabilitySession interface {
	// Connect starts the transport and performs the initialize handshake.
	Connect(ctx context.Context, target string) error

	// ListTools returns the provider's tool descriptions.
	ListTools(ctx context.Context) ([]RemoteTool, error)

	// CallTool invokes a tool and returns its flattened text content.
	CallTool(ctx context.Context, name string, args map[string]interface{}) (domain.CallResult, error)

	// Close tears the transport down.
	Close() error
}

// ExecutionLog is the append-only audit record of dispatched actions.
type ExecutionLog interface {
	Append(ctx context.Context, rec domain.ExecutionLogRecord) error
}

// OperatorInput is the line-based human collaborator.
type OperatorInput interface {
	// Ask shows a prompt and blocks until the operator answers.
	Ask(ctx context.Context, prompt string) (string, error)
}

// RunRepository persists finished runs (DuckDB).
type RunRepository interface {
	SaveRun(ctx context.Context, run domain.RunSummary) error
	GetRun(ctx context.Context, id domain.RunID) (domain.RunSummary, error)
	ListRuns(ctx context.Context, limit int) ([]domain.RunSummary, error)
}
