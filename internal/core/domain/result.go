package domain

import "time"

// ToolResult is the normalized outcome of a dispatched action.
// Success is inferred by a SuccessClassifier when the capability itself does
// not report a boolean.
type ToolResult struct {
	Success bool   `json:"success"`
	Output  string `json:"output"`
}

// Failure builds a failed result carrying a diagnostic.
func Failure(diagnostic string) ToolResult {
	return ToolResult{Success: false, Output: diagnostic}
}

// CallResult is what the remote session returns for one capability call.
type CallResult struct {
	Text    string
	IsError bool
}

// ExecutionLogRecord is one row of the append-only execution log.
type ExecutionLogRecord struct {
	RunID     string    `json:"run_id"`
	Step      int       `json:"step"`
	Action    string    `json:"action"` // JSON text
	Result    string    `json:"result"`
	Success   bool      `json:"success"`
	Timestamp time.Time `json:"timestamp"`
}
