package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// MemoryEntry is one completed Dispatching→Reflecting cycle. Entries are
// never modified after they are appended.
type MemoryEntry struct {
	Step       int       `json:"step"`
	Thought    string    `json:"thought"`
	Action     string    `json:"action"`
	Result     string    `json:"result"`
	Success    bool      `json:"success"`
	Reflection string    `json:"reflection"`
	Timestamp  time.Time `json:"timestamp"`
}

// Render formats the entry for a prompt.
func (e MemoryEntry) Render() string {
	return fmt.Sprintf("Step %d:\n  Thought: %s\n  Action: %s\n  Result: %s\n  Reflection: %s",
		e.Step, e.Thought, e.Action, e.Result, e.Reflection)
}

// Suggestion is operator guidance given during a run.
type Suggestion struct {
	Step      int       `json:"step"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// RenderEntries formats entries oldest-first for a prompt.
func RenderEntries(entries []MemoryEntry) string {
	if len(entries) == 0 {
		return "(no previous steps)"
	}
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, e.Render())
	}
	return strings.Join(parts, "\n")
}

// SerializeMemory renders the full memory log as indented JSON for reports.
func SerializeMemory(entries []MemoryEntry) string {
	if entries == nil {
		entries = []MemoryEntry{}
	}
	b, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return "[]"
	}
	return string(b)
}
