package services

import (
	"strings"
	"time"

	"github.com/manthysbr/auleagent/internal/core/domain"
)

// MemoryManager is the per-run store of completed cycles, operator
// suggestions, the cached structural state and the observation history.
//
// The log itself is never evicted; prompt assembly reads bounded windows.
// It is owned by a single run loop and is not safe for concurrent use.
type MemoryManager struct {
	entries         []domain.MemoryEntry
	suggestions     []domain.Suggestion
	structuralState string
	observations    []domain.Observation
	obsHistory      int
}

// NewMemoryManager creates an empty memory keeping obsHistory observations.
func NewMemoryManager(obsHistory int) *MemoryManager {
	if obsHistory <= 0 {
		obsHistory = 2
	}
	return &MemoryManager{obsHistory: obsHistory}
}

// Append records a completed cycle.
func (m *MemoryManager) Append(e domain.MemoryEntry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	m.entries = append(m.entries, e)
}

// RecentEntries returns the most recent n entries, oldest first.
func (m *MemoryManager) RecentEntries(n int) []domain.MemoryEntry {
	return lastN(m.entries, n)
}

// Entries returns the whole log.
func (m *MemoryManager) Entries() []domain.MemoryEntry {
	out := make([]domain.MemoryEntry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Len returns the number of completed cycles.
func (m *MemoryManager) Len() int {
	return len(m.entries)
}

// AddSuggestion records operator guidance at a step.
func (m *MemoryManager) AddSuggestion(step int, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	m.suggestions = append(m.suggestions, domain.Suggestion{Step: step, Text: text, Timestamp: time.Now()})
}

// RecentSuggestions returns the most recent n suggestions, oldest first.
func (m *MemoryManager) RecentSuggestions(n int) []domain.Suggestion {
	return lastN(m.suggestions, n)
}

// SetStructuralState replaces the cached structural snapshot.
func (m *MemoryManager) SetStructuralState(text string) {
	m.structuralState = text
}

// StructuralState returns the most recent structural snapshot.
func (m *MemoryManager) StructuralState() string {
	return m.structuralState
}

// RecordObservation keeps the latest observations for temporal context.
func (m *MemoryManager) RecordObservation(o domain.Observation) {
	m.observations = append(m.observations, o)
	if len(m.observations) > m.obsHistory {
		m.observations = m.observations[len(m.observations)-m.obsHistory:]
	}
}

// CurrentObservation returns the latest observation, if any.
func (m *MemoryManager) CurrentObservation() (domain.Observation, bool) {
	if len(m.observations) == 0 {
		return domain.Observation{}, false
	}
	return m.observations[len(m.observations)-1], true
}

// Observations returns the retained observation history, oldest first.
func (m *MemoryManager) Observations() []domain.Observation {
	out := make([]domain.Observation, len(m.observations))
	copy(out, m.observations)
	return out
}

func lastN[T any](s []T, n int) []T {
	if n <= 0 || len(s) == 0 {
		return []T{}
	}
	if n > len(s) {
		n = len(s)
	}
	out := make([]T, n)
	copy(out, s[len(s)-n:])
	return out
}
