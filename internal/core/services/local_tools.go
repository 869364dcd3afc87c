package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/manthysbr/auleagent/internal/core/domain"
	"github.com/manthysbr/auleagent/internal/core/ports"
)

// NewObserveSceneTool creates observe_scene: render the scene and describe it.
func NewObserveSceneTool(observer *ObservationSource) *domain.Capability {
	return &domain.Capability{
		Name:        domain.CapObserveScene,
		Description: "Renders the current scene and returns a description of what is visible, what changed since the last observation and what remains to reach the goal. Use it to verify the effect of previous actions.",
		Origin:      domain.OriginLocal,
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"step": map[string]interface{}{
					"type":        "integer",
					"description": "Current step number, used to tag the observation.",
				},
			},
		},
		Handler: func(ctx context.Context, step int, args domain.ActionArgs) (domain.ToolResult, error) {
			if observer == nil {
				return domain.ToolResult{}, fmt.Errorf("observation source is not configured")
			}
			obsStep := step
			if a, ok := args.(domain.ObserveArgs); ok && a.Step > 0 {
				obsStep = a.Step
			}
			var mem *MemoryManager
			goal := ""
			if rs, ok := runFromContext(ctx); ok {
				mem = rs.memory
				goal = rs.goal
			}
			obs := observer.Observe(ctx, obsStep, goal, mem)
			if mem != nil {
				mem.RecordObservation(obs)
			}
			return domain.ToolResult{Success: !obs.Failed, Output: obs.Text}, nil
		},
	}
}

// NewSceneStateTool creates get_scene_state: a narrow structural query that
// is answered reliably even when broad scene queries are not.
func NewSceneStateTool(session ports.CapabilitySession, cfg domain.SceneStateConfig) *domain.Capability {
	return &domain.Capability{
		Name:        domain.CapGetSceneState,
		Description: "Returns the structural state of the scene (object hierarchy with names and transforms). Prefer it over free-form scene queries.",
		Origin:      domain.OriginLocal,
		Parameters: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{},
		},
		Handler: func(ctx context.Context, step int, _ domain.ActionArgs) (domain.ToolResult, error) {
			if session == nil {
				return domain.ToolResult{}, domain.ErrNotConnected
			}
			if cfg.Tool == "" {
				return domain.ToolResult{}, fmt.Errorf("no scene state tool configured")
			}
			res, err := session.CallTool(ctx, cfg.Tool, cfg.Args)
			if err != nil {
				return domain.ToolResult{}, fmt.Errorf("fetch scene state: %w", err)
			}
			if res.IsError {
				return domain.Failure("Scene state query failed: " + res.Text), nil
			}
			if strings.TrimSpace(res.Text) == "" {
				return domain.Failure("Scene state query returned no content"), nil
			}
			if rs, ok := runFromContext(ctx); ok && rs.memory != nil {
				rs.memory.SetStructuralState(res.Text)
			}
			return domain.ToolResult{Success: true, Output: res.Text}, nil
		},
	}
}

// NewAskOperatorTool creates ask_operator: suspend the loop for human input.
func NewAskOperatorTool(operator ports.OperatorInput) *domain.Capability {
	return &domain.Capability{
		Name:        domain.CapAskOperator,
		Description: "Asks the human operator a question and waits for the answer. Use when the goal is ambiguous or repeated attempts keep failing.",
		Origin:      domain.OriginLocal,
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"question": map[string]interface{}{
					"type":        "string",
					"description": "The question to show the operator.",
				},
			},
			"required": []string{"question"},
		},
		Handler: func(ctx context.Context, step int, args domain.ActionArgs) (domain.ToolResult, error) {
			a, ok := args.(domain.AskOperatorArgs)
			if !ok || strings.TrimSpace(a.Question) == "" {
				return domain.ToolResult{}, fmt.Errorf("question is required and must be a non-empty string")
			}
			if operator == nil {
				return domain.Failure("No operator is attached to this run"), nil
			}
			answer, err := operator.Ask(ctx, a.Question)
			if err != nil {
				return domain.ToolResult{}, fmt.Errorf("ask operator: %w", err)
			}
			answer = strings.TrimSpace(answer)
			if rs, ok := runFromContext(ctx); ok && rs.memory != nil {
				rs.memory.AddSuggestion(step, answer)
			}
			if answer == "" {
				return domain.Failure("Operator gave no answer"), nil
			}
			return domain.ToolResult{Success: true, Output: "Operator answered: " + answer}, nil
		},
	}
}

// LocalCapabilities returns the fixed set of in-process capabilities.
func LocalCapabilities(observer *ObservationSource, session ports.CapabilitySession, operator ports.OperatorInput, cfg domain.AgentConfig) []*domain.Capability {
	return []*domain.Capability{
		NewObserveSceneTool(observer),
		NewSceneStateTool(session, cfg.SceneState),
		NewAskOperatorTool(operator),
	}
}
