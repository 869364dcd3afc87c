package services

import (
	"context"
	"testing"

	"github.com/manthysbr/auleagent/internal/core/domain"
	"github.com/manthysbr/auleagent/internal/core/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCatalog(t *testing.T) *domain.CapabilityRegistry {
	t.Helper()
	session := &fakeSession{tools: []ports.RemoteTool{
		{Name: "create", Description: "Create an object", InputSchema: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{"name": map[string]interface{}{"type": "string", "title": "Name"}},
		}},
	}}
	locals := LocalCapabilities(nil, session, nil, testAgentConfig())
	catalog, err := BuildCatalog(context.Background(), testLogger(), session, locals)
	require.NoError(t, err)
	return catalog
}

func TestPlanner_StructuredCall(t *testing.T) {
	engine := newFakeEngine().on(rolePlan, func(domain.GenerationRequest) (*domain.GenerationResponse, error) {
		return callResponse("Thought: the object does not exist yet\nAction: create it", "create", map[string]interface{}{"name": "A"}), nil
	})
	planner := NewPlanner(testLogger(), engine, nil, testAgentConfig())

	plan, err := planner.Plan(context.Background(), PlanInput{Goal: "create A", Step: 1, Memory: NewMemoryManager(2), Catalog: testCatalog(t)})
	require.NoError(t, err)

	assert.True(t, plan.Structured)
	assert.False(t, plan.UsedFallback)
	assert.Equal(t, "create", plan.Action.Name)
	assert.Equal(t, map[string]interface{}{"name": "A"}, plan.Action.ArgsMap())
	assert.Equal(t, "the object does not exist yet", plan.Thought)
	assert.Equal(t, "create it", plan.ActionText)
	assert.Empty(t, engine.calls(roleFallback))

	reqs := engine.calls(rolePlan)
	require.Len(t, reqs, 1)
	assert.Len(t, reqs[0].Capabilities, 4, "remote and local capabilities are both callable")
	assert.Equal(t, float32(0.2), reqs[0].Params.Temperature)
}

func TestPlanner_TextActionUsesFallback(t *testing.T) {
	engine := newFakeEngine().
		on(rolePlan, func(domain.GenerationRequest) (*domain.GenerationResponse, error) {
			return textResponse("Thought: I should look\nAction: observe_scene(step=3)"), nil
		}).
		on(roleFallback, func(domain.GenerationRequest) (*domain.GenerationResponse, error) {
			return callResponse("", domain.CapObserveScene, map[string]interface{}{"step": float64(3)}), nil
		})
	planner := NewPlanner(testLogger(), engine, nil, testAgentConfig())

	plan, err := planner.Plan(context.Background(), PlanInput{Goal: "g", Step: 1, Catalog: testCatalog(t)})
	require.NoError(t, err)

	assert.True(t, plan.UsedFallback)
	assert.False(t, plan.Structured)
	assert.Equal(t, domain.CapObserveScene, plan.Action.Name)
	assert.Equal(t, domain.ObserveArgs{Step: 3}, plan.Action.Args)

	fallback := engine.calls(roleFallback)
	require.Len(t, fallback, 1)
	assert.Contains(t, fallback[0].Prompt, "observe_scene(step=3)")
	assert.NotEmpty(t, fallback[0].Capabilities)
	assert.Equal(t, float32(0.1), fallback[0].Params.Temperature)
}

func TestPlanner_FallbackFailureParsesLocally(t *testing.T) {
	engine := newFakeEngine().
		on(rolePlan, func(domain.GenerationRequest) (*domain.GenerationResponse, error) {
			return textResponse("Thought: t\nAction: create(name=\"B\")"), nil
		}).
		on(roleFallback, func(domain.GenerationRequest) (*domain.GenerationResponse, error) {
			return nil, errEngineDown
		})
	planner := NewPlanner(testLogger(), engine, nil, testAgentConfig())

	plan, err := planner.Plan(context.Background(), PlanInput{Goal: "g", Step: 1, Catalog: testCatalog(t)})
	require.NoError(t, err, "a failed fallback does not fail the plan")
	assert.Equal(t, "create", plan.Action.Name)
	assert.Equal(t, map[string]interface{}{"name": "B"}, plan.Action.ArgsMap())
	assert.ErrorIs(t, plan.FallbackErr, errEngineDown)
}

func TestPlanner_NoActionAtAll(t *testing.T) {
	engine := newFakeEngine().on(rolePlan, func(domain.GenerationRequest) (*domain.GenerationResponse, error) {
		return textResponse(""), nil
	})
	planner := NewPlanner(testLogger(), engine, nil, testAgentConfig())

	plan, err := planner.Plan(context.Background(), PlanInput{Goal: "g", Step: 1, Catalog: testCatalog(t)})
	require.NoError(t, err)
	assert.True(t, plan.Action.IsZero())
	assert.Len(t, engine.calls(roleFallback), 1, "empty output still goes through the fallback")
}

func TestPlanner_EngineErrorIsReturned(t *testing.T) {
	engine := newFakeEngine().on(rolePlan, func(domain.GenerationRequest) (*domain.GenerationResponse, error) {
		return nil, errEngineDown
	})
	planner := NewPlanner(testLogger(), engine, nil, testAgentConfig())

	_, err := planner.Plan(context.Background(), PlanInput{Goal: "g", Step: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, errEngineDown)
}

func TestPlanner_EnginePanicBecomesError(t *testing.T) {
	engine := newFakeEngine().on(rolePlan, func(domain.GenerationRequest) (*domain.GenerationResponse, error) {
		panic("malformed candidate")
	})
	tracer := NewTraceCollector(testLogger(), nil, nil)
	ctx, traceID, _ := tracer.StartTrace(context.Background(), "run-1", "run: g", nil)
	planner := NewPlanner(testLogger(), engine, tracer, testAgentConfig())

	var err error
	require.NotPanics(t, func() {
		_, err = planner.Plan(ctx, PlanInput{Goal: "g", Step: 1, Catalog: testCatalog(t)})
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed candidate")

	trace, err := tracer.GetTrace(traceID)
	require.NoError(t, err)
	var llm *domain.Span
	for i := range trace.Spans {
		if trace.Spans[i].Kind == domain.SpanKindLLM {
			llm = &trace.Spans[i]
		}
	}
	require.NotNil(t, llm)
	assert.Equal(t, domain.SpanStatusError, llm.Status)
	assert.Contains(t, llm.Error, "panicked")
	assert.Equal(t, 2, trace.SpanCount)
}

func TestPlanner_BuildPrompt(t *testing.T) {
	planner := NewPlanner(testLogger(), nil, nil, testAgentConfig())
	mem := NewMemoryManager(2)

	t.Run("no observation marker", func(t *testing.T) {
		prompt := planner.BuildPrompt(PlanInput{Goal: "stack two cubes", Step: 1, Memory: mem, Catalog: testCatalog(t)})
		assert.Contains(t, prompt, "stack two cubes")
		assert.Contains(t, prompt, "No observation yet")
		assert.Contains(t, prompt, "(no previous steps)")
		assert.Contains(t, prompt, "- create: Create an object")
		assert.Contains(t, prompt, "- observe_scene:")
	})

	for i := 1; i <= 7; i++ {
		mem.Append(domain.MemoryEntry{Step: i, Thought: "t", Action: "a", Result: "r", Reflection: "x"})
	}
	for i := 1; i <= 4; i++ {
		mem.AddSuggestion(i, "hint "+string(rune('A'+i-1)))
	}
	mem.SetStructuralState("Root > Cube(0,1,0)")
	mem.RecordObservation(domain.Observation{Step: 6, Text: "one cube on the floor"})

	prompt := planner.BuildPrompt(PlanInput{
		Goal:        "stack two cubes",
		Step:        8,
		Memory:      mem,
		Attachments: []domain.Attachment{{Blob: domain.Blob{MIMEType: "image/png"}, Description: "reference layout"}},
		Catalog:     testCatalog(t),
	})

	assert.Contains(t, prompt, "(step 6) one cube on the floor")
	assert.NotContains(t, prompt, "No observation yet")
	assert.NotContains(t, prompt, "Step 2:", "only the last five entries are shown")
	assert.Contains(t, prompt, "Step 3:")
	assert.Contains(t, prompt, "Step 7:")
	assert.NotContains(t, prompt, "hint A", "only the last three suggestions are shown")
	assert.Contains(t, prompt, "hint D")
	assert.Contains(t, prompt, "Root > Cube(0,1,0)")
	assert.Contains(t, prompt, "reference layout")
	assert.Contains(t, prompt, "This is step 8")
}

func TestPlanner_ImageAttachmentsSent(t *testing.T) {
	engine := newFakeEngine()
	planner := NewPlanner(testLogger(), engine, nil, testAgentConfig())

	_, err := planner.Plan(context.Background(), PlanInput{
		Goal: "g",
		Step: 1,
		Attachments: []domain.Attachment{
			{Blob: domain.Blob{Data: []byte("png"), MIMEType: "image/png"}},
			{Blob: domain.Blob{Data: []byte("txt"), MIMEType: "text/plain"}},
		},
	})
	require.NoError(t, err)

	reqs := engine.calls(rolePlan)
	require.Len(t, reqs, 1)
	require.Len(t, reqs[0].Images, 1)
	assert.Equal(t, "image/png", reqs[0].Images[0].MIMEType)
}
