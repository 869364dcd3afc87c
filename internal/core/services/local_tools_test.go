package services

import (
	"context"
	"errors"
	"testing"

	"github.com/manthysbr/auleagent/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSceneStateTool(t *testing.T) {
	cfg := testAgentConfig()
	session := &fakeSession{handler: func(name string, args map[string]interface{}) (domain.CallResult, error) {
		return domain.CallResult{Text: "Root\n  Cube (0,1,0)"}, nil
	}}
	tool := NewSceneStateTool(session, cfg.SceneState)
	mem := NewMemoryManager(2)
	ctx := ContextWithRun(context.Background(), "r", "g", mem)

	res, err := tool.Handler(ctx, 1, domain.SceneStateArgs{})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "Root\n  Cube (0,1,0)", mem.StructuralState())
	require.Len(t, session.calls, 1)
	assert.Equal(t, "manage_scene", session.calls[0].Name)
	assert.Equal(t, "get_hierarchy", session.calls[0].Args["action"])
}

func TestSceneStateTool_Failures(t *testing.T) {
	cfg := testAgentConfig()

	_, err := NewSceneStateTool(nil, cfg.SceneState).Handler(context.Background(), 1, domain.SceneStateArgs{})
	assert.ErrorIs(t, err, domain.ErrNotConnected)

	session := &fakeSession{handler: func(string, map[string]interface{}) (domain.CallResult, error) {
		return domain.CallResult{Text: "no scene loaded", IsError: true}, nil
	}}
	res, err := NewSceneStateTool(session, cfg.SceneState).Handler(context.Background(), 1, domain.SceneStateArgs{})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Output, "no scene loaded")
}

func TestAskOperatorTool(t *testing.T) {
	op := &scriptedOperator{answers: []string{" make it red "}}
	tool := NewAskOperatorTool(op)
	mem := NewMemoryManager(2)
	ctx := ContextWithRun(context.Background(), "r", "g", mem)

	res, err := tool.Handler(ctx, 3, domain.AskOperatorArgs{Question: "Which color?"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "Operator answered: make it red", res.Output)
	assert.Equal(t, []string{"Which color?"}, op.questions)

	sugg := mem.RecentSuggestions(3)
	require.Len(t, sugg, 1)
	assert.Equal(t, 3, sugg[0].Step)
	assert.Equal(t, "make it red", sugg[0].Text)
}

func TestAskOperatorTool_Failures(t *testing.T) {
	_, err := NewAskOperatorTool(&scriptedOperator{}).Handler(context.Background(), 1, domain.AskOperatorArgs{})
	assert.Error(t, err, "question is required")

	res, err := NewAskOperatorTool(nil).Handler(context.Background(), 1, domain.AskOperatorArgs{Question: "?"})
	require.NoError(t, err)
	assert.False(t, res.Success)

	_, err = NewAskOperatorTool(&scriptedOperator{err: errors.New("stdin closed")}).Handler(context.Background(), 1, domain.AskOperatorArgs{Question: "?"})
	assert.ErrorContains(t, err, "stdin closed")

	res, err = NewAskOperatorTool(&scriptedOperator{}).Handler(context.Background(), 1, domain.AskOperatorArgs{Question: "?"})
	require.NoError(t, err)
	assert.False(t, res.Success, "empty answer")
}

func TestObserveSceneTool_RecordsObservation(t *testing.T) {
	cfg := observerConfig(t)
	writeRender(t, cfg.Render.OutputDir, "r.png", "img")
	observer := NewObservationSource(testLogger(), &fakeSession{}, newFakeEngine(), nil, cfg)
	mem := NewMemoryManager(2)
	ctx := ContextWithRun(context.Background(), "r", "g", mem)

	res, err := NewObserveSceneTool(observer).Handler(ctx, 5, domain.ObserveArgs{})
	require.NoError(t, err)
	assert.True(t, res.Success)

	obs, ok := mem.CurrentObservation()
	require.True(t, ok)
	assert.Equal(t, 5, obs.Step, "defaults to the loop step")
}
