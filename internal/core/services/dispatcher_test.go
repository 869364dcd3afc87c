package services

import (
	"context"
	"errors"
	"testing"

	"github.com/manthysbr/auleagent/internal/core/domain"
	"github.com/manthysbr/auleagent/internal/core/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDispatcher(t *testing.T, session *fakeSession, locals ...*domain.Capability) (*ActionDispatcher, *memExecLog) {
	t.Helper()
	catalog, err := BuildCatalog(context.Background(), testLogger(), session, locals)
	require.NoError(t, err)
	execLog := &memExecLog{}
	d := NewActionDispatcher(testLogger(), catalog, session, DelaySettler{}, NewSuccessClassifier(testAgentConfig()), execLog, nil)
	return d, execLog
}

func TestDispatch_RemoteSuccess(t *testing.T) {
	session := &fakeSession{
		tools: []ports.RemoteTool{{Name: "create", Description: "create an object"}},
		handler: func(name string, args map[string]interface{}) (domain.CallResult, error) {
			return domain.CallResult{Text: `{"success": true, "message": "created"}`}, nil
		},
	}
	d, execLog := newTestDispatcher(t, session)

	res := d.Dispatch(context.Background(), 1, domain.NewAction("create", map[string]interface{}{"name": "A"}))

	assert.True(t, res.Success)
	assert.Contains(t, res.Output, "created")
	require.Len(t, session.calls, 1)
	assert.Equal(t, "A", session.calls[0].Args["name"])

	require.Len(t, execLog.records, 1)
	assert.JSONEq(t, `{"name":"create","arguments":{"name":"A"}}`, execLog.records[0].Action)
	assert.True(t, execLog.records[0].Success)
}

func TestDispatch_RemoteErrorBecomesFailure(t *testing.T) {
	session := &fakeSession{
		tools: []ports.RemoteTool{{Name: "create"}},
		handler: func(string, map[string]interface{}) (domain.CallResult, error) {
			return domain.CallResult{}, errors.New("broken pipe")
		},
	}
	d, execLog := newTestDispatcher(t, session)

	res := d.Dispatch(context.Background(), 1, domain.NewAction("create", nil))

	assert.False(t, res.Success)
	assert.Contains(t, res.Output, "Tool execution error")
	assert.Contains(t, res.Output, "broken pipe")
	require.Len(t, execLog.records, 1, "failed dispatches are logged too")
	assert.False(t, execLog.records[0].Success)
}

func TestDispatch_EmptyRemoteOutput(t *testing.T) {
	session := &fakeSession{
		tools: []ports.RemoteTool{{Name: "create"}},
		handler: func(string, map[string]interface{}) (domain.CallResult, error) {
			return domain.CallResult{Text: "  "}, nil
		},
	}
	d, _ := newTestDispatcher(t, session)

	res := d.Dispatch(context.Background(), 1, domain.NewAction("create", nil))
	assert.False(t, res.Success)
	assert.Equal(t, "No response from tool", res.Output)
}

func TestDispatch_ProviderErrorFlag(t *testing.T) {
	session := &fakeSession{
		tools: []ports.RemoteTool{{Name: "create"}},
		handler: func(string, map[string]interface{}) (domain.CallResult, error) {
			return domain.CallResult{Text: "success? no", IsError: true}, nil
		},
	}
	d, _ := newTestDispatcher(t, session)

	res := d.Dispatch(context.Background(), 1, domain.NewAction("create", nil))
	assert.False(t, res.Success)
}

func TestDispatch_UnknownCapability(t *testing.T) {
	d, execLog := newTestDispatcher(t, &fakeSession{tools: []ports.RemoteTool{{Name: "create"}}})

	res := d.Dispatch(context.Background(), 2, domain.NewAction("teleport", nil))
	assert.False(t, res.Success)
	assert.Contains(t, res.Output, "capability not found")
	require.Len(t, execLog.records, 1)
	assert.Equal(t, 2, execLog.records[0].Step)
}

func TestDispatch_EmptyAction(t *testing.T) {
	d, execLog := newTestDispatcher(t, &fakeSession{})

	res := d.Dispatch(context.Background(), 1, domain.Action{})
	assert.False(t, res.Success)
	assert.Contains(t, res.Output, "no action selected")
	assert.Len(t, execLog.records, 1)
}

func TestDispatch_FuzzyNameCorrected(t *testing.T) {
	session := &fakeSession{tools: []ports.RemoteTool{{Name: "manage_gameobject"}}}
	d, execLog := newTestDispatcher(t, session)

	d.Dispatch(context.Background(), 1, domain.NewAction("gameobject_manage", map[string]interface{}{"action": "find"}))

	assert.Equal(t, []string{"manage_gameobject"}, session.callNames())
	require.Len(t, execLog.records, 1)
	assert.Contains(t, execLog.records[0].Action, "manage_gameobject")
}

func TestDispatch_NeverRedirectsToDifferentTool(t *testing.T) {
	session := &fakeSession{tools: []ports.RemoteTool{{Name: "delete_object"}, {Name: "manage_gameobject"}}}
	d, execLog := newTestDispatcher(t, session)

	res := d.Dispatch(context.Background(), 1, domain.NewAction("create_object", map[string]interface{}{"name": "A"}))

	assert.False(t, res.Success)
	assert.Equal(t, "Tool execution error: capability not found: create_object", res.Output)
	assert.Empty(t, session.calls, "nothing reaches the session")
	require.Len(t, execLog.records, 1)
	assert.Contains(t, execLog.records[0].Action, "create_object")
}

func TestDispatch_LocalCapability(t *testing.T) {
	var gotStep int
	var gotArgs domain.ActionArgs
	local := &domain.Capability{
		Name:   domain.CapObserveScene,
		Origin: domain.OriginLocal,
		Handler: func(_ context.Context, step int, args domain.ActionArgs) (domain.ToolResult, error) {
			gotStep, gotArgs = step, args
			return domain.ToolResult{Success: true, Output: "a red cube"}, nil
		},
	}
	session := &fakeSession{}
	d, _ := newTestDispatcher(t, session, local)

	res := d.Dispatch(context.Background(), 4, domain.NewAction(domain.CapObserveScene, map[string]interface{}{"step": 3}))

	assert.True(t, res.Success)
	assert.Equal(t, "a red cube", res.Output)
	assert.Equal(t, 4, gotStep)
	assert.Equal(t, domain.ObserveArgs{Step: 3}, gotArgs)
	assert.Empty(t, session.calls, "local capabilities never reach the session")
}

func TestDispatch_LocalPanicRecovered(t *testing.T) {
	local := &domain.Capability{
		Name:   "explode",
		Origin: domain.OriginLocal,
		Handler: func(context.Context, int, domain.ActionArgs) (domain.ToolResult, error) {
			panic("boom")
		},
	}
	d, execLog := newTestDispatcher(t, &fakeSession{}, local)

	var res domain.ToolResult
	require.NotPanics(t, func() {
		res = d.Dispatch(context.Background(), 1, domain.NewAction("explode", nil))
	})
	assert.False(t, res.Success)
	assert.Contains(t, res.Output, "boom")
	assert.Len(t, execLog.records, 1)
}

func TestDispatch_RecordsRunID(t *testing.T) {
	d, execLog := newTestDispatcher(t, &fakeSession{tools: []ports.RemoteTool{{Name: "create"}}})
	ctx := ContextWithRun(context.Background(), "run-1", "goal", NewMemoryManager(2))

	d.Dispatch(ctx, 1, domain.NewAction("create", nil))

	require.Len(t, execLog.records, 1)
	assert.Equal(t, "run-1", execLog.records[0].RunID)
}

type countingSettler struct{ n int }

func (s *countingSettler) Settle(context.Context) { s.n++ }

func TestDispatch_SettlesOnlyAfterRemoteCalls(t *testing.T) {
	session := &fakeSession{tools: []ports.RemoteTool{{Name: "create"}}}
	local := &domain.Capability{
		Name:   "noop",
		Origin: domain.OriginLocal,
		Handler: func(context.Context, int, domain.ActionArgs) (domain.ToolResult, error) {
			return domain.ToolResult{Success: true, Output: "done"}, nil
		},
	}
	catalog, err := BuildCatalog(context.Background(), testLogger(), session, []*domain.Capability{local})
	require.NoError(t, err)
	settler := &countingSettler{}
	d := NewActionDispatcher(testLogger(), catalog, session, settler, nil, nil, nil)

	d.Dispatch(context.Background(), 1, domain.NewAction("create", nil))
	d.Dispatch(context.Background(), 2, domain.NewAction("noop", nil))

	assert.Equal(t, 1, settler.n)
}
