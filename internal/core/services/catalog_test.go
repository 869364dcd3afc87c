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

func TestBuildCatalog_MergesAndCleans(t *testing.T) {
	session := &fakeSession{tools: []ports.RemoteTool{{
		Name:        "manage_gameobject",
		Description: "Create, find or modify objects",
		InputSchema: map[string]interface{}{
			"type":                 "object",
			"title":                "ManageGameObject",
			"additionalProperties": false,
			"properties": map[string]interface{}{
				"position": map[string]interface{}{
					"type":    "array",
					"default": []interface{}{0, 0, 0},
					"items":   []interface{}{map[string]interface{}{"type": "number", "title": "X"}},
				},
			},
		},
	}}}

	catalog, err := BuildCatalog(context.Background(), testLogger(), session, LocalCapabilities(nil, session, nil, testAgentConfig()))
	require.NoError(t, err)

	assert.Equal(t, 4, catalog.Len())
	c, ok := catalog.Get("manage_gameobject")
	require.True(t, ok)
	assert.Equal(t, domain.OriginRemote, c.Origin)
	assert.Equal(t, map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"position": map[string]interface{}{
				"type":  "array",
				"items": []interface{}{map[string]interface{}{"type": "number"}},
			},
		},
	}, c.Parameters)

	for _, name := range []string{domain.CapObserveScene, domain.CapGetSceneState, domain.CapAskOperator} {
		lc, ok := catalog.Get(name)
		require.True(t, ok, name)
		assert.Equal(t, domain.OriginLocal, lc.Origin)
		assert.NotNil(t, lc.Handler)
	}
}

func TestBuildCatalog_LocalWinsClash(t *testing.T) {
	session := &fakeSession{tools: []ports.RemoteTool{{Name: domain.CapObserveScene, Description: "remote"}}}

	catalog, err := BuildCatalog(context.Background(), testLogger(), session, LocalCapabilities(nil, session, nil, testAgentConfig()))
	require.NoError(t, err)

	c, _ := catalog.Get(domain.CapObserveScene)
	assert.Equal(t, domain.OriginLocal, c.Origin)
}

func TestBuildCatalog_ListError(t *testing.T) {
	session := &fakeSession{listErr: errors.New("session closed")}
	_, err := BuildCatalog(context.Background(), testLogger(), session, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session closed")
}
