package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/manthysbr/auleagent/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRender(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func observerConfig(t *testing.T) domain.AgentConfig {
	cfg := testAgentConfig()
	cfg.Render.OutputDir = t.TempDir()
	return cfg
}

func TestObserve_RendersAndAnalyzes(t *testing.T) {
	cfg := observerConfig(t)
	writeRender(t, cfg.Render.OutputDir, "old.png", "old")
	newest := writeRender(t, cfg.Render.OutputDir, "new.png", "new")
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(newest, future, future))

	session := &fakeSession{}
	engine := newFakeEngine()
	obs := NewObservationSource(testLogger(), session, engine, nil, cfg)

	mem := NewMemoryManager(2)
	mem.Append(domain.MemoryEntry{Step: 1, Action: `{"name":"create"}`, Result: "created"})
	o := obs.Observe(context.Background(), 2, "build a tower", mem)

	assert.False(t, o.Failed)
	assert.Equal(t, "A cube sits at the origin.", o.Text)
	require.Len(t, o.Images, 1)
	assert.Equal(t, []byte("new"), o.Images[0].Data)
	assert.Equal(t, "image/png", o.Images[0].MIMEType)

	assert.Equal(t, []string{"manage_gameobject", "execute_menu_item", "execute_menu_item"}, session.callNames())

	analyses := engine.calls(roleAnalyze)
	require.Len(t, analyses, 1)
	assert.Contains(t, analyses[0].Prompt, "build a tower")
	assert.Contains(t, analyses[0].Prompt, "created")
}

func TestObserve_CreatesMissingRendererOnce(t *testing.T) {
	cfg := observerConfig(t)
	writeRender(t, cfg.Render.OutputDir, "r.png", "img")

	session := &fakeSession{handler: func(name string, args map[string]interface{}) (domain.CallResult, error) {
		if name == "manage_gameobject" && args["action"] == "find" {
			return domain.CallResult{Text: "GameObject 'SceneRenderer' not found"}, nil
		}
		return domain.CallResult{Text: "ok"}, nil
	}}
	obs := NewObservationSource(testLogger(), session, newFakeEngine(), nil, cfg)

	obs.Observe(context.Background(), 1, "g", nil)
	obs.Observe(context.Background(), 2, "g", nil)

	var actions []string
	for _, c := range session.calls {
		if c.Name == "manage_gameobject" {
			actions = append(actions, c.Args["action"].(string))
		}
	}
	assert.Equal(t, []string{"find", "create", "add_component"}, actions)
}

func TestObserve_KeepsLastTwoArtifacts(t *testing.T) {
	cfg := observerConfig(t)
	obs := NewObservationSource(testLogger(), &fakeSession{}, newFakeEngine(), nil, cfg)

	for i, content := range []string{"one", "two", "three"} {
		path := writeRender(t, cfg.Render.OutputDir, content+".png", content)
		ts := time.Now().Add(time.Duration(i) * time.Minute)
		require.NoError(t, os.Chtimes(path, ts, ts))
		obs.Observe(context.Background(), i+1, "g", nil)
	}

	artifacts := obs.Artifacts()
	require.Len(t, artifacts, 2)
	assert.Equal(t, []byte("two"), artifacts[0].Data)
	assert.Equal(t, []byte("three"), artifacts[1].Data)

	obs.Reset()
	assert.Empty(t, obs.Artifacts())
}

func TestObserve_FailsClosed(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T, cfg *domain.AgentConfig, s *fakeSession, e *fakeEngine)
		wantMsg string
	}{
		{
			name: "missing directory",
			setup: func(t *testing.T, cfg *domain.AgentConfig, _ *fakeSession, _ *fakeEngine) {
				cfg.Render.OutputDir = filepath.Join(t.TempDir(), "nope")
			},
			wantMsg: "render output directory",
		},
		{
			name:    "no artifact",
			setup:   func(*testing.T, *domain.AgentConfig, *fakeSession, *fakeEngine) {},
			wantMsg: domain.ErrNoArtifact.Error(),
		},
		{
			name: "menu call fails",
			setup: func(t *testing.T, cfg *domain.AgentConfig, s *fakeSession, _ *fakeEngine) {
				writeRender(t, cfg.Render.OutputDir, "r.png", "img")
				s.handler = func(name string, _ map[string]interface{}) (domain.CallResult, error) {
					if name == "execute_menu_item" {
						return domain.CallResult{}, errors.New("editor not responding")
					}
					return domain.CallResult{Text: "ok"}, nil
				}
			},
			wantMsg: "editor not responding",
		},
		{
			name: "analysis fails",
			setup: func(t *testing.T, cfg *domain.AgentConfig, _ *fakeSession, e *fakeEngine) {
				writeRender(t, cfg.Render.OutputDir, "r.png", "img")
				e.on(roleAnalyze, func(domain.GenerationRequest) (*domain.GenerationResponse, error) {
					return nil, errEngineDown
				})
			},
			wantMsg: "analysis failed",
		},
		{
			name: "panic in session",
			setup: func(t *testing.T, _ *domain.AgentConfig, s *fakeSession, _ *fakeEngine) {
				s.handler = func(string, map[string]interface{}) (domain.CallResult, error) {
					panic("transport closed")
				}
			},
			wantMsg: "transport closed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := observerConfig(t)
			session := &fakeSession{}
			engine := newFakeEngine()
			tt.setup(t, &cfg, session, engine)
			obs := NewObservationSource(testLogger(), session, engine, nil, cfg)

			var o domain.Observation
			require.NotPanics(t, func() {
				o = obs.Observe(context.Background(), 1, "g", nil)
			})
			assert.True(t, o.Failed)
			assert.True(t, strings.HasPrefix(o.Text, "Could not observe the scene"))
			assert.Contains(t, o.Text, tt.wantMsg)
		})
	}
}

func TestObserve_NoSession(t *testing.T) {
	obs := NewObservationSource(testLogger(), nil, newFakeEngine(), nil, observerConfig(t))
	o := obs.Observe(context.Background(), 1, "g", nil)
	assert.True(t, o.Failed)
	assert.Contains(t, o.Text, domain.ErrNotConnected.Error())
}
