package domain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry(t *testing.T) *CapabilityRegistry {
	t.Helper()
	r := NewCapabilityRegistry()
	require.NoError(t, r.Register(&Capability{Name: "manage_gameobject", Description: "objects", Origin: OriginRemote,
		Parameters: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{"name": map[string]interface{}{"type": "string"}, "action": map[string]interface{}{"type": "string"}},
			"required":   []interface{}{"action"},
		}}))
	require.NoError(t, r.Register(&Capability{Name: "manage_scene", Description: "scenes", Origin: OriginRemote}))
	require.NoError(t, r.Register(&Capability{Name: "execute_menu_item", Description: "menus", Origin: OriginRemote}))
	return r
}

func TestCapabilityRegistry_Register(t *testing.T) {
	r := NewCapabilityRegistry()
	assert.Error(t, r.Register(&Capability{}))
	assert.Error(t, r.Register(&Capability{Name: "local", Origin: OriginLocal}), "local needs a handler")

	c := &Capability{Name: "ok", Origin: OriginLocal, Handler: func(context.Context, int, ActionArgs) (ToolResult, error) {
		return ToolResult{}, nil
	}}
	require.NoError(t, r.Register(c))
	assert.NotNil(t, c.Parameters, "a default schema is filled in")
}

func TestCapabilityRegistry_Resolve(t *testing.T) {
	r := testRegistry(t)

	c, corrected, err := r.Resolve("manage_scene")
	require.NoError(t, err)
	assert.False(t, corrected)
	assert.Equal(t, "manage_scene", c.Name)

	tests := []struct {
		input string
		want  string
	}{
		{"scene_manage", "manage_scene"},
		{"Manage-Scene", "manage_scene"},
		{"managescene", "manage_scene"},
		{"manage_scen", "manage_scene"},
		{"manage_gameobjects", "manage_gameobject"},
		{"execute_menu_itme", "execute_menu_item"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			c, corrected, err := r.Resolve(tt.input)
			require.NoError(t, err)
			assert.True(t, corrected)
			assert.Equal(t, tt.want, c.Name)
		})
	}
}

func TestCapabilityRegistry_ResolveRefusesDifferentIntent(t *testing.T) {
	r := testRegistry(t)
	require.NoError(t, r.Register(&Capability{Name: "delete_object", Description: "remove", Origin: OriginRemote}))

	for _, name := range []string{
		"create_object", // shares "object" with delete_object
		"clear_scene",   // shares "scene" with manage_scene
		"execute_menu",  // a prefix, not a typo
		"teleport",
		"",
	} {
		t.Run(name, func(t *testing.T) {
			_, corrected, err := r.Resolve(name)
			assert.ErrorIs(t, err, ErrCapabilityNotFound)
			assert.False(t, corrected)
		})
	}
}

func TestCapabilityRegistry_ResolveAmbiguousTypo(t *testing.T) {
	r := NewCapabilityRegistry()
	require.NoError(t, r.Register(&Capability{Name: "set_pos", Origin: OriginRemote}))
	require.NoError(t, r.Register(&Capability{Name: "set_rot", Origin: OriginRemote}))

	_, _, err := r.Resolve("set_pot")
	assert.ErrorIs(t, err, ErrCapabilityNotFound, "equally close to two names")
}

func TestCapabilityRegistry_ListAndFormat(t *testing.T) {
	r := testRegistry(t)

	names := []string{}
	for _, c := range r.List() {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"execute_menu_item", "manage_gameobject", "manage_scene"}, names)

	text := r.FormatForPrompt()
	assert.Contains(t, text, "- manage_gameobject: objects | params: {action:string, name:string} | required: action")
	assert.Contains(t, text, "- manage_scene: scenes\n")
}
