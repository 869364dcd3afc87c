package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Names of the capabilities implemented inside the agent process.
const (
	CapObserveScene  = "observe_scene"
	CapGetSceneState = "get_scene_state"
	CapAskOperator   = "ask_operator"
)

// ToolCall is a structured call as emitted by the reasoning engine.
type ToolCall struct {
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`
}

// ActionArgs is the tagged union of known argument shapes.
// Local capabilities have fixed shapes; anything provider-defined is RemoteArgs.
type ActionArgs interface {
	// Map renders the arguments in the open key/value form sent over the wire.
	Map() map[string]interface{}
	isActionArgs()
}

// ObserveArgs are the arguments of observe_scene.
type ObserveArgs struct {
	Step int
}

// SceneStateArgs are the arguments of get_scene_state (none).
type SceneStateArgs struct{}

// AskOperatorArgs are the arguments of ask_operator.
type AskOperatorArgs struct {
	Question string
}

// RemoteArgs is the open mapping for tools defined by the remote provider.
type RemoteArgs map[string]interface{}

func (ObserveArgs) isActionArgs()     {}
func (SceneStateArgs) isActionArgs()  {}
func (AskOperatorArgs) isActionArgs() {}
func (RemoteArgs) isActionArgs()      {}

func (a ObserveArgs) Map() map[string]interface{} {
	return map[string]interface{}{"step": a.Step}
}

func (SceneStateArgs) Map() map[string]interface{} {
	return map[string]interface{}{}
}

func (a AskOperatorArgs) Map() map[string]interface{} {
	return map[string]interface{}{"question": a.Question}
}

func (a RemoteArgs) Map() map[string]interface{} {
	if a == nil {
		return map[string]interface{}{}
	}
	return map[string]interface{}(a)
}

// Action is the capability name plus concrete arguments chosen for one step.
type Action struct {
	Name string
	Args ActionArgs
}

// NewAction builds an Action from a raw call, decoding arguments into the
// typed shape when the name belongs to a local capability.
func NewAction(name string, raw map[string]interface{}) Action {
	return Action{Name: name, Args: DecodeArgs(name, raw)}
}

// ActionFromCall converts an engine call into an Action.
func ActionFromCall(call ToolCall) Action {
	return NewAction(call.Name, call.Args)
}

// DecodeArgs maps a raw argument mapping onto the typed union.
func DecodeArgs(name string, raw map[string]interface{}) ActionArgs {
	switch name {
	case CapObserveScene:
		step, _ := intArg(raw["step"])
		return ObserveArgs{Step: step}
	case CapGetSceneState:
		return SceneStateArgs{}
	case CapAskOperator:
		q, _ := raw["question"].(string)
		return AskOperatorArgs{Question: q}
	default:
		out := make(RemoteArgs, len(raw))
		for k, v := range raw {
			out[k] = v
		}
		return out
	}
}

// IsZero reports whether no action was chosen.
func (a Action) IsZero() bool {
	return strings.TrimSpace(a.Name) == ""
}

// ArgsMap returns the wire form of the arguments.
func (a Action) ArgsMap() map[string]interface{} {
	if a.Args == nil {
		return map[string]interface{}{}
	}
	return a.Args.Map()
}

// JSON renders the action as {"name":..,"arguments":..} for logs and memory.
func (a Action) JSON() string {
	payload := map[string]interface{}{
		"name":      a.Name,
		"arguments": a.ArgsMap(),
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf(`{"name":%q}`, a.Name)
	}
	return string(b)
}

// String renders the action in call form, e.g. create(name=A).
func (a Action) String() string {
	if a.IsZero() {
		return "(none)"
	}
	args, _ := json.Marshal(a.ArgsMap())
	return fmt.Sprintf("%s(%s)", a.Name, string(args))
}

// intArg accepts the numeric encodings engines produce for integers.
func intArg(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case float32:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	}
	return 0, false
}
