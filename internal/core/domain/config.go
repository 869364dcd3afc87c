package domain

import "time"

// Verdict tokens the goal-completion oracle asks for.
const (
	VerdictAchieved    = "GOAL_ACHIEVED"
	VerdictNotAchieved = "GOAL_NOT_ACHIEVED"
	VerdictPartial     = "GOAL_PARTIAL"
)

// Success classification policies.
const (
	SuccessPolicyHeuristic  = "heuristic"
	SuccessPolicyStructured = "structured"
)

// Settle policies applied after side-effecting remote calls.
const (
	SettleModeDelay = "delay"
	SettleModePoll  = "poll"
)

// ProviderConfig configures the reasoning engine.
type ProviderConfig struct {
	Mode    string `yaml:"mode" json:"mode"`         // "gemini", "openai" or "ollama"
	BaseURL string `yaml:"base_url" json:"base_url"` // openai-compatible or ollama endpoint
	APIKey  string `yaml:"api_key" json:"api_key"`   // may be "enc:" encrypted at rest
	Model   string `yaml:"model" json:"model"`
}

// SessionConfig configures the remote capability-execution session.
type SessionConfig struct {
	Target         string        `yaml:"target" json:"target"` // script path, command line or http(s) URL
	Env            []string      `yaml:"env" json:"env"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" json:"connect_timeout"`
}

// StorageConfig configures durable outputs.
type StorageConfig struct {
	DBPath           string `yaml:"db_path" json:"db_path"`                       // DuckDB file, empty disables
	ExecutionLogPath string `yaml:"execution_log_path" json:"execution_log_path"` // CSV file, empty disables
}

// ServerConfig configures the HTTP/WebSocket shell.
type ServerConfig struct {
	Addr           string   `yaml:"addr" json:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
}

// SettleConfig replaces acknowledgement for providers whose side effects land
// after the call returns.
type SettleConfig struct {
	Mode        string                 `yaml:"mode" json:"mode"`   // "delay" or "poll"
	Delay       time.Duration          `yaml:"delay" json:"delay"` // used by "delay"
	ProbeTool   string                 `yaml:"probe_tool" json:"probe_tool"`
	ProbeArgs   map[string]interface{} `yaml:"probe_args" json:"probe_args"`
	ReadyMarker string                 `yaml:"ready_marker" json:"ready_marker"`
	Interval    time.Duration          `yaml:"interval" json:"interval"`
	Timeout     time.Duration          `yaml:"timeout" json:"timeout"`
}

// RenderConfig describes how an observation is produced through the remote
// session.
type RenderConfig struct {
	ObjectTool        string        `yaml:"object_tool" json:"object_tool"`
	RendererObject    string        `yaml:"renderer_object" json:"renderer_object"`
	RendererComponent string        `yaml:"renderer_component" json:"renderer_component"`
	MenuTool          string        `yaml:"menu_tool" json:"menu_tool"`
	PlayMenuPath      string        `yaml:"play_menu_path" json:"play_menu_path"`
	Wait              time.Duration `yaml:"wait" json:"wait"`
	OutputDir         string        `yaml:"output_dir" json:"output_dir"`
	Pattern           string        `yaml:"pattern" json:"pattern"`
	MIMEType          string        `yaml:"mime_type" json:"mime_type"`
}

// SceneStateConfig names the remote call behind get_scene_state.
type SceneStateConfig struct {
	Tool string                 `yaml:"tool" json:"tool"`
	Args map[string]interface{} `yaml:"args" json:"args"`
}

// AgentConfig holds every tunable of the goal loop.
type AgentConfig struct {
	MaxSteps           int      `yaml:"max_steps" json:"max_steps"`
	MaxFailures        int      `yaml:"max_failures" json:"max_failures"`
	MemoryWindow       int      `yaml:"memory_window" json:"memory_window"`
	SuggestionWindow   int      `yaml:"suggestion_window" json:"suggestion_window"`
	ReflectionWindow   int      `yaml:"reflection_window" json:"reflection_window"`
	ObservationHistory int      `yaml:"observation_history" json:"observation_history"`
	CompletionToken    string   `yaml:"completion_token" json:"completion_token"`
	SuccessPolicy      string   `yaml:"success_policy" json:"success_policy"`
	SuccessMarkers     []string `yaml:"success_markers" json:"success_markers"`

	Settle     SettleConfig     `yaml:"settle" json:"settle"`
	Render     RenderConfig     `yaml:"render" json:"render"`
	SceneState SceneStateConfig `yaml:"scene_state" json:"scene_state"`

	Planner   GenerationParams `yaml:"planner" json:"planner"`
	Fallback  GenerationParams `yaml:"fallback" json:"fallback"`
	Reflector GenerationParams `yaml:"reflector" json:"reflector"`
	Oracle    GenerationParams `yaml:"oracle" json:"oracle"`
	Analysis  GenerationParams `yaml:"analysis" json:"analysis"`
}

// AppConfig is the main application configuration.
type AppConfig struct {
	Provider ProviderConfig `yaml:"provider" json:"provider"`
	Session  SessionConfig  `yaml:"session" json:"session"`
	Storage  StorageConfig  `yaml:"storage" json:"storage"`
	Server   ServerConfig   `yaml:"server" json:"server"`
	Agent    AgentConfig    `yaml:"agent" json:"agent"`
}

// DefaultAgentConfig returns the reference loop behavior.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		MaxSteps:           20,
		MaxFailures:        5,
		MemoryWindow:       5,
		SuggestionWindow:   3,
		ReflectionWindow:   3,
		ObservationHistory: 2,
		CompletionToken:    "TASK_COMPLETE",
		SuccessPolicy:      SuccessPolicyHeuristic,
		SuccessMarkers:     []string{"success", "complete"},
		Settle: SettleConfig{
			Mode:     SettleModeDelay,
			Delay:    time.Second,
			Interval: 250 * time.Millisecond,
			Timeout:  5 * time.Second,
		},
		Render: RenderConfig{
			ObjectTool:        "manage_gameobject",
			RendererObject:    "SceneRenderer",
			RendererComponent: "SceneRenderer",
			MenuTool:          "execute_menu_item",
			PlayMenuPath:      "Edit/Play",
			Wait:              2 * time.Second,
			OutputDir:         "Renders",
			Pattern:           "*.png",
			MIMEType:          "image/png",
		},
		SceneState: SceneStateConfig{
			Tool: "manage_scene",
			Args: map[string]interface{}{"action": "get_hierarchy"},
		},
		Planner: GenerationParams{
			Temperature:     0.2,
			MaxOutputTokens: 3000,
			TopP:            0.95,
			TopK:            40,
			StopSequences:   []string{"TASK_COMPLETE"},
		},
		Fallback:  GenerationParams{Temperature: 0.1, MaxOutputTokens: 1024},
		Reflector: GenerationParams{Temperature: 0.3, MaxOutputTokens: 1024},
		Oracle:    GenerationParams{Temperature: 0.0, MaxOutputTokens: 512},
		Analysis:  GenerationParams{Temperature: 0.2, MaxOutputTokens: 1500},
	}
}

// DefaultConfig returns safe defaults.
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Provider: ProviderConfig{
			Mode:  "gemini",
			Model: "gemini-2.0-flash",
		},
		Session: SessionConfig{
			ConnectTimeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			DBPath:           "aule-agent.db",
			ExecutionLogPath: "execution_log.csv",
		},
		Server: ServerConfig{
			Addr:           ":8000",
			AllowedOrigins: []string{"http://localhost:5173"},
		},
		Agent: DefaultAgentConfig(),
	}
}
