package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/manthysbr/auleagent/internal/core/domain"
)

// Load builds the application config: defaults, then the YAML file at path
// (missing file is fine), then environment overrides. An "enc:" API key is
// decrypted with secret.
func Load(path string, secret *SecretKey) (*domain.AppConfig, error) {
	cfg := domain.DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if IsEncrypted(cfg.Provider.APIKey) {
		if secret == nil {
			return nil, fmt.Errorf("api_key is encrypted but no secret key is available")
		}
		key, err := secret.Decrypt(cfg.Provider.APIKey)
		if err != nil {
			return nil, fmt.Errorf("decrypt api_key: %w", err)
		}
		cfg.Provider.APIKey = key
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *domain.AppConfig) error {
	setString := func(env string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			*dst = v
		}
	}

	setString("AULE_PROVIDER", &cfg.Provider.Mode)
	setString("AULE_MODEL", &cfg.Provider.Model)
	setString("AULE_BASE_URL", &cfg.Provider.BaseURL)
	setString("AULE_TARGET", &cfg.Session.Target)
	setString("AULE_DB_PATH", &cfg.Storage.DBPath)
	setString("AULE_EXECUTION_LOG", &cfg.Storage.ExecutionLogPath)
	setString("AULE_ADDR", &cfg.Server.Addr)
	setString("AULE_RENDER_DIR", &cfg.Agent.Render.OutputDir)

	// Provider-native key variables only fill an empty key.
	if cfg.Provider.APIKey == "" {
		switch strings.ToLower(cfg.Provider.Mode) {
		case "", "gemini":
			setString("GOOGLE_API_KEY", &cfg.Provider.APIKey)
		case "openai", "remote":
			setString("OPENAI_API_KEY", &cfg.Provider.APIKey)
		}
	}
	setString("AULE_API_KEY", &cfg.Provider.APIKey)

	for env, dst := range map[string]*int{
		"AULE_MAX_STEPS":    &cfg.Agent.MaxSteps,
		"AULE_MAX_FAILURES": &cfg.Agent.MaxFailures,
	} {
		v := strings.TrimSpace(os.Getenv(env))
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", env, err)
		}
		*dst = n
	}
	return nil
}

// Validate rejects configs the loop cannot run with.
func Validate(cfg *domain.AppConfig) error {
	a := cfg.Agent
	if a.MaxSteps <= 0 {
		return fmt.Errorf("agent.max_steps must be positive, got %d", a.MaxSteps)
	}
	if a.MaxFailures <= 0 {
		return fmt.Errorf("agent.max_failures must be positive, got %d", a.MaxFailures)
	}
	switch a.SuccessPolicy {
	case domain.SuccessPolicyHeuristic, domain.SuccessPolicyStructured:
	default:
		return fmt.Errorf("unknown agent.success_policy %q", a.SuccessPolicy)
	}
	switch a.Settle.Mode {
	case domain.SettleModeDelay:
	case domain.SettleModePoll:
		if a.Settle.ProbeTool == "" {
			return fmt.Errorf("agent.settle.probe_tool is required when mode=poll")
		}
	default:
		return fmt.Errorf("unknown agent.settle.mode %q", a.Settle.Mode)
	}
	return nil
}

// Save writes cfg as YAML with the API key encrypted.
func Save(path string, cfg *domain.AppConfig, secret *SecretKey) error {
	cp := *cfg
	if cp.Provider.APIKey != "" && !IsEncrypted(cp.Provider.APIKey) {
		enc, err := secret.Encrypt(cp.Provider.APIKey)
		if err != nil {
			return fmt.Errorf("encrypt api_key: %w", err)
		}
		cp.Provider.APIKey = enc
	}

	data, err := yaml.Marshal(&cp)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// Masked returns a copy safe for API responses.
func Masked(cfg *domain.AppConfig) *domain.AppConfig {
	cp := *cfg
	cp.Provider.APIKey = MaskSecret(cfg.Provider.APIKey)
	return &cp
}
