package providers

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/manthysbr/auleagent/internal/adapters/gemini"
	"github.com/manthysbr/auleagent/internal/adapters/llm"
	"github.com/manthysbr/auleagent/internal/core/domain"
)

// Build creates the reasoning engine from app configuration.
// It hides hosted/local provider selection from callers.
func Build(ctx context.Context, config *domain.AppConfig) (domain.ReasoningEngine, error) {
	if config == nil {
		config = domain.DefaultConfig()
	}

	p := config.Provider
	mode := strings.ToLower(strings.TrimSpace(p.Mode))
	switch mode {
	case "", "gemini":
		return gemini.NewEngine(ctx, strings.TrimSpace(p.APIKey), strings.TrimSpace(p.Model))
	case "openai", "remote":
		if strings.TrimSpace(p.APIKey) == "" && strings.TrimSpace(p.BaseURL) == "" {
			return nil, fmt.Errorf("openai mode needs an api_key or a base_url")
		}
		return llm.NewOpenAIEngine(
			strings.TrimSpace(p.BaseURL),
			strings.TrimSpace(p.APIKey),
			strings.TrimSpace(p.Model),
		), nil
	case "ollama", "local":
		baseURL := strings.TrimSpace(os.Getenv("OLLAMA_HOST"))
		if baseURL == "" {
			baseURL = strings.TrimSpace(p.BaseURL)
		}
		return llm.NewOllamaEngine(normalizeOllamaBaseURL(baseURL), strings.TrimSpace(p.Model)), nil
	default:
		return nil, fmt.Errorf("unsupported provider mode: %s", p.Mode)
	}
}

func normalizeOllamaBaseURL(baseURL string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if strings.HasSuffix(trimmed, "/v1") {
		return strings.TrimSuffix(trimmed, "/v1")
	}
	return trimmed
}
