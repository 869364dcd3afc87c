package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/manthysbr/auleagent/internal/core/domain"
)

// OpenAIEngine implements domain.ReasoningEngine using an OpenAI-compatible
// chat completions API.
// Works with: OpenAI, Azure OpenAI, Together AI, local Ollama /v1, etc.
type OpenAIEngine struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
}

// NewOpenAIEngine creates a new OpenAI-compatible engine
func NewOpenAIEngine(baseURL, apiKey, model string) *OpenAIEngine {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "gpt-4o"
	}

	return &OpenAIEngine{
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
	}
}

type chatContentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatImageURL struct {
	URL string `json:"url"`
}

type chatMessage struct {
	Role    string            `json:"role"`
	Content []chatContentPart `json:"content"`
}

type chatFunction struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

type chatTool struct {
	Type     string       `json:"type"`
	Function chatFunction `json:"function"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Tools       []chatTool    `json:"tools,omitempty"`
	Temperature float32       `json:"temperature"`
	TopP        float32       `json:"top_p,omitempty"`
	MaxTokens   int32         `json:"max_tokens,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
}

// Generate runs one chat completion with the capabilities exposed as tools.
func (e *OpenAIEngine) Generate(ctx context.Context, gen domain.GenerationRequest) (*domain.GenerationResponse, error) {
	url := fmt.Sprintf("%s/chat/completions", e.baseURL)

	payloadBytes, err := json.Marshal(e.buildRequest(gen))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payloadBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return convertChatResponse(result)
}

func (e *OpenAIEngine) buildRequest(gen domain.GenerationRequest) chatRequest {
	content := []chatContentPart{{Type: "text", Text: gen.Prompt}}
	for _, img := range gen.Images {
		if len(img.Data) == 0 {
			continue
		}
		content = append(content, chatContentPart{
			Type:     "image_url",
			ImageURL: &chatImageURL{URL: dataURL(img)},
		})
	}

	req := chatRequest{
		Model:       e.model,
		Messages:    []chatMessage{{Role: "user", Content: content}},
		Temperature: gen.Params.Temperature,
		TopP:        gen.Params.TopP,
		MaxTokens:   gen.Params.MaxOutputTokens,
		Stop:        gen.Params.StopSequences,
	}
	for _, c := range gen.Capabilities {
		params := c.Parameters
		if len(params) == 0 {
			params = map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
		}
		req.Tools = append(req.Tools, chatTool{
			Type:     "function",
			Function: chatFunction{Name: c.Name, Description: c.Description, Parameters: params},
		})
	}
	return req
}

func convertChatResponse(result chatResponse) (*domain.GenerationResponse, error) {
	if len(result.Choices) == 0 {
		return nil, domain.ErrEmptyResponse
	}

	out := &domain.GenerationResponse{}
	for _, choice := range result.Choices {
		var c domain.Candidate
		if choice.Message.Content != "" {
			c.Parts = append(c.Parts, domain.ResponsePart{Text: choice.Message.Content})
		}
		for _, tc := range choice.Message.ToolCalls {
			c.Parts = append(c.Parts, domain.ResponsePart{Call: &domain.ToolCall{
				Name: tc.Function.Name,
				Args: decodeArguments(tc.Function.Arguments),
			}})
		}
		out.Candidates = append(out.Candidates, c)
	}
	return out, nil
}

// decodeArguments parses the JSON-encoded argument string of a tool call.
// Unparseable arguments are kept under "raw".
func decodeArguments(s string) map[string]interface{} {
	s = strings.TrimSpace(s)
	if s == "" {
		return map[string]interface{}{}
	}
	var args map[string]interface{}
	if err := json.Unmarshal([]byte(s), &args); err != nil {
		return map[string]interface{}{"raw": s}
	}
	return args
}

func dataURL(b domain.Blob) string {
	mime := b.MIMEType
	if mime == "" {
		mime = "application/octet-stream"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(b.Data)
}
