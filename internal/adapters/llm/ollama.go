package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/manthysbr/auleagent/internal/core/domain"
)

// OllamaEngine implements domain.ReasoningEngine for a local Ollama instance
// through the native /api/chat endpoint.
type OllamaEngine struct {
	baseURL string
	model   string
	client  *http.Client
}

func NewOllamaEngine(baseURL, model string) *OllamaEngine {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "qwen2.5vl:latest"
	}
	return &OllamaEngine{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: 180 * time.Second},
	}
}

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	Images    []string         `json:"images,omitempty"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
}

type ollamaToolCall struct {
	Function struct {
		Name      string                 `json:"name"`
		Arguments map[string]interface{} `json:"arguments"`
	} `json:"function"`
}

type ollamaOptions struct {
	Temperature float32  `json:"temperature"`
	TopP        float32  `json:"top_p,omitempty"`
	TopK        float32  `json:"top_k,omitempty"`
	NumPredict  int32    `json:"num_predict,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Tools    []chatTool      `json:"tools,omitempty"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

func (e *OllamaEngine) Generate(ctx context.Context, gen domain.GenerationRequest) (*domain.GenerationResponse, error) {
	jsonData, err := json.Marshal(e.buildRequest(gen))
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/chat", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama connection failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama returned status: %d", resp.StatusCode)
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	var c domain.Candidate
	if chatResp.Message.Content != "" {
		c.Parts = append(c.Parts, domain.ResponsePart{Text: chatResp.Message.Content})
	}
	for _, tc := range chatResp.Message.ToolCalls {
		c.Parts = append(c.Parts, domain.ResponsePart{Call: &domain.ToolCall{
			Name: tc.Function.Name,
			Args: tc.Function.Arguments,
		}})
	}
	if len(c.Parts) == 0 {
		return nil, domain.ErrEmptyResponse
	}
	return &domain.GenerationResponse{Candidates: []domain.Candidate{c}}, nil
}

func (e *OllamaEngine) buildRequest(gen domain.GenerationRequest) ollamaChatRequest {
	msg := ollamaMessage{Role: "user", Content: gen.Prompt}
	for _, img := range gen.Images {
		if len(img.Data) > 0 {
			msg.Images = append(msg.Images, base64.StdEncoding.EncodeToString(img.Data))
		}
	}

	req := ollamaChatRequest{
		Model:    e.model,
		Messages: []ollamaMessage{msg},
		Stream:   false,
		Options: ollamaOptions{
			Temperature: gen.Params.Temperature,
			TopP:        gen.Params.TopP,
			TopK:        gen.Params.TopK,
			NumPredict:  gen.Params.MaxOutputTokens,
			Stop:        gen.Params.StopSequences,
		},
	}
	for _, c := range gen.Capabilities {
		req.Tools = append(req.Tools, chatTool{
			Type:     "function",
			Function: chatFunction{Name: c.Name, Description: c.Description, Parameters: c.Parameters},
		})
	}
	return req
}
