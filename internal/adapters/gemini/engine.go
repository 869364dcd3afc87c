package gemini

import (
	"context"
	"fmt"

	"github.com/manthysbr/auleagent/internal/core/domain"
	"google.golang.org/genai"
)

// Engine is a domain.ReasoningEngine backed by the Gemini API. It supports
// images and function calling in the same request.
type Engine struct {
	client *genai.Client
	model  string
}

// NewEngine creates a Gemini engine.
func NewEngine(ctx context.Context, apiKey, model string) (*Engine, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &Engine{client: client, model: model}, nil
}

// Model returns the configured model name.
func (e *Engine) Model() string {
	return e.model
}

// Generate runs one content generation call.
func (e *Engine) Generate(ctx context.Context, req domain.GenerationRequest) (*domain.GenerationResponse, error) {
	result, err := e.client.Models.GenerateContent(ctx, e.model, buildContents(req), buildConfig(req))
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}
	return convertResponse(result)
}

func buildContents(req domain.GenerationRequest) []*genai.Content {
	parts := []*genai.Part{genai.NewPartFromText(req.Prompt)}
	for _, img := range req.Images {
		if len(img.Data) == 0 {
			continue
		}
		parts = append(parts, genai.NewPartFromBytes(img.Data, img.MIMEType))
	}
	return []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
}

func buildConfig(req domain.GenerationRequest) *genai.GenerateContentConfig {
	p := req.Params
	cfg := &genai.GenerateContentConfig{
		Temperature:   genai.Ptr(p.Temperature),
		StopSequences: p.StopSequences,
	}
	if p.MaxOutputTokens > 0 {
		cfg.MaxOutputTokens = p.MaxOutputTokens
	}
	if p.TopP > 0 {
		cfg.TopP = genai.Ptr(p.TopP)
	}
	if p.TopK > 0 {
		cfg.TopK = genai.Ptr(p.TopK)
	}
	if decls := functionDeclarations(req.Capabilities); len(decls) > 0 {
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	return cfg
}

func functionDeclarations(caps []*domain.Capability) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(caps))
	for _, c := range caps {
		decl := &genai.FunctionDeclaration{
			Name:        c.Name,
			Description: c.Description,
		}
		if len(c.Parameters) > 0 {
			decl.ParametersJsonSchema = c.Parameters
		}
		decls = append(decls, decl)
	}
	return decls
}

func convertResponse(result *genai.GenerateContentResponse) (*domain.GenerationResponse, error) {
	if result == nil || len(result.Candidates) == 0 {
		return nil, domain.ErrEmptyResponse
	}

	out := &domain.GenerationResponse{}
	for _, cand := range result.Candidates {
		var c domain.Candidate
		if cand != nil && cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if part == nil {
					continue
				}
				if part.FunctionCall != nil {
					c.Parts = append(c.Parts, domain.ResponsePart{Call: &domain.ToolCall{
						Name: part.FunctionCall.Name,
						Args: part.FunctionCall.Args,
					}})
					continue
				}
				if part.Text != "" && !part.Thought {
					c.Parts = append(c.Parts, domain.ResponsePart{Text: part.Text})
				}
			}
		}
		out.Candidates = append(out.Candidates, c)
	}
	return out, nil
}
