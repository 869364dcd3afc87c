package domain

import (
	"context"
	"errors"
	"strings"
)

var ErrEmptyResponse = errors.New("reasoning engine returned no candidates")

// GenerationParams are the sampling parameters of one engine call.
type GenerationParams struct {
	Temperature     float32  `yaml:"temperature" json:"temperature"`
	MaxOutputTokens int32    `yaml:"max_output_tokens" json:"max_output_tokens"`
	TopP            float32  `yaml:"top_p" json:"top_p"`
	TopK            float32  `yaml:"top_k" json:"top_k"`
	StopSequences   []string `yaml:"stop_sequences" json:"stop_sequences"`
}

// GenerationRequest is a prompt plus the callable capability set.
type GenerationRequest struct {
	Prompt       string
	Images       []Blob
	Capabilities []*Capability
	Params       GenerationParams
}

// ResponsePart is either free text or a structured call.
type ResponsePart struct {
	Text string
	Call *ToolCall
}

// Candidate is one generated alternative.
type Candidate struct {
	Parts []ResponsePart
}

// GenerationResponse holds the engine candidates.
type GenerationResponse struct {
	Candidates []Candidate
}

// Text concatenates every text part of every candidate.
func (r *GenerationResponse) Text() string {
	if r == nil {
		return ""
	}
	var parts []string
	for _, c := range r.Candidates {
		for _, p := range c.Parts {
			if p.Text != "" {
				parts = append(parts, p.Text)
			}
		}
	}
	return strings.Join(parts, "\n")
}

// FirstCall returns the first structured call, if any.
func (r *GenerationResponse) FirstCall() *ToolCall {
	if r == nil {
		return nil
	}
	for _, c := range r.Candidates {
		for _, p := range c.Parts {
			if p.Call != nil && p.Call.Name != "" {
				return p.Call
			}
		}
	}
	return nil
}

// ReasoningEngine is the reasoning/vision service collaborator.
type ReasoningEngine interface {
	Generate(ctx context.Context, req GenerationRequest) (*GenerationResponse, error)
}
