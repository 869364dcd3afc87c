package services

import (
	"encoding/json"
	"strings"

	"github.com/manthysbr/auleagent/internal/core/domain"
)

// SuccessClassifier decides whether a capability call succeeded.
//
// The remote protocol rarely reports a boolean, so success is an
// approximation. Two policies exist and exactly one is configured per run:
//
//   - HeuristicClassifier (default): an explicit success flag in structured
//     output wins; otherwise the call succeeded iff the text contains a
//     success marker ("success", "complete" by default). Markers are checked
//     before anything else in the text, so "Successfully created 'ErrorPanel'"
//     is a success. Text without a success marker is a failure.
//   - StructuredClassifier: only an explicit flag counts; anything else is a
//     failure.
//
// A result the provider marks as an error is a failure under both.
type SuccessClassifier interface {
	Classify(res domain.CallResult) bool
}

// NewSuccessClassifier builds the classifier named by the policy.
func NewSuccessClassifier(cfg domain.AgentConfig) SuccessClassifier {
	if cfg.SuccessPolicy == domain.SuccessPolicyStructured {
		return StructuredClassifier{}
	}
	return HeuristicClassifier{
		SuccessMarkers: cfg.SuccessMarkers,
	}
}

// HeuristicClassifier is the default substring-based policy.
type HeuristicClassifier struct {
	SuccessMarkers []string
}

func (c HeuristicClassifier) Classify(res domain.CallResult) bool {
	if res.IsError {
		return false
	}
	if flag, ok := explicitSuccessFlag(res.Text); ok {
		return flag
	}
	lower := strings.ToLower(res.Text)
	for _, m := range c.SuccessMarkers {
		if m != "" && strings.Contains(lower, strings.ToLower(m)) {
			return true
		}
	}
	return false
}

// StructuredClassifier trusts only an explicit success flag.
type StructuredClassifier struct{}

func (StructuredClassifier) Classify(res domain.CallResult) bool {
	if res.IsError {
		return false
	}
	flag, ok := explicitSuccessFlag(res.Text)
	return ok && flag
}

// explicitSuccessFlag looks for a boolean "success" field in JSON output.
func explicitSuccessFlag(text string) (bool, bool) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") {
		return false, false
	}
	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(trimmed), &payload); err != nil {
		return false, false
	}
	flag, ok := payload["success"].(bool)
	return flag, ok
}
