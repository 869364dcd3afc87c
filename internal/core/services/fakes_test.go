package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/manthysbr/auleagent/internal/core/domain"
	"github.com/manthysbr/auleagent/internal/core/ports"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func textResponse(text string) *domain.GenerationResponse {
	return &domain.GenerationResponse{Candidates: []domain.Candidate{{
		Parts: []domain.ResponsePart{{Text: text}},
	}}}
}

func callResponse(text, name string, args map[string]interface{}) *domain.GenerationResponse {
	parts := []domain.ResponsePart{}
	if text != "" {
		parts = append(parts, domain.ResponsePart{Text: text})
	}
	parts = append(parts, domain.ResponsePart{Call: &domain.ToolCall{Name: name, Args: args}})
	return &domain.GenerationResponse{Candidates: []domain.Candidate{{Parts: parts}}}
}

var errEngineDown = errors.New("engine unavailable")

// engine roles, recognized by the opening of each prompt
const (
	rolePlan     = "plan"
	roleFallback = "fallback"
	roleReflect  = "reflect"
	roleOracle   = "oracle"
	roleAnalyze  = "analyze"
)

func roleOf(prompt string) string {
	switch {
	case strings.HasPrefix(prompt, "You are an autonomous agent"):
		return rolePlan
	case strings.HasPrefix(prompt, "Convert the following"):
		return roleFallback
	case strings.HasPrefix(prompt, "Reflect on the last"):
		return roleReflect
	case strings.HasPrefix(prompt, "Decide whether the goal"):
		return roleOracle
	case strings.HasPrefix(prompt, "You are looking at"):
		return roleAnalyze
	}
	return "unknown"
}

type engineFunc func(req domain.GenerationRequest) (*domain.GenerationResponse, error)

// fakeEngine routes each call to a per-role handler and records requests.
type fakeEngine struct {
	mu       sync.Mutex
	handlers map[string]engineFunc
	requests map[string][]domain.GenerationRequest
}

func newFakeEngine() *fakeEngine {
	e := &fakeEngine{
		handlers: map[string]engineFunc{},
		requests: map[string][]domain.GenerationRequest{},
	}
	e.on(rolePlan, func(domain.GenerationRequest) (*domain.GenerationResponse, error) {
		return callResponse("Thought: look first", domain.CapObserveScene, nil), nil
	})
	e.on(roleFallback, func(domain.GenerationRequest) (*domain.GenerationResponse, error) {
		return textResponse(""), nil
	})
	e.on(roleReflect, func(domain.GenerationRequest) (*domain.GenerationResponse, error) {
		return textResponse("Keep going."), nil
	})
	e.on(roleOracle, func(domain.GenerationRequest) (*domain.GenerationResponse, error) {
		return textResponse(domain.VerdictNotAchieved + "\nnot yet"), nil
	})
	e.on(roleAnalyze, func(domain.GenerationRequest) (*domain.GenerationResponse, error) {
		return textResponse("A cube sits at the origin."), nil
	})
	return e
}

func (e *fakeEngine) on(role string, fn engineFunc) *fakeEngine {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[role] = fn
	return e
}

func (e *fakeEngine) calls(role string) []domain.GenerationRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.GenerationRequest(nil), e.requests[role]...)
}

func (e *fakeEngine) Generate(_ context.Context, req domain.GenerationRequest) (*domain.GenerationResponse, error) {
	role := roleOf(req.Prompt)
	e.mu.Lock()
	e.requests[role] = append(e.requests[role], req)
	fn := e.handlers[role]
	e.mu.Unlock()
	if fn == nil {
		return nil, errors.New("unexpected prompt")
	}
	return fn(req)
}

type toolCall struct {
	Name string
	Args map[string]interface{}
}

// fakeSession is an in-memory capability session.
type fakeSession struct {
	mu         sync.Mutex
	tools      []ports.RemoteTool
	handler    func(name string, args map[string]interface{}) (domain.CallResult, error)
	connectErr error
	listErr    error
	calls      []toolCall
	closed     bool
	target     string
}

func (s *fakeSession) Connect(_ context.Context, target string) error {
	s.target = target
	return s.connectErr
}

func (s *fakeSession) ListTools(context.Context) ([]ports.RemoteTool, error) {
	return s.tools, s.listErr
}

func (s *fakeSession) CallTool(_ context.Context, name string, args map[string]interface{}) (domain.CallResult, error) {
	s.mu.Lock()
	s.calls = append(s.calls, toolCall{Name: name, Args: args})
	h := s.handler
	s.mu.Unlock()
	if h == nil {
		return domain.CallResult{Text: "ok"}, nil
	}
	return h(name, args)
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

func (s *fakeSession) callNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.calls))
	for _, c := range s.calls {
		names = append(names, c.Name)
	}
	return names
}

// memExecLog collects execution log records.
type memExecLog struct {
	mu      sync.Mutex
	records []domain.ExecutionLogRecord
}

func (l *memExecLog) Append(_ context.Context, rec domain.ExecutionLogRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, rec)
	return nil
}

// scriptedOperator answers questions from a fixed list.
type scriptedOperator struct {
	answers   []string
	questions []string
	err       error
}

func (o *scriptedOperator) Ask(_ context.Context, prompt string) (string, error) {
	o.questions = append(o.questions, prompt)
	if o.err != nil {
		return "", o.err
	}
	if len(o.answers) == 0 {
		return "", nil
	}
	a := o.answers[0]
	o.answers = o.answers[1:]
	return a, nil
}

// memRunRepo stores run summaries in memory.
type memRunRepo struct {
	mu   sync.Mutex
	runs []domain.RunSummary
}

func (r *memRunRepo) SaveRun(_ context.Context, run domain.RunSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, run)
	return nil
}

func (r *memRunRepo) GetRun(_ context.Context, id domain.RunID) (domain.RunSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, run := range r.runs {
		if run.ID == id {
			return run, nil
		}
	}
	return domain.RunSummary{}, errors.New("not found")
}

func (r *memRunRepo) ListRuns(_ context.Context, limit int) ([]domain.RunSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.RunSummary(nil), r.runs...), nil
}

// testAgentConfig is the default config without sleeps.
func testAgentConfig() domain.AgentConfig {
	cfg := domain.DefaultAgentConfig()
	cfg.Settle.Delay = 0
	cfg.Render.Wait = 0
	return cfg
}
