package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/manthysbr/auleagent/internal/core/domain"
	"github.com/manthysbr/auleagent/internal/core/ports"
)

// AgentDeps are the external collaborators of an AgentService. Operator, ExecLog,
// Runs, Tracer and Events may be nil.
type AgentDeps struct {
	Engine     domain.ReasoningEngine
	NewSession func() ports.CapabilitySession
	Operator   ports.OperatorInput
	ExecLog    ports.ExecutionLog
	Runs       ports.RunRepository
	Tracer     *TraceCollector
	Events     *EventBus
}

// AgentService is the surface every shell wraps: connect once, run goals,
// close. Runs are serialized.
type AgentService struct {
	logger *slog.Logger
	cfg    domain.AppConfig
	deps   AgentDeps

	mu      sync.RWMutex
	session ports.CapabilitySession
	catalog *domain.CapabilityRegistry
	loop    *GoalLoop

	runMu   sync.Mutex
	pending []string
}

// NewAgentService creates an unconnected agent.
func NewAgentService(logger *slog.Logger, cfg domain.AppConfig, deps AgentDeps) *AgentService {
	return &AgentService{
		logger: logger,
		cfg:    cfg,
		deps:   deps,
	}
}

// Connect opens the capability session, builds the catalog and wires the
// run loop. Failure is reported as false and leaves the agent unconnected.
func (s *AgentService) Connect(ctx context.Context, target string) bool {
	if err := s.connect(ctx, target); err != nil {
		s.logger.Error("connect failed", "target", target, "error", err)
		return false
	}
	return true
}

func (s *AgentService) connect(ctx context.Context, target string) error {
	if s.deps.NewSession == nil {
		return fmt.Errorf("no capability session factory configured")
	}
	if s.deps.Engine == nil {
		return fmt.Errorf("no reasoning engine configured")
	}

	timeout := s.cfg.Session.ConnectTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	session := s.deps.NewSession()
	if err := session.Connect(connectCtx, target); err != nil {
		_ = session.Close()
		return fmt.Errorf("connect session: %w", err)
	}

	agentCfg := s.cfg.Agent
	observer := NewObservationSource(s.logger, session, s.deps.Engine, s.deps.Tracer, agentCfg)
	locals := LocalCapabilities(observer, session, s.deps.Operator, agentCfg)

	catalog, err := BuildCatalog(connectCtx, s.logger, session, locals)
	if err != nil {
		_ = session.Close()
		return err
	}

	dispatcher := NewActionDispatcher(
		s.logger,
		catalog,
		session,
		NewSettler(s.logger, agentCfg.Settle, session),
		NewSuccessClassifier(agentCfg),
		s.deps.ExecLog,
		s.deps.Tracer,
	)

	loop := NewGoalLoop(s.logger, agentCfg, GoalLoopDeps{
		Planner:    NewPlanner(s.logger, s.deps.Engine, s.deps.Tracer, agentCfg),
		Dispatcher: dispatcher,
		Reflector:  NewReflector(s.logger, s.deps.Engine, s.deps.Tracer, agentCfg),
		Oracle:     NewCompletionOracle(s.logger, s.deps.Engine, s.deps.Tracer, agentCfg),
		Observer:   observer,
		Catalog:    catalog,
		Tracer:     s.deps.Tracer,
		Events:     s.deps.Events,
		Runs:       s.deps.Runs,
	})

	s.mu.Lock()
	old := s.session
	s.session, s.catalog, s.loop = session, catalog, loop
	s.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			s.logger.Warn("failed to close previous session", "error", err)
		}
	}

	s.logger.Info("agent connected", "target", target, "capabilities", catalog.Len())
	return nil
}

// Connected reports whether a session is open.
func (s *AgentService) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loop != nil
}

// Catalog returns the merged capability catalog, nil before Connect.
func (s *AgentService) Catalog() *domain.CapabilityRegistry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalog
}

// Run executes a goal and returns the report text.
func (s *AgentService) Run(ctx context.Context, goal string, attachments []domain.Attachment) string {
	report, err := s.RunReport(ctx, RunRequest{Goal: goal, Attachments: attachments})
	if err != nil {
		return fmt.Sprintf("Run failed: %v", err)
	}
	return report.Text()
}

// Suggest queues operator guidance for the next run.
func (s *AgentService) Suggest(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, text)
}

// RunReport executes a goal and returns the structured report. Queued
// suggestions are handed to the run and cleared.
func (s *AgentService) RunReport(ctx context.Context, req RunRequest) (domain.RunReport, error) {
	s.mu.Lock()
	loop := s.loop
	if loop != nil {
		req.Suggestions = append(s.pending, req.Suggestions...)
		s.pending = nil
	}
	s.mu.Unlock()
	if loop == nil {
		return domain.RunReport{}, domain.ErrNotConnected
	}

	s.runMu.Lock()
	defer s.runMu.Unlock()
	return loop.Run(ctx, req), nil
}

// Close releases the session.
func (s *AgentService) Close() error {
	s.mu.Lock()
	session := s.session
	s.session, s.catalog, s.loop = nil, nil, nil
	s.mu.Unlock()

	if session == nil {
		return nil
	}
	return session.Close()
}
