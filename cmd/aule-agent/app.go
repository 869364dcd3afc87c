package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/manthysbr/auleagent/internal/adapters/duckdb"
	"github.com/manthysbr/auleagent/internal/adapters/execlog"
	"github.com/manthysbr/auleagent/internal/adapters/mcp"
	"github.com/manthysbr/auleagent/internal/adapters/operator"
	"github.com/manthysbr/auleagent/internal/adapters/providers"
	appconfig "github.com/manthysbr/auleagent/internal/config"
	"github.com/manthysbr/auleagent/internal/core/domain"
	"github.com/manthysbr/auleagent/internal/core/ports"
	"github.com/manthysbr/auleagent/internal/core/services"
)

// app holds everything a shell needs. close releases storage and the session.
type app struct {
	logger   *slog.Logger
	cfg      *domain.AppConfig
	agent    *services.AgentService
	events   *services.EventBus
	tracer   *services.TraceCollector
	repo     *duckdb.Repository // nil when storage is disabled
	terminal *operator.Terminal
}

func newLogger(w io.Writer, json bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if verbose {
		opts.Level = slog.LevelDebug
	}
	if json {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// bootstrap loads config and wires adapters into an AgentService, then
// connects it to the capability server.
func bootstrap(ctx context.Context, logger *slog.Logger, terminal *operator.Terminal) (*app, error) {
	secret, err := appconfig.NewSecretKey()
	if err != nil {
		return nil, fmt.Errorf("failed to init secret key: %w", err)
	}
	cfg, err := appconfig.Load(configPath, secret)
	if err != nil {
		return nil, err
	}
	if target != "" {
		cfg.Session.Target = target
	}
	if strings.TrimSpace(cfg.Session.Target) == "" {
		return nil, errors.New("no capability server target: set session.target, AULE_TARGET or --target")
	}

	a := &app{
		logger:   logger,
		cfg:      cfg,
		events:   services.NewEventBus(logger),
		terminal: terminal,
	}

	var logs execlog.Tee
	if cfg.Storage.DBPath != "" {
		repo, err := duckdb.NewRepository(cfg.Storage.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to init repository: %w", err)
		}
		a.repo = repo
		logs = append(logs, repo)
	}
	if cfg.Storage.ExecutionLogPath != "" {
		csvLog, err := execlog.NewCSVLog(cfg.Storage.ExecutionLogPath)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to open execution log: %w", err)
		}
		logs = append(logs, csvLog)
	}

	var traceRepo services.TraceRepository
	var runRepo ports.RunRepository
	if a.repo != nil {
		traceRepo, runRepo = a.repo, a.repo
	}
	a.tracer = services.NewTraceCollector(logger, a.events, traceRepo)

	engine, err := providers.Build(ctx, cfg)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to build reasoning engine: %w", err)
	}

	var op ports.OperatorInput
	if terminal != nil {
		op = terminal
	}

	a.agent = services.NewAgentService(logger, *cfg, services.AgentDeps{
		Engine: engine,
		NewSession: func() ports.CapabilitySession {
			return mcp.NewSession(logger, cfg.Session.Env)
		},
		Operator: op,
		ExecLog:  logs,
		Runs:     runRepo,
		Tracer:   a.tracer,
		Events:   a.events,
	})

	logger.Info("connecting to capability server",
		"target", cfg.Session.Target,
		"provider", cfg.Provider.Mode,
		"api_key", appconfig.MaskSecret(cfg.Provider.APIKey),
	)
	if !a.agent.Connect(ctx, cfg.Session.Target) {
		a.close()
		return nil, fmt.Errorf("could not connect to %s", cfg.Session.Target)
	}
	return a, nil
}

func (a *app) close() {
	if a.agent != nil {
		if err := a.agent.Close(); err != nil {
			a.logger.Warn("failed to close session", "error", err)
		}
	}
	if a.repo != nil {
		if err := a.repo.Close(); err != nil {
			a.logger.Warn("failed to close repository", "error", err)
		}
	}
}
