package services

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/manthysbr/auleagent/internal/core/domain"
	"github.com/manthysbr/auleagent/internal/core/ports"
)

// Settler waits for the side effects of a remote call to land. Providers that
// acknowledge before they finish need either a probe or a fixed delay.
type Settler interface {
	Settle(ctx context.Context)
}

// NewSettler picks the settle policy from config. Polling needs a probe tool;
// without one it degrades to the delay.
func NewSettler(logger *slog.Logger, cfg domain.SettleConfig, session ports.CapabilitySession) Settler {
	if cfg.Mode == domain.SettleModePoll && cfg.ProbeTool != "" && session != nil {
		return &PollSettler{
			logger:   logger,
			session:  session,
			tool:     cfg.ProbeTool,
			args:     cfg.ProbeArgs,
			marker:   cfg.ReadyMarker,
			interval: cfg.Interval,
			timeout:  cfg.Timeout,
		}
	}
	return DelaySettler{Delay: cfg.Delay}
}

// DelaySettler sleeps for a fixed, named interval.
type DelaySettler struct {
	Delay time.Duration
}

func (s DelaySettler) Settle(ctx context.Context) {
	sleepCtx(ctx, s.Delay)
}

// PollSettler calls a readiness probe until its output contains the ready
// marker or the timeout elapses.
type PollSettler struct {
	logger   *slog.Logger
	session  ports.CapabilitySession
	tool     string
	args     map[string]interface{}
	marker   string
	interval time.Duration
	timeout  time.Duration
}

func (s *PollSettler) Settle(ctx context.Context) {
	interval := s.interval
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	timeout := s.timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		res, err := s.session.CallTool(pollCtx, s.tool, s.args)
		if err == nil && !res.IsError && (s.marker == "" || strings.Contains(res.Text, s.marker)) {
			return
		}
		select {
		case <-pollCtx.Done():
			s.logger.Warn("settle probe timed out", "probe", s.tool, "timeout", timeout)
			return
		case <-time.After(interval):
		}
	}
}

// sleepCtx sleeps for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
