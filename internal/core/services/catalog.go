package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/manthysbr/auleagent/internal/core/domain"
	"github.com/manthysbr/auleagent/internal/core/ports"
)

// BuildCatalog fetches the remote tool descriptions, strips non-portable
// schema metadata and merges them with the local capabilities. Local
// capabilities win on a name clash.
func BuildCatalog(ctx context.Context, logger *slog.Logger, session ports.CapabilitySession, locals []*domain.Capability) (*domain.CapabilityRegistry, error) {
	registry := domain.NewCapabilityRegistry()

	if session != nil {
		tools, err := session.ListTools(ctx)
		if err != nil {
			return nil, fmt.Errorf("list remote tools: %w", err)
		}
		for _, t := range tools {
			c := &domain.Capability{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  domain.CleanSchema(t.InputSchema),
				Origin:      domain.OriginRemote,
			}
			if err := registry.Register(c); err != nil {
				logger.Warn("skipping remote tool", "tool", t.Name, "error", err)
			}
		}
		logger.Info("remote capabilities loaded", "count", len(tools))
	}

	for _, c := range locals {
		if _, clash := registry.Get(c.Name); clash {
			logger.Warn("local capability shadows remote tool", "capability", c.Name)
		}
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("register local capability %s: %w", c.Name, err)
		}
	}

	return registry, nil
}
