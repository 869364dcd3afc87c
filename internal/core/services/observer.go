package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/manthysbr/auleagent/internal/core/domain"
	"github.com/manthysbr/auleagent/internal/core/ports"
)

// ObservationSource produces scene snapshots on demand. A snapshot is a
// render triggered through the remote session followed by one multi-modal
// analysis call over the retained renders.
//
// It never returns an error: every failure becomes a failed Observation so
// the loop can reflect and retry.
type ObservationSource struct {
	logger       *slog.Logger
	session      ports.CapabilitySession
	engine       domain.ReasoningEngine
	tracer       *TraceCollector
	cfg          domain.RenderConfig
	params       domain.GenerationParams
	historySize  int
	memoryWindow int

	artifacts     []domain.Artifact
	rendererReady bool
}

// NewObservationSource creates an observation source.
func NewObservationSource(logger *slog.Logger, session ports.CapabilitySession, engine domain.ReasoningEngine, tracer *TraceCollector, cfg domain.AgentConfig) *ObservationSource {
	return &ObservationSource{
		logger:       logger,
		session:      session,
		engine:       engine,
		tracer:       tracer,
		cfg:          cfg.Render,
		params:       cfg.Analysis,
		historySize:  max(cfg.ObservationHistory, 1),
		memoryWindow: cfg.ReflectionWindow,
	}
}

// Reset forgets the artifact window; called at the start of each run.
func (o *ObservationSource) Reset() {
	o.artifacts = nil
}

// Artifacts returns the retained renders, oldest first.
func (o *ObservationSource) Artifacts() []domain.Artifact {
	out := make([]domain.Artifact, len(o.artifacts))
	copy(out, o.artifacts)
	return out
}

// Observe renders the scene and describes it. mem may be nil.
func (o *ObservationSource) Observe(ctx context.Context, step int, goal string, mem *MemoryManager) (obs domain.Observation) {
	spanCtx, spanID := o.tracer.StartSpan(ctx, "observe.scene", domain.SpanKindObserve, map[string]string{
		"step": fmt.Sprintf("%d", step),
	})
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("observation panicked", "step", step, "panic", r)
			obs = domain.FailedObservation(step, fmt.Sprintf("internal error: %v", r))
		}
		status := domain.SpanStatusOK
		if obs.Failed {
			status = domain.SpanStatusError
		}
		o.tracer.EndSpan(spanID, status, obs.Text, "")
	}()

	if o.session == nil {
		return domain.FailedObservation(step, domain.ErrNotConnected.Error())
	}

	artifact, err := o.render(spanCtx, step)
	if err != nil {
		o.logger.Warn("render failed", "step", step, "error", err)
		return domain.FailedObservation(step, err.Error())
	}

	o.artifacts = append(o.artifacts, artifact)
	if len(o.artifacts) > o.historySize {
		o.artifacts = o.artifacts[len(o.artifacts)-o.historySize:]
	}

	images := make([]domain.Blob, 0, len(o.artifacts))
	for _, a := range o.artifacts {
		images = append(images, a.Blob)
	}

	text, err := o.analyze(spanCtx, step, goal, mem, images)
	if err != nil {
		o.logger.Warn("observation analysis failed", "step", step, "error", err)
		obs = domain.FailedObservation(step, fmt.Sprintf("render captured at %s but analysis failed: %v", artifact.Path, err))
		obs.Images = images
		return obs
	}

	return domain.Observation{
		Step:   step,
		Text:   text,
		Images: images,
		At:     time.Now(),
	}
}

// render bootstraps the renderer, toggles play mode around a fixed wait and
// picks up the newest artifact.
func (o *ObservationSource) render(ctx context.Context, step int) (domain.Artifact, error) {
	if err := o.ensureRenderer(ctx); err != nil {
		return domain.Artifact{}, err
	}

	toggle := map[string]interface{}{"menu_path": o.cfg.PlayMenuPath}
	if _, err := o.call(ctx, o.cfg.MenuTool, toggle); err != nil {
		return domain.Artifact{}, fmt.Errorf("enter play mode: %w", err)
	}

	sleepCtx(ctx, o.cfg.Wait)

	if _, err := o.call(ctx, o.cfg.MenuTool, toggle); err != nil {
		return domain.Artifact{}, fmt.Errorf("exit play mode: %w", err)
	}

	return o.newestArtifact(step)
}

// ensureRenderer locates the renderer object and creates it when missing.
func (o *ObservationSource) ensureRenderer(ctx context.Context) error {
	if o.rendererReady || o.cfg.ObjectTool == "" || o.cfg.RendererObject == "" {
		return nil
	}

	text, err := o.call(ctx, o.cfg.ObjectTool, map[string]interface{}{
		"action": "find",
		"name":   o.cfg.RendererObject,
	})
	if err == nil && !strings.Contains(strings.ToLower(text), "not found") {
		o.rendererReady = true
		return nil
	}

	o.logger.Info("renderer object missing, creating it", "object", o.cfg.RendererObject)
	if _, err := o.call(ctx, o.cfg.ObjectTool, map[string]interface{}{
		"action":   "create",
		"name":     o.cfg.RendererObject,
		"position": map[string]interface{}{"x": 0, "y": 0, "z": 0},
	}); err != nil {
		return fmt.Errorf("create renderer object: %w", err)
	}
	if o.cfg.RendererComponent != "" {
		if _, err := o.call(ctx, o.cfg.ObjectTool, map[string]interface{}{
			"action":        "add_component",
			"objectName":    o.cfg.RendererObject,
			"componentType": o.cfg.RendererComponent,
		}); err != nil {
			return fmt.Errorf("add renderer component: %w", err)
		}
	}
	o.rendererReady = true
	return nil
}

func (o *ObservationSource) call(ctx context.Context, tool string, args map[string]interface{}) (string, error) {
	if tool == "" {
		return "", fmt.Errorf("no tool configured")
	}
	res, err := o.session.CallTool(ctx, tool, args)
	if err != nil {
		return "", err
	}
	if res.IsError {
		return res.Text, fmt.Errorf("%s: %s", tool, res.Text)
	}
	return res.Text, nil
}

// newestArtifact reads the most recently modified file matching the pattern.
func (o *ObservationSource) newestArtifact(step int) (domain.Artifact, error) {
	dir := o.cfg.OutputDir
	info, err := os.Stat(dir)
	if err != nil {
		return domain.Artifact{}, fmt.Errorf("render output directory %q: %w", dir, err)
	}
	if !info.IsDir() {
		return domain.Artifact{}, fmt.Errorf("render output %q is not a directory", dir)
	}

	pattern := o.cfg.Pattern
	if pattern == "" {
		pattern = "*.png"
	}
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return domain.Artifact{}, fmt.Errorf("glob renders: %w", err)
	}

	var newest string
	var newestMod time.Time
	for _, m := range matches {
		fi, err := os.Stat(m)
		if err != nil || fi.IsDir() {
			continue
		}
		if newest == "" || fi.ModTime().After(newestMod) {
			newest, newestMod = m, fi.ModTime()
		}
	}
	if newest == "" {
		return domain.Artifact{}, fmt.Errorf("%w in %s", domain.ErrNoArtifact, dir)
	}

	data, err := os.ReadFile(newest)
	if err != nil {
		return domain.Artifact{}, fmt.Errorf("read render %s: %w", newest, err)
	}

	mime := o.cfg.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	return domain.Artifact{
		Step:       step,
		Path:       newest,
		Blob:       domain.Blob{Data: data, MIMEType: mime},
		CapturedAt: newestMod,
	}, nil
}

func (o *ObservationSource) analyze(ctx context.Context, step int, goal string, mem *MemoryManager, images []domain.Blob) (string, error) {
	if o.engine == nil {
		return "", fmt.Errorf("no reasoning engine configured")
	}

	var recent []domain.MemoryEntry
	if mem != nil {
		recent = mem.RecentEntries(o.memoryWindow)
	}

	prompt := fmt.Sprintf(`You are looking at %d render(s) of a 3D scene, oldest first; the last image is the current state (step %d).

Goal: %s

Recent actions:
%s

Describe:
1. What is visible in the current scene (objects, positions, colors).
2. What changed compared with the previous render, if there is one.
3. How the changes relate to the recent actions.
4. What still remains to be done to reach the goal.`, len(images), step, goal, domain.RenderEntries(recent))

	spanCtx, spanID := o.tracer.StartSpan(ctx, "llm.observe", domain.SpanKindLLM, nil)
	o.tracer.SetSpanInput(spanID, prompt)

	resp, err := o.engine.Generate(spanCtx, domain.GenerationRequest{
		Prompt: prompt,
		Images: images,
		Params: o.params,
	})
	if err != nil {
		o.tracer.EndSpan(spanID, domain.SpanStatusError, "", err.Error())
		return "", err
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		o.tracer.EndSpan(spanID, domain.SpanStatusError, "", "empty analysis")
		return "", fmt.Errorf("empty analysis")
	}
	o.tracer.EndSpan(spanID, domain.SpanStatusOK, text, "")
	return text, nil
}
