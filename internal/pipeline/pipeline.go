// Package pipeline composes one chain run per request: it resolves the mode,
// drives the orchestrator and records the outcome.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/valpere/devgenie/internal"
	"github.com/valpere/devgenie/internal/chains"
	"github.com/valpere/devgenie/internal/llm"
	"github.com/valpere/devgenie/internal/orchestrator"
	"github.com/valpere/devgenie/internal/report"
)

var (
	ErrEmptyTask     = errors.New("task must not be empty")
	ErrMissingAPIKey = errors.New("no API key provided")
)

// RunSaver persists finished runs.
type RunSaver interface {
	SaveRun(ctx context.Context, r *internal.RunResult) error
}

type Options struct {
	Scoring     bool
	RubricHints bool
	StepBonus   bool
	// DefaultMode is used when a request names no mode.
	DefaultMode string
	// DumpDir, when set, receives a report directory per run.
	DumpDir string
}

type Request struct {
	Task    string
	Mode    string
	APIKey  string
	Verbose bool
	// Scoring overrides Options.Scoring when non-nil.
	Scoring *bool
}

type Pipeline struct {
	registry *chains.Registry
	invoker  llm.Invoker
	grader   orchestrator.Grader
	saver    RunSaver
	opts     Options
	logger   *slog.Logger
	newID    func() string
}

// New builds a pipeline. grader and saver may be nil.
func New(registry *chains.Registry, invoker llm.Invoker, grader orchestrator.Grader, saver RunSaver, opts Options, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		registry: registry,
		invoker:  invoker,
		grader:   grader,
		saver:    saver,
		opts:     opts,
		logger:   logger,
		newID:    func() string { return uuid.New().String() },
	}
}

func (p *Pipeline) Registry() *chains.Registry {
	return p.registry
}

// Resolve returns the chain a mode selects, applying the configured default
// for blank modes and the registry default for unknown ones.
func (p *Pipeline) Resolve(mode string) chains.Chain {
	if strings.TrimSpace(mode) == "" {
		mode = p.opts.DefaultMode
	}
	c, ok := p.registry.Lookup(mode)
	if !ok && strings.TrimSpace(mode) != "" {
		p.logger.Warn("unknown mode, using default", "mode", mode, "default", c.Name)
	}
	return c
}

// Run executes one chain. Step failures are part of the result; an error
// means the run could not be carried out at all.
func (p *Pipeline) Run(ctx context.Context, req Request) (result *internal.RunResult, err error) {
	if strings.TrimSpace(req.Task) == "" {
		return nil, ErrEmptyTask
	}
	if req.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if p.registry == nil {
		return nil, errors.New("no chain registry configured")
	}

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("run panicked", "panic", r)
			result = nil
			err = fmt.Errorf("run aborted: %v", r)
		}
	}()

	chain := p.Resolve(req.Mode)

	scoring := p.opts.Scoring
	if req.Scoring != nil {
		scoring = *req.Scoring
	}

	orch := orchestrator.New(p.invoker, p.grader, orchestrator.OrchestratorConfig{
		Scoring:     scoring,
		RubricHints: p.opts.RubricHints,
		StepBonus:   p.opts.StepBonus,
		Verbose:     req.Verbose,
	}, p.logger.With("mode", chain.Name))

	result, err = orch.Execute(ctx, req.Task, chain.Models, req.APIKey)
	if err != nil {
		return nil, fmt.Errorf("chain %s: %w", chain.Name, err)
	}
	result.ID = p.newID()
	result.Mode = chain.Name

	p.logger.Info("run finished",
		"run_id", result.ID,
		"mode", result.Mode,
		"successful", result.SuccessfulModels,
		"total", result.TotalModels,
		"duration", result.CompletedAt.Sub(result.StartedAt))

	p.record(ctx, result)
	return result, nil
}

// record persists and dumps a finished run. Failures here never fail the run.
func (p *Pipeline) record(ctx context.Context, result *internal.RunResult) {
	if p.saver != nil {
		if err := p.saver.SaveRun(context.WithoutCancel(ctx), result); err != nil {
			p.logger.Warn("failed to save run", "run_id", result.ID, "error", err)
		}
	}
	if p.opts.DumpDir != "" {
		dir := filepath.Join(p.opts.DumpDir, result.ID)
		if err := report.Write(dir, result); err != nil {
			p.logger.Warn("failed to dump run", "run_id", result.ID, "dir", dir, "error", err)
		}
	}
}
