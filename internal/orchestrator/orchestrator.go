// Package orchestrator drives a task through a chain of models, one step at a
// time, carrying each output into the next prompt.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/valpere/devgenie/internal"
	"github.com/valpere/devgenie/internal/llm"
	"github.com/valpere/devgenie/internal/scorer"
)

// Grader scores a step output against the original task.
type Grader interface {
	Score(ctx context.Context, output, task, apiKey string) scorer.Evaluation
}

type OrchestratorConfig struct {
	// Scoring grades every successful step and carries the best candidate.
	Scoring bool
	// RubricHints appends the grading rubric to every step prompt.
	RubricHints bool
	// StepBonus adds the step index to each score, favouring later steps.
	StepBonus bool
	// Verbose logs step progress at info level instead of debug.
	Verbose bool
}

type Orchestrator struct {
	invoker llm.Invoker
	grader  Grader
	config  OrchestratorConfig
	logger  *slog.Logger
	now     func() time.Time
}

func New(invoker llm.Invoker, grader Grader, config OrchestratorConfig, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		invoker: invoker,
		grader:  grader,
		config:  config,
		logger:  logger,
		now:     time.Now,
	}
}

// Execute runs task through every model in order. Individual step failures
// never stop the run; an error is returned only for unusable input.
func (o *Orchestrator) Execute(ctx context.Context, task string, models []string, apiKey string) (*internal.RunResult, error) {
	if o.invoker == nil {
		return nil, errors.New("no model invoker configured")
	}
	if len(models) == 0 {
		return nil, errors.New("chain has no models")
	}

	scoring := o.config.Scoring && o.grader != nil
	total := len(models)

	result := &internal.RunResult{
		InitialTask:    task,
		Steps:          make([]internal.StepResult, 0, total),
		Candidates:     make([]internal.ScoredCandidate, 0),
		Selections:     make([]internal.Selection, 0),
		TotalModels:    total,
		ScoringEnabled: scoring,
		StartedAt:      o.now(),
	}

	o.log("chain started", "models", total, "scoring", scoring, "task", preview(task, 100))

	carried := task
	for i, model := range models {
		step := i + 1

		var prompt string
		if step == 1 {
			prompt = buildSeedPrompt(carried, total, o.config.RubricHints)
		} else {
			prev := result.Steps[len(result.Steps)-1].Model
			prompt = buildRefinePrompt(step, total, task, prev, carried, o.config.RubricHints)
		}

		o.log("processing step", "step", step, "of", total, "model", model)

		res := o.invoker.Generate(ctx, model, prompt, apiKey)

		if res.Success {
			carried = res.Output
			result.SuccessfulModels++
			o.log("step succeeded", "step", step, "model", model, "chars", len(res.Output), "preview", preview(res.Output, 200))

			if scoring {
				carried = o.scoreAndSelect(ctx, result, step, model, res.Output, task, apiKey)
			}
		} else {
			o.logger.Warn("step failed, keeping previous output", "step", step, "model", model, "error", res.Error)
		}

		result.Steps = append(result.Steps, internal.StepResult{
			Step:      step,
			Model:     model,
			Output:    res.Output,
			Success:   res.Success,
			Error:     res.Error,
			Timestamp: o.now(),
		})
	}

	result.FinalOutput = carried
	result.CompletedAt = o.now()

	o.log("chain completed", "successful", result.SuccessfulModels, "total", total, "final_chars", len(carried))

	return result, nil
}

// scoreAndSelect records the new candidate and returns the output that
// should be carried forward: the best candidate seen so far.
func (o *Orchestrator) scoreAndSelect(ctx context.Context, result *internal.RunResult, step int, model, output, task, apiKey string) string {
	ev := o.grader.Score(ctx, output, task, apiKey)
	if !ev.Success {
		o.logger.Warn("scoring failed, using neutral score", "step", step, "model", model, "score", ev.Score, "error", ev.Err)
	}

	score := ev.Score
	if o.config.StepBonus {
		score += step
	}

	result.Candidates = append(result.Candidates, internal.ScoredCandidate{
		Step:    step,
		Model:   model,
		Output:  output,
		Score:   score,
		Success: true,
	})

	best, _ := SelectBest(result.Candidates)
	result.Selections = append(result.Selections, internal.Selection{
		Step:          step,
		CandidateStep: best.Step,
		Model:         best.Model,
		Score:         best.Score,
	})

	o.log("best candidate", "step", step, "score", score, "best_step", best.Step, "best_model", best.Model, "best_score", best.Score)

	return best.Output
}

func (o *Orchestrator) log(msg string, args ...any) {
	if o.config.Verbose {
		o.logger.Info(msg, args...)
		return
	}
	o.logger.Debug(msg, args...)
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
