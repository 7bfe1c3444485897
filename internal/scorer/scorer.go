// Package scorer asks a model to grade a chain output against the original
// task and turns its free-form reply into a number.
package scorer

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/valpere/devgenie/internal/llm"
)

const (
	// DefaultModel is the low-cost model used for grading.
	DefaultModel = "gemini-2.5-flash"

	// NeutralScore is used whenever no usable score can be obtained.
	NeutralScore = 50

	MinScore = 1
	MaxScore = 100
)

// ParseMethod records which rung of the parsing ladder produced a score.
type ParseMethod string

const (
	MethodDigits   ParseMethod = "digits"
	MethodLastNum  ParseMethod = "last_number"
	MethodFallback ParseMethod = "fallback"
)

// Evaluation is the outcome of one grading call. When Success is false the
// Score is NeutralScore and Err explains why.
type Evaluation struct {
	Score   int
	Success bool
	Raw     string
	Method  ParseMethod
	Err     error
}

// Scorer grades outputs with a fixed model.
type Scorer struct {
	invoker llm.Invoker
	model   string
}

func New(invoker llm.Invoker, model string) *Scorer {
	if model == "" {
		model = DefaultModel
	}
	return &Scorer{
		invoker: invoker,
		model:   model,
	}
}

func (s *Scorer) Model() string {
	return s.model
}

// Score grades output against task. It never panics: model failures and
// internal faults both yield NeutralScore with Success false.
func (s *Scorer) Score(ctx context.Context, output, task, apiKey string) (ev Evaluation) {
	defer func() {
		if r := recover(); r != nil {
			ev = neutral(fmt.Errorf("scoring panicked: %v", r))
		}
	}()

	if s.invoker == nil {
		return neutral(errors.New("scorer has no model invoker"))
	}

	res := s.invoker.Generate(ctx, s.model, buildScorePrompt(output, task), apiKey)
	if !res.Success {
		return neutral(fmt.Errorf("evaluation failed: %s", res.Error))
	}

	raw := strings.TrimSpace(res.Output)
	score, method := ParseScore(raw)

	return Evaluation{
		Score:   score,
		Success: true,
		Raw:     raw,
		Method:  method,
	}
}

func neutral(err error) Evaluation {
	return Evaluation{
		Score:   NeutralScore,
		Success: false,
		Method:  MethodFallback,
		Err:     err,
	}
}

var numberRe = regexp.MustCompile(`\d+`)

// ParseScore extracts a 1-100 score from model text. A reply that is only
// digits is used as is; otherwise the last number anywhere in the text wins,
// reasoning blocks included; with no number at all the neutral score is
// returned. The result is clamped.
func ParseScore(text string) (int, ParseMethod) {
	text = strings.TrimSpace(text)

	if isDigits(text) {
		if n, err := strconv.Atoi(text); err == nil {
			return clamp(n), MethodDigits
		}
		// overflowing digit strings are far above the ceiling
		return MaxScore, MethodDigits
	}

	numbers := numberRe.FindAllString(text, -1)
	if len(numbers) == 0 {
		return NeutralScore, MethodFallback
	}

	last := numbers[len(numbers)-1]
	n, err := strconv.Atoi(last)
	if err != nil {
		return MaxScore, MethodLastNum
	}
	return clamp(n), MethodLastNum
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func clamp(n int) int {
	if n < MinScore {
		return MinScore
	}
	if n > MaxScore {
		return MaxScore
	}
	return n
}

func buildScorePrompt(response, task string) string {
	return fmt.Sprintf(`
You are an AI response evaluator. Score this response on a scale of 1-100 based on:
1. Task completion (30 points): How well does it address the original task?
2. Code quality (25 points): Is the code clean, efficient, and well-structured?
3. Documentation (20 points): Is it well-documented and explained?
4. Error handling (15 points): Does it handle edge cases and errors?
5. Completeness (10 points): Is the solution complete and usable?

CRITICAL: You MUST respond with ONLY a single number between 1-100. No explanations, no text, just the number.

Example:
85

Original Task: %s

Response to Evaluate:
%s

Your score (number only):`, task, response)
}
