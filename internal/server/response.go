package server

import (
	"time"

	"github.com/valpere/devgenie/internal"
	"github.com/valpere/devgenie/internal/chains"
	"github.com/valpere/devgenie/internal/orchestrator"
	"github.com/valpere/devgenie/internal/postprocess"
)

type stepMessage struct {
	Step      int       `json:"step"`
	Model     string    `json:"model"`
	Output    string    `json:"output"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type candidateSummary struct {
	Step  int    `json:"step"`
	Model string `json:"model"`
	Score int    `json:"score"`
}

type performanceMetrics struct {
	SuccessRate    float64 `json:"success_rate"`
	DurationMillis int64   `json:"duration_ms"`
	ScoringEnabled bool    `json:"scoring_enabled"`
	BestScore      int     `json:"best_score,omitempty"`
	BestStep       int     `json:"best_step,omitempty"`
}

// runResponse keeps the field names the web front end reads. Fields the
// chain does not produce stay empty.
type runResponse struct {
	RunID              string             `json:"run_id"`
	Mode               string             `json:"mode"`
	Requirements       string             `json:"requirements"`
	SelectedDesign     string             `json:"selected_design"`
	FinalCode          string             `json:"final_code"`
	Documentation      string             `json:"documentation"`
	SecurityAudit      string             `json:"security_audit"`
	PerformanceMetrics performanceMetrics `json:"performance_metrics"`
	ComplexityScore    float64            `json:"complexity_score"`
	TotalModelsUsed    int                `json:"total_models_used"`
	SuccessfulModels   int                `json:"successful_models"`
	Messages           []stepMessage      `json:"messages"`
	Candidates         []candidateSummary `json:"candidates"`
	WorkflowStarted    *time.Time         `json:"workflow_started"`
	WorkflowCompleted  *time.Time         `json:"workflow_completed"`
}

func newRunResponse(r *internal.RunResult, finalLimit, stepLimit int) runResponse {
	resp := runResponse{
		RunID:            r.ID,
		Mode:             r.Mode,
		FinalCode:        postprocess.Truncate(r.FinalOutput, finalLimit),
		TotalModelsUsed:  r.TotalModels,
		SuccessfulModels: r.SuccessfulModels,
		Messages:         make([]stepMessage, 0, len(r.Steps)),
		Candidates:       make([]candidateSummary, 0, len(r.Candidates)),
		PerformanceMetrics: performanceMetrics{
			SuccessRate:    r.SuccessRate(),
			ScoringEnabled: r.ScoringEnabled,
		},
	}

	for _, s := range r.Steps {
		resp.Messages = append(resp.Messages, stepMessage{
			Step:      s.Step,
			Model:     s.Model,
			Output:    postprocess.Truncate(s.Output, stepLimit),
			Success:   s.Success,
			Error:     s.Error,
			Timestamp: s.Timestamp,
		})
	}
	for _, c := range r.Candidates {
		resp.Candidates = append(resp.Candidates, candidateSummary{Step: c.Step, Model: c.Model, Score: c.Score})
	}
	if best, ok := orchestrator.SelectBest(r.Candidates); ok {
		resp.PerformanceMetrics.BestScore = best.Score
		resp.PerformanceMetrics.BestStep = best.Step
	}

	if !r.StartedAt.IsZero() {
		started := r.StartedAt
		resp.WorkflowStarted = &started
	}
	if !r.CompletedAt.IsZero() {
		completed := r.CompletedAt
		resp.WorkflowCompleted = &completed
	}
	if resp.WorkflowStarted != nil && resp.WorkflowCompleted != nil {
		resp.PerformanceMetrics.DurationMillis = r.CompletedAt.Sub(r.StartedAt).Milliseconds()
	}
	return resp
}

type chainInfo struct {
	Name        string   `json:"name"`
	Aliases     []string `json:"aliases,omitempty"`
	Description string   `json:"description,omitempty"`
	Length      int      `json:"length"`
	Models      []string `json:"models"`
}

type chainsResponse struct {
	Default string      `json:"default"`
	Chains  []chainInfo `json:"chains"`
}

func newChainsResponse(reg *chains.Registry) chainsResponse {
	all := reg.All()
	resp := chainsResponse{Default: reg.DefaultMode(), Chains: make([]chainInfo, 0, len(all))}
	for _, c := range all {
		resp.Chains = append(resp.Chains, chainInfo{
			Name:        c.Name,
			Aliases:     c.Aliases,
			Description: c.Description,
			Length:      c.Len(),
			Models:      c.Models,
		})
	}
	return resp
}
