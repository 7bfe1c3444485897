package internal

import "time"

// StepResult records one model call in a chain run. Steps are appended in
// order whether or not the call succeeded.
type StepResult struct {
	Step      int       `json:"step"`
	Model     string    `json:"model"`
	Output    string    `json:"output"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ScoredCandidate is a successful step output paired with its quality score.
type ScoredCandidate struct {
	Step    int    `json:"step"`
	Model   string `json:"model"`
	Output  string `json:"output"`
	Score   int    `json:"score"`
	Success bool   `json:"success"`
}

// Selection notes which candidate was carried forward after a scored step.
type Selection struct {
	Step          int    `json:"step"`
	CandidateStep int    `json:"candidate_step"`
	Model         string `json:"model"`
	Score         int    `json:"score"`
}

type RunResult struct {
	ID               string            `json:"id"`
	InitialTask      string            `json:"initial_task"`
	Mode             string            `json:"mode"`
	FinalOutput      string            `json:"final_output"`
	Steps            []StepResult      `json:"all_steps"`
	Candidates       []ScoredCandidate `json:"all_responses"`
	Selections       []Selection       `json:"best_selections"`
	TotalModels      int               `json:"total_models"`
	SuccessfulModels int               `json:"successful_models"`
	ScoringEnabled   bool              `json:"scoring_enabled"`
	StartedAt        time.Time         `json:"started_at"`
	CompletedAt      time.Time         `json:"completed_at"`
}

// SuccessRate returns the percentage of steps that succeeded.
func (r *RunResult) SuccessRate() float64 {
	if r.TotalModels == 0 {
		return 0
	}
	return float64(r.SuccessfulModels) / float64(r.TotalModels) * 100
}
