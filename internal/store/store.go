package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
	_ "modernc.org/sqlite"

	"github.com/valpere/devgenie/internal"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		task TEXT NOT NULL,
		task_key TEXT NOT NULL,
		mode TEXT NOT NULL,
		final_output TEXT NOT NULL,
		total_models INTEGER NOT NULL,
		successful_models INTEGER NOT NULL,
		scoring_enabled BOOLEAN DEFAULT FALSE,
		started_at TIMESTAMP,
		completed_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS run_steps (
		run_id TEXT NOT NULL,
		step INTEGER NOT NULL,
		model TEXT NOT NULL,
		output TEXT NOT NULL,
		success BOOLEAN NOT NULL,
		error TEXT,
		created_at TIMESTAMP,
		PRIMARY KEY (run_id, step),
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);

	-- run_candidates stores the scored outputs in the order they were appended
	CREATE TABLE IF NOT EXISTS run_candidates (
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		step INTEGER NOT NULL,
		model TEXT NOT NULL,
		output TEXT NOT NULL,
		score INTEGER NOT NULL,
		PRIMARY KEY (run_id, seq),
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);

	-- run_selections tracks which candidate was carried after each scored step
	CREATE TABLE IF NOT EXISTS run_selections (
		run_id TEXT NOT NULL,
		step INTEGER NOT NULL,
		candidate_step INTEGER NOT NULL,
		model TEXT NOT NULL,
		score INTEGER NOT NULL,
		PRIMARY KEY (run_id, step),
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);

	CREATE INDEX IF NOT EXISTS idx_runs_task ON runs(task_key);
	CREATE INDEX IF NOT EXISTS idx_runs_completed ON runs(completed_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveRun persists a run with its steps, candidates and selections.
// Times are stored in UTC so that text ordering in SQLite matches time order.
func (s *Store) SaveRun(ctx context.Context, r *internal.RunResult) error {
	if r.ID == "" {
		return fmt.Errorf("run has no ID")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, task, task_key, mode, final_output, total_models, successful_models, scoring_enabled, started_at, completed_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.InitialTask, normalizeText(r.InitialTask), r.Mode, r.FinalOutput, r.TotalModels, r.SuccessfulModels, r.ScoringEnabled, r.StartedAt.UTC(), r.CompletedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	for _, st := range r.Steps {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO run_steps (run_id, step, model, output, success, error, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.ID, st.Step, st.Model, st.Output, st.Success, st.Error, st.Timestamp.UTC())
		if err != nil {
			return fmt.Errorf("failed to save step %d: %w", st.Step, err)
		}
	}

	for i, c := range r.Candidates {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO run_candidates (run_id, seq, step, model, output, score) VALUES (?, ?, ?, ?, ?, ?)`,
			r.ID, i, c.Step, c.Model, c.Output, c.Score)
		if err != nil {
			return fmt.Errorf("failed to save candidate for step %d: %w", c.Step, err)
		}
	}

	for _, sel := range r.Selections {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO run_selections (run_id, step, candidate_step, model, score) VALUES (?, ?, ?, ?, ?)`,
			r.ID, sel.Step, sel.CandidateStep, sel.Model, sel.Score)
		if err != nil {
			return fmt.Errorf("failed to save selection for step %d: %w", sel.Step, err)
		}
	}

	return tx.Commit()
}

// GetRun loads a full run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (*internal.RunResult, error) {
	r := &internal.RunResult{ID: id}
	var startedAt, completedAt sql.NullTime

	err := s.db.QueryRowContext(ctx,
		`SELECT task, mode, final_output, total_models, successful_models, scoring_enabled, started_at, completed_at FROM runs WHERE id = ?`,
		id).Scan(&r.InitialTask, &r.Mode, &r.FinalOutput, &r.TotalModels, &r.SuccessfulModels, &r.ScoringEnabled, &startedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	r.StartedAt = startedAt.Time
	r.CompletedAt = completedAt.Time

	if r.Steps, err = s.loadSteps(ctx, id); err != nil {
		return nil, err
	}
	if r.Candidates, err = s.loadCandidates(ctx, id); err != nil {
		return nil, err
	}
	if r.Selections, err = s.loadSelections(ctx, id); err != nil {
		return nil, err
	}

	return r, nil
}

func (s *Store) loadSteps(ctx context.Context, id string) ([]internal.StepResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT step, model, output, success, COALESCE(error, ''), created_at FROM run_steps WHERE run_id = ? ORDER BY step`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	steps := make([]internal.StepResult, 0)
	for rows.Next() {
		var st internal.StepResult
		var ts sql.NullTime
		if err := rows.Scan(&st.Step, &st.Model, &st.Output, &st.Success, &st.Error, &ts); err != nil {
			return nil, err
		}
		st.Timestamp = ts.Time
		steps = append(steps, st)
	}
	return steps, rows.Err()
}

func (s *Store) loadCandidates(ctx context.Context, id string) ([]internal.ScoredCandidate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT step, model, output, score FROM run_candidates WHERE run_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	candidates := make([]internal.ScoredCandidate, 0)
	for rows.Next() {
		c := internal.ScoredCandidate{Success: true}
		if err := rows.Scan(&c.Step, &c.Model, &c.Output, &c.Score); err != nil {
			return nil, err
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

func (s *Store) loadSelections(ctx context.Context, id string) ([]internal.Selection, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT step, candidate_step, model, score FROM run_selections WHERE run_id = ? ORDER BY step`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	selections := make([]internal.Selection, 0)
	for rows.Next() {
		var sel internal.Selection
		if err := rows.Scan(&sel.Step, &sel.CandidateStep, &sel.Model, &sel.Score); err != nil {
			return nil, err
		}
		selections = append(selections, sel)
	}
	return selections, rows.Err()
}

// RunSummary is a row from the runs table without the step history.
type RunSummary struct {
	ID               string
	Task             string
	Mode             string
	TotalModels      int
	SuccessfulModels int
	ScoringEnabled   bool
	CompletedAt      time.Time
}

// ListRuns returns the most recently completed runs first. A limit <= 0
// returns every run.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	query := `SELECT id, task, mode, total_models, successful_models, scoring_enabled, completed_at FROM runs ORDER BY completed_at DESC`
	var args []interface{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.querySummaries(ctx, query, args...)
}

// ListRunsForTask returns runs whose normalised task text matches task.
func (s *Store) ListRunsForTask(ctx context.Context, task string) ([]RunSummary, error) {
	return s.querySummaries(ctx,
		`SELECT id, task, mode, total_models, successful_models, scoring_enabled, completed_at FROM runs WHERE task_key = ? ORDER BY completed_at DESC`,
		normalizeText(task))
}

func (s *Store) querySummaries(ctx context.Context, query string, args ...interface{}) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []RunSummary
	for rows.Next() {
		var e RunSummary
		var completedAt sql.NullTime
		if err := rows.Scan(&e.ID, &e.Task, &e.Mode, &e.TotalModels, &e.SuccessfulModels, &e.ScoringEnabled, &completedAt); err != nil {
			return nil, err
		}
		e.CompletedAt = completedAt.Time
		results = append(results, e)
	}

	return results, rows.Err()
}

// DeleteRun permanently removes a run and its history.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"run_selections", "run_candidates", "run_steps"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE run_id = ?`, id); err != nil {
			return err
		}
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run not found: %s", id)
	}

	return tx.Commit()
}

// Stats summarises stored runs.
type Stats struct {
	TotalRuns        int
	TotalSteps       int
	SuccessfulSteps  int
	ScoredCandidates int
}

// SuccessRate returns the share of successful steps as a percentage.
func (st *Stats) SuccessRate() float64 {
	if st.TotalSteps == 0 {
		return 0
	}
	return float64(st.SuccessfulSteps) / float64(st.TotalSteps) * 100
}

func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM runs),
			(SELECT COUNT(*) FROM run_steps),
			(SELECT COALESCE(SUM(CASE WHEN success THEN 1 ELSE 0 END), 0) FROM run_steps),
			(SELECT COUNT(*) FROM run_candidates)`).Scan(
		&stats.TotalRuns,
		&stats.TotalSteps,
		&stats.SuccessfulSteps,
		&stats.ScoredCandidates,
	)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// ModelStat aggregates step outcomes per model across all runs.
type ModelStat struct {
	Model     string
	Calls     int
	Successes int
	AvgScore  float64
}

// ModelStats returns per-model call counts and mean candidate score.
func (s *Store) ModelStats(ctx context.Context) ([]ModelStat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			st.model,
			COUNT(*),
			COALESCE(SUM(CASE WHEN st.success THEN 1 ELSE 0 END), 0),
			COALESCE((SELECT AVG(c.score) FROM run_candidates c WHERE c.model = st.model), 0)
		FROM run_steps st
		GROUP BY st.model
		ORDER BY COUNT(*) DESC, st.model`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ModelStat
	for rows.Next() {
		var m ModelStat
		if err := rows.Scan(&m.Model, &m.Calls, &m.Successes, &m.AvgScore); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}

// normalizeText trims whitespace and applies Unicode NFC normalization
// for consistent task lookups.
func normalizeText(text string) string {
	return norm.NFC.String(strings.TrimSpace(text))
}
