// Package report writes finished runs to disk and renders them for terminals.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/valpere/devgenie/internal"
)

const (
	FinalOutputFile = "final_output.txt"
	StepsFile       = "all_steps.json"
	SummaryFile     = "summary.txt"

	stepPreviewLen = 300
)

// DirName is the dump directory used for a save name.
func DirName(name string) string {
	return name + "_results"
}

// Write dumps result into dir, creating it when needed.
func Write(dir string, result *internal.RunResult) error {
	if result == nil {
		return fmt.Errorf("no result to write")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, FinalOutputFile), []byte(result.FinalOutput), 0644); err != nil {
		return fmt.Errorf("failed to write final output: %w", err)
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode steps: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, StepsFile), data, 0644); err != nil {
		return fmt.Errorf("failed to write steps: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, SummaryFile), []byte(summary(result)), 0644); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return nil
}

func summary(result *internal.RunResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Initial Task: %s\n\n", result.InitialTask)
	fmt.Fprintf(&b, "Mode: %s\n", result.Mode)
	fmt.Fprintf(&b, "Total Models: %d\n", result.TotalModels)
	fmt.Fprintf(&b, "Successful: %d\n", result.SuccessfulModels)
	fmt.Fprintf(&b, "Completed: %s\n\n", result.CompletedAt.Format(time.RFC3339))
	b.WriteString(rule(80))
	b.WriteString("FINAL OUTPUT:\n")
	b.WriteString(rule(80))
	b.WriteString(result.FinalOutput)
	return b.String()
}

type styles struct {
	title  lipgloss.Style
	ok     lipgloss.Style
	failed lipgloss.Style
}

// newStyles picks colours for w; writers that are not terminals get plain text.
func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		title:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		ok:     r.NewStyle().Foreground(lipgloss.Color("10")),
		failed: r.NewStyle().Foreground(lipgloss.Color("9")),
	}
}

// Display prints a human-readable report. With showSteps every step is
// listed with an output preview or its error.
func Display(w io.Writer, result *internal.RunResult, showSteps bool) {
	st := newStyles(w)

	section(w, st, "INITIAL TASK")
	fmt.Fprintln(w, result.InitialTask)

	if showSteps {
		section(w, st, "ALL PROCESSING STEPS")
		for _, s := range result.Steps {
			fmt.Fprintf(w, "\n%s\n", strings.Repeat("-", 100))
			fmt.Fprintf(w, "Step %d: %s\n", s.Step, s.Model)
			if s.Success {
				fmt.Fprintf(w, "Status: %s\n", st.ok.Render("success"))
				fmt.Fprintf(w, "Output preview:\n%s\n", previewText(s.Output, stepPreviewLen))
			} else {
				fmt.Fprintf(w, "Status: %s\n", st.failed.Render("failed"))
				fmt.Fprintf(w, "Error: %s\n", s.Error)
			}
		}

		if len(result.Selections) > 0 {
			section(w, st, "BEST CANDIDATE PER STEP")
			for _, sel := range result.Selections {
				fmt.Fprintf(w, "Step %d: step %d (%s) score %d\n", sel.Step, sel.CandidateStep, sel.Model, sel.Score)
			}
		}
	}

	section(w, st, "FINAL OUTPUT (after all models)")
	fmt.Fprintln(w, result.FinalOutput)

	section(w, st, "STATISTICS")
	fmt.Fprintf(w, "Mode: %s\n", result.Mode)
	fmt.Fprintf(w, "Total models in chain: %d\n", result.TotalModels)
	fmt.Fprintf(w, "Successful calls: %d\n", result.SuccessfulModels)
	fmt.Fprintf(w, "Success rate: %.1f%%\n", result.SuccessRate())
	if !result.CompletedAt.IsZero() && !result.StartedAt.IsZero() {
		fmt.Fprintf(w, "Duration: %s\n", result.CompletedAt.Sub(result.StartedAt).Round(time.Millisecond))
	}
}

func section(w io.Writer, st styles, title string) {
	fmt.Fprint(w, "\n"+rule(100))
	fmt.Fprintln(w, st.title.Render(title))
	fmt.Fprint(w, rule(100))
}

func rule(n int) string {
	return strings.Repeat("=", n) + "\n"
}

func previewText(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
