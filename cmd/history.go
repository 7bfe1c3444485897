/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/valpere/devgenie/internal/report"
	"github.com/valpere/devgenie/internal/store"
)

var (
	historyLimit int
	historyTask  string
	historySteps bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect recorded chain runs",
	Long:  `List, show, and delete runs recorded in the SQLite history database.`,
}

func openHistoryDB() (*store.Store, error) {
	return openStore(cfg.Store.Path)
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openHistoryDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx := context.Background()
		var runs []store.RunSummary
		if historyTask != "" {
			runs, err = db.ListRunsForTask(ctx, historyTask)
		} else {
			runs, err = db.ListRuns(ctx, historyLimit)
		}
		if err != nil {
			return fmt.Errorf("failed to list runs: %w", err)
		}

		if len(runs) == 0 {
			fmt.Println("No recorded runs.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tMODE\tMODELS\tOK\tSCORED\tCOMPLETED\tTASK")
		for _, r := range runs {
			snippet := strings.Join(strings.Fields(r.Task), " ")
			if len([]rune(snippet)) > 40 {
				snippet = string([]rune(snippet)[:37]) + "..."
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%v\t%s\t%s\n",
				r.ID, r.Mode, r.TotalModels, r.SuccessfulModels,
				r.ScoringEnabled, r.CompletedAt.Format("2006-01-02 15:04"), snippet)
		}
		return w.Flush()
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a recorded run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openHistoryDB()
		if err != nil {
			return err
		}
		defer db.Close()

		run, err := db.GetRun(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("failed to load run: %w", err)
		}
		report.Display(os.Stdout, run, historySteps)
		return nil
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a recorded run by ID",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openHistoryDB()
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.DeleteRun(context.Background(), args[0]); err != nil {
			return fmt.Errorf("failed to delete run: %w", err)
		}
		fmt.Printf("Deleted run: %s\n", args[0])
		return nil
	},
}

var historyStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show history statistics and per-model success",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openHistoryDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx := context.Background()
		stats, err := db.Stats(ctx)
		if err != nil {
			return fmt.Errorf("failed to get stats: %w", err)
		}

		fmt.Printf("Total runs:        %d\n", stats.TotalRuns)
		fmt.Printf("Total steps:       %d\n", stats.TotalSteps)
		fmt.Printf("Successful steps:  %d\n", stats.SuccessfulSteps)
		fmt.Printf("Step success rate: %.1f%%\n", stats.SuccessRate())
		fmt.Printf("Scored candidates: %d\n", stats.ScoredCandidates)

		models, err := db.ModelStats(ctx)
		if err != nil {
			return fmt.Errorf("failed to get model stats: %w", err)
		}
		if len(models) == 0 {
			return nil
		}

		fmt.Println()
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "MODEL\tCALLS\tOK\tAVG SCORE")
		for _, m := range models {
			fmt.Fprintf(w, "%s\t%d\t%d\t%.1f\n", m.Model, m.Calls, m.Successes, m.AvgScore)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyListCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum runs to list (0 = all)")
	historyListCmd.Flags().StringVar(&historyTask, "task", "", "Only runs for this exact task text")
	historyShowCmd.Flags().BoolVar(&historySteps, "steps", false, "Show every step")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyDeleteCmd)
	historyCmd.AddCommand(historyStatsCmd)
}
