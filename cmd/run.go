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
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/valpere/devgenie/internal/pipeline"
	"github.com/valpere/devgenie/internal/report"
)

var (
	runTask      string
	runInput     string
	runMode      string
	runNoScore   bool
	runSave      string
	runShowSteps bool
	runNoHistory bool
	runVerbose   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a task through a model chain",
	Long: `Run a task through a model chain and print the final output.

The task comes from --task or from a file given with --input. Modes select the
chain; use "devgenie chains" to list them.

Examples:
  devgenie run --task "Write a Python LRU cache" --mode balanced
  devgenie run --input task.txt --save lru --show-steps`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if runTask != "" && runInput != "" {
			return fmt.Errorf("use either --task or --input, not both")
		}

		task := runTask
		if runInput != "" {
			data, err := os.ReadFile(runInput)
			if err != nil {
				return fmt.Errorf("failed to read input file: %w", err)
			}
			task = string(data)
		}
		if strings.TrimSpace(task) == "" {
			return fmt.Errorf("a task is required (--task or --input)")
		}

		if cfg.Google.APIKey == "" {
			return fmt.Errorf("no API key: pass --api-key or set GOOGLE_API_KEY")
		}

		db, err := openHistory(runNoHistory)
		if err != nil {
			return err
		}
		if db != nil {
			defer db.Close()
		}

		p, err := buildPipeline(db, "")
		if err != nil {
			return err
		}

		req := pipeline.Request{
			Task:    task,
			Mode:    runMode,
			APIKey:  cfg.Google.APIKey,
			Verbose: runVerbose,
		}
		if runNoScore {
			off := false
			req.Scoring = &off
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		chain := p.Resolve(runMode)
		fmt.Fprintf(os.Stderr, "Running %s chain (%d models)...\n", chain.Name, chain.Len())

		result, err := p.Run(ctx, req)
		if err != nil {
			return err
		}

		report.Display(os.Stdout, result, runShowSteps)

		if runSave != "" {
			dir := report.DirName(runSave)
			if err := report.Write(dir, result); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "\nResults saved to: %s/\n", dir)
		}
		if db != nil {
			fmt.Fprintf(os.Stderr, "Run recorded as %s\n", result.ID)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runTask, "task", "t", "", "Task description")
	runCmd.Flags().StringVarP(&runInput, "input", "i", "", "File containing the task description")
	runCmd.Flags().StringVarP(&runMode, "mode", "m", "", "Chain mode (default from config, then fast)")
	runCmd.Flags().String("api-key", "", "Google AI Studio API key (default GOOGLE_API_KEY)")
	runCmd.Flags().BoolVar(&runNoScore, "no-score", false, "Disable scoring and forward each output as is")
	runCmd.Flags().StringVar(&runSave, "save", "", "Save results to <name>_results/")
	runCmd.Flags().BoolVar(&runShowSteps, "show-steps", false, "Show every step in the report")
	runCmd.Flags().BoolVar(&runNoHistory, "no-history", false, "Do not record the run in the history database")
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Log step progress")

	bindFlag("google.api_key", runCmd.Flags().Lookup("api-key"))
}
