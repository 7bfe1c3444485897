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
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/valpere/devgenie/internal/config"
	"github.com/valpere/devgenie/internal/logging"
)

var version = "0.1.0"

var (
	cfgFile string
	v       = viper.New()
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "devgenie",
	Short: "Sequential Gemini model chain for code generation",
	Long: `Runs a coding task through a chain of Gemini and Gemma models. Each model
refines the previous output; an auxiliary model can score every step so the
best answer so far is carried forward.

Use "devgenie serve" to start the HTTP API and "devgenie run" for a single run.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(v, cfgFile)
		if err != nil {
			return err
		}
		if err := logging.Setup(os.Stderr, loaded.Log.Level, loaded.Log.Format); err != nil {
			return fmt.Errorf("failed to configure logging: %w", err)
		}
		cfg = loaded
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default ./devgenie.yaml)")
	rootCmd.PersistentFlags().String("db", "./data/devgenie.db", "Database path for run history")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format: text or json")

	bindFlag("store.path", rootCmd.PersistentFlags().Lookup("db"))
	bindFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	bindFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}
