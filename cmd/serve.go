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
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/valpere/devgenie/internal/server"
)

var serveNoHistory bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the HTTP API.

Endpoints:
  POST /run      run a chain for a task
  GET  /health   liveness probe
  GET  /chains   list chain presets
  GET  /         web front end from the static directory

The listen port comes from --port, DEVGENIE_SERVER_PORT or PORT (default 8000).
Requests without an api_key fall back to GOOGLE_API_KEY.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Log.Level != "debug" {
			gin.SetMode(gin.ReleaseMode)
		}

		db, err := openHistory(serveNoHistory)
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

		if cfg.Google.APIKey == "" {
			logger().Warn("GOOGLE_API_KEY not set, requests must carry an api_key")
		}

		srv := server.New(p, server.Options{
			APIKey:           cfg.Google.APIKey,
			StaticDir:        cfg.Server.StaticDir,
			FinalOutputLimit: cfg.Limits.FinalOutput,
			StepOutputLimit:  cfg.Limits.StepOutput,
		}, logger())

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Fprintf(os.Stderr, "Starting devgenie API on 0.0.0.0%s\n", cfg.Server.Addr())
		return srv.ListenAndServe(ctx, cfg.Server.Addr())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8000, "Listen port")
	serveCmd.Flags().String("static-dir", "static", "Directory with the web front end")
	serveCmd.Flags().String("dump-dir", "", "Write a report directory per run under this path")
	serveCmd.Flags().BoolVar(&serveNoHistory, "no-history", false, "Do not record runs in the history database")

	bindFlag("server.port", serveCmd.Flags().Lookup("port"))
	bindFlag("server.static_dir", serveCmd.Flags().Lookup("static-dir"))
	bindFlag("dump.dir", serveCmd.Flags().Lookup("dump-dir"))
}
