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
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/valpere/devgenie/internal/chains"
	"github.com/valpere/devgenie/internal/llm"
	"github.com/valpere/devgenie/internal/logging"
	"github.com/valpere/devgenie/internal/pipeline"
	"github.com/valpere/devgenie/internal/scorer"
	"github.com/valpere/devgenie/internal/store"
)

func bindFlag(key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("failed to bind flag %s: %v", flag.Name, err))
	}
}

// buildRegistry loads the chain presets, from the configured file if any.
func buildRegistry() (*chains.Registry, error) {
	reg, err := chains.Load(cfg.Chain.PresetsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load chain presets: %w", err)
	}
	if mode := cfg.Chain.DefaultMode; mode != "" {
		if _, ok := reg.Lookup(mode); !ok {
			return nil, fmt.Errorf("default mode %q is not a known chain", mode)
		}
	}
	return reg, nil
}

// openHistory opens the run history store. It returns nil when history is
// disabled; the caller owns Close.
func openHistory(disabled bool) (*store.Store, error) {
	if disabled || !cfg.Store.Enabled || cfg.Store.Path == "" {
		return nil, nil
	}
	return openStore(cfg.Store.Path)
}

func openStore(path string) (*store.Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := store.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// buildPipeline wires the Gemini invoker, scorer and optional history into a
// pipeline. dumpDir overrides the configured dump directory when set.
func buildPipeline(db *store.Store, dumpDir string) (*pipeline.Pipeline, error) {
	reg, err := buildRegistry()
	if err != nil {
		return nil, err
	}

	invoker := llm.NewGeminiInvoker(cfg.LLM.Timeout)
	grader := scorer.New(invoker, cfg.Scorer.Model)

	if dumpDir == "" {
		dumpDir = cfg.Dump.Dir
	}

	opts := pipeline.Options{
		Scoring:     cfg.Chain.Scoring,
		RubricHints: cfg.Chain.RubricHints,
		StepBonus:   cfg.Chain.StepBonus,
		DefaultMode: cfg.Chain.DefaultMode,
		DumpDir:     dumpDir,
	}

	// A nil *store.Store must not become a non-nil interface.
	var saver pipeline.RunSaver
	if db != nil {
		saver = db
	}

	return pipeline.New(reg, invoker, grader, saver, opts, logger()), nil
}

func logger() *slog.Logger {
	return logging.Logger
}
