// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command analyzer extracts API usage statistics from a Python corpus.
//
// The analyze step walks a corpus of Python projects, finds every call
// into a target library, and aggregates call and argument-value counts
// into a JSON document. Runs are resumable: completed files are
// checkpointed, so an interrupted run picks up where it left off.
//
// Usage:
//
//	analyzer analyze --corpus ./corpus --api ./sklearn-api.json \
//	  --out ./usage.json --checkpoints ./state
//	analyzer improve --api ./sklearn-api.json --usage ./usage.json \
//	  --out ./report.json --min-usages 10
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lars-reimann/python-analyzer/services/usage"
	"github.com/lars-reimann/python-analyzer/services/usage/aggregate"
	"github.com/lars-reimann/python-analyzer/services/usage/apidesc"
	"github.com/lars-reimann/python-analyzer/services/usage/checkpoint"
	"github.com/lars-reimann/python-analyzer/services/usage/config"
)

// Flag values shared across subcommands.
var (
	flagConfig      string
	flagCorpusRoot  string
	flagAPIPath     string
	flagOutputPath  string
	flagCheckpoints string
	flagExcludeFile string
	flagWorkers     int
	flagMinUsages   int
	flagNoPrefilter bool
	flagUsagePath   string
	flagVerbose     bool
)

func main() {
	root := &cobra.Command{
		Use:   "analyzer",
		Short: "Extract API usage statistics from a Python corpus",
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			setupLogging(flagVerbose)
		},
	}
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable debug logging")

	analyzeCmd := &cobra.Command{
		Use:   "analyze",
		Short: "Walk a corpus and aggregate usage of a target API",
		RunE:  runAnalyzeCommand,
	}
	analyzeCmd.Flags().StringVar(&flagConfig, "config", "", "YAML config file (optional)")
	analyzeCmd.Flags().StringVar(&flagCorpusRoot, "corpus", "", "Root directory of the Python corpus")
	analyzeCmd.Flags().StringVar(&flagAPIPath, "api", "", "JSON API description of the target library")
	analyzeCmd.Flags().StringVar(&flagOutputPath, "out", "", "Path for the aggregate JSON output")
	analyzeCmd.Flags().StringVar(&flagCheckpoints, "checkpoints", "", "Directory for the durable checkpoint store")
	analyzeCmd.Flags().StringVar(&flagExcludeFile, "exclude-file", "", "File of gitignore-style corpus exclusion patterns")
	analyzeCmd.Flags().IntVar(&flagWorkers, "workers", 0, "Parse worker count (0 = all CPUs)")
	analyzeCmd.Flags().BoolVar(&flagNoPrefilter, "no-prefilter", false, "Parse every file, even ones that never mention the target packages")

	improveCmd := &cobra.Command{
		Use:   "improve",
		Short: "Flag low-usage API elements and parameter values",
		RunE:  runImproveCommand,
	}
	improveCmd.Flags().StringVar(&flagAPIPath, "api", "", "JSON API description of the target library")
	improveCmd.Flags().StringVar(&flagUsagePath, "usage", "", "Aggregate JSON produced by analyze")
	improveCmd.Flags().StringVar(&flagOutputPath, "out", "", "Path for the report JSON output")
	improveCmd.Flags().IntVar(&flagMinUsages, "min-usages", config.DefaultMinUsages, "Flag elements and values used fewer than this many times")

	root.AddCommand(analyzeCmd, improveCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// setupLogging installs a text slog handler on stderr.
func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// runAnalyzeCommand wires flags, config file, and environment into a
// validated run config, then executes the pipeline.
func runAnalyzeCommand(cmd *cobra.Command, _ []string) error {
	cmd.SilenceUsage = true

	cfg := config.Default()
	if err := config.LoadFile(&cfg, flagConfig); err != nil {
		return err
	}
	if err := config.ApplyEnv(&cfg); err != nil {
		return err
	}
	if flagCorpusRoot != "" {
		cfg.CorpusRoot = flagCorpusRoot
	}
	if flagAPIPath != "" {
		cfg.APIPath = flagAPIPath
	}
	if flagOutputPath != "" {
		cfg.OutputPath = flagOutputPath
	}
	if flagCheckpoints != "" {
		cfg.CheckpointDir = flagCheckpoints
	}
	if flagExcludeFile != "" {
		cfg.ExcludeFile = flagExcludeFile
	}
	if flagWorkers > 0 {
		cfg.Workers = flagWorkers
	}
	if flagNoPrefilter {
		cfg.Prefilter = false
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	api, err := apidesc.Load(cfg.APIPath)
	if err != nil {
		return fmt.Errorf("load API description: %w", err)
	}
	slog.Info("API description loaded",
		slog.String("path", cfg.APIPath),
		slog.Int("elements", api.Len()))

	store, err := checkpoint.Open(checkpoint.DefaultConfig(cfg.CheckpointDir))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			slog.Warn("Failed to close checkpoint store", slog.String("error", cerr.Error()))
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	summary, err := usage.NewService(cfg, api, store).Run(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Run %s complete in %s\n", summary.RunID, summary.Duration.Round(time.Millisecond))
	fmt.Printf("  files:       %d total, %d processed, %d resumed\n",
		summary.FilesTotal, summary.FilesProcessed, summary.FilesSkipped)
	fmt.Printf("  filtered:    %d (never mention the target packages)\n", summary.FilesFiltered)
	fmt.Printf("  failures:    %d read, %d parse\n", summary.FilesFailedRead, summary.FilesFailedParse)
	fmt.Printf("  unresolved:  %d calls\n", summary.UnresolvedCalls)
	fmt.Printf("  output:      %s\n", cfg.OutputPath)
	return nil
}

// runImproveCommand loads a previously written aggregate and produces
// the low-usage report.
func runImproveCommand(cmd *cobra.Command, _ []string) error {
	cmd.SilenceUsage = true

	if flagAPIPath == "" {
		return fmt.Errorf("--api is required")
	}
	if flagUsagePath == "" {
		return fmt.Errorf("--usage is required")
	}
	if flagOutputPath == "" {
		return fmt.Errorf("--out is required")
	}
	if flagMinUsages < 0 {
		return fmt.Errorf("--min-usages must be >= 0, got %d", flagMinUsages)
	}

	api, err := apidesc.Load(flagAPIPath)
	if err != nil {
		return fmt.Errorf("load API description: %w", err)
	}
	doc, err := usage.ReadDocument(flagUsagePath)
	if err != nil {
		return err
	}

	report := aggregate.Threshold(api, doc.Partial(), flagMinUsages)
	if err := usage.WriteReport(flagOutputPath, report); err != nil {
		return err
	}

	fmt.Printf("Report written to %s\n", flagOutputPath)
	fmt.Printf("  flagged elements: %d\n", len(report.Elements))
	fmt.Printf("  flagged values:   %d\n", len(report.Values))
	return nil
}
