// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads and validates run configuration for the usage
// analyzer.
//
// Resolution order, lowest to highest precedence:
//  1. Built-in defaults (Default)
//  2. YAML config file (LoadFile)
//  3. Environment variables (ApplyEnv)
//  4. Command-line flags (applied by the caller)
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Default limits.
const (
	// DefaultMaxFileSize caps per-file content size (bytes).
	DefaultMaxFileSize = 10 * 1024 * 1024

	// DefaultFileTimeout bounds parse+resolve time per file.
	DefaultFileTimeout = 30 * time.Second

	// DefaultMinUsages is the improve-step flagging threshold.
	DefaultMinUsages = 10
)

// Run holds the full configuration for one analysis run.
type Run struct {
	// CorpusRoot is the root directory of the Python corpus to analyze.
	CorpusRoot string `yaml:"corpus_root"`

	// APIPath is the JSON API description of the target library.
	APIPath string `yaml:"api_path"`

	// OutputPath is where the final aggregate JSON is written.
	OutputPath string `yaml:"output_path"`

	// CheckpointDir is the directory for the durable checkpoint store.
	// Reusing the directory across runs enables resume.
	CheckpointDir string `yaml:"checkpoint_dir"`

	// ExcludeFile is an optional newline-delimited list of gitignore-style
	// patterns for corpus paths to skip.
	ExcludeFile string `yaml:"exclude_file"`

	// Workers is the parse worker count. Zero means GOMAXPROCS.
	Workers int `yaml:"workers"`

	// MaxFileSize caps per-file content size in bytes. Larger files are
	// skipped and logged.
	MaxFileSize int `yaml:"max_file_size"`

	// FileTimeout bounds processing time for a single file.
	FileTimeout time.Duration `yaml:"file_timeout"`

	// MinUsages is the threshold below which the improve step flags an
	// element or value as low-usage.
	MinUsages int `yaml:"min_usages"`

	// Prefilter skips files whose content never mentions any root
	// package of the target API. On by default.
	Prefilter bool `yaml:"prefilter"`
}

// Default returns the built-in configuration.
func Default() Run {
	return Run{
		Workers:     runtime.GOMAXPROCS(0),
		MaxFileSize: DefaultMaxFileSize,
		FileTimeout: DefaultFileTimeout,
		MinUsages:   DefaultMinUsages,
		Prefilter:   true,
	}
}

// LoadFile overlays a YAML config file onto cfg. A missing file is not
// an error when path is empty; an explicitly named file must exist.
func LoadFile(cfg *Run, path string) error {
	if path == "" {
		return nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %q: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse config file %q: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays USAGE_* environment variables onto cfg.
//
// Recognized variables:
//
//	USAGE_CORPUS_ROOT, USAGE_API_PATH, USAGE_OUTPUT_PATH,
//	USAGE_CHECKPOINT_DIR, USAGE_EXCLUDE_FILE,
//	USAGE_WORKERS, USAGE_MIN_USAGES
func ApplyEnv(cfg *Run) error {
	if v := os.Getenv("USAGE_CORPUS_ROOT"); v != "" {
		cfg.CorpusRoot = v
	}
	if v := os.Getenv("USAGE_API_PATH"); v != "" {
		cfg.APIPath = v
	}
	if v := os.Getenv("USAGE_OUTPUT_PATH"); v != "" {
		cfg.OutputPath = v
	}
	if v := os.Getenv("USAGE_CHECKPOINT_DIR"); v != "" {
		cfg.CheckpointDir = v
	}
	if v := os.Getenv("USAGE_EXCLUDE_FILE"); v != "" {
		cfg.ExcludeFile = v
	}
	if v := os.Getenv("USAGE_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("USAGE_WORKERS must be an integer, got %q: %w", v, err)
		}
		cfg.Workers = n
	}
	if v := os.Getenv("USAGE_MIN_USAGES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("USAGE_MIN_USAGES must be an integer, got %q: %w", v, err)
		}
		cfg.MinUsages = n
	}
	return nil
}

// Validate checks that cfg is runnable for the analyze step. It returns
// the first problem found; a non-nil error is fatal to the run.
func (cfg *Run) Validate() error {
	if cfg.CorpusRoot == "" {
		return fmt.Errorf("corpus_root is required")
	}
	info, err := os.Stat(cfg.CorpusRoot)
	if err != nil {
		return fmt.Errorf("corpus_root %q: %w", cfg.CorpusRoot, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("corpus_root %q is not a directory", cfg.CorpusRoot)
	}
	if cfg.APIPath == "" {
		return fmt.Errorf("api_path is required")
	}
	if cfg.OutputPath == "" {
		return fmt.Errorf("output_path is required")
	}
	if cfg.CheckpointDir == "" {
		return fmt.Errorf("checkpoint_dir is required")
	}
	if cfg.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", cfg.Workers)
	}
	if cfg.Workers == 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}
	if cfg.FileTimeout <= 0 {
		cfg.FileTimeout = DefaultFileTimeout
	}
	if cfg.MinUsages < 0 {
		return fmt.Errorf("min_usages must be >= 0, got %d", cfg.MinUsages)
	}
	return nil
}
