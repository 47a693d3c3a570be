// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package usage runs the end-to-end corpus analysis pipeline: walk the
// corpus, parse each Python file, resolve calls against the target API,
// bind arguments, aggregate per-file, checkpoint each file durably, and
// merge everything into a single output document.
//
// =============================================================================
// Crash resilience
// =============================================================================
//
// The pipeline is resumable at file granularity. Every completed file is
// checkpointed (fingerprint + partial aggregate) in one atomic write
// before the run moves on. After an interruption, rerunning with the
// same checkpoint directory skips every file whose stored fingerprint
// still matches its content, so each (file, fingerprint) pair
// contributes to the merged output exactly once.
package usage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/lars-reimann/python-analyzer/services/usage/aggregate"
	"github.com/lars-reimann/python-analyzer/services/usage/apidesc"
	"github.com/lars-reimann/python-analyzer/services/usage/ast"
	"github.com/lars-reimann/python-analyzer/services/usage/bind"
	"github.com/lars-reimann/python-analyzer/services/usage/checkpoint"
	"github.com/lars-reimann/python-analyzer/services/usage/config"
	"github.com/lars-reimann/python-analyzer/services/usage/corpus"
	"github.com/lars-reimann/python-analyzer/services/usage/resolve"
)

var tracer = otel.Tracer("python-analyzer.usage")

// RunSummary reports what one analyze run did.
type RunSummary struct {
	// RunID identifies the run in logs and checkpoint records.
	RunID string

	// FilesTotal is the number of corpus files after exclusion.
	FilesTotal int

	// FilesProcessed is the number of files parsed and aggregated in
	// this run (prefiltered files included).
	FilesProcessed int

	// FilesSkipped is the number of files resumed from checkpoints.
	FilesSkipped int

	// FilesFiltered is the subset of processed files that the relevance
	// prefilter dismissed without parsing.
	FilesFiltered int

	// FilesFailedRead counts files that could not be read or whose
	// content was rejected (too large, not UTF-8).
	FilesFailedRead int

	// FilesFailedParse counts files rejected for syntax errors or a
	// per-file timeout.
	FilesFailedParse int

	// UnresolvedCalls is the merged unresolved call count.
	UnresolvedCalls int

	// Duration is the wall-clock run time.
	Duration time.Duration
}

// Service wires the pipeline's collaborators together.
//
// Thread Safety: Run may be called once per Service instance.
type Service struct {
	cfg    config.Run
	api    *apidesc.Description
	store  *checkpoint.Store
	logger *slog.Logger
}

// NewService creates the pipeline over a validated config, a loaded API
// description, and an open checkpoint store. The caller owns the
// store's lifecycle.
func NewService(cfg config.Run, api *apidesc.Description, store *checkpoint.Store) *Service {
	return &Service{
		cfg:    cfg,
		api:    api,
		store:  store,
		logger: slog.Default(),
	}
}

// Run executes the analyze step.
//
// Description:
//
//	Walks the corpus, fans the file list out to a bounded worker pool,
//	and checkpoints every completed file before merging all stored
//	partial aggregates into the output document. Per-file failures are
//	logged and counted; they never abort the run. Cancellation via ctx
//	stops scheduling promptly; files already checkpointed survive and
//	are skipped on the next run.
//
// Outputs:
//   - *RunSummary: Counts and timing for the run. Non-nil on success.
//   - error: Non-nil on corpus walk, checkpoint load, or output write
//     failure, or on cancellation.
func (s *Service) Run(ctx context.Context) (*RunSummary, error) {
	ctx, span := tracer.Start(ctx, "usage.Service.Run")
	defer span.End()

	start := time.Now()
	runID := uuid.NewString()
	span.SetAttributes(attribute.String("run.id", runID))

	patterns, err := corpus.ReadExcludeFile(s.cfg.ExcludeFile)
	if err != nil {
		return nil, fmt.Errorf("read exclude file: %w", err)
	}
	files, err := corpus.List(s.cfg.CorpusRoot, patterns)
	if err != nil {
		return nil, fmt.Errorf("walk corpus: %w", err)
	}

	s.logger.Info("analyze: starting run",
		slog.String("run_id", runID),
		slog.String("corpus_root", s.cfg.CorpusRoot),
		slog.Int("files", len(files)),
		slog.Int("workers", s.cfg.Workers))

	roots := rootNeedles(s.api.RootPackages())

	var (
		processed   atomic.Int64
		skipped     atomic.Int64
		filtered    atomic.Int64
		failedRead  atomic.Int64
		failedParse atomic.Int64
	)

	// fingerprints records the content hash of every file seen this
	// run; the merge phase uses it to admit exactly the records that
	// match the corpus as it stands now.
	var (
		fpMu         sync.Mutex
		fingerprints = make(map[string]string, len(files))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)

	for _, entry := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			content, err := os.ReadFile(entry.AbsPath)
			if err != nil {
				failedRead.Add(1)
				s.logger.Warn("analyze: read failed",
					slog.String("file", entry.Path),
					slog.String("error", err.Error()))
				return nil
			}

			fp := fingerprint(content)
			fpMu.Lock()
			fingerprints[entry.Path] = fp
			fpMu.Unlock()

			done, err := s.store.IsProcessed(gctx, entry.Path, fp)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				s.logger.Warn("analyze: checkpoint lookup failed, reprocessing",
					slog.String("file", entry.Path),
					slog.String("error", err.Error()))
			}
			if done {
				skipped.Add(1)
				return nil
			}

			outcome := s.processFile(gctx, entry, content, fp, runID, roots)
			switch outcome {
			case outcomeProcessed:
				processed.Add(1)
			case outcomeFiltered:
				processed.Add(1)
				filtered.Add(1)
			case outcomeFailedRead:
				failedRead.Add(1)
			case outcomeFailedParse:
				failedParse.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("analyze run interrupted: %w", err)
	}

	merged, err := s.mergeStored(ctx, fingerprints)
	if err != nil {
		return nil, err
	}
	if err := WriteDocument(s.cfg.OutputPath, newDocument(runID, merged)); err != nil {
		return nil, fmt.Errorf("write aggregate output: %w", err)
	}

	summary := &RunSummary{
		RunID:            runID,
		FilesTotal:       len(files),
		FilesProcessed:   int(processed.Load()),
		FilesSkipped:     int(skipped.Load()),
		FilesFiltered:    int(filtered.Load()),
		FilesFailedRead:  int(failedRead.Load()),
		FilesFailedParse: int(failedParse.Load()),
		UnresolvedCalls:  merged.UnresolvedCalls,
		Duration:         time.Since(start),
	}

	s.logger.Info("analyze: run complete",
		slog.String("run_id", runID),
		slog.Int("processed", summary.FilesProcessed),
		slog.Int("skipped", summary.FilesSkipped),
		slog.Int("filtered", summary.FilesFiltered),
		slog.Int("failed_read", summary.FilesFailedRead),
		slog.Int("failed_parse", summary.FilesFailedParse),
		slog.Int("unresolved_calls", summary.UnresolvedCalls),
		slog.Duration("duration", summary.Duration))
	span.SetAttributes(
		attribute.Int("files.processed", summary.FilesProcessed),
		attribute.Int("files.skipped", summary.FilesSkipped))

	return summary, nil
}

type fileOutcome int

const (
	outcomeProcessed fileOutcome = iota
	outcomeFiltered
	outcomeFailedRead
	outcomeFailedParse
	outcomeDeferred
)

// processFile parses, resolves, binds, and aggregates one file, then
// checkpoints the result. Every terminal outcome except a failed read
// or a timeout is checkpointed so the file is not reworked on resume:
// prefiltered and syntactically broken files durably contribute an
// empty aggregate.
func (s *Service) processFile(ctx context.Context, entry corpus.FileEntry, content []byte, fp, runID string, roots [][]byte) fileOutcome {
	ctx, span := tracer.Start(ctx, "usage.Service.processFile",
		trace.WithAttributes(attribute.String("file", entry.Path)))
	defer span.End()

	if s.cfg.Prefilter && !mentionsAny(content, roots) {
		if err := s.store.RecordProcessed(ctx, entry.Path, fp, runID, aggregate.New()); err != nil {
			s.logger.Warn("analyze: checkpoint deferred",
				slog.String("file", entry.Path),
				slog.String("error", err.Error()))
			return outcomeDeferred
		}
		return outcomeFiltered
	}

	fctx, cancel := context.WithTimeout(ctx, s.cfg.FileTimeout)
	defer cancel()

	parser := ast.NewParser(ast.WithMaxFileSize(int64(s.cfg.MaxFileSize)))
	result, err := parser.Parse(fctx, content, entry.Path)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			s.logger.Warn("analyze: file timed out",
				slog.String("file", entry.Path),
				slog.Duration("timeout", s.cfg.FileTimeout))
			return outcomeFailedParse
		}
		// Oversized or non-UTF-8 content. Checkpoint an empty aggregate
		// so the file is not re-rejected every run.
		s.logger.Warn("analyze: file rejected",
			slog.String("file", entry.Path),
			slog.String("error", err.Error()))
		if cerr := s.store.RecordProcessed(ctx, entry.Path, fp, runID, aggregate.New()); cerr != nil {
			return outcomeDeferred
		}
		return outcomeFailedRead
	}

	if result.HasSyntaxError {
		s.logger.Warn("analyze: syntax errors, file contributes nothing",
			slog.String("file", entry.Path))
		if cerr := s.store.RecordProcessed(ctx, entry.Path, fp, runID, aggregate.New()); cerr != nil {
			return outcomeDeferred
		}
		return outcomeFailedParse
	}

	agg := s.aggregateFile(result)
	if err := s.store.RecordProcessed(ctx, entry.Path, fp, runID, agg); err != nil {
		s.logger.Warn("analyze: checkpoint deferred",
			slog.String("file", entry.Path),
			slog.String("error", err.Error()))
		return outcomeDeferred
	}
	return outcomeProcessed
}

// aggregateFile turns a parse result into the file's partial aggregate.
func (s *Service) aggregateFile(result *ast.ParseResult) *aggregate.PartialAggregate {
	aliases := resolve.NewAliasTable(result)
	resolver := resolve.NewResolver(s.api, aliases)
	collector := aggregate.NewCollector()

	for _, call := range result.Calls {
		res := resolver.Resolve(call)
		if !res.Resolved() {
			collector.ObserveUnresolved()
			continue
		}
		bindings := bind.Bind(res.Element, call)
		collector.ObserveCall(res.Element.QName, bindings, call.Location)
	}
	return collector.Aggregate()
}

// mergeStored loads every checkpoint record and merges the ones that
// correspond to the corpus as listed this run: the record's path must
// have been seen and its fingerprint must match the current content.
// Stale records (files deleted or changed since checkpointing) are
// ignored.
func (s *Service) mergeStored(ctx context.Context, fingerprints map[string]string) (*aggregate.PartialAggregate, error) {
	records, err := s.store.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load checkpoints for merge: %w", err)
	}

	merged := aggregate.New()
	stale := 0
	for _, rec := range records {
		if fingerprints[rec.Path] != rec.Fingerprint {
			stale++
			continue
		}
		if rec.Aggregate != nil {
			merged.MergeFrom(rec.Aggregate)
		}
	}
	if stale > 0 {
		s.logger.Debug("analyze: stale checkpoint records ignored",
			slog.Int("count", stale))
	}
	return merged, nil
}

// fingerprint is the hex SHA-256 of file content.
func fingerprint(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// rootNeedles prepares the byte needles for the relevance prefilter.
func rootNeedles(packages []string) [][]byte {
	needles := make([][]byte, 0, len(packages))
	for _, pkg := range packages {
		needles = append(needles, []byte(pkg))
	}
	return needles
}

// mentionsAny reports whether content contains any needle. With no
// needles the prefilter is inert and every file is parsed.
func mentionsAny(content []byte, needles [][]byte) bool {
	if len(needles) == 0 {
		return true
	}
	for _, n := range needles {
		if bytes.Contains(content, n) {
			return true
		}
	}
	return false
}
