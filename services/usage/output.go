// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package usage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lars-reimann/python-analyzer/services/usage/aggregate"
)

// documentSchemaVersion guards readers against future format changes.
const documentSchemaVersion = 1

// Document is the serialized form of a merged aggregate. It is the
// analyze step's output and the improve step's input.
type Document struct {
	SchemaVersion int    `json:"schema_version"`
	RunID         string `json:"run_id"`
	GeneratedAt   string `json:"generated_at"`

	// Counts maps element qname to total call count.
	Counts map[string]int `json:"counts"`

	// Parameters maps qname → parameter → value signature → count.
	Parameters map[string]map[string]aggregate.Histogram `json:"parameters"`

	// Occurrences holds sampled call locations per element.
	Occurrences map[string][]aggregate.Occurrence `json:"occurrences,omitempty"`

	// UnresolvedCalls counts calls that could not be attributed to any
	// API element.
	UnresolvedCalls int `json:"unresolved_calls"`
}

// newDocument snapshots a merged aggregate.
func newDocument(runID string, agg *aggregate.PartialAggregate) *Document {
	return &Document{
		SchemaVersion:   documentSchemaVersion,
		RunID:           runID,
		GeneratedAt:     time.Now().UTC().Format(time.RFC3339),
		Counts:          agg.CallCounts,
		Parameters:      agg.Parameters,
		Occurrences:     agg.Occurrences,
		UnresolvedCalls: agg.UnresolvedCalls,
	}
}

// Partial rebuilds a PartialAggregate from a loaded document so the
// improve step can reuse the aggregate machinery.
func (d *Document) Partial() *aggregate.PartialAggregate {
	agg := aggregate.New()
	for qname, n := range d.Counts {
		agg.CallCounts[qname] = n
	}
	for qname, params := range d.Parameters {
		dst := make(map[string]aggregate.Histogram, len(params))
		for param, hist := range params {
			h := make(aggregate.Histogram, len(hist))
			h.MergeFrom(hist)
			dst[param] = h
		}
		agg.Parameters[qname] = dst
	}
	for qname, occs := range d.Occurrences {
		agg.Occurrences[qname] = append([]aggregate.Occurrence(nil), occs...)
	}
	agg.UnresolvedCalls = d.UnresolvedCalls
	return agg
}

// WriteDocument serializes the document as JSON to path atomically:
// the bytes land in a temp file in the destination directory which is
// then renamed over the target, so a crash never leaves a truncated
// output behind.
func WriteDocument(path string, doc *Document) error {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal aggregate document: %w", err)
	}
	return writeFileAtomic(path, raw)
}

// ReadDocument loads and validates an aggregate document.
func ReadDocument(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read aggregate document %q: %w", path, err)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse aggregate document %q: %w", path, err)
	}
	if doc.SchemaVersion != documentSchemaVersion {
		return nil, fmt.Errorf("aggregate document %q has schema version %d, want %d",
			path, doc.SchemaVersion, documentSchemaVersion)
	}
	return &doc, nil
}

// WriteReport serializes an improve-step report as JSON to path, with
// the same atomic rename as WriteDocument.
func WriteReport(path string, report *aggregate.Report) error {
	raw, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal threshold report: %w", err)
	}
	return writeFileAtomic(path, raw)
}

func writeFileAtomic(path string, raw []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory %q: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp output file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp output file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp output file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp output file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename output into place: %w", err)
	}
	return nil
}
