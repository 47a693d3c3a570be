// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package aggregate accumulates per-element call counts and per-parameter
// value histograms, merges per-file partial aggregates into a final
// result, and applies the improvement-step usage threshold.
package aggregate

import (
	"github.com/lars-reimann/python-analyzer/services/usage/ast"
	"github.com/lars-reimann/python-analyzer/services/usage/bind"
)

// MaxOccurrencesPerElement caps the recorded call locations per element.
// Counts are always exact; only the location samples are bounded.
const MaxOccurrencesPerElement = 500

// Histogram counts how often each value signature was observed for one
// parameter. Counts only ever increase.
type Histogram map[bind.Signature]int

// Add increments the count for a signature.
func (h Histogram) Add(sig bind.Signature, n int) {
	h[sig] += n
}

// MergeFrom adds all of other's counts into h.
func (h Histogram) MergeFrom(other Histogram) {
	for sig, n := range other {
		h[sig] += n
	}
}

// Total returns the sum of all counts. For a well-formed aggregate it
// equals the number of calls that supplied a value (or default) for the
// owning parameter.
func (h Histogram) Total() int {
	total := 0
	for _, n := range h {
		total += n
	}
	return total
}

// Occurrence is one recorded call location.
type Occurrence struct {
	File string `json:"file"`
	Line int    `json:"line"`
	Col  int    `json:"col"`
}

// PartialAggregate is the usage derived from one file or one batch of
// files. It is immutable once produced by a Collector; merging always
// happens into a fresh zero aggregate.
//
// Merge is associative and commutative: the final result is independent
// of file processing order and batching.
type PartialAggregate struct {
	// CallCounts maps a qualified element name to its resolved call
	// count.
	CallCounts map[string]int `json:"call_counts"`

	// Parameters maps element -> parameter -> histogram. The synthetic
	// "variadic" parameter collects catch-all absorbed arguments.
	Parameters map[string]map[string]Histogram `json:"parameters"`

	// Occurrences holds sampled call locations per element, capped at
	// MaxOccurrencesPerElement.
	Occurrences map[string][]Occurrence `json:"occurrences,omitempty"`

	// UnresolvedCalls counts call sites that could not be attributed to
	// any API element. They appear nowhere else in the aggregate.
	UnresolvedCalls int `json:"unresolved_calls"`
}

// New returns an empty aggregate.
func New() *PartialAggregate {
	return &PartialAggregate{
		CallCounts:  make(map[string]int),
		Parameters:  make(map[string]map[string]Histogram),
		Occurrences: make(map[string][]Occurrence),
	}
}

// MergeFrom folds other into a. Union of keys; counts and histogram
// entries summed; occurrence samples concatenated up to the cap.
func (a *PartialAggregate) MergeFrom(other *PartialAggregate) {
	if other == nil {
		return
	}
	for qname, n := range other.CallCounts {
		a.CallCounts[qname] += n
	}
	for qname, params := range other.Parameters {
		dst := a.Parameters[qname]
		if dst == nil {
			dst = make(map[string]Histogram, len(params))
			a.Parameters[qname] = dst
		}
		for param, hist := range params {
			if dst[param] == nil {
				dst[param] = make(Histogram, len(hist))
			}
			dst[param].MergeFrom(hist)
		}
	}
	for qname, occs := range other.Occurrences {
		room := MaxOccurrencesPerElement - len(a.Occurrences[qname])
		if room <= 0 {
			continue
		}
		if len(occs) > room {
			occs = occs[:room]
		}
		a.Occurrences[qname] = append(a.Occurrences[qname], occs...)
	}
	a.UnresolvedCalls += other.UnresolvedCalls
}

// Merge combines any number of partial aggregates into a new one.
// The fold is associative and commutative, so callers may batch and
// reorder freely.
func Merge(parts ...*PartialAggregate) *PartialAggregate {
	result := New()
	for _, p := range parts {
		result.MergeFrom(p)
	}
	return result
}

// Collector folds per-call observations from one file into a
// PartialAggregate.
//
// Thread Safety: NOT safe for concurrent use. Each worker owns its own
// Collector; aggregates meet only in the merge step.
type Collector struct {
	agg *PartialAggregate
}

// NewCollector creates a collector for one file.
func NewCollector() *Collector {
	return &Collector{agg: New()}
}

// ObserveCall records one resolved call with its parameter bindings.
//
// The element's call count increases by one regardless of how many
// parameters bound; each binding increments the parameter's histogram at
// the observed signature.
func (c *Collector) ObserveCall(qname string, b bind.Bindings, loc ast.Location) {
	c.agg.CallCounts[qname]++

	if len(c.agg.Occurrences[qname]) < MaxOccurrencesPerElement {
		c.agg.Occurrences[qname] = append(c.agg.Occurrences[qname], Occurrence{
			File: loc.FilePath,
			Line: loc.Line,
			Col:  loc.Col,
		})
	}

	params := c.agg.Parameters[qname]
	if params == nil {
		params = make(map[string]Histogram)
		c.agg.Parameters[qname] = params
	}
	for name, sig := range b.Params {
		if params[name] == nil {
			params[name] = make(Histogram)
		}
		params[name].Add(sig, 1)
	}
	for _, sig := range b.Variadic {
		if params[bind.VariadicBucket] == nil {
			params[bind.VariadicBucket] = make(Histogram)
		}
		params[bind.VariadicBucket].Add(sig, 1)
	}
}

// ObserveUnresolved records one call that could not be attributed.
func (c *Collector) ObserveUnresolved() {
	c.agg.UnresolvedCalls++
}

// Aggregate returns the accumulated partial aggregate. The collector
// must not be used afterwards.
func (c *Collector) Aggregate() *PartialAggregate {
	return c.agg
}
