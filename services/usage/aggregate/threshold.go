// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package aggregate

import (
	"sort"

	"github.com/lars-reimann/python-analyzer/services/usage/apidesc"
	"github.com/lars-reimann/python-analyzer/services/usage/bind"
)

// FlaggedValue is one (element, parameter, value) combination whose
// observed count fell below the usage threshold.
type FlaggedValue struct {
	QName     string `json:"qname"`
	Parameter string `json:"parameter"`
	Value     string `json:"value"`
	Count     int    `json:"count"`
}

// FlaggedElement is one callable whose total call count fell below the
// usage threshold.
type FlaggedElement struct {
	QName string `json:"qname"`
	Count int    `json:"count"`
}

// Report is the improvement-step input: everything the threshold flags
// for removal or simplification.
type Report struct {
	// MinUsages is the threshold applied. Counts strictly below it are
	// flagged; a count equal to it is kept.
	MinUsages int `json:"min_usages"`

	// Elements are callables called fewer than MinUsages times,
	// including described callables that were never observed at all.
	Elements []FlaggedElement `json:"elements"`

	// Values are parameter values observed fewer than MinUsages times.
	Values []FlaggedValue `json:"values"`
}

// Threshold applies the minimum-usage filter to a final aggregate.
//
// Description:
//
//	Counts are seeded from the API description so that described
//	callables with zero recorded calls are flagged too — an element the
//	corpus never touches is the strongest simplification candidate. The
//	boundary is inclusive on the keep side: count == minUsages is kept,
//	only count < minUsages is flagged. Output ordering is deterministic
//	(by qualified name, then parameter, then value).
func Threshold(api *apidesc.Description, agg *PartialAggregate, minUsages int) *Report {
	report := &Report{MinUsages: minUsages}

	counts := make(map[string]int, len(agg.CallCounts))
	if api != nil {
		for _, el := range api.Elements() {
			if el.IsCallable() {
				counts[el.QName] = 0
			}
		}
	}
	for qname, n := range agg.CallCounts {
		counts[qname] = n
	}

	for qname, n := range counts {
		if n < minUsages {
			report.Elements = append(report.Elements, FlaggedElement{QName: qname, Count: n})
		}
	}

	for qname, params := range agg.Parameters {
		for param, hist := range params {
			for sig, n := range hist {
				// The default bucket is not a removable value: dropping
				// "callers leave it alone" is not a simplification.
				if sig == bind.SignatureDefault {
					continue
				}
				if n < minUsages {
					report.Values = append(report.Values, FlaggedValue{
						QName:     qname,
						Parameter: param,
						Value:     string(sig),
						Count:     n,
					})
				}
			}
		}
	}

	sort.Slice(report.Elements, func(i, j int) bool {
		return report.Elements[i].QName < report.Elements[j].QName
	})
	sort.Slice(report.Values, func(i, j int) bool {
		a, b := report.Values[i], report.Values[j]
		if a.QName != b.QName {
			return a.QName < b.QName
		}
		if a.Parameter != b.Parameter {
			return a.Parameter < b.Parameter
		}
		return a.Value < b.Value
	})

	return report
}
