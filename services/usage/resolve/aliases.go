// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package resolve maps the calls of one file back to fully-qualified API
// elements: an alias table models what each local name refers to at each
// point of the file, and a resolver composes callee expressions through
// it.
package resolve

import (
	"sort"
	"strings"

	"github.com/lars-reimann/python-analyzer/services/usage/ast"
)

// LookupState is the outcome of an alias-table lookup.
type LookupState int

const (
	// LookupUnbound means the name was never bound by an import.
	LookupUnbound LookupState = iota

	// LookupBound means the name is bound to an import origin at the
	// queried position.
	LookupBound

	// LookupTombstoned means the name was bound earlier but overwritten
	// with a non-import value before the queried position.
	LookupTombstoned
)

// event is one binding change for a local name, in program order.
type event struct {
	line      int
	origin    string
	tombstone bool
}

// AliasTable is a per-file mapping from local names to import origins,
// position-aware so that later rebindings shadow earlier ones.
//
// Description:
//
//	The table is built once per file from the parser's extraction:
//
//	  import pkg.sub            binds "pkg" -> "pkg"
//	  import pkg.sub as s       binds "s"   -> "pkg.sub"
//	  from X import Y           binds "Y"   -> "X.Y"
//	  from X import Y as Z      binds "Z"   -> "X.Y"
//	  from X import *           records a wildcard module
//	  name = <non-import expr>  tombstones "name" from that line on
//
//	Relative imports bind nothing: they target the client project's own
//	modules, which can never name an element of the analyzed library.
//	Lookups follow last-write-wins program order: the binding in effect
//	at a line is the last event at or before it.
//
// Thread Safety: Immutable after construction; safe for concurrent use.
type AliasTable struct {
	events    map[string][]event
	wildcards []wildcard
}

// wildcard records a "from X import *" statement.
type wildcard struct {
	module string
	line   int
}

// NewAliasTable builds the alias table for one parsed file.
func NewAliasTable(result *ast.ParseResult) *AliasTable {
	t := &AliasTable{events: make(map[string][]event)}

	for _, imp := range result.Imports {
		if imp.IsRelative {
			continue
		}
		if imp.IsWildcard {
			t.wildcards = append(t.wildcards, wildcard{module: imp.Path, line: imp.Line})
			continue
		}
		if len(imp.Names) == 0 {
			// Plain import. "import pkg.sub as s" binds the alias to the
			// full path; "import pkg.sub" binds only the root package
			// name, which is what the name "pkg" refers to afterwards.
			local, origin := imp.Alias, imp.Path
			if local == "" {
				local = imp.Path
				if idx := strings.Index(local, "."); idx >= 0 {
					local = local[:idx]
					origin = local
				}
			}
			t.add(local, event{line: imp.Line, origin: origin})
			continue
		}
		for _, name := range imp.Names {
			local, original := parseAliasedName(name)
			t.add(local, event{line: imp.Line, origin: imp.Path + "." + original})
		}
	}

	for _, rb := range result.Rebindings {
		t.add(rb.Name, event{line: rb.Line, tombstone: true})
	}

	for name := range t.events {
		evs := t.events[name]
		sort.SliceStable(evs, func(i, j int) bool { return evs[i].line < evs[j].line })
		t.events[name] = evs
	}
	sort.SliceStable(t.wildcards, func(i, j int) bool {
		return t.wildcards[i].line < t.wildcards[j].line
	})

	return t
}

func (t *AliasTable) add(name string, ev event) {
	t.events[name] = append(t.events[name], ev)
}

// Lookup returns the origin bound to name at the given line.
//
// Description:
//
//	Scans the name's binding events and returns the last one at or
//	before line. A tombstone event at that position yields
//	LookupTombstoned; a name with no events at all yields LookupUnbound.
func (t *AliasTable) Lookup(name string, line int) (string, LookupState) {
	evs := t.events[name]
	if len(evs) == 0 {
		return "", LookupUnbound
	}

	// Last event with ev.line <= line.
	idx := sort.Search(len(evs), func(i int) bool { return evs[i].line > line }) - 1
	if idx < 0 {
		return "", LookupUnbound
	}
	if evs[idx].tombstone {
		return "", LookupTombstoned
	}
	return evs[idx].origin, LookupBound
}

// HasWildcardBefore reports whether any wildcard import appears at or
// before the given line.
func (t *AliasTable) HasWildcardBefore(line int) bool {
	for _, w := range t.wildcards {
		if w.line <= line {
			return true
		}
	}
	return false
}

// parseAliasedName splits a from-import name that may carry an "as"
// alias: "concat as pd_concat" yields ("pd_concat", "concat"), a plain
// "merge" yields ("merge", "merge").
func parseAliasedName(name string) (local, original string) {
	parts := strings.SplitN(name, " as ", 2)
	original = strings.TrimSpace(parts[0])
	local = original
	if len(parts) == 2 {
		local = strings.TrimSpace(parts[1])
	}
	return local, original
}
