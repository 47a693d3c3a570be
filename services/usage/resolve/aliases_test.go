// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resolve

import (
	"testing"

	"github.com/lars-reimann/python-analyzer/services/usage/ast"
)

func TestAliasTable_PlainImportBindsRootPackage(t *testing.T) {
	table := NewAliasTable(&ast.ParseResult{
		Imports: []ast.Import{{Path: "sklearn.cluster", Line: 1}},
	})

	origin, state := table.Lookup("sklearn", 10)
	if state != LookupBound {
		t.Fatalf("expected sklearn bound, got state %v", state)
	}
	if origin != "sklearn" {
		t.Errorf("expected origin sklearn, got %q", origin)
	}

	// The submodule path is not a usable local name.
	if _, state := table.Lookup("cluster", 10); state != LookupUnbound {
		t.Errorf("expected cluster unbound, got state %v", state)
	}
}

func TestAliasTable_AliasedImportBindsFullPath(t *testing.T) {
	table := NewAliasTable(&ast.ParseResult{
		Imports: []ast.Import{{Path: "sklearn.cluster", Alias: "sc", Line: 1}},
	})

	origin, state := table.Lookup("sc", 5)
	if state != LookupBound || origin != "sklearn.cluster" {
		t.Errorf("expected sc -> sklearn.cluster, got %q (state %v)", origin, state)
	}
}

func TestAliasTable_FromImportBindsMemberNames(t *testing.T) {
	table := NewAliasTable(&ast.ParseResult{
		Imports: []ast.Import{{
			Path:  "sklearn.cluster",
			Names: []string{"KMeans", "DBSCAN as db"},
			Line:  2,
		}},
	})

	if origin, state := table.Lookup("KMeans", 5); state != LookupBound || origin != "sklearn.cluster.KMeans" {
		t.Errorf("KMeans: got %q (state %v)", origin, state)
	}
	if origin, state := table.Lookup("db", 5); state != LookupBound || origin != "sklearn.cluster.DBSCAN" {
		t.Errorf("db: got %q (state %v)", origin, state)
	}
	// The original name of an aliased member is not bound.
	if _, state := table.Lookup("DBSCAN", 5); state != LookupUnbound {
		t.Errorf("expected DBSCAN unbound, got state %v", state)
	}
}

func TestAliasTable_BindingNotVisibleBeforeImportLine(t *testing.T) {
	table := NewAliasTable(&ast.ParseResult{
		Imports: []ast.Import{{Path: "numpy", Alias: "np", Line: 10}},
	})

	if _, state := table.Lookup("np", 5); state != LookupUnbound {
		t.Errorf("expected np unbound before its import, got state %v", state)
	}
	if _, state := table.Lookup("np", 10); state != LookupBound {
		t.Errorf("expected np bound at its import line, got state %v", state)
	}
}

func TestAliasTable_RebindingTombstonesName(t *testing.T) {
	table := NewAliasTable(&ast.ParseResult{
		Imports:    []ast.Import{{Path: "pandas", Alias: "pd", Line: 1}},
		Rebindings: []ast.Rebinding{{Name: "pd", Line: 5}},
	})

	if _, state := table.Lookup("pd", 3); state != LookupBound {
		t.Errorf("expected pd bound before rebinding, got state %v", state)
	}
	if _, state := table.Lookup("pd", 7); state != LookupTombstoned {
		t.Errorf("expected pd tombstoned after rebinding, got state %v", state)
	}
}

func TestAliasTable_LastWriteWins(t *testing.T) {
	// pd is an import, then a variable, then an import again.
	table := NewAliasTable(&ast.ParseResult{
		Imports: []ast.Import{
			{Path: "pandas", Alias: "pd", Line: 1},
			{Path: "polars", Alias: "pd", Line: 9},
		},
		Rebindings: []ast.Rebinding{{Name: "pd", Line: 5}},
	})

	origin, state := table.Lookup("pd", 20)
	if state != LookupBound || origin != "polars" {
		t.Errorf("expected pd -> polars after re-import, got %q (state %v)", origin, state)
	}
}

func TestAliasTable_RelativeImportsBindNothing(t *testing.T) {
	table := NewAliasTable(&ast.ParseResult{
		Imports: []ast.Import{{Path: ".utils", Names: []string{"helper"}, IsRelative: true, Line: 1}},
	})

	if _, state := table.Lookup("helper", 10); state != LookupUnbound {
		t.Errorf("expected relative-import name unbound, got state %v", state)
	}
}

func TestAliasTable_WildcardRecorded(t *testing.T) {
	table := NewAliasTable(&ast.ParseResult{
		Imports: []ast.Import{{Path: "sklearn.cluster", IsWildcard: true, Line: 3}},
	})

	if table.HasWildcardBefore(2) {
		t.Error("wildcard must not be visible before its line")
	}
	if !table.HasWildcardBefore(3) {
		t.Error("wildcard must be visible at its line")
	}
	if !table.HasWildcardBefore(100) {
		t.Error("wildcard must be visible after its line")
	}
}

func TestParseAliasedName(t *testing.T) {
	cases := []struct {
		in          string
		local, orig string
	}{
		{"merge", "merge", "merge"},
		{"concat as pd_concat", "pd_concat", "concat"},
	}
	for _, tc := range cases {
		local, orig := parseAliasedName(tc.in)
		if local != tc.local || orig != tc.orig {
			t.Errorf("parseAliasedName(%q) = (%q, %q), want (%q, %q)",
				tc.in, local, orig, tc.local, tc.orig)
		}
	}
}
