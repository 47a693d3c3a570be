// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"
)

func parseSource(t *testing.T, source string) *ParseResult {
	t.Helper()
	result, err := NewParser().Parse(context.Background(), []byte(source), "client.py")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return result
}

func findImport(imports []Import, path string) *Import {
	for i := range imports {
		if imports[i].Path == path {
			return &imports[i]
		}
	}
	return nil
}

func TestParse_PlainAndAliasedImports(t *testing.T) {
	result := parseSource(t, "import numpy\nimport pandas as pd\n")

	if len(result.Imports) != 2 {
		t.Fatalf("expected 2 imports, got %d: %+v", len(result.Imports), result.Imports)
	}

	numpy := findImport(result.Imports, "numpy")
	if numpy == nil || numpy.Alias != "" || numpy.Line != 1 {
		t.Errorf("unexpected numpy import: %+v", numpy)
	}
	pandas := findImport(result.Imports, "pandas")
	if pandas == nil || pandas.Alias != "pd" || pandas.Line != 2 {
		t.Errorf("unexpected pandas import: %+v", pandas)
	}
}

func TestParse_FromImports(t *testing.T) {
	source := "from sklearn.cluster import KMeans, DBSCAN as db\n" +
		"from sklearn.metrics import *\n" +
		"from . import utils\n"
	result := parseSource(t, source)

	if len(result.Imports) != 3 {
		t.Fatalf("expected 3 imports, got %d: %+v", len(result.Imports), result.Imports)
	}

	cluster := findImport(result.Imports, "sklearn.cluster")
	if cluster == nil {
		t.Fatal("sklearn.cluster import missing")
	}
	if len(cluster.Names) != 2 || cluster.Names[0] != "KMeans" || cluster.Names[1] != "DBSCAN as db" {
		t.Errorf("unexpected from-import names: %v", cluster.Names)
	}

	metrics := findImport(result.Imports, "sklearn.metrics")
	if metrics == nil || !metrics.IsWildcard {
		t.Errorf("expected wildcard import of sklearn.metrics, got %+v", metrics)
	}

	rel := findImport(result.Imports, ".")
	if rel == nil || !rel.IsRelative {
		t.Errorf("expected relative import, got %+v", result.Imports)
	}
}

func TestParse_CallExtraction(t *testing.T) {
	source := "import pandas as pd\n" +
		"pd.concat([x], axis=0, copy=True)\n"
	result := parseSource(t, source)

	if len(result.Calls) != 1 {
		t.Fatalf("expected 1 call, got %d: %+v", len(result.Calls), result.Calls)
	}
	call := result.Calls[0]
	if call.Root != "pd" || len(call.Chain) != 1 || call.Chain[0] != "concat" {
		t.Errorf("unexpected callee: root=%q chain=%v", call.Root, call.Chain)
	}
	if call.Location.Line != 2 {
		t.Errorf("expected call on line 2, got %d", call.Location.Line)
	}

	if len(call.Args) != 3 {
		t.Fatalf("expected 3 arguments, got %d: %+v", len(call.Args), call.Args)
	}
	if call.Args[0].Keyword != "" || call.Args[0].Class != ValueShape || call.Args[0].Text != "list" {
		t.Errorf("unexpected positional arg: %+v", call.Args[0])
	}
	if call.Args[1].Keyword != "axis" || call.Args[1].Class != ValueLiteral || call.Args[1].Text != "0" {
		t.Errorf("unexpected axis arg: %+v", call.Args[1])
	}
	if call.Args[2].Keyword != "copy" || call.Args[2].Text != "True" {
		t.Errorf("unexpected copy arg: %+v", call.Args[2])
	}
}

func TestParse_LiteralClassification(t *testing.T) {
	source := "fn(1, 2.5, -3, 'text', None, data, obj.attr)\n"
	result := parseSource(t, source)

	if len(result.Calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(result.Calls))
	}
	args := result.Calls[0].Args
	if len(args) != 7 {
		t.Fatalf("expected 7 arguments, got %d: %+v", len(args), args)
	}

	wantLiterals := map[int]string{0: "1", 1: "2.5", 2: "-3", 3: "'text'", 4: "None"}
	for idx, text := range wantLiterals {
		if args[idx].Class != ValueLiteral || args[idx].Text != text {
			t.Errorf("arg %d: expected literal %q, got %+v", idx, text, args[idx])
		}
	}
	// Variables and attribute access carry no value information.
	for _, idx := range []int{5, 6} {
		if args[idx].Class != ValueUnknown {
			t.Errorf("arg %d: expected unknown, got %+v", idx, args[idx])
		}
	}
}

func TestParse_SplatArguments(t *testing.T) {
	result := parseSource(t, "fn(*args, **kwargs)\n")

	if len(result.Calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(result.Calls))
	}
	args := result.Calls[0].Args
	if len(args) != 2 {
		t.Fatalf("expected 2 arguments, got %d: %+v", len(args), args)
	}
	if args[0].Splat != SplatPositional {
		t.Errorf("expected positional splat, got %+v", args[0])
	}
	if args[1].Splat != SplatKeyword {
		t.Errorf("expected keyword splat, got %+v", args[1])
	}
}

func TestParse_DynamicCallees(t *testing.T) {
	source := "handlers[0]()\nfactory()()\n"
	result := parseSource(t, source)

	dynamic := 0
	for _, call := range result.Calls {
		if call.Dynamic {
			dynamic++
		}
	}
	// handlers[0]() and the outer factory()() are dynamic; the inner
	// factory() is a plain identifier call.
	if dynamic != 2 {
		t.Errorf("expected 2 dynamic calls, got %d: %+v", dynamic, result.Calls)
	}
}

func TestParse_NestedCallsEachExtracted(t *testing.T) {
	result := parseSource(t, "outer(inner(1))\n")

	if len(result.Calls) != 2 {
		t.Fatalf("expected 2 calls, got %d: %+v", len(result.Calls), result.Calls)
	}
}

func TestParse_RebindingsFromAssignments(t *testing.T) {
	source := "import pandas as pd\npd = load()\nobj.attr = 1\na, b = 1, 2\n"
	result := parseSource(t, source)

	if len(result.Rebindings) != 1 {
		t.Fatalf("expected 1 rebinding, got %d: %+v", len(result.Rebindings), result.Rebindings)
	}
	rb := result.Rebindings[0]
	if rb.Name != "pd" || rb.Line != 2 {
		t.Errorf("unexpected rebinding: %+v", rb)
	}
}

func TestParse_SyntaxErrorFlagged(t *testing.T) {
	result := parseSource(t, "def broken(:\n")

	if !result.HasSyntaxError {
		t.Error("expected HasSyntaxError for malformed source")
	}
}

func TestParse_Fingerprint(t *testing.T) {
	content := []byte("import numpy\n")
	result, err := NewParser().Parse(context.Background(), content, "f.py")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	sum := sha256.Sum256(content)
	if want := hex.EncodeToString(sum[:]); result.Fingerprint != want {
		t.Errorf("fingerprint mismatch: got %s, want %s", result.Fingerprint, want)
	}
}

func TestParse_RejectsOversizedContent(t *testing.T) {
	p := NewParser(WithMaxFileSize(8))
	_, err := p.Parse(context.Background(), []byte("import numpy\n"), "big.py")
	if !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("expected ErrFileTooLarge, got %v", err)
	}
}

func TestParse_RejectsInvalidUTF8(t *testing.T) {
	_, err := NewParser().Parse(context.Background(), []byte{0xff, 0xfe, 0xfd}, "bad.py")
	if !errors.Is(err, ErrInvalidContent) {
		t.Errorf("expected ErrInvalidContent, got %v", err)
	}
}

func TestParse_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewParser().Parse(ctx, []byte("import numpy\n"), "f.py")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
