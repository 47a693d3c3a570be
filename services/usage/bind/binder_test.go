// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package bind

import (
	"testing"

	"github.com/lars-reimann/python-analyzer/services/usage/apidesc"
	"github.com/lars-reimann/python-analyzer/services/usage/ast"
)

// fn models "def fn(a, x=None, y=None)".
func fnElement() *apidesc.Element {
	return &apidesc.Element{
		QName: "pkg.fn",
		Kind:  apidesc.ElementKindFunction,
		Parameters: []apidesc.Parameter{
			{Name: "a", Kind: apidesc.ParameterKindPositional},
			{Name: "x", Kind: apidesc.ParameterKindPositional, HasDefault: true, Default: "None"},
			{Name: "y", Kind: apidesc.ParameterKindPositional, HasDefault: true, Default: "None"},
		},
	}
}

func positional(text string) ast.Argument {
	return ast.Argument{Class: ast.ValueLiteral, Text: text}
}

func keyword(name, text string) ast.Argument {
	return ast.Argument{Keyword: name, Class: ast.ValueLiteral, Text: text}
}

// TestBind_MixedPositionalAndKeyword covers the canonical case:
// p.fn(1, x=2) against fn(a, x=None, y=None).
func TestBind_MixedPositionalAndKeyword(t *testing.T) {
	b := Bind(fnElement(), ast.CallSite{
		Args: []ast.Argument{positional("1"), keyword("x", "2")},
	})

	want := map[string]Signature{"a": "1", "x": "2", "y": SignatureDefault}
	if len(b.Params) != len(want) {
		t.Fatalf("expected %d bound params, got %d: %v", len(want), len(b.Params), b.Params)
	}
	for name, sig := range want {
		if got := b.Params[name]; got != sig {
			t.Errorf("param %s: got %q, want %q", name, got, sig)
		}
	}
	if len(b.Variadic) != 0 {
		t.Errorf("expected no variadic bindings, got %v", b.Variadic)
	}
}

func TestBind_KeywordBeforePositionalFill(t *testing.T) {
	// fn(1, 2, a=...) is malformed Python, but fn(1, y=3) is fine: the
	// positional fills "a", the keyword takes "y", and "x" defaults.
	b := Bind(fnElement(), ast.CallSite{
		Args: []ast.Argument{positional("1"), keyword("y", "3")},
	})

	if b.Params["a"] != "1" || b.Params["x"] != SignatureDefault || b.Params["y"] != "3" {
		t.Errorf("unexpected bindings: %v", b.Params)
	}
}

func TestBind_MissingRequiredIsUnknown(t *testing.T) {
	b := Bind(fnElement(), ast.CallSite{})

	if b.Params["a"] != SignatureUnknown {
		t.Errorf("required-but-missing a: got %q, want %q", b.Params["a"], SignatureUnknown)
	}
	if b.Params["x"] != SignatureDefault || b.Params["y"] != SignatureDefault {
		t.Errorf("defaulted params: got %v", b.Params)
	}
}

func TestBind_SplatDegradesUnboundFormals(t *testing.T) {
	// fn(*stuff): any formal could have been filled by the splat, so
	// nothing may be recorded as using its default.
	b := Bind(fnElement(), ast.CallSite{
		Args: []ast.Argument{{Splat: ast.SplatPositional, Class: ast.ValueUnknown}},
	})

	for _, name := range []string{"a", "x", "y"} {
		if b.Params[name] != SignatureUnknown {
			t.Errorf("param %s under splat: got %q, want %q", name, b.Params[name], SignatureUnknown)
		}
	}
}

func TestBind_KeywordSplatDegradesKeywordOnly(t *testing.T) {
	el := &apidesc.Element{
		QName: "pkg.g",
		Kind:  apidesc.ElementKindFunction,
		Parameters: []apidesc.Parameter{
			{Name: "a", Kind: apidesc.ParameterKindPositional},
			{Name: "mode", Kind: apidesc.ParameterKindKeywordOnly, HasDefault: true, Default: "'r'"},
		},
	}
	b := Bind(el, ast.CallSite{
		Args: []ast.Argument{positional("1"), {Splat: ast.SplatKeyword, Class: ast.ValueUnknown}},
	})

	if b.Params["a"] != "1" {
		t.Errorf("param a: got %q", b.Params["a"])
	}
	if b.Params["mode"] != SignatureUnknown {
		t.Errorf("param mode under **splat: got %q, want %q", b.Params["mode"], SignatureUnknown)
	}
}

func TestBind_VarPositionalOverflow(t *testing.T) {
	el := &apidesc.Element{
		QName: "pkg.h",
		Kind:  apidesc.ElementKindFunction,
		Parameters: []apidesc.Parameter{
			{Name: "first", Kind: apidesc.ParameterKindPositional},
			{Name: "rest", Kind: apidesc.ParameterKindVarPositional},
		},
	}
	b := Bind(el, ast.CallSite{
		Args: []ast.Argument{positional("1"), positional("2"), positional("3")},
	})

	if b.Params["first"] != "1" {
		t.Errorf("param first: got %q", b.Params["first"])
	}
	if len(b.Variadic) != 2 || b.Variadic[0] != "2" || b.Variadic[1] != "3" {
		t.Errorf("expected overflow [2 3] in variadic bucket, got %v", b.Variadic)
	}
}

func TestBind_UnknownKeywordAbsorbedByVarKeyword(t *testing.T) {
	el := &apidesc.Element{
		QName: "pkg.k",
		Kind:  apidesc.ElementKindFunction,
		Parameters: []apidesc.Parameter{
			{Name: "a", Kind: apidesc.ParameterKindPositional, HasDefault: true, Default: "0"},
			{Name: "extras", Kind: apidesc.ParameterKindVarKeyword},
		},
	}
	b := Bind(el, ast.CallSite{
		Args: []ast.Argument{keyword("verbose", "True")},
	})

	if len(b.Variadic) != 1 || b.Variadic[0] != "True" {
		t.Errorf("expected absorbed keyword in variadic bucket, got %v", b.Variadic)
	}
	if b.Params["a"] != SignatureDefault {
		t.Errorf("param a: got %q, want default", b.Params["a"])
	}
}

func TestBind_UnknownKeywordWithoutCatchAllDropped(t *testing.T) {
	b := Bind(fnElement(), ast.CallSite{
		Args: []ast.Argument{keyword("nope", "1")},
	})

	if len(b.Variadic) != 0 {
		t.Errorf("expected dropped keyword, got variadic %v", b.Variadic)
	}
	if _, bound := b.Params["nope"]; bound {
		t.Error("unknown keyword must not appear in bindings")
	}
}

func TestSignatureOf(t *testing.T) {
	cases := []struct {
		arg  ast.Argument
		want Signature
	}{
		{ast.Argument{Class: ast.ValueLiteral, Text: "'auto'"}, "'auto'"},
		{ast.Argument{Class: ast.ValueShape, Text: "list"}, "<list>"},
		{ast.Argument{Class: ast.ValueUnknown}, SignatureUnknown},
	}
	for _, tc := range cases {
		if got := signatureOf(tc.arg); got != tc.want {
			t.Errorf("signatureOf(%+v) = %q, want %q", tc.arg, got, tc.want)
		}
	}
}
