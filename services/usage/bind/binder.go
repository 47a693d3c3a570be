// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package bind maps the arguments of a resolved call to the target's
// formal parameters, following Python's binding order, and classifies
// each bound value into a coarse signature for histogram accumulation.
package bind

import (
	"github.com/lars-reimann/python-analyzer/services/usage/apidesc"
	"github.com/lars-reimann/python-analyzer/services/usage/ast"
)

// Signature is the histogram key recorded for one parameter at one call.
//
// Simple literals keep their source text ("1", "'auto'", "True", "None")
// so distinct values land in distinct buckets, matching how the usage
// counts are consumed downstream. Non-literal forms use bracketed
// markers that cannot collide with Python source text.
type Signature string

const (
	// SignatureDefault records a parameter left to its declared default.
	SignatureDefault Signature = "<default>"

	// SignatureUnknown records a value nothing useful is known about: a
	// variable, a call result, a value possibly supplied via splat, or
	// a required parameter the call failed to supply.
	SignatureUnknown Signature = "<unknown>"
)

// VariadicBucket is the synthetic parameter name under which arguments
// absorbed by *args/**kwargs catch-alls are recorded.
const VariadicBucket = "variadic"

// Bindings is the result of binding one call against one callable.
type Bindings struct {
	// Params maps each formal parameter name to its observed signature.
	// Every declared formal (except catch-alls) appears exactly once.
	Params map[string]Signature

	// Variadic holds the signatures of arguments absorbed by a
	// *args/**kwargs formal, in source order.
	Variadic []Signature
}

// Bind maps a call's arguments onto the element's formal parameters.
//
// Description:
//
//	Binding follows Python's rules: keyword arguments bind by name
//	first, then positional arguments fill the remaining positional
//	formals left-to-right. Arguments overflowing into a *args formal
//	and keywords absorbed by a **kwargs formal are recorded under the
//	synthetic variadic bucket. Formals left unsupplied get
//	SignatureDefault when declared with a default, SignatureUnknown
//	otherwise (required-but-missing is a malformed call; Bind degrades
//	instead of failing). When the call itself contains a * or **
//	splat, formals the splat could have filled degrade to
//	SignatureUnknown — the splat's contents are unknowable statically.
//
//	Bind is a pure function: no side effects, never fails.
func Bind(el *apidesc.Element, call ast.CallSite) Bindings {
	b := Bindings{Params: make(map[string]Signature, len(el.Parameters))}

	var positional []apidesc.Parameter
	var hasVarPos, hasVarKw bool
	byName := make(map[string]apidesc.Parameter, len(el.Parameters))
	for _, p := range el.Parameters {
		switch p.Kind {
		case apidesc.ParameterKindPositional:
			positional = append(positional, p)
			byName[p.Name] = p
		case apidesc.ParameterKindKeywordOnly:
			byName[p.Name] = p
		case apidesc.ParameterKindVarPositional:
			hasVarPos = true
		case apidesc.ParameterKindVarKeyword:
			hasVarKw = true
		}
	}

	var hasPosSplat, hasKwSplat bool

	// Keyword arguments bind by name.
	for _, arg := range call.Args {
		switch arg.Splat {
		case ast.SplatPositional:
			hasPosSplat = true
			continue
		case ast.SplatKeyword:
			hasKwSplat = true
			continue
		}
		if arg.Keyword == "" {
			continue
		}
		if _, known := byName[arg.Keyword]; known {
			b.Params[arg.Keyword] = signatureOf(arg)
		} else if hasVarKw {
			b.Variadic = append(b.Variadic, signatureOf(arg))
		}
		// Unknown keyword without a **kwargs formal: malformed call,
		// dropped.
	}

	// Positional arguments fill positional formals left-to-right,
	// skipping formals already bound by name.
	next := 0
	for _, arg := range call.Args {
		if arg.Keyword != "" || arg.Splat != ast.SplatNone {
			continue
		}
		for next < len(positional) {
			if _, taken := b.Params[positional[next].Name]; !taken {
				break
			}
			next++
		}
		if next < len(positional) {
			b.Params[positional[next].Name] = signatureOf(arg)
			next++
			continue
		}
		if hasVarPos {
			b.Variadic = append(b.Variadic, signatureOf(arg))
		}
		// Overflow without a *args formal: malformed call, dropped.
	}

	// Unsupplied formals.
	for _, p := range el.Parameters {
		if p.Kind == apidesc.ParameterKindVarPositional || p.Kind == apidesc.ParameterKindVarKeyword {
			continue
		}
		if _, bound := b.Params[p.Name]; bound {
			continue
		}
		splatReachable := (p.Kind == apidesc.ParameterKindPositional && hasPosSplat) || hasKwSplat
		switch {
		case splatReachable:
			b.Params[p.Name] = SignatureUnknown
		case p.HasDefault:
			b.Params[p.Name] = SignatureDefault
		default:
			b.Params[p.Name] = SignatureUnknown
		}
	}

	return b
}

// signatureOf renders one argument's value classification.
func signatureOf(arg ast.Argument) Signature {
	switch arg.Class {
	case ast.ValueLiteral:
		return Signature(arg.Text)
	case ast.ValueShape:
		return Signature("<" + arg.Text + ">")
	default:
		return SignatureUnknown
	}
}
