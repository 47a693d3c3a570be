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
	"strings"

	"github.com/lars-reimann/python-analyzer/services/usage/apidesc"
	"github.com/lars-reimann/python-analyzer/services/usage/ast"
)

// Reason explains why a call stayed unresolved. Unresolved calls are
// counted but contribute to no element's statistics, so the reason only
// feeds diagnostics.
type Reason string

const (
	// ReasonDynamic: the callee is not a pure identifier/attribute chain.
	ReasonDynamic Reason = "dynamic-callee"

	// ReasonUnbound: the callee root is not bound by any import.
	ReasonUnbound Reason = "unbound-name"

	// ReasonRebound: the callee root was overwritten with a non-import
	// value before the call.
	ReasonRebound Reason = "rebound-name"

	// ReasonAmbiguous: a wildcard import is in scope but the bare name
	// matches zero or several API elements.
	ReasonAmbiguous Reason = "ambiguous-wildcard"

	// ReasonUnknownTarget: the composed identifier names nothing
	// callable in the API description.
	ReasonUnknownTarget Reason = "unknown-target"
)

// Resolution is the tagged outcome of resolving one call site: either a
// resolved qualified callable or an explicit unresolved marker.
type Resolution struct {
	// Element is the callable API element the call invokes. Nil when
	// the call is unresolved. For calls on a class this is already the
	// constructor element.
	Element *apidesc.Element

	// Reason is set when Element is nil.
	Reason Reason
}

// Resolved reports whether the call was mapped to an API element.
func (r Resolution) Resolved() bool {
	return r.Element != nil
}

// Resolver resolves the call sites of one file against the API
// description, using the file's alias table.
//
// Thread Safety: Immutable after construction; safe for concurrent use.
type Resolver struct {
	api     *apidesc.Description
	aliases *AliasTable
}

// NewResolver creates a resolver for one file.
func NewResolver(api *apidesc.Description, aliases *AliasTable) *Resolver {
	return &Resolver{api: api, aliases: aliases}
}

// Resolve maps a call site to a Resolution.
//
// Description:
//
//	The callee root is looked up in the alias table at the call's line;
//	the origin is composed with the attribute chain to a candidate
//	qualified name, which must name a callable element (function,
//	method, or class with described constructor). Every ambiguity
//	degrades to an explicit unresolved outcome — the resolver never
//	guesses.
func (r *Resolver) Resolve(call ast.CallSite) Resolution {
	if call.Dynamic || call.Root == "" {
		return Resolution{Reason: ReasonDynamic}
	}

	origin, state := r.aliases.Lookup(call.Root, call.Location.Line)
	switch state {
	case LookupBound:
		qname := origin
		if len(call.Chain) > 0 {
			qname = origin + "." + strings.Join(call.Chain, ".")
		}
		if el := r.api.Callable(qname); el != nil {
			return Resolution{Element: el}
		}
		return Resolution{Reason: ReasonUnknownTarget}

	case LookupTombstoned:
		return Resolution{Reason: ReasonRebound}

	default:
		// Unbound root: a wildcard import may still cover a bare call,
		// but only when exactly one API element carries that name —
		// anything else is resolved by guessing, which we refuse to do.
		if len(call.Chain) == 0 && r.aliases.HasWildcardBefore(call.Location.Line) {
			matches := r.api.ByBareName(call.Root)
			if len(matches) == 1 {
				if el := r.api.Callable(matches[0].QName); el != nil {
					return Resolution{Element: el}
				}
			}
			return Resolution{Reason: ReasonAmbiguous}
		}
		return Resolution{Reason: ReasonUnbound}
	}
}
