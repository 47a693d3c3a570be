// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package apidesc models the structural description of a library's public
// API: every module, class, function, and method with its formal parameter
// list and default-value markers.
//
// The description is produced by an external collaborator (the API
// introspection step) and consumed here as an immutable input to call
// resolution and argument binding. It is loaded once per run and indexed
// by qualified name and by bare name.
package apidesc

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// ElementKind classifies an API element.
type ElementKind string

const (
	ElementKindModule   ElementKind = "module"
	ElementKindClass    ElementKind = "class"
	ElementKindFunction ElementKind = "function"
	ElementKindMethod   ElementKind = "method"
)

// ParameterKind classifies a formal parameter following Python's binding
// categories.
type ParameterKind string

const (
	// ParameterKindPositional covers positional-or-keyword and
	// positional-only formals; they fill left-to-right.
	ParameterKindPositional ParameterKind = "positional"

	// ParameterKindKeywordOnly formals bind by name only.
	ParameterKindKeywordOnly ParameterKind = "keyword-only"

	// ParameterKindVarPositional is a *args catch-all.
	ParameterKindVarPositional ParameterKind = "var-positional"

	// ParameterKindVarKeyword is a **kwargs catch-all.
	ParameterKindVarKeyword ParameterKind = "var-keyword"
)

// Parameter is one formal parameter of a callable element.
type Parameter struct {
	// Name is the bare parameter name as declared.
	Name string `json:"name"`

	// Kind is the binding category of the parameter.
	Kind ParameterKind `json:"kind"`

	// HasDefault reports whether the declaration carries a default value.
	HasDefault bool `json:"has_default"`

	// Default is the stringified default value. Only meaningful when
	// HasDefault is true.
	Default string `json:"default,omitempty"`
}

// Element is one entry of the API description.
//
// Description:
//
//	A fully-qualified API element. For callables (function/method kinds)
//	Parameters holds the ordered formal-parameter list. The description
//	excludes implicit receivers: a leading "self" or "cls" on a method is
//	dropped at load time so argument binding never has to account for it.
//
// Thread Safety: Immutable after loading; safe for concurrent use.
type Element struct {
	// QName is the fully-qualified dotted identifier, e.g.
	// "sklearn.cluster.KMeans.fit".
	QName string `json:"qname"`

	// Kind classifies the element.
	Kind ElementKind `json:"kind"`

	// Parameters is the ordered formal-parameter list for callables.
	// Empty for modules and classes.
	Parameters []Parameter `json:"parameters,omitempty"`
}

// BareName returns the last segment of the qualified name.
func (e *Element) BareName() string {
	if idx := strings.LastIndex(e.QName, "."); idx >= 0 {
		return e.QName[idx+1:]
	}
	return e.QName
}

// IsCallable reports whether the element can be the target of a call site.
func (e *Element) IsCallable() bool {
	return e.Kind == ElementKindFunction || e.Kind == ElementKindMethod
}

// document is the on-disk JSON shape of an API description.
type document struct {
	Elements []*Element `json:"elements"`
}

// Description is the indexed, immutable API description for one run.
//
// Thread Safety: Immutable after construction; safe for concurrent use.
type Description struct {
	byQName map[string]*Element
	// byBare maps a bare name to every element a call could target:
	// functions, methods, and classes. Used for the wildcard-import
	// fallback: a bare name resolves only when exactly one matches.
	byBare map[string][]*Element
	// roots holds the distinct top-level package names, sorted. Used by
	// the pipeline's relevance pre-filter.
	roots   []string
	ordered []*Element
}

// Load reads and parses an API description JSON file.
func Load(path string) (*Description, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read api description: %w", err)
	}
	return Parse(data)
}

// Parse builds a Description from JSON bytes.
//
// Description:
//
//	Validates that every element has a qualified name and a known kind,
//	normalizes method parameter lists by dropping a leading implicit
//	receiver ("self"/"cls"), and builds the qname and bare-name indexes.
//	Duplicate qualified names are rejected: the description is keyed by
//	qname and a duplicate would make resolution ambiguous.
func Parse(data []byte) (*Description, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse api description: %w", err)
	}

	d := &Description{
		byQName: make(map[string]*Element, len(doc.Elements)),
		byBare:  make(map[string][]*Element),
	}

	rootSet := make(map[string]struct{})
	for _, el := range doc.Elements {
		if el == nil || el.QName == "" {
			return nil, fmt.Errorf("api description: element without qualified name")
		}
		switch el.Kind {
		case ElementKindModule, ElementKindClass, ElementKindFunction, ElementKindMethod:
		default:
			return nil, fmt.Errorf("api description: element %q has unknown kind %q", el.QName, el.Kind)
		}
		if _, dup := d.byQName[el.QName]; dup {
			return nil, fmt.Errorf("api description: duplicate element %q", el.QName)
		}

		if el.Kind == ElementKindMethod {
			el.Parameters = dropReceiver(el.Parameters)
		}

		d.byQName[el.QName] = el
		d.ordered = append(d.ordered, el)
		if el.IsCallable() || el.Kind == ElementKindClass {
			bare := el.BareName()
			d.byBare[bare] = append(d.byBare[bare], el)
		}

		root := el.QName
		if idx := strings.Index(root, "."); idx >= 0 {
			root = root[:idx]
		}
		rootSet[root] = struct{}{}
	}

	for root := range rootSet {
		d.roots = append(d.roots, root)
	}
	sort.Strings(d.roots)

	return d, nil
}

// dropReceiver removes a leading "self" or "cls" positional parameter.
func dropReceiver(params []Parameter) []Parameter {
	if len(params) == 0 {
		return params
	}
	first := params[0]
	if first.Kind == ParameterKindPositional && (first.Name == "self" || first.Name == "cls") {
		return params[1:]
	}
	return params
}

// Lookup returns the element with the given qualified name, or nil.
func (d *Description) Lookup(qname string) *Element {
	return d.byQName[qname]
}

// Callable resolves a qualified name to the callable element a call on it
// would invoke.
//
// Description:
//
//	Functions and methods resolve to themselves. A class resolves to its
//	constructor: the "<class>.__init__" method, when the description
//	contains one — calling a class is how Python instantiates it, and
//	usage counts for instantiation belong to the constructor. Modules and
//	classes without a described constructor return nil.
func (d *Description) Callable(qname string) *Element {
	el := d.byQName[qname]
	if el == nil {
		return nil
	}
	switch el.Kind {
	case ElementKindFunction, ElementKindMethod:
		return el
	case ElementKindClass:
		return d.byQName[qname+".__init__"]
	default:
		return nil
	}
}

// ByBareName returns every call-targetable element (function, method, or
// class) whose bare name matches. The returned slice is shared; callers
// must not mutate it.
func (d *Description) ByBareName(name string) []*Element {
	return d.byBare[name]
}

// RootPackages returns the distinct top-level package names in the
// description, sorted. The returned slice is shared; callers must not
// mutate it.
func (d *Description) RootPackages() []string {
	return d.roots
}

// Elements returns the elements in input order. The returned slice is
// shared; callers must not mutate it.
func (d *Description) Elements() []*Element {
	return d.ordered
}

// Len returns the number of elements in the description.
func (d *Description) Len() int {
	return len(d.ordered)
}
