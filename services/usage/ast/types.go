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

// Location is a position in a source file. Lines are 1-based, columns
// 0-based (tree-sitter convention).
type Location struct {
	FilePath string `json:"file"`
	Line     int    `json:"line"`
	Col      int    `json:"col"`
}

// Import is one import statement extracted from a file.
type Import struct {
	// Path is the imported module path, e.g. "sklearn.cluster". For
	// relative imports the leading dots are preserved ("..utils").
	Path string `json:"path"`

	// Alias is the local name for a plain "import X as Y". Empty when
	// the import is unaliased or a from-import.
	Alias string `json:"alias,omitempty"`

	// Names holds the imported names of a from-import. An aliased name
	// is stored as "orig as local", matching the source text.
	Names []string `json:"names,omitempty"`

	// IsWildcard marks "from X import *".
	IsWildcard bool `json:"is_wildcard,omitempty"`

	// IsRelative marks imports whose path starts with dots.
	IsRelative bool `json:"is_relative,omitempty"`

	// Line is the 1-based line of the statement. Binding order within a
	// file is derived from it.
	Line int `json:"line"`
}

// Rebinding records an assignment to a plain identifier. The alias
// resolver uses these to tombstone import bindings that are overwritten
// with a non-import value (last write wins in program order).
type Rebinding struct {
	Name string `json:"name"`
	Line int    `json:"line"`
}

// ValueClass is the coarse classification of an argument expression.
type ValueClass string

const (
	// ValueLiteral is a simple hashable literal: number, string,
	// boolean, or None. Text carries the source text of the literal.
	ValueLiteral ValueClass = "literal"

	// ValueShape is a container or complex expression recorded by shape
	// rather than content (list, dict, lambda, comprehension, ...).
	// Text carries the shape name.
	ValueShape ValueClass = "shape"

	// ValueUnknown is any other expression: a variable, a call, an
	// attribute access. Nothing about the value is recorded.
	ValueUnknown ValueClass = "unknown"
)

// SplatKind marks argument-list splats.
type SplatKind int

const (
	SplatNone SplatKind = iota
	// SplatPositional is a *expr argument.
	SplatPositional
	// SplatKeyword is a **expr argument.
	SplatKeyword
)

// Argument is one argument expression at a call site.
type Argument struct {
	// Keyword is the parameter name for keyword arguments, empty for
	// positional arguments.
	Keyword string `json:"keyword,omitempty"`

	// Splat marks *args / **kwargs splats. Splat arguments carry no
	// useful Value classification.
	Splat SplatKind `json:"splat,omitempty"`

	// Class classifies the argument expression.
	Class ValueClass `json:"class"`

	// Text is the literal source text (ValueLiteral) or the shape name
	// (ValueShape). Empty for ValueUnknown.
	Text string `json:"text,omitempty"`
}

// CallSite is one call expression extracted from a file. Nested and
// chained calls each produce their own CallSite.
type CallSite struct {
	// Root is the leftmost identifier of the callee expression:
	// "p" for p.sub.fn(...), "fn" for fn(...). Empty when Dynamic.
	Root string `json:"root,omitempty"`

	// Chain is the attribute path after Root: ["sub", "fn"] for
	// p.sub.fn(...). Empty for bare calls.
	Chain []string `json:"chain,omitempty"`

	// Dynamic marks callee expressions that are not a pure
	// identifier/attribute chain (subscripts, chained call results,
	// lambdas). Dynamic calls are never resolved.
	Dynamic bool `json:"dynamic,omitempty"`

	// Args are the call's arguments in source order.
	Args []Argument `json:"args,omitempty"`

	Location Location `json:"location"`
}

// ParseResult holds everything usage analysis needs from one file, in
// program order. The tree-sitter tree itself is not retained.
type ParseResult struct {
	FilePath string `json:"file_path"`

	// Fingerprint is the lowercase hex SHA-256 of the file content.
	// The checkpoint store keys resume decisions on it.
	Fingerprint string `json:"fingerprint"`

	// HasSyntaxError reports that the tree contained ERROR nodes. Such
	// files are recorded as parse failures and contribute nothing to
	// the aggregate.
	HasSyntaxError bool `json:"has_syntax_error,omitempty"`

	// Errors holds human-readable parse diagnostics.
	Errors []string `json:"errors,omitempty"`

	Imports    []Import    `json:"imports,omitempty"`
	Rebindings []Rebinding `json:"rebindings,omitempty"`
	Calls      []CallSite  `json:"calls,omitempty"`
}
