// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ast turns one Python source file into the flat extraction the
// usage pipeline consumes: imports, name rebindings, and call sites with
// classified arguments, all in program order.
package ast

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const (
	// DefaultMaxFileSize is the largest file Parse accepts by default.
	DefaultMaxFileSize = 10 * 1024 * 1024

	// WarnFileSize triggers a log warning for unusually large files.
	WarnFileSize = 1 * 1024 * 1024

	// MaxWalkDepth bounds AST recursion. Client code nested deeper than
	// this is pathological; extraction stops descending there.
	MaxWalkDepth = 512

	// MaxCallsPerFile caps extracted call sites per file to bound memory
	// on generated code.
	MaxCallsPerFile = 10000

	// maxLiteralTextLen caps the recorded source text of a literal.
	maxLiteralTextLen = 120
)

var (
	// ErrFileTooLarge is returned when content exceeds the size limit.
	ErrFileTooLarge = errors.New("file too large")

	// ErrInvalidContent is returned for non-UTF-8 content.
	ErrInvalidContent = errors.New("invalid content")
)

var tracer = otel.Tracer("python-analyzer.usage")

// ParserOption configures a Parser instance.
type ParserOption func(*Parser)

// WithMaxFileSize sets the maximum file size the parser will accept.
func WithMaxFileSize(bytes int64) ParserOption {
	return func(p *Parser) {
		if bytes > 0 {
			p.maxFileSize = bytes
		}
	}
}

// Parser extracts usage-relevant facts from Python source files.
//
// Description:
//
//	Parser uses tree-sitter to parse Python source and walks the tree
//	once, collecting imports, identifier rebindings, and call sites.
//	Each Parse call creates its own tree-sitter parser instance, so a
//	single Parser is safe for concurrent use across worker goroutines.
//
// Thread Safety: Safe for concurrent use.
type Parser struct {
	maxFileSize int64
}

// NewParser creates a Parser with the given options.
func NewParser(opts ...ParserOption) *Parser {
	p := &Parser{maxFileSize: DefaultMaxFileSize}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse extracts imports, rebindings, and call sites from Python source.
//
// Description:
//
//	Parse is error-tolerant: source containing syntax errors still yields
//	whatever imports and calls tree-sitter recovered, with HasSyntaxError
//	set so the pipeline can record the file as a parse failure. Complete
//	failures are returned as errors:
//
//	  - ErrFileTooLarge: content exceeds the configured limit
//	  - ErrInvalidContent: content is not valid UTF-8
//	  - context errors: ctx was canceled (tree-sitter itself cannot be
//	    interrupted mid-parse, so cancellation is checked at boundaries)
//
// Inputs:
//   - ctx: Context for cancellation.
//   - content: Raw Python source bytes.
//   - filePath: Path for fingerprinting and location reporting.
//
// Outputs:
//   - *ParseResult: Extraction in program order. Never nil on success.
//   - error: Non-nil only for complete failures.
//
// Thread Safety: Safe for concurrent use.
func (p *Parser) Parse(ctx context.Context, content []byte, filePath string) (*ParseResult, error) {
	ctx, span := tracer.Start(ctx, "Parser.Parse")
	span.SetAttributes(
		attribute.String("file", filePath),
		attribute.Int("size_bytes", len(content)),
	)
	defer span.End()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("parse canceled before start: %w", err)
	}

	if int64(len(content)) > p.maxFileSize {
		return nil, fmt.Errorf("%w: size %d exceeds limit %d", ErrFileTooLarge, len(content), p.maxFileSize)
	}
	if len(content) > WarnFileSize {
		slog.Warn("parsing large file",
			slog.String("file", filePath),
			slog.Int("size_bytes", len(content)))
	}
	if !utf8.Valid(content) {
		return nil, fmt.Errorf("%w: content is not valid UTF-8", ErrInvalidContent)
	}

	hash := sha256.Sum256(content)

	// New parser instance per call for thread safety.
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse failed: %w", err)
	}
	defer tree.Close()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("parse canceled after tree-sitter: %w", err)
	}

	result := &ParseResult{
		FilePath:    filePath,
		Fingerprint: hex.EncodeToString(hash[:]),
	}

	root := tree.RootNode()
	if root == nil {
		result.HasSyntaxError = true
		result.Errors = append(result.Errors, "tree-sitter returned nil root node")
		return result, nil
	}
	if root.HasError() {
		result.HasSyntaxError = true
		result.Errors = append(result.Errors, "source contains syntax errors")
	}

	p.walk(root, content, filePath, result, 0)

	span.SetAttributes(
		attribute.Int("imports", len(result.Imports)),
		attribute.Int("calls", len(result.Calls)),
		attribute.Bool("syntax_error", result.HasSyntaxError),
	)
	return result, nil
}

// walk visits the tree in preorder and dispatches on the node types that
// carry usage information. Everything else is descended into, so inline
// imports and calls inside nested scopes are all captured.
func (p *Parser) walk(node *sitter.Node, content []byte, filePath string, result *ParseResult, depth int) {
	if node == nil || depth > MaxWalkDepth {
		return
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case "import_statement":
			p.processImport(child, content, result)
		case "import_from_statement":
			p.processFromImport(child, content, result)
		case "assignment", "augmented_assignment":
			p.processAssignment(child, content, result)
			// The right-hand side may contain calls.
			p.walk(child, content, filePath, result, depth+1)
		case "call":
			if len(result.Calls) < MaxCallsPerFile {
				if call := p.extractCall(child, content, filePath); call != nil {
					result.Calls = append(result.Calls, *call)
				}
			} else if len(result.Calls) == MaxCallsPerFile {
				slog.Warn("call extraction limit reached",
					slog.String("file", filePath),
					slog.Int("limit", MaxCallsPerFile))
			}
			// Arguments and callee may themselves contain calls.
			p.walk(child, content, filePath, result, depth+1)
		default:
			p.walk(child, content, filePath, result, depth+1)
		}
	}
}

// processImport handles "import foo" and "import foo as bar".
func (p *Parser) processImport(node *sitter.Node, content []byte, result *ParseResult) {
	line := int(node.StartPoint().Row) + 1
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "dotted_name":
			result.Imports = append(result.Imports, Import{
				Path: nodeText(child, content),
				Line: line,
			})
		case "aliased_import":
			var path, alias string
			for j := 0; j < int(child.ChildCount()); j++ {
				grandchild := child.Child(j)
				switch grandchild.Type() {
				case "dotted_name":
					path = nodeText(grandchild, content)
				case "identifier":
					alias = nodeText(grandchild, content)
				}
			}
			if path != "" {
				result.Imports = append(result.Imports, Import{
					Path:  path,
					Alias: alias,
					Line:  line,
				})
			}
		}
	}
}

// processFromImport handles "from X import ..." in all its forms.
func (p *Parser) processFromImport(node *sitter.Node, content []byte, result *ParseResult) {
	var modulePath string
	var names []string
	var isWildcard, isRelative bool
	var sawImport bool

	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "import":
			sawImport = true
		case "relative_import":
			isRelative = true
			var prefix, name string
			for j := 0; j < int(child.ChildCount()); j++ {
				grandchild := child.Child(j)
				switch grandchild.Type() {
				case "import_prefix":
					prefix = nodeText(grandchild, content)
				case "dotted_name":
					name = nodeText(grandchild, content)
				}
			}
			modulePath = prefix + name
		case "dotted_name":
			text := nodeText(child, content)
			if !sawImport {
				modulePath = text
			} else {
				names = append(names, text)
			}
		case "wildcard_import":
			isWildcard = true
		case "aliased_import":
			var importName, alias string
			for j := 0; j < int(child.ChildCount()); j++ {
				grandchild := child.Child(j)
				switch grandchild.Type() {
				case "dotted_name":
					if importName == "" {
						importName = nodeText(grandchild, content)
					}
				case "identifier":
					if importName == "" {
						importName = nodeText(grandchild, content)
					} else {
						alias = nodeText(grandchild, content)
					}
				}
			}
			if alias != "" {
				names = append(names, importName+" as "+alias)
			} else if importName != "" {
				names = append(names, importName)
			}
		case "identifier":
			if sawImport {
				names = append(names, nodeText(child, content))
			}
		}
	}

	if modulePath == "" && !isRelative {
		return
	}
	if modulePath == "" {
		modulePath = "."
	}
	result.Imports = append(result.Imports, Import{
		Path:       modulePath,
		Names:      names,
		IsWildcard: isWildcard,
		IsRelative: isRelative,
		Line:       int(node.StartPoint().Row) + 1,
	})
}

// processAssignment records a rebinding when the assignment target is a
// plain identifier. Tuple targets and attribute/subscript targets never
// shadow an import binding, so they are skipped.
func (p *Parser) processAssignment(node *sitter.Node, content []byte, result *ParseResult) {
	left := node.ChildByFieldName("left")
	if left == nil || left.Type() != "identifier" {
		return
	}
	result.Rebindings = append(result.Rebindings, Rebinding{
		Name: nodeText(left, content),
		Line: int(node.StartPoint().Row) + 1,
	})
}

// extractCall turns one "call" node into a CallSite.
func (p *Parser) extractCall(node *sitter.Node, content []byte, filePath string) *CallSite {
	funcNode := node.ChildByFieldName("function")
	if funcNode == nil && node.ChildCount() > 0 {
		funcNode = node.Child(0)
	}
	if funcNode == nil {
		return nil
	}

	call := &CallSite{
		Location: Location{
			FilePath: filePath,
			Line:     int(node.StartPoint().Row) + 1,
			Col:      int(node.StartPoint().Column),
		},
	}

	root, chain, ok := flattenCallee(funcNode, content)
	if ok {
		call.Root = root
		call.Chain = chain
	} else {
		call.Dynamic = true
	}

	if args := node.ChildByFieldName("arguments"); args != nil {
		call.Args = p.extractArguments(args, content)
	}

	return call
}

// flattenCallee reduces the callee expression to a root identifier and an
// attribute chain. Returns ok=false for anything that is not a pure
// identifier/attribute chain (subscripts, chained call results, lambdas):
// such callees are genuinely dynamic and stay unresolved.
func flattenCallee(node *sitter.Node, content []byte) (root string, chain []string, ok bool) {
	for node != nil && node.Type() == "attribute" {
		attr := node.ChildByFieldName("attribute")
		if attr == nil || attr.Type() != "identifier" {
			return "", nil, false
		}
		chain = append([]string{nodeText(attr, content)}, chain...)
		node = node.ChildByFieldName("object")
	}
	if node == nil || node.Type() != "identifier" {
		return "", nil, false
	}
	return nodeText(node, content), chain, true
}

// extractArguments classifies each entry of an argument_list.
func (p *Parser) extractArguments(node *sitter.Node, content []byte) []Argument {
	var args []Argument
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "(", ")", ",", "comment":
			continue
		case "keyword_argument":
			nameNode := child.ChildByFieldName("name")
			valueNode := child.ChildByFieldName("value")
			if nameNode == nil {
				continue
			}
			arg := Argument{Keyword: nodeText(nameNode, content)}
			arg.Class, arg.Text = classifyValue(valueNode, content)
			args = append(args, arg)
		case "list_splat":
			args = append(args, Argument{Splat: SplatPositional, Class: ValueUnknown})
		case "dictionary_splat":
			args = append(args, Argument{Splat: SplatKeyword, Class: ValueUnknown})
		default:
			arg := Argument{}
			arg.Class, arg.Text = classifyValue(child, content)
			args = append(args, arg)
		}
	}
	return args
}

// classifyValue maps an argument expression node to its ValueClass.
func classifyValue(node *sitter.Node, content []byte) (ValueClass, string) {
	if node == nil {
		return ValueUnknown, ""
	}
	switch node.Type() {
	case "integer", "float", "true", "false", "none", "string", "concatenated_string":
		return ValueLiteral, literalText(node, content)
	case "unary_operator":
		// Negative number literals parse as unary_operator(integer).
		arg := node.ChildByFieldName("argument")
		if arg != nil && (arg.Type() == "integer" || arg.Type() == "float") {
			return ValueLiteral, literalText(node, content)
		}
		return ValueUnknown, ""
	case "list", "tuple", "dictionary", "set",
		"list_comprehension", "set_comprehension", "dictionary_comprehension",
		"generator_expression", "lambda":
		return ValueShape, node.Type()
	default:
		return ValueUnknown, ""
	}
}

// literalText returns the source text of a literal, whitespace-normalized
// and capped so pathological literals cannot bloat histograms.
func literalText(node *sitter.Node, content []byte) string {
	text := strings.Join(strings.Fields(nodeText(node, content)), " ")
	if len(text) > maxLiteralTextLen {
		text = text[:maxLiteralTextLen]
	}
	return text
}

// nodeText returns the source text covered by a node.
func nodeText(node *sitter.Node, content []byte) string {
	return string(content[node.StartByte():node.EndByte()])
}
