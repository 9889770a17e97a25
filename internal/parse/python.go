package parse

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
	"golang.org/x/crypto/blake2b"

	"ckg/internal/model"
)

// routeMethods are the decorator attribute names recognized as HTTP route
// registrations (FastAPI/Flask style: @app.get("/path")).
var routeMethods = map[string]string{
	"get":     "GET",
	"post":    "POST",
	"put":     "PUT",
	"delete":  "DELETE",
	"patch":   "PATCH",
	"head":    "HEAD",
	"options": "OPTIONS",
}

// PythonExtractor produces ParsedFile records from Python source using
// tree-sitter.
type PythonExtractor struct {
	parser *sitter.Parser
}

// NewPythonExtractor creates a Python source extractor.
func NewPythonExtractor() *PythonExtractor {
	p := sitter.NewParser()
	p.SetLanguage(python.GetLanguage())
	return &PythonExtractor{parser: p}
}

// ExtractSource parses one file's source and returns its parsed-file record.
// A parse failure is reported on the record, not as an error: per-file
// failures never abort an ingestion.
func (e *PythonExtractor) ExtractSource(ctx context.Context, path string, source []byte) ParsedFile {
	pf := ParsedFile{Path: path}

	tree, err := e.parser.ParseCtx(ctx, nil, source)
	if err != nil {
		pf.Err = fmt.Sprintf("parse %s: %v", path, err)
		return pf
	}
	root := tree.RootNode()
	if root == nil || root.HasError() {
		pf.Err = fmt.Sprintf("parse %s: syntax errors", path)
		return pf
	}

	e.walk(root, source, "", &pf)
	return pf
}

// walk descends the AST carrying the dotted path of the enclosing definition.
func (e *PythonExtractor) walk(node *sitter.Node, source []byte, container string, pf *ParsedFile) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "function_definition":
			e.extractFunction(child, source, container, nil, pf)
		case "class_definition":
			e.extractClass(child, source, container, pf)
		case "decorated_definition":
			def := child.ChildByFieldName("definition")
			if def == nil {
				continue
			}
			decorators := collectDecorators(child)
			switch def.Type() {
			case "function_definition":
				e.extractFunction(def, source, container, decorators, pf)
			case "class_definition":
				e.extractClass(def, source, container, pf)
			}
		case "import_statement":
			e.extractImport(child, source, pf)
		case "import_from_statement":
			e.extractImportFrom(child, source, pf)
		case "call":
			// Module-level calls have no enclosing function; skipped.
		default:
			e.walk(child, source, container, pf)
		}
	}
}

func (e *PythonExtractor) extractClass(node *sitter.Node, source []byte, container string, pf *ParsedFile) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := nameNode.Content(source)
	def := SymbolDef{
		Name:        name,
		Kind:        model.NodeClass,
		Container:   container,
		StartLine:   int(node.StartPoint().Row) + 1,
		EndLine:     int(node.EndPoint().Row) + 1,
		Docstring:   bodyDocstring(node, source),
		ContentHash: contentHash(node, source),
	}
	pf.Symbols = append(pf.Symbols, def)

	dotted := def.DottedPath()
	if body := node.ChildByFieldName("body"); body != nil {
		e.walk(body, source, dotted, pf)
	}
}

func (e *PythonExtractor) extractFunction(node *sitter.Node, source []byte, container string, decorators []*sitter.Node, pf *ParsedFile) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := nameNode.Content(source)
	def := SymbolDef{
		Name:        name,
		Kind:        model.NodeFunction,
		Container:   container,
		StartLine:   int(node.StartPoint().Row) + 1,
		EndLine:     int(node.EndPoint().Row) + 1,
		Signature:   functionSignature(node, source, name),
		Docstring:   bodyDocstring(node, source),
		ContentHash: contentHash(node, source),
	}
	pf.Symbols = append(pf.Symbols, def)
	dotted := def.DottedPath()

	for _, dec := range decorators {
		if route, ok := routeFromDecorator(dec, source); ok {
			route.Handler = dotted
			pf.Routes = append(pf.Routes, route)
		}
	}

	if body := node.ChildByFieldName("body"); body != nil {
		e.collectCalls(body, source, dotted, pf)
		e.walk(body, source, dotted, pf)
	}
}

// collectCalls records every call expression in the body against the
// enclosing function, without descending into nested definitions (those are
// attributed to the nested function by the recursive walk).
func (e *PythonExtractor) collectCalls(node *sitter.Node, source []byte, caller string, pf *ParsedFile) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "function_definition", "class_definition", "decorated_definition":
			continue
		case "call":
			if fn := child.ChildByFieldName("function"); fn != nil {
				callee := calleeName(fn, source)
				if callee != "" {
					pf.Calls = append(pf.Calls, CallExpr{
						Caller: caller,
						Callee: callee,
						Line:   int(child.StartPoint().Row) + 1,
					})
				}
			}
			e.collectCalls(child, source, caller, pf)
		default:
			e.collectCalls(child, source, caller, pf)
		}
	}
}

func (e *PythonExtractor) extractImport(node *sitter.Node, source []byte, pf *ParsedFile) {
	line := int(node.StartPoint().Row) + 1
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "dotted_name":
			pf.Imports = append(pf.Imports, ImportStmt{Module: child.Content(source), Line: line})
		case "aliased_import":
			name := child.ChildByFieldName("name")
			alias := child.ChildByFieldName("alias")
			if name == nil {
				continue
			}
			imp := ImportStmt{Module: name.Content(source), Line: line}
			if alias != nil {
				imp.Alias = alias.Content(source)
			}
			pf.Imports = append(pf.Imports, imp)
		}
	}
}

func (e *PythonExtractor) extractImportFrom(node *sitter.Node, source []byte, pf *ParsedFile) {
	moduleNode := node.ChildByFieldName("module_name")
	if moduleNode == nil {
		return
	}
	imp := ImportStmt{Line: int(node.StartPoint().Row) + 1}
	switch moduleNode.Type() {
	case "dotted_name":
		imp.Module = moduleNode.Content(source)
	case "relative_import":
		text := moduleNode.Content(source)
		for _, r := range text {
			if r != '.' {
				break
			}
			imp.Level++
		}
		imp.Module = strings.TrimLeft(text, ".")
	default:
		return
	}
	pf.Imports = append(pf.Imports, imp)
}

// contentHash fingerprints the definition's exact source bytes.
func contentHash(node *sitter.Node, source []byte) string {
	sum := blake2b.Sum256(source[node.StartByte():node.EndByte()])
	return hex.EncodeToString(sum[:])
}

// calleeName flattens the function part of a call into a dotted name.
// Subscripts and nested calls are not statically resolvable and yield "".
func calleeName(fn *sitter.Node, source []byte) string {
	switch fn.Type() {
	case "identifier":
		return fn.Content(source)
	case "attribute":
		obj := fn.ChildByFieldName("object")
		attr := fn.ChildByFieldName("attribute")
		if obj == nil || attr == nil {
			return ""
		}
		base := calleeName(obj, source)
		if base == "" {
			// Unresolvable receiver (call result, subscript); keep the bare
			// method name so wildcard resolution can still try it.
			return attr.Content(source)
		}
		return base + "." + attr.Content(source)
	}
	return ""
}

// functionSignature reconstructs "def name(params)" from the node.
func functionSignature(node *sitter.Node, source []byte, name string) string {
	params := node.ChildByFieldName("parameters")
	if params == nil {
		return "def " + name + "()"
	}
	sig := "def " + name + params.Content(source)
	if ret := node.ChildByFieldName("return_type"); ret != nil {
		sig += " -> " + ret.Content(source)
	}
	return sig
}

// bodyDocstring returns the leading string literal of a definition body.
func bodyDocstring(node *sitter.Node, source []byte) string {
	body := node.ChildByFieldName("body")
	if body == nil || body.NamedChildCount() == 0 {
		return ""
	}
	first := body.NamedChild(0)
	if first.Type() != "expression_statement" || first.NamedChildCount() == 0 {
		return ""
	}
	str := first.NamedChild(0)
	if str.Type() != "string" {
		return ""
	}
	text := str.Content(source)
	text = strings.Trim(text, "\"'")
	return strings.TrimSpace(text)
}

func collectDecorators(decorated *sitter.Node) []*sitter.Node {
	var out []*sitter.Node
	for i := 0; i < int(decorated.NamedChildCount()); i++ {
		child := decorated.NamedChild(i)
		if child.Type() == "decorator" {
			out = append(out, child)
		}
	}
	return out
}

// routeFromDecorator matches decorators of the shape @obj.method("/path").
func routeFromDecorator(dec *sitter.Node, source []byte) (RouteDecl, bool) {
	var call *sitter.Node
	for i := 0; i < int(dec.NamedChildCount()); i++ {
		if dec.NamedChild(i).Type() == "call" {
			call = dec.NamedChild(i)
			break
		}
	}
	if call == nil {
		return RouteDecl{}, false
	}
	fn := call.ChildByFieldName("function")
	if fn == nil || fn.Type() != "attribute" {
		return RouteDecl{}, false
	}
	attr := fn.ChildByFieldName("attribute")
	if attr == nil {
		return RouteDecl{}, false
	}
	method, ok := routeMethods[attr.Content(source)]
	if !ok {
		return RouteDecl{}, false
	}
	args := call.ChildByFieldName("arguments")
	if args == nil || args.NamedChildCount() == 0 {
		return RouteDecl{}, false
	}
	first := args.NamedChild(0)
	if first.Type() != "string" {
		return RouteDecl{}, false
	}
	path := strings.Trim(first.Content(source), "\"'")
	return RouteDecl{Method: method, PathTemplate: path}, true
}
