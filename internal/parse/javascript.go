package parse

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"ckg/internal/model"
)

// scriptExts are stripped from import specifiers so "./b.js" and "./b"
// resolve to the same module.
var scriptExts = []string{".js", ".jsx", ".mjs", ".ts", ".tsx"}

// ScriptExtractor produces ParsedFile records from JavaScript and TypeScript
// source using tree-sitter. Both grammars expose the same node types for
// everything extracted here, so one walker serves .js, .ts and .tsx files.
type ScriptExtractor struct {
	parser *sitter.Parser
}

// NewJavaScriptExtractor creates an extractor for .js/.jsx/.mjs source.
func NewJavaScriptExtractor() *ScriptExtractor {
	p := sitter.NewParser()
	p.SetLanguage(javascript.GetLanguage())
	return &ScriptExtractor{parser: p}
}

// NewTypeScriptExtractor creates an extractor for .ts source.
func NewTypeScriptExtractor() *ScriptExtractor {
	p := sitter.NewParser()
	p.SetLanguage(typescript.GetLanguage())
	return &ScriptExtractor{parser: p}
}

// NewTSXExtractor creates an extractor for .tsx source.
func NewTSXExtractor() *ScriptExtractor {
	p := sitter.NewParser()
	p.SetLanguage(tsx.GetLanguage())
	return &ScriptExtractor{parser: p}
}

// ExtractSource parses one file's source and returns its parsed-file record.
// A parse failure is reported on the record, not as an error: per-file
// failures never abort an ingestion.
func (e *ScriptExtractor) ExtractSource(ctx context.Context, path string, source []byte) ParsedFile {
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
func (e *ScriptExtractor) walk(node *sitter.Node, source []byte, container string, pf *ParsedFile) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "function_declaration":
			e.extractFunction(child, source, container, pf)
		case "class_declaration":
			e.extractClass(child, source, container, pf)
		case "lexical_declaration", "variable_declaration":
			e.extractDeclarators(child, source, container, pf)
		case "import_statement":
			e.extractImport(child, source, pf)
		case "export_statement":
			if decl := child.ChildByFieldName("declaration"); decl != nil {
				switch decl.Type() {
				case "function_declaration":
					e.extractFunction(decl, source, container, pf)
				case "class_declaration":
					e.extractClass(decl, source, container, pf)
				case "lexical_declaration", "variable_declaration":
					e.extractDeclarators(decl, source, container, pf)
				}
			}
		case "call_expression":
			// Module-level calls have no enclosing function; only route
			// registrations (app.get("/path", handler)) are kept.
			if route, ok := routeFromCall(child, source); ok {
				pf.Routes = append(pf.Routes, route)
			}
		default:
			e.walk(child, source, container, pf)
		}
	}
}

func (e *ScriptExtractor) extractClass(node *sitter.Node, source []byte, container string, pf *ParsedFile) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	def := SymbolDef{
		Name:        nameNode.Content(source),
		Kind:        model.NodeClass,
		Container:   container,
		StartLine:   int(node.StartPoint().Row) + 1,
		EndLine:     int(node.EndPoint().Row) + 1,
		ContentHash: contentHash(node, source),
	}
	pf.Symbols = append(pf.Symbols, def)

	dotted := def.DottedPath()
	body := node.ChildByFieldName("body")
	if body == nil {
		return
	}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		member := body.NamedChild(i)
		if member.Type() == "method_definition" {
			e.extractMethod(member, source, dotted, pf)
		}
	}
}

func (e *ScriptExtractor) extractMethod(node *sitter.Node, source []byte, container string, pf *ParsedFile) {
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
		Signature:   scriptSignature(node, source, name, ""),
		ContentHash: contentHash(node, source),
	}
	pf.Symbols = append(pf.Symbols, def)
	if body := node.ChildByFieldName("body"); body != nil {
		dotted := def.DottedPath()
		e.collectCalls(body, source, dotted, pf)
		e.walk(body, source, dotted, pf)
	}
}

func (e *ScriptExtractor) extractFunction(node *sitter.Node, source []byte, container string, pf *ParsedFile) {
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
		Signature:   scriptSignature(node, source, name, "function "),
		ContentHash: contentHash(node, source),
	}
	pf.Symbols = append(pf.Symbols, def)
	if body := node.ChildByFieldName("body"); body != nil {
		dotted := def.DottedPath()
		e.collectCalls(body, source, dotted, pf)
		e.walk(body, source, dotted, pf)
	}
}

// extractDeclarators handles const/let/var statements: function values become
// function symbols, require() values become imports.
func (e *ScriptExtractor) extractDeclarators(node *sitter.Node, source []byte, container string, pf *ParsedFile) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		decl := node.NamedChild(i)
		if decl.Type() != "variable_declarator" {
			continue
		}
		nameNode := decl.ChildByFieldName("name")
		value := decl.ChildByFieldName("value")
		if nameNode == nil || value == nil || nameNode.Type() != "identifier" {
			continue
		}
		name := nameNode.Content(source)

		switch value.Type() {
		case "arrow_function", "function_expression", "function":
			def := SymbolDef{
				Name:        name,
				Kind:        model.NodeFunction,
				Container:   container,
				StartLine:   int(decl.StartPoint().Row) + 1,
				EndLine:     int(decl.EndPoint().Row) + 1,
				Signature:   scriptSignature(value, source, name, ""),
				ContentHash: contentHash(decl, source),
			}
			pf.Symbols = append(pf.Symbols, def)
			if body := value.ChildByFieldName("body"); body != nil {
				dotted := def.DottedPath()
				// A concise arrow body is itself the call expression.
				if body.Type() == "call_expression" {
					e.recordCall(body, source, dotted, pf)
				}
				e.collectCalls(body, source, dotted, pf)
				e.walk(body, source, dotted, pf)
			}
		case "call_expression":
			if spec, ok := requireSpecifier(value, source); ok {
				imp := importFromSpecifier(spec, int(decl.StartPoint().Row)+1)
				imp.Alias = name
				pf.Imports = append(pf.Imports, imp)
			}
		}
	}
}

// collectCalls records every call expression in the body against the
// enclosing function, without descending into nested definitions (those are
// attributed to the nested function by the recursive walk).
func (e *ScriptExtractor) collectCalls(node *sitter.Node, source []byte, caller string, pf *ParsedFile) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "function_declaration", "class_declaration", "method_definition",
			"arrow_function", "function_expression", "function":
			continue
		case "call_expression":
			e.recordCall(child, source, caller, pf)
			e.collectCalls(child, source, caller, pf)
		default:
			e.collectCalls(child, source, caller, pf)
		}
	}
}

func (e *ScriptExtractor) recordCall(call *sitter.Node, source []byte, caller string, pf *ParsedFile) {
	fn := call.ChildByFieldName("function")
	if fn == nil {
		return
	}
	callee := scriptCalleeName(fn, source)
	if callee == "" || callee == "require" {
		return
	}
	pf.Calls = append(pf.Calls, CallExpr{
		Caller: caller,
		Callee: callee,
		Line:   int(call.StartPoint().Row) + 1,
	})
}

// extractImport handles ES module imports: the source specifier plus the
// default or namespace binding when one exists. Named bindings resolve at
// call time through bare-name matching.
func (e *ScriptExtractor) extractImport(node *sitter.Node, source []byte, pf *ParsedFile) {
	src := node.ChildByFieldName("source")
	if src == nil {
		return
	}
	imp := importFromSpecifier(stringContent(src, source), int(node.StartPoint().Row)+1)
	for i := 0; i < int(node.NamedChildCount()); i++ {
		clause := node.NamedChild(i)
		if clause.Type() != "import_clause" {
			continue
		}
		for j := 0; j < int(clause.NamedChildCount()); j++ {
			b := clause.NamedChild(j)
			switch b.Type() {
			case "identifier":
				imp.Alias = b.Content(source)
			case "namespace_import":
				for k := 0; k < int(b.NamedChildCount()); k++ {
					if b.NamedChild(k).Type() == "identifier" {
						imp.Alias = b.NamedChild(k).Content(source)
					}
				}
			}
		}
	}
	pf.Imports = append(pf.Imports, imp)
}

// importFromSpecifier translates an import specifier into the dotted-module
// form the resolver works in: "./b" from the same directory is one relative
// level, each "../" adds one more, and extensions and "/index" entry names
// are dropped ("../lib/util.js" -> level 2, module "lib.util").
func importFromSpecifier(spec string, line int) ImportStmt {
	imp := ImportStmt{Line: line}
	if strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../") {
		imp.Level = 1
		for strings.HasPrefix(spec, "../") {
			imp.Level++
			spec = strings.TrimPrefix(spec, "../")
		}
		spec = strings.TrimPrefix(spec, "./")
	}
	for _, ext := range scriptExts {
		if strings.HasSuffix(spec, ext) {
			spec = strings.TrimSuffix(spec, ext)
			break
		}
	}
	spec = strings.TrimSuffix(spec, "/index")
	imp.Module = strings.ReplaceAll(spec, "/", ".")
	return imp
}

// requireSpecifier matches require("...") calls.
func requireSpecifier(call *sitter.Node, source []byte) (string, bool) {
	fn := call.ChildByFieldName("function")
	if fn == nil || fn.Type() != "identifier" || fn.Content(source) != "require" {
		return "", false
	}
	args := call.ChildByFieldName("arguments")
	if args == nil || args.NamedChildCount() == 0 {
		return "", false
	}
	first := args.NamedChild(0)
	if first.Type() != "string" {
		return "", false
	}
	return stringContent(first, source), true
}

// scriptCalleeName flattens the function part of a call into a dotted name.
// Subscripts and nested calls are not statically resolvable and yield "".
func scriptCalleeName(fn *sitter.Node, source []byte) string {
	switch fn.Type() {
	case "identifier":
		return fn.Content(source)
	case "member_expression":
		obj := fn.ChildByFieldName("object")
		prop := fn.ChildByFieldName("property")
		if obj == nil || prop == nil {
			return ""
		}
		base := scriptCalleeName(obj, source)
		if base == "" {
			// Unresolvable receiver (call result, subscript); keep the bare
			// method name so wildcard resolution can still try it.
			return prop.Content(source)
		}
		return base + "." + prop.Content(source)
	case "this":
		return ""
	}
	return ""
}

// routeFromCall matches route registrations of the shape
// app.get("/path", handler). The handler is kept only when it is a named
// reference; inline handlers have no definition to attach the route to.
func routeFromCall(call *sitter.Node, source []byte) (RouteDecl, bool) {
	fn := call.ChildByFieldName("function")
	if fn == nil || fn.Type() != "member_expression" {
		return RouteDecl{}, false
	}
	prop := fn.ChildByFieldName("property")
	if prop == nil {
		return RouteDecl{}, false
	}
	method, ok := routeMethods[prop.Content(source)]
	if !ok {
		return RouteDecl{}, false
	}
	args := call.ChildByFieldName("arguments")
	if args == nil || args.NamedChildCount() < 2 {
		return RouteDecl{}, false
	}
	first := args.NamedChild(0)
	if first.Type() != "string" {
		return RouteDecl{}, false
	}
	handler := args.NamedChild(1)
	if handler.Type() != "identifier" {
		return RouteDecl{}, false
	}
	return RouteDecl{
		Method:       method,
		PathTemplate: stringContent(first, source),
		Handler:      handler.Content(source),
	}, true
}

// scriptSignature reconstructs "name(params)" from a function-like node.
func scriptSignature(node *sitter.Node, source []byte, name, prefix string) string {
	sig := prefix + name
	if params := node.ChildByFieldName("parameters"); params != nil {
		sig += params.Content(source)
	} else if param := node.ChildByFieldName("parameter"); param != nil {
		sig += "(" + param.Content(source) + ")"
	} else {
		sig += "()"
	}
	if ret := node.ChildByFieldName("return_type"); ret != nil {
		sig += ret.Content(source)
	}
	return sig
}

// stringContent strips quotes from a string literal node.
func stringContent(node *sitter.Node, source []byte) string {
	return strings.Trim(node.Content(source), "\"'`")
}
