package parse

import (
	"fmt"
	"os"
	"strings"

	scippb "github.com/sourcegraph/scip/bindings/go/scip"
	"google.golang.org/protobuf/proto"

	"ckg/internal/model"
)

// FromSCIPIndex converts a precomputed SCIP index into parsed-file records,
// so repositories indexed by scip-* tools can be ingested without re-parsing
// source. Occurrence order within a document is used to attribute reference
// occurrences to the most recently defined symbol, which is how SCIP encodes
// lexical containment.
func FromSCIPIndex(path string) ([]ParsedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read SCIP index %s: %w", path, err)
	}
	var idx scippb.Index
	if err := proto.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("decode SCIP index %s: %w", path, err)
	}

	files := make([]ParsedFile, 0, len(idx.Documents))
	for _, doc := range idx.Documents {
		files = append(files, convertDocument(doc))
	}
	return files, nil
}

func convertDocument(doc *scippb.Document) ParsedFile {
	pf := ParsedFile{Path: doc.RelativePath}

	docs := make(map[string]string, len(doc.Symbols))
	for _, info := range doc.Symbols {
		if len(info.Documentation) > 0 {
			docs[info.Symbol] = strings.TrimSpace(info.Documentation[0])
		}
	}

	seen := make(map[string]bool)
	currentCaller := ""

	for _, occ := range doc.Occurrences {
		dotted, kind, ok := symbolPath(occ.Symbol)
		if !ok {
			continue
		}
		line := occurrenceLine(occ)

		if occ.SymbolRoles&int32(scippb.SymbolRole_Definition) != 0 {
			if kind == model.NodeFunction {
				currentCaller = dotted
			}
			if seen[dotted] {
				continue
			}
			seen[dotted] = true
			name := dotted
			container := ""
			if i := strings.LastIndex(dotted, "."); i >= 0 {
				container = dotted[:i]
				name = dotted[i+1:]
			}
			pf.Symbols = append(pf.Symbols, SymbolDef{
				Name:      name,
				Kind:      kind,
				Container: container,
				StartLine: line,
				EndLine:   line,
				Docstring: docs[occ.Symbol],
			})
			continue
		}

		// Reference occurrence: a call when the target is a function and we
		// are inside a definition.
		if kind == model.NodeFunction && currentCaller != "" && currentCaller != dotted {
			pf.Calls = append(pf.Calls, CallExpr{
				Caller: currentCaller,
				Callee: dotted,
				Line:   line,
			})
		}
	}
	return pf
}

// symbolPath parses a SCIP symbol string into a dotted definition path and a
// node kind. Local and package-only symbols are not definable units here.
func symbolPath(symbol string) (string, model.NodeKind, bool) {
	parsed, err := scippb.ParseSymbol(symbol)
	if err != nil || parsed == nil {
		return "", "", false
	}
	var parts []string
	kind := model.NodeSymbol
	for _, d := range parsed.Descriptors {
		switch d.Suffix {
		case scippb.Descriptor_Type:
			parts = append(parts, d.Name)
			kind = model.NodeClass
		case scippb.Descriptor_Method, scippb.Descriptor_Term:
			parts = append(parts, d.Name)
			if d.Suffix == scippb.Descriptor_Method {
				kind = model.NodeFunction
			} else {
				kind = model.NodeSymbol
			}
		}
	}
	if len(parts) == 0 {
		return "", "", false
	}
	return strings.Join(parts, "."), kind, true
}

func occurrenceLine(occ *scippb.Occurrence) int {
	if len(occ.Range) == 0 {
		return 0
	}
	return int(occ.Range[0]) + 1
}
