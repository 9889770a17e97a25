package builder

import (
	"strings"

	"ckg/internal/logging"
	"ckg/internal/parse"
)

// moduleExts are the source extensions that map to importable modules.
var moduleExts = []string{".py", ".js", ".jsx", ".mjs", ".ts", ".tsx"}

// pathToModule converts a file path to its dotted module name
// ("src/models/schemas.py" -> "src.models.schemas"). Package entry files
// (__init__.py, index.js) take the package's name.
func pathToModule(path string) string {
	for _, ext := range moduleExts {
		if !strings.HasSuffix(path, ext) {
			continue
		}
		module := strings.TrimSuffix(path, ext)
		module = strings.TrimSuffix(module, "/__init__")
		module = strings.TrimSuffix(module, "/index")
		return strings.ReplaceAll(module, "/", ".")
	}
	return ""
}

// registerModule indexes a file under its module name. Two same-named files
// in different directories can collide after relative-import expansion; a
// collision makes the name unresolvable rather than guessing resolution
// order.
func registerModule(table *symbolTable, path string, logger *logging.Logger) {
	module := pathToModule(path)
	if module == "" {
		return
	}
	if existing, ok := table.moduleToPath[module]; ok {
		if existing != "" && existing != path {
			logger.Warn("Module name collision, imports of it stay unresolved", logging.Fields{
				"module": module, "first": existing, "second": path,
			})
			table.moduleToPath[module] = ""
		}
		return
	}
	table.moduleToPath[module] = path
}

// resolveImport maps an import statement in fromPath to a file path inside
// the snapshot. Targets outside the ingested set (external dependencies)
// resolve to false.
func resolveImport(table *symbolTable, fromPath string, imp parse.ImportStmt) (string, bool) {
	module := imp.Module
	if imp.Level > 0 {
		current := pathToModule(fromPath)
		if current == "" {
			return "", false
		}
		parts := strings.Split(current, ".")
		level := imp.Level
		if level > len(parts) {
			return "", false
		}
		base := parts[:len(parts)-level]
		if module != "" {
			module = strings.Join(append(append([]string{}, base...), module), ".")
		} else {
			module = strings.Join(base, ".")
		}
	}
	if module == "" {
		return "", false
	}
	path, ok := table.moduleToPath[module]
	if !ok || path == "" {
		return "", false
	}
	return path, true
}

// importLocalName is the name an import binds in the importing file: the
// alias when present, otherwise the module's last segment.
func importLocalName(module, alias string) string {
	if alias != "" {
		return alias
	}
	if i := strings.LastIndex(module, "."); i >= 0 {
		return module[i+1:]
	}
	return module
}

// resolveCall resolves a call expression to target node ids, preferring in
// order: an exact qualified match in the calling file, a match through a
// resolved import, and finally a wildcard match across all symbols sharing
// the bare name. More than one wildcard match keeps every candidate and
// marks the edge set ambiguous; zero matches means the callee is external
// and produces no edge.
func resolveCall(table *symbolTable, fromPath string, importTargets map[string]string, callee string) (targets []string, ambiguous bool) {
	// Exact qualified match in the same file.
	if id, ok := table.byQualified[fromPath+":"+callee]; ok {
		return []string{id}, false
	}

	// Match through a resolved import: "mod.fn" where "mod" is bound by an
	// import of this file.
	if i := strings.Index(callee, "."); i > 0 {
		local, rest := callee[:i], callee[i+1:]
		if targetPath, ok := importTargets[local]; ok {
			if id, ok := table.byQualified[targetPath+":"+rest]; ok {
				return []string{id}, false
			}
		}
	}

	// Wildcard across the snapshot by bare name.
	bare := callee
	if i := strings.LastIndex(callee, "."); i >= 0 {
		bare = callee[i+1:]
	}
	ids := table.byBare[bare]
	switch len(ids) {
	case 0:
		return nil, false
	case 1:
		return ids, false
	default:
		out := make([]string, len(ids))
		copy(out, ids)
		return out, true
	}
}
