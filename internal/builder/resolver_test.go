package builder

import (
	"testing"

	"ckg/internal/logging"
	"ckg/internal/parse"
)

func TestPathToModule(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{"src/models/schemas.py", "src.models.schemas"},
		{"src/models/__init__.py", "src.models"},
		{"main.py", "main"},
		{"src/routes/users.js", "src.routes.users"},
		{"src/routes/index.js", "src.routes"},
		{"api/client.ts", "api.client"},
		{"README.md", ""},
	}
	for _, tt := range tests {
		if got := pathToModule(tt.path); got != tt.expected {
			t.Errorf("pathToModule(%q) = %q, want %q", tt.path, got, tt.expected)
		}
	}
}

func newTable(paths ...string) *symbolTable {
	table := &symbolTable{
		byQualified:  make(map[string]string),
		byBare:       make(map[string][]string),
		fileIDByPath: make(map[string]string),
		moduleToPath: make(map[string]string),
	}
	for _, p := range paths {
		table.fileIDByPath[p] = p
		registerModule(table, p, logging.NewNop())
	}
	return table
}

func TestResolveImport(t *testing.T) {
	table := newTable("src/api/handlers.py", "src/api/__init__.py", "src/models.py")

	tests := []struct {
		name     string
		fromPath string
		imp      parse.ImportStmt
		want     string
		ok       bool
	}{
		{
			"absolute",
			"src/api/handlers.py",
			parse.ImportStmt{Module: "src.models"},
			"src/models.py", true,
		},
		{
			"relative two levels",
			"src/api/handlers.py",
			parse.ImportStmt{Module: "models", Level: 2},
			"src/models.py", true,
		},
		{
			"relative to package init",
			"src/api/handlers.py",
			parse.ImportStmt{Level: 1},
			"src/api/__init__.py", true,
		},
		{
			"external",
			"src/api/handlers.py",
			parse.ImportStmt{Module: "fastapi"},
			"", false,
		},
		{
			"relative beyond root",
			"src/models.py",
			parse.ImportStmt{Module: "x", Level: 5},
			"", false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := resolveImport(table, tt.fromPath, tt.imp)
			if ok != tt.ok || got != tt.want {
				t.Errorf("resolveImport() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestResolveScriptImport(t *testing.T) {
	// JavaScript specifiers arrive pre-translated to dotted modules with
	// relative levels; resolution works the same as for Python.
	table := newTable("src/routes/users.js", "src/lib/util.js", "src/lib/index.js")

	got, ok := resolveImport(table, "src/routes/users.js",
		parse.ImportStmt{Module: "lib.util", Level: 2})
	if !ok || got != "src/lib/util.js" {
		t.Errorf("resolveImport() = (%q, %v), want src/lib/util.js", got, ok)
	}

	got, ok = resolveImport(table, "src/routes/users.js",
		parse.ImportStmt{Module: "lib", Level: 2})
	if !ok || got != "src/lib/index.js" {
		t.Errorf("resolveImport() = (%q, %v), want src/lib/index.js", got, ok)
	}
}

func TestModuleCollisionStaysUnresolved(t *testing.T) {
	// Two files normalize to the same module name "pkg.util": resolution
	// must refuse to guess.
	table := newTable("pkg/util.py", "pkg/util/__init__.py")

	_, ok := resolveImport(table, "pkg/main.py", parse.ImportStmt{Module: "pkg.util"})
	if ok {
		t.Error("collided module name resolved; it must stay unresolved")
	}
}

func TestImportLocalName(t *testing.T) {
	tests := []struct {
		module, alias, want string
	}{
		{"src.models", "", "models"},
		{"src.models", "m", "m"},
		{"os", "", "os"},
	}
	for _, tt := range tests {
		if got := importLocalName(tt.module, tt.alias); got != tt.want {
			t.Errorf("importLocalName(%q, %q) = %q, want %q", tt.module, tt.alias, got, tt.want)
		}
	}
}

func TestResolveCallPreference(t *testing.T) {
	table := newTable("a.py", "b.py")
	table.byQualified["a.py:local"] = "id-local"
	table.byQualified["b.py:f"] = "id-bf"
	table.byBare["f"] = []string{"id-bf"}
	table.byBare["dup"] = []string{"id-1", "id-2"}

	// Same-file exact match wins.
	targets, ambiguous := resolveCall(table, "a.py", nil, "local")
	if len(targets) != 1 || targets[0] != "id-local" || ambiguous {
		t.Errorf("same-file match = (%v, %v)", targets, ambiguous)
	}

	// Import-qualified match.
	targets, ambiguous = resolveCall(table, "a.py", map[string]string{"b": "b.py"}, "b.f")
	if len(targets) != 1 || targets[0] != "id-bf" || ambiguous {
		t.Errorf("import-qualified match = (%v, %v)", targets, ambiguous)
	}

	// Wildcard single candidate.
	targets, ambiguous = resolveCall(table, "a.py", nil, "f")
	if len(targets) != 1 || targets[0] != "id-bf" || ambiguous {
		t.Errorf("wildcard single = (%v, %v)", targets, ambiguous)
	}

	// Wildcard with two candidates is ambiguous, both kept.
	targets, ambiguous = resolveCall(table, "a.py", nil, "dup")
	if len(targets) != 2 || !ambiguous {
		t.Errorf("wildcard multi = (%v, %v), want 2 ambiguous targets", targets, ambiguous)
	}

	// External callee produces nothing.
	targets, _ = resolveCall(table, "a.py", nil, "requests.get")
	if len(targets) != 0 {
		t.Errorf("external callee = %v, want none", targets)
	}
}
