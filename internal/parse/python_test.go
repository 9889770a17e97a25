package parse

import (
	"context"
	"testing"

	"ckg/internal/model"
)

const sampleSource = `import os
import json as j
from src.models import schema
from ..common import util

class Server:
    """Handles incoming requests."""

    def start(self, port):
        """Binds and listens."""
        listen(port)
        j.dumps({})

@app.get("/items/{item_id}")
def read_item(item_id: int) -> dict:
    return lookup(item_id)
`

func extract(t *testing.T, source string) ParsedFile {
	t.Helper()
	pf := NewPythonExtractor().ExtractSource(context.Background(), "api/server.py", []byte(source))
	if pf.Errored() {
		t.Fatalf("extraction failed: %s", pf.Err)
	}
	return pf
}

func TestExtractSymbols(t *testing.T) {
	pf := extract(t, sampleSource)

	byPath := map[string]SymbolDef{}
	for _, s := range pf.Symbols {
		byPath[s.DottedPath()] = s
	}

	server, ok := byPath["Server"]
	if !ok {
		t.Fatal("class Server not extracted")
	}
	if server.Kind != model.NodeClass {
		t.Errorf("Server kind = %s, want class", server.Kind)
	}
	if server.Docstring != "Handles incoming requests." {
		t.Errorf("Server docstring = %q", server.Docstring)
	}
	if server.ContentHash == "" {
		t.Error("Server content hash missing")
	}

	start, ok := byPath["Server.start"]
	if !ok {
		t.Fatal("method Server.start not extracted")
	}
	if start.Kind != model.NodeFunction || start.Container != "Server" {
		t.Errorf("start = %+v, want function contained in Server", start)
	}
	if start.Signature != "def start(self, port)" {
		t.Errorf("start signature = %q", start.Signature)
	}

	readItem, ok := byPath["read_item"]
	if !ok {
		t.Fatal("function read_item not extracted")
	}
	if readItem.Signature != "def read_item(item_id: int) -> dict" {
		t.Errorf("read_item signature = %q", readItem.Signature)
	}
}

func TestExtractImports(t *testing.T) {
	pf := extract(t, sampleSource)

	want := []ImportStmt{
		{Module: "os", Line: 1},
		{Module: "json", Alias: "j", Line: 2},
		{Module: "src.models", Line: 3},
		{Module: "common", Level: 2, Line: 4},
	}
	if len(pf.Imports) != len(want) {
		t.Fatalf("imports = %+v, want %d entries", pf.Imports, len(want))
	}
	for i, w := range want {
		got := pf.Imports[i]
		if got.Module != w.Module || got.Level != w.Level || got.Alias != w.Alias || got.Line != w.Line {
			t.Errorf("import[%d] = %+v, want %+v", i, got, w)
		}
	}
}

func TestExtractCalls(t *testing.T) {
	pf := extract(t, sampleSource)

	type key struct{ caller, callee string }
	seen := map[key]bool{}
	for _, c := range pf.Calls {
		seen[key{c.Caller, c.Callee}] = true
	}
	if !seen[key{"Server.start", "listen"}] {
		t.Errorf("missing call Server.start -> listen; calls = %+v", pf.Calls)
	}
	if !seen[key{"Server.start", "j.dumps"}] {
		t.Errorf("missing call Server.start -> j.dumps; calls = %+v", pf.Calls)
	}
	if !seen[key{"read_item", "lookup"}] {
		t.Errorf("missing call read_item -> lookup; calls = %+v", pf.Calls)
	}
}

func TestExtractRoutes(t *testing.T) {
	pf := extract(t, sampleSource)

	if len(pf.Routes) != 1 {
		t.Fatalf("routes = %+v, want 1", pf.Routes)
	}
	r := pf.Routes[0]
	if r.Handler != "read_item" || r.Method != "GET" || r.PathTemplate != "/items/{item_id}" {
		t.Errorf("route = %+v", r)
	}
}

func TestExtractSyntaxErrorReported(t *testing.T) {
	pf := NewPythonExtractor().ExtractSource(context.Background(), "broken.py", []byte("def f(:\n"))
	if !pf.Errored() {
		t.Error("syntax error must produce an errored record")
	}
	if pf.Path != "broken.py" {
		t.Errorf("path = %q, want broken.py", pf.Path)
	}
}

func TestContentHashChangesWithBody(t *testing.T) {
	a := extract(t, "def f():\n    return 1\n")
	b := extract(t, "def f():\n    return 2\n")
	if a.Symbols[0].ContentHash == b.Symbols[0].ContentHash {
		t.Error("different bodies must hash differently")
	}

	again := extract(t, "def f():\n    return 1\n")
	if a.Symbols[0].ContentHash != again.Symbols[0].ContentHash {
		t.Error("identical source must hash identically")
	}
}
