package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBuildSchemasCoversEveryTarget(t *testing.T) {
	schemas := buildSchemas()
	if len(schemas) != len(targets()) {
		t.Fatalf("schemas: got %d want %d", len(schemas), len(targets()))
	}
	s, ok := schemas[filepath.Join("internal", "sim", "catalogs", "structure.schema.json")]
	if !ok {
		t.Fatalf("structure schema missing")
	}
	b, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, want := range []string{`"regions"`, `"spawns"`, `"base_block"`, `"required"`} {
		if !strings.Contains(string(b), want) {
			t.Fatalf("structure schema missing %s: %s", want, b)
		}
	}
}

func TestWriteSchemaReplacesFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "nested", "site_event.schema.json")
	for _, s := range buildSchemas() {
		if err := writeSchema(out, s); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(b, &doc); err != nil {
		t.Fatalf("written schema is not json: %v", err)
	}
	if _, err := os.Stat(out + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind: %v", err)
	}
}
