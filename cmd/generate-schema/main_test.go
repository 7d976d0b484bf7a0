package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func Test_generate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "esmond.json")
	if err := generate(path); err != nil {
		t.Fatalf("generate() error = %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var fields []struct {
		Name string `json:"name"`
		Mode string `json:"mode"`
	}
	if err := json.Unmarshal(b, &fields); err != nil {
		t.Fatalf("invalid schema: %v", err)
	}
	names := map[string]bool{}
	for _, f := range fields {
		names[f.Name] = true
		if f.Mode == "REQUIRED" {
			t.Errorf("field %s should not be required", f.Name)
		}
	}
	for _, n := range []string{"UUID", "Abandoned", "URL", "TestType", "Attempts", "Error", "Record"} {
		if !names[n] {
			t.Errorf("schema is missing %s", n)
		}
	}

	if err := generate(filepath.Join(t.TempDir(), "missing", "esmond.json")); err == nil {
		t.Errorf("generate() should fail when the file cannot be written")
	}
}
