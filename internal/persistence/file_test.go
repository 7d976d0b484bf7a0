package persistence_test

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/m-lab/esmond-archiver/internal/persistence"
)

// A struct that can be marshalled to JSON.
type MarshallableStruct struct {
	Test string
}

func TestWriteDataFile(t *testing.T) {
	dir := t.TempDir()
	testdata := MarshallableStruct{Test: "foo"}
	df, err := persistence.WriteDataFile(dir, "type", "subtest", "fake-uuid", testdata)
	if err != nil {
		t.Fatalf("cannot create test datafile: %v", err)
	}

	if df.Prefix != dir || df.Datatype != "type" ||
		df.Subtest != "subtest" || df.UUID != "fake-uuid" {
		t.Fatalf("invalid field values in DataFile")
	}

	// Check the generated path.
	prefix := fmt.Sprintf("%s/type/%s/type-subtest-", dir, time.Now().UTC().Format("2006/01/02"))
	if !strings.HasPrefix(df.Path, prefix) ||
		!strings.HasSuffix(df.Path, "fake-uuid.json.gz") {
		t.Errorf("invalid output path: %s", df.Path)
	}
	// Check the file contents.
	fp, err := os.Open(df.Path)
	if err != nil {
		t.Fatalf("cannot open datafile: %v", err)
	}
	defer fp.Close()
	gz, err := gzip.NewReader(fp)
	if err != nil {
		t.Fatalf("datafile is not gzipped: %v", err)
	}
	content, err := io.ReadAll(gz)
	if err != nil {
		t.Errorf("error while reading file content: %v", err)
	}
	if string(content) != `{"Test":"foo"}` {
		t.Errorf("unexpected file content: %s", string(content))
	}
	if df.Size != len(content) {
		t.Errorf("invalid Size: %d (should be %d)", df.Size, len(content))
	}
}

func TestValidName(t *testing.T) {
	for name, want := range map[string]bool{
		"throughput": true,
		"latency_bg": true,
		"3c8b-11ef":  true,
		"":           false,
		"../x":       false,
		"a/b":        false,
		`a\b`:        false,
		"a b":        false,
	} {
		if got := persistence.ValidName(name); got != want {
			t.Errorf("ValidName(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestWriteDataFile_errors(t *testing.T) {
	if _, err := persistence.WriteDataFile(t.TempDir(), "type", "subtest", "uuid",
		func() {}); err == nil {
		t.Errorf("WriteDataFile() should fail on values that cannot be marshalled")
	}

	for _, name := range []string{"", "x/../../escaped", "..", `a\b`, "a.b"} {
		dir := t.TempDir()
		if _, err := persistence.WriteDataFile(dir, "type", name, "uuid",
			MarshallableStruct{}); err == nil {
			t.Errorf("WriteDataFile() should reject subtest %q", name)
		}
		if _, err := persistence.WriteDataFile(dir, name, "subtest", "uuid",
			MarshallableStruct{}); err == nil {
			t.Errorf("WriteDataFile() should reject datatype %q", name)
		}
		if _, err := os.Stat(filepath.Join(dir, "type")); !os.IsNotExist(err) {
			t.Errorf("WriteDataFile() created directories for an invalid name")
		}
	}

	// A regular file where the directory should be.
	dir := t.TempDir()
	if err := os.WriteFile(dir+"/type", nil, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := persistence.WriteDataFile(dir, "type", "subtest", "uuid",
		MarshallableStruct{}); err == nil {
		t.Errorf("WriteDataFile() should fail when the directory cannot be created")
	}
}
