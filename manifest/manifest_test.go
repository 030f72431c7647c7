package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "weft.toml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "demo"

[trace]
parser = true
validate = false
reducer = true

[bytecode]
buffer-size = 131072

[store]
path = "/tmp/custom.db"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Project.Name != "demo" {
		t.Errorf("Name = %q", m.Project.Name)
	}
	if !m.Trace.Parser || m.Trace.Validate || !m.Trace.Reducer {
		t.Errorf("Trace = %+v", m.Trace)
	}
	if m.Bytecode.BufferSize != 131072 {
		t.Errorf("BufferSize = %d", m.Bytecode.BufferSize)
	}
	if m.Store.Path != "/tmp/custom.db" {
		t.Errorf("Store.Path = %q", m.Store.Path)
	}
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "defaults"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Bytecode.BufferSize != 64*1024 {
		t.Errorf("default BufferSize = %d", m.Bytecode.BufferSize)
	}
	want := filepath.Join(m.Dir, ".weft", "bundles.db")
	if m.Store.Path != want {
		t.Errorf("default Store.Path = %q, want %q", m.Store.Path, want)
	}
}

func TestFindAndLoadWalksUp(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "[project]\nname = \"above\"\n")
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}

	m, err := FindAndLoad(nested)
	if err != nil {
		t.Fatalf("FindAndLoad: %v", err)
	}
	if m == nil || m.Project.Name != "above" {
		t.Errorf("m = %+v, want project above", m)
	}
}

func TestFindAndLoadMissing(t *testing.T) {
	m, err := FindAndLoad(t.TempDir())
	if err != nil {
		t.Fatalf("FindAndLoad: %v", err)
	}
	if m != nil {
		t.Errorf("m = %+v, want nil when no manifest exists", m)
	}
}

func TestLoadBadToml(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "not [ valid toml")
	if _, err := Load(dir); err == nil {
		t.Error("Load accepted invalid TOML")
	}
}
