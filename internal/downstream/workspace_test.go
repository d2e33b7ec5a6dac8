package downstream

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bridgels/bridgels/internal/config"
)

func TestMaterializeFlat(t *testing.T) {
	ws, err := Materialize("lua-ls", config.WorkspaceFlat, []string{"lua", "python"})
	if err != nil {
		t.Fatal(err)
	}
	defer ws.Remove()

	for _, name := range []string{"virtual.lua", "virtual.py"} {
		if _, err := os.Stat(filepath.Join(ws.Dir, name)); err != nil {
			t.Errorf("flat workspace missing %s: %v", name, err)
		}
	}
	if !strings.HasPrefix(string(ws.RootURI()), "file://") {
		t.Errorf("root URI %q is not a file URI", ws.RootURI())
	}
}

func TestMaterializeMinimalProject(t *testing.T) {
	ws, err := Materialize("gopls", config.WorkspaceMinimalProject, []string{"go"})
	if err != nil {
		t.Fatal(err)
	}
	defer ws.Remove()

	data, err := os.ReadFile(filepath.Join(ws.Dir, "go.mod"))
	if err != nil {
		t.Fatalf("minimal go project missing go.mod: %v", err)
	}
	if !strings.Contains(string(data), "module") {
		t.Errorf("go.mod content looks wrong: %q", data)
	}
	if _, err := os.Stat(filepath.Join(ws.Dir, "main.go")); err != nil {
		t.Errorf("minimal go project missing main.go: %v", err)
	}
}

func TestMaterializeMinimalProjectFallsBackToFlat(t *testing.T) {
	ws, err := Materialize("x", config.WorkspaceMinimalProject, []string{"lua"})
	if err != nil {
		t.Fatal(err)
	}
	defer ws.Remove()

	if _, err := os.Stat(filepath.Join(ws.Dir, "virtual.lua")); err != nil {
		t.Errorf("fallback flat file missing: %v", err)
	}
}

func TestRemoveDeletesDirectory(t *testing.T) {
	ws, err := Materialize("y", config.WorkspaceFlat, nil)
	if err != nil {
		t.Fatal(err)
	}
	ws.Remove()
	if _, err := os.Stat(ws.Dir); !os.IsNotExist(err) {
		t.Errorf("workspace directory still present after Remove")
	}
}
