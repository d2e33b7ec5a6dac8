package downstream

import (
	"fmt"
	"os"
	"path/filepath"

	"go.lsp.dev/uri"

	"github.com/bridgels/bridgels/internal/config"
	"github.com/bridgels/bridgels/internal/vuri"
)

// Workspace is the temporary directory a downstream server is rooted in. It
// exists for the lifetime of one connection and is removed on shutdown.
type Workspace struct {
	Dir string
}

// projectSkeleton lists the files a minimal buildable project needs for one
// language. Languages without an entry fall back to the flat layout.
var projectSkeleton = map[string][]skeletonFile{
	"go": {
		{"go.mod", "module scratch\n\ngo 1.22\n"},
		{"main.go", "package main\n\nfunc main() {}\n"},
	},
	"rust": {
		{"Cargo.toml", "[package]\nname = \"scratch\"\nversion = \"0.1.0\"\nedition = \"2021\"\n"},
		{filepath.Join("src", "main.rs"), "fn main() {}\n"},
	},
	"python": {
		{"pyproject.toml", "[project]\nname = \"scratch\"\nversion = \"0.1.0\"\n"},
		{"main.py", ""},
	},
	"typescript": {
		{"package.json", "{\n  \"name\": \"scratch\",\n  \"version\": \"0.1.0\"\n}\n"},
		{"tsconfig.json", "{\n  \"compilerOptions\": {\n    \"strict\": true\n  }\n}\n"},
		{"main.ts", ""},
	},
}

type skeletonFile struct {
	path    string
	content string
}

// Materialize creates the temporary workspace for one connection, laid out
// per workspaceType. The flat layout is a directory with one empty file per
// supported language, named by the language's canonical extension; the
// minimal-project layout writes a tiny buildable skeleton for the first
// language that has one.
func Materialize(serverName, workspaceType string, languages []string) (*Workspace, error) {
	dir, err := os.MkdirTemp("", "bridgels-"+serverName+"-")
	if err != nil {
		return nil, err
	}
	ws := &Workspace{Dir: dir}

	switch workspaceType {
	case config.WorkspaceMinimalProject:
		if err := ws.writeSkeleton(languages); err != nil {
			ws.Remove()
			return nil, err
		}
	case config.WorkspaceFlat, "":
		if err := ws.writeFlat(languages); err != nil {
			ws.Remove()
			return nil, err
		}
	default:
		ws.Remove()
		return nil, fmt.Errorf("unknown workspace type %q", workspaceType)
	}
	return ws, nil
}

func (w *Workspace) writeFlat(languages []string) error {
	for _, lang := range languages {
		name := "virtual." + vuri.Extension(lang)
		if err := os.WriteFile(filepath.Join(w.Dir, name), nil, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func (w *Workspace) writeSkeleton(languages []string) error {
	for _, lang := range languages {
		files, ok := projectSkeleton[lang]
		if !ok {
			continue
		}
		for _, f := range files {
			path := filepath.Join(w.Dir, f.path)
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(path, []byte(f.content), 0o644); err != nil {
				return err
			}
		}
		return nil
	}
	// No skeleton known for any supported language; flat is still a
	// workable root for most servers.
	return w.writeFlat(languages)
}

// RootURI is the file URI the downstream server is told is its root.
func (w *Workspace) RootURI() uri.URI {
	return uri.File(w.Dir)
}

// Remove deletes the workspace directory. Best-effort.
func (w *Workspace) Remove() {
	if w.Dir != "" {
		os.RemoveAll(w.Dir)
	}
}
