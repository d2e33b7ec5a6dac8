// docgen regenerates internal/hostlang/caddyfile/docs_gen.go: directive
// documentation harvested from a Caddy source checkout's doc comments.
//
// The generated table is a supplement, not a replacement: the caddyfile
// plugin derives its placement rules from the curated tables' "*(parent)*"
// markers, which harvested docs do not carry, so generated entries are only
// consulted when the curated tables have no answer (see lookupDirectiveDoc).
//
// Two comment conventions in Caddy carry directive syntax:
//   - doc comments on functions registered via RegisterDirective /
//     RegisterHandlerDirective, keyed by the registration's name literal;
//   - doc comments on UnmarshalCaddyfile methods, keyed by the first word
//     of the comment's code example.
//
// Only comments containing a tab-indented code example (the Go doc code
// block convention) are kept.
//
// Run via go generate from the project root:
//
//	go generate ./internal/hostlang/caddyfile/
package main

import (
	"bytes"
	"flag"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

func main() {
	var (
		caddyDir string
		outPath  string
	)
	flag.StringVar(&caddyDir, "caddy-dir", "", "path to a Caddy source checkout (required)")
	flag.StringVar(&outPath, "out", "docs_gen.go", "output file, relative to the invoking package")
	flag.Parse()

	if caddyDir == "" {
		log.Fatal("docgen: -caddy-dir is required (Caddy is not a dependency of this module)")
	}

	x := newExtractor()
	if err := x.walk(caddyDir); err != nil {
		log.Fatalf("extract docs: %v", err)
	}
	if err := os.WriteFile(outPath, x.render(), 0o644); err != nil {
		log.Fatalf("write %s: %v", outPath, err)
	}
	fmt.Fprintf(os.Stderr, "generated docs for %d directives\n", len(x.docs))
}

// extractor accumulates directive name -> Markdown while walking a source
// tree. First sighting of a name wins.
type extractor struct {
	fset *token.FileSet
	docs map[string]string
}

func newExtractor() *extractor {
	return &extractor{fset: token.NewFileSet(), docs: make(map[string]string)}
}

func (x *extractor) walk(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if name := info.Name(); name == "vendor" || name == "testdata" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		f, err := parser.ParseFile(x.fset, path, nil, parser.ParseComments)
		if err != nil {
			return nil // skip unparseable files
		}
		x.fromRegistrations(f)
		x.fromUnmarshalers(f)
		return nil
	})
}

func (x *extractor) record(name, md string) {
	if _, exists := x.docs[name]; !exists {
		x.docs[name] = md
	}
}

// fromRegistrations handles RegisterDirective("name", handlerFunc) calls:
// the name comes from the string literal and the doc from the handler
// function's comment in the same file.
func (x *extractor) fromRegistrations(f *ast.File) {
	funcDocs := make(map[string]string)
	for _, decl := range f.Decls {
		if fn, ok := decl.(*ast.FuncDecl); ok && fn.Recv == nil && fn.Doc != nil {
			funcDocs[fn.Name.Name] = fn.Doc.Text()
		}
	}

	ast.Inspect(f, func(n ast.Node) bool {
		call, ok := n.(*ast.CallExpr)
		if !ok || len(call.Args) < 2 {
			return true
		}
		if name := calleeName(call.Fun); name != "RegisterDirective" && name != "RegisterHandlerDirective" {
			return true
		}
		lit, ok := call.Args[0].(*ast.BasicLit)
		if !ok {
			return true
		}
		directive := strings.Trim(lit.Value, `"`)
		handler, ok := call.Args[1].(*ast.Ident)
		if !ok || !isDirectiveName(directive) {
			return true
		}
		if doc, found := funcDocs[handler.Name]; found {
			if lines := docLines(doc); hasCodeExample(lines) {
				x.record(directive, renderMarkdown(lines))
			}
		}
		return true
	})
}

// fromUnmarshalers handles UnmarshalCaddyfile methods, whose doc comment's
// code example leads with the directive name.
func (x *extractor) fromUnmarshalers(f *ast.File) {
	for _, decl := range f.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Name.Name != "UnmarshalCaddyfile" || fn.Doc == nil {
			continue
		}
		lines := docLines(fn.Doc.Text())
		name := exampleLeadWord(lines)
		if name == "" {
			continue
		}
		x.record(name, renderMarkdown(lines))
	}
}

// render produces the generated file: an init hook filling generatedDocs,
// so the curated tables always stay authoritative.
func (x *extractor) render() []byte {
	names := make([]string, 0, len(x.docs))
	for name := range x.docs {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	buf.WriteString("// Code generated by cmd/docgen. DO NOT EDIT.\n\n")
	buf.WriteString("package caddyfile\n\n")
	buf.WriteString("func init() {\n")
	buf.WriteString("\tgeneratedDocs = map[string]string{\n")
	for _, name := range names {
		fmt.Fprintf(&buf, "\t\t%q: %q,\n", name, x.docs[name])
	}
	buf.WriteString("\t}\n")
	buf.WriteString("}\n")
	return buf.Bytes()
}

// calleeName returns the called function's bare name, for both plain
// identifiers and selector expressions like httpcaddyfile.RegisterDirective.
func calleeName(expr ast.Expr) string {
	switch e := expr.(type) {
	case *ast.Ident:
		return e.Name
	case *ast.SelectorExpr:
		return e.Sel.Name
	}
	return ""
}

// exampleLeadWord returns the first word of the first code-example line that
// looks like a directive name.
func exampleLeadWord(lines []string) string {
	for _, line := range lines {
		if !strings.HasPrefix(line, "\t") {
			continue
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if fields := strings.Fields(trimmed); len(fields) > 0 && isDirectiveName(fields[0]) {
			return fields[0]
		}
	}
	return ""
}

func hasCodeExample(lines []string) bool {
	for _, line := range lines {
		if strings.HasPrefix(line, "\t") {
			return true
		}
	}
	return false
}

// renderMarkdown converts doc-comment lines to Markdown, fencing the
// tab-indented code example. Prose before the first code line is dropped;
// it describes the Go implementation, not the directive.
func renderMarkdown(lines []string) string {
	for i, line := range lines {
		if strings.HasPrefix(line, "\t") {
			lines = lines[i:]
			break
		}
	}

	var out strings.Builder
	inCode := false
	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "\t"):
			if !inCode {
				out.WriteString("```\n")
				inCode = true
			}
			out.WriteString(strings.TrimPrefix(line, "\t") + "\n")
		case line == "" && inCode:
			// A blank comment line inside the example keeps the block open.
			out.WriteString("\n")
		default:
			if inCode {
				out.WriteString("```\n")
				inCode = false
			}
			out.WriteString(line + "\n")
		}
	}
	if inCode {
		out.WriteString("```\n")
	}
	return strings.TrimSpace(out.String())
}

// isDirectiveName reports whether s is shaped like a Caddyfile directive
// name: a lowercase letter followed by lowercase letters, digits,
// underscores, or hyphens.
func isDirectiveName(s string) bool {
	if len(s) == 0 || s[0] < 'a' || s[0] > 'z' {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
}

func docLines(docText string) []string {
	return strings.Split(strings.TrimRight(docText, "\n"), "\n")
}
