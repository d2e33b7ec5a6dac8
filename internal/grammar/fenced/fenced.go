// Package fenced is a small, concrete reference implementation of the
// grammar.Language collaborator: a Markdown-like host language whose only
// syntax of interest is fenced code blocks ("```lang" ... "```"), each of
// which is an injection region in the named language. It exists so the
// Language Layer Store, Injection Resolver, and facade have a real,
// testable grammar to run against.
package fenced

import (
	"strings"

	"github.com/bridgels/bridgels/internal/grammar"
)

// NodeKind is the region kind used for every fence this grammar finds.
const NodeKind = "fenced_code_block"

// Language is the fenced-code-block grammar.Language implementation.
type Language struct{}

// New returns the fenced grammar.
func New() *Language { return &Language{} }

func (*Language) Name() string { return "markdown" }

// tree is the grammar.Tree for one parsed snapshot: just the source text,
// since re-deriving fences is cheap and this grammar makes no claim to
// incremental reparsing beyond honoring the Edit/Parse contract shape.
type tree struct {
	text string
}

func (t *tree) Edit(startByte, oldEndByte, newEndByte uint32) {
	// This grammar always reparses from scratch; Edit only needs to satisfy
	// the grammar.Tree contract so callers that depend on the hint/incremental
	// reparse protocol (as a real tree-sitter binding would) compile unchanged.
}

// Parse scans text for fence markers. oldTree is accepted (and ignored
// beyond the interface contract) since this grammar has no incremental
// reparse to hint.
func (l *Language) Parse(text string, oldTree grammar.Tree) grammar.Tree {
	return &tree{text: text}
}

// Injections returns one InjectionMatch per fenced code block, covering the
// bytes strictly between the opening fence's newline and the closing
// fence's line start (the language tag and fence markers themselves are not
// part of the injection region).
func (l *Language) Injections(t grammar.Tree, text string) []grammar.InjectionMatch {
	ft, ok := t.(*tree)
	if !ok {
		ft = &tree{text: text}
	}
	return findFences(ft.text)
}

func findFences(text string) []grammar.InjectionMatch {
	var matches []grammar.InjectionMatch

	offset := 0
	lines := splitKeepEnds(text)
	i := 0
	for i < len(lines) {
		line := lines[i]
		trimmed := strings.TrimRight(strings.TrimLeft(line, " \t"), "\r\n")
		if lang, ok := fenceOpen(trimmed); ok {
			bodyStart := offset + len(line)
			bodyEnd := bodyStart
			j := i + 1
			closed := false
			for j < len(lines) {
				jTrimmed := strings.TrimRight(strings.TrimLeft(lines[j], " \t"), "\r\n")
				if jTrimmed == "```" {
					closed = true
					break
				}
				bodyEnd += len(lines[j])
				j++
			}
			if closed && bodyEnd > bodyStart {
				matches = append(matches, grammar.InjectionMatch{
					Language: lang,
					NodeKind: NodeKind,
					Range:    grammar.Range{Start: uint32(bodyStart), End: uint32(bodyEnd)},
				})
			}
			if closed {
				offset = bodyEnd + len(lines[j])
				i = j + 1
				continue
			}
			// Unclosed fence: nothing more to scan as an injection region.
			break
		}
		offset += len(line)
		i++
	}
	return matches
}

// fenceOpen reports whether trimmed is a fence-open line with a language tag
// ("```lang") and returns the tag. A fence without a tag reports false, so it
// yields no injection.
func fenceOpen(trimmed string) (string, bool) {
	if !strings.HasPrefix(trimmed, "```") {
		return "", false
	}
	lang := strings.TrimSpace(trimmed[3:])
	if lang == "" {
		return "", false
	}
	return lang, true
}

// splitKeepEnds splits text into lines, each retaining its own line
// terminator (if any), so byte offsets computed by summing line lengths
// match the original text exactly.
func splitKeepEnds(text string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			lines = append(lines, text[start:i+1])
			start = i + 1
		}
	}
	if start < len(text) {
		lines = append(lines, text[start:])
	}
	return lines
}
