package caddyfile

import (
	"strings"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

// completionItems computes completion candidates for a cursor position:
// snippet names in the argument slot of an import line, and site-level
// directive names when the cursor is typing the first word of a line whose
// enclosing blocks put it at directive level.
func completionItems(content string, pos protocol.Position) []protocol.CompletionItem {
	empty := []protocol.CompletionItem{}
	lines := strings.Split(content, "\n")
	if int(pos.Line) >= len(lines) {
		return empty
	}
	line := lines[pos.Line]
	doc := parseDocument(content)

	if partial, ok := importArgAt(line, pos); ok {
		return snippetItems(doc, partial)
	}

	if !typingFirstWord(line, pos) {
		return empty
	}
	if !atDirectiveLevel(doc, pos.Line) {
		return empty
	}

	kind := protocol.CompletionItemKindKeyword
	names := siteDirectiveNames()
	items := make([]protocol.CompletionItem, 0, len(names))
	for _, name := range names {
		n := name
		items = append(items, protocol.CompletionItem{Label: n, Kind: &kind})
	}
	return items
}

// importArgAt reports whether the cursor sits in the first-argument slot of
// an import line and returns the partial snippet name typed so far.
func importArgAt(line string, pos protocol.Position) (string, bool) {
	words := scanWords(line, pos.Line)
	if len(words) == 0 || words[0].text != "import" {
		return "", false
	}
	if pos.Character <= words[0].endCol {
		return "", false // still on the keyword itself
	}
	if len(words) == 1 {
		return "", true
	}
	arg := words[1]
	if pos.Character > arg.endCol {
		return "", false // past the first argument
	}
	return arg.text, true
}

func snippetItems(doc *document, partial string) []protocol.CompletionItem {
	kind := protocol.CompletionItemKindModule
	items := []protocol.CompletionItem{}
	for name := range doc.snippetNames() {
		if strings.HasPrefix(name, partial) {
			n := name
			items = append(items, protocol.CompletionItem{Label: n, Kind: &kind})
		}
	}
	return items
}

// typingFirstWord reports whether the cursor is still within (or about to
// start) the first word of line, i.e. a directive name position rather than
// an argument position.
func typingFirstWord(line string, pos protocol.Position) bool {
	words := scanWords(line, pos.Line)
	if len(words) == 0 {
		return true // blank or comment-only line
	}
	return pos.Character <= words[0].endCol
}

// atDirectiveLevel reports whether line sits where a site-level directive is
// expected: directly inside a site block or snippet, or nested only through
// container directives.
func atDirectiveLevel(doc *document, line uint32) bool {
	for _, top := range doc.top {
		if !top.containsLine(line) || top.isGlobal() {
			continue
		}
		return directiveLevelWithin(top, line)
	}
	return false
}

func directiveLevelWithin(e *entry, line uint32) bool {
	for _, sub := range e.child {
		if !sub.containsLine(line) {
			continue
		}
		if containerDirectives[sub.name()] {
			return directiveLevelWithin(sub, line)
		}
		return false
	}
	return true
}
