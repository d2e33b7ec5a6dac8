package caddyfile

import (
	"strings"
	"unicode"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

// The scanner here is line-oriented rather than token-stream-based: a
// Caddyfile region arrives as virtual content whose surrounding host bytes
// are blanked to whitespace, so whole leading and trailing lines may be
// spaces. Blank lines simply produce no entries and the block structure is
// unaffected by where the region sits in the host document.

// span locates one word within the buffer. Columns are UTF-16 code units,
// ready to be emitted in LSP ranges without conversion.
type span struct {
	line     uint32
	startCol uint32
	endCol   uint32
}

func (s span) rng() protocol.Range {
	return protocol.Range{
		Start: protocol.Position{Line: s.line, Character: s.startCol},
		End:   protocol.Position{Line: s.line, Character: s.endCol},
	}
}

// word is one whitespace-delimited (or quoted) token.
type word struct {
	text string
	span
}

// entry is one logical directive line: a name word, argument words, and,
// when the line ends with an opening brace, the entries nested inside it.
type entry struct {
	words   []word
	opens   bool
	line    uint32
	endLine uint32 // closing-brace line; for unclosed blocks, one past the last line scanned
	child   []*entry
}

func (e *entry) name() string {
	if len(e.words) == 0 {
		return ""
	}
	return e.words[0].text
}

func (e *entry) args() []word {
	if len(e.words) < 2 {
		return nil
	}
	return e.words[1:]
}

// containsLine reports whether line falls strictly inside e's block body.
func (e *entry) containsLine(line uint32) bool {
	return e.opens && e.line < line && line < e.endLine
}

// isGlobal reports whether e is the global options block: a brace block
// opened with no words before it.
func (e *entry) isGlobal() bool {
	return e.opens && len(e.words) == 0
}

// isSnippet reports whether e defines a snippet, e.g. "(common) { ... }".
func (e *entry) isSnippet() bool {
	n := e.name()
	return e.opens && strings.HasPrefix(n, "(") && strings.HasSuffix(n, ")") && len(n) > 2
}

func (e *entry) snippetName() string {
	n := e.name()
	return n[1 : len(n)-1]
}

// document is the parsed shape of one Caddyfile buffer.
type document struct {
	top      []*entry
	problems []protocol.Diagnostic // structural faults found while scanning
}

// snippetNames returns the snippets defined at the top level of the buffer.
func (d *document) snippetNames() map[string]bool {
	names := make(map[string]bool)
	for _, e := range d.top {
		if e.isSnippet() {
			names[e.snippetName()] = true
		}
	}
	return names
}

// parseDocument scans content into nested entries. It never fails: structural
// faults (stray or missing closing braces) are recorded as diagnostics and
// scanning continues so later lines still get analyzed.
func parseDocument(content string) *document {
	doc := &document{}
	var stack []*entry

	lastLine := uint32(0)
	for lineNo, raw := range strings.Split(content, "\n") {
		line := uint32(lineNo)
		lastLine = line
		words := scanWords(raw, line)
		if len(words) == 0 {
			continue
		}

		// A lone closing brace ends the innermost open block.
		if len(words) == 1 && words[0].text == "}" {
			if len(stack) == 0 {
				doc.problems = append(doc.problems, structuralDiag(words[0].span, "closing '}' without an open block"))
				continue
			}
			stack[len(stack)-1].endLine = line
			stack = stack[:len(stack)-1]
			continue
		}

		e := &entry{line: line, endLine: line}
		if last := words[len(words)-1]; last.text == "{" {
			e.opens = true
			words = words[:len(words)-1]
		}
		e.words = words

		if len(stack) == 0 {
			doc.top = append(doc.top, e)
		} else {
			parent := stack[len(stack)-1]
			parent.child = append(parent.child, e)
		}
		if e.opens {
			stack = append(stack, e)
		}
	}

	// Whatever is still open at EOF never saw its closing brace.
	for _, open := range stack {
		open.endLine = lastLine + 1
		at := span{line: open.line, startCol: 0, endCol: 0}
		if len(open.words) > 0 {
			at = open.words[0].span
		}
		doc.problems = append(doc.problems, structuralDiag(at, "block opened here is never closed"))
	}
	return doc
}

func structuralDiag(at span, msg string) protocol.Diagnostic {
	sev := protocol.DiagnosticSeverityError
	src := diagnosticSource
	return protocol.Diagnostic{
		Range:    at.rng(),
		Severity: &sev,
		Source:   &src,
		Message:  msg,
	}
}

// scanWords splits one line into words, tracking UTF-16 columns. Double
// quotes group a word and may contain whitespace and '#'; an unquoted '#'
// starts a comment that swallows the rest of the line. Braces are ordinary
// characters unless they stand alone as a word, which is how placeholders
// like {$UPSTREAM} stay intact while block delimiters are still recognized.
func scanWords(raw string, line uint32) []word {
	var words []word
	col := uint32(0)
	var cur strings.Builder
	curStart := uint32(0)
	inQuote := false

	flush := func(end uint32) {
		if cur.Len() == 0 {
			return
		}
		words = append(words, word{
			text: cur.String(),
			span: span{line: line, startCol: curStart, endCol: end},
		})
		cur.Reset()
	}

	for _, r := range raw {
		width := uint32(1)
		if r > 0xFFFF {
			width = 2
		}
		switch {
		case r == '"':
			if inQuote {
				inQuote = false
				flush(col + width)
			} else if cur.Len() == 0 {
				inQuote = true
				curStart = col
			} else {
				cur.WriteRune(r)
			}
		case inQuote:
			cur.WriteRune(r)
		case r == '#' && cur.Len() == 0:
			return words
		case unicode.IsSpace(r):
			flush(col)
		default:
			if cur.Len() == 0 {
				curStart = col
			}
			cur.WriteRune(r)
		}
		col += width
	}
	flush(col)
	return words
}

// wordSpanAt returns the scanner word under pos, treating a cursor touching
// either edge of a word as inside it. The cursor column is clamped to the
// line's width so "end of line" still selects the trailing word.
func wordSpanAt(content string, pos protocol.Position) (word, bool) {
	lines := strings.Split(content, "\n")
	if int(pos.Line) >= len(lines) {
		return word{}, false
	}
	words := scanWords(lines[pos.Line], pos.Line)
	if len(words) == 0 {
		return word{}, false
	}
	c := pos.Character
	if max := words[len(words)-1].endCol; c > max {
		c = max
	}
	for _, w := range words {
		if w.startCol <= c && c <= w.endCol {
			return w, true
		}
	}
	return word{}, false
}
