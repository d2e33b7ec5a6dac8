package caddyfile

import (
	"fmt"
	"strings"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

const diagnosticSource = "bridgels.caddyfile"

// checker validates a parsed document. It carries the snippet registry so
// import references can be resolved within the buffer.
type checker struct {
	snippets map[string]bool
	diags    []protocol.Diagnostic
}

// checkDocument runs every validation over doc: structural problems from the
// scanner, directive placement, import references, and placeholder syntax.
func checkDocument(doc *document) []protocol.Diagnostic {
	c := &checker{snippets: doc.snippetNames()}
	c.diags = append(c.diags, doc.problems...)

	for _, top := range doc.top {
		switch {
		case top.isGlobal():
			for _, opt := range top.child {
				c.checkGlobalOption(opt)
			}
		case top.isSnippet():
			for _, e := range top.child {
				c.checkSiteEntry(e, true)
			}
		case top.opens:
			c.checkPlaceholders(top.words)
			for _, e := range top.child {
				c.checkSiteEntry(e, false)
			}
		default:
			// A blockless top-level line is a single-directive site
			// shorthand or an address list; only its placeholders are
			// checkable.
			c.checkPlaceholders(top.words)
		}
	}
	return c.diags
}

func (c *checker) warn(at span, format string, args ...any) {
	sev := protocol.DiagnosticSeverityWarning
	src := diagnosticSource
	c.diags = append(c.diags, protocol.Diagnostic{
		Range:    at.rng(),
		Severity: &sev,
		Source:   &src,
		Message:  fmt.Sprintf(format, args...),
	})
}

func (c *checker) checkGlobalOption(e *entry) {
	if len(e.words) == 0 {
		return // anonymous nested block
	}
	c.checkPlaceholders(e.words)
	name := e.name()
	if strings.HasPrefix(name, "@") {
		return
	}
	if !globalOptions[name] {
		c.warn(e.words[0].span, "unknown global option %q", name)
		return
	}
	if name == "import" {
		c.checkImport(e)
	}
}

// checkSiteEntry validates one directive at site level. lenient is set
// inside snippet bodies, where a subdirective token may be legitimate
// because the snippet can be imported under its parent.
func (c *checker) checkSiteEntry(e *entry, lenient bool) {
	if len(e.words) == 0 {
		return // anonymous nested block
	}
	c.checkPlaceholders(e.words)
	name := e.name()

	switch {
	case strings.HasPrefix(name, "@"):
		// Named matchers are valid anywhere in a site block.
		return
	case name == "import":
		c.checkImport(e)
		return
	case siteDirectives[name]:
	case lenient && parentOf[name] != "":
		// Inside a snippet the eventual import site is unknown; accept
		// tokens that belong to some documented parent.
	default:
		if parent := parentOf[name]; parent != "" {
			c.warn(e.words[0].span, "%q belongs inside a %q block, not at the site level", name, parent)
		} else {
			c.warn(e.words[0].span, "unknown directive %q", name)
		}
		// An unrecognized directive's body is not worth second-guessing.
		return
	}

	c.checkBody(e, lenient)
}

// checkBody validates the children of a recognized directive.
func (c *checker) checkBody(e *entry, lenient bool) {
	if len(e.child) == 0 {
		return
	}
	name := e.name()

	if containerDirectives[name] {
		for _, sub := range e.child {
			c.checkSiteEntry(sub, lenient)
		}
		return
	}

	allowed := subsOf[name]
	if freeformDirectives[name] || allowed == nil {
		// User-defined body shape, or no documented subdirective set:
		// placeholders are still worth checking.
		for _, sub := range e.child {
			c.walkPlaceholders(sub)
		}
		return
	}

	for _, sub := range e.child {
		if len(sub.words) == 0 {
			continue
		}
		c.checkPlaceholders(sub.words)
		subName := sub.name()
		switch {
		case strings.HasPrefix(subName, "@"):
		case subName == "import":
			c.checkImport(sub)
		case allowed[subName]:
			// Deeper levels (e.g. transport bodies) are intentionally not
			// validated; their schemas are transport-module-specific.
			for _, nested := range sub.child {
				c.walkPlaceholders(nested)
			}
		default:
			c.warn(sub.words[0].span, "unknown subdirective %q for %q", subName, name)
		}
	}
}

// checkImport validates a snippet reference. File paths, globs, and runtime
// placeholders cannot be resolved statically and pass through.
func (c *checker) checkImport(e *entry) {
	args := e.args()
	if len(args) == 0 {
		return
	}
	ref := args[0].text
	if isPathLike(ref) || isPlaceholder(ref) {
		return
	}
	if !c.snippets[ref] {
		c.warn(args[0].span, "undefined snippet %q", ref)
	}
}

func isPathLike(arg string) bool {
	return strings.ContainsAny(arg, `/\*`) || strings.HasPrefix(arg, ".")
}

func isPlaceholder(arg string) bool {
	return strings.HasPrefix(arg, "{") && strings.HasSuffix(arg, "}")
}

// walkPlaceholders descends a subtree running only the placeholder check.
func (c *checker) walkPlaceholders(e *entry) {
	c.checkPlaceholders(e.words)
	for _, sub := range e.child {
		c.walkPlaceholders(sub)
	}
}

// checkPlaceholders reports unbalanced placeholder braces in each word.
// Braces escaped as \{ or \} are literal text.
func (c *checker) checkPlaceholders(words []word) {
	for _, w := range words {
		msg := placeholderFault(w.text)
		if msg == "" {
			continue
		}
		sev := protocol.DiagnosticSeverityError
		src := diagnosticSource
		c.diags = append(c.diags, protocol.Diagnostic{
			Range:    w.rng(),
			Severity: &sev,
			Source:   &src,
			Message:  msg,
		})
	}
}

// placeholderFault returns a description of the first brace-pairing fault in
// text, or "" when every '{' has its '}'.
func placeholderFault(text string) string {
	depth := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '\\':
			if i+1 < len(text) && (text[i+1] == '{' || text[i+1] == '}') {
				i++
			}
		case '{':
			depth++
		case '}':
			if depth == 0 {
				return "unmatched '}' outside any placeholder"
			}
			depth--
		}
	}
	if depth > 0 {
		return "unclosed placeholder: missing '}'"
	}
	return ""
}
