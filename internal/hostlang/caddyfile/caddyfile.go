// Package caddyfile is the in-process language server for Caddyfile
// content: directive documentation on hover, directive and snippet
// completion, and structural plus placement diagnostics. It serves
// Caddyfile injection regions locally, with no downstream process, working
// directly on the region's virtual content (where surrounding host bytes
// are blanked to whitespace).
package caddyfile

import (
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// Server implements hostlang.LocalLanguageServer for Caddyfile buffers.
type Server struct{}

// New returns the Caddyfile server.
func New() *Server { return &Server{} }

// Language returns the language id served here.
func (*Server) Language() string { return "caddyfile" }

// Hover returns directive documentation for the word under pos, with the
// word's own range so the client can highlight it.
func (*Server) Hover(content string, pos protocol.Position) *protocol.Hover {
	w, ok := wordSpanAt(content, pos)
	if !ok {
		return nil
	}
	doc, found := lookupDirectiveDoc(w.text)
	if !found {
		return nil
	}
	r := w.rng()
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: doc,
		},
		Range: &r,
	}
}

// Completion returns directive or snippet candidates at pos.
func (*Server) Completion(content string, pos protocol.Position) []protocol.CompletionItem {
	return completionItems(content, pos)
}

// Diagnose scans and validates content, returning structural faults,
// placement warnings, import-reference checks, and placeholder errors.
func (*Server) Diagnose(content string) []protocol.Diagnostic {
	return checkDocument(parseDocument(content))
}
