// Package hostlang defines the seam for in-process language intelligence:
// languages that are served locally, from the document text alone, instead
// of being bridged to a spawned downstream server. A registry instance
// decides, per injection language, whether a request is answered here or
// forwarded.
package hostlang

import (
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// LocalLanguageServer answers requests for one language over a plain text
// buffer. Positions are relative to the buffer handed in, which for an
// injection region is the region's virtual content.
type LocalLanguageServer interface {
	// Language is the language id this server handles.
	Language() string

	// Hover returns documentation for the symbol at pos, or nil.
	Hover(content string, pos protocol.Position) *protocol.Hover

	// Completion returns completion candidates at pos.
	Completion(content string, pos protocol.Position) []protocol.CompletionItem

	// Diagnose analyzes content and returns its diagnostics.
	Diagnose(content string) []protocol.Diagnostic
}

// Registry maps language ids to their local servers.
type Registry struct {
	servers map[string]LocalLanguageServer
}

// NewRegistry builds a Registry over the given servers.
func NewRegistry(servers ...LocalLanguageServer) *Registry {
	r := &Registry{servers: make(map[string]LocalLanguageServer, len(servers))}
	for _, s := range servers {
		r.servers[s.Language()] = s
	}
	return r
}

// For returns the local server for language, if one is registered.
func (r *Registry) For(language string) (LocalLanguageServer, bool) {
	s, ok := r.servers[language]
	return s, ok
}
