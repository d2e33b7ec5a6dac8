package handler

import (
	"context"
	"encoding/json"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

const version = "0.1.0"

// initialize answers the upstream initialize request with this server's
// capabilities.
func (h *Handler) initialize(params json.RawMessage) (any, error) {
	var p protocol.InitializeParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
	}
	return initializeResult{
		Capabilities: h.capabilities(),
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    "bridgels",
			Version: strPtr(version),
		},
	}, nil
}

// serverCapabilities extends the 3.16 capability set with the pull
// diagnostics provider, which the upstream protocol package predates.
type serverCapabilities struct {
	protocol.ServerCapabilities
	DiagnosticProvider any `json:"diagnosticProvider,omitempty"`
}

type initializeResult struct {
	Capabilities serverCapabilities                   `json:"capabilities"`
	ServerInfo   *protocol.InitializeResultServerInfo `json:"serverInfo,omitempty"`
}

func (h *Handler) capabilities() serverCapabilities {
	syncKind := protocol.TextDocumentSyncKindIncremental
	triggerChars := []string{".", ":", "/"}

	base := protocol.ServerCapabilities{
		TextDocumentSync: &protocol.TextDocumentSyncOptions{
			OpenClose: boolPtr(true),
			Change:    &syncKind,
			Save:      &protocol.SaveOptions{IncludeText: boolPtr(true)},
		},
		HoverProvider: true,
		CompletionProvider: &protocol.CompletionOptions{
			TriggerCharacters: triggerChars,
		},
		SignatureHelpProvider:      &protocol.SignatureHelpOptions{TriggerCharacters: []string{"(", ","}},
		DefinitionProvider:         true,
		DeclarationProvider:        true,
		TypeDefinitionProvider:     true,
		ImplementationProvider:     true,
		ReferencesProvider:         true,
		DocumentHighlightProvider:  true,
		DocumentSymbolProvider:     true,
		DocumentLinkProvider:       &protocol.DocumentLinkOptions{},
		ColorProvider:              true,
		RenameProvider:             true,
		MonikerProvider:            true,
	}
	return serverCapabilities{
		ServerCapabilities: base,
		DiagnosticProvider: map[string]any{
			"interFileDependencies": false,
			"workspaceDiagnostics":  false,
		},
	}
}

// shutdownRequested tears down the process-wide services: all downstream
// connections and their workspaces go away; the tracker and store are
// dropped with the process.
func (h *Handler) shutdownRequested(ctx context.Context) error {
	h.pool.ShutdownAll(ctx)
	return nil
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }
