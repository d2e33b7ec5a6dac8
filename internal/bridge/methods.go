package bridge

import (
	"context"

	protocol "github.com/tliron/glsp/protocol_3_16"
	dsprotocol "go.lsp.dev/protocol"

	"github.com/bridgels/bridgels/internal/downstream"
)

// Each handler here is a thin adapter: it supplies the request-building and
// response-transforming closures for one LSP method and lets execute drive
// the lifecycle.

const methodTextDocumentDiagnostic = "textDocument/diagnostic"

func positionParams(virtualURI string, pos protocol.Position, startLine uint32) dsprotocol.TextDocumentPositionParams {
	return dsprotocol.TextDocumentPositionParams{
		TextDocument: dsprotocol.TextDocumentIdentifier{URI: dsprotocol.DocumentURI(virtualURI)},
		Position:     DownstreamPosition(ToVirtualPosition(pos, startLine)),
	}
}

// Hover forwards textDocument/hover into the region.
func Hover(ctx context.Context, pool *downstream.Pool, t Target, pos protocol.Position) (*protocol.Hover, error) {
	result, err := execute(ctx, pool, request{
		target: t,
		method: dsprotocol.MethodTextDocumentHover,
		buildParams: func(virtualURI string) (any, error) {
			return dsprotocol.HoverParams{
				TextDocumentPositionParams: positionParams(virtualURI, pos, t.Region.RegionStartLine),
			}, nil
		},
		transform: transformHover,
	})
	if err != nil || result == nil {
		return nil, err
	}
	return result.(*protocol.Hover), nil
}

// Completion forwards textDocument/completion into the region.
func Completion(ctx context.Context, pool *downstream.Pool, t Target, pos protocol.Position) (any, error) {
	return execute(ctx, pool, request{
		target: t,
		method: dsprotocol.MethodTextDocumentCompletion,
		buildParams: func(virtualURI string) (any, error) {
			return dsprotocol.CompletionParams{
				TextDocumentPositionParams: positionParams(virtualURI, pos, t.Region.RegionStartLine),
			}, nil
		},
		transform: transformCompletions,
	})
}

// SignatureHelp forwards textDocument/signatureHelp into the region.
func SignatureHelp(ctx context.Context, pool *downstream.Pool, t Target, pos protocol.Position) (*protocol.SignatureHelp, error) {
	result, err := execute(ctx, pool, request{
		target: t,
		method: dsprotocol.MethodTextDocumentSignatureHelp,
		buildParams: func(virtualURI string) (any, error) {
			return dsprotocol.SignatureHelpParams{
				TextDocumentPositionParams: positionParams(virtualURI, pos, t.Region.RegionStartLine),
			}, nil
		},
		transform: transformSignatureHelp,
	})
	if err != nil || result == nil {
		return nil, err
	}
	return result.(*protocol.SignatureHelp), nil
}

// Goto drives the goto family: definition, declaration, type definition, and
// implementation share the position contract and the response shape.
func Goto(ctx context.Context, pool *downstream.Pool, t Target, method string, pos protocol.Position) (any, error) {
	return execute(ctx, pool, request{
		target: t,
		method: method,
		buildParams: func(virtualURI string) (any, error) {
			return dsprotocol.TextDocumentPositionParams{
				TextDocument: dsprotocol.TextDocumentIdentifier{URI: dsprotocol.DocumentURI(virtualURI)},
				Position:     DownstreamPosition(ToVirtualPosition(pos, t.Region.RegionStartLine)),
			}, nil
		},
		transform: transformGoto,
	})
}

// References forwards textDocument/references, carrying includeDeclaration
// verbatim.
func References(ctx context.Context, pool *downstream.Pool, t Target, pos protocol.Position, includeDeclaration bool) ([]protocol.Location, error) {
	result, err := execute(ctx, pool, request{
		target: t,
		method: dsprotocol.MethodTextDocumentReferences,
		buildParams: func(virtualURI string) (any, error) {
			return dsprotocol.ReferenceParams{
				TextDocumentPositionParams: positionParams(virtualURI, pos, t.Region.RegionStartLine),
				Context:                    dsprotocol.ReferenceContext{IncludeDeclaration: includeDeclaration},
			}, nil
		},
		transform: transformLocations,
	})
	if err != nil || result == nil {
		return nil, err
	}
	return result.([]protocol.Location), nil
}

// DocumentHighlight forwards textDocument/documentHighlight into the region.
func DocumentHighlight(ctx context.Context, pool *downstream.Pool, t Target, pos protocol.Position) (any, error) {
	return execute(ctx, pool, request{
		target: t,
		method: dsprotocol.MethodTextDocumentDocumentHighlight,
		buildParams: func(virtualURI string) (any, error) {
			return dsprotocol.DocumentHighlightParams{
				TextDocumentPositionParams: positionParams(virtualURI, pos, t.Region.RegionStartLine),
			}, nil
		},
		transform: transformDocumentHighlights,
	})
}

// Rename forwards textDocument/rename, carrying newName verbatim.
func Rename(ctx context.Context, pool *downstream.Pool, t Target, pos protocol.Position, newName string) (*protocol.WorkspaceEdit, error) {
	result, err := execute(ctx, pool, request{
		target: t,
		method: dsprotocol.MethodTextDocumentRename,
		buildParams: func(virtualURI string) (any, error) {
			return dsprotocol.RenameParams{
				TextDocumentPositionParams: positionParams(virtualURI, pos, t.Region.RegionStartLine),
				NewName:                    newName,
			}, nil
		},
		transform: transformWorkspaceEdit,
	})
	if err != nil || result == nil {
		return nil, err
	}
	return result.(*protocol.WorkspaceEdit), nil
}

// Moniker forwards textDocument/moniker; the response carries no
// coordinates.
func Moniker(ctx context.Context, pool *downstream.Pool, t Target, pos protocol.Position) (any, error) {
	return execute(ctx, pool, request{
		target: t,
		method: "textDocument/moniker",
		buildParams: func(virtualURI string) (any, error) {
			return positionParams(virtualURI, pos, t.Region.RegionStartLine), nil
		},
		transform: transformMonikers,
	})
}

// DocumentSymbol forwards the whole-document symbol request; only the
// virtual URI goes out, no coordinates.
func DocumentSymbol(ctx context.Context, pool *downstream.Pool, t Target) (any, error) {
	return execute(ctx, pool, request{
		target: t,
		method: dsprotocol.MethodTextDocumentDocumentSymbol,
		buildParams: func(virtualURI string) (any, error) {
			return dsprotocol.DocumentSymbolParams{
				TextDocument: dsprotocol.TextDocumentIdentifier{URI: dsprotocol.DocumentURI(virtualURI)},
			}, nil
		},
		transform: transformDocumentSymbols,
	})
}

// DocumentLink forwards the whole-document link request.
func DocumentLink(ctx context.Context, pool *downstream.Pool, t Target) (any, error) {
	return execute(ctx, pool, request{
		target: t,
		method: dsprotocol.MethodTextDocumentDocumentLink,
		buildParams: func(virtualURI string) (any, error) {
			return dsprotocol.DocumentLinkParams{
				TextDocument: dsprotocol.TextDocumentIdentifier{URI: dsprotocol.DocumentURI(virtualURI)},
			}, nil
		},
		transform: transformDocumentLinks,
	})
}

// DocumentColor forwards the whole-document color request.
func DocumentColor(ctx context.Context, pool *downstream.Pool, t Target) (any, error) {
	return execute(ctx, pool, request{
		target: t,
		method: dsprotocol.MethodTextDocumentDocumentColor,
		buildParams: func(virtualURI string) (any, error) {
			return dsprotocol.DocumentColorParams{
				TextDocument: dsprotocol.TextDocumentIdentifier{URI: dsprotocol.DocumentURI(virtualURI)},
			}, nil
		},
		transform: transformDocumentColors,
	})
}

// ColorPresentation forwards textDocument/colorPresentation with both range
// endpoints translated out.
func ColorPresentation(ctx context.Context, pool *downstream.Pool, t Target, color protocol.Color, rng protocol.Range) (any, error) {
	return execute(ctx, pool, request{
		target: t,
		method: dsprotocol.MethodTextDocumentColorPresentation,
		buildParams: func(virtualURI string) (any, error) {
			return dsprotocol.ColorPresentationParams{
				TextDocument: dsprotocol.TextDocumentIdentifier{URI: dsprotocol.DocumentURI(virtualURI)},
				Color: dsprotocol.Color{
					Red:   float64(color.Red),
					Green: float64(color.Green),
					Blue:  float64(color.Blue),
					Alpha: float64(color.Alpha),
				},
				Range: DownstreamRange(ToVirtualRange(rng, t.Region.RegionStartLine)),
			}, nil
		},
		transform: transformColorPresentations,
	})
}

// SemanticTokensRange forwards textDocument/semanticTokens/range with the
// range translated out.
func SemanticTokensRange(ctx context.Context, pool *downstream.Pool, t Target, rng protocol.Range) (any, error) {
	return execute(ctx, pool, request{
		target: t,
		method: dsprotocol.MethodSemanticTokensRange,
		buildParams: func(virtualURI string) (any, error) {
			return dsprotocol.SemanticTokensRangeParams{
				TextDocument: dsprotocol.TextDocumentIdentifier{URI: dsprotocol.DocumentURI(virtualURI)},
				Range:        DownstreamRange(ToVirtualRange(rng, t.Region.RegionStartLine)),
			}, nil
		},
		transform: transformSemanticTokens,
	})
}

// Diagnostic pulls diagnostics for one region, carrying previousResultID
// (when the client supplied one) so the server may answer with an
// "unchanged" report. This is the one handler that waits for an
// Initializing connection to become Ready instead of failing fast; the
// caller bounds the wait through ctx.
func Diagnostic(ctx context.Context, pool *downstream.Pool, t Target, previousResultID string) ([]protocol.Diagnostic, error) {
	result, err := execute(ctx, pool, request{
		target:    t,
		method:    methodTextDocumentDiagnostic,
		waitReady: true,
		buildParams: func(virtualURI string) (any, error) {
			params := map[string]any{
				"textDocument": map[string]string{"uri": virtualURI},
			}
			if previousResultID != "" {
				params["previousResultId"] = previousResultID
			}
			return params, nil
		},
		transform: transformDiagnosticReport,
	})
	if err != nil || result == nil {
		return nil, err
	}
	return result.([]protocol.Diagnostic), nil
}
