package handler

import (
	"context"
	"reflect"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/bridgels/bridgels/internal/bridge"
)

// The position-based handlers share one shape: locate the region under the
// cursor, serve it from a local plugin when one is registered for the
// region's language, otherwise forward through the bridge. A position
// outside every region falls back to whatever the host language itself
// offers, which for the positional requests below is nothing.

func (h *Handler) hover(ctx context.Context, upstreamID string, p *protocol.HoverParams) (any, error) {
	uri := string(p.TextDocument.URI)
	reg, ok := h.regionAt(uri, p.Position)
	if !ok {
		return nil, nil
	}
	if local, ok := h.locals.For(reg.Language); ok {
		virtualPos := bridge.ToVirtualPosition(p.Position, reg.RegionStartLine)
		hover := local.Hover(reg.VirtualContent, virtualPos)
		if hover != nil && hover.Range != nil {
			r := bridge.ToHostRange(*hover.Range, reg.RegionStartLine)
			hover.Range = &r
		}
		return hover, nil
	}
	target, ok := h.bridgeTarget(upstreamID, uri, reg)
	if !ok {
		return nil, nil
	}
	return bridge.Hover(ctx, h.pool, target, p.Position)
}

func (h *Handler) completion(ctx context.Context, upstreamID string, p *protocol.CompletionParams) (any, error) {
	uri := string(p.TextDocument.URI)
	reg, ok := h.regionAt(uri, p.Position)
	if !ok {
		return []protocol.CompletionItem{}, nil
	}
	if local, ok := h.locals.For(reg.Language); ok {
		virtualPos := bridge.ToVirtualPosition(p.Position, reg.RegionStartLine)
		return local.Completion(reg.VirtualContent, virtualPos), nil
	}
	target, ok := h.bridgeTarget(upstreamID, uri, reg)
	if !ok {
		return []protocol.CompletionItem{}, nil
	}
	return bridge.Completion(ctx, h.pool, target, p.Position)
}

func (h *Handler) signatureHelp(ctx context.Context, upstreamID string, p *protocol.SignatureHelpParams) (any, error) {
	uri := string(p.TextDocument.URI)
	reg, ok := h.regionAt(uri, p.Position)
	if !ok {
		return nil, nil
	}
	target, ok := h.bridgeTarget(upstreamID, uri, reg)
	if !ok {
		return nil, nil
	}
	return bridge.SignatureHelp(ctx, h.pool, target, p.Position)
}

func (h *Handler) gotoRequest(ctx context.Context, upstreamID, method string, p *protocol.TextDocumentPositionParams) (any, error) {
	uri := string(p.TextDocument.URI)
	reg, ok := h.regionAt(uri, p.Position)
	if !ok {
		return nil, nil
	}
	target, ok := h.bridgeTarget(upstreamID, uri, reg)
	if !ok {
		return nil, nil
	}
	return bridge.Goto(ctx, h.pool, target, method, p.Position)
}

func (h *Handler) references(ctx context.Context, upstreamID string, p *protocol.ReferenceParams) (any, error) {
	uri := string(p.TextDocument.URI)
	reg, ok := h.regionAt(uri, p.Position)
	if !ok {
		return []protocol.Location{}, nil
	}
	target, ok := h.bridgeTarget(upstreamID, uri, reg)
	if !ok {
		return []protocol.Location{}, nil
	}
	return bridge.References(ctx, h.pool, target, p.Position, p.Context.IncludeDeclaration)
}

func (h *Handler) documentHighlight(ctx context.Context, upstreamID string, p *protocol.DocumentHighlightParams) (any, error) {
	uri := string(p.TextDocument.URI)
	reg, ok := h.regionAt(uri, p.Position)
	if !ok {
		return nil, nil
	}
	target, ok := h.bridgeTarget(upstreamID, uri, reg)
	if !ok {
		return nil, nil
	}
	return bridge.DocumentHighlight(ctx, h.pool, target, p.Position)
}

func (h *Handler) rename(ctx context.Context, upstreamID string, p *protocol.RenameParams) (any, error) {
	uri := string(p.TextDocument.URI)
	reg, ok := h.regionAt(uri, p.Position)
	if !ok {
		return nil, nil
	}
	target, ok := h.bridgeTarget(upstreamID, uri, reg)
	if !ok {
		return nil, nil
	}
	return bridge.Rename(ctx, h.pool, target, p.Position, p.NewName)
}

func (h *Handler) moniker(ctx context.Context, upstreamID string, p *protocol.MonikerParams) (any, error) {
	uri := string(p.TextDocument.URI)
	reg, ok := h.regionAt(uri, p.Position)
	if !ok {
		return nil, nil
	}
	target, ok := h.bridgeTarget(upstreamID, uri, reg)
	if !ok {
		return nil, nil
	}
	return bridge.Moniker(ctx, h.pool, target, p.Position)
}

// The whole-document handlers fan across every bridgeable region of the
// document and concatenate the per-region results.

func (h *Handler) documentSymbol(ctx context.Context, upstreamID string, p *protocol.DocumentSymbolParams) (any, error) {
	uri := string(p.TextDocument.URI)
	var out []any
	for _, reg := range h.regions(uri) {
		target, ok := h.bridgeTarget(upstreamID, uri, reg)
		if !ok {
			continue
		}
		result, err := bridge.DocumentSymbol(ctx, h.pool, target)
		if err != nil || result == nil {
			continue
		}
		out = append(out, flatten(result)...)
	}
	return out, nil
}

func (h *Handler) documentLink(ctx context.Context, upstreamID string, p *protocol.DocumentLinkParams) (any, error) {
	uri := string(p.TextDocument.URI)
	var out []any
	for _, reg := range h.regions(uri) {
		target, ok := h.bridgeTarget(upstreamID, uri, reg)
		if !ok {
			continue
		}
		result, err := bridge.DocumentLink(ctx, h.pool, target)
		if err != nil || result == nil {
			continue
		}
		out = append(out, flatten(result)...)
	}
	return out, nil
}

func (h *Handler) documentColor(ctx context.Context, upstreamID string, p *protocol.DocumentColorParams) (any, error) {
	uri := string(p.TextDocument.URI)
	out := []protocol.ColorInformation{}
	for _, reg := range h.regions(uri) {
		target, ok := h.bridgeTarget(upstreamID, uri, reg)
		if !ok {
			continue
		}
		result, err := bridge.DocumentColor(ctx, h.pool, target)
		if err != nil || result == nil {
			continue
		}
		if colors, ok := result.([]protocol.ColorInformation); ok {
			out = append(out, colors...)
		}
	}
	return out, nil
}

func (h *Handler) colorPresentation(ctx context.Context, upstreamID string, p *protocol.ColorPresentationParams) (any, error) {
	uri := string(p.TextDocument.URI)
	reg, ok := h.regionAt(uri, p.Range.Start)
	if !ok {
		return []protocol.ColorPresentation{}, nil
	}
	target, ok := h.bridgeTarget(upstreamID, uri, reg)
	if !ok {
		return []protocol.ColorPresentation{}, nil
	}
	return bridge.ColorPresentation(ctx, h.pool, target, p.Color, p.Range)
}

func (h *Handler) semanticTokensRange(ctx context.Context, upstreamID string, p *protocol.SemanticTokensRangeParams) (any, error) {
	uri := string(p.TextDocument.URI)
	reg, ok := h.regionAt(uri, p.Range.Start)
	if !ok {
		return nil, nil
	}
	target, ok := h.bridgeTarget(upstreamID, uri, reg)
	if !ok {
		return nil, nil
	}
	return bridge.SemanticTokensRange(ctx, h.pool, target, p.Range)
}

// flatten spreads a transform result (a typed slice) into []any for
// concatenation across regions.
func flatten(result any) []any {
	v := reflect.ValueOf(result)
	if v.Kind() != reflect.Slice {
		return []any{result}
	}
	out := make([]any, v.Len())
	for i := 0; i < v.Len(); i++ {
		out[i] = v.Index(i).Interface()
	}
	return out
}
