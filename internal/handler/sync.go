package handler

import (
	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/bridgels/bridgels/internal/bridge"
	"github.com/bridgels/bridgels/internal/bridgerr"
	"github.com/bridgels/bridgels/internal/edit"
	"github.com/bridgels/bridgels/internal/injection"
	"github.com/bridgels/bridgels/internal/position"
)

func (h *Handler) didOpen(p *protocol.DidOpenTextDocumentParams) error {
	uri := string(p.TextDocument.URI)
	h.store.DidOpen(uri, p.TextDocument.Text)
	h.publishLocalDiagnostics(uri)
	h.publishBridgedDiagnostics(uri)
	return nil
}

// didChange applies the content changes to the layer store and mirrors the
// same edits into the region tracker. Incremental changes arrive in running
// coordinates and are applied forward, in order; a full-text change is
// diffed against the stored text instead.
func (h *Handler) didChange(p *protocol.DidChangeTextDocumentParams) error {
	uri := string(p.TextDocument.URI)
	if len(p.ContentChanges) == 0 {
		return nil
	}

	text, ok := h.store.Text(uri)
	if !ok {
		// Unknown document: only a full-text change can recover.
		if whole, isWhole := wholeText(p.ContentChanges[len(p.ContentChanges)-1]); isWhole {
			h.store.DidOpen(uri, whole)
			h.publishLocalDiagnostics(uri)
		}
		return nil
	}

	var edits []edit.Edit
	for _, change := range p.ContentChanges {
		rng, newText, isIncremental := changeParts(change)
		if !isIncremental {
			// Full replacement: flush the incremental edits gathered so far,
			// then reconcile the tracker by diffing.
			if len(edits) > 0 {
				h.tracker.ApplyEdits(uri, edits)
				edits = nil
			}
			h.tracker.ApplyTextDiff(uri, text, newText)
			text = newText
			continue
		}
		e, updated, err := applyIncremental(text, rng, newText)
		if err != nil {
			return bridgerr.Wrap(bridgerr.OutOfRange, "applying change to "+uri, err)
		}
		edits = append(edits, e)
		text = updated
	}
	if len(edits) > 0 {
		h.tracker.ApplyEdits(uri, edits)
	}
	h.store.DidChange(uri, text)
	h.publishLocalDiagnostics(uri)
	return nil
}

func (h *Handler) didSave(p *protocol.DidSaveTextDocumentParams) error {
	uri := string(p.TextDocument.URI)
	if p.Text != nil {
		old, ok := h.store.Text(uri)
		if ok {
			h.tracker.ApplyTextDiff(uri, old, *p.Text)
		}
		h.store.DidChange(uri, *p.Text)
	}
	h.publishLocalDiagnostics(uri)
	h.publishBridgedDiagnostics(uri)
	return nil
}

func (h *Handler) didClose(p *protocol.DidCloseTextDocumentParams) error {
	uri := string(p.TextDocument.URI)
	h.store.Close(uri)
	h.tracker.Cleanup(uri)
	return nil
}

// wholeText extracts the text of a full-document change event, which glsp
// may decode as either change variant.
func wholeText(change any) (string, bool) {
	switch c := change.(type) {
	case protocol.TextDocumentContentChangeEventWhole:
		return c.Text, true
	case protocol.TextDocumentContentChangeEvent:
		if c.Range == nil {
			return c.Text, true
		}
	}
	return "", false
}

// changeParts splits a change event into its range (when incremental) and
// replacement text.
func changeParts(change any) (*protocol.Range, string, bool) {
	switch c := change.(type) {
	case protocol.TextDocumentContentChangeEvent:
		if c.Range != nil {
			return c.Range, c.Text, true
		}
		return nil, c.Text, false
	case protocol.TextDocumentContentChangeEventWhole:
		return nil, c.Text, false
	}
	return nil, "", false
}

// applyIncremental converts one ranged change into a byte edit against text
// and returns the edit plus the updated buffer.
func applyIncremental(text string, rng *protocol.Range, newText string) (edit.Edit, string, error) {
	mapper := position.NewMapper(text)
	start, err := mapper.ByteOffset(position.Position{Line: rng.Start.Line, Character: rng.Start.Character})
	if err != nil {
		return edit.Edit{}, "", err
	}
	end, err := mapper.ByteOffset(position.Position{Line: rng.End.Line, Character: rng.End.Character})
	if err != nil {
		return edit.Edit{}, "", err
	}
	e := edit.Edit{
		Start:  uint32(start),
		OldEnd: uint32(end),
		NewEnd: uint32(start + len(newText)),
	}
	updated := text[:start] + newText + text[end:]
	return e, updated, nil
}

// publishLocalDiagnostics pushes diagnostics produced by local language
// plugins for every injection region of uri, in the push model, so
// clients that never pull still see analysis results.
func (h *Handler) publishLocalDiagnostics(uri string) {
	if h.notify == nil {
		return
	}
	diags := h.localDiagnostics(uri)
	h.notify("textDocument/publishDiagnostics", protocol.PublishDiagnosticsParams{
		URI:         protocol.DocumentUri(uri),
		Diagnostics: diags,
	})
}

// publishBridgedDiagnostics kicks off a synthetic push round covering the
// bridged regions of uri, in the background; documents without a bridgeable
// region skip it so open/save stays cheap for them.
func (h *Handler) publishBridgedDiagnostics(uri string) {
	if h.notify == nil {
		return
	}
	for _, reg := range h.regions(uri) {
		if _, local := h.locals.For(reg.Language); local {
			continue
		}
		if len(h.cfg.BridgesFor(reg.Language)) > 0 {
			go h.publishFullDiagnostics(uri)
			return
		}
	}
}

// localDiagnostics runs each region's local plugin over its virtual content
// and translates the findings into host coordinates.
func (h *Handler) localDiagnostics(uri string) []protocol.Diagnostic {
	diags := []protocol.Diagnostic{}
	for _, reg := range h.regions(uri) {
		local, ok := h.locals.For(reg.Language)
		if !ok {
			continue
		}
		for _, d := range local.Diagnose(reg.VirtualContent) {
			d.Range = bridge.ToHostRange(d.Range, reg.RegionStartLine)
			diags = append(diags, d)
		}
	}
	return diags
}

// regions resolves the current injection regions of uri, allocating or
// refreshing identities through the tracker.
func (h *Handler) regions(uri string) []injection.Region {
	text, ok := h.store.Text(uri)
	if !ok {
		return nil
	}
	tree, ok := h.store.RootTree(uri)
	if !ok {
		return nil
	}
	return h.resolver.Resolve(uri, h.store.Language(), tree, text)
}

// regionAt finds the injection region containing pos, if any.
func (h *Handler) regionAt(uri string, pos protocol.Position) (injection.Region, bool) {
	text, ok := h.store.Text(uri)
	if !ok {
		return injection.Region{}, false
	}
	offset, err := position.NewMapper(text).ByteOffset(position.Position{Line: pos.Line, Character: pos.Character})
	if err != nil {
		return injection.Region{}, false
	}
	for _, reg := range h.regions(uri) {
		if uint32(offset) >= reg.Range.Start && uint32(offset) < reg.Range.End {
			return reg, true
		}
	}
	return injection.Region{}, false
}
