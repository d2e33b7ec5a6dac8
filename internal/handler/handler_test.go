package handler

import (
	"context"
	"encoding/json"
	"testing"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/bridgels/bridgels/internal/grammar/fenced"
	"github.com/bridgels/bridgels/internal/hostlang"
	"github.com/bridgels/bridgels/internal/hostlang/caddyfile"
)

// notification captures one outbound server-to-client notification.
type notification struct {
	method string
	params any
}

func newTestHandler(t *testing.T) (*Handler, *[]notification) {
	t.Helper()
	var sent []notification
	notify := func(method string, params any) {
		sent = append(sent, notification{method, params})
	}
	h := New(nil, fenced.New(), hostlang.NewRegistry(caddyfile.New()), notify)
	return h, &sent
}

const hostDoc = "# Title\n```caddyfile\nexample.com {\n    reverse_proxy localhost\n}\n```\n"

const hostURI = "file:///notes.md"

func openHostDoc(t *testing.T, h *Handler) {
	t.Helper()
	if err := h.didOpen(&protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{URI: hostURI, Text: hostDoc},
	}); err != nil {
		t.Fatal(err)
	}
}

func TestRegionAt(t *testing.T) {
	h, _ := newTestHandler(t)
	openHostDoc(t, h)

	reg, ok := h.regionAt(hostURI, protocol.Position{Line: 3, Character: 8})
	if !ok {
		t.Fatal("no region found inside the fence")
	}
	if reg.Language != "caddyfile" {
		t.Errorf("language = %s, want caddyfile", reg.Language)
	}
	if reg.RegionStartLine != 2 {
		t.Errorf("region start line = %d, want 2", reg.RegionStartLine)
	}

	if _, ok := h.regionAt(hostURI, protocol.Position{Line: 0, Character: 3}); ok {
		t.Error("title line reported inside a region")
	}
}

func TestLocalHoverInsideRegion(t *testing.T) {
	h, _ := newTestHandler(t)
	openHostDoc(t, h)

	result, err := h.Dispatch(context.Background(), "1", "textDocument/hover", mustJSON(t, protocol.HoverParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: hostURI},
			Position:     protocol.Position{Line: 3, Character: 8},
		},
	}))
	if err != nil {
		t.Fatal(err)
	}
	hover, ok := result.(*protocol.Hover)
	if !ok || hover == nil {
		t.Fatalf("no hover for reverse_proxy inside fence, got %#v", result)
	}
}

func TestLocalCompletionInsideRegion(t *testing.T) {
	h, _ := newTestHandler(t)
	openHostDoc(t, h)

	result, err := h.Dispatch(context.Background(), "2", "textDocument/completion", mustJSON(t, protocol.CompletionParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: hostURI},
			Position:     protocol.Position{Line: 3, Character: 4},
		},
	}))
	if err != nil {
		t.Fatal(err)
	}
	items, ok := result.([]protocol.CompletionItem)
	if !ok {
		t.Fatalf("result type %T", result)
	}
	if len(items) == 0 {
		t.Fatal("no completions inside caddyfile fence")
	}
}

func TestHoverOutsideAnyRegion(t *testing.T) {
	h, _ := newTestHandler(t)
	openHostDoc(t, h)

	result, err := h.Dispatch(context.Background(), "3", "textDocument/hover", mustJSON(t, protocol.HoverParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: hostURI},
			Position:     protocol.Position{Line: 0, Character: 2},
		},
	}))
	if err != nil {
		t.Fatal(err)
	}
	if hover, _ := result.(*protocol.Hover); hover != nil {
		t.Errorf("unexpected hover outside regions: %+v", hover)
	}
}

func TestPullDiagnosticsTranslatesLines(t *testing.T) {
	h, _ := newTestHandler(t)
	broken := "intro\n```caddyfile\nexample.com {\n    respond \"ok\"\n```\n"
	if err := h.didOpen(&protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{URI: hostURI, Text: broken},
	}); err != nil {
		t.Fatal(err)
	}

	result, err := h.Dispatch(context.Background(), "4", "textDocument/diagnostic", mustJSON(t, map[string]any{
		"textDocument": map[string]any{"uri": hostURI},
	}))
	if err != nil {
		t.Fatal(err)
	}
	report, ok := result.(documentDiagnosticReport)
	if !ok {
		t.Fatalf("result type %T", result)
	}
	if report.Kind != "full" {
		t.Errorf("report kind = %q, want full", report.Kind)
	}
	if len(report.Items) == 0 {
		t.Fatal("no diagnostics for unclosed site block")
	}
	// The region starts on host line 2, so every translated diagnostic
	// lands at or below it.
	for _, d := range report.Items {
		if d.Range.Start.Line < 2 {
			t.Errorf("diagnostic above region start: %+v", d.Range)
		}
	}
}

func TestPushDiagnosticsOnOpenAndChange(t *testing.T) {
	h, sent := newTestHandler(t)
	openHostDoc(t, h)

	if len(*sent) == 0 {
		t.Fatal("no publishDiagnostics pushed on open")
	}
	if (*sent)[0].method != "textDocument/publishDiagnostics" {
		t.Fatalf("first notification = %s", (*sent)[0].method)
	}

	before := len(*sent)
	err := h.didChange(&protocol.DidChangeTextDocumentParams{
		TextDocument: protocol.VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: hostURI},
		},
		ContentChanges: []any{
			protocol.TextDocumentContentChangeEventWhole{Text: hostDoc + "\ntrailer\n"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(*sent) <= before {
		t.Error("no publishDiagnostics pushed on change")
	}
}

func TestIdentityStableAcrossLeadingInsert(t *testing.T) {
	h, _ := newTestHandler(t)
	openHostDoc(t, h)

	regions := h.regions(hostURI)
	if len(regions) != 1 {
		t.Fatalf("got %d regions, want 1", len(regions))
	}
	originalID := regions[0].ID

	// Insert a line above the fence via a full-text replacement; the region
	// body moves but is not disturbed, so its identity must survive.
	updated := "intro line\n" + hostDoc
	err := h.didChange(&protocol.DidChangeTextDocumentParams{
		TextDocument: protocol.VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: hostURI},
		},
		ContentChanges: []any{protocol.TextDocumentContentChangeEventWhole{Text: updated}},
	})
	if err != nil {
		t.Fatal(err)
	}

	after := h.regions(hostURI)
	if len(after) != 1 {
		t.Fatalf("got %d regions after edit, want 1", len(after))
	}
	if after[0].ID != originalID {
		t.Errorf("region identity changed across a non-disturbing edit: %s -> %s", originalID, after[0].ID)
	}
	if after[0].RegionStartLine != 3 {
		t.Errorf("region start line = %d, want 3 after one inserted line", after[0].RegionStartLine)
	}
}

func TestIdentityStableAcrossIncrementalEdit(t *testing.T) {
	h, _ := newTestHandler(t)
	openHostDoc(t, h)
	originalID := h.regions(hostURI)[0].ID

	// Append text to the title line, expressed incrementally.
	err := h.didChange(&protocol.DidChangeTextDocumentParams{
		TextDocument: protocol.VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: hostURI},
		},
		ContentChanges: []any{
			protocol.TextDocumentContentChangeEvent{
				Range: &protocol.Range{
					Start: protocol.Position{Line: 0, Character: 7},
					End:   protocol.Position{Line: 0, Character: 7},
				},
				Text: " extended",
			},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	after := h.regions(hostURI)
	if len(after) != 1 || after[0].ID != originalID {
		t.Errorf("identity not preserved across incremental edit")
	}
}

func TestDidCloseDropsState(t *testing.T) {
	h, _ := newTestHandler(t)
	openHostDoc(t, h)

	if err := h.didClose(&protocol.DidCloseTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: hostURI},
	}); err != nil {
		t.Fatal(err)
	}
	if regions := h.regions(hostURI); regions != nil {
		t.Errorf("regions survive close: %v", regions)
	}
}

func TestCancelUnknownRequestIsNoOp(t *testing.T) {
	h, _ := newTestHandler(t)
	h.CancelUpstream("never-seen")
	h.CancelUpstream("")
}

func TestDispatchUnknownMethod(t *testing.T) {
	h, _ := newTestHandler(t)
	if _, err := h.Dispatch(context.Background(), "9", "textDocument/unheardOf", nil); err == nil {
		t.Fatal("unknown method did not error")
	}
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return data
}
