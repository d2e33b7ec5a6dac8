package bridge

import (
	"encoding/json"
	"testing"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

var testRctx = ResponseContext{
	VirtualURI:      "bridgels-vdoc://abc/region-01HTEST.lua",
	HostURI:         "file:///home/user/doc.md",
	RegionStartLine: 3,
}

const otherVirtualURI = `"bridgels-vdoc://abc/region-01HOTHER.lua"`

func TestTransformGotoSingleLocation(t *testing.T) {
	// A single Location inside the request's own virtual document becomes a
	// LocationLink targeting the host with the region's line offset applied.
	raw := json.RawMessage(`{
		"uri": "` + testRctx.VirtualURI + `",
		"range": {"start": {"line": 0, "character": 9}, "end": {"line": 0, "character": 14}}
	}`)
	result, err := transformGoto(raw, testRctx)
	if err != nil {
		t.Fatal(err)
	}
	links := result.([]protocol.LocationLink)
	if len(links) != 1 {
		t.Fatalf("got %d links, want 1", len(links))
	}
	link := links[0]
	if string(link.TargetURI) != testRctx.HostURI {
		t.Errorf("target URI = %s, want host", link.TargetURI)
	}
	want := protocol.Range{
		Start: protocol.Position{Line: 3, Character: 9},
		End:   protocol.Position{Line: 3, Character: 14},
	}
	if link.TargetRange != want {
		t.Errorf("target range = %+v, want %+v", link.TargetRange, want)
	}
	if link.TargetSelectionRange != want {
		t.Errorf("target selection range = %+v, want %+v", link.TargetSelectionRange, want)
	}
}

func TestTransformGotoFiltersCrossRegion(t *testing.T) {
	raw := json.RawMessage(`[
		{"uri": "` + testRctx.VirtualURI + `", "range": {"start": {"line": 0, "character": 0}, "end": {"line": 0, "character": 1}}},
		{"uri": ` + otherVirtualURI + `, "range": {"start": {"line": 0, "character": 0}, "end": {"line": 0, "character": 1}}},
		{"uri": "file:///etc/real.lua", "range": {"start": {"line": 8, "character": 0}, "end": {"line": 8, "character": 4}}}
	]`)
	result, err := transformGoto(raw, testRctx)
	if err != nil {
		t.Fatal(err)
	}
	links := result.([]protocol.LocationLink)
	if len(links) != 2 {
		t.Fatalf("got %d links, want 2 (cross-region entry dropped)", len(links))
	}
	if string(links[0].TargetURI) != testRctx.HostURI {
		t.Errorf("first link should target host, got %s", links[0].TargetURI)
	}
	// Real file URIs pass through with coordinates untouched.
	if string(links[1].TargetURI) != "file:///etc/real.lua" {
		t.Errorf("real file URI rewritten to %s", links[1].TargetURI)
	}
	if links[1].TargetRange.Start.Line != 8 {
		t.Errorf("real file range translated: %+v", links[1].TargetRange)
	}
}

func TestTransformGotoLocationLinks(t *testing.T) {
	raw := json.RawMessage(`[{
		"originSelectionRange": {"start": {"line": 1, "character": 2}, "end": {"line": 1, "character": 5}},
		"targetUri": "` + testRctx.VirtualURI + `",
		"targetRange": {"start": {"line": 0, "character": 0}, "end": {"line": 2, "character": 0}},
		"targetSelectionRange": {"start": {"line": 0, "character": 6}, "end": {"line": 0, "character": 9}}
	}]`)
	result, err := transformGoto(raw, testRctx)
	if err != nil {
		t.Fatal(err)
	}
	links := result.([]protocol.LocationLink)
	if len(links) != 1 {
		t.Fatalf("got %d links, want 1", len(links))
	}
	if links[0].OriginSelectionRange == nil || links[0].OriginSelectionRange.Start.Line != 4 {
		t.Errorf("origin selection range not translated: %+v", links[0].OriginSelectionRange)
	}
	if links[0].TargetRange.End.Line != 5 {
		t.Errorf("target range not translated: %+v", links[0].TargetRange)
	}
}

func TestTransformGotoEmptyArrayPreserved(t *testing.T) {
	result, err := transformGoto(json.RawMessage(`[]`), testRctx)
	if err != nil {
		t.Fatal(err)
	}
	links, ok := result.([]protocol.LocationLink)
	if !ok || links == nil || len(links) != 0 {
		t.Fatalf("empty array not preserved: %#v", result)
	}
}

func TestTransformGotoNull(t *testing.T) {
	result, err := transformGoto(json.RawMessage(`null`), testRctx)
	if err != nil {
		t.Fatal(err)
	}
	if result != nil {
		t.Fatalf("null result should stay nil, got %#v", result)
	}
}

func TestTransformHover(t *testing.T) {
	raw := json.RawMessage(`{
		"contents": {"kind": "markdown", "value": "doc"},
		"range": {"start": {"line": 0, "character": 1}, "end": {"line": 0, "character": 4}}
	}`)
	result, err := transformHover(raw, testRctx)
	if err != nil {
		t.Fatal(err)
	}
	hover := result.(*protocol.Hover)
	if hover.Range == nil || hover.Range.Start.Line != 3 {
		t.Errorf("hover range not translated: %+v", hover.Range)
	}
}

func TestTransformDocumentSymbolsFlat(t *testing.T) {
	raw := json.RawMessage(`[{
		"name": "f",
		"kind": 12,
		"location": {
			"uri": "` + testRctx.VirtualURI + `",
			"range": {"start": {"line": 0, "character": 0}, "end": {"line": 1, "character": 0}}
		}
	}]`)
	result, err := transformDocumentSymbols(raw, testRctx)
	if err != nil {
		t.Fatal(err)
	}
	infos := result.([]protocol.SymbolInformation)
	if len(infos) != 1 {
		t.Fatalf("got %d symbols, want 1", len(infos))
	}
	if string(infos[0].Location.URI) != testRctx.HostURI {
		t.Errorf("symbol URI = %s, want host", infos[0].Location.URI)
	}
	if infos[0].Location.Range.Start.Line != 3 {
		t.Errorf("symbol range not translated: %+v", infos[0].Location.Range)
	}
}

func TestTransformDocumentSymbolsHierarchical(t *testing.T) {
	raw := json.RawMessage(`[{
		"name": "mod",
		"kind": 2,
		"range": {"start": {"line": 0, "character": 0}, "end": {"line": 5, "character": 0}},
		"selectionRange": {"start": {"line": 0, "character": 0}, "end": {"line": 0, "character": 3}},
		"children": [{
			"name": "child",
			"kind": 12,
			"range": {"start": {"line": 1, "character": 0}, "end": {"line": 2, "character": 0}},
			"selectionRange": {"start": {"line": 1, "character": 0}, "end": {"line": 1, "character": 5}}
		}]
	}]`)
	result, err := transformDocumentSymbols(raw, testRctx)
	if err != nil {
		t.Fatal(err)
	}
	symbols := result.([]protocol.DocumentSymbol)
	if symbols[0].Range.Start.Line != 3 {
		t.Errorf("root range not translated: %+v", symbols[0].Range)
	}
	if symbols[0].Children[0].SelectionRange.Start.Line != 4 {
		t.Errorf("child selection range not translated: %+v", symbols[0].Children[0].SelectionRange)
	}
}

func TestTransformDiagnosticReportFull(t *testing.T) {
	raw := json.RawMessage(`{
		"kind": "full",
		"items": [{
			"range": {"start": {"line": 0, "character": 2}, "end": {"line": 0, "character": 7}},
			"message": "undefined variable",
			"relatedInformation": [
				{"location": {"uri": "` + testRctx.VirtualURI + `", "range": {"start": {"line": 1, "character": 0}, "end": {"line": 1, "character": 3}}}, "message": "declared here"},
				{"location": {"uri": ` + otherVirtualURI + `, "range": {"start": {"line": 0, "character": 0}, "end": {"line": 0, "character": 1}}}, "message": "cross-region"},
				{"location": {"uri": "file:///lib/other.lua", "range": {"start": {"line": 9, "character": 0}, "end": {"line": 9, "character": 1}}}, "message": "library"}
			]
		}]
	}`)
	result, err := transformDiagnosticReport(raw, testRctx)
	if err != nil {
		t.Fatal(err)
	}
	diags := result.([]protocol.Diagnostic)
	if len(diags) != 1 {
		t.Fatalf("got %d diagnostics, want 1", len(diags))
	}
	if diags[0].Range.Start.Line != 3 {
		t.Errorf("diagnostic range not translated: %+v", diags[0].Range)
	}
	related := diags[0].RelatedInformation
	if len(related) != 2 {
		t.Fatalf("got %d related entries, want 2 (cross-region dropped)", len(related))
	}
	if string(related[0].Location.URI) != testRctx.HostURI || related[0].Location.Range.Start.Line != 4 {
		t.Errorf("own-region related info not rewritten: %+v", related[0].Location)
	}
	if string(related[1].Location.URI) != "file:///lib/other.lua" || related[1].Location.Range.Start.Line != 9 {
		t.Errorf("real-file related info should pass through: %+v", related[1].Location)
	}
}

func TestTransformDiagnosticReportUnchanged(t *testing.T) {
	result, err := transformDiagnosticReport(json.RawMessage(`{"kind": "unchanged", "resultId": "r1"}`), testRctx)
	if err != nil {
		t.Fatal(err)
	}
	if diags := result.([]protocol.Diagnostic); len(diags) != 0 {
		t.Fatalf("unchanged report yielded %d diagnostics, want 0", len(diags))
	}
}

func TestTransformLocationsReferences(t *testing.T) {
	raw := json.RawMessage(`[
		{"uri": "` + testRctx.VirtualURI + `", "range": {"start": {"line": 2, "character": 0}, "end": {"line": 2, "character": 5}}},
		{"uri": ` + otherVirtualURI + `, "range": {"start": {"line": 0, "character": 0}, "end": {"line": 0, "character": 1}}}
	]`)
	result, err := transformLocations(raw, testRctx)
	if err != nil {
		t.Fatal(err)
	}
	locs := result.([]protocol.Location)
	if len(locs) != 1 {
		t.Fatalf("got %d locations, want 1", len(locs))
	}
	if string(locs[0].URI) != testRctx.HostURI || locs[0].Range.Start.Line != 5 {
		t.Errorf("location not rewritten: %+v", locs[0])
	}
}

func TestTransformColorPresentations(t *testing.T) {
	raw := json.RawMessage(`[{
		"label": "#ff0000",
		"textEdit": {"range": {"start": {"line": 0, "character": 4}, "end": {"line": 0, "character": 11}}, "newText": "#ff0000"},
		"additionalTextEdits": [{"range": {"start": {"line": 1, "character": 0}, "end": {"line": 1, "character": 1}}, "newText": ""}]
	}]`)
	result, err := transformColorPresentations(raw, testRctx)
	if err != nil {
		t.Fatal(err)
	}
	ps := result.([]protocol.ColorPresentation)
	if ps[0].TextEdit.Range.Start.Line != 3 {
		t.Errorf("textEdit range not translated: %+v", ps[0].TextEdit.Range)
	}
	if ps[0].AdditionalTextEdits[0].Range.Start.Line != 4 {
		t.Errorf("additionalTextEdits range not translated: %+v", ps[0].AdditionalTextEdits[0].Range)
	}
}

func TestTransformWorkspaceEdit(t *testing.T) {
	raw := json.RawMessage(`{
		"changes": {
			"` + testRctx.VirtualURI + `": [{"range": {"start": {"line": 0, "character": 0}, "end": {"line": 0, "character": 3}}, "newText": "renamed"}],
			"file:///lib/real.lua": [{"range": {"start": {"line": 2, "character": 0}, "end": {"line": 2, "character": 3}}, "newText": "renamed"}]
		}
	}`)
	result, err := transformWorkspaceEdit(raw, testRctx)
	if err != nil {
		t.Fatal(err)
	}
	edit := result.(*protocol.WorkspaceEdit)
	hostEdits, ok := edit.Changes[protocol.DocumentUri(testRctx.HostURI)]
	if !ok || hostEdits[0].Range.Start.Line != 3 {
		t.Errorf("virtual edits not moved to host: %+v", edit.Changes)
	}
	realEdits, ok := edit.Changes["file:///lib/real.lua"]
	if !ok || realEdits[0].Range.Start.Line != 2 {
		t.Errorf("real-file edits should pass through: %+v", edit.Changes)
	}
}

func TestTransformCompletionsList(t *testing.T) {
	raw := json.RawMessage(`{
		"isIncomplete": false,
		"items": [{
			"label": "print",
			"textEdit": {"range": {"start": {"line": 0, "character": 0}, "end": {"line": 0, "character": 2}}, "newText": "print"},
			"additionalTextEdits": [{"range": {"start": {"line": 0, "character": 0}, "end": {"line": 0, "character": 0}}, "newText": "local "}]
		}]
	}`)
	result, err := transformCompletions(raw, testRctx)
	if err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(result)
	if err != nil {
		t.Fatal(err)
	}
	var roundTrip struct {
		Items []struct {
			Label    string `json:"label"`
			TextEdit struct {
				Range protocol.Range `json:"range"`
			} `json:"textEdit"`
		} `json:"items"`
	}
	if err := json.Unmarshal(data, &roundTrip); err != nil {
		t.Fatal(err)
	}
	if roundTrip.Items[0].Label != "print" {
		t.Errorf("label lost in translation: %+v", roundTrip.Items[0])
	}
	if roundTrip.Items[0].TextEdit.Range.Start.Line != 3 {
		t.Errorf("completion textEdit range not translated: %+v", roundTrip.Items[0].TextEdit.Range)
	}
}

func TestTransformSemanticTokens(t *testing.T) {
	raw := json.RawMessage(`{"data": [0, 4, 5, 1, 0, 1, 0, 3, 2, 0]}`)
	result, err := transformSemanticTokens(raw, testRctx)
	if err != nil {
		t.Fatal(err)
	}
	data, _ := json.Marshal(result)
	var tokens struct {
		Data []uint32 `json:"data"`
	}
	if err := json.Unmarshal(data, &tokens); err != nil {
		t.Fatal(err)
	}
	// Only the first token's delta line is absolute; the rest stay relative.
	if tokens.Data[0] != 3 {
		t.Errorf("first delta line = %d, want 3", tokens.Data[0])
	}
	if tokens.Data[5] != 1 {
		t.Errorf("relative delta line changed: %d", tokens.Data[5])
	}
}
