package bridge

import (
	"bytes"
	"encoding/json"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/bridgels/bridgels/internal/vuri"
)

// The transforms in this file rewrite downstream results into host terms:
// URIs equal to the request's own virtual URI become the host URI with
// ranges shifted by the region's start line, entries pointing at any other
// virtual URI are filtered out (the client cannot resolve them), and real
// file URIs pass through untouched.

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// gotoEntry is the superset wire shape of Location and LocationLink, kept
// raw where no coordinates live.
type gotoEntry struct {
	URI                  string          `json:"uri,omitempty"`
	Range                *protocol.Range `json:"range,omitempty"`
	OriginSelectionRange *protocol.Range `json:"originSelectionRange,omitempty"`
	TargetURI            string          `json:"targetUri,omitempty"`
	TargetRange          *protocol.Range `json:"targetRange,omitempty"`
	TargetSelectionRange *protocol.Range `json:"targetSelectionRange,omitempty"`
}

func (e *gotoEntry) isLink() bool { return e.TargetURI != "" }

// transformGoto handles the goto family (definition, declaration, type
// definition, implementation): the result may be a single Location, a
// Location array, or a LocationLink array. Entries resolved inside this
// request's virtual document are rewritten as LocationLinks targeting the
// host; an explicitly empty array stays an empty array.
func transformGoto(raw json.RawMessage, rctx ResponseContext) (any, error) {
	if isNull(raw) {
		return nil, nil
	}

	var entries []gotoEntry
	if bytes.HasPrefix(bytes.TrimSpace(raw), []byte("{")) {
		var single gotoEntry
		if err := json.Unmarshal(raw, &single); err != nil {
			return nil, err
		}
		entries = []gotoEntry{single}
	} else if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, err
	}

	out := make([]protocol.LocationLink, 0, len(entries))
	for _, e := range entries {
		link := toLocationLink(e)
		switch {
		case string(link.TargetURI) == rctx.VirtualURI:
			link.TargetURI = protocol.DocumentUri(rctx.HostURI)
			link.TargetRange = ToHostRange(link.TargetRange, rctx.RegionStartLine)
			link.TargetSelectionRange = ToHostRange(link.TargetSelectionRange, rctx.RegionStartLine)
			if link.OriginSelectionRange != nil {
				r := ToHostRange(*link.OriginSelectionRange, rctx.RegionStartLine)
				link.OriginSelectionRange = &r
			}
		case vuri.Is(string(link.TargetURI)):
			continue // cross-region target the client cannot open
		}
		out = append(out, link)
	}
	return out, nil
}

func toLocationLink(e gotoEntry) protocol.LocationLink {
	if e.isLink() {
		link := protocol.LocationLink{
			TargetURI:            protocol.DocumentUri(e.TargetURI),
			OriginSelectionRange: e.OriginSelectionRange,
		}
		if e.TargetRange != nil {
			link.TargetRange = *e.TargetRange
		}
		if e.TargetSelectionRange != nil {
			link.TargetSelectionRange = *e.TargetSelectionRange
		}
		return link
	}
	link := protocol.LocationLink{TargetURI: protocol.DocumentUri(e.URI)}
	if e.Range != nil {
		link.TargetRange = *e.Range
		link.TargetSelectionRange = *e.Range
	}
	return link
}

// transformLocations is the plain-Location variant used by references: same
// URI rules as the goto family but the result stays a Location array.
func transformLocations(raw json.RawMessage, rctx ResponseContext) (any, error) {
	if isNull(raw) {
		return nil, nil
	}
	var locs []protocol.Location
	if err := json.Unmarshal(raw, &locs); err != nil {
		return nil, err
	}
	out := make([]protocol.Location, 0, len(locs))
	for _, loc := range locs {
		switch {
		case string(loc.URI) == rctx.VirtualURI:
			loc.URI = protocol.DocumentUri(rctx.HostURI)
			loc.Range = ToHostRange(loc.Range, rctx.RegionStartLine)
		case vuri.Is(string(loc.URI)):
			continue
		}
		out = append(out, loc)
	}
	return out, nil
}

// transformHover translates the optional range; the contents pass through.
func transformHover(raw json.RawMessage, rctx ResponseContext) (any, error) {
	if isNull(raw) {
		return nil, nil
	}
	var hover struct {
		Contents json.RawMessage `json:"contents"`
		Range    *protocol.Range `json:"range,omitempty"`
	}
	if err := json.Unmarshal(raw, &hover); err != nil {
		return nil, err
	}
	result := protocol.Hover{}
	var contents any
	if err := json.Unmarshal(hover.Contents, &contents); err != nil {
		return nil, err
	}
	result.Contents = contents
	if hover.Range != nil {
		r := ToHostRange(*hover.Range, rctx.RegionStartLine)
		result.Range = &r
	}
	return &result, nil
}

// transformDocumentSymbols detects SymbolInformation[] vs DocumentSymbol[]
// by the presence of "location" and translates accordingly.
func transformDocumentSymbols(raw json.RawMessage, rctx ResponseContext) (any, error) {
	if isNull(raw) {
		return nil, nil
	}
	var probe []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, err
	}
	if len(probe) == 0 {
		return []protocol.DocumentSymbol{}, nil
	}

	if _, flat := probe[0]["location"]; flat {
		var infos []protocol.SymbolInformation
		if err := json.Unmarshal(raw, &infos); err != nil {
			return nil, err
		}
		out := make([]protocol.SymbolInformation, 0, len(infos))
		for _, si := range infos {
			switch {
			case string(si.Location.URI) == rctx.VirtualURI:
				si.Location.URI = protocol.DocumentUri(rctx.HostURI)
				si.Location.Range = ToHostRange(si.Location.Range, rctx.RegionStartLine)
			case vuri.Is(string(si.Location.URI)):
				continue
			}
			out = append(out, si)
		}
		return out, nil
	}

	var symbols []protocol.DocumentSymbol
	if err := json.Unmarshal(raw, &symbols); err != nil {
		return nil, err
	}
	for i := range symbols {
		translateDocumentSymbol(&symbols[i], rctx.RegionStartLine)
	}
	return symbols, nil
}

func translateDocumentSymbol(s *protocol.DocumentSymbol, startLine uint32) {
	s.Range = ToHostRange(s.Range, startLine)
	s.SelectionRange = ToHostRange(s.SelectionRange, startLine)
	for i := range s.Children {
		translateDocumentSymbol(&s.Children[i], startLine)
	}
}

// transformDiagnosticReport handles a pull-diagnostic result: only the
// "full" report kind carries items; "unchanged" yields none.
func transformDiagnosticReport(raw json.RawMessage, rctx ResponseContext) (any, error) {
	if isNull(raw) {
		return []protocol.Diagnostic{}, nil
	}
	var report struct {
		Kind  string                `json:"kind"`
		Items []protocol.Diagnostic `json:"items"`
	}
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, err
	}
	if report.Kind != "full" {
		return []protocol.Diagnostic{}, nil
	}

	out := make([]protocol.Diagnostic, 0, len(report.Items))
	for _, d := range report.Items {
		d.Range = ToHostRange(d.Range, rctx.RegionStartLine)
		if len(d.RelatedInformation) > 0 {
			related := make([]protocol.DiagnosticRelatedInformation, 0, len(d.RelatedInformation))
			for _, ri := range d.RelatedInformation {
				switch {
				case string(ri.Location.URI) == rctx.VirtualURI:
					ri.Location.URI = protocol.DocumentUri(rctx.HostURI)
					ri.Location.Range = ToHostRange(ri.Location.Range, rctx.RegionStartLine)
				case string(ri.Location.URI) == rctx.HostURI:
					ri.Location.Range = ToHostRange(ri.Location.Range, rctx.RegionStartLine)
				case vuri.Is(string(ri.Location.URI)):
					continue
				}
				related = append(related, ri)
			}
			d.RelatedInformation = related
		}
		out = append(out, d)
	}
	return out, nil
}

// transformDocumentColors translates each color entry's range.
func transformDocumentColors(raw json.RawMessage, rctx ResponseContext) (any, error) {
	if isNull(raw) {
		return nil, nil
	}
	var colors []protocol.ColorInformation
	if err := json.Unmarshal(raw, &colors); err != nil {
		return nil, err
	}
	for i := range colors {
		colors[i].Range = ToHostRange(colors[i].Range, rctx.RegionStartLine)
	}
	return colors, nil
}

// transformColorPresentations translates each presentation's textEdit and
// additionalTextEdits ranges.
func transformColorPresentations(raw json.RawMessage, rctx ResponseContext) (any, error) {
	if isNull(raw) {
		return nil, nil
	}
	var presentations []protocol.ColorPresentation
	if err := json.Unmarshal(raw, &presentations); err != nil {
		return nil, err
	}
	for i := range presentations {
		p := &presentations[i]
		if p.TextEdit != nil {
			p.TextEdit.Range = ToHostRange(p.TextEdit.Range, rctx.RegionStartLine)
		}
		for j := range p.AdditionalTextEdits {
			p.AdditionalTextEdits[j].Range = ToHostRange(p.AdditionalTextEdits[j].Range, rctx.RegionStartLine)
		}
	}
	return presentations, nil
}

// transformDocumentHighlights translates each highlight's range; highlights
// always refer to the requested document itself.
func transformDocumentHighlights(raw json.RawMessage, rctx ResponseContext) (any, error) {
	if isNull(raw) {
		return nil, nil
	}
	var highlights []protocol.DocumentHighlight
	if err := json.Unmarshal(raw, &highlights); err != nil {
		return nil, err
	}
	for i := range highlights {
		highlights[i].Range = ToHostRange(highlights[i].Range, rctx.RegionStartLine)
	}
	return highlights, nil
}

// documentLinkWire keeps the non-coordinate fields raw so unknown server
// extensions survive the round trip.
type documentLinkWire struct {
	Range   protocol.Range  `json:"range"`
	Target  json.RawMessage `json:"target,omitempty"`
	Tooltip json.RawMessage `json:"tooltip,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func transformDocumentLinks(raw json.RawMessage, rctx ResponseContext) (any, error) {
	if isNull(raw) {
		return nil, nil
	}
	var links []documentLinkWire
	if err := json.Unmarshal(raw, &links); err != nil {
		return nil, err
	}
	for i := range links {
		links[i].Range = ToHostRange(links[i].Range, rctx.RegionStartLine)
	}
	return links, nil
}

// transformWorkspaceEdit rewrites a rename result: edits keyed by this
// request's virtual URI move to the host URI with translated ranges, edits
// for other virtual URIs are dropped, and real-file edits pass through.
func transformWorkspaceEdit(raw json.RawMessage, rctx ResponseContext) (any, error) {
	if isNull(raw) {
		return nil, nil
	}
	var edit struct {
		Changes         map[string][]protocol.TextEdit `json:"changes,omitempty"`
		DocumentChanges []json.RawMessage              `json:"documentChanges,omitempty"`
	}
	if err := json.Unmarshal(raw, &edit); err != nil {
		return nil, err
	}

	out := protocol.WorkspaceEdit{}
	if edit.Changes != nil {
		out.Changes = make(map[protocol.DocumentUri][]protocol.TextEdit, len(edit.Changes))
		for uriStr, edits := range edit.Changes {
			switch {
			case uriStr == rctx.VirtualURI:
				for i := range edits {
					edits[i].Range = ToHostRange(edits[i].Range, rctx.RegionStartLine)
				}
				out.Changes[protocol.DocumentUri(rctx.HostURI)] = edits
			case vuri.Is(uriStr):
				continue
			default:
				out.Changes[protocol.DocumentUri(uriStr)] = edits
			}
		}
	}
	for _, rawChange := range edit.DocumentChanges {
		var docEdit struct {
			TextDocument struct {
				URI     string          `json:"uri"`
				Version json.RawMessage `json:"version"`
			} `json:"textDocument"`
			Edits []protocol.TextEdit `json:"edits"`
		}
		if err := json.Unmarshal(rawChange, &docEdit); err != nil || docEdit.TextDocument.URI == "" {
			// Create/rename/delete file operations carry no coordinates.
			continue
		}
		switch {
		case docEdit.TextDocument.URI == rctx.VirtualURI:
			if out.Changes == nil {
				out.Changes = make(map[protocol.DocumentUri][]protocol.TextEdit)
			}
			for i := range docEdit.Edits {
				docEdit.Edits[i].Range = ToHostRange(docEdit.Edits[i].Range, rctx.RegionStartLine)
			}
			hostURI := protocol.DocumentUri(rctx.HostURI)
			out.Changes[hostURI] = append(out.Changes[hostURI], docEdit.Edits...)
		case vuri.Is(docEdit.TextDocument.URI):
			continue
		default:
			if out.Changes == nil {
				out.Changes = make(map[protocol.DocumentUri][]protocol.TextEdit)
			}
			u := protocol.DocumentUri(docEdit.TextDocument.URI)
			out.Changes[u] = append(out.Changes[u], docEdit.Edits...)
		}
	}
	return &out, nil
}

// transformMonikers has no coordinates to translate.
func transformMonikers(raw json.RawMessage, _ ResponseContext) (any, error) {
	if isNull(raw) {
		return nil, nil
	}
	var monikers []protocol.Moniker
	if err := json.Unmarshal(raw, &monikers); err != nil {
		return nil, err
	}
	return monikers, nil
}

// completionItemWire touches only the fields that carry ranges.
type completionItemWire map[string]json.RawMessage

// transformCompletions translates textEdit and additionalTextEdits ranges in
// each item; every other field passes through untouched.
func transformCompletions(raw json.RawMessage, rctx ResponseContext) (any, error) {
	if isNull(raw) {
		return nil, nil
	}

	trimmed := bytes.TrimSpace(raw)
	if bytes.HasPrefix(trimmed, []byte("{")) {
		var list struct {
			IsIncomplete bool                 `json:"isIncomplete"`
			Items        []completionItemWire `json:"items"`
		}
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, err
		}
		for _, item := range list.Items {
			if err := translateCompletionItem(item, rctx.RegionStartLine); err != nil {
				return nil, err
			}
		}
		return list, nil
	}

	var items []completionItemWire
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	for _, item := range items {
		if err := translateCompletionItem(item, rctx.RegionStartLine); err != nil {
			return nil, err
		}
	}
	return items, nil
}

func translateCompletionItem(item completionItemWire, startLine uint32) error {
	if rawEdit, ok := item["textEdit"]; ok && !isNull(rawEdit) {
		var te map[string]json.RawMessage
		if err := json.Unmarshal(rawEdit, &te); err != nil {
			return err
		}
		// Plain TextEdit carries "range"; InsertReplaceEdit carries
		// "insert" and "replace".
		for _, key := range []string{"range", "insert", "replace"} {
			if err := translateRawRange(te, key, startLine); err != nil {
				return err
			}
		}
		updated, err := json.Marshal(te)
		if err != nil {
			return err
		}
		item["textEdit"] = updated
	}
	if rawEdits, ok := item["additionalTextEdits"]; ok && !isNull(rawEdits) {
		var edits []protocol.TextEdit
		if err := json.Unmarshal(rawEdits, &edits); err != nil {
			return err
		}
		for i := range edits {
			edits[i].Range = ToHostRange(edits[i].Range, startLine)
		}
		updated, err := json.Marshal(edits)
		if err != nil {
			return err
		}
		item["additionalTextEdits"] = updated
	}
	return nil
}

func translateRawRange(obj map[string]json.RawMessage, key string, startLine uint32) error {
	rawRange, ok := obj[key]
	if !ok || isNull(rawRange) {
		return nil
	}
	var r protocol.Range
	if err := json.Unmarshal(rawRange, &r); err != nil {
		return err
	}
	updated, err := json.Marshal(ToHostRange(r, startLine))
	if err != nil {
		return err
	}
	obj[key] = updated
	return nil
}

// transformSignatureHelp carries no document coordinates.
func transformSignatureHelp(raw json.RawMessage, _ ResponseContext) (any, error) {
	if isNull(raw) {
		return nil, nil
	}
	var help protocol.SignatureHelp
	if err := json.Unmarshal(raw, &help); err != nil {
		return nil, err
	}
	return &help, nil
}

// transformSemanticTokens adjusts the first token's delta line, which is the
// only absolute line in the relative encoding, from virtual to host space.
func transformSemanticTokens(raw json.RawMessage, rctx ResponseContext) (any, error) {
	if isNull(raw) {
		return nil, nil
	}
	var tokens struct {
		ResultID string   `json:"resultId,omitempty"`
		Data     []uint32 `json:"data"`
	}
	if err := json.Unmarshal(raw, &tokens); err != nil {
		return nil, err
	}
	if len(tokens.Data) >= 5 {
		tokens.Data[0] = satAdd(tokens.Data[0], rctx.RegionStartLine)
	}
	return tokens, nil
}
