package handler

import (
	"context"
	"sync"
	"time"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/bridgels/bridgels/internal/bridge"
	"github.com/bridgels/bridgels/internal/bridgerr"
)

// fanOutBudget bounds a whole diagnostic round, including the wait for
// still-initializing connections; regionRequestTimeout bounds each region's
// own downstream round-trip.
const (
	fanOutBudget         = 30 * time.Second
	regionRequestTimeout = 5 * time.Second
)

// documentDiagnosticParams is the pull-diagnostic request shape, which the
// upstream protocol package predates.
type documentDiagnosticParams struct {
	TextDocument     protocol.TextDocumentIdentifier `json:"textDocument"`
	Identifier       *string                         `json:"identifier,omitempty"`
	PreviousResultID *string                         `json:"previousResultId,omitempty"`
}

// documentDiagnosticReport is the full-report response shape.
type documentDiagnosticReport struct {
	Kind  string                `json:"kind"`
	Items []protocol.Diagnostic `json:"items"`
}

// diagnostic answers a pull request by fanning out across the document's
// regions.
func (h *Handler) diagnostic(ctx context.Context, upstreamID string, p *documentDiagnosticParams) (any, error) {
	uri := string(p.TextDocument.URI)
	previousResultID := ""
	if p.PreviousResultID != nil {
		previousResultID = *p.PreviousResultID
	}

	items, err := h.collectDiagnostics(ctx, upstreamID, uri, previousResultID)
	if err != nil {
		return nil, err
	}
	return documentDiagnosticReport{Kind: "full", Items: items}, nil
}

// collectDiagnostics gathers diagnostics for every injection region of uri
// concurrently and concatenates whatever arrived within budget: partial
// results beat no results. Local plugin regions are diagnosed inline;
// bridged regions go downstream with a bounded per-region timeout, and this
// is the one path that waits for an Initializing connection.
func (h *Handler) collectDiagnostics(ctx context.Context, upstreamID, uri, previousResultID string) ([]protocol.Diagnostic, error) {
	ctx, cancel := context.WithTimeout(ctx, fanOutBudget)
	defer cancel()

	var (
		mu    sync.Mutex
		items = []protocol.Diagnostic{}
		wg    sync.WaitGroup
	)
	for _, reg := range h.regions(uri) {
		if local, ok := h.locals.For(reg.Language); ok {
			diags := local.Diagnose(reg.VirtualContent)
			mu.Lock()
			for _, d := range diags {
				d.Range = bridge.ToHostRange(d.Range, reg.RegionStartLine)
				items = append(items, d)
			}
			mu.Unlock()
			continue
		}

		target, ok := h.bridgeTarget(upstreamID, uri, reg)
		if !ok {
			continue
		}
		wg.Add(1)
		go func(t bridge.Target) {
			defer wg.Done()
			regionCtx, regionCancel := context.WithTimeout(ctx, regionRequestTimeout)
			defer regionCancel()
			diags, err := bridge.Diagnostic(regionCtx, h.pool, t, previousResultID)
			if err != nil {
				h.log.Warningf("diagnostics for %s region %s: %v", uri, t.Region.ID, err)
				return
			}
			mu.Lock()
			items = append(items, diags...)
			mu.Unlock()
		}(target)
	}

	// A cancel for the upstream diagnostic ID cancels ctx, which aborts
	// every in-flight child request. A connection's reverse map holds only
	// the last downstream ID registered for the upstream ID, so with several
	// regions on one connection only that request gets a downstream cancel.
	wg.Wait()

	if ctx.Err() == context.Canceled {
		return nil, bridgerr.Wrap(bridgerr.Cancelled, "diagnostics for "+uri, ctx.Err())
	}
	return items, nil
}

// publishFullDiagnostics runs the same fan-out as a pull request and pushes
// the outcome as publishDiagnostics, so clients that never pull still see
// downstream findings after open and save. Runs in its own goroutine; there
// is no upstream request to cancel or answer.
func (h *Handler) publishFullDiagnostics(uri string) {
	if h.notify == nil {
		return
	}
	items, err := h.collectDiagnostics(context.Background(), "", uri, "")
	if err != nil {
		h.log.Warningf("push diagnostics for %s: %v", uri, err)
		return
	}
	h.notify("textDocument/publishDiagnostics", protocol.PublishDiagnosticsParams{
		URI:         protocol.DocumentUri(uri),
		Diagnostics: items,
	})
}
