// Package handler is the host server facade: it owns the upstream-visible
// LSP surface, dispatches document sync into the layer store and region
// tracker, answers requests locally where a host-language plugin applies,
// and forwards requests that land inside an injection region to the bridge.
package handler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tliron/commonlog"
	protocol "github.com/tliron/glsp/protocol_3_16"
	"go.lsp.dev/jsonrpc2"

	"github.com/bridgels/bridgels/internal/bridge"
	"github.com/bridgels/bridgels/internal/bridgerr"
	"github.com/bridgels/bridgels/internal/config"
	"github.com/bridgels/bridgels/internal/downstream"
	"github.com/bridgels/bridgels/internal/grammar"
	"github.com/bridgels/bridgels/internal/hostlang"
	"github.com/bridgels/bridgels/internal/injection"
	"github.com/bridgels/bridgels/internal/layer"
	"github.com/bridgels/bridgels/internal/region"
)

// NotifyFunc sends a server-to-client notification; the transport loop
// provides it at startup.
type NotifyFunc func(method string, params any)

// Handler glues the facade together. New creates the process-wide services
// it uses (store, tracker, resolver, pool) and the cancel table; the local
// language registry and the notify path are passed in.
type Handler struct {
	log      commonlog.Logger
	cfg      *config.Config
	store    *layer.Store
	tracker  *region.Tracker
	resolver *injection.Resolver
	pool     *downstream.Pool
	locals   *hostlang.Registry
	cancels  *cancelTable
	notify   NotifyFunc
}

// New wires a Handler over the given host grammar, configuration, and local
// language plugins. notify becomes the outbound notification path.
func New(cfg *config.Config, host grammar.Language, locals *hostlang.Registry, notify NotifyFunc) *Handler {
	if cfg == nil {
		cfg = &config.Config{}
	}
	tracker := region.NewTracker()
	h := &Handler{
		log:      commonlog.GetLogger("bridgels.handler"),
		cfg:      cfg,
		store:    layer.New(host),
		tracker:  tracker,
		resolver: injection.New(tracker),
		locals:   locals,
		cancels:  newCancelTable(),
		notify:   notify,
	}
	h.pool = downstream.NewPool(h.relayProgress)
	return h
}

// Pool exposes the connection pool for shutdown wiring.
func (h *Handler) Pool() *downstream.Pool { return h.pool }

// relayProgress forwards a downstream $/progress notification upstream
// verbatim.
func (h *Handler) relayProgress(params json.RawMessage) {
	if h.notify == nil {
		return
	}
	var v any
	if err := json.Unmarshal(params, &v); err != nil {
		return
	}
	h.notify("$/progress", v)
}

// Dispatch routes one upstream request to its handler. upstreamID is the
// wire ID rendered as a stable string; the transport loop passes the same
// rendering to CancelUpstream so the cancel table and the pool's upstream
// map agree on keys.
func (h *Handler) Dispatch(ctx context.Context, upstreamID, method string, params json.RawMessage) (any, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	h.cancels.register(upstreamID, cancel)
	defer h.cancels.unregister(upstreamID)

	result, err := h.dispatch(ctx, upstreamID, method, params)
	return result, h.mapError(method, err)
}

func (h *Handler) dispatch(ctx context.Context, upstreamID, method string, params json.RawMessage) (any, error) {
	switch method {
	case "initialize":
		return h.initialize(params)
	case "shutdown":
		return nil, h.shutdownRequested(ctx)
	case "textDocument/hover":
		return typed(params, func(p *protocol.HoverParams) (any, error) {
			return h.hover(ctx, upstreamID, p)
		})
	case "textDocument/completion":
		return typed(params, func(p *protocol.CompletionParams) (any, error) {
			return h.completion(ctx, upstreamID, p)
		})
	case "textDocument/signatureHelp":
		return typed(params, func(p *protocol.SignatureHelpParams) (any, error) {
			return h.signatureHelp(ctx, upstreamID, p)
		})
	case "textDocument/definition", "textDocument/declaration", "textDocument/typeDefinition", "textDocument/implementation":
		return typed(params, func(p *protocol.TextDocumentPositionParams) (any, error) {
			return h.gotoRequest(ctx, upstreamID, method, p)
		})
	case "textDocument/references":
		return typed(params, func(p *protocol.ReferenceParams) (any, error) {
			return h.references(ctx, upstreamID, p)
		})
	case "textDocument/documentHighlight":
		return typed(params, func(p *protocol.DocumentHighlightParams) (any, error) {
			return h.documentHighlight(ctx, upstreamID, p)
		})
	case "textDocument/documentSymbol":
		return typed(params, func(p *protocol.DocumentSymbolParams) (any, error) {
			return h.documentSymbol(ctx, upstreamID, p)
		})
	case "textDocument/documentLink":
		return typed(params, func(p *protocol.DocumentLinkParams) (any, error) {
			return h.documentLink(ctx, upstreamID, p)
		})
	case "textDocument/documentColor":
		return typed(params, func(p *protocol.DocumentColorParams) (any, error) {
			return h.documentColor(ctx, upstreamID, p)
		})
	case "textDocument/colorPresentation":
		return typed(params, func(p *protocol.ColorPresentationParams) (any, error) {
			return h.colorPresentation(ctx, upstreamID, p)
		})
	case "textDocument/rename":
		return typed(params, func(p *protocol.RenameParams) (any, error) {
			return h.rename(ctx, upstreamID, p)
		})
	case "textDocument/moniker":
		return typed(params, func(p *protocol.MonikerParams) (any, error) {
			return h.moniker(ctx, upstreamID, p)
		})
	case "textDocument/semanticTokens/range":
		return typed(params, func(p *protocol.SemanticTokensRangeParams) (any, error) {
			return h.semanticTokensRange(ctx, upstreamID, p)
		})
	case "textDocument/diagnostic":
		return typed(params, func(p *documentDiagnosticParams) (any, error) {
			return h.diagnostic(ctx, upstreamID, p)
		})
	case "textDocument/codeAction", "textDocument/selectionRange",
		"textDocument/semanticTokens/full", "textDocument/semanticTokens/full/delta":
		// Host-tree algorithms and the token encoder live outside this
		// process; an empty result keeps clients functional.
		return nil, nil
	default:
		return nil, jsonrpc2.ErrMethodNotFound
	}
}

// Notification handles one upstream notification. Document sync runs here,
// on the transport loop, so edits are applied strictly in arrival order.
func (h *Handler) Notification(method string, params json.RawMessage) {
	var err error
	switch method {
	case "initialized", "$/setTrace", "exit":
	case "textDocument/didOpen":
		err = notif(params, h.didOpen)
	case "textDocument/didChange":
		err = notif(params, h.didChange)
	case "textDocument/didSave":
		err = notif(params, h.didSave)
	case "textDocument/didClose":
		err = notif(params, h.didClose)
	case "$/cancelRequest":
		var p protocol.CancelParams
		if err = json.Unmarshal(params, &p); err == nil {
			// Render the ID as JSON text: the transport loop keys in-flight
			// requests the same way, so numeric and string IDs both match.
			if key, kerr := json.Marshal(p.ID.Value); kerr == nil {
				h.CancelUpstream(string(key))
			}
		}
	default:
		h.log.Debugf("ignoring notification %s", method)
	}
	if err != nil {
		h.log.Warningf("%s: %v", method, err)
	}
}

// typed decodes params into P and invokes fn.
func typed[P any](params json.RawMessage, fn func(*P) (any, error)) (any, error) {
	var p P
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", jsonrpc2.ErrParse, err)
		}
	}
	return fn(&p)
}

func notif[P any](params json.RawMessage, fn func(*P) error) error {
	var p P
	if err := json.Unmarshal(params, &p); err != nil {
		return err
	}
	return fn(&p)
}

// mapError folds bridgels error kinds into the LSP response contract:
// NotFound, CapabilityMissing, and DownstreamTimeout degrade to an empty
// result; Cancelled and OutOfRange surface as protocol errors.
func (h *Handler) mapError(method string, err error) error {
	switch {
	case err == nil:
		return nil
	case bridgerr.Is(err, bridgerr.NotFound), bridgerr.Is(err, bridgerr.CapabilityMissing):
		h.log.Debugf("%s: %v", method, err)
		return nil
	case bridgerr.Is(err, bridgerr.DownstreamTimeout):
		h.log.Warningf("%s: %v", method, err)
		return nil
	case bridgerr.Is(err, bridgerr.Cancelled):
		return jsonrpc2.NewError(errCodeRequestCancelled, "request cancelled")
	case bridgerr.Is(err, bridgerr.OutOfRange):
		return fmt.Errorf("%w: %v", jsonrpc2.ErrInvalidParams, err)
	default:
		return err
	}
}

const errCodeRequestCancelled = -32800

// bridgeTarget assembles the bridge target for one region, or reports that
// the region's language has no configured bridge server.
func (h *Handler) bridgeTarget(upstreamID, hostURI string, reg injection.Region) (bridge.Target, bool) {
	bridges := h.cfg.BridgesFor(reg.Language)
	if len(bridges) == 0 {
		return bridge.Target{}, false
	}
	return bridge.Target{
		UpstreamID: upstreamID,
		HostURI:    hostURI,
		Region:     reg,
		Server:     bridges[0],
	}, true
}
