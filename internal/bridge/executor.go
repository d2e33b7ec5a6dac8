package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.lsp.dev/jsonrpc2"

	"github.com/bridgels/bridgels/internal/bridgerr"
	"github.com/bridgels/bridgels/internal/config"
	"github.com/bridgels/bridgels/internal/downstream"
	"github.com/bridgels/bridgels/internal/injection"
	"github.com/bridgels/bridgels/internal/vuri"
)

// DefaultRequestTimeout bounds a single bridge round-trip when the server
// configuration does not name one.
const DefaultRequestTimeout = 15 * time.Second

// Target identifies where one bridge request goes: which upstream request it
// serves, which host document and injection region it concerns, and which
// downstream server handles that region's language.
type Target struct {
	UpstreamID string
	HostURI    string
	Region     injection.Region
	Server     config.BridgeConfig
}

// ResponseContext is handed to every response transform alongside the raw
// downstream result.
type ResponseContext struct {
	VirtualURI      string
	HostURI         string
	RegionStartLine uint32
}

// request parameterizes one run of execute: the method, the two closures,
// and the connection-acquisition policy.
type request struct {
	target Target
	method string

	// waitReady makes execute block for an Initializing connection instead
	// of failing fast. Only the diagnostics handler sets it.
	waitReady bool

	buildParams func(virtualURI string) (any, error)
	transform   func(result json.RawMessage, rctx ResponseContext) (any, error)
}

// execute is the single routine behind every bridgeable request: acquire the
// connection, register the upstream request, allocate a downstream ID with a
// oneshot receiver, lazily open the virtual document, enqueue the request
// through the single-writer channel, await the response, and run the
// transform. Router and pool entries are cleaned up on every exit path.
func execute(ctx context.Context, pool *downstream.Pool, req request) (any, error) {
	conn, err := pool.GetOrCreate(ctx, req.target.Server)
	if err != nil {
		return nil, bridgerr.Wrap(bridgerr.NotFound, "acquiring connection "+req.target.Server.ServerName, err)
	}

	if req.waitReady {
		if err := conn.WaitReady(ctx); err != nil {
			return nil, err
		}
	} else if conn.State() != downstream.StateReady {
		return nil, bridgerr.New(bridgerr.NotFound, "connection "+conn.Name+" is "+conn.State().String())
	}

	if !conn.HasCapability(req.method) {
		return nil, bridgerr.New(bridgerr.CapabilityMissing, req.method+" not supported by "+conn.Name)
	}

	virtualURI := vuri.Encode(req.target.HostURI, req.target.Region.Language, string(req.target.Region.ID))
	rctx := ResponseContext{
		VirtualURI:      virtualURI,
		HostURI:         req.target.HostURI,
		RegionStartLine: req.target.Region.RegionStartLine,
	}

	// The pool's upstream map is populated before the router allocates a
	// downstream ID. A cancel arriving in the window between the two finds
	// the server but no downstream ID yet and is dropped, which best-effort
	// cancel semantics permit.
	pool.RegisterUpstreamRequest(req.target.UpstreamID, req.target.Server.ServerName)
	id, recv := conn.RegisterRequest(req.target.UpstreamID)

	cleanup := func() {
		conn.Remove(id)
		pool.UnregisterUpstreamRequest(req.target.UpstreamID)
	}

	params, err := req.buildParams(virtualURI)
	if err != nil {
		cleanup()
		return nil, err
	}

	if err := conn.EnsureDocumentOpen(virtualURI, req.target.Region.Language, req.target.Region.VirtualContent); err != nil {
		cleanup()
		return nil, err
	}

	call, err := jsonrpc2.NewCall(id, req.method, params)
	if err != nil {
		cleanup()
		return nil, err
	}
	if err := conn.Enqueue(call); err != nil {
		cleanup()
		return nil, err
	}

	timeout := req.target.Server.Timeout.Std()
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var resp *jsonrpc2.Response
	select {
	case resp = <-recv:
		cleanup()
	case <-ctx.Done():
		// Cancellation mid-flight: the downstream ID exists, so forward the
		// cancel before cleaning up.
		conn.CancelUpstream(req.target.UpstreamID)
		cleanup()
		return nil, bridgerr.Wrap(bridgerr.Cancelled, req.method, ctx.Err())
	case <-timer.C:
		cleanup()
		return nil, bridgerr.New(bridgerr.DownstreamTimeout, fmt.Sprintf("%s to %s after %s", req.method, conn.Name, timeout))
	}

	if resp.Err() != nil {
		return nil, fmt.Errorf("%s from %s: %w", req.method, conn.Name, resp.Err())
	}
	return req.transform(resp.Result(), rctx)
}
