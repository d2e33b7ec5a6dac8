package bridge

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	protocol "github.com/tliron/glsp/protocol_3_16"
	"go.lsp.dev/jsonrpc2"
	dsprotocol "go.lsp.dev/protocol"

	"github.com/bridgels/bridgels/internal/bridgerr"
	"github.com/bridgels/bridgels/internal/config"
	"github.com/bridgels/bridgels/internal/downstream"
	"github.com/bridgels/bridgels/internal/injection"
	"github.com/bridgels/bridgels/internal/region"
)

// respondFunc decides what the scripted downstream server answers for one
// incoming call; returning nil leaves the call unanswered.
type respondFunc func(call *jsonrpc2.Call) any

// newScriptedPool builds a pool whose spawner yields an in-memory Ready
// connection backed by a goroutine that answers calls via respond and
// records every received message.
func newScriptedPool(t *testing.T, capabilities []string, respond respondFunc) (*downstream.Pool, <-chan jsonrpc2.Message) {
	t.Helper()
	received := make(chan jsonrpc2.Message, 32)
	pool := downstream.NewPool(nil)
	pool.SetSpawner(func(ctx context.Context, cfg config.BridgeConfig, progress downstream.ProgressFunc) (*downstream.Conn, error) {
		clientSide, serverSide := net.Pipe()
		t.Cleanup(func() {
			clientSide.Close()
			serverSide.Close()
		})
		stream := jsonrpc2.NewStream(serverSide)
		go func() {
			for {
				msg, _, err := stream.Read(context.Background())
				if err != nil {
					return
				}
				received <- msg
				call, ok := msg.(*jsonrpc2.Call)
				if !ok || respond == nil {
					continue
				}
				if result := respond(call); result != nil {
					resp, err := jsonrpc2.NewResponse(call.ID(), result, nil)
					if err != nil {
						continue
					}
					stream.Write(context.Background(), resp)
				}
			}
		}()
		return downstream.NewInMemory(cfg.ServerName, clientSide, capabilities, progress), nil
	})
	return pool, received
}

func testTarget(upstreamID string) Target {
	tracker := region.NewTracker()
	id := tracker.GetOrCreate("file:///doc.md", 10, 30, "fenced_code_block")
	return Target{
		UpstreamID: upstreamID,
		HostURI:    "file:///doc.md",
		Region: injection.Region{
			ID:              id,
			Language:        "lua",
			RegionStartLine: 3,
			VirtualContent:  "   \nprint(x)\n",
		},
		Server: config.BridgeConfig{ServerName: "lua-ls", Languages: []string{"lua"}},
	}
}

func TestExecuteLifecycle(t *testing.T) {
	pool, received := newScriptedPool(t, []string{dsprotocol.MethodTextDocumentHover}, func(call *jsonrpc2.Call) any {
		if call.Method() != dsprotocol.MethodTextDocumentHover {
			return nil
		}
		return map[string]any{
			"contents": map[string]any{"kind": "markdown", "value": "a lua value"},
			"range": map[string]any{
				"start": map[string]any{"line": 1, "character": 0},
				"end":   map[string]any{"line": 1, "character": 5},
			},
		}
	})

	target := testTarget("up-1")
	hover, err := Hover(context.Background(), pool, target, protocol.Position{Line: 4, Character: 2})
	if err != nil {
		t.Fatal(err)
	}
	if hover == nil || hover.Range == nil {
		t.Fatal("no hover returned")
	}
	// Downstream virtual line 1 + region start line 3.
	if hover.Range.Start.Line != 4 {
		t.Errorf("hover range = %+v, want host line 4", hover.Range)
	}

	// The wire saw didOpen before the hover request, both through the
	// single-writer channel.
	first := <-received
	open, ok := first.(*jsonrpc2.Notification)
	if !ok || open.Method() != dsprotocol.MethodTextDocumentDidOpen {
		t.Fatalf("first wire message = %v, want didOpen", first)
	}
	var openParams dsprotocol.DidOpenTextDocumentParams
	if err := json.Unmarshal(open.Params(), &openParams); err != nil {
		t.Fatal(err)
	}
	if openParams.TextDocument.Text != target.Region.VirtualContent {
		t.Errorf("didOpen content = %q, want region virtual content", openParams.TextDocument.Text)
	}

	second := <-received
	call, ok := second.(*jsonrpc2.Call)
	if !ok || call.Method() != dsprotocol.MethodTextDocumentHover {
		t.Fatalf("second wire message = %v, want hover call", second)
	}
	var hoverParams dsprotocol.HoverParams
	if err := json.Unmarshal(call.Params(), &hoverParams); err != nil {
		t.Fatal(err)
	}
	// Host line 4 - region start 3 = virtual line 1; character preserved.
	if hoverParams.Position.Line != 1 || hoverParams.Position.Character != 2 {
		t.Errorf("outbound position = %+v, want (1,2)", hoverParams.Position)
	}
}

func TestExecuteCapabilityGate(t *testing.T) {
	pool, received := newScriptedPool(t, nil, nil) // no capabilities advertised

	_, err := Hover(context.Background(), pool, testTarget("up-2"), protocol.Position{Line: 4})
	if !bridgerr.Is(err, bridgerr.CapabilityMissing) {
		t.Fatalf("err = %v, want CapabilityMissing", err)
	}
	// Short-circuit means zero downstream traffic.
	select {
	case msg := <-received:
		t.Fatalf("capability-gated request produced traffic: %v", msg)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestExecuteTimeout(t *testing.T) {
	pool, _ := newScriptedPool(t, []string{dsprotocol.MethodTextDocumentHover}, nil) // never answers

	target := testTarget("up-3")
	target.Server.Timeout = config.Duration(100 * time.Millisecond)
	_, err := Hover(context.Background(), pool, target, protocol.Position{Line: 4})
	if !bridgerr.Is(err, bridgerr.DownstreamTimeout) {
		t.Fatalf("err = %v, want DownstreamTimeout", err)
	}
	// The upstream entry was cleaned up: a late cancel is a no-op.
	pool.CancelUpstream("up-3")
}

func TestExecuteCancellation(t *testing.T) {
	pool, received := newScriptedPool(t, []string{dsprotocol.MethodTextDocumentHover}, nil) // never answers

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := Hover(ctx, pool, testTarget("up-4"), protocol.Position{Line: 4})
		done <- err
	}()

	// Wait for the request to hit the wire, then cancel.
	for {
		msg := <-received
		if call, ok := msg.(*jsonrpc2.Call); ok && call.Method() == dsprotocol.MethodTextDocumentHover {
			break
		}
	}
	cancel()

	err := <-done
	if !bridgerr.Is(err, bridgerr.Cancelled) {
		t.Fatalf("err = %v, want Cancelled", err)
	}
	// A downstream cancel was forwarded for the in-flight request.
	select {
	case msg := <-received:
		note, ok := msg.(*jsonrpc2.Notification)
		if !ok || note.Method() != "$/cancelRequest" {
			t.Fatalf("got %v, want $/cancelRequest", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("no downstream cancel forwarded")
	}
}

func TestExecuteDiagnosticFullReport(t *testing.T) {
	pool, received := newScriptedPool(t, []string{methodTextDocumentDiagnostic}, func(call *jsonrpc2.Call) any {
		return map[string]any{
			"kind": "full",
			"items": []map[string]any{{
				"range": map[string]any{
					"start": map[string]any{"line": 0, "character": 0},
					"end":   map[string]any{"line": 0, "character": 5},
				},
				"message": "unused variable",
			}},
		}
	})

	diags, err := Diagnostic(context.Background(), pool, testTarget("up-5"), "result-9")
	if err != nil {
		t.Fatal(err)
	}
	if len(diags) != 1 {
		t.Fatalf("got %d diagnostics, want 1", len(diags))
	}
	if diags[0].Range.Start.Line != 3 {
		t.Errorf("diagnostic range = %+v, want host line 3", diags[0].Range)
	}

	// The previous result id rode along so the server could have answered
	// with an unchanged report.
	for {
		msg := <-received
		call, ok := msg.(*jsonrpc2.Call)
		if !ok || call.Method() != methodTextDocumentDiagnostic {
			continue
		}
		var params struct {
			PreviousResultID string `json:"previousResultId"`
		}
		if err := json.Unmarshal(call.Params(), &params); err != nil {
			t.Fatal(err)
		}
		if params.PreviousResultID != "result-9" {
			t.Errorf("previousResultId = %q, want result-9", params.PreviousResultID)
		}
		break
	}
}
