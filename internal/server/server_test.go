package server

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/tliron/commonlog"
	"go.lsp.dev/jsonrpc2"
)

// startServer runs serve over one end of an in-memory pipe and returns a
// stream speaking the client side.
func startServer(t *testing.T) jsonrpc2.Stream {
	t.Helper()
	serverSide, clientSide := net.Pipe()
	done := make(chan error, 1)
	go func() {
		done <- serve(serverSide, nil, commonlog.GetLogger("test"))
	}()
	t.Cleanup(func() {
		clientSide.Close()
		serverSide.Close()
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	})
	return jsonrpc2.NewStream(clientSide)
}

func call(t *testing.T, stream jsonrpc2.Stream, id int64, method string, params any) {
	t.Helper()
	c, err := jsonrpc2.NewCall(jsonrpc2.NewNumberID(int32(id)), method, params)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := stream.Write(context.Background(), c); err != nil {
		t.Fatal(err)
	}
}

func read(t *testing.T, stream jsonrpc2.Stream) jsonrpc2.Message {
	t.Helper()
	type result struct {
		msg jsonrpc2.Message
		err error
	}
	ch := make(chan result, 1)
	go func() {
		msg, _, err := stream.Read(context.Background())
		ch <- result{msg, err}
	}()
	select {
	case r := <-ch:
		if r.err != nil {
			t.Fatalf("read: %v", r.err)
		}
		return r.msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out reading from server")
	}
	return nil
}

func TestServeInitializeRoundTrip(t *testing.T) {
	stream := startServer(t)

	call(t, stream, 1, "initialize", map[string]any{"processId": 1})
	msg := read(t, stream)
	resp, ok := msg.(*jsonrpc2.Response)
	if !ok {
		t.Fatalf("got %T, want response", msg)
	}
	var result struct {
		Capabilities map[string]json.RawMessage `json:"capabilities"`
		ServerInfo   struct {
			Name string `json:"name"`
		} `json:"serverInfo"`
	}
	if err := json.Unmarshal(resp.Result(), &result); err != nil {
		t.Fatal(err)
	}
	if result.ServerInfo.Name != "bridgels" {
		t.Errorf("server name = %q", result.ServerInfo.Name)
	}
	if _, ok := result.Capabilities["hoverProvider"]; !ok {
		t.Error("hoverProvider not advertised")
	}
	if _, ok := result.Capabilities["diagnosticProvider"]; !ok {
		t.Error("diagnosticProvider not advertised")
	}
}

func TestServeDidOpenPublishesDiagnostics(t *testing.T) {
	stream := startServer(t)

	note, err := jsonrpc2.NewNotification("textDocument/didOpen", map[string]any{
		"textDocument": map[string]any{
			"uri":        "file:///doc.md",
			"languageId": "markdown",
			"version":    1,
			"text":       "```caddyfile\nexample.com {\n```\n",
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := stream.Write(context.Background(), note); err != nil {
		t.Fatal(err)
	}

	msg := read(t, stream)
	published, ok := msg.(*jsonrpc2.Notification)
	if !ok || published.Method() != "textDocument/publishDiagnostics" {
		t.Fatalf("got %v, want publishDiagnostics", msg)
	}
	var params struct {
		URI         string            `json:"uri"`
		Diagnostics []json.RawMessage `json:"diagnostics"`
	}
	if err := json.Unmarshal(published.Params(), &params); err != nil {
		t.Fatal(err)
	}
	if params.URI != "file:///doc.md" {
		t.Errorf("published for %q", params.URI)
	}
	if len(params.Diagnostics) == 0 {
		t.Error("no diagnostics for an unclosed site block")
	}
}

func TestServeUnknownMethodErrors(t *testing.T) {
	stream := startServer(t)

	call(t, stream, 7, "workspace/unsupportedThing", nil)
	msg := read(t, stream)
	resp, ok := msg.(*jsonrpc2.Response)
	if !ok {
		t.Fatalf("got %T, want response", msg)
	}
	if resp.Err() == nil {
		t.Error("unknown method answered without error")
	}
}
