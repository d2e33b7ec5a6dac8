// Package server runs the upstream-facing LSP loop over stdio: framed
// JSON-RPC messages in, handler dispatch, framed responses out through a
// single writer task.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
	"go.lsp.dev/jsonrpc2"

	"github.com/bridgels/bridgels/internal/config"
	"github.com/bridgels/bridgels/internal/grammar/fenced"
	"github.com/bridgels/bridgels/internal/handler"
	"github.com/bridgels/bridgels/internal/hostlang"
	"github.com/bridgels/bridgels/internal/hostlang/caddyfile"
)

// Run wires up the facade and serves LSP on stdio until the client sends
// exit or the transport closes.
func Run(logLevel, configPath string) error {
	configureLogging(logLevel)
	log := commonlog.GetLogger("bridgels.server")

	var cfg *config.Config
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			// A broken configuration disables bridging but the server still
			// serves local features.
			log.Errorf("configuration: %v", err)
		} else {
			cfg = loaded
		}
	}

	return serve(stdio{}, cfg, log)
}

// stdio joins process stdin/stdout into the transport the framing stream
// wants.
type stdio struct{}

func (stdio) Read(b []byte) (int, error)  { return os.Stdin.Read(b) }
func (stdio) Write(b []byte) (int, error) { return os.Stdout.Write(b) }
func (stdio) Close() error                { return os.Stdout.Close() }

func serve(rwc io.ReadWriteCloser, cfg *config.Config, log commonlog.Logger) error {
	stream := jsonrpc2.NewStream(rwc)
	outbound := make(chan jsonrpc2.Message, 64)
	done := make(chan struct{})

	// Single writer: responses and notifications from any handler task
	// funnel through here.
	go func() {
		for {
			select {
			case msg := <-outbound:
				if _, err := stream.Write(context.Background(), msg); err != nil {
					log.Errorf("write: %v", err)
					return
				}
			case <-done:
				return
			}
		}
	}()

	notify := func(method string, params any) {
		note, err := jsonrpc2.NewNotification(method, params)
		if err != nil {
			log.Errorf("building %s notification: %v", method, err)
			return
		}
		select {
		case outbound <- note:
		case <-done:
		}
	}

	h := handler.New(cfg, fenced.New(), hostlang.NewRegistry(caddyfile.New()), notify)
	defer h.Pool().ShutdownAll(context.Background())
	defer close(done)

	ctx := context.Background()
	for {
		msg, _, err := stream.Read(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		switch m := msg.(type) {
		case *jsonrpc2.Call:
			// Handler tasks run in parallel; responses re-serialize through
			// the outbound channel.
			go func(call *jsonrpc2.Call) {
				result, err := h.Dispatch(ctx, upstreamKey(call.ID()), call.Method(), call.Params())
				resp, rerr := jsonrpc2.NewResponse(call.ID(), result, err)
				if rerr != nil {
					log.Errorf("building response for %s: %v", call.Method(), rerr)
					return
				}
				select {
				case outbound <- resp:
				case <-done:
				}
			}(m)
		case *jsonrpc2.Notification:
			if m.Method() == "exit" {
				return nil
			}
			// Document sync applies here, in arrival order; only the cancel
			// notification needs to race the handler tasks, and it does not
			// block.
			h.Notification(m.Method(), m.Params())
		}
	}
}

// upstreamKey renders a wire request ID as its JSON text, the same
// rendering the cancel path derives from CancelParams, so the cancel table
// and pool agree on keys for both numeric and string IDs.
func upstreamKey(id jsonrpc2.ID) string {
	if data, err := json.Marshal(&id); err == nil {
		return string(data)
	}
	return fmt.Sprintf("%v", id)
}

func configureLogging(level string) {
	// commonlog.Configure verbosity: 1=Error, 2=Warning, 3=Notice, 4=Info, 5=Debug
	verbosity := 2 // Warning by default
	switch level {
	case "debug":
		verbosity = 5
	case "info":
		verbosity = 4
	case "warning", "warn":
		verbosity = 2
	case "error":
		verbosity = 1
	}
	commonlog.Configure(verbosity, nil)
}
