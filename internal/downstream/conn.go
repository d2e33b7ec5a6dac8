// Package downstream manages the per-language servers this process spawns
// and forwards requests to: one subprocess per configured server, each with
// a single writer task owning its stdin and a single reader task
// demultiplexing its stdout, plus the pool that coordinates spawn,
// initialization, and shutdown across all of them.
package downstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tliron/commonlog"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"

	"github.com/bridgels/bridgels/internal/bridgerr"
	"github.com/bridgels/bridgels/internal/config"
)

// State is the connection lifecycle state.
type State int32

const (
	StateInitializing State = iota
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

const (
	initializeTimeout  = 30 * time.Second
	shutdownTimeout    = 5 * time.Second
	writeQueueCapacity = 64

	methodCancelRequest = "$/cancelRequest"
)

// ProgressFunc receives the raw params of a $/progress notification from the
// downstream server so the facade can relay it upstream.
type ProgressFunc func(params json.RawMessage)

// openDoc tracks one virtual document already opened on a connection.
type openDoc struct {
	version int32
}

// Conn is one downstream language-server connection. All outgoing traffic is
// enqueued into writeCh and drained to the subprocess stdin by a single
// writer goroutine; a single reader goroutine frames stdout and routes
// responses to their registered oneshot receivers.
type Conn struct {
	Name string

	log       commonlog.Logger
	stream    jsonrpc2.Stream
	cmd       *exec.Cmd
	workspace *Workspace
	progress  ProgressFunc

	writeCh chan jsonrpc2.Message
	done    chan struct{} // closed when the connection is torn down (fail or Shutdown)

	state   atomic.Int32
	readyCh chan struct{} // closed on the Initializing -> Ready|Failed transition

	closeOnce sync.Once

	mu           sync.Mutex
	nextID       int64
	pending      map[jsonrpc2.ID]chan *jsonrpc2.Response
	upstreamToID map[string]jsonrpc2.ID
	capabilities map[string]bool // method name -> advertised, static + dynamic
	opened       map[string]*openDoc
}

// stdioPipe joins a subprocess's stdout (reads) and stdin (writes) into the
// io.ReadWriteCloser the jsonrpc2 framing stream wants.
type stdioPipe struct {
	r io.ReadCloser
	w io.WriteCloser
}

func (p stdioPipe) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p stdioPipe) Write(b []byte) (int, error) { return p.w.Write(b) }
func (p stdioPipe) Close() error {
	err := p.w.Close()
	if rerr := p.r.Close(); err == nil {
		err = rerr
	}
	return err
}

// newConn wires a Conn over an arbitrary transport and starts its writer and
// reader tasks. It does not run the initialize handshake; Spawn does.
func newConn(name string, rwc io.ReadWriteCloser, progress ProgressFunc) *Conn {
	c := &Conn{
		Name:         name,
		log:          commonlog.GetLogger("bridgels.downstream." + name),
		stream:       jsonrpc2.NewStream(rwc),
		progress:     progress,
		writeCh:      make(chan jsonrpc2.Message, writeQueueCapacity),
		done:         make(chan struct{}),
		readyCh:      make(chan struct{}),
		pending:      make(map[jsonrpc2.ID]chan *jsonrpc2.Response),
		upstreamToID: make(map[string]jsonrpc2.ID),
		capabilities: make(map[string]bool),
		opened:       make(map[string]*openDoc),
	}
	go c.writeLoop()
	go c.readLoop()
	return c
}

// NewInMemory wires a connection over an arbitrary transport, immediately
// Ready, with the given capabilities pre-recorded. It exists so embedders
// and tests can stand in for a spawned subprocess.
func NewInMemory(name string, rwc io.ReadWriteCloser, capabilities []string, progress ProgressFunc) *Conn {
	c := newConn(name, rwc, progress)
	for _, method := range capabilities {
		c.capabilities[method] = true
	}
	c.state.Store(int32(StateReady))
	close(c.readyCh)
	return c
}

// Spawn starts the configured subprocess, materializes its workspace, and
// runs the initialize handshake. The returned Conn is Ready on success. If
// the handshake fails, the Conn is returned Failed together with the error;
// a failure before the process starts returns a nil Conn.
func Spawn(ctx context.Context, cfg config.BridgeConfig, progress ProgressFunc) (*Conn, error) {
	ws, err := Materialize(cfg.ServerName, cfg.WorkspaceType, cfg.Languages)
	if err != nil {
		return nil, fmt.Errorf("materializing workspace for %s: %w", cfg.ServerName, err)
	}

	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Dir = ws.Dir
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		ws.Remove()
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		ws.Remove()
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		ws.Remove()
		return nil, fmt.Errorf("spawning %s: %w", cfg.ServerName, err)
	}

	c := newConn(cfg.ServerName, stdioPipe{r: stdout, w: stdin}, progress)
	c.cmd = cmd
	c.workspace = ws

	if err := c.initialize(ctx, cfg); err != nil {
		c.fail(err)
		return c, err
	}
	return c, nil
}

// State returns the connection's current lifecycle state.
func (c *Conn) State() State {
	return State(c.state.Load())
}

// WaitReady blocks until the connection leaves Initializing or ctx expires.
// It returns nil only if the connection ended up Ready.
func (c *Conn) WaitReady(ctx context.Context) error {
	select {
	case <-c.readyCh:
	case <-ctx.Done():
		return bridgerr.Wrap(bridgerr.DownstreamTimeout, "waiting for "+c.Name, ctx.Err())
	}
	if c.State() != StateReady {
		return bridgerr.New(bridgerr.NotFound, "connection "+c.Name+" failed during initialization")
	}
	return nil
}

// initialize runs the LSP initialize/initialized handshake and records the
// advertised server capabilities.
func (c *Conn) initialize(ctx context.Context, cfg config.BridgeConfig) error {
	var initOptions any
	if len(cfg.InitOptions) > 0 {
		initOptions = cfg.InitOptions
	}
	var rootURI uri.URI
	if c.workspace != nil {
		rootURI = c.workspace.RootURI()
	}
	params := protocol.InitializeParams{
		ProcessID:             int32(os.Getpid()),
		RootURI:               rootURI,
		InitializationOptions: initOptions,
		Capabilities: protocol.ClientCapabilities{
			TextDocument: &protocol.TextDocumentClientCapabilities{
				PublishDiagnostics: &protocol.PublishDiagnosticsClientCapabilities{
					RelatedInformation: true,
				},
			},
		},
	}

	id, recv := c.RegisterRequest("")
	call, err := jsonrpc2.NewCall(id, protocol.MethodInitialize, params)
	if err != nil {
		c.Remove(id)
		return err
	}
	if err := c.Enqueue(call); err != nil {
		c.Remove(id)
		return err
	}

	initCtx, cancel := context.WithTimeout(ctx, initializeTimeout)
	defer cancel()
	var resp *jsonrpc2.Response
	select {
	case resp = <-recv:
	case <-initCtx.Done():
		c.Remove(id)
		return bridgerr.Wrap(bridgerr.DownstreamTimeout, "initialize "+c.Name, initCtx.Err())
	case <-c.done:
		c.Remove(id)
		return bridgerr.New(bridgerr.ProtocolViolation, "connection "+c.Name+" closed during initialize")
	}
	if resp.Err() != nil {
		return fmt.Errorf("initialize %s: %w", c.Name, resp.Err())
	}

	c.recordStaticCapabilities(resp.Result())

	initialized, err := jsonrpc2.NewNotification(protocol.MethodInitialized, protocol.InitializedParams{})
	if err != nil {
		return err
	}
	if err := c.Enqueue(initialized); err != nil {
		return err
	}

	c.state.Store(int32(StateReady))
	close(c.readyCh)
	c.log.Infof("connection %s ready", c.Name)
	return nil
}

// capabilityField maps an LSP method to the server-capability field that
// advertises it. A method absent from this table is assumed supported, so
// notifications and lifecycle methods never gate.
var capabilityField = map[string]string{
	"textDocument/hover":                "hoverProvider",
	"textDocument/completion":           "completionProvider",
	"textDocument/signatureHelp":        "signatureHelpProvider",
	"textDocument/definition":           "definitionProvider",
	"textDocument/declaration":          "declarationProvider",
	"textDocument/typeDefinition":       "typeDefinitionProvider",
	"textDocument/implementation":       "implementationProvider",
	"textDocument/references":           "referencesProvider",
	"textDocument/documentHighlight":    "documentHighlightProvider",
	"textDocument/documentSymbol":       "documentSymbolProvider",
	"textDocument/documentLink":         "documentLinkProvider",
	"textDocument/documentColor":        "colorProvider",
	"textDocument/colorPresentation":    "colorProvider",
	"textDocument/rename":               "renameProvider",
	"textDocument/moniker":              "monikerProvider",
	"textDocument/diagnostic":           "diagnosticProvider",
	"textDocument/semanticTokens/range": "semanticTokensProvider",
}

func (c *Conn) recordStaticCapabilities(initResult json.RawMessage) {
	var result struct {
		Capabilities map[string]json.RawMessage `json:"capabilities"`
	}
	if err := json.Unmarshal(initResult, &result); err != nil {
		c.log.Warningf("unparseable initialize result from %s: %v", c.Name, err)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for method, field := range capabilityField {
		raw, ok := result.Capabilities[field]
		if !ok {
			continue
		}
		s := string(raw)
		if s == "false" || s == "null" {
			continue
		}
		c.capabilities[method] = true
	}
}

// HasCapability reports whether the server advertised support for method,
// either statically in the initialize response or dynamically through a
// later client/registerCapability request.
func (c *Conn) HasCapability(method string) bool {
	if _, gated := capabilityField[method]; !gated {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capabilities[method]
}

// RegisterRequest allocates a fresh downstream request ID and a oneshot
// receiver for its response. A non-empty upstreamID is recorded in the
// reverse map so a later cancel for that upstream request can be forwarded.
func (c *Conn) RegisterRequest(upstreamID string) (jsonrpc2.ID, <-chan *jsonrpc2.Response) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := jsonrpc2.NewNumberID(int32(c.nextID))
	recv := make(chan *jsonrpc2.Response, 1)
	c.pending[id] = recv
	if upstreamID != "" {
		c.upstreamToID[upstreamID] = id
	}
	return id, recv
}

// Remove drops the router entry for id and any reverse-map entry pointing at
// it. Safe to call for an id that was already dispatched or removed.
func (c *Conn) Remove(id jsonrpc2.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, id)
	for up, down := range c.upstreamToID {
		if down == id {
			delete(c.upstreamToID, up)
		}
	}
}

// CancelUpstream forwards a cancel for upstreamID to the downstream server,
// if the reverse map still knows the downstream ID. Best-effort: unknown IDs
// are dropped silently.
func (c *Conn) CancelUpstream(upstreamID string) {
	c.mu.Lock()
	id, ok := c.upstreamToID[upstreamID]
	c.mu.Unlock()
	if !ok {
		return
	}
	c.cancelDownstream(id)
}

func (c *Conn) cancelDownstream(id jsonrpc2.ID) {
	var raw json.RawMessage
	if b, err := id.MarshalJSON(); err == nil {
		raw = b
	}
	note, err := jsonrpc2.NewNotification(methodCancelRequest, &struct {
		ID json.RawMessage `json:"id"`
	}{ID: raw})
	if err != nil {
		return
	}
	// Never block on a cancel: if the write queue is full the cancel is
	// dropped, which best-effort semantics permit.
	select {
	case c.writeCh <- note:
	default:
		c.log.Warning("write queue full, dropping cancel")
	}
}

// Enqueue hands msg to the single-writer task. It fails once the connection
// has been torn down.
func (c *Conn) Enqueue(msg jsonrpc2.Message) error {
	select {
	case <-c.done:
		return bridgerr.New(bridgerr.NotFound, "connection "+c.Name+" is closed")
	default:
	}
	select {
	case c.writeCh <- msg:
		return nil
	case <-c.done:
		return bridgerr.New(bridgerr.NotFound, "connection "+c.Name+" is closed")
	}
}

// EnsureDocumentOpen sends textDocument/didOpen for virtualURI if this
// connection has not seen it, or textDocument/didChange (full text) with an
// incremented version if it has.
func (c *Conn) EnsureDocumentOpen(virtualURI, languageID, content string) error {
	c.mu.Lock()
	doc, ok := c.opened[virtualURI]
	if !ok {
		doc = &openDoc{version: 1}
		c.opened[virtualURI] = doc
	} else {
		doc.version++
	}
	version := doc.version
	c.mu.Unlock()

	var msg jsonrpc2.Message
	var err error
	if version == 1 {
		msg, err = jsonrpc2.NewNotification(protocol.MethodTextDocumentDidOpen, protocol.DidOpenTextDocumentParams{
			TextDocument: protocol.TextDocumentItem{
				URI:        protocol.DocumentURI(virtualURI),
				LanguageID: protocol.LanguageIdentifier(languageID),
				Version:    version,
				Text:       content,
			},
		})
	} else {
		msg, err = jsonrpc2.NewNotification(protocol.MethodTextDocumentDidChange, protocol.DidChangeTextDocumentParams{
			TextDocument: protocol.VersionedTextDocumentIdentifier{
				TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: protocol.DocumentURI(virtualURI)},
				Version:                version,
			},
			ContentChanges: []protocol.TextDocumentContentChangeEvent{{Text: content}},
		})
	}
	if err != nil {
		return err
	}
	return c.Enqueue(msg)
}

// writeLoop is the single writer: it owns the subprocess stdin and drains
// the channel in FIFO order, so no two requests ever race on the wire.
func (c *Conn) writeLoop() {
	ctx := context.Background()
	for {
		select {
		case msg := <-c.writeCh:
			if _, err := c.stream.Write(ctx, msg); err != nil {
				c.log.Errorf("write to %s: %v", c.Name, err)
				c.fail(err)
				return
			}
		case <-c.done:
			return
		}
	}
}

// readLoop is the single reader: it frames messages off the subprocess
// stdout and classifies them as response, server-to-client request, or
// notification.
func (c *Conn) readLoop() {
	ctx := context.Background()
	for {
		msg, _, err := c.stream.Read(ctx)
		if err != nil {
			select {
			case <-c.done:
			default:
				c.log.Warningf("read from %s: %v", c.Name, err)
				c.fail(bridgerr.Wrap(bridgerr.ProtocolViolation, "reading from "+c.Name, err))
			}
			return
		}
		switch m := msg.(type) {
		case *jsonrpc2.Response:
			c.dispatchResponse(m)
		case *jsonrpc2.Call:
			c.handleServerCall(m)
		case *jsonrpc2.Notification:
			c.handleServerNotification(m)
		}
	}
}

func (c *Conn) dispatchResponse(resp *jsonrpc2.Response) {
	c.mu.Lock()
	recv, ok := c.pending[resp.ID()]
	if ok {
		delete(c.pending, resp.ID())
	}
	c.mu.Unlock()
	if !ok {
		c.log.Infof("dropping response with unknown id %s from %s", resp.ID(), c.Name)
		return
	}
	recv <- resp
}

// handleServerCall answers server-to-client requests. Capability
// registrations are recorded; everything else the bridge has no use for is
// answered minimally so the downstream server does not stall.
func (c *Conn) handleServerCall(call *jsonrpc2.Call) {
	var result any
	var callErr error
	switch call.Method() {
	case protocol.MethodClientRegisterCapability:
		c.registerDynamicCapabilities(call.Params())
	case protocol.MethodClientUnregisterCapability:
		c.unregisterDynamicCapabilities(call.Params())
	case "window/workDoneProgress/create":
		// Accepted; the tokens show up later as $/progress notifications.
	case "workspace/configuration":
		var p struct {
			Items []json.RawMessage `json:"items"`
		}
		_ = json.Unmarshal(call.Params(), &p)
		result = make([]any, len(p.Items))
	default:
		callErr = jsonrpc2.ErrMethodNotFound
	}
	resp, err := jsonrpc2.NewResponse(call.ID(), result, callErr)
	if err != nil {
		c.log.Errorf("building response for %s: %v", call.Method(), err)
		return
	}
	if err := c.Enqueue(resp); err != nil {
		c.log.Warningf("replying to %s from %s: %v", call.Method(), c.Name, err)
	}
}

func (c *Conn) handleServerNotification(note *jsonrpc2.Notification) {
	switch note.Method() {
	case protocol.MethodProgress:
		if c.progress != nil {
			c.progress(note.Params())
		}
	case protocol.MethodWindowLogMessage:
		var p protocol.LogMessageParams
		if err := json.Unmarshal(note.Params(), &p); err == nil {
			c.log.Debugf("%s: %s", c.Name, p.Message)
		}
	case protocol.MethodTextDocumentPublishDiagnostics:
		// Push diagnostics from downstream are ignored; diagnostics flow
		// through the pull model so they can be fanned out per region.
	default:
	}
}

type registrationEntry struct {
	Method string `json:"method"`
}

// registrationParams is the shared wire shape of client/registerCapability
// and client/unregisterCapability. The "unregisterations" spelling is the
// protocol's own, kept for compatibility.
type registrationParams struct {
	Registrations   []registrationEntry `json:"registrations"`
	Unregistrations []registrationEntry `json:"unregisterations"`
}

func (c *Conn) registerDynamicCapabilities(raw json.RawMessage) {
	var p registrationParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range p.Registrations {
		c.capabilities[r.Method] = true
	}
}

func (c *Conn) unregisterDynamicCapabilities(raw json.RawMessage) {
	var p registrationParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range p.Unregistrations {
		delete(c.capabilities, r.Method)
	}
}

// fail tears the connection down: marks it Failed, fails every in-flight
// request, and closes the transport.
func (c *Conn) fail(cause error) {
	if !c.state.CompareAndSwap(int32(StateInitializing), int32(StateFailed)) {
		if !c.state.CompareAndSwap(int32(StateReady), int32(StateFailed)) {
			return // already failed
		}
	} else {
		close(c.readyCh)
	}
	c.log.Warningf("connection %s failed: %v", c.Name, cause)

	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[jsonrpc2.ID]chan *jsonrpc2.Response)
	c.upstreamToID = make(map[string]jsonrpc2.ID)
	c.mu.Unlock()
	for id, recv := range pending {
		if resp, err := jsonrpc2.NewResponse(id, nil, jsonrpc2.ErrInternal); err == nil {
			recv <- resp
		}
	}

	c.closeOnce.Do(func() { close(c.done) })
	c.stream.Close()
	if c.workspace != nil {
		c.workspace.Remove()
	}
	if c.cmd != nil && c.cmd.Process != nil {
		c.cmd.Process.Kill()
		go c.cmd.Wait()
	}
}

// Shutdown performs the best-effort shutdown/exit sequence, closes the
// transport, removes the workspace, and waits for the process with a bounded
// timeout.
func (c *Conn) Shutdown(ctx context.Context) {
	if c.State() == StateFailed {
		return
	}

	sctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	id, recv := c.RegisterRequest("")
	if call, err := jsonrpc2.NewCall(id, protocol.MethodShutdown, nil); err == nil {
		if err := c.Enqueue(call); err == nil {
			select {
			case <-recv:
			case <-sctx.Done():
			}
		}
	}
	c.Remove(id)
	if note, err := jsonrpc2.NewNotification(protocol.MethodExit, nil); err == nil {
		c.Enqueue(note)
	}

	c.state.Store(int32(StateFailed))
	c.closeOnce.Do(func() { close(c.done) })
	c.stream.Close()
	if c.workspace != nil {
		c.workspace.Remove()
	}
	if c.cmd != nil && c.cmd.Process != nil {
		waited := make(chan struct{})
		go func() {
			c.cmd.Wait()
			close(waited)
		}()
		select {
		case <-waited:
		case <-sctx.Done():
			c.cmd.Process.Kill()
		}
	}
}
