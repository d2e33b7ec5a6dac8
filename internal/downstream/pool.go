package downstream

import (
	"context"
	"sync"

	"github.com/tliron/commonlog"

	"github.com/bridgels/bridgels/internal/bridgerr"
	"github.com/bridgels/bridgels/internal/config"
)

// Pool maps server name to its shared connection and records which server
// each in-flight upstream request was dispatched to, so a cancel arriving at
// the facade can be routed without knowing which region produced it.
type Pool struct {
	log      commonlog.Logger
	progress ProgressFunc
	spawn    func(ctx context.Context, cfg config.BridgeConfig, progress ProgressFunc) (*Conn, error)

	mu       sync.Mutex
	conns    map[string]*poolEntry
	upstream map[string]string // upstream request id -> server name
}

// poolEntry exists from the moment the first caller asks for a server. Its
// ready channel closes when the leader's spawn attempt finishes, so
// concurrent callers for the same name observe exactly one spawn.
type poolEntry struct {
	ready chan struct{}
	conn  *Conn
	err   error
}

// NewPool returns an empty Pool. Progress notifications from every spawned
// connection are funneled to progress.
func NewPool(progress ProgressFunc) *Pool {
	return &Pool{
		log:      commonlog.GetLogger("bridgels.pool"),
		progress: progress,
		spawn:    Spawn,
		conns:    make(map[string]*poolEntry),
		upstream: make(map[string]string),
	}
}

// SetSpawner replaces the subprocess spawner, so embedders and tests can
// supply in-process connections instead of real child processes.
func (p *Pool) SetSpawner(spawn func(ctx context.Context, cfg config.BridgeConfig, progress ProgressFunc) (*Conn, error)) {
	p.spawn = spawn
}

// GetOrCreate returns the connection for cfg.ServerName, spawning and
// initializing it if absent or previously Failed. Exactly one of any set of
// concurrent callers becomes the spawn leader; the rest wait for its
// outcome.
func (p *Pool) GetOrCreate(ctx context.Context, cfg config.BridgeConfig) (*Conn, error) {
	p.mu.Lock()
	entry, ok := p.conns[cfg.ServerName]
	if ok {
		select {
		case <-entry.ready:
			if entry.err == nil && entry.conn.State() != StateFailed {
				p.mu.Unlock()
				return entry.conn, nil
			}
			// Previous spawn failed or the connection died: this caller
			// becomes the leader for a respawn.
			ok = false
		default:
			// Spawn in flight; fall through to wait outside the lock.
		}
	}
	if !ok {
		entry = &poolEntry{ready: make(chan struct{})}
		p.conns[cfg.ServerName] = entry
		p.mu.Unlock()

		conn, err := p.spawn(ctx, cfg, p.progress)
		entry.conn, entry.err = conn, err
		close(entry.ready)
		if err != nil {
			p.log.Warningf("spawn %s: %v", cfg.ServerName, err)
			return nil, err
		}
		return conn, nil
	}
	p.mu.Unlock()

	select {
	case <-entry.ready:
	case <-ctx.Done():
		return nil, bridgerr.Wrap(bridgerr.DownstreamTimeout, "waiting for "+cfg.ServerName+" to spawn", ctx.Err())
	}
	if entry.err != nil {
		return nil, entry.err
	}
	return entry.conn, nil
}

// Lookup returns the existing connection for serverName without spawning.
func (p *Pool) Lookup(serverName string) (*Conn, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.conns[serverName]
	if !ok {
		return nil, false
	}
	select {
	case <-entry.ready:
	default:
		return nil, false
	}
	if entry.err != nil || entry.conn == nil {
		return nil, false
	}
	return entry.conn, true
}

// RegisterUpstreamRequest records that upstreamID was dispatched to
// serverName, for cancel routing.
func (p *Pool) RegisterUpstreamRequest(upstreamID, serverName string) {
	if upstreamID == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.upstream[upstreamID] = serverName
}

// UnregisterUpstreamRequest forgets upstreamID. Called on completion or
// cancellation; unknown IDs are a no-op.
func (p *Pool) UnregisterUpstreamRequest(upstreamID string) {
	if upstreamID == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.upstream, upstreamID)
}

// CancelUpstream forwards a $/cancelRequest for upstreamID to whichever
// downstream connection the request was dispatched to. Best-effort and
// idempotent: if the request already completed, was never dispatched, or
// sits in the window before router registration, the cancel is dropped
// silently.
func (p *Pool) CancelUpstream(upstreamID string) {
	p.mu.Lock()
	serverName, ok := p.upstream[upstreamID]
	p.mu.Unlock()
	if !ok {
		return
	}
	conn, ok := p.Lookup(serverName)
	if !ok {
		return
	}
	conn.CancelUpstream(upstreamID)
}

// ShutdownAll shuts every connection down and empties the pool.
func (p *Pool) ShutdownAll(ctx context.Context) {
	p.mu.Lock()
	entries := make([]*poolEntry, 0, len(p.conns))
	for _, e := range p.conns {
		entries = append(entries, e)
	}
	p.conns = make(map[string]*poolEntry)
	p.upstream = make(map[string]string)
	p.mu.Unlock()

	var wg sync.WaitGroup
	for _, e := range entries {
		select {
		case <-e.ready:
		default:
			continue // still spawning; the connection it produces is not shut down here
		}
		if e.err != nil || e.conn == nil {
			continue
		}
		wg.Add(1)
		go func(c *Conn) {
			defer wg.Done()
			c.Shutdown(ctx)
		}(e.conn)
	}
	wg.Wait()
}
