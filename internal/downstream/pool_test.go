package downstream

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.lsp.dev/jsonrpc2"

	"github.com/bridgels/bridgels/internal/config"
)

// newTestPool returns a pool whose spawn produces an in-memory connection
// (already Ready) instead of a real subprocess, plus a counter of how many
// spawns actually happened.
func newTestPool(t *testing.T) (*Pool, *atomic.Int32) {
	t.Helper()
	var spawns atomic.Int32
	p := NewPool(nil)
	p.spawn = func(ctx context.Context, cfg config.BridgeConfig, progress ProgressFunc) (*Conn, error) {
		spawns.Add(1)
		clientSide, serverSide := net.Pipe()
		t.Cleanup(func() {
			clientSide.Close()
			serverSide.Close()
		})
		// Drain the server side so writes never block.
		go func() {
			stream := jsonrpc2.NewStream(serverSide)
			for {
				if _, _, err := stream.Read(context.Background()); err != nil {
					return
				}
			}
		}()
		c := newConn(cfg.ServerName, clientSide, progress)
		c.state.Store(int32(StateReady))
		close(c.readyCh)
		return c, nil
	}
	return p, &spawns
}

func TestPoolLeaderElection(t *testing.T) {
	p, spawns := newTestPool(t)
	cfg := config.BridgeConfig{ServerName: "lua-ls", Command: "true"}

	const callers = 8
	conns := make([]*Conn, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := p.GetOrCreate(context.Background(), cfg)
			if err != nil {
				t.Errorf("caller %d: %v", i, err)
				return
			}
			conns[i] = c
		}(i)
	}
	wg.Wait()

	if n := spawns.Load(); n != 1 {
		t.Fatalf("spawn count = %d, want 1", n)
	}
	for i := 1; i < callers; i++ {
		if conns[i] != conns[0] {
			t.Fatalf("caller %d observed a different connection", i)
		}
	}
}

func TestPoolDistinctServers(t *testing.T) {
	p, spawns := newTestPool(t)

	a, err := p.GetOrCreate(context.Background(), config.BridgeConfig{ServerName: "a"})
	if err != nil {
		t.Fatal(err)
	}
	b, err := p.GetOrCreate(context.Background(), config.BridgeConfig{ServerName: "b"})
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatal("distinct server names share a connection")
	}
	if n := spawns.Load(); n != 2 {
		t.Fatalf("spawn count = %d, want 2", n)
	}
}

func TestPoolRespawnsFailedConnection(t *testing.T) {
	p, spawns := newTestPool(t)
	cfg := config.BridgeConfig{ServerName: "c"}

	first, err := p.GetOrCreate(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	first.fail(context.Canceled)

	second, err := p.GetOrCreate(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if second == first {
		t.Fatal("failed connection returned again instead of respawned")
	}
	if n := spawns.Load(); n != 2 {
		t.Fatalf("spawn count = %d, want 2", n)
	}
}

func TestPoolUpstreamRouting(t *testing.T) {
	p, _ := newTestPool(t)
	cfg := config.BridgeConfig{ServerName: "d"}

	conn, err := p.GetOrCreate(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}

	p.RegisterUpstreamRequest("up-1", "d")
	_, _ = conn.RegisterRequest("up-1")

	// A forwarded cancel reaches the connection's reverse map; once
	// UnregisterUpstreamRequest drops the pool's routing entry, the same
	// cancel is a no-op.
	p.CancelUpstream("up-1")

	p.UnregisterUpstreamRequest("up-1")
	p.CancelUpstream("up-1") // idempotent: no entry, no error

	// Cancels for never-registered ids never error either.
	p.CancelUpstream("ghost")
}

func TestPoolUnregisterUnknownIsNoOp(t *testing.T) {
	p, _ := newTestPool(t)
	p.UnregisterUpstreamRequest("missing")
	p.CancelUpstream("missing")
}

func TestPoolWaitForSpawnInFlight(t *testing.T) {
	p, _ := newTestPool(t)
	slowCh := make(chan struct{})
	base := p.spawn
	p.spawn = func(ctx context.Context, cfg config.BridgeConfig, progress ProgressFunc) (*Conn, error) {
		<-slowCh
		return base(ctx, cfg, progress)
	}

	cfg := config.BridgeConfig{ServerName: "slow"}
	leaderDone := make(chan *Conn, 1)
	go func() {
		c, _ := p.GetOrCreate(context.Background(), cfg)
		leaderDone <- c
	}()

	// Second caller with a short deadline while the leader is stuck
	// spawning: it must time out rather than start a second spawn.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	for {
		// Wait until the leader has installed its entry.
		p.mu.Lock()
		_, installed := p.conns["slow"]
		p.mu.Unlock()
		if installed {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if _, err := p.GetOrCreate(ctx, cfg); err == nil {
		t.Fatal("expected timeout waiting for in-flight spawn")
	}

	close(slowCh)
	if c := <-leaderDone; c == nil {
		t.Fatal("leader spawn failed")
	}
}
