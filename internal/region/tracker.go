// Package region implements the stable region identity tracker:
// a per-host-URI mapping from a region's (start, end, node kind) to a
// persistent identifier that survives text edits under the START-priority
// invalidation rule.
package region

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/bridgels/bridgels/internal/edit"
	"github.com/bridgels/bridgels/internal/textdiff"
)

// Identity is a 128-bit monotonically generated identifier, surfaced to
// downstream servers inside virtual document URIs.
type Identity string

// Key is the Region Position Key: (start_byte, end_byte, node_kind).
type Key struct {
	Start uint32
	End   uint32
	Kind  string
}

// idGenerator hands out monotonically increasing ULIDs. oklog/ulid's
// monotonic entropy source is not safe for concurrent use on its own, so
// access is serialized by mu.
type idGenerator struct {
	mu     sync.Mutex
	source *ulid.MonotonicEntropy
}

func newIDGenerator() *idGenerator {
	return &idGenerator{source: ulid.Monotonic(rand.Reader, 0)}
}

func (g *idGenerator) next() Identity {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := ulid.MustNew(ulid.Timestamp(time.Now()), g.source)
	return Identity(id.String())
}

// uriState holds the identity table for one host URI, guarded by its own
// exclusive lock so concurrent callers on different URIs never block each
// other.
type uriState struct {
	mu   sync.Mutex
	keys map[Key]Identity
}

// Tracker is a named, process-wide service with an explicit lifecycle: one
// instance is created at server initialize and lives until shutdown.
type Tracker struct {
	gen *idGenerator

	mu   sync.Mutex // guards docs map only, not its values
	docs map[string]*uriState
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{
		gen:  newIDGenerator(),
		docs: make(map[string]*uriState),
	}
}

func (t *Tracker) stateFor(hostURI string) *uriState {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.docs[hostURI]
	if !ok {
		st = &uriState{keys: make(map[Key]Identity)}
		t.docs[hostURI] = st
	}
	return st
}

// GetOrCreate returns the existing identity for (start, end, kind) under
// hostURI, or allocates and stores a fresh one. Concurrent callers racing on
// the same key observe exactly one allocation.
func (t *Tracker) GetOrCreate(hostURI string, start, end uint32, kind string) Identity {
	st := t.stateFor(hostURI)
	key := Key{Start: start, End: end, Kind: kind}

	st.mu.Lock()
	defer st.mu.Unlock()
	if id, ok := st.keys[key]; ok {
		return id
	}
	id := t.gen.next()
	st.keys[key] = id
	return id
}

// Cleanup drops every identity tracked for hostURI, e.g. on document close.
func (t *Tracker) Cleanup(hostURI string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.docs, hostURI)
}

// ApplyEdits updates identities for a sequence of edits expressed in running
// (post-previous-edit) coordinates, processed strictly in order, and returns
// the set of identities invalidated by any edit in the sequence.
func (t *Tracker) ApplyEdits(hostURI string, edits []edit.Edit) map[Identity]struct{} {
	st := t.stateFor(hostURI)
	st.mu.Lock()
	defer st.mu.Unlock()

	invalidated := make(map[Identity]struct{})
	for _, e := range edits {
		applyOne(st.keys, e, invalidated)
	}
	return invalidated
}

// ApplyTextDiff reconciles the identity table for hostURI with the
// transition from oldText to newText. It reconstructs a minimal edit
// sequence in original-text coordinates (highest start first, so repeatedly
// applying edits keeps not-yet-visited coordinates meaningful) and returns
// the identities invalidated as a result.
func (t *Tracker) ApplyTextDiff(hostURI, oldText, newText string) map[Identity]struct{} {
	invalidated := make(map[Identity]struct{})
	if oldText == newText {
		return invalidated
	}

	st := t.stateFor(hostURI)
	st.mu.Lock()
	defer st.mu.Unlock()

	edits := textdiff.Reconstruct(oldText, newText)
	for i := len(edits) - 1; i >= 0; i-- {
		applyOne(st.keys, edits[i], invalidated)
	}
	return invalidated
}

// applyOne applies a single edit to keys in place, per the START-priority
// invalidation rule, recording any dropped identities (including
// post-reposition collisions) into invalidated.
func applyOne(keys map[Key]Identity, e edit.Edit, invalidated map[Identity]struct{}) {
	type repositioned struct {
		key Key
		id  Identity
	}
	var survivors []repositioned

	for key, id := range keys {
		newKey, ok := reposition(key, e)
		if !ok {
			invalidated[id] = struct{}{}
			delete(keys, key)
			continue
		}
		if newKey != key {
			delete(keys, key)
		}
		survivors = append(survivors, repositioned{newKey, id})
	}

	// Detect collisions among survivors. Go map iteration has no defined
	// order, so "first writer wins" is made deterministic by keeping the
	// smaller (older) identity; ULIDs are monotonic, so this is the
	// earliest-allocated region.
	bestByKey := make(map[Key]repositioned, len(survivors))
	for _, s := range survivors {
		cur, exists := bestByKey[s.key]
		if !exists {
			bestByKey[s.key] = s
			continue
		}
		if s.id < cur.id {
			invalidated[cur.id] = struct{}{}
			bestByKey[s.key] = s
		} else {
			invalidated[s.id] = struct{}{}
		}
	}
	for key, s := range bestByKey {
		keys[key] = s.id
	}
}

// reposition computes the post-edit key for a single surviving (not
// invalidated) key, or reports ok=false if the edit invalidates it.
func reposition(key Key, e edit.Edit) (Key, bool) {
	if e.IsInsertion() {
		if key.Start == e.Start {
			return Key{}, false
		}
		if key.Start >= e.Start {
			delta := e.Delta()
			key.Start = edit.SaturatingAdd(key.Start, delta)
			key.End = edit.SaturatingAdd(key.End, delta)
		}
		return key, true
	}

	if e.Start <= key.Start && key.Start < e.OldEnd {
		return Key{}, false
	}

	if key.Start >= e.OldEnd {
		delta := e.Delta()
		key.Start = edit.SaturatingAdd(key.Start, delta)
		key.End = edit.SaturatingAdd(key.End, delta)
		return key, true
	}

	// key.Start < e.Start here (the only remaining possibility, since
	// e.Start <= key.Start < e.OldEnd was already invalidated above).
	if key.End <= e.Start {
		// Key lies entirely before the edit; untouched.
		return key, true
	}

	// key.Start < e.Start, key.End > e.Start: the edit falls inside this
	// key's range. The start stays; the end is absorbed to the edit's new
	// end if the key previously extended only to the edit's old end or
	// less, otherwise shifted by the delta.
	if key.End <= e.OldEnd {
		key.End = e.NewEnd
	} else {
		key.End = edit.SaturatingAdd(key.End, e.Delta())
	}
	return key, true
}
