// Package layer is the language layer store: per open
// host document, the current text, the parsed host tree, and the injection
// layers derived from it.
package layer

import (
	"sync"

	"github.com/bridgels/bridgels/internal/grammar"
)

// Layer is a (language_id, parsed tree, byte ranges) triple. The root layer
// covers the whole document; injection layers cover one or more disjoint
// byte ranges at some depth > 0.
type Layer struct {
	Language string
	Tree     grammar.Tree
	Ranges   []grammar.Range
	Depth    int
}

// contains reports whether offset falls within any of the layer's ranges.
func (l Layer) contains(offset uint32) bool {
	for _, r := range l.Ranges {
		if offset >= r.Start && offset < r.End {
			return true
		}
	}
	return false
}

// doc holds one open document's state. Text and tree are read-mostly: reads
// take the read lock, and the RWMutex is write-locked from the
// change-notification path and by Layers when it recomputes stale layers.
type doc struct {
	mu      sync.RWMutex
	text    string
	version int32
	root    Layer
	layers  []Layer // injection layers, recomputed lazily; nil means stale
}

// Store holds, per open host URI, the current text, parsed host tree, and
// injection layers. It owns trees exclusively; callers only ever borrow them
// through its accessor methods.
type Store struct {
	lang grammar.Language

	mu   sync.Mutex // guards docs map only
	docs map[string]*doc
}

// New returns a Store driving parsing with lang.
func New(lang grammar.Language) *Store {
	return &Store{lang: lang, docs: make(map[string]*doc)}
}

// Language returns the host language this store parses with.
func (s *Store) Language() grammar.Language { return s.lang }

func (s *Store) entry(uri string) (*doc, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[uri]
	return d, ok
}

// DidOpen parses the initial text for uri and registers the document at
// version 1.
func (s *Store) DidOpen(uri, text string) {
	tree := s.lang.Parse(text, nil)
	d := &doc{
		text:    text,
		version: 1,
		root:    Layer{Language: s.lang.Name(), Tree: tree, Ranges: []grammar.Range{{Start: 0, End: uint32(len(text))}}},
	}
	s.mu.Lock()
	s.docs[uri] = d
	s.mu.Unlock()
}

// DidChange applies a full-text update: the stored tree is informed of the
// whole-document edit as a reparse hint, reparsed, and injection layers are
// invalidated for lazy recomputation.
func (s *Store) DidChange(uri, newText string) {
	d, ok := s.entry(uri)
	if !ok {
		s.DidOpen(uri, newText)
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	oldLen := uint32(len(d.text))
	d.root.Tree.Edit(0, oldLen, uint32(len(newText)))
	d.text = newText
	d.version++
	d.root.Tree = s.lang.Parse(newText, d.root.Tree)
	d.root.Ranges = []grammar.Range{{Start: 0, End: uint32(len(newText))}}
	d.layers = nil // invalidate; recomputed lazily by ensureLayers
}

// Version returns the document's change counter: 1 at open, incremented on
// every applied change.
func (s *Store) Version(uri string) (int32, bool) {
	d, ok := s.entry(uri)
	if !ok {
		return 0, false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.version, true
}

// Close drops all state for uri.
func (s *Store) Close(uri string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, uri)
}

// Text returns the current text of uri.
func (s *Store) Text(uri string) (string, bool) {
	d, ok := s.entry(uri)
	if !ok {
		return "", false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.text, true
}

// RootTree returns the host language's parsed tree for uri.
func (s *Store) RootTree(uri string) (grammar.Tree, bool) {
	d, ok := s.entry(uri)
	if !ok {
		return nil, false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.root.Tree, true
}

// Layers recomputes (if stale) and returns the injection layers for uri,
// alongside the root layer.
func (s *Store) Layers(uri string) (root Layer, injections []Layer, ok bool) {
	d, found := s.entry(uri)
	if !found {
		return Layer{}, nil, false
	}

	d.mu.RLock()
	if d.layers != nil {
		root, injections = d.root, d.layers
		d.mu.RUnlock()
		return root, injections, true
	}
	d.mu.RUnlock()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.layers == nil {
		d.layers = s.computeInjectionLayers(d)
	}
	return d.root, d.layers, true
}

func (s *Store) computeInjectionLayers(d *doc) []Layer {
	matches := s.lang.Injections(d.root.Tree, d.text)
	layers := make([]Layer, 0, len(matches))
	for _, m := range matches {
		layers = append(layers, Layer{
			Language: m.Language,
			Tree:     nil, // injected languages are parsed downstream, not here
			Ranges:   []grammar.Range{m.Range},
			Depth:    1,
		})
	}
	return layers
}

// GetLayerAtOffset returns the deepest layer whose ranges contain offset,
// falling back to the root layer.
func (s *Store) GetLayerAtOffset(uri string, offset uint32) (Layer, bool) {
	root, injections, ok := s.Layers(uri)
	if !ok {
		return Layer{}, false
	}
	best := root
	bestDepth := 0
	for _, l := range injections {
		if l.contains(offset) && l.Depth > bestDepth {
			best = l
			bestDepth = l.Depth
		}
	}
	return best, true
}
