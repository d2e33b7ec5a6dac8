// Package injection implements the injection resolver: given a
// host tree, its text, and a grammar's injection query, it produces the
// ordered list of embedded-language regions, each with a stable identity, a
// byte range, a starting line, and line-preserving "virtual content".
package injection

import (
	"strings"

	"github.com/bridgels/bridgels/internal/grammar"
	"github.com/bridgels/bridgels/internal/region"
)

// Region is one resolved injection: a stable identity, the language it is
// written in, its byte range in the host document, the host line its range
// begins on, and the virtual content a downstream server would see for it.
type Region struct {
	ID              region.Identity
	Language        string
	Range           grammar.Range
	RegionStartLine uint32
	VirtualContent  string
}

// Resolver turns grammar-reported injection matches into identity-tracked
// Regions, in document order.
type Resolver struct {
	tracker *region.Tracker
}

// New returns a Resolver allocating identities from tracker.
func New(tracker *region.Tracker) *Resolver {
	return &Resolver{tracker: tracker}
}

// Resolve walks tree's injections against text and returns the ordered
// region list for hostURI.
func (r *Resolver) Resolve(hostURI string, lang grammar.Language, tree grammar.Tree, text string) []Region {
	matches := lang.Injections(tree, text)
	regions := make([]Region, 0, len(matches))
	for _, m := range matches {
		id := r.tracker.GetOrCreate(hostURI, m.Range.Start, m.Range.End, m.NodeKind)
		lineStart, startLine := lineStartOf(text, m.Range.Start)
		// Range.End is exclusive: the span ends with the line holding the
		// region's last byte, not the line End itself falls on.
		lastByte := m.Range.End
		if lastByte > m.Range.Start {
			lastByte--
		}
		lineEnd := lineEndOf(text, lastByte)
		regions = append(regions, Region{
			ID:              id,
			Language:        m.Language,
			Range:           m.Range,
			RegionStartLine: startLine,
			VirtualContent:  virtualContent(text[lineStart:lineEnd], m.Range.Start-lineStart, m.Range.End-lineStart),
		})
	}
	return regions
}

// lineStartOf returns the byte offset of the start of the line containing
// offset, and that line's zero-based line number.
func lineStartOf(text string, offset uint32) (uint32, uint32) {
	line := uint32(0)
	lineStart := uint32(0)
	for i := 0; i < int(offset) && i < len(text); i++ {
		if text[i] == '\n' {
			line++
			lineStart = uint32(i + 1)
		}
	}
	return lineStart, line
}

// lineEndOf returns the byte offset just past the end of the line
// containing offset (i.e. including its terminator, if any).
func lineEndOf(text string, offset uint32) uint32 {
	i := int(offset)
	for i < len(text) {
		if text[i] == '\n' {
			return uint32(i + 1)
		}
		i++
	}
	return uint32(len(text))
}

// virtualContent returns lineSpan (the full lines a region occupies) with
// every byte outside [start, end) replaced by a whitespace placeholder,
// preserving newlines so line numbers inside the region match the host
// document once offset by region_start_line: virtual_line = host_line -
// region_start_line holds for every position within the region.
func virtualContent(lineSpan string, start, end uint32) string {
	var b strings.Builder
	b.Grow(len(lineSpan))
	for i := 0; i < len(lineSpan); i++ {
		c := lineSpan[i]
		switch {
		case uint32(i) >= start && uint32(i) < end:
			b.WriteByte(c)
		case c == '\n':
			b.WriteByte('\n')
		default:
			b.WriteByte(' ')
		}
	}
	return b.String()
}
