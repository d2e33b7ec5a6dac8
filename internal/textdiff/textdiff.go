// Package textdiff turns two full-text snapshots into a minimal, ordered,
// non-overlapping sequence of edit.Edit records expressed in the original
// text's byte coordinates.
package textdiff

import (
	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/bridgels/bridgels/internal/edit"
)

var dmp = diffmatchpatch.New()

// Reconstruct returns the minimal edit sequence that turns oldText into
// newText, sorted by Start and pairwise non-overlapping. It fast-paths the
// no-op case and falls back to a single whole-document edit if the
// diff-derived edits ever turn out to overlap (which should not happen, but
// is treated as a programmer-recoverable condition rather than a panic).
func Reconstruct(oldText, newText string) []edit.Edit {
	if oldText == newText {
		return nil
	}

	diffs := dmp.DiffMain(oldText, newText, false)
	diffs = dmp.DiffCleanupSemanticLossless(diffs)
	diffs = dmp.DiffCleanupMerge(diffs)

	edits := runsToEdits(diffs)
	if !nonOverlapping(edits) {
		return []edit.Edit{{
			Start:  0,
			OldEnd: uint32(len(oldText)),
			NewEnd: uint32(len(newText)),
		}}
	}
	return edits
}

// runsToEdits walks the Equal/Insert/Delete run sequence from the diff
// library and coalesces adjacent Insert/Delete runs into single edits,
// measuring every run by UTF-8 byte length (not rune or code-point count).
func runsToEdits(diffs []diffmatchpatch.Diff) []edit.Edit {
	var out []edit.Edit
	oldPos := uint32(0)

	i := 0
	for i < len(diffs) {
		d := diffs[i]
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			oldPos += uint32(len(d.Text))
			i++
		case diffmatchpatch.DiffDelete, diffmatchpatch.DiffInsert:
			start := oldPos
			var deleted, inserted int
			for i < len(diffs) && diffs[i].Type != diffmatchpatch.DiffEqual {
				switch diffs[i].Type {
				case diffmatchpatch.DiffDelete:
					deleted += len(diffs[i].Text)
				case diffmatchpatch.DiffInsert:
					inserted += len(diffs[i].Text)
				}
				i++
			}
			oldEnd := start + uint32(deleted)
			out = append(out, edit.Edit{
				Start:  start,
				OldEnd: oldEnd,
				NewEnd: start + uint32(inserted),
			})
			oldPos = oldEnd
		default:
			i++
		}
	}
	return out
}

// nonOverlapping reports whether edits are sorted by Start and each edit's
// OldEnd is <= the next edit's Start, in original-text coordinates.
func nonOverlapping(edits []edit.Edit) bool {
	for i := 1; i < len(edits); i++ {
		if edits[i].Start < edits[i-1].OldEnd {
			return false
		}
	}
	for i := 0; i < len(edits); i++ {
		if edits[i].Start > edits[i].OldEnd {
			return false
		}
	}
	return true
}

// Apply replays edits (sorted ascending, in oldText's byte coordinates) by
// copying unchanged spans from oldText and replacement spans from newText,
// reproducing newText. It exists so tests can verify the diff round-trip
// property (reconstructed edits applied to oldText yield newText exactly)
// independent of the tracker.
func Apply(oldText, newText string, edits []edit.Edit) string {
	out := make([]byte, 0, len(newText))
	oldPos, newPos := uint32(0), uint32(0)
	for _, e := range edits {
		out = append(out, oldText[oldPos:e.Start]...)
		newPos += e.Start - oldPos
		out = append(out, newText[newPos:e.NewEnd-e.Start+newPos]...)
		newPos += e.NewEnd - e.Start
		oldPos = e.OldEnd
	}
	out = append(out, oldText[oldPos:]...)
	return string(out)
}
