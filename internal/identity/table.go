// SPDX-License-Identifier: MIT

package identity

import "math"

// Unknown is the sentinel identity for tracks without a gallery match.
const Unknown = ""

// Assignment is the identity of one track.
type Assignment struct {
	Student    string // Unknown when no gallery row cleared the threshold
	Confidence float64
}

// Known reports whether the assignment carries a real student identity.
func (a Assignment) Known() bool { return a.Student != Unknown }

// Table maps live track ids to identity assignments. It is not safe for
// concurrent use; the owning session serialises access under its identity
// mutex.
//
// Assignment rules:
//   - unassigned or Unknown tracks take the argmax gallery match when the
//     similarity clears the threshold (inclusive), else stay Unknown with the
//     observed similarity;
//   - tracks with a known identity upgrade only on a strictly greater
//     similarity, possibly switching student, and are never downgraded back
//     to Unknown.
type Table struct {
	threshold float64
	entries   map[int]Assignment
}

// NewTable creates an identity table with the given similarity threshold.
func NewTable(threshold float64) *Table {
	return &Table{
		threshold: threshold,
		entries:   make(map[int]Assignment),
	}
}

// Resolve folds one (track, embedding) observation into the table using the
// supplied gallery snapshot.
func (t *Table) Resolve(trackID int, g *Gallery, embedding []float32) Assignment {
	student, sim := g.Best(embedding)
	sim = round4(sim)

	prev, seen := t.entries[trackID]
	var next Assignment
	switch {
	case !seen || !prev.Known():
		if student != "" && sim >= t.threshold {
			next = Assignment{Student: student, Confidence: sim}
		} else {
			next = Assignment{Student: Unknown, Confidence: sim}
		}
	case sim > prev.Confidence && student != "":
		next = Assignment{Student: student, Confidence: sim}
	default:
		next = prev
	}

	t.entries[trackID] = next
	return next
}

// Evict drops every track id not present in live.
func (t *Table) Evict(live map[int]struct{}) {
	for id := range t.entries {
		if _, ok := live[id]; !ok {
			delete(t.entries, id)
		}
	}
}

// Clear drops all assignments. Used when both the detector and the tracker
// go empty, together with a tracker reset.
func (t *Table) Clear() {
	t.entries = make(map[int]Assignment)
}

// Len returns the number of tracked identities.
func (t *Table) Len() int { return len(t.entries) }

// Known returns the known (non-Unknown) assignments keyed by track id.
func (t *Table) Known() map[int]Assignment {
	out := make(map[int]Assignment)
	for id, a := range t.entries {
		if a.Known() {
			out[id] = a
		}
	}
	return out
}

// Get returns the assignment of a track, if any.
func (t *Table) Get(trackID int) (Assignment, bool) {
	a, ok := t.entries[trackID]
	return a, ok
}

// Confidence comparisons across frames are stabilised by rounding to four
// decimal places.
func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
