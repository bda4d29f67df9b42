// SPDX-License-Identifier: MIT

package vision

// ByteTracker is an IOU-association tracker in the ByteTrack mould: high-score
// detections are matched first, surviving unmatched tracks get a second chance
// against low-score detections, and lost tracks coast for TrackBuffer frames
// before removal. No motion model; faces in a fixed camera move little between
// consecutive frames.
type ByteTracker struct {
	params TrackerParams
	nextID int
	tracks []*trackState
}

type trackState struct {
	id     int
	xywh   [4]float32
	score  float32
	missed int
}

// NewByteTracker builds a tracker with the given tuning.
func NewByteTracker(params TrackerParams) *ByteTracker {
	if params == (TrackerParams{}) {
		params = DefaultTrackerParams()
	}
	return &ByteTracker{params: params, nextID: 1}
}

// Update folds one frame's detections into the track set and returns the live
// tracks. Coasting tracks are reported with a negative DetIndex.
func (t *ByteTracker) Update(detections []Detection) []Track {
	high := make([]int, 0, len(detections))
	low := make([]int, 0)
	for i, d := range detections {
		switch {
		case float64(d.Score) >= t.params.TrackHighThresh:
			high = append(high, i)
		case float64(d.Score) >= t.params.TrackLowThresh:
			low = append(low, i)
		}
	}

	assigned := make(map[int]int, len(t.tracks)) // track index -> det index
	usedDet := make(map[int]bool, len(detections))
	minIOU := float32(1 - t.params.MatchThresh)

	t.matchGreedy(detections, high, assigned, usedDet, minIOU)
	t.matchGreedy(detections, low, assigned, usedDet, minIOU)

	out := make([]Track, 0, len(t.tracks)+len(high))
	kept := t.tracks[:0]
	for ti, tr := range t.tracks {
		if di, ok := assigned[ti]; ok {
			tr.xywh = detections[di].CenterXYWH()
			tr.score = detections[di].Score
			tr.missed = 0
			kept = append(kept, tr)
			out = append(out, Track{XYWH: tr.xywh, ID: tr.id, Score: tr.score, DetIndex: di})
			continue
		}
		tr.missed++
		if tr.missed > t.params.TrackBuffer {
			continue
		}
		kept = append(kept, tr)
		out = append(out, Track{XYWH: tr.xywh, ID: tr.id, Score: tr.score, DetIndex: -1})
	}
	t.tracks = kept

	// Unmatched high-score detections seed new tracks.
	for _, di := range high {
		if usedDet[di] || float64(detections[di].Score) < t.params.NewTrackThresh {
			continue
		}
		tr := &trackState{
			id:    t.nextID,
			xywh:  detections[di].CenterXYWH(),
			score: detections[di].Score,
		}
		t.nextID++
		t.tracks = append(t.tracks, tr)
		out = append(out, Track{XYWH: tr.xywh, ID: tr.id, Score: tr.score, DetIndex: di})
	}
	return out
}

// matchGreedy pairs unassigned tracks with unused detections by descending
// IOU until no pair clears the threshold.
func (t *ByteTracker) matchGreedy(detections []Detection, candidates []int, assigned map[int]int, usedDet map[int]bool, minIOU float32) {
	for {
		bestTrack, bestDet := -1, -1
		var best float32
		for ti, tr := range t.tracks {
			if _, ok := assigned[ti]; ok {
				continue
			}
			for _, di := range candidates {
				if usedDet[di] {
					continue
				}
				if v := iou(tr.xywh, detections[di].CenterXYWH()); v >= minIOU && v > best {
					best, bestTrack, bestDet = v, ti, di
				}
			}
		}
		if bestTrack < 0 {
			return
		}
		assigned[bestTrack] = bestDet
		usedDet[bestDet] = true
	}
}

// Reset drops every track. Ids keep incrementing so stale identity state can
// never collide with a reborn track.
func (t *ByteTracker) Reset() {
	t.tracks = nil
}

func iou(a, b [4]float32) float32 {
	ax1, ay1, ax2, ay2 := corners(a)
	bx1, by1, bx2, by2 := corners(b)

	ix := minf(ax2, bx2) - maxf(ax1, bx1)
	iy := minf(ay2, by2) - maxf(ay1, by1)
	if ix <= 0 || iy <= 0 {
		return 0
	}
	inter := ix * iy
	union := (ax2-ax1)*(ay2-ay1) + (bx2-bx1)*(by2-by1) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func corners(xywh [4]float32) (x1, y1, x2, y2 float32) {
	return xywh[0] - xywh[2]/2, xywh[1] - xywh[3]/2, xywh[0] + xywh[2]/2, xywh[1] + xywh[3]/2
}

func minf(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
