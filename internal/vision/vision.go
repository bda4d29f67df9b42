// SPDX-License-Identifier: MIT

// Package vision defines the frame model and the detector/tracker contracts
// the ingest pipeline consumes. Model implementations live outside this
// repository and are plugged in at daemon wiring time.
package vision

import "context"

// EmbeddingDim is the dimensionality of the recognition embeddings.
const EmbeddingDim = 512

// Frame is a raw 24-bit BGR image.
type Frame struct {
	Width  int
	Height int
	BGR    []byte // len = Width*Height*3
}

// Size returns the expected byte length of the pixel buffer.
func (f *Frame) Size() int { return f.Width * f.Height * 3 }

// Detection is one face found in a frame.
type Detection struct {
	// Box is the pixel-space bounding box (x1, y1, x2, y2).
	Box [4]int
	// Score is the detector confidence.
	Score float32
	// Embedding is the 512-d L2-normalised recognition vector.
	Embedding []float32
}

// CenterXYWH converts the detection box to centre-x, centre-y, width, height,
// the form the tracker consumes.
func (d Detection) CenterXYWH() [4]float32 {
	w := float32(d.Box[2] - d.Box[0])
	h := float32(d.Box[3] - d.Box[1])
	return [4]float32{
		float32(d.Box[0]) + w/2,
		float32(d.Box[1]) + h/2,
		w,
		h,
	}
}

// Track is one tracked object as reported by the tracker.
type Track struct {
	XYWH  [4]float32 // centre-x, centre-y, width, height
	ID    int
	Score float32
	Class int
	// DetIndex points back into the detection batch fed to Update, or is
	// negative while the track coasts without a current detection.
	DetIndex int
}

// Detector finds faces and their embeddings in a BGR frame. A failed
// inference is reported as an error and treated by callers as "no faces".
type Detector interface {
	Detect(ctx context.Context, frame *Frame) ([]Detection, error)
}

// Tracker is a stateful multi-object tracker fed with per-frame detections.
type Tracker interface {
	Update(detections []Detection) []Track
	Reset()
}

// TrackerParams parameterises a ByteTrack-style tracker.
type TrackerParams struct {
	TrackHighThresh float64
	TrackLowThresh  float64
	NewTrackThresh  float64
	TrackBuffer     int // frames a lost track is kept alive
	MatchThresh     float64
	FuseScore       bool
	FrameRate       int
}

// DefaultTrackerParams returns the production tracker tuning.
func DefaultTrackerParams() TrackerParams {
	return TrackerParams{
		TrackHighThresh: 0.6,
		TrackLowThresh:  0.1,
		NewTrackThresh:  0.5,
		TrackBuffer:     20,
		MatchThresh:     0.6,
		FuseScore:       false,
		FrameRate:       30,
	}
}
