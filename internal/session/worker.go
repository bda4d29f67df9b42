// SPDX-License-Identifier: MIT

package session

import (
	"context"
	"errors"

	"github.com/edupresencia/presencia/internal/ingest"
	"github.com/edupresencia/presencia/internal/metrics"
	"github.com/edupresencia/presencia/internal/vision"
)

// run is the per-session worker: pull frames, detect on a cadence, track every
// frame, resolve identities, merge them into the detection cache and flush on
// the writer interval. It owns the source and the tracker for its lifetime.
func (s *Session) run(ctx context.Context, src ingest.Source, tracker vision.Tracker) {
	defer close(s.done)
	defer src.Close()

	var (
		frameIdx int
		lastDets []vision.Detection
	)

	for {
		frame, err := src.Next(ctx)
		if err != nil {
			switch {
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				s.logger.Info().Str("event", "session.stop").Msg("worker stopping")
			case errors.Is(err, ingest.ErrSourceClosed):
				s.logger.Warn().Str("event", "session.source_closed").Msg("frame source ended")
				metrics.DecoderExitTotal.WithLabelValues("eof").Inc()
			default:
				s.logger.Error().Err(err).Str("event", "session.source_error").Msg("frame source failed")
				metrics.DecoderExitTotal.WithLabelValues("error").Inc()
			}
			break
		}

		metrics.FramesProcessed.Inc()

		runDetect := frameIdx%s.deps.DetectEveryN == 0
		frameIdx++
		if runDetect {
			dets, derr := s.deps.Detector.Detect(ctx, frame)
			if derr != nil {
				// A failed inference pass counts as an empty one; the
				// tracker coasts until the next cadence tick.
				s.logger.Warn().Err(derr).Str("event", "session.detect_error").Msg("detector pass failed")
				dets = nil
			}
			metrics.DetectionsTotal.Add(float64(len(dets)))
			lastDets = dets
		}

		tracks := tracker.Update(lastDets)
		s.observe(lastDets, tracks, tracker)
		s.storeFrame(frame)

		now := s.deps.Now()
		s.mu.Lock()
		due := now.Sub(s.lastFlush) >= s.deps.FlushInterval
		if due {
			s.lastFlush = now
		}
		s.mu.Unlock()
		if due {
			s.flush(ctx, "interval")
		}
	}

	// Commit whatever the last partial interval accumulated.
	s.flush(context.WithoutCancel(ctx), "final")
}

// observe folds one frame's detections and tracks into the identity table and
// the detection cache.
func (s *Session) observe(dets []vision.Detection, tracks []vision.Track, tracker vision.Tracker) {
	s.identMu.Lock()
	defer s.identMu.Unlock()

	if len(dets) == 0 && len(tracks) == 0 {
		// Scene went empty: drop stale assignments so returning faces get
		// fresh track ids instead of inheriting old identities.
		if s.table.Len() > 0 {
			s.table.Clear()
			tracker.Reset()
		}
		return
	}

	g := s.gallery.Load()
	live := make(map[int]struct{}, len(tracks))
	for _, tr := range tracks {
		live[tr.ID] = struct{}{}
		if tr.DetIndex >= 0 && tr.DetIndex < len(dets) {
			a := s.table.Resolve(tr.ID, g, dets[tr.DetIndex].Embedding)
			if a.Known() {
				metrics.TracksIdentified.Inc()
			}
		}
	}
	s.table.Evict(live)

	for _, a := range s.table.Known() {
		if prev, ok := s.cache[a.Student]; !ok || a.Confidence > prev {
			s.cache[a.Student] = a.Confidence
		}
	}
}
