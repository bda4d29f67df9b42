// SPDX-License-Identifier: MIT

package session

import (
	"context"
	"time"

	"github.com/edupresencia/presencia/internal/metrics"
	"github.com/edupresencia/presencia/internal/store"
)

// flush commits the detection cache to the attendance records of the session's
// current class. Entries are removed from the cache only after their write
// succeeds; a failed write leaves the entry in place for the next interval.
func (s *Session) flush(ctx context.Context, reason string) {
	s.identMu.Lock()
	if len(s.cache) == 0 {
		s.identMu.Unlock()
		return
	}
	snapshot := make(map[string]float64, len(s.cache))
	for id, conf := range s.cache {
		snapshot[id] = conf
	}
	s.identMu.Unlock()

	now := s.deps.Now()
	s.mu.Lock()
	idClase := s.idClase
	onTime := now.Sub(s.start) < s.deadline
	s.mu.Unlock()
	fecha := s.deps.Oracle.Today(now)
	nowISO := now.UTC().Format(time.RFC3339)

	written := make(map[string]float64, len(snapshot))
	failed := 0
	for id, conf := range snapshot {
		err := s.deps.Store.MutateRecord(ctx, idClase, fecha, id, func(r *store.Record) bool {
			return applyDetection(r, conf, nowISO, onTime, s.deps.LateSightingUpdate)
		})
		if err != nil {
			failed++
			s.logger.Error().Err(err).
				Str("event", "writer.update_failed").
				Str("id_estudiante", id).
				Msg("attendance update failed, keeping cache entry")
			continue
		}
		written[id] = conf
		metrics.RecordsUpdated.Inc()
	}

	// Drop only what was committed, and only if the worker has not raised
	// the confidence since the snapshot was taken.
	s.identMu.Lock()
	for id, conf := range written {
		if cur, ok := s.cache[id]; ok && cur <= conf {
			delete(s.cache, id)
		}
	}
	s.identMu.Unlock()

	result := "ok"
	if failed > 0 {
		result = "partial"
		if failed == len(snapshot) {
			result = "error"
		}
	}
	metrics.FlushTotal.WithLabelValues(result).Inc()
	s.logger.Debug().
		Str("event", "writer.flush").
		Str("reason", reason).
		Str("id_clase", idClase).
		Int("written", len(written)).
		Int("failed", failed).
		Bool("on_time", onTime).
		Msg("attendance cache flushed")
}

// applyDetection folds one observed confidence into an attendance record and
// reports whether the record changed.
//
// Rules:
//   - ausente becomes confirmado before the deadline and tarde after it, with
//     the matching detection timestamp set;
//   - a present record upgrades only on a strictly greater confidence, updating
//     the timestamp of the current window without changing the estado;
//   - when lateSighting is on, a late observation of an on-time record stamps
//     fecha_deteccion_tardia even without a confidence upgrade.
//
// The writer never touches the manual-override columns.
func applyDetection(r *store.Record, conf float64, nowISO string, onTime, lateSighting bool) bool {
	switch r.Estado {
	case store.EstadoAusente:
		r.Confianza = &conf
		if onTime {
			r.Estado = store.EstadoConfirmado
			r.FechaDeteccion = &nowISO
		} else {
			r.Estado = store.EstadoTarde
			r.FechaDeteccionTardia = &nowISO
		}
		return true

	case store.EstadoConfirmado, store.EstadoTarde:
		changed := false
		if r.Confianza == nil || conf > *r.Confianza {
			r.Confianza = &conf
			if onTime {
				r.FechaDeteccion = &nowISO
			} else {
				r.FechaDeteccionTardia = &nowISO
			}
			changed = true
		} else if !onTime && lateSighting && r.FechaDeteccionTardia == nil {
			r.FechaDeteccionTardia = &nowISO
			changed = true
		}
		return changed
	}
	return false
}
