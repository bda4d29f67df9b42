// SPDX-License-Identifier: MIT

package session

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/edupresencia/presencia/internal/identity"
	"github.com/edupresencia/presencia/internal/log"
	"github.com/edupresencia/presencia/internal/metrics"
	"github.com/edupresencia/presencia/internal/store"
)

// ErrAlreadyOpen is returned when the aula already has a live session.
var ErrAlreadyOpen = errors.New("session: aula already has an active session")

// Registry owns the live sessions, keyed by aula. All mutations go through it.
type Registry struct {
	deps Deps

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry builds a registry around the shared dependencies.
func NewRegistry(deps Deps) *Registry {
	deps.fillDefaults()
	return &Registry{
		deps:     deps,
		sessions: make(map[string]*Session),
	}
}

// Open creates the session for an aula, loads the class gallery, spawns the
// frame source and starts the worker. It fails without side effects when the
// aula is already taken or any collaborator cannot be set up.
func (r *Registry) Open(ctx context.Context, idAula, idClase string, dev store.Device) (*Session, error) {
	r.mu.Lock()
	if _, ok := r.sessions[idAula]; ok {
		r.mu.Unlock()
		return nil, ErrAlreadyOpen
	}
	r.mu.Unlock()

	gallery, err := identity.LoadGallery(ctx, r.deps.Store, idClase)
	if err != nil {
		metrics.SessionOpenTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	workerCtx, cancel := context.WithCancel(context.Background())
	src, err := r.deps.NewSource(workerCtx)
	if err != nil {
		cancel()
		metrics.SessionOpenTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	now := r.deps.Now()
	s := &Session{
		ID:        uuid.NewString(),
		IDAula:    idAula,
		Device:    dev,
		deps:      &r.deps,
		idClase:   idClase,
		deadline:  r.deps.DefaultDeadline,
		start:     now,
		lastFlush: now,
		table:     identity.NewTable(r.deps.SimilarityThreshold),
		cache:     make(map[string]float64),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	s.gallery.Store(gallery)
	s.logger = log.WithComponent("session").With().
		Str("session_id", s.ID).
		Str("id_aula", idAula).
		Str("id_clase", idClase).
		Logger()

	r.mu.Lock()
	if _, ok := r.sessions[idAula]; ok {
		r.mu.Unlock()
		cancel()
		src.Close()
		metrics.SessionOpenTotal.WithLabelValues("conflict").Inc()
		return nil, ErrAlreadyOpen
	}
	r.sessions[idAula] = s
	r.mu.Unlock()

	tracker := r.deps.NewTracker(r.deps.TrackerParams)
	go func() {
		defer metrics.SessionsActive.Dec()
		s.run(workerCtx, src, tracker)
	}()

	metrics.SessionsActive.Inc()
	metrics.SessionOpenTotal.WithLabelValues("ok").Inc()
	s.logger.Info().Str("event", "session.open").Str("id_raspberry", dev.ID).Msg("session opened")
	return s, nil
}

// UpdateClass re-keys the session of an aula to a new class, flushing the old
// class's detections first. The worker and the video signal are untouched.
func (r *Registry) UpdateClass(ctx context.Context, idAula, idClase string) error {
	s := r.Lookup(idAula)
	if s == nil {
		return store.ErrNotFound
	}
	return s.switchClass(ctx, idClase)
}

// Close tears the aula's session down: cancels the worker, waits for its final
// flush and removes it from the registry. Closing an absent aula is a no-op.
func (r *Registry) Close(ctx context.Context, idAula string) {
	r.mu.Lock()
	s, ok := r.sessions[idAula]
	if ok {
		delete(r.sessions, idAula)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	s.cancel()
	select {
	case <-s.done:
	case <-ctx.Done():
		s.logger.Warn().Str("event", "session.close_timeout").Msg("worker did not drain in time")
	}
	s.logger.Info().Str("event", "session.close").Msg("session closed")
}

// CloseAll drains every live session. Used on daemon shutdown.
func (r *Registry) CloseAll(ctx context.Context) {
	r.mu.Lock()
	aulas := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		aulas = append(aulas, id)
	}
	r.mu.Unlock()

	for _, id := range aulas {
		r.Close(ctx, id)
	}
}

// Lookup returns the live session of an aula, or nil.
func (r *Registry) Lookup(idAula string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[idAula]
}

// LookupByClass returns the live session currently ingesting a class, or nil.
func (r *Registry) LookupByClass(idClase string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.Class() == idClase {
			return s
		}
	}
	return nil
}
