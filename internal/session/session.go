// SPDX-License-Identifier: MIT

// Package session owns the runtime state of one classroom ingest: the worker
// pipeline, the identity table, the detection cache, the attendance writer
// cadence and the latest-frame slot the viewers read.
package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/edupresencia/presencia/internal/identity"
	"github.com/edupresencia/presencia/internal/ingest"
	"github.com/edupresencia/presencia/internal/store"
	"github.com/edupresencia/presencia/internal/timetable"
	"github.com/edupresencia/presencia/internal/vision"
)

// Store is the slice of the persistence layer the session machinery needs.
// *store.SQLite satisfies it.
type Store interface {
	Device(ctx context.Context, id string) (store.Device, error)
	TouchDevice(ctx context.Context, id, ip string, port int) error
	StudentsForClass(ctx context.Context, idClase string) ([]string, error)
	EmbeddingsForClass(ctx context.Context, idClase string) ([]store.Embedding, error)
	EnsureAttendance(ctx context.Context, idClase, fecha, idAula string, estudiantes []string) error
	MutateRecord(ctx context.Context, idClase, fecha, idEstudiante string, mutate func(*store.Record) bool) error
}

// Deps bundles the collaborators and policy knobs shared by every session.
type Deps struct {
	Store    Store
	Oracle   *timetable.Oracle
	Detector vision.Detector

	// NewTracker builds a fresh tracker per session.
	NewTracker func(vision.TrackerParams) vision.Tracker
	// NewSource builds the frame source of a session. The context bounds
	// the source's lifetime.
	NewSource func(ctx context.Context) (ingest.Source, error)

	TrackerParams       vision.TrackerParams
	DetectEveryN        int
	SimilarityThreshold float64
	FlushInterval       time.Duration
	DefaultDeadline     time.Duration // on-time deadline from session start
	AdjustWindow        time.Duration // window in which the deadline may change
	LateSightingUpdate  bool

	// Now is the clock; defaults to time.Now. Tests override it.
	Now func() time.Time
}

func (d *Deps) fillDefaults() {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.DetectEveryN < 1 {
		d.DetectEveryN = 3
	}
	if d.SimilarityThreshold == 0 {
		d.SimilarityThreshold = 0.5
	}
	if d.FlushInterval <= 0 {
		d.FlushInterval = 10 * time.Second
	}
	if d.DefaultDeadline <= 0 {
		d.DefaultDeadline = 600 * time.Second
	}
	if d.AdjustWindow <= 0 {
		d.AdjustWindow = 300 * time.Second
	}
	if d.TrackerParams == (vision.TrackerParams{}) {
		d.TrackerParams = vision.DefaultTrackerParams()
	}
}

// Session is the runtime entity of one actively-ingesting aula.
type Session struct {
	ID     string // correlation id for logs
	IDAula string
	Device store.Device

	deps   *Deps
	logger zerolog.Logger

	// mu guards class, deadline and lastFlush.
	mu        sync.Mutex
	idClase   string
	deadline  time.Duration
	start     time.Time
	lastFlush time.Time

	// gallery is the immutable snapshot; swapped wholesale on class switch.
	gallery atomic.Pointer[identity.Gallery]

	// frameMu guards the latest-frame slot.
	frameMu sync.RWMutex
	frame   *vision.Frame

	// identMu guards the track-identity table and the detection cache.
	identMu sync.Mutex
	table   *identity.Table
	cache   map[string]float64

	cancel context.CancelFunc
	done   chan struct{}
}

// Class returns the session's current class id.
func (s *Session) Class() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idClase
}

// Start returns the instant the session was opened.
func (s *Session) Start() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.start
}

// Deadline returns the current on-time deadline measured from session start.
func (s *Session) Deadline() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deadline
}

// SetDeadline replaces the on-time deadline. Acceptance policy (session age)
// is enforced by the admission controller.
func (s *Session) SetDeadline(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deadline = d
}

// Age returns the session age at now.
func (s *Session) Age(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.start)
}

// LatestFrame returns the most recent decoded frame, or nil before the first
// frame arrives. The frame value is replaced, never mutated, so callers may
// use it without holding the lock.
func (s *Session) LatestFrame() *vision.Frame {
	s.frameMu.RLock()
	defer s.frameMu.RUnlock()
	return s.frame
}

func (s *Session) storeFrame(f *vision.Frame) {
	s.frameMu.Lock()
	s.frame = f
	s.frameMu.Unlock()
}

// Done is closed once the worker has fully drained.
func (s *Session) Done() <-chan struct{} { return s.done }

// switchClass swaps the gallery snapshot and class id after flushing the
// detections accumulated for the previous class.
func (s *Session) switchClass(ctx context.Context, idClase string) error {
	g, err := identity.LoadGallery(ctx, s.deps.Store, idClase)
	if err != nil {
		return err
	}

	// Commit what the old class observed before re-keying the writer.
	s.flush(ctx, "class_switch")

	s.identMu.Lock()
	s.table.Clear()
	s.identMu.Unlock()

	s.gallery.Store(g)
	s.mu.Lock()
	s.idClase = idClase
	s.mu.Unlock()

	s.logger.Info().
		Str("event", "session.class_switch").
		Str("id_clase", idClase).
		Msg("session switched to new class")
	return nil
}
