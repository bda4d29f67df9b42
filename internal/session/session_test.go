// SPDX-License-Identifier: MIT

package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/edupresencia/presencia/internal/ingest"
	"github.com/edupresencia/presencia/internal/store"
	"github.com/edupresencia/presencia/internal/timetable"
	"github.com/edupresencia/presencia/internal/vision"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// memStore is an in-memory Store for session and controller tests.
type memStore struct {
	mu         sync.Mutex
	devices    map[string]store.Device
	students   map[string][]string
	embeddings map[string][]store.Embedding
	records    map[string]*store.Record
	ensured    []string
	mutateErr  error
	touched    int
}

func newMemStore() *memStore {
	return &memStore{
		devices:    make(map[string]store.Device),
		students:   make(map[string][]string),
		embeddings: make(map[string][]store.Embedding),
		records:    make(map[string]*store.Record),
	}
}

func recordKey(idClase, fecha, idEstudiante string) string {
	return idClase + "|" + fecha + "|" + idEstudiante
}

func (m *memStore) Device(_ context.Context, id string) (store.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[id]
	if !ok {
		return store.Device{}, store.ErrNotFound
	}
	return d, nil
}

func (m *memStore) TouchDevice(_ context.Context, id, ip string, port int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touched++
	d := m.devices[id]
	d.IP, d.Port = ip, port
	m.devices[id] = d
	return nil
}

func (m *memStore) StudentsForClass(_ context.Context, idClase string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.students[idClase], nil
}

func (m *memStore) EmbeddingsForClass(_ context.Context, idClase string) ([]store.Embedding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.embeddings[idClase], nil
}

func (m *memStore) EnsureAttendance(_ context.Context, idClase, fecha, idAula string, estudiantes []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensured = append(m.ensured, idClase+"|"+fecha+"|"+idAula)
	for _, id := range estudiantes {
		key := recordKey(idClase, fecha, id)
		if _, ok := m.records[key]; !ok {
			m.records[key] = &store.Record{IDEstudiante: id, Estado: store.EstadoAusente}
		}
	}
	return nil
}

func (m *memStore) MutateRecord(_ context.Context, idClase, fecha, idEstudiante string, mutate func(*store.Record) bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mutateErr != nil {
		return m.mutateErr
	}
	key := recordKey(idClase, fecha, idEstudiante)
	r, ok := m.records[key]
	if !ok {
		return store.ErrNotFound
	}
	cp := *r
	if mutate(&cp) {
		m.records[key] = &cp
	}
	return nil
}

func (m *memStore) record(idClase, fecha, idEstudiante string) (store.Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[recordKey(idClase, fecha, idEstudiante)]
	if !ok {
		return store.Record{}, false
	}
	return *r, true
}

// slotSource feeds fixed schedule slots to the timetable oracle.
type slotSource struct{ slots []store.Slot }

func (s slotSource) Slots(context.Context) ([]store.Slot, error) { return s.slots, nil }

// frameSource replays a fixed frame sequence, then reports a closed source.
type frameSource struct {
	mu     sync.Mutex
	frames []*vision.Frame
	closed bool
}

func (f *frameSource) Next(ctx context.Context) (*vision.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.frames) == 0 {
		return nil, ingest.ErrSourceClosed
	}
	fr := f.frames[0]
	f.frames = f.frames[1:]
	return fr, nil
}

func (f *frameSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

type funcDetector func(ctx context.Context, f *vision.Frame) ([]vision.Detection, error)

func (fn funcDetector) Detect(ctx context.Context, f *vision.Frame) ([]vision.Detection, error) {
	return fn(ctx, f)
}

// passthroughTracker emits one track per detection with stable ids.
type passthroughTracker struct {
	mu     sync.Mutex
	resets int
}

func (t *passthroughTracker) Update(dets []vision.Detection) []vision.Track {
	tracks := make([]vision.Track, 0, len(dets))
	for i := range dets {
		tracks = append(tracks, vision.Track{ID: i + 1, DetIndex: i, Score: dets[i].Score})
	}
	return tracks
}

func (t *passthroughTracker) Reset() {
	t.mu.Lock()
	t.resets++
	t.mu.Unlock()
}

// unitVec returns a unit-norm embedding with all weight on axis i.
func unitVec(i int) []float32 {
	v := make([]float32, vision.EmbeddingDim)
	v[i] = 1
	return v
}

func testFrame() *vision.Frame {
	return &vision.Frame{Width: 4, Height: 2, BGR: make([]byte, 4*2*3)}
}

// Monday 10:00 in Europe/Madrid, inside the lunes 09:00-11:00 slot.
var testNow = time.Date(2026, time.January, 5, 10, 0, 0, 0, madrid())

func madrid() *time.Location {
	loc, err := time.LoadLocation("Europe/Madrid")
	if err != nil {
		panic(err)
	}
	return loc
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testDeps(t *testing.T, ms *memStore, src ingest.Source, det vision.Detector, clock *fakeClock) Deps {
	t.Helper()
	oracle, err := timetable.New(slotSource{slots: []store.Slot{
		{IDClase: "C1", Dia: "lunes", HoraInicio: "09:00", HoraFin: "11:00", IDAula: "A1"},
		{IDClase: "C2", Dia: "lunes", HoraInicio: "11:01", HoraFin: "13:00", IDAula: "A1"},
	}}, "Europe/Madrid")
	if err != nil {
		t.Fatal(err)
	}
	return Deps{
		Store:      ms,
		Oracle:     oracle,
		Detector:   det,
		NewTracker: func(vision.TrackerParams) vision.Tracker { return &passthroughTracker{} },
		NewSource:  func(context.Context) (ingest.Source, error) { return src, nil },
		Now:        clock.Now,
	}
}
