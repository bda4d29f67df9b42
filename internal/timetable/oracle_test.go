// SPDX-License-Identifier: MIT

package timetable

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edupresencia/presencia/internal/store"
)

type staticSource []store.Slot

func (s staticSource) Slots(context.Context) ([]store.Slot, error) { return s, nil }

// madrid returns an instant whose Europe/Madrid wall clock is the given
// local date and time.
func madrid(t *testing.T, value string) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Madrid")
	require.NoError(t, err)
	ts, err := time.ParseInLocation("2006-01-02 15:04", value, loc)
	require.NoError(t, err)
	return ts
}

func newOracle(t *testing.T, slots ...store.Slot) *Oracle {
	t.Helper()
	o, err := New(staticSource(slots), "Europe/Madrid")
	require.NoError(t, err)
	return o
}

func TestActiveClassBounds(t *testing.T) {
	o := newOracle(t, store.Slot{
		IDClase: "clase-A", Dia: "lunes", HoraInicio: "08:00", HoraFin: "09:30", IDAula: "aula-1",
	})
	ctx := context.Background()

	tests := []struct {
		name string
		at   string
		want string
	}{
		{"before start", "2026-08-24 07:59", ""},
		{"at start", "2026-08-24 08:00", "clase-A"},
		{"mid class", "2026-08-24 08:45", "clase-A"},
		{"at end, inclusive", "2026-08-24 09:30", "clase-A"},
		{"one minute past end", "2026-08-24 09:31", ""},
		{"wrong day", "2026-08-25 08:30", ""}, // martes
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := o.ActiveClass(ctx, "aula-1", madrid(t, tt.at))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBackToBackClassesEndMinuteOverlap(t *testing.T) {
	// clase-A ends 09:30, clase-B starts 09:30 in the same aula. The first
	// match wins, which is the earlier slot in storage order.
	o := newOracle(t,
		store.Slot{IDClase: "clase-A", Dia: "lunes", HoraInicio: "08:00", HoraFin: "09:30", IDAula: "aula-1"},
		store.Slot{IDClase: "clase-B", Dia: "lunes", HoraInicio: "09:30", HoraFin: "11:00", IDAula: "aula-1"},
	)
	ctx := context.Background()

	got, err := o.ActiveClass(ctx, "aula-1", madrid(t, "2026-08-24 09:30"))
	require.NoError(t, err)
	assert.Equal(t, "clase-A", got)

	// One minute later only clase-B remains.
	got, err = o.ActiveClass(ctx, "aula-1", madrid(t, "2026-08-24 09:31"))
	require.NoError(t, err)
	assert.Equal(t, "clase-B", got)
}

func TestStillActive(t *testing.T) {
	o := newOracle(t, store.Slot{
		IDClase: "clase-A", Dia: "lunes", HoraInicio: "08:00", HoraFin: "09:30", IDAula: "aula-1",
	})
	ctx := context.Background()

	ok, err := o.StillActive(ctx, "aula-1", "clase-A", madrid(t, "2026-08-24 09:30"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = o.StillActive(ctx, "aula-1", "clase-A", madrid(t, "2026-08-24 09:31"))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = o.StillActive(ctx, "aula-2", "clase-A", madrid(t, "2026-08-24 08:30"))
	require.NoError(t, err)
	assert.False(t, ok, "same class, different aula")
}

func TestAulaForClass(t *testing.T) {
	o := newOracle(t,
		store.Slot{IDClase: "clase-A", Dia: "lunes", HoraInicio: "08:00", HoraFin: "09:30", IDAula: "aula-1"},
		store.Slot{IDClase: "clase-A", Dia: "martes", HoraInicio: "10:00", HoraFin: "11:30", IDAula: "aula-2"},
	)
	ctx := context.Background()

	aula, err := o.AulaForClass(ctx, "clase-A", madrid(t, "2026-08-24 08:30"))
	require.NoError(t, err)
	assert.Equal(t, "aula-1", aula)

	aula, err = o.AulaForClass(ctx, "clase-A", madrid(t, "2026-08-25 10:30"))
	require.NoError(t, err)
	assert.Equal(t, "aula-2", aula)

	aula, err = o.AulaForClass(ctx, "clase-A", madrid(t, "2026-08-26 10:30"))
	require.NoError(t, err)
	assert.Empty(t, aula)
}

func TestMalformedSlotNeverMatches(t *testing.T) {
	o := newOracle(t, store.Slot{
		IDClase: "clase-A", Dia: "lunes", HoraInicio: "8:00", HoraFin: "09:30", IDAula: "aula-1",
	})
	got, err := o.ActiveClass(context.Background(), "aula-1", madrid(t, "2026-08-24 08:30"))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestToday(t *testing.T) {
	o := newOracle(t)
	// 23:30 UTC on the 24th is already the 25th in Madrid (CEST, UTC+2).
	utc := time.Date(2026, 8, 24, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, "2026-08-25", o.Today(utc))
}
