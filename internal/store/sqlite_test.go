// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestDeviceLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Device(ctx, "rpi-X")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.PutDevice(ctx, "rpi-1", "aula-1"))
	d, err := s.Device(ctx, "rpi-1")
	require.NoError(t, err)
	assert.Equal(t, "aula-1", d.IDAula)
	assert.Empty(t, d.UltimaConexion)

	require.NoError(t, s.TouchDevice(ctx, "rpi-1", "10.0.0.9", 8000))
	d, err = s.Device(ctx, "rpi-1")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.9", d.IP)
	assert.Equal(t, 8000, d.Port)
	assert.NotEmpty(t, d.UltimaConexion)

	assert.ErrorIs(t, s.TouchDevice(ctx, "rpi-ghost", "", 0), ErrNotFound)
}

func TestSlotsAndStudents(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutAula(ctx, "aula-1", "Aula 1"))
	require.NoError(t, s.PutClase(ctx, "clase-A", "mates", "prof-1", []Slot{
		{IDClase: "clase-A", Dia: "lunes", HoraInicio: "08:00", HoraFin: "09:30", IDAula: "aula-1"},
	}))
	require.NoError(t, s.PutStudent(ctx, "s1", "Ana", []string{"clase-A"}, nil))
	require.NoError(t, s.PutStudent(ctx, "s2", "Ben", []string{"clase-A"}, nil))

	slots, err := s.Slots(ctx)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, "clase-A", slots[0].IDClase)
	assert.Equal(t, "lunes", slots[0].Dia)

	students, err := s.StudentsForClass(ctx, "clase-A")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2"}, students)
}

func TestEmbeddingsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	vec := make([]float32, 512)
	vec[0] = 1 // unit norm
	require.NoError(t, s.PutClase(ctx, "clase-A", "", "", nil))
	require.NoError(t, s.PutStudent(ctx, "s1", "Ana", []string{"clase-A"}, [][]float32{vec}))

	embs, err := s.EmbeddingsForClass(ctx, "clase-A")
	require.NoError(t, err)
	require.Len(t, embs, 1)
	assert.Equal(t, "s1", embs[0].IDEstudiante)
	assert.Equal(t, vec, embs[0].Vector)
}

func TestEnsureAttendanceIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.EnsureAttendance(ctx, "clase-A", "2026-08-24", "aula-1", []string{"s1", "s2", "s3"}))

	doc, err := s.Attendance(ctx, "clase-A", "2026-08-24")
	require.NoError(t, err)
	assert.Equal(t, "aula-1", doc.IDAula)
	require.Len(t, doc.Registros, 3)
	for _, r := range doc.Registros {
		assert.Equal(t, EstadoAusente, r.Estado)
		assert.Nil(t, r.Confianza)
	}

	// Mutate one record, then re-ensure: the document must not be reseeded.
	conf := 0.9
	require.NoError(t, s.MutateRecord(ctx, "clase-A", "2026-08-24", "s1", func(r *Record) bool {
		r.Estado = EstadoConfirmado
		r.Confianza = &conf
		return true
	}))
	require.NoError(t, s.EnsureAttendance(ctx, "clase-A", "2026-08-24", "aula-1", []string{"s1", "s2", "s3"}))

	doc, err = s.Attendance(ctx, "clase-A", "2026-08-24")
	require.NoError(t, err)
	assert.Equal(t, EstadoConfirmado, doc.Registros[0].Estado)
}

func TestMutateRecordSkip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.EnsureAttendance(ctx, "clase-A", "2026-08-24", "aula-1", []string{"s1"}))

	called := false
	require.NoError(t, s.MutateRecord(ctx, "clase-A", "2026-08-24", "s1", func(r *Record) bool {
		called = true
		return false
	}))
	assert.True(t, called)

	doc, err := s.Attendance(ctx, "clase-A", "2026-08-24")
	require.NoError(t, err)
	assert.Equal(t, EstadoAusente, doc.Registros[0].Estado)

	assert.ErrorIs(t, s.MutateRecord(ctx, "clase-A", "2026-08-24", "ghost", func(*Record) bool { return true }), ErrNotFound)
}

func TestOverridePreservedByMutate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.EnsureAttendance(ctx, "clase-A", "2026-08-24", "aula-1", []string{"s1"}))
	require.NoError(t, s.OverrideRecord(ctx, "clase-A", "2026-08-24", "s1", EstadoTarde, "prof-1"))

	// Writer path must not clobber the audit fields.
	conf := 0.7
	require.NoError(t, s.MutateRecord(ctx, "clase-A", "2026-08-24", "s1", func(r *Record) bool {
		r.Confianza = &conf
		return true
	}))

	doc, err := s.Attendance(ctx, "clase-A", "2026-08-24")
	require.NoError(t, err)
	r := doc.Registros[0]
	require.NotNil(t, r.ModificadoPorUsuario)
	assert.Equal(t, "prof-1", *r.ModificadoPorUsuario)
	assert.NotNil(t, r.ModificadoFecha)
	require.NotNil(t, r.Confianza)
	assert.Equal(t, 0.7, *r.Confianza)
}

func TestUserExists(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ok, err := s.UserExists(ctx, "prof-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.PutUser(ctx, "prof-1", "Marta", "profesor"))
	ok, err = s.UserExists(ctx, "prof-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVectorCodec(t *testing.T) {
	v := []float32{0.25, -1, 3.5}
	assert.Equal(t, v, DecodeVector(EncodeVector(v)))
	assert.Empty(t, DecodeVector(nil))
}
