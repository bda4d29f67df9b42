// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite" // pure Go driver
)

// SQLite is the embedded implementation of the roster and attendance store.
type SQLite struct {
	db *sql.DB
}

// Open initialises a SQLite connection pool with mandatory PRAGMAs (WAL,
// busy_timeout, foreign keys) applied through the DSN so they hold for every
// pooled connection.
func Open(path string) (*SQLite, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)",
		path, (5 * time.Second).Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open failed: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(1 * time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping failed: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: schema init failed: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close releases the underlying pool.
func (s *SQLite) Close() error { return s.db.Close() }

// Device returns the configuration of one edge device, or ErrNotFound.
func (s *SQLite) Device(ctx context.Context, id string) (Device, error) {
	var d Device
	err := s.db.QueryRowContext(ctx,
		`SELECT id_raspberry_pi, id_aula, ip, port, ultima_conexion FROM raspberries WHERE id_raspberry_pi = ?`, id).
		Scan(&d.ID, &d.IDAula, &d.IP, &d.Port, &d.UltimaConexion)
	if errors.Is(err, sql.ErrNoRows) {
		return Device{}, ErrNotFound
	}
	if err != nil {
		return Device{}, fmt.Errorf("store: device %s: %w", id, err)
	}
	return d, nil
}

// TouchDevice records the device's last connection instant and, when
// non-empty, its current callback address.
func (s *SQLite) TouchDevice(ctx context.Context, id, ip string, port int) error {
	now := time.Now().UTC().Format(time.RFC3339)
	var res sql.Result
	var err error
	if ip != "" {
		res, err = s.db.ExecContext(ctx,
			`UPDATE raspberries SET ip = ?, port = ?, ultima_conexion = ? WHERE id_raspberry_pi = ?`,
			ip, port, now, id)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE raspberries SET ultima_conexion = ? WHERE id_raspberry_pi = ?`, now, id)
	}
	if err != nil {
		return fmt.Errorf("store: touch device %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Slots returns every weekly schedule slot of every class.
func (s *SQLite) Slots(ctx context.Context) ([]Slot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id_clase, dia, hora_inicio, hora_fin, id_aula FROM horarios ORDER BY id_clase, dia, hora_inicio`)
	if err != nil {
		return nil, fmt.Errorf("store: slots: %w", err)
	}
	defer rows.Close()

	var out []Slot
	for rows.Next() {
		var sl Slot
		if err := rows.Scan(&sl.IDClase, &sl.Dia, &sl.HoraInicio, &sl.HoraFin, &sl.IDAula); err != nil {
			return nil, fmt.Errorf("store: slots scan: %w", err)
		}
		out = append(out, sl)
	}
	return out, rows.Err()
}

// StudentsForClass returns the ids of students enrolled in a class.
func (s *SQLite) StudentsForClass(ctx context.Context, idClase string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id_estudiante FROM estudiante_clases WHERE id_clase = ? ORDER BY id_estudiante`, idClase)
	if err != nil {
		return nil, fmt.Errorf("store: students for %s: %w", idClase, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// EmbeddingsForClass returns every enrolled embedding of every student of the
// class, one row per enrolled image.
func (s *SQLite) EmbeddingsForClass(ctx context.Context, idClase string) ([]Embedding, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id_estudiante, e.vector
		FROM embeddings e
		JOIN estudiante_clases ec ON ec.id_estudiante = e.id_estudiante
		WHERE ec.id_clase = ?
		ORDER BY e.id_estudiante, e.idx`, idClase)
	if err != nil {
		return nil, fmt.Errorf("store: embeddings for %s: %w", idClase, err)
	}
	defer rows.Close()

	var out []Embedding
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, err
		}
		out = append(out, Embedding{IDEstudiante: id, Vector: DecodeVector(blob)})
	}
	return out, rows.Err()
}

// UserExists reports whether a user id is registered.
func (s *SQLite) UserExists(ctx context.Context, idUsuario string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM usuarios WHERE id_usuario = ?`, idUsuario).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: user %s: %w", idUsuario, err)
	}
	return true, nil
}

// EnsureAttendance lazily creates the attendance document for (idClase, fecha)
// with one ausente record per enrolled student. Creating an already-existing
// document is a no-op.
func (s *SQLite) EnsureAttendance(ctx context.Context, idClase, fecha, idAula string, estudiantes []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: ensure attendance: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO asistencias (id_clase, fecha, id_aula) VALUES (?, ?, ?)`,
		idClase, fecha, idAula)
	if err != nil {
		return fmt.Errorf("store: ensure attendance: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil // document already existed; seed records untouched
	}

	for _, id := range estudiantes {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO registros (id_clase, fecha, id_estudiante, estado) VALUES (?, ?, ?, ?)`,
			idClase, fecha, id, EstadoAusente); err != nil {
			return fmt.Errorf("store: seed record %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// Attendance returns the full document for (idClase, fecha), or ErrNotFound.
func (s *SQLite) Attendance(ctx context.Context, idClase, fecha string) (Attendance, error) {
	var doc Attendance
	err := s.db.QueryRowContext(ctx,
		`SELECT id_clase, fecha, id_aula FROM asistencias WHERE id_clase = ? AND fecha = ?`, idClase, fecha).
		Scan(&doc.IDClase, &doc.Fecha, &doc.IDAula)
	if errors.Is(err, sql.ErrNoRows) {
		return Attendance{}, ErrNotFound
	}
	if err != nil {
		return Attendance{}, fmt.Errorf("store: attendance %s/%s: %w", idClase, fecha, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id_estudiante, estado, confianza, fecha_deteccion, fecha_deteccion_tardia,
		       modificado_por_usuario, modificado_fecha
		FROM registros WHERE id_clase = ? AND fecha = ? ORDER BY id_estudiante`, idClase, fecha)
	if err != nil {
		return Attendance{}, fmt.Errorf("store: registros %s/%s: %w", idClase, fecha, err)
	}
	defer rows.Close()

	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.IDEstudiante, &r.Estado, &r.Confianza, &r.FechaDeteccion,
			&r.FechaDeteccionTardia, &r.ModificadoPorUsuario, &r.ModificadoFecha); err != nil {
			return Attendance{}, err
		}
		doc.Registros = append(doc.Registros, r)
	}
	return doc, rows.Err()
}

// MutateRecord applies mutate to the record of one student inside a
// transaction. The callback returns false to leave the row untouched. Only
// the writer-owned columns are updated; modificado_* is never written here,
// so concurrent manual overrides survive a flush.
func (s *SQLite) MutateRecord(ctx context.Context, idClase, fecha, idEstudiante string, mutate func(*Record) bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: mutate record: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var r Record
	err = tx.QueryRowContext(ctx, `
		SELECT id_estudiante, estado, confianza, fecha_deteccion, fecha_deteccion_tardia,
		       modificado_por_usuario, modificado_fecha
		FROM registros WHERE id_clase = ? AND fecha = ? AND id_estudiante = ?`,
		idClase, fecha, idEstudiante).
		Scan(&r.IDEstudiante, &r.Estado, &r.Confianza, &r.FechaDeteccion,
			&r.FechaDeteccionTardia, &r.ModificadoPorUsuario, &r.ModificadoFecha)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("store: mutate record %s: %w", idEstudiante, err)
	}

	if !mutate(&r) {
		return nil
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE registros
		SET estado = ?, confianza = ?, fecha_deteccion = ?, fecha_deteccion_tardia = ?
		WHERE id_clase = ? AND fecha = ? AND id_estudiante = ?`,
		r.Estado, r.Confianza, r.FechaDeteccion, r.FechaDeteccionTardia,
		idClase, fecha, idEstudiante); err != nil {
		return fmt.Errorf("store: update record %s: %w", idEstudiante, err)
	}
	return tx.Commit()
}

// OverrideRecord applies a manual state change from the admin surface,
// stamping the modificado_* audit fields.
func (s *SQLite) OverrideRecord(ctx context.Context, idClase, fecha, idEstudiante, estado, idUsuario string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx, `
		UPDATE registros SET estado = ?, modificado_por_usuario = ?, modificado_fecha = ?
		WHERE id_clase = ? AND fecha = ? AND id_estudiante = ?`,
		estado, idUsuario, now, idClase, fecha, idEstudiante)
	if err != nil {
		return fmt.Errorf("store: override record %s: %w", idEstudiante, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// EncodeVector serialises an embedding as little-endian float32s.
func EncodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

// DecodeVector is the inverse of EncodeVector. Trailing bytes that do not
// form a full float32 are dropped; shape validation happens at gallery load.
func DecodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}
