// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"fmt"
)

// The Put helpers below back the provisioning CLI and the test fixtures. The
// full admin CRUD surface lives in a separate service and is not part of this
// daemon.

// PutAula upserts a classroom.
func (s *SQLite) PutAula(ctx context.Context, idAula, nombre string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO aulas (id_aula, nombre) VALUES (?, ?)
		 ON CONFLICT(id_aula) DO UPDATE SET nombre = excluded.nombre`, idAula, nombre)
	if err != nil {
		return fmt.Errorf("store: put aula %s: %w", idAula, err)
	}
	return nil
}

// PutUser upserts a user.
func (s *SQLite) PutUser(ctx context.Context, idUsuario, nombre, rol string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO usuarios (id_usuario, nombre, rol) VALUES (?, ?, ?)
		 ON CONFLICT(id_usuario) DO UPDATE SET nombre = excluded.nombre, rol = excluded.rol`,
		idUsuario, nombre, rol)
	if err != nil {
		return fmt.Errorf("store: put user %s: %w", idUsuario, err)
	}
	return nil
}

// PutClase upserts a class and replaces its schedule slots.
func (s *SQLite) PutClase(ctx context.Context, idClase, idAsignatura, idUsuario string, slots []Slot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: put clase: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO clases (id_clase, id_asignatura, id_usuario) VALUES (?, ?, ?)
		 ON CONFLICT(id_clase) DO UPDATE SET id_asignatura = excluded.id_asignatura, id_usuario = excluded.id_usuario`,
		idClase, idAsignatura, idUsuario); err != nil {
		return fmt.Errorf("store: put clase %s: %w", idClase, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM horarios WHERE id_clase = ?`, idClase); err != nil {
		return err
	}
	for _, sl := range slots {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO horarios (id_clase, dia, hora_inicio, hora_fin, id_aula) VALUES (?, ?, ?, ?, ?)`,
			idClase, sl.Dia, sl.HoraInicio, sl.HoraFin, sl.IDAula); err != nil {
			return fmt.Errorf("store: put slot for %s: %w", idClase, err)
		}
	}
	return tx.Commit()
}

// PutStudent upserts a student with class memberships and enrolled embeddings.
func (s *SQLite) PutStudent(ctx context.Context, idEstudiante, nombre string, clases []string, vectors [][]float32) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: put student: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO estudiantes (id_estudiante, nombre) VALUES (?, ?)
		 ON CONFLICT(id_estudiante) DO UPDATE SET nombre = excluded.nombre`,
		idEstudiante, nombre); err != nil {
		return fmt.Errorf("store: put student %s: %w", idEstudiante, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM estudiante_clases WHERE id_estudiante = ?`, idEstudiante); err != nil {
		return err
	}
	for _, c := range clases {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO estudiante_clases (id_estudiante, id_clase) VALUES (?, ?)`, idEstudiante, c); err != nil {
			return fmt.Errorf("store: enrol %s in %s: %w", idEstudiante, c, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM embeddings WHERE id_estudiante = ?`, idEstudiante); err != nil {
		return err
	}
	for i, v := range vectors {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO embeddings (id_estudiante, idx, vector) VALUES (?, ?, ?)`,
			idEstudiante, i, EncodeVector(v)); err != nil {
			return fmt.Errorf("store: embedding %d of %s: %w", i, idEstudiante, err)
		}
	}
	return tx.Commit()
}

// PutDevice upserts an edge device, optionally bound to a classroom.
func (s *SQLite) PutDevice(ctx context.Context, id, idAula string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO raspberries (id_raspberry_pi, id_aula) VALUES (?, ?)
		 ON CONFLICT(id_raspberry_pi) DO UPDATE SET id_aula = excluded.id_aula`, id, idAula)
	if err != nil {
		return fmt.Errorf("store: put device %s: %w", id, err)
	}
	return nil
}
