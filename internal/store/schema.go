// SPDX-License-Identifier: MIT

package store

const schema = `
CREATE TABLE IF NOT EXISTS aulas (
	id_aula TEXT PRIMARY KEY,
	nombre  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS usuarios (
	id_usuario TEXT PRIMARY KEY,
	nombre     TEXT NOT NULL DEFAULT '',
	rol        TEXT NOT NULL DEFAULT 'profesor'
);

CREATE TABLE IF NOT EXISTS clases (
	id_clase      TEXT PRIMARY KEY,
	id_asignatura TEXT NOT NULL DEFAULT '',
	id_usuario    TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS horarios (
	id_clase    TEXT NOT NULL REFERENCES clases(id_clase) ON DELETE CASCADE,
	dia         TEXT NOT NULL,
	hora_inicio TEXT NOT NULL,
	hora_fin    TEXT NOT NULL,
	id_aula     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_horarios_aula_dia ON horarios(id_aula, dia);
CREATE INDEX IF NOT EXISTS idx_horarios_clase ON horarios(id_clase);

CREATE TABLE IF NOT EXISTS estudiantes (
	id_estudiante TEXT PRIMARY KEY,
	nombre        TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS estudiante_clases (
	id_estudiante TEXT NOT NULL REFERENCES estudiantes(id_estudiante) ON DELETE CASCADE,
	id_clase      TEXT NOT NULL REFERENCES clases(id_clase) ON DELETE CASCADE,
	PRIMARY KEY (id_estudiante, id_clase)
);

CREATE TABLE IF NOT EXISTS embeddings (
	id_estudiante TEXT NOT NULL REFERENCES estudiantes(id_estudiante) ON DELETE CASCADE,
	idx           INTEGER NOT NULL,
	vector        BLOB NOT NULL,
	PRIMARY KEY (id_estudiante, idx)
);

CREATE TABLE IF NOT EXISTS raspberries (
	id_raspberry_pi TEXT PRIMARY KEY,
	id_aula         TEXT NOT NULL DEFAULT '',
	ip              TEXT NOT NULL DEFAULT '',
	port            INTEGER NOT NULL DEFAULT 0,
	ultima_conexion TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS asistencias (
	id_clase TEXT NOT NULL,
	fecha    TEXT NOT NULL,
	id_aula  TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (id_clase, fecha)
);

CREATE TABLE IF NOT EXISTS registros (
	id_clase               TEXT NOT NULL,
	fecha                  TEXT NOT NULL,
	id_estudiante          TEXT NOT NULL,
	estado                 TEXT NOT NULL DEFAULT 'ausente',
	confianza              REAL,
	fecha_deteccion        TEXT,
	fecha_deteccion_tardia TEXT,
	modificado_por_usuario TEXT,
	modificado_fecha       TEXT,
	PRIMARY KEY (id_clase, fecha, id_estudiante),
	FOREIGN KEY (id_clase, fecha) REFERENCES asistencias(id_clase, fecha) ON DELETE CASCADE
);
`
