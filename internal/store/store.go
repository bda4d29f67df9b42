// SPDX-License-Identifier: MIT

// Package store persists the roster (aulas, clases, horarios, estudiantes,
// dispositivos) and the attendance documents the writer commits to.
package store

import "errors"

// ErrNotFound is returned when a keyed lookup matches nothing.
var ErrNotFound = errors.New("store: not found")

// Attendance record states.
const (
	EstadoAusente    = "ausente"
	EstadoConfirmado = "confirmado"
	EstadoTarde      = "tarde"
)

// Device is the configuration row of one classroom edge device.
type Device struct {
	ID             string // id_raspberry_pi
	IDAula         string // empty when the device is not bound to a classroom
	IP             string
	Port           int
	UltimaConexion string // ISO-8601 UTC
}

// Slot is one weekly schedule entry of a class.
type Slot struct {
	IDClase    string
	Dia        string // Spanish lowercase day name ("lunes" ... "domingo")
	HoraInicio string // local wall clock "HH:MM"
	HoraFin    string
	IDAula     string
}

// Embedding is one enrolled biometric vector of a student.
type Embedding struct {
	IDEstudiante string
	Vector       []float32
}

// Record is the per-student entry inside an attendance document. Pointer
// fields are null in the ausente state.
type Record struct {
	IDEstudiante         string
	Estado               string
	Confianza            *float64
	FechaDeteccion       *string // ISO-8601 UTC, on-time sighting
	FechaDeteccionTardia *string // ISO-8601 UTC, first late sighting
	ModificadoPorUsuario *string
	ModificadoFecha      *string
}

// Attendance is the document keyed by (id_clase, fecha).
type Attendance struct {
	IDClase   string
	Fecha     string // local date "YYYY-MM-DD"
	IDAula    string
	Registros []Record
}
