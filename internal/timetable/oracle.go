// SPDX-License-Identifier: MIT

// Package timetable answers "which class is in session right now" questions
// over the stored weekly schedules.
package timetable

import (
	"context"
	"fmt"
	"time"

	"github.com/edupresencia/presencia/internal/log"
	"github.com/edupresencia/presencia/internal/store"
)

// Source yields the schedule slots the oracle evaluates.
type Source interface {
	Slots(ctx context.Context) ([]store.Slot, error)
}

// Oracle resolves active classes against local wall-clock time.
type Oracle struct {
	src Source
	loc *time.Location
}

// New builds an Oracle evaluating schedules in the given IANA timezone.
func New(src Source, timezone string) (*Oracle, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("timetable: load timezone %q: %w", timezone, err)
	}
	return &Oracle{src: src, loc: loc}, nil
}

// Storage convention: Spanish lowercase day names.
var dayNames = map[time.Weekday]string{
	time.Sunday:    "domingo",
	time.Monday:    "lunes",
	time.Tuesday:   "martes",
	time.Wednesday: "miércoles",
	time.Thursday:  "jueves",
	time.Friday:    "viernes",
	time.Saturday:  "sábado",
}

// ActiveClass returns the id of the first class with a slot covering (aula,
// now), or "" when no class is in session. Bounds are inclusive at both ends.
func (o *Oracle) ActiveClass(ctx context.Context, idAula string, now time.Time) (string, error) {
	slots, err := o.src.Slots(ctx)
	if err != nil {
		return "", err
	}
	day, hhmm := o.localize(now)
	for _, sl := range slots {
		if sl.IDAula == idAula && slotMatches(sl, day, hhmm) {
			return sl.IDClase, nil
		}
	}
	return "", nil
}

// StillActive reports whether the supplied class still has a slot covering
// (aula, now).
func (o *Oracle) StillActive(ctx context.Context, idAula, idClase string, now time.Time) (bool, error) {
	slots, err := o.src.Slots(ctx)
	if err != nil {
		return false, err
	}
	day, hhmm := o.localize(now)
	for _, sl := range slots {
		if sl.IDClase == idClase && sl.IDAula == idAula && slotMatches(sl, day, hhmm) {
			return true, nil
		}
	}
	return false, nil
}

// AulaForClass returns the aula of the currently-active slot of a class, or
// "" when the class is not in session anywhere.
func (o *Oracle) AulaForClass(ctx context.Context, idClase string, now time.Time) (string, error) {
	slots, err := o.src.Slots(ctx)
	if err != nil {
		return "", err
	}
	day, hhmm := o.localize(now)
	for _, sl := range slots {
		if sl.IDClase == idClase && slotMatches(sl, day, hhmm) {
			return sl.IDAula, nil
		}
	}
	return "", nil
}

// Today returns the local calendar date used as the attendance document key.
func (o *Oracle) Today(now time.Time) string {
	return now.In(o.loc).Format("2006-01-02")
}

func (o *Oracle) localize(now time.Time) (day, hhmm string) {
	local := now.In(o.loc)
	return dayNames[local.Weekday()], local.Format("15:04")
}

// slotMatches compares local wall-clock HH:MM strings lexicographically,
// which is correct for zero-padded 24h times. Malformed slot times never
// match and are reported once at debug level.
func slotMatches(sl store.Slot, day, hhmm string) bool {
	if sl.Dia != day {
		return false
	}
	if len(sl.HoraInicio) != 5 || len(sl.HoraFin) != 5 {
		lg := log.WithComponent("timetable")
		lg.Debug().
			Str("id_clase", sl.IDClase).
			Str("hora_inicio", sl.HoraInicio).
			Str("hora_fin", sl.HoraFin).
			Msg("dropping slot with malformed time")
		return false
	}
	return sl.HoraInicio <= hhmm && hhmm <= sl.HoraFin
}
