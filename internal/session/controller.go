// SPDX-License-Identifier: MIT

package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/edupresencia/presencia/internal/log"
	"github.com/edupresencia/presencia/internal/metrics"
)

// Admission controller errors, mapped to HTTP statuses by the API layer.
var (
	ErrNoSession     = errors.New("session: no active session")
	ErrAdjustTooLate = errors.New("session: deadline adjustment window closed")
	ErrAdjustInvalid = errors.New("session: deadline must be positive")
	ErrUnassigned    = errors.New("session: device not assigned to an aula")
)

// StopNotifier tells a device to stop its transmission. Implementations are
// best-effort; the controller logs failures and moves on.
type StopNotifier interface {
	NotifyStop(ctx context.Context, ip string, port int, token string) error
}

// StartResult is the admission decision on a device start request.
type StartResult struct {
	Permitido bool
	IDClase   string
	Motivo    string
}

// StatusResult answers a device's periodic should-I-keep-streaming poll.
type StatusResult struct {
	Transmitir bool
	IDClase    string
	Motivo     string
}

// Controller applies the timetable-driven admission policy on top of the
// registry: it decides when sessions open, keep running, switch class or stop.
type Controller struct {
	reg      *Registry
	notifier StopNotifier
}

// The controller reuses the registry's deps (store, oracle, clock).
func (c *Controller) deps() *Deps { return &c.reg.deps }

// NewController wires the admission policy around a registry.
func NewController(reg *Registry, notifier StopNotifier) *Controller {
	return &Controller{reg: reg, notifier: notifier}
}

// Start handles a device's request to begin transmitting. It binds the device
// to its aula, consults the timetable, seeds today's attendance document and
// opens (or re-keys) the session.
func (c *Controller) Start(ctx context.Context, deviceID, ip string, port int) (StartResult, error) {
	logger := log.WithComponent("admission")
	deps := c.deps()

	dev, err := deps.Store.Device(ctx, deviceID)
	if err != nil {
		metrics.AdmissionTotal.WithLabelValues("error").Inc()
		return StartResult{}, err
	}
	if dev.IDAula == "" {
		metrics.AdmissionTotal.WithLabelValues("unassigned").Inc()
		return StartResult{}, ErrUnassigned
	}
	if err := deps.Store.TouchDevice(ctx, deviceID, ip, port); err != nil {
		logger.Warn().Err(err).Str("id_raspberry", deviceID).Msg("device last-seen update failed")
	}

	now := deps.Now()
	idClase, err := deps.Oracle.ActiveClass(ctx, dev.IDAula, now)
	if err != nil {
		metrics.AdmissionTotal.WithLabelValues("error").Inc()
		return StartResult{}, err
	}
	if idClase == "" {
		metrics.AdmissionTotal.WithLabelValues("no_class").Inc()
		return StartResult{
			Permitido: false,
			Motivo:    "No hay clase activa para este horario y aula",
		}, nil
	}

	students, err := deps.Store.StudentsForClass(ctx, idClase)
	if err != nil {
		metrics.AdmissionTotal.WithLabelValues("error").Inc()
		return StartResult{}, err
	}
	fecha := deps.Oracle.Today(now)
	if err := deps.Store.EnsureAttendance(ctx, idClase, fecha, dev.IDAula, students); err != nil {
		metrics.AdmissionTotal.WithLabelValues("error").Inc()
		return StartResult{}, err
	}

	if existing := c.reg.Lookup(dev.IDAula); existing != nil {
		if existing.Device.ID != deviceID {
			metrics.AdmissionTotal.WithLabelValues("conflict").Inc()
			return StartResult{
				Permitido: false,
				Motivo:    fmt.Sprintf("El aula %s ya tiene una transmisión activa de otro dispositivo", dev.IDAula),
			}, nil
		}
		if existing.Class() != idClase {
			if err := c.reg.UpdateClass(ctx, dev.IDAula, idClase); err != nil {
				metrics.AdmissionTotal.WithLabelValues("error").Inc()
				return StartResult{}, err
			}
		}
		metrics.AdmissionTotal.WithLabelValues("resumed").Inc()
		return StartResult{Permitido: true, IDClase: idClase}, nil
	}

	if _, err := c.reg.Open(ctx, dev.IDAula, idClase, dev); err != nil {
		metrics.AdmissionTotal.WithLabelValues("error").Inc()
		return StartResult{}, err
	}
	metrics.AdmissionTotal.WithLabelValues("opened").Inc()
	return StartResult{Permitido: true, IDClase: idClase}, nil
}

// Status answers a device's keep-streaming poll. When the session's class is
// no longer active the session is torn down, the device is told to stop (best
// effort) and the poll answers false.
func (c *Controller) Status(ctx context.Context, deviceID, token string) (StatusResult, error) {
	logger := log.WithComponent("admission")
	deps := c.deps()

	dev, err := deps.Store.Device(ctx, deviceID)
	if err != nil {
		return StatusResult{}, err
	}
	if dev.IDAula == "" {
		return StatusResult{}, ErrUnassigned
	}
	if err := deps.Store.TouchDevice(ctx, deviceID, dev.IP, dev.Port); err != nil {
		logger.Warn().Err(err).Str("id_raspberry", deviceID).Msg("device last-seen update failed")
	}

	s := c.reg.Lookup(dev.IDAula)
	if s == nil {
		return StatusResult{
			Transmitir: false,
			Motivo:     "No hay transmisión activa para este aula",
		}, nil
	}

	now := deps.Now()
	idClase := s.Class()
	active, err := deps.Oracle.StillActive(ctx, dev.IDAula, idClase, now)
	if err != nil {
		return StatusResult{}, err
	}
	if active {
		return StatusResult{Transmitir: true, IDClase: idClase}, nil
	}

	c.reg.Close(ctx, dev.IDAula)
	if c.notifier != nil {
		if err := c.notifier.NotifyStop(ctx, dev.IP, dev.Port, token); err != nil {
			logger.Warn().Err(err).
				Str("id_raspberry", deviceID).
				Str("event", "admission.stop_notify_failed").
				Msg("stop notification failed")
		}
	}
	return StatusResult{
		Transmitir: false,
		IDClase:    idClase,
		Motivo:     fmt.Sprintf("Clase %s finalizada o no activa", idClase),
	}, nil
}

// AdjustDeadline changes the on-time deadline of the session ingesting a
// class. Only accepted within the adjustment window after session start.
func (c *Controller) AdjustDeadline(ctx context.Context, idClase string, d time.Duration) error {
	if d <= 0 {
		return ErrAdjustInvalid
	}
	s := c.reg.LookupByClass(idClase)
	if s == nil {
		return ErrNoSession
	}
	deps := c.deps()
	if s.Age(deps.Now()) > deps.AdjustWindow {
		return ErrAdjustTooLate
	}
	s.SetDeadline(d)
	lg := log.WithComponent("admission")
	lg.Info().
		Str("id_clase", idClase).
		Dur("deadline", d).
		Msg("on-time deadline adjusted")
	return nil
}
