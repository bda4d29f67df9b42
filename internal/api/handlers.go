// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/edupresencia/presencia/internal/session"
	"github.com/edupresencia/presencia/internal/store"
)

// defaultCallbackPort is used when a device does not announce the port of its
// local stop_transmission endpoint.
const defaultCallbackPort = 8000

type authRequest struct {
	IDRaspberryPi string `json:"id_raspberry_pi"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// handleAuthRaspberry exchanges a registered device id for a bearer token.
func (s *Server) handleAuthRaspberry(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IDRaspberryPi == "" {
		writeError(w, http.StatusBadRequest, "id_raspberry_pi requerido")
		return
	}
	if _, err := s.store.Device(r.Context(), req.IDRaspberryPi); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "dispositivo no registrado")
			return
		}
		writeError(w, http.StatusInternalServerError, "error interno")
		return
	}
	tok, err := s.auth.DeviceToken(req.IDRaspberryPi)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "error interno")
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: tok})
}

type iniciarRequest struct {
	IDRaspberryPi string `json:"id_raspberry_pi"`
	Port          int    `json:"port,omitempty"`
}

type iniciarResponse struct {
	Permitido bool   `json:"permitido"`
	IDClase   string `json:"id_clase,omitempty"`
	Motivo    string `json:"motivo,omitempty"`
}

// handleIniciar is the admission endpoint a device calls to begin streaming.
func (s *Server) handleIniciar(w http.ResponseWriter, r *http.Request) {
	deviceID, _ := r.Context().Value(ctxDeviceID).(string)

	var req iniciarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IDRaspberryPi == "" {
		writeError(w, http.StatusBadRequest, "id_raspberry_pi requerido")
		return
	}
	if req.IDRaspberryPi != deviceID {
		writeError(w, http.StatusForbidden, "el token no corresponde al dispositivo")
		return
	}
	port := req.Port
	if port <= 0 {
		port = defaultCallbackPort
	}

	res, err := s.ctl.Start(r.Context(), deviceID, remoteIP(r), port)
	switch {
	case errors.Is(err, session.ErrUnassigned):
		writeError(w, http.StatusForbidden, "dispositivo no asignado a un aula")
		return
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "dispositivo no registrado")
		return
	case err != nil:
		writeError(w, http.StatusServiceUnavailable, "no se pudo iniciar la sesión")
		return
	}
	writeJSON(w, http.StatusOK, iniciarResponse{
		Permitido: res.Permitido,
		IDClase:   res.IDClase,
		Motivo:    res.Motivo,
	})
}

type estadoRequest struct {
	IDRaspberryPi string `json:"id_raspberry_pi"`
}

type estadoResponse struct {
	Transmitir bool   `json:"transmitir"`
	IDClase    string `json:"id_clase,omitempty"`
	Motivo     string `json:"motivo,omitempty"`
}

// handleEstado answers a device's keep-streaming poll.
func (s *Server) handleEstado(w http.ResponseWriter, r *http.Request) {
	deviceID, _ := r.Context().Value(ctxDeviceID).(string)
	token, _ := r.Context().Value(ctxToken).(string)

	var req estadoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IDRaspberryPi == "" {
		writeError(w, http.StatusBadRequest, "id_raspberry_pi requerido")
		return
	}
	if req.IDRaspberryPi != deviceID {
		writeError(w, http.StatusForbidden, "el token no corresponde al dispositivo")
		return
	}

	res, err := s.ctl.Status(r.Context(), deviceID, token)
	switch {
	case errors.Is(err, session.ErrUnassigned):
		writeError(w, http.StatusForbidden, "dispositivo no asignado a un aula")
		return
	case err != nil:
		writeError(w, http.StatusServiceUnavailable, "no se pudo consultar el estado")
		return
	}
	writeJSON(w, http.StatusOK, estadoResponse{
		Transmitir: res.Transmitir,
		IDClase:    res.IDClase,
		Motivo:     res.Motivo,
	})
}

// handleVideo streams the live MJPEG feed of the session ingesting a class.
// A token is optional; when present it must verify.
func (s *Server) handleVideo(w http.ResponseWriter, r *http.Request) {
	if tok := bearerToken(r); tok != "" {
		if _, devErr := s.auth.DeviceID(tok); devErr != nil {
			if _, usrErr := s.auth.UserID(tok); usrErr != nil {
				writeError(w, http.StatusUnauthorized, "token inválido")
				return
			}
		}
	}

	idClase := chi.URLParam(r, "idClase")
	idAula, err := s.oracle.AulaForClass(r.Context(), idClase, s.now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "error interno")
		return
	}
	if idAula == "" {
		writeError(w, http.StatusNotFound, "no hay aula activa para esta clase")
		return
	}
	sess := s.reg.Lookup(idAula)
	if sess == nil {
		writeError(w, http.StatusServiceUnavailable, "no hay transmisión activa")
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+session.MJPEGBoundary)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	// Viewer errors only end this client's stream.
	_ = sess.ServeMJPEG(r.Context(), w, s.fps)
}

type tiempoMaximoRequest struct {
	TiempoMaximo int `json:"tiempo_maximo"`
}

// handleTiempoMaximo adjusts the on-time deadline of a running session.
func (s *Server) handleTiempoMaximo(w http.ResponseWriter, r *http.Request) {
	idClase := chi.URLParam(r, "idClase")

	var req tiempoMaximoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "tiempo_maximo requerido")
		return
	}
	if req.TiempoMaximo <= 0 {
		writeError(w, http.StatusUnprocessableEntity, "tiempo_maximo debe ser mayor que cero")
		return
	}

	err := s.ctl.AdjustDeadline(r.Context(), idClase, time.Duration(req.TiempoMaximo)*time.Minute)
	switch {
	case errors.Is(err, session.ErrAdjustInvalid):
		writeError(w, http.StatusUnprocessableEntity, "tiempo_maximo debe ser mayor que cero")
		return
	case errors.Is(err, session.ErrNoSession):
		writeError(w, http.StatusServiceUnavailable, "no hay transmisión activa para esta clase")
		return
	case errors.Is(err, session.ErrAdjustTooLate):
		writeError(w, http.StatusForbidden, "la ventana de ajuste ha finalizado")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "error interno")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"mensaje": fmt.Sprintf("Tiempo máximo de la clase %s actualizado", idClase),
	})
}

// handleEstadoWeb tells the web frontend whether a class is being ingested.
func (s *Server) handleEstadoWeb(w http.ResponseWriter, r *http.Request) {
	idClase := r.URL.Query().Get("id_clase")
	if idClase == "" {
		writeError(w, http.StatusBadRequest, "id_clase requerido")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{
		"transmitir": s.reg.LookupByClass(idClase) != nil,
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
