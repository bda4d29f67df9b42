// SPDX-License-Identifier: MIT

// Package api exposes the HTTP surface of the daemon: device authentication,
// transmission control, the MJPEG viewer and the operational endpoints.
package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/edupresencia/presencia/internal/log"
	"github.com/edupresencia/presencia/internal/session"
	"github.com/edupresencia/presencia/internal/store"
	"github.com/edupresencia/presencia/internal/timetable"
)

// Store is the slice of persistence the HTTP layer needs directly.
type Store interface {
	Device(ctx context.Context, id string) (store.Device, error)
	UserExists(ctx context.Context, idUsuario string) (bool, error)
}

// Options configures the HTTP server.
type Options struct {
	Auth       *Auth
	Store      Store
	Controller *session.Controller
	Registry   *session.Registry
	Oracle     *timetable.Oracle
	ViewerFPS  int
	Now        func() time.Time
}

// Server carries the handler dependencies.
type Server struct {
	auth   *Auth
	store  Store
	ctl    *session.Controller
	reg    *session.Registry
	oracle *timetable.Oracle
	fps    int
	now    func() time.Time
	logger zerolog.Logger
}

// New builds the HTTP server around its collaborators.
func New(opts Options) *Server {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ViewerFPS < 1 {
		opts.ViewerFPS = 25
	}
	return &Server{
		auth:   opts.Auth,
		store:  opts.Store,
		ctl:    opts.Controller,
		reg:    opts.Registry,
		oracle: opts.Oracle,
		fps:    opts.ViewerFPS,
		now:    opts.Now,
		logger: log.WithComponent("api"),
	}
}

// Router assembles the route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)

	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(10, time.Minute))
		r.Post("/auth/raspberry", s.handleAuthRaspberry)
	})

	r.Route("/transmision", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.deviceAuth)
			r.Post("/iniciar", s.handleIniciar)
			r.Post("/estado", s.handleEstado)
		})
		r.Group(func(r chi.Router) {
			r.Use(s.userAuth)
			r.Post("/tiempo_maximo/{idClase}", s.handleTiempoMaximo)
			r.Get("/estado_web", s.handleEstadoWeb)
		})
		r.Get("/video/{idClase}", s.handleVideo)
	})

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}

// accessLog emits one structured line per request and threads the request id
// into the context for downstream loggers.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := middleware.GetReqID(r.Context())
		ctx := log.ContextWithRequestID(r.Context(), reqID)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		s.logger.Info().
			Str("request_id", reqID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("remote", r.RemoteAddr).
			Msg("http request")
	})
}

type ctxKey string

const (
	ctxDeviceID ctxKey = "device_id"
	ctxUserID   ctxKey = "user_id"
	ctxToken    ctxKey = "raw_token"
)

// deviceAuth admits requests bearing a valid device token for a registered
// device.
func (s *Server) deviceAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := bearerToken(r)
		if tok == "" {
			writeError(w, http.StatusUnauthorized, "token requerido")
			return
		}
		id, err := s.auth.DeviceID(tok)
		if err != nil {
			writeError(w, http.StatusForbidden, "token inválido")
			return
		}
		if _, err := s.store.Device(r.Context(), id); err != nil {
			writeError(w, http.StatusForbidden, "dispositivo no registrado")
			return
		}
		ctx := context.WithValue(r.Context(), ctxDeviceID, id)
		ctx = context.WithValue(ctx, ctxToken, tok)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// userAuth admits requests bearing a valid user token for an existing user.
func (s *Server) userAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := bearerToken(r)
		if tok == "" {
			writeError(w, http.StatusUnauthorized, "token requerido")
			return
		}
		sub, err := s.auth.UserID(tok)
		if err != nil {
			writeError(w, http.StatusForbidden, "token inválido")
			return
		}
		ok, err := s.store.UserExists(r.Context(), sub)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "error interno")
			return
		}
		if !ok {
			writeError(w, http.StatusForbidden, "usuario no registrado")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxUserID, sub)))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// remoteIP strips the port from the request's remote address.
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
