// Package server provides a REST API to query and control the thermostats, and a websocket stream of thermostat events.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/nicholishen/daikin-one-plus/internal/thermostat"
	"github.com/nicholishen/daikin-one-plus/pkg/daikin"
)

type Controller interface {
	Thermostats() []thermostat.Thermostat
	Thermostat(id string) (thermostat.Thermostat, error)
	CurrentState(id string) (thermostat.State, error)
	SetHVACMode(ctx context.Context, id string, mode daikin.Mode) error
	SetTemperature(ctx context.Context, id string, temperature float64) error
	SetSetpoints(ctx context.Context, id string, heat, cool float64) error
	SetFanMode(ctx context.Context, id string, fanMode string) error
	SetSchedule(ctx context.Context, id string, enabled bool) error
	Refresh()
	Subscribe() <-chan thermostat.Event
	Unsubscribe(ch <-chan thermostat.Event)
}

type Server struct {
	controller Controller
	health     http.Handler
	logger     *slog.Logger
	upgrader   websocket.Upgrader
}

// New returns a Server. If health is not nil, it's served at /health.
func New(c Controller, health http.Handler, logger *slog.Logger) *Server {
	return &Server{
		controller: c,
		health:     health,
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	if s.health != nil {
		r.Handle("/health", s.health)
	}
	r.Route("/api", func(api chi.Router) {
		api.Get("/events", s.events)
		api.Group(func(api chi.Router) {
			api.Use(middleware.Timeout(20 * time.Second))
			api.Get("/thermostats", s.listThermostats)
			api.Get("/thermostats/{id}", s.getThermostat)
			api.Put("/thermostats/{id}/mode", s.setMode)
			api.Put("/thermostats/{id}/temperature", s.setTemperature)
			api.Put("/thermostats/{id}/setpoints", s.setSetpoints)
			api.Put("/thermostats/{id}/fan", s.setFan)
			api.Put("/thermostats/{id}/schedule", s.setSchedule)
			api.Post("/refresh", s.refresh)
		})
	})
	return r
}

// ThermostatView is a thermostat, with its current state.
type ThermostatView struct {
	thermostat.Thermostat
	State             *thermostat.State `json:"state,omitempty"`
	Action            thermostat.Action `json:"action,omitempty"`
	FanMode           string            `json:"fanMode,omitempty"`
	TargetTemperature *float64          `json:"targetTemperature,omitempty"`
}

func (s *Server) view(t thermostat.Thermostat) ThermostatView {
	v := ThermostatView{Thermostat: t}
	if state, err := s.controller.CurrentState(t.ID); err == nil {
		v.State = &state
		v.Action = state.Action()
		v.FanMode = state.FanMode()
		if target, ok := state.TargetTemperature(); ok {
			v.TargetTemperature = &target
		}
	}
	return v
}

func (s *Server) listThermostats(w http.ResponseWriter, _ *http.Request) {
	thermostats := s.controller.Thermostats()
	items := make([]ThermostatView, 0, len(thermostats))
	for _, t := range thermostats {
		items = append(items, s.view(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) getThermostat(w http.ResponseWriter, r *http.Request) {
	t, err := s.controller.Thermostat(chi.URLParam(r, "id"))
	if err != nil {
		s.writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.view(t))
}

type modeRequest struct {
	Mode string `json:"mode"`
}

func (s *Server) setMode(w http.ResponseWriter, r *http.Request) {
	var payload modeRequest
	if !decode(w, r, &payload) {
		return
	}
	s.command(w, s.controller.SetHVACMode(r.Context(), chi.URLParam(r, "id"), daikin.Mode(payload.Mode)))
}

type temperatureRequest struct {
	Temperature *float64 `json:"temperature"`
}

func (s *Server) setTemperature(w http.ResponseWriter, r *http.Request) {
	var payload temperatureRequest
	if !decode(w, r, &payload) {
		return
	}
	if payload.Temperature == nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "temperature is missing")
		return
	}
	s.command(w, s.controller.SetTemperature(r.Context(), chi.URLParam(r, "id"), *payload.Temperature))
}

type setpointsRequest struct {
	Heat *float64 `json:"heat"`
	Cool *float64 `json:"cool"`
}

func (s *Server) setSetpoints(w http.ResponseWriter, r *http.Request) {
	var payload setpointsRequest
	if !decode(w, r, &payload) {
		return
	}
	if payload.Heat == nil || payload.Cool == nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "heat and cool setpoints are required")
		return
	}
	s.command(w, s.controller.SetSetpoints(r.Context(), chi.URLParam(r, "id"), *payload.Heat, *payload.Cool))
}

type fanRequest struct {
	FanMode string `json:"fanMode"`
}

func (s *Server) setFan(w http.ResponseWriter, r *http.Request) {
	var payload fanRequest
	if !decode(w, r, &payload) {
		return
	}
	if payload.FanMode != thermostat.FanModeAuto && payload.FanMode != thermostat.FanModeCirculate {
		writeError(w, http.StatusBadRequest, "invalid_payload", "fanMode must be auto or circulate")
		return
	}
	s.command(w, s.controller.SetFanMode(r.Context(), chi.URLParam(r, "id"), payload.FanMode))
}

type scheduleRequest struct {
	Enabled *bool `json:"enabled"`
}

func (s *Server) setSchedule(w http.ResponseWriter, r *http.Request) {
	var payload scheduleRequest
	if !decode(w, r, &payload) {
		return
	}
	if payload.Enabled == nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "enabled is missing")
		return
	}
	s.command(w, s.controller.SetSchedule(r.Context(), chi.URLParam(r, "id"), *payload.Enabled))
}

func (s *Server) refresh(w http.ResponseWriter, _ *http.Request) {
	s.controller.Refresh()
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}

func (s *Server) command(w http.ResponseWriter, err error) {
	if err != nil {
		s.writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}

func (s *Server) writeCommandError(w http.ResponseWriter, err error) {
	var cmdErr *thermostat.CommandError
	switch {
	case errors.Is(err, thermostat.ErrUnknownDevice):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, thermostat.ErrInvalidValue):
		writeError(w, http.StatusBadRequest, "invalid_value", err.Error())
	case errors.Is(err, thermostat.ErrNoState):
		writeError(w, http.StatusServiceUnavailable, "no_state", err.Error())
	case errors.As(err, &cmdErr):
		writeError(w, http.StatusBadGateway, "rejected", err.Error())
	case errors.Is(err, daikin.ErrInvalidCredentials):
		writeError(w, http.StatusBadGateway, "invalid_auth", err.Error())
	case errors.Is(err, daikin.ErrServerNotReachable):
		writeError(w, http.StatusGatewayTimeout, "cannot_connect", err.Error())
	default:
		s.logger.Error("command failed", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "unknown", err.Error())
	}
}

func decode(w http.ResponseWriter, r *http.Request, payload any) bool {
	if err := json.NewDecoder(r.Body).Decode(payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "Invalid JSON payload")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}

// Run starts the HTTP server and shuts it down gracefully when the context is canceled.
func Run(ctx context.Context, server *http.Server, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Debug("http server started", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil {
			logger.Error("http server failed", slog.Any("err", err))
			return err
		}
		return nil
	}
}
