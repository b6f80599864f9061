// Package server is the admin HTTP API of the gateway: the setup wizard, the
// options step, entry unload, the service façade, health and metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kuretru/Xiaozhi-HASS-Gateway/entity"
	"github.com/kuretru/Xiaozhi-HASS-Gateway/internal/database"
	"github.com/kuretru/Xiaozhi-HASS-Gateway/internal/service"
	"github.com/kuretru/Xiaozhi-HASS-Gateway/internal/setup"
)

const maxBodyBytes = 1 << 20

type Server struct {
	flow       *setup.Flow
	registry   *database.Registry
	dispatcher *service.Dispatcher
	gatherer   prometheus.Gatherer
	logger     *zap.Logger

	httpServer *http.Server
}

type deviceView struct {
	Entry    entity.DeviceConfig `json:"entry"`
	LastSeen time.Time           `json:"last_seen"`
	State    map[string]any      `json:"state"`
}

type serviceResponse struct {
	Outcome string `json:"outcome"`
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

func New(flow *setup.Flow, registry *database.Registry, dispatcher *service.Dispatcher, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		flow:       flow,
		registry:   registry,
		dispatcher: dispatcher,
		gatherer:   gatherer,
		logger:     logger,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.health)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /api/devices", s.listDevices)
	mux.HandleFunc("POST /api/devices", s.createDevice)
	mux.HandleFunc("GET /api/devices/{id}", s.getDevice)
	mux.HandleFunc("PATCH /api/devices/{id}", s.updateDevice)
	mux.HandleFunc("DELETE /api/devices/{id}", s.deleteDevice)
	mux.HandleFunc("GET /api/services", s.listServices)
	mux.HandleFunc("POST /api/services/{service}", s.callService)
	return mux
}

// Start serves in the background until Shutdown.
func (s *Server) Start(listen string) {
	s.httpServer = &http.Server{
		Addr:              listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		s.logger.Info("Server: listening", zap.String("listen", listen))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Server: serve failed", zap.Error(err))
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) {
	if s.httpServer == nil {
		return
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("Server: shutdown failed", zap.Error(err))
	}
	s.logger.Info("Server: stopped")
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"devices": len(s.registry.All(r.Context())),
		"version": entity.Version,
	})
}

func (s *Server) listDevices(w http.ResponseWriter, r *http.Request) {
	cells := s.registry.All(r.Context())
	views := make([]deviceView, 0, len(cells))
	for _, cell := range cells {
		views = append(views, s.newDeviceView(r.Context(), cell))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) getDevice(w http.ResponseWriter, r *http.Request) {
	cell, ok := s.registry.Get(r.Context(), r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, setup.Outcome{Abort: setup.AbortNotFound})
		return
	}
	writeJSON(w, http.StatusOK, s.newDeviceView(r.Context(), cell))
}

func (s *Server) createDevice(w http.ResponseWriter, r *http.Request) {
	var input setup.Input
	if !s.decode(w, r, &input) {
		return
	}
	outcome := s.flow.Submit(r.Context(), input)
	writeJSON(w, outcomeStatus(outcome, http.StatusCreated), outcome)
}

func (s *Server) updateDevice(w http.ResponseWriter, r *http.Request) {
	var options setup.Options
	if !s.decode(w, r, &options) {
		return
	}
	outcome := s.flow.UpdateOptions(r.Context(), r.PathValue("id"), options)
	writeJSON(w, outcomeStatus(outcome, http.StatusOK), outcome)
}

func (s *Server) deleteDevice(w http.ResponseWriter, r *http.Request) {
	if !s.flow.UnloadEntry(r.Context(), r.PathValue("id")) {
		writeJSON(w, http.StatusNotFound, setup.Outcome{Abort: setup.AbortNotFound})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listServices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"domain":   service.Domain,
		"services": s.dispatcher.Services(),
	})
}

func (s *Server) callService(w http.ResponseWriter, r *http.Request) {
	var data map[string]any
	if !s.decode(w, r, &data) {
		return
	}
	result, err := s.dispatcher.Call(r.Context(), r.PathValue("service"), data)
	switch {
	case errors.Is(err, service.ErrUnknownService), errors.Is(err, service.ErrDeviceNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	case err != nil:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, serviceResponse{
		Outcome: result.Kind().String(),
		Code:    result.Code,
		Message: result.Message,
	})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		s.logger.Info("Server: decode request body failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json body"})
		return false
	}
	return true
}

func (s *Server) newDeviceView(ctx context.Context, cell *database.DeviceCell) deviceView {
	lastSeen, _ := s.registry.LastSeen(ctx, cell.Config.DeviceID)
	return deviceView{
		Entry:    cell.Config.Redacted(),
		LastSeen: lastSeen,
		State:    cell.Device.State(),
	}
}

func outcomeStatus(outcome setup.Outcome, success int) int {
	switch {
	case outcome.Created():
		return success
	case outcome.Abort == setup.AbortAlreadyConfigured:
		return http.StatusConflict
	case outcome.Abort == setup.AbortNotFound:
		return http.StatusNotFound
	default:
		return http.StatusBadRequest
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
