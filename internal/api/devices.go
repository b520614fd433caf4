package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-homesim/internal/device"
	"github.com/nerrad567/gray-logic-homesim/internal/dispatch"
	"github.com/nerrad567/gray-logic-homesim/internal/telemetry"
)

// SourceAPI tags dispatches requested over HTTP.
const SourceAPI = "api"

// handleListDevices returns all devices in registration order.
//
// Query parameters:
//   - kind: sensor or actuator
//   - subtype: e.g. lamp, temperature
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	kind := device.Kind(r.URL.Query().Get("kind"))
	subtype := device.Subtype(r.URL.Query().Get("subtype"))

	all := s.registry.All()
	devices := make([]device.Record, 0, len(all))
	for _, rec := range all {
		if kind != "" && rec.Kind != kind {
			continue
		}
		if subtype != "" && rec.Subtype != subtype {
			continue
		}
		devices = append(devices, rec)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, ok := s.registry.Get(id)
	if !ok {
		writeNotFound(w, "device not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleRegisterDevice accepts a device descriptor pushed by an actuator at
// start-up. The body has the same shape as a telemetry message.
func (s *Server) handleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	if s.registrar == nil {
		writeUnavailable(w, "registration is not available")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, "reading request body: "+err.Error())
		return
	}
	msg, err := telemetry.Decode(body, "")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	rec, err := s.registrar.Apply(msg)
	if err != nil {
		if errors.Is(err, telemetry.ErrMalformedMessage) {
			writeBadRequest(w, err.Error())
			return
		}
		s.logger.Error("device registration failed", "id", msg.ID, "error", err)
		writeInternalError(w, "registration failed")
		return
	}

	s.logger.Info("device registered via API", "id", rec.ID, "subtype", rec.Subtype)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"device":  rec,
	})
}

// commandRequest is the body of POST /devices/{id}/command.
type commandRequest struct {
	State      string          `json:"state"`
	Parameters dispatch.Params `json:"parameters,omitempty"`
}

// handleDeviceCommand sends a command to an actuator and returns the
// dispatch result. The status code reflects the failure class; the body is
// always a dispatch.Result.
func (s *Server) handleDeviceCommand(w http.ResponseWriter, r *http.Request) {
	if s.dispatcher == nil {
		writeUnavailable(w, "command dispatch is not available")
		return
	}

	id := chi.URLParam(r, "id")
	rec, ok := s.registry.Get(id)
	if !ok {
		writeNotFound(w, "device not found")
		return
	}

	var req commandRequest
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, "reading request body: "+err.Error())
		return
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return
	}
	if req.State == "" {
		writeBadRequest(w, "state is required")
		return
	}

	ctx := dispatch.WithSource(r.Context(), SourceAPI)
	res := s.dispatcher.Send(ctx, rec, req.State, req.Parameters)
	writeJSON(w, commandStatus(res), res)
}

// commandStatus maps a dispatch result onto an HTTP status.
func commandStatus(res dispatch.Result) int {
	switch {
	case res.Success:
		return http.StatusOK
	case errors.Is(res.Err, dispatch.ErrUnsupportedSubtype),
		errors.Is(res.Err, dispatch.ErrUnsupportedAction),
		errors.Is(res.Err, dispatch.ErrInvalidParameter):
		return http.StatusBadRequest
	case errors.Is(res.Err, dispatch.ErrNoEndpoint):
		return http.StatusUnprocessableEntity
	case errors.Is(res.Err, dispatch.ErrInFlight):
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

// handleShutdownDevice tells a sensor process to stop.
func (s *Server) handleShutdownDevice(w http.ResponseWriter, r *http.Request) {
	if s.shutdown == nil {
		writeUnavailable(w, "shutdown publishing is not available")
		return
	}

	id := chi.URLParam(r, "id")
	rec, ok := s.registry.Get(id)
	if !ok {
		writeNotFound(w, "device not found")
		return
	}
	if rec.Kind != device.KindSensor {
		writeBadRequest(w, "only sensors accept shutdown commands")
		return
	}

	key := telemetry.Keys{}.Shutdown(id)
	if err := s.shutdown.Publish(r.Context(), key, telemetry.ShutdownCommand{Command: telemetry.CommandShutdown}); err != nil {
		s.logger.Error("publishing shutdown failed", "id", id, "error", err)
		writeError(w, http.StatusBadGateway, ErrCodeUnavailable, "publishing shutdown failed")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"success":     true,
		"routing_key": key,
	})
}
