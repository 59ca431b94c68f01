package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	alerts "vitalwatch-cloud/internal/alerts/domain"
	devices "vitalwatch-cloud/internal/devices/domain"
	telemetry "vitalwatch-cloud/internal/telemetry/domain"
)

const (
	defaultReadingsLimit = 50
	defaultAlertsLimit   = 20
)

// ReadingsHandler serves recent readings for a device. This pull
// surface is the catch-up mechanism for observers that just connected;
// the live stream never replays.
type ReadingsHandler struct {
	query telemetry.ReadingQuery
}

// NewReadingsHandler constructs a readings handler.
func NewReadingsHandler(query telemetry.ReadingQuery) (*ReadingsHandler, error) {
	if query == nil {
		return nil, errors.New("readings handler: nil query")
	}
	return &ReadingsHandler{query: query}, nil
}

// ServeHTTP handles GET /api/v1/readings?device_id=X&limit=N.
func (h *ReadingsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		http.Error(w, "device_id is required", http.StatusBadRequest)
		return
	}
	limit := parseLimit(r, defaultReadingsLimit)

	readings, err := h.query.RecentByDevice(r.Context(), deviceID, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if readings == nil {
		readings = []telemetry.Reading{}
	}
	writeJSON(w, readings)
}

// AlertsHandler serves recent alerts for a device.
type AlertsHandler struct {
	query alerts.AlertQuery
}

// NewAlertsHandler constructs an alerts handler.
func NewAlertsHandler(query alerts.AlertQuery) (*AlertsHandler, error) {
	if query == nil {
		return nil, errors.New("alerts handler: nil query")
	}
	return &AlertsHandler{query: query}, nil
}

// ServeHTTP handles GET /api/v1/alerts?device_id=X&limit=N.
func (h *AlertsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		http.Error(w, "device_id is required", http.StatusBadRequest)
		return
	}
	limit := parseLimit(r, defaultAlertsLimit)

	list, err := h.query.RecentByDevice(r.Context(), deviceID, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []alerts.Alert{}
	}
	writeJSON(w, list)
}

// DevicesHandler lists the device fleet. Pairing and assignment are
// owned by the registry collaborator; this surface is read-only.
type DevicesHandler struct {
	registry devices.Registry
}

// NewDevicesHandler constructs a devices handler.
func NewDevicesHandler(registry devices.Registry) (*DevicesHandler, error) {
	if registry == nil {
		return nil, errors.New("devices handler: nil registry")
	}
	return &DevicesHandler{registry: registry}, nil
}

// ServeHTTP handles GET /api/v1/devices.
func (h *DevicesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	fleet, err := h.registry.List(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if fleet == nil {
		fleet = []devices.Device{}
	}
	writeJSON(w, fleet)
}

func parseLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return fallback
	}
	if limit > fallback {
		return fallback
	}
	return limit
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
