package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"vitalwatch-cloud/internal/observability/metrics"
	"vitalwatch-cloud/internal/stream"
)

// StreamHandler serves the per-device live event stream over SSE.
// Events are delivered in publish order for the device; there is no
// replay of events published before the subscription.
type StreamHandler struct {
	broker *stream.Broker
}

// NewStreamHandler constructs a stream handler.
func NewStreamHandler(broker *stream.Broker) (*StreamHandler, error) {
	if broker == nil {
		return nil, errors.New("stream handler: nil broker")
	}
	return &StreamHandler{broker: broker}, nil
}

// ServeHTTP handles GET /api/v1/stream?device_id=X.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		http.Error(w, "device_id is required", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sub := h.broker.Subscribe(deviceID)
	defer h.broker.Unsubscribe(sub)
	metrics.AddStreamSubscribers(1)
	defer metrics.AddStreamSubscribers(-1)

	_, _ = w.Write([]byte("event: ready\ndata: {}\n\n"))
	flusher.Flush()

	notify := r.Context().Done()
	for {
		select {
		case event, ok := <-sub.Events():
			if !ok {
				// Broker shut down; end the stream cleanly.
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				continue
			}
			_, _ = w.Write([]byte("event: "))
			_, _ = w.Write([]byte(event.Kind))
			_, _ = w.Write([]byte("\ndata: "))
			_, _ = w.Write(payload)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		case <-notify:
			return
		}
	}
}
