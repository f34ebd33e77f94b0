package api

import (
	"context"
	"net/http"
	"time"

	"github.com/snarg/podcheck/internal/ingest"
	"github.com/snarg/podcheck/internal/webhook"
)

// Pinger is satisfied by *database.DB.
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

// ConnStatus is satisfied by *mqttclient.Client.
type ConnStatus interface {
	IsConnected() bool
}

// QueueStatus is satisfied by *webhook.Dispatcher.
type QueueStatus interface {
	Enabled() bool
	Stats() webhook.QueueStats
}

// WatcherStatus is satisfied by *ingest.Watcher.
type WatcherStatus interface {
	Status() ingest.Status
}

type HealthResponse struct {
	Status        string              `json:"status"`
	Version       string              `json:"version"`
	UptimeSeconds int64               `json:"uptime_seconds"`
	Checks        map[string]string   `json:"checks"`
	STTProvider   string              `json:"stt_provider,omitempty"`
	Webhook       *webhook.QueueStats `json:"webhook,omitempty"`
	Watcher       *ingest.Status      `json:"watcher,omitempty"`
}

// HealthDeps are the optional components the health check reports on. Leave
// a field nil when the component is not configured.
type HealthDeps struct {
	DB          Pinger
	MQTT        ConnStatus
	Webhook     QueueStatus
	Watcher     WatcherStatus
	STTProvider string
}

type HealthHandler struct {
	deps      HealthDeps
	version   string
	startTime time.Time
}

func NewHealthHandler(deps HealthDeps, version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{deps: deps, version: version, startTime: startTime}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "healthy"
	httpStatus := http.StatusOK
	degrade := func() {
		if status == "healthy" {
			status = "degraded"
		}
	}

	// Database check
	if h.deps.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		err := h.deps.DB.HealthCheck(ctx)
		cancel()
		if err != nil {
			checks["database"] = "error"
			status = "unhealthy"
			httpStatus = http.StatusServiceUnavailable
		} else {
			checks["database"] = "ok"
		}
	} else {
		checks["database"] = "memory"
	}

	// MQTT check
	if h.deps.MQTT != nil {
		if h.deps.MQTT.IsConnected() {
			checks["mqtt"] = "ok"
		} else {
			checks["mqtt"] = "disconnected"
			degrade()
		}
	} else {
		checks["mqtt"] = "not_configured"
	}

	resp := HealthResponse{
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Checks:        checks,
		STTProvider:   h.deps.STTProvider,
	}

	// Webhook queue check
	if h.deps.Webhook != nil && h.deps.Webhook.Enabled() {
		stats := h.deps.Webhook.Stats()
		resp.Webhook = &stats
		checks["webhook"] = "ok"
	} else {
		checks["webhook"] = "not_configured"
	}

	// File watcher check
	if h.deps.Watcher != nil {
		ws := h.deps.Watcher.Status()
		resp.Watcher = &ws
		checks["watcher"] = ws.Status
		if ws.Status != "watching" {
			degrade()
		}
	} else {
		checks["watcher"] = "not_configured"
	}

	resp.Status = status
	WriteJSON(w, httpStatus, resp)
}
