package proxy

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"rrproxy/internal/containerstats"
	"rrproxy/internal/store"
)

// EndpointStats is the wire shape of one /printstats array entry. Field
// names are fixed and must match exactly: external consumers parse this
// JSON shape directly.
type EndpointStats struct {
	URI                        string  `json:"uri"`
	CountSuccess               int64   `json:"count_success"`
	CountFailure               int64   `json:"count_failure"`
	CountConcurrentConnections int64   `json:"count_concurrent_connections"`
	ActiveServer               bool    `json:"active_server"`
	CPUPercentage              float64 `json:"cpu_percentage"`
	MemoryUsage                uint64  `json:"memory_usage"`
	MemoryLimit                uint64  `json:"memory_limit"`
	MemoryPercentage           float64 `json:"memory_percentage"`
	NetworkRxBytes             uint64  `json:"network_rx_bytes"`
	NetworkTxBytes             uint64  `json:"network_tx_bytes"`
}

// StatsHandler serves GET /printstats: a snapshot of every endpoint's
// counters joined with the container sensor's per-URI resource metrics.
type StatsHandler struct {
	store  *store.EndpointStore
	sensor containerstats.Sensor
}

// NewStatsHandler builds a StatsHandler over s, joining with sensor. Pass
// containerstats.NoopSensor{} when no container runtime is configured.
func NewStatsHandler(s *store.EndpointStore, sensor containerstats.Sensor) *StatsHandler {
	return &StatsHandler{store: s, sensor: sensor}
}

func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// A sensor probe failure degrades to an empty join, never to an error
	// response — missing entries default every metric field to zero.
	containerMetrics, _ := h.sensor.GetContainerStats(ctx)

	endpoints := h.store.List()
	out := make([]EndpointStats, 0, len(endpoints))
	for _, ep := range endpoints {
		stat := EndpointStats{
			URI:                        ep.URI(),
			CountSuccess:               ep.SuccessCount(),
			CountFailure:               ep.FailureCount(),
			CountConcurrentConnections: ep.ConcurrentCount(),
			ActiveServer:               ep.Active(),
		}
		if cm, ok := containerMetrics[ep.URI()]; ok {
			stat.CPUPercentage = cm.CPUPercentage
			stat.MemoryUsage = cm.MemoryUsage
			stat.MemoryLimit = cm.MemoryLimit
			stat.MemoryPercentage = cm.MemoryPercentage
			stat.NetworkRxBytes = cm.NetworkRxBytes
			stat.NetworkTxBytes = cm.NetworkTxBytes
		}
		out = append(out, stat)
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(out)
}
