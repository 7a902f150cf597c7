package api

import (
	"context"
	"encoding/hex"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/knxnet-core/internal/knxnet/address"
	"github.com/nerrad567/knxnet-core/internal/knxnet/client"
	"github.com/nerrad567/knxnet-core/internal/knxnet/status"
)

// healthCheckTimeout bounds each component check.
const healthCheckTimeout = 2 * time.Second

// HealthResponse is returned by /api/v1/health.
type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Connection    string            `json:"connection"`
	Components    map[string]string `json:"components,omitempty"`
}

// ConnectionResponse is returned by /api/v1/connection.
type ConnectionResponse struct {
	State             string `json:"state"`
	Mode              string `json:"mode"`
	ConnectionType    string `json:"connection_type,omitempty"`
	Channel           *uint8 `json:"channel,omitempty"`
	IndividualAddress string `json:"individual_address,omitempty"`
	Gateway           string `json:"gateway,omitempty"`
}

// StatusEntry is one address in /api/v1/status.
type StatusEntry struct {
	Address string    `json:"address"`
	Type    string    `json:"type"`
	Source  string    `json:"source"`
	APCI    string    `json:"apci"`
	Payload string    `json:"payload"`
	Updated time.Time `json:"updated"`
}

func statusEntry(e status.Entry) StatusEntry {
	return StatusEntry{
		Address: e.Address.String(),
		Type:    e.Address.Type.String(),
		Source:  e.Source.String(),
		APCI:    e.APCI.String(),
		Payload: hex.EncodeToString(e.Payload),
		Updated: e.Time.UTC(),
	}
}

// handleHealth reports "ok" when the client is connected and every
// component check passes, "degraded" otherwise. It always answers 200 so
// load balancers can tell a live daemon from a dead one.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := s.client.State()
	resp := HealthResponse{
		Status:        "ok",
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Connection:    state.String(),
	}
	if state != client.StateConnected {
		resp.Status = "degraded"
	}

	if len(s.health) > 0 {
		resp.Components = make(map[string]string, len(s.health))
		for name, checker := range s.health {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			err := checker.HealthCheck(ctx)
			cancel()
			if err != nil {
				resp.Components[name] = err.Error()
				resp.Status = "degraded"
				continue
			}
			resp.Components[name] = "ok"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleConnection(w http.ResponseWriter, _ *http.Request) {
	cfg := s.client.Config()
	resp := ConnectionResponse{
		State: s.client.State().String(),
		Mode:  cfg.Mode.String(),
	}
	if cfg.Mode == client.ModeTunneling {
		resp.ConnectionType = cfg.ConnectionType.String()
	}
	if ch, ok := s.client.ChannelID(); ok {
		resp.Channel = &ch
		resp.IndividualAddress = s.client.IndividualAddress().String()
	}
	if gw, ok := s.client.Gateway(); ok {
		resp.Gateway = gw.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatistics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.client.Stats())
}

func (s *Server) handleListStatus(w http.ResponseWriter, _ *http.Request) {
	entries := s.status.Snapshot()
	out := make([]StatusEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, statusEntry(e))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": out,
		"count":   len(out),
	})
}

// handleGetStatus looks up one address. Group addresses must be escaped
// ("1%2F2%2F3") since "/" separates path segments.
func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	addr, err := address.ParseURL(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	e, ok := s.status.Lookup(addr)
	if !ok {
		writeError(w, r, http.StatusNotFound, "no status for "+addr.String())
		return
	}
	writeJSON(w, http.StatusOK, statusEntry(e))
}

func (s *Server) handleListGroupAddresses(w http.ResponseWriter, r *http.Request) {
	if s.addresses == nil {
		writeError(w, r, http.StatusNotFound, "address recording is disabled")
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, r, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	records, err := s.addresses.GroupAddresses(r.Context(), limit)
	if err != nil {
		s.logger.Error("listing group addresses", "error", err)
		writeError(w, r, http.StatusInternalServerError, "failed to list group addresses")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"group_addresses": records,
		"count":           len(records),
	})
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	if s.addresses == nil {
		writeError(w, r, http.StatusNotFound, "address recording is disabled")
		return
	}
	records, err := s.addresses.Devices(r.Context())
	if err != nil {
		s.logger.Error("listing devices", "error", err)
		writeError(w, r, http.StatusInternalServerError, "failed to list devices")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": records,
		"count":   len(records),
	})
}
