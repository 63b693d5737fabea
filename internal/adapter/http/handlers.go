package http

import (
	"net/http"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/nice-bills/substrate/internal/adapter/ws"
	"github.com/nice-bills/substrate/internal/service"
)

// Handlers holds the services the HTTP API exposes.
type Handlers struct {
	Ledger   *service.LedgerService
	Chain    *service.ChainViewService
	Security *service.SecurityService
	Hub      *ws.Hub
	Card     a2a.AgentCard
	Version  string
}

type healthResponse struct {
	Status         string `json:"status"`
	DurableVersion uint64 `json:"durable_version"`
	WSClients      int    `json:"ws_clients"`
	WSDropped      int64  `json:"ws_dropped"`
}

// Health reports liveness and the last durable snapshot version.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "ok", DurableVersion: h.Ledger.DurableVersion()}
	if h.Hub != nil {
		resp.WSClients = h.Hub.ConnectionCount()
		resp.WSDropped = h.Hub.Dropped()
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetVersion returns the API version.
func (h *Handlers) GetVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": h.Version})
}

// GetAgentCard serves the A2A agent card.
func (h *Handlers) GetAgentCard(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Card)
}
