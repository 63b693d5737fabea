package http

import (
	"net/http"

	"github.com/nice-bills/substrate/internal/domain"
	"github.com/nice-bills/substrate/internal/domain/ledger"
)

// ---------------------------------------------------------------------------
// Agents
// ---------------------------------------------------------------------------

type registerAgentRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Emoji       string `json:"emoji"`
	Owner       string `json:"owner"`
}

// RegisterAgent handles POST /api/v1/agents.
func (h *Handlers) RegisterAgent(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[registerAgentRequest](w, r)
	if !ok {
		return
	}
	a, err := h.Ledger.RegisterAgent(r.Context(), idempotencyToken(r), ledger.Profile(req))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// ListAgents handles GET /api/v1/agents (the leaderboard).
func (h *Handlers) ListAgents(w http.ResponseWriter, r *http.Request) {
	handleList(h.Ledger.ListAgents)(w, r)
}

// GetAgent handles GET /api/v1/agents/{id}.
func (h *Handlers) GetAgent(w http.ResponseWriter, r *http.Request) {
	handleGet(h.Ledger.GetAgent)(w, r)
}

// AgentHistory handles GET /api/v1/agents/{id}/history.
func (h *Handlers) AgentHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Ledger.AgentHistory(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if entries == nil {
		entries = []ledger.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// SearchAgents handles GET /api/v1/agents/search?capability=&min_tier=.
func (h *Handlers) SearchAgents(w http.ResponseWriter, r *http.Request) {
	q := ledger.SearchQuery{Capability: r.URL.Query().Get("capability")}
	if raw := r.URL.Query().Get("min_tier"); raw != "" {
		t, err := ledger.ParseTier(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), domain.KindInvalidInput)
			return
		}
		q.MinTier = t
	}
	agents := h.Ledger.SearchAgents(r.Context(), q)
	if agents == nil {
		agents = []ledger.Agent{}
	}
	writeJSON(w, http.StatusOK, agents)
}

type announceRequest struct {
	Endpoint     string   `json:"endpoint"`
	Description  string   `json:"description"`
	Capabilities []string `json:"capabilities"`
}

// AnnounceAgent handles POST /api/v1/agents/{id}/announce.
func (h *Handlers) AnnounceAgent(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[announceRequest](w, r)
	if !ok {
		return
	}
	a, err := h.Ledger.AnnounceAgent(r.Context(), idempotencyToken(r), urlParam(r, "id"), ledger.Discovery(req))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// ---------------------------------------------------------------------------
// Cred
// ---------------------------------------------------------------------------

type awardRequest struct {
	AgentID string `json:"agent_id"`
	Amount  amount `json:"amount"`
	Note    string `json:"note"`
}

// AwardCred handles POST /api/v1/cred/award.
func (h *Handlers) AwardCred(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[awardRequest](w, r)
	if !ok {
		return
	}
	amt, err := ledger.ParseAmount(string(req.Amount))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	a, err := h.Ledger.AwardCred(r.Context(), idempotencyToken(r), req.AgentID, amt, req.Note)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

type transferRequest struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount amount `json:"amount"`
	Note   string `json:"note"`
}

type transferResponse struct {
	From ledger.Agent `json:"from"`
	To   ledger.Agent `json:"to"`
}

// TransferCred handles POST /api/v1/cred/transfer.
func (h *Handlers) TransferCred(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[transferRequest](w, r)
	if !ok {
		return
	}
	amt, err := ledger.ParseAmount(string(req.Amount))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	from, to, err := h.Ledger.TransferCred(r.Context(), idempotencyToken(r), req.From, req.To, amt, req.Note)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, transferResponse{From: from, To: to})
}

// ---------------------------------------------------------------------------
// Factions
// ---------------------------------------------------------------------------

type createFactionRequest struct {
	Name      string `json:"name"`
	Metadata  string `json:"metadata"`
	FounderID string `json:"founder_id"`
}

// CreateFaction handles POST /api/v1/factions.
func (h *Handlers) CreateFaction(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[createFactionRequest](w, r)
	if !ok {
		return
	}
	f, err := h.Ledger.CreateFaction(r.Context(), idempotencyToken(r), req.Name, req.Metadata, req.FounderID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

// ListFactions handles GET /api/v1/factions.
func (h *Handlers) ListFactions(w http.ResponseWriter, r *http.Request) {
	handleList(h.Ledger.ListFactions)(w, r)
}

// GetFaction handles GET /api/v1/factions/{id}.
func (h *Handlers) GetFaction(w http.ResponseWriter, r *http.Request) {
	handleGet(h.Ledger.GetFaction)(w, r)
}

type memberRequest struct {
	AgentID string `json:"agent_id"`
}

// JoinFaction handles POST /api/v1/factions/{id}/join.
func (h *Handlers) JoinFaction(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[memberRequest](w, r)
	if !ok {
		return
	}
	f, err := h.Ledger.JoinFaction(r.Context(), idempotencyToken(r), urlParam(r, "id"), req.AgentID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

type treasuryRequest struct {
	AgentID string `json:"agent_id"`
	Amount  amount `json:"amount"`
}

type treasuryResponse struct {
	Faction ledger.Faction `json:"faction"`
	Agent   ledger.Agent   `json:"agent"`
}

// ContributeTreasury handles POST /api/v1/factions/{id}/treasury.
func (h *Handlers) ContributeTreasury(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[treasuryRequest](w, r)
	if !ok {
		return
	}
	amt, err := ledger.ParseAmount(string(req.Amount))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	f, a, err := h.Ledger.ContributeTreasury(r.Context(), idempotencyToken(r), urlParam(r, "id"), req.AgentID, amt)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, treasuryResponse{Faction: f, Agent: a})
}

// EconomyStats handles GET /api/v1/economy/stats.
func (h *Handlers) EconomyStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Ledger.EconomyStats(r.Context()))
}
