package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/nice-bills/substrate/internal/domain"
	"github.com/nice-bills/substrate/internal/domain/ledger"
)

// ---------------------------------------------------------------------------
// Escrow
// ---------------------------------------------------------------------------

type fundEscrowRequest struct {
	AgentID     string `json:"agent_id"`
	Amount      amount `json:"amount"`
	Description string `json:"description"`
}

// FundEscrow handles POST /api/v1/escrow.
func (h *Handlers) FundEscrow(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[fundEscrowRequest](w, r)
	if !ok {
		return
	}
	amt, err := ledger.ParseAmount(string(req.Amount))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	e, err := h.Ledger.FundEscrow(r.Context(), idempotencyToken(r), req.AgentID, amt, req.Description)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

type releaseEscrowRequest struct {
	Amount amount `json:"amount"`
	Reason string `json:"reason"`
}

type releaseEscrowResponse struct {
	Escrow ledger.Escrow `json:"escrow"`
	Agent  ledger.Agent  `json:"agent"`
}

// ReleaseEscrow handles POST /api/v1/escrow/{id}/release. Omitting the
// amount releases whatever is still held.
func (h *Handlers) ReleaseEscrow(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[releaseEscrowRequest](w, r)
	if !ok {
		return
	}
	amt := decimal.Zero
	if strings.TrimSpace(string(req.Amount)) != "" {
		var err error
		if amt, err = ledger.ParseAmount(string(req.Amount)); err != nil {
			writeDomainError(w, r, err)
			return
		}
	}
	e, a, err := h.Ledger.ReleaseEscrow(r.Context(), idempotencyToken(r), urlParam(r, "id"), amt, req.Reason)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, releaseEscrowResponse{Escrow: e, Agent: a})
}

// ListEscrows handles GET /api/v1/escrow.
func (h *Handlers) ListEscrows(w http.ResponseWriter, r *http.Request) {
	handleList(h.Ledger.ListEscrows)(w, r)
}

// GetEscrow handles GET /api/v1/escrow/{id}.
func (h *Handlers) GetEscrow(w http.ResponseWriter, r *http.Request) {
	handleGet(h.Ledger.GetEscrow)(w, r)
}

// ---------------------------------------------------------------------------
// Registration review queue
// ---------------------------------------------------------------------------

// SubmitRegistration handles POST /api/v1/registrations.
func (h *Handlers) SubmitRegistration(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[ledger.RegistrationRequest](w, r)
	if !ok {
		return
	}
	reg, err := h.Ledger.SubmitRegistration(r.Context(), idempotencyToken(r), req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, reg)
}

// ListRegistrations handles GET /api/v1/registrations?status=.
func (h *Handlers) ListRegistrations(w http.ResponseWriter, r *http.Request) {
	status, err := ledger.ParseRegistrationStatus(r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), domain.KindInvalidInput)
		return
	}
	handleList(func(ctx context.Context) []ledger.Registration {
		return h.Ledger.ListRegistrations(ctx, status)
	})(w, r)
}

type processRegistrationRequest struct {
	Approve bool `json:"approve"`
}

type processRegistrationResponse struct {
	Registration ledger.Registration `json:"registration"`
	Agent        *ledger.Agent       `json:"agent,omitempty"`
}

// ProcessRegistration handles POST /api/v1/registrations/{id}/process.
func (h *Handlers) ProcessRegistration(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[processRegistrationRequest](w, r)
	if !ok {
		return
	}
	reg, a, err := h.Ledger.ProcessRegistration(r.Context(), idempotencyToken(r), urlParam(r, "id"), req.Approve)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	resp := processRegistrationResponse{Registration: reg}
	if req.Approve {
		resp.Agent = &a
	}
	writeJSON(w, http.StatusOK, resp)
}
