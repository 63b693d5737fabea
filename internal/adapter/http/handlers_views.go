package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/nice-bills/substrate/internal/domain"
	"github.com/nice-bills/substrate/internal/logger"
	"github.com/nice-bills/substrate/internal/port/scanner"
	"github.com/nice-bills/substrate/internal/service"
)

// ChainBalance handles GET /api/v1/chain/balance/{address}. Chain failures
// answer 200 with available=false.
func (h *Handlers) ChainBalance(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Chain.Balance(r.Context(), urlParam(r, "address")))
}

// ChainRegistry handles GET /api/v1/chain/registry.
func (h *Handlers) ChainRegistry(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Chain.Registry(r.Context()))
}

// SecurityScan handles POST /api/v1/security/scan.
func (h *Handlers) SecurityScan(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[scanner.Resource](w, r)
	if !ok {
		return
	}
	rep, err := h.Security.Scan(r.Context(), req)
	switch {
	case errors.Is(err, service.ErrScannerDisabled):
		writeError(w, http.StatusServiceUnavailable, err.Error(), "ScannerDisabled")
	case err != nil && domain.Kind(err) == domain.KindInternal:
		logger.From(r.Context(), slog.Default()).Warn("security scan failed", "error", err)
		writeError(w, http.StatusBadGateway, "scanner unavailable", "ScannerUnavailable")
	case err != nil:
		writeDomainError(w, r, err)
	default:
		writeJSON(w, http.StatusOK, rep)
	}
}
