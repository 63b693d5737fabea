package http

import (
	"context"
	"net/http"

	"github.com/nice-bills/substrate/internal/domain"
)

// ---------------------------------------------------------------------------
// Generic read handler factories
// ---------------------------------------------------------------------------

// handleList creates a handler that lists resources and returns JSON,
// honoring an optional ?limit=.
func handleList[T any](listFn func(ctx context.Context) []T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, ok := queryLimit(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer", domain.KindInvalidInput)
			return
		}
		items := listFn(r.Context())
		if items == nil {
			items = []T{}
		}
		if limit > 0 && limit < len(items) {
			items = items[:limit]
		}
		writeJSON(w, http.StatusOK, items)
	}
}

// handleGet creates a handler that retrieves a single resource by URL param "id".
func handleGet[T any](getFn func(ctx context.Context, id string) (T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		item, err := getFn(r.Context(), urlParam(r, "id"))
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, item)
	}
}
