package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/nice-bills/substrate/internal/adapter/agentcard"
	"github.com/nice-bills/substrate/internal/middleware"
)

// RouteOptions configures the API group.
type RouteOptions struct {
	// AdminTokenHash returns the hash guarding awards, escrow and the
	// registration review. Nil or an empty hash leaves them open.
	AdminTokenHash func() string
	// RequestTimeout bounds API requests. It does not apply to /ws.
	RequestTimeout time.Duration
	// Idempotency replays cached responses for repeated keys; nil disables it.
	Idempotency func(http.Handler) http.Handler
}

// MountRoutes registers all routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers, opts RouteOptions) {
	r.Get("/health", h.Health)
	r.Get(agentcard.Path, h.GetAgentCard)
	if h.Hub != nil {
		r.Get("/ws", h.Hub.HandleWS)
	}

	r.Route("/api/v1", func(r chi.Router) {
		if opts.RequestTimeout > 0 {
			r.Use(chimw.Timeout(opts.RequestTimeout))
		}

		r.Get("/", h.GetVersion)

		// Operator routes. The admin check runs before replay so a cached
		// response is never served to an unauthenticated caller.
		r.Group(func(r chi.Router) {
			r.Use(middleware.AdminTokenFunc(opts.AdminTokenHash))
			useReplay(r, opts)

			r.Post("/cred/award", h.AwardCred)
			r.Post("/escrow", h.FundEscrow)
			r.Post("/escrow/{id}/release", h.ReleaseEscrow)
			r.Get("/registrations", h.ListRegistrations)
			r.Post("/registrations/{id}/process", h.ProcessRegistration)
		})

		r.Group(func(r chi.Router) {
			useReplay(r, opts)

			// Agents
			r.Post("/agents", h.RegisterAgent)
			r.Get("/agents", h.ListAgents)
			r.Get("/agents/search", h.SearchAgents)
			r.Get("/agents/{id}", h.GetAgent)
			r.Get("/agents/{id}/history", h.AgentHistory)
			r.Post("/agents/{id}/announce", h.AnnounceAgent)
			r.Post("/registrations", h.SubmitRegistration)

			// Cred
			r.Post("/cred/transfer", h.TransferCred)
			r.Get("/escrow", h.ListEscrows)
			r.Get("/escrow/{id}", h.GetEscrow)

			// Factions
			r.Post("/factions", h.CreateFaction)
			r.Get("/factions", h.ListFactions)
			r.Get("/factions/{id}", h.GetFaction)
			r.Post("/factions/{id}/join", h.JoinFaction)
			r.Post("/factions/{id}/treasury", h.ContributeTreasury)

			r.Get("/economy/stats", h.EconomyStats)

			// Collaborators; never touch the ledger
			r.Get("/chain/balance/{address}", h.ChainBalance)
			r.Get("/chain/registry", h.ChainRegistry)
			r.Post("/security/scan", h.SecurityScan)
		})
	})
}

func useReplay(r chi.Router, opts RouteOptions) {
	if opts.Idempotency != nil {
		r.Use(opts.Idempotency)
	}
}
