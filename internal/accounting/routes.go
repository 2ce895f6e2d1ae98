package accounting

import "github.com/go-chi/chi/v5"

// MountRoutes attaches the accounting endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/accounts", func(r chi.Router) {
		r.Get("/", h.ListAccounts)
		r.Post("/", h.CreateAccount)
		r.Get("/{id}/balance", h.GetBalance)
		r.Get("/{id}/children", h.ListChildren)
		r.Get("/{id}/ledger", h.ListLedger)
		r.Put("/{id}/parent", h.UpdateParent)
		r.Post("/{id}/deactivate", h.DeactivateAccount)
	})
	r.Route("/journal-entries", func(r chi.Router) {
		r.Get("/", h.ListEntries)
		r.Post("/", h.CreateEntry)
		r.Post("/{id}/post", h.PostEntry)
		r.Post("/{id}/unpost", h.UnpostEntry)
	})
}
