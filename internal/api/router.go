package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cdot/Squirrel-sub002/internal/storage"
	"github.com/cdot/Squirrel-sub002/internal/vault"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// blobs, if non-nil, is served under /store for remote replicas.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *vault.Service, blobs storage.Provider, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Tree reads.
	r.Get("/tree", h.GetTree)
	r.Get("/nodes", h.GetNode)
	r.Get("/nodes/*", h.GetNode)

	// Actions.
	r.Get("/actions", h.ListActions)
	r.Post("/actions", h.PlayAction)
	r.Post("/import", h.Import)

	// Reconciliation and alarms.
	r.Post("/sync", h.Sync)
	r.Post("/alarms/check", h.CheckAlarms)

	// Blob store for replicas using the HTTP backend.
	if blobs != nil {
		sh := NewStoreHandler(blobs)
		r.Get("/store", sh.List)
		r.Get("/store/{name}", sh.Get)
		r.Put("/store/{name}", sh.Put)
		r.Delete("/store/{name}", sh.Delete)
	}

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
