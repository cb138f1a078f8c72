// Package web serves the storefront page and its JSON API.
package web

import (
	"context"
	"embed"
	"net/http"

	"xpstore/internal/journal"
	"xpstore/internal/middleware"
	"xpstore/internal/security"
	"xpstore/internal/storefront"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// AttemptLister reads the purchase journal.
type AttemptLister interface {
	Recent(ctx context.Context, limit int) ([]journal.Attempt, error)
}

type Handler struct {
	view     *storefront.View
	attempts AttemptLister
}

// New returns handlers for view. attempts may be nil when the journal is off.
func New(view *storefront.View, attempts AttemptLister) *Handler {
	return &Handler{view: view, attempts: attempts}
}

// Register adds the page, form and API routes to mux.
func (h *Handler) Register(mux *http.ServeMux, allowedOrigin string) {
	mux.HandleFunc("GET /{$}", h.IndexHandler)
	mux.HandleFunc("POST /buy", security.RequireCSRF(h.BuyHandler))
	mux.HandleFunc("POST /confirm", security.RequireCSRF(h.ConfirmHandler))
	mux.HandleFunc("POST /cancel", security.RequireCSRF(h.CancelHandler))

	apiMux := http.NewServeMux()
	apiMux.HandleFunc("GET /offerings", middleware.APIMiddleware(h.OfferingsAPI))
	apiMux.HandleFunc("GET /state", middleware.APIMiddleware(h.StateAPI))
	apiMux.HandleFunc("POST /open", middleware.APIMiddleware(h.OpenAPI))
	apiMux.HandleFunc("POST /confirm", middleware.APIMiddleware(h.ConfirmAPI))
	apiMux.HandleFunc("POST /cancel", middleware.APIMiddleware(h.CancelAPI))
	apiMux.HandleFunc("GET /attempts", middleware.APIMiddleware(h.AttemptsAPI))
	apiMux.HandleFunc("GET /csrf-token", security.CSRFTokenHandler)

	mux.Handle("/api/", security.AddCORSHeaders(allowedOrigin, http.StripPrefix("/api", apiMux)))
}

// detached keeps the webhook call running if the browser goes away; the
// webhook client's own timeout still bounds it.
func detached(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}
