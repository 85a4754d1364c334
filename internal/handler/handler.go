// Package handler exposes the storefront HTTP API.
package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/session"
	"github.com/xenking/storefront/internal/domain/user"
)

// DefaultCookieName is the session cookie name when none is configured.
const DefaultCookieName = "sid"

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// ImageBaseURL is prepended to relative image paths in product responses.
	// Absolute URLs and an empty base leave paths as stored.
	ImageBaseURL string

	// CookieName names the session cookie. Defaults to DefaultCookieName.
	CookieName string
	// CookieSecure marks the session cookie Secure; enable behind TLS.
	CookieSecure bool
}

// Handler serves the /api routes, delegating business logic to the domain
// services.
type Handler struct {
	products product.Repository
	orders   *order.Service
	users    *user.Service
	sessions *session.Manager

	imageBaseURL string
	cookieName   string
	cookieSecure bool

	now func() time.Time
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	cfg Config,
	products product.Repository,
	orders *order.Service,
	users *user.Service,
	sessions *session.Manager,
) *Handler {
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	return &Handler{
		products:     products,
		orders:       orders,
		users:        users,
		sessions:     sessions,
		imageBaseURL: cfg.ImageBaseURL,
		cookieName:   cfg.CookieName,
		cookieSecure: cfg.CookieSecure,
		now:          time.Now,
	}
}

// Routes returns the API router. Paths are relative to the /api mount point.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, http.StatusNotFound, "Not found.")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, http.StatusMethodNotAllowed, "Method not allowed.")
	})

	r.Get("/products", h.ListProducts)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.Post("/logout", h.Logout)
		r.Get("/status", h.Status)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.RequireSession)
		r.Post("/orders", h.PlaceOrder)
		r.Get("/orders", h.ListOrders)
	})

	return r
}
