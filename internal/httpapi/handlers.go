// Package httpapi serves the marketplace REST API over any gateway.Gateway.
// Paths, payloads and status codes follow the production backend so the
// remote client can be exercised against it unchanged.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"bloodlink.org/internal/audit"
	"bloodlink.org/internal/blood"
	"bloodlink.org/internal/gateway"
)

const (
	serviceName = "bms-sandbox"
	apiPrefix   = "/api"
)

// API is the HTTP layer.
type API struct {
	router     *mux.Router
	gw         gateway.Gateway
	version    string
	rateBurst  int
	ratePerSec int
}

// Option configures API.
type Option func(*API)

// WithVersion sets the version reported by /healthz.
func WithVersion(v string) Option {
	return func(a *API) { a.version = v }
}

// WithRateLimit sets the per-client token bucket. Non-positive values
// disable limiting.
func WithRateLimit(burst, perSecond int) Option {
	return func(a *API) {
		a.rateBurst = burst
		a.ratePerSec = perSecond
	}
}

// New wires routes for gw.
func New(gw gateway.Gateway, opts ...Option) *API {
	a := &API{
		router:     mux.NewRouter(),
		gw:         gw,
		version:    "dev",
		rateBurst:  50,
		ratePerSec: 25,
	}
	for _, opt := range opts {
		opt(a)
	}

	a.router.HandleFunc("/healthz", a.Healthz).Methods(http.MethodGet)

	api := a.router.PathPrefix(apiPrefix).Subrouter()
	api.HandleFunc("/login/", a.login).Methods(http.MethodPost)
	api.HandleFunc("/token/refresh/", a.refresh).Methods(http.MethodPost)
	api.HandleFunc("/register/{kind:donor|civilian}/", a.register).Methods(http.MethodPost)
	api.HandleFunc("/profile/me/", a.me).Methods(http.MethodGet)
	api.HandleFunc("/profiles/", a.listProfiles).Methods(http.MethodGet)
	api.HandleFunc("/donors/search/", a.searchDonors).Methods(http.MethodGet)
	api.HandleFunc("/requests/", a.listRequests).Methods(http.MethodGet)
	api.HandleFunc("/requests/", a.createRequest).Methods(http.MethodPost)
	api.HandleFunc("/requests/{id:[0-9]+}/", a.getRequest).Methods(http.MethodGet)
	api.HandleFunc("/offers/", a.listOffers).Methods(http.MethodGet)
	api.HandleFunc("/offers/", a.createOffer).Methods(http.MethodPost)
	api.HandleFunc("/offers/{id:[0-9]+}/", a.deleteOffer).Methods(http.MethodDelete)
	api.HandleFunc("/bloodbanks/", a.listBloodBanks).Methods(http.MethodGet)

	// Subrouters do not inherit these from the root.
	for _, r := range []*mux.Router{a.router, api} {
		r.NotFoundHandler = http.HandlerFunc(notFound)
		r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	}
	return a
}

func notFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusNotFound, "Not found.")
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusMethodNotAllowed, "Method \""+r.Method+"\" not allowed.")
}

// Handler returns the router wrapped in the middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = withBearer(a.router)
	if a.rateBurst > 0 && a.ratePerSec > 0 {
		h = RateLimit(h, a.rateBurst, a.ratePerSec)
	}
	return RequestID(Logging(h))
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"detail": msg,
	}
	if rid := audit.RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	if code == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
	}
	writeJSON(w, code, payload)
}

// handleGatewayError maps the domain sentinels back onto the status codes
// the remote client expects.
func handleGatewayError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, blood.ErrValidation):
		writeError(w, r, http.StatusBadRequest, detail(err, blood.ErrValidation))
	case errors.Is(err, blood.ErrAuthentication):
		writeError(w, r, http.StatusUnauthorized, detail(err, blood.ErrAuthentication))
	case errors.Is(err, blood.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "Not found.")
	case gateway.IsForbidden(err):
		writeError(w, r, http.StatusForbidden, "You do not have permission to perform this action.")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

// detail strips the sentinel prefix from a wrapped error message.
func detail(err, sentinel error) string {
	msg := err.Error()
	prefix := sentinel.Error() + ": "
	if len(msg) > len(prefix) && msg[:len(prefix)] == prefix {
		return msg[len(prefix):]
	}
	return msg
}
