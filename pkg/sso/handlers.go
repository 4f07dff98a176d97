package sso

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/threshold/pkg/authn"
	"github.com/platinummonkey/threshold/pkg/cookie"
	"github.com/platinummonkey/threshold/pkg/httputil"
	"github.com/platinummonkey/threshold/pkg/observability"
	"github.com/platinummonkey/threshold/pkg/session"
)

// Handlers serves the provider side of external handshakes
type Handlers struct {
	registry    *Registry
	sessions    *session.Manager
	cookies     cookie.Options
	callbackURL string
	logger      *logrus.Logger
}

// NewHandlers creates the handshake handlers. callbackURL is where the
// browser goes once the external slot has been completed.
func NewHandlers(registry *Registry, sessions *session.Manager, cookies cookie.Options, callbackURL string, logger *logrus.Logger) *Handlers {
	if logger == nil {
		logger = logrus.New()
	}
	return &Handlers{
		registry:    registry,
		sessions:    sessions,
		cookies:     cookies,
		callbackURL: callbackURL,
		logger:      logger,
	}
}

// RegisterRoutes registers SSO routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/sso/{provider}/callback", h.handleCallback).Methods("GET", "POST")
	router.HandleFunc("/sso/{provider}/metadata", h.getMetadata).Methods("GET")
}

// handleCallback handles GET/POST /sso/{provider}/callback
func (h *Handlers) handleCallback(w http.ResponseWriter, r *http.Request) {
	name, err := httputil.ParsePathString(r, "provider")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	log := observability.LoggerFrom(r.Context(), h.logger).WithField("provider", name)

	provider, err := h.registry.Get(name)
	if err != nil {
		http.Error(w, "unknown provider", http.StatusNotFound)
		return
	}

	ext := h.sessions.ForRequest(cookie.NewJar(w, r, h.cookies)).External
	ch, ok := ext.PendingChallenge()
	if !ok || ch.Provider != name {
		log.Warn("Provider callback without a pending challenge")
		http.Error(w, "no pending sign-in for this provider", http.StatusBadRequest)
		return
	}

	state := r.FormValue("state")
	if state == "" {
		state = r.FormValue("RelayState")
	}
	if subtle.ConstantTimeCompare([]byte(state), []byte(ch.Nonce)) != 1 {
		log.Warn("Provider callback state mismatch")
		http.Error(w, "invalid state", http.StatusBadRequest)
		return
	}

	var id *authn.Identity
	claims, err := provider.HandleCallback(r.Context(), r, ch.Verifier)
	switch {
	case errors.Is(err, ErrProviderDenied):
		log.WithError(err).Info("Provider declined the sign-in")
	case err != nil:
		log.WithError(err).Warn("Provider callback failed")
	default:
		id = &authn.Identity{Claims: claims}
	}

	// An unauthenticated result still completes the slot so the login flow
	// can render its error page.
	if err := ext.Complete(id, ch.State); err != nil {
		log.WithError(err).Error("Failed to complete external sign-in")
		http.Error(w, "failed to complete sign-in", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, h.callbackURL, http.StatusFound)
}

// getMetadata handles GET /sso/{provider}/metadata
func (h *Handlers) getMetadata(w http.ResponseWriter, r *http.Request) {
	name, err := httputil.ParsePathString(r, "provider")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	provider, err := h.registry.Get(name)
	if err != nil {
		http.Error(w, "unknown provider", http.StatusNotFound)
		return
	}

	mp, ok := provider.(MetadataProvider)
	if !ok {
		http.Error(w, "provider does not publish metadata", http.StatusNotFound)
		return
	}

	metadata, err := mp.Metadata()
	if err != nil {
		observability.LoggerFrom(r.Context(), h.logger).WithError(err).Error("Failed to generate metadata")
		http.Error(w, "failed to generate metadata", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/samlmetadata+xml")
	_, _ = w.Write(metadata)
}
