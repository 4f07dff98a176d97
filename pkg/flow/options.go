package flow

import (
	"time"

	"github.com/platinummonkey/threshold/pkg/authn"
	"github.com/platinummonkey/threshold/pkg/observability"
	"github.com/platinummonkey/threshold/pkg/resume"
	"github.com/platinummonkey/threshold/pkg/sso"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
)

// Route paths relative to the server base URL
const (
	PathLogin    = "login"
	PathExternal = "external"
	PathCallback = "callback"
	PathLogout   = "logout"
	PathResume   = "return"
)

// DefaultRememberMeDuration is the explicit expiry of an accepted remember-me
const DefaultRememberMeDuration = 30 * 24 * time.Hour

// Options is the server-side login policy
type Options struct {
	SiteName string
	// BaseURL is absolute and ends with "/"
	BaseURL            string
	EnableLocalLogin   bool
	AllowRememberMe    bool
	PersistentCookies  bool
	RememberMeDuration time.Duration
	LoginLinks         []Link
	ProtocolLogoutURLs []string
}

// ProviderLister lists the external providers offered on the login page
type ProviderLister interface {
	Links() []sso.Link
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithClaimsFilter sets the filter applied to provider claims before mapping
func WithClaimsFilter(f authn.ClaimsFilter) Option {
	return func(o *Orchestrator) { o.filter = f }
}

// WithProviders sets the external providers listed on the login page
func WithProviders(p ProviderLister) Option {
	return func(o *Orchestrator) { o.providers = p }
}

// WithResumeGuard sets the single-use store for resume tokens
func WithResumeGuard(g resume.Guard) Option {
	return func(o *Orchestrator) { o.guard = g }
}

// WithMetrics records flow metrics
func WithMetrics(m *observability.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithLogger sets the fallback logger for requests without one in context
func WithLogger(l *logrus.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithTracer sets the span tracer
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// WithClock sets the time source used for remember-me expiry
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithTokenSource sets the resume token generator
func WithTokenSource(next func() string) Option {
	return func(o *Orchestrator) { o.newToken = next }
}
