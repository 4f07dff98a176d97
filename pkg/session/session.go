package session

import (
	"context"
	"errors"
	"time"

	"github.com/platinummonkey/threshold/pkg/authn"
	"github.com/platinummonkey/threshold/pkg/cookie"
)

const (
	// DefaultCookieName is the primary slot cookie; the other slots append a suffix
	DefaultCookieName = "threshold"
	// DefaultLifetime is the long-lived expiry for persistent sign-ins
	DefaultLifetime = 10 * time.Hour
	// DefaultExternalLifetime bounds a provider handshake
	DefaultExternalLifetime = 10 * time.Minute
)

var (
	// ErrNoProvider is returned when a challenge names no provider
	ErrNoProvider = errors.New("provider is required")
	// ErrNoChallenger is returned when no provider handshake is configured
	ErrNoChallenger = errors.New("no external providers configured")
	// ErrNoIdentity is returned when signing in a nil identity
	ErrNoIdentity = errors.New("identity is required")
	// ErrExpired is returned for a persistence expiry in the past
	ErrExpired = errors.New("expiry is in the past")
)

// Persistence controls whether a sign-in survives the browser session.
// A zero ExpiresAt on a persistent sign-in means the slot's default lifetime.
type Persistence struct {
	Persistent bool
	ExpiresAt  time.Time
}

// Slot is one independently addressable authentication context
type Slot interface {
	SignIn(id *authn.Identity, p Persistence) error
	SignOut()
	Authenticate() (*authn.Identity, bool)
}

// Challenge is the pending state of a provider handshake
type Challenge struct {
	Provider string `json:"provider"`
	Nonce    string `json:"nonce"`
	Verifier string `json:"verifier,omitempty"`
	State    string `json:"state"`
}

// ExternalSlot is the slot filled by federated provider handshakes
type ExternalSlot interface {
	Slot

	// Challenge starts a handshake with provider and returns the URL the
	// browser must be sent to. state is echoed back through Result.
	Challenge(ctx context.Context, provider, state string) (string, error)

	// PendingChallenge returns the handshake started by Challenge
	PendingChallenge() (*Challenge, bool)

	// Complete records the handshake result. id may be nil when the
	// provider did not authenticate the user.
	Complete(id *authn.Identity, state string) error

	// Result returns the provider identity (possibly nil) and the echoed
	// state. ok is false when no handshake has completed.
	Result() (id *authn.Identity, state string, ok bool)
}

// Challenger builds provider authorization requests
type Challenger interface {
	// AuthorizationURL returns the provider URL carrying nonce as its
	// state parameter, plus an optional PKCE verifier to keep until the
	// provider calls back.
	AuthorizationURL(ctx context.Context, provider, nonce string) (redirectURL, verifier string, err error)
}

// Options configures the slot cookies
type Options struct {
	CookieName       string
	Lifetime         time.Duration
	ExternalLifetime time.Duration
}

func (o Options) withDefaults() Options {
	if o.CookieName == "" {
		o.CookieName = DefaultCookieName
	}
	if o.Lifetime <= 0 {
		o.Lifetime = DefaultLifetime
	}
	if o.ExternalLifetime <= 0 {
		o.ExternalLifetime = DefaultExternalLifetime
	}
	return o
}

// Slots bundles the three slots of one request
type Slots struct {
	Primary  Slot
	External ExternalSlot
	Partial  Slot
}

// SignOutAll clears every slot
func (s *Slots) SignOutAll() {
	s.Primary.SignOut()
	s.External.SignOut()
	s.Partial.SignOut()
}

// Manager creates request-scoped slots
type Manager struct {
	codec      *cookie.Codec
	challenger Challenger
	opts       Options
	now        func() time.Time
}

// NewManager creates a slot manager. challenger may be nil when no
// external providers are configured.
func NewManager(codec *cookie.Codec, challenger Challenger, opts Options) *Manager {
	return &Manager{
		codec:      codec,
		challenger: challenger,
		opts:       opts.withDefaults(),
		now:        time.Now,
	}
}

// WithClock returns a copy of the manager using now as its time source
func (m *Manager) WithClock(now func() time.Time) *Manager {
	cp := *m
	cp.now = now
	cp.codec = m.codec.WithClock(now)
	return &cp
}

// Options returns the effective options
func (m *Manager) Options() Options {
	return m.opts
}

// ForRequest returns the slots backed by jar
func (m *Manager) ForRequest(jar *cookie.Jar) *Slots {
	name := m.opts.CookieName
	return &Slots{
		Primary: &cookieSlot{m: m, jar: jar, name: name},
		External: &externalSlot{
			cookieSlot: cookieSlot{m: m, jar: jar, name: name + ".external"},
			challenge:  name + ".external.challenge",
		},
		Partial: &cookieSlot{m: m, jar: jar, name: name + ".partial"},
	}
}
