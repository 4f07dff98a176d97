// Package signin keeps the correlation messages that identify in-flight
// login attempts. Each message lives in its own signed browser cookie so a
// user can run several attempts (tabs) at once.
package signin

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/threshold/pkg/authn"
	"github.com/platinummonkey/threshold/pkg/cookie"
)

// DefaultCookiePrefix prefixes every correlation cookie name
const DefaultCookiePrefix = "signin."

// DefaultLifetime bounds how long a login attempt may take
const DefaultLifetime = time.Hour

// Store persists correlation messages
type Store interface {
	// Write stores msg and returns its id, assigning one if msg.ID is empty
	Write(msg *authn.SignInMessage) (string, error)
	// Read returns the message for id; tampered or expired entries are absent
	Read(id string) (*authn.SignInMessage, bool)
	// Clear removes one message
	Clear(id string)
	// ClearAll removes every message the browser holds
	ClearAll()
}

// CookieStore is a request-scoped Store backed by signed cookies
type CookieStore struct {
	jar      *cookie.Jar
	codec    *cookie.Codec
	prefix   string
	lifetime time.Duration
	now      func() time.Time
}

// StoreOption configures a CookieStore
type StoreOption func(*CookieStore)

// WithPrefix overrides the cookie name prefix
func WithPrefix(prefix string) StoreOption {
	return func(s *CookieStore) { s.prefix = prefix }
}

// WithLifetime overrides the message lifetime
func WithLifetime(d time.Duration) StoreOption {
	return func(s *CookieStore) {
		if d > 0 {
			s.lifetime = d
		}
	}
}

// WithClock overrides the time source used for CreatedAt
func WithClock(now func() time.Time) StoreOption {
	return func(s *CookieStore) { s.now = now }
}

// NewCookieStore creates a store over the request's cookie jar
func NewCookieStore(jar *cookie.Jar, codec *cookie.Codec, opts ...StoreOption) *CookieStore {
	s := &CookieStore{
		jar:      jar,
		codec:    codec,
		prefix:   DefaultCookiePrefix,
		lifetime: DefaultLifetime,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewID returns a random message id
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Write implements Store
func (s *CookieStore) Write(msg *authn.SignInMessage) (string, error) {
	if msg.ID == "" {
		msg.ID = NewID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now().UTC()
	}

	name := s.cookieName(msg.ID)
	value, err := s.codec.Encode(name, msg, s.lifetime)
	if err != nil {
		return "", err
	}
	s.jar.Set(name, value, time.Time{})
	return msg.ID, nil
}

// Read implements Store
func (s *CookieStore) Read(id string) (*authn.SignInMessage, bool) {
	if !validID(id) {
		return nil, false
	}
	name := s.cookieName(id)
	value, ok := s.jar.Get(name)
	if !ok {
		return nil, false
	}

	msg := &authn.SignInMessage{}
	if err := s.codec.Decode(name, value, msg); err != nil {
		return nil, false
	}
	if msg.ID != id {
		return nil, false
	}
	return msg, true
}

// Clear implements Store
func (s *CookieStore) Clear(id string) {
	if !validID(id) {
		return
	}
	s.jar.Delete(s.cookieName(id))
}

// ClearAll implements Store
func (s *CookieStore) ClearAll() {
	for _, name := range s.jar.Names(s.prefix) {
		s.jar.Delete(name)
	}
}

func (s *CookieStore) cookieName(id string) string {
	return s.prefix + id
}

// validID accepts the alphabet NewID produces, plus '-' and '_' for
// caller-assigned ids.
func validID(id string) bool {
	if id == "" || len(id) > 128 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
