package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/platinummonkey/threshold/pkg/authn"
	"github.com/platinummonkey/threshold/pkg/cookie"
)

type ticket struct {
	Identity   *authn.Identity `json:"identity,omitempty"`
	State      string          `json:"state,omitempty"`
	Persistent bool            `json:"persistent,omitempty"`
}

type cookieSlot struct {
	m    *Manager
	jar  *cookie.Jar
	name string
}

func (s *cookieSlot) SignIn(id *authn.Identity, p Persistence) error {
	if id == nil {
		return ErrNoIdentity
	}
	return s.write(ticket{Identity: id, Persistent: p.Persistent}, p, s.m.opts.Lifetime)
}

func (s *cookieSlot) SignOut() {
	s.jar.Delete(s.name)
}

func (s *cookieSlot) Authenticate() (*authn.Identity, bool) {
	t, ok := s.read()
	if !ok || t.Identity == nil {
		return nil, false
	}
	return t.Identity, true
}

func (s *cookieSlot) write(t ticket, p Persistence, lifetime time.Duration) error {
	now := s.m.now()
	expires := p.ExpiresAt
	if expires.IsZero() {
		expires = now.Add(lifetime)
	}
	ttl := expires.Sub(now)
	if ttl <= 0 {
		return ErrExpired
	}

	value, err := s.m.codec.Encode(s.name, t, ttl)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", s.name, err)
	}

	var cookieExpires time.Time
	if p.Persistent {
		cookieExpires = expires
	}
	s.jar.Set(s.name, value, cookieExpires)
	return nil
}

func (s *cookieSlot) read() (*ticket, bool) {
	value, ok := s.jar.Get(s.name)
	if !ok {
		return nil, false
	}
	t := &ticket{}
	if err := s.m.codec.Decode(s.name, value, t); err != nil {
		return nil, false
	}
	return t, true
}

type externalSlot struct {
	cookieSlot
	challenge string
}

func (s *externalSlot) SignIn(id *authn.Identity, p Persistence) error {
	if id == nil {
		return ErrNoIdentity
	}
	return s.write(ticket{Identity: id}, Persistence{ExpiresAt: p.ExpiresAt}, s.m.opts.ExternalLifetime)
}

func (s *externalSlot) SignOut() {
	s.jar.Delete(s.name)
	s.jar.Delete(s.challenge)
}

func (s *externalSlot) Challenge(ctx context.Context, provider, state string) (string, error) {
	if provider == "" {
		return "", ErrNoProvider
	}
	if s.m.challenger == nil {
		return "", ErrNoChallenger
	}

	nonce, err := randomToken()
	if err != nil {
		return "", err
	}
	redirectURL, verifier, err := s.m.challenger.AuthorizationURL(ctx, provider, nonce)
	if err != nil {
		return "", err
	}

	ch := Challenge{Provider: provider, Nonce: nonce, Verifier: verifier, State: state}
	value, err := s.m.codec.Encode(s.challenge, ch, s.m.opts.ExternalLifetime)
	if err != nil {
		return "", fmt.Errorf("failed to encode challenge: %w", err)
	}
	s.jar.Delete(s.name)
	s.jar.Set(s.challenge, value, time.Time{})
	return redirectURL, nil
}

func (s *externalSlot) PendingChallenge() (*Challenge, bool) {
	value, ok := s.jar.Get(s.challenge)
	if !ok {
		return nil, false
	}
	ch := &Challenge{}
	if err := s.m.codec.Decode(s.challenge, value, ch); err != nil {
		return nil, false
	}
	return ch, true
}

func (s *externalSlot) Complete(id *authn.Identity, state string) error {
	if err := s.write(ticket{Identity: id, State: state}, Persistence{}, s.m.opts.ExternalLifetime); err != nil {
		return err
	}
	s.jar.Delete(s.challenge)
	return nil
}

func (s *externalSlot) Result() (*authn.Identity, string, bool) {
	t, ok := s.read()
	if !ok {
		return nil, "", false
	}
	return t.Identity, t.State, true
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
