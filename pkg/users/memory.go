package users

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/platinummonkey/threshold/pkg/authn"
)

// MemoryService is an in-memory user service for development and tests
type MemoryService struct {
	mu       sync.RWMutex
	opts     Options
	nextID   int64
	byName   map[string]*record
	external map[string]*record
}

// NewMemoryService creates an empty in-memory user service
func NewMemoryService(opts Options) *MemoryService {
	return &MemoryService{
		opts:     opts.withDefaults(),
		nextID:   1,
		byName:   make(map[string]*record),
		external: make(map[string]*record),
	}
}

// AddUser registers a local user
func (s *MemoryService) AddUser(username, displayName, password string, mfaRequired bool) (int64, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(username)
	if _, exists := s.byName[key]; exists {
		return 0, fmt.Errorf("user %s already exists", username)
	}
	rec := &record{
		ID:           s.nextID,
		Username:     username,
		DisplayName:  displayName,
		PasswordHash: hash,
		MFARequired:  mfaRequired,
		Active:       true,
	}
	s.nextID++
	s.byName[key] = rec
	return rec.ID, nil
}

// Disable marks a user inactive
func (s *MemoryService) Disable(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.byName[strings.ToLower(username)]; ok {
		rec.Active = false
	}
}

// LinkExternalLogin links a federated account to an existing user
func (s *MemoryService) LinkExternalLogin(username, provider, providerUserID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byName[strings.ToLower(username)]
	if !ok {
		return fmt.Errorf("user %s not found", username)
	}
	s.external[externalKey(provider, providerUserID)] = rec
	return nil
}

// AuthenticateLocal implements authn.UserService
func (s *MemoryService) AuthenticateLocal(_ context.Context, username, password string, _ *authn.SignInMessage) (*authn.Outcome, error) {
	s.mu.RLock()
	rec, ok := s.byName[strings.ToLower(username)]
	var snapshot record
	if ok {
		snapshot = *rec
	}
	s.mu.RUnlock()

	if !ok {
		checkPassword(nil, password)
		return authn.Rejected(), nil
	}
	if !checkPassword(&snapshot, password) {
		return authn.Rejected(), nil
	}
	return s.opts.outcome(&snapshot, IdentityProviderLocal, AuthMethodPassword), nil
}

// AuthenticateExternal implements authn.UserService
func (s *MemoryService) AuthenticateExternal(_ context.Context, ext *authn.ExternalIdentity) (*authn.Outcome, error) {
	if ext == nil || ext.Provider == "" || ext.ProviderID == "" {
		return authn.Rejected(), nil
	}

	s.mu.RLock()
	rec, ok := s.external[externalKey(ext.Provider, ext.ProviderID)]
	var snapshot record
	if ok {
		snapshot = *rec
	}
	s.mu.RUnlock()

	if !ok {
		return s.opts.unknownExternal(ext), nil
	}
	return s.opts.outcome(&snapshot, ext.Provider, AuthMethodExternal), nil
}

func externalKey(provider, providerUserID string) string {
	return provider + "\x00" + providerUserID
}
