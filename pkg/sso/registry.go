package sso

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ErrUnknownProvider is returned for a provider name that is not registered
var ErrUnknownProvider = errors.New("unknown provider")

// Link is a provider offered on the login page
type Link struct {
	Name    string
	Caption string
}

// Registry holds the enabled providers keyed by name
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	order     []string
}

// NewRegistry creates a registry of providers. Later providers with the
// same name replace earlier ones.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider)}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// NewRegistryFromConfigs builds every enabled provider. OIDC discovery runs
// concurrently; any failure fails the whole registry.
func NewRegistryFromConfigs(ctx context.Context, factory *ProviderFactory, configs []*ProviderConfig, logger *logrus.Logger) (*Registry, error) {
	if logger == nil {
		logger = logrus.New()
	}

	built := make([]Provider, len(configs))
	g, gctx := errgroup.WithContext(ctx)
	for i, cfg := range configs {
		if !cfg.Enabled {
			logger.WithField("provider", cfg.Name).Info("Skipping disabled provider")
			continue
		}
		g.Go(func() error {
			p, err := factory.CreateProvider(gctx, cfg)
			if err != nil {
				return fmt.Errorf("provider %s: %w", cfg.Name, err)
			}
			built[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	r := NewRegistry()
	for _, p := range built {
		if p == nil {
			continue
		}
		r.Register(p)
		logger.WithFields(logrus.Fields{
			"provider": p.GetName(),
			"type":     p.GetType(),
		}).Info("Registered external provider")
	}
	return r, nil
}

// Register adds or replaces a provider
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := p.GetName()
	if _, exists := r.providers[name]; !exists {
		r.order = append(r.order, name)
	}
	r.providers[name] = p
}

// Get returns the named provider
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return p, nil
}

// Has reports whether name is registered
func (r *Registry) Has(name string) bool {
	_, err := r.Get(name)
	return err == nil
}

// Links returns the captioned providers in registration order
func (r *Registry) Links() []Link {
	r.mu.RLock()
	defer r.mu.RUnlock()
	links := make([]Link, 0, len(r.order))
	for _, name := range r.order {
		if caption := r.providers[name].Caption(); caption != "" {
			links = append(links, Link{Name: name, Caption: caption})
		}
	}
	return links
}

// AuthorizationURL starts a handshake with the named provider
func (r *Registry) AuthorizationURL(_ context.Context, provider, nonce string) (string, string, error) {
	p, err := r.Get(provider)
	if err != nil {
		return "", "", err
	}
	return p.AuthorizationURL(nonce)
}
