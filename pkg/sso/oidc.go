package sso

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/platinummonkey/threshold/pkg/authn"
)

// OIDCProvider implements OpenID Connect SSO
type OIDCProvider struct {
	config       *ProviderConfig
	provider     *oidc.Provider
	verifier     *oidc.IDTokenVerifier
	oauth2Config *oauth2.Config
}

// NewOIDCProvider creates a new OIDC provider
func NewOIDCProvider(ctx context.Context, config *ProviderConfig) (*OIDCProvider, error) {
	if config.OIDCConfig == nil {
		return nil, fmt.Errorf("OIDC config is required")
	}

	// Discover OIDC provider
	provider, err := oidc.NewProvider(ctx, config.OIDCConfig.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	verifier := provider.Verifier(&oidc.Config{
		ClientID:        config.OIDCConfig.ClientID,
		SkipIssuerCheck: config.OIDCConfig.SkipIssuerCheck,
	})

	oauth2Config := &oauth2.Config{
		ClientID:     config.OIDCConfig.ClientID,
		ClientSecret: config.OIDCConfig.ClientSecret,
		Endpoint:     provider.Endpoint(),
		RedirectURL:  config.OIDCConfig.RedirectURL,
		Scopes:       config.OIDCConfig.Scopes,
	}

	return &OIDCProvider{
		config:       config,
		provider:     provider,
		verifier:     verifier,
		oauth2Config: oauth2Config,
	}, nil
}

// GetType returns the provider type
func (p *OIDCProvider) GetType() ProviderType {
	return ProviderTypeOIDC
}

// GetName returns the provider name
func (p *OIDCProvider) GetName() string {
	return p.config.Name
}

// Caption returns the login page caption
func (p *OIDCProvider) Caption() string {
	return p.config.Caption
}

// AuthorizationURL builds the authorization request. OIDC always uses PKCE.
func (p *OIDCProvider) AuthorizationURL(state string) (string, string, error) {
	verifier := oauth2.GenerateVerifier()
	authURL := p.oauth2Config.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
	return authURL, verifier, nil
}

// HandleCallback exchanges the code, verifies the ID token and returns its claims
func (p *OIDCProvider) HandleCallback(ctx context.Context, r *http.Request, verifier string) ([]authn.Claim, error) {
	if err := callbackError(r); err != nil {
		return nil, err
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		return nil, ErrMissingCode
	}

	var opts []oauth2.AuthCodeOption
	if verifier != "" {
		opts = append(opts, oauth2.VerifierOption(verifier))
	}
	oauth2Token, err := p.oauth2Config.Exchange(ctx, code, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}

	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok {
		return nil, fmt.Errorf("missing id_token in response")
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}

	var raw map[string]interface{}
	if err := idToken.Claims(&raw); err != nil {
		return nil, fmt.Errorf("failed to parse claims: %w", err)
	}
	attrs := flattenAttributes(raw)

	// Userinfo only adds attributes the ID token did not carry
	if p.config.OIDCConfig.UseUserInfo {
		userInfo, err := p.fetchUserInfo(ctx, oauth2Token)
		if err == nil {
			for k, v := range flattenAttributes(userInfo) {
				if _, exists := attrs[k]; !exists {
					attrs[k] = v
				}
			}
		}
	}

	return mapClaims(p.config.Name, attrs, p.config.AttributeMapping), nil
}

// fetchUserInfo fetches additional user information from userinfo endpoint
func (p *OIDCProvider) fetchUserInfo(ctx context.Context, token *oauth2.Token) (map[string]interface{}, error) {
	userInfo, err := p.provider.UserInfo(ctx, oauth2.StaticTokenSource(token))
	if err != nil {
		return nil, err
	}

	var claims map[string]interface{}
	if err := userInfo.Claims(&claims); err != nil {
		return nil, err
	}

	return claims, nil
}

// ValidateConfig validates the OIDC configuration
func (p *OIDCProvider) ValidateConfig() error {
	if p.config.OIDCConfig == nil {
		return fmt.Errorf("OIDC config is required")
	}

	cfg := p.config.OIDCConfig

	if cfg.ClientID == "" {
		return fmt.Errorf("client_id is required")
	}
	if cfg.IssuerURL == "" {
		return fmt.Errorf("issuer_url is required")
	}
	if cfg.RedirectURL == "" {
		return fmt.Errorf("redirect_url is required")
	}
	if len(cfg.Scopes) == 0 {
		return fmt.Errorf("scopes are required")
	}

	hasOpenID := false
	for _, scope := range cfg.Scopes {
		if scope == oidc.ScopeOpenID {
			hasOpenID = true
			break
		}
	}
	if !hasOpenID {
		return fmt.Errorf("'openid' scope is required for OIDC")
	}

	return nil
}
