package sso

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/platinummonkey/threshold/pkg/authn"
)

// OAuth2Provider implements OAuth2 SSO
type OAuth2Provider struct {
	config       *ProviderConfig
	oauth2Config *oauth2.Config
}

// NewOAuth2Provider creates a new OAuth2 provider
func NewOAuth2Provider(config *ProviderConfig) (*OAuth2Provider, error) {
	if config.OAuth2Config == nil {
		return nil, fmt.Errorf("OAuth2 config is required")
	}

	oauth2Cfg := &oauth2.Config{
		ClientID:     config.OAuth2Config.ClientID,
		ClientSecret: config.OAuth2Config.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  config.OAuth2Config.AuthURL,
			TokenURL: config.OAuth2Config.TokenURL,
		},
		RedirectURL: config.OAuth2Config.RedirectURL,
		Scopes:      config.OAuth2Config.Scopes,
	}

	return &OAuth2Provider{
		config:       config,
		oauth2Config: oauth2Cfg,
	}, nil
}

// GetType returns the provider type
func (p *OAuth2Provider) GetType() ProviderType {
	return ProviderTypeOAuth2
}

// GetName returns the provider name
func (p *OAuth2Provider) GetName() string {
	return p.config.Name
}

// Caption returns the login page caption
func (p *OAuth2Provider) Caption() string {
	return p.config.Caption
}

// AuthorizationURL builds the authorization request
func (p *OAuth2Provider) AuthorizationURL(state string) (string, string, error) {
	if !p.config.OAuth2Config.UsePKCE {
		return p.oauth2Config.AuthCodeURL(state), "", nil
	}
	verifier := oauth2.GenerateVerifier()
	return p.oauth2Config.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier)), verifier, nil
}

// HandleCallback exchanges the code and reads the userinfo endpoint
func (p *OAuth2Provider) HandleCallback(ctx context.Context, r *http.Request, verifier string) ([]authn.Claim, error) {
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
	token, err := p.oauth2Config.Exchange(ctx, code, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.OAuth2Config.UserInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build user info request: %w", err)
	}
	resp, err := p.oauth2Config.Client(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("user info request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var userInfo map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&userInfo); err != nil {
		return nil, fmt.Errorf("failed to decode user info: %w", err)
	}

	// Numeric ids (GitHub) are common on plain OAuth2 userinfo endpoints
	attrs := flattenAttributes(userInfo)
	if key := p.config.AttributeMapping.UserID; key != "" {
		if n, ok := userInfo[key].(float64); ok {
			attrs[key] = []string{fmt.Sprintf("%.0f", n)}
		}
	}

	return mapClaims(p.config.Name, attrs, p.config.AttributeMapping), nil
}

// ValidateConfig validates the OAuth2 configuration
func (p *OAuth2Provider) ValidateConfig() error {
	if p.config.OAuth2Config == nil {
		return fmt.Errorf("OAuth2 config is required")
	}

	cfg := p.config.OAuth2Config

	if cfg.ClientID == "" {
		return fmt.Errorf("client_id is required")
	}
	if cfg.ClientSecret == "" {
		return fmt.Errorf("client_secret is required")
	}
	if cfg.AuthURL == "" {
		return fmt.Errorf("auth_url is required")
	}
	if cfg.TokenURL == "" {
		return fmt.Errorf("token_url is required")
	}
	if cfg.UserInfoURL == "" {
		return fmt.Errorf("user_info_url is required")
	}
	if cfg.RedirectURL == "" {
		return fmt.Errorf("redirect_url is required")
	}
	if len(cfg.Scopes) == 0 {
		return fmt.Errorf("scopes are required")
	}
	if p.config.AttributeMapping.UserID == "" {
		return fmt.Errorf("attribute_mapping.user_id is required")
	}

	return nil
}
