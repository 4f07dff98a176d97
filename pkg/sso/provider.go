package sso

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/platinummonkey/threshold/pkg/authn"
)

// Standard claim types produced from the attribute mapping
const (
	ClaimPreferredUsername = "preferred_username"
	ClaimEmail             = "email"
	ClaimGroups            = "groups"
)

var (
	// ErrMissingCode is returned when a callback carries no authorization code
	ErrMissingCode = errors.New("missing authorization code")
	// ErrProviderDenied is returned when the provider reports an error instead of a code
	ErrProviderDenied = errors.New("provider denied the request")
)

// Provider defines the interface for SSO providers
type Provider interface {
	// GetType returns the provider type (SAML, OAuth2, OIDC)
	GetType() ProviderType

	// GetName returns the provider name used in URLs and as claim issuer
	GetName() string

	// Caption returns the login page text, empty when the provider is hidden
	Caption() string

	// AuthorizationURL returns the URL that starts a handshake carrying
	// state, plus a PKCE verifier when the protocol uses one.
	AuthorizationURL(state string) (redirectURL, verifier string, err error)

	// HandleCallback processes the provider response and returns the raw
	// claims it asserted about the user.
	HandleCallback(ctx context.Context, r *http.Request, verifier string) ([]authn.Claim, error)

	// ValidateConfig validates the provider configuration
	ValidateConfig() error
}

// MetadataProvider is implemented by providers that publish service
// provider metadata.
type MetadataProvider interface {
	Metadata() ([]byte, error)
}

// ProviderFactory creates SSO providers based on configuration
type ProviderFactory struct {
	baseURL string
}

// NewProviderFactory creates a new provider factory. baseURL is the
// absolute application root and must end with a slash.
func NewProviderFactory(baseURL string) *ProviderFactory {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &ProviderFactory{
		baseURL: baseURL,
	}
}

// CallbackURL returns the handshake endpoint for the named provider
func (f *ProviderFactory) CallbackURL(name string) string {
	return f.baseURL + "sso/" + name + "/callback"
}

// CreateProvider creates a provider instance from configuration
func (f *ProviderFactory) CreateProvider(ctx context.Context, config *ProviderConfig) (Provider, error) {
	if !config.Enabled {
		return nil, fmt.Errorf("provider %s is disabled", config.Name)
	}
	if config.Name == "" {
		return nil, fmt.Errorf("provider name is required")
	}

	if config.Preset != "" {
		if err := applyPreset(config); err != nil {
			return nil, err
		}
	}

	var (
		provider Provider
		err      error
	)
	switch config.ProviderType {
	case ProviderTypeSAML:
		if config.SAMLConfig == nil {
			return nil, fmt.Errorf("SAML config is required for SAML provider")
		}
		provider, err = NewSAMLProvider(config, f.baseURL)

	case ProviderTypeOAuth2:
		if config.OAuth2Config == nil {
			return nil, fmt.Errorf("OAuth2 config is required for OAuth2 provider")
		}
		if config.OAuth2Config.RedirectURL == "" {
			config.OAuth2Config.RedirectURL = f.CallbackURL(config.Name)
		}
		provider, err = NewOAuth2Provider(config)

	case ProviderTypeOIDC:
		if config.OIDCConfig == nil {
			return nil, fmt.Errorf("OIDC config is required for OIDC provider")
		}
		if config.OIDCConfig.RedirectURL == "" {
			config.OIDCConfig.RedirectURL = f.CallbackURL(config.Name)
		}
		provider, err = NewOIDCProvider(ctx, config)

	default:
		return nil, fmt.Errorf("unsupported provider type: %s", config.ProviderType)
	}
	if err != nil {
		return nil, err
	}

	if err := provider.ValidateConfig(); err != nil {
		return nil, fmt.Errorf("invalid %s provider %s: %w", config.ProviderType, config.Name, err)
	}
	return provider, nil
}

// GetPresetConfig returns preset configuration for well-known providers
func GetPresetConfig(providerName ProviderName) (*ProviderConfig, error) {
	switch providerName {
	case ProviderAzureAD:
		return &ProviderConfig{
			ProviderType: ProviderTypeOIDC,
			Preset:       ProviderAzureAD,
			AttributeMapping: AttributeMap{
				UserID:   "oid",
				Username: "preferred_username",
				Email:    "email",
				FullName: "name",
				Groups:   "groups",
			},
			OIDCConfig: &OIDCConfig{
				Scopes: []string{"openid", "profile", "email"},
			},
		}, nil

	case ProviderOkta:
		return &ProviderConfig{
			ProviderType: ProviderTypeOIDC,
			Preset:       ProviderOkta,
			AttributeMapping: AttributeMap{
				UserID:   "sub",
				Username: "preferred_username",
				Email:    "email",
				FullName: "name",
				Groups:   "groups",
			},
			OIDCConfig: &OIDCConfig{
				Scopes: []string{"openid", "profile", "email", "groups"},
			},
		}, nil

	case ProviderGoogle:
		return &ProviderConfig{
			ProviderType: ProviderTypeOIDC,
			Preset:       ProviderGoogle,
			AttributeMapping: AttributeMap{
				UserID:   "sub",
				Username: "email",
				Email:    "email",
				FullName: "name",
			},
			OIDCConfig: &OIDCConfig{
				IssuerURL: "https://accounts.google.com",
				Scopes:    []string{"openid", "profile", "email"},
			},
		}, nil

	default:
		return nil, fmt.Errorf("no preset configuration for provider: %s", providerName)
	}
}

// applyPreset fills the gaps in config from its preset. Explicit values win.
func applyPreset(config *ProviderConfig) error {
	preset, err := GetPresetConfig(config.Preset)
	if err != nil {
		return err
	}
	if config.ProviderType == "" {
		config.ProviderType = preset.ProviderType
	}
	if config.AttributeMapping == (AttributeMap{}) {
		config.AttributeMapping = preset.AttributeMapping
	}
	if preset.OIDCConfig != nil && config.ProviderType == ProviderTypeOIDC {
		if config.OIDCConfig == nil {
			config.OIDCConfig = &OIDCConfig{}
		}
		if config.OIDCConfig.IssuerURL == "" {
			config.OIDCConfig.IssuerURL = preset.OIDCConfig.IssuerURL
		}
		if len(config.OIDCConfig.Scopes) == 0 {
			config.OIDCConfig.Scopes = preset.OIDCConfig.Scopes
		}
	}
	return nil
}

// mapClaims converts provider attributes to claims issued by issuer.
// Mapped attributes come first under their standard type, then the
// remaining attributes in key order.
func mapClaims(issuer string, attrs map[string][]string, mapping AttributeMap) []authn.Claim {
	targets := []struct{ source, target string }{
		{mapping.UserID, authn.ClaimSubject},
		{mapping.FullName, authn.ClaimName},
		{mapping.Username, ClaimPreferredUsername},
		{mapping.Email, ClaimEmail},
		{mapping.Groups, ClaimGroups},
	}

	var claims []authn.Claim
	emitted := make(map[string]bool)
	for _, t := range targets {
		if t.source == "" || t.source == t.target || emitted[t.target] {
			continue
		}
		values := attrs[t.source]
		if len(values) == 0 {
			continue
		}
		if t.target != ClaimGroups {
			values = values[:1]
		}
		for _, v := range values {
			claims = append(claims, authn.Claim{Type: t.target, Value: v, Issuer: issuer})
		}
		emitted[t.target] = true
	}

	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		if !emitted[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range attrs[k] {
			claims = append(claims, authn.Claim{Type: k, Value: v, Issuer: issuer})
		}
	}
	return claims
}

// flattenAttributes keeps string and string-array values of a JSON object
func flattenAttributes(data map[string]interface{}) map[string][]string {
	attrs := make(map[string][]string, len(data))
	for k, v := range data {
		switch val := v.(type) {
		case string:
			if val != "" {
				attrs[k] = []string{val}
			}
		case []interface{}:
			for _, item := range val {
				if str, ok := item.(string); ok {
					attrs[k] = append(attrs[k], str)
				}
			}
		}
	}
	return attrs
}

// callbackError reports a provider-side failure carried on the callback query
func callbackError(r *http.Request) error {
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		if desc := q.Get("error_description"); desc != "" {
			return fmt.Errorf("%w: %s: %s", ErrProviderDenied, e, desc)
		}
		return fmt.Errorf("%w: %s", ErrProviderDenied, e)
	}
	return nil
}
