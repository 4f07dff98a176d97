package sso

import "time"

// ProviderType represents the SSO provider type
type ProviderType string

const (
	ProviderTypeSAML   ProviderType = "saml"
	ProviderTypeOAuth2 ProviderType = "oauth2"
	ProviderTypeOIDC   ProviderType = "oidc"
)

// ProviderName identifies a well-known provider preset
type ProviderName string

const (
	ProviderAzureAD ProviderName = "azuread"
	ProviderOkta    ProviderName = "okta"
	ProviderGoogle  ProviderName = "google"
)

// ProviderConfig represents SSO provider configuration
type ProviderConfig struct {
	ID               int64         `json:"id" yaml:"-"`
	Name             string        `json:"name" yaml:"name"`       // Unique name, used in URLs and as claim issuer
	Caption          string        `json:"caption" yaml:"caption"` // Login page text; providers without one are hidden
	ProviderType     ProviderType  `json:"provider_type" yaml:"type"`
	Preset           ProviderName  `json:"preset,omitempty" yaml:"preset,omitempty"`
	Enabled          bool          `json:"enabled" yaml:"enabled"`
	SAMLConfig       *SAMLConfig   `json:"saml_config,omitempty" yaml:"saml,omitempty"`
	OAuth2Config     *OAuth2Config `json:"oauth2_config,omitempty" yaml:"oauth2,omitempty"`
	OIDCConfig       *OIDCConfig   `json:"oidc_config,omitempty" yaml:"oidc,omitempty"`
	AttributeMapping AttributeMap  `json:"attribute_mapping" yaml:"attribute_mapping"`
	CreatedAt        time.Time     `json:"created_at" yaml:"-"`
	UpdatedAt        time.Time     `json:"updated_at" yaml:"-"`
}

// SAMLConfig holds SAML 2.0 configuration
type SAMLConfig struct {
	EntityID     string `json:"entity_id" yaml:"entity_id"`
	SSOURL       string `json:"sso_url" yaml:"sso_url"`
	Certificate  string `json:"certificate" yaml:"certificate"` // PEM encoded IdP certificate
	SPCert       string `json:"sp_certificate,omitempty" yaml:"sp_certificate,omitempty"`
	PrivateKey   string `json:"private_key,omitempty" yaml:"private_key,omitempty"`
	SignRequests bool   `json:"sign_requests" yaml:"sign_requests"`
	NameIDFormat string `json:"name_id_format,omitempty" yaml:"name_id_format,omitempty"`
}

// OAuth2Config holds OAuth2 configuration
type OAuth2Config struct {
	ClientID     string   `json:"client_id" yaml:"client_id"`
	ClientSecret string   `json:"client_secret" yaml:"client_secret"`
	AuthURL      string   `json:"auth_url" yaml:"auth_url"`
	TokenURL     string   `json:"token_url" yaml:"token_url"`
	UserInfoURL  string   `json:"user_info_url" yaml:"user_info_url"`
	Scopes       []string `json:"scopes" yaml:"scopes"`
	RedirectURL  string   `json:"redirect_url,omitempty" yaml:"redirect_url,omitempty"`
	UsePKCE      bool     `json:"use_pkce" yaml:"use_pkce"`
}

// OIDCConfig holds OpenID Connect configuration
type OIDCConfig struct {
	ClientID        string   `json:"client_id" yaml:"client_id"`
	ClientSecret    string   `json:"client_secret" yaml:"client_secret"`
	IssuerURL       string   `json:"issuer_url" yaml:"issuer_url"` // Discovery endpoint
	RedirectURL     string   `json:"redirect_url,omitempty" yaml:"redirect_url,omitempty"`
	Scopes          []string `json:"scopes" yaml:"scopes"`
	SkipIssuerCheck bool     `json:"skip_issuer_check,omitempty" yaml:"skip_issuer_check,omitempty"`
	UseUserInfo     bool     `json:"use_userinfo,omitempty" yaml:"use_userinfo,omitempty"`
}

// AttributeMap defines which provider attributes feed the normalized claims
type AttributeMap struct {
	UserID   string `json:"user_id" yaml:"user_id"` // Becomes the "sub" claim
	Username string `json:"username,omitempty" yaml:"username,omitempty"`
	Email    string `json:"email,omitempty" yaml:"email,omitempty"`
	FullName string `json:"full_name,omitempty" yaml:"full_name,omitempty"`
	Groups   string `json:"groups,omitempty" yaml:"groups,omitempty"`
}
