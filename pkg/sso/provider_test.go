package sso

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/threshold/pkg/authn"
)

func TestProviderFactory(t *testing.T) {
	factory := NewProviderFactory("https://idp.example.com/core")
	assert.Equal(t, "https://idp.example.com/core/", factory.baseURL)
	assert.Equal(t, "https://idp.example.com/core/sso/contoso/callback", factory.CallbackURL("contoso"))

	factory = NewProviderFactory("https://idp.example.com/")
	assert.Equal(t, "https://idp.example.com/", factory.baseURL)
}

func TestGetPresetConfig(t *testing.T) {
	tests := []struct {
		preset    ProviderName
		userID    string
		scopes    []string
		issuerURL string
		hasGroups bool
	}{
		{preset: ProviderAzureAD, userID: "oid", scopes: []string{"openid", "profile", "email"}, hasGroups: true},
		{preset: ProviderOkta, userID: "sub", scopes: []string{"openid", "profile", "email", "groups"}, hasGroups: true},
		{preset: ProviderGoogle, userID: "sub", scopes: []string{"openid", "profile", "email"}, issuerURL: "https://accounts.google.com"},
	}

	for _, tt := range tests {
		t.Run(string(tt.preset), func(t *testing.T) {
			config, err := GetPresetConfig(tt.preset)
			require.NoError(t, err)

			assert.Equal(t, ProviderTypeOIDC, config.ProviderType)
			assert.Equal(t, tt.preset, config.Preset)
			require.NotNil(t, config.OIDCConfig)
			assert.Equal(t, tt.scopes, config.OIDCConfig.Scopes)
			assert.Equal(t, tt.issuerURL, config.OIDCConfig.IssuerURL)
			assert.Equal(t, tt.userID, config.AttributeMapping.UserID)
			assert.Equal(t, tt.hasGroups, config.AttributeMapping.Groups != "")
		})
	}
}

func TestGetPresetConfig_Invalid(t *testing.T) {
	config, err := GetPresetConfig(ProviderName("invalid"))
	assert.Error(t, err)
	assert.Nil(t, config)
	assert.Contains(t, err.Error(), "no preset configuration")
}

func TestApplyPreset_ExplicitValuesWin(t *testing.T) {
	config := &ProviderConfig{
		Name:   "google",
		Preset: ProviderGoogle,
		OIDCConfig: &OIDCConfig{
			ClientID: "client",
			Scopes:   []string{"openid"},
		},
		AttributeMapping: AttributeMap{UserID: "email"},
	}

	require.NoError(t, applyPreset(config))

	assert.Equal(t, ProviderTypeOIDC, config.ProviderType)
	assert.Equal(t, "https://accounts.google.com", config.OIDCConfig.IssuerURL)
	assert.Equal(t, []string{"openid"}, config.OIDCConfig.Scopes)
	assert.Equal(t, AttributeMap{UserID: "email"}, config.AttributeMapping)
}

func TestCreateProvider_Rejects(t *testing.T) {
	factory := NewProviderFactory("https://idp.example.com/")

	tests := []struct {
		name        string
		config      *ProviderConfig
		expectedErr string
	}{
		{
			name:        "disabled",
			config:      &ProviderConfig{Name: "test", ProviderType: ProviderTypeOIDC},
			expectedErr: "disabled",
		},
		{
			name:        "no name",
			config:      &ProviderConfig{Enabled: true, ProviderType: ProviderTypeOIDC},
			expectedErr: "provider name is required",
		},
		{
			name:        "SAML without config",
			config:      &ProviderConfig{Name: "test-saml", Enabled: true, ProviderType: ProviderTypeSAML},
			expectedErr: "SAML config is required",
		},
		{
			name:        "OAuth2 without config",
			config:      &ProviderConfig{Name: "test-oauth2", Enabled: true, ProviderType: ProviderTypeOAuth2},
			expectedErr: "OAuth2 config is required",
		},
		{
			name:        "OIDC without config",
			config:      &ProviderConfig{Name: "test-oidc", Enabled: true, ProviderType: ProviderTypeOIDC},
			expectedErr: "OIDC config is required",
		},
		{
			name:        "unsupported type",
			config:      &ProviderConfig{Name: "test", Enabled: true, ProviderType: ProviderType("unsupported")},
			expectedErr: "unsupported provider type",
		},
		{
			name:        "unknown preset",
			config:      &ProviderConfig{Name: "test", Enabled: true, Preset: ProviderName("nope")},
			expectedErr: "no preset configuration",
		},
		{
			name: "invalid OAuth2 config",
			config: &ProviderConfig{
				Name:         "github",
				Enabled:      true,
				ProviderType: ProviderTypeOAuth2,
				OAuth2Config: &OAuth2Config{ClientID: "id"},
			},
			expectedErr: "invalid oauth2 provider github",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := factory.CreateProvider(context.Background(), tt.config)
			assert.Error(t, err)
			assert.Nil(t, provider)
			assert.Contains(t, err.Error(), tt.expectedErr)
		})
	}
}

func TestCreateProvider_OAuth2DefaultsRedirectURL(t *testing.T) {
	factory := NewProviderFactory("https://idp.example.com/core/")

	provider, err := factory.CreateProvider(context.Background(), &ProviderConfig{
		Name:         "github",
		Caption:      "GitHub",
		Enabled:      true,
		ProviderType: ProviderTypeOAuth2,
		OAuth2Config: validOAuth2Config(),
		AttributeMapping: AttributeMap{
			UserID: "id",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, ProviderTypeOAuth2, provider.GetType())
	assert.Equal(t, "github", provider.GetName())
	assert.Equal(t, "GitHub", provider.Caption())
	assert.Equal(t, "https://idp.example.com/core/sso/github/callback", provider.(*OAuth2Provider).oauth2Config.RedirectURL)
}

func TestMapClaims(t *testing.T) {
	attrs := map[string][]string{
		"oid":                {"a1b2"},
		"name":               {"Carol Example"},
		"preferred_username": {"carol@contoso.example"},
		"mail":               {"carol@contoso.example", "c@contoso.example"},
		"groups":             {"admins", "devs"},
		"tid":                {"tenant-1"},
	}
	mapping := AttributeMap{
		UserID:   "oid",
		Username: "preferred_username",
		Email:    "mail",
		FullName: "name",
		Groups:   "groups",
	}

	claims := mapClaims("contoso", attrs, mapping)

	assert.Equal(t, []authn.Claim{
		{Type: authn.ClaimSubject, Value: "a1b2", Issuer: "contoso"},
		{Type: ClaimEmail, Value: "carol@contoso.example", Issuer: "contoso"},
		{Type: "groups", Value: "admins", Issuer: "contoso"},
		{Type: "groups", Value: "devs", Issuer: "contoso"},
		{Type: "mail", Value: "carol@contoso.example", Issuer: "contoso"},
		{Type: "mail", Value: "c@contoso.example", Issuer: "contoso"},
		{Type: "name", Value: "Carol Example", Issuer: "contoso"},
		{Type: "oid", Value: "a1b2", Issuer: "contoso"},
		{Type: "preferred_username", Value: "carol@contoso.example", Issuer: "contoso"},
		{Type: "tid", Value: "tenant-1", Issuer: "contoso"},
	}, claims)

	ext := authn.MapExternalIdentity(claims, nil)
	require.NotNil(t, ext)
	assert.Equal(t, "contoso", ext.Provider)
	assert.Equal(t, "a1b2", ext.ProviderID)
}

func TestMapClaims_MissingUserID(t *testing.T) {
	claims := mapClaims("contoso", map[string][]string{"email": {"x@example.com"}}, AttributeMap{UserID: "oid"})

	assert.Equal(t, []authn.Claim{{Type: "email", Value: "x@example.com", Issuer: "contoso"}}, claims)
	assert.Nil(t, authn.MapExternalIdentity(claims, nil))
}

func TestFlattenAttributes(t *testing.T) {
	attrs := flattenAttributes(map[string]interface{}{
		"sub":      "123",
		"empty":    "",
		"groups":   []interface{}{"a", 2.0, "b"},
		"verified": true,
		"age":      42.0,
	})

	assert.Equal(t, map[string][]string{
		"sub":    {"123"},
		"groups": {"a", "b"},
	}, attrs)
}

func TestCallbackError(t *testing.T) {
	tests := []struct {
		query   string
		wantErr string
	}{
		{"?code=abc", ""},
		{"?error=access_denied", "provider denied the request: access_denied"},
		{"?error=access_denied&error_description=User+cancelled", "provider denied the request: access_denied: User cancelled"},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			err := callbackError(httptest.NewRequest("GET", "/sso/x/callback"+tt.query, nil))
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, ErrProviderDenied))
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}
