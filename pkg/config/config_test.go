package config

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/threshold/pkg/sso"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// TestGetEnv tests the getEnv helper function
func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "returns env value when set",
			key:          "TEST_VAR",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
		},
		{
			name:         "returns default when env not set",
			key:          "TEST_VAR_NOT_SET",
			defaultValue: "default",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			}
			assert.Equal(t, tt.want, getEnv(tt.key, tt.defaultValue))
		})
	}
}

// TestGetEnvBool tests the getEnvBool helper function
func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name         string
		defaultValue bool
		envValue     string
		want         bool
	}{
		{name: "returns true for 'true'", envValue: "true", want: true},
		{name: "returns true for '1'", envValue: "1", want: true},
		{name: "returns true for 'TRUE' (case insensitive)", envValue: "TRUE", want: true},
		{name: "returns false for 'false'", defaultValue: true, envValue: "false", want: false},
		{name: "returns false for garbage", defaultValue: true, envValue: "yes please", want: false},
		{name: "returns default when not set", defaultValue: true, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Unsetenv("TEST_BOOL")
			if tt.envValue != "" {
				t.Setenv("TEST_BOOL", tt.envValue)
			}
			assert.Equal(t, tt.want, getEnvBool("TEST_BOOL", tt.defaultValue))
		})
	}
}

// TestGetEnvDuration tests the getEnvDuration helper function
func TestGetEnvDuration(t *testing.T) {
	t.Setenv("TEST_DURATION", "90s")
	assert.Equal(t, 90*time.Second, getEnvDuration("TEST_DURATION", time.Minute))

	t.Setenv("TEST_DURATION", "ninety")
	assert.Equal(t, time.Minute, getEnvDuration("TEST_DURATION", time.Minute))

	assert.Equal(t, 5*time.Second, getEnvDuration("TEST_DURATION_NOT_SET", 5*time.Second))
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	assert.Equal(t, 42, getEnvInt("TEST_INT", 7))

	t.Setenv("TEST_INT", "forty-two")
	assert.Equal(t, 7, getEnvInt("TEST_INT", 7))
}

func TestLoadServerConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := loadServerConfig()
		assert.Equal(t, "0.0.0.0", cfg.Host)
		assert.Equal(t, "8080", cfg.Port)
		assert.Equal(t, "9090", cfg.HealthPort)
		assert.Equal(t, "http://localhost:8080/", cfg.BaseURL)
		assert.Equal(t, "threshold", cfg.SiteName)
		assert.Equal(t, 15*time.Second, cfg.ReadTimeout)
		assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
		assert.Empty(t, cfg.TemplatesDir)
	})

	t.Run("templates dir", func(t *testing.T) {
		t.Setenv("THRESHOLD_TEMPLATES_DIR", "/etc/threshold/templates")
		cfg := loadServerConfig()
		assert.Equal(t, "/etc/threshold/templates", cfg.TemplatesDir)
	})

	t.Run("base URL gains a trailing slash", func(t *testing.T) {
		t.Setenv("THRESHOLD_BASE_URL", "https://login.example.com/core")
		cfg := loadServerConfig()
		assert.Equal(t, "https://login.example.com/core/", cfg.BaseURL)
	})
}

func TestLoadLoginConfig(t *testing.T) {
	cfg := loadLoginConfig()
	assert.True(t, cfg.EnableLocalLogin)
	assert.True(t, cfg.AllowRememberMe)
	assert.False(t, cfg.PersistentCookies)
	assert.Equal(t, 720*time.Hour, cfg.RememberMeDuration)
	assert.Equal(t, time.Hour, cfg.SignInLifetime)

	t.Setenv("THRESHOLD_ENABLE_LOCAL_LOGIN", "false")
	t.Setenv("THRESHOLD_PERSISTENT_COOKIES", "true")
	t.Setenv("THRESHOLD_REMEMBER_ME_DURATION", "24h")
	cfg = loadLoginConfig()
	assert.False(t, cfg.EnableLocalLogin)
	assert.True(t, cfg.PersistentCookies)
	assert.Equal(t, 24*time.Hour, cfg.RememberMeDuration)
}

func TestParseSameSite(t *testing.T) {
	assert.Equal(t, http.SameSiteLaxMode, parseSameSite(""))
	assert.Equal(t, http.SameSiteLaxMode, parseSameSite("lax"))
	assert.Equal(t, http.SameSiteStrictMode, parseSameSite("Strict"))
	assert.Equal(t, http.SameSiteNoneMode, parseSameSite("none"))
}

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:       "8080",
			HealthPort: "9090",
			BaseURL:    "https://login.example.com/",
		},
		Login: LoginConfig{
			RememberMeDuration: time.Hour,
			SignInLifetime:     time.Hour,
		},
		Cookies: CookieConfig{
			Secret:           testSecret,
			Secure:           true,
			SameSite:         http.SameSiteLaxMode,
			SessionLifetime:  time.Hour,
			ExternalLifetime: time.Minute,
		},
		Storage: StorageConfig{
			ResumeTokenTTL:  time.Hour,
			ResumeCacheSize: 10,
		},
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:    "same ports",
			mutate:  func(c *Config) { c.Server.HealthPort = "8080" },
			wantErr: "must be different",
		},
		{
			name:    "relative base URL",
			mutate:  func(c *Config) { c.Server.BaseURL = "/login/" },
			wantErr: "base URL must be absolute",
		},
		{
			name:    "short cookie secret",
			mutate:  func(c *Config) { c.Cookies.Secret = "short" },
			wantErr: "cookie secret",
		},
		{
			name: "insecure SameSite=None",
			mutate: func(c *Config) {
				c.Cookies.SameSite = http.SameSiteNoneMode
				c.Cookies.Secure = false
			},
			wantErr: "must be secure",
		},
		{
			name:    "zero remember-me duration",
			mutate:  func(c *Config) { c.Login.RememberMeDuration = 0 },
			wantErr: "remember-me",
		},
		{
			name:    "resume token TTL shorter than session lifetime",
			mutate:  func(c *Config) { c.Storage.ResumeTokenTTL = 30 * time.Minute },
			wantErr: "shorter than the session lifetime",
		},
		{
			name: "resume token TTL longer than session lifetime",
			mutate: func(c *Config) {
				c.Storage.ResumeTokenTTL = 2 * time.Hour
			},
		},
		{
			name:    "zero resume cache size",
			mutate:  func(c *Config) { c.Storage.ResumeCacheSize = 0 },
			wantErr: "resume cache size",
		},
		{
			name:    "claim type map with blank target",
			mutate:  func(c *Config) { c.ClaimTypeMap = map[string]string{"upn": ""} },
			wantErr: "claim type map",
		},
		{
			name: "duplicate providers",
			mutate: func(c *Config) {
				c.Providers = []*sso.ProviderConfig{{Name: "contoso"}, {Name: "contoso"}}
			},
			wantErr: "duplicate provider",
		},
		{
			name:    "incomplete login link",
			mutate:  func(c *Config) { c.LoginLinks = []LoginLink{{Text: "Register"}} },
			wantErr: "login links",
		},
		{
			name: "otel without endpoint",
			mutate: func(c *Config) {
				c.Observability.OTelEnabled = true
				c.Observability.OTelServiceName = "threshold"
			},
			wantErr: "endpoint is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCookieOptions(t *testing.T) {
	cfg := validConfig()
	cfg.Server.BaseURL = "https://example.com/identity/"
	cfg.Cookies.Domain = "example.com"

	opts := cfg.CookieOptions()
	assert.Equal(t, "/identity/", opts.Path)
	assert.Equal(t, "example.com", opts.Domain)
	assert.True(t, opts.Secure)
	assert.True(t, opts.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, opts.SameSite)
}

func TestParseFile(t *testing.T) {
	data := []byte(`
providers:
  - name: contoso
    caption: Contoso
    type: oidc
    enabled: true
    oidc:
      issuer_url: https://login.contoso.example
      client_id: threshold
      client_secret: s3cret
      scopes: [openid, profile]
    attribute_mapping:
      user_id: oid
login_links:
  - text: Register
    href: ~/register
protocol_logout_urls:
  - /connect/endsession/callback
allowed_return_origins:
  - https://rp.example
claim_type_map:
  http://schemas.xmlsoap.org/ws/2005/05/identity/claims/upn: email
`)

	cfg := validConfig()
	require.NoError(t, cfg.parseFile(data))

	require.Len(t, cfg.Providers, 1)
	p := cfg.Providers[0]
	assert.Equal(t, "contoso", p.Name)
	assert.Equal(t, "Contoso", p.Caption)
	assert.Equal(t, sso.ProviderTypeOIDC, p.ProviderType)
	assert.True(t, p.Enabled)
	require.NotNil(t, p.OIDCConfig)
	assert.Equal(t, "https://login.contoso.example", p.OIDCConfig.IssuerURL)
	assert.Equal(t, []string{"openid", "profile"}, p.OIDCConfig.Scopes)
	assert.Equal(t, "oid", p.AttributeMapping.UserID)

	assert.Equal(t, []LoginLink{{Text: "Register", Href: "~/register"}}, cfg.LoginLinks)
	assert.Equal(t, []string{"/connect/endsession/callback"}, cfg.ProtocolLogoutURLs)
	assert.Equal(t, []string{"https://rp.example"}, cfg.AllowedReturnOrigins)
	assert.Equal(t, map[string]string{
		"http://schemas.xmlsoap.org/ws/2005/05/identity/claims/upn": "email",
	}, cfg.ClaimTypeMap)
	assert.NoError(t, cfg.Validate())
}

func TestParseFileInvalid(t *testing.T) {
	cfg := validConfig()
	err := cfg.parseFile([]byte("providers: {not: [a list"))
	assert.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	t.Run("requires a cookie secret", func(t *testing.T) {
		t.Setenv("THRESHOLD_COOKIE_SECRET", "")
		_, err := LoadConfig()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalid)
	})

	t.Run("loads env and file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "threshold.yaml")
		require.NoError(t, os.WriteFile(path, []byte("allowed_return_origins: [https://rp.example]\n"), 0o600))

		t.Setenv("THRESHOLD_COOKIE_SECRET", testSecret)
		t.Setenv("THRESHOLD_CONFIG_FILE", path)
		t.Setenv("THRESHOLD_BASE_URL", "https://login.example.com")

		cfg, err := LoadConfig()
		require.NoError(t, err)
		assert.Equal(t, "https://login.example.com/", cfg.Server.BaseURL)
		assert.Equal(t, []string{"https://rp.example"}, cfg.AllowedReturnOrigins)
	})

	t.Run("resume token TTL must cover the session lifetime", func(t *testing.T) {
		t.Setenv("THRESHOLD_COOKIE_SECRET", testSecret)
		t.Setenv("THRESHOLD_SESSION_LIFETIME", "12h")
		_, err := LoadConfig()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalid)

		t.Setenv("THRESHOLD_RESUME_TOKEN_TTL", "12h")
		_, err = LoadConfig()
		assert.NoError(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		t.Setenv("THRESHOLD_COOKIE_SECRET", testSecret)
		t.Setenv("THRESHOLD_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
		_, err := LoadConfig()
		assert.Error(t, err)
	})
}
