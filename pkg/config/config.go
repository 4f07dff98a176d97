package config

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/threshold/pkg/cookie"
	"github.com/platinummonkey/threshold/pkg/sso"
)

// ErrInvalid wraps every validation failure
var ErrInvalid = errors.New("invalid configuration")

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Login flow configuration
	Login LoginConfig

	// Cookie configuration
	Cookies CookieConfig

	// Storage configuration
	Storage StorageConfig

	// Observability configuration
	Observability ObservabilityConfig

	// Settings loaded from THRESHOLD_CONFIG_FILE
	Providers            []*sso.ProviderConfig
	LoginLinks           []LoginLink
	ProtocolLogoutURLs   []string
	AllowedReturnOrigins []string

	// ClaimTypeMap renames provider claim types before account lookup
	ClaimTypeMap map[string]string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	BaseURL         string // Always ends with "/"
	SiteName        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string

	// TemplatesDir overrides the embedded page templates when set
	TemplatesDir string
}

// LoginConfig holds the login flow switches
type LoginConfig struct {
	EnableLocalLogin   bool
	AllowRememberMe    bool
	PersistentCookies  bool
	RememberMeDuration time.Duration
	SignInLifetime     time.Duration
	SecondFactorPath   string
	RegistrationPath   string
}

// CookieConfig holds the cookie settings shared by the correlation store
// and the session slots
type CookieConfig struct {
	Name             string
	Secret           string
	Secure           bool
	Domain           string
	SameSite         http.SameSite
	SessionLifetime  time.Duration
	ExternalLifetime time.Duration
}

// StorageConfig holds the backing stores. Empty URLs select the in-memory
// implementations.
type StorageConfig struct {
	DatabaseURL     string
	RedisURL        string
	ResumeTokenTTL  time.Duration
	ResumeCacheSize int
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel  string
	LogFormat string

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
}

// LoginLink is an additional link shown on the login page
type LoginLink struct {
	Text string `yaml:"text"`
	Href string `yaml:"href"`
}

// fileConfig is the layout of THRESHOLD_CONFIG_FILE
type fileConfig struct {
	Providers            []*sso.ProviderConfig `yaml:"providers"`
	LoginLinks           []LoginLink           `yaml:"login_links"`
	ProtocolLogoutURLs   []string              `yaml:"protocol_logout_urls"`
	AllowedReturnOrigins []string              `yaml:"allowed_return_origins"`
	ClaimTypeMap         map[string]string     `yaml:"claim_type_map"`
}

// LoadConfig loads configuration from environment variables and the
// optional YAML file named by THRESHOLD_CONFIG_FILE.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Login:         loadLoginConfig(),
		Cookies:       loadCookieConfig(),
		Storage:       loadStorageConfig(),
		Observability: loadObservabilityConfig(),
	}

	if path := getEnv("THRESHOLD_CONFIG_FILE", ""); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("THRESHOLD_HOST", "0.0.0.0"),
		Port:            getEnv("THRESHOLD_PORT", "8080"),
		BaseURL:         normalizeBaseURL(getEnv("THRESHOLD_BASE_URL", "http://localhost:8080/")),
		SiteName:        getEnv("THRESHOLD_SITE_NAME", "threshold"),
		ReadTimeout:     getEnvDuration("THRESHOLD_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("THRESHOLD_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("THRESHOLD_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("THRESHOLD_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("THRESHOLD_HEALTH_PORT", "9090"),
		TemplatesDir:    getEnv("THRESHOLD_TEMPLATES_DIR", ""),
	}
}

// loadLoginConfig loads login flow configuration from environment
func loadLoginConfig() LoginConfig {
	return LoginConfig{
		EnableLocalLogin:   getEnvBool("THRESHOLD_ENABLE_LOCAL_LOGIN", true),
		AllowRememberMe:    getEnvBool("THRESHOLD_ALLOW_REMEMBER_ME", true),
		PersistentCookies:  getEnvBool("THRESHOLD_PERSISTENT_COOKIES", false),
		RememberMeDuration: getEnvDuration("THRESHOLD_REMEMBER_ME_DURATION", 30*24*time.Hour),
		SignInLifetime:     getEnvDuration("THRESHOLD_SIGNIN_LIFETIME", time.Hour),
		SecondFactorPath:   getEnv("THRESHOLD_SECOND_FACTOR_PATH", "~/mfa/verify"),
		RegistrationPath:   getEnv("THRESHOLD_REGISTRATION_PATH", ""),
	}
}

// loadCookieConfig loads cookie configuration from environment
func loadCookieConfig() CookieConfig {
	return CookieConfig{
		Name:             getEnv("THRESHOLD_COOKIE_NAME", "threshold"),
		Secret:           getEnv("THRESHOLD_COOKIE_SECRET", ""),
		Secure:           getEnvBool("THRESHOLD_COOKIE_SECURE", true),
		Domain:           getEnv("THRESHOLD_COOKIE_DOMAIN", ""),
		SameSite:         parseSameSite(getEnv("THRESHOLD_COOKIE_SAMESITE", "lax")),
		SessionLifetime:  getEnvDuration("THRESHOLD_SESSION_LIFETIME", 10*time.Hour),
		ExternalLifetime: getEnvDuration("THRESHOLD_EXTERNAL_LIFETIME", 10*time.Minute),
	}
}

// loadStorageConfig loads storage configuration from environment
func loadStorageConfig() StorageConfig {
	return StorageConfig{
		DatabaseURL:     getEnv("THRESHOLD_DATABASE_URL", ""),
		RedisURL:        getEnv("THRESHOLD_REDIS_URL", ""),
		ResumeTokenTTL:  getEnvDuration("THRESHOLD_RESUME_TOKEN_TTL", 10*time.Hour),
		ResumeCacheSize: getEnvInt("THRESHOLD_RESUME_CACHE_SIZE", 100000),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           strings.ToLower(getEnv("THRESHOLD_LOG_LEVEL", "info")),
		LogFormat:          strings.ToLower(getEnv("THRESHOLD_LOG_FORMAT", "json")),
		MetricsEnabled:     getEnvBool("THRESHOLD_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("THRESHOLD_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("THRESHOLD_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("THRESHOLD_OTEL_SERVICE_NAME", "threshold"),
		OTelServiceVersion: getEnv("THRESHOLD_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("THRESHOLD_OTEL_INSECURE", true),
	}
}

// loadFile merges the YAML file at path into c
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return c.parseFile(data)
}

func (c *Config) parseFile(data []byte) error {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	c.Providers = fc.Providers
	c.LoginLinks = fc.LoginLinks
	c.ProtocolLogoutURLs = fc.ProtocolLogoutURLs
	c.AllowedReturnOrigins = fc.AllowedReturnOrigins
	c.ClaimTypeMap = fc.ClaimTypeMap
	return nil
}

// CookieOptions returns the jar options for every login cookie
func (c *Config) CookieOptions() cookie.Options {
	return cookie.Options{
		Path:     cookiePath(c.Server.BaseURL),
		Domain:   c.Cookies.Domain,
		Secure:   c.Cookies.Secure,
		HttpOnly: true,
		SameSite: c.Cookies.SameSite,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("%w: server port is required", ErrInvalid)
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("%w: health port is required", ErrInvalid)
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("%w: server port and health port must be different", ErrInvalid)
	}

	base, err := url.Parse(c.Server.BaseURL)
	if err != nil || !base.IsAbs() || base.Host == "" {
		return fmt.Errorf("%w: base URL must be absolute: %q", ErrInvalid, c.Server.BaseURL)
	}

	if len(c.Cookies.Secret) < cookie.MinKeyLength {
		return fmt.Errorf("%w: cookie secret must be at least %d bytes", ErrInvalid, cookie.MinKeyLength)
	}
	if c.Cookies.SameSite == http.SameSiteNoneMode && !c.Cookies.Secure {
		return fmt.Errorf("%w: SameSite=None cookies must be secure", ErrInvalid)
	}
	if c.Cookies.SessionLifetime <= 0 || c.Cookies.ExternalLifetime <= 0 {
		return fmt.Errorf("%w: cookie lifetimes must be positive", ErrInvalid)
	}

	if c.Storage.ResumeCacheSize <= 0 {
		return fmt.Errorf("%w: resume cache size must be positive", ErrInvalid)
	}
	// a partial sign-in lives as long as a session cookie; its token must not
	// be forgotten earlier or it could be replayed
	if c.Storage.ResumeTokenTTL < c.Cookies.SessionLifetime {
		return fmt.Errorf("%w: resume token TTL %s is shorter than the session lifetime %s",
			ErrInvalid, c.Storage.ResumeTokenTTL, c.Cookies.SessionLifetime)
	}

	if c.Login.RememberMeDuration <= 0 {
		return fmt.Errorf("%w: remember-me duration must be positive", ErrInvalid)
	}
	if c.Login.SignInLifetime <= 0 {
		return fmt.Errorf("%w: sign-in lifetime must be positive", ErrInvalid)
	}

	names := make(map[string]bool, len(c.Providers))
	for _, p := range c.Providers {
		if p == nil || p.Name == "" {
			return fmt.Errorf("%w: provider name is required", ErrInvalid)
		}
		if names[p.Name] {
			return fmt.Errorf("%w: duplicate provider %q", ErrInvalid, p.Name)
		}
		names[p.Name] = true
	}

	for from, to := range c.ClaimTypeMap {
		if from == "" || to == "" {
			return fmt.Errorf("%w: claim type map entries need both types", ErrInvalid)
		}
	}

	for _, link := range c.LoginLinks {
		if link.Text == "" || link.Href == "" {
			return fmt.Errorf("%w: login links need text and href", ErrInvalid)
		}
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("%w: OpenTelemetry endpoint is required when OTel is enabled", ErrInvalid)
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("%w: OpenTelemetry service name is required when OTel is enabled", ErrInvalid)
		}
	}

	return nil
}

// normalizeBaseURL makes sure the base URL ends with a slash
func normalizeBaseURL(raw string) string {
	if raw != "" && !strings.HasSuffix(raw, "/") {
		return raw + "/"
	}
	return raw
}

// cookiePath scopes cookies to the base URL path
func cookiePath(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Path == "" {
		return "/"
	}
	return u.Path
}

// parseSameSite parses a SameSite mode, defaulting to Lax
func parseSameSite(mode string) http.SameSite {
	switch strings.ToLower(mode) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
