// Package config provides application configuration management from
// environment variables and an optional YAML file.
//
// # Configuration Structure
//
// Server settings:
//
//	THRESHOLD_HOST="0.0.0.0"
//	THRESHOLD_PORT="8080"
//	THRESHOLD_HEALTH_PORT="9090"
//	THRESHOLD_BASE_URL="https://login.example.com/"
//
// Login flow settings:
//
//	THRESHOLD_ENABLE_LOCAL_LOGIN="true"
//	THRESHOLD_ALLOW_REMEMBER_ME="true"
//	THRESHOLD_PERSISTENT_COOKIES="false"
//	THRESHOLD_REMEMBER_ME_DURATION="720h"
//
// Cookie settings:
//
//	THRESHOLD_COOKIE_SECRET="<at least 32 bytes>"
//	THRESHOLD_COOKIE_SAMESITE="lax"  # lax, strict, none (SAML POST binding needs none)
//
// Storage settings:
//
//	THRESHOLD_DATABASE_URL="postgres://localhost/threshold"
//	THRESHOLD_REDIS_URL="redis://localhost:6379/0"
//
// Observability settings:
//
//	THRESHOLD_LOG_LEVEL="info"  # debug, info, warn, error
//	THRESHOLD_LOG_FORMAT="json" # json, text
//	THRESHOLD_METRICS_ENABLED="true"
//	THRESHOLD_OTEL_ENABLED="true"
//	THRESHOLD_OTEL_ENDPOINT="otel-collector:4317"
//
// # Config File
//
// THRESHOLD_CONFIG_FILE names a YAML file with the list valued settings:
//
//	providers:
//	  - name: contoso
//	    caption: Contoso
//	    type: oidc
//	    enabled: true
//	    oidc:
//	      issuer_url: https://login.contoso.example
//	      client_id: threshold
//	      scopes: [openid, profile, email]
//	login_links:
//	  - text: Forgot password?
//	    href: ~/account/reset
//	protocol_logout_urls:
//	  - /connect/endsession/callback
//	allowed_return_origins:
//	  - https://rp.example
//
// # Related Packages
//
//   - pkg/sso: Provider configuration
//   - pkg/observability: Uses observability configuration
package config
