package sso

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"encoding/xml"
	"fmt"
	"net/http"

	saml2 "github.com/russellhaering/gosaml2"
	dsig "github.com/russellhaering/goxmldsig"

	"github.com/platinummonkey/threshold/pkg/authn"
)

// SAMLProvider implements SAML 2.0 SSO
type SAMLProvider struct {
	config  *ProviderConfig
	sp      *saml2.SAMLServiceProvider
	baseURL string
}

// NewSAMLProvider creates a new SAML provider
func NewSAMLProvider(config *ProviderConfig, baseURL string) (*SAMLProvider, error) {
	if config.SAMLConfig == nil {
		return nil, fmt.Errorf("SAML config is required")
	}

	cert, err := parseCertificate(config.SAMLConfig.Certificate)
	if err != nil {
		return nil, err
	}

	certStore := dsig.MemoryX509CertificateStore{
		Roots: []*x509.Certificate{cert},
	}

	// Parse private key if provided
	var keyStore dsig.X509KeyStore
	if config.SAMLConfig.PrivateKey != "" {
		privateKey, err := parsePrivateKey(config.SAMLConfig.PrivateKey)
		if err != nil {
			return nil, err
		}
		var chain [][]byte
		if config.SAMLConfig.SPCert != "" {
			spCert, err := parseCertificate(config.SAMLConfig.SPCert)
			if err != nil {
				return nil, fmt.Errorf("sp_certificate: %w", err)
			}
			chain = append(chain, spCert.Raw)
		}
		keyStore = &dsig.TLSCertKeyStore{
			PrivateKey:  privateKey,
			Certificate: chain,
		}
	}

	entityID := baseURL + "sso/" + config.Name + "/metadata"
	sp := &saml2.SAMLServiceProvider{
		IdentityProviderSSOURL:      config.SAMLConfig.SSOURL,
		IdentityProviderIssuer:      config.SAMLConfig.EntityID,
		ServiceProviderIssuer:       entityID,
		AssertionConsumerServiceURL: baseURL + "sso/" + config.Name + "/callback",
		SignAuthnRequests:           config.SAMLConfig.SignRequests && keyStore != nil,
		AudienceURI:                 entityID,
		IDPCertificateStore:         &certStore,
		SPKeyStore:                  keyStore,
	}

	if config.SAMLConfig.NameIDFormat != "" {
		sp.NameIdFormat = config.SAMLConfig.NameIDFormat
	}

	return &SAMLProvider{
		config:  config,
		sp:      sp,
		baseURL: baseURL,
	}, nil
}

func parseCertificate(data string) (*x509.Certificate, error) {
	block, _ := pem.Decode([]byte(data))
	if block == nil {
		return nil, fmt.Errorf("failed to decode certificate PEM")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	return cert, nil
}

func parsePrivateKey(data string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(data))
	if block == nil {
		return nil, fmt.Errorf("failed to decode private key PEM")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	pkcs8Key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	key, ok := pkcs8Key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is not RSA")
	}
	return key, nil
}

// GetType returns the provider type
func (p *SAMLProvider) GetType() ProviderType {
	return ProviderTypeSAML
}

// GetName returns the provider name
func (p *SAMLProvider) GetName() string {
	return p.config.Name
}

// Caption returns the login page caption
func (p *SAMLProvider) Caption() string {
	return p.config.Caption
}

// AuthorizationURL builds a redirect-binding AuthnRequest with state as RelayState
func (p *SAMLProvider) AuthorizationURL(state string) (string, string, error) {
	authURL, err := p.sp.BuildAuthURL(state)
	if err != nil {
		return "", "", fmt.Errorf("failed to build auth URL: %w", err)
	}
	return authURL, "", nil
}

// HandleCallback validates the posted assertion and returns its attributes
func (p *SAMLProvider) HandleCallback(_ context.Context, r *http.Request, _ string) ([]authn.Claim, error) {
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("failed to parse form: %w", err)
	}

	samlResponse := r.PostFormValue("SAMLResponse")
	if samlResponse == "" {
		return nil, fmt.Errorf("missing SAMLResponse parameter")
	}

	assertionInfo, err := p.sp.RetrieveAssertionInfo(samlResponse)
	if err != nil {
		return nil, fmt.Errorf("failed to validate assertion: %w", err)
	}

	if assertionInfo.WarningInfo != nil {
		if assertionInfo.WarningInfo.InvalidTime {
			return nil, fmt.Errorf("assertion has invalid time")
		}
		if assertionInfo.WarningInfo.NotInAudience {
			return nil, fmt.Errorf("assertion not in expected audience")
		}
	}

	attrs := make(map[string][]string, len(assertionInfo.Values))
	for _, attr := range assertionInfo.Values {
		for _, v := range attr.Values {
			if v.Value != "" {
				attrs[attr.Name] = append(attrs[attr.Name], v.Value)
			}
		}
	}
	if assertionInfo.NameID != "" {
		attrs[authn.ClaimNameIdentifier] = []string{assertionInfo.NameID}
	}

	return mapClaims(p.config.Name, attrs, p.config.AttributeMapping), nil
}

// ValidateConfig validates the SAML configuration
func (p *SAMLProvider) ValidateConfig() error {
	if p.config.SAMLConfig == nil {
		return fmt.Errorf("SAML config is required")
	}

	cfg := p.config.SAMLConfig

	if cfg.EntityID == "" {
		return fmt.Errorf("entity_id is required")
	}
	if cfg.SSOURL == "" {
		return fmt.Errorf("sso_url is required")
	}
	if cfg.Certificate == "" {
		return fmt.Errorf("certificate is required")
	}
	if _, err := parseCertificate(cfg.Certificate); err != nil {
		return fmt.Errorf("invalid certificate: %w", err)
	}
	if cfg.SignRequests && cfg.PrivateKey == "" {
		return fmt.Errorf("private_key is required to sign requests")
	}

	return nil
}

// Metadata returns the service provider metadata document
func (p *SAMLProvider) Metadata() ([]byte, error) {
	descriptor, err := p.sp.Metadata()
	if err != nil {
		return nil, fmt.Errorf("failed to generate metadata: %w", err)
	}
	body, err := xml.MarshalIndent(descriptor, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}
