package signin

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/platinummonkey/threshold/pkg/authn"
)

// ErrUntrustedReturnURL is returned for return URLs outside the trusted set
var ErrUntrustedReturnURL = errors.New("untrusted return url")

// ReturnURLPolicy decides whether a relying party return URL may be stored
// in a correlation message. Messages are only created after this check; the
// login flow trusts stored messages as is.
type ReturnURLPolicy interface {
	Validate(returnURL string) error
}

// OriginPolicy trusts absolute http(s) URLs whose origin is the server's own
// or in an allow-list.
type OriginPolicy struct {
	origins map[string]bool
}

// NewOriginPolicy creates a policy trusting baseURL's origin plus allowed
func NewOriginPolicy(baseURL string, allowed ...string) (*OriginPolicy, error) {
	p := &OriginPolicy{origins: make(map[string]bool)}
	for _, raw := range append([]string{baseURL}, allowed...) {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		origin, err := originOf(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted origin %q: %w", raw, err)
		}
		p.origins[origin] = true
	}
	if len(p.origins) == 0 {
		return nil, fmt.Errorf("at least one trusted origin is required")
	}
	return p, nil
}

// Validate implements ReturnURLPolicy
func (p *OriginPolicy) Validate(returnURL string) error {
	origin, err := originOf(returnURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUntrustedReturnURL, err)
	}
	if !p.origins[origin] {
		return fmt.Errorf("%w: origin %s", ErrUntrustedReturnURL, origin)
	}
	return nil
}

func originOf(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("scheme must be http or https")
	}
	if u.Host == "" {
		return "", fmt.Errorf("host is required")
	}
	if u.User != nil {
		return "", fmt.Errorf("userinfo is not allowed")
	}
	return scheme + "://" + strings.ToLower(u.Host), nil
}

// Issue validates msg.ReturnURL against policy and writes the message
func Issue(store Store, policy ReturnURLPolicy, msg *authn.SignInMessage) (string, error) {
	if msg == nil {
		return "", fmt.Errorf("signin message is required")
	}
	if policy == nil {
		return "", fmt.Errorf("return url policy is required")
	}
	if err := policy.Validate(msg.ReturnURL); err != nil {
		return "", err
	}
	return store.Write(msg)
}
