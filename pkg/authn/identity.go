package authn

import "time"

// Well-known claim types
const (
	ClaimSubject                = "sub"
	ClaimName                   = "name"
	ClaimIdentityProvider       = "idp"
	ClaimAuthenticationMethod   = "amr"
	ClaimExternalProviderUserID = "external_provider_user_id"
	ClaimNameIdentifier         = "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/nameidentifier"
)

// Claim is a single statement about a subject
type Claim struct {
	Type   string `json:"type"`
	Value  string `json:"value"`
	Issuer string `json:"issuer,omitempty"`
}

// ResumePending links a partially signed-in identity back to the sign-in
// message that started the flow.
type ResumePending struct {
	Token     string `json:"token"`
	SignInID  string `json:"signin_id"`
	ReturnURL string `json:"return_url,omitempty"`
}

// Identity is an authenticated set of claims
type Identity struct {
	Claims []Claim         `json:"claims"`
	Resume *ResumePending `json:"resume,omitempty"`
}

// NewIdentity creates an identity with subject and name claims
func NewIdentity(subject, name string, extra ...Claim) *Identity {
	id := &Identity{}
	if subject != "" {
		id.Claims = append(id.Claims, Claim{Type: ClaimSubject, Value: subject})
	}
	if name != "" {
		id.Claims = append(id.Claims, Claim{Type: ClaimName, Value: name})
	}
	id.Claims = append(id.Claims, extra...)
	return id
}

// FindFirst returns the first claim of the given type
func (i *Identity) FindFirst(claimType string) (Claim, bool) {
	if i == nil {
		return Claim{}, false
	}
	for _, c := range i.Claims {
		if c.Type == claimType {
			return c, true
		}
	}
	return Claim{}, false
}

// Value returns the value of the first claim of the given type, or "".
func (i *Identity) Value(claimType string) string {
	c, _ := i.FindFirst(claimType)
	return c.Value
}

// Subject returns the subject id
func (i *Identity) Subject() string {
	return i.Value(ClaimSubject)
}

// Name returns the display name
func (i *Identity) Name() string {
	return i.Value(ClaimName)
}

// ExternalLinkage reports the federated account this identity was created
// from. The claim value is the provider-scoped user id and the issuer is the
// provider name.
func (i *Identity) ExternalLinkage() (provider, providerID string, ok bool) {
	c, found := i.FindFirst(ClaimExternalProviderUserID)
	if !found || c.Value == "" || c.Issuer == "" {
		return "", "", false
	}
	return c.Issuer, c.Value, true
}

// Clone returns a deep copy
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	out := &Identity{Claims: make([]Claim, len(i.Claims))}
	copy(out.Claims, i.Claims)
	if i.Resume != nil {
		r := *i.Resume
		out.Resume = &r
	}
	return out
}

// WithoutResume returns a copy of the identity with the resume descriptor removed
func (i *Identity) WithoutResume() *Identity {
	out := i.Clone()
	if out != nil {
		out.Resume = nil
	}
	return out
}

// SignInMessage is the correlation record for one in-flight login attempt
type SignInMessage struct {
	ID        string    `json:"id"`
	IdP       string    `json:"idp,omitempty"`
	ReturnURL string    `json:"return_url"`
	CreatedAt time.Time `json:"created_at"`
}
