// Package users provides UserService implementations backed by PostgreSQL
// or by memory. Both verify bcrypt password hashes and resolve federated
// accounts through a (provider, provider user id) link table.
package users

import (
	"strconv"

	"github.com/platinummonkey/threshold/pkg/authn"
	"golang.org/x/crypto/bcrypt"
)

const (
	// IdentityProviderLocal is the idp claim value for password sign-ins
	IdentityProviderLocal = "idsrv"

	// AuthMethodPassword is the amr claim value for password sign-ins
	AuthMethodPassword = "password"
	// AuthMethodExternal is the amr claim value for federated sign-ins
	AuthMethodExternal = "external"

	// DefaultSecondFactorPath is where users with a second factor are sent
	DefaultSecondFactorPath = "~/mfa/verify"

	// MessageAccountDisabled is shown to users whose account is inactive
	MessageAccountDisabled = "Your account is disabled."
)

// Options tunes how outcomes are built
type Options struct {
	// SecondFactorPath is the partial sign-in redirect for users that
	// require a second factor
	SecondFactorPath string
	// RegistrationPath, when set, turns unknown federated accounts into a
	// partial sign-in that sends the user to register
	RegistrationPath string
}

func (o Options) withDefaults() Options {
	if o.SecondFactorPath == "" {
		o.SecondFactorPath = DefaultSecondFactorPath
	}
	return o
}

type record struct {
	ID           int64
	Username     string
	DisplayName  string
	PasswordHash string
	MFARequired  bool
	Active       bool
}

// dummyHash equalizes timing for unknown usernames
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("threshold-dummy-password"), bcrypt.DefaultCost)

// HashPassword returns a bcrypt hash suitable for storage
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func checkPassword(rec *record, password string) bool {
	if rec == nil {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(password)) == nil
}

func (o Options) outcome(rec *record, idp, amr string) *authn.Outcome {
	if !rec.Active {
		return authn.Failure(MessageAccountDisabled)
	}

	name := rec.DisplayName
	if name == "" {
		name = rec.Username
	}
	id := authn.NewIdentity(strconv.FormatInt(rec.ID, 10), name,
		authn.Claim{Type: authn.ClaimIdentityProvider, Value: idp},
		authn.Claim{Type: authn.ClaimAuthenticationMethod, Value: amr},
	)
	if rec.MFARequired {
		return authn.PartialSuccess(id, o.SecondFactorPath)
	}
	return authn.Success(id)
}

// unknownExternal handles a federated account with no local link
func (o Options) unknownExternal(ext *authn.ExternalIdentity) *authn.Outcome {
	if o.RegistrationPath == "" {
		return authn.Rejected()
	}
	id := &authn.Identity{}
	id.Claims = append(id.Claims,
		authn.Claim{Type: authn.ClaimExternalProviderUserID, Value: ext.ProviderID, Issuer: ext.Provider},
		authn.Claim{Type: authn.ClaimIdentityProvider, Value: ext.Provider},
	)
	for _, c := range ext.Claims {
		// a resumed identity already carries the linkage claims
		if c.Type == authn.ClaimExternalProviderUserID || c.Type == authn.ClaimIdentityProvider {
			continue
		}
		id.Claims = append(id.Claims, c)
	}
	return authn.PartialSuccess(id, o.RegistrationPath)
}
