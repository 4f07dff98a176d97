// Package authn holds the data model shared by every step of the login flow:
// claims and identities, correlation (sign-in) messages, the tri-state
// authentication outcome returned by a user service, and the mapping of raw
// federated claims into an external identity.
//
// The package has no dependencies on HTTP or cookies. Everything that crosses
// a request boundary is serialized by the cookie and session packages.
//
// # Identity
//
// An Identity is an ordered list of (type, value, issuer) claims. When a
// sign-in stops half way (for example to collect a second factor) the identity
// also carries a ResumePending descriptor linking it back to the sign-in
// message that started the flow:
//
//	id := authn.NewIdentity("818727", "alice")
//	id.Resume = &authn.ResumePending{Token: token, SignInID: msg.ID}
//
// # Outcomes
//
// User services answer with one of three outcomes:
//
//	authn.Success(id)                          // final sign-in
//	authn.PartialSuccess(id, "~/mfa/verify")   // more steps required
//	authn.Rejected()                           // credentials did not match
//	authn.Failure("account locked")            // message shown to the user
package authn
