// Package sso runs the federated provider handshakes behind the external
// authentication slot.
//
// # Overview
//
// Each configured provider turns a provider response into a raw claim set
// whose issuer is the provider name. The login flow maps those claims to an
// external identity; this package never decides who the user is.
//
// # Supported Protocols
//
// SAML 2.0: Enterprise identity providers (Azure AD, Okta, OneLogin)
// OAuth2: Authorization code flow plus a userinfo endpoint
// OpenID Connect: Discovery, PKCE and ID token verification
//
// # Usage Example
//
//	factory := sso.NewProviderFactory("https://idp.example.com/")
//	registry, err := sso.NewRegistryFromConfigs(ctx, factory, cfgs, log)
//
//	sessions := session.NewManager(codec, registry, session.Options{})
//	handlers := sso.NewHandlers(registry, sessions, cookieOpts, "/callback", log)
//	handlers.RegisterRoutes(router)
//
// The handshake handler is mounted at /sso/{provider}/callback. It checks the
// nonce stored by the external slot's Challenge, asks the provider for the
// user's claims, completes the external slot and sends the browser on to the
// login flow's callback.
//
// # Attribute Mapping
//
// AttributeMap renames provider attributes to the claim types the flow
// expects. UserID selects the attribute that becomes the "sub" claim, which
// is how Azure AD's "oid" or a SAML "uid" attribute becomes the provider
// scoped user id.
package sso
