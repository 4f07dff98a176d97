package authn

// ExternalIdentity is a normalized federated account
type ExternalIdentity struct {
	Provider   string
	ProviderID string
	Claims     []Claim
}

// ClaimsFilter rewrites the claims a provider returned before they reach the
// user service.
type ClaimsFilter interface {
	Filter(provider string, claims []Claim) []Claim
}

// ClaimsFilterFunc adapts a function to ClaimsFilter
type ClaimsFilterFunc func(provider string, claims []Claim) []Claim

// Filter calls f
func (f ClaimsFilterFunc) Filter(provider string, claims []Claim) []Claim {
	return f(provider, claims)
}

// ClaimTypeMap renames claim types, e.g. long URI types to short names.
// Unmapped claims pass through unchanged.
type ClaimTypeMap map[string]string

// Filter implements ClaimsFilter
func (m ClaimTypeMap) Filter(_ string, claims []Claim) []Claim {
	out := make([]Claim, 0, len(claims))
	for _, c := range claims {
		if to, ok := m[c.Type]; ok {
			c.Type = to
		}
		out = append(out, c)
	}
	return out
}

// ChainFilters applies filters in order
func ChainFilters(filters ...ClaimsFilter) ClaimsFilter {
	return ClaimsFilterFunc(func(provider string, claims []Claim) []Claim {
		for _, f := range filters {
			if f != nil {
				claims = f.Filter(provider, claims)
			}
		}
		return claims
	})
}

// MapExternalIdentity builds an external identity from raw provider claims.
// The provider-scoped id is taken from the subject claim, falling back to the
// name identifier claim; the provider name is that claim's issuer. It returns
// nil when no usable id or provider is present. The filter, when non-nil, is
// applied to the claim set after the id has been found.
func MapExternalIdentity(claims []Claim, filter ClaimsFilter) *ExternalIdentity {
	idx := -1
	for _, t := range []string{ClaimSubject, ClaimNameIdentifier} {
		for i := range claims {
			if claims[i].Type == t && claims[i].Value != "" {
				idx = i
				break
			}
		}
		if idx >= 0 {
			break
		}
	}
	if idx < 0 || claims[idx].Issuer == "" {
		return nil
	}

	ext := &ExternalIdentity{
		Provider:   claims[idx].Issuer,
		ProviderID: claims[idx].Value,
		Claims:     make([]Claim, 0, len(claims)-1),
	}
	for i, c := range claims {
		if i != idx {
			ext.Claims = append(ext.Claims, c)
		}
	}
	if filter != nil {
		ext.Claims = filter.Filter(ext.Provider, ext.Claims)
	}
	return ext
}
