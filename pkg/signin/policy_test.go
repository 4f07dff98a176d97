package signin

import (
	"net/http/httptest"
	"testing"

	"github.com/platinummonkey/threshold/pkg/authn"
	"github.com/platinummonkey/threshold/pkg/cookie"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOriginPolicy_Validate(t *testing.T) {
	policy, err := NewOriginPolicy("https://idp.example/", "https://rp.example", "http://localhost:3000")
	require.NoError(t, err)

	tests := []struct {
		name      string
		returnURL string
		wantErr   bool
	}{
		{name: "server origin", returnURL: "https://idp.example/connect/authorize/callback?x=1"},
		{name: "allowed relying party", returnURL: "https://rp.example/cb"},
		{name: "host case insensitive", returnURL: "https://RP.example/cb"},
		{name: "allowed port", returnURL: "http://localhost:3000/signin-oidc"},
		{name: "other port", returnURL: "http://localhost:4000/", wantErr: true},
		{name: "scheme downgrade", returnURL: "http://rp.example/cb", wantErr: true},
		{name: "unknown host", returnURL: "https://evil.example/cb", wantErr: true},
		{name: "lookalike host", returnURL: "https://rp.example.evil.example/cb", wantErr: true},
		{name: "relative", returnURL: "/cb", wantErr: true},
		{name: "protocol relative", returnURL: "//evil.example/cb", wantErr: true},
		{name: "javascript", returnURL: "javascript:alert(1)", wantErr: true},
		{name: "userinfo", returnURL: "https://rp.example@evil.example/", wantErr: true},
		{name: "empty", returnURL: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := policy.Validate(tt.returnURL)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUntrustedReturnURL)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewOriginPolicy_Errors(t *testing.T) {
	_, err := NewOriginPolicy("")
	assert.Error(t, err)

	_, err = NewOriginPolicy("https://idp.example", "ftp://files.example")
	assert.Error(t, err)
}

func TestIssue(t *testing.T) {
	codec := newTestCodec(t)
	policy, err := NewOriginPolicy("https://idp.example/", "https://rp.example")
	require.NoError(t, err)

	t.Run("trusted return url is stored", func(t *testing.T) {
		store := NewCookieStore(cookie.NewJar(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil), cookie.Options{}), codec)
		id, err := Issue(store, policy, &authn.SignInMessage{ReturnURL: "https://rp.example/cb"})
		require.NoError(t, err)
		_, ok := store.Read(id)
		assert.True(t, ok)
	})

	t.Run("untrusted return url is refused", func(t *testing.T) {
		w := httptest.NewRecorder()
		store := NewCookieStore(cookie.NewJar(w, httptest.NewRequest("GET", "/", nil), cookie.Options{}), codec)
		_, err := Issue(store, policy, &authn.SignInMessage{ReturnURL: "https://evil.example/cb"})
		assert.ErrorIs(t, err, ErrUntrustedReturnURL)
		assert.Empty(t, w.Result().Cookies())
	})

	t.Run("nil arguments", func(t *testing.T) {
		store := NewCookieStore(cookie.NewJar(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil), cookie.Options{}), codec)
		_, err := Issue(store, policy, nil)
		assert.Error(t, err)
		_, err = Issue(store, nil, &authn.SignInMessage{ReturnURL: "https://rp.example/cb"})
		assert.Error(t, err)
	})
}
