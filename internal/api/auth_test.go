package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/npezzotti/go-ordersupport/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrincipalFrom(t *testing.T) {
	tcases := []struct {
		name      string
		ctx       context.Context
		principal types.Principal
		expected  bool
	}{
		{
			name:     "no principal",
			ctx:      context.Background(),
			expected: false,
		},
		{
			name:      "principal set",
			ctx:       WithPrincipal(context.Background(), types.Principal{Id: 42, IsAdmin: true}),
			principal: types.Principal{Id: 42, IsAdmin: true},
			expected:  true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			p, ok := PrincipalFrom(tc.ctx)
			assert.Equal(t, tc.expected, ok, "expected PrincipalFrom to return %v", tc.expected)
			assert.Equal(t, tc.principal, p)
		})
	}
}

func Test_tokenFromRequest(t *testing.T) {
	tcases := []struct {
		name    string
		cookie  string
		header  string
		want    string
		wantErr bool
	}{
		{name: "cookie", cookie: "abc", want: "abc"},
		{name: "bearer header", header: "Bearer xyz", want: "xyz"},
		{name: "lowercase scheme", header: "bearer xyz", want: "xyz"},
		{name: "cookie wins", cookie: "abc", header: "Bearer xyz", want: "abc"},
		{name: "basic auth ignored", header: "Basic dXNlcjpwYXNz", wantErr: true},
		{name: "empty bearer", header: "Bearer ", wantErr: true},
		{name: "nothing", wantErr: true},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.cookie != "" {
				req.AddCookie(&http.Cookie{Name: tokenCookieKey, Value: tc.cookie})
			}
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}

			got, err := tokenFromRequest(req)
			if tc.wantErr {
				assert.ErrorIs(t, err, errNoCredentials)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func Test_sessionToken_roundTrip(t *testing.T) {
	app := &OrderSupportApp{signingKey: []byte("test-signing-key")}

	token, err := app.createJwtForSession(17, defaultExp)
	require.NoError(t, err)

	userId, err := app.extractUserIdFromToken(token)
	require.NoError(t, err)
	assert.Equal(t, 17, userId)
}

func Test_passwordHashing(t *testing.T) {
	hash, err := hashPassword("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", hash)
	assert.True(t, verifyPassword(hash, "correct horse"))
	assert.False(t, verifyPassword(hash, "wrong horse"))
}
