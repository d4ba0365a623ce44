package app

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/wholesale/internal/rbac"
)

func TestIdentityRoundTrip(t *testing.T) {
	id := NewIdentity("s3cret", "wholesale", nil)
	p := rbac.Principal{UserID: "u-1", Name: "Rin", Role: rbac.RolePurchase}

	token, err := id.IssueToken(p, time.Hour)
	require.NoError(t, err)

	got, err := id.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestIdentityRejectsBadTokens(t *testing.T) {
	id := NewIdentity("s3cret", "wholesale", nil)
	p := rbac.Principal{UserID: "u-1", Role: rbac.RoleSales}

	expired, err := id.IssueToken(p, -time.Minute)
	require.NoError(t, err)
	_, err = id.Parse(expired)
	require.ErrorIs(t, err, ErrInvalidToken)

	foreign, err := NewIdentity("other", "wholesale", nil).IssueToken(p, time.Hour)
	require.NoError(t, err)
	_, err = id.Parse(foreign)
	require.ErrorIs(t, err, ErrInvalidToken)

	wrongIssuer, err := NewIdentity("s3cret", "someone-else", nil).IssueToken(p, time.Hour)
	require.NoError(t, err)
	_, err = id.Parse(wrongIssuer)
	require.ErrorIs(t, err, ErrInvalidToken)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{Role: "SALES", RegisteredClaims: jwt.RegisteredClaims{Subject: "u-1"}})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = id.Parse(unsigned)
	require.ErrorIs(t, err, ErrInvalidToken)

	unknownRole := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{Role: "JANITOR", RegisteredClaims: jwt.RegisteredClaims{Subject: "u-1", Issuer: "wholesale"}})
	signed, err := unknownRole.SignedString([]byte("s3cret"))
	require.NoError(t, err)
	_, err = id.Parse(signed)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestIdentityIssueRequiresValidPrincipal(t *testing.T) {
	_, err := NewIdentity("s3cret", "", nil).IssueToken(rbac.Principal{Role: rbac.RoleAdmin}, time.Hour)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestIdentityMiddleware(t *testing.T) {
	id := NewIdentity("s3cret", "", nil)
	var seen rbac.Principal
	var found bool
	h := id.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, found = rbac.PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, found)

	token, err := id.IssueToken(rbac.Principal{UserID: "u-9", Role: rbac.RoleInventory}, time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.True(t, found)
	assert.Equal(t, rbac.RoleInventory, seen.Role)

	for _, header := range []string{"Basic dTpw", "Bearer ", "Bearer not.a.token"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", header)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, header)
	}
}
