package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/samurai-chat/internal/core"
	"github.com/markdave123-py/samurai-chat/internal/models"
)

const secret = "test-secret"

type staticUsers map[string]bool

func (s staticUsers) GetUserByID(_ context.Context, id string) (*models.User, error) {
	if !s[id] {
		return nil, core.ErrNotFound
	}
	return &models.User{ID: id}, nil
}

func protected(v *JWTVerifier) http.Handler {
	return v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := UserIDFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		_, _ = w.Write([]byte(id))
	}))
}

func call(h http.Handler, authz string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMiddlewareAcceptsValidToken(t *testing.T) {
	tok, err := IssueToken(secret, "u-1", time.Hour)
	require.NoError(t, err)

	rec := call(protected(NewJWTVerifier(secret, staticUsers{"u-1": true}, nil)), "Bearer "+tok)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u-1", rec.Body.String())
}

func TestMiddlewareAcceptsSubClaim(t *testing.T) {
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u-2",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	require.NoError(t, err)

	rec := call(protected(NewJWTVerifier(secret, staticUsers{"u-2": true}, nil)), "Bearer "+tok)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u-2", rec.Body.String())
}

func TestMiddlewareRejects(t *testing.T) {
	v := NewJWTVerifier(secret, staticUsers{"u-1": true}, nil)

	good, err := IssueToken(secret, "u-1", time.Hour)
	require.NoError(t, err)
	expired, err := IssueToken(secret, "u-1", -time.Hour)
	require.NoError(t, err)
	wrongKey, err := IssueToken("other-secret", "u-1", time.Hour)
	require.NoError(t, err)
	ghost, err := IssueToken(secret, "ghost", time.Hour)
	require.NoError(t, err)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"user_id": "u-1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	cases := map[string]string{
		"no header":    "",
		"not bearer":   "Basic " + good,
		"garbage":      "Bearer not.a.jwt",
		"expired":      "Bearer " + expired,
		"wrong key":    "Bearer " + wrongKey,
		"unknown user": "Bearer " + ghost,
		"alg none":     "Bearer " + none,
	}
	for name, authz := range cases {
		t.Run(name, func(t *testing.T) {
			rec := call(protected(v), authz)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), `"kind":"unauthenticated"`)
			assert.Contains(t, rec.Body.String(), `"ok":false`)
		})
	}
}
