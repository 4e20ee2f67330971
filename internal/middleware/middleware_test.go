package middleware

import (
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"boost-service/internal/pkg/identity"
	"boost-service/internal/pkg/jwt"

	"github.com/gin-gonic/gin"
	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func signedToken(t *testing.T, key *rsa.PrivateKey, identityID int64) string {
	t.Helper()
	now := time.Now()
	claims := &jwt.Claims{
		IdentityID:     identityID,
		Roles:          []string{"seller"},
		SessionPurpose: jwt.PurposeAccess,
		RegisteredClaims: gojwt.RegisteredClaims{
			ID:        "jti-1",
			Issuer:    "marketplace",
			ExpiresAt: gojwt.NewNumericDate(now.Add(time.Hour)),
			IssuedAt:  gojwt.NewNumericDate(now),
		},
	}
	raw, err := gojwt.NewWithClaims(gojwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)
	return raw
}

func TestAuthPutsPrincipalOnRequestContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	auth := NewAuthMiddleware(jwt.NewVerifier(&key.PublicKey, "marketplace", ""), zap.NewNop())

	r := gin.New()
	r.GET("/me", auth.Auth(), func(c *gin.Context) {
		p, err := identity.Require(c.Request.Context())
		require.NoError(t, err)
		assert.Equal(t, MustGetIdentityID(c), p.IdentityID)
		c.String(http.StatusOK, p.Token)
	})

	raw := signedToken(t, key, 55)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, raw, w.Body.String())

	for _, header := range []string{"", "Bearer", "Basic abc", "Bearer not-a-jwt"} {
		w = httptest.NewRecorder()
		req = httptest.NewRequest(http.MethodGet, "/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code, header)
	}
}

func TestRequireRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	auth := NewAuthMiddleware(nil, zap.NewNop())

	r := gin.New()
	r.GET("/admin", func(c *gin.Context) {
		c.Set("roles", []string{"seller"})
	}, auth.RequireRole("admin"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRateLimiterPerIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(60, 2)

	r := gin.New()
	r.GET("/calc", func(c *gin.Context) {
		c.Set("identity_id", int64(c.GetHeader("X-Id")[0]-'0'))
	}, rl.Middleware(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	call := func(id string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/calc", nil)
		req.Header.Set("X-Id", id)
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, call("1"))
	assert.Equal(t, http.StatusOK, call("1"))
	assert.Equal(t, http.StatusTooManyRequests, call("1"))
	assert.Equal(t, http.StatusOK, call("2"))
}

func TestRecoveryReturnsEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RecoveryMiddleware(zap.NewNop()))
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"success":false`)
}
