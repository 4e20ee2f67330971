package jwt

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func sign(t *testing.T, key *rsa.PrivateKey, claims *Claims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := tok.SignedString(key)
	require.NoError(t, err)
	return signed
}

func accessClaims(issuer, audience string, ttl time.Duration) *Claims {
	now := time.Now()
	return &Claims{
		IdentityID:     77,
		Roles:          []string{"seller"},
		SessionPurpose: PurposeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Audience:  []string{audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
}

func TestVerifyAccessToken(t *testing.T) {
	key := newKey(t)
	v := NewVerifier(&key.PublicKey, "marketplace", "web")

	raw := sign(t, key, accessClaims("marketplace", "web", time.Hour))
	claims, err := v.VerifyAccessToken(raw)
	require.NoError(t, err)
	assert.Equal(t, int64(77), claims.IdentityID)
	assert.True(t, claims.HasRole("seller"))

	p := claims.Principal(raw)
	assert.Equal(t, int64(77), p.IdentityID)
	assert.Equal(t, raw, p.Token)
}

func TestVerifyRejects(t *testing.T) {
	key := newKey(t)
	other := newKey(t)
	v := NewVerifier(&key.PublicKey, "marketplace", "web")

	expired := accessClaims("marketplace", "web", -time.Minute)
	refresh := accessClaims("marketplace", "web", time.Hour)
	refresh.SessionPurpose = "refresh"
	temp := accessClaims("marketplace", "web", time.Hour)
	temp.IsTemp = true

	tests := []struct {
		name string
		raw  string
	}{
		{"expired", sign(t, key, expired)},
		{"wrong issuer", sign(t, key, accessClaims("someone-else", "web", time.Hour))},
		{"wrong audience", sign(t, key, accessClaims("marketplace", "admin", time.Hour))},
		{"wrong key", sign(t, other, accessClaims("marketplace", "web", time.Hour))},
		{"refresh token", sign(t, key, refresh)},
		{"temporary token", sign(t, key, temp)},
		{"garbage", "not-a-token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.VerifyAccessToken(tt.raw)
			assert.Error(t, err)
		})
	}
}

func TestLoadVerifierFromPEM(t *testing.T) {
	key := newKey(t)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "public.pem")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), 0o600))

	v, err := LoadVerifier(Config{PubPath: path, Issuer: "marketplace", Audience: "web", Leeway: time.Minute})
	require.NoError(t, err)

	// Within leeway.
	_, err = v.VerifyAccessToken(sign(t, key, accessClaims("marketplace", "web", -30*time.Second)))
	assert.NoError(t, err)

	_, err = LoadVerifier(Config{PubPath: filepath.Join(t.TempDir(), "missing.pem")})
	assert.Error(t, err)
}
