package oidc

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/mantica/blog/backend/go-services/pkg/middleware"
)

const issuer = "https://sso.example.com/realms/blog"

func sign(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)
	return raw
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"iss":          issuer,
		"aud":          "blog-admin",
		"sub":          "u-42",
		"exp":          time.Now().Add(time.Hour).Unix(),
		"iat":          time.Now().Unix(),
		"realm_access": map[string]interface{}{"roles": []string{"admin"}},
	}
}

func TestStaticVerifier(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	v := NewStaticVerifier(issuer, "blog-admin", key.Public())
	require.Equal(t, issuer, v.Issuer())

	tok, err := v.Verify(context.Background(), sign(t, key, validClaims()))
	require.NoError(t, err)
	var claims map[string]interface{}
	require.NoError(t, tok.Claims(&claims))
	require.Equal(t, "u-42", claims["sub"])
	require.Equal(t, []string{"admin"}, middleware.Roles(claims))
}

func TestStaticVerifierRejects(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	v := NewStaticVerifier(issuer, "blog-admin", key.Public())

	expired := validClaims()
	expired["exp"] = time.Now().Add(-time.Minute).Unix()
	wrongAudience := validClaims()
	wrongAudience["aud"] = "someone-else"
	wrongIssuer := validClaims()
	wrongIssuer["iss"] = "https://evil.example.com"

	for name, raw := range map[string]string{
		"expired":        sign(t, key, expired),
		"wrong audience": sign(t, key, wrongAudience),
		"wrong issuer":   sign(t, key, wrongIssuer),
		"foreign key":    sign(t, other, validClaims()),
		"garbage":        "not.a.jwt",
	} {
		_, err := v.Verify(context.Background(), raw)
		require.Error(t, err, name)
	}
}

func TestStaticVerifierWithoutClientID(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	claims := validClaims()
	claims["aud"] = "account"

	_, err = NewStaticVerifier(issuer, "", key.Public()).Verify(context.Background(), sign(t, key, claims))
	require.NoError(t, err)
}
