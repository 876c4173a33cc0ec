// Package tokens issues and verifies HS256 bearer tokens for deployments
// without an OIDC provider.
package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mantica/blog/backend/go-services/pkg/middleware"
)

// Identity is what an issued token asserts.
type Identity struct {
	Subject string
	Name    string
	Roles   []string
}

// GenerateAccessToken creates a signed JWT access token for id
func GenerateAccessToken(secret string, id Identity, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("empty signing secret")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   id.Subject,
		"name":  id.Name,
		"roles": id.Roles,
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	}
	jt := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return jt.SignedString([]byte(secret))
}

type mapToken struct {
	claims jwt.MapClaims
}

func (t *mapToken) Claims(v interface{}) error {
	b, err := json.Marshal(t.claims)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// HMACVerifier checks tokens produced by GenerateAccessToken.
type HMACVerifier struct {
	secret []byte
}

func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret)}
}

func (v *HMACVerifier) Verify(ctx context.Context, raw string) (middleware.Token, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}
	return &mapToken{claims: claims}, nil
}
