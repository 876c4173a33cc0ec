// Package oidc verifies bearer tokens issued by the blog's OIDC provider.
package oidc

import (
	"context"
	"crypto"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/mantica/blog/backend/go-services/pkg/middleware"
)

// Verifier checks issuer, audience, expiry and signature of provider tokens.
type Verifier struct {
	issuer   string
	verifier *oidc.IDTokenVerifier
}

// NewVerifier discovers the provider at issuer. An empty clientID accepts
// tokens for any audience of the realm.
func NewVerifier(ctx context.Context, issuer, clientID string) (*Verifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider %s: %w", issuer, err)
	}
	return &Verifier{issuer: issuer, verifier: provider.Verifier(verifierConfig(clientID))}, nil
}

// NewStaticVerifier verifies RS256 tokens against pinned keys without
// contacting the provider.
func NewStaticVerifier(issuer, clientID string, keys ...crypto.PublicKey) *Verifier {
	keySet := &oidc.StaticKeySet{PublicKeys: keys}
	return &Verifier{issuer: issuer, verifier: oidc.NewVerifier(issuer, keySet, verifierConfig(clientID))}
}

func verifierConfig(clientID string) *oidc.Config {
	return &oidc.Config{ClientID: clientID, SkipClientIDCheck: clientID == ""}
}

func (v *Verifier) Issuer() string { return v.issuer }

func (v *Verifier) Verify(ctx context.Context, raw string) (middleware.Token, error) {
	idToken, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, err
	}
	return idToken, nil
}
