package tokens

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mantica/blog/backend/go-services/pkg/middleware"
)

var ErrRevoked = errors.New("token has been revoked")

// RevocationList remembers signed-out tokens in Redis until they expire.
// Tokens are stored as their SHA-256 digest.
type RevocationList struct {
	client *redis.Client
	prefix string
}

func NewRevocationList(client *redis.Client) *RevocationList {
	return &RevocationList{client: client, prefix: "blog:revoked:"}
}

func (l *RevocationList) key(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return l.prefix + hex.EncodeToString(sum[:])
}

// Revoke blacklists raw until expiresAt. Tokens already past expiry are
// rejected by verification anyway and are not stored.
func (l *RevocationList) Revoke(ctx context.Context, raw string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	if err := l.client.Set(ctx, l.key(raw), "1", ttl).Err(); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (l *RevocationList) IsRevoked(ctx context.Context, raw string) (bool, error) {
	n, err := l.client.Exists(ctx, l.key(raw)).Result()
	if err != nil {
		return false, fmt.Errorf("check revocation: %w", err)
	}
	return n > 0, nil
}

// Guard wraps next so revoked tokens fail verification. A lookup error also
// fails verification.
func (l *RevocationList) Guard(next middleware.Verifier) middleware.Verifier {
	return guardedVerifier{next: next, list: l}
}

type guardedVerifier struct {
	next middleware.Verifier
	list *RevocationList
}

func (g guardedVerifier) Verify(ctx context.Context, raw string) (middleware.Token, error) {
	revoked, err := g.list.IsRevoked(ctx, raw)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrRevoked
	}
	return g.next.Verify(ctx, raw)
}
