package tokens

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// HS256Signer self-issues HMAC-signed bearer tokens, matching the shared
// secret auth that sandbox ledgers accept. Not for production identity
// providers; use ClientCredentials there.
type HS256Signer struct {
	Secret   []byte
	UserID   string
	Audience string
	// TTL bounds each issued token's lifetime. Zero means one hour.
	TTL time.Duration

	// now is overridable in tests.
	now func() time.Time

	mu      sync.Mutex
	cached  string
	expires time.Time
}

func (s *HS256Signer) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

func (s *HS256Signer) Token(ctx context.Context) (string, error) {
	_ = ctx
	if len(s.Secret) == 0 || s.UserID == "" {
		return "", fmt.Errorf("%w: HS256 signer missing secret or user id", ErrUnavailable)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	if s.cached != "" && now.Before(s.expires.Add(-30*time.Second)) {
		return s.cached, nil
	}

	ttl := s.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	exp := now.Add(ttl)
	claims := jwt.MapClaims{
		"sub":   s.UserID,
		"iat":   now.Unix(),
		"exp":   exp.Unix(),
		"scope": "daml_ledger_api",
	}
	if s.Audience != "" {
		claims["aud"] = s.Audience
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.Secret)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	s.cached = signed
	s.expires = exp
	return signed, nil
}
