// Package mfa issues and verifies server-side second-factor challenges.
// A challenge is an opaque token bound to a hashed one-time code with a
// short lifetime and a bounded attempt budget; the code itself travels to
// the user out of band and is never stored in clear.
package mfa

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"math/big"
	"time"

	"github.com/google/uuid"
)

const (
	defaultTTL         = 5 * time.Minute
	defaultMaxAttempts = 5
	codeDigits         = 6
)

var (
	ErrNotFound     = errors.New("mfa: challenge not found or expired")
	ErrCodeMismatch = errors.New("mfa: verification code mismatch")
	ErrTooManyTries = errors.New("mfa: attempt budget exhausted")
)

// Challenge is the pending second-factor state for one login.
type Challenge struct {
	UserID    string    `json:"userId"`
	Email     string    `json:"email"`
	CodeHash  string    `json:"codeHash"`
	ExpiresAt time.Time `json:"expiresAt"`
	Attempts  int       `json:"attempts"`
}

// Store persists pending challenges keyed by their opaque token.
type Store interface {
	Put(ctx context.Context, token string, ch Challenge, ttl time.Duration) error
	Get(ctx context.Context, token string) (Challenge, error)
	Delete(ctx context.Context, token string) error
}

// Service issues and verifies challenges against a Store.
type Service struct {
	store       Store
	now         func() time.Time
	ttl         time.Duration
	maxAttempts int
}

// Option configures Service behavior.
type Option func(*Service)

// WithTTL overrides the challenge lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithMaxAttempts overrides the verification attempt budget.
func WithMaxAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs a Service.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:       store,
		now:         time.Now,
		ttl:         defaultTTL,
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue creates a challenge for the user and returns the opaque token plus
// the one-time code. The caller delivers the code out of band; only its
// hash is stored.
func (s *Service) Issue(ctx context.Context, userID, email string) (token, code string, err error) {
	code, err = randomDigits(codeDigits)
	if err != nil {
		return "", "", err
	}
	token = uuid.NewString()
	ch := Challenge{
		UserID:    userID,
		Email:     email,
		CodeHash:  hashCode(code),
		ExpiresAt: s.now().Add(s.ttl),
	}
	if err := s.store.Put(ctx, token, ch, s.ttl); err != nil {
		return "", "", err
	}
	return token, code, nil
}

// Verify checks the code against the pending challenge. A correct code
// consumes the challenge; a wrong one burns an attempt. When the budget is
// exhausted the challenge is destroyed and a fresh login is required.
func (s *Service) Verify(ctx context.Context, token, code string) (Challenge, error) {
	ch, err := s.store.Get(ctx, token)
	if err != nil {
		return Challenge{}, ErrNotFound
	}
	if s.now().After(ch.ExpiresAt) {
		_ = s.store.Delete(ctx, token)
		return Challenge{}, ErrNotFound
	}
	if subtle.ConstantTimeCompare([]byte(ch.CodeHash), []byte(hashCode(code))) != 1 {
		ch.Attempts++
		if ch.Attempts >= s.maxAttempts {
			_ = s.store.Delete(ctx, token)
			return Challenge{}, ErrTooManyTries
		}
		remaining := time.Until(ch.ExpiresAt)
		_ = s.store.Put(ctx, token, ch, remaining)
		return Challenge{}, ErrCodeMismatch
	}
	if err := s.store.Delete(ctx, token); err != nil {
		return Challenge{}, err
	}
	return ch, nil
}

func hashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

func randomDigits(n int) (string, error) {
	digits := make([]byte, n)
	for i := range digits {
		v, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		digits[i] = byte('0' + v.Int64())
	}
	return string(digits), nil
}
