package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"math/big"
	"time"
)

const (
	// DefaultResetCodeTTL is how long a reset code can be consumed.
	DefaultResetCodeTTL = 15 * time.Minute
	// DefaultResetCodeLength is the number of decimal digits in a reset code.
	DefaultResetCodeLength = 6

	maxResetCodeLength = 12
)

// ResetCodeManager generates, stores and consumes one-time reset codes. It
// never checks whether the email belongs to a user.
type ResetCodeManager struct {
	store  ResetCodeStore
	ttl    time.Duration
	length int
	random io.Reader
	now    func() time.Time
}

// ResetCodeOption configures a ResetCodeManager.
type ResetCodeOption func(*ResetCodeManager)

// WithResetCodeTTL sets the code lifetime.
func WithResetCodeTTL(ttl time.Duration) ResetCodeOption {
	return func(m *ResetCodeManager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithResetCodeLength sets the number of digits per code.
func WithResetCodeLength(length int) ResetCodeOption {
	return func(m *ResetCodeManager) {
		if length >= 4 && length <= maxResetCodeLength {
			m.length = length
		}
	}
}

// WithResetCodeClock overrides the time source.
func WithResetCodeClock(now func() time.Time) ResetCodeOption {
	return func(m *ResetCodeManager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithResetCodeRandom overrides the entropy source.
func WithResetCodeRandom(r io.Reader) ResetCodeOption {
	return func(m *ResetCodeManager) {
		if r != nil {
			m.random = r
		}
	}
}

// NewResetCodeManager creates a manager persisting requests in store.
func NewResetCodeManager(store ResetCodeStore, opts ...ResetCodeOption) *ResetCodeManager {
	m := &ResetCodeManager{
		store:  store,
		ttl:    DefaultResetCodeTTL,
		length: DefaultResetCodeLength,
		random: rand.Reader,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// WithStore returns a copy of the manager bound to store, typically a
// transaction scoped one.
func (m *ResetCodeManager) WithStore(store ResetCodeStore) *ResetCodeManager {
	clone := *m
	clone.store = store
	return &clone
}

func (m *ResetCodeManager) withClock(now func() time.Time) *ResetCodeManager {
	clone := *m
	clone.now = now
	return &clone
}

// TTL returns the configured code lifetime.
func (m *ResetCodeManager) TTL() time.Duration {
	return m.ttl
}

// CreateRequest stores a fresh code for email, replacing any previous
// request, and returns the plaintext code and its expiry.
func (m *ResetCodeManager) CreateRequest(ctx context.Context, email string) (string, time.Time, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return "", time.Time{}, NewValidationError(fmt.Errorf("email: cannot be blank"))
	}

	code, err := m.generateCode()
	if err != nil {
		return "", time.Time{}, wrapInternal(err, "failed to generate reset code")
	}

	now := m.now().UTC()
	reset := &PasswordReset{
		Email:     email,
		CodeHash:  HashResetCode(code),
		ExpiresAt: now.Add(m.ttl),
		CreatedAt: now,
	}

	if err := m.store.Upsert(ctx, reset); err != nil {
		return "", time.Time{}, wrapInternal(err, "failed to store password reset request")
	}

	return code, reset.ExpiresAt, nil
}

// Consume marks the request for email consumed when code matches and the
// request is neither expired nor used. Any other outcome is
// ErrInvalidOrExpiredCode and leaves the request untouched.
func (m *ResetCodeManager) Consume(ctx context.Context, email, code string, now time.Time) error {
	email = NormalizeEmail(email)
	if email == "" || !m.wellFormed(code) {
		return ErrInvalidOrExpiredCode
	}

	ok, err := m.store.Consume(ctx, email, HashResetCode(code), now.UTC())
	if err != nil {
		return wrapInternal(err, "failed to consume password reset request")
	}
	if !ok {
		return ErrInvalidOrExpiredCode
	}

	return nil
}

// Purge removes requests that can no longer be consumed.
func (m *ResetCodeManager) Purge(ctx context.Context) (int64, error) {
	return m.store.PurgeExpired(ctx, m.now().UTC())
}

func (m *ResetCodeManager) generateCode() (string, error) {
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(m.length)), nil)
	n, err := rand.Int(m.random, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", m.length, n), nil
}

func (m *ResetCodeManager) wellFormed(code string) bool {
	if len(code) != m.length {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// HashResetCode returns the hex SHA-256 digest stored in place of a code.
func HashResetCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}
