package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Config holds auth options
type Config interface {
	GetSigningKey() string
	GetTokenExpiration() time.Duration
	GetIssuer() string
	GetAudience() []string
	GetResetCodeTTL() time.Duration
	GetResetCodeLength() int
	GetExposeResetCode() bool
	GetPasswordHasher() string
	GetBcryptCost() int
}

// CredentialStore is the durable record of user identity, password hash and
// user type. Emails are compared after NormalizeEmail.
type CredentialStore interface {
	// Create fails with ErrDuplicateEmail if the normalized email exists.
	Create(ctx context.Context, user *User) (*User, error)
	// FindByEmail fails with ErrUserNotFound.
	FindByEmail(ctx context.Context, email string) (*User, error)
	// FindByID fails with ErrUserNotFound.
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
	// UpdatePasswordHash replaces the stored hash, ErrUserNotFound if missing.
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error
}

// ResetCodeStore persists at most one PasswordReset per email.
type ResetCodeStore interface {
	// Upsert replaces any request stored for reset.Email in one atomic step.
	Upsert(ctx context.Context, reset *PasswordReset) error
	// Consume marks the request consumed iff it matches codeHash, is not
	// consumed and expires after now. Reports whether it flipped the row.
	Consume(ctx context.Context, email, codeHash string, now time.Time) (bool, error)
	// Get fails with ErrResetNotFound.
	Get(ctx context.Context, email string) (*PasswordReset, error)
	// PurgeExpired deletes consumed or expired requests.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// RevocationStore is the deny-list of session token IDs.
type RevocationStore interface {
	Revoke(ctx context.Context, token *RevokedToken) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// RepositoryManager groups the stores and runs units of work atomically.
// Stores handed to fn are bound to the transaction.
type RepositoryManager interface {
	Users() CredentialStore
	PasswordResets() ResetCodeStore
	Revocations() RevocationStore
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx RepositoryManager) error) error
}

// PasswordHasher is the one-way hashing primitive for passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	// Verify returns (false, nil) on mismatch and an error only for hashes
	// it can not parse.
	Verify(password, hash string) (bool, error)
}

// CodeDeliverer sends a reset code to the owner of email out of band.
type CodeDeliverer interface {
	Deliver(ctx context.Context, email, code string) error
}

// CodeDelivererFunc adapts a function to the CodeDeliverer interface.
type CodeDelivererFunc func(ctx context.Context, email, code string) error

// Deliver implements CodeDeliverer.
func (f CodeDelivererFunc) Deliver(ctx context.Context, email, code string) error {
	if f == nil {
		return nil
	}
	return f(ctx, email, code)
}

type noopDeliverer struct{}

func (noopDeliverer) Deliver(context.Context, string, string) error {
	return nil
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTH "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTH "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTH "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTH "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
