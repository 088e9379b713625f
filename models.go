package auth

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the credential record owned by the CredentialStore.
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`

	ID           uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id"`
	Email        string     `bun:"email,notnull,unique" json:"email"`
	PasswordHash string     `bun:"password_hash,notnull" json:"-"`
	UserType     UserType   `bun:"user_type,notnull" json:"user_type"`
	CreatedAt    *time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt    *time.Time `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

var _ bun.BeforeAppendModelHook = (*User)(nil)

// BeforeAppendModel keeps the email normalized and the timestamps in UTC
// regardless of which code path persists the record.
func (u *User) BeforeAppendModel(_ context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		u.Email = NormalizeEmail(u.Email)
		if u.CreatedAt == nil {
			u.CreatedAt = &now
		}
		u.UpdatedAt = &now
	case *bun.UpdateQuery:
		u.UpdatedAt = &now
	}
	return nil
}

// PasswordReset is the single reset request kept per email. A new request
// for the same email replaces the row, so older codes stop working.
type PasswordReset struct {
	bun.BaseModel `bun:"table:password_resets,alias:pwdr"`

	Email      string     `bun:"email,pk" json:"email"`
	CodeHash   string     `bun:"code_hash,notnull" json:"-"`
	ExpiresAt  time.Time  `bun:"expires_at,notnull" json:"expires_at"`
	Consumed   bool       `bun:"consumed,notnull,default:false" json:"consumed"`
	ConsumedAt *time.Time `bun:"consumed_at,nullzero" json:"consumed_at,omitempty"`
	CreatedAt  time.Time  `bun:"created_at,notnull" json:"created_at"`
}

// IsActive reports whether the request can still be consumed at now.
func (r *PasswordReset) IsActive(now time.Time) bool {
	if r == nil {
		return false
	}
	return !r.Consumed && now.Before(r.ExpiresAt)
}

// RevokedToken is a deny-list entry for a logged out session token.
type RevokedToken struct {
	bun.BaseModel `bun:"table:revoked_tokens,alias:rvk"`

	TokenID   string    `bun:"jti,pk" json:"jti"`
	UserID    uuid.UUID `bun:"user_id,type:uuid" json:"user_id"`
	ExpiresAt time.Time `bun:"expires_at,notnull" json:"expires_at"`
	RevokedAt time.Time `bun:"revoked_at,notnull" json:"revoked_at"`
}

// NormalizeEmail trims surrounding whitespace and lower-cases the address so
// lookups and the uniqueness constraint are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	record.Email = NormalizeEmail(record.Email)

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	if record.CreatedAt == nil {
		now := time.Now().UTC()
		record.CreatedAt = &now
	}
}
