package auth

import (
	"time"

	"github.com/google/uuid"
)

// Session is the authenticated identity resolved from a bearer token. It is
// passed explicitly to anything acting on behalf of the caller.
type Session struct {
	UserID    uuid.UUID `json:"user_id"`
	UserType  UserType  `json:"user_type"`
	TokenID   string    `json:"-"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Is reports whether the session user type is one of types.
func (s *Session) Is(types ...UserType) bool {
	if s == nil {
		return false
	}
	for _, t := range types {
		if s.UserType == t {
			return true
		}
	}
	return false
}

func sessionFromClaims(claims *JWTClaims) (*Session, error) {
	id, err := claims.UserUUID()
	if err != nil {
		return nil, ErrInvalidToken
	}

	return &Session{
		UserID:    id,
		UserType:  claims.Type,
		TokenID:   claims.TokenID(),
		IssuedAt:  claims.IssuedAt(),
		ExpiresAt: claims.Expires(),
	}, nil
}
