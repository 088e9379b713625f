package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/oklog/ulid/v2"
)

const (
	// DefaultTokenExpiration is how long a session token stays valid.
	DefaultTokenExpiration = 72 * time.Hour
	// MinSigningKeyLength is the shortest HS256 secret accepted.
	MinSigningKeyLength = 32
)

// TokenService issues and validates session tokens.
type TokenService interface {
	Issue(user *User) (string, *JWTClaims, error)
	Validate(token string) (*JWTClaims, error)
}

// JWTTokenService implements TokenService with HS256 signed JWTs.
type JWTTokenService struct {
	signingKey []byte
	expiration time.Duration
	issuer     string
	audience   jwt.ClaimStrings
	logger     Logger
	now        func() time.Time
}

var _ TokenService = (*JWTTokenService)(nil)

// NewTokenService creates a new TokenService instance
func NewTokenService(signingKey []byte, expiration time.Duration, issuer string, audience []string, logger Logger) *JWTTokenService {
	if logger == nil {
		logger = defLogger{}
	}
	if expiration <= 0 {
		expiration = DefaultTokenExpiration
	}
	return &JWTTokenService{
		signingKey: signingKey,
		expiration: expiration,
		issuer:     issuer,
		audience:   audience,
		logger:     logger,
		now:        time.Now,
	}
}

// WithClock overrides the time source, used by tests.
func (ts *JWTTokenService) WithClock(now func() time.Time) *JWTTokenService {
	if now != nil {
		ts.now = now
	}
	return ts
}

// Issue creates a signed token for user.
func (ts *JWTTokenService) Issue(user *User) (string, *JWTClaims, error) {
	if user == nil {
		return "", nil, goerrors.New("user must not be nil", goerrors.CategoryInternal)
	}
	if !user.UserType.IsValid() {
		return "", nil, goerrors.New("user has an unknown user type", goerrors.CategoryInternal).
			WithMetadata(map[string]any{"user_type": string(user.UserType)})
	}

	now := ts.now()
	claims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
			Issuer:    ts.issuer,
			Subject:   user.ID.String(),
			Audience:  ts.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.expiration)),
		},
		UID:  user.ID.String(),
		Type: user.UserType,
	}

	token, err := ts.SignClaims(claims)
	if err != nil {
		return "", nil, err
	}

	return token, claims, nil
}

// SignClaims signs arbitrary JWT claims using the configured signing key.
func (ts *JWTTokenService) SignClaims(claims *JWTClaims) (string, error) {
	if claims == nil {
		return "", goerrors.New("claims must not be nil", goerrors.CategoryInternal)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign JWT")
	}

	return signed, nil
}

// Validate parses and validates a token string. Every failure maps to
// ErrTokenExpired or ErrInvalidToken.
func (ts *JWTTokenService) Validate(tokenString string) (*JWTClaims, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(ts.now),
	}
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(ts.audience...))
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Warn("token validate encountered unexpected signing method %v", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		ts.logger.Debug("token validate failed: %v", err)
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	if _, err := claims.UserUUID(); err != nil {
		return nil, ErrInvalidToken
	}

	if !claims.Type.IsValid() {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
