package auth

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	TextCodeDuplicateEmail       = "DUPLICATE_EMAIL"
	TextCodeInvalidCredentials   = "INVALID_CREDENTIALS"
	TextCodeInvalidToken         = "INVALID_TOKEN"
	TextCodeTokenExpired         = "TOKEN_EXPIRED"
	TextCodeTokenRevoked         = "TOKEN_REVOKED"
	TextCodeMissingToken         = "MISSING_TOKEN"
	TextCodeForbidden            = "FORBIDDEN"
	TextCodeInvalidOrExpiredCode = "INVALID_OR_EXPIRED_CODE"
	TextCodeValidation           = "VALIDATION_ERROR"
	TextCodeUserNotFound         = "USER_NOT_FOUND"
	TextCodeResetNotFound        = "RESET_NOT_FOUND"
	TextCodeEmptyPassword        = "EMPTY_PASSWORD"
	TextCodeServiceFailure       = "SERVICE_FAILURE"
)

// ErrDuplicateEmail is returned when registering an email that already exists.
var ErrDuplicateEmail = goerrors.New("Email already registered", goerrors.CategoryConflict).
	WithTextCode(TextCodeDuplicateEmail).
	WithCode(goerrors.CodeConflict)

// ErrInvalidCredentials is returned for both unknown emails and wrong passwords.
var ErrInvalidCredentials = goerrors.New("Invalid credentials", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrInvalidToken is returned when a bearer token can not be resolved.
var ErrInvalidToken = goerrors.New("Invalid token", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidToken).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenExpired is returned when a bearer token is past its expiry.
var ErrTokenExpired = goerrors.New("Token expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenRevoked is returned when a bearer token was explicitly revoked.
var ErrTokenRevoked = goerrors.New("Token revoked", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenRevoked).
	WithCode(goerrors.CodeUnauthorized)

// ErrMissingToken is returned when a protected request has no bearer token.
var ErrMissingToken = goerrors.New("Not authenticated", goerrors.CategoryAuth).
	WithTextCode(TextCodeMissingToken).
	WithCode(goerrors.CodeUnauthorized)

// ErrForbidden is returned when the session user type is not allowed.
var ErrForbidden = goerrors.New("Access denied", goerrors.CategoryAuthz).
	WithTextCode(TextCodeForbidden).
	WithCode(goerrors.CodeForbidden)

// ErrInvalidOrExpiredCode covers wrong, expired, consumed and superseded reset codes.
var ErrInvalidOrExpiredCode = goerrors.New("Invalid or expired reset code", goerrors.CategoryBadInput).
	WithTextCode(TextCodeInvalidOrExpiredCode).
	WithCode(goerrors.CodeBadRequest)

// ErrUserNotFound is a store level error, never surfaced as is to clients.
var ErrUserNotFound = goerrors.New("user not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeUserNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrResetNotFound is returned by reset stores when an email has no request.
var ErrResetNotFound = goerrors.New("password reset request not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeResetNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrEmptyPassword is returned when hashing an empty password.
var ErrEmptyPassword = goerrors.New("password cannot be empty", goerrors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword).
	WithCode(goerrors.CodeBadRequest)

// ErrUnsupportedHash is returned when a stored hash has an unknown format.
var ErrUnsupportedHash = errors.New("unsupported password hash format")

// NewValidationError wraps payload validation failures. Field level messages
// produced by ozzo-validation are kept in the error metadata.
func NewValidationError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	richErr := goerrors.Wrap(err, goerrors.CategoryValidation, "Invalid request payload").
		WithTextCode(TextCodeValidation).
		WithCode(goerrors.CodeBadRequest)

	var fieldErrs validation.Errors
	if errors.As(err, &fieldErrs) {
		fields := make(map[string]any, len(fieldErrs))
		for name, fieldErr := range fieldErrs {
			if fieldErr != nil {
				fields[name] = fieldErr.Error()
			}
		}
		richErr = richErr.WithMetadata(map[string]any{"fields": fields})
	}

	return richErr
}

func wrapInternal(err error, message string) *goerrors.Error {
	return goerrors.Wrap(err, goerrors.CategoryInternal, message).
		WithTextCode(TextCodeServiceFailure).
		WithCode(goerrors.CodeInternal)
}

// HasTextCode reports whether err carries the given rich error text code.
func HasTextCode(err error, textCode string) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == textCode
}

// IsDuplicateEmail reports whether err signals an email uniqueness conflict.
func IsDuplicateEmail(err error) bool {
	return errors.Is(err, ErrDuplicateEmail) || HasTextCode(err, TextCodeDuplicateEmail)
}

// IsInvalidOrExpiredCode reports whether err is a rejected reset code.
func IsInvalidOrExpiredCode(err error) bool {
	return errors.Is(err, ErrInvalidOrExpiredCode) || HasTextCode(err, TextCodeInvalidOrExpiredCode)
}

// IsUserNotFound reports whether err is a missing user.
func IsUserNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound) || HasTextCode(err, TextCodeUserNotFound)
}

// IsTokenError reports whether err means the caller is not authenticated.
func IsTokenError(err error) bool {
	for _, code := range []string{
		TextCodeInvalidToken,
		TextCodeTokenExpired,
		TextCodeTokenRevoked,
		TextCodeMissingToken,
	} {
		if HasTextCode(err, code) {
			return true
		}
	}
	return false
}

// isUniqueViolation detects unique constraint errors for the supported
// dialects: pgx reports a typed error, sqlite only an error message.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.UniqueViolation
	}

	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint")
}
