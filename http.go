package auth

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"

	"github.com/trialbridge/go-auth/middleware/jwtware"
)

// SessionLocalsKey is the fiber Locals key holding the resolved *Session.
const SessionLocalsKey = "session"

// SessionResolver resolves a raw bearer token into a Session.
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (*Session, error)
}

// ErrorResponse is the JSON body of every failed auth request.
type ErrorResponse struct {
	Detail string         `json:"detail"`
	Code   string         `json:"code,omitempty"`
	Fields map[string]any `json:"fields,omitempty"`
}

// ProtectedRoute is the authorization guard. It rejects the request before
// any handler runs unless the bearer token resolves, then exposes the
// session through Locals and the request user context.
func ProtectedRoute(resolver SessionResolver, logger Logger) fiber.Handler {
	if logger == nil {
		logger = defLogger{}
	}

	return jwtware.New(jwtware.Config{
		ContextKey: SessionLocalsKey,
		Resolver: func(ctx context.Context, token string) (any, error) {
			return resolver.Resolve(ctx, token)
		},
		ContextEnricher: func(ctx context.Context, identity any) context.Context {
			if session, ok := identity.(*Session); ok {
				return WithSession(ctx, session)
			}
			return ctx
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if errors.Is(err, jwtware.ErrJWTMissingOrMalformed) {
				err = ErrMissingToken
			}
			return WriteError(c, err, logger)
		},
	})
}

// RequireUserType must run after ProtectedRoute. Sessions whose user type is
// not listed get ErrForbidden.
func RequireUserType(types ...UserType) fiber.Handler {
	return func(c *fiber.Ctx) error {
		session, err := SessionFromFiber(c)
		if err != nil {
			return WriteError(c, err, nil)
		}
		if !session.Is(types...) {
			return WriteError(c, ErrForbidden, nil)
		}
		return c.Next()
	}
}

// SessionFromFiber returns the session stored by ProtectedRoute.
func SessionFromFiber(c *fiber.Ctx) (*Session, error) {
	session, ok := c.Locals(SessionLocalsKey).(*Session)
	if !ok || session == nil {
		return nil, ErrMissingToken
	}
	return session, nil
}

// ErrorHandler is a fiber.ErrorHandler that renders errors as ErrorResponse.
func ErrorHandler(logger Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		return WriteError(c, err, logger)
	}
}

// WriteError renders err with the status derived from its rich error code.
// Internal failures are logged and answered with a generic detail.
func WriteError(c *fiber.Ctx, err error, logger Logger) error {
	if logger == nil {
		logger = defLogger{}
	}

	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return c.Status(fiberErr.Code).JSON(ErrorResponse{Detail: fiberErr.Message})
		}
		richErr = wrapInternal(err, "An unexpected server error occurred")
	}

	status := richErr.Code
	if status < fiber.StatusBadRequest {
		status = statusForCategory(richErr)
	}

	resp := ErrorResponse{
		Detail: richErr.Message,
		Code:   richErr.TextCode,
	}

	if status >= fiber.StatusInternalServerError {
		logger.Error("auth request %s %s failed: %v", c.Method(), c.Path(), err)
		resp.Detail = "Internal server error"
		resp.Code = TextCodeServiceFailure
	} else {
		logger.Debug("auth request %s %s rejected: %s", c.Method(), c.Path(), print.MaybePrettyJSON(richErr.Metadata))
		if fields, ok := richErr.Metadata["fields"].(map[string]any); ok {
			resp.Fields = fields
		}
	}

	return c.Status(status).JSON(resp)
}

func statusForCategory(richErr *goerrors.Error) int {
	switch richErr.Category {
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		return fiber.StatusBadRequest
	case goerrors.CategoryAuth:
		return fiber.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return fiber.StatusForbidden
	case goerrors.CategoryNotFound:
		return fiber.StatusNotFound
	case goerrors.CategoryConflict:
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}
