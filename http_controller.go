package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-print"
	"github.com/google/uuid"
)

// AuthService is the surface the HTTP controller needs. *Auther implements it.
type AuthService interface {
	SessionResolver
	Register(ctx context.Context, email, password string, userType UserType) (*AuthResult, error)
	Login(ctx context.Context, email, password string) (*AuthResult, error)
	CurrentUser(ctx context.Context, session *Session) (*User, error)
	Revoke(ctx context.Context, session *Session) error
	ForgotPassword(ctx context.Context, email string) (*ForgotPasswordResult, error)
	ResetPassword(ctx context.Context, email, code, newPassword string) error
}

var _ AuthService = (*Auther)(nil)

type AuthControllerRoutes struct {
	Register       string
	Login          string
	Me             string
	ForgotPassword string
	ResetPassword  string
	Logout         string
}

type AuthController struct {
	Debug  bool
	Logger Logger
	Auther AuthService
	Routes *AuthControllerRoutes
}

type AuthControllerOption func(*AuthController) *AuthController

// WithControllerLogger sets the controller logger.
func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

// WithControllerDebug dumps request payloads, except secrets, to stdout.
func WithControllerDebug(debug bool) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Debug = debug
		return c
	}
}

func WithControllerRoutes(routes *AuthControllerRoutes) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if routes != nil {
			c.Routes = routes
		}
		return c
	}
}

func NewAuthController(auther AuthService, opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger: defLogger{},
		Auther: auther,
		Routes: &AuthControllerRoutes{
			Register:       "/register",
			Login:          "/login",
			Me:             "/me",
			ForgotPassword: "/forgot-password",
			ResetPassword:  "/reset-password",
			Logout:         "/logout",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Auther == nil {
		panic("Missing AuthService in auth controller...")
	}

	return c
}

// RegisterAuthRoutes mounts the auth endpoints on app, usually a group
// such as app.Group("/api/auth").
func RegisterAuthRoutes(app fiber.Router, auther AuthService, opts ...AuthControllerOption) *AuthController {
	controller := NewAuthController(auther, opts...)
	guard := ProtectedRoute(controller.Auther, controller.Logger)

	app.Post(controller.Routes.Register, controller.RegisterPost).Name("auth.register")
	app.Post(controller.Routes.Login, controller.LoginPost).Name("auth.login")
	app.Get(controller.Routes.Me, guard, controller.MeGet).Name("auth.me")
	app.Post(controller.Routes.ForgotPassword, controller.ForgotPasswordPost).Name("auth.forgot-password")
	app.Post(controller.Routes.ResetPassword, controller.ResetPasswordPost).Name("auth.reset-password")
	app.Post(controller.Routes.Logout, guard, controller.LogoutPost).Name("auth.logout")

	return controller
}

// RegisterRequest payload. UserType is kept as a string so unknown values
// surface as validation errors instead of decode errors.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	UserType string `json:"user_type"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Email       string `json:"email"`
	ResetCode   string `json:"reset_code"`
	NewPassword string `json:"new_password"`
}

// MeResponse is the public identity returned by the me endpoint.
type MeResponse struct {
	ID        uuid.UUID  `json:"id"`
	Email     string     `json:"email"`
	UserType  UserType   `json:"user_type"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// MessageResponse acknowledges an operation without data.
type MessageResponse struct {
	Message string `json:"message"`
}

func (a *AuthController) RegisterPost(c *fiber.Ctx) error {
	payload := new(RegisterRequest)
	if err := a.bind(payload, c); err != nil {
		return a.fail(c, err)
	}

	a.dump("REGISTER", map[string]any{"email": payload.Email, "user_type": payload.UserType})

	userType := UserType(payload.UserType)
	if parsed, err := ParseUserType(payload.UserType); err == nil {
		userType = parsed
	}

	result, err := a.Auther.Register(c.UserContext(), payload.Email, payload.Password, userType)
	if err != nil {
		return a.fail(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(result)
}

func (a *AuthController) LoginPost(c *fiber.Ctx) error {
	payload := new(LoginRequest)
	if err := a.bind(payload, c); err != nil {
		return a.fail(c, err)
	}

	a.dump("LOGIN", map[string]any{"email": payload.Email})

	result, err := a.Auther.Login(c.UserContext(), payload.Email, payload.Password)
	if err != nil {
		return a.fail(c, err)
	}

	return c.JSON(result)
}

func (a *AuthController) MeGet(c *fiber.Ctx) error {
	session, err := SessionFromFiber(c)
	if err != nil {
		return a.fail(c, err)
	}

	user, err := a.Auther.CurrentUser(c.UserContext(), session)
	if err != nil {
		return a.fail(c, err)
	}

	return c.JSON(MeResponse{
		ID:        user.ID,
		Email:     user.Email,
		UserType:  user.UserType,
		CreatedAt: user.CreatedAt,
	})
}

func (a *AuthController) ForgotPasswordPost(c *fiber.Ctx) error {
	payload := new(ForgotPasswordRequest)
	if err := a.bind(payload, c); err != nil {
		return a.fail(c, err)
	}

	a.dump("FORGOT PASSWORD", payload)

	result, err := a.Auther.ForgotPassword(c.UserContext(), payload.Email)
	if err != nil {
		return a.fail(c, err)
	}

	return c.JSON(result)
}

func (a *AuthController) ResetPasswordPost(c *fiber.Ctx) error {
	payload := new(ResetPasswordRequest)
	if err := a.bind(payload, c); err != nil {
		return a.fail(c, err)
	}

	a.dump("RESET PASSWORD", map[string]any{"email": payload.Email})

	if err := a.Auther.ResetPassword(c.UserContext(), payload.Email, payload.ResetCode, payload.NewPassword); err != nil {
		return a.fail(c, err)
	}

	return c.JSON(MessageResponse{Message: MessagePasswordReset})
}

func (a *AuthController) LogoutPost(c *fiber.Ctx) error {
	session, err := SessionFromFiber(c)
	if err != nil {
		return a.fail(c, err)
	}

	if err := a.Auther.Revoke(c.UserContext(), session); err != nil {
		return a.fail(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (a *AuthController) bind(payload any, c *fiber.Ctx) error {
	if err := c.BodyParser(payload); err != nil {
		a.Logger.Debug("auth payload decode error: %v", err)
		return NewValidationError(fmt.Errorf("malformed request body: %w", err))
	}
	return nil
}

func (a *AuthController) fail(c *fiber.Ctx, err error) error {
	return WriteError(c, err, a.Logger)
}

func (a *AuthController) dump(label string, payload any) {
	if !a.Debug {
		return
	}
	fmt.Printf("======= AUTH %s ======\n", label)
	fmt.Println(print.MaybePrettyJSON(payload))
	fmt.Println("=========================")
}
