package auth

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/google/uuid"
)

const (
	MessageResetRequested = "If the email exists, a reset code has been sent"
	MessageResetCodeSent  = "Reset code sent to email"
	MessagePasswordReset  = "Password reset successfully"
)

// AuthResult is returned by Register and Login.
type AuthResult struct {
	Token     string    `json:"token"`
	UserID    uuid.UUID `json:"user_id"`
	UserType  UserType  `json:"user_type"`
	ExpiresAt time.Time `json:"-"`
}

// ForgotPasswordResult is returned by ForgotPassword. ResetCode is only set
// when the service runs with reset code exposure enabled.
type ForgotPasswordResult struct {
	Message   string `json:"message"`
	ResetCode string `json:"reset_code,omitempty"`
}

type LoginMessage struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate will run validation rules
func (m LoginMessage) Validate() error {
	m.Email = NormalizeEmail(m.Email)
	return validation.ValidateStruct(&m,
		validation.Field(&m.Email, validation.Required, is.Email),
		validation.Field(&m.Password, validation.Required),
	)
}

// Auther implements registration, login, session resolution and password
// recovery on top of a RepositoryManager.
type Auther struct {
	repo            RepositoryManager
	hasher          PasswordHasher
	tokenService    TokenService
	resets          *ResetCodeManager
	deliverer       CodeDeliverer
	activitySink    ActivitySink
	logger          Logger
	metrics         *Metrics
	exposeResetCode bool
	now             func() time.Time
	dummy           string
}

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(repo RepositoryManager, opts Config) *Auther {
	tokenService := NewTokenService(
		[]byte(opts.GetSigningKey()),
		opts.GetTokenExpiration(),
		opts.GetIssuer(),
		opts.GetAudience(),
		defLogger{},
	)

	hasher := NewPasswordHasher(opts.GetPasswordHasher(), opts.GetBcryptCost())

	return &Auther{
		repo:         repo,
		hasher:       hasher,
		tokenService: tokenService,
		resets: NewResetCodeManager(repo.PasswordResets(),
			WithResetCodeTTL(opts.GetResetCodeTTL()),
			WithResetCodeLength(opts.GetResetCodeLength()),
		),
		deliverer:       noopDeliverer{},
		activitySink:    noopActivitySink{},
		logger:          defLogger{},
		exposeResetCode: opts.GetExposeResetCode(),
		now:             time.Now,
		dummy:           newDummyHash(hasher),
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	if logger == nil {
		return s
	}
	s.logger = logger
	if ts, ok := s.tokenService.(*JWTTokenService); ok {
		ts.logger = logger
	}
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

// WithPasswordHasher replaces the configured password hasher.
func (s *Auther) WithPasswordHasher(hasher PasswordHasher) *Auther {
	if hasher != nil {
		s.hasher = hasher
		s.dummy = newDummyHash(hasher)
	}
	return s
}

// WithTokenService replaces the token issuer and validator.
func (s *Auther) WithTokenService(ts TokenService) *Auther {
	if ts != nil {
		s.tokenService = ts
	}
	return s
}

// WithResetCodeManager replaces the reset code manager.
func (s *Auther) WithResetCodeManager(m *ResetCodeManager) *Auther {
	if m != nil {
		s.resets = m
	}
	return s
}

// WithCodeDeliverer sets how reset codes reach the account owner.
func (s *Auther) WithCodeDeliverer(deliverer CodeDeliverer) *Auther {
	if deliverer != nil {
		s.deliverer = deliverer
	}
	return s
}

// WithMetrics enables Prometheus instrumentation.
func (s *Auther) WithMetrics(m *Metrics) *Auther {
	s.metrics = m
	return s
}

// WithClock overrides the time used to issue and check reset codes.
func (s *Auther) WithClock(now func() time.Time) *Auther {
	if now != nil {
		s.now = now
		s.resets = s.resets.withClock(now)
	}
	return s
}

// TokenService returns the TokenService instance used by this Authenticator
func (s *Auther) TokenService() TokenService {
	return s.tokenService
}

// ResetCodes returns the reset code manager.
func (s *Auther) ResetCodes() *ResetCodeManager {
	return s.resets
}

// Register creates a user and signs them in.
func (s *Auther) Register(ctx context.Context, email, password string, userType UserType) (result *AuthResult, err error) {
	started := time.Now()
	defer func() { s.metrics.observe("register", started, err) }()

	var user *User
	handler := NewRegisterUserHandler(s.repo, s.hasher).
		WithActivitySink(s.activitySink).
		WithLogger(s.logger)

	err = handler.Execute(ctx, RegisterUserMessage{
		Email:      email,
		Password:   password,
		UserType:   userType,
		OnResponse: func(u *User) { user = u },
	})
	if err != nil {
		return nil, err
	}

	return s.issue(user)
}

// Login verifies credentials. Unknown emails and wrong passwords produce the
// same ErrInvalidCredentials.
func (s *Auther) Login(ctx context.Context, email, password string) (result *AuthResult, err error) {
	started := time.Now()
	defer func() { s.metrics.observe("login", started, err) }()

	msg := LoginMessage{Email: email, Password: password}
	if err := msg.Validate(); err != nil {
		return nil, NewValidationError(err)
	}

	user, err := s.repo.Users().FindByEmail(ctx, email)
	if err != nil {
		if !IsUserNotFound(err) {
			return nil, wrapInternal(err, "failed to retrieve user for login")
		}
		// same work as a real check
		_, _ = s.hasher.Verify(password, s.dummy)
		s.loginFailed(ctx, nil, "unknown_email")
		return nil, ErrInvalidCredentials
	}

	ok, verr := s.hasher.Verify(password, user.PasswordHash)
	if verr != nil {
		s.logger.Error("login could not verify stored hash for user %s: %v", user.ID, verr)
		return nil, wrapInternal(verr, "failed to verify stored password hash")
	}
	if !ok {
		s.loginFailed(ctx, user, "password_mismatch")
		return nil, ErrInvalidCredentials
	}

	result, err = s.issue(user)
	if err != nil {
		return nil, err
	}

	recordActivity(ctx, s.activitySink, s.logger, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		Actor:     userActor(user),
		UserID:    user.ID.String(),
	})

	return result, nil
}

// Resolve validates a bearer token and returns its session. Revoked tokens
// are rejected.
func (s *Auther) Resolve(ctx context.Context, token string) (session *Session, err error) {
	started := time.Now()
	defer func() { s.metrics.observe("resolve", started, err) }()

	claims, err := s.tokenService.Validate(token)
	if err != nil {
		return nil, err
	}

	if tokenID := claims.TokenID(); tokenID != "" {
		revoked, err := s.repo.Revocations().IsRevoked(ctx, tokenID)
		if err != nil {
			return nil, wrapInternal(err, "failed to check token revocation")
		}
		if revoked {
			return nil, ErrTokenRevoked
		}
	}

	return sessionFromClaims(claims)
}

// SessionFromToken is Resolve without a caller context.
func (s *Auther) SessionFromToken(token string) (*Session, error) {
	return s.Resolve(context.Background(), token)
}

// WhoAmI returns the user behind token.
func (s *Auther) WhoAmI(ctx context.Context, token string) (*User, error) {
	session, err := s.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}

	return s.CurrentUser(ctx, session)
}

// CurrentUser loads the user for an already resolved session.
func (s *Auther) CurrentUser(ctx context.Context, session *Session) (user *User, err error) {
	started := time.Now()
	defer func() { s.metrics.observe("whoami", started, err) }()

	if session == nil {
		return nil, ErrMissingToken
	}

	user, err = s.repo.Users().FindByID(ctx, session.UserID)
	if err != nil {
		if IsUserNotFound(err) {
			return nil, ErrInvalidToken
		}
		return nil, wrapInternal(err, "failed to retrieve current user")
	}

	return user, nil
}

// Logout revokes token until its natural expiry.
func (s *Auther) Logout(ctx context.Context, token string) error {
	session, err := s.Resolve(ctx, token)
	if err != nil {
		return err
	}

	return s.Revoke(ctx, session)
}

// Revoke adds the session token to the deny-list.
func (s *Auther) Revoke(ctx context.Context, session *Session) (err error) {
	started := time.Now()
	defer func() { s.metrics.observe("logout", started, err) }()

	if session == nil || session.TokenID == "" {
		return ErrInvalidToken
	}

	err = s.repo.Revocations().Revoke(ctx, &RevokedToken{
		TokenID:   session.TokenID,
		UserID:    session.UserID,
		ExpiresAt: session.ExpiresAt.UTC(),
		RevokedAt: time.Now().UTC(),
	})
	if err != nil {
		return wrapInternal(err, "failed to revoke token")
	}

	recordActivity(ctx, s.activitySink, s.logger, ActivityEvent{
		EventType: ActivityEventLogout,
		Actor:     ActorRef{ID: session.UserID.String(), Type: string(session.UserType)},
		UserID:    session.UserID.String(),
	})

	return nil
}

// ForgotPassword starts a reset for email. Unknown emails get the same
// generic answer and no request is stored.
func (s *Auther) ForgotPassword(ctx context.Context, email string) (result *ForgotPasswordResult, err error) {
	started := time.Now()
	defer func() { s.metrics.observe("forgot_password", started, err) }()

	var resp *InitializePasswordResetResponse
	handler := NewInitializePasswordResetHandler(s.repo, s.resets).
		WithCodeDeliverer(s.deliverer).
		WithActivitySink(s.activitySink).
		WithLogger(s.logger)

	err = handler.Execute(ctx, InitializePasswordResetMessage{
		Email:      email,
		OnResponse: func(r *InitializePasswordResetResponse) { resp = r },
	})
	if err != nil {
		return nil, err
	}

	result = &ForgotPasswordResult{Message: MessageResetRequested}
	if s.exposeResetCode && resp != nil && resp.Issued {
		result.Message = MessageResetCodeSent
		result.ResetCode = resp.Code
	}

	return result, nil
}

// ResetPassword consumes code and sets a new password. It does not require
// the old password.
func (s *Auther) ResetPassword(ctx context.Context, email, code, newPassword string) (err error) {
	started := time.Now()
	defer func() { s.metrics.observe("reset_password", started, err) }()

	handler := NewFinalizePasswordResetHandler(s.repo, s.resets, s.hasher).
		WithActivitySink(s.activitySink).
		WithLogger(s.logger).
		WithClock(s.now)

	return handler.Execute(ctx, FinalizePasswordResetMessage{
		Email:    email,
		Code:     code,
		Password: newPassword,
	})
}

func (s *Auther) issue(user *User) (*AuthResult, error) {
	token, claims, err := s.tokenService.Issue(user)
	if err != nil {
		return nil, wrapInternal(err, "failed to issue session token")
	}

	return &AuthResult{
		Token:     token,
		UserID:    user.ID,
		UserType:  user.UserType,
		ExpiresAt: claims.Expires(),
	}, nil
}

func (s *Auther) loginFailed(ctx context.Context, user *User, reason string) {
	event := ActivityEvent{
		EventType: ActivityEventLoginFailure,
		Actor:     ActorRef{Type: "unknown"},
		Metadata:  map[string]any{"reason": reason},
	}
	if user != nil {
		event.Actor = userActor(user)
		event.UserID = user.ID.String()
	}
	recordActivity(ctx, s.activitySink, s.logger, event)
}
