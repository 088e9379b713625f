package auth

import (
	"context"
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
)

type FinalizePasswordResetMessage struct {
	Email    string `json:"email" example:"alice@example.com" doc:"Account email"`
	Code     string `json:"reset_code" example:"483920" doc:"Reset code"`
	Password string `json:"new_password" example:"some_secret_word" doc:"New password"`
}

func (e FinalizePasswordResetMessage) Type() string { return "user.password_reset.finalize" }

// Validate will run validation rules
func (e FinalizePasswordResetMessage) Validate() error {
	e.Email = NormalizeEmail(e.Email)
	return validation.ValidateStruct(&e,
		validation.Field(&e.Email, validation.Required, is.Email),
		validation.Field(&e.Code, validation.Required),
		validation.Field(&e.Password, passwordRules()...),
	)
}

type FinalizePasswordResetHandler struct {
	repo     RepositoryManager
	resets   *ResetCodeManager
	hasher   PasswordHasher
	activity ActivitySink
	logger   Logger
	now      func() time.Time
}

// NewFinalizePasswordResetHandler creates a handler with sane defaults.
func NewFinalizePasswordResetHandler(repo RepositoryManager, resets *ResetCodeManager, hasher PasswordHasher) *FinalizePasswordResetHandler {
	if resets == nil {
		resets = NewResetCodeManager(repo.PasswordResets())
	}
	if hasher == nil {
		hasher = NewBcryptHasher(passwordHashCost())
	}
	return &FinalizePasswordResetHandler{
		repo:     repo,
		resets:   resets,
		hasher:   hasher,
		activity: noopActivitySink{},
		logger:   defLogger{},
		now:      time.Now,
	}
}

// WithActivitySink sets the sink used to emit password reset events.
func (h *FinalizePasswordResetHandler) WithActivitySink(sink ActivitySink) *FinalizePasswordResetHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *FinalizePasswordResetHandler) WithLogger(logger Logger) *FinalizePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

// WithClock overrides the time used to check code expiry.
func (h *FinalizePasswordResetHandler) WithClock(now func() time.Time) *FinalizePasswordResetHandler {
	if now != nil {
		h.now = now
	}
	return h
}

func (h *FinalizePasswordResetHandler) Execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset finalization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *FinalizePasswordResetHandler) execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	if err := event.Validate(); err != nil {
		return NewValidationError(err)
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	email := NormalizeEmail(event.Email)

	passwordHash, err := h.hasher.Hash(event.Password)
	if err != nil {
		if errors.Is(err, ErrEmptyPassword) {
			return NewValidationError(err)
		}
		return wrapInternal(err, "failed to hash new password")
	}

	var user *User

	// consuming the code and storing the new hash commit together, a failed
	// update leaves the code usable
	err = h.repo.RunInTx(ctx, func(ctx context.Context, tx RepositoryManager) error {
		user, err = tx.Users().FindByEmail(ctx, email)
		if err != nil {
			if IsUserNotFound(err) {
				return ErrInvalidOrExpiredCode
			}
			return wrapInternal(err, "could not retrieve user for password reset")
		}

		if err := h.resets.WithStore(tx.PasswordResets()).Consume(ctx, email, event.Code, h.now()); err != nil {
			return err
		}

		if err := tx.Users().UpdatePasswordHash(ctx, user.ID, passwordHash); err != nil {
			return wrapInternal(err, "failed to update user password in database")
		}

		return nil
	})

	if err != nil {
		if IsInvalidOrExpiredCode(err) {
			recordActivity(ctx, h.activity, h.logger, ActivityEvent{
				EventType: ActivityEventPasswordResetRejected,
				Actor:     ActorRef{Type: "anonymous"},
			})
			return ErrInvalidOrExpiredCode
		}

		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return wrapInternal(err, "failed to finalize password reset")
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventPasswordResetSuccess,
		Actor:     userActor(user),
		UserID:    user.ID.String(),
	})

	return nil
}
