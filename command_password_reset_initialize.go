package auth

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
)

type InitializePasswordResetMessage struct {
	Email      string `json:"email" example:"alice@example.com" doc:"Account email."`
	OnResponse func(resp *InitializePasswordResetResponse)
}

func (p InitializePasswordResetMessage) Type() string { return "user.password_reset" }

// Validate will run validation rules
func (p InitializePasswordResetMessage) Validate() error {
	p.Email = NormalizeEmail(p.Email)
	return validation.ValidateStruct(&p,
		validation.Field(&p.Email, validation.Required, is.Email),
	)
}

// InitializePasswordResetResponse reports the outcome. Issued is false when
// the email has no account, in which case Code is empty.
type InitializePasswordResetResponse struct {
	Email     string
	Code      string
	ExpiresAt time.Time
	Issued    bool
}

type InitializePasswordResetHandler struct {
	repo      RepositoryManager
	resets    *ResetCodeManager
	deliverer CodeDeliverer
	activity  ActivitySink
	logger    Logger
}

// NewInitializePasswordResetHandler creates a handler with sane defaults.
func NewInitializePasswordResetHandler(repo RepositoryManager, resets *ResetCodeManager) *InitializePasswordResetHandler {
	if resets == nil {
		resets = NewResetCodeManager(repo.PasswordResets())
	}
	return &InitializePasswordResetHandler{
		repo:      repo,
		resets:    resets,
		deliverer: noopDeliverer{},
		activity:  noopActivitySink{},
		logger:    defLogger{},
	}
}

// WithCodeDeliverer sets how reset codes reach the account owner.
func (h *InitializePasswordResetHandler) WithCodeDeliverer(deliverer CodeDeliverer) *InitializePasswordResetHandler {
	if deliverer != nil {
		h.deliverer = deliverer
	}
	return h
}

// WithActivitySink sets the sink used to emit password reset events.
func (h *InitializePasswordResetHandler) WithActivitySink(sink ActivitySink) *InitializePasswordResetHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *InitializePasswordResetHandler) WithLogger(logger Logger) *InitializePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *InitializePasswordResetHandler) Execute(ctx context.Context, event InitializePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializePasswordResetHandler) execute(ctx context.Context, event InitializePasswordResetMessage) error {
	if err := event.Validate(); err != nil {
		return NewValidationError(err)
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	email := NormalizeEmail(event.Email)
	resp := &InitializePasswordResetResponse{Email: email}
	var user *User

	err := h.repo.RunInTx(ctx, func(ctx context.Context, tx RepositoryManager) error {
		var err error
		user, err = tx.Users().FindByEmail(ctx, email)
		if err != nil {
			if IsUserNotFound(err) {
				return nil
			}
			return wrapInternal(err, "failed to retrieve user for password reset")
		}

		code, expiresAt, err := h.resets.WithStore(tx.PasswordResets()).CreateRequest(ctx, email)
		if err != nil {
			return err
		}

		resp.Code = code
		resp.ExpiresAt = expiresAt
		resp.Issued = true
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return wrapInternal(err, "failed to initialize password reset")
	}

	if resp.Issued {
		if err := h.deliverer.Deliver(ctx, email, resp.Code); err != nil {
			h.logger.Error("failed to deliver password reset code to user %s: %v", user.ID, err)
			return wrapInternal(err, "failed to deliver password reset code")
		}

		recordActivity(ctx, h.activity, h.logger, ActivityEvent{
			EventType: ActivityEventPasswordResetRequest,
			Actor:     userActor(user),
			UserID:    user.ID.String(),
			Metadata: map[string]any{
				"expires_at": resp.ExpiresAt,
			},
		})
	}

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
