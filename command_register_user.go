package auth

import (
	"context"
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
)

// maxPasswordBytes is the longest input bcrypt accepts.
const maxPasswordBytes = 72

type RegisterUserMessage struct {
	Email      string   `json:"email"`
	Password   string   `json:"password"`
	UserType   UserType `json:"user_type"`
	OnResponse func(user *User)
}

func (e RegisterUserMessage) Type() string { return "user.register" }

// Validate will run validation rules
func (e RegisterUserMessage) Validate() error {
	e.Email = NormalizeEmail(e.Email)
	return validation.ValidateStruct(&e,
		validation.Field(&e.Email, validation.Required, is.Email),
		validation.Field(&e.Password, passwordRules()...),
		validation.Field(&e.UserType, validation.Required, validation.In(UserTypePatient, UserTypeResearcher)),
	)
}

type RegisterUserHandler struct {
	repo     RepositoryManager
	hasher   PasswordHasher
	activity ActivitySink
	logger   Logger
}

// NewRegisterUserHandler creates a handler with sane defaults.
func NewRegisterUserHandler(repo RepositoryManager, hasher PasswordHasher) *RegisterUserHandler {
	if hasher == nil {
		hasher = NewBcryptHasher(passwordHashCost())
	}
	return &RegisterUserHandler{
		repo:     repo,
		hasher:   hasher,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithActivitySink sets the sink used to emit registration events.
func (h *RegisterUserHandler) WithActivitySink(sink ActivitySink) *RegisterUserHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *RegisterUserHandler) WithLogger(logger Logger) *RegisterUserHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) error {
	if err := event.Validate(); err != nil {
		return NewValidationError(err)
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	// hashing is slow on purpose, keep it out of the transaction
	hash, err := h.hasher.Hash(event.Password)
	if err != nil {
		if errors.Is(err, ErrEmptyPassword) {
			return NewValidationError(err)
		}
		return wrapInternal(err, "failed to hash password")
	}

	user := &User{
		Email:        NormalizeEmail(event.Email),
		PasswordHash: hash,
		UserType:     event.UserType,
	}

	err = h.repo.RunInTx(ctx, func(ctx context.Context, tx RepositoryManager) error {
		created, err := tx.Users().Create(ctx, user)
		if err != nil {
			return err
		}
		user = created
		return nil
	})

	if err != nil {
		if IsDuplicateEmail(err) {
			return ErrDuplicateEmail
		}
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) && richErr.Category != goerrors.CategoryInternal {
			return richErr
		}
		return wrapInternal(err, "user registration transaction failed")
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventRegister,
		Actor:     userActor(user),
		UserID:    user.ID.String(),
		Metadata: map[string]any{
			"user_type": string(user.UserType),
		},
	})

	if event.OnResponse != nil {
		event.OnResponse(user)
	}

	return nil
}

func passwordRules() []validation.Rule {
	return []validation.Rule{
		validation.Required,
		validation.By(func(value any) error {
			s, _ := value.(string)
			if len(s) > maxPasswordBytes {
				return errors.New("must be at most 72 bytes long")
			}
			return nil
		}),
	}
}
