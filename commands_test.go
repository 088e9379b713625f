package auth_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	auth "github.com/trialbridge/go-auth"
	"github.com/trialbridge/go-auth/memstore"
	"github.com/trialbridge/go-auth/notify"
)

func TestCommandMessagesValidate(t *testing.T) {
	long := strings.Repeat("x", 73)

	tests := []struct {
		name    string
		msg     interface{ Validate() error }
		wantErr bool
	}{
		{name: "register ok", msg: auth.RegisterUserMessage{Email: "A@x.com", Password: "pw", UserType: auth.UserTypePatient}},
		{name: "register bad email", msg: auth.RegisterUserMessage{Email: "nope", Password: "pw", UserType: auth.UserTypePatient}, wantErr: true},
		{name: "register no password", msg: auth.RegisterUserMessage{Email: "a@x.com", UserType: auth.UserTypePatient}, wantErr: true},
		{name: "register long password", msg: auth.RegisterUserMessage{Email: "a@x.com", Password: long, UserType: auth.UserTypePatient}, wantErr: true},
		{name: "register bad type", msg: auth.RegisterUserMessage{Email: "a@x.com", Password: "pw", UserType: "admin"}, wantErr: true},
		{name: "initialize ok", msg: auth.InitializePasswordResetMessage{Email: " a@x.com "}},
		{name: "initialize empty", msg: auth.InitializePasswordResetMessage{}, wantErr: true},
		{name: "finalize ok", msg: auth.FinalizePasswordResetMessage{Email: "a@x.com", Code: "123456", Password: "pw"}},
		{name: "finalize no code", msg: auth.FinalizePasswordResetMessage{Email: "a@x.com", Password: "pw"}, wantErr: true},
		{name: "finalize no password", msg: auth.FinalizePasswordResetMessage{Email: "a@x.com", Code: "123456"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestCommandHandlersRecoveryFlow(t *testing.T) {
	ctx := context.Background()
	repo := memstore.New()
	hasher := auth.NewBcryptHasher(bcrypt.MinCost)
	sink := &capturingSink{}
	recorder := &notify.Recorder{}

	var registered *auth.User
	err := auth.NewRegisterUserHandler(repo, hasher).
		WithActivitySink(sink).
		WithLogger(nopLogger{}).
		Execute(ctx, auth.RegisterUserMessage{
			Email:      "Alice@X.com",
			Password:   "pw123",
			UserType:   auth.UserTypeResearcher,
			OnResponse: func(user *auth.User) { registered = user },
		})
	require.NoError(t, err)
	require.NotNil(t, registered)
	assert.Equal(t, "alice@x.com", registered.Email)

	resets := auth.NewResetCodeManager(repo.PasswordResets())

	var resp *auth.InitializePasswordResetResponse
	err = auth.NewInitializePasswordResetHandler(repo, resets).
		WithCodeDeliverer(recorder).
		WithActivitySink(sink).
		WithLogger(nopLogger{}).
		Execute(ctx, auth.InitializePasswordResetMessage{
			Email:      "alice@x.com",
			OnResponse: func(r *auth.InitializePasswordResetResponse) { resp = r },
		})
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.True(t, resp.Issued)
	assert.WithinDuration(t, time.Now().Add(auth.DefaultResetCodeTTL), resp.ExpiresAt, time.Minute)

	code, ok := recorder.Last("alice@x.com")
	require.True(t, ok)
	assert.Equal(t, resp.Code, code)

	err = auth.NewFinalizePasswordResetHandler(repo, resets, hasher).
		WithActivitySink(sink).
		WithLogger(nopLogger{}).
		Execute(ctx, auth.FinalizePasswordResetMessage{Email: "alice@x.com", Code: code, Password: "newpw"})
	require.NoError(t, err)

	user, err := repo.Users().FindByEmail(ctx, "alice@x.com")
	require.NoError(t, err)
	ok, err = hasher.Verify("newpw", user.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, []auth.ActivityEventType{
		auth.ActivityEventRegister,
		auth.ActivityEventPasswordResetRequest,
		auth.ActivityEventPasswordResetSuccess,
	}, sink.types())
}

func TestInitializePasswordResetUnknownEmail(t *testing.T) {
	repo := memstore.New()
	recorder := &notify.Recorder{}

	var resp *auth.InitializePasswordResetResponse
	err := auth.NewInitializePasswordResetHandler(repo, nil).
		WithCodeDeliverer(recorder).
		WithLogger(nopLogger{}).
		Execute(context.Background(), auth.InitializePasswordResetMessage{
			Email:      "ghost@x.com",
			OnResponse: func(r *auth.InitializePasswordResetResponse) { resp = r },
		})
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.False(t, resp.Issued)
	assert.Empty(t, resp.Code)
	assert.Empty(t, recorder.Deliveries())

	_, err = repo.PasswordResets().Get(context.Background(), "ghost@x.com")
	assert.ErrorIs(t, err, auth.ErrResetNotFound)
}

func TestCommandHandlersCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	repo := memstore.New()

	err := auth.NewRegisterUserHandler(repo, nil).Execute(ctx, auth.RegisterUserMessage{
		Email: "a@x.com", Password: "pw", UserType: auth.UserTypePatient,
	})
	assert.Error(t, err)

	err = auth.NewInitializePasswordResetHandler(repo, nil).Execute(ctx, auth.InitializePasswordResetMessage{Email: "a@x.com"})
	assert.Error(t, err)

	err = auth.NewFinalizePasswordResetHandler(repo, nil, nil).Execute(ctx, auth.FinalizePasswordResetMessage{
		Email: "a@x.com", Code: "123456", Password: "pw",
	})
	assert.Error(t, err)
	assert.Zero(t, repo.Users().(*memstore.Users).Len())
}
