package auth_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/trialbridge/go-auth"
)

type apiClient struct {
	t   *testing.T
	app *fiber.App
}

func newAPI(t *testing.T, expose bool) (*apiClient, *testService) {
	t.Helper()
	svc := newTestService(t, nil, expose)

	app := fiber.New(fiber.Config{ErrorHandler: auth.ErrorHandler(nopLogger{})})
	auth.RegisterAuthRoutes(app.Group("/api/auth"), svc.auther, auth.WithControllerLogger(nopLogger{}))

	return &apiClient{t: t, app: app}, svc
}

func (a *apiClient) do(method, path, token string, payload any) (*http.Response, []byte) {
	a.t.Helper()

	var body io.Reader
	switch p := payload.(type) {
	case nil:
	case string:
		body = strings.NewReader(p)
	default:
		raw, err := json.Marshal(p)
		require.NoError(a.t, err)
		body = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}

	resp, err := a.app.Test(req)
	require.NoError(a.t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(a.t, err)
	return resp, raw
}

func (a *apiClient) decode(raw []byte, out any) {
	a.t.Helper()
	require.NoError(a.t, json.Unmarshal(raw, out), string(raw))
}

func TestAuthRoutesHappyPath(t *testing.T) {
	api, _ := newAPI(t, true)

	resp, raw := api.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":     "alice@x.com",
		"password":  "pw123",
		"user_type": "patient",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

	var registered map[string]any
	api.decode(raw, &registered)
	token, _ := registered["token"].(string)
	require.NotEmpty(t, token)
	assert.Equal(t, "patient", registered["user_type"])
	assert.NotEmpty(t, registered["user_id"])

	resp, raw = api.do(http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

	var me auth.MeResponse
	api.decode(raw, &me)
	assert.Equal(t, "alice@x.com", me.Email)
	assert.Equal(t, auth.UserTypePatient, me.UserType)
	assert.NotContains(t, string(raw), "password")

	resp, raw = api.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "ALICE@x.com",
		"password": "pw123",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

	resp, raw = api.do(http.MethodPost, "/api/auth/forgot-password", "", map[string]string{"email": "alice@x.com"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

	var forgot auth.ForgotPasswordResult
	api.decode(raw, &forgot)
	assert.Equal(t, auth.MessageResetCodeSent, forgot.Message)
	require.Len(t, forgot.ResetCode, auth.DefaultResetCodeLength)

	resp, raw = api.do(http.MethodPost, "/api/auth/reset-password", "", map[string]string{
		"email":        "alice@x.com",
		"reset_code":   forgot.ResetCode,
		"new_password": "newpw",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

	var msg auth.MessageResponse
	api.decode(raw, &msg)
	assert.Equal(t, auth.MessagePasswordReset, msg.Message)

	resp, raw = api.do(http.MethodPost, "/api/auth/reset-password", "", map[string]string{
		"email":        "alice@x.com",
		"reset_code":   forgot.ResetCode,
		"new_password": "again",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var failure auth.ErrorResponse
	api.decode(raw, &failure)
	assert.Equal(t, auth.TextCodeInvalidOrExpiredCode, failure.Code)

	resp, _ = api.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "alice@x.com",
		"password": "newpw",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = api.do(http.MethodPost, "/api/auth/logout", token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, raw = api.do(http.MethodGet, "/api/auth/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	api.decode(raw, &failure)
	assert.Equal(t, auth.TextCodeTokenRevoked, failure.Code)
}

func TestAuthRoutesErrors(t *testing.T) {
	api, _ := newAPI(t, false)

	resp, _ := api.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "bob@x.com", "password": "pw", "user_type": "Researcher",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	tests := []struct {
		name    string
		method  string
		path    string
		token   string
		payload any
		status  int
		code    string
	}{
		{
			name:    "duplicate email",
			method:  http.MethodPost,
			path:    "/api/auth/register",
			payload: map[string]string{"email": "BOB@x.com", "password": "pw", "user_type": "patient"},
			status:  http.StatusConflict,
			code:    auth.TextCodeDuplicateEmail,
		},
		{
			name:    "unknown user type",
			method:  http.MethodPost,
			path:    "/api/auth/register",
			payload: map[string]string{"email": "carol@x.com", "password": "pw", "user_type": "admin"},
			status:  http.StatusBadRequest,
			code:    auth.TextCodeValidation,
		},
		{
			name:    "malformed json",
			method:  http.MethodPost,
			path:    "/api/auth/login",
			payload: `{"email":`,
			status:  http.StatusBadRequest,
			code:    auth.TextCodeValidation,
		},
		{
			name:    "wrong password",
			method:  http.MethodPost,
			path:    "/api/auth/login",
			payload: map[string]string{"email": "bob@x.com", "password": "nope"},
			status:  http.StatusUnauthorized,
			code:    auth.TextCodeInvalidCredentials,
		},
		{
			name:    "unknown email",
			method:  http.MethodPost,
			path:    "/api/auth/login",
			payload: map[string]string{"email": "ghost@x.com", "password": "nope"},
			status:  http.StatusUnauthorized,
			code:    auth.TextCodeInvalidCredentials,
		},
		{
			name:   "me without token",
			method: http.MethodGet,
			path:   "/api/auth/me",
			status: http.StatusUnauthorized,
			code:   auth.TextCodeMissingToken,
		},
		{
			name:   "me with garbage token",
			method: http.MethodGet,
			path:   "/api/auth/me",
			token:  "garbage",
			status: http.StatusUnauthorized,
			code:   auth.TextCodeInvalidToken,
		},
		{
			name:   "logout without token",
			method: http.MethodPost,
			path:   "/api/auth/logout",
			status: http.StatusUnauthorized,
			code:   auth.TextCodeMissingToken,
		},
		{
			name:    "reset with bad code",
			method:  http.MethodPost,
			path:    "/api/auth/reset-password",
			payload: map[string]string{"email": "bob@x.com", "reset_code": "000000", "new_password": "x"},
			status:  http.StatusBadRequest,
			code:    auth.TextCodeInvalidOrExpiredCode,
		},
		{
			name:    "reset missing fields",
			method:  http.MethodPost,
			path:    "/api/auth/reset-password",
			payload: map[string]string{"email": "bob@x.com"},
			status:  http.StatusBadRequest,
			code:    auth.TextCodeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, raw := api.do(tt.method, tt.path, tt.token, tt.payload)
			assert.Equal(t, tt.status, resp.StatusCode, string(raw))

			var body auth.ErrorResponse
			api.decode(raw, &body)
			assert.Equal(t, tt.code, body.Code)
			assert.NotEmpty(t, body.Detail)
		})
	}
}

func TestAuthRoutesLoginFailuresAreIndistinguishable(t *testing.T) {
	api, _ := newAPI(t, false)

	resp, _ := api.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "bob@x.com", "password": "pw", "user_type": "patient",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	wrongResp, wrongBody := api.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "bob@x.com", "password": "nope"})
	unknownResp, unknownBody := api.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ghost@x.com", "password": "nope"})

	assert.Equal(t, wrongResp.StatusCode, unknownResp.StatusCode)
	assert.JSONEq(t, string(wrongBody), string(unknownBody))
}

func TestForgotPasswordRouteHidesCodeByDefault(t *testing.T) {
	api, svc := newAPI(t, false)

	resp, _ := api.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "bob@x.com", "password": "pw", "user_type": "patient",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, known := api.do(http.MethodPost, "/api/auth/forgot-password", "", map[string]string{"email": "bob@x.com"})
	_, unknown := api.do(http.MethodPost, "/api/auth/forgot-password", "", map[string]string{"email": "ghost@x.com"})

	assert.JSONEq(t, string(known), string(unknown))

	code := svc.deliverer.last("bob@x.com")
	require.NotEmpty(t, code)
	assert.NotContains(t, string(known), code)
}

func TestResetPasswordRoutesWireFormat(t *testing.T) {
	api, _ := newAPI(t, true)

	resp, raw := api.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "carol@x.com", "password": "old-pw", "user_type": "researcher",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

	resp, raw = api.do(http.MethodPost, "/api/auth/forgot-password", "", map[string]string{"email": "carol@x.com"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

	var forgot map[string]any
	api.decode(raw, &forgot)
	assert.Equal(t, auth.MessageResetCodeSent, forgot["message"])
	code, _ := forgot["reset_code"].(string)
	require.Regexp(t, `^[0-9]{6}$`, code)

	reset := map[string]string{
		"email":        "carol@x.com",
		"reset_code":   code,
		"new_password": "new-pw",
	}

	resp, raw = api.do(http.MethodPost, "/api/auth/reset-password", "", reset)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	assert.JSONEq(t, `{"message":"`+auth.MessagePasswordReset+`"}`, string(raw))

	resp, raw = api.do(http.MethodPost, "/api/auth/reset-password", "", reset)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.JSONEq(t, `{"detail":"Invalid or expired reset code","code":"INVALID_OR_EXPIRED_CODE"}`, string(raw))

	resp, _ = api.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "carol@x.com", "password": "old-pw",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = api.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "carol@x.com", "password": "new-pw",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNewAuthControllerRequiresService(t *testing.T) {
	assert.Panics(t, func() {
		auth.NewAuthController(nil)
	})

	svc := newTestService(t, nil, false)
	controller := auth.NewAuthController(svc.auther, auth.WithControllerRoutes(&auth.AuthControllerRoutes{
		Register:       "/signup",
		Login:          "/signin",
		Me:             "/whoami",
		ForgotPassword: "/forgot",
		ResetPassword:  "/reset",
		Logout:         "/signout",
	}), auth.WithControllerDebug(true))

	assert.Equal(t, "/signup", controller.Routes.Register)
	assert.True(t, controller.Debug)
}
