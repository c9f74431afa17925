package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/expo-client-core/internal/auth"
	"github.com/nerrad567/expo-client-core/internal/fakebackend"
	"github.com/nerrad567/expo-client-core/internal/infrastructure/config"
)

type fixture struct {
	backend *fakebackend.Server
	client  *Client
	user    auth.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	backend := fakebackend.New(fakebackend.Options{})
	ts := httptest.NewServer(backend.Handler())
	t.Cleanup(ts.Close)

	c, err := New(config.APIConfig{BaseURL: ts.URL + "/api/", Timeout: 5})
	require.NoError(t, err)

	u, err := backend.AddUser(auth.User{
		Email:     "org@expo.test",
		Role:      auth.RoleOrganizer,
		FirstName: "Olga",
	}, "secret1")
	require.NoError(t, err)

	return &fixture{backend: backend, client: c, user: u}
}

func strPtr(s string) *string { return &s }

func TestNewRejectsBadBaseURL(t *testing.T) {
	for _, raw := range []string{"", "localhost:5000", "ftp://x/api", "http://"} {
		_, err := New(config.APIConfig{BaseURL: raw})
		assert.Error(t, err, raw)
	}
	c, err := New(config.APIConfig{BaseURL: "http://localhost:5000/api/"})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5000/api", c.BaseURL())
}

func TestLoginAndProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.client.Login(ctx, "org@expo.test", "secret1")
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, f.user.ID, resp.User.ID)
	assert.Equal(t, auth.RoleOrganizer, resp.User.Role)

	u, err := f.client.Profile(ctx, resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "Olga", u.FirstName)
}

func TestLoginFailureCarriesBackendMessage(t *testing.T) {
	f := newFixture(t)

	_, err := f.client.Login(context.Background(), "org@expo.test", "wrong")
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "Invalid email or password", apiErr.Message)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.False(t, IsTransport(err))
}

func TestProfileWithRejectedToken(t *testing.T) {
	f := newFixture(t)
	token, err := f.backend.IssueToken(f.user.ID, time.Hour)
	require.NoError(t, err)
	f.backend.RevokeToken(token)

	_, err = f.client.Profile(context.Background(), token)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, http.StatusUnauthorized, StatusOf(err))
}

func TestRegister(t *testing.T) {
	f := newFixture(t)

	resp, err := f.client.Register(context.Background(), Registration{
		Email:    "new@expo.test",
		Password: "secret1",
		Role:     auth.RoleExhibitor,
		Company:  "Acme",
	})
	require.NoError(t, err)
	assert.Equal(t, auth.RoleExhibitor, resp.User.Role)
	assert.Equal(t, "Acme", resp.User.Company)

	_, err = f.client.Register(context.Background(), Registration{Email: "new@expo.test", Password: "secret1"})
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "User already exists", apiErr.Message)
}

func TestUpdateProfileSendsOnlySetFields(t *testing.T) {
	f := newFixture(t)
	token, err := f.backend.IssueToken(f.user.ID, time.Hour)
	require.NoError(t, err)

	u, err := f.client.UpdateProfile(context.Background(), token, ProfileUpdate{Company: strPtr("Initech")})
	require.NoError(t, err)
	assert.Equal(t, "Initech", u.Company)
	assert.Equal(t, "Olga", u.FirstName)
	assert.Equal(t, auth.RoleOrganizer, u.Role)

	data, err := json.Marshal(ProfileUpdate{Bio: strPtr("")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"bio":""}`, string(data))
	assert.True(t, ProfileUpdate{}.IsEmpty())
}

func TestUpdateProfileAcceptsBareUser(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"u1","role":"attendee","company":"Bare"}`))
	}))
	defer ts.Close()

	c, err := New(config.APIConfig{BaseURL: ts.URL})
	require.NoError(t, err)
	u, err := c.UpdateProfile(context.Background(), "tok", ProfileUpdate{})
	require.NoError(t, err)
	assert.Equal(t, "Bare", u.Company)
}

func TestChangePasswordAndForgotPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	token, err := f.backend.IssueToken(f.user.ID, time.Hour)
	require.NoError(t, err)

	msg, err := f.client.ChangePassword(ctx, token, "secret1", "secret2")
	require.NoError(t, err)
	assert.Equal(t, "Password updated successfully", msg)

	_, err = f.client.ChangePassword(ctx, token, "secret1", "secret3")
	assert.Equal(t, http.StatusBadRequest, StatusOf(err))

	msg, err = f.client.ForgotPassword(ctx, "org@expo.test")
	require.NoError(t, err)
	assert.NotEmpty(t, msg)

	_, err = f.client.ForgotPassword(ctx, "ghost@expo.test")
	assert.Equal(t, http.StatusNotFound, StatusOf(err))
}

func TestErrorBodies(t *testing.T) {
	tests := []struct {
		name    string
		raw     bool
		body    string
		status  int
		message string
	}{
		{"error field", false, "maintenance window", http.StatusServiceUnavailable, "maintenance window"},
		{"non json body", true, "<html>oops</html>", http.StatusBadGateway, ""},
		{"empty error", false, "", http.StatusInternalServerError, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.raw {
				f.backend.FailNextRaw(http.MethodPost, "/api/users/login", tt.status, tt.body)
			} else {
				f.backend.FailNext(http.MethodPost, "/api/users/login", tt.status, tt.body)
			}

			_, err := f.client.Login(context.Background(), "org@expo.test", "secret1")
			var apiErr *Error
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.message, apiErr.Message)
		})
	}
}

func TestMessageFieldFallback(t *testing.T) {
	assert.Equal(t, "from message", errorMessage([]byte(`{"message":"from message"}`)))
	assert.Equal(t, "from error", errorMessage([]byte(`{"error":"from error","message":"ignored"}`)))
	assert.Equal(t, "", errorMessage([]byte(`not json`)))
}

func TestTransportFailure(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	base := ts.URL
	ts.Close()

	c, err := New(config.APIConfig{BaseURL: base, Timeout: 1})
	require.NoError(t, err)

	_, err = c.Login(context.Background(), "a@b.c", "x")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.True(t, IsTransport(err))
	assert.Zero(t, StatusOf(err))
}

func TestCancelledContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.client.Login(ctx, "org@expo.test", "secret1")
	assert.True(t, errors.Is(err, context.Canceled))
	assert.True(t, IsTransport(err))
}

func TestMalformedSuccessBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"token":""}`))
	}))
	defer ts.Close()

	c, err := New(config.APIConfig{BaseURL: ts.URL})
	require.NoError(t, err)
	_, err = c.Login(context.Background(), "a@b.c", "x")
	assert.ErrorIs(t, err, ErrBadResponse)
}

func TestEveryRequestHasFreshRequestID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _ = f.client.ForgotPassword(ctx, "org@expo.test")
	_, _ = f.client.ForgotPassword(ctx, "org@expo.test")

	ids := f.backend.RequestIDs()
	require.Len(t, ids, 2)
	assert.NotEmpty(t, ids[0])
	assert.NotEqual(t, ids[0], ids[1])
}
