package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/expo-client-core/internal/auth"
	"github.com/nerrad567/expo-client-core/internal/infrastructure/config"
	"github.com/nerrad567/expo-client-core/internal/infrastructure/logging"
)

const (
	defaultTimeout = 15 * time.Second

	// maxResponseSize caps how much of a response body is read.
	maxResponseSize = 1 << 20
)

// Endpoint paths relative to the base URL.
const (
	PathProfile        = "/users/profile"
	PathLogin          = "/users/login"
	PathRegister       = "/users/register"
	PathChangePassword = "/users/change-password"
	PathForgotPassword = "/users/forgot-password"
)

// Client calls the expo REST API. It holds no credentials: authenticated
// methods take the bearer token explicitly, so one Client can serve any
// number of sessions concurrently.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *logging.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default *http.Client (its Timeout is kept).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(l *logging.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Client for cfg.BaseURL.
func New(cfg config.APIConfig, opts ...Option) (*Client, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("apiclient: invalid base URL %q", cfg.BaseURL)
	}

	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	c := &Client{
		baseURL: strings.TrimRight(u.String(), "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "apiclient")
	return c, nil
}

// BaseURL returns the API root the client was built with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Profile fetches the user the token belongs to.
func (c *Client) Profile(ctx context.Context, token string) (*auth.User, error) {
	var u auth.User
	if err := c.do(ctx, http.MethodGet, PathProfile, token, nil, &u); err != nil {
		return nil, err
	}
	if u.ID == "" {
		return nil, fmt.Errorf("%w: profile has no id", ErrBadResponse)
	}
	return &u, nil
}

// Login exchanges credentials for a token and user.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	var resp AuthResponse
	if err := c.do(ctx, http.MethodPost, PathLogin, "", loginRequest{Email: email, Password: password}, &resp); err != nil {
		return nil, err
	}
	return checkAuthResponse(&resp)
}

// Register creates an account and returns its token and user.
func (c *Client) Register(ctx context.Context, reg Registration) (*AuthResponse, error) {
	var resp AuthResponse
	if err := c.do(ctx, http.MethodPost, PathRegister, "", reg, &resp); err != nil {
		return nil, err
	}
	return checkAuthResponse(&resp)
}

// UpdateProfile sends a partial profile and returns the updated user.
// The backend answers {"user": {...}}; a bare user object is also accepted.
func (c *Client) UpdateProfile(ctx context.Context, token string, upd ProfileUpdate) (*auth.User, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPut, PathProfile, token, upd, &raw); err != nil {
		return nil, err
	}

	var wrapped struct {
		User *auth.User `json:"user"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.User != nil {
		return wrapped.User, nil
	}
	var bare auth.User
	if err := json.Unmarshal(raw, &bare); err != nil || bare.ID == "" {
		return nil, fmt.Errorf("%w: profile update has no user", ErrBadResponse)
	}
	return &bare, nil
}

// ChangePassword changes the password of the token's user and returns the
// backend's confirmation text, if any.
func (c *Client) ChangePassword(ctx context.Context, token, current, next string) (string, error) {
	var resp messageResponse
	req := changePasswordRequest{CurrentPassword: current, NewPassword: next}
	if err := c.do(ctx, http.MethodPut, PathChangePassword, token, req, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

// ForgotPassword asks the backend to email a reset link.
func (c *Client) ForgotPassword(ctx context.Context, email string) (string, error) {
	var resp messageResponse
	if err := c.do(ctx, http.MethodPost, PathForgotPassword, "", forgotPasswordRequest{Email: email}, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

func checkAuthResponse(resp *AuthResponse) (*AuthResponse, error) {
	if resp.Token == "" || resp.User == nil || resp.User.ID == "" {
		return nil, fmt.Errorf("%w: missing token or user", ErrBadResponse)
	}
	return resp, nil
}

// do performs one round trip. out may be nil; a 2xx with an empty body
// leaves it untouched.
func (c *Client) do(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("apiclient: encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("apiclient: building request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("request failed",
			"method", method, "path", path, "request_id", requestID, "error", err)
		return fmt.Errorf("%w: %s %s: %w", ErrUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("%w: reading %s %s: %w", ErrUnavailable, method, path, err)
	}

	c.logger.Debug("request complete",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
		"request_id", requestID,
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{Status: resp.StatusCode, Message: errorMessage(data)}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrBadResponse, method, path, err)
	}
	return nil
}

// errorMessage extracts {error} or {message} from a failure body.
func errorMessage(data []byte) string {
	var body errorResponse
	if err := json.Unmarshal(data, &body); err != nil {
		return ""
	}
	if msg := strings.TrimSpace(body.Error); msg != "" {
		return msg
	}
	return strings.TrimSpace(body.Message)
}

// IsTransport reports whether err means the backend was never reached.
func IsTransport(err error) bool {
	return errors.Is(err, ErrUnavailable) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
