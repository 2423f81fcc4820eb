// ABOUTME: Account gateway HTTP client with cookie credentials and classified errors
// ABOUTME: One method per gateway endpoint; JSON in, JSON out

package account

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/2389/lamp/internal/apperr"
	"github.com/2389/lamp/internal/store"
)

// DefaultSessionCookie is the cookie carrying the gateway session token.
const DefaultSessionCookie = "token"

// Options configures a Client.
type Options struct {
	BaseURL       string
	SessionCookie string
	Cookies       store.CookieStore
	HTTPClient    *http.Client
	Logger        *slog.Logger
}

// Client talks to the account gateway.
type Client struct {
	base          *url.URL
	http          *http.Client
	jar           *PersistentJar
	sessionCookie string
	logger        *slog.Logger
}

// NewClient creates a gateway client. Stored cookies are loaded immediately.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing gateway base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("gateway base url %q must be absolute", opts.BaseURL)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	jar, err := NewPersistentJar(ctx, base, opts.Cookies, logger)
	if err != nil {
		return nil, err
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	clone := *httpClient
	clone.Jar = jar

	cookie := opts.SessionCookie
	if cookie == "" {
		cookie = DefaultSessionCookie
	}

	return &Client{
		base:          base,
		http:          &clone,
		jar:           jar,
		sessionCookie: cookie,
		logger:        logger.With("component", "account"),
	}, nil
}

// SessionToken returns the stored session cookie value, or "".
func (c *Client) SessionToken() string {
	return c.jar.Value(c.sessionCookie)
}

// ClearCredentials forgets every stored cookie.
func (c *Client) ClearCredentials(ctx context.Context) error {
	return c.jar.Clear(ctx)
}

// endpoint names a gateway operation for error mapping.
type endpoint string

const (
	epLogin    endpoint = "login"
	epSignup   endpoint = "signup"
	epLogout   endpoint = "logout"
	epForgot   endpoint = "forgot_password"
	epReset    endpoint = "reset_password"
	epCallback endpoint = "callback"
	epUser     endpoint = "user"
	epChat     endpoint = "chat"
	epBilling  endpoint = "subscription"
)

// Login signs in with email and password.
func (c *Client) Login(ctx context.Context, creds Credentials) (*AuthResponse, error) {
	var out AuthResponse
	if err := c.do(ctx, epLogin, http.MethodPost, "/auth/login", creds, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Signup creates an account with email and password.
func (c *Client) Signup(ctx context.Context, creds Credentials) (*AuthResponse, error) {
	var out AuthResponse
	if err := c.do(ctx, epSignup, http.MethodPost, "/auth/signup", creds, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout invalidates the remote session.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, epLogout, http.MethodPost, "/auth/logout", nil, nil)
}

// ForgotPassword asks the gateway to email a reset link.
func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	return c.do(ctx, epForgot, http.MethodPost, "/auth/forgot-password", map[string]string{"email": email}, nil)
}

// ResetPassword sets a new password using a reset token.
func (c *Client) ResetPassword(ctx context.Context, token, password string) error {
	body := map[string]string{"token": token, "password": password}
	return c.do(ctx, epReset, http.MethodPost, "/auth/reset-password", body, nil)
}

// ExchangeCode trades a single-use OAuth authorization code for a session.
func (c *Client) ExchangeCode(ctx context.Context, code, redirectURI string) (*AuthResponse, error) {
	body := map[string]string{"code": code, "redirectUri": redirectURI}
	var out AuthResponse
	if err := c.do(ctx, epCallback, http.MethodPost, "/auth/callback", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetUser fetches the signed-in user's record.
// A missing record is an apperr with CodeNotFound.
func (c *Client) GetUser(ctx context.Context) (*UserRecord, error) {
	var out UserRecord
	if err := c.do(ctx, epUser, http.MethodGet, "/users", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateUser creates the user record if absent and returns it.
func (c *Client) CreateUser(ctx context.Context, patch ProfilePatch) (*UserRecord, error) {
	var out UserRecord
	if err := c.do(ctx, epUser, http.MethodPost, "/users", patch, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateUser patches profile fields and returns the updated record.
func (c *Client) UpdateUser(ctx context.Context, patch ProfilePatch) (*UserRecord, error) {
	var out UserRecord
	if err := c.do(ctx, epUser, http.MethodPut, "/users", patch, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListSessions returns the user's chat sessions in server order.
func (c *Client) ListSessions(ctx context.Context) ([]Session, error) {
	var out struct {
		Sessions []Session `json:"sessions"`
	}
	if err := c.do(ctx, epChat, http.MethodGet, "/chat/sessions", nil, &out); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

// GetSession returns a session with its full history.
func (c *Client) GetSession(ctx context.Context, id string) (*SessionDetail, error) {
	var out SessionDetail
	if err := c.do(ctx, epChat, http.MethodGet, "/chat/sessions/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteSession deletes a chat session.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.do(ctx, epChat, http.MethodDelete, "/chat/sessions/"+url.PathEscape(id), nil, nil)
}

// SendMessage posts a user message and returns the assistant's reply.
// An empty SessionID starts a new session.
func (c *Client) SendMessage(ctx context.Context, req SendRequest) (*SendResult, error) {
	var out SendResult
	if err := c.do(ctx, epChat, http.MethodPost, "/chat/message", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Checkout returns the checkout redirect for priceID.
func (c *Client) Checkout(ctx context.Context, priceID string) (*Redirect, error) {
	var out Redirect
	if err := c.do(ctx, epBilling, http.MethodPost, "/subscription/checkout", map[string]string{"priceId": priceID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Portal returns the billing portal redirect.
func (c *Client) Portal(ctx context.Context) (*Redirect, error) {
	var out Redirect
	if err := c.do(ctx, epBilling, http.MethodPost, "/subscription/portal", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Prices lists subscription prices.
func (c *Client) Prices(ctx context.Context) ([]Price, error) {
	var out struct {
		Prices []Price `json:"prices"`
	}
	if err := c.do(ctx, epBilling, http.MethodGet, "/subscription/prices", nil, &out); err != nil {
		return nil, err
	}
	return out.Prices, nil
}

// do performs one JSON round trip. body and out may be nil.
func (c *Client) do(ctx context.Context, ep endpoint, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return apperr.Wrap(fmt.Errorf("encoding %s request: %w", ep, err), apperr.KindInternal, "encode")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, reader)
	if err != nil {
		return apperr.Wrap(fmt.Errorf("building %s request: %w", ep, err), apperr.KindInternal, "request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("gateway request failed", "method", method, "path", path, "error", err)
		return apperr.Network(apperr.CodeTransport, fmt.Errorf("%s %s: %w", method, path, err))
	}
	defer resp.Body.Close()

	c.logger.Debug("gateway request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode >= 300 {
		return c.classify(ep, resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return apperr.Network(apperr.CodeUnavailable, fmt.Errorf("decoding %s response: %w", ep, err))
	}
	return nil
}

// classify turns a non-2xx response into an *apperr.Error.
func (c *Client) classify(ep endpoint, resp *http.Response) error {
	var eb errorBody
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(data, &eb)

	if resp.StatusCode >= 500 {
		return apperr.Network(apperr.CodeUnavailable, fmt.Errorf("%s: gateway returned %d", ep, resp.StatusCode))
	}
	return apperr.Auth(statusCode(ep, resp.StatusCode, eb.Code), eb.Error)
}

// statusCode picks the machine code for a rejected request.
func statusCode(ep endpoint, status int, serverCode string) string {
	switch serverCode {
	case apperr.CodeInvalidCredentials, apperr.CodeAccountExists,
		apperr.CodeCodeExpired, apperr.CodeCodeConsumed, apperr.CodeNotFound:
		return serverCode
	}

	switch ep {
	case epLogin:
		if status == http.StatusUnauthorized || status == http.StatusNotFound || status == http.StatusBadRequest {
			return apperr.CodeInvalidCredentials
		}
	case epSignup:
		if status == http.StatusConflict {
			return apperr.CodeAccountExists
		}
	case epCallback:
		if status == http.StatusBadRequest || status == http.StatusGone || status == http.StatusUnauthorized {
			return apperr.CodeCodeExpired
		}
	}

	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return apperr.CodeUnauthorized
	case http.StatusNotFound:
		return apperr.CodeNotFound
	}
	if serverCode != "" {
		return serverCode
	}
	return apperr.CodeRejected
}
