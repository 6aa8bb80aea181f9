// Package identity is the HTTP client for the marketplace identity API. It
// owns request encoding, response decoding and the mapping of failure shapes
// onto the error taxonomy in internal/errors.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	autherrors "github.com/masterhub/authflow/internal/errors"
)

const (
	defaultTimeout = 15 * time.Second
	maxBodyBytes   = 1 << 20
)

// Client talks to the identity endpoints of the marketplace API.
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

// Option modifies a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// New creates a Client for the API at baseURL.
func New(baseURL string, options ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		log:     zerolog.Nop(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// AuthorizationURL asks the API for the provider's authorization URL, with
// the supplied CSRF state embedded as the OAuth state parameter.
func (c *Client) AuthorizationURL(ctx context.Context, provider Provider, state string) (string, error) {
	endpoint := fmt.Sprintf("%s/api/auth/%s/url?state=%s", c.baseURL, provider, url.QueryEscape(state))
	var out struct {
		URL string `json:"url"`
	}
	if err := c.do(ctx, http.MethodGet, endpoint, "", nil, &out); err != nil {
		return "", autherrors.Wrapf(err, "[AuthorizationURL] provider %s", provider)
	}
	if out.URL == "" {
		return "", autherrors.Wrapf(autherrors.ErrExchangeFailed, "[AuthorizationURL] empty url for provider %s", provider)
	}
	return out.URL, nil
}

// OAuthCallback exchanges an authorization code for a session payload.
func (c *Client) OAuthCallback(ctx context.Context, provider Provider, exchange OAuthExchange) (*AuthResult, error) {
	endpoint := fmt.Sprintf("%s/api/auth/%s/callback", c.baseURL, provider)
	var out AuthResult
	if err := c.do(ctx, http.MethodPost, endpoint, "", exchange, &out); err != nil {
		return nil, autherrors.Wrapf(err, "[OAuthCallback] provider %s", provider)
	}
	if out.Token == "" {
		return nil, autherrors.Wrapf(autherrors.ErrMissingToken, "[OAuthCallback] provider %s", provider)
	}
	return &out, nil
}

// TelegramCallback exchanges an accepted widget payload for a session payload.
func (c *Client) TelegramCallback(ctx context.Context, exchange TelegramExchange) (*AuthResult, error) {
	endpoint := c.baseURL + "/api/auth/telegram/callback"
	var out AuthResult
	if err := c.do(ctx, http.MethodPost, endpoint, "", exchange, &out); err != nil {
		return nil, autherrors.Wrapf(err, "[TelegramCallback]")
	}
	if out.Token == "" {
		return nil, autherrors.Wrapf(autherrors.ErrMissingToken, "[TelegramCallback]")
	}
	return &out, nil
}

// LoginPassword authenticates with email and password and returns the bearer
// token. The endpoint returns no profile; callers follow up with Me.
func (c *Client) LoginPassword(ctx context.Context, email, password string) (string, error) {
	body := struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}{Email: email, Password: password}

	var out struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/api/authentication_token", "", body, &out); err != nil {
		return "", autherrors.Wrapf(err, "[LoginPassword]")
	}
	if out.Token == "" {
		return "", autherrors.Wrapf(autherrors.ErrMissingToken, "[LoginPassword]")
	}
	return out.Token, nil
}

// Register creates a new account. The account stays unconfirmed until the
// emailed confirmation link is followed.
func (c *Client) Register(ctx context.Context, registration Registration) (*User, error) {
	var out User
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/api/users", "", registration, &out); err != nil {
		return nil, autherrors.Wrapf(err, "[Register]")
	}
	return &out, nil
}

// Me fetches the profile of the bearer token's owner.
func (c *Client) Me(ctx context.Context, token string) (*User, error) {
	var out User
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/api/users/me", token, nil, &out); err != nil {
		return nil, autherrors.Wrapf(err, "[Me]")
	}
	return &out, nil
}

// ForgotPassword requests a password-reset code for email.
func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	body := struct {
		Email string `json:"email"`
	}{Email: email}
	return autherrors.Wrapf(c.do(ctx, http.MethodPost, c.baseURL+"/api/users/forgot-password", "", body, nil), "[ForgotPassword]")
}

// VerifyResetCode checks a password-reset code without consuming it.
func (c *Client) VerifyResetCode(ctx context.Context, email, code string) error {
	body := struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}{Email: email, Code: code}
	return autherrors.Wrapf(c.do(ctx, http.MethodPost, c.baseURL+"/api/users/verify-code", "", body, nil), "[VerifyResetCode]")
}

// ResetPassword sets a new password using a verified reset code.
func (c *Client) ResetPassword(ctx context.Context, email, code, password string) error {
	body := struct {
		Email    string `json:"email"`
		Code     string `json:"code"`
		Password string `json:"password"`
	}{Email: email, Code: code, Password: password}
	return autherrors.Wrapf(c.do(ctx, http.MethodPost, c.baseURL+"/api/users/reset-password", "", body, nil), "[ResetPassword]")
}

// ConfirmEmail confirms a registration using the emailed token.
func (c *Client) ConfirmEmail(ctx context.Context, token string) error {
	body := struct {
		Token string `json:"token"`
	}{Token: token}
	return autherrors.Wrapf(c.do(ctx, http.MethodPost, c.baseURL+"/api/users/email/confirm", "", body, nil), "[ConfirmEmail]")
}

func (c *Client) do(ctx context.Context, method, endpoint, bearer string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return autherrors.Wrapf(autherrors.ErrNetwork, "%s %s: %v", method, endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return autherrors.Wrapf(autherrors.ErrNetwork, "%s %s: read body: %v", method, endpoint, err)
	}

	c.log.Debug().Str("method", method).Str("endpoint", endpoint).Int("status", resp.StatusCode).Msg("identity request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apiError(resp.StatusCode, data)
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return autherrors.Wrapf(autherrors.ErrExchangeFailed, "%s %s: decode response: %v", method, endpoint, err)
		}
	}
	return nil
}

// apiError maps a non-2xx response onto the error taxonomy. Structured
// violation lists become a ValidationError with messages kept verbatim; a
// plain server message is wrapped verbatim; an unreadable body degrades to a
// generic network failure.
func apiError(status int, body []byte) error {
	var parsed struct {
		Violations []autherrors.Violation `json:"violations"`
		Message    string                 `json:"message"`
		Detail     string                 `json:"detail"`
		Error      string                 `json:"error"`
		HydraDesc  string                 `json:"hydra:description"`
	}
	if len(body) > 0 && json.Unmarshal(body, &parsed) == nil {
		if (status == http.StatusBadRequest || status == http.StatusUnprocessableEntity) && len(parsed.Violations) > 0 {
			return &autherrors.ValidationError{Violations: parsed.Violations}
		}
		for _, msg := range []string{parsed.Message, parsed.HydraDesc, parsed.Detail, parsed.Error} {
			if msg != "" {
				return autherrors.Wrapf(autherrors.ErrExchangeFailed, "status %d: %s", status, msg)
			}
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" && !strings.HasPrefix(text, "{") {
		return autherrors.Wrapf(autherrors.ErrExchangeFailed, "status %d: %s", status, text)
	}
	return autherrors.Wrapf(autherrors.ErrNetwork, "unexpected status %d", status)
}
