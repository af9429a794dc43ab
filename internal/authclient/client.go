// Package authclient implements session.AuthService against a remote /auth API.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/staykit/pms/internal/session"
)

// APIError is a non-2xx response from the auth API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// UserMessage passes client errors through to the console. Server errors
// are left to the caller's generic message.
func (e *APIError) UserMessage() string {
	if e.Status >= 400 && e.Status < 500 {
		return e.Message
	}
	return ""
}

var _ session.UserError = (*APIError)(nil)

// Client calls the auth API over HTTP and carries the tokens handed over
// by the session store.
type Client struct {
	baseURL string
	http    *http.Client

	mu      sync.Mutex
	access  string
	refresh string
	user    *session.User
}

// New returns a client for the API rooted at baseURL. A nil httpClient gets
// one with the given timeout.
func New(baseURL string, httpClient *http.Client, timeout time.Duration) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (c *Client) Login(ctx context.Context, creds session.Credentials) (*session.AuthResult, error) {
	var res session.AuthResult
	if err := c.do(ctx, http.MethodPost, "/auth/login", false, creds, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) Register(ctx context.Context, data session.RegisterData) (*session.AuthResult, error) {
	var res session.AuthResult
	if err := c.do(ctx, http.MethodPost, "/auth/register", false, data, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) GetCurrentUser(ctx context.Context) (*session.User, error) {
	var u session.User
	if err := c.do(ctx, http.MethodGet, "/auth/me", true, nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*session.AuthResult, error) {
	var res session.AuthResult
	if err := c.do(ctx, http.MethodPost, "/auth/refresh", false, refreshRequest{RefreshToken: refreshToken}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) UpdateProfile(ctx context.Context, data session.ProfileUpdate) (*session.User, error) {
	var u session.User
	if err := c.do(ctx, http.MethodPatch, "/auth/profile", true, data, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) Logout(ctx context.Context) error {
	_, refresh := c.tokens()
	return c.do(ctx, http.MethodPost, "/auth/logout", true, refreshRequest{RefreshToken: refresh}, nil)
}

func (c *Client) SetTokens(accessToken, refreshToken string) {
	c.mu.Lock()
	c.access, c.refresh = accessToken, refreshToken
	c.mu.Unlock()
}

func (c *Client) SetUser(user *session.User) {
	c.mu.Lock()
	c.user = user
	c.mu.Unlock()
}

func (c *Client) tokens() (string, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.access, c.refresh
}

func (c *Client) do(ctx context.Context, method, path string, authed bool, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if authed {
		if access, _ := c.tokens(); access != "" {
			req.Header.Set("Authorization", "Bearer "+access)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body)
	msg := body.Error
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}

// User returns the user last handed over by the session store.
func (c *Client) User() *session.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user
}
