// Package webclient is a Go client for the gateway's JSON API. It keeps the same auth
// context the browser does: a cookie jar holding the HttpOnly tokens and the loaded user.
package webclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	apperrors "github.com/cosflow/cosflow-web/internal/errors"
	"github.com/cosflow/cosflow-web/upstream"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Gateway routes used by the client
const (
	PathLogin   = "/api/auth/login"
	PathLogout  = "/api/auth/logout"
	PathRefresh = "/api/auth/refresh"
	PathUser    = "/api/auth/user"
)

const (
	maxErrorBody   = 1 << 20
	refreshTimeout = 15 * time.Second
)

// APIError is a non-2xx answer from the gateway.
type APIError struct {
	Status       int
	Message      string
	NeedsRefresh bool
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway returned %d: %s", e.Status, e.Message)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case apperrors.ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case apperrors.ErrForbidden:
		return e.Status == http.StatusForbidden
	case apperrors.ErrNotFound:
		return e.Status == http.StatusNotFound
	case apperrors.ErrValidation:
		return e.Status == http.StatusUnprocessableEntity
	}
	return false
}

type Client struct {
	baseURL string
	http    *http.Client
	group   singleflight.Group

	mu   sync.RWMutex
	user *upstream.AuthUser

	// OnLoginRequired runs when RequireAuth finds no loaded user.
	OnLoginRequired func()
}

type Option func(*Client)

// WithHTTPClient uses hc for every call. A cookie jar is added when hc has none.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

func WithLoginRequired(hook func()) Option {
	return func(c *Client) {
		c.OnLoginRequired = hook
	}
}

func New(baseURL string, opts ...Option) (*Client, error) {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("[webclient New] cookie jar: %w", err)
		}
		c.http.Jar = jar
	}
	return c, nil
}

// User returns the loaded user, or nil when signed out.
func (c *Client) User() *upstream.AuthUser {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user
}

func (c *Client) setUser(u *upstream.AuthUser) {
	c.mu.Lock()
	c.user = u
	c.mu.Unlock()
}

// NewRequest builds a gateway request. A non-nil body is sent as JSON.
func (c *Client) NewRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("[webclient NewRequest] encoding body: %w", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("[webclient NewRequest] %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// Login exchanges credentials for session cookies and loads the user.
func (c *Client) Login(ctx context.Context, email, password string) (*upstream.AuthUser, error) {
	req, err := c.NewRequest(ctx, http.MethodPost, PathLogin, map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("[webclient Login] %w", err)
	}
	defer resp.Body.Close()
	if err := checkResponse(resp); err != nil {
		return nil, err
	}

	var out struct {
		Success bool               `json:"success"`
		User    *upstream.AuthUser `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("[webclient Login] decoding: %w", err)
	}
	if out.User == nil {
		return c.LoadUser(ctx)
	}
	c.setUser(out.User)
	return out.User, nil
}

// Logout signs out on the gateway. The local user is forgotten even when the call fails.
func (c *Client) Logout(ctx context.Context) error {
	defer c.setUser(nil)

	req, err := c.NewRequest(ctx, http.MethodPost, PathLogout, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("[webclient Logout] %w", err)
	}
	defer resp.Body.Close()
	return checkResponse(resp)
}

// Refresh rotates the session cookies. Concurrent callers share one gateway call.
func (c *Client) Refresh(ctx context.Context) error {
	_, err, shared := c.group.Do("refresh", func() (any, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		req, err := c.NewRequest(flightCtx, http.MethodPost, PathRefresh, nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("[webclient Refresh] %w", err)
		}
		defer resp.Body.Close()
		if err := checkResponse(resp); err != nil {
			c.setUser(nil)
			return nil, apperrors.Wrapf(apperrors.ErrRefreshFailed, "%v", err)
		}
		return nil, nil
	})
	if shared {
		log.Debug().Msg("webclient refresh shared with a concurrent caller")
	}
	return err
}

// LoadUser fetches the current user. Any failure leaves the client signed out.
func (c *Client) LoadUser(ctx context.Context) (*upstream.AuthUser, error) {
	req, err := c.NewRequest(ctx, http.MethodGet, PathUser, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.Do(req)
	if err != nil {
		c.setUser(nil)
		return nil, err
	}
	defer resp.Body.Close()
	if err := checkResponse(resp); err != nil {
		c.setUser(nil)
		return nil, err
	}

	user, err := decodeUser(resp.Body)
	if err != nil {
		c.setUser(nil)
		return nil, fmt.Errorf("[webclient LoadUser] decoding: %w", err)
	}
	c.setUser(user)
	return user, nil
}

// decodeUser accepts the user either bare or inside the backend's {"data": ...} envelope.
func decodeUser(r io.Reader) (*upstream.AuthUser, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var envelope struct {
		Data *upstream.AuthUser `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Data != nil {
		return envelope.Data, nil
	}
	var user upstream.AuthUser
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Do sends req. When the gateway answers 401 with needsRefresh, the session is refreshed
// once and req is retried once. The retried answer is returned whatever it is.
// Requests with a body must be replayable (req.GetBody set) to be retried.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("[webclient Do] %s %s: %w", req.Method, req.URL.Path, err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("[webclient Do] reading 401 body: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))

	var payload struct {
		NeedsRefresh bool `json:"needsRefresh"`
	}
	if json.Unmarshal(body, &payload) != nil || !payload.NeedsRefresh {
		return resp, nil
	}
	if req.Body != nil && req.GetBody == nil {
		return resp, nil
	}

	if err := c.Refresh(req.Context()); err != nil {
		return nil, err
	}

	retry := req.Clone(req.Context())
	if req.GetBody != nil {
		retry.Body, err = req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("[webclient Do] replaying body: %w", err)
		}
	}
	resp, err = c.http.Do(retry)
	if err != nil {
		return nil, fmt.Errorf("[webclient Do] retry %s %s: %w", req.Method, req.URL.Path, err)
	}
	return resp, nil
}

// RequireAuth runs action only for a signed-in user. Otherwise the login hook fires and
// ErrLoginRequired is returned.
func (c *Client) RequireAuth(action func() error) error {
	if c.User() == nil {
		if c.OnLoginRequired != nil {
			c.OnLoginRequired()
		}
		return apperrors.ErrLoginRequired
	}
	return action()
}

// checkResponse turns a non-2xx answer into an *APIError, consuming the body.
func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	var body struct {
		Error        string `json:"error"`
		Message      string `json:"message"`
		NeedsRefresh bool   `json:"needsRefresh"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	_ = json.Unmarshal(raw, &body)

	msg := body.Error
	if msg == "" {
		msg = body.Message
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &APIError{Status: resp.StatusCode, Message: msg, NeedsRefresh: body.NeedsRefresh}
}
