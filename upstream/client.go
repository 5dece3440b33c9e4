// Package upstream talks to the Laravel REST API that owns all durable Cosflow state.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/cosflow/cosflow-web/internal/config"
	"golang.org/x/oauth2"
)

// Upstream paths
const (
	PathToken            = "/oauth/token"
	PathUser             = "/api/user"
	PathLogout           = "/api/v2/logout"
	PathRegister         = "/api/v2/register"
	PathSubscriptionSync = "/api/v2/webhooks/stripe/sync"

	APIPrefix    = "/api/v2"
	PublicPrefix = "/api/v2/public"
)

const maxErrorBody = 1 << 20

type Client struct {
	baseURL       string
	httpClient    *http.Client
	oauth         *oauth2.Config
	webhookSecret string
}

type Option func(*Client)

// WithHTTPClient replaces the transport used for every upstream call, token exchanges included.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithWebhookSecret sets the shared secret sent with subscription sync calls.
func WithWebhookSecret(secret string) Option {
	return func(c *Client) {
		c.webhookSecret = secret
	}
}

func New(cfg config.UpstreamConfig, opts ...Option) *Client {
	baseURL := cfg.GetUpstreamBaseURL()
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: cfg.GetUpstreamTimeout()},
		oauth: &oauth2.Config{
			ClientID:     cfg.GetUpstreamClientID(),
			ClientSecret: cfg.GetUpstreamClientSecret(),
			Endpoint: oauth2.Endpoint{
				TokenURL:  baseURL + PathToken,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// ForwardRequest describes one call relayed to the upstream API.
type ForwardRequest struct {
	Method         string
	Path           string
	RawQuery       string
	AccessToken    string
	ContentType    string
	AcceptLanguage string
	Body           io.Reader
	ContentLength  int64
	Header         http.Header
}

// Forward issues exactly one upstream request. The caller owns the response body.
func (c *Client) Forward(ctx context.Context, fr ForwardRequest) (*http.Response, error) {
	target := c.baseURL + fr.Path
	if fr.RawQuery != "" {
		target += "?" + fr.RawQuery
	}

	req, err := http.NewRequestWithContext(ctx, fr.Method, target, fr.Body)
	if err != nil {
		return nil, fmt.Errorf("[upstream Forward] building %s %s: %w", fr.Method, fr.Path, err)
	}
	for k, values := range fr.Header {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	if fr.ContentLength > 0 {
		req.ContentLength = fr.ContentLength
	}
	req.Header.Set("Accept", "application/json")
	if fr.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+fr.AccessToken)
	}
	if fr.ContentType != "" {
		req.Header.Set("Content-Type", fr.ContentType)
	}
	if fr.AcceptLanguage != "" {
		req.Header.Set("Accept-Language", fr.AcceptLanguage)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("[upstream Forward] %s %s: %w", fr.Method, fr.Path, err)
	}
	return resp, nil
}

// getJSON performs an authenticated GET and decodes the (optionally enveloped) body into out.
func (c *Client) getJSON(ctx context.Context, path, accessToken string, out any) error {
	resp, err := c.Forward(ctx, ForwardRequest{Method: http.MethodGet, Path: path, AccessToken: accessToken})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return err
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("[upstream getJSON] reading %s: %w", path, err)
	}
	if err := decodeData(body, out); err != nil {
		return fmt.Errorf("[upstream getJSON] decoding %s: %w", path, err)
	}
	return nil
}

// decodeData unwraps Laravel's {"data": ...} resource envelope when present.
func decodeData(body []byte, out any) error {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Data) > 0 && string(envelope.Data) != "null" {
		return json.Unmarshal(envelope.Data, out)
	}
	return json.Unmarshal(body, out)
}

// checkResponse turns a non-2xx response into an *Error, consuming the body.
func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return NewError(resp.StatusCode, body)
}
