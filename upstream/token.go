package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	apperrors "github.com/cosflow/cosflow-web/internal/errors"
	"golang.org/x/oauth2"
)

// TokenPair is the session material issued by the upstream token endpoint.
// It is never stored server-side; it lives in the browser's HttpOnly cookies.
type TokenPair struct {
	// AccessToken is sent upstream as "Authorization: Bearer <access_token>".
	AccessToken string `json:"access_token"`

	// RefreshToken is single use: every refresh returns a new one that replaces it.
	RefreshToken string `json:"refresh_token"`

	// ExpiresIn is the access token lifetime in seconds, as reported by upstream.
	ExpiresIn int `json:"expires_in"`
}

// PasswordGrant exchanges an email and password for a token pair.
// Upstream rejections come back as *Error carrying the upstream status and message verbatim.
func (c *Client) PasswordGrant(ctx context.Context, email, password string) (TokenPair, error) {
	tok, err := c.oauth.PasswordCredentialsToken(c.oauthContext(ctx), email, password)
	if err != nil {
		return TokenPair{}, translateTokenError("PasswordGrant", err)
	}
	return pairFromToken(tok, ""), nil
}

// Refresh exchanges a refresh token for a new pair. If upstream does not rotate the
// refresh token the old one is kept.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	if refreshToken == "" {
		return TokenPair{}, apperrors.ErrNotAuthenticated
	}
	src := c.oauth.TokenSource(c.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return TokenPair{}, translateTokenError("Refresh", err)
	}
	return pairFromToken(tok, refreshToken), nil
}

// Revoke asks upstream to invalidate the access token and its refresh token.
func (c *Client) Revoke(ctx context.Context, accessToken string) error {
	resp, err := c.Forward(ctx, ForwardRequest{Method: http.MethodPost, Path: PathLogout, AccessToken: accessToken})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkResponse(resp)
}

func (c *Client) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

func translateTokenError(op string, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if apperrors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		return NewError(retrieveErr.Response.StatusCode, retrieveErr.Body)
	}
	return fmt.Errorf("[upstream %s] %w", op, err)
}

func pairFromToken(tok *oauth2.Token, previousRefresh string) TokenPair {
	pair := TokenPair{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresIn:    expiresIn(tok),
	}
	if pair.RefreshToken == "" {
		pair.RefreshToken = previousRefresh
	}
	return pair
}

func expiresIn(tok *oauth2.Token) int {
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	if !tok.Expiry.IsZero() {
		return int(time.Until(tok.Expiry).Round(time.Second).Seconds())
	}
	return 0
}
