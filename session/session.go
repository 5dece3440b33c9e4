// Package session holds the browser-side session: the access/refresh token pair kept in
// HttpOnly cookies, and the coordinator that silently refreshes it.
package session

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session is the token pair carried by one request. It is request scoped: middleware
// reads it from cookies and passes it down through the context.
type Session struct {
	AccessToken  string
	RefreshToken string
}

func (s Session) Authenticated() bool {
	return s.AccessToken != ""
}

func (s Session) CanRefresh() bool {
	return s.RefreshToken != ""
}

// AccessExpired reports whether the access token's exp claim is in the past.
// Opaque or unparsable tokens are treated as not expired and left for upstream to judge.
func (s Session) AccessExpired(now time.Time) bool {
	claims, ok := Claims(s.AccessToken)
	if !ok || claims.ExpiresAt == nil {
		return false
	}
	return !claims.ExpiresAt.After(now)
}

// Claims decodes the access token without verifying it. The gateway never trusts these
// claims for authorization; upstream does that. They only drive proactive refresh and logging.
func Claims(accessToken string) (*jwt.RegisteredClaims, bool) {
	if accessToken == "" {
		return nil, false
	}
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return nil, false
	}
	return claims, true
}

type contextKey struct{}

func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(contextKey{}).(Session)
	return s, ok
}
