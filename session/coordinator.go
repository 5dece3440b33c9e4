package session

import (
	"context"
	"net/http"
	"time"

	apperrors "github.com/cosflow/cosflow-web/internal/errors"
	"github.com/cosflow/cosflow-web/upstream"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// refreshTimeout bounds a shared refresh once it is detached from the callers' contexts.
const refreshTimeout = 15 * time.Second

// Refresher exchanges a refresh token for a new pair.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (upstream.TokenPair, error)
}

// Coordinator runs upstream calls with the request's session and, on a 401, refreshes
// the session once and retries once.
type Coordinator struct {
	refresher Refresher
	cookies   *CookieStore
	group     singleflight.Group
}

func NewCoordinator(refresher Refresher, cookies *CookieStore) *Coordinator {
	return &Coordinator{refresher: refresher, cookies: cookies}
}

// Do calls fn with the current access token. When the token is missing, already expired,
// or rejected upstream with 401, the session is refreshed exactly once, both cookies are
// rewritten on w, and fn is retried exactly once. A second 401 is returned as is.
func (c *Coordinator) Do(ctx context.Context, w http.ResponseWriter, sess Session, fn func(accessToken string) error) (Session, error) {
	if !sess.Authenticated() || sess.AccessExpired(time.Now()) {
		if !sess.CanRefresh() {
			return sess, apperrors.ErrNotAuthenticated
		}
		refreshed, err := c.Refresh(ctx, w, sess)
		if err != nil {
			return sess, err
		}
		return refreshed, fn(refreshed.AccessToken)
	}

	err := fn(sess.AccessToken)
	if !upstream.IsUnauthorized(err) || !sess.CanRefresh() {
		return sess, err
	}

	refreshed, refreshErr := c.Refresh(ctx, w, sess)
	if refreshErr != nil {
		return sess, refreshErr
	}
	return refreshed, fn(refreshed.AccessToken)
}

// Refresh rotates the pair. Concurrent refreshes of the same refresh token share one
// upstream call, so a rotating refresh token is only spent once. When upstream rejects
// the token both cookies are cleared and ErrRefreshFailed is returned.
func (c *Coordinator) Refresh(ctx context.Context, w http.ResponseWriter, sess Session) (Session, error) {
	v, err, shared := c.group.Do(sess.RefreshToken, func() (any, error) {
		// one caller going away must not fail the others sharing the flight
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return c.refresher.Refresh(flightCtx, sess.RefreshToken)
	})
	if err != nil {
		status := upstream.StatusOf(err)
		if status == 0 {
			// upstream never answered: the refresh token may still be good
			return sess, apperrors.Wrapf(err, "[session Refresh]")
		}
		c.cookies.Clear(w)
		log.Ctx(ctx).Info().Err(err).Int("upstream_status", status).Msg("session refresh rejected")
		return Session{}, apperrors.Wrapf(apperrors.ErrRefreshFailed, "%v", err)
	}

	pair := v.(upstream.TokenPair)
	c.cookies.SetTokens(w, pair)
	log.Ctx(ctx).Debug().Bool("shared", shared).Msg("session refreshed")
	return Session{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken}, nil
}
