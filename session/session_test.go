package session_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cosflow/cosflow-web/internal/config"
	apperrors "github.com/cosflow/cosflow-web/internal/errors"
	"github.com/cosflow/cosflow-web/session"
	"github.com/cosflow/cosflow-web/upstream"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

type testSessionConfig struct {
	config.Session
	secure bool
}

func (c testSessionConfig) GetRefreshTokenTTL() time.Duration { return 30 * 24 * time.Hour }
func (c testSessionConfig) GetSecureCookies() bool            { return c.secure }

type fakeRefresher struct {
	calls atomic.Int32
	pair  upstream.TokenPair
	err   error
	delay time.Duration
}

func (f *fakeRefresher) Refresh(ctx context.Context, refreshToken string) (upstream.TokenPair, error) {
	f.calls.Add(1)
	select {
	case <-time.After(f.delay):
	case <-ctx.Done():
		return upstream.TokenPair{}, ctx.Err()
	}
	if f.err != nil {
		return upstream.TokenPair{}, f.err
	}
	return f.pair, nil
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "7",
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return tok
}

func cookiesByName(rec *httptest.ResponseRecorder) map[string]*http.Cookie {
	out := map[string]*http.Cookie{}
	for _, c := range rec.Result().Cookies() {
		out[c.Name] = c
	}
	return out
}

func TestCookieStore_SetTokens(t *testing.T) {
	store := session.NewCookieStore(testSessionConfig{secure: true})
	rec := httptest.NewRecorder()

	store.SetTokens(rec, upstream.TokenPair{AccessToken: "a", RefreshToken: "r", ExpiresIn: 3600})

	cookies := cookiesByName(rec)
	access := cookies[session.AccessTokenCookie]
	require.NotNil(t, access)
	require.Equal(t, "a", access.Value)
	require.Equal(t, 3600, access.MaxAge)
	require.True(t, access.HttpOnly)
	require.True(t, access.Secure)
	require.Equal(t, http.SameSiteLaxMode, access.SameSite)

	refresh := cookies[session.RefreshTokenCookie]
	require.NotNil(t, refresh)
	require.Equal(t, "r", refresh.Value)
	require.Equal(t, 30*24*3600, refresh.MaxAge)
	require.True(t, refresh.HttpOnly)
}

func TestCookieStore_ClearAndLocale(t *testing.T) {
	store := session.NewCookieStore(testSessionConfig{})
	rec := httptest.NewRecorder()

	store.Clear(rec)
	store.SetLocale(rec, "fr")

	cookies := cookiesByName(rec)
	require.Less(t, cookies[session.AccessTokenCookie].MaxAge, 0)
	require.Less(t, cookies[session.RefreshTokenCookie].MaxAge, 0)
	require.Equal(t, "fr", cookies[session.LocaleCookie].Value)
	require.False(t, cookies[session.LocaleCookie].HttpOnly)
	require.Equal(t, 365*24*3600, cookies[session.LocaleCookie].MaxAge)
}

func TestCookieStore_FromRequest(t *testing.T) {
	store := session.NewCookieStore(testSessionConfig{})
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: session.AccessTokenCookie, Value: "a"})
	r.AddCookie(&http.Cookie{Name: session.RefreshTokenCookie, Value: "r"})

	sess := store.FromRequest(r)
	require.True(t, sess.Authenticated())
	require.True(t, sess.CanRefresh())
	require.Equal(t, "r", sess.RefreshToken)

	ctx := session.WithSession(context.Background(), sess)
	got, ok := session.FromContext(ctx)
	require.True(t, ok)
	require.Equal(t, sess, got)
}

func TestSession_AccessExpired(t *testing.T) {
	now := time.Now()
	require.True(t, session.Session{AccessToken: signedToken(t, now.Add(-time.Minute))}.AccessExpired(now))
	require.False(t, session.Session{AccessToken: signedToken(t, now.Add(time.Hour))}.AccessExpired(now))
	require.False(t, session.Session{AccessToken: "opaque-token"}.AccessExpired(now))

	claims, ok := session.Claims(signedToken(t, now.Add(time.Hour)))
	require.True(t, ok)
	require.Equal(t, "7", claims.Subject)
}

func newCoordinator(r *fakeRefresher) *session.Coordinator {
	return session.NewCoordinator(r, session.NewCookieStore(testSessionConfig{}))
}

func TestCoordinator_NoRefreshOnSuccess(t *testing.T) {
	refresher := &fakeRefresher{}
	calls := 0

	_, err := newCoordinator(refresher).Do(context.Background(), httptest.NewRecorder(),
		session.Session{AccessToken: "a", RefreshToken: "r"},
		func(token string) error {
			calls++
			require.Equal(t, "a", token)
			return nil
		})

	require.NoError(t, err)
	require.Equal(t, 1, calls)
	require.Zero(t, refresher.calls.Load())
}

func TestCoordinator_RefreshesOnceThenRetriesOnce(t *testing.T) {
	refresher := &fakeRefresher{pair: upstream.TokenPair{AccessToken: "a2", RefreshToken: "r2", ExpiresIn: 60}}
	rec := httptest.NewRecorder()
	var tokens []string

	sess, err := newCoordinator(refresher).Do(context.Background(), rec,
		session.Session{AccessToken: "a1", RefreshToken: "r1"},
		func(token string) error {
			tokens = append(tokens, token)
			if token == "a1" {
				return upstream.NewError(http.StatusUnauthorized, nil)
			}
			return nil
		})

	require.NoError(t, err)
	require.Equal(t, []string{"a1", "a2"}, tokens)
	require.Equal(t, int32(1), refresher.calls.Load())
	require.Equal(t, "r2", sess.RefreshToken)
	require.Equal(t, "r2", cookiesByName(rec)[session.RefreshTokenCookie].Value)
}

func TestCoordinator_SecondUnauthorizedDoesNotLoop(t *testing.T) {
	refresher := &fakeRefresher{pair: upstream.TokenPair{AccessToken: "a2", RefreshToken: "r2"}}
	calls := 0

	_, err := newCoordinator(refresher).Do(context.Background(), httptest.NewRecorder(),
		session.Session{AccessToken: "a1", RefreshToken: "r1"},
		func(string) error {
			calls++
			return upstream.NewError(http.StatusUnauthorized, nil)
		})

	require.True(t, upstream.IsUnauthorized(err))
	require.Equal(t, 2, calls)
	require.Equal(t, int32(1), refresher.calls.Load())
}

func TestCoordinator_RejectedRefreshClearsCookies(t *testing.T) {
	refresher := &fakeRefresher{err: upstream.NewError(http.StatusUnauthorized, []byte(`{"message":"revoked"}`))}
	rec := httptest.NewRecorder()
	calls := 0

	_, err := newCoordinator(refresher).Do(context.Background(), rec,
		session.Session{AccessToken: "a1", RefreshToken: "r1"},
		func(string) error {
			calls++
			return upstream.NewError(http.StatusUnauthorized, nil)
		})

	require.ErrorIs(t, err, apperrors.ErrRefreshFailed)
	require.Equal(t, 1, calls)
	cookies := cookiesByName(rec)
	require.Less(t, cookies[session.AccessTokenCookie].MaxAge, 0)
	require.Less(t, cookies[session.RefreshTokenCookie].MaxAge, 0)
}

func TestCoordinator_TransportFailureKeepsCookies(t *testing.T) {
	refresher := &fakeRefresher{err: errors.New("dial tcp: connection refused")}
	rec := httptest.NewRecorder()

	_, err := newCoordinator(refresher).Do(context.Background(), rec,
		session.Session{RefreshToken: "r1"},
		func(string) error { return nil })

	require.Error(t, err)
	require.NotErrorIs(t, err, apperrors.ErrRefreshFailed)
	require.Empty(t, rec.Result().Cookies())
}

func TestCoordinator_MissingAccessTokenRefreshesFirst(t *testing.T) {
	refresher := &fakeRefresher{pair: upstream.TokenPair{AccessToken: "a2", RefreshToken: "r2"}}
	var got string

	_, err := newCoordinator(refresher).Do(context.Background(), httptest.NewRecorder(),
		session.Session{RefreshToken: "r1"},
		func(token string) error {
			got = token
			return nil
		})

	require.NoError(t, err)
	require.Equal(t, "a2", got)
	require.Equal(t, int32(1), refresher.calls.Load())
}

func TestCoordinator_NoSession(t *testing.T) {
	_, err := newCoordinator(&fakeRefresher{}).Do(context.Background(), httptest.NewRecorder(),
		session.Session{}, func(string) error {
			t.Fatal("fn must not run without a session")
			return nil
		})

	require.ErrorIs(t, err, apperrors.ErrNotAuthenticated)
}

func TestCoordinator_ConcurrentRefreshesShareOneCall(t *testing.T) {
	refresher := &fakeRefresher{
		pair:  upstream.TokenPair{AccessToken: "a2", RefreshToken: "r2"},
		delay: 100 * time.Millisecond,
	}
	coord := newCoordinator(refresher)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := coord.Refresh(context.Background(), httptest.NewRecorder(), session.Session{RefreshToken: "r1"})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), refresher.calls.Load())
}

func TestCoordinator_CancelledCallerDoesNotFailSharedRefresh(t *testing.T) {
	refresher := &fakeRefresher{
		pair:  upstream.TokenPair{AccessToken: "a2", RefreshToken: "r2", ExpiresIn: 3600},
		delay: 100 * time.Millisecond,
	}
	coord := newCoordinator(refresher)
	sess := session.Session{RefreshToken: "r1"}

	ctxA, cancelA := context.WithCancel(context.Background())
	doneA := make(chan error, 1)
	go func() {
		_, err := coord.Refresh(ctxA, httptest.NewRecorder(), sess)
		doneA <- err
	}()
	time.Sleep(20 * time.Millisecond)

	recB := httptest.NewRecorder()
	doneB := make(chan error, 1)
	go func() {
		_, err := coord.Refresh(context.Background(), recB, sess)
		doneB <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancelA()

	require.NoError(t, <-doneB)
	require.NoError(t, <-doneA)
	require.Equal(t, int32(1), refresher.calls.Load())
	require.Equal(t, "a2", cookiesByName(recB)["access_token"].Value)
}
