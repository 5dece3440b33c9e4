package session

import (
	"net/http"
	"time"

	"github.com/cosflow/cosflow-web/internal/config"
	"github.com/cosflow/cosflow-web/upstream"
)

// Cookie names. NEXT_LOCALE keeps the name the browser front already uses.
const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
	LocaleCookie       = "NEXT_LOCALE"
)

// CookieStore issues and clears the browser-held session.
type CookieStore struct {
	refreshTTL time.Duration
	localeTTL  time.Duration
	secure     bool
}

func NewCookieStore(cfg config.SessionConfig) *CookieStore {
	return &CookieStore{
		refreshTTL: cfg.GetRefreshTokenTTL(),
		localeTTL:  cfg.GetLocaleCookieTTL(),
		secure:     cfg.GetSecureCookies(),
	}
}

// SetTokens writes both auth cookies in one response so the refresh token is always
// replaced together with its access token. An unknown ExpiresIn (0) leaves a browser-session cookie.
func (s *CookieStore) SetTokens(w http.ResponseWriter, pair upstream.TokenPair) {
	s.set(w, AccessTokenCookie, pair.AccessToken, pair.ExpiresIn, true)
	s.set(w, RefreshTokenCookie, pair.RefreshToken, int(s.refreshTTL.Seconds()), true)
}

// Clear expires both auth cookies.
func (s *CookieStore) Clear(w http.ResponseWriter) {
	s.set(w, AccessTokenCookie, "", -1, true)
	s.set(w, RefreshTokenCookie, "", -1, true)
}

// SetLocale writes the readable locale cookie.
func (s *CookieStore) SetLocale(w http.ResponseWriter, locale string) {
	s.set(w, LocaleCookie, locale, int(s.localeTTL.Seconds()), false)
}

// FromRequest reads the session held in the request's cookies.
func (s *CookieStore) FromRequest(r *http.Request) Session {
	return Session{
		AccessToken:  cookieValue(r, AccessTokenCookie),
		RefreshToken: cookieValue(r, RefreshTokenCookie),
	}
}

func (s *CookieStore) set(w http.ResponseWriter, name, value string, maxAge int, httpOnly bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: httpOnly,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
