package server

import (
	"net/http"
	"net/url"
	"time"

	"github.com/cosflow/cosflow-web/i18n"
	"github.com/cosflow/cosflow-web/session"
	"github.com/rs/zerolog/hlog"
)

// RequireAPISession rejects API calls that carry neither session cookie and puts the
// cookie session into the request context for the handler.
func (s *Server) RequireAPISession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := s.cookies.FromRequest(r)
		if !sess.Authenticated() && !sess.CanRefresh() {
			writeAuthError(w, msgNotAuthenticated, false)
			return
		}
		next(w, r.WithContext(session.WithSession(r.Context(), sess)))
	}
}

// RequirePageSession restores the session for server-rendered pages. An expired access
// token is refreshed before the page runs; a session that cannot be restored goes to /login.
func (s *Server) RequirePageSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := s.cookies.FromRequest(r)
		if !sess.Authenticated() && !sess.CanRefresh() {
			s.redirectToLogin(w, r)
			return
		}

		if !sess.Authenticated() || sess.AccessExpired(time.Now()) {
			refreshed, err := s.coordinator.Refresh(r.Context(), w, sess)
			if err != nil {
				hlog.FromRequest(r).Info().Err(err).Msg("page session could not be restored")
				s.redirectToLogin(w, r)
				return
			}
			sess = refreshed
		}
		next(w, r.WithContext(session.WithSession(r.Context(), sess)))
	}
}

func (s *Server) redirectToLogin(w http.ResponseWriter, r *http.Request) {
	target := RouteLogin
	if r.Method == http.MethodGet {
		target += "?" + url.Values{"next": {r.URL.RequestURI()}}.Encode()
	}
	redirectSuccess(w, r, target)
}

// requestSession returns the session placed by the auth middleware, falling back to the cookies.
func (s *Server) requestSession(r *http.Request) session.Session {
	if sess, ok := session.FromContext(r.Context()); ok {
		return sess
	}
	return s.cookies.FromRequest(r)
}

// locale resolves the display locale: NEXT_LOCALE cookie, then Accept-Language, then the default.
func (s *Server) locale(r *http.Request) string {
	cookie, _ := r.Cookie(session.LocaleCookie)
	var cookieLocale string
	if cookie != nil {
		cookieLocale = cookie.Value
	}
	return i18n.Negotiate(cookieLocale, r.Header.Get("Accept-Language"))
}

// acceptLanguage is the language hint forwarded upstream: the NEXT_LOCALE cookie when set,
// otherwise the browser's own header.
func acceptLanguage(r *http.Request) string {
	if cookie, err := r.Cookie(session.LocaleCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return r.Header.Get("Accept-Language")
}
