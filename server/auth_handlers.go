package server

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	apperrors "github.com/cosflow/cosflow-web/internal/errors"
	"github.com/cosflow/cosflow-web/upstream"
	"github.com/rs/zerolog/hlog"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// readCredentials accepts a JSON body or a urlencoded/multipart form.
func readCredentials(w http.ResponseWriter, r *http.Request) (credentials, error) {
	var creds credentials
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&creds); err != nil {
			return creds, apperrors.Wrapf(apperrors.ErrInvalidRequest, "decoding credentials: %v", err)
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return creds, apperrors.Wrapf(apperrors.ErrInvalidRequest, "parsing form: %v", err)
		}
		creds.Email = r.FormValue("email")
		creds.Password = r.FormValue("password")
	}
	creds.Email = strings.TrimSpace(creds.Email)
	return creds, nil
}

// APILoginHandler exchanges credentials for the cookie pair (POST /api/auth/login)
func (s *Server) APILoginHandler() http.HandlerFunc {
	type loginResponse struct {
		Success bool               `json:"success"`
		User    *upstream.AuthUser `json:"user,omitempty"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		creds, err := readCredentials(w, r)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, msgInvalidRequestBody)
			return
		}
		if creds.Email == "" || creds.Password == "" {
			writeJSONError(w, http.StatusBadRequest, msgCredentialsRequired)
			return
		}

		pair, err := s.upstream.PasswordGrant(r.Context(), creds.Email, creds.Password)
		if err != nil {
			if status := upstream.StatusOf(err); status != 0 {
				var upstreamErr *upstream.Error
				apperrors.As(err, &upstreamErr)
				writeJSONError(w, status, upstreamErr.Message)
				return
			}
			hlog.FromRequest(r).Error().Err(err).Msg("login exchange failed")
			writeJSONError(w, http.StatusInternalServerError, msgInternalServerError)
			return
		}
		s.cookies.SetTokens(w, pair)

		user, err := s.upstream.CurrentUser(r.Context(), pair.AccessToken)
		if err != nil {
			// the session is valid even when the profile is not
			hlog.FromRequest(r).Warn().Err(err).Msg("user fetch after login failed")
			user = nil
		}
		writeJSON(w, http.StatusOK, loginResponse{Success: true, User: user})
	}
}

// APIRefreshHandler rotates the cookie pair (POST /api/auth/refresh)
func (s *Server) APIRefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := s.cookies.FromRequest(r)
		if !sess.CanRefresh() {
			s.cookies.Clear(w)
			writeJSONError(w, http.StatusUnauthorized, msgNoRefreshToken)
			return
		}

		if _, err := s.coordinator.Refresh(r.Context(), w, sess); err != nil {
			if apperrors.Is(err, apperrors.ErrRefreshFailed) {
				writeJSONError(w, http.StatusUnauthorized, msgSessionExpired)
				return
			}
			hlog.FromRequest(r).Error().Err(err).Msg("refresh exchange failed")
			writeJSONError(w, http.StatusInternalServerError, msgInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

// APILogoutHandler revokes upstream when possible and always clears the cookies (POST /api/auth/logout)
func (s *Server) APILogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.logout(w, r)
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	sess := s.cookies.FromRequest(r)
	if sess.Authenticated() {
		if err := s.upstream.Revoke(r.Context(), sess.AccessToken); err != nil {
			hlog.FromRequest(r).Warn().Err(err).Msg("upstream logout failed, clearing cookies anyway")
		}
	}
	s.cookies.Clear(w)
}

// LoginPageData contains data for rendering the login page
type LoginPageData struct {
	Email string
	Next  string
}

// LoginPageHandler displays the login page (GET /login)
func (s *Server) LoginPageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		next := localPath(r.URL.Query().Get("next"), RouteDashboard)
		if s.cookies.FromRequest(r).Authenticated() {
			http.Redirect(w, r, next, http.StatusSeeOther)
			return
		}

		data := s.newPageData(r, "login.title")
		data.Error = r.URL.Query().Get("error")
		data.Login = &LoginPageData{Email: r.URL.Query().Get("email"), Next: next}
		s.render(w, r, http.StatusOK, pageLogin, data)
	}
}

// LoginFormHandler processes the login form submission (POST /login)
func (s *Server) LoginFormHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		creds, err := readCredentials(w, r)
		next := localPath(r.FormValue("next"), RouteDashboard)
		keep := url.Values{"email": {creds.Email}, "next": {next}}
		if err != nil {
			redirectWithError(w, r, RouteLogin, msgInvalidRequestBody, keep)
			return
		}
		if creds.Email == "" || creds.Password == "" {
			redirectWithError(w, r, RouteLogin, msgCredentialsRequired, keep)
			return
		}

		pair, err := s.upstream.PasswordGrant(r.Context(), creds.Email, creds.Password)
		if err != nil {
			var upstreamErr *upstream.Error
			if apperrors.As(err, &upstreamErr) {
				redirectWithError(w, r, RouteLogin, upstreamErr.Message, keep)
				return
			}
			hlog.FromRequest(r).Error().Err(err).Msg("login exchange failed")
			redirectWithError(w, r, RouteLogin, msgInternalServerError, keep)
			return
		}

		s.cookies.SetTokens(w, pair)
		redirectSuccess(w, r, next)
	}
}

// LogoutFormHandler signs out from the site header (POST /logout)
func (s *Server) LogoutFormHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.logout(w, r)
		redirectSuccess(w, r, "/")
	}
}

// APIRegisterHandler relays sign-up to the backend (POST /api/auth/register). Validation
// errors pass through untouched so the form can show them per field.
func (s *Server) APIRegisterHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body io.Reader
		if r.ContentLength != 0 {
			body = r.Body
		}
		resp, err := s.upstream.Register(r.Context(), body, r.Header.Get("Content-Type"), acceptLanguage(r))
		s.mapResponse(w, r, resp, err, upstream.PathRegister, true, registerMessages)
	}
}
