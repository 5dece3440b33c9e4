package server

import (
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/cosflow/cosflow-web/upstream"
	"github.com/rs/zerolog/hlog"
)

// ResourceMessages are the error messages a resource answers with when upstream refuses a call.
type ResourceMessages struct {
	Forbidden string
	NotFound  string
	Failed    string
}

// ResourceProxy forwards an authenticated call to target, an upstream path whose {name}
// segments are filled from the route's path values.
func (s *Server) ResourceProxy(target string, messages ResourceMessages) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := s.cookies.FromRequest(r)
		if !sess.Authenticated() {
			writeAuthError(w, msgNotAuthenticated, sess.CanRefresh())
			return
		}
		s.forward(w, r, target, sess.AccessToken, messages)
	}
}

// PublicProxy forwards an anonymous call to target.
func (s *Server) PublicProxy(target string, messages ResourceMessages) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.forward(w, r, target, "", messages)
	}
}

// forward issues exactly one upstream call and maps its answer onto the gateway's contract.
func (s *Server) forward(w http.ResponseWriter, r *http.Request, target, accessToken string, messages ResourceMessages) {
	var body io.Reader
	if r.ContentLength != 0 {
		body = r.Body
	}

	resp, err := s.upstream.Forward(r.Context(), upstream.ForwardRequest{
		Method:         r.Method,
		Path:           expandPath(target, r),
		RawQuery:       r.URL.RawQuery,
		AccessToken:    accessToken,
		ContentType:    r.Header.Get("Content-Type"),
		AcceptLanguage: acceptLanguage(r),
		Body:           body,
		ContentLength:  r.ContentLength,
	})
	s.mapResponse(w, r, resp, err, target, accessToken == "", messages)
}

// mapResponse maps an upstream answer onto the gateway's contract. Anonymous calls never
// ask the browser to refresh.
func (s *Server) mapResponse(w http.ResponseWriter, r *http.Request, resp *http.Response, err error, target string, anonymous bool, messages ResourceMessages) {
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("target", target).Msg("upstream call failed")
		writeJSONError(w, http.StatusInternalServerError, msgInternalServerError)
		return
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300, resp.StatusCode == http.StatusUnprocessableEntity:
		relay(w, r, resp)
	case resp.StatusCode == http.StatusUnauthorized:
		if anonymous {
			writeJSONError(w, http.StatusUnauthorized, msgUnauthorized)
			return
		}
		writeAuthError(w, msgUnauthorized, true)
	case resp.StatusCode == http.StatusForbidden:
		writeJSONError(w, http.StatusForbidden, messages.Forbidden)
	case resp.StatusCode == http.StatusNotFound:
		writeJSONError(w, http.StatusNotFound, messages.NotFound)
	default:
		hlog.FromRequest(r).Warn().Int("upstream_status", resp.StatusCode).Str("target", target).Msg("upstream call refused")
		writeJSONError(w, resp.StatusCode, messages.Failed)
	}
}

// relay copies an upstream answer to the client untouched.
func relay(w http.ResponseWriter, r *http.Request, resp *http.Response) {
	for _, h := range []string{"Content-Type", "Content-Disposition", "Location"} {
		if v := resp.Header.Get(h); v != "" {
			w.Header().Set(h, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("relaying upstream body failed")
	}
}

// expandPath fills {name} segments of target with the escaped path values of r.
func expandPath(target string, r *http.Request) string {
	segments := strings.Split(target, "/")
	for i, seg := range segments {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			segments[i] = url.PathEscape(r.PathValue(seg[1 : len(seg)-1]))
		}
	}
	return strings.Join(segments, "/")
}
