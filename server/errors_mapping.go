package server

import (
	"net/http"

	apperrors "github.com/cosflow/cosflow-web/internal/errors"
	"github.com/cosflow/cosflow-web/upstream"
	"github.com/rs/zerolog/hlog"
)

// writeUpstreamError maps an error from a typed upstream call (made through the session
// coordinator) onto the same JSON contract the proxy uses.
func (s *Server) writeUpstreamError(w http.ResponseWriter, r *http.Request, err error, messages ResourceMessages) {
	switch {
	case apperrors.Is(err, apperrors.ErrNotAuthenticated):
		writeAuthError(w, msgNotAuthenticated, false)
	case apperrors.Is(err, apperrors.ErrRefreshFailed):
		writeAuthError(w, msgSessionExpired, false)
	case apperrors.Is(err, apperrors.ErrUnauthorized):
		writeAuthError(w, msgUnauthorized, true)
	case apperrors.Is(err, apperrors.ErrForbidden):
		writeJSONError(w, http.StatusForbidden, messages.Forbidden)
	case apperrors.Is(err, apperrors.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, messages.NotFound)
	case apperrors.Is(err, apperrors.ErrValidation):
		var upstreamErr *upstream.Error
		if !apperrors.As(err, &upstreamErr) {
			writeJSONError(w, http.StatusUnprocessableEntity, messages.Failed)
			return
		}
		w.Header().Set("Content-Type", contentTypeJSON)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write(upstreamErr.Body)
	default:
		if status := upstream.StatusOf(err); status != 0 {
			hlog.FromRequest(r).Warn().Err(err).Msg("upstream call refused")
			writeJSONError(w, status, messages.Failed)
			return
		}
		hlog.FromRequest(r).Error().Err(err).Msg("upstream call failed")
		writeJSONError(w, http.StatusInternalServerError, msgInternalServerError)
	}
}
