package upstream

import (
	"encoding/json"
	"fmt"
	"net/http"

	apperrors "github.com/cosflow/cosflow-web/internal/errors"
	"github.com/cosflow/cosflow-web/internal/utils"
)

// Error is a non-2xx answer from the upstream API.
type Error struct {
	Status  int
	Message string
	Body    []byte
}

func NewError(status int, body []byte) *Error {
	return &Error{
		Status:  status,
		Message: utils.FirstNonEmpty(messageFromBody(body), http.StatusText(status)),
		Body:    body,
	}
}

func (e *Error) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.Status, e.Message)
}

// Is lets callers match upstream errors against the gateway's status classes.
func (e *Error) Is(target error) bool {
	switch target {
	case apperrors.ErrUpstream:
		return true
	case apperrors.ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case apperrors.ErrForbidden:
		return e.Status == http.StatusForbidden
	case apperrors.ErrNotFound:
		return e.Status == http.StatusNotFound
	case apperrors.ErrValidation:
		return e.Status == http.StatusUnprocessableEntity
	}
	return false
}

// messageFromBody picks the human message out of a Laravel or OAuth error body.
func messageFromBody(body []byte) string {
	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		return ""
	}
	for _, key := range []string{"message", "error_description", "error"} {
		if s, ok := fields[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// StatusOf returns the upstream status carried by err, or 0 when err did not come from an upstream answer.
func StatusOf(err error) int {
	var upstreamErr *Error
	if apperrors.As(err, &upstreamErr) {
		return upstreamErr.Status
	}
	return 0
}

func IsUnauthorized(err error) bool {
	return apperrors.Is(err, apperrors.ErrUnauthorized)
}

func IsValidation(err error) bool {
	return apperrors.Is(err, apperrors.ErrValidation)
}
