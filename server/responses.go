package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	contentTypeHTML = "text/html; charset=utf-8"
	contentTypeJSON = "application/json; charset=utf-8"
)

// Fixed messages returned by the JSON API
const (
	msgNotAuthenticated      = "Not authenticated"
	msgUnauthorized          = "Unauthorized"
	msgSessionExpired        = "Session expired"
	msgNoRefreshToken        = "No refresh token"
	msgInternalServerError   = "Internal server error"
	msgCredentialsRequired   = "Email and password are required"
	msgTooManyAttempts       = "Too many login attempts. Please try again later."
	msgInvalidRequestBody    = "Invalid request body"
	msgUnsupportedLocale     = "Unsupported locale"
	msgBillingNotConfigured  = "Billing is not configured"
	msgNoBillingAccount      = "No billing account found"
	msgCheckoutFailed        = "Failed to start checkout"
	msgPortalFailed          = "Failed to open billing portal"
	msgInvalidSignature      = "Invalid signature"
	msgWebhookTooLarge       = "Payload too large"
	msgWebhookNotProcessed   = "Webhook could not be processed"
	msgUserFetchFailed       = "Failed to fetch user"
	msgRegistrationFailed    = "Registration failed"
	msgBudgetFetchFailed     = "Failed to compute budget"
	msgProjectNotFound       = "Project not found"
	msgProjectAccessDenied   = "You do not have access to this project"
	msgProfileNotFound       = "Profile not found"
	msgProfileAccessDenied   = "This profile is private"
	msgElementNotFound       = "Element not found"
	msgElementAccessDenied   = "You do not have access to this element"
	msgTimesheetNotFound     = "Time entry not found"
	msgTimesheetAccessDenied = "You do not have access to this time entry"
	msgCategoryNotFound      = "Category not found"
	msgCategoryAccessDenied  = "You do not have access to this category"
	msgImageNotFound         = "Image not found"
	msgImageAccessDenied     = "You do not have access to this image"
)

type errorBody struct {
	Error        string `json:"error"`
	NeedsRefresh *bool  `json:"needsRefresh,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warn().Err(err).Msg("failed to write JSON response")
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message})
}

// writeAuthError answers 401 and tells the browser whether a refresh is worth trying.
func writeAuthError(w http.ResponseWriter, message string, needsRefresh bool) {
	writeJSON(w, http.StatusUnauthorized, errorBody{Error: message, NeedsRefresh: &needsRefresh})
}

func isAPIRequest(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, "/api/")
}

// redirectSuccess helper for htmx-aware redirects
func redirectSuccess(w http.ResponseWriter, r *http.Request, path string) {
	if isHTMXRequest(r) {
		w.Header().Set("HX-Redirect", path)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, path, http.StatusSeeOther)
}

// redirectWithError helper for htmx-aware error redirects
func redirectWithError(w http.ResponseWriter, r *http.Request, path, errorMsg string, extra url.Values) {
	query := url.Values{}
	for k, v := range extra {
		query[k] = v
	}
	query.Set("error", errorMsg)
	redirectSuccess(w, r, path+"?"+query.Encode())
}

// isHTMXRequest checks if the request was initiated by HTMX
func isHTMXRequest(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// localPath keeps post-login redirects on this site.
func localPath(next, fallback string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return fallback
	}
	return next
}
