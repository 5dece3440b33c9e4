package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/cosflow/cosflow-web/billing"
	apperrors "github.com/cosflow/cosflow-web/internal/errors"
	"github.com/cosflow/cosflow-web/upstream"
	"github.com/rs/zerolog/hlog"
)

// billingURL loads the signed-in user through the session coordinator and asks Stripe for
// either a checkout or a portal link.
func (s *Server) billingURL(w http.ResponseWriter, r *http.Request, portal bool) (string, error) {
	if !s.billing.Enabled() {
		return "", apperrors.ErrBillingDisabled
	}

	var user *upstream.AuthUser
	_, err := s.coordinator.Do(r.Context(), w, s.requestSession(r), func(accessToken string) error {
		var err error
		user, err = s.upstream.CurrentUser(r.Context(), accessToken)
		return err
	})
	if err != nil {
		return "", err
	}

	if portal {
		return s.billing.PortalURL(r.Context(), user)
	}
	return s.billing.CheckoutURL(r.Context(), user)
}

func (s *Server) writeBillingError(w http.ResponseWriter, r *http.Request, err error, failed string) {
	switch {
	case apperrors.Is(err, apperrors.ErrBillingDisabled):
		writeJSONError(w, http.StatusServiceUnavailable, msgBillingNotConfigured)
	case apperrors.Is(err, apperrors.ErrNoCustomer):
		writeJSONError(w, http.StatusBadRequest, msgNoBillingAccount)
	case apperrors.Is(err, apperrors.ErrUpstream), apperrors.Is(err, apperrors.ErrNotAuthenticated), apperrors.Is(err, apperrors.ErrRefreshFailed):
		s.writeUpstreamError(w, r, err, userMessages)
	default:
		hlog.FromRequest(r).Error().Err(err).Msg("stripe call failed")
		writeJSONError(w, http.StatusBadGateway, failed)
	}
}

// CheckoutHandler starts a premium subscription checkout (POST /api/billing/checkout)
func (s *Server) CheckoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checkoutURL, err := s.billingURL(w, r, false)
		if err != nil {
			s.writeBillingError(w, r, err, msgCheckoutFailed)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"url": checkoutURL})
	}
}

// PortalHandler opens the Stripe billing portal (POST /api/billing/portal)
func (s *Server) PortalHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		portalURL, err := s.billingURL(w, r, true)
		if err != nil {
			s.writeBillingError(w, r, err, msgPortalFailed)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"url": portalURL})
	}
}

// CheckoutRedirectHandler is the pricing page form equivalent of CheckoutHandler (POST /billing/checkout)
func (s *Server) CheckoutRedirectHandler() http.HandlerFunc {
	return s.billingRedirect(false, RoutePricing)
}

// PortalRedirectHandler is the dashboard form equivalent of PortalHandler (POST /billing/portal)
func (s *Server) PortalRedirectHandler() http.HandlerFunc {
	return s.billingRedirect(true, RouteDashboard)
}

func (s *Server) billingRedirect(portal bool, fallback string) http.HandlerFunc {
	failed := msgCheckoutFailed
	if portal {
		failed = msgPortalFailed
	}

	return func(w http.ResponseWriter, r *http.Request) {
		target, err := s.billingURL(w, r, portal)
		switch {
		case err == nil:
			redirectSuccess(w, r, target)
		case apperrors.Is(err, apperrors.ErrNotAuthenticated), apperrors.Is(err, apperrors.ErrRefreshFailed), upstream.IsUnauthorized(err):
			s.redirectToLogin(w, r)
		case apperrors.Is(err, apperrors.ErrNoCustomer):
			redirectWithError(w, r, fallback, msgNoBillingAccount, nil)
		case apperrors.Is(err, apperrors.ErrBillingDisabled):
			redirectWithError(w, r, fallback, msgBillingNotConfigured, nil)
		default:
			hlog.FromRequest(r).Error().Err(err).Bool("portal", portal).Msg("billing redirect failed")
			redirectWithError(w, r, fallback, failed, nil)
		}
	}
}

// StripeWebhookHandler verifies and dispatches Stripe events (POST /api/webhooks/stripe).
// Verified events are acknowledged with 200; a failed backend sync answers 500 only when
// retry on sync failure is enabled.
func (s *Server) StripeWebhookHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.webhook == nil {
			writeJSONError(w, http.StatusServiceUnavailable, msgBillingNotConfigured)
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, billing.MaxWebhookBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeJSONError(w, http.StatusRequestEntityTooLarge, msgWebhookTooLarge)
				return
			}
			writeJSONError(w, http.StatusBadRequest, msgInvalidRequestBody)
			return
		}

		result, err := s.webhook.Handle(r.Context(), payload, r.Header.Get(billing.SignatureHeader))
		if err != nil {
			var syncErr *billing.SyncError
			switch {
			case apperrors.Is(err, apperrors.ErrInvalidSignature):
				hlog.FromRequest(r).Warn().Err(err).Msg("stripe webhook rejected")
				writeJSONError(w, http.StatusBadRequest, msgInvalidSignature)
				return
			case apperrors.Is(err, apperrors.ErrBillingDisabled):
				writeJSONError(w, http.StatusServiceUnavailable, msgBillingNotConfigured)
				return
			case apperrors.As(err, &syncErr) && !s.webhook.RetryOnSyncFailure():
				// already logged by the dispatcher; Stripe gets its acknowledgment
			default:
				writeJSONError(w, http.StatusInternalServerError, msgWebhookNotProcessed)
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"received": true, "duplicate": result.Duplicate})
	}
}
