package billing

import (
	"context"
	"strconv"

	apperrors "github.com/cosflow/cosflow-web/internal/errors"
	"github.com/cosflow/cosflow-web/upstream"
)

// MetadataUserID ties Stripe customers and subscriptions back to the upstream user.
const MetadataUserID = "user_id"

// Service builds checkout and billing portal links for a signed-in user.
type Service struct {
	gateway Gateway
	priceID string
	baseURL string
}

func NewService(gateway Gateway, priceID, baseURL string) *Service {
	return &Service{gateway: gateway, priceID: priceID, baseURL: baseURL}
}

func (s *Service) Enabled() bool {
	return s != nil && s.gateway != nil && s.priceID != ""
}

// CheckoutURL starts a premium subscription checkout, creating the Stripe customer on first use.
func (s *Service) CheckoutURL(ctx context.Context, user *upstream.AuthUser) (string, error) {
	if !s.Enabled() {
		return "", apperrors.ErrBillingDisabled
	}
	userID := strconv.FormatInt(user.ID, 10)

	customerID := user.StripeCustomerID
	if customerID == "" {
		id, err := s.gateway.CreateCustomer(ctx, user.Email, userID)
		if err != nil {
			return "", err
		}
		customerID = id
	}

	return s.gateway.CreateCheckoutSession(ctx, CheckoutRequest{
		CustomerID: customerID,
		UserID:     userID,
		PriceID:    s.priceID,
		SuccessURL: s.baseURL + "/dashboard?checkout=success",
		CancelURL:  s.baseURL + "/pricing?checkout=cancelled",
	})
}

// PortalURL opens the Stripe billing portal for a user who already has a customer record.
func (s *Service) PortalURL(ctx context.Context, user *upstream.AuthUser) (string, error) {
	if s == nil || s.gateway == nil {
		return "", apperrors.ErrBillingDisabled
	}
	if user.StripeCustomerID == "" {
		return "", apperrors.ErrNoCustomer
	}
	return s.gateway.CreatePortalSession(ctx, user.StripeCustomerID, s.baseURL+"/dashboard")
}
