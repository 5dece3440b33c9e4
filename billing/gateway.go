// Package billing runs the Stripe side of Cosflow premium: customer and checkout creation,
// the billing portal, and the webhook that keeps the backend's subscription state in sync.
package billing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

// Gateway is the slice of the Stripe API the gateway uses.
type Gateway interface {
	CreateCustomer(ctx context.Context, email, userID string) (string, error)
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (string, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
	Subscription(ctx context.Context, id string) (*stripe.Subscription, error)
}

type CheckoutRequest struct {
	CustomerID string
	UserID     string
	PriceID    string
	SuccessURL string
	CancelURL  string
}

// StripeGateway implements Gateway with the official client.
type StripeGateway struct {
	api *client.API
}

var _ Gateway = (*StripeGateway)(nil)

// NewStripeGateway talks to api.stripe.com unless backends overrides it.
func NewStripeGateway(secretKey string, backends *stripe.Backends) *StripeGateway {
	return &StripeGateway{api: client.New(secretKey, backends)}
}

func (g *StripeGateway) CreateCustomer(ctx context.Context, email, userID string) (string, error) {
	params := &stripe.CustomerParams{Email: stripe.String(email)}
	params.Context = ctx
	params.AddMetadata(MetadataUserID, userID)
	// a key per attempt: Stripe rejects a reused key whose parameters changed (a new email)
	params.SetIdempotencyKey(uuid.NewString())

	c, err := g.api.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("[billing CreateCustomer] user %s: %w", userID, err)
	}
	return c.ID, nil
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer:          stripe.String(req.CustomerID),
		ClientReferenceID: stripe.String(req.UserID),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(req.PriceID), Quantity: stripe.Int64(1)},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{MetadataUserID: req.UserID},
		},
	}
	params.Context = ctx
	params.SetIdempotencyKey(uuid.NewString())

	s, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("[billing CreateCheckoutSession] user %s: %w", req.UserID, err)
	}
	return s.URL, nil
}

func (g *StripeGateway) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	s, err := g.api.BillingPortalSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("[billing CreatePortalSession] customer %s: %w", customerID, err)
	}
	return s.URL, nil
}

func (g *StripeGateway) Subscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	sub, err := g.api.Subscriptions.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("[billing Subscription] %s: %w", id, err)
	}
	return sub, nil
}
