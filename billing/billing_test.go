package billing_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cosflow/cosflow-web/billing"
	apperrors "github.com/cosflow/cosflow-web/internal/errors"
	"github.com/cosflow/cosflow-web/upstream"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

const testWebhookSecret = "whsec_test_secret"

type fakeGateway struct {
	mu            sync.Mutex
	subscriptions map[string]*stripe.Subscription
	customers     []string
	checkouts     []billing.CheckoutRequest
	portals       []string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{subscriptions: map[string]*stripe.Subscription{}}
}

func (g *fakeGateway) CreateCustomer(_ context.Context, email, userID string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.customers = append(g.customers, userID)
	return "cus_new_" + userID, nil
}

func (g *fakeGateway) CreateCheckoutSession(_ context.Context, req billing.CheckoutRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.checkouts = append(g.checkouts, req)
	return "https://checkout.stripe.test/c/" + req.CustomerID, nil
}

func (g *fakeGateway) CreatePortalSession(_ context.Context, customerID, returnURL string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.portals = append(g.portals, customerID)
	return "https://billing.stripe.test/p/" + customerID, nil
}

func (g *fakeGateway) Subscription(_ context.Context, id string) (*stripe.Subscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	sub, ok := g.subscriptions[id]
	if !ok {
		return nil, errors.New("no such subscription")
	}
	return sub, nil
}

type fakeSyncer struct {
	mu    sync.Mutex
	calls []upstream.SubscriptionSync
	err   error
}

func (s *fakeSyncer) SyncSubscription(_ context.Context, sync upstream.SubscriptionSync) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, sync)
	return s.err
}

func signedEvent(t *testing.T, id, eventType string, object any) ([]byte, string) {
	t.Helper()
	raw, err := json.Marshal(object)
	require.NoError(t, err)
	payload, err := json.Marshal(map[string]any{
		"id":          id,
		"object":      "event",
		"type":        eventType,
		"api_version": stripe.APIVersion,
		"created":     time.Now().Unix(),
		"data":        map[string]any{"object": json.RawMessage(raw)},
	})
	require.NoError(t, err)

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	return signed.Payload, signed.Header
}

func activeSubscription(status stripe.SubscriptionStatus) *stripe.Subscription {
	return &stripe.Subscription{
		ID:               "sub_1",
		Status:           status,
		Customer:         &stripe.Customer{ID: "cus_1"},
		CurrentPeriodEnd: 1893456000,
		Metadata:         map[string]string{billing.MetadataUserID: "7"},
	}
}

func TestWebhook_InvalidSignatureNeverDispatches(t *testing.T) {
	syncer := &fakeSyncer{}
	events := billing.NewMemoryEventStore()
	h := billing.NewWebhook(testWebhookSecret, newFakeGateway(), syncer, events, false)

	payload, _ := signedEvent(t, "evt_1", billing.EventSubscriptionUpdated, activeSubscription(stripe.SubscriptionStatusActive))

	_, err := h.Handle(context.Background(), payload, "t=1,v1=deadbeef")
	require.ErrorIs(t, err, apperrors.ErrInvalidSignature)
	require.Empty(t, syncer.calls)

	// the event was never claimed, so a correctly signed redelivery still goes through
	claimed, err := events.Claim(context.Background(), "evt_1")
	require.NoError(t, err)
	require.True(t, claimed)
}

func TestWebhook_CheckoutCompletedSyncsOnce(t *testing.T) {
	for _, status := range []stripe.SubscriptionStatus{stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing} {
		t.Run(string(status), func(t *testing.T) {
			gateway := newFakeGateway()
			gateway.subscriptions["sub_1"] = activeSubscription(status)
			syncer := &fakeSyncer{}
			h := billing.NewWebhook(testWebhookSecret, gateway, syncer, nil, false)

			payload, header := signedEvent(t, "evt_checkout", billing.EventCheckoutCompleted, map[string]any{
				"id":                  "cs_1",
				"object":              "checkout.session",
				"mode":                "subscription",
				"client_reference_id": "42",
				"customer":            "cus_1",
				"subscription":        "sub_1",
			})

			result, err := h.Handle(context.Background(), payload, header)
			require.NoError(t, err)
			require.True(t, result.Handled)
			require.Len(t, syncer.calls, 1)

			got := syncer.calls[0]
			require.Equal(t, "42", got.UserID)
			require.Equal(t, "cus_1", got.CustomerID)
			require.Equal(t, "sub_1", got.SubscriptionID)
			require.Equal(t, string(status), got.Status)
			require.True(t, got.IsPremium)
			require.NotNil(t, got.CurrentPeriodEnd)
			require.Equal(t, int64(1893456000), got.CurrentPeriodEnd.Unix())
		})
	}
}

func TestWebhook_CheckoutPaymentModeIgnored(t *testing.T) {
	syncer := &fakeSyncer{}
	h := billing.NewWebhook(testWebhookSecret, newFakeGateway(), syncer, nil, false)

	payload, header := signedEvent(t, "evt_pay", billing.EventCheckoutCompleted, map[string]any{
		"id": "cs_2", "object": "checkout.session", "mode": "payment",
	})

	result, err := h.Handle(context.Background(), payload, header)
	require.NoError(t, err)
	require.False(t, result.Handled)
	require.Empty(t, syncer.calls)
}

func TestWebhook_SubscriptionDeletedIsNotPremium(t *testing.T) {
	syncer := &fakeSyncer{}
	h := billing.NewWebhook(testWebhookSecret, newFakeGateway(), syncer, nil, false)

	payload, header := signedEvent(t, "evt_del", billing.EventSubscriptionDeleted, map[string]any{
		"id":                 "sub_1",
		"object":             "subscription",
		"status":             "active",
		"customer":           "cus_1",
		"current_period_end": 1893456000,
		"metadata":           map[string]string{billing.MetadataUserID: "7"},
	})

	_, err := h.Handle(context.Background(), payload, header)
	require.NoError(t, err)
	require.Len(t, syncer.calls, 1)
	require.Equal(t, "canceled", syncer.calls[0].Status)
	require.False(t, syncer.calls[0].IsPremium)
	require.Equal(t, "7", syncer.calls[0].UserID)
}

func TestWebhook_InvoicePaymentFailed(t *testing.T) {
	gateway := newFakeGateway()
	gateway.subscriptions["sub_1"] = activeSubscription(stripe.SubscriptionStatusPastDue)
	syncer := &fakeSyncer{}
	h := billing.NewWebhook(testWebhookSecret, gateway, syncer, nil, false)

	payload, header := signedEvent(t, "evt_inv", billing.EventInvoicePaymentFailed, map[string]any{
		"id": "in_1", "object": "invoice", "customer": "cus_1", "subscription": "sub_1",
	})

	_, err := h.Handle(context.Background(), payload, header)
	require.NoError(t, err)
	require.Len(t, syncer.calls, 1)
	require.Equal(t, "past_due", syncer.calls[0].Status)
	require.False(t, syncer.calls[0].IsPremium)
}

func TestWebhook_UnhandledTypeAcknowledged(t *testing.T) {
	syncer := &fakeSyncer{}
	h := billing.NewWebhook(testWebhookSecret, newFakeGateway(), syncer, nil, false)

	payload, header := signedEvent(t, "evt_other", "customer.created", map[string]any{"id": "cus_1", "object": "customer"})

	result, err := h.Handle(context.Background(), payload, header)
	require.NoError(t, err)
	require.False(t, result.Handled)
	require.Empty(t, syncer.calls)
}

func TestWebhook_DuplicateDeliverySyncsOnce(t *testing.T) {
	syncer := &fakeSyncer{}
	h := billing.NewWebhook(testWebhookSecret, newFakeGateway(), syncer, nil, false)
	payload, header := signedEvent(t, "evt_dup", billing.EventSubscriptionUpdated, activeSubscription(stripe.SubscriptionStatusActive))

	_, err := h.Handle(context.Background(), payload, header)
	require.NoError(t, err)
	result, err := h.Handle(context.Background(), payload, header)
	require.NoError(t, err)
	require.True(t, result.Duplicate)
	require.Len(t, syncer.calls, 1)
}

func TestWebhook_SyncFailure(t *testing.T) {
	for _, retry := range []bool{false, true} {
		syncer := &fakeSyncer{err: errors.New("backend down")}
		events := billing.NewMemoryEventStore()
		h := billing.NewWebhook(testWebhookSecret, newFakeGateway(), syncer, events, retry)
		payload, header := signedEvent(t, "evt_fail", billing.EventSubscriptionUpdated, activeSubscription(stripe.SubscriptionStatusActive))

		_, err := h.Handle(context.Background(), payload, header)
		var syncErr *billing.SyncError
		require.ErrorAs(t, err, &syncErr)
		require.Equal(t, "evt_fail", syncErr.EventID)
		require.Equal(t, retry, h.RetryOnSyncFailure())

		// in retry mode the claim is released so Stripe's redelivery is processed
		claimed, err := events.Claim(context.Background(), "evt_fail")
		require.NoError(t, err)
		require.Equal(t, retry, claimed)
	}
}

func TestIsPremium(t *testing.T) {
	require.True(t, billing.IsPremium("active"))
	require.True(t, billing.IsPremium("trialing"))
	require.False(t, billing.IsPremium("past_due"))
	require.False(t, billing.IsPremium("canceled"))
	require.False(t, billing.IsPremium(""))
}

func TestService_CheckoutCreatesCustomerOnce(t *testing.T) {
	gateway := newFakeGateway()
	svc := billing.NewService(gateway, "price_premium", "https://cosflow.test")

	url, err := svc.CheckoutURL(context.Background(), &upstream.AuthUser{ID: 7, Email: "cos@example.com"})
	require.NoError(t, err)
	require.Equal(t, "https://checkout.stripe.test/c/cus_new_7", url)
	require.Equal(t, []string{"7"}, gateway.customers)
	require.Equal(t, "https://cosflow.test/dashboard?checkout=success", gateway.checkouts[0].SuccessURL)
	require.Equal(t, "price_premium", gateway.checkouts[0].PriceID)

	_, err = svc.CheckoutURL(context.Background(), &upstream.AuthUser{ID: 8, StripeCustomerID: "cus_8"})
	require.NoError(t, err)
	require.Len(t, gateway.customers, 1)
	require.Equal(t, "cus_8", gateway.checkouts[1].CustomerID)
}

func TestService_Portal(t *testing.T) {
	gateway := newFakeGateway()
	svc := billing.NewService(gateway, "price_premium", "https://cosflow.test")

	_, err := svc.PortalURL(context.Background(), &upstream.AuthUser{ID: 7})
	require.ErrorIs(t, err, apperrors.ErrNoCustomer)

	url, err := svc.PortalURL(context.Background(), &upstream.AuthUser{ID: 7, StripeCustomerID: "cus_7"})
	require.NoError(t, err)
	require.Equal(t, "https://billing.stripe.test/p/cus_7", url)
}

func TestService_Disabled(t *testing.T) {
	_, err := billing.NewService(nil, "", "").CheckoutURL(context.Background(), &upstream.AuthUser{ID: 1})
	require.ErrorIs(t, err, apperrors.ErrBillingDisabled)
}

func TestRedisEventStore(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	store := billing.NewRedisEventStore(rdb)
	ctx := context.Background()

	claimed, err := store.Claim(ctx, "evt_1")
	require.NoError(t, err)
	require.True(t, claimed)

	claimed, err = store.Claim(ctx, "evt_1")
	require.NoError(t, err)
	require.False(t, claimed)
	require.Greater(t, mr.TTL("cosflow:stripe:event:evt_1"), 71*time.Hour)

	require.NoError(t, store.Release(ctx, "evt_1"))
	claimed, err = store.Claim(ctx, "evt_1")
	require.NoError(t, err)
	require.True(t, claimed)
}

func TestNewEventStore_DefaultsToMemory(t *testing.T) {
	store, closeFn, err := billing.NewEventStore(context.Background(), "")
	require.NoError(t, err)
	require.NoError(t, closeFn())
	require.IsType(t, &billing.MemoryEventStore{}, store)
}
