package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	apperrors "github.com/cosflow/cosflow-web/internal/errors"
	"github.com/cosflow/cosflow-web/internal/utils"
	"github.com/cosflow/cosflow-web/upstream"
	"github.com/rs/zerolog/log"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

// Handled Stripe event types
const (
	EventCheckoutCompleted    = "checkout.session.completed"
	EventSubscriptionUpdated  = "customer.subscription.updated"
	EventSubscriptionDeleted  = "customer.subscription.deleted"
	EventInvoicePaymentFailed = "invoice.payment_failed"
)

const (
	SignatureHeader = "Stripe-Signature"

	MaxWebhookBodyBytes int64 = 64 << 10
)

// Syncer pushes normalized subscription state to the backend.
type Syncer interface {
	SyncSubscription(ctx context.Context, sync upstream.SubscriptionSync) error
}

// Result describes what a verified event led to.
type Result struct {
	EventID   string
	EventType string
	Handled   bool
	Duplicate bool
	Sync      *upstream.SubscriptionSync
}

// SyncError reports a verified event whose backend sync did not happen.
type SyncError struct {
	EventID   string
	EventType string
	Err       error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("syncing %s (%s): %v", e.EventType, e.EventID, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

type Webhook struct {
	secret             string
	gateway            Gateway
	syncer             Syncer
	events             EventStore
	retryOnSyncFailure bool
}

func NewWebhook(secret string, gateway Gateway, syncer Syncer, events EventStore, retryOnSyncFailure bool) *Webhook {
	if events == nil {
		events = NewMemoryEventStore()
	}
	return &Webhook{
		secret:             secret,
		gateway:            gateway,
		syncer:             syncer,
		events:             events,
		retryOnSyncFailure: retryOnSyncFailure,
	}
}

// RetryOnSyncFailure reports whether a *SyncError should be answered with a 5xx so Stripe redelivers.
func (h *Webhook) RetryOnSyncFailure() bool {
	return h.retryOnSyncFailure
}

// Verify checks the Stripe-Signature header against the configured secret.
func (h *Webhook) Verify(payload []byte, signature string) (stripe.Event, error) {
	if h.secret == "" {
		return stripe.Event{}, apperrors.ErrBillingDisabled
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, h.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, apperrors.Wrapf(apperrors.ErrInvalidSignature, "%v", err)
	}
	return event, nil
}

// Handle verifies and dispatches one webhook delivery. Signature failures return
// ErrInvalidSignature before any dispatch happens.
func (h *Webhook) Handle(ctx context.Context, payload []byte, signature string) (Result, error) {
	event, err := h.Verify(payload, signature)
	if err != nil {
		return Result{}, err
	}
	return h.Dispatch(ctx, event)
}

// Dispatch maps a verified event onto at most one backend sync call.
func (h *Webhook) Dispatch(ctx context.Context, event stripe.Event) (Result, error) {
	result := Result{EventID: event.ID, EventType: string(event.Type)}
	logger := log.Ctx(ctx).With().Str("stripe_event", event.ID).Str("type", result.EventType).Logger()

	claimed, err := h.events.Claim(ctx, event.ID)
	if err != nil {
		logger.Warn().Err(err).Msg("event store unavailable, processing without deduplication")
		claimed = true
	}
	if !claimed {
		result.Duplicate = true
		logger.Info().Msg("duplicate stripe event ignored")
		return result, nil
	}

	sync, err := h.buildSync(ctx, event)
	if err == nil && sync != nil {
		result.Handled = true
		result.Sync = sync
		err = h.syncer.SyncSubscription(ctx, *sync)
	}
	if err != nil {
		if h.retryOnSyncFailure {
			if releaseErr := h.events.Release(ctx, event.ID); releaseErr != nil {
				logger.Warn().Err(releaseErr).Msg("could not release stripe event claim")
			}
		}
		logger.Error().Err(err).Msg("stripe event not synced")
		return result, &SyncError{EventID: event.ID, EventType: result.EventType, Err: err}
	}

	if !result.Handled {
		logger.Info().Msg("unhandled stripe event acknowledged")
		return result, nil
	}
	logger.Info().Str("user_id", sync.UserID).Str("status", sync.Status).Bool("is_premium", sync.IsPremium).Msg("subscription synced")
	return result, nil
}

// buildSync returns nil, nil for events that need no sync.
func (h *Webhook) buildSync(ctx context.Context, event stripe.Event) (*upstream.SubscriptionSync, error) {
	if event.Data == nil {
		return nil, fmt.Errorf("event %s has no data", event.ID)
	}
	raw := event.Data.Raw

	switch string(event.Type) {
	case EventCheckoutCompleted:
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(raw, &cs); err != nil {
			return nil, fmt.Errorf("decoding checkout session: %w", err)
		}
		if cs.Mode != stripe.CheckoutSessionModeSubscription || cs.Subscription == nil {
			return nil, nil
		}
		sub, err := h.gateway.Subscription(ctx, cs.Subscription.ID)
		if err != nil {
			return nil, err
		}
		sync := syncFromSubscription(sub, utils.FirstNonEmpty(cs.ClientReferenceID, cs.Metadata[MetadataUserID]))
		if cs.Customer != nil {
			sync.CustomerID = cs.Customer.ID
		}
		return sync, nil

	case EventSubscriptionUpdated, EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(raw, &sub); err != nil {
			return nil, fmt.Errorf("decoding subscription: %w", err)
		}
		sync := syncFromSubscription(&sub, "")
		if string(event.Type) == EventSubscriptionDeleted {
			sync.Status = string(stripe.SubscriptionStatusCanceled)
			sync.IsPremium = false
		}
		return sync, nil

	case EventInvoicePaymentFailed:
		var inv stripe.Invoice
		if err := json.Unmarshal(raw, &inv); err != nil {
			return nil, fmt.Errorf("decoding invoice: %w", err)
		}
		if inv.Subscription == nil {
			return nil, nil
		}
		sub, err := h.gateway.Subscription(ctx, inv.Subscription.ID)
		if err != nil {
			return nil, err
		}
		sync := syncFromSubscription(sub, "")
		if inv.Customer != nil {
			sync.CustomerID = utils.FirstNonEmpty(sync.CustomerID, inv.Customer.ID)
		}
		return sync, nil
	}
	return nil, nil
}

func syncFromSubscription(sub *stripe.Subscription, userID string) *upstream.SubscriptionSync {
	sync := &upstream.SubscriptionSync{
		UserID:         utils.FirstNonEmpty(userID, sub.Metadata[MetadataUserID]),
		SubscriptionID: sub.ID,
		Status:         string(sub.Status),
		IsPremium:      IsPremium(string(sub.Status)),
	}
	if sub.Customer != nil {
		sync.CustomerID = sub.Customer.ID
	}
	if sub.CurrentPeriodEnd > 0 {
		sync.CurrentPeriodEnd = utils.Ptr(time.Unix(sub.CurrentPeriodEnd, 0).UTC())
	}
	return sync
}

// IsPremium is true for subscriptions that grant premium access.
func IsPremium(status string) bool {
	return status == string(stripe.SubscriptionStatusActive) || status == string(stripe.SubscriptionStatusTrialing)
}
