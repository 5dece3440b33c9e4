package config

type BillingConfig interface {
	GetStripeSecretKey() string
	GetStripeWebhookSecret() string
	GetStripePriceID() string
	GetBackendWebhookSecret() string
	GetRetryWebhookOnSyncFailure() bool
	GetRedisURL() string
}

type Billing struct{}

var _ BillingConfig = Billing{}

func (Billing) GetStripeSecretKey() string {
	return GetEnv("STRIPE_SECRET_KEY", "")
}

func (Billing) GetStripeWebhookSecret() string {
	return GetEnv("STRIPE_WEBHOOK_SECRET", "")
}

func (Billing) GetStripePriceID() string {
	return GetEnv("STRIPE_PRICE_ID", "")
}

// GetBackendWebhookSecret is sent to the upstream sync endpoint so it can trust the gateway.
func (Billing) GetBackendWebhookSecret() string {
	return GetEnv("BACKEND_WEBHOOK_SECRET", "")
}

// GetRetryWebhookOnSyncFailure makes the webhook answer 500 when the backend sync fails,
// so Stripe redelivers the event. Off by default: verified events are always acknowledged.
func (Billing) GetRetryWebhookOnSyncFailure() bool {
	return GetEnvBool("STRIPE_WEBHOOK_RETRY_ON_SYNC_FAILURE", false)
}

// GetRedisURL enables the Redis webhook idempotency store when set.
func (Billing) GetRedisURL() string {
	return GetEnv("REDIS_URL", "")
}
