package payment

import (
	"context"

	"github.com/shopspring/decimal"
)

// IntentStatus is the normalized processor status of a payment intent.
type IntentStatus string

const (
	StatusPending   IntentStatus = "pending"
	StatusSucceeded IntentStatus = "succeeded"
	StatusFailed    IntentStatus = "failed"
	StatusOther     IntentStatus = "other"
)

// GatewayConfig holds the processor credentials for one payable.
type GatewayConfig struct {
	AccountID     uint
	ClientID      string
	APIKey        string
	WebhookSecret string
	Sandbox       bool
}

// Configured reports whether the credentials needed to authenticate are set.
func (c GatewayConfig) Configured() bool {
	return c.ClientID != "" && c.APIKey != ""
}

// Environment is the processor environment name, "demo" or "prod".
func (c GatewayConfig) Environment() string {
	if c.Sandbox {
		return "demo"
	}
	return "prod"
}

// CreateIntentRequest describes one checkout attempt. Amount is already
// rounded to the currency's minor unit.
type CreateIntentRequest struct {
	Amount          decimal.Decimal
	Currency        string
	MerchantOrderID string
	ReturnURL       string
	CancelURL       string
	Description     string
}

// Intent is the processor's view of a payment intent.
type Intent struct {
	ID              string
	ClientSecret    string
	Status          IntentStatus
	RawStatus       string
	RedirectURL     string
	Amount          decimal.Decimal
	Currency        string
	MerchantOrderID string
}

// Gateway defines the operations available on an authenticated processor
// session.
type Gateway interface {
	// CreateIntent creates a new remote payment intent.
	CreateIntent(ctx context.Context, req CreateIntentRequest) (*Intent, error)

	// VerifyIntent fetches the authoritative status of an intent.
	VerifyIntent(ctx context.Context, intentID string) (*Intent, error)

	// VerifyWebhookSignature checks a `t=<unix>,v1=<hex>` signature header.
	VerifyWebhookSignature(header string, payload []byte) bool
}

// Connector opens an authenticated Gateway for one logical operation.
type Connector interface {
	Dial(ctx context.Context, cfg GatewayConfig) (Gateway, error)
}
