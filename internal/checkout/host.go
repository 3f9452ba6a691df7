// Package checkout turns a payable into a processor payment intent and
// reconciles the processor's answer into exactly one local payment.
package checkout

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"hppgate/internal/models"
	"hppgate/internal/payment"
)

// ConfigLoader returns the processor credentials for a payable, or nil when
// none are configured.
type ConfigLoader interface {
	LoadGatewayConfig(ctx context.Context, ref models.PayableRef) (*payment.GatewayConfig, error)
}

// PayableResolver returns the server-side price of a payable, or nil.
type PayableResolver interface {
	FindByRef(ctx context.Context, ref models.PayableRef) (*models.Payable, error)
}

// FeePolicy computes the trusted cost.
type FeePolicy interface {
	Surcharge(gateway string) decimal.Decimal
	RoundCost(amount decimal.Decimal, currency string, surcharge decimal.Decimal) decimal.Decimal
}

// Ledger is the host's payment ledger.
type Ledger interface {
	Create(ctx context.Context, payment *models.Payment) error
	FindByID(ctx context.Context, id uint) (*models.Payment, error)
	MarkComplete(ctx context.Context, id uint) error
}

// Deliverer performs the host-side fulfilment for a completed payment.
type Deliverer interface {
	Deliver(ctx context.Context, ref models.PayableRef, paymentID uint, userID int64) error
}

// IntentRecords maps processor intents to local payments.
type IntentRecords interface {
	FindByIntentID(ctx context.Context, intentID string) (*models.IntentRecord, error)
	Claim(ctx context.Context, intentID string, paymentID uint) (*models.IntentRecord, error)
}

// Attempts stores the server-side record of each created intent.
type Attempts interface {
	Create(ctx context.Context, attempt *models.CheckoutAttempt) error
	FindByIntentID(ctx context.Context, intentID string) (*models.CheckoutAttempt, error)
	UpdateStatus(ctx context.Context, intentID, status string) error
	MarkExpired(ctx context.Context, intentID string) error
	FindPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.CheckoutAttempt, error)
}

// Transactor runs fn in one database transaction; repositories called with
// the context passed to fn take part in it.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Receipt describes a freshly committed payment.
type Receipt struct {
	Ref       models.PayableRef
	IntentID  string
	PaymentID uint
	UserID    int64
	Cost      decimal.Decimal
	Currency  string
}

// Notifier is told about every fresh commit, never about replays.
type Notifier interface {
	PaymentCommitted(ctx context.Context, receipt Receipt) error
}
