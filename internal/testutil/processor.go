package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"hppgate/internal/models"
	"hppgate/internal/payment"
)

// FakeProcessor is an in-memory payment processor. It implements both
// payment.Connector and payment.Gateway.
type FakeProcessor struct {
	mu      sync.Mutex
	intents map[string]*payment.Intent
	seq     int
	cfg     payment.GatewayConfig

	DialErr   error
	CreateErr error
	VerifyErr error
	// VerifyHook, when set, runs at the start of every VerifyIntent call.
	VerifyHook func()

	Dials    int
	Creates  int
	Verifies int
	Requests []payment.CreateIntentRequest
}

func NewFakeProcessor() *FakeProcessor {
	return &FakeProcessor{intents: map[string]*payment.Intent{}}
}

func (f *FakeProcessor) Dial(ctx context.Context, cfg payment.GatewayConfig) (payment.Gateway, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Dials++
	if !cfg.Configured() {
		return nil, payment.NewError(payment.KindNotConfigured, "gateway credentials are missing", nil)
	}
	if f.DialErr != nil {
		return nil, f.DialErr
	}
	f.cfg = cfg
	return f, nil
}

func (f *FakeProcessor) CreateIntent(ctx context.Context, req payment.CreateIntentRequest) (*payment.Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Creates++
	f.Requests = append(f.Requests, req)
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	f.seq++
	id := fmt.Sprintf("int_%03d", f.seq)
	intent := &payment.Intent{
		ID:              id,
		ClientSecret:    "secret_" + id,
		Status:          payment.StatusPending,
		RawStatus:       "REQUIRES_PAYMENT_METHOD",
		RedirectURL:     "https://hpp.test/pay/" + id,
		Amount:          req.Amount,
		Currency:        req.Currency,
		MerchantOrderID: req.MerchantOrderID,
	}
	f.intents[id] = intent
	cp := *intent
	return &cp, nil
}

func (f *FakeProcessor) VerifyIntent(ctx context.Context, intentID string) (*payment.Intent, error) {
	f.mu.Lock()
	f.Verifies++
	hook := f.VerifyHook
	f.mu.Unlock()
	if hook != nil {
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.VerifyErr != nil {
		return nil, f.VerifyErr
	}
	intent, ok := f.intents[intentID]
	if !ok {
		return nil, payment.NewError(payment.KindVerification, "intent lookup returned status 404", nil)
	}
	cp := *intent
	return &cp, nil
}

func (f *FakeProcessor) VerifyWebhookSignature(header string, payload []byte) bool {
	f.mu.Lock()
	secret := f.cfg.WebhookSecret
	f.mu.Unlock()
	return payment.VerifySignature(secret, header, payload, 5*time.Minute, time.Now())
}

// AddIntent registers an intent as if it had been created earlier.
func (f *FakeProcessor) AddIntent(intent payment.Intent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intents[intent.ID] = &intent
}

// SetStatus changes an intent's processor status.
func (f *FakeProcessor) SetStatus(intentID, raw string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if intent, ok := f.intents[intentID]; ok {
		intent.RawStatus = raw
		intent.Status = payment.MapStatus(raw)
	}
}

// Calls returns the dial, create and verify counters.
func (f *FakeProcessor) Calls() (dials, creates, verifies int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Dials, f.Creates, f.Verifies
}

// Course is the payable SeedCatalog creates.
var Course = models.PayableRef{Component: "enrol_fee", PaymentArea: "fee", ItemID: 7}

// WebhookSecret is the secret of the gateway account SeedCatalog creates.
const WebhookSecret = "whsec_test"

// SeedCatalog creates the Course payable (49.90 EUR on account 3) and an
// enabled sandbox gateway account for it.
func SeedCatalog(t *testing.T, db *gorm.DB, gateway string) models.PayableRef {
	t.Helper()
	require.NoError(t, db.Create(&models.Payable{
		Component:   Course.Component,
		PaymentArea: Course.PaymentArea,
		ItemID:      Course.ItemID,
		AccountID:   3,
		Amount:      decimal.RequireFromString("49.90"),
		Currency:    "EUR",
	}).Error)
	require.NoError(t, db.Create(&models.GatewayAccount{
		AccountID:     3,
		Gateway:       gateway,
		Enabled:       true,
		ClientID:      "client-test",
		APIKey:        "key-test",
		WebhookSecret: WebhookSecret,
		Environment:   "sandbox",
	}).Error)
	return Course
}
