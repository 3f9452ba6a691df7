package checkout

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"hppgate/internal/models"
	"hppgate/internal/payment"
	"hppgate/internal/pricing"
	"hppgate/internal/repository"
	"hppgate/internal/testutil"
)

const testGateway = "hpp"

var expectedCost = decimal.RequireFromString("50.90") // 49.90 EUR + 2%

type countingDeliverer struct {
	mu    sync.Mutex
	inner *repository.DeliveryRepository
	calls int
	err   error
	panic bool
}

func (d *countingDeliverer) Deliver(ctx context.Context, ref models.PayableRef, paymentID uint, userID int64) error {
	d.mu.Lock()
	d.calls++
	err, shouldPanic := d.err, d.panic
	d.mu.Unlock()
	if shouldPanic {
		panic("fulfilment exploded")
	}
	if err != nil {
		return err
	}
	return d.inner.Deliver(ctx, ref, paymentID, userID)
}

func (d *countingDeliverer) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type recordingNotifier struct {
	mu       sync.Mutex
	receipts []Receipt
}

func (n *recordingNotifier) PaymentCommitted(ctx context.Context, r Receipt) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.receipts = append(n.receipts, r)
	return nil
}

func (n *recordingNotifier) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.receipts)
}

type harness struct {
	db        *gorm.DB
	proc      *testutil.FakeProcessor
	orch      *Orchestrator
	rec       *Reconciler
	deliverer *countingDeliverer
	notifier  *recordingNotifier
	attempts  *repository.AttemptRepository
	ref       models.PayableRef
}

func newHarness(t *testing.T, mode string) *harness {
	t.Helper()
	db := testutil.NewDB(t)
	ref := testutil.SeedCatalog(t, db, testGateway)

	proc := testutil.NewFakeProcessor()
	configs := repository.NewGatewayConfigLoader(db, testGateway)
	payables := repository.NewPayableRepository(db)
	fees := pricing.NewPolicy(2)
	attempts := repository.NewAttemptRepository(db)
	deliverer := &countingDeliverer{inner: repository.NewDeliveryRepository(db)}
	notifier := &recordingNotifier{}

	orch := NewOrchestrator(proc, configs, payables, fees, attempts, Settings{
		Gateway:   testGateway,
		Mode:      mode,
		PublicURL: "https://lms.test/",
	}, nil, zap.NewNop())

	rec := NewReconciler(ReconcilerDeps{
		Connector: proc,
		Configs:   configs,
		Payables:  payables,
		Fees:      fees,
		Ledger:    repository.NewPaymentRepository(db),
		Deliverer: deliverer,
		Records:   repository.NewIntentRecordRepository(db),
		Attempts:  attempts,
		Tx:        repository.NewTransactor(db),
		Notifier:  notifier,
		Gateway:   testGateway,
		Logger:    zap.NewNop(),
	})

	return &harness{
		db: db, proc: proc, orch: orch, rec: rec,
		deliverer: deliverer, notifier: notifier, attempts: attempts, ref: ref,
	}
}

func (h *harness) begin(t *testing.T, payer int64) string {
	t.Helper()
	res, err := h.orch.Begin(context.Background(), CheckoutRequest{Ref: h.ref, PayerID: payer})
	require.NoError(t, err)
	switch r := res.(type) {
	case *RedirectResult:
		return r.PaymentIntentID
	case *SDKResult:
		return r.PaymentIntentID
	}
	t.Fatalf("unexpected result %T", res)
	return ""
}

func (h *harness) count(t *testing.T, model interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.db.Model(model).Count(&n).Error)
	return n
}

func TestBegin_Redirect(t *testing.T) {
	h := newHarness(t, ModeRedirect)

	res, err := h.orch.Begin(context.Background(), CheckoutRequest{Ref: h.ref, PayerID: 42})
	require.NoError(t, err)

	redirect, ok := res.(*RedirectResult)
	require.True(t, ok, "got %T", res)
	assert.Equal(t, ModeRedirect, res.Mode())
	assert.Equal(t, "int_001", redirect.PaymentIntentID)
	assert.Equal(t, "https://hpp.test/pay/int_001", redirect.RedirectURL)
	assert.True(t, expectedCost.Equal(redirect.Cost), "cost %s", redirect.Cost)
	assert.Equal(t, "EUR", redirect.Currency)

	require.Len(t, h.proc.Requests, 1)
	sent := h.proc.Requests[0]
	assert.True(t, expectedCost.Equal(sent.Amount))
	assert.Equal(t, "EUR", sent.Currency)
	assert.Regexp(t, `^enrol_fee-fee-7-\d{13}-[0-9a-f]{8}$`, sent.MerchantOrderID)

	ret, err := url.Parse(sent.ReturnURL)
	require.NoError(t, err)
	assert.Equal(t, "/payment/callback", ret.Path)
	assert.Equal(t, "lms.test", ret.Host)
	assert.Equal(t, "enrol_fee", ret.Query().Get("component"))
	assert.Equal(t, "fee", ret.Query().Get("paymentarea"))
	assert.Equal(t, "7", ret.Query().Get("itemid"))
	assert.Empty(t, ret.Query().Get("status"))

	cancel, err := url.Parse(sent.CancelURL)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancel.Query().Get("status"))

	attempt, err := h.attempts.FindByIntentID(context.Background(), "int_001")
	require.NoError(t, err)
	require.NotNil(t, attempt)
	assert.Equal(t, int64(42), attempt.UserID)
	assert.Equal(t, h.ref, attempt.Ref())
	assert.Equal(t, sent.MerchantOrderID, attempt.MerchantOrderID)
	assert.Equal(t, models.AttemptStatusPending, attempt.Status)
	assert.True(t, expectedCost.Equal(attempt.Cost))
}

func TestBegin_SDK(t *testing.T) {
	h := newHarness(t, ModeSDK)

	res, err := h.orch.Begin(context.Background(), CheckoutRequest{Ref: h.ref, PayerID: 42})
	require.NoError(t, err)

	sdk, ok := res.(*SDKResult)
	require.True(t, ok, "got %T", res)
	assert.Equal(t, "client-test", sdk.ClientID)
	assert.Equal(t, "int_001", sdk.PaymentIntentID)
	assert.Equal(t, "secret_int_001", sdk.ClientSecret)
	assert.Equal(t, "demo", sdk.Environment)
	assert.True(t, expectedCost.Equal(sdk.Cost))
	assert.Equal(t, "EUR", sdk.Currency)
	assert.Contains(t, sdk.ReturnURL, "https://lms.test/payment/callback?")
	assert.Contains(t, sdk.CancelURL, "status=cancelled")
}

func TestBegin_NewIntentPerAttempt(t *testing.T) {
	h := newHarness(t, ModeRedirect)

	first := h.begin(t, 42)
	second := h.begin(t, 42)

	assert.NotEqual(t, first, second)
	require.Len(t, h.proc.Requests, 2)
	assert.NotEqual(t, h.proc.Requests[0].MerchantOrderID, h.proc.Requests[1].MerchantOrderID)
	assert.Equal(t, int64(2), h.count(t, &models.CheckoutAttempt{}))
}

func TestBegin_Failures(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		h := newHarness(t, ModeRedirect)
		_, err := h.orch.Begin(context.Background(), CheckoutRequest{
			Ref: models.PayableRef{Component: "other", PaymentArea: "fee", ItemID: 1}, PayerID: 1,
		})
		assert.Equal(t, payment.KindNotConfigured, payment.KindOf(err))
		dials, creates, _ := h.proc.Calls()
		assert.Zero(t, dials)
		assert.Zero(t, creates)
	})

	t.Run("missing api key", func(t *testing.T) {
		h := newHarness(t, ModeRedirect)
		require.NoError(t, h.db.Model(&models.GatewayAccount{}).Where("account_id = ?", 3).Update("api_key", "").Error)
		_, err := h.orch.Begin(context.Background(), CheckoutRequest{Ref: h.ref, PayerID: 1})
		assert.Equal(t, payment.KindNotConfigured, payment.KindOf(err))
	})

	t.Run("auth error", func(t *testing.T) {
		h := newHarness(t, ModeRedirect)
		h.proc.DialErr = payment.NewError(payment.KindAuth, "authentication rejected with status 401", nil)
		_, err := h.orch.Begin(context.Background(), CheckoutRequest{Ref: h.ref, PayerID: 1})
		assert.Equal(t, payment.KindAuth, payment.KindOf(err))
	})

	t.Run("create fails", func(t *testing.T) {
		h := newHarness(t, ModeRedirect)
		h.proc.CreateErr = payment.NewError(payment.KindIntentCreationFailed, "intent creation response has no id", nil)
		_, err := h.orch.Begin(context.Background(), CheckoutRequest{Ref: h.ref, PayerID: 1})
		assert.Equal(t, payment.KindIntentCreationFailed, payment.KindOf(err))
		assert.Zero(t, h.count(t, &models.CheckoutAttempt{}))
		assert.Zero(t, h.count(t, &models.IntentRecord{}))
	})

	t.Run("untyped create error", func(t *testing.T) {
		h := newHarness(t, ModeRedirect)
		h.proc.CreateErr = errors.New("socket closed")
		_, err := h.orch.Begin(context.Background(), CheckoutRequest{Ref: h.ref, PayerID: 1})
		assert.Equal(t, payment.KindIntentCreationFailed, payment.KindOf(err))
	})
}

func TestHandleCallback_Cancelled(t *testing.T) {
	h := newHarness(t, ModeRedirect)
	intentID := h.begin(t, 42)
	dialsBefore, _, _ := h.proc.Calls()

	out := h.rec.HandleCallback(context.Background(), Callback{Ref: h.ref, PaymentIntentID: intentID, StatusSignal: "cancelled"})

	assert.False(t, out.Success())
	assert.True(t, out.Cancelled)
	assert.Equal(t, "The payment was cancelled.", out.Reason())
	dials, _, verifies := h.proc.Calls()
	assert.Equal(t, dialsBefore, dials, "no processor call on cancel")
	assert.Zero(t, verifies)
	assert.Zero(t, h.count(t, &models.IntentRecord{}))
	assert.Zero(t, h.deliverer.Calls())
}

func TestHandleCallback_MissingIntentID(t *testing.T) {
	h := newHarness(t, ModeRedirect)

	out := h.rec.HandleCallback(context.Background(), Callback{Ref: h.ref})

	assert.False(t, out.Success())
	assert.Equal(t, payment.KindInvalidCallback, out.Kind)
	_, _, verifies := h.proc.Calls()
	assert.Zero(t, verifies)
}

func TestHandleCallback_UnknownIntentOrPayable(t *testing.T) {
	h := newHarness(t, ModeRedirect)
	intentID := h.begin(t, 42)
	h.proc.SetStatus(intentID, "SUCCEEDED")

	out := h.rec.HandleCallback(context.Background(), Callback{Ref: h.ref, PaymentIntentID: "int_forged"})
	assert.Equal(t, payment.KindInvalidCallback, out.Kind)

	other := models.PayableRef{Component: "enrol_fee", PaymentArea: "fee", ItemID: 8}
	out = h.rec.HandleCallback(context.Background(), Callback{Ref: other, PaymentIntentID: intentID})
	assert.Equal(t, payment.KindInvalidCallback, out.Kind)

	assert.Zero(t, h.count(t, &models.IntentRecord{}))
	assert.Zero(t, h.deliverer.Calls())
}

func TestHandleCallback_Succeeded(t *testing.T) {
	h := newHarness(t, ModeRedirect)
	intentID := h.begin(t, 42)
	h.proc.SetStatus(intentID, "SUCCEEDED")

	out := h.rec.HandleCallback(context.Background(), Callback{Ref: h.ref, PaymentIntentID: intentID, StatusSignal: "succeeded"})

	require.True(t, out.Success(), "outcome: %+v", out)
	assert.False(t, out.Replayed)
	assert.NotZero(t, out.PaymentID)
	assert.Equal(t, 1, h.deliverer.Calls())
	assert.Equal(t, int64(1), h.count(t, &models.IntentRecord{}))
	assert.Equal(t, int64(1), h.count(t, &models.OrderDelivery{}))
	assert.Equal(t, 1, h.notifier.Count())

	var p models.Payment
	require.NoError(t, h.db.First(&p, out.PaymentID).Error)
	assert.Equal(t, models.PaymentStatusComplete, p.Status)
	assert.Equal(t, int64(42), p.UserID)
	assert.Equal(t, uint(3), p.AccountID)
	assert.Equal(t, "EUR", p.Currency)
	assert.Equal(t, testGateway, p.Gateway)
	assert.True(t, expectedCost.Equal(p.Amount), "amount %s", p.Amount)

	attempt, err := h.attempts.FindByIntentID(context.Background(), intentID)
	require.NoError(t, err)
	assert.Equal(t, models.AttemptStatusCommitted, attempt.Status)
}

func TestHandleCallback_Idempotent(t *testing.T) {
	h := newHarness(t, ModeRedirect)
	intentID := h.begin(t, 42)
	h.proc.SetStatus(intentID, "SUCCEEDED")
	cb := Callback{Ref: h.ref, PaymentIntentID: intentID}

	first := h.rec.HandleCallback(context.Background(), cb)
	second := h.rec.HandleCallback(context.Background(), cb)

	assert.True(t, first.Success())
	assert.True(t, second.Success())
	assert.True(t, second.Replayed)
	assert.Equal(t, first.PaymentID, second.PaymentID)
	assert.Equal(t, 1, h.deliverer.Calls())
	assert.Equal(t, int64(1), h.count(t, &models.IntentRecord{}))
	assert.Equal(t, int64(1), h.count(t, &models.Payment{}))
	assert.Equal(t, 1, h.notifier.Count(), "replays are not notified")
}

func TestHandleCallback_NotSucceeded(t *testing.T) {
	for _, status := range []string{"FAILED", "REQUIRES_PAYMENT_METHOD", "CANCELLED"} {
		t.Run(status, func(t *testing.T) {
			h := newHarness(t, ModeRedirect)
			intentID := h.begin(t, 42)
			h.proc.SetStatus(intentID, status)

			out := h.rec.HandleCallback(context.Background(), Callback{Ref: h.ref, PaymentIntentID: intentID, StatusSignal: "succeeded"})

			assert.False(t, out.Success())
			assert.Equal(t, payment.KindPaymentNotCleared, out.Kind)
			assert.Zero(t, h.count(t, &models.IntentRecord{}))
			assert.Zero(t, h.count(t, &models.Payment{}))
			assert.Zero(t, h.deliverer.Calls())

			attempt, err := h.attempts.FindByIntentID(context.Background(), intentID)
			require.NoError(t, err)
			if payment.MapStatus(status) == payment.StatusFailed {
				assert.Equal(t, models.AttemptStatusFailed, attempt.Status)
			} else {
				assert.Equal(t, models.AttemptStatusPending, attempt.Status)
			}
		})
	}
}

func TestHandleCallback_VerificationError(t *testing.T) {
	h := newHarness(t, ModeRedirect)
	intentID := h.begin(t, 42)
	h.proc.VerifyErr = errors.New("read: connection reset by peer")

	out := h.rec.HandleCallback(context.Background(), Callback{Ref: h.ref, PaymentIntentID: intentID})

	assert.False(t, out.Success())
	assert.Equal(t, payment.KindVerification, out.Kind)
	assert.Zero(t, h.count(t, &models.IntentRecord{}))
}

func TestHandleCallback_NotConfiguredAtCallback(t *testing.T) {
	h := newHarness(t, ModeRedirect)
	intentID := h.begin(t, 42)
	require.NoError(t, h.db.Model(&models.GatewayAccount{}).Where("account_id = ?", 3).Update("enabled", false).Error)

	out := h.rec.HandleCallback(context.Background(), Callback{Ref: h.ref, PaymentIntentID: intentID})

	assert.Equal(t, payment.KindNotConfigured, out.Kind)
	_, _, verifies := h.proc.Calls()
	assert.Zero(t, verifies)
}

func TestHandleCallback_DeliveryFailureRollsBack(t *testing.T) {
	h := newHarness(t, ModeRedirect)
	intentID := h.begin(t, 42)
	h.proc.SetStatus(intentID, "SUCCEEDED")
	h.deliverer.err = errors.New("enrolment service down")
	cb := Callback{Ref: h.ref, PaymentIntentID: intentID}

	out := h.rec.HandleCallback(context.Background(), cb)
	assert.False(t, out.Success())
	assert.Equal(t, payment.KindInternal, out.Kind)
	assert.Zero(t, h.count(t, &models.IntentRecord{}))
	assert.Zero(t, h.count(t, &models.Payment{}))
	assert.Zero(t, h.notifier.Count())

	h.deliverer.err = nil
	out = h.rec.HandleCallback(context.Background(), cb)
	assert.True(t, out.Success())
	assert.False(t, out.Replayed)
	assert.Equal(t, int64(1), h.count(t, &models.OrderDelivery{}))
}

func TestHandleCallback_PanicBecomesInternalError(t *testing.T) {
	h := newHarness(t, ModeRedirect)
	intentID := h.begin(t, 42)
	h.proc.SetStatus(intentID, "SUCCEEDED")
	h.deliverer.panic = true

	var out Outcome
	assert.NotPanics(t, func() {
		out = h.rec.HandleCallback(context.Background(), Callback{Ref: h.ref, PaymentIntentID: intentID})
	})
	assert.False(t, out.Success())
	assert.Equal(t, payment.KindInternal, out.Kind)
	assert.Equal(t, intentID, out.IntentID)
	assert.Zero(t, h.count(t, &models.IntentRecord{}))
}

func TestHandleCallback_RecomputesCost(t *testing.T) {
	h := newHarness(t, ModeRedirect)
	intentID := h.begin(t, 42)
	h.proc.SetStatus(intentID, "SUCCEEDED")
	require.NoError(t, h.db.Model(&models.Payable{}).Where("item_id = ?", 7).Update("amount", decimal.NewFromInt(100)).Error)

	out := h.rec.HandleCallback(context.Background(), Callback{Ref: h.ref, PaymentIntentID: intentID})
	require.True(t, out.Success())

	var p models.Payment
	require.NoError(t, h.db.First(&p, out.PaymentID).Error)
	assert.True(t, decimal.NewFromInt(102).Equal(p.Amount), "amount %s", p.Amount)
}

func TestHandleCallback_Concurrent(t *testing.T) {
	h := newHarness(t, ModeRedirect)
	intentID := h.begin(t, 42)
	h.proc.SetStatus(intentID, "SUCCEEDED")

	const n = 8
	var arrived sync.WaitGroup
	arrived.Add(n)
	h.proc.VerifyHook = func() {
		arrived.Done()
		arrived.Wait()
	}

	outcomes := make([]Outcome, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i] = h.rec.HandleCallback(context.Background(), Callback{Ref: h.ref, PaymentIntentID: intentID})
		}(i)
	}
	wg.Wait()

	fresh := 0
	for _, out := range outcomes {
		assert.True(t, out.Success(), "outcome: %+v", out)
		if !out.Replayed {
			fresh++
		}
	}
	assert.Equal(t, 1, fresh)
	assert.Equal(t, 1, h.deliverer.Calls())
	assert.Equal(t, int64(1), h.count(t, &models.IntentRecord{}))
	assert.Equal(t, int64(1), h.count(t, &models.Payment{}))
	assert.Equal(t, 1, h.notifier.Count())
}

// staleRecords misses the first lookup, as a writer that read before the
// winner committed would.
type staleRecords struct {
	IntentRecords
	mu     sync.Mutex
	missed bool
}

func (s *staleRecords) FindByIntentID(ctx context.Context, intentID string) (*models.IntentRecord, error) {
	s.mu.Lock()
	miss := !s.missed
	s.missed = true
	s.mu.Unlock()
	if miss {
		return nil, nil
	}
	return s.IntentRecords.FindByIntentID(ctx, intentID)
}

func TestHandleCallback_LosingWriterFallsBackToCommitted(t *testing.T) {
	h := newHarness(t, ModeRedirect)
	intentID := h.begin(t, 42)
	h.proc.SetStatus(intentID, "SUCCEEDED")
	cb := Callback{Ref: h.ref, PaymentIntentID: intentID}

	first := h.rec.HandleCallback(context.Background(), cb)
	require.True(t, first.Success(), "outcome: %+v", first)

	loser := *h.rec
	loser.records = &staleRecords{IntentRecords: repository.NewIntentRecordRepository(h.db)}

	out := loser.HandleCallback(context.Background(), cb)
	require.True(t, out.Success(), "outcome: %+v", out)
	assert.True(t, out.Replayed)
	assert.Equal(t, first.PaymentID, out.PaymentID)

	assert.Equal(t, 1, h.deliverer.Calls())
	assert.Equal(t, int64(1), h.count(t, &models.IntentRecord{}))
	assert.Equal(t, int64(1), h.count(t, &models.Payment{}))
	assert.Equal(t, int64(1), h.count(t, &models.OrderDelivery{}))
	assert.Equal(t, 1, h.notifier.Count())
}

func TestReconcileIntent(t *testing.T) {
	h := newHarness(t, ModeRedirect)
	intentID := h.begin(t, 42)
	h.proc.SetStatus(intentID, "SUCCEEDED")

	out := h.rec.ReconcileIntent(context.Background(), intentID, "webhook")
	require.True(t, out.Success())
	assert.Equal(t, h.ref, out.Ref)

	out = h.rec.ReconcileIntent(context.Background(), "", "webhook")
	assert.Equal(t, payment.KindInvalidCallback, out.Kind)
}

func TestSweepPending(t *testing.T) {
	h := newHarness(t, ModeRedirect)
	paid := h.begin(t, 42)
	abandoned := h.begin(t, 43)
	recent := h.begin(t, 44)
	h.proc.SetStatus(paid, "SUCCEEDED")
	h.proc.SetStatus(recent, "SUCCEEDED")

	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, h.db.Model(&models.CheckoutAttempt{}).
		Where("intent_id IN ?", []string{paid, abandoned}).
		Update("created_at", old).Error)

	stats, err := h.rec.SweepPending(context.Background(), 15*time.Minute, time.Hour, 10)
	require.NoError(t, err)
	assert.Equal(t, SweepStats{Scanned: 2, Committed: 1, Expired: 1}, stats)

	attempt, err := h.attempts.FindByIntentID(context.Background(), abandoned)
	require.NoError(t, err)
	assert.Equal(t, models.AttemptStatusExpired, attempt.Status)

	attempt, err = h.attempts.FindByIntentID(context.Background(), recent)
	require.NoError(t, err)
	assert.Equal(t, models.AttemptStatusPending, attempt.Status, "young attempts are left alone")
	assert.Equal(t, 1, h.deliverer.Calls())
}

func TestCallbackURL(t *testing.T) {
	ref := models.PayableRef{Component: "mod fee", PaymentArea: "a&b", ItemID: 3}
	u, err := url.Parse(CallbackURL("https://lms.test/", ref, false))
	require.NoError(t, err)
	assert.Equal(t, "mod fee", u.Query().Get("component"))
	assert.Equal(t, "a&b", u.Query().Get("paymentarea"))
	assert.Equal(t, "3", u.Query().Get("itemid"))
}
