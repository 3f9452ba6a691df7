package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"hppgate/internal/metrics"
	"hppgate/internal/models"
	"hppgate/internal/payment"
	"hppgate/internal/repository"
)

// StatusCancelled is the status signal the cancel URL carries.
const StatusCancelled = "cancelled"

// Callback is the browser's return from the hosted payment page.
type Callback struct {
	Ref             models.PayableRef
	PaymentIntentID string
	StatusSignal    string
}

// Outcome is the terminal state of one reconciliation.
type Outcome struct {
	Ref       models.PayableRef
	IntentID  string
	PaymentID uint

	// Committed is true when a completed local payment exists for the intent.
	Committed bool
	// Replayed is true when the payment had already been committed earlier.
	Replayed  bool
	Cancelled bool

	Kind payment.Kind
	Err  error
}

// Success reports whether the payer should see the success page.
func (o Outcome) Success() bool {
	return o.Committed
}

// Reason is the short payer-facing text for a failed outcome.
func (o Outcome) Reason() string {
	if o.Committed {
		return ""
	}
	if o.Cancelled {
		return "The payment was cancelled."
	}
	return o.Kind.Reason()
}

func (o Outcome) label() string {
	switch {
	case o.Replayed:
		return "replayed"
	case o.Committed:
		return "committed"
	case o.Cancelled:
		return "cancelled"
	default:
		return strings.ToLower(string(o.Kind))
	}
}

// Reconciler is the only writer of completed local payments.
type Reconciler struct {
	connector payment.Connector
	configs   ConfigLoader
	payables  PayableResolver
	fees      FeePolicy
	ledger    Ledger
	deliverer Deliverer
	records   IntentRecords
	attempts  Attempts
	tx        Transactor
	notifier  Notifier
	gateway   string
	metrics   *metrics.PaymentMetrics
	logger    *zap.Logger
}

// ReconcilerDeps are the collaborators of a Reconciler. Notifier and Metrics
// are optional.
type ReconcilerDeps struct {
	Connector payment.Connector
	Configs   ConfigLoader
	Payables  PayableResolver
	Fees      FeePolicy
	Ledger    Ledger
	Deliverer Deliverer
	Records   IntentRecords
	Attempts  Attempts
	Tx        Transactor
	Notifier  Notifier
	Gateway   string
	Metrics   *metrics.PaymentMetrics
	Logger    *zap.Logger
}

func NewReconciler(d ReconcilerDeps) *Reconciler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &Reconciler{
		connector: d.Connector,
		configs:   d.Configs,
		payables:  d.Payables,
		fees:      d.Fees,
		ledger:    d.Ledger,
		deliverer: d.Deliverer,
		records:   d.Records,
		attempts:  d.Attempts,
		tx:        d.Tx,
		notifier:  d.Notifier,
		gateway:   d.Gateway,
		metrics:   d.Metrics,
		logger:    d.Logger,
	}
}

// HandleCallback reconciles a browser return. It never panics and never
// trusts a status or amount supplied by the browser.
func (r *Reconciler) HandleCallback(ctx context.Context, cb Callback) (out Outcome) {
	out = Outcome{Ref: cb.Ref, IntentID: strings.TrimSpace(cb.PaymentIntentID)}
	defer r.finish("callback", &out)

	if strings.EqualFold(strings.TrimSpace(cb.StatusSignal), StatusCancelled) {
		out.Cancelled = true
		out.Kind = payment.KindPaymentNotCleared
		return out
	}
	if out.IntentID == "" {
		return fail(out, payment.NewError(payment.KindInvalidCallback, "callback has no payment intent id", nil))
	}

	ref := cb.Ref
	return r.reconcile(ctx, out, &ref)
}

// ReconcileIntent reconciles an intent known only by id, as webhooks and the
// pending sweep do. The payable and payer come from the checkout attempt.
func (r *Reconciler) ReconcileIntent(ctx context.Context, intentID, source string) (out Outcome) {
	out = Outcome{IntentID: strings.TrimSpace(intentID)}
	defer r.finish(source, &out)

	if out.IntentID == "" {
		return fail(out, payment.NewError(payment.KindInvalidCallback, "no payment intent id", nil))
	}
	return r.reconcile(ctx, out, nil)
}

func (r *Reconciler) finish(source string, out *Outcome) {
	if rec := recover(); rec != nil {
		*out = fail(*out, payment.NewError(payment.KindInternal, "panic during reconciliation", fmt.Errorf("%v", rec)))
		r.logger.Error("reconciliation panicked",
			zap.String("intent_id", out.IntentID),
			zap.Any("panic", rec),
			zap.Stack("stack"),
		)
	}
	r.metrics.Reconcile(source, out.label())

	fields := []zap.Field{
		zap.String("source", source),
		zap.String("intent_id", out.IntentID),
		zap.String("payable", out.Ref.String()),
		zap.String("outcome", out.label()),
	}
	switch {
	case out.Committed:
		r.logger.Info("payment reconciled", append(fields, zap.Uint("payment_id", out.PaymentID), zap.Bool("replayed", out.Replayed))...)
	case out.Kind == payment.KindInternal:
		r.logger.Error("payment reconciliation failed", append(fields, zap.Error(out.Err))...)
	default:
		r.logger.Warn("payment not reconciled", append(fields, zap.Error(out.Err))...)
	}
}

func fail(out Outcome, err error) Outcome {
	out.Committed = false
	out.Replayed = false
	out.Kind = payment.KindOf(err)
	out.Err = err
	return out
}

func (r *Reconciler) reconcile(ctx context.Context, out Outcome, expected *models.PayableRef) Outcome {
	attempt, err := r.attempts.FindByIntentID(ctx, out.IntentID)
	if err != nil {
		return fail(out, payment.NewError(payment.KindInternal, "load checkout attempt", err))
	}
	if attempt == nil {
		return fail(out, payment.NewError(payment.KindInvalidCallback, "unknown payment intent", nil))
	}
	ref := attempt.Ref()
	if expected != nil && *expected != ref {
		return fail(out, payment.NewError(payment.KindInvalidCallback,
			fmt.Sprintf("intent belongs to %s, callback names %s", ref, expected), nil))
	}
	out.Ref = ref

	cfg, err := r.configs.LoadGatewayConfig(ctx, ref)
	if err != nil {
		return fail(out, payment.NewError(payment.KindInternal, "load gateway config", err))
	}
	if cfg == nil || !cfg.Configured() {
		return fail(out, payment.NewError(payment.KindNotConfigured, "no gateway credentials for "+ref.String(), nil))
	}

	started := time.Now()
	gw, err := r.connector.Dial(ctx, *cfg)
	r.metrics.ObserveGateway("authenticate", started)
	if err != nil {
		return fail(out, err)
	}
	started = time.Now()
	intent, err := gw.VerifyIntent(ctx, out.IntentID)
	r.metrics.ObserveGateway("verify_intent", started)
	if err != nil {
		if !payment.IsKind(err, payment.KindVerification) {
			err = payment.NewError(payment.KindVerification, "verify intent", err)
		}
		return fail(out, err)
	}
	if intent.Status != payment.StatusSucceeded {
		if intent.Status == payment.StatusFailed && attempt.Status == models.AttemptStatusPending {
			if err := r.attempts.UpdateStatus(ctx, out.IntentID, models.AttemptStatusFailed); err != nil {
				r.logger.Warn("mark attempt failed", zap.String("intent_id", out.IntentID), zap.Error(err))
			}
		}
		return fail(out, payment.NewError(payment.KindPaymentNotCleared, "intent status is "+intent.RawStatus, nil))
	}

	payable, err := r.payables.FindByRef(ctx, ref)
	if err != nil {
		return fail(out, payment.NewError(payment.KindInternal, "resolve payable", err))
	}
	if payable == nil {
		return fail(out, payment.NewError(payment.KindNotConfigured, "unknown payable "+ref.String(), nil))
	}
	cost := r.fees.RoundCost(payable.Amount, payable.Currency, r.fees.Surcharge(r.gateway))
	currency := strings.ToUpper(payable.Currency)
	r.checkAmount(out.IntentID, intent, attempt, cost, currency)

	if done, err := r.committedPayment(ctx, out.IntentID); err != nil {
		return fail(out, payment.NewError(payment.KindInternal, "load intent record", err))
	} else if done != 0 {
		out.Committed, out.Replayed, out.PaymentID = true, true, done
		return out
	}

	paymentID, err := r.commit(ctx, out.IntentID, ref, attempt.UserID, payable.AccountID, cost, currency)
	if errors.Is(err, repository.ErrIntentClaimed) {
		done, rerr := r.committedPayment(ctx, out.IntentID)
		if rerr != nil || done == 0 {
			return fail(out, payment.NewError(payment.KindInternal, "re-read claimed intent", errors.Join(err, rerr)))
		}
		out.Committed, out.Replayed, out.PaymentID = true, true, done
		return out
	}
	if err != nil {
		return fail(out, payment.NewError(payment.KindInternal, "commit payment", err))
	}

	out.Committed, out.PaymentID = true, paymentID
	r.notify(ctx, Receipt{
		Ref:       ref,
		IntentID:  out.IntentID,
		PaymentID: paymentID,
		UserID:    attempt.UserID,
		Cost:      cost,
		Currency:  currency,
	})
	return out
}

// commit writes the payment, claims the intent and delivers the order in one
// transaction. Nothing is kept if any step fails.
func (r *Reconciler) commit(ctx context.Context, intentID string, ref models.PayableRef, userID int64, accountID uint, cost decimal.Decimal, currency string) (uint, error) {
	var paymentID uint
	err := r.tx.RunInTx(ctx, func(ctx context.Context) error {
		p := &models.Payment{
			AccountID:   accountID,
			Component:   ref.Component,
			PaymentArea: ref.PaymentArea,
			ItemID:      ref.ItemID,
			UserID:      userID,
			Amount:      cost,
			Currency:    currency,
			Gateway:     r.gateway,
			Status:      models.PaymentStatusPending,
		}
		if err := r.ledger.Create(ctx, p); err != nil {
			return fmt.Errorf("persist payment: %w", err)
		}
		if _, err := r.records.Claim(ctx, intentID, p.ID); err != nil {
			return err
		}
		if err := r.deliverer.Deliver(ctx, ref, p.ID, userID); err != nil {
			return fmt.Errorf("deliver order: %w", err)
		}
		if err := r.ledger.MarkComplete(ctx, p.ID); err != nil {
			return fmt.Errorf("complete payment: %w", err)
		}
		if err := r.attempts.UpdateStatus(ctx, intentID, models.AttemptStatusCommitted); err != nil {
			return fmt.Errorf("mark attempt committed: %w", err)
		}
		paymentID = p.ID
		return nil
	})
	return paymentID, err
}

// committedPayment returns the id of the completed payment linked to
// intentID, or 0.
func (r *Reconciler) committedPayment(ctx context.Context, intentID string) (uint, error) {
	record, err := r.records.FindByIntentID(ctx, intentID)
	if err != nil || record == nil {
		return 0, err
	}
	p, err := r.ledger.FindByID(ctx, record.PaymentID)
	if err != nil || p == nil {
		return 0, err
	}
	if p.Status != models.PaymentStatusComplete {
		return 0, nil
	}
	return p.ID, nil
}

// checkAmount logs when the processor charged something other than the
// recomputed cost. The recomputed cost is what gets recorded.
func (r *Reconciler) checkAmount(intentID string, intent *payment.Intent, attempt *models.CheckoutAttempt, cost decimal.Decimal, currency string) {
	if !attempt.Cost.Equal(cost) || !strings.EqualFold(attempt.Currency, currency) {
		r.logger.Warn("payable price changed since checkout",
			zap.String("intent_id", intentID),
			zap.String("attempt_cost", attempt.Cost.String()),
			zap.String("cost", cost.String()),
		)
	}
	if intent.Amount.IsZero() && intent.Currency == "" {
		return
	}
	if !intent.Amount.Equal(cost) || !strings.EqualFold(intent.Currency, currency) {
		r.logger.Warn("processor amount differs from recomputed cost",
			zap.String("intent_id", intentID),
			zap.String("remote_amount", intent.Amount.String()),
			zap.String("remote_currency", intent.Currency),
			zap.String("cost", cost.String()),
			zap.String("currency", currency),
		)
	}
}

func (r *Reconciler) notify(ctx context.Context, receipt Receipt) {
	if r.notifier == nil {
		return
	}
	if err := r.notifier.PaymentCommitted(ctx, receipt); err != nil {
		r.logger.Warn("payment notification failed", zap.String("intent_id", receipt.IntentID), zap.Error(err))
	}
}
