package checkout

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"hppgate/internal/metrics"
	"hppgate/internal/models"
	"hppgate/internal/payment"
	"hppgate/internal/pkg/utils"
)

// Settings are the process-wide checkout options.
type Settings struct {
	Gateway   string // gateway name used for surcharge and ledger rows
	Mode      string // ModeRedirect or ModeSDK
	PublicURL string // base URL the processor sends the browser back to
}

// Orchestrator creates payment intents for payables.
type Orchestrator struct {
	connector payment.Connector
	configs   ConfigLoader
	payables  PayableResolver
	fees      FeePolicy
	attempts  Attempts
	settings  Settings
	metrics   *metrics.PaymentMetrics
	logger    *zap.Logger
	now       func() time.Time
}

func NewOrchestrator(
	connector payment.Connector,
	configs ConfigLoader,
	payables PayableResolver,
	fees FeePolicy,
	attempts Attempts,
	settings Settings,
	m *metrics.PaymentMetrics,
	logger *zap.Logger,
) *Orchestrator {
	if settings.Mode != ModeSDK {
		settings.Mode = ModeRedirect
	}
	settings.PublicURL = strings.TrimRight(settings.PublicURL, "/")
	return &Orchestrator{
		connector: connector,
		configs:   configs,
		payables:  payables,
		fees:      fees,
		attempts:  attempts,
		settings:  settings,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

// Begin creates a new remote intent for req. Cost and currency come only
// from the server-side price list.
func (o *Orchestrator) Begin(ctx context.Context, req CheckoutRequest) (Result, error) {
	result, err := o.begin(ctx, req)
	if err != nil {
		o.metrics.Checkout(o.settings.Mode, strings.ToLower(string(payment.KindOf(err))))
		o.logger.Warn("checkout failed",
			zap.String("payable", req.Ref.String()),
			zap.Int64("payer_id", req.PayerID),
			zap.String("kind", string(payment.KindOf(err))),
			zap.Error(err),
		)
		return nil, err
	}
	o.metrics.Checkout(o.settings.Mode, "ok")
	return result, nil
}

func (o *Orchestrator) begin(ctx context.Context, req CheckoutRequest) (Result, error) {
	cfg, err := o.configs.LoadGatewayConfig(ctx, req.Ref)
	if err != nil {
		return nil, payment.NewError(payment.KindInternal, "load gateway config", err)
	}
	if cfg == nil || !cfg.Configured() {
		return nil, payment.NewError(payment.KindNotConfigured, "no gateway credentials for "+req.Ref.String(), nil)
	}

	payable, err := o.payables.FindByRef(ctx, req.Ref)
	if err != nil {
		return nil, payment.NewError(payment.KindInternal, "resolve payable", err)
	}
	if payable == nil {
		return nil, payment.NewError(payment.KindNotConfigured, "unknown payable "+req.Ref.String(), nil)
	}

	surcharge := o.fees.Surcharge(o.settings.Gateway)
	cost := o.fees.RoundCost(payable.Amount, payable.Currency, surcharge)
	currency := strings.ToUpper(payable.Currency)

	orderID := MerchantOrderID(req.Ref, o.now())
	returnURL := CallbackURL(o.settings.PublicURL, req.Ref, false)
	cancelURL := CallbackURL(o.settings.PublicURL, req.Ref, true)

	started := time.Now()
	gw, err := o.connector.Dial(ctx, *cfg)
	o.metrics.ObserveGateway("authenticate", started)
	if err != nil {
		return nil, err
	}

	started = time.Now()
	intent, err := gw.CreateIntent(ctx, payment.CreateIntentRequest{
		Amount:          cost,
		Currency:        currency,
		MerchantOrderID: orderID,
		ReturnURL:       returnURL,
		CancelURL:       cancelURL,
		Description:     fmt.Sprintf("%s %s #%d", req.Ref.Component, req.Ref.PaymentArea, req.Ref.ItemID),
	})
	o.metrics.ObserveGateway("create_intent", started)
	if err != nil {
		if payment.KindOf(err) == payment.KindInternal {
			err = payment.NewError(payment.KindIntentCreationFailed, "create intent", err)
		}
		return nil, err
	}

	var result Result
	switch o.settings.Mode {
	case ModeSDK:
		if intent.ClientSecret == "" {
			return nil, payment.NewError(payment.KindIntentCreationFailed, "intent has no client secret", nil)
		}
		result = &SDKResult{
			ClientID:        cfg.ClientID,
			PaymentIntentID: intent.ID,
			ClientSecret:    intent.ClientSecret,
			Cost:            cost,
			Currency:        currency,
			ReturnURL:       returnURL,
			CancelURL:       cancelURL,
			Environment:     cfg.Environment(),
		}
	default:
		if intent.RedirectURL == "" {
			return nil, payment.NewError(payment.KindIntentCreationFailed, "intent has no redirect url", nil)
		}
		result = &RedirectResult{
			PaymentIntentID: intent.ID,
			RedirectURL:     intent.RedirectURL,
			Cost:            cost,
			Currency:        currency,
		}
	}

	if err := o.attempts.Create(ctx, &models.CheckoutAttempt{
		IntentID:        intent.ID,
		MerchantOrderID: orderID,
		Component:       req.Ref.Component,
		PaymentArea:     req.Ref.PaymentArea,
		ItemID:          req.Ref.ItemID,
		UserID:          req.PayerID,
		Cost:            cost,
		Currency:        currency,
		Status:          models.AttemptStatusPending,
	}); err != nil {
		return nil, payment.NewError(payment.KindInternal, "record checkout attempt", err)
	}

	o.logger.Info("payment intent created",
		zap.String("intent_id", intent.ID),
		zap.String("merchant_order_id", orderID),
		zap.String("payable", req.Ref.String()),
		zap.Int64("payer_id", req.PayerID),
		zap.String("cost", cost.String()),
		zap.String("currency", currency),
	)
	return result, nil
}

// MerchantOrderID is unique per attempt:
// <component>-<area>-<item>-<unixmillis>-<8 hex>.
func MerchantOrderID(ref models.PayableRef, now time.Time) string {
	return utils.GenerateOrderID(fmt.Sprintf("%s-%s-%d", ref.Component, ref.PaymentArea, ref.ItemID), now)
}

// CallbackURL builds the return (or cancel) URL for a payable. It carries
// only the payable reference, never an amount.
func CallbackURL(publicURL string, ref models.PayableRef, cancelled bool) string {
	q := url.Values{}
	q.Set("component", ref.Component)
	q.Set("paymentarea", ref.PaymentArea)
	q.Set("itemid", strconv.FormatInt(ref.ItemID, 10))
	if cancelled {
		q.Set("status", StatusCancelled)
	}
	return strings.TrimRight(publicURL, "/") + "/payment/callback?" + q.Encode()
}
