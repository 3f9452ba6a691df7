package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"hppgate/internal/checkout"
	"hppgate/internal/metrics"
	"hppgate/internal/middleware"
	"hppgate/internal/models"
	"hppgate/internal/payment"
	"hppgate/internal/repository"
)

const maxWebhookBody = 1 << 20

// PaymentHandler serves the processor-facing routes: the browser return,
// the signed webhook and the result page.
type PaymentHandler struct {
	reconciler *checkout.Reconciler
	attempts   *repository.AttemptRepository
	configs    checkout.ConfigLoader
	events     *repository.WebhookEventRepository
	deduper    middleware.EventDeduper
	metrics    *metrics.PaymentMetrics
	resultURL  string
	tolerance  time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// PaymentDeps bundles the collaborators of a PaymentHandler. Deduper and
// Metrics may be nil.
type PaymentDeps struct {
	Reconciler *checkout.Reconciler
	Attempts   *repository.AttemptRepository
	Configs    checkout.ConfigLoader
	Events     *repository.WebhookEventRepository
	Deduper    middleware.EventDeduper
	Metrics    *metrics.PaymentMetrics
	ResultURL  string
	Tolerance  time.Duration
	Logger     *zap.Logger
}

func NewPaymentHandler(d PaymentDeps) *PaymentHandler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &PaymentHandler{
		reconciler: d.Reconciler,
		attempts:   d.Attempts,
		configs:    d.Configs,
		events:     d.Events,
		deduper:    d.Deduper,
		metrics:    d.Metrics,
		resultURL:  d.ResultURL,
		tolerance:  d.Tolerance,
		logger:     d.Logger,
		now:        time.Now,
	}
}

// ── Browser return ───────────────────────────────────────────────────

// Callback reconciles the browser's return from the hosted payment page
// and redirects to the result destination.
// GET /payment/callback
func (h *PaymentHandler) Callback(c echo.Context) error {
	var q models.CallbackQuery
	if err := c.Bind(&q); err != nil {
		h.logger.Warn("malformed payment callback", zap.String("query", c.QueryString()), zap.Error(err))
		// A cancellation is reported as such even when the rest of the
		// query does not parse.
		if status := c.QueryParam("status"); strings.EqualFold(strings.TrimSpace(status), checkout.StatusCancelled) {
			out := h.reconciler.HandleCallback(c.Request().Context(), checkout.Callback{
				Ref:          models.PayableRef{Component: c.QueryParam("component"), PaymentArea: c.QueryParam("paymentarea")},
				StatusSignal: status,
			})
			return c.Redirect(http.StatusFound, h.resultLocation(out))
		}
		out := checkout.Outcome{Kind: payment.KindInvalidCallback}
		return c.Redirect(http.StatusFound, h.resultLocation(out))
	}
	if q.PaymentIntentID == "" {
		q.PaymentIntentID = c.QueryParam("paymentintentid")
	}

	out := h.reconciler.HandleCallback(c.Request().Context(), checkout.Callback{
		Ref:             q.Ref(),
		PaymentIntentID: q.PaymentIntentID,
		StatusSignal:    q.Status,
	})
	return c.Redirect(http.StatusFound, h.resultLocation(out))
}

// resultLocation appends the payable reference and the outcome to the
// configured result URL.
func (h *PaymentHandler) resultLocation(out checkout.Outcome) string {
	u, err := url.Parse(h.resultURL)
	if err != nil {
		u = &url.URL{Path: "/payment/result"}
	}
	q := u.Query()
	q.Set("component", out.Ref.Component)
	q.Set("paymentarea", out.Ref.PaymentArea)
	q.Set("itemid", strconv.FormatInt(out.Ref.ItemID, 10))
	if out.Success() {
		q.Set("success", "1")
	} else {
		q.Set("success", "0")
		q.Set("reason", out.Reason())
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// ── Processor webhook ────────────────────────────────────────────────

// Webhook verifies a signed processor event and reconciles its intent.
// Non-2xx answers make the processor redeliver.
// POST /payment/webhook
func (h *PaymentHandler) Webhook(c echo.Context) error {
	ctx := c.Request().Context()

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		h.metrics.Webhook("bad_request")
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "unreadable body"})
	}

	var payload models.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		h.metrics.Webhook("bad_request")
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid json"})
	}
	if err := c.Validate(&payload); err != nil {
		h.metrics.Webhook("bad_request")
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	intentID := payload.Data.Object.ID
	if intentID == "" {
		h.metrics.Webhook("ignored")
		return c.JSON(http.StatusOK, map[string]string{"status": "ignored"})
	}

	// The signing secret belongs to the payable's gateway account, so the
	// intent must be one we created.
	attempt, err := h.attempts.FindByIntentID(ctx, intentID)
	if err != nil {
		h.logger.Error("webhook attempt lookup failed", zap.String("intent_id", intentID), zap.Error(err))
		h.metrics.Webhook("error")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
	if attempt == nil {
		h.logger.Info("webhook for unknown intent", zap.String("intent_id", intentID), zap.String("event", payload.Name))
		h.metrics.Webhook("ignored")
		return c.JSON(http.StatusOK, map[string]string{"status": "ignored"})
	}

	cfg, err := h.configs.LoadGatewayConfig(ctx, attempt.Ref())
	if err != nil {
		h.logger.Error("webhook config lookup failed", zap.String("intent_id", intentID), zap.Error(err))
		h.metrics.Webhook("error")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
	secret := ""
	if cfg != nil {
		secret = cfg.WebhookSecret
	}
	if !payment.VerifySignature(secret, c.Request().Header.Get(payment.SignatureHeader), body, h.tolerance, h.now()) {
		h.logger.Warn("webhook signature rejected",
			zap.String("intent_id", intentID),
			zap.String("event_id", payload.ID),
			zap.String("remote_ip", c.RealIP()),
		)
		h.metrics.Webhook("invalid_signature")
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid signature"})
	}

	if h.deduper != nil {
		seen, err := h.deduper.Seen(ctx, payload.ID)
		if err != nil {
			h.logger.Warn("webhook dedup unavailable", zap.String("event_id", payload.ID), zap.Error(err))
		} else if seen {
			h.metrics.Webhook("duplicate")
			return c.JSON(http.StatusOK, map[string]string{"status": "duplicate"})
		}
	}

	stored, err := h.events.FindByEventID(ctx, payload.ID)
	if err != nil {
		return h.webhookFailure(c, payload.ID, "find webhook event", err)
	}
	if stored != nil && stored.ProcessedAt != nil && stored.ProcessingError == "" {
		h.metrics.Webhook("duplicate")
		return c.JSON(http.StatusOK, map[string]string{"status": "duplicate"})
	}
	if stored == nil {
		if _, err := h.events.CreateIfAbsent(ctx, &models.WebhookEvent{
			EventID:        payload.ID,
			EventType:      payload.Name,
			IntentID:       intentID,
			PayloadJSON:    string(body),
			SignatureValid: true,
		}); err != nil {
			return h.webhookFailure(c, payload.ID, "store webhook event", err)
		}
	}

	out := h.reconciler.ReconcileIntent(ctx, intentID, "webhook")

	if retryable(out.Kind) {
		if err := h.events.MarkProcessed(ctx, payload.ID, string(out.Kind)); err != nil {
			h.logger.Error("mark webhook event failed", zap.String("event_id", payload.ID), zap.Error(err))
		}
		return h.webhookFailure(c, payload.ID, "reconcile intent", out.Err)
	}

	if err := h.events.MarkProcessed(ctx, payload.ID, ""); err != nil {
		h.logger.Error("mark webhook event failed", zap.String("event_id", payload.ID), zap.Error(err))
	}
	h.metrics.Webhook("ok")
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":    "processed",
		"committed": out.Committed,
	})
}

// webhookFailure releases the dedup mark so the redelivery is processed.
func (h *PaymentHandler) webhookFailure(c echo.Context, eventID, op string, err error) error {
	h.logger.Error("webhook processing failed", zap.String("event_id", eventID), zap.String("op", op), zap.Error(err))
	if h.deduper != nil {
		if ferr := h.deduper.Forget(c.Request().Context(), eventID); ferr != nil {
			h.logger.Warn("webhook dedup forget failed", zap.String("event_id", eventID), zap.Error(ferr))
		}
	}
	h.metrics.Webhook("error")
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

// retryable kinds are answered with 500 so the processor redelivers.
func retryable(kind payment.Kind) bool {
	switch kind {
	case payment.KindAuth, payment.KindVerification, payment.KindInternal:
		return true
	}
	return false
}
