package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"hppgate/internal/checkout"
	"hppgate/internal/middleware"
	"hppgate/internal/models"
	"hppgate/internal/payment"
	"hppgate/internal/pricing"
	"hppgate/internal/repository"
	"hppgate/internal/testutil"
)

const (
	testGateway   = "hpp"
	testResultURL = "https://lms.test/payment/result"
)

type env struct {
	e    *echo.Echo
	db   *gorm.DB
	proc *testutil.FakeProcessor
	orch *checkout.Orchestrator
	ref  models.PayableRef
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := testutil.NewDB(t)
	ref := testutil.SeedCatalog(t, db, testGateway)
	proc := testutil.NewFakeProcessor()

	configs := repository.NewGatewayConfigLoader(db, testGateway)
	payables := repository.NewPayableRepository(db)
	attempts := repository.NewAttemptRepository(db)
	fees := pricing.NewPolicy(2)

	orch := checkout.NewOrchestrator(proc, configs, payables, fees, attempts, checkout.Settings{
		Gateway:   testGateway,
		Mode:      checkout.ModeRedirect,
		PublicURL: "https://lms.test",
	}, nil, zap.NewNop())

	rec := checkout.NewReconciler(checkout.ReconcilerDeps{
		Connector: proc,
		Configs:   configs,
		Payables:  payables,
		Fees:      fees,
		Ledger:    repository.NewPaymentRepository(db),
		Deliverer: repository.NewDeliveryRepository(db),
		Records:   repository.NewIntentRecordRepository(db),
		Attempts:  attempts,
		Tx:        repository.NewTransactor(db),
		Gateway:   testGateway,
	})

	deduper, err := middleware.NewEventDeduper("", "", 0, time.Hour)
	require.NoError(t, err)

	h := NewPaymentHandler(PaymentDeps{
		Reconciler: rec,
		Attempts:   attempts,
		Configs:    configs,
		Events:     repository.NewWebhookEventRepository(db),
		Deduper:    deduper,
		ResultURL:  testResultURL,
		Tolerance:  5 * time.Minute,
	})

	e := echo.New()
	e.Validator = middleware.NewRequestValidator()
	e.GET("/payment/callback", h.Callback)
	e.POST("/payment/webhook", h.Webhook)
	e.GET("/payment/result", h.Result)
	e.GET("/health", Health(db))

	return &env{e: e, db: db, proc: proc, orch: orch, ref: ref}
}

func (v *env) begin(t *testing.T) string {
	t.Helper()
	res, err := v.orch.Begin(context.Background(), checkout.CheckoutRequest{Ref: v.ref, PayerID: 42})
	require.NoError(t, err)
	return res.(*checkout.RedirectResult).PaymentIntentID
}

func (v *env) get(target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	v.e.ServeHTTP(rec, req)
	return rec
}

func (v *env) postWebhook(body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/payment/webhook", strings.NewReader(string(body)))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if signature != "" {
		req.Header.Set(payment.SignatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	v.e.ServeHTTP(rec, req)
	return rec
}

func (v *env) count(t *testing.T, model interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, v.db.Model(model).Count(&n).Error)
	return n
}

func callbackTarget(intentID string, extra string) string {
	target := "/payment/callback?component=enrol_fee&paymentarea=fee&itemid=7"
	if intentID != "" {
		target += "&payment_intent_id=" + intentID
	}
	return target + extra
}

func location(t *testing.T, rec *httptest.ResponseRecorder) url.Values {
	t.Helper()
	require.Equal(t, http.StatusFound, rec.Code)
	u, err := url.Parse(rec.Header().Get(echo.HeaderLocation))
	require.NoError(t, err)
	assert.Equal(t, "lms.test", u.Host)
	assert.Equal(t, "/payment/result", u.Path)
	return u.Query()
}

func webhookBody(eventID, intentID string) []byte {
	return []byte(fmt.Sprintf(
		`{"id":%q,"name":"payment_intent.succeeded","data":{"object":{"id":%q,"status":"SUCCEEDED"}}}`,
		eventID, intentID,
	))
}

func sign(body []byte) string {
	return payment.SignPayload(testutil.WebhookSecret, time.Now().Unix(), body)
}

func TestCallback_SuccessRedirect(t *testing.T) {
	v := newEnv(t)
	intentID := v.begin(t)
	v.proc.SetStatus(intentID, "SUCCEEDED")

	q := location(t, v.get(callbackTarget(intentID, "")))
	assert.Equal(t, "1", q.Get("success"))
	assert.Equal(t, "enrol_fee", q.Get("component"))
	assert.Equal(t, "fee", q.Get("paymentarea"))
	assert.Equal(t, "7", q.Get("itemid"))
	assert.Empty(t, q.Get("reason"))
	assert.Equal(t, int64(1), v.count(t, &models.IntentRecord{}))
}

func TestCallback_LegacyIntentParam(t *testing.T) {
	v := newEnv(t)
	intentID := v.begin(t)
	v.proc.SetStatus(intentID, "SUCCEEDED")

	q := location(t, v.get(callbackTarget("", "&paymentintentid="+intentID)))
	assert.Equal(t, "1", q.Get("success"))
}

func TestCallback_Cancelled(t *testing.T) {
	v := newEnv(t)
	intentID := v.begin(t)

	q := location(t, v.get(callbackTarget(intentID, "&status=cancelled")))
	assert.Equal(t, "0", q.Get("success"))
	assert.Equal(t, "The payment was cancelled.", q.Get("reason"))

	_, _, verifies := v.proc.Calls()
	assert.Zero(t, verifies)
}

func TestCallback_NotCleared(t *testing.T) {
	v := newEnv(t)
	intentID := v.begin(t)

	q := location(t, v.get(callbackTarget(intentID, "")))
	assert.Equal(t, "0", q.Get("success"))
	assert.Equal(t, payment.KindPaymentNotCleared.Reason(), q.Get("reason"))
	assert.Zero(t, v.count(t, &models.Payment{}))
}

func TestCallback_Malformed(t *testing.T) {
	v := newEnv(t)

	q := location(t, v.get("/payment/callback?component=enrol_fee&paymentarea=fee&itemid=abc&payment_intent_id=int_001"))
	assert.Equal(t, "0", q.Get("success"))
	assert.Equal(t, payment.KindInvalidCallback.Reason(), q.Get("reason"))

	q = location(t, v.get("/payment/callback?component=enrol_fee&paymentarea=fee&itemid=abc&status=cancelled"))
	assert.Equal(t, "0", q.Get("success"))
	assert.Equal(t, "The payment was cancelled.", q.Get("reason"))
	assert.Equal(t, "enrol_fee", q.Get("component"))

	_, _, verifies := v.proc.Calls()
	assert.Zero(t, verifies)
}

func TestWebhook_CommitsOnce(t *testing.T) {
	v := newEnv(t)
	intentID := v.begin(t)
	v.proc.SetStatus(intentID, "SUCCEEDED")

	body := webhookBody("evt_1", intentID)
	rec := v.postWebhook(body, sign(body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "processed", resp["status"])
	assert.Equal(t, true, resp["committed"])
	assert.Equal(t, int64(1), v.count(t, &models.Payment{}))

	var event models.WebhookEvent
	require.NoError(t, v.db.Where("event_id = ?", "evt_1").First(&event).Error)
	assert.True(t, event.SignatureValid)
	assert.NotNil(t, event.ProcessedAt)
	assert.Empty(t, event.ProcessingError)

	_, _, verifiesBefore := v.proc.Calls()
	rec = v.postWebhook(body, sign(body))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "duplicate")
	_, _, verifiesAfter := v.proc.Calls()
	assert.Equal(t, verifiesBefore, verifiesAfter)

	// The browser return for the same intent replays the commit.
	q := location(t, v.get(callbackTarget(intentID, "")))
	assert.Equal(t, "1", q.Get("success"))
	assert.Equal(t, int64(1), v.count(t, &models.Payment{}))
	assert.Equal(t, int64(1), v.count(t, &models.OrderDelivery{}))
}

func TestWebhook_InvalidSignature(t *testing.T) {
	v := newEnv(t)
	intentID := v.begin(t)
	v.proc.SetStatus(intentID, "SUCCEEDED")
	body := webhookBody("evt_bad", intentID)

	rec := v.postWebhook(body, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	forged := payment.SignPayload("whsec_other", time.Now().Unix(), body)
	rec = v.postWebhook(body, forged)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	stale := payment.SignPayload(testutil.WebhookSecret, time.Now().Add(-time.Hour).Unix(), body)
	rec = v.postWebhook(body, stale)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	assert.Zero(t, v.count(t, &models.WebhookEvent{}))
	assert.Zero(t, v.count(t, &models.Payment{}))

	// A rejected delivery must not poison the dedup for the real one.
	rec = v.postWebhook(body, sign(body))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), v.count(t, &models.Payment{}))
}

func TestWebhook_UnknownIntentIgnored(t *testing.T) {
	v := newEnv(t)
	body := webhookBody("evt_2", "int_404")

	rec := v.postWebhook(body, sign(body))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ignored")
	assert.Zero(t, v.count(t, &models.WebhookEvent{}))
}

func TestWebhook_TransientFailureIsRetried(t *testing.T) {
	v := newEnv(t)
	intentID := v.begin(t)
	v.proc.SetStatus(intentID, "SUCCEEDED")
	v.proc.VerifyErr = payment.NewError(payment.KindVerification, "timeout", nil)

	body := webhookBody("evt_3", intentID)
	rec := v.postWebhook(body, sign(body))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var event models.WebhookEvent
	require.NoError(t, v.db.Where("event_id = ?", "evt_3").First(&event).Error)
	assert.Equal(t, string(payment.KindVerification), event.ProcessingError)

	v.proc.VerifyErr = nil
	rec = v.postWebhook(body, sign(body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, int64(1), v.count(t, &models.Payment{}))
	assert.Equal(t, int64(1), v.count(t, &models.WebhookEvent{}))
}

func TestWebhook_BadRequests(t *testing.T) {
	v := newEnv(t)

	rec := v.postWebhook([]byte(`not json`), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = v.postWebhook([]byte(`{"name":"payment_intent.succeeded"}`), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResultPage(t *testing.T) {
	v := newEnv(t)

	rec := v.get("/payment/result?component=enrol_fee&paymentarea=fee&itemid=7&success=1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "text/html")
	assert.Contains(t, rec.Body.String(), "Payment successful")
	assert.Contains(t, rec.Body.String(), "enrol_fee/fee/7")

	rec = v.get("/payment/result?success=0&reason=" + url.QueryEscape("<script>alert(1)</script>"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Payment not completed")
	assert.NotContains(t, rec.Body.String(), "<script>alert")
	assert.Contains(t, rec.Body.String(), "&lt;script&gt;")
}

func TestHealth(t *testing.T) {
	v := newEnv(t)

	rec := v.get("/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}
