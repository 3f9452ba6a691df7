package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"hppgate/internal/config"
	"hppgate/internal/pkg/httpclient"
	"hppgate/internal/pkg/utils"
)

const (
	loginPath        = "/api/v1/authentication/login"
	createIntentPath = "/api/v1/pa/payment_intents/create"
	intentPath       = "/api/v1/pa/payment_intents/"
)

var validate = validator.New()

// Dialer builds one authenticated Client per logical operation.
type Dialer struct {
	sandboxURL string
	liveURL    string
	timeout    time.Duration
	retries    int
	tolerance  time.Duration
	logger     *zap.Logger
}

func NewDialer(cfg config.GatewayConfig, logger *zap.Logger) *Dialer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dialer{
		sandboxURL: strings.TrimRight(cfg.SandboxURL, "/"),
		liveURL:    strings.TrimRight(cfg.LiveURL, "/"),
		timeout:    cfg.Timeout,
		retries:    cfg.Retries,
		tolerance:  cfg.WebhookTolerance,
		logger:     logger,
	}
}

// Dial checks the credentials, authenticates and returns the session.
func (d *Dialer) Dial(ctx context.Context, cfg GatewayConfig) (Gateway, error) {
	if !cfg.Configured() {
		return nil, NewError(KindNotConfigured, "gateway credentials are missing", nil)
	}

	base := d.liveURL
	if cfg.Sandbox {
		base = d.sandboxURL
	}
	c := &Client{
		cfg:       cfg,
		timeout:   d.timeout,
		tolerance: d.tolerance,
		logger:    d.logger,
		http: httpclient.New().
			WithLogger(d.logger).
			WithTimeout(d.timeout).
			WithRetries(d.retries).
			WithBaseURL(base),
	}
	if err := c.authenticate(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Client is an authenticated processor session. The bearer token lives only
// as long as the Client.
type Client struct {
	cfg       GatewayConfig
	http      *httpclient.Client
	token     string
	timeout   time.Duration
	tolerance time.Duration
	logger    *zap.Logger
}

type loginResponse struct {
	Token     string `json:"token" validate:"required"`
	ExpiresAt string `json:"expires_at"`
}

type createIntentBody struct {
	RequestID            string               `json:"request_id"`
	Amount               json.Number          `json:"amount"`
	Currency             string               `json:"currency"`
	MerchantOrderID      string               `json:"merchant_order_id"`
	Description          string               `json:"description,omitempty"`
	PaymentMethodOptions paymentMethodOptions `json:"payment_method_options"`
	Confirm              bool                 `json:"confirm"`
}

type paymentMethodOptions struct {
	HPP hppOptions `json:"hpp"`
}

type hppOptions struct {
	ReturnURL string `json:"return_url"`
	CancelURL string `json:"cancel_url"`
}

type intentResponse struct {
	ID              string          `json:"id" validate:"required"`
	Status          string          `json:"status" validate:"required"`
	ClientSecret    string          `json:"client_secret"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	MerchantOrderID string          `json:"merchant_order_id"`
	NextAction      *struct {
		Type string `json:"type"`
		URL  string `json:"url"`
	} `json:"next_action"`
}

func (r *intentResponse) toIntent() *Intent {
	intent := &Intent{
		ID:              r.ID,
		ClientSecret:    r.ClientSecret,
		Status:          MapStatus(r.Status),
		RawStatus:       r.Status,
		Amount:          r.Amount,
		Currency:        strings.ToUpper(r.Currency),
		MerchantOrderID: r.MerchantOrderID,
	}
	if r.NextAction != nil {
		intent.RedirectURL = r.NextAction.URL
	}
	return intent
}

// bounded caps one logical call, retries and backoff included, at the
// configured timeout.
func (c *Client) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) authenticate(ctx context.Context) error {
	ctx, cancel := c.bounded(ctx)
	defer cancel()

	resp, err := c.http.PostJSON(ctx, loginPath, nil, map[string]string{
		"x-client-id": c.cfg.ClientID,
		"x-api-key":   c.cfg.APIKey,
	})
	if err != nil {
		return NewError(KindAuth, "authentication request failed", err)
	}
	if !resp.IsSuccess() {
		return NewError(KindAuth, fmt.Sprintf("authentication rejected with status %d", resp.StatusCode), nil)
	}

	var lr loginResponse
	if err := json.Unmarshal(resp.Body, &lr); err != nil {
		return NewError(KindAuth, "authentication response is not valid JSON", err)
	}
	if err := validate.Struct(lr); err != nil {
		return NewError(KindAuth, "authentication response has no token", err)
	}

	c.token = lr.Token
	c.http.WithBearerToken(lr.Token)
	return nil
}

// CreateIntent creates a remote intent. Every call carries a fresh request
// id, reused only by transport retries of that same call.
func (c *Client) CreateIntent(ctx context.Context, req CreateIntentRequest) (*Intent, error) {
	requestID := utils.GenerateUUID()
	body := createIntentBody{
		RequestID:       requestID,
		Amount:          json.Number(req.Amount.String()),
		Currency:        strings.ToUpper(req.Currency),
		MerchantOrderID: req.MerchantOrderID,
		Description:     req.Description,
		PaymentMethodOptions: paymentMethodOptions{
			HPP: hppOptions{ReturnURL: req.ReturnURL, CancelURL: req.CancelURL},
		},
		Confirm: false,
	}

	ctx, cancel := c.bounded(ctx)
	defer cancel()
	resp, err := c.http.PostJSON(ctx, createIntentPath, body, map[string]string{
		"Idempotency-Key": requestID,
	})
	if err != nil {
		return nil, NewError(KindIntentCreationFailed, "intent creation request failed", err)
	}
	if !resp.IsSuccess() {
		return nil, NewError(KindIntentCreationFailed, fmt.Sprintf("intent creation rejected with status %d", resp.StatusCode), nil)
	}

	var ir intentResponse
	if err := json.Unmarshal(resp.Body, &ir); err != nil {
		return nil, NewError(KindIntentCreationFailed, "intent creation response is not valid JSON", err)
	}
	if err := validate.StructPartial(ir, "ID"); err != nil {
		return nil, NewError(KindIntentCreationFailed, "intent creation response has no id", err)
	}
	intent := ir.toIntent()
	if intent.ClientSecret == "" && intent.RedirectURL == "" {
		return nil, NewError(KindIntentCreationFailed, "intent has neither client secret nor redirect url", nil)
	}

	c.logger.Debug("payment intent created",
		zap.String("intent_id", intent.ID),
		zap.String("merchant_order_id", req.MerchantOrderID),
		zap.String("request_id", requestID),
	)
	return intent, nil
}

// VerifyIntent reads the intent back from the processor.
func (c *Client) VerifyIntent(ctx context.Context, intentID string) (*Intent, error) {
	if strings.TrimSpace(intentID) == "" {
		return nil, NewError(KindVerification, "intent id is empty", nil)
	}

	ctx, cancel := c.bounded(ctx)
	defer cancel()
	resp, err := c.http.Get(ctx, intentPath+url.PathEscape(intentID), nil)
	if err != nil {
		return nil, NewError(KindVerification, "intent lookup failed", err)
	}
	if !resp.IsSuccess() {
		return nil, NewError(KindVerification, fmt.Sprintf("intent lookup returned status %d", resp.StatusCode), nil)
	}

	var ir intentResponse
	if err := json.Unmarshal(resp.Body, &ir); err != nil {
		return nil, NewError(KindVerification, "intent lookup response is not valid JSON", err)
	}
	if err := validate.Struct(ir); err != nil {
		return nil, NewError(KindVerification, "intent lookup response is incomplete", err)
	}
	if ir.ID != intentID {
		return nil, NewError(KindVerification, fmt.Sprintf("intent lookup returned %q for %q", ir.ID, intentID), nil)
	}

	intent := ir.toIntent()
	c.logger.Debug("payment intent verified",
		zap.String("intent_id", intent.ID),
		zap.String("status", intent.RawStatus),
	)
	return intent, nil
}

// VerifyWebhookSignature checks header against payload with the session's
// webhook secret.
func (c *Client) VerifyWebhookSignature(header string, payload []byte) bool {
	return VerifySignature(c.cfg.WebhookSecret, header, payload, c.tolerance, time.Now())
}

// MapStatus normalizes a processor status string.
func MapStatus(raw string) IntentStatus {
	s := strings.ToUpper(strings.TrimSpace(raw))
	switch {
	case s == "SUCCEEDED":
		return StatusSucceeded
	case strings.HasPrefix(s, "REQUIRES_"), s == "PENDING", s == "CREATED":
		return StatusPending
	case s == "FAILED", s == "CANCELLED", s == "EXPIRED":
		return StatusFailed
	default:
		return StatusOther
	}
}
