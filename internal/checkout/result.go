package checkout

import (
	"github.com/shopspring/decimal"

	"hppgate/internal/models"
)

const (
	ModeRedirect = "redirect"
	ModeSDK      = "sdk"
)

// CheckoutRequest starts a checkout for one payer and payable.
type CheckoutRequest struct {
	Ref     models.PayableRef
	PayerID int64
}

// Result is what the browser needs to continue checkout. It is either a
// *RedirectResult or an *SDKResult.
type Result interface {
	Mode() string
}

// RedirectResult sends the browser straight to the hosted payment page.
type RedirectResult struct {
	PaymentIntentID string          `json:"paymentintentid"`
	RedirectURL     string          `json:"hppredirecturl"`
	Cost            decimal.Decimal `json:"cost"`
	Currency        string          `json:"currency"`
}

func (*RedirectResult) Mode() string { return ModeRedirect }

// SDKResult carries what the processor's browser SDK needs to open the
// hosted payment page itself.
type SDKResult struct {
	ClientID        string          `json:"clientid"`
	PaymentIntentID string          `json:"paymentintentid"`
	ClientSecret    string          `json:"clientsecret"`
	Cost            decimal.Decimal `json:"cost"`
	Currency        string          `json:"currency"`
	ReturnURL       string          `json:"returnurl"`
	CancelURL       string          `json:"cancelurl"`
	Environment     string          `json:"environment"`
}

func (*SDKResult) Mode() string { return ModeSDK }
