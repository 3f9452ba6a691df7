package api

import (
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"hppgate/internal/repository"
)

// PaymentHandler answers ledger queries.
type PaymentHandler struct {
	payments *repository.PaymentRepository
	logger   *zap.Logger
}

func NewPaymentHandler(payments *repository.PaymentRepository, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{payments: payments, logger: logger}
}

// Handle routes payment API requests.
// POST /api/payments
func (h *PaymentHandler) Handle(c echo.Context) error {
	action, body, err := parseBodyAction(c)
	if err != nil {
		return errorResponse(c, "Invalid request body")
	}

	switch action {
	case "payments":
		return h.listPayments(c, body)
	case "payment":
		return h.getPayment(c, body)
	default:
		return errorResponse(c, "Unknown action: "+action)
	}
}

func (h *PaymentHandler) listPayments(c echo.Context, body map[string]interface{}) error {
	userID := getInt64Field(body, "user_id", 0)
	if userID <= 0 {
		return errorResponse(c, "user_id is required")
	}
	limit := getIntField(body, "limit", 50)
	page := getIntField(body, "page", 1)
	if limit <= 0 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}
	if page <= 0 {
		page = 1
	}

	payments, total, err := h.payments.ListByUser(c.Request().Context(), userID, limit, page)
	if err != nil {
		h.logger.Error("Failed to list payments", zap.Int64("user_id", userID), zap.Error(err))
		return errorResponse(c, "Failed to retrieve payments")
	}

	return successResponse(c, "Successful", paginatedNamedResponse("payments", payments, total, page, limit))
}

func (h *PaymentHandler) getPayment(c echo.Context, body map[string]interface{}) error {
	id := getInt64Field(body, "payment_id", 0)
	if id <= 0 {
		return errorResponse(c, "payment_id is required")
	}

	p, err := h.payments.FindByID(c.Request().Context(), uint(id))
	if err != nil {
		h.logger.Error("Failed to get payment", zap.Int64("payment_id", id), zap.Error(err))
		return errorResponse(c, "Failed to retrieve payment")
	}
	if p == nil {
		return errorResponse(c, "Payment not found")
	}
	return successResponse(c, "Successful", p)
}
