package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"hppgate/internal/checkout"
	"hppgate/internal/models"
)

// CheckoutHandler starts hosted-payment-page checkouts.
type CheckoutHandler struct {
	orchestrator *checkout.Orchestrator
	logger       *zap.Logger
}

func NewCheckoutHandler(orchestrator *checkout.Orchestrator, logger *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{orchestrator: orchestrator, logger: logger}
}

type redirectPayload struct {
	Mode string `json:"mode"`
	*checkout.RedirectResult
}

type sdkPayload struct {
	Mode string `json:"mode"`
	*checkout.SDKResult
}

// Begin creates a payment intent for the payable in the body.
// POST /api/checkout
func (h *CheckoutHandler) Begin(c echo.Context) error {
	var body models.CheckoutBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, models.APIResponse{Status: false, Msg: "Invalid request body"})
	}
	if err := c.Validate(&body); err != nil {
		return c.JSON(http.StatusBadRequest, models.APIResponse{Status: false, Msg: err.Error()})
	}

	result, err := h.orchestrator.Begin(c.Request().Context(), checkout.CheckoutRequest{
		Ref:     body.Ref(),
		PayerID: body.UserID,
	})
	if err != nil {
		return kindResponse(c, err)
	}

	switch r := result.(type) {
	case *checkout.SDKResult:
		return successResponse(c, "Successful", sdkPayload{Mode: r.Mode(), SDKResult: r})
	case *checkout.RedirectResult:
		return successResponse(c, "Successful", redirectPayload{Mode: r.Mode(), RedirectResult: r})
	default:
		h.logger.Error("unexpected checkout result", zap.String("mode", result.Mode()))
		return c.JSON(http.StatusInternalServerError, models.APIResponse{Status: false, Msg: "Unexpected checkout result"})
	}
}
