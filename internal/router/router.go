package router

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"hppgate/internal/handler"
	"hppgate/internal/handler/api"
	"hppgate/internal/middleware"
	"hppgate/internal/repository"
)

// Options carries the handlers and settings routes are built from.
type Options struct {
	DB           *gorm.DB
	Logger       *zap.Logger
	APIKey       string
	HashFilePath string
	Checkout     *api.CheckoutHandler
	Payment      *handler.PaymentHandler
	Gatherer     prometheus.Gatherer
}

// Setup configures all routes for the Echo server.
func Setup(e *echo.Echo, opts Options) {
	// Global middleware
	e.Use(echomw.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLogger(opts.Logger))
	e.Validator = middleware.NewRequestValidator()

	paymentsHandler := api.NewPaymentHandler(repository.NewPaymentRepository(opts.DB), opts.Logger)

	// API group with token auth
	apiGroup := e.Group("/api")
	apiGroup.Use(middleware.APIAuth(opts.APIKey, opts.HashFilePath))
	apiGroup.POST("/checkout", opts.Checkout.Begin)
	apiGroup.POST("/payments", paymentsHandler.Handle)
	apiGroup.GET("/payments", paymentsHandler.Handle)

	// Processor-facing routes. The callback and result page are reached by
	// the payer's browser; the webhook authenticates by signature.
	paymentGroup := e.Group("/payment")
	paymentGroup.GET("/callback", opts.Payment.Callback)
	paymentGroup.POST("/webhook", opts.Payment.Webhook)
	paymentGroup.GET("/result", opts.Payment.Result)

	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	e.GET("/health", handler.Health(opts.DB))
}
