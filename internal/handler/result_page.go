package handler

import (
	"html/template"
	"net/http"

	"github.com/labstack/echo/v4"

	"hppgate/internal/pkg/utils"
)

var resultTemplate = template.Must(template.New("payment").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <title>Payment</title>
    <style>
        body { font-family: Helvetica, Arial, sans-serif; background: #f2f2f2; margin: 0; padding: 20px; display: flex; justify-content: center; align-items: center; min-height: 100vh; }
        .box { background: #fff; border-radius: 8px; box-shadow: 0 2px 10px rgba(0,0,0,0.1); padding: 40px; text-align: center; max-width: 400px; width: 100%; }
        h1 { color: #333; margin-bottom: 20px; }
        h1.ok { color: #2e7d32; }
        h1.fail { color: #c62828; }
        p { color: #666; margin-bottom: 10px; }
    </style>
</head>
<body>
    <div class="box">
        <h1 class="{{if .Success}}ok{{else}}fail{{end}}">{{.Title}}</h1>
        {{if .Payable}}<p>Item: <span>{{.Payable}}</span></p>{{end}}
        <p>{{.Message}}</p>
    </div>
</body>
</html>`))

// Result renders the page the callback redirects to by default.
// GET /payment/result
func (h *PaymentHandler) Result(c echo.Context) error {
	success := c.QueryParam("success") == "1"
	payable := ""
	if comp := c.QueryParam("component"); comp != "" {
		payable = comp + "/" + c.QueryParam("paymentarea") + "/" + c.QueryParam("itemid")
	}

	if success {
		return renderPaymentResult(c, true, "Payment successful", "Thank you, your payment has been recorded.", payable)
	}
	reason := utils.Truncate(c.QueryParam("reason"), 200)
	if reason == "" {
		reason = "The payment was not completed."
	}
	return renderPaymentResult(c, false, "Payment not completed", reason, payable)
}

func renderPaymentResult(c echo.Context, success bool, title, message, payable string) error {
	data := map[string]interface{}{
		"Success": success,
		"Title":   title,
		"Message": message,
		"Payable": utils.Truncate(payable, 200),
	}

	c.Response().Header().Set("Content-Type", "text/html; charset=utf-8")
	c.Response().WriteHeader(http.StatusOK)
	return resultTemplate.Execute(c.Response().Writer, data)
}
