package models

// APIResponse is the standard JSON envelope of the /api endpoints.
type APIResponse struct {
	Status bool        `json:"status"`
	Msg    string      `json:"msg"`
	Code   string      `json:"code,omitempty"`
	Obj    interface{} `json:"obj"`
}

// CheckoutBody is the payload of POST /api/checkout.
type CheckoutBody struct {
	Component   string `json:"component" validate:"required,max=100"`
	PaymentArea string `json:"paymentarea" validate:"required,max=50"`
	ItemID      int64  `json:"itemid" validate:"required,gt=0"`
	UserID      int64  `json:"user_id" validate:"required,gt=0"`
}

func (b CheckoutBody) Ref() PayableRef {
	return PayableRef{Component: b.Component, PaymentArea: b.PaymentArea, ItemID: b.ItemID}
}

// CallbackQuery is the query string the hosted payment page returns with.
type CallbackQuery struct {
	Component       string `query:"component"`
	PaymentArea     string `query:"paymentarea"`
	ItemID          int64  `query:"itemid"`
	PaymentIntentID string `query:"payment_intent_id"`
	Status          string `query:"status"`
}

func (q CallbackQuery) Ref() PayableRef {
	return PayableRef{Component: q.Component, PaymentArea: q.PaymentArea, ItemID: q.ItemID}
}

// WebhookPayload is the part of a processor webhook the service reads.
type WebhookPayload struct {
	ID   string `json:"id" validate:"required"`
	Name string `json:"name" validate:"required"`
	Data struct {
		Object struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"object"`
	} `json:"data"`
}
