package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"hppgate/internal/models"
	"hppgate/internal/payment"
	"hppgate/internal/pkg/utils"
)

func successResponse(c echo.Context, msg string, obj interface{}) error {
	return c.JSON(http.StatusOK, models.APIResponse{
		Status: true,
		Msg:    msg,
		Obj:    obj,
	})
}

func errorResponse(c echo.Context, msg string) error {
	return c.JSON(http.StatusOK, models.APIResponse{
		Status: false,
		Msg:    msg,
		Obj:    nil,
	})
}

// kindResponse renders a payment error with the status of its kind. The
// underlying cause is never exposed.
func kindResponse(c echo.Context, err error) error {
	kind := payment.KindOf(err)
	return c.JSON(kind.HTTPStatus(), models.APIResponse{
		Status: false,
		Msg:    kind.Reason(),
		Code:   string(kind),
		Obj:    nil,
	})
}

func totalPages(total int64, limit int) int {
	if limit <= 0 {
		limit = 50
	}
	pages := int(total) / limit
	if int(total)%limit != 0 {
		pages++
	}
	if pages == 0 {
		pages = 1
	}
	return pages
}

// paginatedNamedResponse returns { "<key>": [...], "pagination": {...} }.
func paginatedNamedResponse(key string, data interface{}, total int64, page, limit int) map[string]interface{} {
	return map[string]interface{}{
		key: data,
		"pagination": map[string]interface{}{
			"total_pages":  totalPages(total, limit),
			"current_page": page,
			"per_page":     limit,
			"total_record": total,
		},
	}
}

// parseBodyAction extracts the "actions" field from the request body.
func parseBodyAction(c echo.Context) (string, map[string]interface{}, error) {
	body := make(map[string]interface{})
	if err := c.Bind(&body); err != nil {
		return "", nil, err
	}
	action, _ := body["actions"].(string)
	c.Set("api_actions", action) // for logging middleware
	return action, body, nil
}

// getInt64Field reads a numeric body field sent either as a number or a string.
func getInt64Field(body map[string]interface{}, key string, defaultVal int64) int64 {
	if v, ok := body[key]; ok {
		switch t := v.(type) {
		case float64:
			return int64(t)
		case int64:
			return t
		case int:
			return int64(t)
		case string:
			return utils.ParseInt64(t, defaultVal)
		}
	}
	return defaultVal
}

func getIntField(body map[string]interface{}, key string, defaultVal int) int {
	return int(getInt64Field(body, key, int64(defaultVal)))
}
