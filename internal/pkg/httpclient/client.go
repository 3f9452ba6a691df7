package httpclient

import (
	"context"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Client wraps resty for requests to the payment processor.
type Client struct {
	r *resty.Client
}

// Response is the status and raw body of a completed request.
type Response struct {
	StatusCode int
	Body       []byte
}

// IsSuccess reports a 2xx status.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// New creates a new HTTP client with sensible defaults. Transport errors,
// 429 and 5xx responses are retried.
func New() *Client {
	r := resty.New().
		SetTimeout(30 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(retryable)

	return &Client{r: r}
}

func retryable(resp *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if resp == nil {
		return false
	}
	code := resp.StatusCode()
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// WithLogger sends resty's retry and error output through logger.
func (c *Client) WithLogger(logger *zap.Logger) *Client {
	if logger != nil {
		c.r.SetLogger(logger.Named("httpclient").Sugar())
	}
	return c
}

// WithTimeout sets a custom per-attempt timeout.
func (c *Client) WithTimeout(d time.Duration) *Client {
	if d > 0 {
		c.r.SetTimeout(d)
	}
	return c
}

// WithRetries sets how many times a failed attempt is repeated.
func (c *Client) WithRetries(n int) *Client {
	if n < 0 {
		n = 0
	}
	c.r.SetRetryCount(n)
	return c
}

// WithRetryWait sets the backoff bounds between attempts.
func (c *Client) WithRetryWait(min, max time.Duration) *Client {
	c.r.SetRetryWaitTime(min).SetRetryMaxWaitTime(max)
	return c
}

// WithBaseURL makes relative request paths resolve against base.
func (c *Client) WithBaseURL(base string) *Client {
	c.r.SetBaseURL(base)
	return c
}

// WithBearerToken sets a bearer token for authentication.
func (c *Client) WithBearerToken(token string) *Client {
	c.r.SetAuthToken(token)
	return c
}

// WithHeader sets a custom header.
func (c *Client) WithHeader(key, value string) *Client {
	c.r.SetHeader(key, value)
	return c
}

// Get sends a GET request.
func (c *Client) Get(ctx context.Context, url string, headers map[string]string) (*Response, error) {
	resp, err := c.r.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetHeaders(headers).
		Get(url)
	return wrap(resp, err)
}

// PostJSON sends a POST request with a JSON body. Retries resend the same
// body value.
func (c *Client) PostJSON(ctx context.Context, url string, body interface{}, headers map[string]string) (*Response, error) {
	req := c.r.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeaders(headers)
	if body != nil {
		req.SetBody(body)
	}
	resp, err := req.Post(url)
	return wrap(resp, err)
}

func wrap(resp *resty.Response, err error) (*Response, error) {
	if err != nil {
		return nil, err
	}
	return &Response{StatusCode: resp.StatusCode(), Body: resp.Body()}, nil
}
