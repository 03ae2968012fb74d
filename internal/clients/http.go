// unison-payments/internal/clients/http.go
package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/example/unison-payments/internal/auth"
)

// RetryPolicy bounds every downstream call.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Timeout    time.Duration
}

var DefaultRetryPolicy = RetryPolicy{
	MaxRetries: 3,
	BaseDelay:  100 * time.Millisecond,
	MaxDelay:   2 * time.Second,
	Timeout:    2 * time.Second,
}

// ServiceClient is a JSON client for one downstream service. Transport
// errors and 5xx responses are retried with backoff; the baton from the
// request context is forwarded on every call.
type ServiceClient struct {
	http *resty.Client
}

func NewServiceClient(baseURL string, p RetryPolicy) *ServiceClient {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(p.Timeout).
		SetRetryCount(p.MaxRetries).
		SetRetryWaitTime(p.BaseDelay).
		SetRetryMaxWaitTime(p.MaxDelay).
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})
	return &ServiceClient{http: c}
}

// Response is the status and raw body of a completed call.
type Response struct {
	Status int
	Body   []byte
}

func (r Response) OK() bool { return r.Status >= 200 && r.Status < 300 }

// Decode unmarshals the body into v.
func (r Response) Decode(v any) error {
	if len(r.Body) == 0 {
		return fmt.Errorf("empty response body")
	}
	return json.Unmarshal(r.Body, v)
}

func (c *ServiceClient) Get(ctx context.Context, path string, params map[string]string) (Response, error) {
	return c.do(ctx, http.MethodGet, path, params, nil)
}

func (c *ServiceClient) Post(ctx context.Context, path string, params map[string]string, body any) (Response, error) {
	return c.do(ctx, http.MethodPost, path, params, body)
}

func (c *ServiceClient) Put(ctx context.Context, path string, params map[string]string, body any) (Response, error) {
	return c.do(ctx, http.MethodPut, path, params, body)
}

func (c *ServiceClient) do(ctx context.Context, method, path string, params map[string]string, body any) (Response, error) {
	req := c.http.R().SetContext(ctx).SetPathParams(params)
	if baton := auth.BatonFromContext(ctx); baton != "" {
		req.SetHeader(auth.BatonHeader, baton)
	}
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return Response{}, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return Response{Status: resp.StatusCode(), Body: resp.Body()}, nil
}
