// Package client calls a running spoilage inference service.
package client

import (
	"context"
	"fmt"
	"strings"
	"time"

	"coldchain-risk/internal/api"
	"coldchain-risk/internal/features"
	"coldchain-risk/internal/ml"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
)

// APIError is a non-2xx answer from the service.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("coldchain-risk api: %d %s", e.Status, e.Message)
}

type Client struct {
	base string
	rest *resty.Client
}

func New(base string, timeout time.Duration) *Client {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(5 * time.Second) // default fallback
	}
	r.SetJSONMarshaler(json.Marshal)
	r.SetJSONUnmarshaler(json.Unmarshal)
	r.SetHeader("Accept", "application/json")
	return &Client{base: strings.TrimRight(base, "/"), rest: r}
}

// Health fetches GET /health.
func (c *Client) Health(ctx context.Context) (*api.HealthResponse, error) {
	out := &api.HealthResponse{}
	if err := c.do(ctx, "GET", "/health", nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ModelInfo fetches GET /model/info.
func (c *Client) ModelInfo(ctx context.Context) (*ml.ModelInfo, error) {
	out := &ml.ModelInfo{}
	if err := c.do(ctx, "GET", "/model/info", nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

// PredictRisk scores one reading against a tabular service.
func (c *Client) PredictRisk(ctx context.Context, r features.Reading) (*ml.TabularPrediction, error) {
	if r.HasMissing() {
		return nil, fmt.Errorf("reading has missing values")
	}
	out := &ml.TabularPrediction{}
	if err := c.do(ctx, "POST", "/predict", api.NewReadingRequest(r), out); err != nil {
		return nil, err
	}
	return out, nil
}

// PredictBatch scores a reading stream against a sequence service. A stream
// shorter than one window comes back as an *APIError with status 400.
func (c *Client) PredictBatch(ctx context.Context, req api.BatchRequest) (*api.BatchResponse, error) {
	out := &api.BatchResponse{}
	if err := c.do(ctx, "POST", "/predict-batch", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	apiErr := &api.ErrorResponse{}
	req := c.rest.R().
		SetContext(ctx).
		SetResult(result).
		SetError(apiErr)
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, c.base+path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsError() {
		msg := apiErr.Error
		if msg == "" {
			msg = strings.TrimSpace(resp.String())
		}
		return &APIError{Status: resp.StatusCode(), Message: msg}
	}
	return nil
}
