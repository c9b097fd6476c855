// Package gateway talks to the hospital REST gateway that owns patients,
// beds, departments, admissions and invoices. Every wire representation the
// gateway uses is translated here; nothing outside this package sees it.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/hospital/inpatient/internal/platform/apperr"
	"github.com/hospital/inpatient/internal/platform/metrics"
)

const (
	DefaultTimeout    = 30 * time.Second
	DefaultRetryCount = 2
)

type Config struct {
	BaseURL    string
	Timeout    time.Duration
	RetryCount int
	// Token is sent as a bearer token when set.
	Token    string
	Coverage CoverageFormat
}

// Client implements the ward, billing and admission collaborator contracts
// against the gateway API.
type Client struct {
	http     *resty.Client
	logger   zerolog.Logger
	metrics  *metrics.Metrics
	coverage CoverageFormat
}

func New(cfg Config, logger zerolog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RetryCount < 0 {
		cfg.RetryCount = 0
	}
	if cfg.Coverage == "" {
		cfg.Coverage = CoverageFraction
	}

	rc := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(3 * time.Second).
		AddRetryCondition(retryable).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.Token != "" {
		rc.SetAuthToken(cfg.Token)
	}

	return &Client{
		http:     rc,
		logger:   logger.With().Str("component", "gateway").Logger(),
		coverage: cfg.Coverage,
	}
}

func (c *Client) SetMetrics(m *metrics.Metrics) {
	c.metrics = m
}

// retryable limits automatic retries to reads. Writes are never replayed:
// a replayed admit or invoice create could act twice on the gateway.
func retryable(r *resty.Response, err error) bool {
	if r == nil || r.Request == nil || r.Request.Method != http.MethodGet {
		return false
	}
	if err != nil {
		return true
	}
	code := r.StatusCode()
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// call sends one request and decodes a successful body into out. resource
// labels logs and metrics.
func (c *Client) call(ctx context.Context, resource, method, path string, body, out interface{}, query map[string]string) error {
	return c.send(ctx, resource, method, path, nil, body, out, query)
}

// callByID fills the {id} segment of path. The id is path-escaped, so a
// value holding "/" or "?" cannot reach another endpoint.
func (c *Client) callByID(ctx context.Context, resource, method, path, id string, out interface{}) error {
	return c.send(ctx, resource, method, path, map[string]string{"id": id}, nil, out, nil)
}

func (c *Client) send(ctx context.Context, resource, method, path string, params map[string]string, body, out interface{}, query map[string]string) error {
	op := resource + "." + strings.ToLower(method)
	start := time.Now()

	req := c.http.R().SetContext(ctx)
	if len(params) > 0 {
		req.SetPathParams(params)
	}
	if body != nil {
		req.SetBody(body)
	}
	if len(query) > 0 {
		req.SetQueryParams(query)
	}

	resp, err := req.Execute(method, path)
	err = classify(op, resp, err)
	if err == nil && out != nil {
		if derr := decodeBody(resp.Body(), out); derr != nil {
			err = apperr.Internal(op, fmt.Errorf("decode %s response: %w", path, derr))
		}
	}

	outcome := "ok"
	if err != nil {
		outcome = string(apperr.KindOf(err))
	}
	c.metrics.ObserveGatewayRequest(resource, method, outcome, time.Since(start).Seconds())

	ev := c.logger.Debug()
	if err != nil {
		ev = c.logger.Warn().Err(err)
	}
	status := 0
	if resp != nil {
		status = resp.StatusCode()
	}
	ev.Str("method", method).Str("path", path).Int("status", status).
		Dur("latency", time.Since(start)).Msg("gateway request")
	return err
}

// decodeBody accepts either a bare payload or one wrapped in {"data": ...}.
func decodeBody(raw []byte, out interface{}) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}
	if raw[0] == '{' {
		var wrapped struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(raw, &wrapped); err == nil {
			if d := bytes.TrimSpace(wrapped.Data); len(d) > 0 && !bytes.Equal(d, []byte("null")) {
				return json.Unmarshal(d, out)
			}
		}
	}
	return json.Unmarshal(raw, out)
}

// busyMarkers are fragments of the gateway's "bed already taken" messages.
var busyMarkers = []string{"bận", "busy", "occupied", "đã có người"}

type errorEnvelope struct {
	Message string `json:"message"`
	Title   string `json:"title"`
	Error   string `json:"error"`
}

func (e errorEnvelope) text() string {
	for _, s := range []string{e.Message, e.Title, e.Error} {
		if s != "" {
			return s
		}
	}
	return ""
}

// classify maps a transport result onto an apperr kind.
func classify(op string, resp *resty.Response, err error) error {
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return apperr.Internal(op, err)
		}
		return apperr.Transient(op, err)
	}
	if resp == nil {
		return apperr.Internal(op, errors.New("no response"))
	}
	code := resp.StatusCode()
	if code >= 200 && code < 300 {
		return nil
	}

	var env errorEnvelope
	_ = json.Unmarshal(resp.Body(), &env)
	msg := env.text()
	if msg == "" {
		msg = strings.TrimSpace(string(resp.Body()))
	}
	if msg == "" {
		msg = http.StatusText(code)
	}

	if code == http.StatusConflict || isBusy(msg) {
		return apperr.Conflict(op, "%s", msg)
	}
	switch {
	case code == http.StatusNotFound:
		return apperr.NotFound(op, "%s", msg)
	case code == http.StatusBadRequest || code == http.StatusUnprocessableEntity:
		return apperr.Validation(op, "%s", msg)
	case code == http.StatusTooManyRequests || code >= 500:
		return apperr.Transient(op, fmt.Errorf("status %d: %s", code, msg))
	}
	return apperr.Internal(op, fmt.Errorf("status %d: %s", code, msg))
}

func isBusy(msg string) bool {
	lower := strings.ToLower(msg)
	for _, m := range busyMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
