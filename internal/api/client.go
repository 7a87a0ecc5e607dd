package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
)

// Client talks to the studio backend. Every call takes a context; the
// backend itself owns all business state.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	tracer     trace.Tracer
	duration   metric.Float64Histogram

	mu    sync.RWMutex
	token string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithTelemetry records a span and a duration sample for every request.
func WithTelemetry(tracer trace.Tracer, meter metric.Meter) Option {
	return func(c *Client) {
		if tracer != nil {
			c.tracer = tracer
		}
		if meter != nil {
			histogram, err := meter.Float64Histogram(
				"http.client.request.duration",
				metric.WithDescription("HTTP request duration in milliseconds"),
			)
			if err == nil {
				c.duration = histogram
			}
		}
	}
}

// WithToken sets the bearer token used for agent endpoints.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// NewClient creates a client for the backend at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     slog.Default(),
		tracer:     nooptrace.NewTracerProvider().Tracer("api"),
	}
	histogram, _ := noop.NewMeterProvider().Meter("api").Float64Histogram("http.client.request.duration")
	c.duration = histogram

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SetToken replaces the bearer token.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Error is returned for non-2xx responses.
type Error struct {
	Op         string
	StatusCode int
	Message    string
	Body       string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("API error: %s: %d %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error: %s: %d %s", e.Op, e.StatusCode, e.Body)
}

// IsStatus reports whether err is an API error with the given status code.
func IsStatus(err error, code int) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}

var ErrUnauthenticated = errors.New("not logged in")

func escape(id string) string {
	return url.PathEscape(id)
}

// do sends one JSON request and decodes the JSON response into out.
func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	ctx, span := c.tracer.Start(ctx, "api."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", path),
		),
	)
	defer span.End()

	start := time.Now()

	var body io.Reader
	if in != nil {
		jsonData, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", op, err)
		}
		body = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", op, err)
	}
	req.Header.Set("accept", "application/json")
	if in != nil {
		req.Header.Set("content-type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return fmt.Errorf("failed to send %s request: %w", op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", op, err)
	}

	elapsed := time.Since(start)
	c.duration.Record(ctx, float64(elapsed.Milliseconds()),
		metric.WithAttributes(
			attribute.String("api.operation", op),
			attribute.Int("http.response.status_code", resp.StatusCode),
		),
	)
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &Error{
			Op:         op,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(respBody),
			Body:       strings.TrimSpace(string(respBody)),
		}
		span.SetStatus(codes.Error, apiErr.Error())
		c.logger.Warn("api request failed", "op", op, "status", resp.StatusCode, "duration_ms", elapsed.Milliseconds())
		return apiErr
	}

	c.logger.Debug("api request", "op", op, "status", resp.StatusCode, "duration_ms", elapsed.Milliseconds())

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to unmarshal %s response: %w", op, err)
	}
	return nil
}

// errorMessage extracts the backend's {"message"} or {"error"} field.
func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if payload.Message != "" {
		return payload.Message
	}
	return payload.Error
}
