// Package apiclient sends authenticated calls to the CRM REST services. A call rejected as
// unauthorized triggers one credential refresh and at most one replay.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "resultmarketing.crm.client/apiclient"

// CredentialSource supplies the bearer token and refreshes it. *session.Store implements it.
type CredentialSource interface {
	// AccessToken returns the current token, or "" to send the call unauthenticated.
	AccessToken() string
	Refresh(ctx context.Context) error
}

// Client calls one REST service. It is safe for concurrent use. Concurrent unauthorized calls
// each trigger their own refresh.
type Client struct {
	service    Service
	baseURL    string
	httpClient *http.Client
	creds      CredentialSource
	onLogin    func()

	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
	retries    metric.Int64Counter
	redirects  metric.Int64Counter
}

// Option configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	httpClient     *http.Client
	onLogin        func()
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	propagator     propagation.TextMapPropagator
}

// WithHTTPClient replaces the default HTTP client. Its Timeout overrides the timeout passed to New.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *clientOptions) { o.httpClient = hc }
}

// WithLoginRedirect registers fn to be called when the caller must sign in again.
func WithLoginRedirect(fn func()) Option {
	return func(o *clientOptions) { o.onLogin = fn }
}

// WithTracerProvider sets the tracer provider. Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *clientOptions) { o.tracerProvider = tp }
}

// WithMeterProvider sets the meter provider. Defaults to the global provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *clientOptions) { o.meterProvider = mp }
}

// WithPropagator sets the propagator used to inject trace context. Defaults to the global propagator.
func WithPropagator(p propagation.TextMapPropagator) Option {
	return func(o *clientOptions) { o.propagator = p }
}

// New returns a client for service at baseURL with a per-call timeout. creds may be nil for
// unauthenticated use.
func New(service Service, baseURL string, timeout time.Duration, creds CredentialSource, opts ...Option) *Client {
	o := clientOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: timeout}
	}
	if o.tracerProvider == nil {
		o.tracerProvider = otel.GetTracerProvider()
	}
	if o.meterProvider == nil {
		o.meterProvider = otel.GetMeterProvider()
	}
	if o.propagator == nil {
		o.propagator = otel.GetTextMapPropagator()
	}

	c := &Client{
		service:    service,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: o.httpClient,
		creds:      creds,
		onLogin:    o.onLogin,
		tracer:     o.tracerProvider.Tracer(instrumentationName),
		propagator: o.propagator,
	}
	meter := o.meterProvider.Meter(instrumentationName)
	var err error
	if c.retries, err = meter.Int64Counter("crm.apiclient.refresh_retries",
		metric.WithDescription("Calls replayed after a successful credential refresh")); err != nil {
		log.Printf("apiclient: create retry counter: %v", err)
		c.retries, _ = noop.NewMeterProvider().Meter(instrumentationName).Int64Counter("noop")
	}
	if c.redirects, err = meter.Int64Counter("crm.apiclient.login_redirects",
		metric.WithDescription("Calls abandoned with a redirect to login")); err != nil {
		log.Printf("apiclient: create redirect counter: %v", err)
		c.redirects, _ = noop.NewMeterProvider().Meter(instrumentationName).Int64Counter("noop")
	}
	return c
}

// Service returns the service this client targets.
func (c *Client) Service() Service { return c.service }

// Do sends d and decodes the response data into out (which may be nil).
//
// An unauthorized response triggers one Refresh on the credential source. If the refresh succeeds
// d is sent once more and that response is returned as-is; if it fails, the login redirect is
// signalled and an *AuthError is returned. No other status is retried.
func (c *Client) Do(ctx context.Context, d Descriptor, out interface{}) error {
	if d.Service != 0 && d.Service != c.service {
		return fmt.Errorf("apiclient: descriptor for %s sent to %s client", d.Service, c.service)
	}

	status, body, err := c.attempt(ctx, d, 1)
	if err != nil {
		return err
	}
	if status != http.StatusUnauthorized {
		return decode(status, body, out)
	}

	if c.creds == nil {
		return c.abandon(ctx, status, body, nil)
	}
	if rerr := c.creds.Refresh(ctx); rerr != nil {
		return c.abandon(ctx, status, body, rerr)
	}
	c.retries.Add(ctx, 1, metric.WithAttributes(attribute.String("crm.service", c.service.String())))

	status, body, err = c.attempt(ctx, d, 2)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized {
		return c.abandon(ctx, status, body, nil)
	}
	return decode(status, body, out)
}

// abandon signals the login redirect and builds the AuthError for an unrecoverable 401.
func (c *Client) abandon(ctx context.Context, status int, body []byte, refreshErr error) error {
	msg, _ := errorFields(body)
	c.redirects.Add(ctx, 1, metric.WithAttributes(attribute.String("crm.service", c.service.String())))
	log.Printf("apiclient: %s: unauthorized, redirecting to login", c.service)
	if c.onLogin != nil {
		c.onLogin()
	}
	return &AuthError{Status: status, Message: msg, Redirected: true, RefreshErr: refreshErr}
}

// attempt sends d once. A transport failure, including timeout, is returned as *NetworkError.
func (c *Client) attempt(ctx context.Context, d Descriptor, n int) (int, []byte, error) {
	ctx, span := c.tracer.Start(ctx, "apiclient "+d.Method+" "+d.Path,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", d.Method),
			attribute.String("url.path", d.Path),
			attribute.String("crm.service", c.service.String()),
			attribute.Int("crm.attempt", n),
		))
	defer span.End()

	u := c.baseURL + d.Path
	if len(d.Query) > 0 {
		u += "?" + d.Query.Encode()
	}
	var body io.Reader
	if d.Body != nil {
		body = bytes.NewReader(d.Body)
	}
	req, err := http.NewRequestWithContext(ctx, d.Method, u, body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "build request")
		return 0, nil, &NetworkError{Service: c.service, Method: d.Method, Path: d.Path, Err: err}
	}
	if d.ContentType != "" {
		req.Header.Set("Content-Type", d.ContentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.creds != nil {
		if token := c.creds.AccessToken(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	c.propagator.Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		return 0, nil, &NetworkError{Service: c.service, Method: d.Method, Path: d.Path, Err: err}
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read body")
		return 0, nil, &NetworkError{Service: c.service, Method: d.Method, Path: d.Path, Err: err}
	}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if resp.StatusCode >= 400 {
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
	}
	return resp.StatusCode, b, nil
}

// envelope is the response shape of both services.
type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   json.RawMessage `json:"error"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
}

// decode maps a response onto out or an *APIError. Bodies without a success field are decoded whole.
func decode(status int, body []byte, out interface{}) error {
	if status < 200 || status > 299 {
		msg, code := errorFields(body)
		if msg == "" {
			msg = http.StatusText(status)
		}
		return &APIError{Status: status, Message: msg, Code: code}
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil || env.Success == nil {
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("apiclient: decode response: %w", err)
		}
		return nil
	}
	if !*env.Success {
		msg, code := errorFields(body)
		if msg == "" {
			msg = "request failed"
		}
		return &APIError{Status: status, Message: msg, Code: code}
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("apiclient: decode response data: %w", err)
	}
	return nil
}

// errorFields extracts a message and code from an error body. The error field may be a string
// or an object with message and code.
func errorFields(body []byte) (msg, code string) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return strings.TrimSpace(string(body)), ""
	}
	msg, code = env.Message, env.Code
	if len(env.Error) > 0 {
		var s string
		if json.Unmarshal(env.Error, &s) == nil {
			if s != "" {
				msg = s
			}
		} else {
			var obj struct {
				Message string `json:"message"`
				Code    string `json:"code"`
			}
			if json.Unmarshal(env.Error, &obj) == nil {
				if obj.Message != "" {
					msg = obj.Message
				}
				if obj.Code != "" {
					code = obj.Code
				}
			}
		}
	}
	return msg, code
}
