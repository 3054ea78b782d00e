package hec

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-logr/logr"
	hecfwd "github.com/zakharovvi/hec-forwarder"
	"github.com/zakharovvi/hec-forwarder/payload"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.12.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultTimeout is applied to every POST request.
	DefaultTimeout = 10 * time.Second

	channelHeader = "X-Splunk-Request-Channel"
	tracerName    = "github.com/zakharovvi/hec-forwarder/hec"
)

// Envelope is the body of a single event POST request.
type Envelope struct {
	Source     hecfwd.Source     `json:"source"`
	SourceType hecfwd.SourceType `json:"sourcetype"`
	Index      hecfwd.Index      `json:"index,omitempty"`
	Host       string            `json:"host,omitempty"`
	Event      payload.Event     `json:"event"`
}

// DeliveryError is returned when the collector replies with a status other than 200 OK.
type DeliveryError struct {
	// StatusCode is the HTTP status code of the response.
	StatusCode int `json:"-"`
	// Body is the raw response body.
	Body string `json:"-"`
	// Text and Code are parsed from HEC JSON error responses, e.g. {"text":"Invalid token","code":4}.
	Text string `json:"text"`
	Code int    `json:"code"`
	// Index is the position of the rejected event in the delivered list.
	Index int `json:"-"`
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("Splunk HEC error %d: %s", e.StatusCode, e.Body)
}

type options struct {
	httpClient         *http.Client
	timeout            time.Duration
	insecureSkipVerify bool
	source             hecfwd.Source
	sourceType         hecfwd.SourceType
	index              hecfwd.Index
	host               string
	channel            hecfwd.Channel
	tracerProvider     trace.TracerProvider
	log                logr.Logger
}

type Option interface {
	apply(*options)
}

type httpClientOption struct {
	httpClient *http.Client
}

func (o httpClientOption) apply(opts *options) {
	opts.httpClient = o.httpClient
}

// WithHTTPClient replaces the default HTTP client. WithInsecureSkipVerify has no effect on a custom client.
func WithHTTPClient(httpClient *http.Client) Option {
	return httpClientOption{httpClient}
}

type timeoutOption time.Duration

func (o timeoutOption) apply(opts *options) {
	opts.timeout = time.Duration(o)
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(timeout time.Duration) Option {
	return timeoutOption(timeout)
}

type insecureSkipVerifyOption bool

func (o insecureSkipVerifyOption) apply(opts *options) {
	opts.insecureSkipVerify = bool(o)
}

// WithInsecureSkipVerify disables TLS certificate verification of the collector.
// It is required for some collectors with incomplete certificate chains (e.g. Splunk Cloud trial stacks)
// and must never be enabled implicitly.
func WithInsecureSkipVerify(skip bool) Option {
	return insecureSkipVerifyOption(skip)
}

type sourceOption hecfwd.Source

func (o sourceOption) apply(opts *options) {
	opts.source = hecfwd.Source(o)
}

func WithSource(source hecfwd.Source) Option {
	return sourceOption(source)
}

type sourceTypeOption hecfwd.SourceType

func (o sourceTypeOption) apply(opts *options) {
	opts.sourceType = hecfwd.SourceType(o)
}

func WithSourceType(sourceType hecfwd.SourceType) Option {
	return sourceTypeOption(sourceType)
}

type indexOption hecfwd.Index

func (o indexOption) apply(opts *options) {
	opts.index = hecfwd.Index(o)
}

// WithIndex sets the destination index. The token's default index is used otherwise.
func WithIndex(index hecfwd.Index) Option {
	return indexOption(index)
}

type hostOption string

func (o hostOption) apply(opts *options) {
	opts.host = string(o)
}

func WithHost(host string) Option {
	return hostOption(host)
}

type channelOption hecfwd.Channel

func (o channelOption) apply(opts *options) {
	opts.channel = hecfwd.Channel(o)
}

// WithChannel sets the X-Splunk-Request-Channel header.
func WithChannel(channel hecfwd.Channel) Option {
	return channelOption(channel)
}

type tracerProviderOption struct {
	tp trace.TracerProvider
}

func (o tracerProviderOption) apply(opts *options) {
	opts.tracerProvider = o.tp
}

// WithTracerProvider overrides the global otel.GetTracerProvider().
func WithTracerProvider(tp trace.TracerProvider) Option {
	return tracerProviderOption{tp}
}

type loggerOption struct {
	log logr.Logger
}

func (o loggerOption) apply(opts *options) {
	opts.log = o.log
}

func WithLogger(log logr.Logger) Option {
	return loggerOption{log}
}

// Client posts events to a single HEC endpoint.
// Client holds no mutable state and is safe for concurrent use.
type Client struct {
	url        *url.URL
	token      hecfwd.Token
	source     hecfwd.Source
	sourceType hecfwd.SourceType
	index      hecfwd.Index
	host       string
	channel    hecfwd.Channel
	timeout    time.Duration
	httpClient *http.Client
	tracer     trace.Tracer
	log        logr.Logger
}

// NewClient creates Client for the given endpoint, e.g. https://splunk:8088/services/collector/event.
// Events are posted to the endpoint exactly as given, including its path and query.
// Empty endpoint and token are not rejected here: the collector reports them on the first request.
func NewClient(ctx context.Context, endpoint string, token hecfwd.Token, opts ...Option) (*Client, error) {
	options := options{
		timeout:        DefaultTimeout,
		source:         hecfwd.DefaultSource,
		sourceType:     hecfwd.DefaultSourceType,
		tracerProvider: otel.GetTracerProvider(),
		log:            logr.FromContextOrDiscard(ctx),
	}
	for _, o := range opts {
		o.apply(&options)
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		err = fmt.Errorf("could not parse HEC endpoint: %w", err)
		options.log.Error(err, "")

		return nil, err
	}

	httpClient := options.httpClient
	if httpClient == nil {
		httpClient = newHTTPClient(options.insecureSkipVerify)
		if options.insecureSkipVerify {
			options.log.Info("TLS certificate verification of HEC endpoint is disabled", "url", u.Redacted())
		}
	}
	options.log.V(1).Info("using HEC endpoint", "url", u.Redacted(), "token", token.String())

	return &Client{
		url:        u,
		token:      token,
		source:     options.source,
		sourceType: options.sourceType,
		index:      options.index,
		host:       options.host,
		channel:    options.channel,
		timeout:    options.timeout,
		httpClient: httpClient,
		tracer:     options.tracerProvider.Tracer(tracerName),
		log:        options.log,
	}, nil
}

func newHTTPClient(insecureSkipVerify bool) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if insecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: true, //nolint:gosec // explicit opt-in
		}
	}

	return &http.Client{Transport: transport}
}

// URL returns the endpoint events are posted to.
func (c *Client) URL() string {
	return c.url.String()
}

// Send posts events one by one in order and returns the number of delivered events.
// The first failed event stops the delivery: the remaining events are not attempted
// and events delivered before the failure stay delivered.
// Non-200 responses are returned as *DeliveryError.
func (c *Client) Send(ctx context.Context, events []payload.Event) (int, error) {
	for i, event := range events {
		if err := ctx.Err(); err != nil {
			return i, fmt.Errorf("delivery interrupted before event %d: %w", i, err)
		}
		if err := c.send(ctx, i, event); err != nil {
			c.log.Error(err, "could not deliver event", "index", i, "delivered", i, "total", len(events))

			return i, err
		}
	}
	c.log.Info("sent events to Splunk", "count", len(events))

	return len(events), nil
}

// SendEvent posts a single event.
func (c *Client) SendEvent(ctx context.Context, event payload.Event) error {
	return c.send(ctx, 0, event)
}

func (c *Client) send(ctx context.Context, index int, event payload.Event) error {
	ctx, span := c.tracer.Start(
		ctx,
		"hec.send",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			semconv.HTTPMethodKey.String(http.MethodPost),
			semconv.HTTPURLKey.String(c.url.Redacted()),
			attribute.Int("hec.event.index", index),
			attribute.String("hec.source", string(c.source)),
		),
	)
	defer span.End()

	statusCode, err := c.post(ctx, event)
	if statusCode != 0 {
		span.SetAttributes(semconv.HTTPStatusCodeKey.Int(statusCode))
	}
	if err != nil {
		var deliveryErr *DeliveryError
		if errors.As(err, &deliveryErr) {
			deliveryErr.Index = index
		} else {
			err = fmt.Errorf("could not post event %d: %w", index, err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return err
	}

	return nil
}

func (c *Client) post(ctx context.Context, event payload.Event) (int, error) {
	body, err := json.Marshal(&Envelope{
		Source:     c.source,
		SourceType: c.sourceType,
		Index:      c.index,
		Host:       c.host,
		Event:      event,
	})
	if err != nil {
		return 0, fmt.Errorf("could not json encode envelope: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url.String(), bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("could not create http request: %w", err)
	}
	req.Header.Set("Authorization", "Splunk "+string(c.token))
	req.Header.Set("Content-Type", "application/json")
	if c.channel != "" {
		req.Header.Set(channelHeader, string(c.channel))
	}

	return c.doRequest(req, http.StatusOK)
}

func (c *Client) doRequest(req *http.Request, wantStatus int) (int, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("http request failed: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.log.Error(err, "could not close http response body")
		}
	}()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("could not read http response body: %w", err)
	}
	c.log.V(1).Info("received HEC response", "status", resp.StatusCode, "body", string(body))

	if resp.StatusCode != wantStatus {
		deliveryErr := &DeliveryError{}
		// HEC error bodies are optional JSON, the raw body is always kept
		_ = json.Unmarshal(body, deliveryErr)
		deliveryErr.StatusCode = resp.StatusCode
		deliveryErr.Body = string(body)

		return resp.StatusCode, deliveryErr
	}

	return resp.StatusCode, nil
}
