package function

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/go-logr/logr"
	"github.com/zakharovvi/hec-forwarder/config"
	"github.com/zakharovvi/hec-forwarder/payload"
	"github.com/zakharovvi/hec-forwarder/tracing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.12.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/zakharovvi/hec-forwarder/function"

// Normalizer turns a raw payload into events. It is implemented by *payload.Normalizer.
type Normalizer interface {
	Normalize(raw any) ([]payload.Event, error)
}

// Sender delivers events in order and returns the number of delivered events. It is implemented by *hec.Client.
type Sender interface {
	Send(ctx context.Context, events []payload.Event) (int, error)
}

type Status string

const (
	StatusSuccess Status = "success"
	StatusNoData  Status = "no data"
)

// Result is returned by every successful invocation.
type Result struct {
	Status     Status `json:"status"`
	EventsSent int    `json:"events_sent"`
}

// MarshalJSON omits events_sent from the no data result.
func (r Result) MarshalJSON() ([]byte, error) {
	if r.Status == StatusNoData {
		return json.Marshal(struct {
			Status Status `json:"status"`
		}{r.Status})
	}
	type result Result

	return json.Marshal(result(r))
}

type options struct {
	log            logr.Logger
	tracerProvider trace.TracerProvider
}

type Option interface {
	apply(*options)
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

// Handler is safe for concurrent use when normalizer and sender are.
type Handler struct {
	normalizer Normalizer
	sender     Sender
	tracer     trace.Tracer
	log        logr.Logger
	warm       atomic.Bool
}

// New creates Handler. The logger is taken from ctx unless WithLogger is passed.
func New(ctx context.Context, normalizer Normalizer, sender Sender, opts ...Option) *Handler {
	options := options{
		log:            logr.FromContextOrDiscard(ctx),
		tracerProvider: otel.GetTracerProvider(),
	}
	for _, o := range opts {
		o.apply(&options)
	}

	return &Handler{
		normalizer: normalizer,
		sender:     sender,
		tracer:     options.tracerProvider.Tracer(tracerName),
		log:        options.log,
	}
}

// Handle normalizes data and delivers the events.
// Absent data returns the no data result without contacting the collector.
func (h *Handler) Handle(ctx context.Context, data any) (*Result, error) {
	return h.handle(ctx, data, h.log, trace.WithSpanKind(trace.SpanKindInternal))
}

// Invoke is the AWS Lambda entry point: lambda.Start(h.Invoke).
// An empty or null payload is treated as absent.
// The invocation span joins the X-Ray trace of the invocation when tracing is active.
func (h *Handler) Invoke(ctx context.Context, event json.RawMessage) (*Result, error) {
	var data any
	if doc := bytes.TrimSpace(event); len(doc) > 0 && !bytes.Equal(doc, []byte("null")) {
		data = []byte(event)
	}

	log := h.log
	attrs := []attribute.KeyValue{
		semconv.FaaSTriggerOther,
		semconv.FaaSColdstartKey.Bool(!h.warm.Swap(true)),
	}
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		log = log.WithValues("requestID", lc.AwsRequestID)
		attrs = append(attrs, semconv.FaaSExecutionKey.String(lc.AwsRequestID))
	}
	ctx = tracing.ContextWithTraceHeader(ctx, config.TraceHeader())

	return h.handle(ctx, data, log, trace.WithSpanKind(trace.SpanKindServer), trace.WithAttributes(attrs...))
}

func (h *Handler) handle(ctx context.Context, data any, log logr.Logger, opts ...trace.SpanStartOption) (*Result, error) {
	ctx, span := h.tracer.Start(ctx, "function.invoke", opts...)
	defer span.End()

	result, err := h.forward(ctx, data, log)
	if err != nil {
		log.Error(err, "Function error")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return nil, err
	}
	span.SetAttributes(
		attribute.String("function.status", string(result.Status)),
		attribute.Int("function.events_sent", result.EventsSent),
	)

	return result, nil
}

func (h *Handler) forward(ctx context.Context, data any, log logr.Logger) (*Result, error) {
	events, err := h.normalizer.Normalize(data)
	if errors.Is(err, payload.ErrNoData) {
		log.V(1).Info("invocation payload is absent")

		return &Result{Status: StatusNoData}, nil
	}
	if err != nil {
		return nil, err
	}
	log.V(1).Info("payload normalized", "events", len(events))

	n, err := h.sender.Send(ctx, events)
	if err != nil {
		return nil, err
	}

	return &Result{Status: StatusSuccess, EventsSent: n}, nil
}
