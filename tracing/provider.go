package tracing

import (
	"context"
	"net/http"

	"github.com/go-logr/logr"
	"github.com/zakharovvi/hec-forwarder/config"
	"go.opentelemetry.io/contrib/propagators/aws/xray"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.12.0"
)

// ServiceName is reported as service.name resource attribute.
const ServiceName = "hec-forwarder"

// TraceHeader is the X-Ray trace header.
const TraceHeader = "X-Amzn-Trace-Id"

type Option interface {
	apply(*options)
}

type options struct {
	log      logr.Logger
	resource *resource.Resource
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

type resourceOption struct {
	res *resource.Resource
}

func (o resourceOption) apply(opts *options) {
	opts.resource = o.res
}

// WithResource replaces the resource detected from the Lambda environment.
func WithResource(res *resource.Resource) Option {
	return resourceOption{res}
}

// NewTracerProvider creates a TracerProvider exporting every span synchronously through exporter.
// Synchronous export keeps spans from being lost when the execution environment is frozen between invocations.
func NewTracerProvider(ctx context.Context, exporter sdktrace.SpanExporter, opts ...Option) *sdktrace.TracerProvider {
	options := options{
		log: logr.FromContextOrDiscard(ctx),
	}
	for _, o := range opts {
		o.apply(&options)
	}
	if options.resource == nil {
		options.resource = Resource()
	}

	otel.SetLogger(options.log)

	return sdktrace.NewTracerProvider(
		sdktrace.WithIDGenerator(xray.NewIDGenerator()),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
		sdktrace.WithResource(options.resource),
		sdktrace.WithSyncer(exporter),
	)
}

// Resource describes the forwarder. Lambda attributes are added when running inside Lambda.
func Resource() *resource.Resource {
	attrs := []attribute.KeyValue{
		semconv.ServiceNameKey.String(ServiceName),
	}
	if rt := config.LoadRuntime(); rt.FunctionName != "" {
		attrs = append(
			attrs,
			semconv.CloudProviderAWS,
			semconv.CloudPlatformAWSLambda,
			semconv.CloudRegionKey.String(rt.Region),
			semconv.FaaSNameKey.String(rt.FunctionName),
			semconv.FaaSVersionKey.String(rt.FunctionVersion),
			semconv.FaaSMaxMemoryKey.Int(rt.MemoryMB),
		)
	}

	return resource.NewWithAttributes(semconv.SchemaURL, attrs...)
}

// ContextWithTraceHeader returns ctx with the remote parent span described by an X-Ray trace header value.
// ctx is returned unchanged when the header is empty or malformed.
func ContextWithTraceHeader(ctx context.Context, header string) context.Context {
	if header == "" {
		return ctx
	}

	return xray.Propagator{}.Extract(ctx, propagation.MapCarrier{TraceHeader: header})
}

// ContextFromRequest extracts the remote parent span from X-Ray trace header of r.
func ContextFromRequest(ctx context.Context, r *http.Request) context.Context {
	return xray.Propagator{}.Extract(ctx, propagation.HeaderCarrier(r.Header))
}
