package telemetry

import (
	"context"
	"os"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/helper/common"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/versioning"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/trace"

	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

func hostname() string {
	if name, err := os.Hostname(); err == nil {
		return name
	}

	if ip, err := common.GetOutboundIP(); err == nil {
		return ip.String()
	}

	return "unknown"
}

func newJaegerProvider(url string, service string) (*tracesdk.TracerProvider, error) {
	exp, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(url)))
	if err != nil {
		return nil, err
	}

	return tracesdk.NewTracerProvider(
		tracesdk.WithBatcher(exp),
		tracesdk.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(service),
			attribute.String("hostname", hostname()),
			attribute.String("version", versioning.Version),
			attribute.String("commit", common.Substr(versioning.Commit, 0, 8)),
		)),
		tracesdk.WithSampler(tracesdk.AlwaysSample()),
	), nil
}

type otelSpan struct {
	span trace.Span
	ctx  context.Context
}

func (s *otelSpan) SetAttributes(attributes map[string]interface{}) {
	s.span.SetAttributes(toKeyValues(attributes)...)
}

func (s *otelSpan) SetStatus(code Code, info string) {
	s.span.SetStatus(codes.Code(code), info)
}

func (s *otelSpan) RecordError(err error) {
	s.span.RecordError(err)
}

func (s *otelSpan) Fail(err error) {
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

func (s *otelSpan) End() {
	s.span.End()
}

func (s *otelSpan) Context() context.Context {
	return s.ctx
}

type otelTracer struct {
	root   context.Context
	tracer trace.Tracer
}

func (t *otelTracer) Start(name string) Span {
	return t.StartWithContext(t.root, name)
}

func (t *otelTracer) StartWithContext(ctx context.Context, name string) Span {
	ctx, span := t.tracer.Start(ctx, name)

	return &otelSpan{span: span, ctx: ctx}
}

type jaegerTracerProvider struct {
	root     context.Context
	provider *tracesdk.TracerProvider
}

func (p *jaegerTracerProvider) NewTracer(namespace string) Tracer {
	return &otelTracer{
		root:   p.root,
		tracer: p.provider.Tracer(namespace),
	}
}

func (p *jaegerTracerProvider) Shutdown(ctx context.Context) error {
	return p.provider.Shutdown(ctx)
}

// NewTracerProvider exports spans to the jaeger collector at url and
// installs itself as the global otel provider
func NewTracerProvider(ctx context.Context, url string, service string) (TracerProvider, error) {
	tp, err := newJaegerProvider(url, service)
	if err != nil {
		return nil, err
	}

	otel.SetTracerProvider(tp)

	return &jaegerTracerProvider{
		root:     ctx,
		provider: tp,
	}, nil
}
