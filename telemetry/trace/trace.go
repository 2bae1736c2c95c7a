//
// Copyright (C) 2026 The loom Authors. All rights reserved.
//
// loom is licensed under the Apache License Version 2.0.
//
//

// Package trace provides distributed tracing for graph execution. It
// integrates with OpenTelemetry: without Start the global tracer is a
// no-op, so instrumented code pays nothing when tracing is off.
package trace

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Defaults used when no option overrides them.
const (
	defaultServiceName      = "loom"
	defaultServiceVersion   = "v0.1.0"
	defaultServiceNamespace = "loom"
	instrumentName          = "loomhq.loom"

	// ProtocolGRPC uses gRPC for the OTLP exporter.
	ProtocolGRPC = "grpc"
	// ProtocolHTTP uses HTTP for the OTLP exporter.
	ProtocolHTTP = "http"
)

// TracerProvider is the global tracer provider. It stays a no-op until
// Start succeeds.
var TracerProvider trace.TracerProvider = noop.NewTracerProvider()

// Tracer is the global tracer used by the graph executor.
var Tracer trace.Tracer = TracerProvider.Tracer("")

// Option configures Start.
type Option func(*options)

type options struct {
	tracesEndpoint   string
	serviceName      string
	serviceVersion   string
	serviceNamespace string
	protocol         string
	headers          map[string]string
}

// WithEndpoint sets the traces endpoint (host and port, no scheme) the
// exporter connects to, e.g. "collector:4317". When unset, the
// OTEL_EXPORTER_OTLP_TRACES_ENDPOINT and OTEL_EXPORTER_OTLP_ENDPOINT
// environment variables are consulted before the protocol default.
func WithEndpoint(endpoint string) Option {
	return func(o *options) {
		o.tracesEndpoint = endpoint
	}
}

// WithServiceName sets the reported service name.
func WithServiceName(name string) Option {
	return func(o *options) {
		o.serviceName = name
	}
}

// WithServiceVersion sets the reported service version.
func WithServiceVersion(version string) Option {
	return func(o *options) {
		o.serviceVersion = version
	}
}

// WithProtocol selects the OTLP transport: ProtocolGRPC (default) or
// ProtocolHTTP.
func WithProtocol(protocol string) Option {
	return func(o *options) {
		o.protocol = protocol
	}
}

// WithHeaders sets extra headers sent with every export request.
func WithHeaders(headers map[string]string) Option {
	return func(o *options) {
		o.headers = headers
	}
}

// Start installs an OTLP-exporting tracer provider as the global tracer.
// The returned clean function flushes and shuts the provider down.
func Start(ctx context.Context, opts ...Option) (clean func() error, err error) {
	o := &options{
		serviceName:      defaultServiceName,
		serviceVersion:   defaultServiceVersion,
		serviceNamespace: defaultServiceNamespace,
		protocol:         ProtocolGRPC,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.tracesEndpoint == "" {
		o.tracesEndpoint = tracesEndpoint(o.protocol)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNamespace(o.serviceNamespace),
			semconv.ServiceName(o.serviceName),
			semconv.ServiceVersion(o.serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	var shutdown func(context.Context) error
	switch o.protocol {
	case ProtocolHTTP:
		shutdown, err = initHTTPTracerProvider(ctx, res, o)
	default:
		shutdown, err = initGRPCTracerProvider(ctx, res, o)
	}
	if err != nil {
		return nil, fmt.Errorf("initialize tracer provider: %w", err)
	}

	Tracer = otel.Tracer(instrumentName)
	return func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown tracer provider: %w", err)
		}
		return nil
	}, nil
}

func tracesEndpoint(protocol string) string {
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"); endpoint != "" {
		return endpoint
	}
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		return endpoint
	}
	if protocol == ProtocolHTTP {
		return "localhost:4318"
	}
	return "localhost:4317"
}

func initGRPCTracerProvider(ctx context.Context, res *resource.Resource, o *options) (
	func(context.Context) error, error) {
	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(o.tracesEndpoint),
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithHeaders(o.headers),
	)
	if err != nil {
		return nil, fmt.Errorf("create grpc trace exporter: %w", err)
	}
	return setupTracerProvider(res, exporter), nil
}

func initHTTPTracerProvider(ctx context.Context, res *resource.Resource, o *options) (
	func(context.Context) error, error) {
	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(o.tracesEndpoint),
		otlptracehttp.WithInsecure(),
		otlptracehttp.WithHeaders(o.headers),
	)
	if err != nil {
		return nil, fmt.Errorf("create http trace exporter: %w", err)
	}
	return setupTracerProvider(res, exporter), nil
}

func setupTracerProvider(res *resource.Resource, exporter sdktrace.SpanExporter) func(context.Context) error {
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	TracerProvider = provider
	return provider.Shutdown
}
