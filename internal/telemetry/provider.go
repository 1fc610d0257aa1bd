// Package telemetry 는 검사 경로의 OpenTelemetry 추적을 구성한다.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/config"
)

// InstrumentationName 은 서비스 span 의 tracer 이름이다.
const InstrumentationName = "risk-guard-go"

// Provider: OpenTelemetry TracerProvider 수명을 관리합니다.
type Provider struct {
	tracerProvider *sdktrace.TracerProvider
}

// NewProvider: 설정이 켜져 있으면 OTLP gRPC exporter 로 TracerProvider 를 만들고 글로벌로 등록합니다.
// 꺼져 있으면 no-op Provider 를 반환합니다 (글로벌 기본 tracer 는 no-op).
func NewProvider(ctx context.Context, cfg config.TelemetryConfig) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{}, nil
	}

	// resource.Default() 와 Merge 하면 schema URL 이 충돌할 수 있음
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.DeploymentEnvironment(cfg.Environment),
	)

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.OTLPInsecure {
		opts = append(opts, otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(rootSampler(cfg.SampleRate))),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Provider{tracerProvider: tp}, nil
}

func rootSampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1.0:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

// Shutdown: 버퍼에 남은 span 을 flush 하고 provider 를 닫습니다.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.tracerProvider == nil {
		return nil
	}
	if err := p.tracerProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown tracer provider: %w", err)
	}
	return nil
}

// IsEnabled: 추적이 활성화되었는지 반환합니다.
func (p *Provider) IsEnabled() bool {
	return p != nil && p.tracerProvider != nil
}

// Tracer: 서비스 tracer 를 반환합니다. provider 가 꺼져 있으면 no-op 입니다.
func Tracer() trace.Tracer {
	return otel.Tracer(InstrumentationName)
}
