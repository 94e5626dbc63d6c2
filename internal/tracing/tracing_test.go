package tracing

import (
	"context"
	"errors"
	"net/http"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"
)

func TestInitializeDisabled(t *testing.T) {
	shutdown, err := Initialize(Config{Enabled: false}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown() error = %v", err)
	}

	ctx, span := StartSpan(context.Background(), "noop")
	defer span.End()
	if ctx == nil {
		t.Fatal("expected a context")
	}
}

func TestSpansAndPropagation(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	prev := tracer
	tracer = tp.Tracer("test")
	defer func() { tracer = prev }()

	ctx, span := StartBackendSpan(context.Background(), "general-search", http.MethodPost, "https://api.example.com/request")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.example.com/request", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	InjectTraceparent(ctx, req)
	RecordError(span, errors.New("boom"))
	RecordError(span, nil)
	span.End()

	if req.Header.Get("traceparent") == "" {
		t.Error("expected traceparent header to be injected")
	}

	ended := recorder.Ended()
	if len(ended) != 1 {
		t.Fatalf("got %d ended spans, want 1", len(ended))
	}
	if ended[0].Name() != "backend general-search" {
		t.Errorf("span name = %q", ended[0].Name())
	}
	if len(ended[0].Events()) != 1 {
		t.Errorf("expected one recorded error event, got %d", len(ended[0].Events()))
	}
}
