package otel

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestNewProviders_EmptyEndpoint(t *testing.T) {
	ctx := context.Background()
	log, _ := test.NewNullLogger()
	for _, endpoint := range []string{"", "   "} {
		providers, err := NewProviders(ctx, endpoint, "pmt-test", false, log)
		if err != nil {
			t.Fatalf("NewProviders(%q): %v", endpoint, err)
		}
		if providers.TracerProvider == nil || providers.MeterProvider == nil || providers.LoggerProvider == nil {
			t.Fatalf("NewProviders(%q) returned a nil provider: %+v", endpoint, providers)
		}
		if err := providers.Shutdown(ctx); err != nil {
			t.Errorf("Shutdown: %v", err)
		}
	}
}

func TestNewProviders_InvalidEndpoint(t *testing.T) {
	log, _ := test.NewNullLogger()
	for _, endpoint := range []string{"://invalid", "http://[invalid", "http://"} {
		if _, err := NewProviders(context.Background(), endpoint, "pmt-test", false, log); err == nil {
			t.Errorf("NewProviders(%q) should return error", endpoint)
		}
	}
}

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		endpoint string
		override bool
		want     Target
	}{
		{"localhost:4317", false, Target{HostPort: "localhost:4317", Insecure: true}},
		{"http://collector:4317", false, Target{HostPort: "collector:4317", Insecure: true}},
		{"https://collector:4317", false, Target{HostPort: "collector:4317", Insecure: false}},
		{"https://collector:4317", true, Target{HostPort: "collector:4317", Insecure: true}},
		{" http://collector:4317/v1/traces ", false, Target{HostPort: "collector:4317", Insecure: true}},
	}
	for _, tt := range tests {
		got, err := ParseEndpoint(tt.endpoint, tt.override)
		if err != nil {
			t.Errorf("ParseEndpoint(%q): %v", tt.endpoint, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseEndpoint(%q, %v) = %+v, want %+v", tt.endpoint, tt.override, got, tt.want)
		}
	}
}

func TestSetGlobal_InstallsTracerProvider(t *testing.T) {
	ctx := context.Background()
	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(ctx) }()

	(&Providers{TracerProvider: tp}).SetGlobal()
	if otel.GetTracerProvider() != tp {
		t.Error("global TracerProvider was not replaced")
	}
}

func TestSetGlobal_NilProviders(t *testing.T) {
	// Must not panic.
	(&Providers{}).SetGlobal()
}
