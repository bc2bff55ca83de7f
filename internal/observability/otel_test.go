package observability

import (
	"context"
	"testing"

	"helpdesk/internal/config"
)

func TestEndpointHost(t *testing.T) {
	cases := map[string]string{
		"http://otel:4317":        "otel:4317",
		"https://collector:4317/": "collector:4317",
		"localhost:4317":          "localhost:4317",
	}
	for in, want := range cases {
		if got := EndpointHost(in); got != want {
			t.Fatalf("EndpointHost(%q)=%q want %q", in, got, want)
		}
	}
}

func TestSampleRatio(t *testing.T) {
	if SampleRatio(0) != 0.1 || SampleRatio(1.5) != 0.1 {
		t.Fatalf("out of range ratio should fall back to 0.1")
	}
	if SampleRatio(0.5) != 0.5 {
		t.Fatalf("in range ratio should be kept")
	}
}

func TestSetupTracing_DisabledIsNoop(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Monitoring.Tracing.Enabled = false
	shutdown, err := SetupTracing(context.Background(), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
