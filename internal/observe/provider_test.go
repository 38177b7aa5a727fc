package observe

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

func TestProviderConfig_Resource(t *testing.T) {
	t.Parallel()
	res, err := ProviderConfig{ServiceVersion: "1.4.0", Backend: "on_device"}.Resource()
	if err != nil {
		t.Fatalf("Resource() error: %v", err)
	}
	set := res.Set()
	for key, want := range map[string]string{
		"service.name":    ServiceName,
		"service.version": "1.4.0",
		"typofix.backend": "on_device",
	} {
		if got := attr(*set, key); got != want {
			t.Errorf("%s = %s, want %s", key, got, want)
		}
	}
}

func TestProviderConfig_ResourceWithoutBackend(t *testing.T) {
	t.Parallel()
	res, err := ProviderConfig{ServiceVersion: "dev"}.Resource()
	if err != nil {
		t.Fatalf("Resource() error: %v", err)
	}
	if _, ok := res.Set().Value(attribute.Key("typofix.backend")); ok {
		t.Error("typofix.backend set without a backend")
	}
}

func TestInitProvider_ExportsToRegistry(t *testing.T) {
	origMP, origTP := otel.GetMeterProvider(), otel.GetTracerProvider()
	t.Cleanup(func() {
		otel.SetMeterProvider(origMP)
		otel.SetTracerProvider(origTP)
	})

	reg := prometheus.NewRegistry()
	shutdown, err := InitProvider(context.Background(), ProviderConfig{
		ServiceVersion: "1.4.0",
		Backend:        "remote",
		Registerer:     reg,
	})
	if err != nil {
		t.Fatalf("InitProvider() error: %v", err)
	}
	t.Cleanup(func() { _ = shutdown(context.Background()) })

	m, err := NewMetrics(otel.GetMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	m.RecordConfigReload(context.Background(), "ok")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	var sawReloads, sawTarget bool
	for _, f := range families {
		switch f.GetName() {
		case "typofix_config_reloads_total":
			sawReloads = true
		case "target_info":
			sawTarget = true
			for _, l := range f.GetMetric()[0].GetLabel() {
				if l.GetName() == "typofix_backend" && l.GetValue() != "remote" {
					t.Errorf("target_info typofix_backend = %q, want remote", l.GetValue())
				}
			}
		}
	}
	if !sawReloads {
		t.Error("config reload counter not exported to the registry")
	}
	if !sawTarget {
		t.Error("target_info not exported")
	}
}
