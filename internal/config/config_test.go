package config_test

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/rhymeslikedimes/internal/config"
	"github.com/MrWong99/rhymeslikedimes/pkg/provider/rhymesource"
	"github.com/MrWong99/rhymeslikedimes/pkg/provider/rhymesource/mock"
)

func TestLogLevel_IsValid(t *testing.T) {
	t.Parallel()

	for _, l := range []config.LogLevel{config.LogDebug, config.LogInfo, config.LogWarn, config.LogError} {
		if !l.IsValid() {
			t.Errorf("%q should be valid", l)
		}
	}
	if config.LogLevel("trace").IsValid() {
		t.Error(`"trace" should be invalid`)
	}
}

func TestLogLevel_Slog(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   config.LogLevel
		want slog.Level
	}{
		{config.LogDebug, slog.LevelDebug},
		{config.LogInfo, slog.LevelInfo},
		{config.LogWarn, slog.LevelWarn},
		{config.LogError, slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := tt.in.Slog(); got != tt.want {
			t.Errorf("LogLevel(%q).Slog() = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFallbackMode_IsValid(t *testing.T) {
	t.Parallel()

	if !config.FallbackOffline.IsValid() || !config.FallbackNone.IsValid() {
		t.Error("built-in fallback modes should be valid")
	}
	if config.FallbackMode("datamuse").IsValid() {
		t.Error(`"datamuse" is not a fallback mode`)
	}
}

func TestTLSConfig_Enabled(t *testing.T) {
	t.Parallel()

	if (config.TLSConfig{CertFile: "c.pem"}).Enabled() {
		t.Error("cert without key should not enable TLS")
	}
	if !(config.TLSConfig{CertFile: "c.pem", KeyFile: "k.pem"}).Enabled() {
		t.Error("cert and key should enable TLS")
	}
}

func TestCircuitBreakerConfig_Resilience(t *testing.T) {
	t.Parallel()

	got := config.CircuitBreakerConfig{MaxFailures: 4, ResetTimeout: time.Minute, HalfOpenMax: 2}.Resilience()
	if got.MaxFailures != 4 || got.ResetTimeout != time.Minute || got.HalfOpenMax != 2 {
		t.Errorf("Resilience() = %+v", got)
	}
}

func TestRegistry_UnknownSource(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	_, err := reg.CreateSource("rhymezone", config.SourceConfig{}, config.SourceDeps{})
	if !errors.Is(err, config.ErrSourceNotRegistered) {
		t.Fatalf("err = %v, want ErrSourceNotRegistered", err)
	}
}

func TestRegistry_RegisteredSource(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	var gotCfg config.SourceConfig
	reg.RegisterSource("mock", func(cfg config.SourceConfig, deps config.SourceDeps) (rhymesource.Provider, error) {
		gotCfg = cfg
		if deps.Logger == nil {
			t.Error("factory received nil logger")
		}
		return &mock.Provider{NameValue: "mock"}, nil
	})

	p, err := reg.CreateSource("mock", config.SourceConfig{MaxResults: 12}, config.SourceDeps{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name() != "mock" {
		t.Errorf("Name() = %q", p.Name())
	}
	if gotCfg.MaxResults != 12 {
		t.Errorf("factory saw MaxResults = %d, want 12", gotCfg.MaxResults)
	}
	if _, err := p.Lookup(context.Background(), "cat", rhymesource.RelationPerfect); err != nil {
		t.Errorf("Lookup: %v", err)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	t.Parallel()

	errBoom := errors.New("boom")
	reg := config.NewRegistry()
	reg.RegisterSource("broken", func(config.SourceConfig, config.SourceDeps) (rhymesource.Provider, error) {
		return nil, errBoom
	})

	_, err := reg.CreateSource("broken", config.SourceConfig{}, config.SourceDeps{})
	if !errors.Is(err, errBoom) {
		t.Fatalf("err = %v, want wrapped factory error", err)
	}
}

func TestRegistry_Sources(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	for _, name := range []string{"offline", "datamuse"} {
		reg.RegisterSource(name, func(config.SourceConfig, config.SourceDeps) (rhymesource.Provider, error) {
			return nil, nil
		})
	}
	if got := reg.Sources(); !slices.Equal(got, []string{"datamuse", "offline"}) {
		t.Errorf("Sources() = %v", got)
	}
}
