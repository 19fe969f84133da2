package main

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"siteforms/internal/app"
	"siteforms/internal/config"
	"siteforms/internal/engine"
	"siteforms/internal/forms"
)

func TestParseValues(t *testing.T) {
	got, err := parseValues([]string{"name=Ayşe", "details=a=b", " email =x@y.com"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := map[string]string{"name": "Ayşe", "details": "a=b", "email": "x@y.com"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("values mismatch (-want +got):\n%s", diff)
	}
	for _, bad := range []string{"novalue", "=x"} {
		if _, err := parseValues([]string{bad}); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestLocalFormUsesSiteRules(t *testing.T) {
	cfg := config.Default("cli")
	f, m, err := localForm(cfg, "demo", nil)
	if err != nil {
		t.Fatalf("local form: %v", err)
	}
	_ = f.Set("name", "Ali")
	_ = f.Set("phone", "12345")
	field, _ := f.Field("phone")
	if res := m.ValidateField(field); res.Valid {
		t.Fatalf("expected site phone rule to reject 12345")
	}
	if _, _, err := localForm(cfg, "careers", nil); !errors.Is(err, forms.ErrUnknownForm) {
		t.Fatalf("expected unknown form, got %v", err)
	}
}

func TestLanguageNote(t *testing.T) {
	cfg := config.Default("cli")
	cfg.Site.Locale = "tr-TR"
	want := `messages: tr (locale "tr-TR"; available: en, tr)`
	if got := languageNote(cfg); got != want {
		t.Fatalf("languageNote = %q, want %q", got, want)
	}
	cfg.Site.Locale = "de"
	if got := languageNote(cfg); !strings.HasPrefix(got, "messages: en ") {
		t.Fatalf("unsupported locale should fall back to en, got %q", got)
	}
}

func TestServeTransportSimulate(t *testing.T) {
	cfg := config.Default("cli")
	cfg.Timing.SubmitDelay = 250 * time.Millisecond
	ws := &app.Workspace{Config: cfg, Engine: engine.Engine{Config: cfg}}

	sim, ok := serveTransport(ws, true, slog.Default()).(*forms.SimulatedTransport)
	if !ok {
		t.Fatalf("expected simulated transport")
	}
	if sim.Delay != 250*time.Millisecond {
		t.Fatalf("delay = %v, want timing.submit_delay", sim.Delay)
	}
	if _, ok := serveTransport(ws, false, slog.Default()).(engine.Engine); !ok {
		t.Fatalf("expected the workspace engine without --simulate")
	}
}

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	logger := newLogger("nonsense", "text")
	if logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatalf("debug should be disabled at the fallback level")
	}
}
