package app

import (
	"context"
	"testing"

	"siteforms/internal/config"
)

func TestInitThenOpen(t *testing.T) {
	dir := t.TempDir()
	path, err := Init(dir, "acme", false)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if path != config.Path(dir) {
		t.Fatalf("unexpected path %s", path)
	}
	if _, err := Init(dir, "acme", false); err == nil {
		t.Fatalf("expected second init to refuse overwrite")
	}
	if _, err := Init(dir, "acme-2", true); err != nil {
		t.Fatalf("forced init: %v", err)
	}

	ws, err := Open(context.Background(), dir, "", nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer ws.Close()
	if ws.Config.Site.ID != "acme-2" {
		t.Fatalf("expected forced config, got site %s", ws.Config.Site.ID)
	}
	if _, err := ws.Engine.Submit(context.Background(), "contact", map[string]string{"name": "x"}); err != nil {
		t.Fatalf("submit on opened workspace: %v", err)
	}
}

func TestOpenSiteOverride(t *testing.T) {
	dir := t.TempDir()
	if _, err := Init(dir, "acme", false); err != nil {
		t.Fatalf("init: %v", err)
	}
	ws, err := Open(context.Background(), dir, "staging", nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer ws.Close()
	if ws.Engine.Config.Site.ID != "staging" {
		t.Fatalf("expected override, got %s", ws.Engine.Config.Site.ID)
	}
}

func TestOpenWithoutConfig(t *testing.T) {
	if _, err := Open(context.Background(), t.TempDir(), "", nil); err == nil {
		t.Fatalf("expected missing config error")
	}
}
