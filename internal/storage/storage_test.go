package storage

import (
	"context"
	"log/slog"
	"testing"

	"github.com/obsrv/monitor/internal/config"
)

func TestNew_DisabledWhenStorageNotConfigured(t *testing.T) {
	cfg := &config.Config{StorageEnabled: false}
	a, err := New(context.Background(), cfg, slog.Default())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if a.Enabled() {
		t.Error("expected Enabled() = false")
	}
}

func TestArchiveHTML_NoopWhenDisabled(t *testing.T) {
	cfg := &config.Config{StorageEnabled: false}
	a, err := New(context.Background(), cfg, slog.Default())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	key, err := a.ArchiveHTML(context.Background(), "crawl-1", "product-1", []byte("<html></html>"))
	if err != nil {
		t.Fatalf("ArchiveHTML() error = %v", err)
	}
	if key != "" {
		t.Errorf("ArchiveHTML() key = %q, want empty for disabled archiver", key)
	}
}
