package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if len(cfg.Retailers) != 4 {
		t.Fatalf("expected 4 retailer sections, got %d", len(cfg.Retailers))
	}

	pnp := cfg.Retailers["pnp"]
	if pnp.PageSize != 72 {
		t.Errorf("pnp page size = %d, want 72", pnp.PageSize)
	}
	if pnp.MinIntervalSec != 10 {
		t.Errorf("pnp min interval = %ds, want 10s", pnp.MinIntervalSec)
	}
	if pnp.WindowStart != "04:00" || pnp.WindowEnd != "08:45" {
		t.Errorf("pnp window = %s-%s", pnp.WindowStart, pnp.WindowEnd)
	}

	chk := cfg.Retailers["checkers"]
	if chk.PageSize != 20 || chk.MinIntervalSec != 5 {
		t.Errorf("checkers defaults = %+v", chk)
	}
	if chk.WindowStart != "" {
		t.Errorf("checkers should have no window, got %s", chk.WindowStart)
	}
	if chk.Workers != 4 || chk.MaxAttempts != 3 {
		t.Errorf("checkers pool defaults = %+v", chk)
	}

	if cfg.Catalog.BatchSize != 500 {
		t.Errorf("batch size = %d, want 500", cfg.Catalog.BatchSize)
	}
}

func TestLoadYAMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scraper.yaml")
	doc := `
storage:
  backend: gcs
  gcs_bucket: product_images
ledger_dir: /var/lib/scraper
retailers:
  woolies:
    base_url: https://www.woolworths.co.za/server/searchCategory?pageName=food
    start_page: 0
    end_page: 30
    workers: 8
`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Backend != "gcs" || cfg.Storage.GCSBucket != "product_images" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if cfg.LedgerDir != "/var/lib/scraper" {
		t.Errorf("ledger dir = %s", cfg.LedgerDir)
	}

	ww := cfg.Retailers["woolies"]
	if ww.Workers != 8 || ww.EndPage != 30 {
		t.Errorf("woolies overlay = %+v", ww)
	}
	// Defaults still fill what the file leaves out.
	if ww.PageSize != 24 || ww.MinIntervalSec != 5 {
		t.Errorf("woolies defaults = %+v", ww)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"bad backend", "storage:\n  backend: ftp\n"},
		{"bad scheme", "retailers:\n  checkers:\n    base_url: ftp://example.com/c\n"},
		{"bad range", "retailers:\n  checkers:\n    start_page: 10\n    end_page: 2\n"},
		{"half window", "retailers:\n  checkers:\n    window_start: \"04:00\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "scraper.yaml")
			if err := os.WriteFile(path, []byte(tt.doc), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Fatalf("config should be rejected:\n%s", tt.doc)
			}
		})
	}
}
