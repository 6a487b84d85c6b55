package config

import (
	"os"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Watch.StabilityTimeout != 5*time.Second {
		t.Errorf("StabilityTimeout = %v", cfg.Watch.StabilityTimeout)
	}
	if cfg.Debounce.Window != 150*time.Millisecond {
		t.Errorf("Debounce.Window = %v", cfg.Debounce.Window)
	}
	if cfg.Debounce.MaxBuffer != 50 {
		t.Errorf("Debounce.MaxBuffer = %d", cfg.Debounce.MaxBuffer)
	}
	if cfg.Control.Listen == "" {
		t.Error("Control.Listen unset")
	}
}

func TestLoadFile(t *testing.T) {
	yaml := `
browser:
  remote: "ws://127.0.0.1:9222/devtools/browser/abc"
  resource_blocking: [images, fonts]
watch:
  attach: true
  aggressive: true
  stability_timeout: 3s
debounce:
  window: 200ms
widget:
  auto_reinject: true
  anchors:
    - selector: ".my_custom_slot"
      priority: 5
      placement: prepend
backend:
  url: "https://stats.example.com/api"
control:
  listen: "127.0.0.1:9999"
`
	f, err := os.CreateTemp(t.TempDir(), "config_*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString(yaml)
	f.Close()

	cfg, err := LoadFile(f.Name())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Browser.Remote == "" || len(cfg.Browser.ResourceBlocking) != 2 {
		t.Errorf("browser = %+v", cfg.Browser)
	}
	if !cfg.Watch.Attach || !cfg.Watch.Aggressive {
		t.Errorf("watch = %+v", cfg.Watch)
	}
	if cfg.Watch.StabilityTimeout != 3*time.Second {
		t.Errorf("StabilityTimeout = %v", cfg.Watch.StabilityTimeout)
	}
	if cfg.Debounce.Window != 200*time.Millisecond {
		t.Errorf("Debounce.Window = %v", cfg.Debounce.Window)
	}
	// Unset values still get defaults.
	if cfg.Debounce.MaxBuffer != 50 {
		t.Errorf("Debounce.MaxBuffer = %d", cfg.Debounce.MaxBuffer)
	}
	if len(cfg.Widget.Anchors) != 1 || cfg.Widget.Anchors[0].Placement != "prepend" {
		t.Errorf("anchors = %+v", cfg.Widget.Anchors)
	}
	if cfg.Backend.URL != "https://stats.example.com/api" {
		t.Errorf("backend url = %q", cfg.Backend.URL)
	}
	if cfg.Control.Listen != "127.0.0.1:9999" {
		t.Errorf("control listen = %q", cfg.Control.Listen)
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile("/nonexistent/storewatch.yaml"); err == nil {
		t.Fatal("want error for missing file")
	}
}
