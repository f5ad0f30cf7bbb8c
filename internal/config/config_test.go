package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dgnsrekt/chartdesk/internal/overlay"
)

func TestLoadServerDefaults(t *testing.T) {
	t.Setenv("CHARTDESK_STORAGE", "")
	t.Setenv("CHARTDESK_EVAL_TIMEOUT_MS", "10")
	cfg, err := LoadServer()
	if err != nil {
		t.Fatalf("LoadServer() = %v; want nil", err)
	}
	if cfg.StorageBackend != "file" || cfg.EvalTimeoutMS != 1000 || cfg.MoveInterval() != 16*time.Millisecond {
		t.Fatalf("LoadServer() = %+v", cfg)
	}
	if cfg.NotifyURL != "" || cfg.NotifyInterval != time.Minute || !cfg.BrowserHeadless {
		t.Fatalf("LoadServer() notify/browser defaults = %+v", cfg)
	}
	if cfg.CDPURL() != "http://127.0.0.1:9220" {
		t.Fatalf("CDPURL() = %q", cfg.CDPURL())
	}
}

func TestLoadServerOverrides(t *testing.T) {
	t.Setenv("CHARTDESK_STORAGE", "BADGER")
	t.Setenv("CHARTDESK_PORT_CANDIDATES", " 127.0.0.1:9001 ,, 127.0.0.1:9002")
	t.Setenv("CHARTDESK_PORT_AUTO_FALLBACK", "false")
	cfg, err := LoadServer()
	if err != nil {
		t.Fatalf("LoadServer() = %v; want nil", err)
	}
	if cfg.StorageBackend != "badger" || cfg.PortAutoFallback {
		t.Fatalf("LoadServer() = %+v", cfg)
	}
	if len(cfg.PortCandidates) != 2 || cfg.PortCandidates[1] != "127.0.0.1:9002" {
		t.Fatalf("PortCandidates = %v", cfg.PortCandidates)
	}
}

func TestLoadServerRejects(t *testing.T) {
	t.Setenv("CHARTDESK_STORAGE", "s3")
	if _, err := LoadServer(); err == nil {
		t.Fatalf("LoadServer(s3) = nil; want error")
	}
	t.Setenv("CHARTDESK_STORAGE", "postgres")
	t.Setenv("CHARTDESK_DATABASE_URL", "")
	if _, err := LoadServer(); err == nil {
		t.Fatalf("LoadServer(postgres without url) = nil; want error")
	}
	t.Setenv("CHARTDESK_STORAGE", "memory")
	t.Setenv("CHARTDESK_BROWSER_LAUNCH", "true")
	t.Setenv("CHARTDESK_CDP_ENABLED", "false")
	if _, err := LoadServer(); err == nil {
		t.Fatalf("LoadServer(browser launch without cdp) = nil; want error")
	}
}

func TestLoadStyle(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "style.yaml")
	if err := os.WriteFile(path, []byte("style:\n  trend_color: \"#000000\"\n  point_radius: 9\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := LoadStyle(path)
	if err != nil {
		t.Fatalf("LoadStyle() = %v; want nil", err)
	}
	def := overlay.DefaultStyle()
	if s.TrendColor != "#000000" || s.PointRadius != 9 || s.SellColor != def.SellColor {
		t.Fatalf("LoadStyle() = %+v", s)
	}

	missing, err := LoadStyle(filepath.Join(dir, "none.yaml"))
	if err != nil || missing != def {
		t.Fatalf("LoadStyle(missing) = %+v, %v; want defaults", missing, err)
	}

	if err := os.WriteFile(path, []byte("style: [1, 2"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadStyle(path); err == nil {
		t.Fatalf("LoadStyle(bad yaml) = nil; want error")
	}
}
