package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "vidrelay.yaml")
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfigFile(t, "server: {}\n"))
	if err != nil {
		t.Fatalf("Load err=%v", err)
	}
	if cfg.Server.Listen != ":3000" {
		t.Fatalf("default listen=%q", cfg.Server.Listen)
	}
	if cfg.WriteTimeout() != 0 {
		t.Fatalf("write timeout should default to disabled, got %v", cfg.WriteTimeout())
	}
	if cfg.YtDlp.BinDir != "./bin" || cfg.YtDlp.MaxConcurrentStreams != 8 {
		t.Fatalf("unexpected ytdlp defaults: %+v", cfg.YtDlp)
	}
	if cfg.MetadataTimeout() != time.Minute || cfg.StreamTimeout() != 30*time.Minute {
		t.Fatalf("timeouts: metadata=%v stream=%v", cfg.MetadataTimeout(), cfg.StreamTimeout())
	}
	if cfg.RateLimit.ClientKey != ClientKeyForwardedFor || cfg.RateLimit.ForwardedHeader != "X-Forwarded-For" {
		t.Fatalf("unexpected rate_limit defaults: %+v", cfg.RateLimit)
	}
	if !cfg.AccessLogEnabled() || !cfg.WatchBinDir() {
		t.Fatalf("access_log and ytdlp.watch should default to true")
	}
	if cfg.DiagDump.Enabled {
		t.Fatalf("diag_dump should default to disabled")
	}
}

func TestLoad_ExplicitFalseKept(t *testing.T) {
	cfg, err := Load(writeConfigFile(t, `
ytdlp:
  watch: false
logging:
  access_log: false
`))
	if err != nil {
		t.Fatalf("Load err=%v", err)
	}
	if cfg.AccessLogEnabled() || cfg.WatchBinDir() {
		t.Fatalf("explicit false must not be overwritten by defaults")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfigFile(t, `
server:
  listen: ":1"
ytdlp:
  bin_dir: "/opt/bin"
`)
	t.Setenv("VIDRELAY_LISTEN", ":9999")
	t.Setenv("VIDRELAY_YTDLP_PATH", "/usr/local/bin/yt-dlp")
	t.Setenv("VIDRELAY_YTDLP_STREAM_TIMEOUT_MS", "1234")
	t.Setenv("VIDRELAY_YTDLP_MAX_CONCURRENT_STREAMS", "-3")
	t.Setenv("VIDRELAY_RATE_LIMIT_CLIENT_KEY", "remote_addr")
	t.Setenv("VIDRELAY_DIAG_DUMP_ENABLED", "on")
	t.Setenv("VIDRELAY_ACCESS_LOG", "off")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load err=%v", err)
	}
	if cfg.Server.Listen != ":9999" {
		t.Fatalf("listen=%q", cfg.Server.Listen)
	}
	if cfg.YtDlp.Path != "/usr/local/bin/yt-dlp" || cfg.YtDlp.BinDir != "/opt/bin" {
		t.Fatalf("ytdlp=%+v", cfg.YtDlp)
	}
	if cfg.StreamTimeout() != 1234*time.Millisecond {
		t.Fatalf("stream timeout=%v", cfg.StreamTimeout())
	}
	if cfg.YtDlp.MaxConcurrentStreams != 8 {
		t.Fatalf("negative env value must be ignored, got %d", cfg.YtDlp.MaxConcurrentStreams)
	}
	if cfg.RateLimit.ClientKey != ClientKeyRemoteAddr {
		t.Fatalf("client_key=%q", cfg.RateLimit.ClientKey)
	}
	if !cfg.DiagDump.Enabled || cfg.AccessLogEnabled() {
		t.Fatalf("bool overrides not applied: dump=%v access=%v", cfg.DiagDump.Enabled, cfg.AccessLogEnabled())
	}
}

func TestLoad_InvalidClientKey(t *testing.T) {
	_, err := Load(writeConfigFile(t, `
rate_limit:
  client_key: cookie
`))
	if err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestLoadOrDefault_Missing(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.yaml")
	cfg, err := LoadOrDefault(missing, true)
	if err != nil {
		t.Fatalf("LoadOrDefault err=%v", err)
	}
	if cfg.Server.Listen != ":3000" {
		t.Fatalf("listen=%q", cfg.Server.Listen)
	}
	if _, err := LoadOrDefault(missing, false); err == nil {
		t.Fatalf("expected error when missing file is not allowed")
	}
}
