package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	ClientKeyForwardedFor = "forwarded_for"
	ClientKeyRemoteAddr   = "remote_addr"
)

type Config struct {
	Server struct {
		Listen            string `yaml:"listen"`
		ReadTimeoutMs     int    `yaml:"read_timeout_ms"`
		WriteTimeoutMs    int    `yaml:"write_timeout_ms"`
		PidFile           string `yaml:"pid_file"`
		ShutdownTimeoutMs int    `yaml:"shutdown_timeout_ms"`
	} `yaml:"server"`

	YtDlp struct {
		// BinDir holds yt-dlp (yt-dlp.exe on windows). Ignored when Path is set.
		BinDir               string `yaml:"bin_dir"`
		Path                 string `yaml:"path"`
		MetadataTimeoutMs    int    `yaml:"metadata_timeout_ms"`
		StreamTimeoutMs      int    `yaml:"stream_timeout_ms"`
		MaxConcurrentStreams int    `yaml:"max_concurrent_streams"`
		Watch                *bool  `yaml:"watch"`
	} `yaml:"ytdlp"`

	RateLimit struct {
		ClientKey       string `yaml:"client_key"`
		ForwardedHeader string `yaml:"forwarded_header"`
		SweepIntervalMs int    `yaml:"sweep_interval_ms"`
	} `yaml:"rate_limit"`

	DiagDump struct {
		Enabled  bool   `yaml:"enabled"`
		Dir      string `yaml:"dir"`
		FilePath string `yaml:"file_path"`
		MaxBytes int    `yaml:"max_bytes"`
	} `yaml:"diag_dump"`

	Logging struct {
		Level         string `yaml:"level"`
		AccessLog     *bool  `yaml:"access_log"`
		AccessLogPath string `yaml:"access_log_path"`
	} `yaml:"logging"`
}

// Load reads path, applies defaults and VIDRELAY_* env overrides, then validates.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path) // #nosec G304 -- config path comes from trusted flag.
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse %q: %w", path, err)
	}
	return finish(&cfg)
}

// Default returns the configuration used when no config file exists.
func Default() (*Config, error) {
	return finish(&Config{})
}

// LoadOrDefault behaves like Load but falls back to Default when path does
// not exist and missingOK is set.
func LoadOrDefault(path string, missingOK bool) (*Config, error) {
	cfg, err := Load(path)
	if err != nil && missingOK && errors.Is(err, os.ErrNotExist) {
		return Default()
	}
	return cfg, err
}

func finish(cfg *Config) (*Config, error) {
	applyDefaults(cfg)
	applyEnvOverrides(cfg)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Server.Listen) == "" {
		cfg.Server.Listen = ":3000"
	}
	if cfg.Server.ReadTimeoutMs <= 0 {
		cfg.Server.ReadTimeoutMs = 60000
	}
	// write_timeout_ms stays 0 (disabled) unless set: a write deadline would cut long streams.
	if cfg.Server.ShutdownTimeoutMs <= 0 {
		cfg.Server.ShutdownTimeoutMs = 5000
	}
	if strings.TrimSpace(cfg.YtDlp.BinDir) == "" {
		cfg.YtDlp.BinDir = "./bin"
	}
	if cfg.YtDlp.MetadataTimeoutMs <= 0 {
		cfg.YtDlp.MetadataTimeoutMs = 60000
	}
	if cfg.YtDlp.StreamTimeoutMs <= 0 {
		cfg.YtDlp.StreamTimeoutMs = 30 * 60 * 1000
	}
	if cfg.YtDlp.MaxConcurrentStreams <= 0 {
		cfg.YtDlp.MaxConcurrentStreams = 8
	}
	if cfg.YtDlp.Watch == nil {
		cfg.YtDlp.Watch = boolPtr(true)
	}
	if strings.TrimSpace(cfg.RateLimit.ClientKey) == "" {
		cfg.RateLimit.ClientKey = ClientKeyForwardedFor
	}
	if strings.TrimSpace(cfg.RateLimit.ForwardedHeader) == "" {
		cfg.RateLimit.ForwardedHeader = "X-Forwarded-For"
	}
	if cfg.RateLimit.SweepIntervalMs <= 0 {
		cfg.RateLimit.SweepIntervalMs = 60000
	}
	if strings.TrimSpace(cfg.DiagDump.Dir) == "" {
		cfg.DiagDump.Dir = "./dumps"
	}
	if strings.TrimSpace(cfg.DiagDump.FilePath) == "" {
		cfg.DiagDump.FilePath = "{{.request_id}}.log"
	}
	if cfg.DiagDump.MaxBytes == 0 {
		cfg.DiagDump.MaxBytes = 64 * 1024
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.AccessLog == nil {
		cfg.Logging.AccessLog = boolPtr(true)
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("VIDRELAY_LISTEN")); v != "" {
		cfg.Server.Listen = v
	}
	if v := strings.TrimSpace(os.Getenv("VIDRELAY_PID_FILE")); v != "" {
		cfg.Server.PidFile = v
	}
	envPositiveInt("VIDRELAY_READ_TIMEOUT_MS", &cfg.Server.ReadTimeoutMs)
	envPositiveInt("VIDRELAY_WRITE_TIMEOUT_MS", &cfg.Server.WriteTimeoutMs)
	if v := strings.TrimSpace(os.Getenv("VIDRELAY_YTDLP_BIN_DIR")); v != "" {
		cfg.YtDlp.BinDir = v
	}
	if v := strings.TrimSpace(os.Getenv("VIDRELAY_YTDLP_PATH")); v != "" {
		cfg.YtDlp.Path = v
	}
	envPositiveInt("VIDRELAY_YTDLP_METADATA_TIMEOUT_MS", &cfg.YtDlp.MetadataTimeoutMs)
	envPositiveInt("VIDRELAY_YTDLP_STREAM_TIMEOUT_MS", &cfg.YtDlp.StreamTimeoutMs)
	envPositiveInt("VIDRELAY_YTDLP_MAX_CONCURRENT_STREAMS", &cfg.YtDlp.MaxConcurrentStreams)
	cfg.YtDlp.Watch = boolPtr(envBool("VIDRELAY_YTDLP_WATCH", *cfg.YtDlp.Watch))
	if v := strings.TrimSpace(os.Getenv("VIDRELAY_RATE_LIMIT_CLIENT_KEY")); v != "" {
		cfg.RateLimit.ClientKey = v
	}
	if v := strings.TrimSpace(os.Getenv("VIDRELAY_RATE_LIMIT_FORWARDED_HEADER")); v != "" {
		cfg.RateLimit.ForwardedHeader = v
	}
	cfg.DiagDump.Enabled = envBool("VIDRELAY_DIAG_DUMP_ENABLED", cfg.DiagDump.Enabled)
	if v := strings.TrimSpace(os.Getenv("VIDRELAY_DIAG_DUMP_DIR")); v != "" {
		cfg.DiagDump.Dir = v
	}
	if v := strings.TrimSpace(os.Getenv("VIDRELAY_DIAG_DUMP_MAX_BYTES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DiagDump.MaxBytes = n
		}
	}
	cfg.Logging.AccessLog = boolPtr(envBool("VIDRELAY_ACCESS_LOG", *cfg.Logging.AccessLog))
	if v := strings.TrimSpace(os.Getenv("VIDRELAY_ACCESS_LOG_PATH")); v != "" {
		cfg.Logging.AccessLogPath = v
	}
}

func validate(cfg *Config) error {
	cfg.RateLimit.ClientKey = strings.ToLower(strings.TrimSpace(cfg.RateLimit.ClientKey))
	switch cfg.RateLimit.ClientKey {
	case ClientKeyForwardedFor, ClientKeyRemoteAddr:
	default:
		return fmt.Errorf("rate_limit.client_key must be %q or %q, got %q",
			ClientKeyForwardedFor, ClientKeyRemoteAddr, cfg.RateLimit.ClientKey)
	}
	if cfg.Server.WriteTimeoutMs < 0 {
		return errors.New("server.write_timeout_ms must be non-negative")
	}
	if cfg.DiagDump.MaxBytes < 0 {
		return errors.New("diag_dump.max_bytes must be non-negative")
	}
	return nil
}

func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.Server.ReadTimeoutMs) * time.Millisecond
}

func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.Server.WriteTimeoutMs) * time.Millisecond
}

func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutMs) * time.Millisecond
}

func (c *Config) MetadataTimeout() time.Duration {
	return time.Duration(c.YtDlp.MetadataTimeoutMs) * time.Millisecond
}

func (c *Config) StreamTimeout() time.Duration {
	return time.Duration(c.YtDlp.StreamTimeoutMs) * time.Millisecond
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.RateLimit.SweepIntervalMs) * time.Millisecond
}

func (c *Config) WatchBinDir() bool { return c.YtDlp.Watch != nil && *c.YtDlp.Watch }

func (c *Config) AccessLogEnabled() bool { return c.Logging.AccessLog != nil && *c.Logging.AccessLog }

func envPositiveInt(name string, dst *int) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		*dst = n
	}
}

func envBool(name string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func boolPtr(b bool) *bool { return &b }
