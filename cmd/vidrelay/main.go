package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/r9s-ai/vidrelay/internal/config"
	"github.com/r9s-ai/vidrelay/internal/server"
	"github.com/r9s-ai/vidrelay/internal/version"
	"github.com/r9s-ai/vidrelay/internal/ytdlp"
)

const defaultConfigPath = "vidrelay.yaml"

func main() {
	var cfgPath string
	var signalCmd string
	var testConfig bool
	var showVersion bool
	flag.StringVar(&cfgPath, "config", defaultConfigPath, "path to config yaml")
	flag.StringVar(&cfgPath, "c", defaultConfigPath, "path to config yaml (alias of --config)")
	flag.StringVar(&signalCmd, "s", "", "send signal to a running vidrelay (supported: stop)")
	flag.BoolVar(&testConfig, "t", false, "test config and yt-dlp binary, then exit")
	flag.BoolVar(&showVersion, "V", false, "show version information")
	flag.Parse()

	if showVersion {
		fmt.Println(version.Get())
		return
	}

	// the default config file is optional; an explicit one is not
	missingOK := true
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "c" || f.Name == "config" {
			missingOK = false
		}
	})

	if strings.TrimSpace(signalCmd) != "" {
		switch strings.ToLower(strings.TrimSpace(signalCmd)) {
		case "stop":
			if err := sendStopSignal(cfgPath, missingOK); err != nil {
				_, _ = fmt.Fprintln(os.Stderr, err.Error())
				os.Exit(1)
			}
			return
		default:
			_, _ = fmt.Fprintln(os.Stderr, "unsupported -s value: "+strings.TrimSpace(signalCmd)+" (supported: stop)")
			os.Exit(2)
		}
	}

	if testConfig {
		if flag.NArg() == 1 && strings.TrimSpace(flag.Arg(0)) != "" {
			cfgPath = strings.TrimSpace(flag.Arg(0))
			missingOK = false
		}
		if err := runConfigTest(cfgPath, missingOK); err != nil {
			_, _ = fmt.Fprintln(os.Stderr, "error: "+err.Error())
			os.Exit(1)
		}
		fmt.Println("configuration ok")
		return
	}

	if err := server.Run(cfgPath, missingOK); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func runConfigTest(cfgPath string, missingOK bool) error {
	cfg, err := config.LoadOrDefault(cfgPath, missingOK)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	fmt.Println("ok: config")

	loc := ytdlp.NewLocator(cfg.YtDlp.BinDir, cfg.YtDlp.Path)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	v, err := loc.Version(ctx)
	if err != nil {
		return fmt.Errorf("yt-dlp at %s: %w", loc.Configured(), err)
	}
	fmt.Printf("ok: yt-dlp %s (%s)\n", v, loc.Configured())
	return nil
}

func sendStopSignal(cfgPath string, missingOK bool) error {
	cfg, err := config.LoadOrDefault(cfgPath, missingOK)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	pidFile := strings.TrimSpace(cfg.Server.PidFile)
	if pidFile == "" {
		return fmt.Errorf("server.pid_file is not configured")
	}
	// #nosec G304 -- pid file path comes from trusted config/env.
	b, err := os.ReadFile(pidFile)
	if err != nil {
		return fmt.Errorf("read pid file %q: %w", pidFile, err)
	}
	pidStr := strings.TrimSpace(string(b))
	pid, err := strconv.Atoi(pidStr)
	if err != nil || pid <= 0 {
		return fmt.Errorf("invalid pid in %q: %q", pidFile, pidStr)
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process pid=%d: %w", pid, err)
	}
	if err := p.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("send SIGTERM pid=%d: %w", pid, err)
	}
	return nil
}
