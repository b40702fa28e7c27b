package ytdlp

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const versionTimeout = 10 * time.Second

// BinaryName is the executable name for the running OS.
func BinaryName() string {
	if runtime.GOOS == "windows" {
		return "yt-dlp.exe"
	}
	return "yt-dlp"
}

// Locator resolves the yt-dlp executable and caches its --version output.
type Locator struct {
	path string

	mu      sync.Mutex
	version string
}

// NewLocator returns a locator for explicitPath, or <binDir>/<BinaryName()>
// when explicitPath is empty.
func NewLocator(binDir, explicitPath string) *Locator {
	p := strings.TrimSpace(explicitPath)
	if p == "" {
		p = filepath.Join(binDir, BinaryName())
	}
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	return &Locator{path: p}
}

// Configured returns the path regardless of whether the file exists.
func (l *Locator) Configured() string { return l.path }

// Path returns the executable path, or ErrBinaryNotFound when it is missing
// or is a directory. It stats on every call so a binary dropped in (or
// removed) at runtime is picked up without a restart.
func (l *Locator) Path() (string, error) {
	fi, err := os.Stat(l.path)
	if err != nil {
		return "", fmt.Errorf("%w at %s: %v", ErrBinaryNotFound, l.path, err)
	}
	if fi.IsDir() {
		return "", fmt.Errorf("%w at %s: is a directory", ErrBinaryNotFound, l.path)
	}
	return l.path, nil
}

// Version returns the first line of `yt-dlp --version`, cached until the
// binary changes on disk.
func (l *Locator) Version(ctx context.Context) (string, error) {
	l.mu.Lock()
	cached := l.version
	l.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	path, err := l.Path()
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	// #nosec G204 -- path comes from trusted config.
	cmd := exec.CommandContext(ctx, path, VersionArgs()...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", newExitError(ctx, VersionArgs(), cmd, stderr.String(), err)
	}
	v := strings.TrimSpace(stdout.String())
	if i := strings.IndexByte(v, '\n'); i >= 0 {
		v = strings.TrimSpace(v[:i])
	}

	l.mu.Lock()
	l.version = v
	l.mu.Unlock()
	return v, nil
}

func (l *Locator) invalidate() {
	l.mu.Lock()
	l.version = ""
	l.mu.Unlock()
}

// Watch follows the binary's directory and drops the cached version whenever
// the binary is created, replaced or removed. It returns once the watch is
// established; the watcher stops when ctx is done.
func (l *Locator) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	dir := filepath.Dir(l.path)
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	name := filepath.Base(l.path)

	go func() {
		defer func() { _ = w.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != name {
					continue
				}
				if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) &&
					!ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
					continue
				}
				l.invalidate()
				if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
					log.Printf("yt-dlp binary removed: %s", l.path)
				} else {
					log.Printf("yt-dlp binary changed: %s (%s)", l.path, ev.Op)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Printf("yt-dlp watcher: %v", err)
			}
		}
	}()
	return nil
}
