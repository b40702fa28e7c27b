// Package diagdump writes one diagnostics file per request: the incoming
// request, every yt-dlp invocation (argv, exit status, stderr tail) and the
// response status. It is meant for debugging extraction failures and is off
// by default.
package diagdump

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/r9s-ai/vidrelay/internal/requestid"
	"github.com/r9s-ai/vidrelay/internal/ytdlp"
)

const ctxKeyRecorder = "vrl.diag_dump_recorder"

type Config struct {
	Enabled  bool
	Dir      string
	FilePath string
	MaxBytes int
}

type Recorder struct {
	mu       sync.Mutex
	f        *os.File
	path     string
	maxBytes int
	closed   bool
}

// Start opens the dump file for the request and stores the recorder on c.
// The request id must already be set on c (see server middleware).
func Start(c *gin.Context, cfg Config) (*Recorder, error) {
	if c == nil || c.Request == nil {
		return nil, errors.New("context is nil")
	}
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, errors.New("diag_dump.dir is empty")
	}
	if strings.TrimSpace(cfg.FilePath) == "" {
		return nil, errors.New("diag_dump.file_path is empty")
	}
	rid := requestid.Sanitize(c.GetString(requestid.HeaderKey))
	if rid == "" {
		rid = requestid.Gen()
	}

	tmpl, err := template.New("path").Option("missingkey=error").Parse(cfg.FilePath)
	if err != nil {
		return nil, fmt.Errorf("parse diag_dump.file_path: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, map[string]string{
		"request_id": rid,
		"date":       time.Now().Format("20060102"),
	}); err != nil {
		return nil, fmt.Errorf("render diag_dump.file_path: %w", err)
	}

	dir := filepath.Clean(strings.TrimSpace(cfg.Dir))
	path := filepath.Join(dir, buf.String())
	if rel, err := filepath.Rel(dir, path); err != nil || strings.HasPrefix(rel, "..") {
		return nil, fmt.Errorf("diag dump path %q escapes %q", path, dir)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, err
	}
	// #nosec G304 -- path is derived from configured dump dir and a sanitized request id.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, err
	}

	r := &Recorder{f: f, path: path, maxBytes: cfg.MaxBytes}
	c.Set(ctxKeyRecorder, r)

	r.writeLine("=== META ===")
	r.writeLine("time=" + time.Now().Format(time.RFC3339))
	r.writeLine("request_id=" + rid)
	r.writeLine(fmt.Sprintf("method=%s path=%s", c.Request.Method, c.Request.URL.Path))
	r.writeLine("client_ip=" + c.ClientIP())
	r.writeLine("headers:")
	for k, vals := range c.Request.Header {
		for _, v := range vals {
			r.writeLine(fmt.Sprintf("  %s: %s", k, mask(k, v)))
		}
	}
	r.writeLine("")
	return r, nil
}

func FromContext(c *gin.Context) *Recorder {
	if c == nil {
		return nil
	}
	v, ok := c.Get(ctxKeyRecorder)
	if !ok {
		return nil
	}
	rec, _ := v.(*Recorder)
	return rec
}

func (r *Recorder) Path() string { return r.path }

func (r *Recorder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	_ = r.f.Close()
}

// AppendRequest records the decoded request body.
func AppendRequest(c *gin.Context, body []byte) {
	if r := FromContext(c); r != nil {
		r.writeBlock("=== REQUEST ===", body)
	}
}

// AppendInvocation records a yt-dlp run and its outcome.
func AppendInvocation(c *gin.Context, inv *ytdlp.Invocation, err error) {
	r := FromContext(c)
	if r == nil || inv == nil {
		return
	}
	r.writeLine("=== YT-DLP ===")
	r.writeLine("path=" + inv.Path)
	r.writeLine("args=" + quoteArgs(inv.Args))
	r.writeLine(fmt.Sprintf("exit_code=%d elapsed=%s", inv.ExitCode, inv.Elapsed.Round(time.Millisecond)))
	if err != nil {
		r.writeLine("error=" + err.Error())
	}
	stderr := inv.Stderr.String()
	if inv.Stderr.Truncated() {
		stderr = "[head truncated]\n" + stderr
	}
	r.writeBlock("stderr:", []byte(stderr))
}

// AppendResponse records the status sent to the client and a short summary.
func AppendResponse(c *gin.Context, status int, summary string) {
	if r := FromContext(c); r != nil {
		r.writeLine("=== RESPONSE ===")
		r.writeLine(fmt.Sprintf("status=%d", status))
		if s := strings.TrimSpace(summary); s != "" {
			r.writeLine(s)
		}
		r.writeLine("")
	}
}

func (r *Recorder) writeLine(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	_, _ = r.f.WriteString(s)
	_, _ = r.f.WriteString("\n")
}

func (r *Recorder) writeBlock(title string, content []byte) {
	limited, truncated := limitBytes(content, r.maxBytes)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	_, _ = r.f.WriteString(title)
	_, _ = r.f.WriteString("\n")
	_, _ = r.f.Write(limited)
	if len(limited) == 0 || limited[len(limited)-1] != '\n' {
		_, _ = r.f.WriteString("\n")
	}
	if truncated {
		_, _ = r.f.WriteString("[truncated]\n")
	}
	_, _ = r.f.WriteString("\n")
}

// limitBytes keeps the first limit bytes; limit <= 0 means unlimited.
func limitBytes(b []byte, limit int) ([]byte, bool) {
	if limit <= 0 || len(b) <= limit {
		return b, false
	}
	return b[:limit], true
}

func mask(key, val string) string {
	lk := strings.ToLower(key)
	if strings.Contains(lk, "authorization") || lk == "cookie" || strings.Contains(lk, "token") {
		return "[REDACTED]"
	}
	return val
}

func quoteArgs(args []string) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		if a == "" || strings.ContainsAny(a, " \t\"'[]&?") {
			parts = append(parts, fmt.Sprintf("%q", a))
			continue
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}
