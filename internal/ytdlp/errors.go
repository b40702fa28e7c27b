package ytdlp

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrBinaryNotFound means the executable is missing at the configured path.
	ErrBinaryNotFound = errors.New("yt-dlp binary not found")
	// ErrInvocation wraps every failure of a started (or attempted) invocation.
	ErrInvocation = errors.New("yt-dlp invocation failed")
)

// ExitError describes a failed invocation. It matches ErrInvocation via errors.Is.
type ExitError struct {
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ExitError) Error() string {
	var b strings.Builder
	b.WriteString("yt-dlp")
	if e.ExitCode >= 0 {
		fmt.Fprintf(&b, " exited with code %d", e.ExitCode)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if s := lastLine(e.Stderr); s != "" {
		b.WriteString(" (stderr: ")
		b.WriteString(s)
		b.WriteString(")")
	}
	return b.String()
}

func (e *ExitError) Unwrap() error { return e.Err }

func (e *ExitError) Is(target error) bool { return target == ErrInvocation }

// TimedOut reports whether the invocation was killed by its deadline.
func (e *ExitError) TimedOut() bool { return errors.Is(e.Err, context.DeadlineExceeded) }

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(s)
}
