package relay

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
)

var (
	// ErrStart means the child process could not be spawned.
	ErrStart = errors.New("failed to start download process")
	// ErrNoOutput means the child failed before writing any byte; nothing was sent.
	ErrNoOutput = errors.New("download produced no output")
)

// IsClientDisconnect reports errors caused by the downstream client going away.
func IsClientDisconnect(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	if errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var op *net.OpError
	if errors.As(err, &op) {
		if errors.Is(op.Err, syscall.EPIPE) || errors.Is(op.Err, syscall.ECONNRESET) {
			return true
		}
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "broken pipe") || strings.Contains(s, "connection reset by peer")
}
