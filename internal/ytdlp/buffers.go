package ytdlp

import "sync"

// TailBuffer keeps the last N bytes written. It is safe for concurrent use
// since stderr is drained on its own goroutine while callers read the tail.
type TailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
	total int64
}

func NewTailBuffer(limit int) *TailBuffer { return &TailBuffer{limit: limit} }

func (b *TailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.total += int64(len(p))
	if b.limit <= 0 {
		return len(p), nil
	}
	if len(p) >= b.limit {
		b.buf = append(b.buf[:0], p[len(p)-b.limit:]...)
		return len(p), nil
	}
	if len(b.buf)+len(p) <= b.limit {
		b.buf = append(b.buf, p...)
		return len(p), nil
	}
	needDrop := len(b.buf) + len(p) - b.limit
	b.buf = append(b.buf[needDrop:], p...)
	return len(p), nil
}

func (b *TailBuffer) String() string {
	if b == nil {
		return ""
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

// Truncated reports whether earlier bytes were dropped.
func (b *TailBuffer) Truncated() bool {
	if b == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total > int64(len(b.buf))
}
