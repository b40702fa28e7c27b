// Package relay streams the binary's stdout to a sink while it runs.
package relay

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/r9s-ai/vidrelay/internal/platform"
	"github.com/r9s-ai/vidrelay/internal/ytdlp"
)

const (
	chunkSize            = 32 << 10
	defaultFlushInterval = 250 * time.Millisecond
	// stderrDrain bounds the wait for trailing stderr once stdout is closed.
	stderrDrain = 2 * time.Second
)

type Request struct {
	URL      string
	Height   int
	Platform platform.Tag
}

// Result describes a finished (or aborted) relay.
type Result struct {
	Filename   string
	Bytes      int64
	Committed  bool
	Invocation *ytdlp.Invocation
}

// Sink receives the stream. Begin is called at most once, before the first
// body byte, with the attachment name; the returned writer gets the body.
type Sink interface {
	Begin(filename string) io.Writer
}

type SinkFunc func(filename string) io.Writer

func (f SinkFunc) Begin(filename string) io.Writer { return f(filename) }

type Relay struct {
	runner        *ytdlp.Runner
	sem           *semaphore.Weighted
	FlushInterval time.Duration
}

// New returns a relay allowing at most maxConcurrent streams at once.
func New(runner *ytdlp.Runner, maxConcurrent int) *Relay {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Relay{
		runner:        runner,
		sem:           semaphore.NewWeighted(int64(maxConcurrent)),
		FlushInterval: defaultFlushInterval,
	}
}

// Stream runs the binary for req and copies its stdout into sink.
//
// Errors before Begin leave Result.Committed false and the caller free to
// answer with an error status: ytdlp.ErrBinaryNotFound, ErrStart, ErrNoOutput
// or the context error while waiting for a slot. Once committed, a returned
// error means the body is incomplete.
func (r *Relay) Stream(ctx context.Context, req Request, sink Sink) (*Result, error) {
	res := &Result{}
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return res, err
	}
	defer r.sem.Release(1)

	proc, err := r.runner.Start(ctx, ytdlp.StreamArgs(req.Platform, req.URL, req.Height))
	if err != nil {
		if errors.Is(err, ytdlp.ErrBinaryNotFound) {
			return res, err
		}
		return res, fmt.Errorf("%w: %w", ErrStart, err)
	}
	res.Invocation = proc.Invocation

	dest := &destination{}
	stderrDone := make(chan struct{})
	go func() {
		defer close(stderrDone)
		scanStderr(proc.Stderr, dest)
	}()

	buf := make([]byte, chunkSize)
	n, readErr := readFirst(proc.Stdout, buf)
	reaped := false
	if n == 0 {
		waitErr := finish(proc, stderrDone)
		reaped = true
		if waitErr != nil {
			return res, fmt.Errorf("%w: %w", ErrNoOutput, waitErr)
		}
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return res, fmt.Errorf("%w: %w", ErrNoOutput, readErr)
		}
	}

	res.Filename = dest.get()
	if res.Filename == "" {
		res.Filename = DefaultFilename(req.Height)
	}
	w := sink.Begin(res.Filename)
	res.Committed = true

	cw := &countingWriter{w: w, every: r.FlushInterval, last: time.Now()}
	if f, ok := w.(http.Flusher); ok {
		cw.flush = f.Flush
	}

	var copyErr error
	if n > 0 {
		_, copyErr = cw.Write(buf[:n])
	}
	if copyErr == nil {
		switch {
		case readErr == nil:
			_, copyErr = io.CopyBuffer(cw, proc.Stdout, buf)
		case !errors.Is(readErr, io.EOF):
			copyErr = readErr
		}
	}
	cw.Flush()
	res.Bytes = cw.n

	if reaped {
		return res, copyErr
	}
	if copyErr != nil {
		proc.Kill()
		_ = finish(proc, stderrDone)
		return res, copyErr
	}
	if err := finish(proc, stderrDone); err != nil {
		return res, err
	}
	return res, nil
}

// finish waits briefly for stderr to drain, then reaps the process.
func finish(proc *ytdlp.Process, stderrDone <-chan struct{}) error {
	t := time.NewTimer(stderrDrain)
	select {
	case <-stderrDone:
	case <-t.C:
	}
	t.Stop()
	err := proc.Wait()
	<-stderrDone
	return err
}

func readFirst(r io.Reader, buf []byte) (int, error) {
	for {
		n, err := r.Read(buf)
		if n > 0 || err != nil {
			return n, err
		}
	}
}

type destination struct {
	mu   sync.Mutex
	name string
}

func (d *destination) set(name string) {
	d.mu.Lock()
	d.name = name
	d.mu.Unlock()
}

func (d *destination) get() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.name
}

// scanStderr records Destination lines and always drains src so the child
// never blocks on a full stderr pipe.
func scanStderr(src io.Reader, dest *destination) {
	sc := bufio.NewScanner(src)
	sc.Buffer(make([]byte, 0, 4096), 64<<10)
	sc.Split(splitLines)
	for sc.Scan() {
		if name, ok := parseDestination(sc.Text()); ok {
			dest.set(name)
		}
	}
	_, _ = io.Copy(io.Discard, src)
}

// splitLines splits on \n and on the \r used by progress output.
func splitLines(data []byte, atEOF bool) (int, []byte, error) {
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}

type countingWriter struct {
	n     int64
	w     io.Writer
	flush func()
	every time.Duration
	last  time.Time
}

func (w *countingWriter) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	w.n += int64(n)
	if err == nil && w.flush != nil && time.Since(w.last) >= w.every {
		w.flush()
		w.last = time.Now()
	}
	return n, err
}

func (w *countingWriter) Flush() {
	if w.flush != nil {
		w.flush()
	}
}
