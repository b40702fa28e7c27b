package ytdlp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"time"
)

const (
	// stderrTail bounds the diagnostic text kept per invocation.
	stderrTail = 16 << 10
	// maxMetadataBytes bounds --dump-single-json output held in memory.
	maxMetadataBytes = 64 << 20
	// waitDelay bounds how long Wait blocks on pipes after the process is killed.
	waitDelay = 5 * time.Second
)

// Runner invokes the binary resolved by Locator.
type Runner struct {
	Locator         *Locator
	MetadataTimeout time.Duration
	StreamTimeout   time.Duration
}

// Invocation records one run for logs and diagnostics dumps.
type Invocation struct {
	Path     string
	Args     []string
	Started  time.Time
	Elapsed  time.Duration
	ExitCode int
	Stderr   *TailBuffer
}

// DumpJSON runs the metadata invocation and returns raw stdout. The returned
// Invocation is non-nil whenever the binary was located.
func (r *Runner) DumpJSON(ctx context.Context, rawURL string) ([]byte, *Invocation, error) {
	path, err := r.Locator.Path()
	if err != nil {
		return nil, nil, err
	}
	if r.MetadataTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.MetadataTimeout)
		defer cancel()
	}

	args := MetadataArgs(rawURL)
	inv := &Invocation{Path: path, Args: args, Started: time.Now(), ExitCode: -1, Stderr: NewTailBuffer(stderrTail)}

	stdout := &capped{limit: maxMetadataBytes}
	// #nosec G204 -- fixed binary path; rawURL is passed as a single argv entry.
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stdout = stdout
	cmd.Stderr = inv.Stderr
	cmd.WaitDelay = waitDelay

	runErr := cmd.Run()
	inv.Elapsed = time.Since(inv.Started)
	if cmd.ProcessState != nil {
		inv.ExitCode = cmd.ProcessState.ExitCode()
	}
	if runErr != nil {
		return nil, inv, newExitError(ctx, args, cmd, inv.Stderr.String(), runErr)
	}
	if stdout.overflow {
		return nil, inv, &ExitError{Args: args, ExitCode: inv.ExitCode, Err: fmt.Errorf("metadata output exceeds %d bytes", maxMetadataBytes)}
	}
	return stdout.buf.Bytes(), inv, nil
}

// Process is a started streaming invocation.
type Process struct {
	Invocation *Invocation
	Stdout     io.ReadCloser
	// Stderr yields the diagnostic text; everything read is also kept in Invocation.Stderr.
	Stderr io.Reader

	cmd    *exec.Cmd
	cancel context.CancelFunc
	ctx    context.Context
}

// Start launches the binary with args and pipes for stdout and stderr. The
// process is killed when ctx is done or StreamTimeout elapses. Callers must
// drain Stdout and Stderr and then call Wait.
func (r *Runner) Start(ctx context.Context, args []string) (*Process, error) {
	path, err := r.Locator.Path()
	if err != nil {
		return nil, err
	}
	var cancel context.CancelFunc
	if r.StreamTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, r.StreamTimeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}

	inv := &Invocation{Path: path, Args: args, Started: time.Now(), ExitCode: -1, Stderr: NewTailBuffer(stderrTail)}
	// #nosec G204 -- fixed binary path; user values are passed as argv entries.
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.WaitDelay = waitDelay

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, &ExitError{Args: args, ExitCode: -1, Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, &ExitError{Args: args, ExitCode: -1, Err: err}
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, &ExitError{Args: args, ExitCode: -1, Err: err}
	}
	return &Process{
		Invocation: inv,
		Stdout:     stdout,
		Stderr:     io.TeeReader(stderr, inv.Stderr),
		cmd:        cmd,
		cancel:     cancel,
		ctx:        ctx,
	}, nil
}

// Kill stops the process early; Wait must still be called.
func (p *Process) Kill() { p.cancel() }

// Wait reaps the process and releases its context.
func (p *Process) Wait() error {
	err := p.cmd.Wait()
	p.Invocation.Elapsed = time.Since(p.Invocation.Started)
	if p.cmd.ProcessState != nil {
		p.Invocation.ExitCode = p.cmd.ProcessState.ExitCode()
	}
	ctx := p.ctx
	p.cancel()
	if err != nil {
		return newExitError(ctx, p.Invocation.Args, p.cmd, p.Invocation.Stderr.String(), err)
	}
	return nil
}

func newExitError(ctx context.Context, args []string, cmd *exec.Cmd, stderr string, err error) *ExitError {
	code := -1
	if cmd != nil && cmd.ProcessState != nil {
		code = cmd.ProcessState.ExitCode()
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = fmt.Errorf("%w: %v", ctxErr, err)
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) && code < 0 {
		code = ee.ExitCode()
	}
	return &ExitError{Args: args, ExitCode: code, Stderr: stderr, Err: err}
}

type capped struct {
	buf      bytes.Buffer
	limit    int
	overflow bool
}

func (c *capped) Write(p []byte) (int, error) {
	if remain := c.limit - c.buf.Len(); len(p) > remain {
		c.overflow = true
		if remain > 0 {
			c.buf.Write(p[:remain])
		}
		return len(p), nil
	}
	return c.buf.Write(p)
}
