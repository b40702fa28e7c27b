package ytdlp

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/r9s-ai/vidrelay/internal/platform"
)

func fakeBinary(t *testing.T, script string) *Locator {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake yt-dlp uses /bin/sh")
	}
	dir := t.TempDir()
	p := filepath.Join(dir, BinaryName())
	require.NoError(t, os.WriteFile(p, []byte("#!/bin/sh\n"+script), 0o700))
	return NewLocator(dir, "")
}

func TestMetadataArgs(t *testing.T) {
	u := "https://youtu.be/x"
	require.Equal(t, []string{
		u, "--dump-single-json", "--no-check-certificate", "--prefer-free-formats",
		"--youtube-skip-dash-manifest", "--referer", u,
	}, MetadataArgs(u))
}

func TestStreamArgs(t *testing.T) {
	u := "https://www.youtube.com/watch?v=x"
	yt := StreamArgs(platform.YouTube, u, 720)
	require.Equal(t, []string{
		u, "-f", "bestvideo[height=720]+bestaudio/best[height=720]", "-o", "-",
		"--no-check-certificate", "--prefer-free-formats", "--youtube-skip-dash-manifest",
		"--referer", u,
	}, yt)

	for _, tag := range []platform.Tag{platform.Instagram, platform.TikTok, platform.Unknown} {
		got := StreamArgs(tag, "https://x", 480)
		require.Equal(t, []string{
			"https://x", "-f", "best", "-o", "-",
			"--no-check-certificate", "--prefer-free-formats", "--referer", "https://x",
		}, got, "tag=%s", tag)
	}
}

func TestLocator_Missing(t *testing.T) {
	l := NewLocator(t.TempDir(), "")
	_, err := l.Path()
	require.ErrorIs(t, err, ErrBinaryNotFound)

	l = NewLocator("", t.TempDir()) // explicit path pointing to a directory
	_, err = l.Path()
	require.ErrorIs(t, err, ErrBinaryNotFound)
}

func TestLocator_BinaryName(t *testing.T) {
	l := NewLocator("bin", "")
	require.Equal(t, BinaryName(), filepath.Base(l.Configured()))
	require.True(t, filepath.IsAbs(l.Configured()))
}

func TestLocator_VersionCached(t *testing.T) {
	l := fakeBinary(t, `echo "2025.09.26"; echo extra`)
	v, err := l.Version(context.Background())
	require.NoError(t, err)
	require.Equal(t, "2025.09.26", v)

	// replace the binary; cache still answers until invalidated
	require.NoError(t, os.WriteFile(l.Configured(), []byte("#!/bin/sh\necho 2026.01.01\n"), 0o700))
	v, err = l.Version(context.Background())
	require.NoError(t, err)
	require.Equal(t, "2025.09.26", v)

	l.invalidate()
	v, err = l.Version(context.Background())
	require.NoError(t, err)
	require.Equal(t, "2026.01.01", v)
}

func TestLocator_WatchInvalidates(t *testing.T) {
	l := fakeBinary(t, `echo 1.0`)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, l.Watch(ctx))

	_, err := l.Version(ctx)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(l.Configured(), []byte("#!/bin/sh\necho 2.0\n"), 0o700))

	require.Eventually(t, func() bool {
		v, err := l.Version(ctx)
		return err == nil && v == "2.0"
	}, 5*time.Second, 20*time.Millisecond)
}

func TestRunner_DumpJSON(t *testing.T) {
	l := fakeBinary(t, `
[ "$2" = "--dump-single-json" ] || { echo "bad args: $*" >&2; exit 2; }
echo '{"title":"hello","formats":[]}'
`)
	r := &Runner{Locator: l, MetadataTimeout: 5 * time.Second}
	out, inv, err := r.DumpJSON(context.Background(), "https://youtu.be/x")
	require.NoError(t, err)
	require.JSONEq(t, `{"title":"hello","formats":[]}`, string(out))
	require.Equal(t, 0, inv.ExitCode)
	require.Equal(t, MetadataArgs("https://youtu.be/x"), inv.Args)
}

func TestRunner_DumpJSONExitError(t *testing.T) {
	l := fakeBinary(t, `echo "WARNING: x" >&2; echo "ERROR: Unsupported URL" >&2; exit 1`)
	r := &Runner{Locator: l}
	_, inv, err := r.DumpJSON(context.Background(), "https://example.com")
	require.ErrorIs(t, err, ErrInvocation)

	var ee *ExitError
	require.True(t, errors.As(err, &ee))
	require.Equal(t, 1, ee.ExitCode)
	require.Contains(t, ee.Error(), "ERROR: Unsupported URL")
	require.NotContains(t, ee.Error(), "WARNING")
	require.Contains(t, inv.Stderr.String(), "WARNING: x")
}

func TestRunner_DumpJSONTimeout(t *testing.T) {
	l := fakeBinary(t, `exec sleep 10`)
	r := &Runner{Locator: l, MetadataTimeout: 100 * time.Millisecond}
	start := time.Now()
	_, _, err := r.DumpJSON(context.Background(), "https://example.com")
	require.ErrorIs(t, err, ErrInvocation)

	var ee *ExitError
	require.True(t, errors.As(err, &ee))
	require.True(t, ee.TimedOut(), "err=%v", err)
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestRunner_DumpJSONMissingBinary(t *testing.T) {
	r := &Runner{Locator: NewLocator(t.TempDir(), "")}
	_, inv, err := r.DumpJSON(context.Background(), "https://example.com")
	require.ErrorIs(t, err, ErrBinaryNotFound)
	require.Nil(t, inv)
}

func TestRunner_StartStream(t *testing.T) {
	l := fakeBinary(t, `echo "[download] Destination: clip.mp4" >&2; printf 'abcdef'`)
	r := &Runner{Locator: l, StreamTimeout: 5 * time.Second}
	p, err := r.Start(context.Background(), StreamArgs(platform.Unknown, "https://x", 360))
	require.NoError(t, err)

	stderr, err := io.ReadAll(p.Stderr)
	require.NoError(t, err)
	body, err := io.ReadAll(p.Stdout)
	require.NoError(t, err)
	require.NoError(t, p.Wait())

	require.Equal(t, "abcdef", string(body))
	require.Contains(t, string(stderr), "Destination: clip.mp4")
	require.Contains(t, p.Invocation.Stderr.String(), "Destination: clip.mp4")
	require.Equal(t, 0, p.Invocation.ExitCode)
}

func TestRunner_StartKill(t *testing.T) {
	l := fakeBinary(t, `exec sleep 10`)
	r := &Runner{Locator: l}
	p, err := r.Start(context.Background(), []string{"x"})
	require.NoError(t, err)
	p.Kill()
	_, _ = io.Copy(io.Discard, p.Stdout)
	err = p.Wait()
	require.ErrorIs(t, err, ErrInvocation)
	require.True(t, errors.Is(err, context.Canceled), "err=%v", err)
}

func TestTailBuffer(t *testing.T) {
	b := NewTailBuffer(5)
	_, _ = b.Write([]byte("abc"))
	require.False(t, b.Truncated())
	_, _ = b.Write([]byte("defg"))
	require.Equal(t, "cdefg", b.String())
	require.True(t, b.Truncated())
	_, _ = b.Write([]byte("0123456789"))
	require.Equal(t, "56789", b.String())
}

func TestExitErrorMessage(t *testing.T) {
	e := &ExitError{ExitCode: 2, Stderr: "line1\nERROR: boom\n", Err: errors.New("exit status 2")}
	require.Equal(t, "yt-dlp exited with code 2: exit status 2 (stderr: ERROR: boom)", e.Error())
	require.True(t, strings.HasPrefix((&ExitError{ExitCode: -1, Err: io.EOF}).Error(), "yt-dlp: EOF"))
}
