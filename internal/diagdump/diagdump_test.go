package diagdump

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/r9s-ai/vidrelay/internal/requestid"
	"github.com/r9s-ai/vidrelay/internal/ytdlp"
)

func newContext(t *testing.T, rid string) *gin.Context {
	t.Helper()
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPost, "/api/download", strings.NewReader(`{}`))
	c.Request.Header.Set("Cookie", "session=secret")
	c.Request.Header.Set("User-Agent", "test")
	if rid != "" {
		c.Set(requestid.HeaderKey, rid)
	}
	return c
}

func TestRecorder_WritesSections(t *testing.T) {
	dir := t.TempDir()
	c := newContext(t, "req42")
	rec, err := Start(c, Config{Enabled: true, Dir: dir, FilePath: "{{.request_id}}.log", MaxBytes: 8})
	if err != nil {
		t.Fatalf("Start err=%v", err)
	}
	if FromContext(c) != rec {
		t.Fatalf("recorder not stored on context")
	}

	AppendRequest(c, []byte(`{"url":"https://youtu.be/x"}`))
	stderr := ytdlp.NewTailBuffer(1024)
	_, _ = stderr.Write([]byte("ERROR: Unsupported URL\n"))
	AppendInvocation(c, &ytdlp.Invocation{
		Path:     "/bin/yt-dlp",
		Args:     []string{"https://x?a=1&b=2", "--dump-single-json"},
		ExitCode: 1,
		Stderr:   stderr,
	}, errors.New("exit status 1"))
	AppendResponse(c, 500, "invocation failed")
	rec.Close()
	rec.Close()

	b, err := os.ReadFile(filepath.Join(dir, "req42.log"))
	if err != nil {
		t.Fatalf("read dump: %v", err)
	}
	out := string(b)
	for _, want := range []string{
		"request_id=req42",
		"Cookie: [REDACTED]",
		"User-Agent: test",
		"=== REQUEST ===\n{\"url\":\"\n[truncated]",
		`args="https://x?a=1&b=2" --dump-single-json`,
		"exit_code=1",
		"error=exit status 1",
		"=== RESPONSE ===\nstatus=500\ninvocation failed",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("dump missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "session=secret") {
		t.Fatalf("cookie leaked into dump")
	}
}

func TestStart_RejectsEscapingPath(t *testing.T) {
	c := newContext(t, "abc")
	if _, err := Start(c, Config{Dir: t.TempDir(), FilePath: "../{{.request_id}}.log"}); err == nil {
		t.Fatalf("expected error for path outside dump dir")
	}
}

func TestStart_UnsafeRequestIDReplaced(t *testing.T) {
	dir := t.TempDir()
	c := newContext(t, "../../evil")
	rec, err := Start(c, Config{Dir: dir, FilePath: "{{.request_id}}.log"})
	if err != nil {
		t.Fatalf("Start err=%v", err)
	}
	defer rec.Close()
	if filepath.Dir(rec.Path()) != filepath.Clean(dir) {
		t.Fatalf("dump written outside dir: %s", rec.Path())
	}
}

func TestAppend_NoRecorderIsNoop(t *testing.T) {
	c := newContext(t, "")
	AppendRequest(c, []byte("x"))
	AppendInvocation(c, &ytdlp.Invocation{Stderr: ytdlp.NewTailBuffer(1)}, nil)
	AppendResponse(c, 200, "")
}
