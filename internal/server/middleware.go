package server

import (
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/r9s-ai/vidrelay/internal/logx"
	"github.com/r9s-ai/vidrelay/internal/requestid"
)

// Context keys set by handlers and read by the access logger.
const (
	ctxKeyPlatform = "vrl.platform"
	ctxKeyHeight   = "vrl.height"
	ctxKeyBytes    = "vrl.bytes"
	ctxKeyFilename = "vrl.filename"
	ctxKeyFormats  = "vrl.formats"
	ctxKeyExit     = "vrl.exit"
	ctxKeyAbort    = "vrl.abort"
)

var accessFields = []struct {
	key  string
	name string
}{
	{ctxKeyPlatform, "platform"},
	{ctxKeyHeight, "height"},
	{ctxKeyFormats, "formats"},
	{ctxKeyBytes, "bytes"},
	{ctxKeyFilename, "filename"},
	{ctxKeyExit, "exit"},
}

func requestLoggerWithColor(l *log.Logger, color bool) gin.HandlerFunc {
	if l == nil {
		l = log.New(os.Stdout, "", 0)
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		latency := time.Since(start)

		fields := map[string]any{}
		if v := c.GetString(requestid.HeaderKey); v != "" {
			fields["request_id"] = v
		}
		for _, f := range accessFields {
			if v, ok := c.Get(f.key); ok {
				fields[f.name] = v
			}
		}
		if c.GetBool(ctxKeyAbort) {
			fields["aborted"] = true
		}
		if len(c.Errors) > 0 {
			fields["error"] = c.Errors.Last().Error()
		}

		l.Println(logx.FormatRequestLine(time.Now(), status, latency, c.ClientIP(), c.Request.Method, c.Request.URL.Path, fields, color))
	}
}
