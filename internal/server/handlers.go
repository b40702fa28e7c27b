package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/r9s-ai/vidrelay/internal/diagdump"
	"github.com/r9s-ai/vidrelay/internal/formats"
	"github.com/r9s-ai/vidrelay/internal/platform"
	"github.com/r9s-ai/vidrelay/internal/relay"
	"github.com/r9s-ai/vidrelay/internal/requestid"
	"github.com/r9s-ai/vidrelay/internal/resolver"
	"github.com/r9s-ai/vidrelay/internal/ytdlp"
)

const (
	msgInvalidURL     = "Invalid or missing URL."
	msgRateLimited    = "Too many requests. Please wait and try again."
	msgResolveFailed  = "Video download failed. Please try again later."
	msgMissingParams  = "Missing url or height"
	msgBinaryMissing  = "yt-dlp binary not found"
	msgStartFailed    = "Failed to start download process."
	msgDownloadFailed = "Failed to download video."

	maxBodyBytes = 1 << 20
)

// downloadBody is shared by both endpoints; the resolver only reads URL.
type downloadBody struct {
	URL      any            `json:"url"`
	Height   formats.Number `json:"height"`
	Platform any            `json:"platform"`
}

func (b downloadBody) urlField() string {
	s, _ := b.URL.(string)
	return strings.TrimSpace(s)
}

func (b downloadBody) platformField() string {
	s, _ := b.Platform.(string)
	return s
}

// readBody decodes the request body. Bodies that are not a JSON object
// decode to the zero value and fail the callers' field checks.
func readBody(c *gin.Context) (downloadBody, []byte) {
	var body downloadBody
	raw, err := ioReadAllLimit(c.Request.Body, maxBodyBytes)
	if err != nil {
		return body, raw
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return downloadBody{}, raw
	}
	return body, raw
}

func makeResolveHandler(deps *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, raw := readBody(c)
		diagdump.AppendRequest(c, raw)

		rawURL := body.urlField()
		if !resolver.ValidURL(rawURL) {
			writeError(c, http.StatusBadRequest, msgInvalidURL)
			return
		}
		if !deps.Limiter.Allow(deps.ClientKey(c.Request)) {
			writeError(c, http.StatusTooManyRequests, msgRateLimited)
			return
		}

		res, inv, err := deps.Resolver.Resolve(c.Request.Context(), rawURL)
		c.Set(ctxKeyPlatform, res.Platform.String())
		if inv != nil {
			c.Set(ctxKeyExit, inv.ExitCode)
			diagdump.AppendInvocation(c, inv, err)
		}
		if err != nil {
			_ = c.Error(err)
			log.Printf("resolve failed request_id=%s url=%q: %v", c.GetString(requestid.HeaderKey), rawURL, err)
			writeError(c, http.StatusInternalServerError, msgResolveFailed)
			return
		}
		c.Set(ctxKeyFormats, len(res.Formats))
		c.JSON(http.StatusOK, res)
	}
}

func makeFileHandler(deps *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, raw := readBody(c)
		diagdump.AppendRequest(c, raw)

		rawURL := body.urlField()
		height := body.Height.Int()
		if rawURL == "" || height <= 0 || !resolver.ValidURL(rawURL) {
			writeError(c, http.StatusBadRequest, msgMissingParams)
			return
		}
		tag := platform.Resolve(body.platformField(), rawURL)
		c.Set(ctxKeyPlatform, tag.String())
		c.Set(ctxKeyHeight, height)

		sink := relay.SinkFunc(func(name string) io.Writer {
			c.Header("Content-Type", "video/mp4")
			c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
			c.Status(http.StatusOK)
			c.Writer.WriteHeaderNow()
			return c.Writer
		})
		res, err := deps.Relay.Stream(c.Request.Context(), relay.Request{URL: rawURL, Height: height, Platform: tag}, sink)
		if res.Invocation != nil {
			c.Set(ctxKeyExit, res.Invocation.ExitCode)
			diagdump.AppendInvocation(c, res.Invocation, err)
		}
		if res.Committed {
			c.Set(ctxKeyFilename, res.Filename)
			c.Set(ctxKeyBytes, res.Bytes)
		}
		if err == nil {
			return
		}
		_ = c.Error(err)

		rid := c.GetString(requestid.HeaderKey)
		if !res.Committed {
			log.Printf("download failed request_id=%s url=%q: %v", rid, rawURL, err)
			switch {
			case errors.Is(err, ytdlp.ErrBinaryNotFound):
				writeError(c, http.StatusInternalServerError, msgBinaryMissing)
			case errors.Is(err, relay.ErrStart):
				writeError(c, http.StatusInternalServerError, msgStartFailed)
			default:
				writeError(c, http.StatusInternalServerError, msgDownloadFailed)
			}
			return
		}
		if relay.IsClientDisconnect(err) || c.Request.Context().Err() != nil {
			return
		}
		log.Printf("download aborted mid-stream request_id=%s url=%q bytes=%d: %v", rid, rawURL, res.Bytes, err)
		c.Set(ctxKeyAbort, true)
	}
}

func writeError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func ioReadAllLimit(rc io.ReadCloser, limit int64) ([]byte, error) {
	defer func() { _ = rc.Close() }()
	var buf bytes.Buffer
	if _, err := io.CopyN(&buf, rc, limit+1); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if int64(buf.Len()) > limit {
		return nil, errors.New("request body too large")
	}
	return buf.Bytes(), nil
}
