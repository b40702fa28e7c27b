package server

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/r9s-ai/vidrelay/internal/config"
	"github.com/r9s-ai/vidrelay/internal/diagdump"
	"github.com/r9s-ai/vidrelay/internal/ratelimit"
	"github.com/r9s-ai/vidrelay/internal/relay"
	"github.com/r9s-ai/vidrelay/internal/requestid"
	"github.com/r9s-ai/vidrelay/internal/resolver"
	"github.com/r9s-ai/vidrelay/internal/version"
	"github.com/r9s-ai/vidrelay/internal/ytdlp"
)

// Deps are the components shared by the handlers.
type Deps struct {
	Locator   *ytdlp.Locator
	Resolver  *resolver.Resolver
	Relay     *relay.Relay
	Limiter   *ratelimit.Limiter
	ClientKey ratelimit.ClientKeyFunc
}

// NewDeps wires the runtime components described by cfg.
func NewDeps(cfg *config.Config) *Deps {
	loc := ytdlp.NewLocator(cfg.YtDlp.BinDir, cfg.YtDlp.Path)
	runner := &ytdlp.Runner{
		Locator:         loc,
		MetadataTimeout: cfg.MetadataTimeout(),
		StreamTimeout:   cfg.StreamTimeout(),
	}
	key := ratelimit.ForwardedFor(cfg.RateLimit.ForwardedHeader)
	if cfg.RateLimit.ClientKey == config.ClientKeyRemoteAddr {
		key = ratelimit.RemoteAddr
	}
	return &Deps{
		Locator:   loc,
		Resolver:  &resolver.Resolver{Runner: runner},
		Relay:     relay.New(runner, cfg.YtDlp.MaxConcurrentStreams),
		Limiter:   ratelimit.New(),
		ClientKey: key,
	}
}

func NewRouter(cfg *config.Config, deps *Deps, accessLogger *log.Logger, accessColor bool) *gin.Engine {
	r := gin.New()
	r.Use(abortMiddleware())
	r.Use(requestIDMiddleware())
	if cfg.AccessLogEnabled() {
		r.Use(requestLoggerWithColor(accessLogger, accessColor))
	}
	r.Use(gin.Recovery())
	if cfg.DiagDump.Enabled {
		r.Use(diagDumpMiddleware(cfg))
	}

	r.GET("/healthz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
		defer cancel()
		bin := gin.H{"path": deps.Locator.Configured(), "present": false, "version": ""}
		if _, err := deps.Locator.Path(); err == nil {
			bin["present"] = true
			if v, err := deps.Locator.Version(ctx); err == nil {
				bin["version"] = v
			}
		}
		c.JSON(http.StatusOK, gin.H{"ok": true, "ytdlp": bin})
	})
	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, version.Get())
	})

	api := r.Group("/api")
	api.POST("/download", makeResolveHandler(deps))
	api.POST("/download/file", makeFileHandler(deps))
	return r
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := requestid.Sanitize(strings.TrimSpace(c.GetHeader(requestid.HeaderKey)))
		if id == "" {
			id = requestid.Gen()
		}
		c.Header(requestid.HeaderKey, id)
		c.Set(requestid.HeaderKey, id)
		c.Next()
	}
}

// abortMiddleware must be registered first. Handlers mark a broken stream
// with ctxKeyAbort; the panic is raised here, outside gin.Recovery, and
// net/http closes the connection.
func abortMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if c.GetBool(ctxKeyAbort) {
			panic(http.ErrAbortHandler)
		}
	}
}

func diagDumpMiddleware(cfg *config.Config) gin.HandlerFunc {
	dcfg := diagdump.Config{
		Enabled:  cfg.DiagDump.Enabled,
		Dir:      cfg.DiagDump.Dir,
		FilePath: cfg.DiagDump.FilePath,
		MaxBytes: cfg.DiagDump.MaxBytes,
	}
	return func(c *gin.Context) {
		rec, err := diagdump.Start(c, dcfg)
		if err != nil {
			log.Printf("diag dump disabled for request: %v", err)
			c.Next()
			return
		}
		c.Next()
		diagdump.AppendResponse(c, c.Writer.Status(), c.Errors.String())
		rec.Close()
	}
}
