// Package resolver turns a page URL into the curated format list by running
// the binary in metadata mode.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/r9s-ai/vidrelay/internal/formats"
	"github.com/r9s-ai/vidrelay/internal/platform"
	"github.com/r9s-ai/vidrelay/internal/ytdlp"
)

// ErrInvalidURL is returned for input that is not an absolute http(s) URL.
var ErrInvalidURL = errors.New("invalid or missing url")

// ValidURL reports whether raw is an absolute http or https URL with a host.
func ValidURL(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	s := strings.ToLower(u.Scheme)
	return (s == "http" || s == "https") && u.Host != ""
}

type Resolver struct {
	Runner *ytdlp.Runner
}

// Resolve runs the metadata invocation for rawURL. The Invocation is returned
// whenever the binary ran, including on failure.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (formats.Result, *ytdlp.Invocation, error) {
	rawURL = strings.TrimSpace(rawURL)
	if !ValidURL(rawURL) {
		return formats.Result{}, nil, ErrInvalidURL
	}
	tag := platform.Detect(rawURL)

	out, inv, err := r.Runner.DumpJSON(ctx, rawURL)
	if err != nil {
		return formats.Result{Platform: tag}, inv, err
	}
	info, err := formats.Parse(out)
	if err != nil {
		return formats.Result{Platform: tag}, inv, fmt.Errorf("%w: decode metadata: %w", ytdlp.ErrInvocation, err)
	}
	return formats.Build(tag, info, rawURL), inv, nil
}
