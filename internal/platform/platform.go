// Package platform classifies source URLs into the coarse platform tags that
// drive format curation and yt-dlp argument selection.
package platform

import (
	"strings"
)

type Tag string

const (
	YouTube   Tag = "youtube"
	Instagram Tag = "instagram"
	TikTok    Tag = "tiktok"
	Unknown   Tag = "unknown"
)

// Detect derives the tag by substring match on the raw URL. The order
// matters: a URL mentioning both youtube.com and tiktok.com is youtube.
func Detect(rawURL string) Tag {
	switch {
	case strings.Contains(rawURL, "youtube.com") || strings.Contains(rawURL, "youtu.be"):
		return YouTube
	case strings.Contains(rawURL, "instagram.com"):
		return Instagram
	case strings.Contains(rawURL, "tiktok.com"):
		return TikTok
	default:
		return Unknown
	}
}

// Parse maps a client-supplied platform name to a Tag. Empty input yields
// ok=false so callers can fall back to Detect; unrecognized names map to Unknown.
func Parse(name string) (tag Tag, ok bool) {
	s := strings.ToLower(strings.TrimSpace(name))
	if s == "" {
		return "", false
	}
	switch Tag(s) {
	case YouTube, Instagram, TikTok:
		return Tag(s), true
	default:
		return Unknown, true
	}
}

// Resolve returns the parsed explicit platform, or the tag detected from rawURL.
func Resolve(explicit, rawURL string) Tag {
	if t, ok := Parse(explicit); ok {
		return t
	}
	return Detect(rawURL)
}

func (t Tag) String() string { return string(t) }

// SingleBest reports whether the platform exposes only its best format.
func (t Tag) SingleBest() bool { return t == Instagram || t == TikTok }
