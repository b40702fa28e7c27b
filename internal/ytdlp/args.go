package ytdlp

import (
	"strconv"

	"github.com/r9s-ai/vidrelay/internal/platform"
)

// MetadataArgs builds the --dump-single-json invocation for rawURL.
func MetadataArgs(rawURL string) []string {
	return []string{
		rawURL,
		"--dump-single-json",
		"--no-check-certificate",
		"--prefer-free-formats",
		"--youtube-skip-dash-manifest",
		"--referer", rawURL,
	}
}

// StreamArgs builds the stream-to-stdout invocation. YouTube asks for the
// exact height; every other platform gets yt-dlp's "best".
func StreamArgs(tag platform.Tag, rawURL string, height int) []string {
	if tag == platform.YouTube {
		h := strconv.Itoa(height)
		return []string{
			rawURL,
			"-f", "bestvideo[height=" + h + "]+bestaudio/best[height=" + h + "]",
			"-o", "-",
			"--no-check-certificate",
			"--prefer-free-formats",
			"--youtube-skip-dash-manifest",
			"--referer", rawURL,
		}
	}
	return []string{
		rawURL,
		"-f", "best",
		"-o", "-",
		"--no-check-certificate",
		"--prefer-free-formats",
		"--referer", rawURL,
	}
}

// VersionArgs asks the binary for its version string.
func VersionArgs() []string { return []string{"--version"} }
