package relay

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

const maxFilenameLength = 120

var (
	destinationLine = regexp.MustCompile(`Destination: (.+)`)
	unsafeChars     = regexp.MustCompile(`[\\/:*?"<>|\x00-\x1f]+`)
)

// DefaultFilename is used when the binary never reports a destination.
func DefaultFilename(height int) string {
	return "video_" + strconv.Itoa(height) + "p.mp4"
}

// parseDestination extracts the file name from a "Destination: <path>"
// progress line. Stdout destinations ("-") are ignored.
func parseDestination(line string) (string, bool) {
	m := destinationLine.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	p := strings.TrimSpace(m[1])
	// Windows paths are reported verbatim; treat both separators as path breaks.
	if i := strings.LastIndexAny(p, `/\`); i >= 0 {
		p = p[i+1:]
	}
	name := sanitizeFilename(p)
	if name == "" {
		return "", false
	}
	return name, true
}

// sanitizeFilename makes name safe for a quoted Content-Disposition value.
func sanitizeFilename(name string) string {
	name = unsafeChars.ReplaceAllString(strings.TrimSpace(name), "_")
	name = strings.Trim(name, " .")
	if name == "" || name == "-" || name == "_" {
		return ""
	}
	if len(name) > maxFilenameLength {
		ext := filepath.Ext(name)
		if len(ext) > 10 {
			ext = ""
		}
		name = name[:maxFilenameLength-len(ext)] + ext
	}
	return name
}
