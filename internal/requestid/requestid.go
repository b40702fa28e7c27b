package requestid

import (
	"strings"

	"github.com/google/uuid"
)

const HeaderKey = "X-Request-Id"

// maxLen bounds client-supplied ids; they end up in log lines and dump file names.
const maxLen = 64

// Gen returns a new random request id (uuid v4 without dashes).
func Gen() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Sanitize returns id if it is usable as a request id, or "" otherwise.
// Only [A-Za-z0-9._-] are accepted so the value is safe in file paths.
func Sanitize(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || len(id) > maxLen {
		return ""
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.' || r == '_' || r == '-':
		default:
			return ""
		}
	}
	if strings.Trim(id, ".") == "" {
		return ""
	}
	return id
}
