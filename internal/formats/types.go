package formats

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Info is the subset of yt-dlp's --dump-single-json output the resolver reads.
type Info struct {
	ID        string      `json:"id"`
	Title     string      `json:"title"`
	Thumbnail string      `json:"thumbnail"`
	Extractor string      `json:"extractor"`
	Duration  Number      `json:"duration"`
	Formats   []RawFormat `json:"formats"`
}

// RawFormat is one entry of yt-dlp's "formats" array.
type RawFormat struct {
	FormatID   string `json:"format_id"`
	URL        string `json:"url"`
	Ext        string `json:"ext"`
	VCodec     string `json:"vcodec"`
	ACodec     string `json:"acodec"`
	Height     Number `json:"height"`
	Filesize   Number `json:"filesize"`
	FormatNote string `json:"format_note"`
}

// Number decodes a JSON value that is usually a number but may be null,
// missing, or a numeric string. Decoding never fails; Valid reports whether
// a finite number was present and Literal whether it was a JSON number
// rather than a string.
type Number struct {
	Value   float64
	Valid   bool
	Literal bool
}

func (n *Number) UnmarshalJSON(b []byte) error {
	*n = Number{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
		s = strings.TrimSpace(s)
		if s == "" {
			// An empty string carries no value; treat as absent.
			return nil
		}
		if v, err := strconv.ParseFloat(s, 64); err == nil && !math.IsInf(v, 0) && !math.IsNaN(v) {
			n.Value, n.Valid = v, true
		}
		return nil
	}
	if v, err := strconv.ParseFloat(string(b), 64); err == nil {
		n.Value, n.Valid, n.Literal = v, true, true
	}
	return nil
}

func (n Number) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(n.Value, 'f', -1, 64)), nil
}

// Int returns the value as an int when it is valid and integral, else 0.
func (n Number) Int() int {
	if !n.Valid || n.Value != math.Trunc(n.Value) {
		return 0
	}
	return int(n.Value)
}

// Parse decodes the binary's metadata output.
func Parse(b []byte) (*Info, error) {
	var info Info
	if err := json.Unmarshal(b, &info); err != nil {
		return nil, err
	}
	return &info, nil
}
