// Package formats reduces yt-dlp's raw format list to the small,
// platform-specific set of downloadable options shown to the client.
package formats

import (
	"sort"
	"strconv"
	"strings"

	"github.com/r9s-ai/vidrelay/internal/platform"
)

const (
	// MaxListed caps every curated list.
	MaxListed = 5

	DefaultTitle = "Untitled"
	unknownSize  = "?"
)

// YouTubeHeights is the allowed set for YouTube, in display order.
var YouTubeHeights = []int{144, 360, 480, 720, 1080}

// Curated is one option returned to the client.
type Curated struct {
	Label  string `json:"label"`
	URL    string `json:"url"`
	Size   string `json:"size"`
	Ext    string `json:"ext"`
	Height int    `json:"height"`
}

// Result is the resolver's response body.
type Result struct {
	Platform    platform.Tag `json:"platform"`
	Title       string       `json:"title"`
	Thumbnail   string       `json:"thumbnail"`
	Formats     []Curated    `json:"formats"`
	OriginalURL string       `json:"originalUrl"`
}

// Build shapes the resolver response for info fetched from originalURL.
func Build(tag platform.Tag, info *Info, originalURL string) Result {
	res := Result{
		Platform:    tag,
		Title:       DefaultTitle,
		Formats:     []Curated{},
		OriginalURL: originalURL,
	}
	if info == nil {
		return res
	}
	if info.Title != "" {
		res.Title = info.Title
	}
	res.Thumbnail = info.Thumbnail
	res.Formats = Curate(tag, info.Formats)
	return res
}

// Curate applies the per-platform selection rules. The result is never nil.
func Curate(tag platform.Tag, raw []RawFormat) []Curated {
	switch {
	case tag == platform.YouTube:
		return curateYouTube(raw)
	case tag.SingleBest():
		best := sortedVideo(raw)
		if len(best) == 0 {
			return []Curated{}
		}
		return []Curated{toCurated(best[0])}
	default:
		list := sortedVideo(raw)
		if len(list) > MaxListed {
			list = list[:MaxListed]
		}
		out := make([]Curated, 0, len(list))
		for _, f := range list {
			out = append(out, toCurated(f))
		}
		return out
	}
}

func curateYouTube(raw []RawFormat) []Curated {
	rank := make(map[int]int, len(YouTubeHeights))
	for i, h := range YouTubeHeights {
		rank[h] = i
	}

	candidates := make([]RawFormat, 0, len(raw))
	for _, f := range raw {
		if f.URL == "" || f.Ext != "mp4" {
			continue
		}
		if _, ok := rank[f.Height.Int()]; !ok {
			continue
		}
		candidates = append(candidates, f)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return rank[candidates[i].Height.Int()] < rank[candidates[j].Height.Int()]
	})

	out := make([]Curated, 0, len(YouTubeHeights))
	seen := make(map[int]bool, len(YouTubeHeights))
	for _, f := range candidates {
		h := f.Height.Int()
		if seen[h] {
			continue
		}
		seen[h] = true
		out = append(out, Curated{
			Label:  joinLabel("MP4 "+strconv.Itoa(h)+"p", f.FormatNote),
			URL:    f.URL,
			Size:   formatSize(f.Filesize),
			Ext:    f.Ext,
			Height: h,
		})
		if len(out) == MaxListed {
			break
		}
	}
	return out
}

// sortedVideo keeps formats that carry video, a URL, an extension and a
// height, ordered by height descending (ties keep input order).
func sortedVideo(raw []RawFormat) []RawFormat {
	out := make([]RawFormat, 0, len(raw))
	for _, f := range raw {
		if f.URL == "" || f.Ext == "" || f.VCodec == "" || f.VCodec == "none" {
			continue
		}
		if f.Height.Int() <= 0 {
			continue
		}
		out = append(out, f)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Height.Int() > out[j].Height.Int()
	})
	return out
}

func toCurated(f RawFormat) Curated {
	h := f.Height.Int()
	return Curated{
		Label:  joinLabel(strings.ToUpper(f.Ext)+" "+strconv.Itoa(h)+"p", f.FormatNote),
		URL:    f.URL,
		Size:   formatSize(f.Filesize),
		Ext:    f.Ext,
		Height: h,
	}
}

func joinLabel(base, note string) string {
	if note == "" {
		return strings.TrimSpace(base)
	}
	return strings.TrimSpace(base + " " + note)
}

// formatSize renders bytes as MiB with one decimal; only a JSON number counts.
func formatSize(n Number) string {
	if !n.Valid || !n.Literal {
		return unknownSize
	}
	return strconv.FormatFloat(n.Value/1024/1024, 'f', 1, 64) + "MB"
}
