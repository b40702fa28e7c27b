package formats

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/r9s-ai/vidrelay/internal/platform"
)

func num(v float64) Number { return Number{Value: v, Valid: true, Literal: true} }

func mp4(h float64, url string) RawFormat {
	return RawFormat{URL: url, Ext: "mp4", VCodec: "avc1", Height: num(h)}
}

func heights(list []Curated) []int {
	out := make([]int, 0, len(list))
	for _, f := range list {
		out = append(out, f.Height)
	}
	return out
}

func TestCurate_YouTube(t *testing.T) {
	raw := []RawFormat{
		mp4(1080, "u1080"),
		mp4(144, "u144-a"),
		mp4(2160, "u2160"),
		mp4(144, "u144-b"),
		mp4(720, "u720"),
		mp4(360, "u360"),
	}
	got := Curate(platform.YouTube, raw)
	require.Equal(t, []int{144, 360, 720, 1080}, heights(got))
	require.Equal(t, "u144-a", got[0].URL, "first occurrence in sorted order wins")
}

func TestCurate_YouTubeFilters(t *testing.T) {
	raw := []RawFormat{
		{URL: "webm", Ext: "webm", Height: num(720)},
		{URL: "", Ext: "mp4", Height: num(720)},
		{URL: "odd", Ext: "mp4", Height: num(240)},
		{URL: "str", Ext: "mp4", Height: Number{Value: 480, Valid: true}},
		{URL: "nil", Ext: "mp4"},
	}
	got := Curate(platform.YouTube, raw)
	require.Len(t, got, 1)
	require.Equal(t, "str", got[0].URL)
	require.Equal(t, 480, got[0].Height)
}

func TestCurate_YouTubeLabelAndSize(t *testing.T) {
	f := mp4(720, "u")
	f.FormatNote = "720p"
	f.Filesize = num(5 * 1024 * 1024)
	g := mp4(360, "v")
	g.Filesize = Number{Value: 1000, Valid: true} // numeric string in JSON

	got := Curate(platform.YouTube, []RawFormat{f, g})
	require.Equal(t, Curated{Label: "MP4 360p", URL: "v", Size: "?", Ext: "mp4", Height: 360}, got[0])
	require.Equal(t, Curated{Label: "MP4 720p 720p", URL: "u", Size: "5.0MB", Ext: "mp4", Height: 720}, got[1])
}

func TestCurate_YouTubeCap(t *testing.T) {
	var raw []RawFormat
	for _, h := range []float64{1080, 720, 480, 360, 144, 1080, 720} {
		raw = append(raw, mp4(h, "u"))
	}
	got := Curate(platform.YouTube, raw)
	require.LessOrEqual(t, len(got), MaxListed)
	require.Equal(t, []int{144, 360, 480, 720, 1080}, heights(got))
}

func TestCurate_InstagramBest(t *testing.T) {
	raw := []RawFormat{
		{URL: "a", Ext: "mp4", VCodec: "h264", Height: num(240)},
		{URL: "b", Ext: "mp4", VCodec: "h264", Height: num(720), FormatNote: "hd"},
		{URL: "c", Ext: "mp4", VCodec: "h264", Height: num(480)},
	}
	got := Curate(platform.Instagram, raw)
	require.Len(t, got, 1)
	require.Equal(t, 720, got[0].Height)
	require.Equal(t, "MP4 720p hd", got[0].Label)
}

func TestCurate_TikTokNoneQualifies(t *testing.T) {
	raw := []RawFormat{
		{URL: "audio", Ext: "m4a", VCodec: "none", Height: num(0)},
		{URL: "", Ext: "mp4", VCodec: "h264", Height: num(1080)},
		{URL: "nocodec", Ext: "mp4", Height: num(1080)},
	}
	got := Curate(platform.TikTok, raw)
	require.NotNil(t, got)
	require.Empty(t, got)
}

func TestCurate_UnknownTopFive(t *testing.T) {
	var raw []RawFormat
	for i, h := range []float64{240, 1080, 360, 720, 144, 480, 2160} {
		raw = append(raw, RawFormat{URL: string(rune('a' + i)), Ext: "webm", VCodec: "vp9", Height: num(h)})
	}
	raw = append(raw, RawFormat{URL: "z", Ext: "mp4", VCodec: "none", Height: num(4320)})

	got := Curate(platform.Unknown, raw)
	require.Equal(t, []int{2160, 1080, 720, 480, 360}, heights(got))
	require.Equal(t, "WEBM 2160p", got[0].Label)
}

func TestBuild_Defaults(t *testing.T) {
	res := Build(platform.Unknown, &Info{}, "https://example.com/v")
	require.Equal(t, "Untitled", res.Title)
	require.Equal(t, "", res.Thumbnail)
	require.NotNil(t, res.Formats)
	require.Equal(t, "https://example.com/v", res.OriginalURL)

	b, err := json.Marshal(res)
	require.NoError(t, err)
	require.JSONEq(t, `{"platform":"unknown","title":"Untitled","thumbnail":"","formats":[],"originalUrl":"https://example.com/v"}`, string(b))
}

func TestParse_LenientNumbers(t *testing.T) {
	info, err := Parse([]byte(`{
		"title": "t",
		"duration": null,
		"formats": [
			{"url": "a", "ext": "mp4", "height": "720", "filesize": "123"},
			{"url": "b", "ext": "mp4", "height": null, "filesize": 2097152},
			{"url": "c", "ext": "mp4", "height": "abc"},
			{"url": "d", "ext": "mp4", "height": 720.5}
		]
	}`))
	require.NoError(t, err)
	require.Len(t, info.Formats, 4)

	require.Equal(t, 720, info.Formats[0].Height.Int())
	require.Equal(t, "?", formatSize(info.Formats[0].Filesize))
	require.Equal(t, 0, info.Formats[1].Height.Int())
	require.Equal(t, "2.0MB", formatSize(info.Formats[1].Filesize))
	require.False(t, info.Formats[2].Height.Valid)
	require.Equal(t, 0, info.Formats[3].Height.Int())
}

func TestParse_NotJSON(t *testing.T) {
	_, err := Parse([]byte("ERROR: Unsupported URL"))
	require.Error(t, err)
}
