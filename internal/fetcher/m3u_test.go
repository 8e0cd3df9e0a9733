package fetcher

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyagen/streamshelf/internal/models"
)

const samplePlaylist = `#EXTM3U
#EXTINF:-1 tvg-id="bbc1.uk" tvg-logo="http://logo/bbc1.png" group-title="News",BBC One
http://example.com/bbc1.m3u8
#EXTINF:-1 group-title="Sports",ESPN
http://example.com/espn.m3u8
`

func TestParse_Basic(t *testing.T) {
	channels := Parse(samplePlaylist)
	require.Len(t, channels, 2)

	bbc := channels[0]
	assert.Equal(t, "bbc1.uk", bbc.ID)
	assert.Equal(t, "BBC One", bbc.Name)
	assert.Equal(t, "http://example.com/bbc1.m3u8", bbc.URL)
	require.NotNil(t, bbc.LogoURL)
	assert.Equal(t, "http://logo/bbc1.png", *bbc.LogoURL)
	require.NotNil(t, bbc.Group)
	assert.Equal(t, "News", *bbc.Group)
	require.NotNil(t, bbc.EpgChannelID)
	assert.Equal(t, "bbc1.uk", *bbc.EpgChannelID)

	espn := channels[1]
	assert.Equal(t, "http://example.com/espn.m3u8", espn.ID, "id falls back to the URL without tvg-id")
	assert.Nil(t, espn.TvgID)
	assert.Nil(t, espn.LogoURL)
}

func TestParse_StrayURLDropped(t *testing.T) {
	text := "#EXTM3U\nhttp://stray.example/a.ts\n#EXTINF:-1,One\nhttp://example/one\nhttp://stray.example/b.ts\n"
	channels := Parse(text)
	require.Len(t, channels, 1)
	assert.Equal(t, "One", channels[0].Name)
}

func TestParse_SecondExtinfReplacesPending(t *testing.T) {
	text := "#EXTINF:-1,First\n#EXTINF:-1,Second\nhttp://example/x\n"
	channels := Parse(text)
	require.Len(t, channels, 1)
	assert.Equal(t, "Second", channels[0].Name)
}

func TestParse_NameAfterLastComma(t *testing.T) {
	channels := Parse(`#EXTINF:-1 group-title="A, B",Display` + "\nhttp://example/x\n")
	require.Len(t, channels, 1)
	assert.Equal(t, "Display", channels[0].Name)
	assert.Equal(t, "A, B", *channels[0].Group)
}

func TestParse_MalformedNeverFails(t *testing.T) {
	channels := Parse("#EXTINF:garbage tvg-logo=\"unterminated\nhttp://example/x\n\r\n#EXTINF:\nhttp://example/y")
	require.Len(t, channels, 2)
	assert.Nil(t, channels[0].LogoURL)
	assert.Equal(t, "http://example/y", channels[1].Name, "empty name falls back to the URL")
	assert.Empty(t, Parse(""))
}

func TestParse_WindowsLineEndings(t *testing.T) {
	channels := Parse(strings.ReplaceAll(samplePlaylist, "\n", "\r\n"))
	require.Len(t, channels, 2)
	assert.Equal(t, "http://example.com/espn.m3u8", channels[1].URL)
}

func TestParse_EXTVLCOPTHeaders(t *testing.T) {
	text := "#EXTINF:-1,Hdr\n#EXTVLCOPT:http-referrer=http://ref/\n#EXTVLCOPT:http-user-agent=VLC/3\nhttp://example/h\n#EXTINF:-1,Plain\nhttp://example/p\n"
	channels := Parse(text)
	require.Len(t, channels, 2)
	require.NotNil(t, channels[0].Headers)
	assert.Equal(t, "http://ref/", *channels[0].Headers.Referrer)
	assert.Equal(t, "VLC/3", *channels[0].Headers.UserAgent)
	assert.Nil(t, channels[0].Headers.HTTPOrigin)
	assert.Nil(t, channels[1].Headers)
}

func TestParseM3U_MatchesParse(t *testing.T) {
	fromReader, err := ParseM3U(strings.NewReader(samplePlaylist))
	require.NoError(t, err)
	assert.Equal(t, Parse(samplePlaylist), fromReader)
}

func TestWriteM3U_RoundTrip(t *testing.T) {
	logo, group, tvg := "http://logo/x.png", "Movies", "x.id"
	in := []models.Channel{
		{ID: tvg, Name: "With Id", URL: "http://example/1", LogoURL: &logo, Group: &group, TvgID: &tvg, EpgChannelID: &tvg},
		{ID: "http://example/2", Name: "No Id", URL: "http://example/2"},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteM3U(&buf, in))

	out := Parse(buf.String())
	require.Len(t, out, len(in))
	for i := range in {
		assert.Equal(t, in[i].ID, out[i].ID)
		assert.Equal(t, in[i].Name, out[i].Name)
		assert.Equal(t, in[i].LogoURL, out[i].LogoURL)
		assert.Equal(t, in[i].Group, out[i].Group)
	}
}

func TestParseM3U_LongLine(t *testing.T) {
	name := strings.Repeat("n", 2<<20)
	text := "#EXTM3U\n#EXTINF:-1 group-title=\"Big\"," + name + "\nhttp://example/long\n#EXTINF:-1,Next\nhttp://example/next"
	channels, err := ParseM3U(strings.NewReader(text))
	require.NoError(t, err)
	require.Len(t, channels, 2)
	assert.Len(t, channels[0].Name, 2<<20)
	assert.Equal(t, "http://example/next", channels[1].URL, "final line without newline is kept")
	assert.Equal(t, Parse(text), channels)
}

func TestParse_TagsAreCaseSensitive(t *testing.T) {
	text := "#extinf:-1,Lower\nhttp://example/lower\n#EXTINF:-1,Upper\n#extvlcopt:http-referrer=http://ref/\nhttp://example/upper\n"
	channels := Parse(text)
	require.Len(t, channels, 1)
	assert.Equal(t, "Upper", channels[0].Name)
	assert.Nil(t, channels[0].Headers)
}

func TestWriteM3U_QuotesInAttributes(t *testing.T) {
	group, logo := `Kids "Fun" Zone`, "http://logo/k.png"
	in := []models.Channel{{ID: "k", Name: "Line\nBreak", URL: "http://example/k", Group: &group, LogoURL: &logo}}
	var buf bytes.Buffer
	require.NoError(t, WriteM3U(&buf, in))

	out := Parse(buf.String())
	require.Len(t, out, 1)
	require.NotNil(t, out[0].Group)
	assert.Equal(t, "Kids 'Fun' Zone", *out[0].Group)
	require.NotNil(t, out[0].LogoURL)
	assert.Equal(t, logo, *out[0].LogoURL)
	assert.Equal(t, "Line Break", out[0].Name)
	assert.Equal(t, "http://example/k", out[0].URL)
}
