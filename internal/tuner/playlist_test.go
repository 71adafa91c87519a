package tuner

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const masterFixture = `#EXTM3U
#EXT-X-VERSION:4
#EXT-X-MEDIA:TYPE=AUDIO,GROUP-ID="aud",NAME="English",DEFAULT=YES,URI="audio/en.m3u8"
#EXT-X-STREAM-INF:BANDWIDTH=2000000,RESOLUTION=1280x720,AUDIO="aud"
hd/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=800000,RESOLUTION=640x360,AUDIO="aud"
https://cdn.other.example/sd/index.m3u8?sig=1
`

func TestRewriteMaster(t *testing.T) {
	upstream, _ := url.Parse("https://cdn.example/live/master.m3u8?token=abc")

	text, variants, err := rewriteMaster([]byte(masterFixture), upstream, "http://tuner.local/chunklist/7")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"https://cdn.example/live/audio/en.m3u8",
		"https://cdn.example/live/hd/index.m3u8",
		"https://cdn.other.example/sd/index.m3u8?sig=1",
	}, variants)

	assert.Contains(t, text, `URI="http://tuner.local/chunklist/7/0.m3u8"`)
	assert.Contains(t, text, "\nhttp://tuner.local/chunklist/7/1.m3u8\n")
	assert.Contains(t, text, "\nhttp://tuner.local/chunklist/7/2.m3u8\n")
	assert.Contains(t, text, `#EXT-X-STREAM-INF:BANDWIDTH=2000000,RESOLUTION=1280x720,AUDIO="aud"`)
	assert.NotContains(t, text, "cdn.example")
}

func TestRewriteMaster_NoVariants(t *testing.T) {
	upstream, _ := url.Parse("https://cdn.example/master.m3u8")
	_, _, err := rewriteMaster([]byte("#EXTM3U\n#EXT-X-VERSION:3\n"), upstream, "/chunklist/1")
	assert.Error(t, err)
}

func TestRewriteMedia(t *testing.T) {
	media := strings.Join([]string{
		"#EXTM3U",
		"#EXT-X-VERSION:6",
		"#EXT-X-TARGETDURATION:6",
		"#EXT-X-MEDIA-SEQUENCE:100",
		`#EXT-X-MAP:URI="init.mp4"`,
		`#EXT-X-KEY:METHOD=AES-128,URI="https://keys.example/k1",IV=0x01`,
		"#EXTINF:6.000,",
		"seg100.ts",
		"#EXTINF:6.000,",
		"/abs/seg101.ts?sig=x",
		"",
	}, "\r\n")
	upstream, _ := url.Parse("https://cdn.example/live/hd/index.m3u8")

	text, tokens, err := rewriteMedia([]byte(media), upstream, "http://tuner.local/channels/7")
	require.NoError(t, err)
	require.Len(t, tokens, 4)

	initTok := segmentToken("https://cdn.example/live/hd/init.mp4")
	keyTok := segmentToken("https://keys.example/k1")
	seg0 := segmentToken("https://cdn.example/live/hd/seg100.ts")
	seg1 := segmentToken("https://cdn.example/abs/seg101.ts?sig=x")

	assert.Equal(t, "https://keys.example/k1", tokens[keyTok])
	assert.Equal(t, "https://cdn.example/abs/seg101.ts?sig=x", tokens[seg1])

	assert.Contains(t, text, `#EXT-X-MAP:URI="http://tuner.local/channels/7/`+initTok+`.m4i"`)
	assert.Contains(t, text, `#EXT-X-KEY:METHOD=AES-128,URI="http://tuner.local/channels/7/`+keyTok+`.key",IV=0x01`)
	assert.Contains(t, text, "\nhttp://tuner.local/channels/7/"+seg0+".ts\n")
	assert.Contains(t, text, "\nhttp://tuner.local/channels/7/"+seg1+".ts\n")
	assert.NotContains(t, text, "\r")
}

func TestRewriteMedia_KeyWithoutURI(t *testing.T) {
	media := "#EXTM3U\n#EXT-X-TARGETDURATION:6\n#EXT-X-KEY:METHOD=NONE\n#EXTINF:6,\na.ts\n"
	upstream, _ := url.Parse("https://cdn.example/x/index.m3u8")

	text, tokens, err := rewriteMedia([]byte(media), upstream, "/channels/1")
	require.NoError(t, err)
	assert.Len(t, tokens, 1)
	assert.Contains(t, text, "#EXT-X-KEY:METHOD=NONE\n")
}

func TestSegmentToken(t *testing.T) {
	a := segmentToken("https://cdn.example/a.ts")
	assert.Len(t, a, 32)
	assert.Equal(t, a, segmentToken("https://cdn.example/a.ts"))
	assert.NotEqual(t, a, segmentToken("https://cdn.example/b.ts"))
}

func TestIsMaster(t *testing.T) {
	master, err := isMaster([]byte(masterFixture))
	require.NoError(t, err)
	assert.True(t, master)

	master, err = isMaster([]byte("#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-TARGETDURATION:6\n#EXT-X-MEDIA-SEQUENCE:1\n#EXTINF:6,\na.ts\n"))
	require.NoError(t, err)
	assert.False(t, master)

	_, err = isMaster([]byte("<html>denied</html>"))
	assert.Error(t, err)
}

func TestCheckMedia(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{name: "media", body: "#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-TARGETDURATION:6\n#EXT-X-MEDIA-SEQUENCE:1\n#EXTINF:6,\na.ts\n"},
		{name: "loose media", body: "#EXTM3U\n#EXTINF:6,\na.ts\n"},
		{name: "html", body: "<html>\n<body>Access Denied</body>\n</html>\n", wantErr: true},
		{name: "empty", body: "", wantErr: true},
		{name: "header only", body: "#EXTM3U\n", wantErr: true},
		{name: "master", body: masterFixture, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkMedia([]byte(tt.body))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRewriteMedia_RejectsHTML(t *testing.T) {
	upstream, _ := url.Parse("https://cdn.example/x/index.m3u8")
	_, tokens, err := rewriteMedia([]byte("<html>\n<body>Access Denied</body>\n</html>\n"), upstream, "/channels/1")
	assert.Error(t, err)
	assert.Empty(t, tokens)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, ContentTypeSegment, ContentType("ts"))
	assert.Equal(t, ContentTypeSegment, ContentType(".m4i"))
	assert.Equal(t, ContentTypeKey, ContentType("key"))
	assert.True(t, ValidExt("key"))
	assert.False(t, ValidExt("mp4"))
}
