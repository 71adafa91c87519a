package tuner

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/bluenviron/gohlslib/v2/pkg/playlist"
)

// Segment extensions. The extension picks the content type served locally.
const (
	ExtSegment = "ts"
	ExtKey     = "key"
	ExtInit    = "m4i"
)

// Content types served for proxied playlists and media.
const (
	ContentTypePlaylist = "application/vnd.apple.mpegurl"
	ContentTypeSegment  = "video/MP2T"
	ContentTypeKey      = "application/octet-stream"
)

// tokenLength is the number of hex characters kept from the URL digest.
const tokenLength = 32

var uriAttr = regexp.MustCompile(`URI="([^"]*)"`)

// ContentType returns the content type for a local segment extension.
func ContentType(ext string) string {
	if strings.TrimPrefix(ext, ".") == ExtKey {
		return ContentTypeKey
	}
	return ContentTypeSegment
}

// ValidExt reports whether ext is a segment extension this proxy serves.
func ValidExt(ext string) bool {
	switch strings.TrimPrefix(ext, ".") {
	case ExtSegment, ExtKey, ExtInit:
		return true
	}
	return false
}

// segmentToken derives a stable local token for an upstream URL.
func segmentToken(upstream string) string {
	sum := sha256.Sum256([]byte(upstream))
	return hex.EncodeToString(sum[:])[:tokenLength]
}

// isMaster reports whether body is a multivariant playlist. Playlists that
// gohlslib rejects are classified by their tags, as long as they carry the
// #EXTM3U header.
func isMaster(body []byte) (bool, error) {
	pl, err := playlist.Unmarshal(body)
	if err == nil {
		_, ok := pl.(*playlist.Multivariant)
		return ok, nil
	}
	if !bytes.HasPrefix(bytes.TrimSpace(body), []byte("#EXTM3U")) {
		return false, fmt.Errorf("not an HLS playlist: %w", err)
	}
	return bytes.Contains(body, []byte("#EXT-X-STREAM-INF")), nil
}

// checkMedia returns an error unless body is a media playlist. As with
// isMaster, bodies gohlslib rejects are accepted on their tags.
func checkMedia(body []byte) error {
	pl, err := playlist.Unmarshal(body)
	if err == nil {
		if _, ok := pl.(*playlist.Media); !ok {
			return fmt.Errorf("expected a media playlist, got a multivariant playlist")
		}
		return nil
	}
	if !bytes.HasPrefix(bytes.TrimSpace(body), []byte("#EXTM3U")) {
		return fmt.Errorf("not an HLS playlist: %w", err)
	}
	if bytes.Contains(body, []byte("#EXT-X-STREAM-INF")) {
		return fmt.Errorf("expected a media playlist, got a multivariant playlist")
	}
	if !bytes.Contains(body, []byte("#EXTINF")) && !bytes.Contains(body, []byte("#EXT-X-TARGETDURATION")) {
		return fmt.Errorf("media playlist has no segments: %w", err)
	}
	return nil
}

func resolveRef(base *url.URL, ref string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", fmt.Errorf("parsing playlist uri %q: %w", ref, err)
	}
	return base.ResolveReference(u).String(), nil
}

// rewriteMaster points every variant reference at a local chunklist path
// {prefix}/{n}.m3u8 and returns the upstream URL of each n.
func rewriteMaster(body []byte, upstream *url.URL, prefix string) (string, []string, error) {
	var (
		out      strings.Builder
		variants []string
	)
	local := func(ref string) (string, error) {
		abs, err := resolveRef(upstream, ref)
		if err != nil {
			return "", err
		}
		variants = append(variants, abs)
		return prefix + "/" + strconv.Itoa(len(variants)-1) + ".m3u8", nil
	}

	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		trimmed := strings.TrimSpace(line)

		switch {
		case trimmed == "":
			out.WriteString(line)
		case strings.HasPrefix(trimmed, "#EXT-X-MEDIA:"), strings.HasPrefix(trimmed, "#EXT-X-I-FRAME-STREAM-INF:"):
			rewritten, err := rewriteAttr(trimmed, local)
			if err != nil {
				return "", nil, err
			}
			out.WriteString(rewritten)
		case strings.HasPrefix(trimmed, "#"):
			out.WriteString(line)
		default:
			path, err := local(trimmed)
			if err != nil {
				return "", nil, err
			}
			out.WriteString(path)
		}
		out.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return "", nil, fmt.Errorf("reading master playlist: %w", err)
	}
	if len(variants) == 0 {
		return "", nil, fmt.Errorf("master playlist has no variants")
	}
	return out.String(), variants, nil
}

// singleVariantMaster wraps a media playlist URL as a one-variant master.
func singleVariantMaster(prefix string) string {
	return "#EXTM3U\n" +
		"#EXT-X-VERSION:3\n" +
		"#EXT-X-STREAM-INF:BANDWIDTH=6000000\n" +
		prefix + "/0.m3u8\n"
}

// rewriteMedia replaces segment, key and init-map URIs with local token
// paths {prefix}/{token}.{ext} and returns token to upstream URL.
func rewriteMedia(body []byte, upstream *url.URL, prefix string) (string, map[string]string, error) {
	if err := checkMedia(body); err != nil {
		return "", nil, err
	}

	var out strings.Builder
	tokens := make(map[string]string)

	local := func(ext string) func(string) (string, error) {
		return func(ref string) (string, error) {
			abs, err := resolveRef(upstream, ref)
			if err != nil {
				return "", err
			}
			token := segmentToken(abs)
			tokens[token] = abs
			return prefix + "/" + token + "." + ext, nil
		}
	}

	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		trimmed := strings.TrimSpace(line)

		switch {
		case trimmed == "":
			out.WriteString(line)
		case strings.HasPrefix(trimmed, "#EXT-X-KEY:"):
			rewritten, err := rewriteAttr(trimmed, local(ExtKey))
			if err != nil {
				return "", nil, err
			}
			out.WriteString(rewritten)
		case strings.HasPrefix(trimmed, "#EXT-X-MAP:"):
			rewritten, err := rewriteAttr(trimmed, local(ExtInit))
			if err != nil {
				return "", nil, err
			}
			out.WriteString(rewritten)
		case strings.HasPrefix(trimmed, "#"):
			out.WriteString(line)
		default:
			path, err := local(ExtSegment)(trimmed)
			if err != nil {
				return "", nil, err
			}
			out.WriteString(path)
		}
		out.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return "", nil, fmt.Errorf("reading media playlist: %w", err)
	}
	return out.String(), tokens, nil
}

// rewriteAttr replaces the URI="..." attribute of a tag line. Lines without
// one (METHOD=NONE keys, muxed audio renditions) pass through.
func rewriteAttr(line string, replace func(string) (string, error)) (string, error) {
	m := uriAttr.FindStringSubmatchIndex(line)
	if m == nil {
		return line, nil
	}
	local, err := replace(line[m[2]:m[3]])
	if err != nil {
		return "", err
	}
	return line[:m[2]] + local + line[m[3]:], nil
}
