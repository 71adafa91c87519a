// Package m3u writes extended M3U playlists.
package m3u

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// Entry is one playlist item.
type Entry struct {
	TvgID         string
	TvgName       string
	TvgLogo       string
	GroupTitle    string
	ChannelID     string
	ChannelNumber int
	// Duration is written as-is; zero means a live stream (-1).
	Duration int
	Title    string
	URL      string
	// Extra attributes are written after the standard ones, sorted by key.
	Extra map[string]string
}

// Writer streams an M3U playlist. Call Flush when done.
type Writer struct {
	w             *bufio.Writer
	headerWritten bool
	count         int
}

// NewWriter creates a new M3U writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// WriteHeader writes #EXTM3U once. WriteEntry calls it as needed.
func (w *Writer) WriteHeader() error {
	if w.headerWritten {
		return nil
	}
	if _, err := w.w.WriteString("#EXTM3U\n"); err != nil {
		return fmt.Errorf("writing M3U header: %w", err)
	}
	w.headerWritten = true
	return nil
}

// WriteEntry writes the #EXTINF line and URL for entry.
func (w *Writer) WriteEntry(entry *Entry) error {
	if err := w.WriteHeader(); err != nil {
		return err
	}

	duration := entry.Duration
	if duration == 0 {
		duration = -1
	}

	var line strings.Builder
	line.WriteString("#EXTINF:")
	line.WriteString(strconv.Itoa(duration))

	attr := func(k, v string) {
		if v == "" {
			return
		}
		line.WriteByte(' ')
		line.WriteString(k)
		line.WriteString(`="`)
		line.WriteString(escapeQuotes(v))
		line.WriteByte('"')
	}
	attr("tvg-id", entry.TvgID)
	attr("channel-id", entry.ChannelID)
	if entry.ChannelNumber > 0 {
		attr("tvg-chno", strconv.Itoa(entry.ChannelNumber))
	}
	attr("tvg-name", entry.TvgName)
	attr("tvg-logo", entry.TvgLogo)
	attr("group-title", entry.GroupTitle)

	keys := make([]string, 0, len(entry.Extra))
	for k := range entry.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attr(k, entry.Extra[k])
	}

	line.WriteByte(',')
	line.WriteString(sanitizeTitle(entry.Title))
	line.WriteByte('\n')
	line.WriteString(entry.URL)
	line.WriteByte('\n')

	if _, err := w.w.WriteString(line.String()); err != nil {
		return fmt.Errorf("writing entry %q: %w", entry.Title, err)
	}
	w.count++
	return nil
}

// Count returns the number of entries written.
func (w *Writer) Count() int { return w.count }

// Flush writes the header if nothing else was written and flushes.
func (w *Writer) Flush() error {
	if err := w.WriteHeader(); err != nil {
		return err
	}
	return w.w.Flush()
}

func escapeQuotes(s string) string {
	return strings.ReplaceAll(s, `"`, `\"`)
}

// sanitizeTitle keeps the title on one line.
func sanitizeTitle(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}
