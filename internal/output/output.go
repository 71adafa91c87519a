// Package output renders the tuner lineups, IPTV listings and XMLTV guides
// from the scheduled catalog.
package output

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/leduong/EPlusTV/internal/models"
	"github.com/leduong/EPlusTV/internal/repository"
	"github.com/leduong/EPlusTV/internal/scheduler"
	"github.com/leduong/EPlusTV/internal/version"
	"github.com/leduong/EPlusTV/pkg/m3u"
	"github.com/leduong/EPlusTV/pkg/xmltv"
)

// GroupTitle is the group every channel is listed under.
const GroupTitle = "EPlusTV"

// Lineup exposes the channel ranges currently in force.
type Lineup interface {
	Settings(ctx context.Context) (*models.ScheduleSettings, error)
	Linear() (scheduler.LinearChannels, int, bool)
}

// Renderer writes playlists and guides.
type Renderer struct {
	entries repository.EntryRepository
	lineup  Lineup
	zone    *time.Location
}

// NewRenderer creates a renderer. IPTV titles are stamped in US Eastern time.
func NewRenderer(entries repository.EntryRepository, lineup Lineup) *Renderer {
	zone, err := time.LoadLocation("America/New_York")
	if err != nil {
		zone = time.UTC
	}
	return &Renderer{entries: entries, lineup: lineup, zone: zone}
}

// ChannelURL is the stream URL for a channel number.
func ChannelURL(base string, channel int) string {
	return base + "/channels/" + strconv.Itoa(channel) + ".m3u8"
}

func tvgID(channel int) string {
	return strconv.Itoa(channel) + ".eplustv"
}

func linearTvgID(ch scheduler.LinearChannel) string {
	return ch.ID + ".eplustv"
}

// LinearEnabled reports whether the linear lineup is served.
func (r *Renderer) LinearEnabled() bool {
	l, _, enabled := r.lineup.Linear()
	return enabled && len(l) > 0
}

// WriteLineup writes one M3U item per channel of the dynamic pool.
func (r *Renderer) WriteLineup(ctx context.Context, w io.Writer, base string) error {
	settings, err := r.lineup.Settings(ctx)
	if err != nil {
		return err
	}

	pw := m3u.NewWriter(w)
	for ch := settings.StartChannel; ch < settings.EndChannel(); ch++ {
		name := GroupTitle + " " + strconv.Itoa(ch)
		if err := pw.WriteEntry(&m3u.Entry{
			TvgID:         tvgID(ch),
			ChannelID:     tvgID(ch),
			ChannelNumber: ch,
			TvgName:       name,
			GroupTitle:    GroupTitle,
			Title:         name,
			URL:           ChannelURL(base, ch),
		}); err != nil {
			return err
		}
	}
	return pw.Flush()
}

// WriteLinearLineup writes the fixed linear channels.
func (r *Renderer) WriteLinearLineup(w io.Writer, base string) error {
	linear, start, _ := r.lineup.Linear()

	pw := m3u.NewWriter(w)
	for i, ch := range linear {
		num := start + i
		if err := pw.WriteEntry(&m3u.Entry{
			TvgID:         linearTvgID(ch),
			ChannelID:     linearTvgID(ch),
			ChannelNumber: num,
			TvgName:       ch.Name,
			GroupTitle:    GroupTitle,
			Title:         ch.Name,
			URL:           ChannelURL(base, num),
		}); err != nil {
			return err
		}
	}
	return pw.Flush()
}

// WriteIPTV writes one item per scheduled dynamic entry, optionally limited
// to one provider. It returns how many entries were written.
func (r *Renderer) WriteIPTV(ctx context.Context, w io.Writer, base, providerKey string) (int, error) {
	entries, err := r.entries.Scheduled(ctx, repository.ScheduledFilter{
		Linear:   models.BoolPtr(false),
		Provider: providerKey,
	})
	if err != nil {
		return 0, err
	}

	pw := m3u.NewWriter(w)
	for _, e := range entries {
		if err := pw.WriteEntry(&m3u.Entry{
			Title: r.IPTVName(e),
			URL:   ChannelURL(base, *e.Channel),
		}); err != nil {
			return pw.Count(), err
		}
	}
	return pw.Count(), pw.Flush()
}

// IPTVName formats "[FROM CH] [categories] name (feed) sport MM/DD HH:mm ET".
func (r *Renderer) IPTVName(e *models.Entry) string {
	upper := cases.Upper(language.Und)
	lower := cases.Lower(language.Und)

	cats := make([]string, len(e.Categories))
	for i, c := range e.Categories {
		cats[i] = lower.String(c)
	}

	var b strings.Builder
	b.WriteByte('[')
	b.WriteString(upper.String(e.From))
	if e.Channel != nil {
		b.WriteByte(' ')
		b.WriteString(strconv.Itoa(*e.Channel))
	}
	b.WriteString("] [")
	b.WriteString(strings.Join(cats, ", "))
	b.WriteString("] ")
	b.WriteString(e.Name)

	if e.Feed != nil && *e.Feed != "" {
		fmt.Fprintf(&b, " (%s)", *e.Feed)
	}
	if e.Sport != nil && *e.Sport != "" && !e.IsLinear() {
		b.WriteByte(' ')
		b.WriteString(*e.Sport)
	}
	b.WriteByte(' ')
	b.WriteString(e.StartTime().In(r.zone).Format("01/02 15:04"))
	b.WriteString(" ET")
	return b.String()
}

// WriteGuide writes the XMLTV guide for the dynamic pool.
func (r *Renderer) WriteGuide(ctx context.Context, w io.Writer) error {
	settings, err := r.lineup.Settings(ctx)
	if err != nil {
		return err
	}
	entries, err := r.entries.Scheduled(ctx, repository.ScheduledFilter{Linear: models.BoolPtr(false)})
	if err != nil {
		return err
	}

	gw := xmltv.NewWriter(w, version.ApplicationName)
	for ch := settings.StartChannel; ch < settings.EndChannel(); ch++ {
		if err := gw.WriteChannel(&xmltv.Channel{
			ID:           tvgID(ch),
			DisplayNames: []string{GroupTitle + " " + strconv.Itoa(ch)},
		}); err != nil {
			return err
		}
	}
	for _, e := range entries {
		if err := gw.WriteProgramme(programme(e, tvgID(*e.Channel))); err != nil {
			return err
		}
	}
	return gw.Close()
}

// WriteLinearGuide writes the XMLTV guide for the linear channels.
func (r *Renderer) WriteLinearGuide(ctx context.Context, w io.Writer) error {
	linear, start, _ := r.lineup.Linear()
	entries, err := r.entries.Scheduled(ctx, repository.ScheduledFilter{Linear: models.BoolPtr(true)})
	if err != nil {
		return err
	}

	gw := xmltv.NewWriter(w, version.ApplicationName)
	for _, ch := range linear {
		if err := gw.WriteChannel(&xmltv.Channel{
			ID:           linearTvgID(ch),
			DisplayNames: []string{ch.Name},
		}); err != nil {
			return err
		}
	}
	for _, e := range entries {
		ch, ok := linear.At(*e.Channel, start)
		if !ok {
			continue
		}
		if err := gw.WriteProgramme(programme(e, linearTvgID(ch))); err != nil {
			return err
		}
	}
	return gw.Close()
}

func programme(e *models.Entry, channelID string) *xmltv.Programme {
	p := &xmltv.Programme{
		Start:   e.StartTime(),
		Stop:    e.EndTime(),
		Channel: channelID,
		Title:   xmltv.Text{Lang: "en", Value: e.Name},
	}
	if e.Feed != nil && *e.Feed != "" {
		p.SubTitle = &xmltv.Text{Lang: "en", Value: *e.Feed}
	}
	desc := e.Name
	if e.Network != "" {
		desc += " on " + e.Network
	}
	p.Desc = &xmltv.Text{Lang: "en", Value: desc}

	if e.Sport != nil && *e.Sport != "" {
		p.Categories = append(p.Categories, xmltv.Text{Lang: "en", Value: *e.Sport})
	}
	for _, c := range e.Categories {
		p.Categories = append(p.Categories, xmltv.Text{Lang: "en", Value: c})
	}
	if e.Image != "" {
		p.Icon = &xmltv.Icon{Src: e.Image}
	}
	if e.Replay == nil || !*e.Replay {
		p.Live = xmltv.LiveFlag()
	}
	return p
}
