package scheduler

import (
	"strings"

	"github.com/leduong/EPlusTV/internal/models"
)

// LinearChannel is a network that always lives on the same channel number.
type LinearChannel struct {
	// ID is a stable slug used as the tvg-id in guides.
	ID   string
	Name string
	// Networks are the network names that map here, matched caselessly.
	Networks []string
	// NamePrefix matches entries whose name (or id) starts with it.
	NamePrefix string
}

// LinearChannels is an ordered list; position i maps to channel start+i.
type LinearChannels []LinearChannel

// DefaultLinearChannels is the fixed linear lineup. Order is part of the
// channel numbering and must only ever be appended to.
var DefaultLinearChannels = LinearChannels{
	{ID: "espn1", Name: "ESPN", Networks: []string{"espn", "espn1"}},
	{ID: "espn2", Name: "ESPN2", Networks: []string{"espn2"}},
	{ID: "espnu", Name: "ESPNU", Networks: []string{"espnu"}},
	{ID: "sec", Name: "SEC Network", Networks: []string{"sec network", "secn", "sec"}},
	{ID: "acc", Name: "ACC Network", Networks: []string{"acc network", "accn", "acc"}},
	{ID: "espnews", Name: "ESPNews", Networks: []string{"espnews"}},
	{ID: "espndeportes", Name: "ESPN Deportes", Networks: []string{"espn deportes", "espndeportes"}},
	{ID: "lhn", Name: "Longhorn Network", Networks: []string{"longhorn network", "lhn"}},
	{ID: "mlbn", Name: "MLB Network", Networks: []string{"mlb network", "mlbn"}, NamePrefix: "MLB Network - "},
	{ID: "sny", Name: "SNY", Networks: []string{"sny"}, NamePrefix: "SNY - "},
	{ID: "snla", Name: "Spectrum SportsNet LA", Networks: []string{"snla", "spectrum sportsnet la"}, NamePrefix: "SNLA - "},
	{ID: "biginning", Name: "Big Inning", Networks: []string{"big inning"}, NamePrefix: "Big Inning - "},
}

// Len returns the number of linear channels.
func (l LinearChannels) Len() int { return len(l) }

// Index returns the position of the channel an entry belongs to.
func (l LinearChannels) Index(e *models.Entry) (int, bool) {
	network := fold(strings.TrimSpace(e.Network))
	for i, ch := range l {
		for _, n := range ch.Networks {
			if network != "" && network == fold(n) {
				return i, true
			}
		}
		if ch.NamePrefix != "" && (strings.HasPrefix(e.Name, ch.NamePrefix) || strings.HasPrefix(e.ID, ch.NamePrefix)) {
			return i, true
		}
	}
	return 0, false
}

// Channel returns the fixed number for an entry given the range start.
func (l LinearChannels) Channel(e *models.Entry, start int) (int, bool) {
	i, ok := l.Index(e)
	if !ok {
		return 0, false
	}
	return start + i, true
}

// LinearPlacement is the result of Place.
type LinearPlacement struct {
	Assignments []Assignment
	// Overlapping lists entries that collide with an earlier entry on the
	// same linear channel, in start order.
	Overlapping []string
	// Unmapped counts entries with no known network.
	Unmapped int
}

// Place puts each entry on its fixed channel, taking entries in start order
// (id breaks ties). An entry that starts before the previous one on its
// channel has ended is skipped. tails seeds channels with the end of entries
// placed by earlier passes.
func (l LinearChannels) Place(entries []*models.Entry, start int, tails map[int]int64) LinearPlacement {
	lastEnd := make(map[int]int64, len(tails))
	for ch, end := range tails {
		lastEnd[ch] = end
	}

	var out LinearPlacement
	for _, e := range byStart(entries) {
		ch, ok := l.Channel(e, start)
		if !ok {
			out.Unmapped++
			continue
		}
		if end, seen := lastEnd[ch]; seen && e.Start < end {
			out.Overlapping = append(out.Overlapping, e.ID)
			continue
		}
		lastEnd[ch] = e.End
		out.Assignments = append(out.Assignments, Assignment{EntryID: e.ID, Channel: ch})
	}
	return out
}

// At returns the linear channel for a channel number, if any.
func (l LinearChannels) At(channel, start int) (LinearChannel, bool) {
	i := channel - start
	if i < 0 || i >= len(l) {
		return LinearChannel{}, false
	}
	return l[i], true
}
