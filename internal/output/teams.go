package output

import (
	"context"
	"io"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/leduong/EPlusTV/internal/models"
	"github.com/leduong/EPlusTV/internal/repository"
	"github.com/leduong/EPlusTV/pkg/m3u"
)

var matchupSep = regexp.MustCompile(`(?i)\s+(?:vs\.?|at|@)\s+`)

// Teams returns both sides of a matchup title such as "Mets at Phillies" or
// "Duke vs. UNC". Other titles have no teams.
func Teams(name string) []string {
	parts := matchupSep.Split(name, 2)
	if len(parts) != 2 {
		return nil
	}
	home := strings.TrimSpace(parts[0])
	away := strings.TrimSpace(parts[1])
	if home == "" || away == "" {
		return nil
	}
	return []string{home, away}
}

// TeamSlug folds a team name to the form used in /team/{slug}.m3u paths:
// lower case, with runs of other characters collapsed to one dash.
func TeamSlug(team string) string {
	folded := cases.Fold().String(team)
	var b strings.Builder
	dash := false
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			dash = false
			b.WriteRune(r)
			continue
		}
		dash = true
	}
	return b.String()
}

type teamItem struct {
	team  string
	entry *models.Entry
}

// WriteTeams writes one item per team per scheduled dynamic entry, grouped
// under the team name. It returns how many items were written.
func (r *Renderer) WriteTeams(ctx context.Context, w io.Writer, base string) (int, error) {
	items, err := r.teamItems(ctx, "")
	if err != nil {
		return 0, err
	}
	return r.writeTeamItems(w, base, items)
}

// WriteTeam writes the scheduled dynamic entries one team plays in. team
// matches by slug, so "new-york-mets" and "New York Mets" are the same.
func (r *Renderer) WriteTeam(ctx context.Context, w io.Writer, base, team string) (int, error) {
	items, err := r.teamItems(ctx, TeamSlug(team))
	if err != nil {
		return 0, err
	}
	return r.writeTeamItems(w, base, items)
}

func (r *Renderer) teamItems(ctx context.Context, slug string) ([]teamItem, error) {
	entries, err := r.entries.Scheduled(ctx, repository.ScheduledFilter{
		Linear: models.BoolPtr(false),
	})
	if err != nil {
		return nil, err
	}

	var items []teamItem
	for _, e := range entries {
		for _, team := range Teams(e.Name) {
			if slug != "" && TeamSlug(team) != slug {
				continue
			}
			items = append(items, teamItem{team: team, entry: e})
		}
	}
	lower := cases.Lower(language.Und)
	sort.SliceStable(items, func(i, j int) bool {
		return lower.String(items[i].team) < lower.String(items[j].team)
	})
	return items, nil
}

func (r *Renderer) writeTeamItems(w io.Writer, base string, items []teamItem) (int, error) {
	pw := m3u.NewWriter(w)
	for _, it := range items {
		if err := pw.WriteEntry(&m3u.Entry{
			GroupTitle: it.team,
			Title:      r.IPTVName(it.entry),
			URL:        ChannelURL(base, *it.entry.Channel),
		}); err != nil {
			return pw.Count(), err
		}
	}
	return pw.Count(), pw.Flush()
}
