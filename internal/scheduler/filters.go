package scheduler

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/leduong/EPlusTV/internal/models"
)

// Filters exclude entries before allocation. Category rules match any of an
// entry's categories; title rules match its name. Matching is a caseless
// substring test.
type Filters struct {
	categories []string
	titles     []string
}

// fold returns the caseless form of s. Casers carry state, so one is built
// per call.
func fold(s string) string {
	return cases.Fold().String(s)
}

// NewFilters builds filters from raw rules. Blank rules are ignored.
func NewFilters(categories, titles []string) Filters {
	return Filters{
		categories: normalize(categories),
		titles:     normalize(titles),
	}
}

func normalize(rules []string) []string {
	out := make([]string, 0, len(rules))
	for _, r := range rules {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, fold(r))
	}
	return out
}

// Empty reports whether no rule is configured.
func (f Filters) Empty() bool {
	return len(f.categories) == 0 && len(f.titles) == 0
}

// Excludes reports whether e matches any rule.
func (f Filters) Excludes(e *models.Entry) bool {
	if f.Empty() {
		return false
	}
	name := fold(e.Name)
	for _, rule := range f.titles {
		if strings.Contains(name, rule) {
			return true
		}
	}
	for _, c := range e.Categories {
		c = fold(c)
		for _, rule := range f.categories {
			if strings.Contains(c, rule) {
				return true
			}
		}
	}
	return false
}

// Apply splits entries into kept and excluded.
func (f Filters) Apply(entries []*models.Entry) (kept []*models.Entry, excluded int) {
	if f.Empty() {
		return entries, 0
	}
	kept = make([]*models.Entry, 0, len(entries))
	for _, e := range entries {
		if f.Excludes(e) {
			excluded++
			continue
		}
		kept = append(kept, e)
	}
	return kept, excluded
}
