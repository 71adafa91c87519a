package scheduler

import (
	"sort"

	"github.com/leduong/EPlusTV/internal/models"
)

// Pool is the dynamic channel range [Start, Start+Size).
type Pool struct {
	Start int
	Size  int
}

// End returns the first channel number past the pool.
func (p Pool) End() int {
	return p.Start + p.Size
}

// Contains reports whether ch is in the pool.
func (p Pool) Contains(ch int) bool {
	return ch >= p.Start && ch < p.End()
}

// Assignment places one entry on one channel.
type Assignment struct {
	EntryID string `json:"entry_id"`
	Channel int    `json:"channel"`
}

// Allocation is the result of one allocator run.
type Allocation struct {
	// Assignments are in allocation order (start, then id).
	Assignments []Assignment
	// Dropped lists entries that found no free channel, in allocation order.
	Dropped []string
	// ChannelsUsed counts distinct pool channels holding an entry after the
	// run, seeded channels included.
	ChannelsUsed int
}

// Map returns the assignments keyed by entry id.
func (a Allocation) Map() map[string]int {
	m := make(map[string]int, len(a.Assignments))
	for _, as := range a.Assignments {
		m[as.EntryID] = as.Channel
	}
	return m
}

// Allocate assigns channels from pool by greedy interval coloring. Entries
// are taken in start order (id breaks ties). Each goes to the lowest-numbered
// occupied channel that is free by its start; failing that, to the
// lowest-numbered unoccupied channel; failing that, it is dropped.
//
// tails seeds channels that already carry entries with the end of their last
// entry, so an incremental pass never overlaps earlier assignments. Tails
// outside the pool are ignored.
func Allocate(entries []*models.Entry, pool Pool, tails map[int]int64) Allocation {
	sorted := byStart(entries)

	size := pool.Size
	if size < 0 {
		size = 0
	}
	// lastEnd[i] is the end of the last entry on pool.Start+i; used marks occupancy
	lastEnd := make([]int64, size)
	used := make([]bool, size)
	for ch, end := range tails {
		if pool.Contains(ch) {
			i := ch - pool.Start
			used[i] = true
			if end > lastEnd[i] {
				lastEnd[i] = end
			}
		}
	}

	var out Allocation
	for _, e := range sorted {
		slot := -1
		for i := 0; i < size; i++ {
			if used[i] && lastEnd[i] <= e.Start {
				slot = i
				break
			}
		}
		if slot < 0 {
			for i := 0; i < size; i++ {
				if !used[i] {
					slot = i
					break
				}
			}
		}
		if slot < 0 {
			out.Dropped = append(out.Dropped, e.ID)
			continue
		}

		used[slot] = true
		lastEnd[slot] = e.End
		out.Assignments = append(out.Assignments, Assignment{EntryID: e.ID, Channel: pool.Start + slot})
	}

	for _, u := range used {
		if u {
			out.ChannelsUsed++
		}
	}
	return out
}

// byStart returns a copy of entries ordered by start, then id.
func byStart(entries []*models.Entry) []*models.Entry {
	sorted := make([]*models.Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted
}
