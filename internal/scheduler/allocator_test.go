package scheduler

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leduong/EPlusTV/internal/models"
)

var base = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

func entry(id string, startMin, endMin int) *models.Entry {
	return &models.Entry{
		ID:    id,
		From:  "espn",
		Name:  "Event " + id,
		Start: base.Add(time.Duration(startMin) * time.Minute).UnixMilli(),
		End:   base.Add(time.Duration(endMin) * time.Minute).UnixMilli(),
	}
}

// assertNoOverlap fails if two entries placed on one channel intersect.
func assertNoOverlap(t *testing.T, entries []*models.Entry, assigned map[string]int) {
	t.Helper()
	byChannel := make(map[int][]*models.Entry)
	for _, e := range entries {
		if ch, ok := assigned[e.ID]; ok {
			byChannel[ch] = append(byChannel[ch], e)
		}
	}
	for ch, list := range byChannel {
		for i := range list {
			for j := i + 1; j < len(list); j++ {
				assert.False(t, list[i].Overlaps(list[j]),
					"channel %d: %s overlaps %s", ch, list[i].ID, list[j].ID)
			}
		}
	}
}

// maxDepth is the largest number of entries live at one instant.
func maxDepth(entries []*models.Entry) int {
	type edge struct {
		at    int64
		delta int
	}
	edges := make([]edge, 0, 2*len(entries))
	for _, e := range entries {
		edges = append(edges, edge{e.Start, 1}, edge{e.End, -1})
	}
	// ends sort before starts at the same instant: windows are half-open
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].at != edges[j].at {
			return edges[i].at < edges[j].at
		}
		return edges[i].delta < edges[j].delta
	})
	depth, best := 0, 0
	for _, e := range edges {
		depth += e.delta
		if depth > best {
			best = depth
		}
	}
	return best
}

func TestAllocate_Basic(t *testing.T) {
	// A 1:00-2:00, B 1:30-2:30, C 2:00-3:00
	a := entry("A", 60, 120)
	b := entry("B", 90, 150)
	c := entry("C", 120, 180)

	alloc := Allocate([]*models.Entry{c, b, a}, Pool{Start: 1, Size: 10}, nil)
	got := alloc.Map()

	assert.Equal(t, 1, got["A"])
	assert.Equal(t, 2, got["B"])
	assert.Equal(t, 1, got["C"], "C starts exactly when A ends")
	assert.Empty(t, alloc.Dropped)
	assert.Equal(t, 2, alloc.ChannelsUsed)
}

func TestAllocate_PoolExhausted(t *testing.T) {
	entries := []*models.Entry{
		entry("a", 0, 60),
		entry("b", 0, 60),
		entry("c", 0, 60),
		entry("d", 60, 120),
	}

	alloc := Allocate(entries, Pool{Start: 100, Size: 2}, nil)
	got := alloc.Map()

	assert.Equal(t, 100, got["a"])
	assert.Equal(t, 101, got["b"])
	assert.Equal(t, []string{"c"}, alloc.Dropped)
	assert.Equal(t, 100, got["d"])
	assertNoOverlap(t, entries, got)
}

func TestAllocate_DeterministicTieBreak(t *testing.T) {
	x := entry("x", 0, 60)
	y := entry("y", 0, 60)
	z := entry("z", 0, 60)

	first := Allocate([]*models.Entry{z, y, x}, Pool{Start: 1, Size: 2}, nil)
	second := Allocate([]*models.Entry{y, x, z}, Pool{Start: 1, Size: 2}, nil)

	assert.Equal(t, first.Assignments, second.Assignments)
	assert.Equal(t, []string{"z"}, first.Dropped)
	assert.Equal(t, 1, first.Map()["x"])
}

func TestAllocate_SeededTails(t *testing.T) {
	t.Run("busy channel is skipped", func(t *testing.T) {
		tails := map[int]int64{1: entry("", 0, 90).End}
		alloc := Allocate([]*models.Entry{entry("n", 60, 120)}, Pool{Start: 1, Size: 3}, tails)
		assert.Equal(t, 2, alloc.Map()["n"])
		assert.Equal(t, 2, alloc.ChannelsUsed)
	})

	t.Run("freed channel is reused before opening a new one", func(t *testing.T) {
		tails := map[int]int64{3: entry("", 0, 30).End}
		alloc := Allocate([]*models.Entry{entry("n", 60, 120)}, Pool{Start: 1, Size: 3}, tails)
		assert.Equal(t, 3, alloc.Map()["n"])
	})

	t.Run("tails outside the pool are ignored", func(t *testing.T) {
		tails := map[int]int64{50: entry("", 0, 600).End}
		alloc := Allocate([]*models.Entry{entry("n", 60, 120)}, Pool{Start: 1, Size: 3}, tails)
		assert.Equal(t, 1, alloc.Map()["n"])
		assert.Equal(t, 1, alloc.ChannelsUsed)
	})
}

func TestAllocate_Empty(t *testing.T) {
	alloc := Allocate(nil, Pool{Start: 1, Size: 5}, nil)
	assert.Empty(t, alloc.Assignments)
	assert.Empty(t, alloc.Dropped)
	assert.Zero(t, alloc.ChannelsUsed)

	alloc = Allocate([]*models.Entry{entry("a", 0, 10)}, Pool{Start: 1, Size: 0}, nil)
	assert.Equal(t, []string{"a"}, alloc.Dropped)
}

func TestAllocate_Randomized(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 50; round++ {
		n := 5 + rng.Intn(60)
		entries := make([]*models.Entry, n)
		for i := range entries {
			start := rng.Intn(24 * 60)
			entries[i] = entry(fmt.Sprintf("e%03d", i), start, start+15+rng.Intn(240))
		}

		t.Run(fmt.Sprintf("unbounded/%d", round), func(t *testing.T) {
			alloc := Allocate(entries, Pool{Start: 1, Size: n}, nil)
			require.Empty(t, alloc.Dropped)
			assertNoOverlap(t, entries, alloc.Map())
			assert.Equal(t, maxDepth(entries), alloc.ChannelsUsed, "greedy coloring is optimal")
		})

		t.Run(fmt.Sprintf("bounded/%d", round), func(t *testing.T) {
			size := 1 + rng.Intn(5)
			alloc := Allocate(entries, Pool{Start: 20, Size: size}, nil)
			got := alloc.Map()
			assertNoOverlap(t, entries, got)
			assert.Equal(t, n, len(got)+len(alloc.Dropped))
			for _, ch := range got {
				assert.True(t, ch >= 20 && ch < 20+size)
			}
		})
	}
}
