package output

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTeams(t *testing.T) {
	tests := []struct {
		name string
		want []string
	}{
		{"Duke vs UNC", []string{"Duke", "UNC"}},
		{"Duke vs. UNC", []string{"Duke", "UNC"}},
		{"Mets at Phillies", []string{"Mets", "Phillies"}},
		{"Lakers @ Celtics", []string{"Lakers", "Celtics"}},
		{"Atlanta VS Boston", []string{"Atlanta", "Boston"}},
		{"SportsCenter", nil},
		{"Road to the Final", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Teams(tt.name))
		})
	}
}

func TestTeamSlug(t *testing.T) {
	assert.Equal(t, "new-york-mets", TeamSlug("New York Mets"))
	assert.Equal(t, "new-york-mets", TeamSlug("new-york-mets"))
	assert.Equal(t, "texas-a-m", TeamSlug("Texas A&M"))
	assert.Equal(t, "unc", TeamSlug("  UNC "))
}

func TestRenderer_WriteTeams(t *testing.T) {
	r, repo := newRenderer(t)
	seed(t, repo)

	var buf bytes.Buffer
	n, err := r.WriteTeams(context.Background(), &buf, "http://tuner.local")
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "#EXTM3U\n"))
	assert.Contains(t, out, `group-title="Duke"`)
	assert.Contains(t, out, `group-title="UNC"`)
	assert.Contains(t, out, `group-title="Mets"`)
	assert.Contains(t, out, `group-title="Phillies"`)
	assert.NotContains(t, out, "SportsCenter")
	assert.Less(t, strings.Index(out, `group-title="Duke"`), strings.Index(out, `group-title="Mets"`))
	assert.Less(t, strings.Index(out, `group-title="Phillies"`), strings.Index(out, `group-title="UNC"`))
}

func TestRenderer_WriteTeam(t *testing.T) {
	r, repo := newRenderer(t)
	seed(t, repo)
	ctx := context.Background()

	var buf bytes.Buffer
	n, err := r.WriteTeam(ctx, &buf, "http://tuner.local", "phillies")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, buf.String(), "Mets at Phillies")
	assert.Contains(t, buf.String(), "http://tuner.local/channels/2.m3u8")
	assert.NotContains(t, buf.String(), "Duke")

	buf.Reset()
	n, err = r.WriteTeam(ctx, &buf, "http://tuner.local", "Nobody")
	require.NoError(t, err)
	assert.Zero(t, n)
}
