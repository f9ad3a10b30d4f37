package rag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/Cadence/internal/core"
	"github.com/markdave123-py/Cadence/internal/models"
)

func TestParseIdeas(t *testing.T) {
	want := []models.Idea{
		{Title: "Spring menu teaser", ScheduledAt: "2026-04-02", Status: "draft"},
		{Title: "Meet the chef", ScheduledAt: "2026-04-09", Status: "draft"},
	}
	array := `[{"title":"Spring menu teaser","scheduled_at":"2026-04-02","status":"draft"},` +
		`{"title":"Meet the chef","scheduled_at":"2026-04-09","status":"draft"}]`

	tests := []struct {
		name string
		raw  string
	}{
		{name: "clean array", raw: array},
		{name: "surrounding whitespace", raw: "\n  " + array + "\n"},
		{name: "prose wrapped", raw: "Here you go:\n" + array + "\nThanks"},
		{name: "code fence", raw: "```json\n" + array + "\n```"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseIdeas(tc.raw)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestParseIdeasEmptyArray(t *testing.T) {
	got, err := ParseIdeas("Nothing fits this month: []")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)
}

func TestParseIdeasMalformed(t *testing.T) {
	for _, raw := range []string{
		"I could not come up with anything.",
		"",
		"] backwards [",
		"[{\"title\": \"unterminated\"",
		"Ideas: [not json at all]",
		`{"title":"an object, not an array"}`,
	} {
		_, err := ParseIdeas(raw)
		assert.ErrorIs(t, err, core.ErrMalformedModelOutput, raw)
	}
}
