package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWebSourceStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to WebSourceStatus
		want     bool
	}{
		{WebSourcePending, WebSourceScraping, true},
		{WebSourcePending, WebSourceFailed, true},
		{WebSourcePending, WebSourceCompleted, false},
		{WebSourceScraping, WebSourceCompleted, true},
		{WebSourceScraping, WebSourceFailed, true},
		{WebSourceScraping, WebSourcePending, false},
		{WebSourceCompleted, WebSourcePending, true},
		{WebSourceFailed, WebSourcePending, true},
		{WebSourceCompleted, WebSourceScraping, false},
		{WebSourceStatus("bogus"), WebSourcePending, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestWebSourceStatus_IsActive(t *testing.T) {
	assert.True(t, WebSourcePending.IsActive())
	assert.True(t, WebSourceScraping.IsActive())
	assert.False(t, WebSourceCompleted.IsActive())
	assert.False(t, WebSourceFailed.IsActive())
	assert.True(t, WebSourceFailed.IsTerminal())
	assert.False(t, WebSourcePending.IsTerminal())
}
