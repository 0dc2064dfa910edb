package lexical_test

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/CityPulse/PulseGuard/pkg/moderation/lexical"
)

func TestContainsBannedTerm(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		matches bool
	}{
		{"literal term", "well fuck that", true},
		{"uppercase", "FUCK", true},
		{"leetspeak", "sh1t happens", true},
		{"leet with symbols", "what an a$$hole", true},
		{"spaced out letters", "f u c k you", true},
		{"separators between letters", "fu-ck", true},
		{"multi-word phrase", "just kill yourself already", true},
		{"short token", "kys", true},
		{"clean traffic update", "Traffic is backed up on Main St near the school.", false},
		{"embedded in clean word", "I passed my class today", false},
		{"clean word with digits", "route 66 closed until 5pm", false},
		{"empty", "", false},
		{"whitespace only", "   \n\t", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.matches, lexical.ContainsBannedTerm(tt.text))
		})
	}
}

func TestFilter_Evaluate(t *testing.T) {
	filter := lexical.NewFilter(logrus.New())

	assert.Equal(t, "lexical", filter.Name())
	assert.False(t, filter.Blocking())

	t.Run("banned term blocks with user-safe reason", func(t *testing.T) {
		out := filter.Evaluate(context.Background(), "you are a dickhead")
		assert.True(t, out.Blocked)
		assert.NotEmpty(t, out.Reason)
		assert.NoError(t, out.Err)
	})

	t.Run("clean content passes", func(t *testing.T) {
		out := filter.Evaluate(context.Background(), "Farmers market moved to Oak Ave this weekend")
		assert.False(t, out.Blocked)
		assert.Empty(t, out.Reason)
	})
}
