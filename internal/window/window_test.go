package window

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelect_SevenDays(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)

	w, err := Select(now, 7)
	require.NoError(t, err)

	assert.Equal(t, int64(1_699_395_200_000), w.Start)
	assert.Equal(t, int64(1_700_000_000_000), w.End)
}

func TestSelect_HalfOpenBoundaries(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	w, err := Select(now, 7)
	require.NoError(t, err)

	tests := []struct {
		name string
		ts   int64
		want bool
	}{
		{"start is included", 1_699_395_200_000, true},
		{"end is excluded", 1_700_000_000_000, false},
		{"just before end", 1_699_999_999_999, true},
		{"just before start", 1_699_395_199_999, false},
		{"after end", 1_700_000_000_001, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, w.Contains(tt.ts))
		})
	}
}

func TestSelect_InvalidDaysBack(t *testing.T) {
	for _, days := range []int{0, -1} {
		_, err := Select(time.Now(), days)
		if !errors.Is(err, ErrInvalidDaysBack) {
			t.Errorf("Select(%d): expected ErrInvalidDaysBack, got %v", days, err)
		}
	}
}

func TestSelect_OneDay(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	w, err := Select(now, 1)
	require.NoError(t, err)

	assert.Equal(t, MillisPerDay, w.End-w.Start)
	assert.True(t, w.StartTime().Equal(now.Add(-24*time.Hour)))
	assert.True(t, w.EndTime().Equal(now))
}

func TestWindow_IsZero(t *testing.T) {
	assert.True(t, Window{}.IsZero())
	assert.False(t, Window{Start: 1, End: 2}.IsZero())
}
