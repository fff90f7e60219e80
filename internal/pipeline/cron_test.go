package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedule_Next(t *testing.T) {
	after := time.Date(2026, 10, 16, 14, 7, 30, 0, time.UTC) // a Friday

	tests := []struct {
		expr string
		want time.Time
	}{
		{"* * * * *", time.Date(2026, 10, 16, 14, 8, 0, 0, time.UTC)},
		{"0 3 * * *", time.Date(2026, 10, 17, 3, 0, 0, 0, time.UTC)},
		{"*/15 * * * *", time.Date(2026, 10, 16, 14, 15, 0, 0, time.UTC)},
		{"0 9-17 * * *", time.Date(2026, 10, 16, 15, 0, 0, 0, time.UTC)},
		{"30 8 * * 1", time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC)},
		{"0 0 1 * *", time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)},
		{"5,50 14 * * *", time.Date(2026, 10, 16, 14, 50, 0, 0, time.UTC)},
		{"0 0 * * 7", time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)},
		{"@daily", time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)},
		{"@monthly", time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)},
		// Both day fields restricted: the 20th or any Monday, whichever is first.
		{"0 0 20 * 1", time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)},
		{"0 12 29 2 *", time.Date(2028, 2, 29, 12, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			s, err := parseSchedule(tt.expr)
			require.NoError(t, err)
			got, ok := s.next(after)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseSchedule_Rejects(t *testing.T) {
	for _, expr := range []string{
		"",
		"* * * *",
		"60 * * * *",
		"* 24 * * *",
		"* * 0 * *",
		"* * * * 8",
		"*/0 * * * *",
		"5-1 * * * *",
		"a * * * *",
		"@yearly-ish",
	} {
		_, err := parseSchedule(expr)
		assert.Error(t, err, expr)
	}
}

func TestSchedule_NeverFires(t *testing.T) {
	s, err := parseSchedule("0 0 31 2 *")
	require.NoError(t, err)
	_, ok := s.next(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.False(t, ok)
}
