package cmd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateRange(t *testing.T) {
	now := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

	testCases := []struct {
		name          string
		days          int
		month, year   int
		expectedStart time.Time
		expectedEnd   time.Time
		expectErr     bool
	}{
		{
			name:          "days window",
			days:          7,
			expectedStart: now.AddDate(0, 0, -7),
			expectedEnd:   now,
		},
		{
			name:          "days takes precedence over month",
			days:          30,
			month:         1,
			year:          2023,
			expectedStart: now.AddDate(0, 0, -30),
			expectedEnd:   now,
		},
		{
			name:          "explicit month and year",
			month:         1,
			year:          2023,
			expectedStart: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
			expectedEnd:   time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:          "defaults to the current month",
			expectedStart: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			expectedEnd:   time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:          "december rolls into the next year",
			month:         12,
			year:          2023,
			expectedStart: time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC),
			expectedEnd:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "invalid month",
			month:     13,
			expectErr: true,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			start, end, err := dateRange(tc.days, tc.month, tc.year, now)
			if tc.expectErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expectedStart, start)
			assert.Equal(t, tc.expectedEnd, end)
		})
	}
}
