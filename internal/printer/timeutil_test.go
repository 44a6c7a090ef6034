package printer_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/slok/clockin/internal/printer"
)

func TestTimeAgo(t *testing.T) {
	tests := map[string]struct {
		time     time.Time
		expected string
	}{
		"1 second ago": {
			time:     now.Add(-1 * time.Second),
			expected: "1 second ago",
		},
		"30 seconds ago": {
			time:     now.Add(-30 * time.Second),
			expected: "30 seconds ago",
		},
		"45 minutes ago": {
			time:     now.Add(-45 * time.Minute),
			expected: "45 minutes ago",
		},
		"1 hour ago": {
			time:     now.Add(-1 * time.Hour),
			expected: "1 hour ago",
		},
		"7 days ago": {
			time:     now.Add(-7 * 24 * time.Hour),
			expected: "7 days ago",
		},
		"future time": {
			time:     now.Add(5 * time.Minute),
			expected: "in the future",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.expected, printer.TimeAgo(now, test.time))
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tests := map[string]struct {
		d        time.Duration
		expected string
	}{
		"Zero":                    {d: 0, expected: "00:00:00"},
		"Negative is zero":        {d: -time.Minute, expected: "00:00:00"},
		"Subsecond is truncated":  {d: 5*time.Second + 900*time.Millisecond, expected: "00:00:05"},
		"Hours, minutes, seconds": {d: time.Hour + 2*time.Minute + 3*time.Second, expected: "01:02:03"},
		"More than a day":         {d: 26 * time.Hour, expected: "26:00:00"},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.expected, printer.FormatDuration(test.d))
		})
	}
}

func TestFormatTimestamp(t *testing.T) {
	assert.Equal(t, "2026-10-15 10:00:00 UTC", printer.FormatTimestamp(now))
}
