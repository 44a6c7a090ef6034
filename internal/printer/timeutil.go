package printer

import (
	"fmt"
	"time"
)

// FormatDuration returns the duration as a clock, truncated to seconds.
// Examples: "00:00:05", "01:02:03", "26:00:00".
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}

	secs := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs/60)%60, secs%60)
}

// TimeAgo returns a human-readable relative time string from now.
// Examples: "5 seconds ago", "2 minutes ago", "3 hours ago".
func TimeAgo(now, t time.Time) string {
	diff := now.Sub(t)

	if diff < 0 {
		return "in the future"
	}

	unit := func(n int, name string) string {
		if n == 1 {
			return fmt.Sprintf("1 %s ago", name)
		}
		return fmt.Sprintf("%d %ss ago", n, name)
	}

	switch {
	case diff < time.Minute:
		return unit(int(diff.Seconds()), "second")
	case diff < time.Hour:
		return unit(int(diff.Minutes()), "minute")
	case diff < 24*time.Hour:
		return unit(int(diff.Hours()), "hour")
	default:
		return unit(int(diff.Hours()/24), "day")
	}
}

// FormatTimestamp returns a formatted timestamp on the time location.
// Format: "2006-01-02 15:04:05 MST".
func FormatTimestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05 MST")
}
