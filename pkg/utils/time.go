package utils

import "time"

// FormatDuration formats a duration in a human-readable way
func FormatDuration(d time.Duration) string {
	if d < time.Microsecond {
		return d.String()
	}
	if d < time.Millisecond {
		return d.Round(time.Microsecond).String()
	}
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	if d < time.Minute {
		return d.Round(10 * time.Millisecond).String()
	}
	return d.Round(time.Second).String()
}

// Remaining returns the time left until deadline, never negative. A zero
// deadline means no deadline and yields the maximum duration.
func Remaining(deadline time.Time, now time.Time) time.Duration {
	if deadline.IsZero() {
		return time.Duration(1<<63 - 1)
	}
	if left := deadline.Sub(now); left > 0 {
		return left
	}
	return 0
}
