package services

import "time"

// Clock supplies the current time. Services default to the system clock;
// tests swap in a fixed one.
type Clock func() time.Time

// SystemClock returns the current time in UTC.
func SystemClock() time.Time {
	return time.Now().UTC()
}

// windowStart returns the inclusive lower bound of a trailing window ending at now.
func windowStart(now time.Time, window time.Duration) time.Time {
	return now.Add(-window)
}
