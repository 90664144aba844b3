package utils

import (
	"fmt"
	"strings"
	"time"
)

const (
	releaseLayout = "2006-01-02T15:04:05.999999999"

	// DisplayLayout - day/month/year, hour:minute
	DisplayLayout = "02/01/2006, 15:04"
)

// ParseReleaseTimestamp - parse an ISO-8601 timestamp with a trailing Z marker into a UTC
// time. Fractional seconds are optional.
func ParseReleaseTimestamp(s string) (time.Time, error) {
	trimmed := strings.TrimSuffix(strings.TrimSpace(s), "Z")
	t, err := time.ParseInLocation(releaseLayout, trimmed, time.UTC)
	if nil != err {
		return time.Time{}, fmt.Errorf("parse release timestamp %q: %w", s, err)
	}
	return t, nil
}

// FormatRelease - display form of a release timestamp
func FormatRelease(t time.Time) string {
	return t.UTC().Format(DisplayLayout)
}

// ReleaseBanner - sentence shown next to the charts
func ReleaseBanner(t time.Time) string {
	return fmt.Sprintf("Latest PHE data from %s.", FormatRelease(t))
}
