package throttle

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// HeaderRetryAfter is the standard backoff hint header.
const HeaderRetryAfter = "Retry-After"

// DefaultDetector treats 429 Too Many Requests as throttling, and 503
// Service Unavailable when it carries a Retry-After header, which is how
// SharePoint Online and Microsoft Graph signal backoff.
func DefaultDetector(resp *http.Response) (time.Duration, bool) {
	value := resp.Header.Get(HeaderRetryAfter)

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
	case http.StatusServiceUnavailable:
		if value == "" {
			return 0, false
		}
	default:
		return 0, false
	}

	hint, _ := ParseRetryAfter(value, time.Now())

	return hint, true
}

// StatusDetector builds a Detector for hosts with their own convention:
// any of statuses counts as throttling, and the hint is read from header
// using the Retry-After formats.
func StatusDetector(header string, statuses ...int) Detector {
	return func(resp *http.Response) (time.Duration, bool) {
		for _, status := range statuses {
			if resp.StatusCode == status {
				hint, _ := ParseRetryAfter(resp.Header.Get(header), time.Now())
				return hint, true
			}
		}

		return 0, false
	}
}

// ParseRetryAfter parses a Retry-After value given either as delta-seconds
// or as an HTTP-date relative to now. Dates in the past yield zero.
func ParseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}

	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}

	at, err := http.ParseTime(value)
	if err != nil {
		return 0, false
	}

	return max(at.Sub(now), 0), true
}
