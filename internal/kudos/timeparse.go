package kudos

import (
	"strings"
	"time"

	"go.uber.org/zap"
)

// MaxTime is returned for strings that cannot be parsed. It sorts after every
// real date, so malformed entries land last and are never "in the past".
var MaxTime = time.Date(9999, time.December, 31, 23, 59, 59, 999999999, time.UTC)

var offsetLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04Z07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04Z07:00",
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTime reads an ISO-8601 timestamp. Input without an offset is taken to
// be UTC. It never fails: unparseable input yields MaxTime.
func ParseTime(value string) time.Time {
	t, ok := parseTime(value)
	if !ok {
		return MaxTime
	}
	return t
}

// ParseTimeLogged is ParseTime with a warning on failure.
func ParseTimeLogged(log *zap.Logger, value string) time.Time {
	t, ok := parseTime(value)
	if !ok {
		if log != nil {
			log.Warn("could not parse datetime", zap.String("value", value))
		}
		return MaxTime
	}
	return t
}

func parseTime(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range offsetLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
