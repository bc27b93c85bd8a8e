package normalize

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"PricePull/pkg/util"
)

// DateShape names the encoding a raw feed date was recognised as.
type DateShape int

const (
	ShapeUnknown DateShape = iota
	// ShapeMonthDay is MM/DD with the year in a separate field, or YYYY/MM/DD.
	ShapeMonthDay
	// ShapeCompact is YYYYMMDD.
	ShapeCompact
	// ShapeISOPrefix is anything starting with YYYY-MM-DD.
	ShapeISOPrefix
)

func (s DateShape) String() string {
	switch s {
	case ShapeMonthDay:
		return "month_day"
	case ShapeCompact:
		return "compact"
	case ShapeISOPrefix:
		return "iso_prefix"
	}
	return "unknown"
}

// ParseDate recognises the three date shapes the feed emits, in a fixed order.
// The year of an MM/DD date always comes from year, never from the clock.
// The result is a real calendar date at midnight UTC.
func ParseDate(raw, year string) (time.Time, DateShape, bool) {
	raw = strings.TrimSpace(raw)
	year = strings.TrimSpace(year)
	if raw == "" {
		return time.Time{}, ShapeUnknown, false
	}

	if strings.Contains(raw, "/") {
		d, ok := parseSlashed(raw, year)
		return d, ShapeMonthDay, ok
	}
	if len(raw) == 8 && util.IsDigits(raw) {
		d, ok := util.ParseDate(raw[0:4] + "-" + raw[4:6] + "-" + raw[6:8])
		return d, ShapeCompact, ok
	}
	if len(raw) >= 10 && strings.Contains(raw, "-") && util.IsDigits(raw[:4]) {
		d, ok := util.ParseDate(raw[:10])
		return d, ShapeISOPrefix, ok
	}
	return time.Time{}, ShapeUnknown, false
}

// NormalizeDate is ParseDate rendered as YYYY-MM-DD.
func NormalizeDate(raw, year string) (string, bool) {
	d, _, ok := ParseDate(raw, year)
	if !ok {
		return "", false
	}
	return util.FormatDate(d), true
}

func parseSlashed(raw, year string) (time.Time, bool) {
	parts := strings.Split(raw, "/")
	var y, m, d string
	switch {
	case len(parts) == 2:
		y, m, d = year, parts[0], parts[1]
	case len(parts) == 3 && len(strings.TrimSpace(parts[0])) == 4:
		y, m, d = parts[0], parts[1], parts[2]
	default:
		return time.Time{}, false
	}
	y, m, d = strings.TrimSpace(y), strings.TrimSpace(m), strings.TrimSpace(d)
	if len(y) != 4 || !util.IsDigits(y) {
		return time.Time{}, false
	}
	month, ok := smallInt(m)
	if !ok {
		return time.Time{}, false
	}
	day, ok := smallInt(d)
	if !ok {
		return time.Time{}, false
	}
	return util.ParseDate(fmt.Sprintf("%s-%02d-%02d", y, month, day))
}

func smallInt(s string) (int, bool) {
	if len(s) == 0 || len(s) > 2 || !util.IsDigits(s) {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	return n, err == nil
}
