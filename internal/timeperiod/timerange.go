// Package timeperiod implements time-ranges, date-range exceptions and the
// time-period coverage evaluator.
package timeperiod

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SecondsPerDay is the upper bound of a time-range.
const SecondsPerDay = 86400

// TimeRange is a [Start, End) window in seconds since midnight.
type TimeRange struct {
	Start int
	End   int
}

// NewTimeRange builds a range from hour/minute pairs. Both bounds must
// satisfy 0 <= h*3600+m*60 <= 86400 and start must not exceed end.
func NewTimeRange(startHour, startMin, endHour, endMin int) (TimeRange, error) {
	start, err := secondsOf(startHour, startMin)
	if err != nil {
		return TimeRange{}, err
	}
	end, err := secondsOf(endHour, endMin)
	if err != nil {
		return TimeRange{}, err
	}
	if start > end {
		return TimeRange{}, fmt.Errorf("time range %02d:%02d-%02d:%02d ends before it starts",
			startHour, startMin, endHour, endMin)
	}
	return TimeRange{Start: start, End: end}, nil
}

func secondsOf(hour, min int) (int, error) {
	if hour < 0 || min < 0 || min > 59 {
		return 0, fmt.Errorf("invalid time %02d:%02d", hour, min)
	}
	s := hour*3600 + min*60
	if s > SecondsPerDay {
		return 0, fmt.Errorf("time %02d:%02d is past the end of the day", hour, min)
	}
	return s, nil
}

// Contains reports whether sec (seconds since midnight) is in [Start, End).
func (r TimeRange) Contains(sec int) bool {
	return sec >= r.Start && sec < r.End
}

func (r TimeRange) String() string {
	return fmt.Sprintf("%02d:%02d-%02d:%02d", r.Start/3600, (r.Start%3600)/60, r.End/3600, (r.End%3600)/60)
}

// ParseTimeRanges parses "HH:MM-HH:MM,HH:MM-HH:MM,..." into validated ranges.
func ParseTimeRanges(s string) ([]TimeRange, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var ranges []TimeRange
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		tr, err := parseOneRange(part)
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, tr)
	}
	return ranges, nil
}

func parseOneRange(s string) (TimeRange, error) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return TimeRange{}, fmt.Errorf("invalid time range: %s", s)
	}
	sh, sm, err := parseHHMM(parts[0])
	if err != nil {
		return TimeRange{}, err
	}
	eh, em, err := parseHHMM(parts[1])
	if err != nil {
		return TimeRange{}, err
	}
	return NewTimeRange(sh, sm, eh, em)
}

func parseHHMM(s string) (int, int, error) {
	s = strings.TrimSpace(s)
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time: %s", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid hour: %s", parts[0])
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid minute: %s", parts[1])
	}
	return h, m, nil
}

func secondOfDay(t time.Time) int {
	return t.Hour()*3600 + t.Minute()*60 + t.Second()
}

func inRanges(ranges []TimeRange, sec int) bool {
	for _, r := range ranges {
		if r.Contains(sec) {
			return true
		}
	}
	return false
}
