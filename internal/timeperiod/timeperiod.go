package timeperiod

import (
	"fmt"
	"strings"
	"time"
)

// Timeperiod is a named availability schedule: per-weekday default ranges,
// date-range exceptions that override them, and excluded periods.
type Timeperiod struct {
	Name       string
	Alias      string
	Days       [7][]TimeRange // sunday=0 through saturday=6
	Exceptions []DateRange
	Exclusions []*Timeperiod
}

// New returns an empty period. Nothing is covered until ranges are added.
func New(name string) *Timeperiod {
	return &Timeperiod{Name: name, Alias: name}
}

// SetDay parses and sets the default ranges for a weekday.
func (tp *Timeperiod) SetDay(day time.Weekday, ranges string) error {
	rs, err := ParseTimeRanges(ranges)
	if err != nil {
		return fmt.Errorf("timeperiod %s %s: %w", tp.Name, strings.ToLower(day.String()), err)
	}
	tp.Days[day] = rs
	return nil
}

// AddException parses a date-range directive and appends it.
func (tp *Timeperiod) AddException(directive string) error {
	dr, err := ParseDateRange(directive)
	if err != nil {
		return fmt.Errorf("timeperiod %s: %w", tp.Name, err)
	}
	tp.Exceptions = append(tp.Exceptions, dr)
	return nil
}

// IsCovered reports whether t falls inside the period. A nil period covers
// every instant. Evaluation never mutates the period.
func IsCovered(tp *Timeperiod, t time.Time) bool {
	if tp == nil {
		return true
	}
	return tp.covered(t, nil)
}

// IsCovered is the method form of the package-level IsCovered.
func (tp *Timeperiod) IsCovered(t time.Time) bool {
	return IsCovered(tp, t)
}

func (tp *Timeperiod) covered(t time.Time, visiting map[*Timeperiod]bool) bool {
	if len(tp.Exclusions) > 0 {
		if visiting == nil {
			visiting = make(map[*Timeperiod]bool)
		}
		visiting[tp] = true
		for _, ex := range tp.Exclusions {
			if ex == nil || visiting[ex] {
				continue
			}
			if ex.covered(t, visiting) {
				delete(visiting, tp)
				return false
			}
		}
		delete(visiting, tp)
	}

	sec := secondOfDay(t)

	// The first exception kind with a date match decides the day.
	for kind := DateRangeKind(0); kind < numDateRangeKinds; kind++ {
		matched := false
		for i := range tp.Exceptions {
			dr := &tp.Exceptions[i]
			if dr.Kind != kind || !dr.MatchesDate(t) {
				continue
			}
			matched = true
			if inRanges(dr.Ranges, sec) {
				return true
			}
		}
		if matched {
			return false
		}
	}

	return inRanges(tp.Days[t.Weekday()], sec)
}

// NextValidTime returns the first instant >= t covered by the period,
// searching minute by minute for up to 366 days. If nothing is covered in
// that horizon t is returned unchanged.
func NextValidTime(tp *Timeperiod, t time.Time) time.Time {
	if IsCovered(tp, t) {
		return t
	}
	maxSearch := t.Add(366 * 24 * time.Hour)
	candidate := t.Truncate(time.Minute).Add(time.Minute)
	for candidate.Before(maxSearch) {
		if tp.covered(candidate, nil) {
			return candidate
		}
		candidate = candidate.Add(time.Minute)
	}
	return t
}

// Always returns a period covering every instant of every day.
func Always(name string) *Timeperiod {
	tp := New(name)
	for d := range tp.Days {
		tp.Days[d] = []TimeRange{{Start: 0, End: SecondsPerDay}}
	}
	return tp
}
