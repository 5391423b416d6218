package timeperiod

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateRangeKind orders exception types by precedence: lower kinds are
// consulted first.
type DateRangeKind int

const (
	CalendarDate DateRangeKind = iota // 2024-12-25 [- 2025-01-02]
	MonthDate                         // december 25 [- january 2]
	MonthDay                          // day 1 [- 15]
	MonthWeekDay                      // monday 3 october [- friday -1 october]
	WeekDay                           // monday 2 [- thursday 3]
	numDateRangeKinds
)

var dateRangeKindNames = [...]string{"calendar date", "month date", "month day", "month week day", "week day"}

func (k DateRangeKind) String() string {
	if k < 0 || k >= numDateRangeKinds {
		return "unknown"
	}
	return dateRangeKindNames[k]
}

// DateRange is an exception that overrides the weekday defaults on matching
// dates. Month days and week-day offsets may be negative to count back from
// the end of the month (-1 = last). A zero End* field means "same as start".
type DateRange struct {
	Kind DateRangeKind

	StartYear          int
	StartMonth         int // 1..12
	StartMonthDay      int
	StartWeekDay       int // 0=sunday
	StartWeekDayOffset int

	EndYear          int
	EndMonth         int
	EndMonthDay      int
	EndWeekDay       int
	EndWeekDayOffset int

	// SkipInterval > 1 matches only every Nth day counted from the start.
	SkipInterval int

	// Ranges covered on matching days; empty excludes the whole day.
	Ranges []TimeRange
}

// dayNumber returns a monotonically increasing day index for a civil date.
// time.Date normalizes out-of-range days and months.
func dayNumber(year, month, day int) int {
	return int(time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC).Unix() / SecondsPerDay)
}

func daysIn(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// inMonth returns the day number of mday when that day exists in the month.
func inMonth(year, month, mday int) (int, bool) {
	if mday < 1 || mday > daysIn(year, month) {
		return 0, false
	}
	return dayNumber(year, month, mday), true
}

// monthDayNumber resolves a possibly negative day of month. ok is false when
// the month has no such day (day 31 in april, day -30 in february).
func monthDayNumber(year, month, mday int) (int, bool) {
	switch {
	case mday < 0:
		mday = daysIn(year, month) + mday + 1
	case mday == 0:
		mday = 1
	}
	return inMonth(year, month, mday)
}

// weekDayNumber resolves the n-th (or, when negative, n-th from last)
// occurrence of weekday wday in the given month. ok is false when the month
// has no such occurrence (a fifth monday).
func weekDayNumber(year, month, wday, n int) (int, bool) {
	if n == 0 {
		n = 1
	}
	days := daysIn(year, month)
	var mday int
	if n > 0 {
		first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
		mday = 1 + (wday-int(first.Weekday())+7)%7 + 7*(n-1)
	} else {
		last := time.Date(year, time.Month(month), days, 0, 0, 0, 0, time.UTC)
		mday = days - (int(last.Weekday())-wday+7)%7 + 7*(n+1)
	}
	return inMonth(year, month, mday)
}

// clampEnd resolves a range end that does not exist. Counting forward it
// stops at the last day of the month; counting back the occurrence is void.
func clampEnd(day int, ok bool, year, month, n int) (int, bool) {
	if ok || n < 0 {
		return day, ok
	}
	return dayNumber(year, month, daysIn(year, month)), true
}

func monthDayEnd(year, month, mday int) (int, bool) {
	d, ok := monthDayNumber(year, month, mday)
	return clampEnd(d, ok, year, month, mday)
}

func weekDayEnd(year, month, wday, n int) (int, bool) {
	d, ok := weekDayNumber(year, month, wday, n)
	return clampEnd(d, ok, year, month, n)
}

// bounds returns the first and last day numbers of the range when anchored
// at the given year and month. Yearly kinds ignore month. ok is false when
// the range has no occurrence for that anchor.
func (dr *DateRange) bounds(year, month int) (start, end int, ok bool) {
	switch dr.Kind {
	case CalendarDate:
		if start, ok = inMonth(dr.StartYear, dr.StartMonth, dr.StartMonthDay); !ok {
			return 0, 0, false
		}
		if dr.EndYear == 0 {
			end = start
			if dr.SkipInterval > 1 {
				end = int(^uint(0) >> 1)
			}
			return start, end, true
		}
		end, ok = monthDayEnd(dr.EndYear, dr.EndMonth, dr.EndMonthDay)
		return start, end, ok

	case MonthDate:
		if start, ok = monthDayNumber(year, dr.StartMonth, dr.StartMonthDay); !ok {
			return 0, 0, false
		}
		emon, emday := dr.EndMonth, dr.EndMonthDay
		if emon == 0 {
			emon = dr.StartMonth
		}
		if emday == 0 {
			emday = dr.StartMonthDay
		}
		end, ok = monthDayEnd(year, emon, emday)
		if ok && end < start {
			end, ok = monthDayEnd(year+1, emon, emday)
		}
		return start, end, ok

	case MonthDay:
		if start, ok = monthDayNumber(year, month, dr.StartMonthDay); !ok {
			return 0, 0, false
		}
		emday := dr.EndMonthDay
		if emday == 0 {
			emday = dr.StartMonthDay
		}
		end, ok = monthDayEnd(year, month, emday)
		if ok && end < start {
			end, ok = monthDayEnd(year, month+1, emday)
		}
		return start, end, ok

	case MonthWeekDay:
		if start, ok = weekDayNumber(year, dr.StartMonth, dr.StartWeekDay, dr.StartWeekDayOffset); !ok {
			return 0, 0, false
		}
		emon, ewday, eoff := dr.EndMonth, dr.EndWeekDay, dr.EndWeekDayOffset
		if emon == 0 {
			emon, ewday, eoff = dr.StartMonth, dr.StartWeekDay, dr.StartWeekDayOffset
		}
		end, ok = weekDayEnd(year, emon, ewday, eoff)
		if ok && end < start {
			end, ok = weekDayEnd(year+1, emon, ewday, eoff)
		}
		return start, end, ok

	case WeekDay:
		if start, ok = weekDayNumber(year, month, dr.StartWeekDay, dr.StartWeekDayOffset); !ok {
			return 0, 0, false
		}
		ewday, eoff := dr.EndWeekDay, dr.EndWeekDayOffset
		if eoff == 0 {
			ewday, eoff = dr.StartWeekDay, dr.StartWeekDayOffset
		}
		end, ok = weekDayEnd(year, month, ewday, eoff)
		if ok && end < start {
			nm := time.Date(year, time.Month(month)+1, 1, 0, 0, 0, 0, time.UTC)
			end, ok = weekDayEnd(nm.Year(), int(nm.Month()), ewday, eoff)
		}
		return start, end, ok
	}
	return 0, 0, false
}

// MatchesDate reports whether t's calendar date falls inside the range,
// honouring the skip interval.
func (dr *DateRange) MatchesDate(t time.Time) bool {
	year, month := t.Year(), int(t.Month())
	today := dayNumber(year, month, t.Day())

	// A range anchored in the previous period may still be running
	// (december 20 - january 5, day 25 - 3).
	anchors := [][2]int{{year, month}}
	switch dr.Kind {
	case MonthDate, MonthWeekDay:
		anchors = append(anchors, [2]int{year - 1, month})
	case MonthDay, WeekDay:
		prev := time.Date(year, time.Month(month)-1, 1, 0, 0, 0, 0, time.UTC)
		anchors = append(anchors, [2]int{prev.Year(), int(prev.Month())})
	}

	for _, a := range anchors {
		start, end, ok := dr.bounds(a[0], a[1])
		if !ok || today < start || today > end {
			continue
		}
		if dr.SkipInterval > 1 && (today-start)%dr.SkipInterval != 0 {
			continue
		}
		return true
	}
	return false
}

var monthNames = map[string]int{
	"january": 1, "february": 2, "march": 3, "april": 4,
	"may": 5, "june": 6, "july": 7, "august": 8,
	"september": 9, "october": 10, "november": 11, "december": 12,
}

var weekdayNames = map[string]int{
	"sunday": 0, "monday": 1, "tuesday": 2, "wednesday": 3,
	"thursday": 4, "friday": 5, "saturday": 6,
}

func parseMonth(s string) (int, bool) {
	m, ok := monthNames[strings.ToLower(s)]
	return m, ok
}

func parseWeekday(s string) (int, bool) {
	w, ok := weekdayNames[strings.ToLower(s)]
	return w, ok
}

// ParseDateRange parses an exception directive such as
//
//	2024-12-25 00:00-24:00
//	2024-01-01 - 2024-02-01 / 3 08:00-12:00
//	december 25 - january 2
//	day -1 00:00-06:00
//	monday 1 september 00:00-24:00
//	tuesday 2 - friday 3 / 2 09:00-17:00
//
// A directive without time-ranges excludes the matching days entirely.
func ParseDateRange(s string) (DateRange, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return DateRange{}, fmt.Errorf("empty date range")
	}

	// Time-ranges start at the first field holding a colon.
	cut := len(fields)
	for i, f := range fields {
		if strings.Contains(f, ":") {
			cut = i
			break
		}
	}
	var dr DateRange
	if cut < len(fields) {
		ranges, err := ParseTimeRanges(strings.Join(fields[cut:], ""))
		if err != nil {
			return DateRange{}, fmt.Errorf("date range %q: %w", s, err)
		}
		dr.Ranges = ranges
	}
	fields = fields[:cut]

	// Skip interval: "... / N"
	for i, f := range fields {
		if f == "/" {
			if i+1 >= len(fields) {
				return DateRange{}, fmt.Errorf("date range %q: missing skip interval", s)
			}
			n, err := strconv.Atoi(fields[i+1])
			if err != nil || n < 1 {
				return DateRange{}, fmt.Errorf("date range %q: invalid skip interval %q", s, fields[i+1])
			}
			dr.SkipInterval = n
			fields = append(fields[:i:i], fields[i+2:]...)
			break
		}
	}

	startFields, endFields := fields, []string(nil)
	hasEnd := false
	for i, f := range fields {
		if f == "-" {
			startFields, endFields = fields[:i], fields[i+1:]
			hasEnd = true
			break
		}
	}
	if err := dr.parseStart(startFields); err != nil {
		return DateRange{}, fmt.Errorf("date range %q: %w", s, err)
	}
	if hasEnd {
		if err := dr.parseEnd(endFields); err != nil {
			return DateRange{}, fmt.Errorf("date range %q: %w", s, err)
		}
	}
	return dr, nil
}

func parseCalendar(s string) (y, m, d int, err error) {
	parts := strings.Split(s, "-")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("invalid calendar date %q", s)
	}
	if y, err = strconv.Atoi(parts[0]); err != nil {
		return 0, 0, 0, fmt.Errorf("invalid year in %q", s)
	}
	if m, err = strconv.Atoi(parts[1]); err != nil || m < 1 || m > 12 {
		return 0, 0, 0, fmt.Errorf("invalid month in %q", s)
	}
	if d, err = strconv.Atoi(parts[2]); err != nil || d < 1 || d > 31 {
		return 0, 0, 0, fmt.Errorf("invalid day in %q", s)
	}
	return y, m, d, nil
}

func parseOffset(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n == 0 || n > 31 || n < -31 {
		return 0, fmt.Errorf("invalid day offset %q", s)
	}
	return n, nil
}

func (dr *DateRange) parseStart(f []string) error {
	switch {
	case len(f) == 1 && strings.Count(f[0], "-") == 2:
		y, m, d, err := parseCalendar(f[0])
		if err != nil {
			return err
		}
		dr.Kind = CalendarDate
		dr.StartYear, dr.StartMonth, dr.StartMonthDay = y, m, d
		return nil

	case len(f) == 2 && strings.EqualFold(f[0], "day"):
		n, err := parseOffset(f[1])
		if err != nil {
			return err
		}
		dr.Kind = MonthDay
		dr.StartMonthDay = n
		return nil
	}

	if len(f) == 2 {
		if m, ok := parseMonth(f[0]); ok {
			n, err := parseOffset(f[1])
			if err != nil {
				return err
			}
			dr.Kind = MonthDate
			dr.StartMonth, dr.StartMonthDay = m, n
			return nil
		}
		if w, ok := parseWeekday(f[0]); ok {
			n, err := parseOffset(f[1])
			if err != nil {
				return err
			}
			dr.Kind = WeekDay
			dr.StartWeekDay, dr.StartWeekDayOffset = w, n
			return nil
		}
	}

	if len(f) == 3 {
		w, wok := parseWeekday(f[0])
		m, mok := parseMonth(f[2])
		if wok && mok {
			n, err := parseOffset(f[1])
			if err != nil {
				return err
			}
			dr.Kind = MonthWeekDay
			dr.StartWeekDay, dr.StartWeekDayOffset, dr.StartMonth = w, n, m
			return nil
		}
	}
	return fmt.Errorf("unrecognized date %q", strings.Join(f, " "))
}

func (dr *DateRange) parseEnd(f []string) error {
	switch dr.Kind {
	case CalendarDate:
		if len(f) != 1 {
			break
		}
		y, m, d, err := parseCalendar(f[0])
		if err != nil {
			return err
		}
		dr.EndYear, dr.EndMonth, dr.EndMonthDay = y, m, d
		return nil

	case MonthDay:
		if len(f) == 2 && strings.EqualFold(f[0], "day") {
			f = f[1:]
		}
		if len(f) != 1 {
			break
		}
		n, err := parseOffset(f[0])
		if err != nil {
			return err
		}
		dr.EndMonthDay = n
		return nil

	case MonthDate:
		if len(f) == 1 {
			n, err := parseOffset(f[0])
			if err != nil {
				return err
			}
			dr.EndMonth, dr.EndMonthDay = dr.StartMonth, n
			return nil
		}
		if len(f) == 2 {
			m, ok := parseMonth(f[0])
			if !ok {
				break
			}
			n, err := parseOffset(f[1])
			if err != nil {
				return err
			}
			dr.EndMonth, dr.EndMonthDay = m, n
			return nil
		}

	case MonthWeekDay:
		if len(f) != 3 {
			break
		}
		w, wok := parseWeekday(f[0])
		m, mok := parseMonth(f[2])
		if !wok || !mok {
			break
		}
		n, err := parseOffset(f[1])
		if err != nil {
			return err
		}
		dr.EndWeekDay, dr.EndWeekDayOffset, dr.EndMonth = w, n, m
		return nil

	case WeekDay:
		if len(f) != 2 {
			break
		}
		w, ok := parseWeekday(f[0])
		if !ok {
			break
		}
		n, err := parseOffset(f[1])
		if err != nil {
			return err
		}
		dr.EndWeekDay, dr.EndWeekDayOffset = w, n
		return nil
	}
	return fmt.Errorf("unrecognized end of %s range %q", dr.Kind, strings.Join(f, " "))
}
