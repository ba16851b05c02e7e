package recurrence

import "time"

// MaxScanDays bounds the forward search for a recurring occurrence. A rule
// that cannot match within a year resolves to no occurrence.
const MaxScanDays = 365

// Schedule is a rule anchored to a local time of day in a location.
type Schedule struct {
	Rule     Rule
	Start    TimeOfDay
	End      *TimeOfDay
	Location *time.Location
}

// Occurrence is one concrete meeting instance.
type Occurrence struct {
	Start time.Time
	End   time.Time
}

// Pending reports whether the occurrence has not fully elapsed at now.
func (o Occurrence) Pending(now time.Time) bool {
	return o.Start.After(now) || o.End.After(now)
}

// InProgress reports whether the occurrence has started but not ended.
func (o Occurrence) InProgress(now time.Time) bool {
	return !o.Start.After(now) && o.End.After(now)
}

// Next returns the first occurrence of s that has not fully elapsed at now.
// An occurrence that already started but has not ended is still returned.
func Next(s Schedule, now time.Time) (Occurrence, bool) {
	loc := s.Location
	if loc == nil {
		loc = time.UTC
	}

	switch r := s.Rule.(type) {
	case OneTime:
		occ := s.at(r.Date.Year, r.Date.Month, r.Date.Day, loc)
		if occ.Pending(now) {
			return occ, true
		}
		return Occurrence{}, false
	case Weekly:
		return s.scan(now, loc, func(y int, m time.Month, d int, wd time.Weekday) bool {
			return wd == r.Weekday
		})
	case Monthly:
		var (
			curYear  int
			curMonth time.Month
			target   int
		)
		return s.scan(now, loc, func(y int, m time.Month, d int, _ time.Weekday) bool {
			if y != curYear || m != curMonth {
				curYear, curMonth = y, m
				target = pick(weekdaysInMonth(y, m, r.Weekday), r.Week)
			}
			return d == target
		})
	}
	return Occurrence{}, false
}

// scan walks forward one local date at a time. It starts the day before now
// so that a session running past midnight is still found.
func (s Schedule) scan(now time.Time, loc *time.Location, match func(int, time.Month, int, time.Weekday) bool) (Occurrence, bool) {
	y, m, d := now.In(loc).Date()
	for i := -1; i < MaxScanDays-1; i++ {
		// Noon never falls in a DST gap, so the date cannot shift.
		day := time.Date(y, m, d+i, 12, 0, 0, 0, loc)
		dy, dm, dd := day.Date()
		if !match(dy, dm, dd, day.Weekday()) {
			continue
		}
		if occ := s.at(dy, dm, dd, loc); occ.Pending(now) {
			return occ, true
		}
	}
	return Occurrence{}, false
}

func (s Schedule) at(y int, m time.Month, d int, loc *time.Location) Occurrence {
	start := time.Date(y, m, d, s.Start.Hour, s.Start.Minute, 0, 0, loc)
	if s.End == nil {
		return Occurrence{Start: start, End: start}
	}
	end := time.Date(y, m, d, s.End.Hour, s.End.Minute, 0, 0, loc)
	if !end.After(start) {
		end = time.Date(y, m, d+1, s.End.Hour, s.End.Minute, 0, 0, loc)
	}
	return Occurrence{Start: start, End: end}
}

// weekdaysInMonth lists, in ascending order, the days of the month that
// fall on wd.
func weekdaysInMonth(y int, m time.Month, wd time.Weekday) []int {
	first := time.Date(y, m, 1, 12, 0, 0, 0, time.UTC)
	offset := (int(wd) - int(first.Weekday()) + 7) % 7
	var days []int
	for d := 1 + offset; d <= daysInMonth(y, m); d += 7 {
		days = append(days, d)
	}
	return days
}

// pick returns the week-th entry of days (or the last for LastWeek), or 0
// when the month has no such entry.
func pick(days []int, week int) int {
	if len(days) == 0 {
		return 0
	}
	if week == LastWeek {
		return days[len(days)-1]
	}
	if week < 1 || week > len(days) {
		return 0
	}
	return days[week-1]
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
