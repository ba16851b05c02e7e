package recurrence

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// LastWeek selects the final matching weekday of a month.
const LastWeek = -1

// Rule is one of OneTime, Weekly or Monthly.
type Rule interface {
	isRule()
}

// Date is a calendar date without a time or location.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// OneTime is a single meeting on a fixed date.
type OneTime struct {
	Date Date
}

// Weekly repeats every week on Weekday.
type Weekly struct {
	Weekday time.Weekday
}

// Monthly repeats on the Week-th Weekday of every month (1-5, or LastWeek).
type Monthly struct {
	Weekday time.Weekday
	Week    int
}

func (OneTime) isRule() {}
func (Weekly) isRule()  {}
func (Monthly) isRule() {}

var dayNames = map[string]time.Weekday{
	"SU": time.Sunday,
	"MO": time.Monday,
	"TU": time.Tuesday,
	"WE": time.Wednesday,
	"TH": time.Thursday,
	"FR": time.Friday,
	"SA": time.Saturday,
}

var dayAbbrev = map[time.Weekday]string{
	time.Sunday:    "SU",
	time.Monday:    "MO",
	time.Tuesday:   "TU",
	time.Wednesday: "WE",
	time.Thursday:  "TH",
	time.Friday:    "FR",
	time.Saturday:  "SA",
}

var ordinals = map[int]string{
	1:        "first",
	2:        "second",
	3:        "third",
	4:        "fourth",
	5:        "fifth",
	LastWeek: "last",
}

// Parse parses a recurring rule in RRULE form, e.g. "FREQ=WEEKLY;BYDAY=MO"
// or "FREQ=MONTHLY;BYDAY=-1FR". One-time meetings have no RRULE.
func Parse(rule string) (Rule, error) {
	if rule == "" {
		return nil, fmt.Errorf("empty rule")
	}

	var freq, byDay string
	for _, part := range strings.Split(rule, ";") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid rule part: %q", part)
		}
		switch key, val := strings.ToUpper(strings.TrimSpace(kv[0])), strings.ToUpper(strings.TrimSpace(kv[1])); key {
		case "FREQ":
			freq = val
		case "BYDAY":
			if strings.Contains(val, ",") {
				return nil, fmt.Errorf("only one BYDAY value is supported: %q", val)
			}
			byDay = val
		default:
			return nil, fmt.Errorf("unsupported rule key: %q", key)
		}
	}

	if freq == "" {
		return nil, fmt.Errorf("FREQ is required")
	}
	if byDay == "" {
		return nil, fmt.Errorf("BYDAY is required")
	}

	switch freq {
	case "WEEKLY":
		wd, ok := dayNames[byDay]
		if !ok {
			return nil, fmt.Errorf("unknown day: %q", byDay)
		}
		return Weekly{Weekday: wd}, nil
	case "MONTHLY":
		if len(byDay) < 3 {
			return nil, fmt.Errorf("monthly BYDAY needs a week prefix: %q", byDay)
		}
		wd, ok := dayNames[byDay[len(byDay)-2:]]
		if !ok {
			return nil, fmt.Errorf("unknown day: %q", byDay)
		}
		week, err := strconv.Atoi(strings.TrimPrefix(byDay[:len(byDay)-2], "+"))
		if err != nil || !ValidWeek(week) {
			return nil, fmt.Errorf("invalid week in BYDAY: %q", byDay)
		}
		return Monthly{Weekday: wd, Week: week}, nil
	}
	return nil, fmt.Errorf("unknown frequency: %q", freq)
}

// Format serializes a recurring rule to RRULE text. One-time rules have no
// RRULE and format as "".
func Format(r Rule) string {
	switch r := r.(type) {
	case Weekly:
		return "FREQ=WEEKLY;BYDAY=" + dayAbbrev[r.Weekday]
	case Monthly:
		return fmt.Sprintf("FREQ=MONTHLY;BYDAY=%d%s", r.Week, dayAbbrev[r.Weekday])
	}
	return ""
}

// Describe returns a human-readable description of the rule.
func Describe(r Rule) string {
	switch r := r.(type) {
	case OneTime:
		return "Once on " + r.Date.String()
	case Weekly:
		return "Every " + r.Weekday.String()
	case Monthly:
		return fmt.Sprintf("Every %s %s of the month", ordinals[r.Week], r.Weekday)
	}
	return ""
}

// ValidWeek reports whether w is an acceptable Monthly.Week.
func ValidWeek(w int) bool {
	return w == LastWeek || (w >= 1 && w <= 5)
}

// ParseWeekday accepts full English names, three-letter names and RRULE
// two-letter codes, case-insensitively.
func ParseWeekday(s string) (time.Weekday, error) {
	v := strings.ToUpper(strings.TrimSpace(s))
	if wd, ok := dayNames[v]; ok {
		return wd, nil
	}
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		name := strings.ToUpper(wd.String())
		if v == name || v == name[:3] {
			return wd, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday: %q", s)
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("invalid date: %q", s)
	}
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// TimeOfDay is a local wall-clock time.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM" or "HH:MM:SS". Seconds are checked but dropped.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return TimeOfDay{}, fmt.Errorf("invalid time of day: %q", s)
	}
	h, ok := clockField(parts[0], 23)
	if !ok {
		return TimeOfDay{}, fmt.Errorf("invalid hour: %q", s)
	}
	m, ok := clockField(parts[1], 59)
	if !ok {
		return TimeOfDay{}, fmt.Errorf("invalid minute: %q", s)
	}
	if len(parts) == 3 {
		if _, ok := clockField(parts[2], 59); !ok {
			return TimeOfDay{}, fmt.Errorf("invalid second: %q", s)
		}
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

// clockField parses one or two unsigned digits no greater than limit.
func clockField(s string, limit int) (int, bool) {
	if len(s) == 0 || len(s) > 2 {
		return 0, false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil || n > limit {
		return 0, false
	}
	return n, true
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}
