package models

import (
	"strings"
	"time"
)

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

// Calendar 周期性时间窗口（用于通知规则的时间门控）
// Days is a comma-separated list of lowercase weekday abbreviations
// ("mon,tue,wed"), Start/End are "HH:MM" local to Timezone.
type Calendar struct {
	ID       int64  `json:"id" db:"id"`
	Name     string `json:"name" db:"name"`
	Days     string `json:"days" db:"days"`
	Start    string `json:"start" db:"start_time"`
	End      string `json:"end" db:"end_time"`
	Timezone string `json:"timezone" db:"timezone"`
}

// CheckMoment reports whether t falls inside the calendar window.
// Pure function of (calendar, instant); malformed recurrence data
// fails closed, never active.
func (c *Calendar) CheckMoment(t time.Time) bool {
	if c.Days == "" || c.Start == "" || c.End == "" {
		return false
	}

	loc := time.UTC
	if c.Timezone != "" {
		parsed, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return false
		}
		loc = parsed
	}
	local := t.In(loc)

	dayMatch := false
	for _, day := range strings.Split(c.Days, ",") {
		weekday, ok := weekdayNames[strings.ToLower(strings.TrimSpace(day))]
		if !ok {
			return false
		}
		if weekday == local.Weekday() {
			dayMatch = true
		}
	}
	if !dayMatch {
		return false
	}

	start, err := parseMinuteOfDay(c.Start)
	if err != nil {
		return false
	}
	end, err := parseMinuteOfDay(c.End)
	if err != nil {
		return false
	}

	minute := local.Hour()*60 + local.Minute()
	return minute >= start && minute < end
}

func parseMinuteOfDay(value string) (int, error) {
	parsed, err := time.Parse("15:04", strings.TrimSpace(value))
	if err != nil {
		return 0, err
	}
	return parsed.Hour()*60 + parsed.Minute(), nil
}
