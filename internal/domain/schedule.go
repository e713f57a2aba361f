package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// TimeOfDay is a clock time in "HH:MM" form, the granularity of the slot
// grid and of medicine reminder times.
type TimeOfDay string

func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 || len(parts[0]) != 2 || len(parts[1]) != 2 {
		return "", &Error{Tag: "invalid_time", Kind: KindValidation, Message: fmt.Sprintf("time %q is not HH:MM", s)}
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return "", &Error{Tag: "invalid_time", Kind: KindValidation, Message: fmt.Sprintf("time %q is not HH:MM", s)}
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return "", &Error{Tag: "invalid_time", Kind: KindValidation, Message: fmt.Sprintf("time %q is not HH:MM", s)}
	}
	return TimeOfDay(s), nil
}

// Minutes returns the offset from midnight. Only valid on parsed values.
func (t TimeOfDay) Minutes() int {
	h, _ := strconv.Atoi(string(t)[:2])
	m, _ := strconv.Atoi(string(t)[3:])
	return h*60 + m
}

// At anchors the time of day onto a calendar date in the date's location.
func (t TimeOfDay) At(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), t.Minutes()/60, t.Minutes()%60, 0, 0, date.Location())
}

var weekdayNames = map[string]time.Weekday{
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
	"sunday":    time.Sunday,
}

// WeeklySchedule is a doctor's bookable grid, one slot list per weekday.
// It persists as a JSON object keyed by lowercase weekday name; the stored
// blob is parsed into this shape on read and malformed data is rejected.
type WeeklySchedule struct {
	slots map[time.Weekday][]TimeOfDay
}

func ParseWeeklySchedule(raw []byte) (WeeklySchedule, error) {
	var byDay map[string][]string
	if err := json.Unmarshal(raw, &byDay); err != nil {
		return WeeklySchedule{}, &Error{Tag: "invalid_schedule", Kind: KindValidation, Message: "schedule blob is not a day-to-times object"}
	}

	slots := make(map[time.Weekday][]TimeOfDay, len(byDay))
	for day, times := range byDay {
		wd, ok := weekdayNames[strings.ToLower(day)]
		if !ok {
			return WeeklySchedule{}, &Error{Tag: "invalid_schedule", Kind: KindValidation, Message: fmt.Sprintf("unknown weekday %q", day)}
		}
		parsed := make([]TimeOfDay, 0, len(times))
		for _, s := range times {
			t, err := ParseTimeOfDay(s)
			if err != nil {
				return WeeklySchedule{}, err
			}
			parsed = append(parsed, t)
		}
		sort.Slice(parsed, func(i, j int) bool { return parsed[i].Minutes() < parsed[j].Minutes() })
		slots[wd] = parsed
	}

	return WeeklySchedule{slots: slots}, nil
}

func (s WeeklySchedule) On(day time.Weekday) []TimeOfDay {
	return s.slots[day]
}

func (s WeeklySchedule) Admits(day time.Weekday, t TimeOfDay) bool {
	for _, slot := range s.slots[day] {
		if slot == t {
			return true
		}
	}
	return false
}

func (s WeeklySchedule) MarshalJSON() ([]byte, error) {
	byDay := make(map[string][]string, len(s.slots))
	for name, wd := range weekdayNames {
		times := s.slots[wd]
		if len(times) == 0 {
			continue
		}
		out := make([]string, len(times))
		for i, t := range times {
			out[i] = string(t)
		}
		byDay[name] = out
	}
	return json.Marshal(byDay)
}
