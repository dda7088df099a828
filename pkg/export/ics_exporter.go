package export

import (
	"fmt"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
)

const (
	icsProductID         = "-//noah-isme//sma-timetable-api//EN"
	// Slot labels use a 12-hour clock without a meridiem; earlier hours belong to the afternoon.
	afternoonCutoffHour  = 7
	defaultCalendarWeeks = 16
	icsLocalTimestamp    = "20060102T150405"
)

// ClockRange is a slot's start and end as offsets from midnight.
type ClockRange struct {
	Start time.Duration
	End   time.Duration
}

// ParseSlotRange reads labels such as "07:30 to 8:25" or "BREAK (9:20 to 9:50)".
func ParseSlotRange(label string) (ClockRange, error) {
	raw := label
	if open := strings.Index(raw, "("); open >= 0 {
		if end := strings.LastIndex(raw, ")"); end > open {
			raw = raw[open+1 : end]
		}
	}
	parts := strings.Split(raw, " to ")
	if len(parts) != 2 {
		return ClockRange{}, fmt.Errorf("slot label %q: expected \"start to end\"", label)
	}
	start, err := parseClock(parts[0])
	if err != nil {
		return ClockRange{}, fmt.Errorf("slot label %q: %w", label, err)
	}
	end, err := parseClock(parts[1])
	if err != nil {
		return ClockRange{}, fmt.Errorf("slot label %q: %w", label, err)
	}
	if end <= start {
		return ClockRange{}, fmt.Errorf("slot label %q: end before start", label)
	}
	return ClockRange{Start: start, End: end}, nil
}

func parseClock(raw string) (time.Duration, error) {
	var hour, minute int
	if _, err := fmt.Sscanf(strings.TrimSpace(raw), "%d:%d", &hour, &minute); err != nil {
		return 0, fmt.Errorf("invalid clock %q", raw)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("clock %q out of range", raw)
	}
	if hour < afternoonCutoffHour {
		hour += 12
	}
	return time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute, nil
}

// CalendarEntry is one weekly recurring class.
type CalendarEntry struct {
	UID         string
	Weekday     int // 0 is Monday
	Slot        string
	Summary     string
	Description string
}

// CalendarOptions anchors the recurring events.
type CalendarOptions struct {
	Name     string
	WeekOf   time.Time
	Weeks    int
	Location *time.Location
	Stamp    time.Time
}

// ICSExporter renders weekly recurring events as an iCalendar document.
type ICSExporter struct{}

// NewICSExporter constructs an iCalendar exporter.
func NewICSExporter() *ICSExporter {
	return &ICSExporter{}
}

// Render emits one VEVENT per entry repeating weekly from the Monday of opts.WeekOf.
func (e *ICSExporter) Render(entries []CalendarEntry, opts CalendarOptions) ([]byte, error) {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	weeks := opts.Weeks
	if weeks <= 0 {
		weeks = defaultCalendarWeeks
	}
	stamp := opts.Stamp
	if stamp.IsZero() {
		stamp = time.Now()
	}
	monday := MondayOf(opts.WeekOf, loc)

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(icsProductID)
	if opts.Name != "" {
		cal.SetXWRCalName(opts.Name)
	}
	cal.SetXWRTimezone(loc.String())

	for _, entry := range entries {
		if entry.Weekday < 0 || entry.Weekday > 6 {
			return nil, fmt.Errorf("entry %s: weekday %d out of range", entry.UID, entry.Weekday)
		}
		clock, err := ParseSlotRange(entry.Slot)
		if err != nil {
			return nil, err
		}
		day := monday.AddDate(0, 0, entry.Weekday)
		event := cal.AddEvent(entry.UID)
		event.SetDtStampTime(stamp.UTC())
		setEventTimes(event, day.Add(clock.Start), day.Add(clock.End), loc)
		event.SetSummary(entry.Summary)
		if entry.Description != "" {
			event.SetDescription(entry.Description)
		}
		event.AddProperty(ics.ComponentPropertyRrule, fmt.Sprintf("FREQ=WEEKLY;COUNT=%d", weeks))
	}

	return []byte(cal.Serialize()), nil
}

// setEventTimes writes wall-clock DTSTART/DTEND with a TZID for named zones.
// UTC and fixed offsets are written in UTC.
func setEventTimes(event *ics.VEvent, start, end time.Time, loc *time.Location) {
	if !hasNamedZone(loc) {
		event.SetStartAt(start)
		event.SetEndAt(end)
		return
	}
	tzid := &ics.KeyValues{Key: string(ics.ParameterTzid), Value: []string{loc.String()}}
	event.SetProperty(ics.ComponentPropertyDtStart, start.In(loc).Format(icsLocalTimestamp), tzid)
	event.SetProperty(ics.ComponentPropertyDtEnd, end.In(loc).Format(icsLocalTimestamp), tzid)
}

func hasNamedZone(loc *time.Location) bool {
	if loc == nil || loc == time.UTC || loc.String() == "UTC" || loc.String() == "Local" {
		return false
	}
	_, err := time.LoadLocation(loc.String())
	return err == nil
}

// MondayOf returns midnight of the Monday in the week containing t, in loc.
func MondayOf(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	if t.IsZero() {
		t = time.Now()
	}
	local := t.In(loc)
	offset := (int(local.Weekday()) + 6) % 7
	return time.Date(local.Year(), local.Month(), local.Day()-offset, 0, 0, 0, 0, loc)
}
