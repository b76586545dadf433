package calendar

import (
	"time"

	calendar "google.golang.org/api/calendar/v3"
)

// eventColors maps Google Calendar event colorId values to display colors.
var eventColors = map[string]string{
	"1":  "#7986cb", // Lavender
	"2":  "#33b679", // Sage
	"3":  "#8e24aa", // Grape
	"4":  "#e67c73", // Flamingo
	"5":  "#f6bf26", // Banana
	"6":  "#f4511e", // Tangerine
	"7":  "#039be5", // Peacock
	"8":  "#616161", // Graphite
	"9":  "#3f51b5", // Blueberry
	"10": "#0b8043", // Basil
	"11": "#d50000", // Tomato
}

// Normalize maps a provider event onto the canonical Event.
//
// accountEmail is only used for secondary contexts, where the calendar label
// is derived from the account rather than the calendar. Normalize performs no
// I/O and never fails; d must already have its defaults applied.
func Normalize(raw *calendar.Event, cc CalendarContext, accountEmail string, d Defaults) Event {
	if raw == nil {
		raw = &calendar.Event{}
	}

	ev := Event{
		ID:           raw.Id,
		Title:        raw.Summary,
		Description:  raw.Description,
		Location:     raw.Location,
		AllDay:       isAllDay(raw.Start),
		CalendarID:   cc.CalendarID,
		CalendarName: cc.Name,
		Source:       SourceGoogle,
	}
	ev.Start = eventTime(raw.Start)
	ev.End = eventTime(raw.End)

	if ev.Title == "" {
		ev.Title = d.UntitledTitle
	}

	// Event ids share one id space across Google accounts.
	if cc.Secondary() && raw.Id != "" {
		ev.ID = cc.Account.ID + "-" + raw.Id
	}

	switch {
	case cc.Color != "":
		ev.Color = cc.Color
	case eventColors[raw.ColorId] != "":
		ev.Color = eventColors[raw.ColorId]
	case cc.Secondary():
		ev.Color = d.SecondaryColor
	}

	if cc.Secondary() {
		ev.CalendarName = d.UnknownAccountLabel
		if accountEmail != "" {
			ev.CalendarName = accountEmail + d.ViewOnlySuffix
		}
	}

	return ev
}

func isAllDay(start *calendar.EventDateTime) bool {
	return start != nil && start.DateTime == "" && start.Date != ""
}

// eventTime prefers the timestamp over the date. Dates are midnight UTC.
// Unparseable values yield the zero time.
func eventTime(dt *calendar.EventDateTime) time.Time {
	if dt == nil {
		return time.Time{}
	}
	if dt.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, dt.DateTime); err == nil {
			return t
		}
	}
	if dt.Date != "" {
		if t, err := time.Parse(time.DateOnly, dt.Date); err == nil {
			return t
		}
	}
	return time.Time{}
}

// cancelled reports whether the provider marked the event as cancelled.
func cancelled(raw *calendar.Event) bool {
	return raw != nil && raw.Status == "cancelled"
}
