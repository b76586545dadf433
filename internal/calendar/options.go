package calendar

import "time"

// Defaults holds the fallback values used when normalizing events.
// Every field has an explicit default applied by withDefaults.
type Defaults struct {
	// UntitledTitle replaces a missing event title (default: "Untitled Event")
	UntitledTitle string

	// PrimaryCalendarName labels the synthetic default calendar (default: "Primary")
	PrimaryCalendarName string

	// SecondaryColor is used for secondary-account events that carry no
	// color of their own (default: "#94a3b8")
	SecondaryColor string

	// ViewOnlySuffix is appended to a secondary account's email to build its
	// calendar label (default: " (view-only)")
	ViewOnlySuffix string

	// UnknownAccountLabel labels a secondary account whose email could not be
	// resolved (default: "Connected account (view-only)")
	UnknownAccountLabel string
}

func (d Defaults) withDefaults() Defaults {
	if d.UntitledTitle == "" {
		d.UntitledTitle = "Untitled Event"
	}
	if d.PrimaryCalendarName == "" {
		d.PrimaryCalendarName = "Primary"
	}
	if d.SecondaryColor == "" {
		d.SecondaryColor = "#94a3b8"
	}
	if d.ViewOnlySuffix == "" {
		d.ViewOnlySuffix = " (view-only)"
	}
	if d.UnknownAccountLabel == "" {
		d.UnknownAccountLabel = "Connected account" + d.ViewOnlySuffix
	}
	return d
}

// Options tunes an Aggregator.
type Options struct {
	// WindowDays is the half-width of the default window around now (default: 30)
	WindowDays int

	// FetchTimeout bounds each source fetch, refresh and retry included (default: 15s)
	FetchTimeout time.Duration

	// MaxConcurrency caps simultaneous source fetches per aggregation (default: 8)
	MaxConcurrency int

	Defaults Defaults
}

func (o Options) withDefaults() Options {
	if o.WindowDays <= 0 {
		o.WindowDays = 30
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = 15 * time.Second
	}
	if o.MaxConcurrency <= 0 {
		o.MaxConcurrency = 8
	}
	o.Defaults = o.Defaults.withDefaults()
	return o
}
