// Package calendar aggregates events from every Google calendar a user can
// see into one sorted list.
//
// A user's sources are the enabled calendars of their primary account (or the
// account's default calendar when none are enabled) plus the default calendar
// of every connected secondary account. Sources are fetched concurrently and
// independently: a failing source contributes a FetchError, never an error
// for the whole aggregation.
//
// Example usage:
//
//	agg := calendar.NewAggregator(store, fetcher, calendar.Options{})
//	result, err := agg.Aggregate(ctx, userID, agg.DefaultWindow())
//	if err != nil {
//	    return err
//	}
//	for _, ev := range result.Events {
//	    fmt.Println(ev.Start, ev.Title, ev.CalendarName)
//	}
package calendar
