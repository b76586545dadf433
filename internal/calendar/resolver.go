package calendar

// Resolution is the set of sources to query for one user.
type Resolution struct {
	// Primary holds one context per enabled calendar of the primary account,
	// or a single context for its default calendar.
	Primary []CalendarContext

	// Secondary holds the queryable secondary accounts.
	Secondary []ConnectedAccount
}

// Resolve determines which sources to query for src.
//
// Calendars bound to an account other than the primary one are ignored, and
// secondary accounts are always queried through their default calendar only.
// Accounts without a usable token are skipped. When nothing at all can be
// queried Resolve returns ErrNoUsableToken.
func Resolve(src *Sources, d Defaults) (Resolution, error) {
	var res Resolution
	if src == nil {
		return res, ErrNoUsableToken
	}
	d = d.withDefaults()

	primary := src.User.Account
	primary.Role = RolePrimary
	if primary.ID == "" {
		primary.ID = src.User.ID
	}
	if primary.Email == "" {
		primary.Email = src.User.Email
	}

	if primary.HasUsableToken() {
		for _, cal := range src.Calendars {
			if !cal.Enabled || (cal.AccountID != "" && cal.AccountID != primary.ID) {
				continue
			}
			res.Primary = append(res.Primary, CalendarContext{
				Account:    primary,
				CalendarID: cal.CalendarID,
				Name:       cal.Name,
				Color:      cal.Color,
			})
		}
		if len(res.Primary) == 0 {
			res.Primary = []CalendarContext{{
				Account:    primary,
				CalendarID: DefaultCalendarID,
				Name:       d.PrimaryCalendarName,
			}}
		}
	}

	for _, acc := range src.Accounts {
		if acc.ProviderAccountID == "" || !acc.HasUsableToken() {
			continue
		}
		acc.Role = RoleSecondary
		res.Secondary = append(res.Secondary, acc)
	}

	if len(res.Primary) == 0 && len(res.Secondary) == 0 {
		return res, ErrNoUsableToken
	}
	return res, nil
}

// Contexts flattens the resolution into the list of sources to fetch.
func (r Resolution) Contexts() []CalendarContext {
	out := make([]CalendarContext, 0, len(r.Primary)+len(r.Secondary))
	out = append(out, r.Primary...)
	for _, acc := range r.Secondary {
		out = append(out, CalendarContext{
			Account:    acc,
			CalendarID: DefaultCalendarID,
		})
	}
	return out
}
