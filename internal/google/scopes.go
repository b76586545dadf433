package google

// CalendarScopes are the Google OAuth scopes an account must have granted
// before its tokens are imported into dayboard.
//
// The scopes provide access to:
//   - OpenID Connect and email, for labeling secondary accounts
//   - Google Calendar: read-only
var CalendarScopes = []string{
	"openid",
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/calendar.readonly",
}
