// Package google wraps the Google OAuth token endpoint and the small set of
// Google APIs dayboard talks to.
//
// Broker owns the access/refresh token lifecycle for one credential pair at a
// time. It never persists anything: a refreshed token is returned to the
// caller, which decides where it lives.
//
// UserInfoLookup resolves the email address behind an access token, used to
// label events from secondary accounts.
package google
