// Package store provides SQLite persistence for dayboard.
//
// It holds users (and with them their primary Google account token),
// secondary connected accounts and calendar subscriptions. The schema is
// created from embedded migrations when the store is opened.
//
// Store implements calendar.SourceStore and calendar.TokenPersister. Query
// failures wrap calendar.ErrDatastoreUnavailable; an unknown user is reported
// as calendar.ErrUserRecordMissing.
package store
