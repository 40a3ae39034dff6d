// Package sqlite implements the profile, conversation, message and blob
// stores on a local SQLite database through github.com/mattn/go-sqlite3.
//
// Participants and wrapped key maps are stored as JSON columns. Messages
// take their sequence number from an AUTOINCREMENT primary key, which is
// what realtime.Poller uses to find new messages. Timestamps are stored as
// Unix nanoseconds.
package sqlite
