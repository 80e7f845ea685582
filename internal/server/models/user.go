// Package models defines server-side data models persisted in the database.
package models

// User is an account owner. The UUID is the external-facing identifier;
// the integer ID stays internal to the database.
type User struct {
	ID             int64
	Username       string
	HashedPassword string
	UUID           string
}
