// Package models defines server-side data models persisted in the database.
package models

import "time"

// User is a worker account. Verifier is derived on the device from the
// password and Salt; the password itself is never stored.
type User struct {
	ID        int64
	UserName  string
	Name      string
	Salt      []byte
	Verifier  []byte
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
