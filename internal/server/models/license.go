package models

import "time"

// License is an uploaded license document. At most one row is active.
type License struct {
	ID         int64
	LicenseID  string
	Document   []byte
	Active     bool
	UploadedAt time.Time
}
