package models

import "time"

// Device is a client installation seen by the server.
type Device struct {
	DeviceID    string
	UserID      int64
	FirstSeenAt time.Time
	LastSeenAt  time.Time
	LastPushAt  *time.Time
}
