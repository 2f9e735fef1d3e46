package license

import (
	"crypto/ed25519"
	"fmt"
	"time"
)

const (
	// SeatWarningRatio is the share of seats in use that raises a warning.
	SeatWarningRatio = 0.9
	// ExpiryWarningWindow is how long before expiry a warning is raised.
	ExpiryWarningWindow = 30 * 24 * time.Hour
)

// Status is the evaluated state of a license at a point in time.
type Status struct {
	IsValid       bool       `json:"isValid"`
	Errors        []string   `json:"errors"`
	Warnings      []string   `json:"warnings"`
	LicenseID     string     `json:"licenseId,omitempty"`
	Issuer        string     `json:"issuer,omitempty"`
	SeatsMax      int        `json:"seatsMax,omitempty"`
	SeatsUsed     int        `json:"seatsUsed"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
	DaysRemaining *int       `json:"daysRemaining,omitempty"`
}

func (s *Status) fail(format string, args ...any) {
	s.Errors = append(s.Errors, fmt.Sprintf(format, args...))
}

func (s *Status) warn(format string, args ...any) {
	s.Warnings = append(s.Warnings, fmt.Sprintf(format, args...))
}

// CheckStatus verifies l and evaluates seat usage, expiry and issue date
// against now. An invalid signature short-circuits all other checks.
func CheckStatus(l *SignedLicense, key ed25519.PublicKey, seatsUsed int, now time.Time) Status {
	st := Status{Errors: []string{}, Warnings: []string{}, SeatsUsed: seatsUsed}

	if !Verify(l, key) {
		st.fail("license signature is invalid")
		return st
	}

	d, err := l.Decode()
	if err != nil {
		st.fail("license data is unreadable: %v", err)
		return st
	}

	st.LicenseID = d.LicenseID
	st.Issuer = d.Issuer
	st.SeatsMax = d.SeatsMax
	st.ExpiresAt = d.ExpiresAt

	switch {
	case seatsUsed > d.SeatsMax:
		st.fail("seat limit exceeded: %d of %d seats in use", seatsUsed, d.SeatsMax)
	case seatsUsed < d.SeatsMax && float64(seatsUsed) >= SeatWarningRatio*float64(d.SeatsMax):
		st.warn("approaching seat limit: %d of %d seats in use", seatsUsed, d.SeatsMax)
	}

	if d.ExpiresAt != nil {
		left := d.ExpiresAt.Sub(now)
		days := int(left.Hours() / 24)
		st.DaysRemaining = &days
		switch {
		case !d.ExpiresAt.After(now):
			st.fail("license expired on %s", d.ExpiresAt.Format(time.DateOnly))
		case left <= ExpiryWarningWindow:
			st.warn("license expires in %d days", days)
		}
	}

	if d.IssuedAt.After(now) {
		st.fail("license issue date %s is in the future", d.IssuedAt.Format(time.RFC3339))
	}

	st.IsValid = len(st.Errors) == 0
	return st
}

// CheckStatusBytes parses raw and evaluates it with CheckStatus.
func CheckStatusBytes(raw []byte, key ed25519.PublicKey, seatsUsed int, now time.Time) Status {
	l, err := Parse(raw)
	if err != nil {
		st := Status{Errors: []string{}, Warnings: []string{}, SeatsUsed: seatsUsed}
		st.fail("license signature is invalid")
		return st
	}
	return CheckStatus(l, key, seatsUsed, now)
}
