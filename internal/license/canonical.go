package license

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// timeLayout renders instants as ISO-8601 UTC with millisecond precision.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// wireData fixes the field order of the canonical encoding.
type wireData struct {
	LicenseID string  `json:"licenseId"`
	SeatsMax  int     `json:"seatsMax"`
	ExpiresAt *string `json:"expiresAt,omitempty"`
	IssuedAt  string  `json:"issuedAt"`
	Issuer    string  `json:"issuer"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// Validate checks the fields every license must carry.
func (d Data) Validate() error {
	switch {
	case strings.TrimSpace(d.LicenseID) == "":
		return fmt.Errorf("%w: licenseId is required", ErrInvalid)
	case d.SeatsMax <= 0:
		return fmt.Errorf("%w: seatsMax must be positive", ErrInvalid)
	case d.IssuedAt.IsZero():
		return fmt.Errorf("%w: issuedAt is required", ErrInvalid)
	case strings.TrimSpace(d.Issuer) == "":
		return fmt.Errorf("%w: issuer is required", ErrInvalid)
	case d.ExpiresAt != nil && !d.ExpiresAt.After(d.IssuedAt):
		return fmt.Errorf("%w: expiresAt must be after issuedAt", ErrInvalid)
	}
	return nil
}

// Canonical returns the byte sequence that is signed: compact JSON with the
// fields in the order licenseId, seatsMax, expiresAt, issuedAt, issuer and
// instants formatted by formatTime. HTML characters are not escaped.
func Canonical(d Data) ([]byte, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	w := wireData{
		LicenseID: d.LicenseID,
		SeatsMax:  d.SeatsMax,
		IssuedAt:  formatTime(d.IssuedAt),
		Issuer:    d.Issuer,
	}
	if d.ExpiresAt != nil {
		s := formatTime(*d.ExpiresAt)
		w.ExpiresAt = &s
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(w); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func decodeData(raw []byte) (*Data, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	var w wireData
	if err := dec.Decode(&w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data", ErrMalformed)
	}

	issued, err := time.Parse(time.RFC3339Nano, w.IssuedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: issuedAt: %v", ErrMalformed, err)
	}

	d := &Data{
		LicenseID: w.LicenseID,
		SeatsMax:  w.SeatsMax,
		IssuedAt:  issued.UTC(),
		Issuer:    w.Issuer,
	}
	if w.ExpiresAt != nil {
		exp, err := time.Parse(time.RFC3339Nano, *w.ExpiresAt)
		if err != nil {
			return nil, fmt.Errorf("%w: expiresAt: %v", ErrMalformed, err)
		}
		exp = exp.UTC()
		d.ExpiresAt = &exp
	}
	return d, nil
}
