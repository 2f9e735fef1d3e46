// Package license implements offline-verifiable licenses.
//
// A license file is a JSON document
//
//	{"data": {...}, "signature": "<base64>", "version": "1", "format": "ed25519"}
//
// where signature is a detached Ed25519 signature over the canonical JSON
// encoding of data (see Canonical). Verification needs only the issuer's
// public key, so devices can check a cached license without connectivity.
package license

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	// Format identifies the signature scheme.
	Format = "ed25519"
	// Version is the current license document version.
	Version = "1"
)

var (
	ErrMalformed = errors.New("malformed license")
	ErrInvalid   = errors.New("invalid license data")
)

// Data holds the signed license fields.
type Data struct {
	LicenseID string
	SeatsMax  int
	ExpiresAt *time.Time
	IssuedAt  time.Time
	Issuer    string
}

// SignedLicense is the on-disk and on-wire license document. Data keeps the
// exact bytes that were signed.
type SignedLicense struct {
	Data      json.RawMessage `json:"data"`
	Signature string          `json:"signature"`
	Version   string          `json:"version"`
	Format    string          `json:"format"`
}

// Parse decodes a license document without verifying it.
func Parse(raw []byte) (*SignedLicense, error) {
	var l SignedLicense
	if err := json.Unmarshal(raw, &l); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(l.Data) == 0 || l.Signature == "" {
		return nil, fmt.Errorf("%w: missing data or signature", ErrMalformed)
	}
	return &l, nil
}

// Marshal encodes the license as indented JSON for writing to a file.
func (l *SignedLicense) Marshal() ([]byte, error) {
	return l.encode("  ")
}

// Compact encodes the license on a single line with data in canonical form.
func (l *SignedLicense) Compact() ([]byte, error) {
	return l.encode("")
}

// encode never HTML-escapes: the data bytes must stay byte-equal to the
// canonical form once whitespace is removed.
func (l *SignedLicense) encode(indent string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if indent != "" {
		enc.SetIndent("", indent)
	}
	if err := enc.Encode(l); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Decode parses the signed data fields. It does not check the signature.
func (l *SignedLicense) Decode() (*Data, error) {
	return decodeData(l.Data)
}
