package license

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Sign produces a signed license for d.
func Sign(d Data, key ed25519.PrivateKey) (*SignedLicense, error) {
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("bad private key length %d", len(key))
	}

	canonical, err := Canonical(d)
	if err != nil {
		return nil, err
	}

	sig := ed25519.Sign(key, canonical)

	return &SignedLicense{
		Data:      canonical,
		Signature: base64.StdEncoding.EncodeToString(sig),
		Version:   Version,
		Format:    Format,
	}, nil
}

// Verify reports whether l carries a valid signature by the holder of key.
// It returns false for any malformed input and never panics.
//
// The data bytes must be the canonical encoding of the fields they hold
// (whitespace aside), so two encodings of the same license cannot both verify.
func Verify(l *SignedLicense, key ed25519.PublicKey) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	if l == nil || len(key) != ed25519.PublicKeySize {
		return false
	}
	if l.Format != Format || l.Version != Version {
		return false
	}

	sig, err := base64.StdEncoding.DecodeString(l.Signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}

	d, err := decodeData(l.Data)
	if err != nil {
		return false
	}
	canonical, err := Canonical(*d)
	if err != nil {
		return false
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, l.Data); err != nil {
		return false
	}
	if !bytes.Equal(compact.Bytes(), canonical) {
		return false
	}

	return ed25519.Verify(key, canonical, sig)
}

// VerifyBytes parses raw and verifies it.
func VerifyBytes(raw []byte, key ed25519.PublicKey) bool {
	l, err := Parse(raw)
	if err != nil {
		return false
	}
	return Verify(l, key)
}
