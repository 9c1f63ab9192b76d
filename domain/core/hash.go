package core

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Fingerprint is a stable SHA-256 digest of a configuration value.
type Fingerprint string

// NewFingerprint hashes the JSON encoding of v. Map keys are encoded in
// sorted order, so equal values hash equally.
func NewFingerprint(v any) (Fingerprint, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return Fingerprint(hex.EncodeToString(sum[:])), nil
}

func (f Fingerprint) String() string { return string(f) }

// Short returns the first 12 hex characters.
func (f Fingerprint) Short() string {
	if len(f) <= 12 {
		return string(f)
	}
	return string(f[:12])
}
