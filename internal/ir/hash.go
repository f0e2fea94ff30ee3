package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainAction = "minirx/action/v1"
	DomainState  = "minirx/state/v1"
	DomainValue  = "minirx/value/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ActionID computes the content-addressed id of an action at a given
// logical sequence number. The same action dispatched twice gets two ids.
func ActionID(a Action, seq int64) (string, error) {
	obj := map[string]any{
		"type": a.Type,
		"seq":  seq,
	}
	if a.Payload != nil {
		obj["payload"] = a.Payload
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("ActionID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainAction, canonical), nil
}

// StateHash computes the content hash of a full state tree.
func StateHash(s State) (string, error) {
	canonical, err := MarshalCanonical(s)
	if err != nil {
		return "", fmt.Errorf("StateHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainState, canonical), nil
}

// Fingerprint hashes an arbitrary value. Two values with the same
// fingerprint have the same canonical content.
func Fingerprint(v any) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("Fingerprint: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainValue, canonical), nil
}

// MustActionID is like ActionID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustActionID(a Action, seq int64) string {
	id, err := ActionID(a, seq)
	if err != nil {
		panic(err)
	}
	return id
}

// MustStateHash is like StateHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustStateHash(s State) string {
	h, err := StateHash(s)
	if err != nil {
		panic(err)
	}
	return h
}
