// Package invite creates groups and joins them from invite capabilities.
//
// A group is identified by the public half of a keypair and the serialized
// keypair is the invite. Whoever holds it can read and write as any member:
// possession of the capability is the whole authorization boundary.
package invite

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/curve25519"
)

// invitePrefix marks the paste-friendly invite encoding.
const invitePrefix = "huddle:"

var b64 = base64.RawURLEncoding

// Keypair is an ed25519 signing pair plus an X25519 encryption pair, all
// base64url encoded. Priv holds the ed25519 seed.
type Keypair struct {
	Pub   string `json:"pub"`
	Priv  string `json:"priv"`
	EPub  string `json:"epub"`
	EPriv string `json:"epriv"`
}

// CapabilityError reports an invite that is incomplete or malformed.
type CapabilityError struct {
	Field  string
	Reason string
}

func (e *CapabilityError) Error() string {
	if e.Field == "" {
		return "invalid invite: " + e.Reason
	}
	return fmt.Sprintf("invalid invite: %s %s", e.Field, e.Reason)
}

// IsCapability reports whether err is, or wraps, a CapabilityError.
func IsCapability(err error) bool {
	var ce *CapabilityError
	return errors.As(err, &ce)
}

// Generate creates a fresh keypair.
func Generate() (Keypair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return Keypair{}, fmt.Errorf("generate signing key: %w", err)
	}
	epriv := make([]byte, curve25519.ScalarSize)
	if _, err := rand.Read(epriv); err != nil {
		return Keypair{}, fmt.Errorf("generate encryption key: %w", err)
	}
	epub, err := curve25519.X25519(epriv, curve25519.Basepoint)
	if err != nil {
		return Keypair{}, fmt.Errorf("derive encryption key: %w", err)
	}
	return Keypair{
		Pub:   b64.EncodeToString(pub),
		Priv:  b64.EncodeToString(priv.Seed()),
		EPub:  b64.EncodeToString(epub),
		EPriv: b64.EncodeToString(epriv),
	}, nil
}

// Encode serializes the keypair as a paste-friendly invite string.
func (k Keypair) Encode() string {
	b, _ := json.Marshal(k)
	return invitePrefix + b64.EncodeToString(b)
}

// Parse decodes an invite. Both the prefixed form produced by Encode and the
// bare JSON keypair are accepted.
func Parse(s string) (Keypair, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Keypair{}, &CapabilityError{Reason: "empty"}
	}

	raw := []byte(s)
	if rest, ok := strings.CutPrefix(s, invitePrefix); ok {
		b, err := b64.DecodeString(rest)
		if err != nil {
			return Keypair{}, &CapabilityError{Reason: "not base64url"}
		}
		raw = b
	}

	var k Keypair
	if err := json.Unmarshal(raw, &k); err != nil {
		return Keypair{}, &CapabilityError{Reason: "not a keypair"}
	}
	if err := k.Validate(); err != nil {
		return Keypair{}, err
	}
	return k, nil
}

// Validate checks that all four halves are present, well formed and belong
// together.
func (k Keypair) Validate() error {
	fields := []struct {
		name string
		val  string
		size int
	}{
		{"pub", k.Pub, ed25519.PublicKeySize},
		{"priv", k.Priv, ed25519.SeedSize},
		{"epub", k.EPub, curve25519.PointSize},
		{"epriv", k.EPriv, curve25519.ScalarSize},
	}
	decoded := make(map[string][]byte, len(fields))
	for _, f := range fields {
		if f.val == "" {
			return &CapabilityError{Field: f.name, Reason: "missing"}
		}
		b, err := b64.DecodeString(f.val)
		if err != nil || len(b) != f.size {
			return &CapabilityError{Field: f.name, Reason: "malformed"}
		}
		decoded[f.name] = b
	}

	pub := ed25519.NewKeyFromSeed(decoded["priv"]).Public().(ed25519.PublicKey)
	if !bytes.Equal(pub, decoded["pub"]) {
		return &CapabilityError{Field: "priv", Reason: "does not match pub"}
	}
	epub, err := curve25519.X25519(decoded["epriv"], curve25519.Basepoint)
	if err != nil || !bytes.Equal(epub, decoded["epub"]) {
		return &CapabilityError{Field: "epriv", Reason: "does not match epub"}
	}
	return nil
}
