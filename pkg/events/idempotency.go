// Package events implements the Event Runner & Evidence fabric (C9,
// spec §4.8): synchronous event emission in program order, append-only
// evidence, idempotency-key derivation from stable inputs, and the
// failure taxonomy every orchestrator retry decision delegates to.
//
// Idempotency-key derivation is grounded on the teacher's HKDF tenant
// key derivation (core/pkg/governance/keyring.go: HKDF-SHA256 over a
// seed + context + info), repurposed here from "derive a keypair" to
// "derive a short, stable settlement-operation key" — the KDF's job is
// identical (stable inputs in, uniformly-distributed stable bytes out).
package events

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// IdempotencyKey derives a stable key from fingerprint + phase +
// providerID + attemptIdx (spec §4.8: "every event carries an
// idempotency_key derived from stable inputs"). Re-deriving with
// identical inputs always yields the identical key.
func IdempotencyKey(fingerprint, phase, providerID string, attemptIdx int) string {
	info := fmt.Sprintf("%s|%s|%d", phase, providerID, attemptIdx)
	reader := hkdf.New(sha256.New, []byte(fingerprint), nil, []byte(info))
	out := make([]byte, 16)
	if _, err := io.ReadFull(reader, out); err != nil {
		// hkdf.New's Read only fails if the requested length exceeds
		// 255*hash.Size, which 16 bytes never does; panicking here would
		// indicate a logic error, not a runtime condition.
		panic(fmt.Sprintf("events: hkdf derivation failed: %v", err))
	}
	return hex.EncodeToString(out)
}
