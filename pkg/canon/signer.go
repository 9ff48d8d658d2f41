package canon

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"

	"github.com/mr-tron/base58"
)

// Signer is the stable interface every signing participant (buyer, seller,
// arbiter) implements. Sign/Verify operate over the canonical bytes of a
// message; callers are responsible for canonicalizing before calling Sign
// and after calling Verify's counterpart.
type Signer interface {
	Sign(data []byte) (string, error)
	PublicKeyB58() string
	PublicKeyBytes() ed25519.PublicKey
}

// Ed25519Signer is the only Signer implementation in this module. Buyer,
// provider and arbiter keys are all Ed25519.
type Ed25519Signer struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// NewEd25519Signer generates a fresh keypair.
func NewEd25519Signer() (*Ed25519Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("canon: key generation failed: %w", err)
	}
	return &Ed25519Signer{priv: priv, pub: pub}, nil
}

// NewEd25519SignerFromSeed constructs a deterministic signer from a 32-byte
// seed. Used by tests and demos that need stable keypairs across runs.
func NewEd25519SignerFromSeed(seed []byte) (*Ed25519Signer, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("canon: seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &Ed25519Signer{priv: priv, pub: priv.Public().(ed25519.PublicKey)}, nil
}

func (s *Ed25519Signer) Sign(data []byte) (string, error) {
	sig := ed25519.Sign(s.priv, data)
	return base58.Encode(sig), nil
}

func (s *Ed25519Signer) PublicKeyB58() string {
	return base58.Encode(s.pub)
}

func (s *Ed25519Signer) PublicKeyBytes() ed25519.PublicKey {
	return s.pub
}

// Verify checks a base58-encoded Ed25519 signature over the raw bytes
// data against a base58-encoded public key.
func Verify(pubKeyB58, sigB58 string, data []byte) (bool, error) {
	pub, err := base58.Decode(pubKeyB58)
	if err != nil {
		return false, fmt.Errorf("canon: invalid public key b58: %w", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return false, fmt.Errorf("canon: invalid public key size %d", len(pub))
	}
	sig, err := base58.Decode(sigB58)
	if err != nil {
		return false, fmt.Errorf("canon: invalid signature b58: %w", err)
	}
	return ed25519.Verify(ed25519.PublicKey(pub), data, sig), nil
}

// SignEnvelope canonicalizes message, signs it, and wraps the result in an
// Envelope. message must be a pointer to (or value of) one of the tagged
// message variants in package contracts.
func SignEnvelope(signer Signer, msgType string, message any) (*Envelope, error) {
	canonical, err := JCS(message)
	if err != nil {
		return nil, fmt.Errorf("canon: canonicalize message: %w", err)
	}
	sig, err := signer.Sign(canonical)
	if err != nil {
		return nil, fmt.Errorf("canon: sign message: %w", err)
	}
	return &Envelope{
		MessageType:        msgType,
		Message:            message,
		SignerPublicKeyB58: signer.PublicKeyB58(),
		Signature:          sig,
	}, nil
}

// VerifyEnvelope re-canonicalizes env.Message and checks env.Signature
// against env.SignerPublicKeyB58, optionally requiring the signer match
// expectedSignerB58 (pass "" to skip that check).
func VerifyEnvelope(env *Envelope, expectedSignerB58 string) (bool, error) {
	if expectedSignerB58 != "" && env.SignerPublicKeyB58 != expectedSignerB58 {
		return false, nil
	}
	canonical, err := JCS(env.Message)
	if err != nil {
		return false, fmt.Errorf("canon: canonicalize message: %w", err)
	}
	return Verify(env.SignerPublicKeyB58, env.Signature, canonical)
}

// DecodeMessage re-marshals an envelope's Message field (a map when the
// envelope arrived over JSON, already the concrete type when it was built
// in-process by SignEnvelope) and decodes it into out. This is the one
// extra round trip callers pay to go from "verified opaque payload" to "a
// typed ASK/COMMIT/REVEAL message I can branch on".
func DecodeMessage(message any, out any) error {
	raw, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("canon: re-marshal message: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("canon: decode message: %w", err)
	}
	return nil
}

// Envelope is the wire wrapper carrying exactly one signed protocol
// message. MessageType discriminates the variant (INTENT, ASK, COUNTER,
// ACCEPT, COMMIT, REVEAL, STREAM_CHUNK, CREDENTIAL); Message holds the
// decoded payload so callers avoid a second JSON round-trip.
type Envelope struct {
	MessageType        string `json:"message_type"`
	Message            any    `json:"message"`
	SignerPublicKeyB58 string `json:"signer_public_key_b58"`
	Signature          string `json:"signature"`
}
