// ABOUTME: Ed25519 verification of inbound interaction requests
// ABOUTME: The platform signs timestamp+body with the application's key

package discord

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrBadSignature is returned for requests whose signature does not verify.
var ErrBadSignature = errors.New("invalid request signature")

// Verifier checks request signatures against the application public key.
type Verifier struct {
	key ed25519.PublicKey
}

// NewVerifier parses a hex-encoded public key.
func NewVerifier(publicKeyHex string) (*Verifier, error) {
	key, err := hex.DecodeString(publicKeyHex)
	if err != nil {
		return nil, fmt.Errorf("decoding public key: %w", err)
	}
	if len(key) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public key must be %d bytes, got %d", ed25519.PublicKeySize, len(key))
	}
	return &Verifier{key: ed25519.PublicKey(key)}, nil
}

// Verify checks the X-Signature-Ed25519 value over timestamp+body.
func (v *Verifier) Verify(signatureHex, timestamp string, body []byte) error {
	if signatureHex == "" || timestamp == "" {
		return fmt.Errorf("%w: missing signature headers", ErrBadSignature)
	}
	sig, err := hex.DecodeString(signatureHex)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return fmt.Errorf("%w: malformed signature", ErrBadSignature)
	}
	msg := make([]byte, 0, len(timestamp)+len(body))
	msg = append(msg, timestamp...)
	msg = append(msg, body...)
	if !ed25519.Verify(v.key, msg, sig) {
		return ErrBadSignature
	}
	return nil
}
