package signature

import (
	"fmt"

	"github.com/ChainSafe/gossamer/lib/crypto/ed25519"
	"github.com/ChainSafe/gossamer/lib/crypto/sr25519"
	"github.com/vedhavyas/go-subkey"
	"golang.org/x/crypto/blake2b"
)

// MultiSignature variant tags
const (
	multiSigEd25519 byte = 0x00
	multiSigSr25519 byte = 0x01
)

// SubstrateVerifier checks sr25519 signatures against an SS58 address, and
// falls back to ed25519 for accounts backed by ed25519 keys.
type SubstrateVerifier struct{}

func NewSubstrateVerifier() *SubstrateVerifier {
	return &SubstrateVerifier{}
}

func (v *SubstrateVerifier) Scheme() string {
	return SchemeSubstrate
}

// Verify accepts a bare 64 byte signature or a 65 byte MultiSignature whose
// first byte selects the key type.
func (v *SubstrateVerifier) Verify(message, sig []byte, ss58Address string) (Result, error) {
	_, pubKeyBytes, err := subkey.SS58Decode(ss58Address)
	if err != nil {
		return Result{}, malformed(SchemeSubstrate, ss58Address, fmt.Errorf("failed to decode SS58 address: %w", err))
	}
	if len(pubKeyBytes) != 32 {
		return Result{}, malformed(SchemeSubstrate, ss58Address, fmt.Errorf("SS58 payload is %d bytes, not an account key", len(pubKeyBytes)))
	}

	tryEd, trySr := true, true
	if len(sig) == RecoverableSignatureLength {
		switch sig[0] {
		case multiSigEd25519:
			trySr = false
		case multiSigSr25519:
			tryEd = false
		default:
			return Result{Reason: fmt.Sprintf("unknown MultiSignature variant 0x%02x", sig[0])}, nil
		}
		sig = sig[1:]
	}
	if len(sig) != Ed25519SignatureLength {
		return lengthMismatch(Ed25519SignatureLength, len(sig)), nil
	}

	var reason string
	if trySr {
		ok, err := verifySr25519(message, sig, pubKeyBytes)
		if ok {
			return Result{Verified: true, Reason: "sr25519"}, nil
		}
		reason = "sr25519 signature does not match"
		if err != nil {
			reason = fmt.Sprintf("sr25519: %v", err)
		}
	}
	if tryEd {
		ok, err := verifyEd25519(message, sig, pubKeyBytes)
		if ok {
			return Result{Verified: true, Reason: "ed25519"}, nil
		}
		edReason := "ed25519 signature does not match"
		if err != nil {
			edReason = fmt.Sprintf("ed25519: %v", err)
		}
		if reason != "" {
			reason += "; " + edReason
		} else {
			reason = edReason
		}
	}

	return Result{Reason: reason}, nil
}

// SubstrateMessageHash is the blake2b-256 digest of message.
func SubstrateMessageHash(message []byte) []byte {
	sum := blake2b.Sum256(message)
	return sum[:]
}

func verifySr25519(message, sig, pubKeyBytes []byte) (bool, error) {
	publicKey, err := sr25519.NewPublicKey(pubKeyBytes)
	if err != nil {
		return false, fmt.Errorf("failed to create public key: %w", err)
	}
	return publicKey.Verify(message, sig)
}

func verifyEd25519(message, sig, pubKeyBytes []byte) (bool, error) {
	publicKey, err := ed25519.NewPublicKey(pubKeyBytes)
	if err != nil {
		return false, fmt.Errorf("failed to create public key: %w", err)
	}
	return publicKey.Verify(message, sig)
}
