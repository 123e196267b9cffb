package signature

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mr-tron/base58"
)

const (
	nearKeyPrefix       = "ed25519:"
	solanaMessagePrefix = "\x19Solana Signed Message:\n"
)

var (
	errKeyLength        = fmt.Errorf("public key must be %d bytes", ed25519.PublicKeySize)
	errNamedNearAccount = errors.New("named accounts need an RPC lookup, pass the ed25519 public key or implicit account id")
)

// Ed25519Verifier checks a 64 byte ed25519 signature over the bytes it is
// handed. Message transforms are applied by the caller.
type Ed25519Verifier struct {
	scheme   string
	parseKey func(string) (ed25519.PublicKey, error)
}

// NewSolanaVerifier expects base58 encoded 32 byte public keys.
func NewSolanaVerifier() *Ed25519Verifier {
	return &Ed25519Verifier{scheme: SchemeSolana, parseKey: ParseSolanaPublicKey}
}

// NewNearVerifier expects "ed25519:<base58>" public keys or 64 character hex
// implicit account ids.
func NewNearVerifier() *Ed25519Verifier {
	return &Ed25519Verifier{scheme: SchemeNear, parseKey: ParseNearPublicKey}
}

func (v *Ed25519Verifier) Scheme() string {
	return v.scheme
}

func (v *Ed25519Verifier) Verify(message, sig []byte, identity string) (Result, error) {
	pub, err := v.parseKey(identity)
	if err != nil {
		return Result{}, malformed(v.scheme, identity, err)
	}
	if len(sig) != ed25519.SignatureSize {
		return lengthMismatch(ed25519.SignatureSize, len(sig)), nil
	}
	if !ed25519.Verify(pub, message, sig) {
		return Result{Reason: "signature does not match public key"}, nil
	}
	return Result{Verified: true}, nil
}

func ParseSolanaPublicKey(s string) (ed25519.PublicKey, error) {
	raw, err := base58.Decode(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("invalid base58: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, errKeyLength
	}
	return ed25519.PublicKey(raw), nil
}

func ParseNearPublicKey(s string) (ed25519.PublicKey, error) {
	s = strings.TrimSpace(s)

	if rest, ok := strings.CutPrefix(s, nearKeyPrefix); ok {
		return ParseSolanaPublicKey(rest)
	}

	// implicit accounts are the lowercase hex of the public key
	if len(s) == 2*ed25519.PublicKeySize {
		raw, err := hex.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("invalid implicit account id: %w", err)
		}
		return ed25519.PublicKey(raw), nil
	}

	return nil, errNamedNearAccount
}

// SolanaPrefixedHash is SHA-256 over the off-chain message prefix, the
// decimal message length and the message, as produced by wallets that hash
// before signing.
func SolanaPrefixedHash(message []byte) []byte {
	h := sha256.New()
	h.Write([]byte(solanaMessagePrefix))
	h.Write([]byte(strconv.Itoa(len(message))))
	h.Write(message)
	return h.Sum(nil)
}

// NearMessageHash is the SHA-256 digest NEAR signers sign over.
func NearMessageHash(message []byte) []byte {
	sum := sha256.Sum256(message)
	return sum[:]
}
