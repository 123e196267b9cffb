package signature

import (
	"fmt"

	"github.com/ChainSafe/gossamer/lib/crypto/sr25519"
)

const (
	SubstrateNetworkId = 42

	Ed25519SignatureLength     = 64
	RecoverableSignatureLength = 65
)

// Scheme names reported in verification outcomes.
const (
	SchemeEVM       = "ecdsa-secp256k1-recoverable"
	SchemeBitcoin   = "ecdsa-bitcoin-message"
	SchemeSolana    = "ed25519"
	SchemeNear      = "ed25519-near"
	SchemeSubstrate = "sr25519"
	SchemeCosmos    = "ecdsa-secp256k1"
)

// Result is the outcome of a single verification attempt. A cryptographic
// mismatch is a Result with Verified=false, never an error.
type Result struct {
	Verified bool
	Reason   string
}

// Verifier checks one prepared (message, signature) pair against the
// expected identity of a chain family. Implementations return an error only
// when the identity cannot be parsed.
type Verifier interface {
	Scheme() string
	Verify(message, signature []byte, identity string) (Result, error)
}

// MalformedIdentityError reports an address or public key that cannot be
// parsed into the chain's native key format.
type MalformedIdentityError struct {
	Scheme   string
	Identity string
	Err      error
}

func (e *MalformedIdentityError) Error() string {
	return fmt.Sprintf("malformed %s identity %q: %v", e.Scheme, e.Identity, e.Err)
}

func (e *MalformedIdentityError) Unwrap() error {
	return e.Err
}

// Provider signs messages with an sr25519 keypair following the Substrate
// message convention.
type Provider struct {
	keypair *sr25519.Keypair
}

func lengthMismatch(want, got int) Result {
	return Result{
		Reason: fmt.Sprintf("invalid signature length: expected %d bytes, got %d", want, got),
	}
}

func malformed(scheme, identity string, err error) error {
	return &MalformedIdentityError{Scheme: scheme, Identity: identity, Err: err}
}
