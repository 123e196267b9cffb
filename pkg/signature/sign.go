package signature

import (
	"encoding/hex"
	"fmt"

	"github.com/ChainSafe/gossamer/lib/crypto/sr25519"
	"github.com/rs/zerolog/log"
	"github.com/vedhavyas/go-subkey"
)

// NewProvider creates a new signature provider from an sr25519 keypair
func NewProvider(keypair *sr25519.Keypair) (*Provider, error) {
	if keypair == nil {
		return nil, fmt.Errorf("keypair is nil")
	}
	return &Provider{
		keypair: keypair,
	}, nil
}

// Sign signs the blake2b-256 digest of message, which is what
// SubstrateVerifier checks, and returns the signature as 0x hex.
func (p *Provider) Sign(message []byte) (string, error) {
	if p.keypair == nil {
		return "", fmt.Errorf("private key not initialized")
	}

	signature, err := p.keypair.Sign(SubstrateMessageHash(message))
	if err != nil {
		log.Error().Err(err).Msg("Failed to sign message")
		return "", fmt.Errorf("failed to sign message: %w", err)
	}

	return "0x" + hex.EncodeToString(signature), nil
}

// Address is the provider's SS58 address on the generic Substrate network.
func (p *Provider) Address() string {
	return ToSs58Address(p.keypair)
}

// ToSs58Address encodes the keypair's public key for SubstrateNetworkId.
func ToSs58Address(keypair *sr25519.Keypair) string {
	return subkey.SS58Encode(keypair.Public().Encode(), SubstrateNetworkId)
}
