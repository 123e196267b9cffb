package signature

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

const (
	cosmosAddressLength = 20
	cosmosSigLength     = 64
)

var errNotCosmosKey = errors.New("expected a compressed secp256k1 public key (hex or base64) or a bech32 account address")

// CosmosVerifier checks secp256k1 signatures over a SHA-256 digest. The
// identity is either a compressed public key, checked with plain ECDSA, or a
// bech32 account address, checked by recovering the key from a 65 byte
// r||s||recid signature.
type CosmosVerifier struct{}

func NewCosmosVerifier() *CosmosVerifier {
	return &CosmosVerifier{}
}

func (v *CosmosVerifier) Scheme() string {
	return SchemeCosmos
}

func (v *CosmosVerifier) Verify(digest, sig []byte, identity string) (Result, error) {
	if hrp, payload, ok := decodeCosmosAddress(identity); ok {
		return v.verifyAddress(digest, sig, hrp, payload)
	}

	pub, err := parseCosmosPublicKey(identity)
	if err != nil {
		return Result{}, malformed(SchemeCosmos, identity, err)
	}

	// a trailing recovery id is irrelevant when the key is known
	if len(sig) == RecoverableSignatureLength {
		sig = sig[:cosmosSigLength]
	}
	if len(sig) != cosmosSigLength {
		return lengthMismatch(cosmosSigLength, len(sig)), nil
	}

	var r, s btcec.ModNScalar
	if overflow := r.SetByteSlice(sig[:32]); overflow {
		return Result{Reason: "signature r overflows the curve order"}, nil
	}
	if overflow := s.SetByteSlice(sig[32:]); overflow {
		return Result{Reason: "signature s overflows the curve order"}, nil
	}
	if r.IsZero() || s.IsZero() {
		return Result{Reason: "signature has a zero component"}, nil
	}

	if !ecdsa.NewSignature(&r, &s).Verify(digest, pub) {
		return Result{Reason: "signature does not match public key"}, nil
	}
	return Result{Verified: true}, nil
}

func (v *CosmosVerifier) verifyAddress(digest, sig []byte, hrp string, payload []byte) (Result, error) {
	if len(sig) != RecoverableSignatureLength {
		return lengthMismatch(RecoverableSignatureLength, len(sig)), nil
	}

	recid := sig[RecoverableSignatureLength-1]
	if recid >= 27 {
		recid -= 27
	}
	if recid > 3 {
		return Result{Reason: fmt.Sprintf("invalid recovery id %d", sig[RecoverableSignatureLength-1])}, nil
	}

	compact := make([]byte, 0, RecoverableSignatureLength)
	compact = append(compact, compactHeaderCompressed+recid)
	compact = append(compact, sig[:cosmosSigLength]...)

	pub, _, err := ecdsa.RecoverCompact(compact, digest)
	if err != nil {
		return Result{Reason: fmt.Sprintf("public key recovery failed: %v", err)}, nil
	}

	keyHash := btcutil.Hash160(pub.SerializeCompressed())
	recovered, err := bech32.ConvertBits(keyHash, 8, 5, true)
	if err != nil {
		return Result{}, fmt.Errorf("failed to convert key hash: %w", err)
	}
	recoveredAddr, err := bech32.Encode(hrp, recovered)
	if err != nil {
		return Result{}, fmt.Errorf("failed to encode recovered address: %w", err)
	}

	if !bytes.Equal(keyHash, payload) {
		return Result{Reason: "recovered address " + recoveredAddr + " does not match"}, nil
	}
	return Result{Verified: true, Reason: "recovered " + recoveredAddr}, nil
}

// CosmosMessageHash is the SHA-256 digest Cosmos SDK keys sign over.
func CosmosMessageHash(message []byte) []byte {
	sum := sha256.Sum256(message)
	return sum[:]
}

// IsBech32Account reports whether s is a bech32 address carrying a 20 byte
// account key hash.
func IsBech32Account(s string) bool {
	_, _, ok := decodeCosmosAddress(s)
	return ok
}

func decodeCosmosAddress(s string) (string, []byte, bool) {
	hrp, data, err := bech32.DecodeToBase256(strings.TrimSpace(s))
	if err != nil || len(data) != cosmosAddressLength {
		return "", nil, false
	}
	return hrp, data, true
}

func parseCosmosPublicKey(s string) (*btcec.PublicKey, error) {
	s = strings.TrimSpace(s)

	var raw []byte
	if b, err := hexutil.Decode(ensureHexPrefix(s)); err == nil {
		raw = b
	} else if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		raw = b
	} else {
		return nil, errNotCosmosKey
	}

	if len(raw) != btcec.PubKeyBytesLenCompressed {
		return nil, errNotCosmosKey
	}
	return btcec.ParsePubKey(raw)
}

func ensureHexPrefix(s string) string {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s
	}
	return "0x" + s
}
