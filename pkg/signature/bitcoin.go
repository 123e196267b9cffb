package signature

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

const bitcoinMessageMagic = "Bitcoin Signed Message:\n"

// compact signature headers: 27 + recid, +4 when the key is compressed
const (
	compactHeaderBase       = 27
	compactHeaderCompressed = 31
	compactHeaderMax        = 34
	// BIP-137 headers for P2SH-P2WPKH (35-38) and P2WPKH (39-42)
	segwitHeaderMin = 35
	segwitHeaderMax = 42
)

var bitcoinNetworks = []*chaincfg.Params{
	&chaincfg.MainNetParams,
	&chaincfg.TestNet3Params,
	&chaincfg.RegressionNetParams,
	&chaincfg.SigNetParams,
}

var (
	errUnknownBitcoinAddress = errors.New("not a bitcoin address on any known network")
	errUnsupportedAddress    = errors.New("address type cannot sign legacy messages")
)

// BitcoinVerifier recovers the public key from a 65 byte compact signature
// (header || r || s) and checks that it controls the expected address.
type BitcoinVerifier struct{}

func NewBitcoinVerifier() *BitcoinVerifier {
	return &BitcoinVerifier{}
}

func (v *BitcoinVerifier) Scheme() string {
	return SchemeBitcoin
}

func (v *BitcoinVerifier) Verify(digest, compact []byte, address string) (Result, error) {
	addr, params, err := decodeBitcoinAddress(address)
	if err != nil {
		return Result{}, malformed(SchemeBitcoin, address, err)
	}
	if _, ok := addr.(*btcutil.AddressTaproot); ok {
		return Result{Reason: "taproot addresses need BIP-322 signatures, not legacy message signatures"}, nil
	}

	if len(compact) != RecoverableSignatureLength {
		return lengthMismatch(RecoverableSignatureLength, len(compact)), nil
	}
	if len(digest) != chainhash.HashSize {
		return Result{Reason: fmt.Sprintf("invalid digest length: expected %d bytes, got %d", chainhash.HashSize, len(digest))}, nil
	}

	pub, wasCompressed, err := ecdsa.RecoverCompact(compact, digest)
	if err != nil {
		return Result{Reason: fmt.Sprintf("public key recovery failed: %v", err)}, nil
	}

	// MPC wallets derive addresses from the compressed key; the uncompressed
	// form is only tried when the header says so
	keys := [][]byte{pub.SerializeCompressed()}
	if !wasCompressed {
		keys = append(keys, pub.SerializeUncompressed())
	}

	var derived btcutil.Address
	for _, key := range keys {
		derived, err = addressForKey(addr, key, params)
		if err != nil {
			return Result{}, malformed(SchemeBitcoin, address, err)
		}
		if bytes.Equal(derived.ScriptAddress(), addr.ScriptAddress()) {
			return Result{Verified: true, Reason: "recovered " + derived.EncodeAddress()}, nil
		}
	}

	return Result{
		Reason: fmt.Sprintf("recovered address %s does not match expected %s", derived.EncodeAddress(), addr.EncodeAddress()),
	}, nil
}

// BitcoinMessageHash is the double SHA-256 of the varstr encoded
// "Bitcoin Signed Message:\n" magic followed by the varstr encoded message.
func BitcoinMessageHash(message []byte) []byte {
	var buf bytes.Buffer
	// writes to a bytes.Buffer cannot fail
	_ = wire.WriteVarString(&buf, 0, bitcoinMessageMagic)
	_ = wire.WriteVarBytes(&buf, 0, message)
	return chainhash.DoubleHashB(buf.Bytes())
}

// NormalizeCompactHeader maps a recovery header onto the 27-34 range that
// ecdsa.RecoverCompact understands. Raw recovery ids (0-3) are read as
// compressed keys, BIP-137 segwit headers are folded onto compressed ones.
func NormalizeCompactHeader(h byte) (byte, bool) {
	switch {
	case h <= 3:
		return compactHeaderCompressed + h, true
	case h >= compactHeaderBase && h <= compactHeaderMax:
		return h, true
	case h >= segwitHeaderMin && h <= segwitHeaderMax:
		return compactHeaderCompressed + (h-segwitHeaderMin)%4, true
	default:
		return 0, false
	}
}

func decodeBitcoinAddress(s string) (btcutil.Address, *chaincfg.Params, error) {
	for _, params := range bitcoinNetworks {
		addr, err := btcutil.DecodeAddress(s, params)
		if err == nil && addr.IsForNet(params) {
			return addr, params, nil
		}
	}
	return nil, nil, errUnknownBitcoinAddress
}

func addressForKey(expected btcutil.Address, key []byte, params *chaincfg.Params) (btcutil.Address, error) {
	keyHash := btcutil.Hash160(key)

	switch expected.(type) {
	case *btcutil.AddressPubKeyHash:
		return btcutil.NewAddressPubKeyHash(keyHash, params)
	case *btcutil.AddressWitnessPubKeyHash:
		return btcutil.NewAddressWitnessPubKeyHash(keyHash, params)
	case *btcutil.AddressScriptHash:
		// P2SH wrapped P2WPKH: redeem script is OP_0 <20 byte key hash>
		redeemScript := append([]byte{0x00, 0x14}, keyHash...)
		return btcutil.NewAddressScriptHash(redeemScript, params)
	default:
		return nil, errUnsupportedAddress
	}
}
