package signature

import (
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

var errNotHexAddress = errors.New("not a 20 byte hex address")

// EVMVerifier recovers the signer of a 32 byte digest from a 65 byte r||s||v
// signature and compares it with the expected address.
type EVMVerifier struct{}

func NewEVMVerifier() *EVMVerifier {
	return &EVMVerifier{}
}

func (v *EVMVerifier) Scheme() string {
	return SchemeEVM
}

// Verify accepts v as 0/1 or 27/28. Other recovery ids are reported as a
// failed attempt.
func (v *EVMVerifier) Verify(digest, sig []byte, address string) (Result, error) {
	if !common.IsHexAddress(address) {
		return Result{}, malformed(SchemeEVM, address, errNotHexAddress)
	}
	expected := common.HexToAddress(address)

	if len(digest) != common.HashLength {
		return Result{Reason: fmt.Sprintf("invalid digest length: expected %d bytes, got %d", common.HashLength, len(digest))}, nil
	}
	if len(sig) != crypto.SignatureLength {
		return lengthMismatch(crypto.SignatureLength, len(sig)), nil
	}

	// crypto.SigToPub wants the recovery id as 0/1
	rsv := make([]byte, crypto.SignatureLength)
	copy(rsv, sig)
	if rsv[crypto.RecoveryIDOffset] >= 27 {
		rsv[crypto.RecoveryIDOffset] -= 27
	}
	if rsv[crypto.RecoveryIDOffset] > 1 {
		return Result{Reason: fmt.Sprintf("invalid recovery id v=%d", sig[crypto.RecoveryIDOffset])}, nil
	}

	pub, err := crypto.SigToPub(digest, rsv)
	if err != nil {
		return Result{Reason: fmt.Sprintf("public key recovery failed: %v", err)}, nil
	}

	recovered := crypto.PubkeyToAddress(*pub)
	if recovered != expected {
		return Result{
			Reason: fmt.Sprintf("recovered address %s does not match expected %s", recovered.Hex(), expected.Hex()),
		}, nil
	}

	return Result{Verified: true, Reason: "recovered " + recovered.Hex()}, nil
}

// PersonalMessageHash is the EIP-191 digest of message:
// keccak256("\x19Ethereum Signed Message:\n" + len(message) + message).
func PersonalMessageHash(message []byte) []byte {
	return accounts.TextHash(message)
}

// TypedDataHash parses an EIP-712 JSON document and returns
// keccak256("\x19\x01" || domainSeparator || hashStruct(message)).
func TypedDataHash(raw []byte) ([]byte, error) {
	var typedData apitypes.TypedData
	if err := sonic.Unmarshal(raw, &typedData); err != nil {
		return nil, fmt.Errorf("failed to parse typed data: %w", err)
	}
	if typedData.PrimaryType == "" {
		return nil, errors.New("typed data has no primaryType")
	}

	digest, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return nil, fmt.Errorf("failed to hash typed data: %w", err)
	}
	return digest, nil
}

// NormalizeV maps the recovery id conventions seen in the wild onto 27/28:
// 0/1 from MPC signers and EIP-155 values (chainId*2 + 35 + recid).
func NormalizeV(v byte) byte {
	switch {
	case v < 27:
		return v + 27
	case v >= 35:
		return 27 + (v-35)%2
	default:
		return v
	}
}
