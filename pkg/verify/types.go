// Package verify decides whether a signature returned by a custody service
// was produced by the expected key, for every supported chain family.
package verify

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/planbok/playground/pkg/encoding"
)

type ChainFamily string

const (
	EVM       ChainFamily = "evm"
	Bitcoin   ChainFamily = "bitcoin"
	Solana    ChainFamily = "solana"
	Near      ChainFamily = "near"
	Cosmos    ChainFamily = "cosmos"
	Substrate ChainFamily = "substrate"
)

// ChainFamilies lists every family in routing order.
var ChainFamilies = []ChainFamily{EVM, Bitcoin, Solana, Near, Cosmos, Substrate}

// ParseChainFamily accepts family names and the common chain names the
// custody API reports for them.
func ParseChainFamily(s string) (ChainFamily, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "evm", "ethereum", "eth", "polygon", "bsc", "arbitrum", "optimism", "base", "avalanche":
		return EVM, nil
	case "bitcoin", "btc":
		return Bitcoin, nil
	case "solana", "sol":
		return Solana, nil
	case "near":
		return Near, nil
	case "cosmos", "atom", "osmosis":
		return Cosmos, nil
	case "substrate", "polkadot", "dot", "kusama", "ksm":
		return Substrate, nil
	default:
		return "", fmt.Errorf("unknown chain family %q", s)
	}
}

type OperationType string

const (
	Message        OperationType = "message"
	TypedData      OperationType = "typedData"
	Transaction    OperationType = "transaction"
	DelegateAction OperationType = "delegateAction"
)

func ParseOperationType(s string) (OperationType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "message", "personal_sign", "signmessage", "sign_message":
		return Message, nil
	case "typeddata", "typed_data", "eip712", "signtypeddata", "sign_typed_data":
		return TypedData, nil
	case "transaction", "tx", "signtransaction", "sign_transaction":
		return Transaction, nil
	case "delegateaction", "delegate_action", "signdelegateaction":
		return DelegateAction, nil
	default:
		return "", fmt.Errorf("unknown operation type %q", s)
	}
}

type Status string

const (
	StatusIdle     Status = "idle"
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusFailed   Status = "failed"
)

// Request is everything needed to check one signature.
type Request struct {
	ChainFamily         ChainFamily       `json:"chainFamily"`
	OperationType       OperationType     `json:"operationType"`
	RawMessage          string            `json:"rawMessage"`
	MessageIsHexEncoded bool              `json:"messageIsHexEncoded,omitempty"`
	SignatureMaterial   SignatureMaterial `json:"signatureMaterial"`
	ExpectedIdentity    string            `json:"expectedIdentity"`
	SignatureEncoding   encoding.Encoding `json:"signatureEncoding,omitempty"`
}

// Outcome is the result of a dispatch. Explanation is always set once the
// status is verified or failed.
type Outcome struct {
	Status      Status   `json:"status"`
	Explanation string   `json:"explanation"`
	Scheme      string   `json:"scheme,omitempty"`
	Attempts    []string `json:"attempts,omitempty"`
}

// SignatureMaterial is either a single encoded signature string or separate
// r, s and v components.
type SignatureMaterial struct {
	Combined string
	R        string
	S        string
	V        *RecoveryID
}

// IsComponents reports whether the material was given as r/s/v.
func (m SignatureMaterial) IsComponents() bool {
	return m.Combined == "" && (m.R != "" || m.S != "")
}

// IsZero reports whether no signature material was supplied at all.
func (m SignatureMaterial) IsZero() bool {
	return m.Combined == "" && m.R == "" && m.S == "" && m.V == nil
}

type signatureObject struct {
	Signature string      `json:"signature,omitempty"`
	Sig       string      `json:"sig,omitempty"`
	R         string      `json:"r,omitempty"`
	S         string      `json:"s,omitempty"`
	V         *RecoveryID `json:"v,omitempty"`
}

// UnmarshalJSON accepts a string, or an object carrying either a
// signature/sig field or r, s and v.
func (m *SignatureMaterial) UnmarshalJSON(b []byte) error {
	trimmed := strings.TrimSpace(string(b))
	if trimmed == "" || trimmed == "null" {
		*m = SignatureMaterial{}
		return nil
	}

	if trimmed[0] == '"' {
		var s string
		if err := sonic.UnmarshalString(trimmed, &s); err != nil {
			return fmt.Errorf("invalid signature string: %w", err)
		}
		*m = SignatureMaterial{Combined: s}
		return nil
	}

	var obj signatureObject
	if err := sonic.UnmarshalString(trimmed, &obj); err != nil {
		return fmt.Errorf("invalid signature object: %w", err)
	}

	switch {
	case obj.Signature != "":
		*m = SignatureMaterial{Combined: obj.Signature}
	case obj.Sig != "":
		*m = SignatureMaterial{Combined: obj.Sig}
	default:
		*m = SignatureMaterial{R: obj.R, S: obj.S, V: obj.V}
	}
	return nil
}

func (m SignatureMaterial) MarshalJSON() ([]byte, error) {
	if m.IsComponents() {
		return sonic.Marshal(signatureObject{R: m.R, S: m.S, V: m.V})
	}
	return sonic.Marshal(m.Combined)
}

// RecoveryID handles v values given as a number or as a decimal or 0x hex
// string. EIP-155 values are arbitrarily large, so big.Int is used.
type RecoveryID struct {
	Value *big.Int
}

func NewRecoveryID(v int64) *RecoveryID {
	return &RecoveryID{Value: big.NewInt(v)}
}

func (r *RecoveryID) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" || s == "null" {
		r.Value = nil
		return nil
	}

	if s[0] == '"' {
		if err := sonic.UnmarshalString(s, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
	}

	v := new(big.Int)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		if _, ok := v.SetString(s[2:], 16); !ok {
			return fmt.Errorf("invalid hex recovery id: %s", s)
		}
	} else if _, ok := v.SetString(s, 10); !ok {
		return fmt.Errorf("invalid recovery id: %s", s)
	}
	if v.Sign() < 0 {
		return fmt.Errorf("negative recovery id: %s", s)
	}

	r.Value = v
	return nil
}

func (r RecoveryID) MarshalJSON() ([]byte, error) {
	if r.Value == nil {
		return []byte("null"), nil
	}
	return []byte(r.Value.String()), nil
}

// Byte folds v into a single byte. EIP-155 values keep their parity relative
// to 35 so that normalization still yields the right recovery id.
func (r RecoveryID) Byte() byte {
	if r.Value == nil {
		return 0
	}
	if r.Value.IsUint64() && r.Value.Uint64() <= 0xff {
		return byte(r.Value.Uint64())
	}
	parity := new(big.Int).Sub(r.Value, big.NewInt(35))
	return byte(35 + parity.Bit(0))
}

// CanonicalSignature is a decoded signature together with the recovery ids
// worth trying, in order. RecoveryCandidates is empty for schemes that do
// not recover keys.
type CanonicalSignature struct {
	Bytes              []byte
	RecoveryCandidates []byte
}
