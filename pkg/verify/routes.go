package verify

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/planbok/playground/pkg/signature"
)

// Candidate path labels. They appear verbatim in explanations.
const (
	labelRawMessage   = "Schema: Raw Message"
	labelHashedPrefix = "Schema: Hashed with Prefix"
	labelSHA256       = "Schema: SHA-256"
	labelBlake2b      = "Schema: blake2b-256"
)

var errNoRecoveryHeader = errors.New("signature carries no usable recovery header")

type routeKey struct {
	family ChainFamily
	op     OperationType
}

// candidate is one (message, signature) pair handed to a verifier.
type candidate struct {
	label     string
	message   []byte
	signature []byte
}

type planInput struct {
	message  []byte
	sig      CanonicalSignature
	identity string
}

// planFunc lists the candidates for a request in the order they are tried.
type planFunc func(in planInput) ([]candidate, error)

type route struct {
	// nil for operations that are only checked for well-formed material
	plan planFunc
}

var routes = map[routeKey]route{
	{EVM, Message}:       {plan: evmPlan(personalHash)},
	{EVM, TypedData}:     {plan: evmPlan(signature.TypedDataHash)},
	{Bitcoin, Message}:   {plan: bitcoinPlan},
	{Solana, Message}:    {plan: solanaPlan},
	{Near, Message}:      {plan: nearPlan},
	{Cosmos, Message}:    {plan: cosmosPlan},
	{Substrate, Message}: {plan: substratePlan},

	{EVM, Transaction}:       {},
	{Bitcoin, Transaction}:   {},
	{Solana, Transaction}:    {},
	{Near, Transaction}:      {},
	{Cosmos, Transaction}:    {},
	{Substrate, Transaction}: {},
	{Near, DelegateAction}:   {},
}

func lookupRoute(family ChainFamily, op OperationType) (route, bool) {
	r, ok := routes[routeKey{family: family, op: op}]
	return r, ok
}

func personalHash(message []byte) ([]byte, error) {
	return signature.PersonalMessageHash(message), nil
}

func evmPlan(hash func([]byte) ([]byte, error)) planFunc {
	return func(in planInput) ([]candidate, error) {
		digest, err := hash(in.message)
		if err != nil {
			return nil, err
		}

		given := -1
		if len(in.sig.Bytes) == 65 {
			given = int(in.sig.Bytes[64])
		}

		rs := in.sig.Bytes[:64]
		out := make([]candidate, 0, len(in.sig.RecoveryCandidates))
		for i, v := range in.sig.RecoveryCandidates {
			out = append(out, candidate{
				label:     evmLabel(i, v, given),
				message:   digest,
				signature: append(rs[:64:64], v),
			})
		}
		return out, nil
	}
}

func evmLabel(i int, v byte, given int) string {
	switch {
	case i > 0:
		return fmt.Sprintf("v=%d, retry", v)
	case given < 0:
		return fmt.Sprintf("v=%d, v missing", v)
	case int(v) != given:
		return fmt.Sprintf("v=%d, normalized from v=%d", v, given)
	default:
		return fmt.Sprintf("v=%d", v)
	}
}

// bitcoinPlan tries the compact layout (header || r || s) first, then
// r || s || v as emitted by MPC signers.
func bitcoinPlan(in planInput) ([]candidate, error) {
	digest := signature.BitcoinMessageHash(in.message)
	b := in.sig.Bytes

	var out []candidate
	add := func(label string, sig []byte) {
		for _, c := range out {
			if bytes.Equal(c.signature, sig) {
				return
			}
		}
		out = append(out, candidate{label: label, message: digest, signature: sig})
	}

	if len(b) == 64 {
		for recid := byte(0); recid < 2; recid++ {
			header, _ := signature.NormalizeCompactHeader(recid)
			add(fmt.Sprintf("header=%d, recovery id missing", header), append([]byte{header}, b...))
		}
		return out, nil
	}

	if header, ok := signature.NormalizeCompactHeader(b[0]); ok {
		label := fmt.Sprintf("header=%d", header)
		if header != b[0] {
			label += fmt.Sprintf(", normalized from %d", b[0])
		}
		add(label, append([]byte{header}, b[1:]...))
	}
	if header, ok := signature.NormalizeCompactHeader(b[64]); ok {
		add(fmt.Sprintf("r||s||v, header=%d", header), append([]byte{header}, b[:64]...))
	}

	if len(out) == 0 {
		return nil, errNoRecoveryHeader
	}
	return out, nil
}

func solanaPlan(in planInput) ([]candidate, error) {
	return []candidate{
		{label: labelRawMessage, message: in.message, signature: in.sig.Bytes},
		{label: labelHashedPrefix, message: signature.SolanaPrefixedHash(in.message), signature: in.sig.Bytes},
	}, nil
}

func nearPlan(in planInput) ([]candidate, error) {
	return []candidate{
		{label: labelSHA256, message: signature.NearMessageHash(in.message), signature: in.sig.Bytes},
	}, nil
}

// substratePlan tries the blake2b digest first, then the raw bytes that
// wallets sign for short messages.
func substratePlan(in planInput) ([]candidate, error) {
	return []candidate{
		{label: labelBlake2b, message: signature.SubstrateMessageHash(in.message), signature: in.sig.Bytes},
		{label: labelRawMessage, message: in.message, signature: in.sig.Bytes},
	}, nil
}

// cosmosPlan recovers the key when the identity is an account address, and
// checks the signature directly when it is a public key.
func cosmosPlan(in planInput) ([]candidate, error) {
	digest := signature.CosmosMessageHash(in.message)

	if !signature.IsBech32Account(in.identity) {
		return []candidate{{label: labelSHA256, message: digest, signature: in.sig.Bytes}}, nil
	}

	rs := in.sig.Bytes[:64]
	out := make([]candidate, 0, len(in.sig.RecoveryCandidates))
	for i, recid := range in.sig.RecoveryCandidates {
		label := fmt.Sprintf("recid=%d", recid)
		if i > 0 {
			label += ", retry"
		}
		out = append(out, candidate{label: label, message: digest, signature: append(rs[:64:64], recid)})
	}
	return out, nil
}
