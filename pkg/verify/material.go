package verify

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/planbok/playground/pkg/encoding"
	"github.com/planbok/playground/pkg/signature"
)

const (
	scalarLength = 32
	jsonEncoding = encoding.Encoding("json")
	nearSigKey   = "ed25519:"
)

// accepted signature sizes per family, preferred size first
var signatureLengths = map[ChainFamily][]int{
	EVM:       {65, 64},
	Bitcoin:   {65, 64},
	Solana:    {64},
	Near:      {64},
	Cosmos:    {64, 65},
	Substrate: {64, 65},
}

var errEmptySignature = errors.New("signature material is empty")

// canonicalize decodes signature material into the fixed size byte form the
// family's verifier expects and works out the recovery ids to try.
func canonicalize(family ChainFamily, m SignatureMaterial, hint encoding.Encoding) (CanonicalSignature, error) {
	m, err := unwrapMaterial(m)
	if err != nil {
		return CanonicalSignature{}, err
	}

	var sig []byte
	if m.IsComponents() {
		sig, err = joinComponents(family, m, hint)
	} else {
		sig, err = decodeSignature(family, m.Combined, hint)
	}
	if err != nil {
		return CanonicalSignature{}, err
	}
	if len(sig) == 0 {
		return CanonicalSignature{}, errEmptySignature
	}

	want := signatureLengths[family]
	if !slices.Contains(want, len(sig)) {
		return CanonicalSignature{}, &lengthError{want: want, got: len(sig)}
	}

	cs := CanonicalSignature{Bytes: sig}
	switch family {
	case EVM:
		cs.RecoveryCandidates = evmRecoveryCandidates(sig)
	case Cosmos:
		if len(sig) == 65 {
			cs.RecoveryCandidates = []byte{sig[64]}
		} else {
			cs.RecoveryCandidates = []byte{0, 1}
		}
	}
	return cs, nil
}

// unwrapMaterial undoes APIs that hand back signatures as JSON encoded
// strings, either a quoted string or a serialized object.
func unwrapMaterial(m SignatureMaterial) (SignatureMaterial, error) {
	for range 2 {
		s := strings.TrimSpace(m.Combined)
		if s == "" {
			return m, nil
		}

		switch s[0] {
		case '"':
			unquoted, ok := encoding.UnquoteJSON(s)
			if !ok {
				return m, &encoding.DecodeError{Input: s, Encoding: jsonEncoding, Err: errors.New("invalid JSON string")}
			}
			m = SignatureMaterial{Combined: unquoted}
		case '{':
			var inner SignatureMaterial
			if err := sonic.UnmarshalString(s, &inner); err != nil {
				return m, &encoding.DecodeError{Input: s, Encoding: jsonEncoding, Err: err}
			}
			m = inner
		default:
			return m, nil
		}
	}
	return m, nil
}

func decodeSignature(family ChainFamily, s string, hint encoding.Encoding) ([]byte, error) {
	s = strings.TrimSpace(s)

	if rest, ok := strings.CutPrefix(s, nearSigKey); ok {
		s = rest
		if hint == encoding.Auto || hint == "" {
			hint = encoding.Base58
		}
	}

	if (hint == encoding.Auto || hint == "") && prefersHex(family) && isBareHex(s) {
		hint = encoding.Hex
	}
	return encoding.Decode(s, hint)
}

func joinComponents(family ChainFamily, m SignatureMaterial, hint encoding.Encoding) ([]byte, error) {
	r, err := decodeScalar(family, "r", m.R, hint)
	if err != nil {
		return nil, err
	}
	s, err := decodeScalar(family, "s", m.S, hint)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, 2*scalarLength+1)
	out = append(out, r...)
	out = append(out, s...)
	if m.V != nil && m.V.Value != nil {
		out = append(out, m.V.Byte())
	}
	return out, nil
}

// decodeScalar left pads r or s to 32 bytes. Some signers strip leading
// zero bytes from the components, and JavaScript ones also drop a leading
// zero nibble, which leaves odd length hex.
func decodeScalar(family ChainFamily, name, s string, hint encoding.Encoding) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("signature component %s is missing", name)
	}

	var (
		b   []byte
		err error
	)
	switch digits, isHex := scalarHexDigits(family, s, hint); {
	case isHex:
		if len(digits)%2 != 0 {
			digits = "0" + digits
		}
		b, err = encoding.Decode(digits, encoding.Hex)
	case hint == encoding.Auto || hint == "":
		var enc encoding.Encoding
		if b, enc = encoding.Detect(s); enc == encoding.UTF8 {
			err = fmt.Errorf("signature component %s is not hex, base58 or base64", name)
		}
	default:
		b, err = encoding.Decode(s, hint)
	}
	if err != nil {
		return nil, err
	}

	if len(b) > scalarLength {
		return nil, fmt.Errorf("signature component %s is %d bytes, longer than %d", name, len(b), scalarLength)
	}
	return append(make([]byte, scalarLength-len(b)), b...), nil
}

// scalarHexDigits returns the hex digits of a component that is hex by hint,
// by 0x prefix, or by being bare hex in a family that prefers hex. Parity is
// not checked.
func scalarHexDigits(family ChainFamily, s string, hint encoding.Encoding) (string, bool) {
	digits, prefixed := s, false
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		digits, prefixed = s[2:], true
	}
	if !isHexDigits(digits) {
		return "", false
	}

	switch hint {
	case encoding.Hex:
		return digits, true
	case encoding.Auto, "":
		return digits, prefixed || prefersHex(family)
	}
	return "", false
}

func decodeMessage(req Request) ([]byte, error) {
	if req.MessageIsHexEncoded {
		return encoding.Decode(req.RawMessage, encoding.Hex)
	}
	return []byte(req.RawMessage), nil
}

// evmRecoveryCandidates is [normalized v, 27, 28] without duplicates. A
// signature without v gets both parities.
func evmRecoveryCandidates(sig []byte) []byte {
	if len(sig) == 64 {
		return []byte{27, 28}
	}

	candidates := make([]byte, 0, 3)
	for _, v := range []byte{signature.NormalizeV(sig[64]), 27, 28} {
		if bytes.IndexByte(candidates, v) < 0 {
			candidates = append(candidates, v)
		}
	}
	return candidates
}

// base58 families never see bare hex
func prefersHex(family ChainFamily) bool {
	return family != Solana && family != Near
}

func isBareHex(s string) bool {
	return len(s)%2 == 0 && isHexDigits(s)
}

func isHexDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F') {
			return false
		}
	}
	return true
}
