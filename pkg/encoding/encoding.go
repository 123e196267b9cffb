// Package encoding turns wire representations of signatures, keys and
// messages (hex, base58, base64, raw UTF-8, JSON-quoted strings) into bytes.
package encoding

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/mr-tron/base58"
)

// Encoding names a wire representation of a byte sequence.
type Encoding string

const (
	Hex    Encoding = "hex"
	Base58 Encoding = "base58"
	Base64 Encoding = "base64"
	UTF8   Encoding = "utf8"
	Auto   Encoding = "auto"
)

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

var errOddHex = errors.New("odd length hex string")

// ParseEncoding maps a user supplied hint to an Encoding. The empty string
// means Auto.
func ParseEncoding(s string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return Auto, nil
	case "hex", "0x":
		return Hex, nil
	case "base58", "bs58", "b58":
		return Base58, nil
	case "base64", "b64":
		return Base64, nil
	case "utf8", "utf-8", "text", "raw":
		return UTF8, nil
	default:
		return "", fmt.Errorf("unknown encoding %q", s)
	}
}

// Decode decodes s with the given encoding. Auto never fails; every explicit
// encoding returns a *DecodeError when s is not valid for it.
func Decode(s string, enc Encoding) ([]byte, error) {
	var (
		out []byte
		err error
	)

	switch enc {
	case Auto, "":
		out, _ = Detect(s)
		return out, nil
	case Hex:
		out, err = DecodeHex(s)
	case Base58:
		out, err = decodeBase58(s)
	case Base64:
		out, err = decodeBase64(s)
	case UTF8:
		return []byte(s), nil
	default:
		err = fmt.Errorf("unsupported encoding")
	}

	if err != nil {
		return nil, &DecodeError{Input: s, Encoding: enc, Err: err}
	}
	return out, nil
}

// Detect probes s in a fixed order: 0x-prefixed hex, base58 of an ed25519
// sized value, base64 (standard or URL alphabet, padding optional) and
// finally raw UTF-8 bytes. It reports which encoding matched.
func Detect(s string) ([]byte, Encoding) {
	trimmed := strings.TrimSpace(s)

	if hasHexPrefix(trimmed) {
		if out, err := hex.DecodeString(trimmed[2:]); err == nil {
			return out, Hex
		}
	}

	if out, ok := probeBase58(trimmed); ok {
		return out, Base58
	}

	if out, ok := probeBase64(trimmed); ok {
		return out, Base64
	}

	return []byte(s), UTF8
}

// DecodeHex decodes hex with an optional 0x prefix.
func DecodeHex(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if hasHexPrefix(s) {
		s = s[2:]
	}
	if len(s)%2 != 0 {
		return nil, errOddHex
	}
	return hex.DecodeString(s)
}

// UnquoteJSON returns the content of s when s is a JSON string literal, as
// produced by APIs that double-encode signatures.
func UnquoteJSON(s string) (string, bool) {
	trimmed := strings.TrimSpace(s)
	if len(trimmed) < 2 || trimmed[0] != '"' || trimmed[len(trimmed)-1] != '"' {
		return s, false
	}

	var out string
	if err := sonic.UnmarshalString(trimmed, &out); err != nil {
		return s, false
	}
	return out, true
}

func hasHexPrefix(s string) bool {
	return len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}

func decodeBase58(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("empty base58 string")
	}
	return base58.Decode(s)
}

// probeBase58 only accepts values that decode to an ed25519 public key or
// signature length, which keeps short base64 and hex strings out.
func probeBase58(s string) ([]byte, bool) {
	if s == "" || strings.Trim(s, base58Alphabet) != "" {
		return nil, false
	}
	out, err := base58.Decode(s)
	if err != nil {
		return nil, false
	}
	if len(out) != 32 && len(out) != 64 {
		return nil, false
	}
	return out, true
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("empty base64 string")
	}

	raw := strings.TrimRight(s, "=")
	if strings.ContainsAny(raw, "-_") {
		return base64.RawURLEncoding.DecodeString(raw)
	}
	return base64.RawStdEncoding.DecodeString(raw)
}

func probeBase64(s string) ([]byte, bool) {
	if s == "" || strings.ContainsAny(s, " \t\r\n") {
		return nil, false
	}
	out, err := decodeBase64(s)
	if err != nil || len(out) == 0 {
		return nil, false
	}
	return out, true
}
