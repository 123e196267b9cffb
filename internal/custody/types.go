package custody

import (
	"fmt"
	"strings"

	"github.com/planbok/playground/pkg/verify"
)

// Response is the envelope every custody endpoint answers with.
type Response[T any] struct {
	Data  T         `json:"data"`
	Error *APIError `json:"error,omitempty"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("custody error %s: %s", e.Code, e.Message)
}

// Wallet is a custody-managed wallet. Blockchain is the custody service's
// chain identifier (e.g. "ETH-SEPOLIA", "SOL", "BTC-TESTNET").
type Wallet struct {
	ID          string `json:"id"`
	WalletSetID string `json:"walletSetId"`
	Blockchain  string `json:"blockchain"`
	Address     string `json:"address"`
	PublicKey   string `json:"publicKey,omitempty"`
	State       string `json:"state"`
}

type SignMessageParams struct {
	WalletID       string `json:"walletId"`
	Message        string `json:"message"`
	EncodedByHex   bool   `json:"encodedByHex"`
	Memo           string `json:"memo,omitempty"`
	IdempotencyKey string `json:"idempotencyKey"`
}

type SignTypedDataParams struct {
	WalletID       string `json:"walletId"`
	Data           string `json:"data"`
	Memo           string `json:"memo,omitempty"`
	IdempotencyKey string `json:"idempotencyKey"`
}

// Signature carries whatever shape the custody service returns: a combined
// string or separate r/s/v components.
type Signature struct {
	Signature verify.SignatureMaterial `json:"signature"`
}

type OrgPublicKey struct {
	PublicKey string `json:"publicKey"`
	Algorithm string `json:"algorithm,omitempty"`
}

// Family maps the wallet's custody blockchain identifier onto a verification
// chain family. Testnet suffixes such as "-SEPOLIA" are ignored.
func (w Wallet) Family() (verify.ChainFamily, error) {
	chain, _, _ := strings.Cut(w.Blockchain, "-")
	switch strings.ToUpper(chain) {
	case "MATIC", "ARB", "AVAX", "UNI", "MONAD":
		return verify.EVM, nil
	}
	return verify.ParseChainFamily(chain)
}
