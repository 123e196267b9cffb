package server

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/planbok/playground/internal/config"
	"github.com/planbok/playground/internal/custody"
	"github.com/planbok/playground/pkg/verify"
)

const (
	SignatureHeader string = "x-signature"
	AddressHeader   string = "x-address"
	MessageHeader   string = "x-message"

	// Server defaults
	DefaultServerHost = "0.0.0.0"
	DefaultServerPort = 8888
	DefaultBodyLimit  = 4 * 1024 * 1024 // 4MB

	DefaultOperatorAuthMaxAge = 5 * time.Minute

	MaxBatchSize = 256
)

// Server is the verification HTTP service.
type Server struct {
	App        *fiber.App
	config     *config.ServerEnvConfig
	dispatcher *verify.Dispatcher
	custody    CustodyClient
	webhooks   WebhookVerifier

	stackTraces bool
}

// CustodyClient is the part of the custody API the sign-and-verify route
// needs. *custody.Client satisfies it.
type CustodyClient interface {
	GetWallet(ctx context.Context, walletID string) (custody.Wallet, error)
	SignMessage(ctx context.Context, params custody.SignMessageParams) (custody.Signature, error)
	SignTypedData(ctx context.Context, params custody.SignTypedDataParams) (custody.Signature, error)
}

// WebhookVerifier is satisfied by *custody.OrgKeyCache.
type WebhookVerifier interface {
	VerifyWebhook(ctx context.Context, body []byte, signatureB64 string) error
}

// StdResponse represents the standardized response structure
type StdResponse[T any] struct {
	Body  T       `json:"body"`
	Error *string `json:"error,omitempty"`
}

// AuthParams holds operator authentication headers
type AuthParams struct {
	Address   string
	Message   string
	Signature string
}

// RouterHandler is a generic handler function type
type RouterHandler[Req, Resp any] func(*fiber.Ctx, Req) (Resp, error)

type HealthResponse struct {
	Status   string               `json:"status"`
	Families []verify.ChainFamily `json:"families"`
	Custody  bool                 `json:"custody"`
}

type BatchRequest struct {
	Requests []verify.Request `json:"requests"`
}

type BatchResponse struct {
	Outcomes []verify.Outcome `json:"outcomes"`
}

type SignAndVerifyRequest struct {
	WalletID            string `json:"walletId"`
	OperationType       string `json:"operationType,omitempty"`
	Message             string `json:"message,omitempty"`
	MessageIsHexEncoded bool   `json:"messageIsHexEncoded,omitempty"`
	// TypedData is the EIP-712 JSON document, used when OperationType is
	// typedData.
	TypedData string `json:"typedData,omitempty"`
}

type SignAndVerifyResponse struct {
	Wallet    custody.Wallet           `json:"wallet"`
	Signature verify.SignatureMaterial `json:"signature"`
	Outcome   verify.Outcome           `json:"outcome"`
}

type WebhookResponse struct {
	Received bool `json:"received"`
}
