// Package custody is a client for the MPC wallet custody API. The service is
// treated as opaque: wallets and signatures come back as-is and are checked
// by the verify package.
package custody

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/planbok/playground/internal/config"
)

var ErrNotConfigured = errors.New("custody api is not configured")

// Client is a thin wrapper around the custody HTTP API.
type Client struct {
	client  *resty.Client
	BaseURL string
}

// NewClient creates a custody client from the environment configuration.
func NewClient(cfg *config.CustodyEnvConfig) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}
	if !cfg.Enabled() {
		return nil, ErrNotConfigured
	}

	baseURL := strings.TrimRight(cfg.CustodyAPIURL, "/")
	client := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(cfg.CustodyAPIKey).
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal).
		SetTimeout(cfg.CustodyTimeout)

	return &Client{client: client, BaseURL: baseURL}, nil
}

func postJSON[T any](ctx context.Context, client *resty.Client, path string, body any) (T, error) {
	var result Response[T]
	var zero T
	resp, err := client.R().
		SetContext(ctx).
		SetHeader("X-Request-Id", uuid.NewString()).
		SetBody(body).
		SetResult(&result).
		SetError(&result).
		Post(path)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("post request failed")
		return zero, fmt.Errorf("post %s: %w", path, err)
	}
	if resp.IsError() {
		log.Error().Int("status", resp.StatusCode()).Str("path", path).Msg("post non-2xx")
		if result.Error != nil {
			return zero, fmt.Errorf("request returned status %d: %w", resp.StatusCode(), result.Error)
		}
		return zero, fmt.Errorf("request returned status %d: %s", resp.StatusCode(), resp.String())
	}
	if result.Error != nil {
		log.Error().Str("code", result.Error.Code).Str("path", path).Msg("response contains error")
		return zero, result.Error
	}
	return result.Data, nil
}

func getJSON[T any](ctx context.Context, client *resty.Client, path string) (T, error) {
	var result Response[T]
	var zero T
	resp, err := client.R().
		SetContext(ctx).
		SetHeader("X-Request-Id", uuid.NewString()).
		SetResult(&result).
		SetError(&result).
		Get(path)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("get request failed")
		return zero, fmt.Errorf("get %s: %w", path, err)
	}
	if resp.IsError() {
		log.Error().Int("status", resp.StatusCode()).Str("path", path).Msg("get non-2xx")
		if result.Error != nil {
			return zero, fmt.Errorf("request returned status %d: %w", resp.StatusCode(), result.Error)
		}
		return zero, fmt.Errorf("request returned status %d: %s", resp.StatusCode(), resp.String())
	}
	if result.Error != nil {
		log.Error().Str("code", result.Error.Code).Str("path", path).Msg("response contains error")
		return zero, result.Error
	}
	return result.Data, nil
}

// GetWallet fetches a wallet by id.
func (c *Client) GetWallet(ctx context.Context, walletID string) (Wallet, error) {
	if walletID == "" {
		return Wallet{}, fmt.Errorf("wallet id cannot be empty")
	}
	return getJSON[Wallet](ctx, c.client, "/v1/wallets/"+url.PathEscape(walletID))
}

// SignMessage asks the custody service to sign a plain or hex-encoded
// message with the given wallet.
func (c *Client) SignMessage(ctx context.Context, params SignMessageParams) (Signature, error) {
	if params.IdempotencyKey == "" {
		params.IdempotencyKey = uuid.NewString()
	}
	return postJSON[Signature](ctx, c.client, "/v1/sign/message", params)
}

// SignTypedData asks the custody service for an EIP-712 signature.
func (c *Client) SignTypedData(ctx context.Context, params SignTypedDataParams) (Signature, error) {
	if params.IdempotencyKey == "" {
		params.IdempotencyKey = uuid.NewString()
	}
	return postJSON[Signature](ctx, c.client, "/v1/sign/typedData", params)
}

// GetOrganizationPublicKey fetches the key the custody service signs
// webhook notifications with.
func (c *Client) GetOrganizationPublicKey(ctx context.Context) (OrgPublicKey, error) {
	return getJSON[OrgPublicKey](ctx, c.client, "/v1/config/entity/publicKey")
}
