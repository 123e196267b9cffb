// Package client is a typed HTTP client for the verification server.
package client

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"

	"github.com/planbok/playground/internal/config"
	"github.com/planbok/playground/pkg/server"
	"github.com/planbok/playground/pkg/signature"
	"github.com/planbok/playground/pkg/verify"
)

const DefaultClientTimeout = 30 * time.Second

// ErrNoOperatorKey is returned by CreateAuthParams when the client was built
// without an operator key.
var ErrNoOperatorKey = errors.New("operator key not configured")

// ClientConfig configures a Client.
type ClientConfig struct {
	BaseURL         string
	Timeout         time.Duration
	RetryMax        int
	RetryWaitMin    time.Duration
	RetryWaitMax    time.Duration
	ZstdCompression bool
	// OperatorKey signs the operator auth headers when set.
	OperatorKey *ecdsa.PrivateKey
}

type Client struct {
	config      *ClientConfig
	restyClient *resty.Client
	encoder     *zstd.Encoder
	decoder     *zstd.Decoder
	operator    string
}

// NewClientFromEnv builds a client for baseURL from the environment section.
func NewClientFromEnv(baseURL string, env *config.ClientEnvConfig) (*Client, error) {
	if env == nil {
		env = &config.ClientEnvConfig{}
	}
	cfg := &ClientConfig{
		BaseURL:         baseURL,
		Timeout:         env.ClientTimeout,
		RetryMax:        env.RetryMax,
		ZstdCompression: true,
	}
	if env.OperatorPrivateKey != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(env.OperatorPrivateKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("failed to parse operator private key: %w", err)
		}
		cfg.OperatorKey = key
	}
	return NewClient(cfg)
}

// NewClient creates a new verification client
func NewClient(cfg *ClientConfig) (*Client, error) {
	if cfg == nil || cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultClientTimeout
	}
	if cfg.RetryWaitMin == 0 {
		cfg.RetryWaitMin = 500 * time.Millisecond
	}
	if cfg.RetryWaitMax == 0 {
		cfg.RetryWaitMax = 10 * time.Second
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.RetryMax
	retryClient.RetryWaitMin = cfg.RetryWaitMin
	retryClient.RetryWaitMax = cfg.RetryWaitMax
	retryClient.HTTPClient.Timeout = cfg.Timeout
	retryClient.Logger = nil
	// hand the final response back to resty instead of a retryablehttp error
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	restyClient := resty.NewWithClient(retryClient.StandardClient()).
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal)

	c := &Client{
		config:      cfg,
		restyClient: restyClient,
	}

	if cfg.ZstdCompression {
		encoder, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		decoder, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
		}
		c.encoder = encoder
		c.decoder = decoder
	}

	if cfg.OperatorKey != nil {
		c.operator = crypto.PubkeyToAddress(cfg.OperatorKey.PublicKey).Hex()
	}

	log.Debug().
		Str("base_url", cfg.BaseURL).
		Int("retry_max", cfg.RetryMax).
		Str("timeout", cfg.Timeout.String()).
		Bool("zstd", cfg.ZstdCompression).
		Bool("operator_auth", c.operator != "").
		Msg("verification client initialized")

	return c, nil
}

// Close cleans up client resources
func (c *Client) Close() {
	if c.encoder != nil {
		c.encoder.Close()
	}
	if c.decoder != nil {
		c.decoder.Close()
	}
}

// Operator returns the operator address, or "" without an operator key.
func (c *Client) Operator() string {
	return c.operator
}

// CreateAuthParams signs a fresh operator message.
func (c *Client) CreateAuthParams() (server.AuthParams, error) {
	if c.config.OperatorKey == nil {
		return server.AuthParams{}, ErrNoOperatorKey
	}

	message := server.OperatorMessage(c.operator, time.Now())
	sig, err := crypto.Sign(signature.PersonalMessageHash([]byte(message)), c.config.OperatorKey)
	if err != nil {
		return server.AuthParams{}, fmt.Errorf("failed to sign message: %w", err)
	}

	return server.AuthParams{
		Address:   c.operator,
		Message:   message,
		Signature: hexutil.Encode(sig),
	}, nil
}

func (c *Client) buildHeaders() (map[string]string, error) {
	headers := map[string]string{
		"Content-Type": "application/json",
	}
	if c.config.ZstdCompression {
		headers["Accept-Encoding"] = "zstd"
	}
	if c.config.OperatorKey != nil {
		auth, err := c.CreateAuthParams()
		if err != nil {
			return nil, err
		}
		headers[server.SignatureHeader] = auth.Signature
		headers[server.AddressHeader] = auth.Address
		headers[server.MessageHeader] = auth.Message
	}
	return headers, nil
}

func (c *Client) decodeResponse(resp *resty.Response) ([]byte, error) {
	body := resp.Body()
	if c.decoder != nil && strings.EqualFold(resp.Header().Get("Content-Encoding"), "zstd") {
		decompressed, err := c.decoder.DecodeAll(body, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress response: %w", err)
		}
		body = decompressed
	}
	return body, nil
}

// do sends one request and unwraps the server envelope into Resp.
func do[Resp any](ctx context.Context, c *Client, method, path string, request any) (Resp, error) {
	var zero Resp

	headers, err := c.buildHeaders()
	if err != nil {
		return zero, err
	}
	req := c.restyClient.R().SetContext(ctx)

	if request != nil {
		payload, err := sonic.Marshal(request)
		if err != nil {
			return zero, fmt.Errorf("failed to marshal request: %w", err)
		}
		if c.encoder != nil {
			payload = c.encoder.EncodeAll(payload, nil)
			headers["Content-Encoding"] = "zstd"
		}
		req.SetBody(payload)
	}
	req.SetHeaders(headers)

	log.Trace().
		Str("method", method).
		Str("path", path).
		Msg("Sending verification request")

	resp, err := req.Execute(method, path)
	if err != nil {
		return zero, fmt.Errorf("failed to make request: %w", err)
	}

	body, err := c.decodeResponse(resp)
	if err != nil {
		return zero, err
	}

	var envelope server.StdResponse[Resp]
	if err := sonic.Unmarshal(body, &envelope); err != nil {
		if resp.IsError() {
			return zero, fmt.Errorf("HTTP error %d: %s", resp.StatusCode(), string(body))
		}
		return zero, fmt.Errorf("failed to unmarshal StdResponse: %w", err)
	}
	if envelope.Error != nil {
		return zero, fmt.Errorf("server error (%d): %s", resp.StatusCode(), *envelope.Error)
	}
	if resp.IsError() {
		return zero, fmt.Errorf("HTTP error %d: %s", resp.StatusCode(), string(body))
	}
	return envelope.Body, nil
}

func (c *Client) Health(ctx context.Context) (server.HealthResponse, error) {
	return do[server.HealthResponse](ctx, c, resty.MethodGet, "/health", nil)
}

// Verify checks a single signature on the server.
func (c *Client) Verify(ctx context.Context, req verify.Request) (verify.Outcome, error) {
	return do[verify.Outcome](ctx, c, resty.MethodPost, "/verify", req)
}

// VerifyBatch checks several signatures in one round trip. Outcomes are in
// request order.
func (c *Client) VerifyBatch(ctx context.Context, reqs []verify.Request) ([]verify.Outcome, error) {
	res, err := do[server.BatchResponse](ctx, c, resty.MethodPost, "/verify/batch", server.BatchRequest{Requests: reqs})
	if err != nil {
		return nil, err
	}
	if len(res.Outcomes) != len(reqs) {
		return nil, fmt.Errorf("server returned %d outcomes for %d requests", len(res.Outcomes), len(reqs))
	}
	return res.Outcomes, nil
}

// SignAndVerify has the server sign through the custody API and check the
// result.
func (c *Client) SignAndVerify(ctx context.Context, req server.SignAndVerifyRequest) (server.SignAndVerifyResponse, error) {
	return do[server.SignAndVerifyResponse](ctx, c, resty.MethodPost, "/custody/sign-and-verify", req)
}
