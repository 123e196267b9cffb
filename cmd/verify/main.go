// Command verify runs one signature check locally, or against a running
// server when -server is given.
//
//	go run ./cmd/verify -family evm -message "Hello, Planbok!" -signature 0x... -identity 0x...
//	go run ./cmd/verify -file request.json -server http://localhost:8888
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog/log"

	"github.com/planbok/playground/internal/config"
	"github.com/planbok/playground/internal/utils/logger"
	"github.com/planbok/playground/pkg/client"
	"github.com/planbok/playground/pkg/encoding"
	"github.com/planbok/playground/pkg/verify"
)

var (
	file       = flag.String("file", "", "path to a JSON verification request")
	family     = flag.String("family", "", "chain family: evm, bitcoin, solana, near, cosmos, substrate")
	operation  = flag.String("operation", string(verify.Message), "operation type: message, typedData, transaction, delegateAction")
	message    = flag.String("message", "", "raw message, or typed data JSON for typedData")
	messageHex = flag.Bool("message-hex", false, "message is hex encoded")
	sigFlag    = flag.String("signature", "", "signature, or a JSON object with r, s and v")
	sigEnc     = flag.String("signature-encoding", string(encoding.Auto), "signature encoding: hex, base58, base64, utf8, auto")
	identity   = flag.String("identity", "", "expected address or public key")
	serverURL  = flag.String("server", "", "verify through this server instead of locally")
)

func buildRequest() (verify.Request, error) {
	var req verify.Request
	if *file != "" {
		data, err := os.ReadFile(*file)
		if err != nil {
			return req, fmt.Errorf("failed to read request file: %w", err)
		}
		if err := sonic.Unmarshal(data, &req); err != nil {
			return req, fmt.Errorf("failed to parse request file: %w", err)
		}
		return req, nil
	}

	if *family == "" || *sigFlag == "" {
		return req, fmt.Errorf("-family and -signature are required without -file")
	}
	return verify.Request{
		ChainFamily:         verify.ChainFamily(*family),
		OperationType:       verify.OperationType(*operation),
		RawMessage:          *message,
		MessageIsHexEncoded: *messageHex,
		SignatureMaterial:   verify.SignatureMaterial{Combined: *sigFlag},
		ExpectedIdentity:    *identity,
		SignatureEncoding:   encoding.Encoding(*sigEnc),
	}, nil
}

func run(ctx context.Context, req verify.Request) (verify.Outcome, error) {
	if *serverURL == "" {
		return verify.NewDispatcher().Dispatch(req)
	}

	cfg, err := config.LoadConfig(ctx)
	if err != nil {
		return verify.Outcome{}, err
	}
	c, err := client.NewClientFromEnv(*serverURL, &cfg.ClientEnvConfig)
	if err != nil {
		return verify.Outcome{}, err
	}
	defer c.Close()

	health, err := c.Health(ctx)
	if err != nil {
		return verify.Outcome{}, fmt.Errorf("server not reachable: %w", err)
	}
	log.Debug().Any("families", health.Families).Bool("custody", health.Custody).Msg("Server is up")
	return c.Verify(ctx, req)
}

func main() {
	logger.Init()

	req, err := buildRequest()
	if err != nil {
		flag.Usage()
		log.Fatal().Err(err).Msg("invalid arguments")
	}

	outcome, err := run(context.Background(), req)
	if err != nil {
		log.Fatal().Err(err).Msg("verification could not run")
	}

	out, err := sonic.ConfigDefault.MarshalIndent(outcome, "", "  ")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to encode outcome")
	}
	fmt.Println(string(out))

	if outcome.Status == verify.StatusFailed {
		os.Exit(1)
	}
}
