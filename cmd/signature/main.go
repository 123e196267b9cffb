// Command signature signs a message with a Substrate sr25519 key and prints a
// request that cmd/verify or POST /verify accepts.
package main

import (
	"flag"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog/log"
	"github.com/vedhavyas/go-subkey"

	"github.com/planbok/playground/internal/utils/logger"
	"github.com/planbok/playground/pkg/signature"
	"github.com/planbok/playground/pkg/verify"
)

var (
	keyFile  = flag.String("key-file", "", "subkey JSON key file with a secretPhrase field")
	mnemonic = flag.String("mnemonic", subkey.DevPhrase, "mnemonic used when no key file is given")
	message  = flag.String("message", "Hello, Planbok!", "message to sign")
)

func main() {
	logger.Init()

	keypair, err := signature.LoadKeypair(*keyFile, *mnemonic)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load keypair")
	}
	provider, err := signature.NewProvider(keypair)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create signature provider")
	}

	sig, err := provider.Sign([]byte(*message))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to sign message")
	}

	req := verify.Request{
		ChainFamily:       verify.Substrate,
		OperationType:     verify.Message,
		RawMessage:        *message,
		SignatureMaterial: verify.SignatureMaterial{Combined: sig},
		ExpectedIdentity:  provider.Address(),
	}

	outcome, err := verify.NewDispatcher().Dispatch(req)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to verify signature")
	}
	log.Info().Str("status", string(outcome.Status)).Str("explanation", outcome.Explanation).Msg("Self check")

	out, err := sonic.ConfigDefault.MarshalIndent(req, "", "  ")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to encode request")
	}
	fmt.Println(string(out))
}
