package server

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/planbok/playground/internal/custody"
	"github.com/planbok/playground/pkg/verify"
)

func (s *Server) registerRoutes() {
	s.App.Get("/health", s.handleHealth)

	ServeRoute[verify.Request, verify.Outcome](s, "/verify", s.handleVerify)
	ServeRoute[BatchRequest, BatchResponse](s, "/verify/batch", s.handleVerifyBatch)

	if s.custody != nil {
		ServeRoute[SignAndVerifyRequest, SignAndVerifyResponse](s, "/custody/sign-and-verify", s.handleSignAndVerify)
	}
	if s.webhooks != nil {
		s.App.Post("/custody/webhook", s.handleWebhook)
	}
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(createResponse(HealthResponse{
		Status:   "ok",
		Families: verify.ChainFamilies,
		Custody:  s.custody != nil,
	}, nil))
}

func (s *Server) handleVerify(_ *fiber.Ctx, req verify.Request) (verify.Outcome, error) {
	start := time.Now()
	outcome, err := s.dispatcher.Dispatch(req)
	if err != nil {
		return verify.Outcome{}, err
	}

	log.Info().
		Str("family", string(req.ChainFamily)).
		Str("operation", string(req.OperationType)).
		Str("status", string(outcome.Status)).
		Dur("elapsed", time.Since(start)).
		Msg("Verification finished")
	return outcome, nil
}

func (s *Server) handleVerifyBatch(_ *fiber.Ctx, req BatchRequest) (BatchResponse, error) {
	if len(req.Requests) == 0 {
		return BatchResponse{}, fiber.NewError(fiber.StatusBadRequest, "batch is empty")
	}
	if len(req.Requests) > MaxBatchSize {
		return BatchResponse{}, fiber.NewError(fiber.StatusBadRequest,
			fmt.Sprintf("batch of %d exceeds limit of %d", len(req.Requests), MaxBatchSize))
	}

	outcomes := make([]verify.Outcome, len(req.Requests))
	var g errgroup.Group
	for i, r := range req.Requests {
		g.Go(func() error {
			outcome, err := s.dispatcher.Dispatch(r)
			if err != nil {
				return fmt.Errorf("request %d: %w", i, err)
			}
			outcomes[i] = outcome
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return BatchResponse{}, err
	}

	log.Info().Int("size", len(outcomes)).Msg("Batch verification finished")
	return BatchResponse{Outcomes: outcomes}, nil
}

func (s *Server) handleSignAndVerify(c *fiber.Ctx, req SignAndVerifyRequest) (SignAndVerifyResponse, error) {
	if req.WalletID == "" {
		return SignAndVerifyResponse{}, fiber.NewError(fiber.StatusBadRequest, "walletId is required")
	}

	op := verify.Message
	if req.OperationType != "" {
		var err error
		if op, err = verify.ParseOperationType(req.OperationType); err != nil {
			return SignAndVerifyResponse{}, fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
	}

	ctx := c.UserContext()
	wallet, err := s.custody.GetWallet(ctx, req.WalletID)
	if err != nil {
		return SignAndVerifyResponse{}, fiber.NewError(fiber.StatusBadGateway, err.Error())
	}
	family, err := wallet.Family()
	if err != nil {
		return SignAndVerifyResponse{}, fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	}

	var (
		sig     custody.Signature
		message = req.Message
	)
	switch op {
	case verify.Message:
		sig, err = s.custody.SignMessage(ctx, custody.SignMessageParams{
			WalletID:     wallet.ID,
			Message:      req.Message,
			EncodedByHex: req.MessageIsHexEncoded,
		})
	case verify.TypedData:
		message = req.TypedData
		sig, err = s.custody.SignTypedData(ctx, custody.SignTypedDataParams{
			WalletID: wallet.ID,
			Data:     req.TypedData,
		})
	default:
		return SignAndVerifyResponse{}, fiber.NewError(fiber.StatusBadRequest,
			fmt.Sprintf("operation %s cannot be signed through this route", op))
	}
	if err != nil {
		return SignAndVerifyResponse{}, fiber.NewError(fiber.StatusBadGateway, err.Error())
	}

	identity := wallet.Address
	if identity == "" {
		identity = wallet.PublicKey
	}

	outcome, err := s.dispatcher.Dispatch(verify.Request{
		ChainFamily:         family,
		OperationType:       op,
		RawMessage:          message,
		MessageIsHexEncoded: req.MessageIsHexEncoded && op == verify.Message,
		SignatureMaterial:   sig.Signature,
		ExpectedIdentity:    identity,
	})
	if err != nil {
		return SignAndVerifyResponse{}, err
	}

	log.Info().
		Str("wallet", wallet.ID).
		Str("family", string(family)).
		Str("status", string(outcome.Status)).
		Msg("Custody signature checked")

	return SignAndVerifyResponse{
		Wallet:    wallet,
		Signature: sig.Signature,
		Outcome:   outcome,
	}, nil
}

func (s *Server) handleWebhook(c *fiber.Ctx) error {
	body := c.Body()
	if err := s.webhooks.VerifyWebhook(c.UserContext(), body, c.Get(custody.WebhookSignatureHeader)); err != nil {
		log.Warn().Err(err).Msg("Rejected webhook notification")
		return c.Status(fiber.StatusUnauthorized).JSON(createResponse(WebhookResponse{}, err))
	}

	log.Info().Int("size", len(body)).Msg("Accepted webhook notification")
	return c.JSON(createResponse(WebhookResponse{Received: true}, nil))
}
