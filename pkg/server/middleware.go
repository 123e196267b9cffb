package server

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"

	"github.com/planbok/playground/pkg/verify"
)

var defaultWhitelist = []string{"/health"}

// ZstdMiddleware decompresses zstd request bodies and compresses responses
// for clients that accept zstd.
func ZstdMiddleware(whitelistedRoutes []string) fiber.Handler {
	if whitelistedRoutes == nil {
		whitelistedRoutes = defaultWhitelist
		log.Debug().
			Any("default", whitelistedRoutes).
			Msg("Whitelisted routes not specified, using default whitelist")
	}

	return func(c *fiber.Ctx) error {
		if isWhitelisted(c.Path(), whitelistedRoutes) {
			return c.Next()
		}

		if strings.EqualFold(c.Get(fiber.HeaderContentEncoding), "zstd") {
			if body := c.Body(); len(body) > 0 {
				decoder, err := zstd.NewReader(bytes.NewReader(body))
				if err != nil {
					log.Err(err).Msg("Failed to create zstd decoder")
					return c.Status(fiber.StatusBadRequest).JSON(
						createResponse(fiber.Map{}, fmt.Errorf("failed to decompress zstd data: %w", err)))
				}
				defer decoder.Close()

				decompressed, err := io.ReadAll(decoder)
				if err != nil {
					log.Err(err).Msg("Failed to decompress request")
					return c.Status(fiber.StatusBadRequest).JSON(
						createResponse(fiber.Map{}, fmt.Errorf("failed to decompress zstd data: %w", err)))
				}

				c.Request().SetBody(decompressed)
				c.Request().Header.Del(fiber.HeaderContentEncoding)
				log.Trace().Msg("Request body decompressed")
			}
		}

		if err := c.Next(); err != nil {
			return err
		}

		if !strings.Contains(strings.ToLower(c.Get(fiber.HeaderAcceptEncoding)), "zstd") {
			return nil
		}
		responseBody := c.Response().Body()
		if len(responseBody) == 0 {
			return nil
		}

		encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			log.Err(err).Msg("Failed to create zstd encoder")
			return nil
		}
		defer encoder.Close()

		compressed := encoder.EncodeAll(responseBody, nil)
		c.Response().SetBody(compressed)
		c.Set(fiber.HeaderContentEncoding, "zstd")
		c.Set(fiber.HeaderContentLength, strconv.Itoa(len(compressed)))

		log.Trace().
			Int("original_size", len(responseBody)).
			Int("compressed_size", len(compressed)).
			Msg("Response body compressed")
		return nil
	}
}

// OperatorAuthMiddleware requires every non-whitelisted request to carry an
// EVM personal_sign signature from one of the allowed operator addresses over
// an OperatorMessage no older than maxAge. The signature is checked with the
// same dispatcher that serves /verify.
func OperatorAuthMiddleware(dispatcher *verify.Dispatcher, operators []string, maxAge time.Duration, whitelistedRoutes []string) fiber.Handler {
	if whitelistedRoutes == nil {
		whitelistedRoutes = defaultWhitelist
	}

	allowed := make(map[common.Address]struct{}, len(operators))
	for _, op := range operators {
		if !common.IsHexAddress(op) {
			log.Warn().Str("operator", op).Msg("Ignoring invalid operator address")
			continue
		}
		allowed[common.HexToAddress(op)] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		if isWhitelisted(c.Path(), whitelistedRoutes) {
			return c.Next()
		}

		auth := GetAuthParams(c)
		if auth.Address == "" || auth.Signature == "" || auth.Message == "" {
			errMsg := fmt.Sprintf("%s, missing headers, expected: %s, %s, %s",
				http.StatusText(http.StatusBadRequest),
				SignatureHeader, AddressHeader, MessageHeader)
			return c.Status(fiber.StatusBadRequest).JSON(
				createResponse(fiber.Map{}, fmt.Errorf("%s", errMsg)))
		}

		if !common.IsHexAddress(auth.Address) {
			return c.Status(fiber.StatusForbidden).JSON(
				createResponse(fiber.Map{}, fmt.Errorf("%s: malformed operator address", http.StatusText(http.StatusForbidden))))
		}
		operator := common.HexToAddress(auth.Address)
		if _, ok := allowed[operator]; !ok {
			return c.Status(fiber.StatusForbidden).JSON(
				createResponse(fiber.Map{}, fmt.Errorf("%s: %s is not an operator", http.StatusText(http.StatusForbidden), auth.Address)))
		}

		signedFor, signedAt, err := parseOperatorMessage(auth.Message)
		if err != nil {
			return c.Status(fiber.StatusForbidden).JSON(
				createResponse(fiber.Map{}, fmt.Errorf("%s: %w", http.StatusText(http.StatusForbidden), err)))
		}
		if !common.IsHexAddress(signedFor) || common.HexToAddress(signedFor) != operator {
			return c.Status(fiber.StatusForbidden).JSON(
				createResponse(fiber.Map{}, fmt.Errorf("%s: operator message names %s", http.StatusText(http.StatusForbidden), signedFor)))
		}
		// skew in either direction counts
		if skew := time.Since(signedAt); skew > maxAge || skew < -maxAge {
			log.Debug().Str("address", auth.Address).Time("signed_at", signedAt).Msg("Operator message outside auth window")
			return c.Status(fiber.StatusForbidden).JSON(
				createResponse(fiber.Map{}, fmt.Errorf("%s: operator message expired", http.StatusText(http.StatusForbidden))))
		}

		outcome, err := dispatcher.Dispatch(verify.Request{
			ChainFamily:       verify.EVM,
			OperationType:     verify.Message,
			RawMessage:        auth.Message,
			SignatureMaterial: verify.SignatureMaterial{Combined: auth.Signature},
			ExpectedIdentity:  auth.Address,
		})
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(
				createResponse(fiber.Map{}, fmt.Errorf("signature verification error: %w", err)))
		}
		if outcome.Status != verify.StatusVerified {
			log.Debug().Str("address", auth.Address).Str("explanation", outcome.Explanation).Msg("Operator signature rejected")
			return c.Status(fiber.StatusForbidden).JSON(
				createResponse(fiber.Map{}, fmt.Errorf("%s due to invalid signature", http.StatusText(http.StatusForbidden))))
		}

		log.Debug().Str("address", auth.Address).Msg("Verified operator signature")
		return c.Next()
	}
}
