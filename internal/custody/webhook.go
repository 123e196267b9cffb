package custody

import (
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// WebhookSignatureHeader carries the base64 ASN.1 ECDSA signature over the
// raw notification body.
const WebhookSignatureHeader = "x-webhook-signature"

// VerifyWebhookSignature checks an ECDSA P-256 / SHA-256 signature over body.
func VerifyWebhookSignature(key *ecdsa.PublicKey, body []byte, signatureB64 string) error {
	sig, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return fmt.Errorf("decode webhook signature: %w", err)
	}
	digest := sha256.Sum256(body)
	if !ecdsa.VerifyASN1(key, digest[:], sig) {
		return ErrWebhookMismatch
	}
	return nil
}

// VerifyWebhook checks a notification against the cached organization key.
// A mismatch drops the cached key and retries once with a fresh one, which
// covers key rotation on the custody side. Refreshes are rate limited; a
// mismatch inside the limit is reported without refetching.
func (c *OrgKeyCache) VerifyWebhook(ctx context.Context, body []byte, signatureB64 string) error {
	if signatureB64 == "" {
		return fmt.Errorf("missing %s header", WebhookSignatureHeader)
	}

	key, err := c.Get(ctx)
	if err != nil {
		return err
	}
	err = VerifyWebhookSignature(key, body, signatureB64)
	if !errors.Is(err, ErrWebhookMismatch) {
		return err
	}

	if !c.refresh.Allow() {
		log.Debug().Msg("Webhook signature mismatch, organization public key refreshed recently")
		return err
	}

	log.Info().Msg("Webhook signature mismatch, refreshing organization public key")
	c.Invalidate()
	if key, err = c.Get(ctx); err != nil {
		return err
	}
	return VerifyWebhookSignature(key, body, signatureB64)
}
