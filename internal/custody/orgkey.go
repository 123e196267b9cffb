package custody

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// DefaultKeyRefreshInterval is the minimum time between key refreshes
// triggered by webhook signature mismatches.
const DefaultKeyRefreshInterval = time.Minute

var (
	ErrNoOrgKey        = errors.New("custody returned an empty organization public key")
	ErrUnsupportedKey  = errors.New("organization public key is not an ECDSA P-256 key")
	ErrWebhookMismatch = errors.New("webhook signature does not match organization public key")
)

// PublicKeyFetcher is satisfied by *Client.
type PublicKeyFetcher interface {
	GetOrganizationPublicKey(ctx context.Context) (OrgPublicKey, error)
}

// OrgKeyCache fetches the organization public key on first use and keeps it
// until Invalidate is called.
type OrgKeyCache struct {
	fetcher PublicKeyFetcher
	// refresh gates mismatch driven refetches, which unauthenticated
	// callers can trigger.
	refresh *rate.Limiter

	mu  sync.Mutex
	key *ecdsa.PublicKey
}

// NewOrgKeyCache returns a cache that refetches on webhook mismatch at most
// once per refreshEvery. Zero means DefaultKeyRefreshInterval.
func NewOrgKeyCache(fetcher PublicKeyFetcher, refreshEvery time.Duration) *OrgKeyCache {
	if refreshEvery <= 0 {
		refreshEvery = DefaultKeyRefreshInterval
	}
	return &OrgKeyCache{
		fetcher: fetcher,
		refresh: rate.NewLimiter(rate.Every(refreshEvery), 1),
	}
}

// Get returns the cached key, fetching it if needed. Concurrent callers
// share a single fetch.
func (c *OrgKeyCache) Get(ctx context.Context) (*ecdsa.PublicKey, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.key != nil {
		return c.key, nil
	}

	res, err := c.fetcher.GetOrganizationPublicKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch organization public key: %w", err)
	}
	key, err := ParseOrgPublicKey(res.PublicKey)
	if err != nil {
		return nil, err
	}

	log.Debug().Msg("Cached organization public key")
	c.key = key
	return key, nil
}

func (c *OrgKeyCache) Invalidate() {
	c.mu.Lock()
	c.key = nil
	c.mu.Unlock()
}

// ParseOrgPublicKey accepts a PEM block or base64 encoded DER
// SubjectPublicKeyInfo.
func ParseOrgPublicKey(s string) (*ecdsa.PublicKey, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrNoOrgKey
	}

	var der []byte
	if block, _ := pem.Decode([]byte(s)); block != nil {
		der = block.Bytes
	} else {
		var err error
		if der, err = base64.StdEncoding.DecodeString(s); err != nil {
			return nil, fmt.Errorf("decode organization public key: %w", err)
		}
	}

	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("parse organization public key: %w", err)
	}
	key, ok := pub.(*ecdsa.PublicKey)
	if !ok || key.Curve != elliptic.P256() {
		return nil, ErrUnsupportedKey
	}
	return key, nil
}
