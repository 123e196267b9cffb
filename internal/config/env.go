// Package config defines environment configuration structs and loaders.
package config

import (
	"time"
)

type AppConfig struct {
	ServerEnvConfig
	ClientEnvConfig
	CustodyEnvConfig

	Environment string `env:"ENVIRONMENT, default=prod"`
}

// ServerEnvConfig configures the verification server.
type ServerEnvConfig struct {
	Host          string `env:"SERVER_HOST, default=0.0.0.0"`
	Port          int    `env:"SERVER_PORT, default=8888"`
	BodySizeLimit int    `env:"SERVER_BODY_LIMIT, default=4194304"`
	// OperatorAddresses enables operator authentication when non-empty.
	OperatorAddresses []string `env:"OPERATOR_ADDRESSES"`
	// OperatorAuthMaxAge bounds how far the timestamp in a signed operator
	// message may be from the server clock.
	OperatorAuthMaxAge time.Duration `env:"OPERATOR_AUTH_MAX_AGE, default=5m"`
}

// ClientEnvConfig configures the verification client.
type ClientEnvConfig struct {
	ClientTimeout time.Duration `env:"CLIENT_TIMEOUT, default=30s"`
	RetryMax      int           `env:"CLIENT_RETRY_MAX, default=3"`
	// OperatorPrivateKey is a hex secp256k1 key used to sign operator auth
	// headers.
	OperatorPrivateKey string `env:"OPERATOR_PRIVATE_KEY"`
}

// CustodyEnvConfig points at the MPC custody API.
type CustodyEnvConfig struct {
	CustodyAPIURL  string        `env:"CUSTODY_API_URL"`
	CustodyAPIKey  string        `env:"CUSTODY_API_KEY"`
	CustodyTimeout time.Duration `env:"CUSTODY_TIMEOUT, default=15s"`
	// CustodyKeyRefresh is the minimum time between organization key
	// refreshes triggered by webhook signature mismatches.
	CustodyKeyRefresh time.Duration `env:"CUSTODY_KEY_REFRESH_INTERVAL, default=1m"`
}

// Enabled reports whether a custody API is configured.
func (c CustodyEnvConfig) Enabled() bool {
	return c.CustodyAPIURL != "" && c.CustodyAPIKey != ""
}
