package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/sethvargo/go-envconfig"
)

// LoadConfig reads the whole application configuration from the process
// environment.
func LoadConfig(ctx context.Context) (*AppConfig, error) {
	return LoadConfigFrom(ctx, envconfig.OsLookuper())
}

// LoadConfigFrom reads the configuration through l, which lets tests supply
// a map instead of the process environment.
func LoadConfigFrom(ctx context.Context, l envconfig.Lookuper) (*AppConfig, error) {
	cfg := &AppConfig{}
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   cfg,
		Lookuper: l,
	}); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	cfg.OperatorAddresses = normalizeList(cfg.OperatorAddresses)
	return cfg, nil
}

func IsProduction(environment string) bool {
	switch strings.ToLower(environment) {
	case "", "prod", "production":
		return true
	}
	return false
}

func normalizeList(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
