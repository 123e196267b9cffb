package signature

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/ChainSafe/gossamer/lib/crypto/sr25519"
	"github.com/bytedance/sonic"
	"github.com/rs/zerolog/log"
)

type keyFile struct {
	SecretPhrase string `json:"secretPhrase"`
}

// LoadMnemonic reads the secretPhrase field of a subkey style JSON key file.
func LoadMnemonic(path string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		usr, err := user.Current()
		if err != nil {
			return "", fmt.Errorf("failed to get current user: %w", err)
		}
		path = filepath.Join(usr.HomeDir, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Error().
			Err(err).
			Str("path", path).
			Msg("Failed to read keypair file")
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	var kf keyFile
	if err := sonic.Unmarshal(data, &kf); err != nil {
		log.Error().
			Err(err).
			Str("path", path).
			Msg("Failed to parse keypair JSON")
		return "", fmt.Errorf("failed to parse JSON: %w", err)
	}

	if kf.SecretPhrase == "" {
		log.Error().
			Str("path", path).
			Msg("SecretPhrase not found in keypair JSON")
		return "", fmt.Errorf("secretPhrase not found in JSON")
	}

	return kf.SecretPhrase, nil
}

// LoadKeypair builds an sr25519 keypair from a key file, or from mnemonic
// directly when path is empty.
func LoadKeypair(path, mnemonic string) (*sr25519.Keypair, error) {
	if path != "" {
		var err error
		mnemonic, err = LoadMnemonic(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load seed phrase: %w", err)
		}
	}
	if mnemonic == "" {
		return nil, fmt.Errorf("no key file or mnemonic given")
	}

	keypair, err := sr25519.NewKeypairFromMnenomic(mnemonic, "")
	if err != nil {
		log.Error().
			Err(err).
			Str("path", path).
			Msg("Failed to create keypair from seed phrase")
		return nil, fmt.Errorf("failed to create keypair from seed phrase: %w", err)
	}

	return keypair, nil
}
