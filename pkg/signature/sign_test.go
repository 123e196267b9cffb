package signature

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ChainSafe/gossamer/lib/crypto/sr25519"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vedhavyas/go-subkey"
)

func TestSignatureProvider(t *testing.T) {
	keypair, err := sr25519.GenerateKeypair()
	if err != nil {
		t.Fatalf("Failed to generate keypair: %v", err)
	}

	provider, err := NewProvider(keypair)
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	message := []byte("Hello World")

	signature, err := provider.Sign(message)
	if err != nil {
		t.Fatalf("Failed to sign message: %v", err)
	}

	if len(signature) < 2 || signature[:2] != "0x" {
		t.Error("Expected signature to start with '0x'")
	}

	if len(signature) != 130 { // 0x + 128 hex chars (64 bytes)
		t.Errorf("Expected signature length 130, got %d", len(signature))
	}

	res, err := NewSubstrateVerifier().Verify(SubstrateMessageHash(message), mustHex(t, signature), provider.Address())
	if err != nil {
		t.Fatalf("Verification failed: %v", err)
	}

	if !res.Verified {
		t.Errorf("Expected signature to be valid, but verification failed: %s", res.Reason)
	}
}

func TestSignatureProviderWithKnownSeed(t *testing.T) {
	keypair, err := sr25519.NewKeypairFromMnenomic(subkey.DevPhrase, "")
	if err != nil {
		t.Fatalf("Failed to create keypair from seed: %v", err)
	}

	provider, err := NewProvider(keypair)
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	message := []byte("test message for round trip")

	signature, err := provider.Sign(message)
	if err != nil {
		t.Fatalf("Failed to sign message: %v", err)
	}

	res, err := NewSubstrateVerifier().Verify(SubstrateMessageHash(message), mustHex(t, signature), ToSs58Address(keypair))
	if err != nil {
		t.Fatalf("Verification failed: %v", err)
	}

	if !res.Verified {
		t.Error("Round trip test failed: signature verification failed")
	}
}

func TestSignatureProviderErrors(t *testing.T) {
	t.Run("nil keypair", func(t *testing.T) {
		provider := &Provider{keypair: nil}
		_, err := provider.Sign([]byte("test message"))
		if err == nil {
			t.Error("Expected error for nil keypair")
		}
	})

	t.Run("nil keypair at construction", func(t *testing.T) {
		_, err := NewProvider(nil)
		assert.Error(t, err)
	})
}

func TestMultipleSignatures(t *testing.T) {
	keypair, err := sr25519.GenerateKeypair()
	require.NoError(t, err)

	provider, err := NewProvider(keypair)
	require.NoError(t, err)

	message := []byte("consistent message")

	sig1, err := provider.Sign(message)
	require.NoError(t, err)
	sig2, err := provider.Sign(message)
	require.NoError(t, err)

	// sr25519 signatures are randomized
	assert.NotEqual(t, sig1, sig2)

	v := NewSubstrateVerifier()
	for _, sig := range []string{sig1, sig2} {
		res, err := v.Verify(SubstrateMessageHash(message), mustHex(t, sig), provider.Address())
		require.NoError(t, err)
		assert.True(t, res.Verified, res.Reason)
	}
}

func TestLoadKeypair(t *testing.T) {
	dir := t.TempDir()

	t.Run("key file", func(t *testing.T) {
		path := filepath.Join(dir, "alice.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"secretPhrase":"`+subkey.DevPhrase+`"}`), 0o600))

		keypair, err := LoadKeypair(path, "")
		require.NoError(t, err)

		expected, err := sr25519.NewKeypairFromMnenomic(subkey.DevPhrase, "")
		require.NoError(t, err)
		assert.Equal(t, ToSs58Address(expected), ToSs58Address(keypair))
	})

	t.Run("mnemonic", func(t *testing.T) {
		keypair, err := LoadKeypair("", subkey.DevPhrase)
		require.NoError(t, err)
		assert.NotEmpty(t, ToSs58Address(keypair))
	})

	t.Run("missing secretPhrase", func(t *testing.T) {
		path := filepath.Join(dir, "empty.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"accountId":"0x00"}`), 0o600))

		_, err := LoadMnemonic(path)
		assert.Error(t, err)
	})

	t.Run("nothing given", func(t *testing.T) {
		_, err := LoadKeypair("", "")
		assert.Error(t, err)
	})
}
