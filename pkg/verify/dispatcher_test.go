package verify

import (
	stdecdsa "crypto/ecdsa"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/ChainSafe/gossamer/lib/crypto/sr25519"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/planbok/playground/pkg/encoding"
	"github.com/planbok/playground/pkg/signature"
)

const helloPlanbok = "Hello, Planbok!"

type DispatcherTestSuite struct {
	suite.Suite
	dispatcher *Dispatcher

	evmKey     *evmSigner
	solanaKey  ed25519.PrivateKey
	bitcoinKey *btcec.PrivateKey
}

type evmSigner struct {
	key     *stdecdsa.PrivateKey
	address string
}

func newEVMSigner(t *testing.T) *evmSigner {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return &evmSigner{key: key, address: crypto.PubkeyToAddress(key.PublicKey).Hex()}
}

func (e *evmSigner) sign(digest []byte) []byte {
	sig, err := crypto.Sign(digest, e.key)
	if err != nil {
		panic(err)
	}
	return sig
}

func (s *DispatcherTestSuite) SetupSuite() {
	s.dispatcher = NewDispatcher()

	s.evmKey = newEVMSigner(s.T())

	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i + 11)
	}
	s.solanaKey = ed25519.NewKeyFromSeed(seed)

	var err error
	s.bitcoinKey, err = btcec.NewPrivateKey()
	s.Require().NoError(err)
}

func (s *DispatcherTestSuite) dispatch(req Request) Outcome {
	out, err := s.dispatcher.Dispatch(req)
	s.Require().NoError(err)
	return out
}

func (s *DispatcherTestSuite) evmRequest(sig []byte) Request {
	return Request{
		ChainFamily:       EVM,
		OperationType:     Message,
		RawMessage:        helloPlanbok,
		SignatureMaterial: SignatureMaterial{Combined: hexutil.Encode(sig)},
		ExpectedIdentity:  s.evmKey.address,
	}
}

func (s *DispatcherTestSuite) TestEVMHelloPlanbokNormalizesV() {
	digest := signature.PersonalMessageHash([]byte(helloPlanbok))

	// signing is deterministic, so look for a key whose signature has v=0
	signer := newEVMSigner(s.T())
	sig := signer.sign(digest)
	for sig[64] != 0 {
		signer = newEVMSigner(s.T())
		sig = signer.sign(digest)
	}

	req := s.evmRequest(sig)
	req.ExpectedIdentity = signer.address

	out := s.dispatch(req)
	s.Equal(StatusVerified, out.Status)
	s.Contains(out.Explanation, "Verified (v=27, normalized from v=0)")
	s.Contains(out.Explanation, signer.address)
	s.Equal(signature.SchemeEVM, out.Scheme)
	s.Equal([]string{"v=27, normalized from v=0"}, out.Attempts)
}

func (s *DispatcherTestSuite) TestEVMBothVConventions() {
	for _, msg := range []string{helloPlanbok, "", "a much longer message with\nnewlines and ünïcödé"} {
		sig := s.evmKey.sign(signature.PersonalMessageHash([]byte(msg)))

		for _, v := range []byte{sig[64], sig[64] + 27} {
			withV := append(append([]byte(nil), sig[:64]...), v)
			req := s.evmRequest(withV)
			req.RawMessage = msg

			out := s.dispatch(req)
			s.Equal(StatusVerified, out.Status, "message %q v=%d: %s", msg, v, out.Explanation)
		}
	}
}

func (s *DispatcherTestSuite) TestEVMRetriesOtherV() {
	sig := s.evmKey.sign(signature.PersonalMessageHash([]byte(helloPlanbok)))
	wrong := append(append([]byte(nil), sig[:64]...), 1-sig[64])

	out := s.dispatch(s.evmRequest(wrong))
	s.Equal(StatusVerified, out.Status)
	s.Len(out.Attempts, 2)
	s.Contains(out.Explanation, "retry")
}

func (s *DispatcherTestSuite) TestEVMComponents() {
	sig := s.evmKey.sign(signature.PersonalMessageHash([]byte(helloPlanbok)))

	req := s.evmRequest(nil)
	req.SignatureMaterial = SignatureMaterial{
		R: hex.EncodeToString(sig[:32]),
		S: "0x" + hex.EncodeToString(sig[32:64]),
		V: NewRecoveryID(int64(sig[64]) + 27),
	}

	out := s.dispatch(req)
	s.Equal(StatusVerified, out.Status, out.Explanation)
}

func (s *DispatcherTestSuite) TestEVMComponentsStrippedNibble() {
	// signatures are deterministic, so scan for an r with a zero high nibble
	var (
		message string
		sig     []byte
	)
	for i := 0; sig == nil || sig[0] == 0 || sig[0] >= 0x10; i++ {
		s.Require().Less(i, 1024)
		message = fmt.Sprintf("%s #%d", helloPlanbok, i)
		sig = s.evmKey.sign(signature.PersonalMessageHash([]byte(message)))
	}

	req := s.evmRequest(nil)
	req.RawMessage = message
	req.SignatureMaterial = SignatureMaterial{
		R: "0x" + strings.TrimLeft(hex.EncodeToString(sig[:32]), "0"),
		S: "0x" + hex.EncodeToString(sig[32:64]),
		V: NewRecoveryID(int64(sig[64]) + 27),
	}
	s.Require().Equal(1, len(req.SignatureMaterial.R)%2)

	out := s.dispatch(req)
	s.Equal(StatusVerified, out.Status, out.Explanation)
}

func (s *DispatcherTestSuite) TestEVMHexEncodedMessage() {
	payload := []byte{0xde, 0xad, 0xbe, 0xef}
	sig := s.evmKey.sign(signature.PersonalMessageHash(payload))

	req := s.evmRequest(sig)
	req.RawMessage = "0xdeadbeef"
	req.MessageIsHexEncoded = true
	s.Equal(StatusVerified, s.dispatch(req).Status)

	req.RawMessage = "0xdeadbee"
	out := s.dispatch(req)
	s.Equal(StatusFailed, out.Status)
	s.Contains(out.Explanation, "message")
}

func (s *DispatcherTestSuite) TestEVMTypedData() {
	digest, err := signature.TypedDataHash([]byte(testTypedData))
	s.Require().NoError(err)
	sig := s.evmKey.sign(digest)

	req := s.evmRequest(sig)
	req.OperationType = TypedData
	req.RawMessage = testTypedData

	out := s.dispatch(req)
	s.Equal(StatusVerified, out.Status, out.Explanation)

	req.RawMessage = `{"types":{}}`
	out = s.dispatch(req)
	s.Equal(StatusFailed, out.Status)
}

func (s *DispatcherTestSuite) TestTypedDataAgainstBitcoinIsUnsupported() {
	out := s.dispatch(Request{
		ChainFamily:       Bitcoin,
		OperationType:     TypedData,
		RawMessage:        testTypedData,
		SignatureMaterial: SignatureMaterial{Combined: "0x00"},
		ExpectedIdentity:  "1BoatSLRHtKNngkdXEeobR76b53LETtpyT",
	})

	s.Equal(StatusFailed, out.Status)
	s.Equal("unsupported combination: typedData signing is not available for bitcoin", out.Explanation)
	s.Empty(out.Attempts)
	s.Empty(out.Scheme)
}

func (s *DispatcherTestSuite) solanaRequest(sig []byte) Request {
	return Request{
		ChainFamily:       Solana,
		OperationType:     Message,
		RawMessage:        helloPlanbok,
		SignatureMaterial: SignatureMaterial{Combined: base58.Encode(sig)},
		ExpectedIdentity:  base58.Encode(s.solanaKey.Public().(ed25519.PublicKey)),
	}
}

func (s *DispatcherTestSuite) TestSolanaRawMessage() {
	out := s.dispatch(s.solanaRequest(ed25519.Sign(s.solanaKey, []byte(helloPlanbok))))
	s.Equal(StatusVerified, out.Status)
	s.Equal("Verified (Schema: Raw Message)", out.Explanation)
	s.Equal([]string{labelRawMessage}, out.Attempts)
}

func (s *DispatcherTestSuite) TestSolanaHashedWithPrefix() {
	sig := ed25519.Sign(s.solanaKey, signature.SolanaPrefixedHash([]byte(helloPlanbok)))

	out := s.dispatch(s.solanaRequest(sig))
	s.Equal(StatusVerified, out.Status)
	s.Equal("Verified (Schema: Hashed with Prefix)", out.Explanation)
	s.Equal([]string{labelRawMessage, labelHashedPrefix}, out.Attempts)
}

func (s *DispatcherTestSuite) TestSolanaNeitherPath() {
	out := s.dispatch(s.solanaRequest(ed25519.Sign(s.solanaKey, []byte("something else"))))
	s.Equal(StatusFailed, out.Status)
	s.Contains(out.Explanation, labelRawMessage)
	s.Contains(out.Explanation, labelHashedPrefix)
}

func (s *DispatcherTestSuite) TestSignatureLengthBoundary() {
	sig := ed25519.Sign(s.solanaKey, []byte(helloPlanbok))

	req := s.solanaRequest(nil)
	req.SignatureMaterial = SignatureMaterial{Combined: hexutil.Encode(sig[:63])}

	out := s.dispatch(req)
	s.Equal(StatusFailed, out.Status)
	s.Equal("invalid signature length: expected 64 bytes, got 63", out.Explanation)
}

func (s *DispatcherTestSuite) TestNearHashedOnly() {
	pub := s.solanaKey.Public().(ed25519.PublicKey)
	req := Request{
		ChainFamily:      Near,
		OperationType:    Message,
		RawMessage:       helloPlanbok,
		ExpectedIdentity: "ed25519:" + base58.Encode(pub),
	}

	req.SignatureMaterial = SignatureMaterial{Combined: "ed25519:" + base58.Encode(ed25519.Sign(s.solanaKey, []byte(helloPlanbok)))}
	out := s.dispatch(req)
	s.Equal(StatusFailed, out.Status)

	req.SignatureMaterial = SignatureMaterial{Combined: "ed25519:" + base58.Encode(ed25519.Sign(s.solanaKey, signature.NearMessageHash([]byte(helloPlanbok))))}
	out = s.dispatch(req)
	s.Equal(StatusVerified, out.Status)
	s.Equal("Verified (Schema: SHA-256)", out.Explanation)

	req.ExpectedIdentity = hex.EncodeToString(pub)
	s.Equal(StatusVerified, s.dispatch(req).Status)

	req.ExpectedIdentity = "planbok.near"
	out = s.dispatch(req)
	s.Equal(StatusFailed, out.Status)
	s.Contains(out.Explanation, "malformed")
}

func (s *DispatcherTestSuite) bitcoinAddress() string {
	addr, err := btcutil.NewAddressWitnessPubKeyHash(
		btcutil.Hash160(s.bitcoinKey.PubKey().SerializeCompressed()), &chaincfg.MainNetParams)
	s.Require().NoError(err)
	return addr.EncodeAddress()
}

func (s *DispatcherTestSuite) TestBitcoinCompactBase64() {
	compact, err := ecdsa.SignCompact(s.bitcoinKey, signature.BitcoinMessageHash([]byte(helloPlanbok)), true)
	s.Require().NoError(err)

	out := s.dispatch(Request{
		ChainFamily:       Bitcoin,
		OperationType:     Message,
		RawMessage:        helloPlanbok,
		SignatureMaterial: SignatureMaterial{Combined: base64.StdEncoding.EncodeToString(compact)},
		ExpectedIdentity:  s.bitcoinAddress(),
	})
	s.Equal(StatusVerified, out.Status, out.Explanation)
	s.Equal(signature.SchemeBitcoin, out.Scheme)
}

func (s *DispatcherTestSuite) TestBitcoinRSV() {
	compact, err := ecdsa.SignCompact(s.bitcoinKey, signature.BitcoinMessageHash([]byte(helloPlanbok)), true)
	s.Require().NoError(err)

	// r || s || recid as MPC signers return it
	rsv := append(append([]byte(nil), compact[1:]...), compact[0]-31)

	out := s.dispatch(Request{
		ChainFamily:       Bitcoin,
		OperationType:     Message,
		RawMessage:        helloPlanbok,
		SignatureMaterial: SignatureMaterial{Combined: hex.EncodeToString(rsv)},
		ExpectedIdentity:  s.bitcoinAddress(),
	})
	s.Equal(StatusVerified, out.Status, out.Explanation)
	s.Contains(out.Explanation, "r||s||v")
}

func (s *DispatcherTestSuite) TestSubstrate() {
	keypair, err := sr25519.GenerateKeypair()
	s.Require().NoError(err)
	provider, err := signature.NewProvider(keypair)
	s.Require().NoError(err)

	sig, err := provider.Sign([]byte(helloPlanbok))
	s.Require().NoError(err)

	out := s.dispatch(Request{
		ChainFamily:       Substrate,
		OperationType:     Message,
		RawMessage:        helloPlanbok,
		SignatureMaterial: SignatureMaterial{Combined: sig},
		ExpectedIdentity:  provider.Address(),
	})
	s.Equal(StatusVerified, out.Status, out.Explanation)
	s.Equal("Verified (Schema: blake2b-256): sr25519", out.Explanation)
}

func (s *DispatcherTestSuite) TestSubstrateRawMessage() {
	keypair, err := sr25519.GenerateKeypair()
	s.Require().NoError(err)
	sig, err := keypair.Sign([]byte(helloPlanbok))
	s.Require().NoError(err)

	req := Request{
		ChainFamily:       Substrate,
		OperationType:     Message,
		RawMessage:        helloPlanbok,
		SignatureMaterial: SignatureMaterial{Combined: hexutil.Encode(sig)},
		ExpectedIdentity:  signature.ToSs58Address(keypair),
	}
	out := s.dispatch(req)
	s.Equal(StatusVerified, out.Status, out.Explanation)
	s.Equal([]string{labelBlake2b, labelRawMessage}, out.Attempts)
	s.Equal("Verified (Schema: Raw Message): sr25519", out.Explanation)

	req.RawMessage = "something else"
	out = s.dispatch(req)
	s.Equal(StatusFailed, out.Status)
	s.Contains(out.Explanation, labelBlake2b)
	s.Contains(out.Explanation, labelRawMessage)
}

func (s *DispatcherTestSuite) TestCosmosAddressRecoversWithoutRecid() {
	key, err := btcec.NewPrivateKey()
	s.Require().NoError(err)

	conv, err := bech32.ConvertBits(btcutil.Hash160(key.PubKey().SerializeCompressed()), 8, 5, true)
	s.Require().NoError(err)
	address, err := bech32.Encode("cosmos", conv)
	s.Require().NoError(err)

	compact, err := ecdsa.SignCompact(key, signature.CosmosMessageHash([]byte(helloPlanbok)), true)
	s.Require().NoError(err)

	out := s.dispatch(Request{
		ChainFamily:       Cosmos,
		OperationType:     Message,
		RawMessage:        helloPlanbok,
		SignatureMaterial: SignatureMaterial{Combined: base64.StdEncoding.EncodeToString(compact[1:])},
		ExpectedIdentity:  address,
	})
	s.Equal(StatusVerified, out.Status, out.Explanation)
	s.Contains(out.Attempts[0], "recid=0")
}

func (s *DispatcherTestSuite) TestTransactionIsPresenceCheckOnly() {
	sig := s.evmKey.sign(signature.PersonalMessageHash([]byte("irrelevant")))

	req := s.evmRequest(sig)
	req.OperationType = Transaction
	req.RawMessage = "0x02f8..."

	out := s.dispatch(req)
	s.Equal(StatusPending, out.Status)
	s.Contains(out.Explanation, "well-formed")
	s.Empty(out.Attempts)

	req.SignatureMaterial = SignatureMaterial{Combined: hexutil.Encode(sig[:63])}
	s.Equal(StatusFailed, s.dispatch(req).Status)

	req.SignatureMaterial = SignatureMaterial{Combined: hexutil.Encode(sig)}
	req.RawMessage = ""
	s.Equal(StatusFailed, s.dispatch(req).Status)
}

func (s *DispatcherTestSuite) TestDelegateActionIsNearOnly() {
	sig := ed25519.Sign(s.solanaKey, []byte("delegate"))

	out := s.dispatch(Request{
		ChainFamily:       Near,
		OperationType:     DelegateAction,
		RawMessage:        "delegate",
		SignatureMaterial: SignatureMaterial{Combined: base58.Encode(sig)},
	})
	s.Equal(StatusPending, out.Status)

	out = s.dispatch(Request{
		ChainFamily:       EVM,
		OperationType:     DelegateAction,
		RawMessage:        "delegate",
		SignatureMaterial: SignatureMaterial{Combined: hexutil.Encode(make([]byte, 65))},
	})
	s.Equal(StatusFailed, out.Status)
	s.Contains(out.Explanation, "unsupported combination")
}

func (s *DispatcherTestSuite) TestExplicitHintDecodeError() {
	req := s.evmRequest(nil)
	req.SignatureMaterial = SignatureMaterial{Combined: "0xabc"}
	req.SignatureEncoding = encoding.Hex

	out := s.dispatch(req)
	s.Equal(StatusFailed, out.Status)
	s.Contains(out.Explanation, "cannot decode")
}

func (s *DispatcherTestSuite) TestJSONQuotedSignature() {
	sig := s.evmKey.sign(signature.PersonalMessageHash([]byte(helloPlanbok)))

	req := s.evmRequest(nil)
	req.SignatureMaterial = SignatureMaterial{Combined: `"` + hexutil.Encode(sig) + `"`}
	s.Equal(StatusVerified, s.dispatch(req).Status)

	req.SignatureMaterial = SignatureMaterial{Combined: `{"signature":"` + hexutil.Encode(sig) + `"}`}
	s.Equal(StatusVerified, s.dispatch(req).Status)
}

func (s *DispatcherTestSuite) TestEmptyMaterial() {
	req := s.evmRequest(nil)
	req.SignatureMaterial = SignatureMaterial{}

	out := s.dispatch(req)
	s.Equal(StatusFailed, out.Status)
	s.Equal(errEmptySignature.Error(), out.Explanation)
	s.Empty(out.Attempts)
}

func (s *DispatcherTestSuite) TestUnknownFamily() {
	out := s.dispatch(Request{ChainFamily: "tron", OperationType: Message})
	s.Equal(StatusFailed, out.Status)
	s.Contains(out.Explanation, `unknown chain family "tron"`)
}

func (s *DispatcherTestSuite) TestIdempotent() {
	sig := s.evmKey.sign(signature.PersonalMessageHash([]byte(helloPlanbok)))
	req := s.evmRequest(sig)

	s.Equal(s.dispatch(req), s.dispatch(req))

	bad := s.solanaRequest(ed25519.Sign(s.solanaKey, []byte("nope")))
	s.Equal(s.dispatch(bad), s.dispatch(bad))
}

func (s *DispatcherTestSuite) TestConcurrentDispatch() {
	sig := s.evmKey.sign(signature.PersonalMessageHash([]byte(helloPlanbok)))
	req := s.evmRequest(sig)

	var wg sync.WaitGroup
	results := make([]Outcome, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = s.dispatcher.Dispatch(req)
		}(i)
	}
	wg.Wait()

	for _, out := range results {
		s.Equal(StatusVerified, out.Status)
	}
}

func TestDispatcherTestSuite(t *testing.T) {
	suite.Run(t, new(DispatcherTestSuite))
}

func TestMissingVerifierIsHardError(t *testing.T) {
	d := NewDispatcher(WithVerifier(Solana, nil))

	_, err := d.Dispatch(Request{
		ChainFamily:       Solana,
		OperationType:     Message,
		RawMessage:        helloPlanbok,
		SignatureMaterial: SignatureMaterial{Combined: base58.Encode(make([]byte, 64))},
		ExpectedIdentity:  base58.Encode(make([]byte, 32)),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingVerifier))
}

type stubVerifier struct {
	calls int
}

func (v *stubVerifier) Scheme() string { return "stub" }

func (v *stubVerifier) Verify(_, _ []byte, _ string) (signature.Result, error) {
	v.calls++
	return signature.Result{Reason: "stub says no"}, nil
}

func TestWithVerifierReplacesScheme(t *testing.T) {
	stub := &stubVerifier{}
	d := NewDispatcher(WithVerifier(Solana, stub))

	out, err := d.Dispatch(Request{
		ChainFamily:       "sol",
		OperationType:     Message,
		RawMessage:        helloPlanbok,
		SignatureMaterial: SignatureMaterial{Combined: base58.Encode(make([]byte, 64))},
		ExpectedIdentity:  "anything",
	})
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, "stub", out.Scheme)
	assert.Equal(t, 2, stub.calls)
	assert.Equal(t, "Verification failed (tried Schema: Raw Message, Schema: Hashed with Prefix): stub says no", out.Explanation)
}

const testTypedData = `{
  "types": {
    "EIP712Domain": [
      {"name": "name", "type": "string"},
      {"name": "version", "type": "string"},
      {"name": "chainId", "type": "uint256"}
    ],
    "Greeting": [
      {"name": "text", "type": "string"},
      {"name": "nonce", "type": "uint256"}
    ]
  },
  "primaryType": "Greeting",
  "domain": {"name": "Planbok", "version": "1", "chainId": "1"},
  "message": {"text": "Hello, Planbok!", "nonce": "7"}
}`
