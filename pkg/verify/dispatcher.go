package verify

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/planbok/playground/pkg/encoding"
	"github.com/planbok/playground/pkg/signature"
)

// Dispatcher routes a Request to the verifier of its chain family. It is not
// modified after construction and is safe for concurrent use.
type Dispatcher struct {
	verifiers map[ChainFamily]signature.Verifier
}

type Option func(*Dispatcher)

// WithVerifier replaces the verifier for family. A nil verifier removes it.
func WithVerifier(family ChainFamily, v signature.Verifier) Option {
	return func(d *Dispatcher) {
		if v == nil {
			delete(d.verifiers, family)
			return
		}
		d.verifiers[family] = v
	}
}

// NewDispatcher installs the default verifier for every chain family.
func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		verifiers: map[ChainFamily]signature.Verifier{
			EVM:       signature.NewEVMVerifier(),
			Bitcoin:   signature.NewBitcoinVerifier(),
			Solana:    signature.NewSolanaVerifier(),
			Near:      signature.NewNearVerifier(),
			Cosmos:    signature.NewCosmosVerifier(),
			Substrate: signature.NewSubstrateVerifier(),
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch verifies req. Every problem with the request itself ends up in a
// failed Outcome; the error return is reserved for a dispatcher that is
// missing a verifier for a routed family.
func (d *Dispatcher) Dispatch(req Request) (Outcome, error) {
	m := &machine{state: StatusIdle}

	family, err := ParseChainFamily(string(req.ChainFamily))
	if err != nil {
		return m.fail(&UnsupportedCombinationError{ChainFamily: string(req.ChainFamily), OperationType: string(req.OperationType), Err: err}), nil
	}
	op, err := ParseOperationType(string(req.OperationType))
	if err != nil {
		return m.fail(&UnsupportedCombinationError{ChainFamily: string(family), OperationType: string(req.OperationType), Err: err}), nil
	}

	rt, ok := lookupRoute(family, op)
	if !ok {
		return m.fail(&UnsupportedCombinationError{ChainFamily: string(family), OperationType: string(op)}), nil
	}

	verifier, ok := d.verifiers[family]
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %s", ErrMissingVerifier, family)
	}
	m.scheme = verifier.Scheme()
	m.begin()

	if req.SignatureMaterial.IsZero() {
		return m.fail(errEmptySignature), nil
	}

	hint, err := encoding.ParseEncoding(string(req.SignatureEncoding))
	if err != nil {
		return m.fail(err), nil
	}

	message, err := decodeMessage(req)
	if err != nil {
		return m.fail(fmt.Errorf("message: %w", err)), nil
	}

	sig, err := canonicalize(family, req.SignatureMaterial, hint)
	if err != nil {
		return m.fail(err), nil
	}

	if rt.plan == nil {
		return m.presence(op, message, sig), nil
	}

	candidates, err := rt.plan(planInput{message: message, sig: sig, identity: req.ExpectedIdentity})
	if err != nil {
		return m.fail(err), nil
	}

	for _, c := range candidates {
		res, err := verifier.Verify(c.message, c.signature, req.ExpectedIdentity)
		m.attempts = append(m.attempts, c.label)
		if err != nil {
			// identity errors do not depend on the candidate
			return m.fail(err), nil
		}

		log.Debug().
			Str("family", string(family)).
			Str("operation", string(op)).
			Str("attempt", c.label).
			Bool("verified", res.Verified).
			Str("reason", res.Reason).
			Msg("Verification attempt")

		if res.Verified {
			return m.verify(c.label, res.Reason), nil
		}
		m.reasons = append(m.reasons, res.Reason)
	}

	return m.exhausted(), nil
}

// machine tracks one dispatch: idle -> pending -> verified | failed.
// Resolved states are terminal.
type machine struct {
	state    Status
	scheme   string
	attempts []string
	reasons  []string
}

func (m *machine) begin() {
	if m.state == StatusIdle {
		m.state = StatusPending
	}
}

func (m *machine) resolve(status Status, explanation string) Outcome {
	if m.state == StatusVerified || m.state == StatusFailed {
		panic(fmt.Sprintf("verification already resolved as %s", m.state))
	}
	m.state = status
	return m.outcome(explanation)
}

func (m *machine) outcome(explanation string) Outcome {
	return Outcome{
		Status:      m.state,
		Explanation: explanation,
		Scheme:      m.scheme,
		Attempts:    m.attempts,
	}
}

func (m *machine) fail(err error) Outcome {
	return m.resolve(StatusFailed, err.Error())
}

func (m *machine) verify(label, reason string) Outcome {
	explanation := fmt.Sprintf("Verified (%s)", label)
	if reason != "" {
		explanation += ": " + reason
	}
	return m.resolve(StatusVerified, explanation)
}

func (m *machine) exhausted() Outcome {
	if len(m.attempts) == 0 {
		return m.resolve(StatusFailed, "Verification failed: no candidates to try")
	}

	same := true
	for _, r := range m.reasons[1:] {
		if r != m.reasons[0] {
			same = false
			break
		}
	}

	if same {
		return m.resolve(StatusFailed, fmt.Sprintf("Verification failed (tried %s): %s", strings.Join(m.attempts, ", "), m.reasons[0]))
	}

	parts := make([]string, len(m.attempts))
	for i := range m.attempts {
		parts[i] = m.attempts[i] + ": " + m.reasons[i]
	}
	return m.resolve(StatusFailed, "Verification failed ("+strings.Join(parts, "; ")+")")
}

// presence leaves the outcome pending: the material is well-formed but the
// payload is not re-derived against the chain's transaction rules.
func (m *machine) presence(op OperationType, payload []byte, sig CanonicalSignature) Outcome {
	if len(payload) == 0 {
		return m.fail(fmt.Errorf("%s payload is missing", op))
	}
	return m.outcome(fmt.Sprintf(
		"Signature material present and well-formed (%d bytes); %s signatures are not re-derived against chain rules",
		len(sig.Bytes), op,
	))
}
