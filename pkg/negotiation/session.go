package negotiation

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/pactmesh/pact-core/pkg/canon"
	"github.com/pactmesh/pact-core/pkg/contracts"
	"github.com/pactmesh/pact-core/pkg/policy"
	"github.com/pactmesh/pact-core/pkg/settlement"
)

// State is one of the named session states (spec §4.3).
type State string

const (
	StateIdle      State = "IDLE"
	StateIntentSent State = "INTENT_SENT"
	StateQuoted    State = "QUOTED"
	StateAccepted  State = "ACCEPTED"
	StateCommitted State = "COMMITTED"
	StateCompleted State = "COMPLETED"
	StateFailed    State = "FAILED"
)

// Session is the buyer-role negotiation state machine. It holds a
// monotonic clock, the policy guard, the settlement provider handle for
// the candidate currently under negotiation, and the signing identities
// for both sides of the exchange: buyerSigner signs every
// buyer-authored message (INTENT, COUNTER, ACCEPT); sellerPubkeyB58 is
// the identity every seller-authored message (ASK, COMMIT, REVEAL) must
// carry a valid signature under.
type Session struct {
	mu sync.Mutex

	now             func() int64
	guard           *policy.Guard
	provider        settlement.Provider
	buyerSigner     canon.Signer
	sellerPubkeyB58 string

	state       State
	intentID    string
	buyerAcct   string
	sellerAcct  string
	agreedPrice float64
	refP50      float64
	round       int
	maxRounds   int

	lockHandle    settlement.Handle
	bondHandle    settlement.Handle
	commitHashHex string

	failureCode   string
	failureReason string

	rounds []contracts.NegotiationRound
}

// NewSession constructs an IDLE session.
func NewSession(now func() int64, guard *policy.Guard, provider settlement.Provider, buyerSigner canon.Signer, sellerPubkeyB58 string) *Session {
	return &Session{
		now:             now,
		guard:           guard,
		provider:        provider,
		buyerSigner:     buyerSigner,
		sellerPubkeyB58: sellerPubkeyB58,
		state:           StateIdle,
	}
}

func (s *Session) State() State { return s.state }

// Rounds returns the accumulated negotiation rounds for transcript
// assembly.
func (s *Session) Rounds() []contracts.NegotiationRound { return s.rounds }

func (s *Session) fail(code, reason string) error {
	s.state = StateFailed
	s.failureCode = code
	s.failureReason = reason
	return fmt.Errorf("negotiation: %s: %s", code, reason)
}

// verifySeller checks env's signature, then separately that it was signed
// by sellerPubkeyB58, mirroring pkg/credentials.Client.Verify's two-step
// check so a forged signature (PROVIDER_SIGNATURE_INVALID) and a
// genuinely-signed-but-wrong-identity envelope (PROVIDER_SIGNER_MISMATCH)
// surface as distinct, spec-named codes rather than one catch-all.
func (s *Session) verifySeller(env *canon.Envelope, what string) (bool, string, string) {
	ok, verr := canon.VerifyEnvelope(env, "")
	if verr != nil || !ok {
		return false, contracts.CodeProviderSignatureInvalid, what + " envelope signature invalid"
	}
	if env.SignerPublicKeyB58 != s.sellerPubkeyB58 {
		return false, contracts.CodeProviderSignerMismatch, what + " envelope signed by an unexpected key"
	}
	return true, "", ""
}

// FailureCode/FailureReason report the terminal failure, valid only when
// State() == StateFailed.
func (s *Session) FailureCode() string   { return s.failureCode }
func (s *Session) FailureReason() string { return s.failureReason }

// OpenWithIntent transitions IDLE -> INTENT_SENT, signing the outgoing
// INTENT message with buyerSigner. The signed envelope is returned for
// transcript/wire use; there is nothing to verify yet since the buyer
// is the author.
func (s *Session) OpenWithIntent(intent contracts.IntentMessage, maxRounds int) (canon.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return canon.Envelope{}, fmt.Errorf("negotiation: openWithIntent called from state %s", s.state)
	}
	env, err := canon.SignEnvelope(s.buyerSigner, contracts.MsgIntent, intent)
	if err != nil {
		return canon.Envelope{}, fmt.Errorf("negotiation: sign intent: %w", err)
	}
	s.intentID = intent.IntentID
	s.maxRounds = maxRounds
	s.state = StateIntentSent
	return *env, nil
}

// OnQuote verifies env's signature against sellerPubkeyB58, decodes the
// wrapped AskMessage, and transitions INTENT_SENT -> QUOTED if the guard
// accepts the quote under the negotiation-phase policy. verified reports
// whether the signature check itself passed, independent of the
// subsequent guard decision, so callers can populate a transcript
// QuoteRecord's Verified field even when the quote is otherwise
// rejected (e.g. out of band).
func (s *Session) OnQuote(env canon.Envelope, maxPrice float64) (verified bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIntentSent {
		return false, fmt.Errorf("negotiation: onQuote called from state %s", s.state)
	}

	if ok, code, reason := s.verifySeller(&env, "ask"); !ok {
		return false, s.fail(code, reason)
	}

	var ask contracts.AskMessage
	if derr := canon.DecodeMessage(env.Message, &ask); derr != nil {
		return false, s.fail(contracts.CodeProviderQuoteHTTPError, "decode ask message: "+derr.Error())
	}
	s.refP50 = ask.RefP50

	result := s.guard.CheckNegotiation(policy.NegotiationContext{
		QuotePrice: ask.Price,
		MaxPrice:   maxPrice,
		RefP50:     ask.RefP50,
		FirmQuote:  ask.FirmQuote,
	})
	if !result.OK {
		return true, s.fail(result.Code, result.Reason)
	}
	s.state = StateQuoted
	s.agreedPrice = ask.Price
	return true, nil
}

// RecordCounter signs counter as a buyer-authored COUNTER envelope and
// appends a round to the transcript without changing state; callers
// record one counter per round, up to maxRounds, before calling Accept.
func (s *Session) RecordCounter(counter contracts.CounterMessage, accept bool, reason string) (canon.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	env, err := canon.SignEnvelope(s.buyerSigner, contracts.MsgCounter, counter)
	if err != nil {
		return canon.Envelope{}, fmt.Errorf("negotiation: sign counter: %w", err)
	}
	s.round = counter.Round
	s.rounds = append(s.rounds, contracts.NegotiationRound{
		Round:        counter.Round,
		CounterPrice: counter.CounterPrice,
		Accepted:     accept,
		Reason:       reason,
	})
	if accept {
		s.agreedPrice = counter.CounterPrice
	}
	return *env, nil
}

// AcceptResult communicates the lock outcome and, if the rail returned
// pending after exhausting the poll budget, the preserved handle for
// later reconciliation.
type AcceptResult struct {
	HandleID string
	Pending  bool
}

// Accept transitions QUOTED -> ACCEPTED: signs the buyer's ACCEPT
// envelope, locks buyer funds at agreedPrice and seller bond =
// max(sellerMinBond, agreedPrice * sellerBondMultiple). If the lock is
// asynchronously pending, Accept performs bounded polling per the SLA
// policy; exhaustion yields SETTLEMENT_POLL_TIMEOUT with the handle
// preserved.
func (s *Session) Accept(ctx context.Context, buyerAcct, sellerAcct string, sellerMinBond, sellerBondMultiple float64, sla policy.SettlementSLAPolicy, idempotencyKeyFn func(purpose string) string) (AcceptResult, canon.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateQuoted {
		return AcceptResult{}, canon.Envelope{}, fmt.Errorf("negotiation: accept called from state %s", s.state)
	}
	s.buyerAcct = buyerAcct
	s.sellerAcct = sellerAcct

	acceptMsg := contracts.AcceptMessage{
		IntentID:           s.intentID,
		AgreedPrice:        s.agreedPrice,
		ChallengeWindowMs:  sla.MaxPendingMs,
		DeliveryDeadlineMs: s.now() + sla.MaxPendingMs,
		SentAtMs:           s.now(),
	}
	env, err := canon.SignEnvelope(s.buyerSigner, contracts.MsgAccept, acceptMsg)
	if err != nil {
		return AcceptResult{}, canon.Envelope{}, fmt.Errorf("negotiation: sign accept: %w", err)
	}

	bond := sellerMinBond
	if v := s.agreedPrice * sellerBondMultiple; v > bond {
		bond = v
	}

	lockHandle, err := s.provider.Lock(ctx, buyerAcct, s.agreedPrice, idempotencyKeyFn("lock_buyer"))
	if err != nil {
		return AcceptResult{}, *env, s.fail(contracts.CodeSettlementFailed, "lock buyer funds: "+err.Error())
	}
	s.lockHandle = lockHandle

	if bond > 0 {
		bondHandle, err := s.provider.Lock(ctx, sellerAcct, bond, idempotencyKeyFn("lock_seller_bond"))
		if err != nil {
			return AcceptResult{}, *env, s.fail(contracts.CodeSettlementFailed, "lock seller bond: "+err.Error())
		}
		s.bondHandle = bondHandle
	}

	if sla.Enabled {
		attempts := 0
		for {
			res, err := s.provider.Poll(ctx, lockHandle)
			if err != nil {
				return AcceptResult{}, *env, s.fail(contracts.CodeSettlementFailed, "poll lock: "+err.Error())
			}
			if res.Status != settlement.StatusPending {
				break
			}
			attempts++
			if attempts >= sla.MaxPollAttempts {
				return AcceptResult{HandleID: string(lockHandle), Pending: true}, *env, s.fail(contracts.CodeSettlementPollTimeout, "lock poll exhausted")
			}
		}
	}

	s.state = StateAccepted
	return AcceptResult{HandleID: string(lockHandle)}, *env, nil
}

// OnCommit verifies env's signature against sellerPubkeyB58, decodes the
// wrapped CommitMessage, and transitions ACCEPTED -> COMMITTED for
// hash-reveal mode, recording the commit hash.
func (s *Session) OnCommit(env canon.Envelope) (verified bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAccepted {
		return false, fmt.Errorf("negotiation: onCommit called from state %s", s.state)
	}

	if ok, code, reason := s.verifySeller(&env, "commit"); !ok {
		return false, s.fail(code, reason)
	}

	var commit contracts.CommitMessage
	if derr := canon.DecodeMessage(env.Message, &commit); derr != nil {
		return true, s.fail(contracts.CodeSettlementFailed, "decode commit message: "+derr.Error())
	}
	s.commitHashHex = commit.CommitHashHex
	s.state = StateCommitted
	return true, nil
}

// OnReveal verifies env's signature against sellerPubkeyB58, decodes the
// wrapped RevealMessage, and transitions COMMITTED -> COMPLETED if the
// SHA-256 of the base64-decoded payload followed by the base64-decoded
// nonce matches the prior commit hash (see CheckCommitHash); funds
// are released to the seller and the bond returned. A mismatch fails
// with FAILED_PROOF.
func (s *Session) OnReveal(ctx context.Context, env canon.Envelope, idempotencyKeyFn func(purpose string) string) (verified bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateCommitted {
		return false, fmt.Errorf("negotiation: onReveal called from state %s", s.state)
	}

	if ok, code, reason := s.verifySeller(&env, "reveal"); !ok {
		return false, s.fail(code, reason)
	}

	var reveal contracts.RevealMessage
	if derr := canon.DecodeMessage(env.Message, &reveal); derr != nil {
		return true, s.fail(contracts.CodeSettlementFailed, "decode reveal message: "+derr.Error())
	}

	if !CheckCommitHash(s.commitHashHex, reveal.PayloadB64, reveal.NonceB64) {
		return true, s.fail(contracts.CodeFailedProof, "reveal does not match commit hash")
	}

	if _, err := s.provider.Commit(ctx, s.lockHandle, idempotencyKeyFn("commit_buyer_lock")); err != nil {
		return true, s.fail(contracts.CodeSettlementFailed, "commit buyer lock: "+err.Error())
	}
	if s.bondHandle != "" {
		if err := s.provider.Release(ctx, s.bondHandle, idempotencyKeyFn("release_seller_bond")); err != nil {
			return true, s.fail(contracts.CodeSettlementFailed, "release seller bond: "+err.Error())
		}
	}
	s.state = StateCompleted
	return true, nil
}

// CheckCommitHash verifies SHA-256(base64-decoded payload || base64-decoded nonce)
// hex-equals commitHashHex. Grounded on spec §4.3's hash-reveal scheme:
// the commitment covers the raw decoded bytes, not the base64 text.
func CheckCommitHash(commitHashHex, payloadB64, nonceB64 string) bool {
	payload, err := base64.StdEncoding.DecodeString(payloadB64)
	if err != nil {
		return false
	}
	nonce, err := base64.StdEncoding.DecodeString(nonceB64)
	if err != nil {
		return false
	}
	h := sha256.New()
	h.Write(payload)
	h.Write(nonce)
	return hex.EncodeToString(h.Sum(nil)) == commitHashHex
}

// AgreedPrice, LockHandle, BondHandle expose session internals the
// orchestrator needs when assembling the transcript and streaming hand-off.
func (s *Session) AgreedPrice() float64          { return s.agreedPrice }
func (s *Session) LockHandle() settlement.Handle { return s.lockHandle }
func (s *Session) BondHandle() settlement.Handle { return s.bondHandle }
