// Package orchestrator implements the Acquire Orchestrator (C11, spec
// §4.1): the end-to-end flow that composes every other component —
// asset resolution, optional wallet connect, policy compile (already
// done by the caller), market-stat computation, execution routing,
// candidate discovery, per-candidate evaluation, utility ranking,
// fallback-plan construction, and a bounded retry loop that drives
// negotiation and settlement to a terminal, signed, tamper-evident
// transcript.
//
// Grounded on the teacher's single-task, explicit-state-struct control
// flow (no captured closures across phases) in `core/pkg/kernel`, and
// on its deterministic-clock injection discipline: nothing here reads
// wall-clock time directly.
package orchestrator

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/pactmesh/pact-core/pkg/canon"
	"github.com/pactmesh/pact-core/pkg/contracts"
	"github.com/pactmesh/pact-core/pkg/credentials"
	"github.com/pactmesh/pact-core/pkg/directory"
	"github.com/pactmesh/pact-core/pkg/events"
	"github.com/pactmesh/pact-core/pkg/negotiation"
	"github.com/pactmesh/pact-core/pkg/policy"
	"github.com/pactmesh/pact-core/pkg/providerclient"
	"github.com/pactmesh/pact-core/pkg/reputation"
	"github.com/pactmesh/pact-core/pkg/settlement"
	"github.com/pactmesh/pact-core/pkg/streaming"
	"github.com/pactmesh/pact-core/pkg/transcriptstore"
	"github.com/pactmesh/pact-core/pkg/trust"
	"github.com/pactmesh/pact-core/pkg/wallet"
	"github.com/pactmesh/pact-core/pkg/zkkya"
)

// WalletOptions mirrors AcquireInput.wallet (spec §6).
type WalletOptions struct {
	Provider                     string
	Params                       wallet.Params
	RequiresSignature            bool
	RequiresTransactionSignature bool
	SignatureAction              string
}

// IdentityOptions mirrors AcquireInput.identity (spec §6).
type IdentityOptions struct {
	BuyerZKKYAProofJWT string
	RequireWalletProof bool
}

// SettlementOptions mirrors AcquireInput.settlement (spec §6). MaxSegments
// optionally caps the number of split-settlement segments below
// policy.Settlement.SplitMaxSegments; 0 defers entirely to policy.
type SettlementOptions struct {
	IdempotencyKeyPrefix string
	MaxSegments          int
}

// AcquireInput is the orchestrator's public contract input (spec §4.1/§6).
type AcquireInput struct {
	IntentType          string
	Scope               string
	Constraints         contracts.Constraints
	MaxPrice            float64
	Urgent              bool
	ModeOverride        string // "" | hash_reveal | streaming
	BuyerStopAfterTicks int

	Asset *contracts.Asset

	BuyerAgentID  string
	SellerAgentID string // optional override; normally resolved from the winning candidate

	Identity            IdentityOptions
	Wallet              *WalletOptions
	Settlement          SettlementOptions
	NegotiationStrategy string // "" defaults to "baseline"

	RequireCredential bool
	MinTrustTier      string
	MinTrustScore     float64

	SaveTranscript bool

	Now func() int64 // injected deterministic clock; nil = internal counter
}

// AcquireResult is the orchestrator's public contract output.
type AcquireResult struct {
	OK             bool
	Code           string
	Reason         string
	IntentID       string
	BuyerAgentID   string
	SellerAgentID  string
	Receipt        *contracts.Receipt
	OffersEligible int
	Transcript     *contracts.Transcript
	TranscriptPath string
}

// Deps bundles every injected collaborator the orchestrator composes.
// Callers construct these once per process (or per test) and reuse
// across Acquire calls.
type Deps struct {
	BuyerSigner  canon.Signer // signs buyer-authored envelopes: INTENT, COUNTER, ACCEPT
	SellerSigner canon.Signer // signs in-process ASK/COMMIT/REVEAL/STREAM_CHUNK envelopes for stub (no-Endpoint) candidates

	Directory   directory.Directory
	Reputation  reputation.Store
	Policy      *policy.Policy
	Credentials *credentials.Client
	ZKKYAKeyFn  zkkya.KeyFunc

	Router         *settlement.Router
	ProviderByName map[string]settlement.Provider // rail name -> Provider, resolved via Router.Route

	ProviderClient *providerclient.Client // HTTP round trips to real (Endpoint-bearing) candidates; nil defaults to providerclient.NewClient()

	Runner        *events.Runner
	TranscriptOut transcriptstore.Store
}

func (d *Deps) providerClient() *providerclient.Client {
	if d.ProviderClient != nil {
		return d.ProviderClient
	}
	return providerclient.NewClient()
}

// clock wraps the spec's "inject now(), else an internal counter
// starting at 0 and advancing 1000ms per call" determinism rule.
type clock struct {
	fn  func() int64
	cur int64
}

func newClock(fn func() int64) *clock { return &clock{fn: fn} }

func (c *clock) now() int64 {
	if c.fn != nil {
		return c.fn()
	}
	v := c.cur
	c.cur += 1000
	return v
}

// Acquire runs the complete orchestration described by spec §4.1.
func Acquire(ctx context.Context, in AcquireInput, deps *Deps) *AcquireResult {
	clk := newClock(in.Now)
	intentID := fmt.Sprintf("intent-%s-%d", in.IntentType, clk.now())

	t := &contracts.Transcript{Version: 1}
	t.Input = contracts.SanitizedInput{
		IntentType:     in.IntentType,
		Scope:          in.Scope,
		Constraints:    in.Constraints,
		MaxPrice:       in.MaxPrice,
		Urgent:         in.Urgent,
		SettlementMode: effectiveMode(in.ModeOverride),
		BuyerAgentID:   in.BuyerAgentID,
		SellerAgentID:  in.SellerAgentID,
	}

	fail := func(code, reason string) *AcquireResult {
		t.Outcome = contracts.Outcome{OK: false, Code: code, Reason: reason}
		_ = events.SealTranscript(t, code, reason)
		path := maybeSaveTranscript(ctx, deps, in, intentID, t)
		return &AcquireResult{OK: false, Code: code, Reason: reason, IntentID: intentID, BuyerAgentID: in.BuyerAgentID, Transcript: t, TranscriptPath: path}
	}

	assetID, chainID := in.Asset.Resolve()
	deps.Runner.Emit(events.Event{Phase: events.PhasePolicyValidation, Type: events.TypeProgress, IntentID: intentID, TsMs: clk.now()})

	// --- optional wallet connect ---
	if in.Wallet != nil {
		params := in.Wallet.Params
		params.Provider = in.Wallet.Provider
		params.RequiresSignature = in.Wallet.RequiresSignature
		params.RequiresTransactionSignature = in.Wallet.RequiresTransactionSignature
		w, err := wallet.Connect(params)
		if err != nil {
			return fail(wallet.CodeOf(err), err.Error())
		}
		rec := w.Record()
		if in.Wallet.RequiresSignature {
			sig, serr := w.Sign(in.Wallet.SignatureAction)
			if serr != nil {
				return fail(contracts.CodeWalletProofFailed, serr.Error())
			}
			rec.Used = true
			rec.SignatureMetadata = map[string]any{"action": in.Wallet.SignatureAction, "signature": sig}
		}
		t.Wallet = &rec
	} else if in.Identity.RequireWalletProof {
		return fail(contracts.CodeWalletConnectFailed, "require_wallet_proof set but no wallet configured")
	}

	if deps.Policy == nil {
		return fail(contracts.CodeInvalidPolicy, "no compiled policy supplied")
	}
	guard := policy.NewGuard(deps.Policy)

	// --- optional ZK-KYA ---
	if deps.Policy.ZKKYA.Required || in.Identity.BuyerZKKYAProofJWT != "" {
		res := zkkya.Verify(in.Identity.BuyerZKKYAProofJWT, deps.Policy.ZKKYA.Required, deps.Policy.ZKKYA.AllowedIssuers, deps.Policy.ZKKYA.MinTier, deps.ZKKYAKeyFn, clk.now())
		if !res.OK {
			return fail(res.Code, res.Reason)
		}
	}

	// --- market-stat computation ---
	refP50, _, err := deps.Reputation.PricePercentile(ctx, in.IntentType, 0.5)
	if err != nil {
		return fail(contracts.CodeSettlementFailed, "market stat lookup: "+err.Error())
	}

	// --- execution routing: settlement mode + fanout + max_rounds ---
	mode := effectiveMode(in.ModeOverride)
	maxRounds := deps.Policy.Negotiation.MaxRounds
	strategyName := in.NegotiationStrategy
	if strategyName == "" {
		strategyName = "baseline"
	}
	strategy, ok := negotiation.Strategies[strategyName]
	if !ok {
		return fail(contracts.CodeInvalidPolicy, fmt.Sprintf("unknown negotiation strategy %q", strategyName))
	}

	// --- candidate discovery ---
	providers := deps.Directory.ListForIntent(in.IntentType)
	if len(providers) == 0 {
		return fail(contracts.CodeNoProviders, "no providers registered for intent_type")
	}
	deps.Runner.Emit(events.Event{Phase: events.PhaseProviderDiscovery, Type: events.TypeProgress, IntentID: intentID, TsMs: clk.now()})

	// --- per-candidate evaluation ---
	evals := make([]contracts.CandidateEvaluation, 0, len(providers))
	for _, p := range providers {
		eval := evaluateCandidate(ctx, deps, guard, p, in, clk, t)
		evals = append(evals, eval)
		deps.Runner.Emit(events.Event{Phase: events.PhaseProviderEvaluation, Type: events.TypeProgress, IntentID: intentID, TsMs: clk.now()})
	}
	t.Directory = evals

	eligible := make([]contracts.CandidateEvaluation, 0, len(evals))
	for _, e := range evals {
		if e.Eligible {
			eligible = append(eligible, e)
		}
	}
	if len(eligible) == 0 {
		code := contracts.CodeNoEligibleProviders
		if exCode := allExhaustedWithSameCode(evals); exCode != "" {
			code = exCode
		}
		return fail(code, "no eligible providers after credential/trust evaluation")
	}

	// --- utility ranking (ascending: lower utility is better) ---
	weights := policy.DefaultUtilityWeights()
	for i := range eligible {
		eligible[i].Utility = utility(eligible[i], weights)
	}
	sort.SliceStable(eligible, func(i, j int) bool { return eligible[i].Utility < eligible[j].Utility })

	// --- fallback-plan construction ---
	fallbackOrder := make([]string, 0, len(eligible)-1)
	for _, e := range eligible[1:] {
		fallbackOrder = append(fallbackOrder, e.ProviderID)
	}
	t.Selection = &contracts.Selection{WinnerProviderID: eligible[0].ProviderID, FallbackOrder: fallbackOrder}

	// --- PACT-330/331: fingerprint + contention checks before any
	// settlement side-effect ---
	fp, err := contracts.Fingerprint(in.IntentType, in.Scope, in.Constraints, in.BuyerAgentID)
	if err != nil {
		return fail(contracts.CodeInvalidPolicy, "compute fingerprint: "+err.Error())
	}
	if committed, priorIntentID, cerr := deps.Reputation.HasCommittedFingerprint(ctx, fp); cerr == nil && committed {
		return fail(contracts.CodePact331, fmt.Sprintf("fingerprint already committed by intent %s", priorIntentID))
	}

	// --- bounded retry loop over the fallback plan ---
	streamState := streaming.State{}
	var lastCode, lastReason string
	var winningPubkey string

	for attemptIdx, cand := range eligible {
		providerRec, perr := deps.Directory.Get(cand.ProviderID)
		if perr != nil {
			lastCode, lastReason = contracts.CodeNoProviders, perr.Error()
			continue
		}

		sess := negotiation.NewSession(clk.now, guard, resolveProvider(deps, cand, deps.Policy.Settlement.Routing, mode), deps.BuyerSigner, cand.PubkeyB58)

		intentMsg := contracts.IntentMessage{
			IntentID:       intentID,
			IntentType:     in.IntentType,
			Scope:          in.Scope,
			Constraints:    in.Constraints,
			MaxPrice:       in.MaxPrice,
			SettlementMode: mode,
			SentAtMs:       clk.now(),
		}
		if _, err := sess.OpenWithIntent(intentMsg, maxRounds); err != nil {
			lastCode, lastReason = contracts.CodeInvalidMessageType, err.Error()
			continue
		}

		quote, askEnv, qerr := fetchQuote(ctx, deps, intentID, providerRec, in, refP50, clk.now())
		if qerr != nil {
			t.Quotes = append(t.Quotes, contracts.QuoteRecord{ProviderID: cand.ProviderID, Code: contracts.CodeProviderQuoteHTTPError})
			lastCode, lastReason = contracts.CodeProviderQuoteHTTPError, qerr.Error()
			if !events.IsRetryable(lastCode, false) {
				break
			}
			continue
		}

		verified, verr := sess.OnQuote(askEnv, in.MaxPrice)
		t.Quotes = append(t.Quotes, contracts.QuoteRecord{ProviderID: cand.ProviderID, Price: quote.Price, Verified: verified})
		if verr != nil {
			lastCode, lastReason = sess.FailureCode(), sess.FailureReason()
			deps.Runner.Emit(failureEvent(events.PhaseNegotiation, intentID, clk.now(), lastCode, lastReason))
			if !events.IsRetryable(lastCode, false) {
				break
			}
			continue
		}

		// --- negotiation rounds ---
		// With no price history for intent_type, refP50 is 0; the band is
		// then centred on the quote itself, as the guard skips its band
		// check when there is no reference price.
		refPrice := refP50
		if refPrice <= 0 {
			refPrice = quote.Price
		}
		round := 1
		accepted := false
		negotiationErr := false
		for round <= maxRounds {
			out := strategy(negotiation.StrategyInput{
				ReferencePrice: refPrice, QuotePrice: quote.Price, MaxPrice: in.MaxPrice,
				BandPct: deps.Policy.Negotiation.BandPct, Urgent: in.Urgent,
				CurrentRound: round, MaxRounds: maxRounds,
				UrgentBandWidenPct: deps.Policy.Negotiation.UrgentBandWidenPct,
			})
			if _, cerr := sess.RecordCounter(contracts.CounterMessage{IntentID: intentID, Round: round, CounterPrice: out.CounterPrice, SentAtMs: clk.now()}, out.Accept, out.Reason); cerr != nil {
				lastCode, lastReason = contracts.CodeSettlementFailed, cerr.Error()
				negotiationErr = true
				break
			}
			if out.Accept {
				accepted = true
				break
			}
			round++
		}
		t.NegotiationRounds = append(t.NegotiationRounds, sess.Rounds()...)
		t.Negotiation = contracts.NegotiationSummary{Strategy: strategyName, RoundsUsed: round}

		if negotiationErr {
			if !events.IsRetryable(lastCode, false) {
				break
			}
			continue
		}
		if !accepted {
			lastCode, lastReason = contracts.CodeNegotiationFailed, fmt.Sprintf("no agreement reached within %d rounds", maxRounds)
			if !events.IsRetryable(lastCode, false) {
				break
			}
			continue
		}

		idemFn := func(purpose string) string {
			if in.Settlement.IdempotencyKeyPrefix != "" {
				purpose = in.Settlement.IdempotencyKeyPrefix + ":" + purpose
			}
			return events.IdempotencyKey(fp, purpose, cand.ProviderID, attemptIdx)
		}

		// PACT-330: once a settlement side-effect has begun against one
		// pubkey, no other candidate in this plan may continue.
		if winningPubkey == "" {
			winningPubkey = cand.PubkeyB58
		} else if winningPubkey != cand.PubkeyB58 {
			return fail(contracts.CodePact330, "settlement attempted against a different pubkey than the recorded winner")
		}
		polHash, _ := canon.CanonicalHash(deps.Policy)
		cf, _ := contracts.ContentionFingerprint(in.IntentType, polHash, in.BuyerAgentID)
		t.Contention = &contracts.ContentionRecord{WinnerPubkeyB58: winningPubkey, ContentionFingerprint: cf}

		var receipt contracts.Receipt

		if deps.Policy.Settlement.SplitEnabled && mode == "hash_reveal" {
			segments := resolveSegments(deps.Policy.Settlement.SplitMaxSegments, in.Settlement.MaxSegments)
			receipt, lastCode, lastReason = runSplitSettlement(ctx, deps, cand, in, sess.AgreedPrice(), segments, clk, idemFn, t)
			if lastCode != "" {
				if !events.IsRetryable(lastCode, false) {
					break
				}
				continue
			}
			t.SettlementLifecycle.Provider = cand.ProviderID
			t.SettlementLifecycle.PreparedAtMs = clk.now()
			t.SettlementLifecycle.Status = "committed"
			t.SettlementLifecycle.CommittedAtMs = clk.now()
			t.SettlementLifecycle.PaidAmount = receipt.PaidAmount
		} else {
			acceptRes, _, err := sess.Accept(ctx, in.BuyerAgentID, cand.ProviderID, deps.Policy.Economics.SellerMinBond, deps.Policy.Economics.SellerBondMultiple, deps.Policy.Settlement.SLA, idemFn)
			if err != nil {
				lastCode, lastReason = sess.FailureCode(), sess.FailureReason()
				t.SettlementLifecycle.HandleID = acceptRes.HandleID
				if events.IsPending(lastCode) {
					t.SettlementLifecycle.Status = "pending"
					t.SettlementLifecycle.FailureCode = lastCode
					t.SettlementLifecycle.FailureReason = lastReason
					break
				}
				if !events.IsRetryable(lastCode, false) {
					break
				}
				continue
			}
			t.SettlementLifecycle.HandleID = acceptRes.HandleID
			t.SettlementLifecycle.Provider = cand.ProviderID
			t.SettlementLifecycle.PreparedAtMs = clk.now()

			switch mode {
			case "streaming":
				receipt, lastCode, lastReason = runStreaming(ctx, intentID, sess, deps, cand, in, clk, idemFn, &streamState, t)
			default:
				receipt, lastCode, lastReason = runHashReveal(ctx, intentID, sess, deps, providerRec, clk, idemFn, t)
			}

			if lastCode != "" {
				if !events.IsRetryable(lastCode, false) {
					break
				}
				continue
			}
		}

		// --- success: mark fingerprint committed, finalize ---
		if merr := deps.Reputation.MarkFingerprintCommitted(ctx, fp, intentID, clk.now()); merr != nil {
			return fail(contracts.CodePact331, "concurrent commit won the fingerprint race: "+merr.Error())
		}
		receipt.IntentID = intentID
		receipt.BuyerAgentID = in.BuyerAgentID
		receipt.SellerAgentID = cand.ProviderID
		receipt.TimestampMs = clk.now()
		receipt.AssetID, receipt.ChainID = assetID, chainID
		_ = deps.Reputation.RecordReceipt(ctx, receipt, in.IntentType)

		t.Receipt = &receipt
		t.Outcome = contracts.Outcome{OK: true}
		_ = events.SealTranscript(t, "", "")
		path := maybeSaveTranscript(ctx, deps, in, intentID, t)

		return &AcquireResult{
			OK: true, IntentID: intentID, BuyerAgentID: in.BuyerAgentID, SellerAgentID: cand.ProviderID,
			Receipt: &receipt, OffersEligible: len(eligible), Transcript: t, TranscriptPath: path,
		}
	}

	if lastCode == "" {
		lastCode, lastReason = contracts.CodeSettlementFailed, "fallback plan exhausted with no recorded failure"
	}
	return fail(lastCode, lastReason)
}

func effectiveMode(override string) string {
	if override == "streaming" {
		return "streaming"
	}
	return "hash_reveal"
}

// evaluateCandidate runs credential verification, trust scoring, and the
// identity-phase policy guard for one directory provider.
func evaluateCandidate(ctx context.Context, deps *Deps, guard *policy.Guard, p contracts.Provider, in AcquireInput, clk *clock, t *contracts.Transcript) contracts.CandidateEvaluation {
	eval := contracts.CandidateEvaluation{
		ProviderID:        p.ProviderID,
		PubkeyB58:         p.PubkeyB58,
		Endpoint:          p.Endpoint,
		Region:            p.Region,
		BaselineLatencyMs: p.BaselineLatencyMs,
		FailureRate:       p.FailureRate,
	}
	if p.Quote != nil {
		eval.AskPrice = p.Quote.Price
	}

	// A stub (no-Endpoint) candidate has no real remote seller process;
	// its ASK/COMMIT/REVEAL/STREAM_CHUNK messages are synthesized and
	// signed in-process by deps.SellerSigner, so the identity every
	// such message must verify against is the signer's own pubkey, not
	// the directory's placeholder PubkeyB58. Real HTTP candidates keep
	// their directory-declared pubkey: credential issuer identity
	// (checked just below against p.PubkeyB58) is a distinct concern
	// from in-process signing identity and must not be conflated.
	if p.Endpoint == "" && deps.SellerSigner != nil {
		eval.PubkeyB58 = deps.SellerSigner.PublicKeyB58()
	}

	credRes := deps.Credentials.Verify(p.Endpoint, p.PubkeyB58, in.IntentType, in.RequireCredential, clk.now())
	t.CredentialChecks = append(t.CredentialChecks, contracts.CredentialCheck{
		ProviderID: p.ProviderID, Present: credRes.Present, Valid: credRes.Verified, Code: credRes.Code, Reason: credRes.Reason,
	})
	eval.HasRequiredCredentials = credRes.Verified
	eval.Credentials = credRes.Capabilities

	score, tier := trust.Score(trust.Input{
		IssuerWeight:      deps.Policy.KYA.IssuerWeights[p.IssuerID],
		ClaimCompleteness: credRes.ClaimCompleteness,
		RegionMatch:       in.Scope == "" || p.Region == "" || p.Region == in.Scope,
		ModeMatch:         true,
	})
	eval.TrustScore = score
	eval.TrustTier = tier

	agentScore, _ := deps.Reputation.AgentScore(ctx, p.ProviderID)
	eval.Reputation = agentScore

	result := guard.CheckIdentity(policy.IdentityContext{
		Candidate:         eval,
		MinTrustTier:      in.MinTrustTier,
		MinTrustScore:     in.MinTrustScore,
		RequireCredential: in.RequireCredential,
	}, in.IntentType)
	if !result.OK {
		eval.Eligible = false
		eval.IneligibleCode = result.Code
		eval.IneligibleReason = result.Reason
		return eval
	}
	eval.Eligible = true
	return eval
}

func allExhaustedWithSameCode(evals []contracts.CandidateEvaluation) string {
	if len(evals) == 0 {
		return ""
	}
	code := evals[0].IneligibleCode
	if code == "" || !contracts.IsAllCandidatesExhaustionCode(code) {
		return ""
	}
	for _, e := range evals {
		if e.Eligible || e.IneligibleCode != code {
			return ""
		}
	}
	return code
}

func utility(c contracts.CandidateEvaluation, w policy.UtilityWeights) float64 {
	u := c.AskPrice
	u += float64(c.BaselineLatencyMs) * w.LatencyPerMs
	u += c.FailureRate * w.FailureRatePerUnit
	u -= c.Reputation * w.ReputationPerUnit
	switch c.TrustTier {
	case contracts.TierLow:
		u -= w.TrustBonusLow
	case contracts.TierTrusted:
		u -= w.TrustBonusTrusted
	}
	return u
}

func failureEvent(phase, intentID string, tsMs int64, code, reason string) events.Event {
	return events.Event{Phase: phase, Type: events.TypeFailure, IntentID: intentID, TsMs: tsMs, FailureCode: code, FailureReason: reason, Retryable: events.IsRetryable(code, false)}
}

// quoteResult is the normalized shape fetchQuote returns regardless of
// whether the candidate is an in-process stub or an HTTP provider.
type quoteResult struct {
	Price     float64
	FirmQuote bool
}

// fetchQuote produces a signed ASK envelope: a stub candidate has it
// synthesized and signed in-process by deps.SellerSigner; a real
// candidate gets it over the wire via POST {endpoint}/quote (spec §6).
// The envelope is returned unverified — sess.OnQuote verifies it
// against the candidate's signing identity and reports whether the
// signature actually checked out.
func fetchQuote(ctx context.Context, deps *Deps, intentID string, p contracts.Provider, in AcquireInput, refP50 float64, nowMs int64) (quoteResult, canon.Envelope, error) {
	if p.Quote != nil {
		msg := contracts.AskMessage{IntentID: intentID, Price: p.Quote.Price, RefP50: refP50, FirmQuote: p.Quote.FirmQuote, SentAtMs: nowMs}
		env, err := canon.SignEnvelope(deps.SellerSigner, contracts.MsgAsk, msg)
		if err != nil {
			return quoteResult{}, canon.Envelope{}, fmt.Errorf("sign stub ask: %w", err)
		}
		return quoteResult{Price: p.Quote.Price, FirmQuote: p.Quote.FirmQuote}, *env, nil
	}
	if p.Endpoint == "" {
		return quoteResult{}, canon.Envelope{}, fmt.Errorf("provider %s has no endpoint and no stub quote", p.ProviderID)
	}

	// A real HTTP /quote round trip is a thin, single-attempt POST
	// (spec §6); this module does not retry it (see DESIGN.md's Open
	// Question resolution on quote/commit/reveal fetch retries).
	env, err := deps.providerClient().Quote(ctx, p.Endpoint, providerclient.QuoteRequest{
		IntentID:    intentID,
		IntentType:  in.IntentType,
		MaxPrice:    in.MaxPrice,
		Constraints: in.Constraints,
		Urgent:      in.Urgent,
	})
	if err != nil {
		return quoteResult{}, canon.Envelope{}, fmt.Errorf("http quote fetch to %s: %w", p.Endpoint, err)
	}

	var ask contracts.AskMessage
	if err := canon.DecodeMessage(env.Message, &ask); err != nil {
		return quoteResult{}, canon.Envelope{}, fmt.Errorf("decode ask from %s: %w", p.Endpoint, err)
	}
	return quoteResult{Price: ask.Price, FirmQuote: ask.FirmQuote}, env, nil
}

// resolveProvider routes (amount, mode, trust) through deps.Router and
// returns the matching settlement.Provider, defaulting to the routing
// policy's default rail if routing/backend resolution fails — callers
// observe the failure downstream at Commit time rather than from an
// orchestrator-internal routing error.
func resolveProvider(deps *Deps, cand contracts.CandidateEvaluation, routing policy.RoutingPolicy, mode string) settlement.Provider {
	decision, err := deps.Router.Route(cand.AskPrice, mode, cand.TrustTier, cand.TrustScore, cand.Region)
	if err != nil {
		return deps.ProviderByName[routing.DefaultProvider]
	}
	if p, ok := deps.ProviderByName[decision.Use]; ok {
		return p
	}
	return deps.ProviderByName[routing.DefaultProvider]
}

// resolveSegments clamps the policy's split-settlement segment count to
// an optional per-call override, always returning at least 1.
func resolveSegments(policyMax, overrideMax int) int {
	segments := policyMax
	if segments < 1 {
		segments = 1
	}
	if overrideMax > 0 && overrideMax < segments {
		segments = overrideMax
	}
	return segments
}

// runSplitSettlement divides agreedPrice across up to segments
// independently-routed, independently-committed settlement legs (spec
// §4.5 component C5). Each segment is routed fresh through deps.Router
// so a multi-segment plan may legitimately settle across distinct
// rails; any segment failure fails the whole attempt (no partial
// receipt), leaving whatever segments already committed recorded on
// the transcript for reconciliation.
func runSplitSettlement(ctx context.Context, deps *Deps, cand contracts.CandidateEvaluation, in AcquireInput, agreedPrice float64, segments int, clk *clock, idemFn func(string) string, t *contracts.Transcript) (contracts.Receipt, string, string) {
	if segments < 1 {
		segments = 1
	}
	base := agreedPrice / float64(segments)
	var total float64

	for i := 0; i < segments; i++ {
		amount := base
		if i == segments-1 {
			amount = agreedPrice - total
		}

		railName := deps.Policy.Settlement.Routing.DefaultProvider
		if decision, derr := deps.Router.Route(amount, "hash_reveal", cand.TrustTier, cand.TrustScore, cand.Region); derr == nil {
			railName = decision.Use
		}
		rail, ok := deps.ProviderByName[railName]
		if !ok {
			t.SettlementSegments = append(t.SettlementSegments, contracts.SettlementSegment{SegmentIndex: i, Amount: amount, Rail: railName, Status: "failed", FailureCode: contracts.CodeSettlementFailed})
			return contracts.Receipt{}, contracts.CodeSettlementFailed, fmt.Sprintf("segment %d: no provider registered for rail %q", i, railName)
		}

		segKey := func(purpose string) string { return idemFn(fmt.Sprintf("segment_%d_%s", i, purpose)) }

		handle, lerr := rail.Lock(ctx, in.BuyerAgentID, amount, segKey("lock"))
		if lerr != nil {
			t.SettlementSegments = append(t.SettlementSegments, contracts.SettlementSegment{SegmentIndex: i, Amount: amount, Rail: railName, Status: "failed", FailureCode: contracts.CodeSettlementFailed})
			return contracts.Receipt{}, contracts.CodeSettlementFailed, fmt.Sprintf("segment %d lock: %v", i, lerr)
		}

		res, cerr := rail.Commit(ctx, handle, segKey("commit"))
		if cerr != nil || res.Status != settlement.StatusCommitted {
			t.SettlementSegments = append(t.SettlementSegments, contracts.SettlementSegment{SegmentIndex: i, Amount: amount, Rail: railName, Status: "failed", FailureCode: contracts.CodeSettlementFailed})
			reason := fmt.Sprintf("segment %d commit did not reach committed status", i)
			if cerr != nil {
				reason = fmt.Sprintf("segment %d commit: %v", i, cerr)
			}
			return contracts.Receipt{}, contracts.CodeSettlementFailed, reason
		}

		total += res.PaidAmount
		t.SettlementSegments = append(t.SettlementSegments, contracts.SettlementSegment{SegmentIndex: i, Amount: res.PaidAmount, Rail: railName, Status: "committed"})
	}

	return contracts.Receipt{AgreedPrice: agreedPrice, Fulfilled: true, PaidAmount: total}, "", ""
}

// runHashReveal drives one candidate through COMMIT/REVEAL. The buyer
// generates the payload/nonce pair itself either way; a stub candidate
// has the COMMIT/REVEAL envelopes synthesized and signed in-process by
// deps.SellerSigner, while a real candidate gets them over the wire via
// POST {endpoint}/commit and /reveal (spec §6), each verified against
// the candidate's signing identity before being trusted.
func runHashReveal(ctx context.Context, intentID string, sess *negotiation.Session, deps *Deps, providerRec contracts.Provider, clk *clock, idemFn func(string) string, t *contracts.Transcript) (contracts.Receipt, string, string) {
	payload := make([]byte, 16)
	nonce := make([]byte, 16)
	if _, err := rand.Read(payload); err != nil {
		return contracts.Receipt{}, contracts.CodeSettlementFailed, "generate payload: " + err.Error()
	}
	if _, err := rand.Read(nonce); err != nil {
		return contracts.Receipt{}, contracts.CodeSettlementFailed, "generate nonce: " + err.Error()
	}
	payloadB64 := base64.StdEncoding.EncodeToString(payload)
	nonceB64 := base64.StdEncoding.EncodeToString(nonce)
	h := sha256.New()
	h.Write(payload)
	h.Write(nonce)
	commitHashHex := hex.EncodeToString(h.Sum(nil))

	var commitEnv canon.Envelope
	if providerRec.Endpoint == "" {
		msg := contracts.CommitMessage{IntentID: intentID, CommitHashHex: commitHashHex, SentAtMs: clk.now()}
		env, err := canon.SignEnvelope(deps.SellerSigner, contracts.MsgCommit, msg)
		if err != nil {
			return contracts.Receipt{}, contracts.CodeSettlementFailed, "sign commit: " + err.Error()
		}
		commitEnv = *env
	} else {
		env, err := deps.providerClient().Commit(ctx, providerRec.Endpoint, providerclient.CommitRequest{IntentID: intentID, PayloadB64: payloadB64, NonceB64: nonceB64})
		if err != nil {
			return contracts.Receipt{}, contracts.CodeProviderQuoteHTTPError, "commit round trip: " + err.Error()
		}
		commitEnv = env
	}

	if _, err := sess.OnCommit(commitEnv); err != nil {
		return contracts.Receipt{}, sess.FailureCode(), sess.FailureReason()
	}

	var revealEnv canon.Envelope
	if providerRec.Endpoint == "" {
		msg := contracts.RevealMessage{IntentID: intentID, PayloadB64: payloadB64, NonceB64: nonceB64, SentAtMs: clk.now()}
		env, err := canon.SignEnvelope(deps.SellerSigner, contracts.MsgReveal, msg)
		if err != nil {
			return contracts.Receipt{}, contracts.CodeSettlementFailed, "sign reveal: " + err.Error()
		}
		revealEnv = *env
	} else {
		env, err := deps.providerClient().Reveal(ctx, providerRec.Endpoint, providerclient.RevealRequest{IntentID: intentID, PayloadB64: payloadB64, NonceB64: nonceB64, CommitHashHex: commitHashHex})
		if err != nil {
			return contracts.Receipt{}, contracts.CodeProviderQuoteHTTPError, "reveal round trip: " + err.Error()
		}
		revealEnv = env
	}

	if _, err := sess.OnReveal(ctx, revealEnv, idemFn); err != nil {
		return contracts.Receipt{}, sess.FailureCode(), sess.FailureReason()
	}

	t.Settlement = contracts.SettlementSummary{Mode: "hash_reveal", VerificationSummary: "commit/reveal hash matched"}
	t.SettlementLifecycle.Status = "committed"
	t.SettlementLifecycle.CommittedAtMs = clk.now()
	t.SettlementLifecycle.PaidAmount = sess.AgreedPrice()

	return contracts.Receipt{AgreedPrice: sess.AgreedPrice(), Fulfilled: true, PaidAmount: sess.AgreedPrice()}, "", ""
}

// runStreaming drives one candidate through the streaming tick loop.
// Cumulative state survives across fallback attempts (spec §4.5).
func runStreaming(ctx context.Context, intentID string, sess *negotiation.Session, deps *Deps, cand contracts.CandidateEvaluation, in AcquireInput, clk *clock, idemFn func(string) string, cumulative *streaming.State, t *contracts.Transcript) (contracts.Receipt, string, string) {
	tickMs := deps.Policy.Settlement.StreamingTickMs
	if tickMs <= 0 {
		tickMs = 100
	}
	plannedTicks := 10
	if in.Constraints.LatencyMs > 0 {
		if n := int(in.Constraints.LatencyMs / tickMs); n > 0 {
			plannedTicks = n
		}
	}

	streamClk := streaming.NewClock(clk.now(), tickMs)
	provider := resolveProvider(deps, cand, deps.Policy.Settlement.Routing, "streaming")

	chunkFn := func(seq int64) (canon.Envelope, error) {
		if cand.Endpoint == "" {
			msg := contracts.StreamChunkMessage{IntentID: intentID, Seq: seq, SentAtMs: streamClk.Now()}
			env, err := canon.SignEnvelope(deps.SellerSigner, contracts.MsgStreamChunk, msg)
			if err != nil {
				return canon.Envelope{}, err
			}
			return *env, nil
		}
		return deps.providerClient().StreamChunk(ctx, cand.Endpoint, providerclient.StreamChunkRequest{IntentID: intentID, Seq: seq, SentAtMs: streamClk.Now()})
	}

	outcome := streaming.Run(ctx, provider, streamClk, streaming.Input{
		TotalBudget:         sess.AgreedPrice(),
		TickMs:              tickMs,
		PlannedTicks:        plannedTicks,
		BuyerAcct:           in.BuyerAgentID,
		SellerAcct:          cand.ProviderID,
		ProviderPubkeyB58:   cand.PubkeyB58,
		BuyerStopAfterTicks: in.BuyerStopAfterTicks,
		ChunkFn:             chunkFn,
	}, *cumulative, func(seq int64) string { return idemFn(fmt.Sprintf("stream_%d", seq)) }, func(ticksThisAttempt int) {
		deps.Runner.Emit(events.Event{Phase: events.PhaseSettlementStreaming, Type: events.TypeProgress, IntentID: intentID, TsMs: streamClk.Now()})
	})

	*cumulative = outcome.State
	attempt := outcome.Attempt
	attempt.ProviderID = cand.ProviderID
	t.StreamingAttempts = append(t.StreamingAttempts, attempt)

	if !outcome.Fulfilled {
		code := outcome.FailureCode
		reason := "streaming attempt terminated: " + outcome.TerminationReason
		if code == "" {
			code = contracts.CodeSettlementFailed
		}
		return contracts.Receipt{}, code, reason
	}

	t.StreamingSummary = &contracts.StreamingSummary{
		TotalTicks: outcome.State.Ticks, TotalChunks: outcome.State.Chunks,
		TotalPaid: outcome.State.PaidAmount, BudgetTotal: sess.AgreedPrice(), Fulfilled: true,
	}
	t.Settlement = contracts.SettlementSummary{
		Mode: "streaming", VerificationSummary: fmt.Sprintf("%d ticks, %d chunks, paid %.8f", outcome.State.Ticks, outcome.State.Chunks, outcome.State.PaidAmount),
	}
	t.SettlementLifecycle.Status = "committed"
	t.SettlementLifecycle.CommittedAtMs = clk.now()
	t.SettlementLifecycle.PaidAmount = outcome.State.PaidAmount

	return contracts.Receipt{
		AgreedPrice: sess.AgreedPrice(), Fulfilled: true, PaidAmount: outcome.State.PaidAmount,
		Ticks: outcome.State.Ticks, Chunks: outcome.State.Chunks,
	}, "", ""
}

func maybeSaveTranscript(ctx context.Context, deps *Deps, in AcquireInput, intentID string, t *contracts.Transcript) string {
	if !in.SaveTranscript || deps.TranscriptOut == nil {
		return ""
	}
	b, err := canon.JCS(t)
	if err != nil {
		return ""
	}
	if _, err := deps.TranscriptOut.Write(ctx, intentID, b); err != nil {
		return ""
	}
	return intentID
}
