package orchestrator_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pactmesh/pact-core/pkg/canon"
	"github.com/pactmesh/pact-core/pkg/contracts"
	"github.com/pactmesh/pact-core/pkg/credentials"
	"github.com/pactmesh/pact-core/pkg/directory"
	"github.com/pactmesh/pact-core/pkg/events"
	"github.com/pactmesh/pact-core/pkg/orchestrator"
	"github.com/pactmesh/pact-core/pkg/policy"
	"github.com/pactmesh/pact-core/pkg/reputation"
	"github.com/pactmesh/pact-core/pkg/settlement"
)

type testHarness struct {
	deps  *orchestrator.Deps
	rail  *settlement.MockProvider
	dir   *directory.InMemory
	clock func() int64
}

func newHarness(t *testing.T, buyerBalance float64) *testHarness {
	t.Helper()
	signer, err := canon.NewEd25519Signer()
	require.NoError(t, err)
	buyerSigner, err := canon.NewEd25519Signer()
	require.NoError(t, err)

	dir := directory.NewInMemory()
	rail := settlement.NewMockProvider(map[string]float64{"buyer-1": buyerBalance})
	pol := policy.Default()
	cel, err := policy.NewCELEvaluator()
	require.NoError(t, err)
	router := settlement.NewRouter(pol, cel)

	var ticks int64
	clk := func() int64 {
		v := ticks
		ticks += 1000
		return v
	}

	return &testHarness{
		dir:   dir,
		rail:  rail,
		clock: clk,
		deps: &orchestrator.Deps{
			BuyerSigner:    buyerSigner,
			SellerSigner:   signer,
			Directory:      dir,
			Reputation:     reputation.NewMemory(),
			Policy:         pol,
			Credentials:    credentials.NewClient(),
			ZKKYAKeyFn:     nil,
			Router:         router,
			ProviderByName: map[string]settlement.Provider{"mock": rail},
			Runner:         events.NewRunner(),
		},
	}
}

func (h *testHarness) registerSeller(providerID string, price float64) {
	_ = h.dir.Register(contracts.Provider{
		ProviderID:        providerID,
		PubkeyB58:         "seller-pubkey-" + providerID,
		IntentTypes:       []string{"compute.infer"},
		Region:            "us",
		BaselineLatencyMs: 50,
		FailureRate:       0.01,
		Quote:             &contracts.StubQuote{Price: price, FirmQuote: true},
	})
}

func TestAcquire_HappyPathHashReveal(t *testing.T) {
	h := newHarness(t, 1000)
	h.registerSeller("seller-1", 10)

	result := orchestrator.Acquire(context.Background(), orchestrator.AcquireInput{
		IntentType:   "compute.infer",
		MaxPrice:     20,
		BuyerAgentID: "buyer-1",
		Now:          h.clock,
	}, h.deps)

	require.True(t, result.OK)
	require.Equal(t, "seller-1", result.SellerAgentID)
	require.NotNil(t, result.Receipt)
	require.True(t, result.Receipt.Fulfilled)
	require.Equal(t, "hash_reveal", result.Transcript.Input.SettlementMode)
}

func TestAcquire_NoProvidersRegistered(t *testing.T) {
	h := newHarness(t, 1000)

	result := orchestrator.Acquire(context.Background(), orchestrator.AcquireInput{
		IntentType:   "compute.infer",
		MaxPrice:     20,
		BuyerAgentID: "buyer-1",
		Now:          h.clock,
	}, h.deps)

	require.False(t, result.OK)
	require.Equal(t, contracts.CodeNoProviders, result.Code)
}

func TestAcquire_TrustTierFloorRejectsAllCandidates(t *testing.T) {
	h := newHarness(t, 1000)
	h.registerSeller("seller-1", 10)

	result := orchestrator.Acquire(context.Background(), orchestrator.AcquireInput{
		IntentType:    "compute.infer",
		MaxPrice:      20,
		BuyerAgentID:  "buyer-1",
		MinTrustTier:  "trusted",
		MinTrustScore: 0.99,
		Now:           h.clock,
	}, h.deps)

	require.False(t, result.OK)
	require.Equal(t, contracts.CodeNoEligibleProviders, result.Code)
}

func TestAcquire_QuoteAboveMaxPriceFailsNegotiation(t *testing.T) {
	h := newHarness(t, 1000)
	h.registerSeller("seller-1", 100)

	result := orchestrator.Acquire(context.Background(), orchestrator.AcquireInput{
		IntentType:   "compute.infer",
		MaxPrice:     5,
		BuyerAgentID: "buyer-1",
		Now:          h.clock,
	}, h.deps)

	require.False(t, result.OK)
}

func TestAcquire_StreamingModeBuyerStopLeavesUnfulfilled(t *testing.T) {
	h := newHarness(t, 1000)
	h.registerSeller("seller-1", 10)

	result := orchestrator.Acquire(context.Background(), orchestrator.AcquireInput{
		IntentType:          "compute.infer",
		MaxPrice:            20,
		BuyerAgentID:        "buyer-1",
		ModeOverride:        "streaming",
		BuyerStopAfterTicks: 2,
		Constraints:         contracts.Constraints{LatencyMs: 1000},
		Now:                 h.clock,
	}, h.deps)

	require.False(t, result.OK)
}

func TestAcquire_ExplicitAssetOverridePropagatesToReceipt(t *testing.T) {
	h := newHarness(t, 1000)
	h.registerSeller("seller-1", 10)

	result := orchestrator.Acquire(context.Background(), orchestrator.AcquireInput{
		IntentType:   "compute.infer",
		MaxPrice:     20,
		BuyerAgentID: "buyer-1",
		Asset:        &contracts.Asset{Symbol: "ETH", Chain: "mainnet"},
		Now:          h.clock,
	}, h.deps)

	require.True(t, result.OK)
	require.Equal(t, "ETH", result.Receipt.AssetID)
	require.Equal(t, "mainnet", result.Receipt.ChainID)
}

func TestAcquire_DuplicateFingerprintRejectsSecondCall(t *testing.T) {
	h := newHarness(t, 1000)
	h.registerSeller("seller-1", 10)

	in := orchestrator.AcquireInput{
		IntentType:   "compute.infer",
		Scope:        "scope-a",
		MaxPrice:     20,
		BuyerAgentID: "buyer-1",
		Now:          h.clock,
	}

	first := orchestrator.Acquire(context.Background(), in, h.deps)
	require.True(t, first.OK)

	second := orchestrator.Acquire(context.Background(), in, h.deps)
	require.False(t, second.OK)
	require.Equal(t, contracts.CodePact331, second.Code)
}

// TestAcquire_HTTPProviderSignerMismatchFailsNegotiation covers spec §8's
// fifth scenario: a provider registered in the directory under pubkey A
// whose HTTP /quote endpoint signs its ASK envelope with a different
// pubkey B. The candidate has a real Endpoint and no stub Quote, so
// fetchQuote takes the HTTP round trip through pkg/providerclient rather
// than the in-process stub path.
func TestAcquire_HTTPProviderSignerMismatchFailsNegotiation(t *testing.T) {
	h := newHarness(t, 1000)

	wrongSigner, err := canon.NewEd25519Signer()
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("/credential", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/quote", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			IntentID string `json:"intent_id"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		env, err := canon.SignEnvelope(wrongSigner, contracts.MsgAsk, contracts.AskMessage{IntentID: req.IntentID, Price: 10, FirmQuote: true})
		require.NoError(t, err)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"envelope": env})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	correctSigner, err := canon.NewEd25519Signer()
	require.NoError(t, err)
	_ = h.dir.Register(contracts.Provider{
		ProviderID:        "seller-http",
		PubkeyB58:         correctSigner.PublicKeyB58(),
		Endpoint:          srv.URL,
		IntentTypes:       []string{"compute.infer"},
		Region:            "us",
		BaselineLatencyMs: 50,
		FailureRate:       0.01,
	})

	result := orchestrator.Acquire(context.Background(), orchestrator.AcquireInput{
		IntentType:   "compute.infer",
		MaxPrice:     20,
		BuyerAgentID: "buyer-1",
		Now:          h.clock,
	}, h.deps)

	require.False(t, result.OK)
	require.Equal(t, contracts.CodeProviderSignerMismatch, result.Code)
	require.Len(t, result.Transcript.Quotes, 1)
	require.False(t, result.Transcript.Quotes[0].Verified)
}
