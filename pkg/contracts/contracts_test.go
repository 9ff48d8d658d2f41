package contracts_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pactmesh/pact-core/pkg/contracts"
)

func TestAsset_ResolveNilReceiverDefaultsToUSDC(t *testing.T) {
	var a *contracts.Asset
	assetID, chainID := a.Resolve()
	require.Equal(t, "USDC", assetID)
	require.Equal(t, "", chainID)
}

func TestAsset_ResolvePrefersSymbolAndChain(t *testing.T) {
	a := &contracts.Asset{Symbol: "ETH", Chain: "mainnet", AssetID: "ignored-id", ChainID: "ignored-chain"}
	assetID, chainID := a.Resolve()
	require.Equal(t, "ETH", assetID)
	require.Equal(t, "mainnet", chainID)
}

func TestAsset_ResolveFallsBackToAssetIDAndChainID(t *testing.T) {
	a := &contracts.Asset{AssetID: "0xabc", ChainID: "1"}
	assetID, chainID := a.Resolve()
	require.Equal(t, "0xabc", assetID)
	require.Equal(t, "1", chainID)
}

func TestAsset_ResolveEmptyFieldsDefaultToUSDC(t *testing.T) {
	a := &contracts.Asset{}
	assetID, chainID := a.Resolve()
	require.Equal(t, "USDC", assetID)
	require.Equal(t, "", chainID)
}

func TestTierRank_OrdersUntrustedLowTrusted(t *testing.T) {
	require.Less(t, contracts.TierRank(contracts.TierUntrusted), contracts.TierRank(contracts.TierLow))
	require.Less(t, contracts.TierRank(contracts.TierLow), contracts.TierRank(contracts.TierTrusted))
}

func TestTierRank_UnknownTierIsUntrusted(t *testing.T) {
	require.Equal(t, contracts.TierRank(contracts.TierUntrusted), contracts.TierRank("bogus"))
}

func TestFingerprint_DeterministicForSameInput(t *testing.T) {
	c := contracts.Constraints{LatencyMs: 100, FreshnessSec: 10}
	f1, err := contracts.Fingerprint("compute.infer", "scope-a", c, "buyer-1")
	require.NoError(t, err)
	f2, err := contracts.Fingerprint("compute.infer", "scope-a", c, "buyer-1")
	require.NoError(t, err)
	require.Equal(t, f1, f2)
}

func TestFingerprint_DiffersOnScope(t *testing.T) {
	c := contracts.Constraints{LatencyMs: 100}
	f1, err := contracts.Fingerprint("compute.infer", "scope-a", c, "buyer-1")
	require.NoError(t, err)
	f2, err := contracts.Fingerprint("compute.infer", "scope-b", c, "buyer-1")
	require.NoError(t, err)
	require.NotEqual(t, f1, f2)
}

func TestFingerprint_NormalizesScopeUnicodeForm(t *testing.T) {
	// "é" (e + combining acute) NFC-normalizes to "é" (é).
	c := contracts.Constraints{}
	f1, err := contracts.Fingerprint("compute.infer", "café", c, "buyer-1")
	require.NoError(t, err)
	f2, err := contracts.Fingerprint("compute.infer", "café", c, "buyer-1")
	require.NoError(t, err)
	require.Equal(t, f1, f2)
}

func TestContentionFingerprint_DeterministicForSameInput(t *testing.T) {
	f1, err := contracts.ContentionFingerprint("compute.infer", "policy-hash-1", "buyer-1")
	require.NoError(t, err)
	f2, err := contracts.ContentionFingerprint("compute.infer", "policy-hash-1", "buyer-1")
	require.NoError(t, err)
	require.Equal(t, f1, f2)
}

func TestContentionFingerprint_DiffersFromIntentFingerprint(t *testing.T) {
	fp, err := contracts.Fingerprint("compute.infer", "scope", contracts.Constraints{}, "buyer-1")
	require.NoError(t, err)
	cfp, err := contracts.ContentionFingerprint("compute.infer", "policy-hash-1", "buyer-1")
	require.NoError(t, err)
	require.NotEqual(t, fp, cfp)
}

func TestPenaltyReceipt_IsUnfulfilledAndZeroPaid(t *testing.T) {
	r := contracts.PenaltyReceipt("intent-1", "buyer-1", "seller-1", 5000, contracts.CodeSettlementFailed)
	require.False(t, r.Fulfilled)
	require.Zero(t, r.PaidAmount)
	require.Zero(t, r.AgreedPrice)
	require.Equal(t, int64(5000), r.TimestampMs)
	require.Equal(t, contracts.CodeSettlementFailed, r.FailureCode)
}

func TestIsPending_OnlyTrueForPollTimeout(t *testing.T) {
	require.True(t, contracts.IsPending(contracts.CodeSettlementPollTimeout))
	require.False(t, contracts.IsPending(contracts.CodeSettlementFailed))
}

func TestIsRetryable_AlwaysRetryableCodes(t *testing.T) {
	require.True(t, contracts.IsRetryable(contracts.CodeProviderSignatureInvalid, false))
	require.True(t, contracts.IsRetryable(contracts.CodeSettlementFailed, true))
}

func TestIsRetryable_TerminalCodesAreNeverRetryable(t *testing.T) {
	require.False(t, contracts.IsRetryable(contracts.CodeBuyerStopped, false))
	require.False(t, contracts.IsRetryable(contracts.CodePact331, true))
}

func TestIsRetryable_PendingCodeIsNeverRetryable(t *testing.T) {
	require.False(t, contracts.IsRetryable(contracts.CodeSettlementPollTimeout, false))
}

func TestIsRetryable_WalletCodesDependOnRequiredFlag(t *testing.T) {
	require.False(t, contracts.IsRetryable(contracts.CodeWalletConnectFailed, true))
	require.True(t, contracts.IsRetryable(contracts.CodeWalletConnectFailed, false))
}

func TestIsRetryable_AllCandidatesExhaustionCodeIsRetryablePerCandidate(t *testing.T) {
	require.True(t, contracts.IsRetryable(contracts.CodeProviderMissingRequiredCreds, false))
}

func TestIsAllCandidatesExhaustionCode(t *testing.T) {
	require.True(t, contracts.IsAllCandidatesExhaustionCode(contracts.CodeProviderMissingRequiredCreds))
	require.True(t, contracts.IsAllCandidatesExhaustionCode(contracts.CodeProviderUntrustedIssuer))
	require.False(t, contracts.IsAllCandidatesExhaustionCode(contracts.CodeProviderTrustTierTooLow))
}
