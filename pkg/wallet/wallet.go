// Package wallet implements the buyer-side wallet capability interface
// (spec §3/§6): connect, report {can_sign_message,
// can_sign_transaction, supported_chains, supported_assets}, and
// produce a signature when policy requires proof of wallet control.
// Wallet adapter internals — real key management, real chain RPC — are
// an explicit Non-goal (spec.md §1); this package models the interface
// boundary every provider variant satisfies, with only the "test"
// variant backed by a real signer, grounded on `pkg/canon.Ed25519Signer`.
//
// Grounded on the teacher's pluggable-backend registry idiom
// (`core/pkg/registry/registry.go`, reused in `pkg/directory`):
// a provider-name-keyed map of constructors, selected at Connect time.
package wallet

import (
	"fmt"

	"github.com/pactmesh/pact-core/pkg/canon"
	"github.com/pactmesh/pact-core/pkg/contracts"
)

// Provider names accepted in AcquireInput.wallet.provider (spec §6).
const (
	ProviderTest           = "test"
	ProviderEthers         = "ethers"
	ProviderSolanaKeypair  = "solana-keypair"
	ProviderMetamask       = "metamask"
	ProviderCoinbase       = "coinbase"
	ProviderExternal       = "external"
)

// Params configures Connect; Params mirrors AcquireInput.wallet verbatim.
type Params struct {
	Provider                     string
	Chain                        string
	SupportedChains              []string
	SupportedAssets              []string
	RequiresSignature            bool
	RequiresTransactionSignature bool
	SignatureAction              string // the message signed to prove control, when RequiresSignature

	// Seed, when non-empty, deterministically derives the "test"
	// provider's Ed25519 keypair (demos/tests only; real providers never
	// take key material through this struct).
	Seed []byte
}

// Wallet is a connected wallet ready to report capabilities and, if
// the provider supports it, produce a signature.
type Wallet struct {
	record contracts.Wallet
	signer canon.Signer // nil for providers this module cannot sign with
}

// Record returns the contracts.Wallet transcript section.
func (w *Wallet) Record() contracts.Wallet { return w.record }

// Sign produces a base58 signature over action using the connected
// wallet's key, if one is available. Non-test providers return
// ErrSigningNotSupported: this module never performs real chain RPC or
// holds real private keys for them.
func (w *Wallet) Sign(action string) (string, error) {
	if w.signer == nil {
		return "", ErrSigningNotSupported
	}
	sig, err := w.signer.Sign([]byte(action))
	if err != nil {
		return "", fmt.Errorf("wallet: sign: %w", err)
	}
	return sig, nil
}

// ErrSigningNotSupported is returned by Sign for wallet providers this
// module models only at the capability-declaration level.
var ErrSigningNotSupported = fmt.Errorf("wallet: signing not supported for this provider in-process")

// Connect constructs a Wallet for params.Provider. Unknown providers
// fail with CodeWalletConnectFailed; a provider that cannot satisfy
// RequiresSignature/RequiresTransactionSignature fails with
// CodeWalletCapabilityMissing so the orchestrator can classify the
// failure without inspecting provider internals.
func Connect(params Params) (*Wallet, error) {
	connect, ok := connectors[params.Provider]
	if !ok {
		return nil, newCodedConnectErr(contracts.CodeWalletConnectFailed, fmt.Sprintf("unknown wallet provider %q", params.Provider))
	}
	caps, signer, err := connect(params)
	if err != nil {
		return nil, err
	}

	if params.RequiresSignature && !caps.CanSignMessage {
		return nil, newCodedConnectErr(contracts.CodeWalletCapabilityMissing, fmt.Sprintf("provider %q cannot sign messages", params.Provider))
	}
	if params.RequiresTransactionSignature && !caps.CanSignTransaction {
		return nil, newCodedConnectErr(contracts.CodeWalletCapabilityMissing, fmt.Sprintf("provider %q cannot sign transactions", params.Provider))
	}

	return &Wallet{
		record: contracts.Wallet{
			Kind:         params.Provider,
			Chain:        params.Chain,
			Capabilities: caps,
		},
		signer: signer,
	}, nil
}

// connectErr carries a stable wallet failure code through Connect's
// plain error return; callers recover it with CodeOf.
type connectErr struct {
	code   string
	reason string
}

func (e *connectErr) Error() string { return e.code + ": " + e.reason }

func newCodedConnectErr(code, reason string) error {
	return &connectErr{code: code, reason: reason}
}

// CodeOf recovers the stable failure code from an error Connect
// returned, defaulting to CodeWalletConnectFailed for anything else.
func CodeOf(err error) string {
	if ce, ok := err.(*connectErr); ok {
		return ce.code
	}
	return contracts.CodeWalletConnectFailed
}

type connector func(Params) (contracts.Capabilities, canon.Signer, error)

// connectors is keyed by provider name; every provider except "test"
// declares capabilities from the caller-supplied params without
// performing real chain RPC, per this module's explicit Non-goal on
// wallet adapter internals.
var connectors = map[string]connector{
	ProviderTest: func(p Params) (contracts.Capabilities, canon.Signer, error) {
		var signer *canon.Ed25519Signer
		var err error
		if len(p.Seed) == 32 {
			signer, err = canon.NewEd25519SignerFromSeed(p.Seed)
		} else {
			signer, err = canon.NewEd25519Signer()
		}
		if err != nil {
			return contracts.Capabilities{}, nil, newCodedConnectErr(contracts.CodeWalletConnectFailed, err.Error())
		}
		return contracts.Capabilities{
			CanSignMessage:     true,
			CanSignTransaction: true,
			SupportedChains:    orDefault(p.SupportedChains, []string{"test"}),
			SupportedAssets:    orDefault(p.SupportedAssets, []string{"USDC"}),
		}, signer, nil
	},
	ProviderEthers: declaredOnly([]string{"ethereum"}),
	ProviderSolanaKeypair: declaredOnly([]string{"solana"}),
	ProviderMetamask: declaredOnly([]string{"ethereum"}),
	ProviderCoinbase: declaredOnly([]string{"ethereum", "solana"}),
	ProviderExternal: declaredOnly(nil),
}

// declaredOnly builds a connector that reports capabilities purely from
// Params (no signer attached) — the capability-declaration boundary
// every non-"test" provider satisfies in this module.
func declaredOnly(defaultChains []string) connector {
	return func(p Params) (contracts.Capabilities, canon.Signer, error) {
		return contracts.Capabilities{
			CanSignMessage:     false,
			CanSignTransaction: false,
			SupportedChains:    orDefault(p.SupportedChains, defaultChains),
			SupportedAssets:    p.SupportedAssets,
		}, nil, nil
	}
}

func orDefault(v, def []string) []string {
	if len(v) > 0 {
		return v
	}
	return def
}

func init() {
	// Guard against a provider name constant slipping through without a
	// registered connector: Connect would reject that name as an unknown
	// provider with WALLET_CONNECT_FAILED.
	for _, name := range []string{ProviderTest, ProviderEthers, ProviderSolanaKeypair, ProviderMetamask, ProviderCoinbase, ProviderExternal} {
		if _, ok := connectors[name]; !ok {
			panic("wallet: missing connector for provider " + name)
		}
	}
}

// IsKnownProvider reports whether name has a registered connector.
func IsKnownProvider(name string) bool {
	_, ok := connectors[name]
	return ok
}
