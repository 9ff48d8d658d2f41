package contracts

// Agreement status values.
const (
	AgreementOpen      = "OPEN"
	AgreementCommitted = "COMMITTED"
	AgreementCompleted = "COMPLETED"
	AgreementFailed    = "FAILED"
)

// Agreement is formed after ACCEPT and tracks the bilateral commitment
// that settlement must honor.
type Agreement struct {
	IntentID           string  `json:"intent_id"`
	AgreedPrice        float64 `json:"agreed_price"`
	SettlementMode     string  `json:"settlement_mode"`
	ChallengeWindowMs  int64   `json:"challenge_window_ms"`
	DeliveryDeadlineMs int64   `json:"delivery_deadline_ms"`
	SellerBond         float64 `json:"seller_bond"`
	Status             string  `json:"status"`
}

// Wallet describes an on-chain identity a buyer or provider may present in
// addition to its Ed25519 pubkey.
type Wallet struct {
	Kind                 string       `json:"kind"` // test|ethers|solana-keypair|metamask|coinbase|external
	Chain                string       `json:"chain,omitempty"`
	Address              string       `json:"address,omitempty"`
	Capabilities         Capabilities `json:"capabilities"`
	Used                 bool         `json:"used"`
	SignatureMetadata    any          `json:"signature_metadata,omitempty"`
}

// Capabilities is the wallet capability set from §3.
type Capabilities struct {
	CanSignMessage     bool     `json:"can_sign_message"`
	CanSignTransaction bool     `json:"can_sign_transaction"`
	SupportedChains    []string `json:"supported_chains,omitempty"`
	SupportedAssets    []string `json:"supported_assets,omitempty"`
}

// Asset identifies the settlement asset/chain pair, with the legacy
// {asset_id, chain_id} shape accepted as an alternative input form.
type Asset struct {
	Symbol   string `json:"symbol,omitempty"`
	Chain    string `json:"chain,omitempty"`
	Decimals int    `json:"decimals,omitempty"`
	AssetID  string `json:"asset_id,omitempty"`
	ChainID  string `json:"chain_id,omitempty"`
}

// Resolve normalizes the legacy/explicit forms to a single (assetID,
// chainID) pair, defaulting to USDC/ none when nothing is supplied.
func (a *Asset) Resolve() (assetID, chainID string) {
	if a == nil {
		return "USDC", ""
	}
	if a.Symbol != "" {
		return a.Symbol, a.Chain
	}
	if a.AssetID != "" {
		return a.AssetID, a.ChainID
	}
	return "USDC", ""
}
