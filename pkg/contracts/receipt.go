package contracts

// Receipt is the terminal, content-addressable artifact of one
// acquisition attempt. It is the input to reputation (market stats and
// agent scores) and to the fingerprint CAS ledger.
type Receipt struct {
	IntentID      string  `json:"intent_id"`
	BuyerAgentID  string  `json:"buyer_agent_id"`
	SellerAgentID string  `json:"seller_agent_id"`
	AgreedPrice   float64 `json:"agreed_price"`
	Fulfilled     bool    `json:"fulfilled"`
	PaidAmount    float64 `json:"paid_amount"`
	TimestampMs   int64   `json:"timestamp_ms"`

	Ticks        int    `json:"ticks,omitempty"`
	Chunks       int    `json:"chunks,omitempty"`
	FailureCode  string `json:"failure_code,omitempty"`
	AssetID      string `json:"asset_id,omitempty"`
	ChainID      string `json:"chain_id,omitempty"`
}

// PenaltyReceipt constructs a zero-value receipt recording an SLA
// violation against a seller, for ingestion into the reputation store.
func PenaltyReceipt(intentID, buyerID, sellerID string, nowMs int64, failureCode string) Receipt {
	return Receipt{
		IntentID:      intentID,
		BuyerAgentID:  buyerID,
		SellerAgentID: sellerID,
		AgreedPrice:   0,
		Fulfilled:     false,
		PaidAmount:    0,
		TimestampMs:   nowMs,
		FailureCode:   failureCode,
	}
}
