// Package negotiation implements the Negotiation Session state machine
// (C7, spec §4.3) and its four pure negotiation strategies (§4.4).
// Grounded on the teacher's small hand-rolled state machines (e.g.
// core/pkg/kernel/cybernetics.go's ControlLoop state field plus
// mutex-guarded transitions) generalized to the buyer-role negotiation
// FSM this spec names.
package negotiation

import "fmt"

// StrategyInput is the pure input to every strategy: a function of
// (reference_price, quote_price, max_price, band_pct, urgent,
// current_round, max_rounds).
type StrategyInput struct {
	ReferencePrice float64
	QuotePrice     float64
	MaxPrice       float64
	BandPct        float64
	Urgent         bool
	CurrentRound   int
	MaxRounds      int

	UrgentBandWidenPct float64 // policy-bounded widen factor for aggressive_if_urgent
}

// StrategyOutput is the discriminated result every strategy produces.
type StrategyOutput struct {
	CounterPrice  float64
	Accept        bool
	Reason        string
	WithinBand    bool
	UsedOverride  bool
	Evidence      map[string]any // populated only by ml_stub
}

// Strategy is a pure function: identical StrategyInput always produces
// identical StrategyOutput. No wall clocks, no RNG.
type Strategy func(in StrategyInput) StrategyOutput

// Strategies is the registry of the four named strategies.
var Strategies = map[string]Strategy{
	"baseline":             Baseline,
	"banded_concession":    BandedConcession,
	"aggressive_if_urgent": AggressiveIfUrgent,
	"ml_stub":              MLStub,
}

func band(in StrategyInput) (lo, hi float64) {
	lo = in.ReferencePrice * (1 - in.BandPct)
	hi = in.ReferencePrice * (1 + in.BandPct)
	return
}

// Baseline accepts iff quote_price <= max_price and within
// [ref_p50*(1-band), ref_p50*(1+band)]; else rejects outright (no
// counter is proposed — this strategy never negotiates rounds).
func Baseline(in StrategyInput) StrategyOutput {
	lo, hi := band(in)
	withinBand := in.QuotePrice >= lo && in.QuotePrice <= hi
	if in.QuotePrice <= in.MaxPrice && withinBand {
		return StrategyOutput{CounterPrice: in.QuotePrice, Accept: true, Reason: "within band and max_price", WithinBand: true}
	}
	return StrategyOutput{CounterPrice: in.QuotePrice, Accept: false, Reason: "outside band or exceeds max_price", WithinBand: withinBand}
}

// BandedConcession starts at ref_p50*(1-band) and concedes linearly
// toward quote_price across rounds, accepting once its counter reaches
// or exceeds the quote.
func BandedConcession(in StrategyInput) StrategyOutput {
	lo, _ := band(in)
	if in.MaxRounds <= 0 {
		return Baseline(in)
	}
	progress := float64(in.CurrentRound) / float64(in.MaxRounds)
	if progress > 1 {
		progress = 1
	}
	counter := lo + (in.QuotePrice-lo)*progress
	if counter > in.MaxPrice {
		counter = in.MaxPrice
	}
	accept := counter >= in.QuotePrice || in.CurrentRound >= in.MaxRounds
	withinBand := in.QuotePrice >= lo
	reason := fmt.Sprintf("round %d/%d concession toward quote", in.CurrentRound, in.MaxRounds)
	if accept {
		reason = "concession reached quote price"
	}
	return StrategyOutput{CounterPrice: counter, Accept: accept && counter <= in.MaxPrice, Reason: reason, WithinBand: withinBand}
}

// AggressiveIfUrgent behaves exactly like Baseline unless Urgent is set,
// in which case the acceptance band widens by UrgentBandWidenPct and the
// strategy accepts without further negotiation rounds.
func AggressiveIfUrgent(in StrategyInput) StrategyOutput {
	if !in.Urgent {
		return Baseline(in)
	}
	widened := in
	widened.BandPct = in.BandPct * (1 + in.UrgentBandWidenPct)
	lo, hi := band(widened)
	withinBand := in.QuotePrice >= lo && in.QuotePrice <= hi
	if in.QuotePrice <= in.MaxPrice && withinBand {
		return StrategyOutput{CounterPrice: in.QuotePrice, Accept: true, Reason: "urgent: widened band accepted", WithinBand: true, UsedOverride: true}
	}
	return StrategyOutput{CounterPrice: in.QuotePrice, Accept: false, Reason: "urgent but still outside widened band", WithinBand: withinBand, UsedOverride: true}
}

// Scorer scores a candidate counter price; higher is better. MLStub's
// default scorer favors prices closest to quote_price (fastest close)
// while never exceeding max_price.
type Scorer func(candidate, quotePrice, maxPrice float64) float64

// DefaultScorer penalizes distance from quote_price and disqualifies any
// candidate above max_price.
func DefaultScorer(candidate, quotePrice, maxPrice float64) float64 {
	if candidate > maxPrice {
		return -1
	}
	diff := candidate - quotePrice
	if diff < 0 {
		diff = -diff
	}
	return -diff
}

// MLStub scores {quote, quote*(1-band), mid} with DefaultScorer and
// selects the top-scoring candidate, recording the scorer name, selected
// index, and per-candidate scores as evidence. It never returns a
// counter outside [0, max_price].
func MLStub(in StrategyInput) StrategyOutput {
	mid := (in.QuotePrice + in.ReferencePrice) / 2
	candidates := []float64{in.QuotePrice, in.QuotePrice * (1 - in.BandPct), mid}

	bestIdx := 0
	bestScore := DefaultScorer(candidates[0], in.QuotePrice, in.MaxPrice)
	scores := make([]float64, len(candidates))
	scores[0] = bestScore
	for i := 1; i < len(candidates); i++ {
		s := DefaultScorer(candidates[i], in.QuotePrice, in.MaxPrice)
		scores[i] = s
		if s > bestScore {
			bestScore = s
			bestIdx = i
		}
	}

	selected := candidates[bestIdx]
	if selected < 0 {
		selected = 0
	}
	if selected > in.MaxPrice {
		selected = in.MaxPrice
	}

	lo, hi := band(in)
	withinBand := selected >= lo && selected <= hi
	accept := selected <= in.MaxPrice && withinBand

	return StrategyOutput{
		CounterPrice: selected,
		Accept:       accept,
		Reason:       "ml_stub: scored candidate set, selected closest-to-quote within budget",
		WithinBand:   withinBand,
		Evidence: map[string]any{
			"scorer":          "default",
			"selected_index":  bestIdx,
			"candidate_prices": candidates,
			"scores":          scores,
		},
	}
}
