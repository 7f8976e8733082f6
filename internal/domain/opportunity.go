package domain

import "time"

// OpportunityKind discriminates Opportunity variants.
type OpportunityKind string

const (
	KindQuant     OpportunityKind = "quant"
	KindHeuristic OpportunityKind = "heuristic"
	KindMicro     OpportunityKind = "micro"
)

// QuantDetail carries the strike-distance model inputs.
type QuantDetail struct {
	Distance  float64 `json:"distance"`
	ScaledVol float64 `json:"scaled_vol"`
	ZScore    float64 `json:"z_score"`
	FlipProb  float64 `json:"flip_prob"`
}

// HeuristicDetail carries the quote-midpoint model inputs.
type HeuristicDetail struct {
	Mid             float64 `json:"mid"`
	MomentumNudge   float64 `json:"momentum_nudge"`
	OscillatorNudge float64 `json:"oscillator_nudge"`
	TrendNudge      float64 `json:"trend_nudge"`
	Amplification   float64 `json:"amplification"`
}

// MicroDetail marks a thin-edge candidate sized from the tier table.
type MicroDetail struct {
	Source     OpportunityKind `json:"source"`
	EdgeBucket float64         `json:"edge_bucket"`
}

// Opportunity is a scored candidate. Exactly one of Quant, Heuristic or Micro
// is set, matching Kind.
type Opportunity struct {
	Kind      OpportunityKind `json:"kind"`
	Contract  Contract        `json:"contract"`
	Side      Side            `json:"side"`
	Price     int             `json:"price"`
	ModelProb float64         `json:"model_prob"`
	Edge      float64         `json:"edge"`
	Fee       float64         `json:"fee"`
	NetEdge   float64         `json:"net_edge"`
	NetPayout float64         `json:"net_payout"`
	EV        float64         `json:"ev"`
	Context   DecisionContext `json:"context"`
	ScoredAt  time.Time       `json:"scored_at"`

	Quant     *QuantDetail     `json:"quant,omitempty"`
	Heuristic *HeuristicDetail `json:"heuristic,omitempty"`
	Micro     *MicroDetail     `json:"micro,omitempty"`
}

// Valid reports whether the variant payload agrees with Kind.
func (o Opportunity) Valid() bool {
	set := 0
	if o.Quant != nil {
		set++
	}
	if o.Heuristic != nil {
		set++
	}
	if o.Micro != nil {
		set++
	}
	if set != 1 {
		return false
	}
	switch o.Kind {
	case KindQuant:
		return o.Quant != nil
	case KindHeuristic:
		return o.Heuristic != nil
	case KindMicro:
		return o.Micro != nil
	}
	return false
}
