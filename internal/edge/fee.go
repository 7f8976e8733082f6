// Package edge estimates fair probability for binary contracts and turns it
// into fee-aware trade candidates.
package edge

// FeeRate is the venue's taker fee coefficient.
const FeeRate = 0.07

// Fee returns the per-contract taker fee in cents for a price in cents:
// 0.07 * p * (100 - p) / 100. It peaks at 50 and is symmetric around it.
func Fee(priceCents float64) float64 {
	if priceCents <= 0 || priceCents >= 100 {
		return 0
	}
	return FeeRate * priceCents * (100 - priceCents) / 100
}

// SideEval is the economics of buying one leg at its ask.
type SideEval struct {
	Price     int     // cents
	Prob      float64 // model probability the leg pays
	Edge      float64 // Prob - Price/100
	Fee       float64 // dollars per contract
	NetEdge   float64 // Edge - Fee
	NetPayout float64 // dollars per contract if the leg pays, after fee
	EV        float64 // dollars per contract
}

// EvaluateSide prices one leg.
func EvaluateSide(prob float64, askCents int) SideEval {
	price := float64(askCents) / 100
	fee := Fee(float64(askCents)) / 100
	netPayout := (100-float64(askCents))/100 - fee
	edge := prob - price
	return SideEval{
		Price:     askCents,
		Prob:      prob,
		Edge:      edge,
		Fee:       fee,
		NetEdge:   edge - fee,
		NetPayout: netPayout,
		EV:        prob*netPayout - (1-prob)*price,
	}
}
