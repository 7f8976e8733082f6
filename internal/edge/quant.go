package edge

import (
	"math"

	"github.com/alanyoungcy/kalshiedge/internal/domain"
)

// logisticScale approximates the standard normal CDF as 1/(1+e^(-1.702z)).
const logisticScale = 1.702

// NormalCDF is the logistic approximation of the standard normal CDF.
func NormalCDF(z float64) float64 {
	return 1 / (1 + math.Exp(-logisticScale*z))
}

// quantProb returns the YES probability from the distance between the
// reference price and the strike. vol5m and volFloor are percentages.
func quantProb(ref, strike, vol5m, volFloor, minutesLeft float64, st domain.StrikeType) (float64, domain.QuantDetail) {
	distance := (ref - strike) / ref
	perMinute := math.Max(vol5m, volFloor) / 100 / math.Sqrt(5)
	scaled := perMinute * math.Sqrt(math.Max(minutesLeft, 0))

	var z float64
	switch {
	case scaled > 0:
		z = distance / scaled
	case distance > 0:
		z = math.Inf(1)
	case distance < 0:
		z = math.Inf(-1)
	}
	flip := 1 - NormalCDF(math.Abs(z))

	// Probability the price settles above the strike.
	above := 0.5
	switch {
	case distance > 0:
		above = 1 - flip
	case distance < 0:
		above = flip
	}

	yes := above
	if st == domain.StrikeBelow {
		yes = 1 - above
	}
	return yes, domain.QuantDetail{
		Distance:  distance,
		ScaledVol: scaled,
		ZScore:    z,
		FlipProb:  flip,
	}
}
