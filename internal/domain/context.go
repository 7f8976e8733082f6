package domain

import "time"

// Direction is the price move a position profits from.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// Tier buckets the entry price.
type Tier string

const (
	TierFavorite  Tier = "favorite"
	TierUncertain Tier = "uncertain"
	TierLongshot  Tier = "longshot"
)

// TierForPrice classifies an ask in cents.
func TierForPrice(cents int) Tier {
	switch {
	case cents >= 65:
		return TierFavorite
	case cents >= 35:
		return TierUncertain
	default:
		return TierLongshot
	}
}

// VolRegime buckets the reference asset's recent volatility.
type VolRegime string

const (
	VolLow    VolRegime = "low"
	VolNormal VolRegime = "normal"
	VolHigh   VolRegime = "high"
)

// TimeBucket is the trading session by UTC hour.
type TimeBucket string

const (
	TimeAsia   TimeBucket = "asia"
	TimeEurope TimeBucket = "europe"
	TimeUS     TimeBucket = "us"
	TimeLate   TimeBucket = "late"
)

// TimeBucketFor returns the session containing t.
func TimeBucketFor(t time.Time) TimeBucket {
	h := t.UTC().Hour()
	switch {
	case h < 8:
		return TimeAsia
	case h < 13:
		return TimeEurope
	case h < 21:
		return TimeUS
	default:
		return TimeLate
	}
}

// Correction dimensions.
const (
	DimDirection = "direction"
	DimTier      = "tier"
	DimVol       = "vol"
	DimTime      = "time"
)

// Dimensions lists every correction dimension in a stable order.
var Dimensions = []string{DimDirection, DimTier, DimVol, DimTime}

// DecisionContext tags a decision for outcome bucketing. Empty fields are
// absent dimensions.
type DecisionContext struct {
	Direction  Direction  `json:"direction,omitempty"`
	Tier       Tier       `json:"tier,omitempty"`
	VolRegime  VolRegime  `json:"vol_regime,omitempty"`
	TimeBucket TimeBucket `json:"time_bucket,omitempty"`
}

// Buckets maps each present dimension to its bucket key.
func (c DecisionContext) Buckets() map[string]string {
	out := make(map[string]string, 4)
	if c.Direction != "" {
		out[DimDirection] = string(c.Direction)
	}
	if c.Tier != "" {
		out[DimTier] = string(c.Tier)
	}
	if c.VolRegime != "" {
		out[DimVol] = string(c.VolRegime)
	}
	if c.TimeBucket != "" {
		out[DimTime] = string(c.TimeBucket)
	}
	return out
}
