package analytics

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

type Trend string

const (
	TrendUp   Trend = "up"
	TrendDown Trend = "down"
	TrendFlat Trend = "flat"
)

// flatSlope is the absolute slope under which a series counts as flat.
const flatSlope = 0.1

const reasonInsufficient = "insufficient data"

type Forecast struct {
	Sufficient bool    `json:"sufficient"`
	Reason     string  `json:"reason,omitempty"`
	Points     int     `json:"points"`
	Next       float64 `json:"next"`
	Slope      float64 `json:"slope"`
	Intercept  float64 `json:"intercept"`
	Trend      Trend   `json:"trend,omitempty"`
}

// PredictNextPeriod fits an ordinary least squares line through the series,
// indexed 0..n-1, and extrapolates to index n. Fewer than two points, or
// any non-finite value, yields an insufficient forecast instead of a guess.
func PredictNextPeriod(series []float64) Forecast {
	n := len(series)
	if n <= 1 {
		return Forecast{Reason: reasonInsufficient, Points: n}
	}

	xs := make([]float64, n)
	for i, y := range series {
		if math.IsNaN(y) || math.IsInf(y, 0) {
			return Forecast{Reason: reasonInsufficient, Points: n}
		}
		xs[i] = float64(i)
	}

	intercept, slope := stat.LinearRegression(xs, series, nil, false)
	fn := float64(n)
	next := intercept + slope*fn
	if next < 0 {
		next = 0
	}

	trend := TrendFlat
	switch {
	case slope > flatSlope:
		trend = TrendUp
	case slope < -flatSlope:
		trend = TrendDown
	}

	return Forecast{
		Sufficient: true,
		Points:     n,
		Next:       next,
		Slope:      slope,
		Intercept:  intercept,
		Trend:      trend,
	}
}
