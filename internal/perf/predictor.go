package perf

// RiskBand is the overload predictor's output band.
type RiskBand string

const (
	RiskCritical RiskBand = "CRITICAL"
	RiskHigh     RiskBand = "HIGH"
	RiskMedium   RiskBand = "MEDIUM"
	RiskLow      RiskBand = "LOW"
)

// Signals is the overload predictor's input: current p95 and its baseline
// (endpoint p50), pool saturation percentage, HTTP error rate percentage,
// and heap growth in MB/min.
type Signals struct {
	P95              float64
	BaselineP50      float64
	SaturationPct    float64
	ErrorRatePct     float64
	MemGrowthMBPerMin float64
}

// Score combines the signals into a 0-100 overload risk score per the
// documented point allocation; bands are evaluated against the total.
func Score(s Signals) (score int, band RiskBand) {
	total := 0

	if s.BaselineP50 > 0 {
		ratio := s.P95 / s.BaselineP50
		switch {
		case ratio > 2:
			total += 30
		case ratio > 1.5:
			total += 15
		}
	}

	switch {
	case s.SaturationPct > 85:
		total += 35
	case s.SaturationPct > 70:
		total += 15
	}

	switch {
	case s.ErrorRatePct > 5:
		total += 30
	case s.ErrorRatePct > 1:
		total += 15
	}

	if s.MemGrowthMBPerMin > 10 {
		total += 20
	}

	switch {
	case total >= 70:
		band = RiskCritical
	case total >= 45:
		band = RiskHigh
	case total >= 20:
		band = RiskMedium
	default:
		band = RiskLow
	}
	return total, band
}
