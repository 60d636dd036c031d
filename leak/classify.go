package leak

// Severity grades an emitted leak event.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Severity multipliers applied to the configured growth rate threshold.
const (
	highRateMultiplier     = 2
	criticalRateMultiplier = 4
)

const (
	recCritical = "Immediate investigation required; growth pattern suggests unbounded allocation or a retain cycle"
	recHigh     = "Investigate soon; memory shows a consistent upward trend"
	recMedium   = "Keep monitoring; growth may be transient"
	recLow      = "Growth detected below rate threshold; review if it persists"
)

// verdict is a positive classification before alert gating.
type verdict struct {
	severity       Severity
	recommendation string
}

// classify maps a trend to a leak verdict, or ok=false for no leak.
// Both conditions must hold: total increase at or above the leak
// threshold AND growth rate at or above the rate threshold. Severity
// escalates on rate multiples, highest first.
func classify(trend TrendResult, cfg Config) (verdict, bool) {
	if trend.MemoryIncreaseMB < cfg.LeakThresholdMB {
		return verdict{}, false
	}
	if trend.GrowthRateMBPerMin < cfg.GrowthRateThreshold {
		return verdict{}, false
	}

	switch {
	case trend.GrowthRateMBPerMin >= criticalRateMultiplier*cfg.GrowthRateThreshold:
		return verdict{SeverityCritical, recCritical}, true
	case trend.GrowthRateMBPerMin >= highRateMultiplier*cfg.GrowthRateThreshold:
		return verdict{SeverityHigh, recHigh}, true
	case trend.GrowthRateMBPerMin >= cfg.GrowthRateThreshold:
		return verdict{SeverityMedium, recMedium}, true
	default:
		// Unreachable while the rate check above gates entry; kept as a
		// fallback for threshold tuning.
		return verdict{SeverityLow, recLow}, true
	}
}
