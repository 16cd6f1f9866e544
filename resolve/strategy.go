// Package resolve turns detected conflicts into ranked candidate
// resolutions and optionally applies the best one under policy.
package resolve

// StrategyKind is the closed set of resolution approaches the engine
// can propose.
type StrategyKind string

const (
	KindUseHigherValue      StrategyKind = "use-higher-value"
	KindUseAverage          StrategyKind = "use-average"
	KindUseLongerTitle      StrategyKind = "use-longer-title"
	KindManualSelection     StrategyKind = "manual-selection"
	KindUseLatestTimestamp  StrategyKind = "use-latest-timestamp"
	KindManualReview        StrategyKind = "manual-review"
)

// Confidence values are fixed design constants, not learned.
const (
	ConfidenceUseHigherValue     = 0.8
	ConfidenceUseAverage         = 0.6
	ConfidenceUseLongerTitle     = 0.7
	ConfidenceUseLatestTimestamp = 0.9
	ConfidenceManual             = 1.0
)

// Strategy is one candidate resolution for a conflict.
type Strategy struct {
	Kind           StrategyKind `json:"kind"`
	ResultingValue any          `json:"resultingValue,omitempty"`
	Confidence     float64      `json:"confidence"`
	Description    string       `json:"description"`

	// RequiresHuman marks strategies that must never be applied
	// automatically regardless of their confidence.
	RequiresHuman bool `json:"requiresHuman"`
}

// Policy controls automatic application of resolutions.
type Policy struct {
	// AutoResolveConflicts enables automatic application of the best
	// strategy for eligible conflicts.
	AutoResolveConflicts bool `json:"auto_resolve_conflicts" yaml:"auto_resolve_conflicts"`

	// MinConfidence is the floor below which a strategy is never
	// auto-applied. Defaults to 0.8.
	MinConfidence float64 `json:"min_confidence" yaml:"min_confidence"`
}

// DefaultPolicy returns the stock resolution policy.
func DefaultPolicy() Policy {
	return Policy{
		AutoResolveConflicts: true,
		MinConfidence:        0.8,
	}
}
