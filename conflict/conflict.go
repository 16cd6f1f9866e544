// Package conflict detects disagreements between a source and a target
// reading-state record and classifies how serious each one is. The
// detector is referentially transparent: for a given Thresholds
// configuration the same inputs always produce the same conflicts.
package conflict

import "time"

// Type identifies what kind of field disagreement a conflict covers.
type Type string

const (
	TypeProgress  Type = "PROGRESS"
	TypeTitle     Type = "TITLE"
	TypeTimestamp Type = "TIMESTAMP"
	TypeGeneric   Type = "GENERIC"
	TypeComposite Type = "COMPOSITE"
)

// Severity is a coarse ordinal classification of how serious a
// conflict is. Ordering matters: Max relies on the declared order.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// MaxSeverity returns the more severe of a and b.
func MaxSeverity(a, b Severity) Severity {
	if a > b {
		return a
	}
	return b
}

// Record is one detected disagreement between a source and target
// value for one field of one item, or a composite aggregation of
// several such disagreements on the same item.
type Record struct {
	ID             string `json:"id"`     // unique per item+field
	ItemID         string `json:"itemId"` // the BookRecord id
	Type           Type   `json:"type"`
	Severity       Severity `json:"severity"`
	Field          string   `json:"field,omitempty"`
	SourceValue    any      `json:"sourceValue"`
	TargetValue    any      `json:"targetValue"`
	AutoResolvable bool     `json:"autoResolvable"`

	// SubConflicts holds the per-field records aggregated into a
	// COMPOSITE conflict. Empty for single-field conflicts.
	SubConflicts []Record `json:"subConflicts,omitempty"`
}

// ItemConflicts groups the conflicts detected for one logical item.
type ItemConflicts struct {
	ItemID    string   `json:"itemId"`
	Conflicts []Record `json:"conflicts"`
}

// Report is produced once per sync execution that observes modified
// items.
type Report struct {
	Items           []ItemConflicts `json:"items"`
	OverallSeverity Severity        `json:"overallSeverity"`
	AutoResolvable  bool            `json:"autoResolvable"`
	GeneratedAt     time.Time       `json:"generatedAt"`
}

// Merge folds other's items into r, recomputing the aggregates. Used
// to combine per-batch reports into one per-execution report.
func (r *Report) Merge(other *Report) {
	if other == nil || other.Empty() {
		return
	}
	wasEmpty := r.Empty()
	r.Items = append(r.Items, other.Items...)
	r.OverallSeverity = MaxSeverity(r.OverallSeverity, other.OverallSeverity)
	if wasEmpty {
		r.AutoResolvable = other.AutoResolvable
	} else {
		r.AutoResolvable = r.AutoResolvable && other.AutoResolvable
	}
	if r.GeneratedAt.IsZero() {
		r.GeneratedAt = other.GeneratedAt
	}
}

// TotalConflicts counts every conflict record in the report.
func (r *Report) TotalConflicts() int {
	n := 0
	for _, item := range r.Items {
		n += len(item.Conflicts)
	}
	return n
}

// Empty reports whether no conflicts were detected.
func (r *Report) Empty() bool {
	return r.TotalConflicts() == 0
}
